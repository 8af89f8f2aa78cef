package shared

// Warehouse permissions.
const (
	PermLPView  = "warehouse.lp.view"
	PermLPEdit  = "warehouse.lp.edit"
	PermLPSplit = "warehouse.lp.split"
	PermLPBlock = "warehouse.lp.block"
)

// Production permissions.
const (
	PermWOView            = "production.wo.view"
	PermWOStatus          = "production.wo.status"
	PermConsume           = "production.consume"
	PermOutput            = "production.output"
	PermDashboardView     = "production.dashboard.view"
	PermDashboardExport   = "production.dashboard.export"
	PermTechnicalBOMView  = "technical.bom.view"
	PermTechnicalBOMEdit  = "technical.bom.edit"
	PermRoutingView       = "technical.routing.view"
	PermRoutingEdit       = "technical.routing.edit"
	PermStatusesView      = "settings.statuses.view"
	PermStatusesEdit      = "settings.statuses.edit"
	PermStatusesApprove   = "settings.statuses.approve"
	PermPurchaseOrderView = "purchasing.po.view"
	PermPurchaseOrderEdit = "purchasing.po.edit"
	PermPurchaseStatus    = "purchasing.po.status"
	PermSupplierEdit      = "purchasing.supplier.edit"
	PermSalesOrderView    = "shipping.so.view"
	PermSalesOrderEdit    = "shipping.so.edit"
)

// AllScopes lists every permission known to the service, used when seeding roles.
func AllScopes() []string {
	return []string{
		PermLPView, PermLPEdit, PermLPSplit, PermLPBlock,
		PermWOView, PermWOStatus, PermConsume, PermOutput,
		PermDashboardView, PermDashboardExport,
		PermTechnicalBOMView, PermTechnicalBOMEdit, PermRoutingView, PermRoutingEdit,
		PermStatusesView, PermStatusesEdit, PermStatusesApprove,
		PermPurchaseOrderView, PermPurchaseOrderEdit, PermPurchaseStatus, PermSupplierEdit,
		PermSalesOrderView, PermSalesOrderEdit,
	}
}
