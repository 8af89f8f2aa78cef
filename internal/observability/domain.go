package observability

import "github.com/prometheus/client_golang/prometheus"

// Domain counts bookkeeping outcomes. All methods are nil-safe.
type Domain struct {
	lpSplits    *prometheus.CounterVec
	consumption *prometheus.CounterVec
	outputs     *prometheus.CounterVec
	transitions *prometheus.CounterVec
}

// NewDomain registers the domain counters on registerer.
func NewDomain(registerer prometheus.Registerer) *Domain {
	d := &Domain{
		lpSplits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mes_lp_splits_total",
			Help: "License plate split attempts by result.",
		}, []string{"result"}),
		consumption: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mes_material_consumptions_total",
			Help: "Material consumption attempts by result code.",
		}, []string{"result"}),
		outputs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mes_production_outputs_total",
			Help: "Registered production outputs by kind.",
		}, []string{"kind"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mes_status_transitions_total",
			Help: "Status transition requests by entity type and result.",
		}, []string{"entity", "result"}),
	}
	registerer.MustRegister(d.lpSplits, d.consumption, d.outputs, d.transitions)
	return d
}

// LPSplit records a split outcome ("ok" or an error code).
func (d *Domain) LPSplit(result string) {
	if d == nil {
		return
	}
	d.lpSplits.WithLabelValues(result).Inc()
}

// Consumption records a consumption outcome.
func (d *Domain) Consumption(result string) {
	if d == nil {
		return
	}
	d.consumption.WithLabelValues(result).Inc()
}

// Output records a registered output of kind "main" or "by_product".
func (d *Domain) Output(kind string) {
	if d == nil {
		return
	}
	d.outputs.WithLabelValues(kind).Inc()
}

// Transition records a status transition outcome.
func (d *Domain) Transition(entity, result string) {
	if d == nil {
		return
	}
	d.transitions.WithLabelValues(entity, result).Inc()
}
