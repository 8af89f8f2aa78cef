package dashboard

import (
	"fmt"
	"sort"
	"time"

	"github.com/odyssey-erp/odyssey-mes/internal/warehouse/licenseplates"
)

// plateAlerts classifies one watchlist plate. A plate can be both on QA hold
// and expiring.
func plateAlerts(lp licenseplates.LicensePlate, now time.Time, days int) []Alert {
	var out []Alert
	base := Alert{EntityType: "license_plate", EntityID: lp.ID, Reference: lp.LPNumber}
	if lp.OnQAHold() {
		a := base
		a.Type, a.Severity = AlertLPQAHold, SeverityWarning
		a.Message = fmt.Sprintf("QA status %s", lp.QAStatus)
		out = append(out, a)
	}
	switch {
	case lp.IsExpired(now):
		a := base
		a.Type, a.Severity = AlertLPExpired, SeverityCritical
		a.Message = fmt.Sprintf("expired on %s with %s %s left", lp.ExpiryDate.Format(time.DateOnly), lp.Quantity, lp.UoM)
		out = append(out, a)
	case lp.ExpiresWithin(now, days):
		a := base
		a.Type, a.Severity = AlertLPExpiring, SeverityWarning
		a.Message = fmt.Sprintf("expires on %s", lp.ExpiryDate.Format(time.DateOnly))
		out = append(out, a)
	}
	return out
}

var severityRank = map[string]int{SeverityCritical: 0, SeverityWarning: 1}

func sortAlerts(items []Alert) {
	sort.SliceStable(items, func(i, j int) bool {
		return severityRank[items[i].Severity] < severityRank[items[j].Severity]
	})
}
