// Package health reports whether the service is serving a current snapshot.
package health

import (
	"math"
	"net/http"
	"time"

	"github.com/giygas/cleaning-validation-api/interfaces"
)

// Snapshot age thresholds, in refresh intervals.
const (
	degradedAfter  = 3
	unhealthyAfter = 12
)

// HealthCheckerImpl implements the interfaces.HealthChecker interface
type HealthCheckerImpl struct {
	dataStore interfaces.DataStore
	interval  time.Duration
}

// NewHealthChecker creates a new health checker with injected dependencies.
// interval is the scheduler's refresh interval.
func NewHealthChecker(dataStore interfaces.DataStore, interval time.Duration) interfaces.HealthChecker {
	return &HealthCheckerImpl{
		dataStore: dataStore,
		interval:  interval,
	}
}

// HealthCheck grades the service from the age of the current snapshot.
func (h *HealthCheckerImpl) HealthCheck() (status string, data map[string]any, httpStatus int) {
	snapshot := h.dataStore.GetSnapshot()
	view := h.dataStore.GetView()
	report := h.dataStore.GetReport()
	lastUpdate := h.dataStore.GetLastUpdated()
	isUpdating := h.dataStore.IsUpdating()

	dataAge := time.Since(lastUpdate)

	switch {
	case lastUpdate.IsZero():
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable

	case dataAge > unhealthyAfter*h.interval:
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable

	case dataAge > degradedAfter*h.interval:
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable

	default:
		status = "healthy"
		httpStatus = http.StatusOK
	}

	degenerate := 0
	for _, m := range view.Maco {
		if m.Degenerate {
			degenerate++
		}
	}

	data = map[string]any{
		"last_update":         lastUpdate.Format(time.RFC3339),
		"data_age_minutes":    math.Round(dataAge.Minutes()*10) / 10,
		"products":            len(snapshot.Products),
		"machines":            len(snapshot.Machines),
		"trains":              len(view.Trains),
		"studies_required":    view.Studies.Total,
		"warnings":            len(view.Warnings),
		"degenerate_maco":     degenerate,
		"data_quality_issues": report.HasIssues(),
		"is_updating":         isUpdating,
		"next_update":         h.CalculateNextUpdate().Format(time.RFC3339),
	}

	return status, data, httpStatus
}

// CalculateNextUpdate returns when the next periodic refresh is due: one
// interval after the last one, or now when that moment has passed.
func (h *HealthCheckerImpl) CalculateNextUpdate() time.Time {
	now := time.Now()
	lastUpdate := h.dataStore.GetLastUpdated()
	if lastUpdate.IsZero() {
		return now
	}

	next := lastUpdate.Add(h.interval)
	if next.Before(now) {
		return now
	}
	return next
}
