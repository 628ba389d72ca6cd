package data

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/giygas/cleaning-validation-api/engine"
	"github.com/giygas/cleaning-validation-api/interfaces"
	"github.com/giygas/cleaning-validation-api/logging"
	"github.com/giygas/cleaning-validation-api/metrics"
	"github.com/giygas/cleaning-validation-api/validation"
)

// ErrUpdateInProgress is returned by TryRefresh when another refresh holds the container.
var ErrUpdateInProgress = errors.New("update already in progress")

// Compile-time check to ensure Refresher implements Refresher
var _ interfaces.Refresher = (*Refresher)(nil)

// Refresher loads the snapshot from its source, computes the derived view and
// swaps both into the container.
type Refresher struct {
	dataStore interfaces.DataStore
	source    interfaces.SnapshotSource
	validator interfaces.DataValidator
	// serializes writers so a refresh after a mutation always sees it
	mu sync.Mutex
}

// NewRefresher creates a refresher with injected dependencies
func NewRefresher(dataStore interfaces.DataStore, source interfaces.SnapshotSource) *Refresher {
	return &Refresher{
		dataStore: dataStore,
		source:    source,
		validator: validation.NewDataValidator(),
	}
}

// Refresh recomputes the container state. It waits for any refresh already
// running, so callers that just wrote to the source see their write.
func (r *Refresher) Refresh(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.refresh(ctx)
}

// TryRefresh is Refresh for background jobs: it skips instead of waiting when
// a refresh is already running.
func (r *Refresher) TryRefresh(ctx context.Context) error {
	if !r.mu.TryLock() {
		return ErrUpdateInProgress
	}
	defer r.mu.Unlock()
	return r.refresh(ctx)
}

func (r *Refresher) refresh(ctx context.Context) error {
	if !r.dataStore.BeginUpdate() {
		return ErrUpdateInProgress
	}
	defer r.dataStore.EndUpdate()

	start := time.Now()

	snapshot, err := r.source.Snapshot(ctx)
	if err != nil {
		metrics.RefreshTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to load snapshot: %w", err)
	}

	if err := r.validator.ValidateDataIntegrity(snapshot.Products, snapshot.Machines); err != nil {
		// The view is still computed: the report below lists every issue and
		// the engine skips what it cannot use.
		logging.Warn("Snapshot failed integrity check", "error", err)
		metrics.IntegrityFailuresTotal.Inc()
	}

	report := r.validator.ReportDataQuality(snapshot.Products, snapshot.Machines)
	logReport(report)

	view := engine.Compute(snapshot)

	r.dataStore.UpdateData(snapshot, view, report)

	elapsed := time.Since(start)
	recordMetrics(snapshot, view, elapsed)

	logging.Info("Snapshot refresh completed",
		"duration", elapsed.String(),
		"product_count", len(snapshot.Products),
		"machine_count", len(snapshot.Machines),
		"train_count", len(view.Trains),
		"studies_required", view.Studies.Total,
		"warning_count", len(view.Warnings),
	)

	return nil
}

func logReport(report *interfaces.DataQualityReport) {
	if len(report.DuplicateProductCodes) > 0 {
		logging.Warn("Duplicate product codes detected",
			"total", len(report.DuplicateProductCodes),
			"codes", report.DuplicateProductCodes,
		)
	}

	if len(report.DuplicateProductIDs) > 0 || len(report.DuplicateMachineIDs) > 0 {
		logging.Warn("Duplicate ids detected",
			"product_ids", report.DuplicateProductIDs,
			"machine_ids", report.DuplicateMachineIDs,
		)
	}

	if report.DanglingMachineRefs > 0 {
		logging.Warn("Products reference unknown machines",
			"count", report.DanglingMachineRefs,
			"product_ids", report.DanglingMachineRefsIDs,
		)
	}

	if report.IngredientsWithoutMDD > 0 {
		logging.Warn("Ingredients without a valid MDD",
			"count", report.IngredientsWithoutMDD,
			"product_ids", report.IngredientsWithoutMDDIDs,
		)
	}

	if report.ProductsWithoutMachines > 0 {
		logging.Debug("Products without machines are not part of any train",
			"count", report.ProductsWithoutMachines,
			"product_ids", report.ProductsWithoutMachinesIDs,
		)
	}
}

func recordMetrics(snapshot engine.Snapshot, view engine.DerivedView, elapsed time.Duration) {
	metrics.RefreshTotal.WithLabelValues("ok").Inc()
	metrics.ComputeDuration.Observe(elapsed.Seconds())
	metrics.CatalogEntities.WithLabelValues("products").Set(float64(len(snapshot.Products)))
	metrics.CatalogEntities.WithLabelValues("machines").Set(float64(len(snapshot.Machines)))
	metrics.CatalogEntities.WithLabelValues("trains").Set(float64(len(view.Trains)))
	metrics.StudiesRequired.Set(float64(view.Studies.Total))
	metrics.EngineWarnings.Set(float64(len(view.Warnings)))

	degenerate := 0
	for _, m := range view.Maco {
		if m.Degenerate {
			degenerate++
		}
	}
	metrics.DegenerateMacoTrains.Set(float64(degenerate))
}
