// Package data provides thread-safe storage of the current catalog snapshot and
// everything computed from it. Updates replace the whole state atomically so
// readers never observe a partially computed snapshot.
package data

import (
	"sync/atomic"
	"time"

	"github.com/giygas/cleaning-validation-api/engine"
	"github.com/giygas/cleaning-validation-api/interfaces"
	"github.com/giygas/cleaning-validation-api/logging"
)

// Compile-time check to ensure DataContainer implements DataStore
var _ interfaces.DataStore = (*DataContainer)(nil)

// state is swapped as one value so snapshot, view and report always match.
type state struct {
	snapshot engine.Snapshot
	view     engine.DerivedView
	report   *interfaces.DataQualityReport
}

// DataContainer holds the computed state behind atomic values for zero-downtime updates
type DataContainer struct {
	state           atomic.Value // *state
	lastUpdated     atomic.Value // time.Time
	updating        atomic.Bool
	serverStartTime atomic.Value // time.Time
}

// NewDataContainer creates a new DataContainer with empty data
func NewDataContainer() *DataContainer {
	dc := &DataContainer{}
	dc.state.Store(&state{
		view:   engine.DerivedView{Maco: map[string]engine.TrainMaco{}},
		report: &interfaces.DataQualityReport{},
	})
	dc.lastUpdated.Store(time.Time{})
	dc.serverStartTime.Store(time.Time{})
	return dc
}

func (dc *DataContainer) load() *state {
	if v := dc.state.Load(); v != nil {
		if s, ok := v.(*state); ok {
			return s
		}
	}

	logging.Warn("Data container state is empty or invalid")
	return &state{report: &interfaces.DataQualityReport{}}
}

// GetSnapshot returns the catalog snapshot the current view was computed from
func (dc *DataContainer) GetSnapshot() engine.Snapshot {
	return dc.load().snapshot
}

// GetView returns the derived trains, MACO results and study plan
func (dc *DataContainer) GetView() engine.DerivedView {
	return dc.load().view
}

// GetReport returns the data quality report of the current snapshot
func (dc *DataContainer) GetReport() *interfaces.DataQualityReport {
	return dc.load().report
}

// GetLastUpdated returns the timestamp of the last data update
func (dc *DataContainer) GetLastUpdated() time.Time {
	if v := dc.lastUpdated.Load(); v != nil {
		if lastUpdated, ok := v.(time.Time); ok {
			return lastUpdated
		}
	}

	logging.Warn("Could not get the last updated value")
	return time.Time{}
}

// IsUpdating returns true if a data update is currently in progress
func (dc *DataContainer) IsUpdating() bool {
	return dc.updating.Load()
}

// SetServerStartTime sets the server start time
func (dc *DataContainer) SetServerStartTime(startTime time.Time) {
	dc.serverStartTime.Store(startTime)
}

// GetServerStartTime returns the server start time
func (dc *DataContainer) GetServerStartTime() time.Time {
	if v := dc.serverStartTime.Load(); v != nil {
		if startTime, ok := v.(time.Time); ok {
			return startTime
		}
	}

	logging.Warn("Could not get the server start time value")
	return time.Time{}
}

// UpdateData atomically replaces the snapshot, its derived view and report
func (dc *DataContainer) UpdateData(snapshot engine.Snapshot, view engine.DerivedView, report *interfaces.DataQualityReport) {
	if report == nil {
		report = &interfaces.DataQualityReport{}
	}
	dc.state.Store(&state{snapshot: snapshot, view: view, report: report})
	dc.lastUpdated.Store(time.Now())
}

// BeginUpdate marks the start of a data update operation
// Returns true if update can proceed, false if another update is in progress
func (dc *DataContainer) BeginUpdate() bool {
	return dc.updating.CompareAndSwap(false, true)
}

// EndUpdate marks the end of a data update operation
func (dc *DataContainer) EndUpdate() {
	dc.updating.Store(false)
}
