// Package interfaces defines core abstractions for the cleaning validation API
// to improve testability, maintainability, and separation of concerns.
package interfaces

import (
	"context"
	"net/http"
	"time"

	"github.com/giygas/cleaning-validation-api/catalog/entities"
	"github.com/giygas/cleaning-validation-api/engine"
)

// DataQualityReport provides a summary of data quality issues
type DataQualityReport struct {
	DuplicateProductCodes      []string `json:"duplicateProductCodes"`
	DuplicateProductIDs        []int    `json:"duplicateProductIds"`
	DuplicateMachineIDs        []int    `json:"duplicateMachineIds"`
	DanglingMachineRefs        int      `json:"danglingMachineRefs"`
	DanglingMachineRefsIDs     []int    `json:"danglingMachineRefsProductIds"` // first 10 product ids
	ProductsWithoutMachines    int      `json:"productsWithoutMachines"`
	ProductsWithoutMachinesIDs []int    `json:"productsWithoutMachinesIds"`
	IngredientsWithoutMDD      int      `json:"ingredientsWithoutMdd"`
	IngredientsWithoutMDDIDs   []int    `json:"ingredientsWithoutMddProductIds"`
	IngredientsWithoutToxicity int      `json:"ingredientsWithoutToxicity"`
	UnusedMachines             int      `json:"unusedMachines"`
}

// HasIssues reports whether the report found anything.
func (r *DataQualityReport) HasIssues() bool {
	if r == nil {
		return false
	}
	return len(r.DuplicateProductCodes) > 0 || len(r.DuplicateProductIDs) > 0 ||
		len(r.DuplicateMachineIDs) > 0 || r.DanglingMachineRefs > 0 ||
		r.ProductsWithoutMachines > 0 || r.IngredientsWithoutMDD > 0 ||
		r.IngredientsWithoutToxicity > 0
}

// DataStore defines the contract for the in-memory snapshot holder.
// Readers always get a fully computed snapshot; updates swap it atomically.
type DataStore interface {
	GetSnapshot() engine.Snapshot
	GetView() engine.DerivedView
	GetReport() *DataQualityReport
	GetLastUpdated() time.Time
	IsUpdating() bool
	GetServerStartTime() time.Time

	UpdateData(snapshot engine.Snapshot, view engine.DerivedView, report *DataQualityReport)
	BeginUpdate() bool
	EndUpdate()
}

// SnapshotSource loads the catalog the engine computes from.
type SnapshotSource interface {
	Snapshot(ctx context.Context) (engine.Snapshot, error)
}

// Refresher rebuilds the data store from its source.
type Refresher interface {
	// Refresh waits for a running refresh and then performs its own
	Refresh(ctx context.Context) error
	// TryRefresh skips when a refresh is already running
	TryRefresh(ctx context.Context) error
}

// Scheduler defines the contract for job scheduling and health monitoring.
// It manages periodic refreshes and staleness checks.
type Scheduler interface {
	// Lifecycle management
	Start() error
	Stop()
}

// HTTPHandler defines the contract for HTTP request handlers.
type HTTPHandler interface {
	// This will stay in all versions
	HealthCheck(w http.ResponseWriter, r *http.Request)

	// Catalog
	ListProducts(w http.ResponseWriter, r *http.Request)
	CreateProduct(w http.ResponseWriter, r *http.Request)
	UpdateProduct(w http.ResponseWriter, r *http.Request)
	DeleteProduct(w http.ResponseWriter, r *http.Request)
	DeleteIngredient(w http.ResponseWriter, r *http.Request)
	ListMachines(w http.ResponseWriter, r *http.Request)
	CreateMachine(w http.ResponseWriter, r *http.Request)
	UpdateMachine(w http.ResponseWriter, r *http.Request)
	DeleteMachine(w http.ResponseWriter, r *http.Request)
	ImportMachines(w http.ResponseWriter, r *http.Request)

	// Derived data
	ListTrains(w http.ResponseWriter, r *http.Request)
	GetTrain(w http.ResponseWriter, r *http.Request)
	GetTrainMaco(w http.ResponseWriter, r *http.Request)
	GetStudies(w http.ResponseWriter, r *http.Request)
	GetDataQuality(w http.ResponseWriter, r *http.Request)

	// Configuration documents
	GetDocument(key string) http.HandlerFunc
	PutDocument(key string) http.HandlerFunc
	GetHistory(w http.ResponseWriter, r *http.Request)
	RevertDocument(w http.ResponseWriter, r *http.Request)
}

// HealthChecker defines the contract for health check functionality.
type HealthChecker interface {
	// HealthCheck returns current system health status and the HTTP code to answer with
	HealthCheck() (status string, details map[string]any, httpStatus int)

	// CalculateNextUpdate returns the next scheduled refresh time
	CalculateNextUpdate() time.Time
}

// DataValidator defines the contract for data validation operations.
// It ensures data integrity and consistency.
type DataValidator interface {
	// ValidateProduct checks a product and its ingredients
	ValidateProduct(p *entities.Product) error

	// ValidateIngredient checks a single active ingredient
	ValidateIngredient(ing *entities.Ingredient) error

	// ValidateMachine checks a machine entity
	ValidateMachine(m *entities.Machine) error

	// CheckDuplicateProductCodes validates that product codes are unique ignoring case
	CheckDuplicateProductCodes(products []entities.Product) error

	// ValidateDataIntegrity performs comprehensive data validation
	ValidateDataIntegrity(products []entities.Product, machines []entities.Machine) error

	// ReportDataQuality generates a data quality report with all issues found
	ReportDataQuality(products []entities.Product, machines []entities.Machine) *DataQualityReport

	// ValidateInput validates free text filter values
	ValidateInput(input string) error

	// ValidateID validates numeric path identifiers
	ValidateID(input string) (int, error)
}
