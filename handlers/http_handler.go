// Package handlers provides the HTTP handlers of the cleaning validation API.
// Reads are served from the last computed snapshot; writes go through the
// catalog repository and refresh the snapshot before answering.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"runtime"
	"strings"
	"time"

	"github.com/giygas/cleaning-validation-api/catalog"
	"github.com/giygas/cleaning-validation-api/interfaces"
	"github.com/giygas/cleaning-validation-api/logging"
	"github.com/giygas/cleaning-validation-api/store"
	"github.com/giygas/cleaning-validation-api/validation"
)

// Compile-time check to ensure HTTPHandlerImpl implements HTTPHandler
var _ interfaces.HTTPHandler = (*HTTPHandlerImpl)(nil)

// HTTPHandlerImpl implements the interfaces.HTTPHandler interface
type HTTPHandlerImpl struct {
	dataStore     interfaces.DataStore
	validator     interfaces.DataValidator
	healthChecker interfaces.HealthChecker
	refresher     interfaces.Refresher
	repo          *catalog.Repository
}

// NewHTTPHandler creates a new HTTP handler with injected dependencies
func NewHTTPHandler(
	dataStore interfaces.DataStore,
	validator interfaces.DataValidator,
	healthChecker interfaces.HealthChecker,
	refresher interfaces.Refresher,
	repo *catalog.Repository,
) *HTTPHandlerImpl {
	return &HTTPHandlerImpl{
		dataStore:     dataStore,
		validator:     validator,
		healthChecker: healthChecker,
		refresher:     refresher,
		repo:          repo,
	}
}

// HealthResponse defines the structure for consistent JSON ordering
type HealthResponse struct {
	Status        string         `json:"status"`
	Uptime        string         `json:"uptime"`
	UptimeSeconds float64        `json:"uptime_seconds"`
	Data          map[string]any `json:"data"`
	System        map[string]any `json:"system"`
}

// RespondWithJSON writes a JSON response
func (h *HTTPHandlerImpl) RespondWithJSON(w http.ResponseWriter, code int, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		logging.Error("Failed to marshal JSON response", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if last := h.dataStore.GetLastUpdated(); !last.IsZero() {
		w.Header().Set("Last-Modified", last.UTC().Format(http.TimeFormat))
	}
	w.WriteHeader(code)
	w.Write(data)
}

// RespondWithError writes a JSON error response
func (h *HTTPHandlerImpl) RespondWithError(w http.ResponseWriter, code int, message string) {
	errorResponse := map[string]any{
		"error":   http.StatusText(code),
		"message": message,
		"code":    code,
	}
	h.RespondWithJSON(w, code, errorResponse)
}

// respondWithErr maps domain errors to status codes. Unknown errors are
// logged and hidden behind a generic 500.
func (h *HTTPHandlerImpl) respondWithErr(w http.ResponseWriter, r *http.Request, err error) {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.Is(err, validation.ErrInvalid), errors.Is(err, catalog.ErrBadImport):
		h.RespondWithError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &maxBytes):
		h.RespondWithError(w, http.StatusRequestEntityTooLarge, "Request body too large")
	case errors.Is(err, catalog.ErrNotFound), errors.Is(err, store.ErrNotFound), errors.Is(err, store.ErrUnknownKey):
		h.RespondWithError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, validation.ErrDuplicateCode),
		errors.Is(err, validation.ErrLastIngredient),
		errors.Is(err, catalog.ErrMachineInUse):
		h.RespondWithError(w, http.StatusConflict, err.Error())
	default:
		logging.Error("Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		h.RespondWithError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// decodeJSON reads a single JSON document, rejecting unknown fields.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			return err
		}
		return fmt.Errorf("%w: malformed JSON body: %v", validation.ErrInvalid, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: body must contain a single JSON document", validation.ErrInvalid)
	}
	return nil
}

// pathID validates a numeric path parameter.
func (h *HTTPHandlerImpl) pathID(w http.ResponseWriter, name, raw string) (int, bool) {
	id, err := h.validator.ValidateID(raw)
	if err != nil {
		logging.Warn("Unusual user input", name, raw)
		h.RespondWithError(w, http.StatusBadRequest, fmt.Sprintf("Invalid %s: %v", name, err))
		return 0, false
	}
	return id, true
}

// afterWrite recomputes the snapshot so the response and every later read
// reflect the write. A failed refresh is logged; the scheduler retries it.
func (h *HTTPHandlerImpl) afterWrite(ctx context.Context, what string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	if err := h.refresher.Refresh(ctx); err != nil {
		logging.Error("Refresh after write failed", "write", what, "error", err)
	}
}

// formatUptimeHuman formats duration into a human-readable string
func formatUptimeHuman(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	var parts []string
	if days > 0 {
		parts = append(parts, fmt.Sprintf("%dd", days))
	}
	if hours > 0 || days > 0 {
		parts = append(parts, fmt.Sprintf("%dh", hours))
	}
	if minutes > 0 || hours > 0 || days > 0 {
		parts = append(parts, fmt.Sprintf("%dm", minutes))
	}
	parts = append(parts, fmt.Sprintf("%ds", seconds))

	return strings.Join(parts, " ")
}

// HealthCheck returns server health information
func (h *HTTPHandlerImpl) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status, data, httpStatus := h.healthChecker.HealthCheck()

	uptime := time.Duration(0)
	if start := h.dataStore.GetServerStartTime(); !start.IsZero() {
		uptime = time.Since(start)
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	response := HealthResponse{
		Status:        status,
		Uptime:        formatUptimeHuman(uptime),
		UptimeSeconds: uptime.Seconds(),
		Data:          data,
		System: map[string]any{
			"goroutines": runtime.NumGoroutine(),
			"memory": map[string]any{
				"alloc_mb": int(m.Alloc / 1024 / 1024),
				"sys_mb":   int(m.Sys / 1024 / 1024),
				"num_gc":   m.NumGC,
			},
		},
	}

	h.RespondWithJSON(w, httpStatus, response)
}

// readUpload returns the uploaded file of a multipart form, or the raw body.
func readUpload(r *http.Request) (io.ReadCloser, error) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		file, _, err := r.FormFile("file")
		if err != nil {
			return nil, fmt.Errorf("%w: missing file field: %v", validation.ErrInvalid, err)
		}
		return file, nil
	}
	return r.Body, nil
}
