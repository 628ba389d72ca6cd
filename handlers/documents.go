package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/giygas/cleaning-validation-api/catalog/entities"
	"github.com/giygas/cleaning-validation-api/store"
	"github.com/go-chi/chi/v5"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// document reads and decodes one configuration document.
type document struct {
	load   func(ctx context.Context) (any, error)
	decode func(r *http.Request) (any, error)
}

func decodeAs[T any](r *http.Request) (any, error) {
	var v T
	err := decodeJSON(r, &v)
	return v, err
}

func (h *HTTPHandlerImpl) documents() map[string]document {
	return map[string]document{
		store.KeySettings: {
			load:   func(ctx context.Context) (any, error) { return h.repo.Settings(ctx) },
			decode: decodeAs[entities.Settings],
		},
		store.KeyScoringCriteria: {
			load:   func(ctx context.Context) (any, error) { return h.repo.ScoringCriteria(ctx) },
			decode: decodeAs[entities.ScoringCriteria],
		},
		store.KeySafetyFactors: {
			load:   func(ctx context.Context) (any, error) { return h.repo.SafetyFactors(ctx) },
			decode: decodeAs[entities.SafetyFactorConfig],
		},
		store.KeyDetergentIngredients: {
			load:   func(ctx context.Context) (any, error) { return h.repo.Detergents(ctx) },
			decode: decodeAs[[]entities.DetergentIngredient],
		},
	}
}

// GetDocument returns the current value of a configuration document, or its
// built-in default when none was stored yet.
func (h *HTTPHandlerImpl) GetDocument(key string) http.HandlerFunc {
	doc, ok := h.documents()[key]
	if !ok {
		panic(fmt.Sprintf("handlers: no document handler for key %q", key))
	}

	return func(w http.ResponseWriter, r *http.Request) {
		v, err := doc.load(r.Context())
		if err != nil {
			h.respondWithErr(w, r, err)
			return
		}
		h.RespondWithJSON(w, http.StatusOK, v)
	}
}

// PutDocument validates and stores a new version of a configuration document
func (h *HTTPHandlerImpl) PutDocument(key string) http.HandlerFunc {
	doc, ok := h.documents()[key]
	if !ok {
		panic(fmt.Sprintf("handlers: no document handler for key %q", key))
	}

	return func(w http.ResponseWriter, r *http.Request) {
		value, err := doc.decode(r)
		if err != nil {
			h.respondWithErr(w, r, err)
			return
		}

		entry, err := h.repo.PutDocument(r.Context(), key, value)
		if err != nil {
			h.respondWithErr(w, r, err)
			return
		}

		h.afterWrite(r.Context(), "put "+key)
		h.RespondWithJSON(w, http.StatusOK, entry)
	}
}

// GetHistory lists stored versions of a document, newest first
func (h *HTTPHandlerImpl) GetHistory(w http.ResponseWriter, r *http.Request) {
	key, ok := h.documentKey(w, r)
	if !ok {
		return
	}

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxHistoryLimit {
			h.RespondWithError(w, http.StatusBadRequest, fmt.Sprintf("limit must be between 1 and %d", maxHistoryLimit))
			return
		}
		limit = n
	}

	entries, err := h.repo.History(r.Context(), key, limit)
	if err != nil {
		h.respondWithErr(w, r, err)
		return
	}
	if entries == nil {
		entries = []store.Entry{}
	}
	h.RespondWithJSON(w, http.StatusOK, entries)
}

// RevertDocument makes an older version of a document current again
func (h *HTTPHandlerImpl) RevertDocument(w http.ResponseWriter, r *http.Request) {
	key, ok := h.documentKey(w, r)
	if !ok {
		return
	}
	version, ok := h.pathID(w, "version", chi.URLParam(r, "version"))
	if !ok {
		return
	}

	entry, err := h.repo.Revert(r.Context(), key, version)
	if err != nil {
		h.respondWithErr(w, r, err)
		return
	}

	h.afterWrite(r.Context(), "revert "+key)
	h.RespondWithJSON(w, http.StatusOK, entry)
}

func (h *HTTPHandlerImpl) documentKey(w http.ResponseWriter, r *http.Request) (string, bool) {
	key := chi.URLParam(r, "key")
	if !store.IsKnownKey(key) {
		h.RespondWithError(w, http.StatusNotFound, "Unknown document")
		return "", false
	}
	return key, true
}
