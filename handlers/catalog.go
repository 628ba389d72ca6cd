package handlers

import (
	"net/http"

	"github.com/giygas/cleaning-validation-api/catalog"
	"github.com/giygas/cleaning-validation-api/catalog/entities"
	"github.com/go-chi/chi/v5"
)

// ListProducts returns the products of the current snapshot
func (h *HTTPHandlerImpl) ListProducts(w http.ResponseWriter, r *http.Request) {
	products := h.dataStore.GetSnapshot().Products
	if products == nil {
		products = []entities.Product{}
	}
	h.RespondWithJSON(w, http.StatusOK, products)
}

// CreateProduct registers a new product
func (h *HTTPHandlerImpl) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var p entities.Product
	if err := decodeJSON(r, &p); err != nil {
		h.respondWithErr(w, r, err)
		return
	}

	created, err := h.repo.CreateProduct(r.Context(), p)
	if err != nil {
		h.respondWithErr(w, r, err)
		return
	}

	h.afterWrite(r.Context(), "create product")
	h.RespondWithJSON(w, http.StatusCreated, created)
}

// UpdateProduct replaces a product
func (h *HTTPHandlerImpl) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, "product id", chi.URLParam(r, "id"))
	if !ok {
		return
	}

	var p entities.Product
	if err := decodeJSON(r, &p); err != nil {
		h.respondWithErr(w, r, err)
		return
	}

	updated, err := h.repo.UpdateProduct(r.Context(), id, p)
	if err != nil {
		h.respondWithErr(w, r, err)
		return
	}

	h.afterWrite(r.Context(), "update product")
	h.RespondWithJSON(w, http.StatusOK, updated)
}

// DeleteProduct removes a product
func (h *HTTPHandlerImpl) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, "product id", chi.URLParam(r, "id"))
	if !ok {
		return
	}

	if err := h.repo.DeleteProduct(r.Context(), id); err != nil {
		h.respondWithErr(w, r, err)
		return
	}

	h.afterWrite(r.Context(), "delete product")
	w.WriteHeader(http.StatusNoContent)
}

// DeleteIngredient removes one active ingredient of a product
func (h *HTTPHandlerImpl) DeleteIngredient(w http.ResponseWriter, r *http.Request) {
	productID, ok := h.pathID(w, "product id", chi.URLParam(r, "id"))
	if !ok {
		return
	}
	ingredientID, ok := h.pathID(w, "ingredient id", chi.URLParam(r, "ingredientId"))
	if !ok {
		return
	}

	updated, err := h.repo.DeleteIngredient(r.Context(), productID, ingredientID)
	if err != nil {
		h.respondWithErr(w, r, err)
		return
	}

	h.afterWrite(r.Context(), "delete ingredient")
	h.RespondWithJSON(w, http.StatusOK, updated)
}

// ListMachines returns the machines of the current snapshot
func (h *HTTPHandlerImpl) ListMachines(w http.ResponseWriter, r *http.Request) {
	machines := h.dataStore.GetSnapshot().Machines
	if machines == nil {
		machines = []entities.Machine{}
	}
	h.RespondWithJSON(w, http.StatusOK, machines)
}

// CreateMachine registers a new machine
func (h *HTTPHandlerImpl) CreateMachine(w http.ResponseWriter, r *http.Request) {
	var m entities.Machine
	if err := decodeJSON(r, &m); err != nil {
		h.respondWithErr(w, r, err)
		return
	}

	created, err := h.repo.CreateMachine(r.Context(), m)
	if err != nil {
		h.respondWithErr(w, r, err)
		return
	}

	h.afterWrite(r.Context(), "create machine")
	h.RespondWithJSON(w, http.StatusCreated, created)
}

// UpdateMachine replaces a machine
func (h *HTTPHandlerImpl) UpdateMachine(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, "machine id", chi.URLParam(r, "id"))
	if !ok {
		return
	}

	var m entities.Machine
	if err := decodeJSON(r, &m); err != nil {
		h.respondWithErr(w, r, err)
		return
	}

	updated, err := h.repo.UpdateMachine(r.Context(), id, m)
	if err != nil {
		h.respondWithErr(w, r, err)
		return
	}

	h.afterWrite(r.Context(), "update machine")
	h.RespondWithJSON(w, http.StatusOK, updated)
}

// DeleteMachine removes a machine that no product uses
func (h *HTTPHandlerImpl) DeleteMachine(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, "machine id", chi.URLParam(r, "id"))
	if !ok {
		return
	}

	if err := h.repo.DeleteMachine(r.Context(), id); err != nil {
		h.respondWithErr(w, r, err)
		return
	}

	h.afterWrite(r.Context(), "delete machine")
	w.WriteHeader(http.StatusNoContent)
}

// ImportMachines merges a CSV machine list into the catalog
func (h *HTTPHandlerImpl) ImportMachines(w http.ResponseWriter, r *http.Request) {
	body, err := readUpload(r)
	if err != nil {
		h.respondWithErr(w, r, err)
		return
	}
	defer body.Close()

	machines, err := catalog.ImportMachinesCSV(body)
	if err != nil {
		h.respondWithErr(w, r, err)
		return
	}

	stats, err := h.repo.ImportMachines(r.Context(), machines)
	if err != nil {
		h.respondWithErr(w, r, err)
		return
	}

	h.afterWrite(r.Context(), "import machines")
	h.RespondWithJSON(w, http.StatusOK, stats)
}
