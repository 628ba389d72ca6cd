package handlers

import (
	"net/http"

	"github.com/giygas/cleaning-validation-api/engine"
	"github.com/go-chi/chi/v5"
)

// TrainResponse is a train with its MACO result
type TrainResponse struct {
	engine.Train
	Maco *engine.TrainMaco `json:"maco,omitempty"`
}

// ListTrains returns the trains of the current view, optionally filtered by
// the line and dosageForm query parameters.
func (h *HTTPHandlerImpl) ListTrains(w http.ResponseWriter, r *http.Request) {
	line := r.URL.Query().Get("line")
	form := r.URL.Query().Get("dosageForm")
	for _, v := range []string{line, form} {
		if v == "" {
			continue
		}
		if err := h.validator.ValidateInput(v); err != nil {
			h.RespondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	trains := make([]engine.Train, 0, len(h.dataStore.GetView().Trains))
	for _, t := range h.dataStore.GetView().Trains {
		if (line == "" || t.Line == line) && (form == "" || t.DosageForm == form) {
			trains = append(trains, t)
		}
	}

	h.RespondWithJSON(w, http.StatusOK, trains)
}

// GetTrain returns one train by display number
func (h *HTTPHandlerImpl) GetTrain(w http.ResponseWriter, r *http.Request) {
	view := h.dataStore.GetView()
	t, ok := h.trainByNumber(w, r, view)
	if !ok {
		return
	}

	response := TrainResponse{Train: t}
	if m, ok := view.Maco[t.Key]; ok {
		response.Maco = &m
	}
	h.RespondWithJSON(w, http.StatusOK, response)
}

// GetTrainMaco returns the MACO calculation of one train
func (h *HTTPHandlerImpl) GetTrainMaco(w http.ResponseWriter, r *http.Request) {
	view := h.dataStore.GetView()
	t, ok := h.trainByNumber(w, r, view)
	if !ok {
		return
	}

	m, ok := view.Maco[t.Key]
	if !ok {
		h.RespondWithError(w, http.StatusNotFound, "MACO not available for this train")
		return
	}
	h.RespondWithJSON(w, http.StatusOK, m)
}

// GetStudies returns the cleaning validation studies required per group
func (h *HTTPHandlerImpl) GetStudies(w http.ResponseWriter, r *http.Request) {
	studies := h.dataStore.GetView().Studies
	if studies.Groups == nil {
		studies.Groups = []engine.GroupStudies{}
	}
	h.RespondWithJSON(w, http.StatusOK, studies)
}

// GetDataQuality returns the data quality report of the current snapshot
func (h *HTTPHandlerImpl) GetDataQuality(w http.ResponseWriter, r *http.Request) {
	view := h.dataStore.GetView()
	warnings := view.Warnings
	if warnings == nil {
		warnings = []string{}
	}

	h.RespondWithJSON(w, http.StatusOK, map[string]any{
		"report":   h.dataStore.GetReport(),
		"warnings": warnings,
	})
}

func (h *HTTPHandlerImpl) trainByNumber(w http.ResponseWriter, r *http.Request, view engine.DerivedView) (engine.Train, bool) {
	n, ok := h.pathID(w, "train number", chi.URLParam(r, "number"))
	if !ok {
		return engine.Train{}, false
	}

	t, found := view.TrainByNumber(n)
	if !found {
		h.RespondWithError(w, http.StatusNotFound, "Train not found")
		return engine.Train{}, false
	}
	return t, true
}
