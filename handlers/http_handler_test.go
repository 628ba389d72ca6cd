package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/giygas/cleaning-validation-api/catalog"
	"github.com/giygas/cleaning-validation-api/data"
	"github.com/giygas/cleaning-validation-api/engine"
	"github.com/giygas/cleaning-validation-api/health"
	"github.com/giygas/cleaning-validation-api/logging"
	"github.com/giygas/cleaning-validation-api/store"
	"github.com/giygas/cleaning-validation-api/validation"
)

const productJSON = `{
	"productCode": "PRD-001",
	"name": "Paracetamol 500 mg",
	"productType": "Tablets",
	"line": "Solids",
	"batchSizeKg": 50,
	"machineIds": [1, 2],
	"activeIngredients": [
		{"name": "Paracetamol", "therapeuticDose": 100, "mdd": 50000, "solubility": "Soluble", "cleanability": "Medium", "pde": 1},
		{"name": "Caffeine", "therapeuticDose": 50, "mdd": 400, "solubility": "Soluble", "cleanability": "Easy", "ld50": 192}
	]
}`

type testEnv struct {
	handler *HTTPHandlerImpl
	router  chi.Router
	dc      *data.DataContainer
	repo    *catalog.Repository
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logging.InitLogger("")

	s, err := store.Open(filepath.Join(t.TempDir(), "handlers.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	repo := catalog.NewRepository(s)
	dc := data.NewDataContainer()
	dc.SetServerStartTime(time.Now())
	refresher := data.NewRefresher(dc, repo)
	if err := refresher.Refresh(context.Background()); err != nil {
		t.Fatalf("initial refresh: %v", err)
	}

	h := NewHTTPHandler(dc, validation.NewDataValidator(), health.NewHealthChecker(dc, time.Minute), refresher, repo)

	r := chi.NewRouter()
	r.Get("/health", h.HealthCheck)
	r.Route("/v1", func(r chi.Router) {
		r.Get("/products", h.ListProducts)
		r.Post("/products", h.CreateProduct)
		r.Put("/products/{id}", h.UpdateProduct)
		r.Delete("/products/{id}", h.DeleteProduct)
		r.Delete("/products/{id}/ingredients/{ingredientId}", h.DeleteIngredient)
		r.Get("/machines", h.ListMachines)
		r.Post("/machines", h.CreateMachine)
		r.Post("/machines/import", h.ImportMachines)
		r.Put("/machines/{id}", h.UpdateMachine)
		r.Delete("/machines/{id}", h.DeleteMachine)
		r.Get("/trains", h.ListTrains)
		r.Get("/trains/{number}", h.GetTrain)
		r.Get("/trains/{number}/maco", h.GetTrainMaco)
		r.Get("/studies", h.GetStudies)
		r.Get("/data-quality", h.GetDataQuality)
		r.Get("/settings", h.GetDocument(store.KeySettings))
		r.Put("/settings", h.PutDocument(store.KeySettings))
		r.Get("/safety-factors", h.GetDocument(store.KeySafetyFactors))
		r.Put("/safety-factors", h.PutDocument(store.KeySafetyFactors))
		r.Get("/detergents", h.GetDocument(store.KeyDetergentIngredients))
		r.Put("/detergents", h.PutDocument(store.KeyDetergentIngredients))
		r.Get("/history/{key}", h.GetHistory)
		r.Post("/history/{key}/revert/{version}", h.RevertDocument)
	})

	return &testEnv{handler: h, router: r, dc: dc, repo: repo}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return v
}

// seedLine creates two machines and a product using both.
func (e *testEnv) seedLine(t *testing.T) {
	t.Helper()
	for _, m := range []string{
		`{"name": "Blender", "machineNumber": "BL-01", "stage": "Blending", "area": 4000, "line": "Solids"}`,
		`{"name": "Tablet press", "machineNumber": "TP-01", "stage": "Compression", "area": 6000, "line": "Solids"}`,
	} {
		if rr := e.do(t, http.MethodPost, "/v1/machines", m); rr.Code != http.StatusCreated {
			t.Fatalf("create machine: %d %s", rr.Code, rr.Body.String())
		}
	}
	if rr := e.do(t, http.MethodPost, "/v1/products", productJSON); rr.Code != http.StatusCreated {
		t.Fatalf("create product: %d %s", rr.Code, rr.Body.String())
	}
}

func TestHealthCheck(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodGet, "/health", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	resp := decodeBody[HealthResponse](t, rr)
	if resp.Status != "healthy" {
		t.Errorf("status = %s, want healthy", resp.Status)
	}
	if _, ok := resp.Data["next_update"]; !ok {
		t.Error("missing next_update")
	}
	if _, ok := resp.System["goroutines"]; !ok {
		t.Error("missing goroutines")
	}
}

func TestWriteRefreshesDerivedView(t *testing.T) {
	env := newTestEnv(t)
	env.seedLine(t)

	products := decodeBody[[]map[string]any](t, env.do(t, http.MethodGet, "/v1/products", ""))
	if len(products) != 1 {
		t.Fatalf("expected 1 product, got %d", len(products))
	}

	trains := decodeBody[[]engine.Train](t, env.do(t, http.MethodGet, "/v1/trains", ""))
	if len(trains) != 1 {
		t.Fatalf("expected 1 train, got %d", len(trains))
	}
	if trains[0].Key != `["Solids","Tablets",[1,2]]` {
		t.Errorf("train key = %s", trains[0].Key)
	}
	if trains[0].ESSA != 10000 {
		t.Errorf("essa = %v, want 10000", trains[0].ESSA)
	}

	rr := env.do(t, http.MethodGet, "/v1/trains/1", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("get train: %d", rr.Code)
	}
	train := decodeBody[TrainResponse](t, rr)
	if train.Maco == nil || train.Maco.FinalMaco <= 0 {
		t.Errorf("expected MACO with the train, got %+v", train.Maco)
	}

	maco := decodeBody[engine.TrainMaco](t, env.do(t, http.MethodGet, "/v1/trains/1/maco", ""))
	if len(maco.Candidates) == 0 || maco.SelectedMethod == "" {
		t.Errorf("unexpected MACO result %+v", maco.MacoResult)
	}
	if maco.SafetyFactorChoice.Category != "Oral" {
		t.Errorf("safety factor category = %s, want Oral", maco.SafetyFactorChoice.Category)
	}

	studies := decodeBody[engine.StudyPlan](t, env.do(t, http.MethodGet, "/v1/studies", ""))
	if studies.Total != 1 {
		t.Errorf("studies total = %d, want 1", studies.Total)
	}
}

func TestListTrainsFilter(t *testing.T) {
	env := newTestEnv(t)
	env.seedLine(t)

	tests := []struct {
		query string
		code  int
		count int
	}{
		{"?line=Solids", http.StatusOK, 1},
		{"?line=Liquids", http.StatusOK, 0},
		{"?dosageForm=Tablets", http.StatusOK, 1},
		{"?line=Solids%20%26%20Liquids", http.StatusOK, 0},
		{"?line=" + strings.Repeat("a", 101), http.StatusBadRequest, 0},
		{"?line=Solids%00", http.StatusBadRequest, 0},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rr := env.do(t, http.MethodGet, "/v1/trains"+tt.query, "")
			if rr.Code != tt.code {
				t.Fatalf("expected %d, got %d", tt.code, rr.Code)
			}
			if tt.code != http.StatusOK {
				return
			}
			if trains := decodeBody[[]engine.Train](t, rr); len(trains) != tt.count {
				t.Errorf("expected %d trains, got %d", tt.count, len(trains))
			}
		})
	}
}

func TestListTrainsFilterWithPunctuation(t *testing.T) {
	env := newTestEnv(t)
	env.seedLine(t)

	mixed := strings.NewReplacer(`"PRD-001"`, `"PRD-002"`, `"line": "Solids"`, `"line": "Solids & Liquids"`).Replace(productJSON)
	if rr := env.do(t, http.MethodPost, "/v1/products", mixed); rr.Code != http.StatusCreated {
		t.Fatalf("create product: %d %s", rr.Code, rr.Body.String())
	}

	rr := env.do(t, http.MethodGet, "/v1/trains?line=Solids%20%26%20Liquids", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	trains := decodeBody[[]engine.Train](t, rr)
	if len(trains) != 1 || trains[0].Line != "Solids & Liquids" {
		t.Errorf("expected the Solids & Liquids train, got %+v", trains)
	}
}

func TestErrorMapping(t *testing.T) {
	env := newTestEnv(t)
	env.seedLine(t)

	dupCode := strings.Replace(productJSON, "PRD-001", "prd-001", 1)
	noIngredients := `{"productCode": "X", "name": "X", "batchSizeKg": 1, "activeIngredients": []}`

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		code   int
	}{
		{"malformed json", http.MethodPost, "/v1/products", `{"productCode":`, http.StatusBadRequest},
		{"unknown field", http.MethodPost, "/v1/products", `{"colour": "red"}`, http.StatusBadRequest},
		{"invalid product", http.MethodPost, "/v1/products", noIngredients, http.StatusBadRequest},
		{"duplicate code", http.MethodPost, "/v1/products", dupCode, http.StatusConflict},
		{"non numeric id", http.MethodPut, "/v1/products/abc", productJSON, http.StatusBadRequest},
		{"unknown product", http.MethodDelete, "/v1/products/42", "", http.StatusNotFound},
		{"unknown ingredient", http.MethodDelete, "/v1/products/1/ingredients/9", "", http.StatusNotFound},
		{"machine in use", http.MethodDelete, "/v1/machines/1", "", http.StatusConflict},
		{"unknown train", http.MethodGet, "/v1/trains/7", "", http.StatusNotFound},
		{"unknown history key", http.MethodGet, "/v1/history/passwords", "", http.StatusNotFound},
		{"unknown version", http.MethodPost, "/v1/history/settings/revert/99", "", http.StatusNotFound},
		{"bad history limit", http.MethodGet, "/v1/history/products?limit=0", "", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(t, tt.method, tt.path, tt.body)
			if rr.Code != tt.code {
				t.Fatalf("expected %d, got %d: %s", tt.code, rr.Code, rr.Body.String())
			}
			body := decodeBody[map[string]any](t, rr)
			if body["message"] == "" || body["code"] != float64(tt.code) {
				t.Errorf("unexpected error body %v", body)
			}
		})
	}
}

func TestDeleteIngredient(t *testing.T) {
	env := newTestEnv(t)
	env.seedLine(t)

	rr := env.do(t, http.MethodDelete, "/v1/products/1/ingredients/2", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	rr = env.do(t, http.MethodDelete, "/v1/products/1/ingredients/1", "")
	if rr.Code != http.StatusConflict {
		t.Fatalf("removing the last ingredient should conflict, got %d", rr.Code)
	}

	products := env.dc.GetSnapshot().Products
	if len(products) != 1 || len(products[0].ActiveIngredients) != 1 {
		t.Errorf("expected one remaining ingredient, got %+v", products)
	}
}

func TestDeleteProductThenMachine(t *testing.T) {
	env := newTestEnv(t)
	env.seedLine(t)

	if rr := env.do(t, http.MethodDelete, "/v1/products/1", ""); rr.Code != http.StatusNoContent {
		t.Fatalf("delete product: %d", rr.Code)
	}
	if rr := env.do(t, http.MethodDelete, "/v1/machines/1", ""); rr.Code != http.StatusNoContent {
		t.Fatalf("delete machine: %d", rr.Code)
	}

	if n := len(env.dc.GetView().Trains); n != 0 {
		t.Errorf("expected no trains, got %d", n)
	}
	if n := len(env.dc.GetSnapshot().Machines); n != 1 {
		t.Errorf("expected 1 machine, got %d", n)
	}
}

func TestUpdateMachineChangesESSA(t *testing.T) {
	env := newTestEnv(t)
	env.seedLine(t)

	rr := env.do(t, http.MethodPut, "/v1/machines/2", `{"name": "Tablet press", "machineNumber": "TP-01", "stage": "Compression", "area": 1000}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("update machine: %d %s", rr.Code, rr.Body.String())
	}

	if essa := env.dc.GetView().Trains[0].ESSA; essa != 5000 {
		t.Errorf("essa = %v, want 5000", essa)
	}
}

func TestSettingsDocument(t *testing.T) {
	env := newTestEnv(t)
	env.seedLine(t)
	key := env.dc.GetView().Trains[0].Key

	body, _ := json.Marshal(map[string]any{
		"toxicity":     map[string]bool{"pdeHidden": false, "ld50Hidden": false},
		"ssaOverrides": map[string]float64{key: 50},
	})
	rr := env.do(t, http.MethodPut, "/v1/settings", string(body))
	if rr.Code != http.StatusOK {
		t.Fatalf("put settings: %d %s", rr.Code, rr.Body.String())
	}
	entry := decodeBody[store.Entry](t, rr)
	if entry.Version != 1 {
		t.Errorf("version = %d, want 1", entry.Version)
	}

	if ssa := env.dc.GetView().Trains[0].AssumedSSA; ssa != 50 {
		t.Errorf("assumed SSA = %v, want 50", ssa)
	}

	rr = env.do(t, http.MethodPut, "/v1/settings", `{"ssaOverrides": {"x": -1}}`)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("negative override should be rejected, got %d", rr.Code)
	}

	got := decodeBody[map[string]any](t, env.do(t, http.MethodGet, "/v1/settings", ""))
	if _, ok := got["ssaOverrides"]; !ok {
		t.Errorf("settings should contain the stored override: %v", got)
	}
}

func TestSafetyFactorsDefaultAndValidation(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodGet, "/v1/safety-factors", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("get safety factors: %d", rr.Code)
	}
	cfg := decodeBody[map[string]any](t, rr)
	if cfg["defaultCategory"] != "Oral" {
		t.Errorf("expected built-in table, got %v", cfg)
	}

	rr = env.do(t, http.MethodPut, "/v1/safety-factors", `{"categories": {"Oral": {"min": 1000, "max": 100}}, "defaultCategory": "Oral"}`)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("inverted range should be rejected, got %d", rr.Code)
	}
}

func TestDetergents(t *testing.T) {
	env := newTestEnv(t)

	got := decodeBody[[]any](t, env.do(t, http.MethodGet, "/v1/detergents", ""))
	if len(got) != 0 {
		t.Fatalf("expected no detergents, got %v", got)
	}

	rr := env.do(t, http.MethodPut, "/v1/detergents", `[{"name": "Sodium lauryl sulfate", "ld50": 1288}]`)
	if rr.Code != http.StatusOK {
		t.Fatalf("put detergents: %d %s", rr.Code, rr.Body.String())
	}

	detergents := decodeBody[[]map[string]any](t, env.do(t, http.MethodGet, "/v1/detergents", ""))
	if len(detergents) != 1 || detergents[0]["id"] != float64(1) {
		t.Errorf("expected detergent with id 1, got %v", detergents)
	}
}

func TestHistoryAndRevert(t *testing.T) {
	env := newTestEnv(t)
	env.seedLine(t)

	rr := env.do(t, http.MethodPut, "/v1/products/1", strings.Replace(productJSON, `"batchSizeKg": 50`, `"batchSizeKg": 25`, 1))
	if rr.Code != http.StatusOK {
		t.Fatalf("update product: %d %s", rr.Code, rr.Body.String())
	}
	if got := env.dc.GetSnapshot().Products[0].BatchSizeKg; got != 25 {
		t.Fatalf("batch size = %v, want 25", got)
	}

	history := decodeBody[[]store.Entry](t, env.do(t, http.MethodGet, "/v1/history/products?limit=5", ""))
	if len(history) != 2 || history[0].Version != 2 {
		t.Fatalf("expected 2 versions newest first, got %+v", history)
	}

	rr = env.do(t, http.MethodPost, "/v1/history/products/revert/1", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("revert: %d %s", rr.Code, rr.Body.String())
	}
	entry := decodeBody[store.Entry](t, rr)
	if entry.Version != 3 || entry.RevertedFrom == nil || *entry.RevertedFrom != 1 {
		t.Errorf("unexpected revert entry %+v", entry)
	}
	if got := env.dc.GetSnapshot().Products[0].BatchSizeKg; got != 50 {
		t.Errorf("batch size after revert = %v, want 50", got)
	}
}

func TestImportMachines(t *testing.T) {
	env := newTestEnv(t)
	env.seedLine(t)

	csvBody := "name;machineNumber;stage;area\nBlender;BL-01;Blending;4500\nCoater;CO-01;Coating;3000,5\n"

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "machines.csv")
	if err != nil {
		t.Fatal(err)
	}
	part.Write([]byte(csvBody))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/v1/machines/import", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("import: %d %s", rr.Code, rr.Body.String())
	}
	stats := decodeBody[catalog.ImportStats](t, rr)
	if stats.Inserts != 1 || stats.Updates != 1 {
		t.Errorf("unexpected stats %+v", stats)
	}

	if n := len(env.dc.GetSnapshot().Machines); n != 3 {
		t.Errorf("expected 3 machines, got %d", n)
	}
	if essa := env.dc.GetView().Trains[0].ESSA; essa != 10500 {
		t.Errorf("essa = %v, want 10500", essa)
	}
}

func TestImportMachinesRawBodyRejectsGarbage(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/machines/import", strings.NewReader("stage;area\nBlending;10\n"))
	req.Header.Set("Content-Type", "text/csv")
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for a file without name column, got %d", rr.Code)
	}
}

func TestDataQuality(t *testing.T) {
	env := newTestEnv(t)
	env.seedLine(t)

	body := decodeBody[map[string]any](t, env.do(t, http.MethodGet, "/v1/data-quality", ""))
	if _, ok := body["report"]; !ok {
		t.Error("missing report")
	}
	if _, ok := body["warnings"].([]any); !ok {
		t.Errorf("warnings should be a list, got %T", body["warnings"])
	}
}

func TestFormatUptimeHuman(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "0s"},
		{90 * time.Second, "1m 30s"},
		{2*time.Hour + 5*time.Second, "2h 0m 5s"},
		{49 * time.Hour, "2d 1h 0m 0s"},
	}

	for _, tt := range tests {
		if got := formatUptimeHuman(tt.d); got != tt.want {
			t.Errorf("formatUptimeHuman(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}
