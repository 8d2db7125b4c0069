package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"raizcore/internal/core"
	"raizcore/internal/report"
)

func fixedNow() time.Time {
	return time.Date(2026, 6, 12, 10, 30, 0, 0, time.UTC)
}

func newTestHandler(t *testing.T) *Handler {
	t.Helper()
	service := core.NewInMemoryService(core.NewDefaultRulesEngine(), core.WithClock(fixedNow))
	return &Handler{
		Service: service,
		Reports: report.NewAssembler(service, fixedNow),
	}
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var payload bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&payload).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &payload)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

func createLot(t *testing.T, h *Handler, quantity int) string {
	t.Helper()
	rec := doJSON(t, h, http.MethodPost, "/api/v1/lots", map[string]any{
		"kind":     "sowing",
		"variety":  "Lechuga Crespa",
		"quantity": quantity,
		"operator": "Marta",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create lot status %d: %s", rec.Code, rec.Body.String())
	}
	lot := decodeBody(t, rec)["lot"].(map[string]any)
	return lot["id"].(string)
}

func TestCreateAndGetLot(t *testing.T) {
	h := newTestHandler(t)
	id := createLot(t, h, 50)

	rec := doJSON(t, h, http.MethodGet, "/api/v1/lots/"+id, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get lot status %d", rec.Code)
	}
	lot := decodeBody(t, rec)["lot"].(map[string]any)
	if lot["code"] != "Jun-01" {
		t.Fatalf("code = %v", lot["code"])
	}
	if lot["subsystem"] != "Germinacion" {
		t.Fatalf("subsystem = %v", lot["subsystem"])
	}

	rec = doJSON(t, h, http.MethodGet, "/api/v1/lots/missing", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing lot status %d", rec.Code)
	}
}

func TestCreateLotRejectsBadInput(t *testing.T) {
	h := newTestHandler(t)

	rec := doJSON(t, h, http.MethodPost, "/api/v1/lots", map[string]any{
		"kind": "sowing", "variety": "Albahaca", "quantity": 0, "operator": "Marta",
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("zero quantity status %d", rec.Code)
	}

	rec = doJSON(t, h, http.MethodPost, "/api/v1/lots", map[string]any{
		"kind": "cloning", "variety": "Albahaca", "quantity": 10, "operator": "Marta",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown kind status %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/lots", strings.NewReader("not json"))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("malformed body status %d", rec.Code)
	}
}

func TestListLotsFilters(t *testing.T) {
	h := newTestHandler(t)
	id := createLot(t, h, 40)
	createLot(t, h, 30)

	rec := doJSON(t, h, http.MethodPost, "/api/v1/lots/"+id+"/close", map[string]any{"operator": "Marta"})
	if rec.Code != http.StatusOK {
		t.Fatalf("close status %d: %s", rec.Code, rec.Body.String())
	}

	for _, tc := range []struct {
		query string
		want  int
	}{
		{"", 1},
		{"?state=active", 1},
		{"?state=closed", 1},
		{"?state=all", 2},
		{"?subsystem=" + "Germinacion", 1},
		{"?state=all&subsystem=Raiz%20Flotante", 0},
	} {
		rec := doJSON(t, h, http.MethodGet, "/api/v1/lots"+tc.query, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("list %q status %d", tc.query, rec.Code)
		}
		lots := decodeBody(t, rec)["lots"].([]any)
		if len(lots) != tc.want {
			t.Fatalf("list %q returned %d lots, want %d", tc.query, len(lots), tc.want)
		}
	}

	rec = doJSON(t, h, http.MethodGet, "/api/v1/lots?state=stale", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad state status %d", rec.Code)
	}
	rec = doJSON(t, h, http.MethodGet, "/api/v1/lots?subsystem=Invernadero", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad subsystem status %d", rec.Code)
	}
}

func TestTransplantEndpoint(t *testing.T) {
	h := newTestHandler(t)
	id := createLot(t, h, 60)

	rec := doJSON(t, h, http.MethodPost, "/api/v1/lots/"+id+"/transplant", map[string]any{
		"to": "Raiz Flotante", "quantity": 20, "operator": "Marta",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("partial transplant status %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	split, ok := body["split"].(map[string]any)
	if !ok {
		t.Fatalf("expected split lot in %v", body)
	}
	if split["code"] != "Jun-01-A" {
		t.Fatalf("split code = %v", split["code"])
	}
	source := body["lot"].(map[string]any)
	if source["current_count"].(float64) != 40 {
		t.Fatalf("source count = %v", source["current_count"])
	}

	rec = doJSON(t, h, http.MethodPost, "/api/v1/lots/"+id+"/transplant", map[string]any{
		"to": "Germinacion", "quantity": 10, "operator": "Marta",
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("same-system status %d", rec.Code)
	}

	rec = doJSON(t, h, http.MethodPost, "/api/v1/lots/"+id+"/transplant", map[string]any{
		"to": "Cama de Arena", "quantity": 500, "operator": "Marta",
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("excess quantity status %d", rec.Code)
	}

	rec = doJSON(t, h, http.MethodPost, "/api/v1/lots/missing/transplant", map[string]any{
		"to": "Cama de Arena", "quantity": 5, "operator": "Marta",
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing lot status %d", rec.Code)
	}
}

func TestHarvestAndMortalityEndpoints(t *testing.T) {
	h := newTestHandler(t)
	id := createLot(t, h, 100)

	rec := doJSON(t, h, http.MethodPost, "/api/v1/lots/"+id+"/harvest", map[string]any{
		"quantity":                    10,
		"control_weight_without_root": 180.0,
		"operator":                    "Marta",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("harvest status %d: %s", rec.Code, rec.Body.String())
	}
	lot := decodeBody(t, rec)["lot"].(map[string]any)
	if lot["total_harvested"].(float64) != 10 || lot["avg_weight_grams"].(float64) != 180 {
		t.Fatalf("unexpected harvest result %v", lot)
	}

	rec = doJSON(t, h, http.MethodPost, "/api/v1/lots/"+id+"/mortality", map[string]any{
		"quantity": 5, "cause": "hongos", "operator": "Marta",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("mortality status %d: %s", rec.Code, rec.Body.String())
	}
	lot = decodeBody(t, rec)["lot"].(map[string]any)
	if lot["current_count"].(float64) != 85 || lot["total_mortality"].(float64) != 5 {
		t.Fatalf("unexpected mortality result %v", lot)
	}

	rec = doJSON(t, h, http.MethodGet, "/api/v1/lots/"+id+"/activities", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("activities status %d", rec.Code)
	}
	activities := decodeBody(t, rec)["activities"].([]any)
	if len(activities) != 3 {
		t.Fatalf("expected siembra+cosecha+mortandad, got %d activities", len(activities))
	}
}

func TestEvolutionEndpoint(t *testing.T) {
	h := newTestHandler(t)
	id := createLot(t, h, 20)

	rec := doJSON(t, h, http.MethodPost, "/api/v1/lots/"+id+"/evolution", map[string]any{
		"notes":    "raices sanas",
		"operator": "Marta",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("evolution status %d: %s", rec.Code, rec.Body.String())
	}
	activity := decodeBody(t, rec)["activity"].(map[string]any)
	if activity["kind"] != "evolucion" {
		t.Fatalf("kind = %v", activity["kind"])
	}

	rec = doJSON(t, h, http.MethodPost, "/api/v1/lots/"+id+"/evolution", map[string]any{
		"operator": "Marta",
		"images": []map[string]any{
			{"name": "foto.jpg", "content_type": "image/jpeg", "data": "%%%not-base64%%%"},
		},
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad base64 status %d", rec.Code)
	}
}

func TestLevelsEndpoints(t *testing.T) {
	h := newTestHandler(t)

	rec := doJSON(t, h, http.MethodPost, "/api/v1/levels", map[string]any{
		"subsystem":    "Raiz Flotante",
		"ph":           6.1,
		"conductivity": 1.7,
		"temperature":  22.0,
		"battery":      90.0,
		"operator":     "Marta",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("record levels status %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, h, http.MethodPost, "/api/v1/levels", map[string]any{
		"subsystem": "Raiz Flotante", "conductivity": 1.7, "temperature": 22.0, "operator": "Marta",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing ph status %d", rec.Code)
	}

	rec = doJSON(t, h, http.MethodGet, "/api/v1/levels?subsystem=Raiz%20Flotante", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list levels status %d", rec.Code)
	}
	readings := decodeBody(t, rec)["readings"].([]any)
	if len(readings) != 1 {
		t.Fatalf("expected 1 reading, got %d", len(readings))
	}

	rec = doJSON(t, h, http.MethodGet, "/api/v1/levels", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing subsystem status %d", rec.Code)
	}
}

func TestDailyReportEndpoint(t *testing.T) {
	h := newTestHandler(t)
	createLot(t, h, 25)

	rec := doJSON(t, h, http.MethodGet, "/api/v1/reports/daily?date=2026-06-12", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("json report status %d: %s", rec.Code, rec.Body.String())
	}
	rep := decodeBody(t, rec)["report"].(map[string]any)
	if len(rep["active_lots"].([]any)) != 1 {
		t.Fatalf("unexpected report %v", rep)
	}

	rec = doJSON(t, h, http.MethodGet, "/api/v1/reports/daily?date=2026-06-12&format=text", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("text report status %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Fatalf("content type = %s", ct)
	}
	if !strings.Contains(rec.Body.String(), "REPORTE DIARIO - VERDE RAÍZ HIDROPONÍA") {
		t.Fatalf("missing report header in %q", rec.Body.String())
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "Reporte_Verde_Raiz_2026-06-12.txt") {
		t.Fatalf("content disposition = %s", cd)
	}

	rec = doJSON(t, h, http.MethodGet, "/api/v1/reports/daily?date=12/06/2026", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad date status %d", rec.Code)
	}
	rec = doJSON(t, h, http.MethodGet, "/api/v1/reports/daily?format=pdf", nil)
	if rec.Code != http.StatusNotAcceptable {
		t.Fatalf("bad format status %d", rec.Code)
	}
}

func TestExportEndpoints(t *testing.T) {
	h := newTestHandler(t)
	createLot(t, h, 25)

	worker := report.NewWorker(h.Reports, nil, nil)
	worker.Start()
	defer func() { _ = worker.Stop(context.Background()) }()
	h.Exports = worker

	rec := doJSON(t, h, http.MethodPost, "/api/v1/reports/exports", map[string]any{
		"date":    "2026-06-12",
		"formats": []string{"text", "json"},
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("enqueue status %d: %s", rec.Code, rec.Body.String())
	}
	record := decodeBody(t, rec)["export"].(map[string]any)
	id := record["id"].(string)

	deadline := time.Now().Add(5 * time.Second)
	for {
		rec = doJSON(t, h, http.MethodGet, "/api/v1/reports/exports/"+id, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("get export status %d", rec.Code)
		}
		status := decodeBody(t, rec)["export"].(map[string]any)["status"].(string)
		if status == "succeeded" {
			break
		}
		if status == "failed" || time.Now().After(deadline) {
			t.Fatalf("export did not succeed: %s", rec.Body.String())
		}
		time.Sleep(10 * time.Millisecond)
	}

	rec = doJSON(t, h, http.MethodGet, "/api/v1/reports/exports", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list exports status %d", rec.Code)
	}
	if exports := decodeBody(t, rec)["exports"].([]any); len(exports) != 1 {
		t.Fatalf("expected 1 export, got %d", len(exports))
	}

	rec = doJSON(t, h, http.MethodPost, "/api/v1/reports/exports", map[string]any{
		"date": "2026-06-12", "formats": []string{"pdf"},
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad format status %d", rec.Code)
	}
	rec = doJSON(t, h, http.MethodPost, "/api/v1/reports/exports", map[string]any{"formats": []string{"text"}})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing date status %d", rec.Code)
	}
	rec = doJSON(t, h, http.MethodGet, "/api/v1/reports/exports/missing", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing export status %d", rec.Code)
	}
}

func TestExportsRouteWithoutWorker(t *testing.T) {
	h := newTestHandler(t)
	rec := doJSON(t, h, http.MethodGet, "/api/v1/reports/exports", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status %d without worker", rec.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	h := newTestHandler(t)
	id := createLot(t, h, 10)

	for _, tc := range []struct {
		method string
		path   string
	}{
		{http.MethodDelete, "/api/v1/lots"},
		{http.MethodPost, "/api/v1/lots/" + id},
		{http.MethodPost, "/api/v1/lots/" + id + "/activities"},
		{http.MethodDelete, "/api/v1/levels"},
		{http.MethodPost, "/api/v1/reports/daily"},
	} {
		rec := doJSON(t, h, tc.method, tc.path, nil)
		if rec.Code != http.StatusMethodNotAllowed {
			t.Fatalf("%s %s status %d", tc.method, tc.path, rec.Code)
		}
	}

	rec := doJSON(t, h, http.MethodGet, "/api/v1/unknown", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown route status %d", rec.Code)
	}
}

func TestUnconfiguredService(t *testing.T) {
	h := &Handler{}
	rec := doJSON(t, h, http.MethodGet, "/api/v1/lots", nil)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status %d", rec.Code)
	}
	if msg := fmt.Sprint(decodeBody(t, rec)["error"]); msg != "service not configured" {
		t.Fatalf("error = %q", msg)
	}
}
