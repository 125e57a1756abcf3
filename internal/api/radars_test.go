package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/radarhq/radar/internal/radar"
	"github.com/radarhq/radar/internal/storage"
)

const testToken = "test-token"

func newTestHandler(t *testing.T) (http.Handler, *storage.Store) {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return NewHandler(Deps{Store: store, Token: testToken}), store
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encoding body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Authorization", "Bearer "+testToken)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth_NoAuthRequired(t *testing.T) {
	h, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestRadars_RequireAuth(t *testing.T) {
	h, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/radars", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d without token, want 401", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/radars", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d with bad token, want 401", rec.Code)
	}
}

func TestCreateRadar(t *testing.T) {
	h, store := newTestHandler(t)

	rec := doJSON(t, h, http.MethodPost, "/v1/radars", radar.NewRadar{
		Topic:   "AI news",
		Cadence: radar.CadenceDaily,
		Intent:  "stay current",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}

	var created radar.Radar
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if created.ID == "" {
		t.Error("created radar has no id")
	}
	if created.Status != radar.StatusActive {
		t.Errorf("status = %q, want active", created.Status)
	}
	if !created.NextCheckAt.After(created.CreatedAt) {
		t.Error("next check not scheduled after creation")
	}

	stored, err := store.GetRadar(created.ID)
	if err != nil {
		t.Fatalf("radar not persisted: %v", err)
	}
	if stored.Topic != "AI news" {
		t.Errorf("persisted topic = %q", stored.Topic)
	}
}

func TestCreateRadar_Validation(t *testing.T) {
	h, _ := newTestHandler(t)

	tests := []struct {
		name string
		body radar.NewRadar
	}{
		{"missing topic", radar.NewRadar{Cadence: radar.CadenceDaily}},
		{"bad cadence", radar.NewRadar{Topic: "x", Cadence: "fortnightly"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, h, http.MethodPost, "/v1/radars", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestPauseResumeRadar(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := doJSON(t, h, http.MethodPost, "/v1/radars", radar.NewRadar{Topic: "AI news", Cadence: radar.CadenceDaily})
	var created radar.Radar
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatal(err)
	}

	rec = doJSON(t, h, http.MethodPatch, "/v1/radars/"+created.ID, map[string]string{"status": "paused"})
	if rec.Code != http.StatusOK {
		t.Fatalf("pause status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var updated radar.Radar
	if err := json.Unmarshal(rec.Body.Bytes(), &updated); err != nil {
		t.Fatal(err)
	}
	if updated.Status != radar.StatusPaused {
		t.Errorf("status = %q, want paused", updated.Status)
	}

	rec = doJSON(t, h, http.MethodPatch, "/v1/radars/"+created.ID, map[string]string{"status": "active"})
	if rec.Code != http.StatusOK {
		t.Fatalf("resume status = %d, want 200", rec.Code)
	}

	rec = doJSON(t, h, http.MethodPatch, "/v1/radars/"+created.ID, map[string]string{"status": "sleeping"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad status code = %d, want 400", rec.Code)
	}

	rec = doJSON(t, h, http.MethodPatch, "/v1/radars/nope", map[string]string{"status": "paused"})
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown radar code = %d, want 404", rec.Code)
	}
}

func TestGetListDeleteRadar(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := doJSON(t, h, http.MethodPost, "/v1/radars", radar.NewRadar{Topic: "AI news", Cadence: radar.CadenceWeekly})
	var created radar.Radar
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatal(err)
	}

	rec = doJSON(t, h, http.MethodGet, "/v1/radars/"+created.ID, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("get status = %d, want 200", rec.Code)
	}

	rec = doJSON(t, h, http.MethodGet, "/v1/radars", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d, want 200", rec.Code)
	}
	var list struct {
		Radars []radar.Radar `json:"radars"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatal(err)
	}
	if len(list.Radars) != 1 {
		t.Errorf("list returned %d radars, want 1", len(list.Radars))
	}

	rec = doJSON(t, h, http.MethodDelete, "/v1/radars/"+created.ID, nil)
	if rec.Code != http.StatusNoContent {
		t.Errorf("delete status = %d, want 204", rec.Code)
	}

	rec = doJSON(t, h, http.MethodGet, "/v1/radars/"+created.ID, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("get after delete status = %d, want 404", rec.Code)
	}
}
