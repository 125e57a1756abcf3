package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/radarhq/radar/internal/flow"
	"github.com/radarhq/radar/internal/interpret"
	"github.com/radarhq/radar/internal/radar"
	"github.com/radarhq/radar/internal/storage"
)

// instantCall completes immediately with a scripted interpretation.
type instantCall struct {
	partial chan interpret.Interpretation
	final   chan interpret.Result
}

func (c *instantCall) Partial() <-chan interpret.Interpretation { return c.partial }
func (c *instantCall) Final() <-chan interpret.Result           { return c.final }
func (c *instantCall) Cancel()                                  {}

// instantInterpreter resolves every request with the same proposal.
type instantInterpreter struct{}

func (instantInterpreter) Interpret(ctx context.Context, text string) (flow.InterpretCall, error) {
	c := &instantCall{
		partial: make(chan interpret.Interpretation),
		final:   make(chan interpret.Result, 1),
	}
	close(c.partial)
	c.final <- interpret.Result{Interpretation: interpret.Interpretation{
		What: interpret.What{Topic: "AI news", Description: "daily digest"},
		When: interpret.When{
			Frequency: "daily",
			Options: []interpret.CadenceOption{
				{Value: "daily", IsRecommended: true},
				{Value: "weekly"},
			},
		},
		Why: interpret.Why{Intent: "stay current"},
	}}
	return c, nil
}

// storeCreator persists through the real storage layer, as the wired
// server does.
type storeCreator struct {
	store *storage.Store
}

func (sc storeCreator) Create(ctx context.Context, nr radar.NewRadar) (radar.Radar, error) {
	now := time.Now().UTC()
	r := radar.Radar{
		ID:          "r-test",
		Topic:       nr.Topic,
		Description: nr.Description,
		Cadence:     nr.Cadence,
		Intent:      nr.Intent,
		Status:      radar.StatusActive,
		CreatedAt:   now,
		NextCheckAt: now.Add(radar.CadenceInterval(nr.Cadence)),
	}
	if err := sc.store.SaveRadar(r); err != nil {
		return radar.Radar{}, &radar.CreationError{Message: err.Error()}
	}
	return r, nil
}

func newFlowTestServer(t *testing.T) (*httptest.Server, *storage.Store) {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	sessions := NewSessionManager(instantInterpreter{}, storeCreator{store: store}, flow.Options{
		DebounceWindow: 5 * time.Millisecond,
	})
	t.Cleanup(sessions.Close)

	srv := httptest.NewServer(NewHandler(Deps{Store: store, Sessions: sessions, Token: testToken}))
	t.Cleanup(srv.Close)
	return srv, store
}

func flowPost(t *testing.T, srv *httptest.Server, path string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req, err := http.NewRequest(http.MethodPost, srv.URL+path, &buf)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Authorization", "Bearer "+testToken)
	req.Header.Set("Content-Type", "application/json")
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	return resp
}

// sseReader scans an events stream for snapshots.
type sseReader struct {
	resp    *http.Response
	scanner *bufio.Scanner
}

func openEvents(t *testing.T, srv *httptest.Server, sessionID string) *sseReader {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/v1/flow/"+sessionID+"/events", nil)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Authorization", "Bearer "+testToken)
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("opening events stream: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("events status = %d, want 200", resp.StatusCode)
	}
	return &sseReader{resp: resp, scanner: bufio.NewScanner(resp.Body)}
}

// waitFlowState reads snapshots until the wanted state appears.
func (r *sseReader) waitFlowState(t *testing.T, want flow.State) flow.Snapshot {
	t.Helper()
	for r.scanner.Scan() {
		line := strings.TrimSpace(r.scanner.Text())
		data, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}
		var snap flow.Snapshot
		if err := json.Unmarshal([]byte(strings.TrimSpace(data)), &snap); err != nil {
			t.Fatalf("decoding snapshot: %v", err)
		}
		if snap.State == want {
			return snap
		}
	}
	t.Fatalf("stream ended before state %q (scan err: %v)", want, r.scanner.Err())
	return flow.Snapshot{}
}

func TestFlowSession_EndToEnd(t *testing.T) {
	srv, store := newFlowTestServer(t)

	resp := flowPost(t, srv, "/v1/flow", nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create session status = %d, want 201", resp.StatusCode)
	}
	var created struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	events := openEvents(t, srv, created.ID)

	resp = flowPost(t, srv, "/v1/flow/"+created.ID+"/input", map[string]string{"text": "ai news"})
	resp.Body.Close()

	snap := events.waitFlowState(t, flow.StateReview)
	if snap.Draft.Cadence != "daily" {
		t.Errorf("draft cadence = %q, want recommended %q", snap.Draft.Cadence, "daily")
	}

	resp = flowPost(t, srv, "/v1/flow/"+created.ID+"/edit", map[string]string{"field": "cadence", "value": "weekly"})
	resp.Body.Close()
	resp = flowPost(t, srv, "/v1/flow/"+created.ID+"/confirm", nil)
	resp.Body.Close()

	snap = events.waitFlowState(t, flow.StateComplete)
	if snap.Created.ID == "" {
		t.Fatal("complete snapshot has no created radar")
	}
	if snap.Created.Cadence != "weekly" {
		t.Errorf("created cadence = %q, want user override %q", snap.Created.Cadence, "weekly")
	}

	stored, err := store.GetRadar(snap.Created.ID)
	if err != nil {
		t.Fatalf("created radar not persisted: %v", err)
	}
	if stored.Topic != "AI news" {
		t.Errorf("persisted topic = %q", stored.Topic)
	}
}

func TestFlowSession_UnknownSession(t *testing.T) {
	srv, _ := newFlowTestServer(t)

	resp := flowPost(t, srv, "/v1/flow/nope/input", map[string]string{"text": "x"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestFlowSession_UnknownEditField(t *testing.T) {
	srv, _ := newFlowTestServer(t)

	resp := flowPost(t, srv, "/v1/flow", nil)
	var created struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	resp = flowPost(t, srv, "/v1/flow/"+created.ID+"/edit", map[string]string{"field": "color", "value": "red"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestSessionManager_SweepsIdleSessions(t *testing.T) {
	sm := NewSessionManager(instantInterpreter{}, storeCreator{}, flow.Options{DebounceWindow: time.Millisecond})
	defer sm.Close()
	sm.ttl = 10 * time.Millisecond

	id, err := sm.Create()
	if err != nil {
		t.Fatal(err)
	}

	time.Sleep(30 * time.Millisecond)
	// Creating another session sweeps the expired one.
	if _, err := sm.Create(); err != nil {
		t.Fatal(err)
	}

	if _, ok := sm.get(id); ok {
		t.Error("idle session survived the sweep")
	}
}

func TestSessionManager_MaxSessions(t *testing.T) {
	sm := NewSessionManager(instantInterpreter{}, storeCreator{}, flow.Options{DebounceWindow: time.Millisecond})
	defer sm.Close()
	sm.max = 2

	for i := 0; i < 2; i++ {
		if _, err := sm.Create(); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := sm.Create(); err == nil {
		t.Error("session created past the limit")
	}
}
