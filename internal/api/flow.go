package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/radarhq/radar/internal/flow"
)

const (
	defaultSessionTTL  = 15 * time.Minute
	defaultMaxSessions = 100
)

// SessionManager owns one flow machine per dashboard session.
type SessionManager struct {
	interpreter flow.Interpreter
	creator     flow.Creator
	opts        flow.Options
	ttl         time.Duration
	max         int

	mu       sync.Mutex
	sessions map[string]*flowSession
}

type flowSession struct {
	id       string
	machine  *flow.Machine
	cancel   context.CancelFunc
	lastSeen time.Time
}

// NewSessionManager creates a SessionManager spawning machines from
// the given collaborators.
func NewSessionManager(interpreter flow.Interpreter, creator flow.Creator, opts flow.Options) *SessionManager {
	return &SessionManager{
		interpreter: interpreter,
		creator:     creator,
		opts:        opts,
		ttl:         defaultSessionTTL,
		max:         defaultMaxSessions,
		sessions:    make(map[string]*flowSession),
	}
}

// Create starts a new flow session and returns its id.
func (sm *SessionManager) Create() (string, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	sm.sweepLocked(time.Now())
	if len(sm.sessions) >= sm.max {
		return "", fmt.Errorf("too many active sessions")
	}

	id := uuid.New().String()
	m := flow.New(sm.interpreter, sm.creator, sm.opts)
	ctx, cancel := context.WithCancel(context.Background())
	go m.Run(ctx)

	sm.sessions[id] = &flowSession{
		id:       id,
		machine:  m,
		cancel:   cancel,
		lastSeen: time.Now(),
	}
	return id, nil
}

// get returns a live session and refreshes its idle timer.
func (sm *SessionManager) get(id string) (*flowSession, bool) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	s, ok := sm.sessions[id]
	if ok {
		s.lastSeen = time.Now()
	}
	return s, ok
}

// Close stops every session. Used on server shutdown.
func (sm *SessionManager) Close() {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	for id, s := range sm.sessions {
		s.cancel()
		delete(sm.sessions, id)
	}
}

// sweepLocked drops sessions idle past the TTL. Callers hold sm.mu.
func (sm *SessionManager) sweepLocked(now time.Time) {
	for id, s := range sm.sessions {
		if now.Sub(s.lastSeen) > sm.ttl {
			s.cancel()
			delete(sm.sessions, id)
		}
	}
}

func handleCreateFlow(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := deps.Sessions.Create()
		if err != nil {
			httpError(w, http.StatusTooManyRequests, "rate_limit_error", "%v", err)
			return
		}
		respondJSON(w, http.StatusCreated, map[string]string{"id": id})
	}
}

// withSession resolves the session named in the URL or replies 404.
func withSession(deps Deps, w http.ResponseWriter, r *http.Request) (*flowSession, bool) {
	id := chi.URLParam(r, "id")
	s, ok := deps.Sessions.get(id)
	if !ok {
		httpError(w, http.StatusNotFound, "not_found_error", "no flow session %s", id)
		return nil, false
	}
	return s, true
}

func handleFlowInput(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := withSession(deps, w, r)
		if !ok {
			return
		}

		var req struct {
			Text string `json:"text"`
		}
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodySize)).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		s.machine.Input(req.Text)
		respondJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
	}
}

func handleFlowEdit(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := withSession(deps, w, r)
		if !ok {
			return
		}

		var req struct {
			Field string `json:"field"`
			Value string `json:"value"`
		}
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodySize)).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		switch flow.Field(req.Field) {
		case flow.FieldTopic:
			s.machine.SetTopic(req.Value)
		case flow.FieldDescription:
			s.machine.SetDescription(req.Value)
		case flow.FieldCadence:
			s.machine.SetCadence(req.Value)
		default:
			httpError(w, http.StatusBadRequest, "invalid_request_error", "unknown field %q", req.Field)
			return
		}
		respondJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
	}
}

func handleFlowConfirm(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := withSession(deps, w, r)
		if !ok {
			return
		}
		s.machine.Confirm()
		respondJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
	}
}

func handleFlowRestart(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := withSession(deps, w, r)
		if !ok {
			return
		}
		s.machine.Restart()
		respondJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
	}
}

// handleFlowEvents streams flow snapshots as SSE until the client
// disconnects.
func handleFlowEvents(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := withSession(deps, w, r)
		if !ok {
			return
		}

		flusher, okFlush := w.(http.Flusher)
		if !okFlush {
			httpError(w, http.StatusInternalServerError, "api_error", "streaming not supported")
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")

		writeSnapshot := func(snap flow.Snapshot) bool {
			payload, err := json.Marshal(snap)
			if err != nil {
				return false
			}
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
			return true
		}

		if !writeSnapshot(s.machine.Snapshot()) {
			return
		}

		for {
			select {
			case <-r.Context().Done():
				return
			case <-s.machine.Done():
				return
			case snap := <-s.machine.Updates():
				if !writeSnapshot(snap) {
					return
				}
			}
		}
	}
}
