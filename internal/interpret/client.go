package interpret

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	defaultBaseURL   = "https://interpret.radarhq.com"
	streamingTimeout = 120 * time.Second

	// doneMarker terminates a normally-completed stream.
	doneMarker = "[DONE]"
)

// ErrCancelled is reported on Final when the call was cancelled before
// the stream completed. It is not a user-visible failure.
var ErrCancelled = errors.New("interpretation cancelled")

// InterpretError is a user-visible interpretation failure: the stream
// errored, returned malformed data, or ended without a complete result.
type InterpretError struct {
	Message string
	Err     error
}

func (e *InterpretError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("interpretation failed: %s: %v", e.Message, e.Err)
	}
	return fmt.Sprintf("interpretation failed: %s", e.Message)
}

func (e *InterpretError) Unwrap() error { return e.Err }

// Result is the terminal outcome of one interpretation call: the
// complete Interpretation, or the error that ended it.
type Result struct {
	Interpretation Interpretation
	Err            error
}

// Client issues streaming interpretation requests against the hosted
// interpretation service.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a Client with the given API key.
func NewClient(apiKey string) *Client {
	return &Client{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		// No client timeout: the per-call context bounds the stream.
		httpClient: &http.Client{},
	}
}

// NewClientWithBaseURL creates a client pointing at a custom base URL
// (for testing).
func NewClientWithBaseURL(apiKey, baseURL string) *Client {
	c := NewClient(apiKey)
	c.baseURL = strings.TrimRight(baseURL, "/")
	return c
}

// interpretRequest is the wire request to the interpretation service.
type interpretRequest struct {
	Text string `json:"text"`
}

// errorEnvelope mirrors the service's error payload shape.
type errorEnvelope struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Call is one in-flight interpretation request. Partial delivers
// progressively-refined snapshots; Final delivers exactly one Result.
// Cancel is idempotent and stops all further emissions: after Cancel
// returns, no new value appears on Partial, and Final carries
// ErrCancelled.
type Call struct {
	// RequestID discriminates this call from superseded ones.
	RequestID string

	// Text is the input snapshot this call was issued for.
	Text string

	partial chan Interpretation
	final   chan Result

	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
}

// Partial returns the stream of incremental snapshots. The channel is
// closed when the call ends for any reason.
func (c *Call) Partial() <-chan Interpretation { return c.partial }

// Final returns a single-element channel carrying the call's outcome.
func (c *Call) Final() <-chan Result { return c.final }

// Cancel stops the call. Idempotent; safe to call after completion.
func (c *Call) Cancel() {
	c.finish(Result{Err: ErrCancelled})
}

// finish settles the call exactly once: whichever of Cancel or stream
// completion gets here first decides the outcome.
func (c *Call) finish(r Result) {
	c.once.Do(func() {
		c.cancel()
		c.final <- r
		close(c.final)
	})
}

// Interpret issues one streaming request for text. It does not cancel
// any prior call; the caller owns single-flight sequencing and must
// cancel an outgoing call before issuing a new one.
func (c *Client) Interpret(ctx context.Context, text string) (*Call, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("interpret: empty text")
	}

	body, err := json.Marshal(interpretRequest{Text: text})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, streamingTimeout)

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.baseURL+"/v1/interpretations", bytes.NewReader(body))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("executing request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		cancel()
		return nil, &InterpretError{Message: fmt.Sprintf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))}
	}

	call := &Call{
		RequestID: uuid.New().String(),
		Text:      text,
		partial:   make(chan Interpretation),
		final:     make(chan Result, 1),
		ctx:       callCtx,
		cancel:    cancel,
	}

	go call.consume(resp.Body)

	return call, nil
}

// consume reads SSE events off the response body until the stream
// terminates, merging each snapshot and emitting it on the partial
// channel. Runs in its own goroutine; the call context gates every
// emission so nothing is observed after Cancel.
func (c *Call) consume(body io.ReadCloser) {
	defer body.Close()
	defer close(c.partial)

	var merged Interpretation
	sawDone := false

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	for scanner.Scan() {
		data, ok := strings.CutPrefix(strings.TrimSpace(scanner.Text()), "data:")
		if !ok {
			continue
		}
		data = strings.TrimSpace(data)
		if data == "" {
			continue
		}
		if data == doneMarker {
			sawDone = true
			break
		}

		if strings.HasPrefix(data, `{"error"`) {
			var env errorEnvelope
			if json.Unmarshal([]byte(data), &env) == nil && env.Error.Message != "" {
				c.finish(Result{Err: &InterpretError{Message: env.Error.Message}})
				return
			}
		}

		var snap Interpretation
		if err := json.Unmarshal([]byte(data), &snap); err != nil {
			c.finish(Result{Err: &InterpretError{Message: "malformed stream payload", Err: err}})
			return
		}

		merged = Merge(merged, snap)

		select {
		case c.partial <- merged:
		case <-c.ctx.Done():
			c.finish(Result{Err: ErrCancelled})
			return
		}
	}

	if err := scanner.Err(); err != nil {
		if c.ctx.Err() != nil {
			c.finish(Result{Err: ErrCancelled})
			return
		}
		c.finish(Result{Err: &InterpretError{Message: "reading stream", Err: err}})
		return
	}

	if !sawDone {
		c.finish(Result{Err: &InterpretError{Message: "stream ended before completion"}})
		return
	}

	if !merged.IsComplete() {
		c.finish(Result{Err: &InterpretError{Message: "stream completed with an incomplete interpretation"}})
		return
	}

	c.finish(Result{Interpretation: merged})
}
