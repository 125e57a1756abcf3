package radar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const createTimeout = 15 * time.Second

// CreationError is a user-visible creation failure carrying the
// upstream message. Creation is never retried automatically; retry is
// a user-initiated re-confirmation.
type CreationError struct {
	Message string
	Status  int
}

func (e *CreationError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("creating radar: %s (HTTP %d)", e.Message, e.Status)
	}
	return fmt.Sprintf("creating radar: %s", e.Message)
}

// Creator issues the single creation call against the radar service.
type Creator struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewCreator creates a Creator targeting the radar service at baseURL,
// authenticating with the given bearer token.
func NewCreator(baseURL, token string) *Creator {
	return &Creator{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: createTimeout},
	}
}

// Create persists a finalized draft and returns the created radar.
func (c *Creator) Create(ctx context.Context, nr NewRadar) (Radar, error) {
	body, err := json.Marshal(nr)
	if err != nil {
		return Radar{}, fmt.Errorf("marshaling radar: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/radars", bytes.NewReader(body))
	if err != nil {
		return Radar{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Radar{}, &CreationError{Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return Radar{}, &CreationError{Message: upstreamMessage(resp.Body), Status: resp.StatusCode}
	}

	var r Radar
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return Radar{}, &CreationError{Message: fmt.Sprintf("decoding response: %v", err)}
	}
	if r.ID == "" {
		return Radar{}, &CreationError{Message: "service returned no radar id"}
	}
	return r, nil
}

// upstreamMessage extracts the error message from the service's error
// envelope, falling back to the raw body.
func upstreamMessage(body io.Reader) string {
	raw, _ := io.ReadAll(io.LimitReader(body, 4096))
	var env struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(raw, &env) == nil && env.Error.Message != "" {
		return env.Error.Message
	}
	msg := strings.TrimSpace(string(raw))
	if msg == "" {
		msg = "upstream error"
	}
	return msg
}
