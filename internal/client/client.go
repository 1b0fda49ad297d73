package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-attempt/internal/attempt"
	"github.com/stemsi/exstem-attempt/internal/model"
	"github.com/stemsi/exstem-attempt/internal/response"
)

// Ensure Client implements the attempt backend at compile time.
var _ attempt.Backend = (*Client)(nil)

const (
	defaultServerURL = "http://127.0.0.1:8080"
	defaultUserAgent = "exstem-attempt/1.0"
	requestTimeout   = 30 * time.Second
)

// Client talks to the exam attempt API on behalf of one taker.
type Client struct {
	baseURL   *url.URL
	http      *http.Client
	token     string
	userAgent string
}

// APIError is a non-2xx answer from the API. It unwraps to the matching
// model error, so callers can test it with errors.Is.
type APIError struct {
	Status  int
	Code    response.ErrCode
	Message string
	Fields  map[string]string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("api returned status %d", e.Status)
	}
	return fmt.Sprintf("api returned %d %s: %s", e.Status, e.Code, e.Message)
}

func (e *APIError) Unwrap() error {
	return response.CodeError(e.Code)
}

// envelope mirrors response.Response with the data left undecoded.
type envelope struct {
	Data  json.RawMessage     `json:"data"`
	Error *response.ErrorBody `json:"error"`
}

// New builds a Client for serverURL authenticated with a taker token.
func New(serverURL, token string) (*Client, error) {
	base, err := parseBaseURL(serverURL)
	if err != nil {
		return nil, err
	}
	return &Client{
		baseURL:   base,
		http:      &http.Client{Timeout: requestTimeout},
		token:     strings.TrimSpace(token),
		userAgent: defaultUserAgent,
	}, nil
}

// StartSession creates the taker's session for a test or returns the
// running one.
func (c *Client) StartSession(ctx context.Context, testID uuid.UUID) (*model.SessionDetails, error) {
	var out model.SessionDetails
	err := c.do(ctx, http.MethodPost, "/api/v1/exam/start", model.StartSessionRequest{TestID: testID}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Instructions returns a test's instructions and the state of the taker's
// session for it.
func (c *Client) Instructions(ctx context.Context, testID uuid.UUID) (*model.TestInstructions, error) {
	var out model.TestInstructions
	if err := c.do(ctx, http.MethodGet, "/api/v1/exam/tests/"+testID.String()+"/instructions", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Ongoing returns the running session of a test.
func (c *Client) Ongoing(ctx context.Context, testID uuid.UUID) (*model.SessionDetails, error) {
	var out model.SessionDetails
	if err := c.do(ctx, http.MethodGet, "/api/v1/exam/tests/"+testID.String()+"/ongoing", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Details returns a session by id.
func (c *Client) Details(ctx context.Context, sessionID uuid.UUID) (*model.SessionDetails, error) {
	var out model.SessionDetails
	if err := c.do(ctx, http.MethodGet, sessionPath(sessionID, "details"), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// LoadSession resolves ref to a session: by id when given, otherwise the
// ongoing session of the test, starting one when there is none.
func (c *Client) LoadSession(ctx context.Context, ref attempt.SessionRef) (*model.SessionDetails, error) {
	if ref.SessionID != uuid.Nil {
		return c.Details(ctx, ref.SessionID)
	}
	if ref.TestID == uuid.Nil {
		return nil, errors.New("session or test id required")
	}
	details, err := c.Ongoing(ctx, ref.TestID)
	if errors.Is(err, model.ErrNotFound) {
		return c.StartSession(ctx, ref.TestID)
	}
	return details, err
}

// SaveAnswer persists one edit.
func (c *Client) SaveAnswer(ctx context.Context, sessionID uuid.UUID, save model.AnswerSave) error {
	return c.do(ctx, http.MethodPut, sessionPath(sessionID, "answers"), save, nil)
}

// Submit completes a session.
func (c *Client) Submit(ctx context.Context, sessionID uuid.UUID) error {
	return c.do(ctx, http.MethodPost, sessionPath(sessionID, "submit"), nil, nil)
}

// Result fetches the graded result. It fails with model.ErrResultPending
// until grading has finished.
func (c *Client) Result(ctx context.Context, sessionID uuid.UUID) (*model.Result, error) {
	var out model.Result
	if err := c.do(ctx, http.MethodGet, sessionPath(sessionID, "result"), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// WaitResult polls Result until it is graded or ctx ends.
func (c *Client) WaitResult(ctx context.Context, sessionID uuid.UUID, every time.Duration) (*model.Result, error) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		res, err := c.Result(ctx, sessionID)
		if !errors.Is(err, model.ErrResultPending) {
			return res, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func sessionPath(sessionID uuid.UUID, action string) string {
	return "/api/v1/exam/sessions/" + sessionID.String() + "/" + action
}

func (c *Client) do(ctx context.Context, method, path string, body, dest any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	reqURL := c.baseURL.ResolveReference(&url.URL{Path: path})
	req, err := http.NewRequestWithContext(ctx, method, reqURL.String(), reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var env envelope
	decodeErr := json.NewDecoder(resp.Body).Decode(&env)

	if resp.StatusCode >= 400 {
		apiErr := &APIError{Status: resp.StatusCode}
		if decodeErr == nil && env.Error != nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
			apiErr.Fields = env.Error.Fields
		}
		return apiErr
	}
	if decodeErr != nil {
		return fmt.Errorf("decode response: %w", decodeErr)
	}
	if dest == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, dest); err != nil {
		return fmt.Errorf("decode data: %w", err)
	}
	return nil
}

func parseBaseURL(serverURL string) (*url.URL, error) {
	trimmed := strings.TrimSpace(serverURL)
	if trimmed == "" {
		trimmed = defaultServerURL
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "http://" + trimmed
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse server_url %q: %w", serverURL, err)
	}
	u.Path = ""
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}
