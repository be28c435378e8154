// Package client talks to the rollcall HTTP API on behalf of a logged-in
// teacher.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
)

var (
	// ErrUnauthenticated means there is no session or the server rejected it.
	// The caller should send the user back to login.
	ErrUnauthenticated = errors.New("not authenticated")
	// ErrNotFound means the class or student does not exist for this teacher.
	ErrNotFound = errors.New("not found")
	// ErrCycleComplete means every student of the class was assessed in the
	// current cycle.
	ErrCycleComplete = errors.New("cycle complete")
	// ErrEmptyRoster means the class has no students.
	ErrEmptyRoster = errors.New("class has no students")
	// ErrNotConfirmed is returned by destructive calls made without Confirmed.
	ErrNotConfirmed = errors.New("destructive operation not confirmed")
)

// ValidationError reports a required field left empty. No request is sent.
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s is required", e.Field)
}

// RemoteError is any other non-2xx response.
type RemoteError struct {
	Status int
	Code   string
	Detail string
}

func (e *RemoteError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("server returned %d", e.Status)
	}
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Detail)
}

// Confirm guards destructive operations.
type Confirm bool

// Confirmed is passed once the user agreed to a destructive operation.
const Confirmed Confirm = true

// Session is the authenticated state of a teacher. It exists from a
// successful Login or Register until Logout or a rejected request.
type Session struct {
	Token     string
	TeacherID string
	Name      string
}

// Client calls the API. It is safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client

	mu      sync.RWMutex
	session *Session
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithSession starts the client with an existing session, for example a
// token saved by an earlier login.
func WithSession(s *Session) Option {
	return func(c *Client) { c.session = s }
}

// New creates a client for the server at baseURL, e.g. "http://localhost:8080".
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/") + "/api",
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Session returns the current session, or nil when logged out.
func (c *Client) Session() *Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session
}

func (c *Client) setSession(s *Session) {
	c.mu.Lock()
	c.session = s
	c.mu.Unlock()
}

func (c *Client) token() (string, error) {
	s := c.Session()
	if s == nil || s.Token == "" {
		return "", ErrUnauthenticated
	}
	return s.Token, nil
}

type errorBody struct {
	Detail string `json:"detail"`
	Code   string `json:"code"`
}

// request describes one API call.
type request struct {
	method      string
	path        string
	body        io.Reader
	contentType string
	public      bool
}

// send performs r and returns the response for a 2xx status. Other
// statuses are converted to the package errors.
func (c *Client) send(ctx context.Context, r request) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, r.method, c.baseURL+r.path, r.body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}
	req.Header.Set("Accept", "application/json")
	if !r.public {
		tok, err := c.token()
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", r.method, r.path, err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()
	return nil, c.errorFrom(r, resp)
}

func (c *Client) errorFrom(r request, resp *http.Response) error {
	var body errorBody
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(data, &body); err != nil {
		body.Detail = strings.TrimSpace(string(data))
	}

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		if !r.public {
			c.setSession(nil)
		}
		return ErrUnauthenticated
	case http.StatusNotFound:
		switch body.Code {
		case "cycle_complete":
			return ErrCycleComplete
		case "empty_roster":
			return ErrEmptyRoster
		}
		return fmt.Errorf("%w: %s", ErrNotFound, body.Detail)
	}
	slog.Warn("request failed", "method", r.method, "path", r.path, "status", resp.StatusCode, "code", body.Code, "detail", body.Detail)
	return &RemoteError{Status: resp.StatusCode, Code: body.Code, Detail: body.Detail}
}

func jsonRequest(method, path string, in any) (request, error) {
	r := request{method: method, path: path}
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return request{}, fmt.Errorf("encode request: %w", err)
		}
		r.body = bytes.NewReader(data)
		r.contentType = "application/json"
	}
	return r, nil
}

// call sends in as JSON (when non-nil) and decodes the response into out
// (when non-nil).
func (c *Client) call(ctx context.Context, method, path string, in, out any) error {
	r, err := jsonRequest(method, path, in)
	if err != nil {
		return err
	}
	return c.do(ctx, r, out)
}

func (c *Client) do(ctx context.Context, r request, out any) error {
	resp, err := c.send(ctx, r)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", r.path, err)
	}
	return nil
}
