// internal/portal/session.go
package portal

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/xkilldash9x/quickeval/internal/network"
	"github.com/xkilldash9x/quickeval/internal/observability"
	"go.uber.org/zap"
)

// Header values the portal's own scripts send on XHR calls.
const (
	AcceptJSON     = "application/json, text/javascript, */*; q=0.01"
	ContentTypeURL = "application/x-www-form-urlencoded; charset=UTF-8"
)

// SessionContext is the authenticated HTTP context shared by every step of
// a run. Authentication state lives entirely in the client's cookie jar;
// the context additionally tracks the most recently issued anti-forgery
// token.
type SessionContext struct {
	client    *http.Client
	endpoints Endpoints
	logger    *zap.Logger

	mu            sync.RWMutex
	token         string
	authenticated bool
}

// NewSessionContext wraps an http.Client (which must carry a cookie jar).
func NewSessionContext(client *http.Client, endpoints Endpoints, logger *zap.Logger) *SessionContext {
	if logger == nil {
		logger = observability.GetLogger()
	}
	if client.Jar == nil {
		client.Jar = network.NewCookieJar()
	}
	return &SessionContext{
		client:    client,
		endpoints: endpoints,
		logger:    logger.Named("session"),
	}
}

// Endpoints returns the URL set of the portal this session talks to.
func (s *SessionContext) Endpoints() Endpoints { return s.endpoints }

// Token returns the most recently issued anti-forgery token.
func (s *SessionContext) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// SetToken records a newly issued anti-forgery token.
func (s *SessionContext) SetToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
}

// Authenticated reports whether Login has succeeded on this session.
func (s *SessionContext) Authenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.authenticated
}

func (s *SessionContext) markAuthenticated() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.authenticated = true
}

// Response is a fully read portal response.
type Response struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// Do sends req and reads the whole body. Any failure to obtain a response
// is reported as ErrCodeTransport; HTTP status codes are left to the caller.
func (s *SessionContext) Do(req *http.Request, op string) (*Response, error) {
	s.logger.Debug("Sending request.", zap.String("op", op), zap.String("method", req.Method), zap.String("url", req.URL.Path))

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, NewError(ErrCodeTransport, op, "request failed", err)
	}
	body, err := network.ReadBody(resp)
	if err != nil {
		return nil, NewError(ErrCodeTransport, op, "reading response", err)
	}
	return &Response{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}

// Get fetches rawURL and requires a 200 answer.
func (s *SessionContext) Get(ctx context.Context, rawURL, op string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build %s request: %w", op, err)
	}
	resp, err := s.Do(req, op)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, NewError(ErrCodeTransport, op, fmt.Sprintf("unexpected status %d", resp.StatusCode), nil).WithBody(resp.Body)
	}
	return resp, nil
}

// PostForm submits form-encoded values as the portal's XHR layer would.
func (s *SessionContext) PostForm(ctx context.Context, rawURL, op string, body io.Reader) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build %s request: %w", op, err)
	}
	req.Header.Set("Content-Type", ContentTypeURL)
	req.Header.Set("Origin", s.endpoints.Origin())
	return s.Do(req, op)
}

// Close releases idle connections held by the session's transport.
func (s *SessionContext) Close() {
	s.client.CloseIdleConnections()
}

// HTMLBody returns resp.Body transcoded to UTF-8 when it is an HTML page.
func (r *Response) HTMLBody() ([]byte, error) {
	if r.ContentType != "" && !strings.Contains(strings.ToLower(r.ContentType), "html") {
		return r.Body, nil
	}
	return network.ToUTF8(r.Body, r.ContentType)
}
