// internal/network/middleware.go
package network

import (
	"fmt"
	"net/http"

	"golang.org/x/time/rate"
)

// PacingMiddleware spaces outgoing requests with a token bucket. Waiting
// honours the request context, so cancellation interrupts a paced request.
type PacingMiddleware struct {
	Transport http.RoundTripper
	limiter   *rate.Limiter
}

// NewPacingMiddleware wraps transport with a limiter allowing rps requests
// per second. A non-positive rps disables pacing.
func NewPacingMiddleware(transport http.RoundTripper, rps float64, burst int) *PacingMiddleware {
	if transport == nil {
		transport = http.DefaultTransport
	}
	if burst <= 0 {
		burst = 1
	}
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	return &PacingMiddleware{Transport: transport, limiter: rate.NewLimiter(limit, burst)}
}

// RoundTrip implements http.RoundTripper.
func (pm *PacingMiddleware) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := pm.limiter.Wait(req.Context()); err != nil {
		return nil, fmt.Errorf("request pacing interrupted: %w", err)
	}
	return pm.Transport.RoundTrip(req)
}

// HeaderMiddleware fills in browser-like default headers the portal expects.
type HeaderMiddleware struct {
	Transport      http.RoundTripper
	UserAgent      string
	AcceptLanguage string
}

// NewHeaderMiddleware wraps transport with default request headers.
func NewHeaderMiddleware(transport http.RoundTripper, userAgent, acceptLanguage string) *HeaderMiddleware {
	if transport == nil {
		transport = http.DefaultTransport
	}
	return &HeaderMiddleware{Transport: transport, UserAgent: userAgent, AcceptLanguage: acceptLanguage}
}

// RoundTrip implements http.RoundTripper. The request is cloned before any
// header is added, as the RoundTripper contract requires.
func (hm *HeaderMiddleware) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	setDefault(r.Header, "User-Agent", hm.UserAgent)
	setDefault(r.Header, "Accept-Language", hm.AcceptLanguage)
	setDefault(r.Header, "Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	setDefault(r.Header, "DNT", "1")
	return hm.Transport.RoundTrip(r)
}

func setDefault(h http.Header, key, value string) {
	if value != "" && h.Get(key) == "" {
		h.Set(key, value)
	}
}
