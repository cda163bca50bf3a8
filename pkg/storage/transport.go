package storage

import (
	"net/http"

	"golang.org/x/time/rate"
)

// UserAgentTransport wraps an http.RoundTripper and adds a User-Agent header.
type UserAgentTransport struct {
	http.RoundTripper
	UserAgent string
}

// RoundTrip executes a single HTTP transaction, adding the User-Agent header.
func (t *UserAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clonedReq := req.Clone(req.Context())
	clonedReq.Header.Set("User-Agent", t.UserAgent)
	return t.base().RoundTrip(clonedReq)
}

func (t *UserAgentTransport) base() http.RoundTripper {
	if t.RoundTripper == nil {
		return http.DefaultTransport
	}
	return t.RoundTripper
}

// RateLimitedTransport waits on a limiter before every request.
type RateLimitedTransport struct {
	http.RoundTripper
	Limiter *rate.Limiter
}

// RoundTrip blocks until the limiter admits the request or its context ends.
func (t *RateLimitedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.Limiter != nil {
		if err := t.Limiter.Wait(req.Context()); err != nil {
			return nil, err
		}
	}
	next := t.RoundTripper
	if next == nil {
		next = http.DefaultTransport
	}
	return next.RoundTrip(req)
}
