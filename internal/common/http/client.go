// internal/common/http/client.go
package http

import (
	"net/http"
	"time"
)

const DefaultTimeout = 60 * time.Second

// NewClient returns the outbound client handed to the hosted model SDKs.
// Every request carries userAgent unless the caller already set one.
func NewClient(timeout time.Duration, userAgent string) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	base := http.DefaultTransport.(*http.Transport).Clone()
	base.MaxIdleConnsPerHost = 16

	return &http.Client{
		Timeout:   timeout,
		Transport: &userAgentTransport{base: base, agent: userAgent},
	}
}

type userAgentTransport struct {
	base  http.RoundTripper
	agent string
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.agent == "" || req.Header.Get("User-Agent") != "" {
		return t.base.RoundTrip(req)
	}
	// RoundTrippers must not modify the caller's request
	clone := req.Clone(req.Context())
	clone.Header.Set("User-Agent", t.agent)
	return t.base.RoundTrip(clone)
}
