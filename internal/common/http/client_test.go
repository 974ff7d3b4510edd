package http

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient(t *testing.T) {
	tests := []struct {
		name      string
		header    string
		agent     string
		wantAgent string
	}{
		{name: "sets user agent", agent: "trial-matcher/1.0", wantAgent: "trial-matcher/1.0"},
		{name: "keeps caller user agent", header: "sdk/2", agent: "trial-matcher/1.0", wantAgent: "sdk/2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = r.Header.Get("User-Agent")
				w.WriteHeader(http.StatusNoContent)
			}))
			defer server.Close()

			req, err := http.NewRequest(http.MethodGet, server.URL, nil)
			require.NoError(t, err)
			if tt.header != "" {
				req.Header.Set("User-Agent", tt.header)
			}

			resp, err := NewClient(time.Second, tt.agent).Do(req)
			require.NoError(t, err)
			resp.Body.Close()

			assert.Equal(t, tt.wantAgent, got)
			assert.Equal(t, tt.header, req.Header.Get("User-Agent"))
		})
	}
}

func TestNewClient_DefaultTimeout(t *testing.T) {
	assert.Equal(t, DefaultTimeout, NewClient(0, "").Timeout)
}
