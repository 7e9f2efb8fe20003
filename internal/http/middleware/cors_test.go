package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCORS(t *testing.T) {
	tests := []struct {
		name       string
		allowed    []string
		origin     string
		method     string
		preflight  bool
		wantOrigin string
		wantCalled bool
		wantStatus int
	}{
		{
			name:       "listed origin",
			allowed:    []string{"https://console.example.com"},
			origin:     "https://console.example.com",
			method:     http.MethodGet,
			wantOrigin: "https://console.example.com",
			wantCalled: true,
			wantStatus: http.StatusOK,
		},
		{
			name:       "listed origin with trailing slash and case",
			allowed:    []string{"https://Console.example.com/"},
			origin:     "https://console.example.com",
			method:     http.MethodGet,
			wantOrigin: "https://console.example.com",
			wantCalled: true,
			wantStatus: http.StatusOK,
		},
		{
			name:       "unknown origin",
			allowed:    []string{"https://console.example.com"},
			origin:     "https://unknown.example",
			method:     http.MethodGet,
			wantCalled: true,
			wantStatus: http.StatusOK,
		},
		{
			name:       "wildcard",
			allowed:    []string{"*"},
			origin:     "https://random.example",
			method:     http.MethodGet,
			wantOrigin: "https://random.example",
			wantCalled: true,
			wantStatus: http.StatusOK,
		},
		{
			name:       "preflight",
			allowed:    []string{"https://console.example.com"},
			origin:     "https://console.example.com",
			method:     http.MethodOptions,
			preflight:  true,
			wantOrigin: "https://console.example.com",
			wantStatus: http.StatusNoContent,
		},
		{
			name:       "preflight from unknown origin passes through",
			allowed:    []string{"https://console.example.com"},
			origin:     "https://unknown.example",
			method:     http.MethodOptions,
			preflight:  true,
			wantCalled: true,
			wantStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
				w.WriteHeader(http.StatusOK)
			})
			req := httptest.NewRequest(tt.method, "/api/suggestions", nil)
			req.Header.Set("Origin", tt.origin)
			if tt.preflight {
				req.Header.Set("Access-Control-Request-Method", http.MethodPost)
			}
			rec := httptest.NewRecorder()

			CORS(tt.allowed)(handler).ServeHTTP(rec, req)

			assert.Equal(t, tt.wantCalled, called)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantOrigin, rec.Header().Get("Access-Control-Allow-Origin"))
			if tt.wantOrigin != "" {
				assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), http.MethodPost)
				assert.Equal(t, "X-Request-ID", rec.Header().Get("Access-Control-Expose-Headers"))
			}
		})
	}
}
