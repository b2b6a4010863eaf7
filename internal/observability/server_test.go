package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestServer_Endpoints(t *testing.T) {
	ready := false
	api := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	h := NewServer(":0", func() bool { return ready }, api).Handler()

	tests := []struct {
		name     string
		ready    bool
		path     string
		expected int
	}{
		{"healthz", false, "/healthz", http.StatusOK},
		{"readyz not ready", false, "/readyz", http.StatusServiceUnavailable},
		{"readyz ready", true, "/readyz", http.StatusOK},
		{"api fallthrough", false, "/v1/status", http.StatusTeapot},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ready = tt.ready
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			if rec.Code != tt.expected {
				t.Errorf("expected %d, got %d", tt.expected, rec.Code)
			}
		})
	}
}
