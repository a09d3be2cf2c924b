package http

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/custodia-labs/xpost/internal/core/domain"
	"github.com/custodia-labs/xpost/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestExtractBearerToken(t *testing.T) {
	tests := []struct {
		name     string
		header   string
		expected string
	}{
		{
			name:     "valid bearer token",
			header:   "Bearer abc123",
			expected: "abc123",
		},
		{
			name:     "bearer with extra spaces",
			header:   "Bearer   token-with-spaces   ",
			expected: "token-with-spaces",
		},
		{
			name:     "lowercase bearer",
			header:   "bearer token123",
			expected: "token123",
		},
		{
			name:     "empty header",
			header:   "",
			expected: "",
		},
		{
			name:     "no bearer prefix",
			header:   "token123",
			expected: "",
		},
		{
			name:     "basic auth",
			header:   "Basic dXNlcjpwYXNz",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}

			result := extractBearerToken(req)
			if result != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, result)
			}
		})
	}
}

// stubAuthAdapter returns fixed claims or a fixed error.
type stubAuthAdapter struct {
	claims *domain.OperatorClaims
	err    error
}

func (s *stubAuthAdapter) GenerateToken(subject string, ttl time.Duration) (string, error) {
	return "stub", nil
}

func (s *stubAuthAdapter) ParseToken(token string) (*domain.OperatorClaims, error) {
	return s.claims, s.err
}

func TestOperatorMiddleware(t *testing.T) {
	tests := []struct {
		name       string
		adapter    *stubAuthAdapter
		header     string
		wantStatus int
		wantCalled bool
	}{
		{
			name:       "missing token",
			adapter:    &stubAuthAdapter{},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "expired token",
			adapter:    &stubAuthAdapter{err: domain.ErrTokenExpired},
			header:     "Bearer old",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "invalid token",
			adapter:    &stubAuthAdapter{err: domain.ErrTokenInvalid},
			header:     "Bearer junk",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "wrong subject",
			adapter:    &stubAuthAdapter{claims: &domain.OperatorClaims{Subject: "someone"}},
			header:     "Bearer other",
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "operator",
			adapter:    &stubAuthAdapter{claims: &domain.OperatorClaims{Subject: domain.OperatorSubject}},
			header:     "Bearer good",
			wantStatus: http.StatusOK,
			wantCalled: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
				if claims := GetOperatorClaims(r.Context()); claims == nil || claims.Subject != domain.OperatorSubject {
					t.Error("expected operator claims in context")
				}
				w.WriteHeader(http.StatusOK)
			})

			req := httptest.NewRequest("GET", "/api/v1/oauth/status", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			NewOperatorMiddleware(tt.adapter).Authenticate(next).ServeHTTP(rr, req)

			if rr.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, rr.Code)
			}
			if called != tt.wantCalled {
				t.Errorf("expected handler called=%v, got %v", tt.wantCalled, called)
			}
		})
	}
}

func TestOperatorMiddleware_Disabled(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	rr := httptest.NewRecorder()
	NewOperatorMiddleware(nil).Authenticate(next).ServeHTTP(rr, httptest.NewRequest("GET", "/", nil))

	if rr.Code != http.StatusTeapot {
		t.Errorf("expected passthrough, got %d", rr.Code)
	}
}

func TestGetOperatorClaims_EmptyContext(t *testing.T) {
	if GetOperatorClaims(context.Background()) != nil {
		t.Error("expected nil for context without claims")
	}
}

func TestLoggingMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	var seenID string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenID = GetRequestID(r.Context())
		w.WriteHeader(http.StatusCreated)
	})

	rr := httptest.NewRecorder()
	NewLoggingMiddleware(logger).Handler(next).ServeHTTP(rr, httptest.NewRequest("POST", "/api/v1/posts", nil))

	if rr.Code != http.StatusCreated {
		t.Errorf("expected status 201, got %d", rr.Code)
	}
	id := rr.Header().Get(RequestIDHeader)
	if len(id) != 36 {
		t.Errorf("expected uuid request id, got %q", id)
	}
	if seenID != id {
		t.Errorf("handler saw request id %q, header has %q", seenID, id)
	}
	line := buf.String()
	for _, want := range []string{"method=POST", "path=/api/v1/posts", "status=201", "request_id=" + id} {
		if !strings.Contains(line, want) {
			t.Errorf("expected %q in log line %q", want, line)
		}
	}
}

func TestLoggingMiddleware_KeepsInboundRequestID(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set(RequestIDHeader, "upstream-id")
	rr := httptest.NewRecorder()
	NewLoggingMiddleware(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))).Handler(next).ServeHTTP(rr, req)

	if got := rr.Header().Get(RequestIDHeader); got != "upstream-id" {
		t.Errorf("expected inbound id to be kept, got %q", got)
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	handler := NewRecoveryMiddleware(logger).Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(errors.New("boom"))
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest("GET", "/", nil))

	if rr.Code != http.StatusInternalServerError {
		t.Errorf("expected status 500, got %d", rr.Code)
	}
	if !strings.Contains(buf.String(), "panic recovered") {
		t.Error("expected panic to be logged")
	}
}

func TestMetricsMiddleware(t *testing.T) {
	m := metrics.New()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /items/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})
	handler := NewMetricsMiddleware(m).Handler(mux)

	for _, path := range []string{"/items/1", "/items/2", "/missing"} {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", path, nil))
	}

	expected := `
# HELP xpost_http_requests_total Total number of HTTP requests processed
# TYPE xpost_http_requests_total counter
xpost_http_requests_total{method="GET",route="GET /items/{id}",status="202"} 2
xpost_http_requests_total{method="GET",route="unmatched",status="404"} 1
`
	if err := testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "xpost_http_requests_total"); err != nil {
		t.Error(err)
	}
}

func TestResponseWriter(t *testing.T) {
	rr := httptest.NewRecorder()
	rw := wrapResponseWriter(rr)

	if rw.statusCode != http.StatusOK {
		t.Errorf("expected default status 200, got %d", rw.statusCode)
	}
	rw.WriteHeader(http.StatusNotFound)
	if rw.statusCode != http.StatusNotFound || rr.Code != http.StatusNotFound {
		t.Error("expected status to be recorded and forwarded")
	}
	if wrapResponseWriter(rw) != rw {
		t.Error("expected an already wrapped writer to be reused")
	}
	if rw.Unwrap() != rr {
		t.Error("expected Unwrap to return the underlying writer")
	}
}
