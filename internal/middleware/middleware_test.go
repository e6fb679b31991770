package middleware

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"raine/internal/auth"
	"raine/internal/errors"
	"raine/internal/metrics"
	"raine/internal/models"
	"raine/internal/tracing"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestObservabilityMiddleware_RequestID(t *testing.T) {
	router := mux.NewRouter()
	router.Use(ObservabilityMiddleware(quietLogger()))

	var seenID string
	router.HandleFunc("/v1/rooms/{roomId}/join", func(w http.ResponseWriter, r *http.Request) {
		seenID = tracing.GetRequestID(r.Context())
		assert.Equal(t, seenID, errors.FromContext(r.Context())["request_id"])
		w.WriteHeader(http.StatusCreated)
	}).Methods(http.MethodPost)

	t.Run("generated", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/rooms/r1/join", nil))
		assert.Equal(t, http.StatusCreated, w.Code)
		assert.NotEmpty(t, seenID)
		assert.Equal(t, seenID, w.Header().Get(RequestIDHeader))
	})

	t.Run("propagated", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/v1/rooms/r2/join", nil)
		req.Header.Set(RequestIDHeader, "req_from_client")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, "req_from_client", seenID)
		assert.Equal(t, "req_from_client", w.Header().Get(RequestIDHeader))
	})
}

func TestObservabilityMiddleware_RecordsRouteTemplate(t *testing.T) {
	router := mux.NewRouter()
	router.Use(ObservabilityMiddleware(quietLogger()))
	router.HandleFunc("/v1/rooms/{roomId}/leave", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	labels := map[string]string{"method": http.MethodPost, "route": "/v1/rooms/{roomId}/leave"}
	before := metrics.GetRegistry().CounterValue(metrics.HTTPRequests, labels)

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/v1/rooms/abc/leave", nil))
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/v1/rooms/def/leave", nil))

	assert.Equal(t, before+2, metrics.GetRegistry().CounterValue(metrics.HTTPRequests, labels))
}

func TestMaskHeaders(t *testing.T) {
	h := http.Header{}
	h.Set("Authorization", "Bearer secret")
	h.Set("X-Event-Secret", "shh")
	h.Set("Content-Type", "application/json")

	masked := maskHeaders(h)
	assert.Equal(t, "***", masked["Authorization"])
	assert.Equal(t, "***", masked["X-Event-Secret"])
	assert.Equal(t, "application/json", masked["Content-Type"])
}

func TestResponseWrapper_FirstStatusWins(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := &responseWrapper{ResponseWriter: rec, statusCode: http.StatusOK}

	n, err := rw.Write([]byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	rw.WriteHeader(http.StatusInternalServerError)

	assert.Equal(t, http.StatusOK, rw.statusCode)
	assert.Equal(t, int64(5), rw.responseSize)
}

type verifierFunc func(ctx context.Context, token string) (*auth.Identity, error)

func (f verifierFunc) Verify(ctx context.Context, token string) (*auth.Identity, error) {
	return f(ctx, token)
}

func TestRequireAuth(t *testing.T) {
	verifier := verifierFunc(func(_ context.Context, token string) (*auth.Identity, error) {
		if token == "good" {
			return &auth.Identity{UserID: "user-1"}, nil
		}
		return nil, errors.NewUnauthenticatedError("bad token")
	})

	handler := RequireAuth(verifier, quietLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uid, err := auth.RequireUserID(r.Context())
		require.NoError(t, err)
		_, _ = w.Write([]byte(uid))
	}))

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantBody   string
	}{
		{name: "valid token", header: "Bearer good", wantStatus: http.StatusOK, wantBody: "user-1"},
		{name: "lowercase scheme", header: "bearer good", wantStatus: http.StatusOK, wantBody: "user-1"},
		{name: "missing header", header: "", wantStatus: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic good", wantStatus: http.StatusUnauthorized},
		{name: "rejected token", header: "Bearer bad", wantStatus: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/v1/rooms", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantBody != "" {
				assert.Equal(t, tt.wantBody, w.Body.String())
				return
			}
			var body errors.HTTPErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, errors.ErrCodeUnauthenticated, body.Error.Code)
		})
	}
}

func TestRequireAuth_WithJWTVerifier(t *testing.T) {
	verifier := auth.NewJWTVerifier(models.AuthConfig{JWTSecret: "middleware-secret-with-at-least-32-chars"})
	token, err := verifier.Sign("user-42", "", time.Minute)
	require.NoError(t, err)

	handler := RequireAuth(verifier, quietLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := auth.FromContext(r.Context())
		require.True(t, ok)
		assert.Equal(t, "user-42", id.UserID)
	}))

	req := httptest.NewRequest(http.MethodPost, "/v1/devices/token", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequireEventSecret(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })

	tests := []struct {
		name       string
		secret     string
		header     string
		wantStatus int
	}{
		{name: "matching secret", secret: "s3cret", header: "s3cret", wantStatus: http.StatusNoContent},
		{name: "wrong secret", secret: "s3cret", header: "nope", wantStatus: http.StatusUnauthorized},
		{name: "missing header", secret: "s3cret", wantStatus: http.StatusUnauthorized},
		{name: "unconfigured secret", secret: "", header: "", wantStatus: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/internal/events/user-created", nil)
			if tt.header != "" {
				req.Header.Set(EventSecretHeader, tt.header)
			}
			w := httptest.NewRecorder()
			RequireEventSecret(tt.secret, quietLogger())(ok).ServeHTTP(w, req)
			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

func TestIPRateLimiter_Burst(t *testing.T) {
	rl := NewIPRateLimiter(0.001, 5)

	allowed := 0
	for i := 0; i < 10; i++ {
		if rl.Allow("203.0.113.1") {
			allowed++
		}
	}
	assert.Equal(t, 5, allowed)
	assert.True(t, rl.Allow("203.0.113.2"), "other IPs keep their own bucket")
	assert.Equal(t, 2, rl.Size())
}

func TestIPRateLimiter_Concurrent(t *testing.T) {
	rl := NewIPRateLimiter(0.001, 10)

	var wg sync.WaitGroup
	var allowed atomic.Int32
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if rl.Allow("198.51.100.1") {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(10), allowed.Load())
}

func TestIPRateLimiter_Cleanup(t *testing.T) {
	rl := NewIPRateLimiter(1, 1)
	rl.idleTTL = 10 * time.Millisecond
	rl.Allow("192.0.2.10")

	time.Sleep(20 * time.Millisecond)
	rl.Allow("192.0.2.11")

	assert.Equal(t, 1, rl.Cleanup())
	assert.Equal(t, 1, rl.Size())
}

func TestIPRateLimiter_Middleware(t *testing.T) {
	rl := NewIPRateLimiter(0.5, 1)
	handler := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.RemoteAddr = "192.0.2.50:1234"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusOK, send().Code)
	limited := send()
	assert.Equal(t, http.StatusTooManyRequests, limited.Code)
	assert.Equal(t, "3", limited.Header().Get("Retry-After"))
}
