package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"raine/internal/errors"
	"raine/internal/httputil"
	"raine/internal/metrics"
	"raine/internal/service"
	"raine/internal/tracing"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

var sensitiveHeaders = map[string]bool{
	"authorization":  true,
	"x-event-secret": true,
	"cookie":         true,
	"set-cookie":     true,
}

// ObservabilityMiddleware adds request ids, tracing, metrics and access logs to HTTP requests
func ObservabilityMiddleware(logger *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			route := routeTemplate(r)

			ctx, span := tracing.WithOtelTracing(r.Context(), "http "+r.Method+" "+route)
			defer span.End()

			requestID := r.Header.Get(RequestIDHeader)
			if requestID == "" || len(requestID) > 128 {
				requestID = tracing.GenerateRequestID()
			}
			ctx = tracing.WithRequestID(ctx, requestID)
			ctx = tracing.WithStartTime(ctx, time.Now())
			ctx = errors.ContextWithRequestID(ctx, requestID)
			if traceID := tracing.GetTraceID(ctx); traceID != "" {
				ctx = errors.ContextWithTraceID(ctx, traceID)
			}
			r = r.WithContext(ctx)
			w.Header().Set(RequestIDHeader, requestID)

			clientIP := httputil.GetClientIP(r)
			tracing.AddSpanAttributes(ctx,
				attribute.String("http.request.method", r.Method),
				attribute.String("http.route", route),
				attribute.String("client.address", clientIP),
				attribute.String("user_agent.original", r.Header.Get("User-Agent")),
			)

			if logger.IsLevelEnabled(logrus.DebugLevel) {
				logger.WithFields(logrus.Fields{
					service.LogFieldRequestID: requestID,
					service.LogFieldMethod:    r.Method,
					service.LogFieldURL:       r.URL.Path,
					"headers":                 maskHeaders(r.Header),
				}).Debug("HTTP request started")
			}

			wrapper := &responseWrapper{ResponseWriter: w, statusCode: http.StatusOK}

			metrics.IncrementCounter(metrics.HTTPRequests, map[string]string{
				"method": r.Method,
				"route":  route,
			}, "Total HTTP requests")

			next.ServeHTTP(wrapper, r)

			duration := tracing.Duration(ctx)
			status := strconv.Itoa(wrapper.statusCode)

			tracing.AddSpanAttributes(ctx,
				attribute.Int("http.response.status_code", wrapper.statusCode),
				attribute.Int64("http.response.body.size", wrapper.responseSize),
			)
			if wrapper.statusCode >= 500 {
				oteltrace.SpanFromContext(ctx).SetStatus(codes.Error, fmt.Sprintf("HTTP %d", wrapper.statusCode))
			}

			metrics.RecordTimer(metrics.HTTPRequestDuration, duration, map[string]string{
				"method":      r.Method,
				"route":       route,
				"status_code": status,
			}, "HTTP request duration")

			logLevel := logrus.InfoLevel
			if wrapper.statusCode >= 400 && wrapper.statusCode < 500 {
				logLevel = logrus.WarnLevel
			} else if wrapper.statusCode >= 500 {
				logLevel = logrus.ErrorLevel
			}
			if route == "/health" || route == "/metrics" {
				logLevel = logrus.DebugLevel
			}

			logger.WithFields(logrus.Fields{
				service.LogFieldRequestID:  requestID,
				service.LogFieldTraceID:    tracing.GetTraceID(ctx),
				service.LogFieldMethod:     r.Method,
				service.LogFieldURL:        r.URL.Path,
				service.LogFieldStatusCode: wrapper.statusCode,
				service.LogFieldDuration:   duration.Milliseconds(),
				service.LogFieldRemoteIP:   clientIP,
				service.LogFieldSize:       wrapper.responseSize,
			}).Log(logLevel, "HTTP request completed")
		})
	}
}

// routeTemplate keeps metric labels bounded by using the matched mux
// template instead of the raw path.
func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

func maskHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for name, values := range h {
		if sensitiveHeaders[strings.ToLower(name)] {
			out[name] = "***"
			continue
		}
		out[name] = strings.Join(values, ",")
	}
	return out
}

// responseWrapper captures response metrics
type responseWrapper struct {
	http.ResponseWriter
	statusCode   int
	responseSize int64
	wroteHeader  bool
}

func (rw *responseWrapper) WriteHeader(statusCode int) {
	if !rw.wroteHeader {
		rw.statusCode = statusCode
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(statusCode)
}

func (rw *responseWrapper) Write(data []byte) (int, error) {
	rw.wroteHeader = true
	n, err := rw.ResponseWriter.Write(data)
	rw.responseSize += int64(n)
	return n, err
}
