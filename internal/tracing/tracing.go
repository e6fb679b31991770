package tracing

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// RequestInfo is the per-request scope carried through handlers, services
// and log lines.
type RequestInfo struct {
	RequestID string
	TraceID   string
	StartTime time.Time
}

type requestInfoKey struct{}

// GenerateRequestID returns a fresh request id with the "req_" prefix
func GenerateRequestID() string {
	return "req_" + uuid.NewString()
}

// GetRequestInfo returns the request scope stored in ctx. The zero value is
// returned outside a request.
func GetRequestInfo(ctx context.Context) RequestInfo {
	if info, ok := ctx.Value(requestInfoKey{}).(RequestInfo); ok {
		return info
	}
	return RequestInfo{}
}

func withInfo(ctx context.Context, update func(*RequestInfo)) context.Context {
	info := GetRequestInfo(ctx)
	update(&info)
	return context.WithValue(ctx, requestInfoKey{}, info)
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return withInfo(ctx, func(i *RequestInfo) { i.RequestID = requestID })
}

func WithTraceID(ctx context.Context, traceID string) context.Context {
	return withInfo(ctx, func(i *RequestInfo) { i.TraceID = traceID })
}

func WithStartTime(ctx context.Context, startTime time.Time) context.Context {
	return withInfo(ctx, func(i *RequestInfo) { i.StartTime = startTime })
}

func GetRequestID(ctx context.Context) string {
	return GetRequestInfo(ctx).RequestID
}

// GetTraceID prefers an explicitly stored id and falls back to the active
// span's trace id.
func GetTraceID(ctx context.Context) string {
	if id := GetRequestInfo(ctx).TraceID; id != "" {
		return id
	}
	return GetOtelTraceID(ctx)
}

// Duration is the time elapsed since the request started, zero when unknown
func Duration(ctx context.Context) time.Duration {
	start := GetRequestInfo(ctx).StartTime
	if start.IsZero() {
		return 0
	}
	return time.Since(start)
}
