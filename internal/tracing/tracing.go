package tracing

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// ContextKey represents keys used for context values
type ContextKey string

const (
	RequestIDKey ContextKey = "request_id"
	TraceIDKey   ContextKey = "trace_id"
	StartTimeKey ContextKey = "start_time"
)

// RequestInfo is the correlation data attached to an inbound HTTP request
type RequestInfo struct {
	RequestID string    `json:"request_id"`
	TraceID   string    `json:"trace_id"`
	StartTime time.Time `json:"start_time"`
}

// GenerateRequestID returns "req_" followed by 16 hex chars.
func GenerateRequestID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(b)
}

func generateTraceID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("trace_%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}

// WithRequest attaches a fresh request id, a trace id and the start time.
// The otel trace id is reused when a recording span is already in ctx.
func WithRequest(ctx context.Context) context.Context {
	traceID := OtelTraceID(ctx)
	if traceID == "" {
		traceID = generateTraceID()
	}
	ctx = context.WithValue(ctx, RequestIDKey, GenerateRequestID())
	ctx = context.WithValue(ctx, TraceIDKey, traceID)
	return context.WithValue(ctx, StartTimeKey, time.Now())
}

func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(RequestIDKey).(string)
	return id
}

func GetTraceID(ctx context.Context) string {
	id, _ := ctx.Value(TraceIDKey).(string)
	return id
}

// GetRequestInfo extracts all correlation data from ctx
func GetRequestInfo(ctx context.Context) *RequestInfo {
	start, _ := ctx.Value(StartTimeKey).(time.Time)
	return &RequestInfo{
		RequestID: GetRequestID(ctx),
		TraceID:   GetTraceID(ctx),
		StartTime: start,
	}
}

// Duration is the time elapsed since WithRequest, or 0 when it was never called.
func Duration(ctx context.Context) time.Duration {
	start, ok := ctx.Value(StartTimeKey).(time.Time)
	if !ok || start.IsZero() {
		return 0
	}
	return time.Since(start)
}
