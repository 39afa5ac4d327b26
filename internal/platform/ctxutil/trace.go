// Package ctxutil carries request-scoped identifiers through context.
package ctxutil

import "context"

type traceDataKey struct{}

// TraceData identifies the request a unit of work belongs to. JobID scopes
// progress events; it defaults to the request id.
type TraceData struct {
	TraceID   string
	RequestID string
	JobID     string
}

func WithTraceData(ctx context.Context, td *TraceData) context.Context {
	return context.WithValue(ctx, traceDataKey{}, td)
}

func GetTraceData(ctx context.Context) *TraceData {
	if ctx == nil {
		return nil
	}
	if td, ok := ctx.Value(traceDataKey{}).(*TraceData); ok {
		return td
	}
	return nil
}

// JobID returns the job id carried by ctx, falling back to the request id.
func JobID(ctx context.Context) string {
	td := GetTraceData(ctx)
	if td == nil {
		return ""
	}
	if td.JobID != "" {
		return td.JobID
	}
	return td.RequestID
}
