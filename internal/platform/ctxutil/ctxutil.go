package ctxutil

import (
	"context"

	"github.com/yungbote/teamchat-backend/internal/domain/identity"
)

type traceDataKey struct{}
type requestDataKey struct{}

type TraceData struct {
	TraceID   string
	RequestID string
}

func WithTraceData(ctx context.Context, td *TraceData) context.Context {
	return context.WithValue(ctx, traceDataKey{}, td)
}

func GetTraceData(ctx context.Context) *TraceData {
	if td, ok := ctx.Value(traceDataKey{}).(*TraceData); ok {
		return td
	}
	return nil
}

// RequestData is attached by the auth middleware once the caller is resolved.
type RequestData struct {
	TokenString string
	Identity    identity.Identity
}

func WithRequestData(ctx context.Context, rd *RequestData) context.Context {
	return context.WithValue(ctx, requestDataKey{}, rd)
}

func GetRequestData(ctx context.Context) *RequestData {
	if rd, ok := ctx.Value(requestDataKey{}).(*RequestData); ok {
		return rd
	}
	return nil
}

// Caller returns the authenticated identity, ok=false when the request is anonymous.
func Caller(ctx context.Context) (identity.Identity, bool) {
	rd := GetRequestData(ctx)
	if rd == nil || !rd.Identity.Valid() {
		return identity.Identity{}, false
	}
	return rd.Identity, true
}
