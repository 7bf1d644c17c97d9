package requestctx

import (
	"context"

	"go.uber.org/zap"
)

type contextKey string

const (
	loggerContextKey    contextKey = "boutique/requestctx/logger"
	traceContextKey     contextKey = "boutique/requestctx/trace"
	requesterContextKey contextKey = "boutique/requestctx/requester"
)

var noopLogger = zap.NewNop()

// TraceInfo captures trace metadata propagated through request context.
type TraceInfo struct {
	TraceID   string
	SpanID    string
	Sampled   bool
	ProjectID string
}

// Requester identifies the anonymous caller behind a request. Public booking endpoints have no
// accounts, so the client address and the optional browser session header stand in for one.
type Requester struct {
	RemoteIP  string
	SessionID string
	StaffUID  string
}

// Key returns the most specific stable identifier available.
func (r Requester) Key() string {
	switch {
	case r.StaffUID != "":
		return "staff:" + r.StaffUID
	case r.SessionID != "":
		return "session:" + r.SessionID
	case r.RemoteIP != "":
		return "ip:" + r.RemoteIP
	default:
		return ""
	}
}

// WithLogger stores the logger in context for downstream consumers.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if logger == nil {
		logger = noopLogger
	}
	return context.WithValue(ctx, loggerContextKey, logger)
}

// Logger retrieves the zap logger from context or returns a no-op logger.
func Logger(ctx context.Context) *zap.Logger {
	if ctx == nil {
		return noopLogger
	}
	if logger, ok := ctx.Value(loggerContextKey).(*zap.Logger); ok && logger != nil {
		return logger
	}
	return noopLogger
}

// NoopLogger exposes the shared noop logger instance.
func NoopLogger() *zap.Logger { return noopLogger }

// WithTrace stores the trace metadata on the context.
func WithTrace(ctx context.Context, info TraceInfo) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, traceContextKey, info)
}

// Trace retrieves the trace metadata from context when available.
func Trace(ctx context.Context) (TraceInfo, bool) {
	if ctx == nil {
		return TraceInfo{}, false
	}
	info, ok := ctx.Value(traceContextKey).(TraceInfo)
	return info, ok
}

// TraceID extracts the trace identifier from context when present.
func TraceID(ctx context.Context) string {
	info, _ := Trace(ctx)
	return info.TraceID
}

// WithRequester stores the caller descriptor on the context.
func WithRequester(ctx context.Context, requester Requester) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, requesterContextKey, requester)
}

// RequesterFrom returns the caller descriptor, if any middleware recorded one.
func RequesterFrom(ctx context.Context) (Requester, bool) {
	if ctx == nil {
		return Requester{}, false
	}
	requester, ok := ctx.Value(requesterContextKey).(Requester)
	return requester, ok
}
