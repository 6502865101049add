package api

import "context"

type requestIDContextKey struct{}

// WithRequestID attaches the X-Request-ID to send with calls made under ctx. Without
// it every request gets a fresh random id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDContextKey{}, id)
}

func requestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(requestIDContextKey{}).(string)
	return id
}
