package activity

import "context"

type metaCtxKey struct{}

// NewContextMeta returns a context carrying HTTP request metadata for audit
// attribution. Set by the request-meta middleware on inbound requests.
func NewContextMeta(ctx context.Context, meta *RequestMeta) context.Context {
	return context.WithValue(ctx, metaCtxKey{}, meta)
}

// MetaFromContext returns the request metadata stored in ctx, or nil for
// system and background-originated mutations.
func MetaFromContext(ctx context.Context) *RequestMeta {
	m, _ := ctx.Value(metaCtxKey{}).(*RequestMeta)
	return m
}
