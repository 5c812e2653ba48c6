package httpserver

import (
	"context"

	"github.com/justgu1/cepapi/internal/model"
)

type ctxKey string

const sessionKey ctxKey = "cep.session"

// WithSession stores the authenticated session in ctx.
func WithSession(ctx context.Context, s model.Session) context.Context {
	return context.WithValue(ctx, sessionKey, s)
}

// SessionFromCtx fetches the authenticated session from ctx.
func SessionFromCtx(ctx context.Context) (model.Session, bool) {
	s, ok := ctx.Value(sessionKey).(model.Session)
	return s, ok
}
