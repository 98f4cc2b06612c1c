package logger

import (
	"context"

	"github.com/rs/zerolog"
)

type ctxKey struct{}

func WithLogger(ctx context.Context, lg zerolog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, lg)
}

// Ctx 返回请求级日志器，没有时返回全局日志器
func Ctx(ctx context.Context) zerolog.Logger {
	if lg, ok := ctx.Value(ctxKey{}).(zerolog.Logger); ok {
		return lg
	}
	return L()
}
