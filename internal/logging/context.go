package logging

import (
	"context"

	"go.uber.org/zap"
)

type ctxKey int

const fieldsKey ctxKey = iota

// WithFields returns a context carrying the given fields; subsequent log
// calls made with this context automatically include them.
func WithFields(ctx context.Context, fields ...zap.Field) context.Context {
	existing := ContextFields(ctx)
	merged := make([]zap.Field, 0, len(existing)+len(fields))
	merged = append(merged, existing...)
	merged = append(merged, fields...)
	return context.WithValue(ctx, fieldsKey, merged)
}

// WithBank attaches the bank_id field used throughout retain/recall/reflect
// for log correlation.
func WithBank(ctx context.Context, bankID string) context.Context {
	return WithFields(ctx, zap.String("bank_id", bankID))
}

// ContextFields returns fields previously stashed with WithFields, or nil.
func ContextFields(ctx context.Context) []zap.Field {
	if ctx == nil {
		return nil
	}
	if v, ok := ctx.Value(fieldsKey).([]zap.Field); ok {
		return v
	}
	return nil
}
