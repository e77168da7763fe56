package snsctx

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
)

type ctxIndex int

const (
	ctxIndexVerbose ctxIndex = iota
	ctxIndexTrace
)

func IsVerbose(ctx context.Context) bool {
	val, ok := ctx.Value(ctxIndexVerbose).(bool)
	return ok && val
}

func SetVerbose(ctx context.Context, value bool) context.Context {
	return context.WithValue(ctx, ctxIndexVerbose, value)
}

// IsTrace reports whether raw bus traffic should be logged.
func IsTrace(ctx context.Context) bool {
	val, ok := ctx.Value(ctxIndexTrace).(bool)
	return ok && val
}

func SetTrace(ctx context.Context, value bool) context.Context {
	return context.WithValue(ctx, ctxIndexTrace, value)
}

// Dump logs a bus transfer as hex when tracing is enabled on ctx.
func Dump(ctx context.Context, msg string, address byte, data []byte) {
	if !IsTrace(ctx) {
		return
	}
	slog.DebugContext(ctx, msg, "addr", fmt.Sprintf("%#x", address), "data", hex.EncodeToString(data))
}
