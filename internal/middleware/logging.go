package middleware

import (
	"context"
	"log/slog"
	"time"

	"connectrpc.com/connect"
)

const callerSlotKey contextKey = "caller_slot"

// callerSlot lets an inner auth interceptor report the caller to the
// logging interceptor wrapped around it.
type callerSlot struct {
	userID string
}

// LoggingInterceptor returns a Connect interceptor that logs every RPC call
// with its caller, duration and result code. Client errors log at WARN and
// server faults at ERROR.
func LoggingInterceptor() connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			start := time.Now()
			slot := &callerSlot{userID: GetUserID(ctx)}

			resp, err := next(context.WithValue(ctx, callerSlotKey, slot), req)

			attrs := []any{
				"procedure", req.Spec().Procedure,
				"user_id", slot.userID,
				"duration_ms", time.Since(start).Milliseconds(),
			}
			if err == nil {
				slog.Info("RPC ok", attrs...)
				return resp, nil
			}

			code := connect.CodeOf(err)
			attrs = append(attrs, "code", code, "error", err)
			switch code {
			case connect.CodeInternal, connect.CodeUnknown, connect.CodeUnavailable, connect.CodeDataLoss:
				slog.Error("RPC error", attrs...)
			default:
				slog.Warn("RPC error", attrs...)
			}
			return resp, err
		}
	}
}
