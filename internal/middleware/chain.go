package middleware

import (
	"connectrpc.com/connect"

	"github.com/mmynk/splitledger/internal/auth"
	"github.com/mmynk/splitledger/internal/metrics"
)

// ServerInterceptors is the chain every service handler is mounted with.
// Connect runs the first interceptor outermost, so calls rejected by auth
// are still counted and logged.
func ServerInterceptors(m *metrics.Metrics, jwtManager *auth.JWTManager) connect.HandlerOption {
	return connect.WithInterceptors(
		MetricsInterceptor(m),
		LoggingInterceptor(),
		RequireAuth(jwtManager),
	)
}
