package edgewire

import (
	"log/slog"

	"github.com/edgeql-io/edgewire/internal/compiler"
	"github.com/edgeql-io/edgewire/internal/metrics"
)

// OptionFn configures a Server at construction time.
type OptionFn func(*Server) error

// WithAuth sets the credential-verification hook run during the handshake.
func WithAuth(hook AuthHook) OptionFn {
	return func(srv *Server) error {
		srv.auth = hook
		return nil
	}
}

// WithCompiler overrides the default in-process reference compiler with a
// real out-of-process compiler client.
func WithCompiler(c compiler.Compiler) OptionFn {
	return func(srv *Server) error {
		srv.compiler = c
		return nil
	}
}

// WithLogger overrides the default slog.Default() logger.
func WithLogger(logger *slog.Logger) OptionFn {
	return func(srv *Server) error {
		srv.logger = logger
		return nil
	}
}

// WithMetrics attaches a metrics collector; every accepted connection
// increments/decrements its ConnectionsActive gauge and reports message
// counts through it.
func WithMetrics(m *metrics.Collector) OptionFn {
	return func(srv *Server) error {
		srv.metrics = m
		return nil
	}
}

// WithDeveloperMode enables the optional 'S' pgaddr parameter status emitted
// during the handshake (spec.md §4.3).
func WithDeveloperMode(enabled bool) OptionFn {
	return func(srv *Server) error {
		srv.developerMode.Store(enabled)
		return nil
	}
}

// WithQueryCacheEnabled toggles the compiled-query cache every Connection's
// Session is constructed with.
func WithQueryCacheEnabled(enabled bool) OptionFn {
	return func(srv *Server) error {
		srv.queryCacheEnabled = enabled
		return nil
	}
}

// WithBufferedMsgSize overrides the maximum buffered message size each
// Connection's framing layer will accept.
func WithBufferedMsgSize(size int) OptionFn {
	return func(srv *Server) error {
		srv.bufferedMsgSize = size
		return nil
	}
}
