package edgewire

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"

	"github.com/edgeql-io/edgewire/internal/compiler"
	"github.com/edgeql-io/edgewire/internal/metrics"
	"github.com/edgeql-io/edgewire/pkg/buffer"
)

// ListenAndServe opens a new edge protocol server listening on address,
// backed by the SQL connection string dsn, using default configuration.
// This mirrors the teacher's package-level ListenAndServe convenience
// constructor.
func ListenAndServe(address, dsn string) error {
	srv, err := NewServer(dsn)
	if err != nil {
		return err
	}

	return srv.ListenAndServe(address)
}

// NewServer constructs a new edge protocol server bound to the backend SQL
// connection string dsn.
func NewServer(dsn string, options ...OptionFn) (*Server, error) {
	srv := &Server{
		dsn:               dsn,
		logger:            slog.Default(),
		compiler:          compiler.NewReference(),
		queryCacheEnabled: true,
		bufferedMsgSize:   buffer.DefaultBufferSize,
		closer:            make(chan struct{}),
	}

	for _, option := range options {
		if err := option(srv); err != nil {
			return nil, fmt.Errorf("configuring server: %w", err)
		}
	}

	return srv, nil
}

// Server holds the configuration shared by every Connection it accepts.
type Server struct {
	dsn    string
	logger *slog.Logger

	compiler          compiler.Compiler
	auth              AuthHook
	developerMode     atomic.Bool
	queryCacheEnabled bool
	bufferedMsgSize   int

	metrics *metrics.Collector

	nextConnID atomic.Uint64
	closing    atomic.Bool
	closer     chan struct{}
	wg         sync.WaitGroup
}

// SetDeveloperMode updates whether new connections receive the extra
// "pgaddr" ParameterStatus field during the handshake (spec.md §4.3). Safe
// to call concurrently with Serve; it is the one Server setting exposed for
// live reconfiguration (internal/config.Watcher).
func (srv *Server) SetDeveloperMode(enabled bool) {
	srv.developerMode.Store(enabled)
}

// ListenAndServe opens a TCP listener on address and serves incoming
// connections until the server is closed.
func (srv *Server) ListenAndServe(address string) error {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return err
	}

	return srv.Serve(listener)
}

// Serve accepts and serves incoming client connections on the given
// listener, which is closed once the server is gracefully closed.
func (srv *Server) Serve(listener net.Listener) error {
	defer srv.logger.Info("closing server")

	srv.logger.Info("serving incoming connections", slog.String("addr", listener.Addr().String()))
	srv.wg.Add(1)

	go func() {
		defer srv.wg.Done()
		<-srv.closer

		if err := listener.Close(); err != nil {
			srv.logger.Error("closing listener", "err", err)
		}
	}()

	for {
		conn, err := listener.Accept()
		if errors.Is(err, net.ErrClosed) {
			return nil
		}
		if err != nil {
			return err
		}

		c := srv.newConnection(conn)
		go func() {
			if err := c.serve(context.Background()); err != nil {
				srv.logger.Error("connection terminated", slog.Uint64("conn_id", c.id), "err", err)
			}
		}()
	}
}

// Close gracefully closes the server: the listener stops accepting new
// connections and Close blocks until the listener has been closed.
// Connections already being served are not waited for.
func (srv *Server) Close() error {
	if srv.closing.Load() {
		return nil
	}

	srv.closing.Store(true)
	close(srv.closer)
	srv.wg.Wait()
	return nil
}
