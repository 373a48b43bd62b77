// Package edgewire implements the edge protocol frontend: a server-side
// connection handler speaking the binary wire protocol described in
// SPEC_FULL.md between database clients and a query-compilation/execution
// backend. One Connection is created per accepted socket and owns the
// framing layer, the authenticated session, and the top-level message loop.
//
// Grounded on the teacher's wire.go/conn.go split, generalized from the
// Postgres wire protocol to this protocol's message set.
package edgewire

import (
	"context"
	"log/slog"
	"net"
	"sync/atomic"

	"github.com/edgeql-io/edgewire/internal/query"
	"github.com/edgeql-io/edgewire/pkg/buffer"
)

// connStatus mirrors spec.md §3's {NEW, STARTED, AUTHENTICATED, BAD} states.
type connStatus int32

const (
	statusNew connStatus = iota
	statusStarted
	statusAuthenticated
	statusBad
)

func (s connStatus) String() string {
	switch s {
	case statusNew:
		return "NEW"
	case statusStarted:
		return "STARTED"
	case statusAuthenticated:
		return "AUTHENTICATED"
	case statusBad:
		return "BAD"
	default:
		return "UNKNOWN"
	}
}

// Connection is one accepted client socket's worth of state: an id, a
// status, the framing layer, and (once authenticated) the query session.
// Per spec.md §5, all work for a Connection runs on a single goroutine.
type Connection struct {
	id        uint64
	srv       *Server
	status    atomic.Int32
	transport net.Conn
	reader    *buffer.Reader
	writer    *buffer.Writer
	logger    *slog.Logger

	session *query.Session
}

// newConnection allocates a Connection for a freshly accepted socket,
// assigning it the next connection id (spec.md §9's resolved Open Question).
func (srv *Server) newConnection(transport net.Conn) *Connection {
	id := srv.nextConnID.Add(1)
	logger := srv.logger.With(slog.Uint64("conn_id", id))

	return &Connection{
		id:        id,
		srv:       srv,
		transport: transport,
		reader:    buffer.NewReader(logger, transport, srv.bufferedMsgSize),
		writer:    buffer.NewWriter(logger, transport),
		logger:    logger,
	}
}

// Status reports the connection's current state.
func (c *Connection) Status() string {
	return connStatus(c.status.Load()).String()
}

// serve drives one connection end to end: handshake, then the top-level
// message loop, until a fatal error, an explicit abort, or the client
// disconnects.
func (c *Connection) serve(ctx context.Context) error {
	c.status.Store(int32(statusStarted))
	defer c.abort()

	if m := c.srv.metrics; m != nil {
		m.ConnectionsActive.Inc()
		defer m.ConnectionsActive.Dec()
	}

	c.logger.Debug("serving new connection")

	session, err := c.handshake(ctx)
	if err != nil {
		c.logger.Error("handshake failed", "err", err)
		return err
	}
	c.session = session
	c.status.Store(int32(statusAuthenticated))

	c.logger.Debug("connection authenticated")

	return c.loop(ctx)
}

// abort implements spec.md §5's Abort: mark the connection BAD, close its
// transport, and release the backend. Idempotent.
func (c *Connection) abort() {
	c.status.Store(int32(statusBad))
	_ = c.transport.Close()

	if c.session != nil {
		if closer, ok := c.session.Backend.(interface{ Close() error }); ok {
			_ = closer.Close()
		}
	}
}
