package query

import (
	"context"

	"github.com/edgeql-io/edgewire/internal/backendsql"
	"github.com/edgeql-io/edgewire/internal/compiler"
	"github.com/edgeql-io/edgewire/internal/dbview"
	"github.com/edgeql-io/edgewire/internal/metrics"
	"github.com/edgeql-io/edgewire/pkg/buffer"
)

// Backend is the slice of *backendsql.Conn the query lifecycle operations
// need. It is expressed as an interface so tests can exercise the
// lifecycle against a fake backend instead of a live SQL connection.
type Backend interface {
	ParseExecute(ctx context.Context, unit *compiler.QueryUnit, bindData []byte, execute bool, sendSync bool, usePrepStmt bool, sink backendsql.RowSink) error
	SimpleQuery(ctx context.Context, sql string, ignoreData bool, sink backendsql.RowSink) error
	Sync(ctx context.Context) error
	TxStatus() backendsql.TxStatus
	QueryState(ctx context.Context) ([]backendsql.StateRow, error)
}

var _ Backend = (*backendsql.Conn)(nil)

// Session bundles the per-connection dependencies the query lifecycle
// operations need. It is owned by the root connection type and passed by
// reference into every operation in this package, keeping the state
// machine itself (conn.go/loop.go) free of query-lifecycle detail.
type Session struct {
	Reader   *buffer.Reader
	Writer   *buffer.Writer
	View     *dbview.View
	Compiler compiler.Compiler
	Backend  Backend

	// Metrics is optional; every call site nil-checks before using it.
	Metrics *metrics.Collector

	QueryCacheEnabled bool

	// LastAnonCompiled is the most recently parsed anonymous query unit, or
	// nil. Set by Parse and by Opportunistic's implicit reparse; cleared at
	// the start of every explicit Parse (spec.md §3).
	LastAnonCompiled *compiler.QueryUnit
}
