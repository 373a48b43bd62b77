// Package backendsql implements the SQL backend connection the core
// delegates compiled queries to (spec.md §3's "backend" bundle, minus the
// compiler RPC half which lives in internal/compiler). It is grounded on
// database/sql usage patterns from the pack (the tqdbproxy postgres client
// wrapper) using the lib/pq driver, generalized from a caching proxy client
// into the per-connection backend the query lifecycle drives directly.
package backendsql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/lib/pq"

	"github.com/edgeql-io/edgewire/internal/compiler"
	"github.com/edgeql-io/edgewire/pkg/buffer"
	"github.com/edgeql-io/edgewire/pkg/protocol"
)

// TxStatus mirrors the backend's own view of its transaction state, as
// reported after running a unit's SQL.
type TxStatus byte

const (
	TxIdle    TxStatus = 'I'
	TxInTrans TxStatus = 'T'
	TxInError TxStatus = 'E'
)

// RowSink receives rows streamed back from the backend while a query
// executes. The core passes its own connection write buffer as the sink so
// rows are written directly onto the client's wire, per spec.md §4.4 step 4.
type RowSink interface {
	WriteRow(values []byte) error
}

// BufferRowSink adapts a pkg/buffer.Writer into a RowSink, framing every row
// as a ServerDataRow message.
type BufferRowSink struct {
	W *buffer.Writer
}

func (s *BufferRowSink) WriteRow(values []byte) error {
	s.W.NewMessage(protocol.ServerDataRow)
	s.W.WriteBytes(values)
	return s.W.EndMessage()
}

// Conn is the per-connection SQL backend handle. One Conn is exclusively
// owned by one core Connection for its lifetime (spec.md §5).
type Conn struct {
	db *sql.DB
	tx *sql.Tx

	dbVersion uint64
}

// Open establishes a new backend SQL connection using the lib/pq driver.
func Open(ctx context.Context, dsn string) (*Conn, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("backendsql: open: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("backendsql: ping: %w", err)
	}

	return &Conn{db: db, dbVersion: 1}, nil
}

// DBVersion returns the schema version this backend connection reports.
func (c *Conn) DBVersion() uint64 {
	return c.dbVersion
}

func (c *Conn) querier() interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
} {
	if c.tx != nil {
		return c.tx
	}
	return c.db
}

// ParseExecute prepares (and optionally runs) unit's SQL against the
// backend, per spec.md §4.4 step 4. bindData is the recoded bind-argument
// buffer; when execute is false only preparation is attempted. When sink is
// non-nil, result rows are streamed to it as they arrive.
func (c *Conn) ParseExecute(ctx context.Context, unit *compiler.QueryUnit, bindData []byte, execute bool, sendSync bool, usePrepStmt bool, sink RowSink) error {
	for _, stmt := range unit.SQL {
		sql := string(stmt)

		if !execute {
			if _, err := c.db.PrepareContext(ctx, sql); err != nil {
				return classifyErr(err)
			}
			continue
		}

		if err := c.runAndStream(ctx, sql, sink); err != nil {
			return err
		}
	}

	if sendSync {
		return c.Sync(ctx)
	}

	return nil
}

func (c *Conn) runAndStream(ctx context.Context, sql string, sink RowSink) error {
	if isTxBegin(sql) {
		tx, err := c.db.BeginTx(ctx, nil)
		if err != nil {
			return classifyErr(err)
		}
		c.tx = tx
		return nil
	}

	if isTxCommit(sql) {
		if c.tx == nil {
			return nil
		}
		err := c.tx.Commit()
		c.tx = nil
		if err != nil {
			return classifyErr(err)
		}
		return nil
	}

	if isTxRollback(sql) {
		if c.tx == nil {
			return nil
		}
		err := c.tx.Rollback()
		c.tx = nil
		if err != nil {
			return classifyErr(err)
		}
		return nil
	}

	q := c.querier()

	rows, err := q.QueryContext(ctx, sql)
	if err != nil {
		// not every statement produces a result set; fall back to Exec.
		if _, execErr := q.ExecContext(ctx, sql); execErr != nil {
			return classifyErr(execErr)
		}
		return nil
	}
	defer rows.Close()

	if sink != nil {
		if err := streamRows(rows, sink); err != nil {
			return err
		}
	}

	return rows.Err()
}

// SimpleQuery runs eql's already-compiled SQL outside of the prepared-
// statement path, per spec.md §4.4's simple_query calls. When ignoreData is
// true, result rows are discarded rather than streamed.
func (c *Conn) SimpleQuery(ctx context.Context, sql string, ignoreData bool, sink RowSink) error {
	if ignoreData {
		return c.runAndStream(ctx, sql, nil)
	}
	return c.runAndStream(ctx, sql, sink)
}

// Sync flushes any pending backend-side state; for this simplified backend
// there is nothing to flush beyond the transaction boundary already tracked
// by runAndStream, so Sync does nothing and returns nil. The transaction
// status is read separately through TxStatus.
func (c *Conn) Sync(ctx context.Context) error {
	return nil
}

// TxStatus reports the backend's own view of its transaction state.
func (c *Conn) TxStatus() TxStatus {
	if c.tx == nil {
		return TxIdle
	}
	return TxInTrans
}

// StateRow is one row of the recovery tables consulted by
// internal/query's transaction coordinator (spec.md §4.5): `(name, value,
// type)` where type is 'C' (configuration), 'A' (alias), or the
// synthesized 'S' (current savepoint id, with an empty name).
type StateRow struct {
	Name  string
	Value string
	Type  byte
}

// QueryState reads back the two temporary recovery tables
// (_edgecon_state and _edgecon_current_savepoint) created during the
// handshake, per spec.md §4.3/§4.5.
func (c *Conn) QueryState(ctx context.Context) ([]StateRow, error) {
	rows, err := c.querier().QueryContext(ctx, `
		select name, value, 'A' as kind from _edgecon_state where kind = 'alias'
		union all
		select name, value, 'C' as kind from _edgecon_state where kind = 'config'
		union all
		select '' as name, savepoint_id as value, 'S' as kind from _edgecon_current_savepoint
	`)
	if err != nil {
		return nil, classifyErr(err)
	}
	defer rows.Close()

	var out []StateRow
	for rows.Next() {
		var r StateRow
		var kind string
		if err := rows.Scan(&r.Name, &r.Value, &kind); err != nil {
			return nil, err
		}
		if len(kind) > 0 {
			r.Type = kind[0]
		}
		out = append(out, r)
	}

	return out, rows.Err()
}

// Close releases the backend connection, including any open transaction.
func (c *Conn) Close() error {
	if c.tx != nil {
		_ = c.tx.Rollback()
		c.tx = nil
	}
	return c.db.Close()
}

func streamRows(rows *sql.Rows, sink RowSink) error {
	cols, err := rows.Columns()
	if err != nil {
		return err
	}

	values := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return err
		}

		encoded := encodeRow(values)
		if err := sink.WriteRow(encoded); err != nil {
			return err
		}
	}

	return nil
}

// encodeRow renders a row of column values as a newline-separated byte
// buffer. The wire-level shape of backend-driver data messages is
// implementation defined per spec.md §6; this is the reference encoding
// used by the bundled backend and reference compiler together.
func encodeRow(values []any) []byte {
	out := make([]byte, 0, 64)
	for i, v := range values {
		if i > 0 {
			out = append(out, '\n')
		}
		switch val := v.(type) {
		case nil:
		case []byte:
			out = append(out, val...)
		default:
			out = append(out, []byte(fmt.Sprint(val))...)
		}
	}
	return out
}

func classifyErr(err error) error {
	if err == nil {
		return nil
	}
	return &BackendError{Underlying: err}
}

// BackendError wraps a raw error surfaced by the SQL backend driver,
// carrying the fields InterpretBackendError expects.
type BackendError struct {
	Underlying error
}

func (e *BackendError) Error() string {
	return e.Underlying.Error()
}

func (e *BackendError) Unwrap() error {
	return e.Underlying
}

// Fields extracts the backend-originated error fields passed to the
// compiler's InterpretBackendError, per spec.md §4.6.
func (e *BackendError) Fields() compiler.BackendErrorFields {
	return compiler.BackendErrorFields{'M': e.Underlying.Error()}
}

func isTxBegin(sql string) bool  { return matchKeyword(sql, "BEGIN", "START TRANSACTION") }
func isTxCommit(sql string) bool { return matchKeyword(sql, "COMMIT") }

// isTxRollback reports whether sql ends the whole backend transaction.
// "ROLLBACK TO SAVEPOINT ..." must NOT match here: it only unwinds to a
// savepoint and leaves the transaction open, so it has to fall through to
// runAndStream's normal query path instead of the tx-ending branch.
func isTxRollback(sql string) bool {
	return matchKeyword(sql, "ROLLBACK") && !isRollbackToSavepoint(sql)
}

func isRollbackToSavepoint(sql string) bool {
	trimmed := strings.ToUpper(strings.TrimSpace(sql))
	rest := strings.TrimPrefix(trimmed, "ROLLBACK")
	return strings.HasPrefix(strings.TrimSpace(rest), "TO")
}

func matchKeyword(sql string, keywords ...string) bool {
	trimmed := strings.ToUpper(strings.TrimSpace(sql))
	for _, kw := range keywords {
		if trimmed == kw || strings.HasPrefix(trimmed, kw+" ") {
			return true
		}
	}
	return false
}
