package query

import (
	"context"

	"github.com/edgeql-io/edgewire/internal/backendsql"
	"github.com/edgeql-io/edgewire/internal/compiler"
)

// fakeBackend is an in-memory stand-in for *backendsql.Conn used to drive
// the query lifecycle in tests without a live SQL connection.
type fakeBackend struct {
	txStatus backendsql.TxStatus
	state    []backendsql.StateRow

	parseExecuteErr error
	simpleQueryErr  error

	parseExecuteCalls int
	simpleQueryCalls  int
	lastSQL           []string
}

func (f *fakeBackend) ParseExecute(ctx context.Context, unit *compiler.QueryUnit, bindData []byte, execute bool, sendSync bool, usePrepStmt bool, sink backendsql.RowSink) error {
	f.parseExecuteCalls++
	for _, s := range unit.SQL {
		f.lastSQL = append(f.lastSQL, string(s))
	}
	return f.parseExecuteErr
}

func (f *fakeBackend) SimpleQuery(ctx context.Context, sql string, ignoreData bool, sink backendsql.RowSink) error {
	f.simpleQueryCalls++
	f.lastSQL = append(f.lastSQL, sql)
	return f.simpleQueryErr
}

func (f *fakeBackend) Sync(ctx context.Context) error {
	return nil
}

func (f *fakeBackend) TxStatus() backendsql.TxStatus {
	if f.txStatus == 0 {
		return backendsql.TxIdle
	}
	return f.txStatus
}

func (f *fakeBackend) QueryState(ctx context.Context) ([]backendsql.StateRow, error) {
	return f.state, nil
}

var _ Backend = (*fakeBackend)(nil)
