package edgewire

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/neilotoole/slogt"
	"github.com/stretchr/testify/require"

	"github.com/edgeql-io/edgewire/internal/backendsql"
	"github.com/edgeql-io/edgewire/internal/compiler"
	"github.com/edgeql-io/edgewire/internal/dbview"
	"github.com/edgeql-io/edgewire/internal/query"
	"github.com/edgeql-io/edgewire/pkg/buffer"
	"github.com/edgeql-io/edgewire/pkg/protocol"
)

// stubBackend implements query.Backend, failing every ParseExecute call so
// handleError's recovery paths can be exercised without a live SQL backend.
type stubBackend struct {
	parseExecuteErr error
}

func (b *stubBackend) ParseExecute(ctx context.Context, unit *compiler.QueryUnit, bindData []byte, execute, sendSync, usePrepStmt bool, sink backendsql.RowSink) error {
	return b.parseExecuteErr
}

func (b *stubBackend) SimpleQuery(ctx context.Context, sql string, ignoreData bool, sink backendsql.RowSink) error {
	return nil
}

func (b *stubBackend) Sync(ctx context.Context) error { return nil }

func (b *stubBackend) TxStatus() backendsql.TxStatus { return backendsql.TxIdle }

func (b *stubBackend) QueryState(ctx context.Context) ([]backendsql.StateRow, error) {
	return nil, nil
}

var _ query.Backend = (*stubBackend)(nil)

func frame(typ protocol.ClientMessage, payload []byte) []byte {
	var buf bytes.Buffer
	buf.WriteByte(byte(typ))
	var size [4]byte
	binary.BigEndian.PutUint32(size[:], uint32(len(payload)+4))
	buf.Write(size[:])
	buf.Write(payload)
	return buf.Bytes()
}

// newTestConnection wires a Connection directly, bypassing handshake() so
// its loop/dispatch/error-recovery logic can be exercised without a live
// SQL backend connection.
func newTestConnection(t *testing.T, frames ...[]byte) (*Connection, *bytes.Buffer) {
	t.Helper()

	srv, err := NewServer("unused")
	require.NoError(t, err)

	var in bytes.Buffer
	for _, f := range frames {
		in.Write(f)
	}
	var out bytes.Buffer

	reader := buffer.NewReader(slogt.New(t), &in, buffer.DefaultBufferSize)
	writer := buffer.NewWriter(slogt.New(t), &out)

	c := &Connection{
		id:     1,
		srv:    srv,
		reader: reader,
		writer: writer,
		logger: slogt.New(t),
		session: &query.Session{
			Reader:            reader,
			Writer:            writer,
			View:              dbview.New(1),
			Compiler:          compiler.NewReference(),
			Backend:           &stubBackend{},
			QueryCacheEnabled: true,
		},
	}

	return c, &out
}

func TestDispatchUnknownMessageType(t *testing.T) {
	c, _ := newTestConnection(t, frame(protocol.ClientMessage('X'), nil))
	require.NoError(t, c.reader.TakeMessage())

	err := c.dispatch(context.Background())
	require.Error(t, err)
}

func TestHandleErrorSimpleQueryWritesReadyWithoutResync(t *testing.T) {
	c, out := newTestConnection(t, frame(protocol.ClientSimpleQuery, append([]byte("select 1"), 0)))
	require.NoError(t, c.reader.TakeMessage())

	err := c.handleError(context.Background(), errors.New("boom"))
	require.NoError(t, err)
	require.NotZero(t, out.Len())

	// ErrorResponse ('E') then ReadyForQuery ('Z'), with no resync required.
	require.Equal(t, byte('E'), out.Bytes()[0])
	require.Equal(t, byte('Z'), out.Bytes()[out.Len()-6])
}

func TestHandleErrorParseResyncsToSync(t *testing.T) {
	c, out := newTestConnection(t,
		frame(protocol.ClientParse, []byte("garbage")),
		frame(protocol.ClientDescribe, []byte("also discarded")),
		frame(protocol.ClientSync, nil),
	)
	require.NoError(t, c.reader.TakeMessage())

	err := c.handleError(context.Background(), errors.New("boom"))
	require.NoError(t, err)
	require.NotZero(t, out.Len())
	require.Equal(t, byte('E'), out.Bytes()[0])
}

func TestLoopStopsCleanlyOnDisconnect(t *testing.T) {
	c, _ := newTestConnection(t)
	require.NoError(t, c.loop(context.Background()))
}
