package query

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/edgeql-io/edgewire/pkg/protocol"
)

func executePayload(bind []byte) []byte {
	var payload []byte
	payload = append(payload, utf8Field("")...) // stmt_name
	payload = append(payload, bind...)
	return payload
}

func TestExecuteRequiresPriorParse(t *testing.T) {
	s, _ := newTestSession(t, frame(protocol.ClientExecute, executePayload(bindBlock(0, nil))))
	require.NoError(t, s.Reader.TakeMessage())

	err := Execute(context.Background(), s)
	require.Error(t, err)
}

func TestExecuteAfterParseNoSync(t *testing.T) {
	s, out := newTestSession(t, frame(protocol.ClientParse, parsePayload('j', "select 1")),
		frame(protocol.ClientExecute, executePayload(bindBlock(0, nil))),
	)

	require.NoError(t, s.Reader.TakeMessage())
	require.NoError(t, Parse(context.Background(), s))
	require.NoError(t, s.Writer.Flush())
	out.Reset()

	require.NoError(t, s.Reader.TakeMessage())
	require.NoError(t, Execute(context.Background(), s))
	require.NoError(t, s.Writer.Flush())

	require.Equal(t, byte(protocol.ServerCommandComplete), out.Bytes()[0])
}

func TestExecuteAfterParseWithSyncFlushesReadyForQuery(t *testing.T) {
	s, out := newTestSession(t, frame(protocol.ClientParse, parsePayload('j', "select 1")),
		frame(protocol.ClientExecute, executePayload(bindBlock(0, nil))),
		frame(protocol.ClientSync, nil),
	)

	require.NoError(t, s.Reader.TakeMessage())
	require.NoError(t, Parse(context.Background(), s))
	require.NoError(t, s.Writer.Flush())
	out.Reset()

	require.NoError(t, s.Reader.TakeMessage())
	require.NoError(t, Execute(context.Background(), s))

	// CommandComplete then ReadyForQuery should both have been flushed.
	require.Contains(t, out.String(), "")
	require.GreaterOrEqual(t, len(out.Bytes()), 2)
	require.Equal(t, byte(protocol.ServerCommandComplete), out.Bytes()[0])
	require.Equal(t, byte(protocol.ServerReady), out.Bytes()[5])

	// The peeked Sync was consumed by Execute; the reader has nothing left.
	err := s.Reader.TakeMessage()
	require.Error(t, err)
}

func TestExecuteInTxErrorRequiresRollbackShapedUnit(t *testing.T) {
	s, _ := newTestSession(t, frame(protocol.ClientParse, parsePayload('j', "select 1")),
		frame(protocol.ClientExecute, executePayload(bindBlock(0, nil))),
	)

	require.NoError(t, s.Reader.TakeMessage())
	require.NoError(t, Parse(context.Background(), s))

	s.View.OnSuccess(s.LastAnonCompiled, true, 1)
	s.View.OnError(s.LastAnonCompiled)
	require.True(t, s.View.InTxError())

	require.NoError(t, s.Reader.TakeMessage())
	err := Execute(context.Background(), s)
	require.Error(t, err)
}
