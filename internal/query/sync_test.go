package query

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/edgeql-io/edgewire/pkg/protocol"
)

func TestSyncWritesReadyForQuery(t *testing.T) {
	s, out := newTestSession(t, frame(protocol.ClientSync, nil))
	require.NoError(t, s.Reader.TakeMessage())

	require.NoError(t, Sync(context.Background(), s))
	require.Greater(t, out.Len(), 0)
	require.Equal(t, byte(protocol.ServerReady), out.Bytes()[0])
}
