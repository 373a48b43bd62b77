package query

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/edgeql-io/edgewire/pkg/protocol"
)

func legacyPayload(lang byte, gql string) []byte {
	var payload []byte
	payload = append(payload, lang)
	payload = append(payload, cstr(gql)...)
	return payload
}

func TestLegacyRejectsUnsupportedLanguage(t *testing.T) {
	s, _ := newTestSession(t, frame(protocol.ClientLegacy, legacyPayload('x', "{ user }")))
	require.NoError(t, s.Reader.TakeMessage())

	err := Legacy(context.Background(), s)
	require.Error(t, err)
}

func TestLegacyRejectsInsideTransaction(t *testing.T) {
	s, _ := newTestSession(t, frame(protocol.ClientLegacy, legacyPayload('g', "{ user }")))
	require.NoError(t, s.Reader.TakeMessage())

	s.View.OnSuccess(nil, true, 1)
	require.True(t, s.View.InTransaction())

	err := Legacy(context.Background(), s)
	require.Error(t, err)
}

func TestLegacySuccessWritesLegacyResult(t *testing.T) {
	s, out := newTestSession(t, frame(protocol.ClientLegacy, legacyPayload('g', "{ user }")))
	require.NoError(t, s.Reader.TakeMessage())

	require.NoError(t, Legacy(context.Background(), s))
	require.Greater(t, out.Len(), 0)
	require.Equal(t, byte(protocol.ServerLegacyResult), out.Bytes()[0])
}
