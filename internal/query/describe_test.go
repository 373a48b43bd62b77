package query

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/edgeql-io/edgewire/pkg/protocol"
)

func describePayload(kind byte, stmtName string) []byte {
	var payload []byte
	payload = append(payload, kind)
	payload = append(payload, utf8Field(stmtName)...)
	return payload
}

func TestDescribeWithoutPriorParseFails(t *testing.T) {
	s, _ := newTestSession(t, frame(protocol.ClientDescribe, describePayload('T', "")))
	require.NoError(t, s.Reader.TakeMessage())

	err := Describe(context.Background(), s)
	require.Error(t, err)
}

func TestDescribeAfterParseSucceeds(t *testing.T) {
	s, out := newTestSession(t, frame(protocol.ClientParse, parsePayload('j', "select 1")),
		frame(protocol.ClientDescribe, describePayload('T', "")),
	)

	require.NoError(t, s.Reader.TakeMessage())
	require.NoError(t, Parse(context.Background(), s))
	require.NoError(t, s.Writer.Flush())
	out.Reset()

	require.NoError(t, s.Reader.TakeMessage())
	require.NoError(t, Describe(context.Background(), s))
	require.NoError(t, s.Writer.Flush())
	require.Greater(t, out.Len(), 0)
	require.Equal(t, byte(protocol.ServerTypeDescribe), out.Bytes()[0])
}

func TestDescribeRejectsUnsupportedKind(t *testing.T) {
	s, _ := newTestSession(t, frame(protocol.ClientDescribe, describePayload('X', "")))
	require.NoError(t, s.Reader.TakeMessage())

	err := Describe(context.Background(), s)
	require.Error(t, err)
}
