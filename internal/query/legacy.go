package query

import (
	"context"

	"github.com/edgeql-io/edgewire/internal/backendsql"
	"github.com/edgeql-io/edgewire/pkg/protocol"
)

// captureSink collects every row written to it in memory; used by Legacy,
// which sends only the first captured row rather than streaming rows
// straight to the client.
type captureSink struct {
	rows [][]byte
}

func (c *captureSink) WriteRow(values []byte) error {
	c.rows = append(c.rows, values)
	return nil
}

var _ backendsql.RowSink = (*captureSink)(nil)

// Legacy handles the 'L' Legacy message, per spec.md §4.4.
func Legacy(ctx context.Context, s *Session) error {
	lang, err := s.Reader.ReadByte()
	if err != nil {
		return err
	}
	if lang != 'g' {
		return newProtocolError("unsupported legacy query language")
	}

	gql, err := s.Reader.ReadNullStr()
	if err != nil {
		return err
	}

	if s.View.InTransaction() {
		return newTxErrorForLegacy()
	}

	s.recordCompilerCall("legacy")
	unit, err := s.Compiler.CompileGraphQL(ctx, s.View.DBVersion(), gql)
	if err != nil {
		return newQueryError(err)
	}

	sink := &captureSink{}
	s.View.Start(unit)
	if err := s.Backend.SimpleQuery(ctx, string(firstStmt(unit)), false, sink); err != nil {
		s.View.OnError(unit)
		return err
	}
	s.View.OnSuccess(unit, false, 0)

	var payload []byte
	if len(sink.rows) > 0 {
		payload = sink.rows[0]
	} else {
		payload = []byte("null")
	}

	s.Writer.NewMessage(protocol.ServerLegacyResult)
	s.Writer.WriteBytes(payload)
	if err := s.Writer.EndMessage(); err != nil {
		return err
	}

	return writeReadyForQueryAndFlush(s)
}

func newTxErrorForLegacy() error {
	return newTransactionError("legacy graphql queries are not supported inside a transaction")
}
