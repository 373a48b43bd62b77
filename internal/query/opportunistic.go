package query

import (
	"bytes"
	"context"

	"github.com/edgeql-io/edgewire/internal/compiler"
	"github.com/edgeql-io/edgewire/pkg/protocol"
)

// Opportunistic handles the 'O' OpportunisticExecute message, per spec.md
// §4.4.
func Opportunistic(ctx context.Context, s *Session) error {
	modeByte, err := s.Reader.ReadByte()
	if err != nil {
		return err
	}

	mode := protocol.OutputMode(modeByte)
	if !mode.Valid() {
		return newProtocolError("unsupported output mode")
	}

	eql, err := s.Reader.ReadNullStr()
	if err != nil {
		return err
	}
	if eql == "" {
		return newProtocolError("empty query")
	}

	if _, err := s.Reader.ReadInt32(); err != nil { // parse_flags, unused by the core
		return err
	}

	claimedInID, err := s.Reader.ReadBytes(16)
	if err != nil {
		return err
	}

	claimedOutID, err := s.Reader.ReadBytes(16)
	if err != nil {
		return err
	}

	bindArgs := s.Reader.ConsumeMessage()

	unit, cacheHit, err := s.resolveUnit(ctx, eql, mode.JSON(), compiler.StatementModeSingle)
	if err != nil {
		return err
	}

	if !cacheHit {
		if err := s.Backend.ParseExecute(ctx, unit, nil, false, false, false, nil); err != nil {
			return err
		}
		if unit.Cacheable {
			s.View.CachePut(cacheKey(eql, mode.JSON()), unit)
		}
	}
	s.LastAnonCompiled = unit

	if !bytes.Equal(claimedInID, unit.InTypeID[:]) || !bytes.Equal(claimedOutID, unit.OutTypeID[:]) {
		s.recordCompilerCall("describe-miss")
		return writeTypeDescribe(s, unit)
	}

	return executeCore(ctx, s, unit, bindArgs, true, unit.SQLHash != "")
}
