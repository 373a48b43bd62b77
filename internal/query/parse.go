package query

import (
	"context"

	"github.com/edgeql-io/edgewire/internal/compiler"
	"github.com/edgeql-io/edgewire/pkg/protocol"
)

// Parse handles the 'P' Parse message, per spec.md §4.4.
func Parse(ctx context.Context, s *Session) error {
	s.LastAnonCompiled = nil

	modeByte, err := s.Reader.ReadByte()
	if err != nil {
		return err
	}

	mode := protocol.OutputMode(modeByte)
	if !mode.Valid() {
		return newProtocolError("unsupported output mode")
	}

	stmtName, err := s.Reader.ReadUTF8()
	if err != nil {
		return err
	}
	if stmtName != "" {
		return newUnsupportedFeatureError("prepared statement names are not supported")
	}

	eql, err := s.Reader.ReadNullStr()
	if err != nil {
		return err
	}
	if eql == "" {
		return newProtocolError("empty query")
	}

	unit, cacheHit, err := s.resolveUnit(ctx, eql, mode.JSON(), compiler.StatementModeSingle)
	if err != nil {
		return err
	}

	if err := s.Backend.ParseExecute(ctx, unit, nil, false, false, false, nil); err != nil {
		return err
	}

	if !cacheHit && unit.Cacheable {
		s.View.CachePut(cacheKey(eql, mode.JSON()), unit)
	}
	s.LastAnonCompiled = unit

	return writeParseComplete(s, unit)
}

// resolveUnit implements the cache-then-compile resolution order shared by
// Parse and Opportunistic (spec.md §4.4 steps 1-4).
func (s *Session) resolveUnit(ctx context.Context, eql string, jsonMode bool, mode compiler.StatementMode) (unit *compiler.QueryUnit, cacheHit bool, err error) {
	key := cacheKey(eql, jsonMode)

	if s.QueryCacheEnabled {
		if cached, ok := s.View.CacheGet(key); ok {
			s.recordCacheHit()
			if s.View.InTxError() && !cached.TxRollback && !cached.TxSavepointRollback {
				return nil, true, newInTxError()
			}
			return cached, true, nil
		}
		s.recordCacheMiss()
	}

	if s.View.InTxError() {
		s.recordCompilerCall("rollback")
		unit, numRemain, err := s.Compiler.TryCompileRollback(ctx, s.View.DBVersion(), eql)
		if err != nil {
			return nil, false, newQueryError(err)
		}
		if numRemain > 0 {
			return nil, false, newInTxError()
		}
		return unit, false, nil
	}

	s.recordCompilerCall("parse")

	var units []*compiler.QueryUnit
	if s.View.InTransaction() {
		units, err = s.Compiler.CompileEQLInTx(ctx, s.View.TxID(), eql, jsonMode, mode)
	} else {
		aliases := aliasEntries(s.View.Aliases())
		config := configEntries(s.View.Config())
		units, err = s.Compiler.CompileEQL(ctx, s.View.DBVersion(), eql, aliases, config, jsonMode, mode)
	}
	if err != nil {
		return nil, false, newQueryError(err)
	}

	return units[0], false, nil
}

func (s *Session) recordCacheHit() {
	if s.Metrics != nil {
		s.Metrics.QueryCacheHit()
	}
}

func (s *Session) recordCacheMiss() {
	if s.Metrics != nil {
		s.Metrics.QueryCacheMiss()
	}
}

func (s *Session) recordCompilerCall(operation string) {
	if s.Metrics != nil {
		s.Metrics.CompilerCall(operation)
	}
}

func cacheKey(eql string, jsonMode bool) compiler.CacheKey {
	return compiler.CacheKey{Query: eql, JSON: jsonMode}
}

func aliasEntries(m map[string]string) []compiler.AliasEntry {
	out := make([]compiler.AliasEntry, 0, len(m))
	for k, v := range m {
		out = append(out, compiler.AliasEntry{Name: k, Value: v})
	}
	return out
}

func configEntries(m map[string]any) []compiler.ConfigEntry {
	out := make([]compiler.ConfigEntry, 0, len(m))
	for k, v := range m {
		out = append(out, compiler.ConfigEntry{Name: k, Value: v})
	}
	return out
}

func writeParseComplete(s *Session, unit *compiler.QueryUnit) error {
	var flags int32
	if unit.HasResult {
		flags |= 1
	}
	if unit.SingletonResult {
		flags |= 2
	}

	s.Writer.NewMessage(protocol.ServerParseComplete)
	s.Writer.WriteInt32(flags)
	s.Writer.WriteBytes(unit.InTypeID[:])
	s.Writer.WriteBytes(unit.OutTypeID[:])
	return s.Writer.EndMessage()
}
