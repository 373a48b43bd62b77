package query

import (
	"context"

	"github.com/edgeql-io/edgewire/internal/backendsql"
	"github.com/edgeql-io/edgewire/internal/compiler"
)

// SimpleQuery handles the 'Q' SimpleQuery message, per spec.md §4.4.
func SimpleQuery(ctx context.Context, s *Session) error {
	eql, err := s.Reader.ReadNullStr()
	if err != nil {
		return err
	}
	if eql == "" {
		return newProtocolError("empty query")
	}

	mode := compiler.StatementModeAll

	if s.View.InTxError() {
		done, err := recoverScriptError(ctx, s, eql)
		if err != nil {
			return err
		}
		if done {
			if err := writeCommandComplete(s); err != nil {
				return err
			}
			return writeReadyForQueryAndFlush(s)
		}
		mode = compiler.StatementModeSkipFirst
	}

	s.recordCompilerCall("simple")

	var units []*compiler.QueryUnit
	if s.View.InTransaction() {
		units, err = s.Compiler.CompileEQLInTx(ctx, s.View.TxID(), eql, false, mode)
	} else {
		aliases := aliasEntries(s.View.Aliases())
		config := configEntries(s.View.Config())
		units, err = s.Compiler.CompileEQL(ctx, s.View.DBVersion(), eql, aliases, config, false, mode)
	}
	if err != nil {
		return newQueryError(err)
	}

	for _, unit := range units {
		s.View.Start(unit)

		if err := s.Backend.SimpleQuery(ctx, string(firstStmt(unit)), true, nil); err != nil {
			s.View.OnError(unit)

			if s.View.InTransaction() && s.Backend.TxStatus() == backendsql.TxIdle {
				s.View.AbortTx()
				if rerr := recoverCurrentTxInfo(ctx, s); rerr != nil {
					return rerr
				}
			}

			return err
		}

		s.View.OnSuccess(unit, s.Backend.TxStatus() == backendsql.TxInTrans, s.View.TxID())
	}

	if err := writeCommandComplete(s); err != nil {
		return err
	}

	return writeReadyForQueryAndFlush(s)
}

// recoverScriptError implements spec.md §4.4's recover_script_error: compile
// a rollback via TryCompileRollback, run its SQL, then either recover via
// savepoint or abort the transaction outright. It reports done=true when
// eql was exactly the rollback statement.
func recoverScriptError(ctx context.Context, s *Session, eql string) (done bool, err error) {
	s.recordCompilerCall("rollback")
	unit, numRemain, err := s.Compiler.TryCompileRollback(ctx, s.View.DBVersion(), eql)
	if err != nil {
		return false, newQueryError(err)
	}

	if err := s.Backend.SimpleQuery(ctx, string(firstStmt(unit)), true, nil); err != nil {
		return false, err
	}

	if unit.TxSavepointRollback {
		if err := recoverCurrentTxInfo(ctx, s); err != nil {
			return false, err
		}
	} else {
		s.View.AbortTx()
	}

	return numRemain == 0, nil
}

func writeReadyForQueryAndFlush(s *Session) error {
	if err := writeReadyForQuery(s); err != nil {
		return err
	}
	return s.Writer.Flush()
}
