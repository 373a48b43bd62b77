package query

import (
	"context"

	"github.com/edgeql-io/edgewire/internal/backendsql"
	"github.com/edgeql-io/edgewire/internal/compiler"
	"github.com/edgeql-io/edgewire/pkg/protocol"
)

// Execute handles the 'E' Execute message, per spec.md §4.4.
func Execute(ctx context.Context, s *Session) error {
	stmtName, err := s.Reader.ReadUTF8()
	if err != nil {
		return err
	}
	if stmtName != "" {
		return newUnsupportedFeatureError("prepared statement names are not supported")
	}

	if s.LastAnonCompiled == nil {
		return newTypeSpecNotFoundError()
	}

	bindArgs := s.Reader.ConsumeMessage()

	return executeCore(ctx, s, s.LastAnonCompiled, bindArgs, false, false)
}

// executeCore implements spec.md §4.4's "Execute core", shared by Execute
// and Opportunistic-Execute.
func executeCore(ctx context.Context, s *Session, unit *compiler.QueryUnit, bindArgs []byte, parse bool, usePrepStmt bool) error {
	if s.View.InTxError() {
		if !unit.TxRollback && !unit.TxSavepointRollback {
			return newInTxError()
		}

		if err := s.Backend.SimpleQuery(ctx, string(firstStmt(unit)), true, nil); err != nil {
			return err
		}

		if unit.TxSavepointRollback {
			if err := recoverCurrentTxInfo(ctx, s); err != nil {
				return err
			}
		} else {
			s.View.AbortTx()
		}

		return writeCommandComplete(s)
	}

	bindData, err := Recode(bindArgs)
	if err != nil {
		return err
	}

	processSync, err := s.Reader.TakeMessageType(protocol.ClientSync)
	if err != nil {
		return err
	}

	s.View.Start(unit)

	sink := &backendsql.BufferRowSink{W: s.Writer}
	execErr := s.Backend.ParseExecute(ctx, unit, bindData, true, processSync, usePrepStmt, sink)
	if execErr != nil {
		s.View.OnError(unit)

		if s.View.InTransaction() && s.Backend.TxStatus() == backendsql.TxIdle {
			s.View.AbortTx()
			if err := recoverCurrentTxInfo(ctx, s); err != nil {
				return err
			}
		}

		if processSync {
			s.Reader.PutMessage()
		}

		return execErr
	}

	txStatus := s.Backend.TxStatus()
	s.View.OnSuccess(unit, txStatus == backendsql.TxInTrans, s.View.TxID())

	if err := writeCommandComplete(s); err != nil {
		return err
	}

	if processSync {
		if err := writeReadyForQuery(s); err != nil {
			return err
		}
		if err := s.Writer.Flush(); err != nil {
			return err
		}

		// pop the peeked Sync off the queue and discard its (empty) body.
		if err := s.Reader.TakeMessage(); err != nil {
			return err
		}
		s.Reader.FinishMessage()
	}

	return nil
}

func firstStmt(unit *compiler.QueryUnit) []byte {
	if len(unit.SQL) == 0 {
		return nil
	}
	return unit.SQL[0]
}

func writeCommandComplete(s *Session) error {
	s.Writer.NewMessage(protocol.ServerCommandComplete)
	return s.Writer.EndMessage()
}

// WriteReadyForQuery writes a ReadyForQuery message reflecting the session's
// current transaction status. Exported for the top-level loop's error
// dispatch (spec.md §4.2), which needs it outside of a query operation.
func WriteReadyForQuery(s *Session) error {
	return writeReadyForQuery(s)
}

func writeReadyForQuery(s *Session) error {
	status := protocol.ServerIdle
	if s.View.InTxError() {
		status = protocol.ServerInError
	} else if s.View.InTransaction() {
		status = protocol.ServerInTransaction
	}

	s.Writer.NewMessage(protocol.ServerReady)
	s.Writer.WriteByte(byte(status))
	return s.Writer.EndMessage()
}
