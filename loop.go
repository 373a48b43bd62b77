package edgewire

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/edgeql-io/edgewire/codes"
	edgeerr "github.com/edgeql-io/edgewire/errors"
	"github.com/edgeql-io/edgewire/internal/query"
	"github.com/edgeql-io/edgewire/pkg/protocol"
)

// loop implements spec.md §4.2: read one message at a time and dispatch on
// its type byte, until a fatal I/O error, client disconnect, or
// cancellation. Exactly one handler runs at a time (spec.md §5).
func (c *Connection) loop(ctx context.Context) error {
	for {
		if err := c.reader.TakeMessage(); err != nil {
			if isDisconnect(err) {
				return nil
			}
			return err
		}

		err := c.dispatch(ctx)
		if err == nil {
			continue
		}

		if isDisconnect(err) || errors.Is(err, context.Canceled) {
			return err
		}

		if herr := c.handleError(ctx, err); herr != nil {
			return herr
		}
	}
}

func isDisconnect(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed)
}

// dispatch runs the handler for the message currently under the reader's
// cursor, per spec.md §4.2's dispatch table.
func (c *Connection) dispatch(ctx context.Context) error {
	typ := c.reader.GetMessageType()
	if m := c.srv.metrics; m != nil {
		m.MessageReceived(byte(typ))
	}

	var op string
	switch typ {
	case protocol.ClientParse:
		op = "parse"
	case protocol.ClientDescribe:
		op = "describe"
	case protocol.ClientExecute:
		op = "execute"
	case protocol.ClientOpportunisticExecute:
		op = "opportunistic"
	case protocol.ClientSimpleQuery:
		op = "simple_query"
	case protocol.ClientLegacy:
		op = "legacy"
	}
	if op != "" {
		if m := c.srv.metrics; m != nil {
			start := time.Now()
			defer func() { m.QueryDuration(op, time.Since(start)) }()
		}
	}

	switch typ {
	case protocol.ClientParse:
		return query.Parse(ctx, c.session)
	case protocol.ClientDescribe:
		return query.Describe(ctx, c.session)
	case protocol.ClientExecute:
		return query.Execute(ctx, c.session)
	case protocol.ClientOpportunisticExecute:
		return query.Opportunistic(ctx, c.session)
	case protocol.ClientSimpleQuery:
		return query.SimpleQuery(ctx, c.session)
	case protocol.ClientSync:
		return query.Sync(ctx, c.session)
	case protocol.ClientLegacy:
		return query.Legacy(ctx, c.session)
	case protocol.ClientFlush:
		c.reader.FinishMessage()
		return c.writer.Flush()
	default:
		c.reader.FinishMessage()
		return edgeerr.WithCode(fmt.Errorf("unknown message type %q", byte(typ)), codes.BinaryProtocol)
	}
}

// handleError implements spec.md §4.2's error dispatch: mark the dbview
// tx-error, finish the failed message, write the error, then either emit an
// implicit sync (Q/L) or resynchronize to the next client Sync.
func (c *Connection) handleError(ctx context.Context, err error) error {
	typ := c.reader.GetMessageType()

	wasInTx := c.session.View.InTransaction()
	c.session.View.OnError(nil)
	c.reader.FinishMessage()

	if wasInTx && c.session.View.InTxError() {
		if m := c.srv.metrics; m != nil {
			m.InTxError()
		}
	}

	if werr := writeError(ctx, c.session.Compiler, c.session.View.DBVersion(), c.session.Writer, err); werr != nil {
		return werr
	}

	flushSyncOnError := typ == protocol.ClientSimpleQuery || typ == protocol.ClientLegacy
	if flushSyncOnError {
		if werr := query.WriteReadyForQuery(c.session); werr != nil {
			return werr
		}
		return c.session.Writer.Flush()
	}

	return c.recoverFromError(ctx)
}

// recoverFromError discards messages until a Sync is observed, then hands
// it to query.Sync, which writes the ReadyForQuery the client is waiting
// for.
func (c *Connection) recoverFromError(ctx context.Context) error {
	for {
		if err := c.reader.TakeMessage(); err != nil {
			return err
		}

		if c.reader.GetMessageType() == protocol.ClientSync {
			return query.Sync(ctx, c.session)
		}

		c.reader.FinishMessage()
	}
}
