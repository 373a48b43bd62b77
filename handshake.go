package edgewire

import (
	"context"
	"fmt"

	"github.com/edgeql-io/edgewire/codes"
	edgeerr "github.com/edgeql-io/edgewire/errors"
	"github.com/edgeql-io/edgewire/internal/backendsql"
	"github.com/edgeql-io/edgewire/internal/dbview"
	"github.com/edgeql-io/edgewire/internal/query"
	"github.com/edgeql-io/edgewire/pkg/protocol"
)

// initconSQL creates the two temporary tables the transaction coordinator
// recovers alias/config/savepoint state from (spec.md §4.3/§4.5), then seeds
// the default module alias.
const initconSQL = `
create temporary table _edgecon_state (
	name text not null,
	value text not null,
	kind text not null check (kind in ('alias', 'config')),
	unique (name, kind)
);
create temporary table _edgecon_current_savepoint (
	savepoint_id text not null,
	_sentinel int not null default -1 unique
);
insert into _edgecon_state (name, value, kind) values ('', 'default', 'alias');
`

// handshake performs spec.md §4.3: negotiate the protocol version, read the
// ClientHandshake message, open the backend SQL connection, run initcon, and
// emit the Auth/BackendKey/ParameterStatus/ReadyForQuery sequence.
func (c *Connection) handshake(ctx context.Context) (*query.Session, error) {
	version, err := c.reader.ReadVersion()
	if err != nil {
		return nil, err
	}
	if !version.Supported() {
		return nil, edgeerr.WithCode(
			fmt.Errorf("unsupported protocol version %d.%d", version.Major, version.Minor),
			codes.UnsupportedProtocolVersion,
		)
	}

	if err := c.reader.TakeMessage(); err != nil {
		return nil, err
	}
	if c.reader.GetMessageType() != protocol.ClientHandshake {
		return nil, edgeerr.WithCode(fmt.Errorf("expected ClientHandshake, got %s", c.reader.GetMessageType()), codes.BinaryProtocol)
	}

	creds, err := readHandshakeCredentials(c.reader)
	if err != nil {
		return nil, err
	}
	c.reader.FinishMessage()

	authHook := c.srv.auth
	if authHook == nil {
		authHook = noAuth
	}
	if err := authHook(ctx, creds); err != nil {
		return nil, err
	}

	backend, err := backendsql.Open(ctx, c.srv.dsn)
	if err != nil {
		return nil, err
	}

	view := dbview.New(backend.DBVersion())
	session := &query.Session{
		Reader:            c.reader,
		Writer:            c.writer,
		View:              view,
		Compiler:          c.srv.compiler,
		Backend:           backend,
		Metrics:           c.srv.metrics,
		QueryCacheEnabled: c.srv.queryCacheEnabled,
	}

	if err := backend.SimpleQuery(ctx, initconSQL, true, nil); err != nil {
		backend.Close()
		return nil, err
	}

	if err := writeAuthOK(c.writer); err != nil {
		return nil, err
	}

	c.writer.NewMessage(protocol.ServerBackendKey)
	c.writer.WriteInt32(int32(c.id))
	if err := c.writer.EndMessage(); err != nil {
		return nil, err
	}

	if c.srv.developerMode.Load() {
		c.writer.NewMessage(protocol.ServerParameterStatus)
		c.writer.WriteUTF8("pgaddr")
		c.writer.WriteUTF8(c.srv.dsn)
		if err := c.writer.EndMessage(); err != nil {
			return nil, err
		}
	}

	c.writer.NewMessage(protocol.ServerReady)
	c.writer.WriteByte(byte(protocol.ServerIdle))
	if err := c.writer.EndMessage(); err != nil {
		return nil, err
	}

	if err := c.writer.Flush(); err != nil {
		return nil, err
	}

	return session, nil
}

func readHandshakeCredentials(r interface {
	ReadUTF8() (string, error)
}) (handshakeCredentials, error) {
	user, err := r.ReadUTF8()
	if err != nil {
		return handshakeCredentials{}, err
	}

	password, err := r.ReadUTF8()
	if err != nil {
		return handshakeCredentials{}, err
	}

	database, err := r.ReadUTF8()
	if err != nil {
		return handshakeCredentials{}, err
	}

	return handshakeCredentials{user: user, password: password, database: database}, nil
}
