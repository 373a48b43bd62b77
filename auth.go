package edgewire

import (
	"context"
	"errors"

	"github.com/edgeql-io/edgewire/codes"
	edgeerr "github.com/edgeql-io/edgewire/errors"
	"github.com/edgeql-io/edgewire/pkg/buffer"
	"github.com/edgeql-io/edgewire/pkg/protocol"
)

// authCode is the integer carried in the 'R' Auth message.
type authCode int32

// authOK is the only authCode this core ever writes: credentials, when
// checked at all, arrive whole in the ClientHandshake message (spec.md
// §4.3) rather than through a separate challenge/response round-trip, so
// there is no non-OK auth message to send.
const authOK authCode = 0

// handshakeCredentials are the three fields carried by the ClientHandshake
// message, per spec.md §4.3.
type handshakeCredentials struct {
	user     string
	password string
	database string
}

// AuthHook validates the credentials presented during the handshake. The
// core ships no verification by default (spec.md §1's non-goal); returning
// a non-nil error aborts the connection before any backend SQL connection
// is opened.
type AuthHook func(ctx context.Context, creds handshakeCredentials) error

// noAuth is the default AuthHook: it accepts every connection without
// inspecting the presented credentials, mirroring the teacher's
// `srv.Auth == nil` branch.
func noAuth(ctx context.Context, creds handshakeCredentials) error {
	return nil
}

// ClearTextPassword builds an AuthHook that validates the password against
// the given function. Adapted from the teacher's identically named helper
// for operators who want real verification without writing their own hook.
func ClearTextPassword(validate func(username, password string) (bool, error)) AuthHook {
	return func(ctx context.Context, creds handshakeCredentials) error {
		valid, err := validate(creds.user, creds.password)
		if err != nil {
			return err
		}
		if !valid {
			return edgeerr.WithCode(errors.New("invalid username/password"), codes.InvalidPassword)
		}
		return nil
	}
}

func writeAuthOK(w *buffer.Writer) error {
	w.NewMessage(protocol.ServerAuth)
	w.WriteInt32(int32(authOK))
	return w.EndMessage()
}
