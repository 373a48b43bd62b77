package edgewire

import (
	"context"
	"errors"

	"github.com/edgeql-io/edgewire/codes"
	edgeerr "github.com/edgeql-io/edgewire/errors"
	"github.com/edgeql-io/edgewire/internal/backendsql"
	"github.com/edgeql-io/edgewire/internal/compiler"
	"github.com/edgeql-io/edgewire/pkg/buffer"
	"github.com/edgeql-io/edgewire/pkg/protocol"
)

// writeError implements spec.md §4.6's write_error: translate err into a
// wire ErrorResponse, asking the compiler to interpret backend-originated
// errors first. Adapted from the teacher's error.go, trading the Postgres
// SQLSTATE field set for this protocol's flat (code, message, attrs) shape.
func writeError(ctx context.Context, comp compiler.Compiler, dbVersion uint64, w *buffer.Writer, err error) error {
	code := uint32(codes.Internal)
	message := "internal server error"
	var attrs map[byte]string

	var backendErr *backendsql.BackendError
	switch {
	case errors.As(err, &backendErr):
		interpreted, ierr := comp.InterpretBackendError(ctx, dbVersion, backendErr.Fields())
		if ierr != nil || interpreted == nil {
			break
		}
		code = interpreted.Code
		message = interpreted.Message
		attrs = interpreted.Attrs
	case err != nil:
		flat := edgeerr.Flatten(err)
		code = uint32(flat.Code)
		message = flat.Message
	}

	w.NewMessage(protocol.ServerErrorResponse)
	w.WriteUint32(code)
	w.WriteUTF8(message)

	for k, v := range attrs {
		if v == "" {
			continue
		}
		w.WriteByte(k)
		w.WriteUTF8(v)
	}

	w.WriteByte(0x00)
	return w.EndMessage()
}
