package edgewire

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/neilotoole/slogt"
	"github.com/stretchr/testify/require"

	"github.com/edgeql-io/edgewire/codes"
	edgeerr "github.com/edgeql-io/edgewire/errors"
	"github.com/edgeql-io/edgewire/internal/backendsql"
	"github.com/edgeql-io/edgewire/internal/compiler"
	"github.com/edgeql-io/edgewire/pkg/buffer"
)

func newTestWriter(t *testing.T) (*buffer.Writer, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	return buffer.NewWriter(slogt.New(t), &out), &out
}

func TestWriteErrorPlainError(t *testing.T) {
	w, out := newTestWriter(t)

	err := edgeerr.WithCode(errors.New("boom"), codes.QueryError)
	require.NoError(t, writeError(context.Background(), compiler.NewReference(), 1, w, err))
	require.NoError(t, w.Flush())

	require.NotZero(t, out.Len())
	require.Equal(t, byte('E'), out.Bytes()[0])
}

func TestWriteErrorDefaultsToInternal(t *testing.T) {
	w, out := newTestWriter(t)

	require.NoError(t, writeError(context.Background(), compiler.NewReference(), 1, w, errors.New("plain")))
	require.NoError(t, w.Flush())
	require.NotZero(t, out.Len())
	require.Equal(t, uint32(codes.Internal), binary.BigEndian.Uint32(out.Bytes()[5:9]))
}

func TestWriteErrorInterpretsBackendError(t *testing.T) {
	w, out := newTestWriter(t)

	backendErr := &backendsql.BackendError{Underlying: errors.New("duplicate key value")}
	require.NoError(t, writeError(context.Background(), compiler.NewReference(), 1, w, backendErr))
	require.NoError(t, w.Flush())
	require.NotZero(t, out.Len())
}
