// Package query implements the query lifecycle operations of spec.md §4.4:
// parse, describe, execute (and its opportunistic variant), simple query,
// legacy graphql, and sync, plus the bind-argument recoder shared by execute
// and opportunistic execute. Grounded on the teacher's command.go dispatch functions,
// generalized from the Postgres extended-query protocol to this protocol's
// shapes.
package query

import (
	"encoding/binary"

	"github.com/edgeql-io/edgewire/pkg/buffer"
)

var oneFormatCodeBinary = [4]byte{0x00, 0x01, 0x00, 0x01}

// Recode transforms the client's bind-argument block into the framing the
// SQL backend expects, per spec.md §8 invariant 8: for any input
// `u32 len || u32 n || body`, the output is
// `0x00010001 || u16 n || body || 0x00010001`.
func Recode(input []byte) ([]byte, error) {
	r := &byteCursor{buf: input}

	// input u32 length; discarded, per spec.md §4.4.
	if _, err := r.take(4); err != nil {
		return nil, buffer.NewInsufficientData(len(r.buf))
	}

	argsnumBytes, err := r.take(4)
	if err != nil {
		return nil, buffer.NewInsufficientData(len(r.buf))
	}
	argsnum := binary.BigEndian.Uint32(argsnumBytes)

	body := r.buf

	out := make([]byte, 0, 4+2+len(body)+4)
	out = append(out, oneFormatCodeBinary[:]...)

	var argsnum16 [2]byte
	binary.BigEndian.PutUint16(argsnum16[:], uint16(argsnum))
	out = append(out, argsnum16[:]...)

	out = append(out, body...)
	out = append(out, oneFormatCodeBinary[:]...)

	return out, nil
}

type byteCursor struct {
	buf []byte
}

func (c *byteCursor) take(n int) ([]byte, error) {
	if len(c.buf) < n {
		return nil, buffer.NewInsufficientData(len(c.buf))
	}
	v := c.buf[:n]
	c.buf = c.buf[n:]
	return v, nil
}
