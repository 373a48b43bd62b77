package query

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/neilotoole/slogt"

	"github.com/edgeql-io/edgewire/internal/compiler"
	"github.com/edgeql-io/edgewire/internal/dbview"
	"github.com/edgeql-io/edgewire/pkg/buffer"
	"github.com/edgeql-io/edgewire/pkg/protocol"
)

// frame builds one client message frame: <type:u8><length:u32><payload>.
func frame(typ protocol.ClientMessage, payload []byte) []byte {
	var buf bytes.Buffer
	buf.WriteByte(byte(typ))

	var size [4]byte
	binary.BigEndian.PutUint32(size[:], uint32(len(payload)+4))
	buf.Write(size[:])
	buf.Write(payload)
	return buf.Bytes()
}

func u32(v uint32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return b[:]
}

func utf8Field(s string) []byte {
	return append(u32(uint32(len(s))), []byte(s)...)
}

func cstr(s string) []byte {
	return append([]byte(s), 0)
}

// newTestSession wires a Session against an in-memory framed message
// stream plus an in-memory output buffer, for exercising one handler call
// at a time.
func newTestSession(t *testing.T, frames ...[]byte) (*Session, *bytes.Buffer) {
	t.Helper()

	var in bytes.Buffer
	for _, f := range frames {
		in.Write(f)
	}

	var out bytes.Buffer

	s := &Session{
		Reader:            buffer.NewReader(slogt.New(t), &in, buffer.DefaultBufferSize),
		Writer:            buffer.NewWriter(slogt.New(t), &out),
		View:              dbview.New(1),
		Compiler:          compiler.NewReference(),
		Backend:           &fakeBackend{},
		QueryCacheEnabled: true,
	}

	return s, &out
}

// bindBlock builds a client bind-argument block: u32 len || u32 n || body.
func bindBlock(n uint32, body []byte) []byte {
	total := 4 + len(body)
	var out []byte
	out = append(out, u32(uint32(total))...)
	out = append(out, u32(n)...)
	out = append(out, body...)
	return out
}
