package buffer

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"io"
	"log/slog"
	"unsafe"

	"github.com/edgeql-io/edgewire/pkg/protocol"
)

// DefaultBufferSize represents the default buffer size whenever the buffer
// size is not set or a negative value is presented.
const DefaultBufferSize = 1 << 24 // 16777216 bytes

// BufferedReader extends io.Reader with the convenience methods the reader
// needs from its underlying transport.
type BufferedReader interface {
	io.Reader
	ReadByte() (byte, error)
}

// pending holds a fully-read message that has been pushed back (or peeked)
// ahead of the cursor, per spec.md §4.1's put_message/take_message_type.
type pending struct {
	typ  protocol.ClientMessage
	body []byte
}

// Reader turns a byte stream into a sequence of whole messages. It is the
// framing layer of spec.md §4.1, grounded on the teacher's pkg/buffer.Reader
// and extended with message peek/putback so the query lifecycle can look
// ahead for a trailing Sync (spec.md §9).
type Reader struct {
	logger         *slog.Logger
	buf            BufferedReader
	MaxMessageSize int
	header         [4]byte

	queue []pending // messages read ahead of the cursor, oldest first
	typ   protocol.ClientMessage
	Msg   []byte // unread remainder of the current message
}

// NewReader constructs a new Reader for the given io.Reader.
func NewReader(logger *slog.Logger, r io.Reader, bufferSize int) *Reader {
	if r == nil {
		return nil
	}

	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}

	return &Reader{
		logger:         logger,
		buf:            bufio.NewReaderSize(r, bufferSize),
		MaxMessageSize: bufferSize,
	}
}

// TakeMessage positions the cursor at the next full message, blocking on the
// underlying transport if none is queued yet. It returns an error only when
// reading from the transport fails; unlike the original event-loop based
// implementation this call itself is the suspension point (see SPEC_FULL.md
// §5's note on cooperative suspension).
func (r *Reader) TakeMessage() error {
	if len(r.queue) > 0 {
		next := r.queue[0]
		r.queue = r.queue[1:]
		r.typ = next.typ
		r.Msg = next.body
		return nil
	}

	typ, body, err := r.readMessage()
	if err != nil {
		return err
	}

	r.typ = typ
	r.Msg = body
	return nil
}

// TakeMessageType peeks at the next queued message without consuming it,
// reading ahead from the transport if nothing is queued yet. It returns true
// iff the next message has the given type; at end of stream it returns false.
func (r *Reader) TakeMessageType(t protocol.ClientMessage) (bool, error) {
	if len(r.queue) == 0 {
		typ, body, err := r.readMessage()
		if err == io.EOF {
			return false, nil
		}
		if err != nil {
			return false, err
		}

		r.queue = append(r.queue, pending{typ: typ, body: body})
	}

	return r.queue[0].typ == t, nil
}

// PutMessage unreads the current message, pushing it back to the front of
// the queue so the next TakeMessage call returns it again.
func (r *Reader) PutMessage() {
	r.queue = append([]pending{{typ: r.typ, body: r.Msg}}, r.queue...)
	r.typ = 0
	r.Msg = nil
}

// GetMessageType returns the type byte of the message currently positioned
// under the cursor.
func (r *Reader) GetMessageType() protocol.ClientMessage {
	return r.typ
}

// ConsumeMessage returns and discards the unread remainder of the current
// message.
func (r *Reader) ConsumeMessage() []byte {
	rest := r.Msg
	r.Msg = nil
	return rest
}

// FinishMessage discards the unread remainder of the current message.
func (r *Reader) FinishMessage() {
	r.Msg = nil
}

// DiscardMessage discards the unread remainder of the current message. It is
// semantically identical to FinishMessage; both names are kept because the
// spec uses them in different contexts (resync loop vs. normal completion).
func (r *Reader) DiscardMessage() {
	r.Msg = nil
}

// readMessage reads one <type:u8><length:u32><payload> frame from the
// underlying transport.
func (r *Reader) readMessage() (protocol.ClientMessage, []byte, error) {
	typByte, err := r.buf.ReadByte()
	if err != nil {
		return 0, nil, err
	}

	n, err := io.ReadFull(r.buf, r.header[:])
	if err != nil {
		return 0, nil, err
	}

	size := int(binary.BigEndian.Uint32(r.header[:])) - 4
	if size < 0 || size > r.MaxMessageSize {
		return 0, nil, NewMessageSizeExceeded(r.MaxMessageSize, size)
	}

	body := make([]byte, size)
	if _, err := io.ReadFull(r.buf, body); err != nil {
		return 0, nil, err
	}

	_ = n
	return protocol.ClientMessage(typByte), body, nil
}

// ReadVersion reads the 4-byte (major:i16, minor:i16) protocol version that
// precedes the typed message stream, per spec.md §4.3. Unlike every other
// field on the wire this one carries no preceding type byte or length
// prefix, so it is read directly off the transport rather than through the
// current message's Msg buffer.
func (r *Reader) ReadVersion() (protocol.Version, error) {
	var raw [4]byte
	if _, err := io.ReadFull(r.buf, raw[:]); err != nil {
		return protocol.Version{}, err
	}

	return protocol.Version{
		Major: int16(binary.BigEndian.Uint16(raw[:2])),
		Minor: int16(binary.BigEndian.Uint16(raw[2:])),
	}, nil
}

// ReadByte reads a single byte from the current message.
func (r *Reader) ReadByte() (byte, error) {
	if len(r.Msg) < 1 {
		return 0, NewInsufficientData(len(r.Msg))
	}

	b := r.Msg[0]
	r.Msg = r.Msg[1:]
	return b, nil
}

// ReadInt16 reads a big-endian int16 from the current message.
func (r *Reader) ReadInt16() (int16, error) {
	if len(r.Msg) < 2 {
		return 0, NewInsufficientData(len(r.Msg))
	}

	v := int16(binary.BigEndian.Uint16(r.Msg[:2]))
	r.Msg = r.Msg[2:]
	return v, nil
}

// ReadInt32 reads a big-endian int32 from the current message.
func (r *Reader) ReadInt32() (int32, error) {
	if len(r.Msg) < 4 {
		return 0, NewInsufficientData(len(r.Msg))
	}

	v := int32(binary.BigEndian.Uint32(r.Msg[:4]))
	r.Msg = r.Msg[4:]
	return v, nil
}

// ReadInt64 reads a big-endian int64 from the current message.
func (r *Reader) ReadInt64() (int64, error) {
	if len(r.Msg) < 8 {
		return 0, NewInsufficientData(len(r.Msg))
	}

	v := int64(binary.BigEndian.Uint64(r.Msg[:8]))
	r.Msg = r.Msg[8:]
	return v, nil
}

// ReadBytes returns the next n bytes of the current message.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	if n < 0 {
		return nil, nil
	}

	if len(r.Msg) < n {
		return nil, NewInsufficientData(len(r.Msg))
	}

	v := r.Msg[:n]
	r.Msg = r.Msg[n:]
	return v, nil
}

// ReadUTF8 reads a u32-length-prefixed UTF-8 string.
func (r *Reader) ReadUTF8() (string, error) {
	n, err := r.ReadUint32()
	if err != nil {
		return "", err
	}

	b, err := r.ReadBytes(int(n))
	if err != nil {
		return "", err
	}

	return string(b), nil
}

// ReadNullStr reads a null-terminated byte string.
func (r *Reader) ReadNullStr() (string, error) {
	pos := bytes.IndexByte(r.Msg, 0)
	if pos == -1 {
		return "", NewMissingNulTerminator()
	}

	// conversion without copying; safe since the read buffer is never reused
	// once a message has been dispatched to its handler.
	s := r.Msg[:pos]
	r.Msg = r.Msg[pos+1:]
	return *(*string)(unsafe.Pointer(&s)), nil
}

// ReadUint16 reads a big-endian uint16 from the current message.
func (r *Reader) ReadUint16() (uint16, error) {
	if len(r.Msg) < 2 {
		return 0, NewInsufficientData(len(r.Msg))
	}

	v := binary.BigEndian.Uint16(r.Msg[:2])
	r.Msg = r.Msg[2:]
	return v, nil
}

// ReadUint32 reads a big-endian uint32 from the current message.
func (r *Reader) ReadUint32() (uint32, error) {
	if len(r.Msg) < 4 {
		return 0, NewInsufficientData(len(r.Msg))
	}

	v := binary.BigEndian.Uint32(r.Msg[:4])
	r.Msg = r.Msg[4:]
	return v, nil
}
