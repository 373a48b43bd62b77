package buffer

import (
	"bytes"
	"encoding/binary"
	"io"
	"log/slog"

	"github.com/edgeql-io/edgewire/pkg/protocol"
)

// FlushThreshold is the aggregate buffered size at which Writer auto-flushes
// to the transport, per spec.md §4.1's write-buffering discipline.
const FlushThreshold = 100_000

// Writer accumulates whole protocol messages into an aggregate buffer and
// flushes them to the underlying transport either explicitly or once the
// aggregate crosses FlushThreshold. Messages are only ever observed by a
// client as complete frames; EndMessage never writes a partial message.
type Writer struct {
	io.Writer
	logger *slog.Logger
	agg    bytes.Buffer // messages pending flush
	frame  bytes.Buffer // message currently being built
	putbuf [4]byte
	err    error
}

// NewWriter constructs a new Writer for the given transport.
func NewWriter(logger *slog.Logger, w io.Writer) *Writer {
	return &Writer{
		logger: logger,
		Writer: w,
	}
}

// NewMessage starts building a new message of the given type. The message
// type byte and reserved length bytes are written to the in-progress frame.
func (w *Writer) NewMessage(t protocol.ServerMessage) {
	w.frame.Reset()
	w.err = nil
	w.frame.WriteByte(byte(t))
	w.frame.Write(w.putbuf[:4]) // reserved length
}

// WriteByte appends a single byte to the current message.
func (w *Writer) WriteByte(b byte) {
	if w.err != nil {
		return
	}

	w.err = w.frame.WriteByte(b)
}

// WriteInt16 appends a big-endian int16 to the current message.
func (w *Writer) WriteInt16(v int16) {
	if w.err != nil {
		return
	}

	var b [2]byte
	binary.BigEndian.PutUint16(b[:], uint16(v))
	_, w.err = w.frame.Write(b[:])
}

// WriteUint16 appends a big-endian uint16 to the current message.
func (w *Writer) WriteUint16(v uint16) {
	if w.err != nil {
		return
	}

	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	_, w.err = w.frame.Write(b[:])
}

// WriteInt32 appends a big-endian int32 to the current message.
func (w *Writer) WriteInt32(v int32) {
	if w.err != nil {
		return
	}

	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(v))
	_, w.err = w.frame.Write(b[:])
}

// WriteUint32 appends a big-endian uint32 to the current message.
func (w *Writer) WriteUint32(v uint32) {
	if w.err != nil {
		return
	}

	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	_, w.err = w.frame.Write(b[:])
}

// WriteInt64 appends a big-endian int64 to the current message.
func (w *Writer) WriteInt64(v int64) {
	if w.err != nil {
		return
	}

	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(v))
	_, w.err = w.frame.Write(b[:])
}

// WriteBytes appends raw bytes to the current message.
func (w *Writer) WriteBytes(b []byte) {
	if w.err != nil {
		return
	}

	_, w.err = w.frame.Write(b)
}

// WriteUTF8 appends a u32-length-prefixed UTF-8 string to the current
// message, per the encoding used throughout spec.md §6.
func (w *Writer) WriteUTF8(s string) {
	if w.err != nil {
		return
	}

	w.WriteInt32(int32(len(s)))
	if w.err != nil {
		return
	}

	_, w.err = w.frame.WriteString(s)
}

// WriteCString appends a null-terminated string to the current message.
func (w *Writer) WriteCString(s string) {
	if w.err != nil {
		return
	}

	if _, w.err = w.frame.WriteString(s); w.err != nil {
		return
	}

	w.err = w.frame.WriteByte(0)
}

// Error returns the first error encountered while building the current
// message, if any.
func (w *Writer) Error() error {
	return w.err
}

// EndMessage finalizes the length prefix of the current message and appends
// it to the aggregate buffer, auto-flushing once the aggregate crosses
// FlushThreshold.
func (w *Writer) EndMessage() error {
	if w.err != nil {
		defer w.frame.Reset()
		return w.err
	}

	b := w.frame.Bytes()
	length := uint32(w.frame.Len() - 1) // everything after the type byte
	binary.BigEndian.PutUint32(b[1:5], length)

	w.logger.Debug("-> queueing message", slog.String("type", protocol.ServerMessage(b[0]).String()))

	w.agg.Write(b)
	w.frame.Reset()

	if w.agg.Len() >= FlushThreshold {
		return w.Flush()
	}

	return nil
}

// Flush writes any aggregated messages to the underlying transport.
func (w *Writer) Flush() error {
	if w.agg.Len() == 0 {
		return nil
	}

	defer w.agg.Reset()
	_, err := w.Write(w.agg.Bytes())
	return err
}

// Len returns the number of bytes currently aggregated but not yet flushed.
func (w *Writer) Len() int {
	return w.agg.Len()
}
