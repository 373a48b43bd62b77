package buffer

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/neilotoole/slogt"
	"github.com/stretchr/testify/require"

	"github.com/edgeql-io/edgewire/pkg/protocol"
)

func frame(typ protocol.ClientMessage, payload []byte) []byte {
	var buf bytes.Buffer
	buf.WriteByte(byte(typ))

	var size [4]byte
	binary.BigEndian.PutUint32(size[:], uint32(len(payload)+4))
	buf.Write(size[:])
	buf.Write(payload)
	return buf.Bytes()
}

func TestNewReaderNil(t *testing.T) {
	reader := NewReader(slogt.New(t), nil, 0)
	require.Nil(t, reader)
}

func TestReaderTakeMessage(t *testing.T) {
	payload := append([]byte("John Doe"), 0)
	buf := bytes.NewBuffer(frame(protocol.ClientSimpleQuery, payload))

	reader := NewReader(slogt.New(t), buf, DefaultBufferSize)
	require.NoError(t, reader.TakeMessage())
	require.Equal(t, protocol.ClientSimpleQuery, reader.GetMessageType())

	str, err := reader.ReadNullStr()
	require.NoError(t, err)
	require.Equal(t, "John Doe", str)
}

func TestReaderTakeMessageTypePeek(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(frame(protocol.ClientParse, []byte("one")))
	buf.Write(frame(protocol.ClientSync, nil))

	reader := NewReader(slogt.New(t), &buf, DefaultBufferSize)

	ok, err := reader.TakeMessageType(protocol.ClientSync)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, reader.TakeMessage())
	require.Equal(t, protocol.ClientParse, reader.GetMessageType())

	require.NoError(t, reader.TakeMessage())
	require.Equal(t, protocol.ClientSync, reader.GetMessageType())
}

func TestReaderPutMessage(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(frame(protocol.ClientExecute, []byte("abc")))

	reader := NewReader(slogt.New(t), &buf, DefaultBufferSize)
	require.NoError(t, reader.TakeMessage())
	require.Equal(t, protocol.ClientExecute, reader.GetMessageType())

	reader.PutMessage()
	require.NoError(t, reader.TakeMessage())
	require.Equal(t, protocol.ClientExecute, reader.GetMessageType())

	b, err := reader.ReadBytes(3)
	require.NoError(t, err)
	require.Equal(t, []byte("abc"), b)
}

func TestReaderScalarFields(t *testing.T) {
	var payload bytes.Buffer
	payload.WriteByte(0x42)

	var i16 [2]byte
	binary.BigEndian.PutUint16(i16[:], 1000)
	payload.Write(i16[:])

	var i32 [4]byte
	binary.BigEndian.PutUint32(i32[:], 70000)
	payload.Write(i32[:])

	var i64 [8]byte
	binary.BigEndian.PutUint64(i64[:], 5_000_000_000)
	payload.Write(i64[:])

	buf := bytes.NewBuffer(frame(protocol.ClientParse, payload.Bytes()))
	reader := NewReader(slogt.New(t), buf, DefaultBufferSize)
	require.NoError(t, reader.TakeMessage())

	b, err := reader.ReadByte()
	require.NoError(t, err)
	require.Equal(t, byte(0x42), b)

	i16v, err := reader.ReadInt16()
	require.NoError(t, err)
	require.EqualValues(t, 1000, i16v)

	i32v, err := reader.ReadInt32()
	require.NoError(t, err)
	require.EqualValues(t, 70000, i32v)

	i64v, err := reader.ReadInt64()
	require.NoError(t, err)
	require.EqualValues(t, 5_000_000_000, i64v)
}

func TestReaderReadUTF8(t *testing.T) {
	payload := "hello world"
	var buf bytes.Buffer
	var length [4]byte
	binary.BigEndian.PutUint32(length[:], uint32(len(payload)))
	buf.Write(length[:])
	buf.WriteString(payload)

	framed := bytes.NewBuffer(frame(protocol.ClientParse, buf.Bytes()))
	reader := NewReader(slogt.New(t), framed, DefaultBufferSize)
	require.NoError(t, reader.TakeMessage())

	s, err := reader.ReadUTF8()
	require.NoError(t, err)
	require.Equal(t, payload, s)
}

func TestReaderMissingNulTerminator(t *testing.T) {
	buf := bytes.NewBuffer(frame(protocol.ClientParse, []byte("no terminator")))
	reader := NewReader(slogt.New(t), buf, DefaultBufferSize)
	require.NoError(t, reader.TakeMessage())

	_, err := reader.ReadNullStr()
	require.True(t, errors.Is(err, ErrMissingNulTerminator))
}

func TestReaderInsufficientData(t *testing.T) {
	buf := bytes.NewBuffer(frame(protocol.ClientParse, []byte{0x01}))
	reader := NewReader(slogt.New(t), buf, DefaultBufferSize)
	require.NoError(t, reader.TakeMessage())

	_, err := reader.ReadInt32()
	require.True(t, errors.Is(err, ErrInsufficientData))
}

func TestReaderMessageSizeExceeded(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteByte(byte(protocol.ClientParse))

	var size [4]byte
	binary.BigEndian.PutUint32(size[:], 1<<30)
	buf.Write(size[:])

	reader := NewReader(slogt.New(t), &buf, 16)
	err := reader.TakeMessage()
	require.Error(t, err)

	_, ok := UnwrapMessageSizeExceeded(err)
	require.True(t, ok)
}
