// Package typedesc implements the type-description byte encoding of
// spec.md §6. The core connection handler never parses this format — it
// treats in_type_data/out_type_data as opaque bytes produced by the
// compiler and framed verbatim into TypeDescribe messages. This package
// exists so the reference in-process compiler (internal/compiler) and
// tests can construct and inspect well-formed descriptors.
package typedesc

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
)

// Tag identifies the shape of a single type-descriptor element.
type Tag byte

const (
	TagSet        Tag = 0
	TagShape      Tag = 1
	TagBaseScalar Tag = 2
	TagScalar     Tag = 3
	TagTuple      Tag = 4
	TagNamedTuple Tag = 5
	TagArray      Tag = 6
	TagEnum       Tag = 7
)

// annotation tags occupy 0xF0..0xFF; unknown tags must be ignored by
// clients, so this package never emits one above TagAnnotationBase
// without also knowing how to skip it.
const TagAnnotationBase Tag = 0xF0

// ShapeFlag bits carried in shape element entries.
type ShapeFlag uint8

const (
	ShapeImplicit    ShapeFlag = 1
	ShapeLinkProperty ShapeFlag = 2
	ShapeLink        ShapeFlag = 4
)

// Well-known IDs, per spec.md §6.
var (
	AnyType   = wellKnown(0x01)
	AnyTuple  = wellKnown(0x02)
	StdModule = wellKnown(0xF0)
	EmptyTuple = wellKnown(0xFF)
)

func wellKnown(trailing byte) uuid.UUID {
	var id uuid.UUID
	id[len(id)-1] = trailing
	return id
}

// ShapeElement describes one field of a Shape descriptor.
type ShapeElement struct {
	Flags ShapeFlag
	Name  string
	Pos   uint16
}

// ArrayDim is one dimension of an Array descriptor; -1 means unbounded.
type ArrayDim int32

// Encoder builds a type-descriptor byte stream by appending elements in
// dependency order (referenced types must be encoded before the elements
// that reference them by position).
type Encoder struct {
	buf bytes.Buffer
	n   uint16
}

// NewEncoder returns an empty Encoder.
func NewEncoder() *Encoder {
	return &Encoder{}
}

// Bytes returns the encoded descriptor stream built so far.
func (e *Encoder) Bytes() []byte {
	return e.buf.Bytes()
}

// Len returns the number of elements appended so far; useful for callers
// computing the `pos` of a type relative to ones already encoded.
func (e *Encoder) Len() uint16 {
	return e.n
}

func (e *Encoder) writeUUID(id uuid.UUID) {
	e.buf.Write(id[:])
}

func (e *Encoder) writeUint16(v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	e.buf.Write(b[:])
}

func (e *Encoder) writeInt32(v int32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(v))
	e.buf.Write(b[:])
}

func (e *Encoder) writeShortStr(s string) {
	if len(s) > 0xFFFF {
		panic("typedesc: string exceeds u16 length")
	}
	e.writeUint16(uint16(len(s)))
	e.buf.WriteString(s)
}

// Set appends a Set element: `<0> <uuid> <pos:u16>`.
func (e *Encoder) Set(id uuid.UUID, pos uint16) {
	e.buf.WriteByte(byte(TagSet))
	e.writeUUID(id)
	e.writeUint16(pos)
	e.n++
}

// Shape appends a Shape element:
// `<1> <uuid> <count:u16> {flags:u8, name:utf8-short, pos:u16}×count`.
func (e *Encoder) Shape(id uuid.UUID, elements []ShapeElement) {
	e.buf.WriteByte(byte(TagShape))
	e.writeUUID(id)
	e.writeUint16(uint16(len(elements)))
	for _, el := range elements {
		e.buf.WriteByte(byte(el.Flags))
		e.writeShortStr(el.Name)
		e.writeUint16(el.Pos)
	}
	e.n++
}

// BaseScalar appends a BaseScalar element: `<2> <uuid>`.
func (e *Encoder) BaseScalar(id uuid.UUID) {
	e.buf.WriteByte(byte(TagBaseScalar))
	e.writeUUID(id)
	e.n++
}

// Scalar appends a Scalar element: `<3> <uuid> <pos:u16>`.
func (e *Encoder) Scalar(id uuid.UUID, pos uint16) {
	e.buf.WriteByte(byte(TagScalar))
	e.writeUUID(id)
	e.writeUint16(pos)
	e.n++
}

// Tuple appends a Tuple element: `<4> <uuid> <count:u16> {pos:u16}×count`.
func (e *Encoder) Tuple(id uuid.UUID, positions []uint16) {
	e.buf.WriteByte(byte(TagTuple))
	e.writeUUID(id)
	e.writeUint16(uint16(len(positions)))
	for _, pos := range positions {
		e.writeUint16(pos)
	}
	e.n++
}

// NamedTupleElement is one field of a NamedTuple descriptor.
type NamedTupleElement struct {
	Name string
	Pos  uint16
}

// NamedTuple appends a NamedTuple element:
// `<5> <uuid> <count:u16> {name:str, pos:u16}×count`.
func (e *Encoder) NamedTuple(id uuid.UUID, elements []NamedTupleElement) {
	e.buf.WriteByte(byte(TagNamedTuple))
	e.writeUUID(id)
	e.writeUint16(uint16(len(elements)))
	for _, el := range elements {
		e.writeShortStr(el.Name)
		e.writeUint16(el.Pos)
	}
	e.n++
}

// Array appends an Array element:
// `<6> <uuid> <pos:u16> <ndims:u16> {dim:i32}×ndims`.
func (e *Encoder) Array(id uuid.UUID, pos uint16, dims []ArrayDim) {
	e.buf.WriteByte(byte(TagArray))
	e.writeUUID(id)
	e.writeUint16(pos)
	e.writeUint16(uint16(len(dims)))
	for _, d := range dims {
		e.writeInt32(int32(d))
	}
	e.n++
}

// Enum appends an Enum element: `<7> <uuid> <count:u16> {label:str}×count`.
func (e *Encoder) Enum(id uuid.UUID, labels []string) {
	e.buf.WriteByte(byte(TagEnum))
	e.writeUUID(id)
	e.writeUint16(uint16(len(labels)))
	for _, label := range labels {
		e.writeShortStr(label)
	}
	e.n++
}

// Annotation appends an annotation element: `<tag> <uuid> <str>`, where tag
// is in 0xF0..0xFF. Clients that don't recognize the tag must skip it;
// this package only ever emits tag TagAnnotationBase.
func (e *Encoder) Annotation(id uuid.UUID, value string) {
	e.buf.WriteByte(byte(TagAnnotationBase))
	e.writeUUID(id)
	e.writeShortStr(value)
	e.n++
}

// Decoder walks a type-descriptor byte stream produced by Encoder. It is
// used only by tests that need to assert on what the reference compiler
// produced; the core itself never decodes these bytes.
type Decoder struct {
	buf []byte
}

// NewDecoder wraps raw type-descriptor bytes for inspection.
func NewDecoder(b []byte) *Decoder {
	return &Decoder{buf: b}
}

// Element is one decoded type-descriptor entry, generically shaped; callers
// switch on Tag to interpret the remaining fields.
type Element struct {
	Tag      Tag
	ID       uuid.UUID
	Pos      uint16
	Count    uint16
	Elements []ShapeElement
	Named    []NamedTupleElement
	Dims     []ArrayDim
	Labels   []string
	Str      string
}

// Next decodes the next element in the stream, or returns false when the
// stream is exhausted.
func (d *Decoder) Next() (Element, bool, error) {
	if len(d.buf) == 0 {
		return Element{}, false, nil
	}

	tag := Tag(d.buf[0])
	d.buf = d.buf[1:]

	var id uuid.UUID
	if len(d.buf) < 16 {
		return Element{}, false, fmt.Errorf("typedesc: truncated uuid")
	}
	copy(id[:], d.buf[:16])
	d.buf = d.buf[16:]

	el := Element{Tag: tag, ID: id}

	switch tag {
	case TagSet:
		pos, err := d.readUint16()
		if err != nil {
			return el, false, err
		}
		el.Pos = pos

	case TagShape:
		count, err := d.readUint16()
		if err != nil {
			return el, false, err
		}
		for i := uint16(0); i < count; i++ {
			if len(d.buf) < 1 {
				return el, false, fmt.Errorf("typedesc: truncated shape flags")
			}
			flags := ShapeFlag(d.buf[0])
			d.buf = d.buf[1:]

			name, err := d.readShortStr()
			if err != nil {
				return el, false, err
			}
			pos, err := d.readUint16()
			if err != nil {
				return el, false, err
			}
			el.Elements = append(el.Elements, ShapeElement{Flags: flags, Name: name, Pos: pos})
		}

	case TagBaseScalar:
		// no further fields

	case TagScalar:
		pos, err := d.readUint16()
		if err != nil {
			return el, false, err
		}
		el.Pos = pos

	case TagTuple:
		count, err := d.readUint16()
		if err != nil {
			return el, false, err
		}
		for i := uint16(0); i < count; i++ {
			pos, err := d.readUint16()
			if err != nil {
				return el, false, err
			}
			el.Dims = append(el.Dims, ArrayDim(pos))
		}

	case TagNamedTuple:
		count, err := d.readUint16()
		if err != nil {
			return el, false, err
		}
		for i := uint16(0); i < count; i++ {
			name, err := d.readShortStr()
			if err != nil {
				return el, false, err
			}
			pos, err := d.readUint16()
			if err != nil {
				return el, false, err
			}
			el.Named = append(el.Named, NamedTupleElement{Name: name, Pos: pos})
		}

	case TagArray:
		pos, err := d.readUint16()
		if err != nil {
			return el, false, err
		}
		el.Pos = pos

		ndims, err := d.readUint16()
		if err != nil {
			return el, false, err
		}
		for i := uint16(0); i < ndims; i++ {
			if len(d.buf) < 4 {
				return el, false, fmt.Errorf("typedesc: truncated array dim")
			}
			dim := int32(binary.BigEndian.Uint32(d.buf[:4]))
			d.buf = d.buf[4:]
			el.Dims = append(el.Dims, ArrayDim(dim))
		}

	case TagEnum:
		count, err := d.readUint16()
		if err != nil {
			return el, false, err
		}
		for i := uint16(0); i < count; i++ {
			label, err := d.readShortStr()
			if err != nil {
				return el, false, err
			}
			el.Labels = append(el.Labels, label)
		}

	default:
		if tag < TagAnnotationBase {
			return el, false, fmt.Errorf("typedesc: unknown tag %#x", byte(tag))
		}
		// annotation: trailing short string, ignorable by clients that
		// don't recognize the tag.
		s, err := d.readShortStr()
		if err != nil {
			return el, false, err
		}
		el.Str = s
	}

	return el, true, nil
}

func (d *Decoder) readUint16() (uint16, error) {
	if len(d.buf) < 2 {
		return 0, fmt.Errorf("typedesc: truncated uint16")
	}
	v := binary.BigEndian.Uint16(d.buf[:2])
	d.buf = d.buf[2:]
	return v, nil
}

func (d *Decoder) readShortStr() (string, error) {
	n, err := d.readUint16()
	if err != nil {
		return "", err
	}
	if len(d.buf) < int(n) {
		return "", fmt.Errorf("typedesc: truncated string")
	}
	s := string(d.buf[:n])
	d.buf = d.buf[n:]
	return s, nil
}
