package query

import (
	"context"

	"github.com/edgeql-io/edgewire/internal/compiler"
	"github.com/edgeql-io/edgewire/pkg/protocol"
)

// Describe handles the 'D' Describe message, per spec.md §4.4.
func Describe(ctx context.Context, s *Session) error {
	kindByte, err := s.Reader.ReadByte()
	if err != nil {
		return err
	}

	if protocol.DescribeKind(kindByte) != protocol.DescribeTypeSpec {
		return newProtocolError("unsupported describe kind")
	}

	stmtName, err := s.Reader.ReadUTF8()
	if err != nil {
		return err
	}
	if stmtName != "" {
		return newUnsupportedFeatureError("prepared statement names are not supported")
	}

	if s.LastAnonCompiled == nil {
		return newTypeSpecNotFoundError()
	}

	return writeTypeDescribe(s, s.LastAnonCompiled)
}

// writeTypeDescribe emits the 'T' TypeDescribe message for unit, per
// spec.md §6: `{flags:i32, in_id:16, in_len:u16, in_data, out_id:16,
// out_len:u16, out_data}`.
func writeTypeDescribe(s *Session, unit *compiler.QueryUnit) error {
	var flags int32
	if unit.HasResult {
		flags |= 1
	}
	if unit.SingletonResult {
		flags |= 2
	}

	s.Writer.NewMessage(protocol.ServerTypeDescribe)
	s.Writer.WriteInt32(flags)
	s.Writer.WriteBytes(unit.InTypeID[:])
	s.Writer.WriteUint16(uint16(len(unit.InTypeData)))
	s.Writer.WriteBytes(unit.InTypeData)
	s.Writer.WriteBytes(unit.OutTypeID[:])
	s.Writer.WriteUint16(uint16(len(unit.OutTypeData)))
	s.Writer.WriteBytes(unit.OutTypeData)
	return s.Writer.EndMessage()
}
