package tlv

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/danmuck/pdlp/internal/protocol"
)

const (
	TagLen    = 1
	LengthLen = 3
	HeaderLen = TagLen + LengthLen

	// MaxLength is the largest value the 24-bit length field can carry.
	MaxLength = 0xFFFFFF

	Uint8Len  = HeaderLen + 1
	Uint16Len = HeaderLen + 2
	Uint32Len = HeaderLen + 4
)

var (
	ErrShortParameter = fmt.Errorf("tlv: short parameter: %w", protocol.ErrParameterMismatch)
	ErrTagMismatch    = fmt.Errorf("tlv: tag mismatch: %w", protocol.ErrParameterMismatch)
	ErrLengthMismatch = fmt.Errorf("tlv: length mismatch: %w", protocol.ErrParameterMismatch)
	ErrOverrun        = fmt.Errorf("tlv: declared length overruns message: %w", protocol.ErrParameterMismatch)
	ErrInvalidWidth   = errors.New("tlv: fixed width must be 1, 2 or 4")
	ErrValueTooLong   = errors.New("tlv: value exceeds 24-bit length")
)

// Field is one parameter view. Value aliases the decoded buffer.
type Field struct {
	Tag   uint8
	Value []byte
}

// Len is the encoded size of f.
func (f Field) Len() int {
	return HeaderLen + len(f.Value)
}

// AppendMessageHeader appends service_id, message_id (LE) and param_count.
func AppendMessageHeader(dst []byte, service protocol.ServiceID, messageID uint16, count uint8) []byte {
	return append(dst, byte(service), byte(messageID), byte(messageID>>8), count)
}

// AppendFixed appends a fixed-width little-endian integer parameter.
func AppendFixed(dst []byte, tag uint8, width int, v uint32) ([]byte, error) {
	switch width {
	case 1, 2, 4:
	default:
		return dst, fmt.Errorf("%w: %d", ErrInvalidWidth, width)
	}
	dst = appendParamHeader(dst, tag, width)
	for i := 0; i < width; i++ {
		dst = append(dst, byte(v>>(8*i)))
	}
	return dst, nil
}

// AppendUint8 appends a one-byte fixed parameter.
func AppendUint8(dst []byte, tag uint8, v uint8) []byte {
	dst = appendParamHeader(dst, tag, 1)
	return append(dst, v)
}

// AppendUint16 appends a little-endian two-byte fixed parameter.
func AppendUint16(dst []byte, tag uint8, v uint16) []byte {
	dst = appendParamHeader(dst, tag, 2)
	return binary.LittleEndian.AppendUint16(dst, v)
}

// AppendUint32 appends a little-endian four-byte fixed parameter.
func AppendUint32(dst []byte, tag uint8, v uint32) []byte {
	dst = appendParamHeader(dst, tag, 4)
	return binary.LittleEndian.AppendUint32(dst, v)
}

// AppendOpaque appends a raw byte parameter.
func AppendOpaque(dst []byte, tag uint8, v []byte) ([]byte, error) {
	if len(v) > MaxLength {
		return dst, fmt.Errorf("%w: %d", ErrValueTooLong, len(v))
	}
	dst = appendParamHeader(dst, tag, len(v))
	return append(dst, v...), nil
}

func appendParamHeader(dst []byte, tag uint8, n int) []byte {
	return append(dst, tag, byte(n), byte(n>>8), byte(n>>16))
}

// ReadField decodes the parameter at the start of b without checking the
// tag. The returned value aliases b; n is the number of bytes consumed.
func ReadField(b []byte) (Field, int, error) {
	if len(b) < HeaderLen {
		return Field{}, 0, ErrShortParameter
	}
	l := int(b[1]) | int(b[2])<<8 | int(b[3])<<16
	if l > len(b)-HeaderLen {
		return Field{}, 0, fmt.Errorf("%w: tag=%d len=%d have=%d", ErrOverrun, b[0], l, len(b)-HeaderLen)
	}
	end := HeaderLen + l
	return Field{Tag: b[0], Value: b[HeaderLen:end:end]}, end, nil
}

func decodeFixed(b []byte, tag uint8, width int) (uint32, int, error) {
	if len(b) < HeaderLen {
		return 0, 0, ErrShortParameter
	}
	if b[0] != tag {
		return 0, 0, fmt.Errorf("%w: got=%d want=%d", ErrTagMismatch, b[0], tag)
	}
	l := int(b[1]) | int(b[2])<<8 | int(b[3])<<16
	if l != width {
		return 0, 0, fmt.Errorf("%w: tag=%d got=%d want=%d", ErrLengthMismatch, tag, l, width)
	}
	if len(b) < HeaderLen+width {
		return 0, 0, ErrShortParameter
	}
	var v uint32
	for i := 0; i < width; i++ {
		v |= uint32(b[HeaderLen+i]) << (8 * i)
	}
	return v, HeaderLen + width, nil
}

// DecodeUint8 verifies tag and length and reads a one-byte value.
func DecodeUint8(b []byte, tag uint8) (uint8, int, error) {
	v, n, err := decodeFixed(b, tag, 1)
	return uint8(v), n, err
}

// DecodeUint16 verifies tag and length and reads a little-endian uint16.
func DecodeUint16(b []byte, tag uint8) (uint16, int, error) {
	v, n, err := decodeFixed(b, tag, 2)
	return uint16(v), n, err
}

// DecodeUint32 verifies tag and length and reads a little-endian uint32.
func DecodeUint32(b []byte, tag uint8) (uint32, int, error) {
	return decodeFixed(b, tag, 4)
}

// DecodeOpaque verifies tag and returns a bounds-checked view of the value.
func DecodeOpaque(b []byte, tag uint8) ([]byte, int, error) {
	if len(b) < HeaderLen {
		return nil, 0, ErrShortParameter
	}
	if b[0] != tag {
		return nil, 0, fmt.Errorf("%w: got=%d want=%d", ErrTagMismatch, b[0], tag)
	}
	f, n, err := ReadField(b)
	if err != nil {
		return nil, 0, err
	}
	return f.Value, n, nil
}

// DecodeFields splits a parameter block into exactly count fields.
func DecodeFields(b []byte, count uint8) ([]Field, error) {
	fields := make([]Field, 0, count)
	off := 0
	for i := 0; i < int(count); i++ {
		f, n, err := ReadField(b[off:])
		if err != nil {
			return nil, fmt.Errorf("param %d: %w", i, err)
		}
		fields = append(fields, f)
		off += n
	}
	if off != len(b) {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrOverrun, len(b)-off)
	}
	return fields, nil
}
