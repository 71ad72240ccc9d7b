package frame

import (
	"errors"
	"fmt"
)

const (
	HeaderLen = 1

	SourceBit  uint8 = 0x80
	CancelBit  uint8 = 0x40
	ExecuteBit uint8 = 0x01
	SeqShift         = 1
	SeqMask    uint8 = 0x1F

	// MaxSeq is the largest sequence number the 5-bit field can carry.
	MaxSeq = int(SeqMask)

	// DefaultMaxUnit is the default ATT payload (MTU 23 - 3) per segment,
	// header byte included.
	DefaultMaxUnit = 20
	// MinMaxUnit keeps a NACK indication inside a single segment.
	MinMaxUnit = NackLen
)

var (
	ErrShortSegment   = errors.New("frame: segment carries no payload")
	ErrSeqOutOfRange  = errors.New("frame: sequence number exceeds 5 bits")
	ErrUnitTooSmall   = errors.New("frame: max unit too small")
	ErrPayloadTooLong = errors.New("frame: payload exceeds max unit")
)

// Header is the one-byte segment header.
type Header struct {
	FromDevice bool
	Cancel     bool
	Seq        uint8
	Execute    bool
}

// Byte encodes h. Seq is masked to 5 bits.
func (h Header) Byte() byte {
	var b byte
	if h.FromDevice {
		b |= SourceBit
	}
	if h.Cancel {
		b |= CancelBit
	}
	b |= (h.Seq & SeqMask) << SeqShift
	if h.Execute {
		b |= ExecuteBit
	}
	return b
}

func (h Header) String() string {
	return fmt.Sprintf("src=%d cancel=%t seq=%d exec=%t", boolBit(h.FromDevice), h.Cancel, h.Seq, h.Execute)
}

// ParseHeader decodes a header byte.
func ParseHeader(b byte) Header {
	return Header{
		FromDevice: b&SourceBit != 0,
		Cancel:     b&CancelBit != 0,
		Seq:        (b >> SeqShift) & SeqMask,
		Execute:    b&ExecuteBit != 0,
	}
}

// Segment is one link write or indication.
type Segment struct {
	Header  Header
	Payload []byte
}

// DecodeSegment splits raw into header and payload. Payload aliases raw.
// Writes without any payload byte are rejected.
func DecodeSegment(raw []byte) (Segment, error) {
	if len(raw) <= HeaderLen {
		return Segment{}, ErrShortSegment
	}
	return Segment{Header: ParseHeader(raw[0]), Payload: raw[HeaderLen:]}, nil
}

// EncodeSegment builds one wire segment.
func EncodeSegment(h Header, payload []byte) []byte {
	buf := make([]byte, HeaderLen+len(payload))
	buf[0] = h.Byte()
	copy(buf[HeaderLen:], payload)
	return buf
}

// ChunkSize is the payload capacity of one segment.
func ChunkSize(maxUnit int) int {
	return maxUnit - HeaderLen
}

// SegmentCount returns how many segments a message of length n needs.
func SegmentCount(n, maxUnit int) int {
	chunk := ChunkSize(maxUnit)
	if n <= 0 || chunk <= 0 {
		return 0
	}
	return (n + chunk - 1) / chunk
}

// Split slices data into device-originated segments with sequence numbers
// starting at zero. It refuses messages that would wrap the 5-bit counter.
func Split(data []byte, maxUnit int) ([][]byte, error) {
	return split(data, maxUnit, true)
}

// SplitPeer is Split for peer-originated writes.
func SplitPeer(data []byte, maxUnit int) ([][]byte, error) {
	return split(data, maxUnit, false)
}

func split(data []byte, maxUnit int, fromDevice bool) ([][]byte, error) {
	if maxUnit < MinMaxUnit {
		return nil, ErrUnitTooSmall
	}
	count := SegmentCount(len(data), maxUnit)
	if count-1 > MaxSeq {
		return nil, fmt.Errorf("%w: %d segments", ErrSeqOutOfRange, count)
	}
	chunk := ChunkSize(maxUnit)
	out := make([][]byte, 0, count)
	for i := 0; i < count; i++ {
		start := i * chunk
		end := min(start+chunk, len(data))
		h := Header{FromDevice: fromDevice, Seq: uint8(i), Execute: i == count-1}
		out = append(out, EncodeSegment(h, data[start:end]))
	}
	return out, nil
}

func boolBit(v bool) int {
	if v {
		return 1
	}
	return 0
}
