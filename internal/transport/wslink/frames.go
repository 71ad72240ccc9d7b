package wslink

import (
	"errors"
	"fmt"
)

const (
	KindWrite      byte = 0x01
	KindConfirm    byte = 0x02
	KindIndication byte = 0x81
)

var (
	ErrEmptyFrame   = errors.New("wslink: empty frame")
	ErrUnknownKind  = errors.New("wslink: unknown frame kind")
	ErrUnknownPeer  = errors.New("wslink: unknown peer")
	ErrUnbound      = errors.New("wslink: hub has no link bound")
	ErrClientClosed = errors.New("wslink: client closed")
)

func encodeFrame(kind byte, segment []byte) []byte {
	buf := make([]byte, 1+len(segment))
	buf[0] = kind
	copy(buf[1:], segment)
	return buf
}

func decodeFrame(b []byte) (byte, []byte, error) {
	if len(b) == 0 {
		return 0, nil, ErrEmptyFrame
	}
	switch b[0] {
	case KindWrite, KindConfirm, KindIndication:
		return b[0], b[1:], nil
	default:
		return b[0], nil, fmt.Errorf("%w: 0x%02x", ErrUnknownKind, b[0])
	}
}
