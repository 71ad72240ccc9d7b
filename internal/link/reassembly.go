package link

import (
	"encoding/binary"
	"fmt"

	"github.com/danmuck/pdlp/internal/observability"
	"github.com/danmuck/pdlp/internal/protocol"
	"github.com/danmuck/pdlp/internal/protocol/frame"
)

// OnSegment consumes one peer write. Rejected segments are answered with a
// NACK and reported through the returned error; the engine itself stays
// consistent. Sequence numbers are recorded but not checked for gaps or
// duplicates.
func (e *Engine) OnSegment(raw []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	seg, err := frame.DecodeSegment(raw)
	if err != nil {
		e.log.Debug().Int("len", len(raw)).Msg("link.OnSegment drop short write")
		return err
	}
	observability.RecordSegment("in")
	h := seg.Header
	e.log.Trace().Stringer("header", h).Int("len", len(seg.Payload)).Stringer("state", e.state).Msg("link.OnSegment")

	if h.FromDevice {
		svc, id := echoHeader(seg.Payload)
		e.nackLocked(svc, id, protocol.ResultNotSupport)
		return fmt.Errorf("%w: header 0x%02x", protocol.ErrProtocolViolation, raw[0])
	}
	if h.Cancel && e.state != StateIdle {
		svc, id := echoHeader(seg.Payload)
		e.nackLocked(svc, id, protocol.ResultCancel)
		return protocol.ErrCancelled
	}
	if e.state == StateIndicating {
		e.log.Debug().Msg("link.OnSegment write during indication")
		return ErrBusy
	}

	if e.started.IsZero() {
		e.started = e.now()
	}
	if e.inLen+len(seg.Payload) > len(e.inbound) {
		e.inLen += copy(e.inbound[e.inLen:], seg.Payload)
		svc, id := echoHeader(e.inbound[:e.inLen])
		e.nackLocked(svc, id, protocol.ResultFailed)
		return fmt.Errorf("%w: inbound exceeds %d bytes", ErrBufferOverflow, len(e.inbound))
	}
	e.inLen += copy(e.inbound[e.inLen:], seg.Payload)
	e.seq = h.Seq
	if !h.Execute {
		e.state = StateWriting
		return nil
	}
	return e.dispatchLocked()
}

// echoHeader reads service and message id from the start of b, treating
// missing bytes as zero.
func echoHeader(b []byte) (uint8, uint16) {
	var hdr [3]byte
	copy(hdr[:], b)
	return hdr[0], binary.LittleEndian.Uint16(hdr[1:])
}
