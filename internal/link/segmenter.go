package link

import (
	"fmt"

	"github.com/danmuck/pdlp/internal/observability"
	"github.com/danmuck/pdlp/internal/protocol/frame"
)

func (e *Engine) chunk() int {
	return frame.ChunkSize(e.limits.MaxUnit)
}

func (e *Engine) lastSegmentLocked() bool {
	return e.outLen-e.outOff <= e.chunk()
}

// beginIndicationLocked streams the first n bytes of the outbound buffer.
func (e *Engine) beginIndicationLocked(n int) error {
	e.outLen = n
	e.outOff = 0
	e.packet = 0
	e.state = StateIndicating
	return e.sendCurrentLocked()
}

// sendCurrentLocked indicates the segment at outOff. At most one segment is
// in flight; the next one is sent from OnDeliveryConfirmed. A failed send
// leaves the segment pending so that a confirmation, timeout or disconnect
// still clears it.
func (e *Engine) sendCurrentLocked() error {
	n := min(e.chunk(), e.outLen-e.outOff)
	h := frame.Header{FromDevice: true, Seq: e.packet, Execute: e.lastSegmentLocked()}
	seg := frame.EncodeSegment(h, e.outbound[e.outOff:e.outOff+n])
	e.pending = true
	observability.RecordSegment("out")
	e.log.Trace().Stringer("header", h).Int("len", n).Msg("link.indicate")
	if err := e.transport.SendIndication(e.conn, seg); err != nil {
		e.log.Error().Err(err).Uint8("segment", e.packet).Msg("link.indicate send failed")
		return fmt.Errorf("link: send indication: %w", err)
	}
	return nil
}
