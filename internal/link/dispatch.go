package link

import (
	"fmt"

	"github.com/danmuck/pdlp/internal/observability"
	"github.com/danmuck/pdlp/internal/protocol"
	"github.com/danmuck/pdlp/internal/protocol/frame"
)

// dispatchLocked routes the assembled message and applies the response
// policy: failure NACKs, an empty success completes the transaction, and
// anything else starts indicating.
func (e *Engine) dispatchLocked() error {
	msg, err := protocol.ParseMessage(e.inbound[:e.inLen])
	if err != nil {
		svc, id := echoHeader(e.inbound[:e.inLen])
		e.nackLocked(svc, id, protocol.ResultNoData)
		return err
	}
	e.log.Debug().
		Stringer("service", msg.Service).
		Uint16("msg", msg.MessageID).
		Uint8("params", msg.ParamCount).
		Msg("link.dispatch")

	resp, err := e.router.Dispatch(e.outbound[:0], e.session, e.conn, msg)
	if err != nil {
		e.nackLocked(uint8(msg.Service), msg.MessageID, protocol.CodeOf(err))
		return err
	}
	if len(resp) == 0 {
		e.finishLocked(outcomeCompleted)
		return nil
	}
	if len(resp) > len(e.outbound) {
		e.nackLocked(uint8(msg.Service), msg.MessageID, protocol.ResultFailed)
		return fmt.Errorf("%w: response %d bytes exceeds %d", ErrBufferOverflow, len(resp), len(e.outbound))
	}
	clear(e.inbound)
	e.inLen = 0
	copy(e.outbound, resp)
	return e.beginIndicationLocked(len(resp))
}

// nackLocked abandons the transaction and indicates a single NACK segment.
// The engine stays INDICATING until the NACK is confirmed.
func (e *Engine) nackLocked(service uint8, messageID uint16, code protocol.ResultCode) {
	started := e.started
	e.resetLocked()
	e.started = started
	if e.started.IsZero() {
		e.started = e.now()
	}
	e.nack = frame.EncodeNack(service, messageID, uint8(code), code == protocol.ResultCancel)
	e.state = StateIndicating
	e.pending = true

	observability.RecordNack(protocol.ServiceID(service).String(), code.String())
	observability.RecordSegment("out")
	e.log.Info().
		Stringer("service", protocol.ServiceID(service)).
		Uint16("msg", messageID).
		Stringer("result", code).
		Msg("link.nack")
	if err := e.transport.SendIndication(e.conn, e.nack); err != nil {
		e.log.Error().Err(err).Msg("link.nack send failed")
	}
}
