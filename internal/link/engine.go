package link

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/danmuck/pdlp/internal/observability"
	"github.com/danmuck/pdlp/internal/protocol"
	"github.com/danmuck/pdlp/internal/services"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	ErrBufferOverflow = errors.New("link: buffer overflow")
	ErrBusy           = errors.New("link: transaction in progress")
	ErrClosed         = errors.New("link: engine closed")
)

// State is the transaction state of one connection.
type State uint8

const (
	StateIdle State = iota
	StateWriting
	StateIndicating
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWriting:
		return "writing"
	case StateIndicating:
		return "indicating"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Outcomes recorded when a transaction ends.
const (
	outcomeCompleted    = "completed"
	outcomeNacked       = "nacked"
	outcomeTimeout      = "timeout"
	outcomeDisconnected = "disconnected"
)

// Engine owns the transaction state and both buffers of one connection.
type Engine struct {
	mu        sync.Mutex
	conn      protocol.ConnHandle
	limits    Limits
	router    *services.Router
	transport Transport
	session   *services.Session
	now       func() time.Time
	log       zerolog.Logger

	state    State
	closed   bool
	inbound  []byte
	inLen    int
	seq      uint8
	outbound []byte
	outLen   int
	outOff   int
	packet   uint8
	pending  bool
	nack     []byte
	started  time.Time
}

// NewEngine builds an idle engine for conn.
func NewEngine(conn protocol.ConnHandle, cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		conn:      conn,
		limits:    cfg.Limits,
		router:    cfg.Router,
		transport: cfg.Transport,
		session:   services.NewSession(),
		now:       now,
		log:       log.With().Uint16("conn", uint16(conn)).Logger(),
		inbound:   make([]byte, cfg.Limits.InboundCapacity()),
		outbound:  make([]byte, cfg.Limits.OutboundCapacity()),
	}, nil
}

// Conn is the connection handle the engine serves.
func (e *Engine) Conn() protocol.ConnHandle {
	return e.conn
}

// State reports the transaction state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Snapshot is a point-in-time view of an engine.
type Snapshot struct {
	Conn            protocol.ConnHandle `json:"conn"`
	State           State               `json:"state"`
	InboundLen      int                 `json:"inbound_len"`
	LastSeq         uint8               `json:"last_seq"`
	OutboundLen     int                 `json:"outbound_len"`
	OutboundOffset  int                 `json:"outbound_offset"`
	Segment         uint8               `json:"segment"`
	DeliveryPending bool                `json:"delivery_pending"`
	Nack            bool                `json:"nack"`
	PendingFetch    bool                `json:"pending_fetch"`
}

// Snapshot copies the engine's externally visible state.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, fetch := e.session.Pending()
	return Snapshot{
		Conn:            e.conn,
		State:           e.state,
		InboundLen:      e.inLen,
		LastSeq:         e.seq,
		OutboundLen:     e.outLen,
		OutboundOffset:  e.outOff,
		Segment:         e.packet,
		DeliveryPending: e.pending,
		Nack:            e.nack != nil,
		PendingFetch:    fetch,
	}
}

// Reset abandons the current transaction and zeroes both buffers. It is
// idempotent.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.resetLocked()
}

func (e *Engine) resetLocked() {
	clear(e.inbound)
	clear(e.outbound)
	e.inLen = 0
	e.seq = 0
	e.outLen = 0
	e.outOff = 0
	e.packet = 0
	e.pending = false
	e.nack = nil
	e.started = time.Time{}
	e.state = StateIdle
}

// finishLocked records the transaction outcome and resets.
func (e *Engine) finishLocked(outcome string) {
	if !e.started.IsZero() {
		observability.RecordTransaction(outcome, e.now().Sub(e.started))
	}
	e.log.Debug().Str("outcome", outcome).Msg("link.transaction finished")
	e.resetLocked()
}

// OnDeliveryConfirmed advances the outbound stream after the peer confirmed
// the segment in flight. A confirmation with nothing in flight is ignored.
func (e *Engine) OnDeliveryConfirmed() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	if !e.pending {
		e.log.Debug().Stringer("state", e.state).Msg("link.OnDeliveryConfirmed nothing in flight")
		return nil
	}
	e.pending = false
	if e.nack != nil {
		e.finishLocked(outcomeNacked)
		return nil
	}
	if e.lastSegmentLocked() {
		e.finishLocked(outcomeCompleted)
		return nil
	}
	e.outOff += e.chunk()
	e.packet++
	return e.sendCurrentLocked()
}

// OnIndicationTimeout abandons a transaction whose indication was never
// confirmed.
func (e *Engine) OnIndicationTimeout() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateIdle && !e.pending {
		return
	}
	e.log.Warn().Stringer("state", e.state).Uint8("segment", e.packet).Msg("link.OnIndicationTimeout reset")
	e.finishLocked(outcomeTimeout)
}

// close resets the engine and rejects further events.
func (e *Engine) close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateIdle || e.pending {
		e.finishLocked(outcomeDisconnected)
	}
	e.resetLocked()
	e.session.ClearPending()
	e.closed = true
}
