package link

import (
	"errors"
	"fmt"
	"time"

	"github.com/danmuck/pdlp/internal/protocol"
	"github.com/danmuck/pdlp/internal/protocol/frame"
	"github.com/danmuck/pdlp/internal/services"
)

var (
	ErrInvalidLimits = errors.New("link: invalid limits")
	ErrNoRouter      = errors.New("link: router is required")
	ErrNoTransport   = errors.New("link: transport is required")
)

// Transport delivers one indication segment to the peer. Delivery is
// confirmed later through OnDeliveryConfirmed. Implementations must not call
// back into the engine synchronously.
type Transport interface {
	SendIndication(conn protocol.ConnHandle, segment []byte) error
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(conn protocol.ConnHandle, segment []byte) error

// SendIndication calls f.
func (f TransportFunc) SendIndication(conn protocol.ConnHandle, segment []byte) error {
	return f(conn, segment)
}

// Limits bound the per-connection buffers.
type Limits struct {
	// MaxUnit is the segment size, header byte included.
	MaxUnit int
	// MaxInboundSegments sizes the assembly buffer at MaxUnit bytes each.
	MaxInboundSegments int
	// MaxOutboundSegments caps a response; the 5-bit sequence number allows
	// at most 32.
	MaxOutboundSegments int
}

// DefaultLimits match an ATT MTU of 23.
func DefaultLimits() Limits {
	return Limits{
		MaxUnit:             frame.DefaultMaxUnit,
		MaxInboundSegments:  5,
		MaxOutboundSegments: frame.MaxSeq + 1,
	}
}

// Validate checks the unit size and segment counts.
func (l Limits) Validate() error {
	if l.MaxUnit < frame.MinMaxUnit {
		return fmt.Errorf("%w: max_unit %d < %d", ErrInvalidLimits, l.MaxUnit, frame.MinMaxUnit)
	}
	if l.MaxInboundSegments < 1 {
		return fmt.Errorf("%w: max_inbound_segments %d", ErrInvalidLimits, l.MaxInboundSegments)
	}
	if l.MaxOutboundSegments < 1 || l.MaxOutboundSegments > frame.MaxSeq+1 {
		return fmt.Errorf("%w: max_outbound_segments %d not in [1,%d]", ErrInvalidLimits, l.MaxOutboundSegments, frame.MaxSeq+1)
	}
	return nil
}

// InboundCapacity is the assembly buffer size in bytes.
func (l Limits) InboundCapacity() int {
	return l.MaxInboundSegments * l.MaxUnit
}

// OutboundCapacity is the largest response in bytes, headers excluded.
func (l Limits) OutboundCapacity() int {
	return l.MaxOutboundSegments * frame.ChunkSize(l.MaxUnit)
}

// Config is shared by every engine of an arena.
type Config struct {
	Limits    Limits
	Router    *services.Router
	Transport Transport
	// Now defaults to time.Now.
	Now func() time.Time
}

// Validate requires a router and a transport, then checks the limits.
func (c Config) Validate() error {
	if c.Router == nil {
		return ErrNoRouter
	}
	if c.Transport == nil {
		return ErrNoTransport
	}
	return c.Limits.Validate()
}
