package link

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/danmuck/pdlp/internal/observability"
	"github.com/danmuck/pdlp/internal/protocol"
	"github.com/rs/zerolog/log"
)

var ErrUnknownConnection = errors.New("link: unknown connection")

// Arena holds one engine per connection handle.
type Arena struct {
	cfg     Config
	mu      sync.RWMutex
	engines map[protocol.ConnHandle]*Engine
}

// NewArena validates cfg once for every engine it will create.
func NewArena(cfg Config) (*Arena, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Arena{
		cfg:     cfg,
		engines: make(map[protocol.ConnHandle]*Engine),
	}, nil
}

// OnConnected returns the engine of conn, creating it when absent.
func (a *Arena) OnConnected(conn protocol.ConnHandle) (*Engine, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if e, ok := a.engines[conn]; ok {
		return e, nil
	}
	e, err := NewEngine(conn, a.cfg)
	if err != nil {
		return nil, err
	}
	a.engines[conn] = e
	observability.RecordConnection(1)
	log.Debug().Uint16("conn", uint16(conn)).Msg("link.Arena connected")
	return e, nil
}

// OnDisconnected tears down the engine of conn. Unknown handles are ignored.
func (a *Arena) OnDisconnected(conn protocol.ConnHandle) {
	a.mu.Lock()
	e, ok := a.engines[conn]
	delete(a.engines, conn)
	a.mu.Unlock()
	if !ok {
		return
	}
	e.close()
	observability.RecordConnection(-1)
	log.Debug().Uint16("conn", uint16(conn)).Msg("link.Arena disconnected")
}

// Lookup returns the engine of conn.
func (a *Arena) Lookup(conn protocol.ConnHandle) (*Engine, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	e, ok := a.engines[conn]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownConnection, conn)
	}
	return e, nil
}

// OnSegment feeds a peer write to conn's engine, creating it on first use.
// Transports without connect events use it; a write after OnDisconnected
// opens a new engine that only another OnDisconnected tears down.
func (a *Arena) OnSegment(conn protocol.ConnHandle, raw []byte) error {
	e, err := a.OnConnected(conn)
	if err != nil {
		return err
	}
	return e.OnSegment(raw)
}

// Deliver feeds a peer write to an existing engine. Transports that own the
// connection lifecycle use it so a late write cannot resurrect a handle.
func (a *Arena) Deliver(conn protocol.ConnHandle, raw []byte) error {
	e, err := a.Lookup(conn)
	if err != nil {
		return err
	}
	return e.OnSegment(raw)
}

// OnDeliveryConfirmed advances conn's pending indication.
func (a *Arena) OnDeliveryConfirmed(conn protocol.ConnHandle) error {
	e, err := a.Lookup(conn)
	if err != nil {
		return err
	}
	return e.OnDeliveryConfirmed()
}

// OnIndicationTimeout resets conn's transaction.
func (a *Arena) OnIndicationTimeout(conn protocol.ConnHandle) error {
	e, err := a.Lookup(conn)
	if err != nil {
		return err
	}
	e.OnIndicationTimeout()
	return nil
}

// Len is the number of open connections.
func (a *Arena) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.engines)
}

// Snapshot lists every engine ordered by connection handle.
func (a *Arena) Snapshot() []Snapshot {
	a.mu.RLock()
	engines := make([]*Engine, 0, len(a.engines))
	for _, e := range a.engines {
		engines = append(engines, e)
	}
	a.mu.RUnlock()

	out := make([]Snapshot, 0, len(engines))
	for _, e := range engines {
		out = append(out, e.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Conn < out[j].Conn
	})
	return out
}
