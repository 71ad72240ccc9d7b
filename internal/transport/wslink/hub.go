package wslink

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/danmuck/pdlp/internal/link"
	"github.com/danmuck/pdlp/internal/protocol"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	readBufferSize  = 1024
	writeBufferSize = 1024

	// invalidConn mirrors the BLE "no connection" handle.
	invalidConn protocol.ConnHandle = 0xFFFF
)

// Link is the connection-level surface of a link arena.
type Link interface {
	OnConnected(conn protocol.ConnHandle) (*link.Engine, error)
	OnDisconnected(conn protocol.ConnHandle)
	Deliver(conn protocol.ConnHandle, raw []byte) error
	OnDeliveryConfirmed(conn protocol.ConnHandle) error
	OnIndicationTimeout(conn protocol.ConnHandle) error
}

// Options tunes a Hub.
type Options struct {
	// IndicationTimeout of zero disables the confirmation timer.
	IndicationTimeout time.Duration
	WriteTimeout      time.Duration
	// CheckOrigin defaults to accepting every origin.
	CheckOrigin func(r *http.Request) bool
}

// DefaultOptions confirms indications within 30s and bounds writes to 5s.
func DefaultOptions() Options {
	return Options{
		IndicationTimeout: 30 * time.Second,
		WriteTimeout:      5 * time.Second,
	}
}

// Hub accepts websocket peers and implements link.Transport for them.
type Hub struct {
	opts     Options
	upgrader websocket.Upgrader
	log      zerolog.Logger

	mu    sync.Mutex
	link  Link
	peers map[protocol.ConnHandle]*peer
	next  protocol.ConnHandle
}

type peer struct {
	conn protocol.ConnHandle
	ws   *websocket.Conn
	log  zerolog.Logger

	writeMu sync.Mutex

	mu    sync.Mutex
	timer *time.Timer
	gen   uint64
}

// NewHub builds an unbound hub. It answers 503 until Bind.
func NewHub(opts Options) *Hub {
	check := opts.CheckOrigin
	if check == nil {
		check = func(*http.Request) bool { return true }
	}
	return &Hub{
		opts: opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  readBufferSize,
			WriteBufferSize: writeBufferSize,
			CheckOrigin:     check,
		},
		log:   log.With().Str("component", "wslink").Logger(),
		peers: make(map[protocol.ConnHandle]*peer),
	}
}

// Bind attaches the link that receives peer traffic. The arena is built
// with the hub as its transport, so binding happens after construction.
func (h *Hub) Bind(l Link) {
	h.mu.Lock()
	h.link = l
	h.mu.Unlock()
}

func (h *Hub) bound() Link {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.link
}

// Len is the number of attached peers.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.peers)
}

func (h *Hub) lookup(conn protocol.ConnHandle) *peer {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.peers[conn]
}

// SendIndication writes one device segment to the peer of conn. The
// confirmation timer is armed before the write so a fast confirm always
// finds it.
func (h *Hub) SendIndication(conn protocol.ConnHandle, segment []byte) error {
	p := h.lookup(conn)
	if p == nil {
		return fmt.Errorf("%w: %d", ErrUnknownPeer, conn)
	}
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	p.arm(h.opts.IndicationTimeout, func() { h.expire(conn) })
	if h.opts.WriteTimeout > 0 {
		_ = p.ws.SetWriteDeadline(time.Now().Add(h.opts.WriteTimeout))
	}
	if err := p.ws.WriteMessage(websocket.BinaryMessage, encodeFrame(KindIndication, segment)); err != nil {
		p.disarm()
		return fmt.Errorf("wslink: send indication: %w", err)
	}
	return nil
}

func (h *Hub) expire(conn protocol.ConnHandle) {
	l := h.bound()
	if l == nil {
		return
	}
	h.log.Warn().Uint16("conn", uint16(conn)).Dur("timeout", h.opts.IndicationTimeout).Msg("wslink indication not confirmed")
	if err := l.OnIndicationTimeout(conn); err != nil {
		h.log.Debug().Err(err).Uint16("conn", uint16(conn)).Msg("wslink timeout dropped")
	}
}

// ServeHTTP upgrades the request and pumps peer frames into the link until
// the socket closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.bound() == nil {
		http.Error(w, ErrUnbound.Error(), http.StatusServiceUnavailable)
		return
	}
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("wslink upgrade failed")
		return
	}
	p, l, err := h.attach(ws)
	if err != nil {
		h.log.Error().Err(err).Msg("wslink attach failed")
		_ = ws.Close()
		return
	}
	defer h.detach(p, l)
	h.readLoop(p, l)
}

func (h *Hub) attach(ws *websocket.Conn) (*peer, Link, error) {
	h.mu.Lock()
	l := h.link
	if l == nil {
		h.mu.Unlock()
		return nil, nil, ErrUnbound
	}
	conn, ok := h.allocLocked()
	if !ok {
		h.mu.Unlock()
		return nil, nil, fmt.Errorf("wslink: connection handles exhausted")
	}
	p := &peer{
		conn: conn,
		ws:   ws,
		log:  h.log.With().Uint16("conn", uint16(conn)).Str("remote", ws.RemoteAddr().String()).Logger(),
	}
	h.peers[conn] = p
	h.mu.Unlock()

	if _, err := l.OnConnected(conn); err != nil {
		h.mu.Lock()
		delete(h.peers, conn)
		h.mu.Unlock()
		return nil, nil, err
	}
	p.log.Info().Msg("wslink peer connected")
	return p, l, nil
}

func (h *Hub) allocLocked() (protocol.ConnHandle, bool) {
	for i := 0; i < 0xFFFF; i++ {
		h.next++
		if h.next == 0 || h.next == invalidConn {
			continue
		}
		if _, used := h.peers[h.next]; !used {
			return h.next, true
		}
	}
	return 0, false
}

func (h *Hub) detach(p *peer, l Link) {
	h.mu.Lock()
	delete(h.peers, p.conn)
	h.mu.Unlock()
	p.disarm()
	l.OnDisconnected(p.conn)
	_ = p.ws.Close()
	p.log.Info().Msg("wslink peer disconnected")
}

func (h *Hub) readLoop(p *peer, l Link) {
	for {
		mt, data, err := p.ws.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				p.log.Debug().Err(err).Msg("wslink read ended")
			}
			return
		}
		if mt != websocket.BinaryMessage {
			p.log.Debug().Int("type", mt).Msg("wslink ignore non-binary frame")
			continue
		}
		kind, segment, err := decodeFrame(data)
		if err != nil {
			p.log.Debug().Err(err).Msg("wslink drop frame")
			continue
		}
		switch kind {
		case KindWrite:
			if err := l.Deliver(p.conn, segment); err != nil {
				p.log.Debug().Err(err).Msg("wslink segment rejected")
			}
		case KindConfirm:
			p.disarm()
			if err := l.OnDeliveryConfirmed(p.conn); err != nil {
				p.log.Debug().Err(err).Msg("wslink confirm rejected")
			}
		default:
			p.log.Debug().Uint8("kind", kind).Msg("wslink drop device frame from peer")
		}
	}
}

// Close disconnects every peer. Read loops observe the closed sockets and
// tear their connections down.
func (h *Hub) Close() {
	h.mu.Lock()
	peers := make([]*peer, 0, len(h.peers))
	for _, p := range h.peers {
		peers = append(peers, p)
	}
	h.mu.Unlock()
	for _, p := range peers {
		p.writeMu.Lock()
		_ = p.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutdown"),
			time.Now().Add(time.Second))
		p.writeMu.Unlock()
		_ = p.ws.Close()
	}
}

// arm replaces any running timer. A timer only fires if no arm or disarm
// happened after it was started.
func (p *peer) arm(d time.Duration, fire func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	p.gen++
	if d <= 0 {
		return
	}
	gen := p.gen
	p.timer = time.AfterFunc(d, func() {
		p.mu.Lock()
		current := p.gen == gen && p.timer != nil
		if current {
			p.timer = nil
		}
		p.mu.Unlock()
		if current {
			fire()
		}
	})
}

func (p *peer) disarm() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	p.gen++
}
