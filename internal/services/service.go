package services

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/danmuck/pdlp/internal/protocol"
	"github.com/danmuck/pdlp/internal/protocol/schema"
	"github.com/rs/zerolog/log"
)

// Handler answers the inbound messages of one service.
type Handler interface {
	ID() protocol.ServiceID
	// Handle appends an encoded response to dst. A nil error with no bytes
	// appended means the request completes without an inline response.
	Handle(dst []byte, req *Request) ([]byte, error)
}

// Prechecker is implemented by handlers that reject some messages on their
// leading parameters before the whole parameter list is validated.
type Prechecker interface {
	Precheck(msg protocol.Message) error
}

// Request is one validated inbound message. Params and Message views alias
// the engine's assembly buffer and are only valid during Handle.
type Request struct {
	Conn    protocol.ConnHandle
	Message protocol.Message
	Params  *schema.Params
	Session *Session
}

// Router stores handlers by service id.
type Router struct {
	repo map[protocol.ServiceID]Handler
	mu   sync.RWMutex
}

// NewRouter initializes an empty router.
func NewRouter() *Router {
	return &Router{
		repo: make(map[protocol.ServiceID]Handler),
	}
}

// NewDeviceRouter registers property information plus every service whose
// application is present in apps.
func NewDeviceRouter(cfg Config, apps Apps) *Router {
	r := NewRouter()
	if cfg.ServiceList == protocol.ServiceBitNone {
		cfg.ServiceList = apps.ServiceList()
	}
	r.Register(&PropertyInfo{Config: cfg})
	if apps.Notification != nil {
		r.Register(&Notification{Categories: cfg.NotifyCategory, App: apps.Notification})
	}
	if apps.Sensor != nil {
		r.Register(&SensorInfo{SensorTypes: cfg.SensorTypes, App: apps.Sensor})
	}
	if apps.Setting != nil {
		r.Register(&SettingOperation{App: apps.Setting})
	}
	return r
}

// Register adds a handler, replacing any previous one for the same service.
func (r *Router) Register(h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.repo[h.ID()] = h
}

// Get returns the handler of a service.
func (r *Router) Get(id protocol.ServiceID) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.repo[id]
	return h, ok
}

// Services returns the registered service ids in ascending order.
func (r *Router) Services() []protocol.ServiceID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]protocol.ServiceID, 0, len(r.repo))
	for id := range r.repo {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Dispatch validates msg against its schema and hands it to the service
// handler. Failures are returned as *protocol.Error carrying the result code
// for the NACK.
func (r *Router) Dispatch(dst []byte, sess *Session, conn protocol.ConnHandle, msg protocol.Message) ([]byte, error) {
	h, ok := r.Get(msg.Service)
	if !ok {
		return dst, protocol.Reject(msg, protocol.ResultNotSupport,
			fmt.Errorf("%w: no handler for %s", protocol.ErrUnsupported, msg.Service))
	}
	if pc, ok := h.(Prechecker); ok {
		if err := pc.Precheck(msg); err != nil {
			return dst, protocol.Reject(msg, protocol.CodeOf(err), err)
		}
	}
	params, err := schema.Parse(msg)
	if err != nil {
		return dst, protocol.Reject(msg, protocol.CodeOf(err), err)
	}
	out, err := h.Handle(dst, &Request{Conn: conn, Message: msg, Params: params, Session: sess})
	if err != nil {
		var pe *protocol.Error
		if !errors.As(err, &pe) {
			err = protocol.Reject(msg, protocol.CodeOf(err), err)
		}
		log.Debug().
			Uint16("conn", uint16(conn)).
			Stringer("service", msg.Service).
			Uint16("msg", msg.MessageID).
			Err(err).
			Msg("services.Dispatch rejected")
		return dst, err
	}
	return out, nil
}

// rejected wraps a non-OK application result.
func rejected(msg protocol.Message, code protocol.ResultCode) error {
	return protocol.Reject(msg, code, fmt.Errorf("%w: %s", protocol.ErrApplicationRejected, code))
}
