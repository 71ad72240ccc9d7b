package wslink

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/danmuck/pdlp/internal/protocol/frame"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const indicationQueue = 64

// Client is the peer side of a link: it writes requests as segments and
// reads indications back.
type Client struct {
	ws      *websocket.Conn
	maxUnit int

	writeMu sync.Mutex

	indications chan []byte
	done        chan struct{}
	errMu       sync.Mutex
	err         error
}

// Dial opens one link connection. maxUnit sizes outgoing segments and must
// match the device.
func Dial(ctx context.Context, url string, maxUnit int) (*Client, error) {
	if maxUnit < frame.MinMaxUnit {
		return nil, frame.ErrUnitTooSmall
	}
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("wslink: dial %s: %w", url, err)
	}
	c := &Client{
		ws:          ws,
		maxUnit:     maxUnit,
		indications: make(chan []byte, indicationQueue),
		done:        make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// DialRetry retries Dial with backoff until it succeeds, the attempts run
// out or ctx ends.
func DialRetry(ctx context.Context, url string, maxUnit int, cfg BackoffConfig) (*Client, error) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	for attempt := 1; ; attempt++ {
		c, err := Dial(ctx, url, maxUnit)
		if err == nil {
			return c, nil
		}
		if cfg.MaxAttempts > 0 && attempt >= cfg.MaxAttempts {
			return nil, err
		}
		delay := NextBackoffDelay(cfg, attempt, rng)
		log.Debug().Err(err).Int("attempt", attempt).Dur("delay", delay).Msg("wslink dial retry")
		select {
		case <-ctx.Done():
			return nil, errors.Join(ctx.Err(), err)
		case <-time.After(delay):
		}
	}
}

func (c *Client) readLoop() {
	defer close(c.done)
	for {
		mt, data, err := c.ws.ReadMessage()
		if err != nil {
			c.setErr(err)
			return
		}
		if mt != websocket.BinaryMessage {
			continue
		}
		kind, segment, err := decodeFrame(data)
		if err != nil || kind != KindIndication {
			continue
		}
		select {
		case c.indications <- segment:
		default:
			c.setErr(fmt.Errorf("wslink: indication queue full"))
			_ = c.ws.Close()
			return
		}
	}
}

func (c *Client) setErr(err error) {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	if c.err == nil {
		c.err = err
	}
}

// Err reports why the read side stopped, if it has.
func (c *Client) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

func (c *Client) write(kind byte, segment []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteMessage(websocket.BinaryMessage, encodeFrame(kind, segment))
}

// WriteSegment sends one raw peer segment, header included.
func (c *Client) WriteSegment(segment []byte) error {
	return c.write(KindWrite, segment)
}

// Confirm acknowledges the last indication.
func (c *Client) Confirm() error {
	return c.write(KindConfirm, nil)
}

// Next waits for the next indication segment.
func (c *Client) Next(ctx context.Context) ([]byte, error) {
	select {
	case seg := <-c.indications:
		return seg, nil
	default:
	}
	select {
	case seg := <-c.indications:
		return seg, nil
	case <-c.done:
		if err := c.Err(); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrClientClosed, err)
		}
		return nil, ErrClientClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Send segments msg and writes every segment.
func (c *Client) Send(msg []byte) error {
	segs, err := frame.SplitPeer(msg, c.maxUnit)
	if err != nil {
		return err
	}
	for _, seg := range segs {
		if err := c.WriteSegment(seg); err != nil {
			return err
		}
	}
	return nil
}

// Receive reads indications, confirming each, until a segment with the
// execute bit completes a message.
func (c *Client) Receive(ctx context.Context) ([]byte, error) {
	var msg []byte
	for {
		raw, err := c.Next(ctx)
		if err != nil {
			return nil, err
		}
		seg, err := frame.DecodeSegment(raw)
		if err != nil {
			return nil, err
		}
		if err := c.Confirm(); err != nil {
			return nil, err
		}
		msg = append(msg, seg.Payload...)
		if seg.Header.Execute {
			return msg, nil
		}
	}
}

// Request sends msg and waits for the device's answer.
func (c *Client) Request(ctx context.Context, msg []byte) ([]byte, error) {
	if err := c.Send(msg); err != nil {
		return nil, err
	}
	return c.Receive(ctx)
}

// Close sends a close frame and releases the socket.
func (c *Client) Close() error {
	c.writeMu.Lock()
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()
	err := c.ws.Close()
	<-c.done
	return err
}
