package ws

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/gungorefecetin/web-code-editor/internal/protocol"
	"github.com/gungorefecetin/web-code-editor/internal/ratelimit"
	"github.com/gungorefecetin/web-code-editor/internal/room"
	"github.com/gungorefecetin/web-code-editor/internal/session"
)

var (
	// ErrSendBufferFull is returned when a client's outbound queue is full.
	ErrSendBufferFull = errors.New("send buffer full")

	// ErrClosed is returned when sending to a closed client.
	ErrClosed = errors.New("connection closed")
)

// Client is one websocket connection. It implements room.Conn.
type Client struct {
	id      string
	hub     *Hub
	conn    *websocket.Conn
	session *session.Session
	router  *session.Router
	decoder *protocol.Decoder
	limiter *ratelimit.Limiter
	opts    Options
	logger  *slog.Logger

	send   chan []byte
	sendFn SendFunc

	closeOnce sync.Once
	closed    chan struct{}
}

var _ room.Conn = (*Client)(nil)

// ID returns the connection id.
func (c *Client) ID() string { return c.id }

// Send queues ev for delivery without blocking.
func (c *Client) Send(ev room.Event) error {
	return c.sendFn(ev)
}

// Close disconnects the client. The write pump sends a close frame and tears
// down the socket, which ends the read pump.
func (c *Client) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *Client) enqueue(ev room.Event) error {
	select {
	case <-c.closed:
		return ErrClosed
	default:
	}

	data, err := protocol.Encode(ev)
	if err != nil {
		return err
	}

	select {
	case c.send <- data:
		return nil
	default:
		return ErrSendBufferFull
	}
}

func (c *Client) readPump() {
	defer func() {
		c.router.Dispatch(c.session, protocol.Disconnect{})
		c.hub.remove(c)
		c.Close()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.opts.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))
		return nil
	})

	for {
		kind, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.logger.Warn("websocket read failed", "conn_id", c.id, "error", err)
			}
			return
		}

		if !c.limiter.Allow() {
			dropped := c.limiter.Dropped()
			if dropped%100 == 1 {
				c.logger.Warn("rate limit exceeded", "conn_id", c.id, "dropped", dropped)
			}
			if dropped > c.opts.MaxRateViolations {
				c.logger.Warn("disconnecting client for excessive rate limit violations", "conn_id", c.id, "dropped", dropped)
				return
			}
			continue
		}

		if !c.handle(kind, frame) {
			return
		}
	}
}

// handle decodes one inbound frame and dispatches it. It reports false once
// the client has been closed; frames still buffered at that point are dropped.
func (c *Client) handle(kind int, frame []byte) bool {
	select {
	case <-c.closed:
		c.logger.Debug("dropping frame from closed client", "conn_id", c.id)
		return false
	default:
	}

	if kind != websocket.TextMessage {
		c.logger.Warn("dropping non-text frame", "conn_id", c.id, "type", kind)
		return true
	}

	ev, err := c.decoder.Decode(frame)
	if err != nil {
		c.logger.Warn("dropping invalid event", "conn_id", c.id, "error", err)
		return true
	}
	c.router.Dispatch(c.session, ev)
	return true
}

func (c *Client) writePump() {
	ticker := time.NewTicker(c.opts.PingPeriod())
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Debug("websocket write failed", "conn_id", c.id, "error", err)
				c.Close()
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}

		case <-c.closed:
			c.flush()
			c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// flush writes whatever is already queued so a replaced or shutting down
// client still sees the events produced before its close.
func (c *Client) flush() {
	for {
		select {
		case data := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		default:
			return
		}
	}
}
