package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/magefree/tabletop-server-go/internal/coordinator"
	"github.com/magefree/tabletop-server-go/internal/game"
	"go.uber.org/zap"
)

// Message types.
const (
	TypeSubscribe   = "subscribe"
	TypeUnsubscribe = "unsubscribe"
	TypeCommand     = "command"
	TypeUpdate      = "update"
	TypeError       = "error"
	TypeAck         = "ack"
)

// Inbound is a client request.
type Inbound struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	SessionID string          `json:"session_id"`
	Command   string          `json:"command,omitempty"`
	Args      json.RawMessage `json:"args,omitempty"`
}

// Outbound is pushed to the client.
type Outbound struct {
	Type      string              `json:"type"`
	RequestID string              `json:"request_id,omitempty"`
	SessionID string              `json:"session_id,omitempty"`
	Version   int64               `json:"version,omitempty"`
	Deleted   bool                `json:"deleted,omitempty"`
	Update    *coordinator.Update `json:"update,omitempty"`
	Error     *game.Detail        `json:"error,omitempty"`
}

var (
	errClientClosed = errors.New("client closed")
	errSlowClient   = errors.New("client send buffer full")
)

// Client is one WebSocket connection.
type Client struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	done chan struct{}

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once

	mu   sync.Mutex
	subs map[string]*subscription // by session id
}

// subscription is one observed session. gone is set once the session's
// deleted update has been delivered.
type subscription struct {
	handle int
	gone   bool
}

// enqueue never blocks. A client that cannot keep up is disconnected.
func (c *Client) enqueue(msg Outbound) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return errClientClosed
	default:
	}
	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return errClientClosed
	default:
		c.hub.logger.Warn("dropping slow client", zap.String("client", c.id))
		c.close()
		return errSlowClient
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.cancel()

		c.mu.Lock()
		subs := c.subs
		c.subs = make(map[string]*subscription)
		c.mu.Unlock()
		for _, sub := range subs {
			c.hub.sessions.Unsubscribe(sub.handle)
		}
		c.hub.remove(c)
	})
}

func (c *Client) readPump() {
	defer c.close()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.hub.cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.hub.cfg.PongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Debug("websocket read failed", zap.String("client", c.id), zap.Error(err))
			}
			return
		}

		var msg Inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			c.fail(Inbound{}, game.InvalidArgument("ws", "malformed message: %v", err))
			continue
		}
		c.handle(msg)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(c.hub.cfg.PongWait * 9 / 10)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.hub.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.close()
				return
			}
		case <-ticker.C:
			deadline := time.Now().Add(c.hub.cfg.WriteWait)
			if err := c.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				c.close()
				return
			}
		case <-c.done:
			deadline := time.Now().Add(c.hub.cfg.WriteWait)
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
			return
		}
	}
}

func (c *Client) handle(msg Inbound) {
	if msg.SessionID == "" {
		c.fail(msg, game.InvalidArgument(msg.Type, "session_id is required"))
		return
	}
	switch msg.Type {
	case TypeSubscribe:
		c.subscribe(msg)
	case TypeUnsubscribe:
		c.unsubscribe(msg)
	case TypeCommand:
		c.command(msg)
	default:
		c.fail(msg, game.InvalidArgument("ws", "unknown message type %q", msg.Type))
	}
}

func (c *Client) subscribe(msg Inbound) {
	c.mu.Lock()
	_, already := c.subs[msg.SessionID]
	c.mu.Unlock()
	if already {
		c.ack(msg, 0, false)
		return
	}

	id := msg.SessionID
	sub := &subscription{}
	handle, err := c.hub.sessions.Subscribe(c.ctx, id, func(u coordinator.Update) error {
		if u.Type == coordinator.UpdateDeleted {
			c.forget(id, sub)
		}
		return c.enqueue(Outbound{Type: TypeUpdate, SessionID: id, Version: u.Version, Update: &u})
	})
	if err != nil {
		c.fail(msg, err)
		return
	}

	// The deleted update may run before Subscribe returns. Such a
	// subscription is never stored.
	c.mu.Lock()
	closed := false
	select {
	case <-c.done:
		closed = true
	default:
	}
	gone := sub.gone
	if !closed && !gone {
		sub.handle = handle
		c.subs[id] = sub
	}
	c.mu.Unlock()

	if closed || gone {
		c.hub.sessions.Unsubscribe(handle)
	}
	if !closed {
		c.ack(msg, 0, gone)
	}
}

// forget drops sub once its session is gone. A newer subscription to the
// same id is left alone.
func (c *Client) forget(id string, sub *subscription) {
	c.mu.Lock()
	sub.gone = true
	if c.subs[id] == sub {
		delete(c.subs, id)
	}
	c.mu.Unlock()
}

func (c *Client) unsubscribe(msg Inbound) {
	c.mu.Lock()
	sub, ok := c.subs[msg.SessionID]
	delete(c.subs, msg.SessionID)
	c.mu.Unlock()
	if ok {
		c.hub.sessions.Unsubscribe(sub.handle)
	}
	c.ack(msg, 0, false)
}

func (c *Client) command(msg Inbound) {
	cmd, err := coordinator.ParseCommand(msg.Command, msg.Args)
	if err != nil {
		c.fail(msg, err)
		return
	}
	res, err := c.hub.sessions.Execute(c.ctx, msg.SessionID, cmd)
	if err != nil {
		c.fail(msg, err)
		return
	}
	c.ack(msg, res.Session.Version, res.Deleted)
}

func (c *Client) ack(msg Inbound, version int64, deleted bool) {
	_ = c.enqueue(Outbound{
		Type:      TypeAck,
		RequestID: msg.RequestID,
		SessionID: msg.SessionID,
		Version:   version,
		Deleted:   deleted,
	})
}

func (c *Client) fail(msg Inbound, err error) {
	detail := game.DetailOf(err)
	_ = c.enqueue(Outbound{
		Type:      TypeError,
		RequestID: msg.RequestID,
		SessionID: msg.SessionID,
		Error:     &detail,
	})
}
