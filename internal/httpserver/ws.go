package httpserver

import (
	"sync"
	"time"

	"github.com/bastiangx/pickserve/internal/session"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const writeWait = 5 * time.Second

// client wraps a websocket connection with a mutex for thread-safe writes.
type client struct {
	conn *websocket.Conn

	mu     sync.Mutex
	closed bool
}

func (c *client) write(f session.Frame) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteJSON(f); err != nil {
		c.closed = true
		_ = c.conn.Close()
	}
}

func (c *client) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return websocket.ErrCloseSent
	}
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

func (c *client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		_ = c.conn.Close()
	}
}

// wsHandler runs one session per connection. Requests and frames are JSON
// text messages.
func (s *Server) wsHandler(ctx *gin.Context) {
	conn, err := s.upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	if err != nil {
		s.log.Warnf("ws: upgrade error: %v", err)
		return
	}

	c := &client{conn: conn}
	sess := session.New(s.resolver, s.cfg.Engine.Options(), c.write)
	sess.SetMaxQueryLen(s.cfg.Server.MaxQueryLen)
	s.register(c)
	defer func() {
		sess.Close()
		c.close()
		s.unregister(c)
		s.log.Debugf("ws: session %s disconnected", sess.ID())
	}()
	s.log.Debugf("ws: session %s connected", sess.ID())

	interval := s.cfg.Server.PingInterval.Duration
	if interval <= 0 {
		interval = 30 * time.Second
	}
	deadline := 2 * interval
	_ = conn.SetReadDeadline(time.Now().Add(deadline))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(deadline))
	})

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := c.ping(); err != nil {
					return
				}
			}
		}
	}()

	for {
		var req session.Request
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Debugf("ws: read error: %v", err)
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(deadline))
		sess.Handle(req)
	}
}

func (s *Server) register(c *client) {
	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) unregister(c *client) {
	s.mu.Lock()
	delete(s.clients, c)
	s.mu.Unlock()
}

func (s *Server) closeClients() {
	s.mu.Lock()
	clients := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()
	for _, c := range clients {
		c.close()
	}
}
