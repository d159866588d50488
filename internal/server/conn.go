package server

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/liuscraft/orion-stream/internal/logging"
	"github.com/liuscraft/orion-stream/internal/protocol"
	"github.com/liuscraft/orion-stream/internal/session"
)

// InvalidJSONMessage is sent back when an inbound frame is not JSON.
const InvalidJSONMessage = "Invalid JSON format"

type connection struct {
	server   *Server
	conn     *websocket.Conn
	session  *session.Session
	log      *zap.SugaredLogger
	writeMu  sync.Mutex
	readDone chan struct{}
}

// ServeWS upgrades the request and runs one session until the peer leaves
// or the session closes.
func (s *Server) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warnw("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(s.cfg.ReadLimit)

	sess := session.New(session.NewID(), s.synth, s.cfg.Session, s.metrics)
	sess.Start(s.ctx)
	s.registry.Add(sess)
	s.metrics.SessionOpened()
	defer func() {
		sess.Stop()
		s.registry.Remove(sess.ID())
		s.metrics.SessionClosed()
	}()

	c := &connection{
		server:   s,
		conn:     conn,
		session:  sess,
		log:      logging.Session(sess.ID()),
		readDone: make(chan struct{}),
	}
	c.log.Infow("session connected", "remote", r.RemoteAddr)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.writeLoop()
	}()

	c.readLoop()
	close(c.readDone)
	sess.Stop()
	<-writerDone
	c.log.Infow("session disconnected", "stats", sess.Stats())
}

// readLoop handles inbound frames strictly in arrival order.
func (c *connection) readLoop() {
	for {
		mt, data, err := c.conn.ReadMessage()
		if err != nil {
			switch {
			case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
				c.log.Debugw("peer closed", "error", err)
			case websocket.IsUnexpectedCloseError(err):
				c.log.Warnw("abnormal disconnect", "error", err)
			default:
				c.log.Debugw("read ended", "error", err)
			}
			return
		}
		if mt != websocket.TextMessage {
			c.violation(errors.New("non-text frame"))
			continue
		}

		msg, err := protocol.DecodeInbound(data)
		if err != nil {
			c.violation(err)
			if errors.Is(err, protocol.ErrInvalidJSON) {
				c.write(protocol.NewError(c.session.Generation(), InvalidJSONMessage))
			}
			continue
		}

		if err := c.session.Handle(msg); err != nil {
			if errors.Is(err, session.ErrClosed) {
				c.log.Debugw("message after close ignored")
				continue
			}
			c.log.Warnw("handle message failed", "error", err)
		}
	}
}

func (c *connection) violation(err error) {
	c.server.metrics.ProtocolViolation()
	c.log.Warnw("protocol violation", "error", err)
}

// writeLoop forwards session frames. Frames from a superseded generation
// are dropped here so nothing produced before a reset reaches the peer.
func (c *connection) writeLoop() {
	for f := range c.session.Outbound() {
		if f.Close {
			c.closeNormal()
			return
		}
		if c.session.Stale(f) {
			c.server.metrics.StaleDiscard()
			continue
		}
		if err := c.write(f.Message); err != nil {
			c.log.Warnw("write failed", "error", err)
			return
		}
	}
}

func (c *connection) write(msg protocol.Outbound) error {
	data, err := msg.Encode()
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.server.cfg.WriteTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// closeNormal sends a 1000 close and gives the peer a moment to answer
// before the socket is torn down.
func (c *connection) closeNormal() {
	c.writeMu.Lock()
	err := c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(c.server.cfg.WriteTimeout))
	c.writeMu.Unlock()
	if err != nil {
		c.log.Debugw("close frame not sent", "error", err)
	}

	select {
	case <-c.readDone:
	case <-time.After(closeGrace):
	}
	_ = c.conn.Close()
}
