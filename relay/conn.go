package relay

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/drawchat/models"
	"github.com/gosuda/drawchat/wire"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20
	sendQueue      = 256
)

// conn is one websocket client. user, room and canvas are owned by the
// server loop.
type conn struct {
	srv  *Server
	ws   *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once

	user   models.Me
	room   string
	canvas string
}

func newConn(s *Server, ws *websocket.Conn) *conn {
	return &conn{srv: s, ws: ws, send: make(chan []byte, sendQueue), done: make(chan struct{})}
}

// push queues an event. A client that cannot keep up is disconnected.
func (c *conn) push(event string, payload interface{}) {
	c.write(event, 0, payload)
}

// reply answers a request frame.
func (c *conn) reply(ack uint64, payload interface{}) {
	if ack == 0 {
		return
	}
	c.write(wire.EventAck, ack, payload)
}

func (c *conn) write(event string, ack uint64, payload interface{}) {
	f, err := wire.NewFrame(event, ack, payload)
	if err != nil {
		log.Error().Err(err).Str("event", event).Msg("[relay] encode frame")
		return
	}
	data, err := json.Marshal(f)
	if err != nil {
		log.Error().Err(err).Str("event", event).Msg("[relay] encode frame")
		return
	}
	select {
	case <-c.done:
	case c.send <- data:
	default:
		log.Warn().Int64("user", c.user.ID).Msg("[relay] send queue full; dropping client")
		c.close()
	}
}

// close asks the write pump to say goodbye and drop the socket.
func (c *conn) close() {
	c.once.Do(func() { close(c.done) })
}

func (c *conn) readPump() {
	defer c.close()
	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, payload, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Msg("[relay] read message")
			}
			return
		}
		f, err := wire.ParseFrame(payload)
		if err != nil {
			c.srv.metrics.rejected.WithLabelValues("malformed").Inc()
			continue
		}
		c.srv.loop.Post(func() { c.srv.dispatch(c, f) })
	}
}

func (c *conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
		_ = c.ws.Close()
	}()
	for {
		select {
		case data := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "bye"))
			return
		}
	}
}
