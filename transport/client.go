package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/gosuda/drawchat/wire"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = 30 * time.Second
	maxFrameSize   = 1 << 20
	sendBufferSize = 256
)

// Options configures a Client.
type Options struct {
	URL    string
	Header http.Header
	Dialer *websocket.Dialer
	// ReconnectDelay is the minimum spacing between connection attempts.
	ReconnectDelay time.Duration
	// ReconnectBurst is how many attempts may happen back to back.
	ReconnectBurst int
}

// Client is a websocket Duplex that reconnects until closed.
type Client struct {
	opts    Options
	dialer  *websocket.Dialer
	limiter *rate.Limiter

	mu       sync.Mutex
	send     chan []byte
	state    State
	reg      registry
	stateFns []func(State)
	nextAck  uint64
	pending  map[uint64]chan json.RawMessage

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var _ Duplex = (*Client)(nil)

// NewClient creates a client; call Start to begin connecting.
func NewClient(opts Options) *Client {
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = time.Second
	}
	if opts.ReconnectBurst <= 0 {
		opts.ReconnectBurst = 1
	}
	dialer := opts.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		opts:    opts,
		dialer:  dialer,
		limiter: rate.NewLimiter(rate.Every(opts.ReconnectDelay), opts.ReconnectBurst),
		reg:     newRegistry(),
		pending: make(map[uint64]chan json.RawMessage),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// OnState registers a connectivity callback. Callbacks run on the
// transport goroutine and must not block.
func (c *Client) OnState(fn func(State)) {
	c.mu.Lock()
	c.stateFns = append(c.stateFns, fn)
	c.mu.Unlock()
}

// State reports the current connectivity.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Start runs the connect/reconnect loop in the background.
func (c *Client) Start() {
	c.wg.Add(1)
	go c.run()
}

// Close stops reconnecting, closes the socket and waits for the pumps.
func (c *Client) Close() error {
	c.cancel()
	c.wg.Wait()
	return nil
}

// On implements Duplex.
func (c *Client) On(event string, h Handler) func() {
	c.mu.Lock()
	id := c.reg.add(event, h)
	c.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			c.reg.remove(event, id)
			c.mu.Unlock()
		})
	}
}

// Emit implements Duplex.
func (c *Client) Emit(event string, payload interface{}) error {
	f, err := wire.NewFrame(event, 0, payload)
	if err != nil {
		return err
	}
	return c.write(f)
}

// Request implements Duplex.
func (c *Client) Request(ctx context.Context, event string, payload interface{}) (json.RawMessage, error) {
	reply := make(chan json.RawMessage, 1)
	c.mu.Lock()
	c.nextAck++
	ack := c.nextAck
	c.pending[ack] = reply
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, ack)
		c.mu.Unlock()
	}()

	f, err := wire.NewFrame(event, ack, payload)
	if err != nil {
		return nil, err
	}
	if err := c.write(f); err != nil {
		return nil, err
	}
	select {
	case data, ok := <-reply:
		if !ok {
			return nil, ErrDisconnected
		}
		return data, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.ctx.Done():
		return nil, ErrClosed
	}
}

func (c *Client) write(f *wire.Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("encode %s: %w", f.Event, err)
	}
	c.mu.Lock()
	send := c.send
	c.mu.Unlock()
	if send == nil {
		return ErrNotConnected
	}
	select {
	case send <- data:
		return nil
	case <-c.ctx.Done():
		return ErrClosed
	default:
		return fmt.Errorf("send %s: queue full", f.Event)
	}
}

func (c *Client) run() {
	defer c.wg.Done()
	for {
		if err := c.limiter.Wait(c.ctx); err != nil {
			return
		}
		conn, _, err := c.dialer.DialContext(c.ctx, c.opts.URL, c.opts.Header)
		if err != nil {
			if c.ctx.Err() != nil {
				return
			}
			log.Warn().Err(err).Str("url", c.opts.URL).Msg("[transport] dial failed")
			continue
		}
		c.serve(conn)
		if c.ctx.Err() != nil {
			return
		}
		log.Info().Str("url", c.opts.URL).Msg("[transport] connection lost; reconnecting")
	}
}

// serve pumps one connection until it drops.
func (c *Client) serve(conn *websocket.Conn) {
	send := make(chan []byte, sendBufferSize)
	done := make(chan struct{})

	c.mu.Lock()
	c.send = send
	c.mu.Unlock()
	c.setState(StateConnected)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.writeLoop(conn, send, done)
	}()
	stop := context.AfterFunc(c.ctx, func() {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
		_ = conn.Close()
	})
	c.readLoop(conn)
	stop()
	close(done)
	_ = conn.Close()
	wg.Wait()

	c.mu.Lock()
	c.send = nil
	for ack, ch := range c.pending {
		close(ch)
		delete(c.pending, ack)
	}
	c.mu.Unlock()
	c.setState(StateDisconnected)
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	fns := append(([]func(State))(nil), c.stateFns...)
	c.mu.Unlock()
	for _, fn := range fns {
		fn(s)
	}
}

func (c *Client) readLoop(conn *websocket.Conn) {
	conn.SetReadLimit(maxFrameSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Msg("[transport] read message")
			}
			return
		}
		f, err := wire.ParseFrame(payload)
		if err != nil {
			log.Warn().Err(err).Msg("[transport] dropping frame")
			continue
		}
		c.dispatch(f)
	}
}

func (c *Client) dispatch(f *wire.Frame) {
	if f.Event == wire.EventAck {
		c.mu.Lock()
		ch, ok := c.pending[f.Ack]
		if ok {
			delete(c.pending, f.Ack)
		}
		c.mu.Unlock()
		if ok {
			ch <- f.Data
		}
		return
	}
	c.mu.Lock()
	handlers := c.reg.snapshot(f.Event)
	c.mu.Unlock()
	for _, h := range handlers {
		h(f.Data)
	}
}

func (c *Client) writeLoop(conn *websocket.Conn, send <-chan []byte, done <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case data := <-send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Debug().Err(err).Msg("[transport] write message")
				_ = conn.Close()
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = conn.Close()
				return
			}
		case <-done:
			return
		}
	}
}
