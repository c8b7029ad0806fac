package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/yeremiapane/order-relay/kds"
	"github.com/yeremiapane/order-relay/utils"
)

var ErrNotConnected = errors.New("channel is not connected")

// Lifecycle pseudo-events, delivered through the dispatcher like socket.io's
// "connect"/"disconnect". Frames from the server with these names are ignored.
const (
	EventConnect    = "connect"
	EventDisconnect = "disconnect"
)

type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	}
	return "disconnected"
}

type Options struct {
	Header http.Header
	Dialer *websocket.Dialer
	// MinBackoff/MaxBackoff bound the delay between reconnection attempts.
	MinBackoff time.Duration
	MaxBackoff time.Duration
	// ReadTimeout drops a connection that has been silent (no frame, no ping) for this long.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

func (o *Options) defaults() {
	if o.Dialer == nil {
		o.Dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		}
	}
	if o.MinBackoff <= 0 {
		o.MinBackoff = 500 * time.Millisecond
	}
	if o.MaxBackoff < o.MinBackoff {
		o.MaxBackoff = 10 * time.Second
	}
	if o.ReadTimeout == 0 {
		o.ReadTimeout = 75 * time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 10 * time.Second
	}
}

// Channel is a reconnecting websocket connection to the relay. One Channel
// owns at most one live connection; its consumer decides when it opens and closes.
type Channel struct {
	url        string
	opts       Options
	dispatcher *Dispatcher

	mu     sync.Mutex
	state  State
	conn   *websocket.Conn
	cancel context.CancelFunc
	// gen identifies the current run loop; connID the current connection.
	gen    uint64
	connID uint64
	acks   map[string]func(json.RawMessage)

	writeMu sync.Mutex
}

func NewChannel(url string, opts Options) *Channel {
	opts.defaults()
	return &Channel{
		url:        url,
		opts:       opts,
		dispatcher: NewDispatcher(),
		acks:       make(map[string]func(json.RawMessage)),
	}
}

func (c *Channel) Dispatcher() *Dispatcher {
	return c.dispatcher
}

func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Channel) Connected() bool {
	return c.State() == StateConnected
}

// ConnectionID identifies the live connection; 0 while disconnected.
func (c *Channel) ConnectionID() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateConnected {
		return 0
	}
	return c.connID
}

// OnConnect runs fn after every successful (re)connection.
func (c *Channel) OnConnect(fn func()) *Subscription {
	return c.dispatcher.On(EventConnect, func(json.RawMessage) { fn() })
}

// OnDisconnect runs fn every time a live connection is lost or closed.
func (c *Channel) OnDisconnect(fn func()) *Subscription {
	return c.dispatcher.On(EventDisconnect, func(json.RawMessage) { fn() })
}

// Connect starts the connection loop. Calling it while connecting or
// connected is a no-op. Cancelling ctx closes the live connection and stops
// reconnecting; Connect may be called again afterwards.
func (c *Channel) Connect(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.gen++
	c.state = StateConnecting
	go c.run(runCtx, c.gen)
}

// Disconnect closes the live connection and stops reconnecting.
// It does nothing when the channel is not running.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	cancel, conn := c.cancel, c.conn
	c.cancel = nil
	c.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	if conn != nil {
		c.writeMu.Lock()
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		conn.Close()
	}
}

func (c *Channel) run(ctx context.Context, gen uint64) {
	defer c.finish(gen)
	log := utils.InfoLogger.WithField("url", c.url)
	backoff := c.opts.MinBackoff

	for {
		if !c.setState(gen, StateConnecting) {
			return
		}
		conn, _, err := c.opts.Dialer.DialContext(ctx, c.url, c.opts.Header)
		if err != nil {
			c.setState(gen, StateDisconnected)
			if ctx.Err() != nil {
				return
			}
			utils.ErrorLogger.WithField("retry_in", backoff).Warnf("Socket connect failed: %v", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > c.opts.MaxBackoff {
				backoff = c.opts.MaxBackoff
			}
			continue
		}
		backoff = c.opts.MinBackoff

		if !c.attach(gen, conn) {
			conn.Close()
			return
		}
		log.Info("Socket connected")
		c.dispatcher.Dispatch(EventConnect, nil)

		closed := make(chan struct{})
		go func() {
			select {
			case <-ctx.Done():
				conn.Close()
			case <-closed:
			}
		}()
		c.readLoop(conn)
		close(closed)

		c.detach(gen)
		log.Info("Socket disconnected")
		c.dispatcher.Dispatch(EventDisconnect, nil)

		if ctx.Err() != nil {
			return
		}
	}
}

func (c *Channel) setState(gen uint64, s State) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return false
	}
	c.state = s
	return true
}

func (c *Channel) attach(gen uint64, conn *websocket.Conn) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen || c.cancel == nil {
		return false
	}
	c.conn = conn
	c.connID++
	c.state = StateConnected
	return true
}

// finish releases a run loop that ended on its own, e.g. on ctx cancellation.
func (c *Channel) finish(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return
	}
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.conn = nil
	c.state = StateDisconnected
}

func (c *Channel) detach(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return
	}
	c.conn = nil
	c.state = StateDisconnected
	// acks of a dead connection will never be answered
	c.acks = make(map[string]func(json.RawMessage))
}

func (c *Channel) readLoop(conn *websocket.Conn) {
	extend := func() {
		if c.opts.ReadTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(c.opts.ReadTimeout))
		}
	}
	extend()
	conn.SetPingHandler(func(appData string) error {
		extend()
		err := conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(c.opts.WriteTimeout))
		if err == websocket.ErrCloseSent {
			return nil
		}
		return err
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				utils.ErrorLogger.Warnf("Socket read error: %v", err)
			}
			conn.Close()
			return
		}
		extend()

		var env kds.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			utils.ErrorLogger.Warnf("Socket received malformed frame: %v", err)
			continue
		}
		c.route(env)
	}
}

func (c *Channel) route(env kds.Envelope) {
	switch env.Event {
	case kds.EventAck:
		c.mu.Lock()
		cb := c.acks[env.Ack]
		delete(c.acks, env.Ack)
		c.mu.Unlock()
		if cb != nil {
			c.callAck(cb, env.Data)
		}
	case EventConnect, EventDisconnect:
		// reserved for lifecycle hooks
	default:
		if n := c.dispatcher.Dispatch(env.Event, env.Data); n == 0 {
			utils.InfoLogger.WithFields(logrus.Fields{"event": env.Event}).Debug("No handler for event")
		}
	}
}

func (c *Channel) callAck(cb func(json.RawMessage), data json.RawMessage) {
	defer func() {
		if r := recover(); r != nil {
			utils.ErrorLogger.Errorf("Ack callback panicked: %v", r)
		}
	}()
	cb(data)
}

// Emit sends an event. When ack is non-nil the server's acknowledgement is
// passed to it; acks pending on a lost connection are discarded.
func (c *Channel) Emit(event string, payload interface{}, ack func(json.RawMessage)) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	env := kds.Envelope{Event: event, Data: data}

	c.mu.Lock()
	conn := c.conn
	if conn == nil || c.state != StateConnected {
		c.mu.Unlock()
		return ErrNotConnected
	}
	if ack != nil {
		env.Ack = uuid.NewString()
		c.acks[env.Ack] = ack
	}
	c.mu.Unlock()

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
	if err := conn.WriteJSON(env); err != nil {
		if env.Ack != "" {
			c.mu.Lock()
			delete(c.acks, env.Ack)
			c.mu.Unlock()
		}
		return err
	}
	return nil
}
