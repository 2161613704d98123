// Package issplus implements the STOMP client for the ISS+ real-time feed:
// a WebSocket session carrying one-shot requests and selector-filtered
// subscriptions against live market-data destinations.
package issplus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// DefaultURL is the public ISS+ streaming endpoint.
	DefaultURL = "wss://iss.moex.com/infocx/v3/websocket"

	// subprotocol negotiated during the WebSocket handshake.
	subprotocol = "STOMP"

	defaultHandshakeTimeout = 10 * time.Second
	defaultWriteTimeout     = 10 * time.Second
	defaultQueueSize        = 256
)

// ErrClosed reports an operation on a closed client.
var ErrClosed = errors.New("issplus: client closed")

// AuthError reports a refused CONNECT handshake.
type AuthError struct {
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("issplus: authentication failed: %s", e.Message)
}

// RequestError reports a request answered with an ERROR frame.
type RequestError struct {
	ID      string
	Message string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("issplus: request %s failed: %s", e.ID, e.Message)
}

// SubscriptionError reports a subscription terminated by an ERROR frame.
type SubscriptionError struct {
	ID      string
	Message string
}

func (e *SubscriptionError) Error() string {
	return fmt.Sprintf("issplus: subscription %s failed: %s", e.ID, e.Message)
}

// Credentials authenticate the STOMP session.
type Credentials struct {
	Domain   string
	Login    string
	Passcode string
}

// Passport returns credentials for a MOEX passport account.
func Passport(login, password string) Credentials {
	return Credentials{Domain: "passport", Login: login, Passcode: password}
}

// Guest returns the anonymous demo credentials.
func Guest() Credentials {
	return Credentials{Domain: "DEMO", Login: "guest", Passcode: "guest"}
}

// Client is a live session against the ISS+ feed. One goroutine reads the
// socket and fans frames out to pending requests and subscriptions; a
// Client is safe for concurrent use.
type Client struct {
	url       string
	dialer    *websocket.Dialer
	logger    *log.Logger
	queueSize int

	conn      *websocket.Conn
	structure json.RawMessage

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan *Frame
	subs    map[string]*Subscription
	closed  bool
	cause   error

	done chan struct{}
}

// Option configures a Dial.
type Option func(*Client)

// WithURL overrides the streaming endpoint URL.
func WithURL(url string) Option {
	return func(c *Client) {
		if url != "" {
			c.url = url
		}
	}
}

// WithDialer injects a custom WebSocket dialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(c *Client) {
		if d != nil {
			c.dialer = d
		}
	}
}

// WithLogger injects a custom logger (defaults to log.Default()).
func WithLogger(l *log.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithQueueSize sets the per-subscription message buffer. Messages arriving
// while the buffer is full are dropped.
func WithQueueSize(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.queueSize = n
		}
	}
}

// Dial opens the WebSocket, performs the CONNECT handshake and starts the
// read loop. A refused handshake surfaces as *AuthError.
func Dial(ctx context.Context, cred Credentials, opts ...Option) (*Client, error) {
	c := &Client{
		url:       DefaultURL,
		logger:    log.Default(),
		queueSize: defaultQueueSize,
		pending:   make(map[string]chan *Frame),
		subs:      make(map[string]*Subscription),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	dialer := c.dialer
	if dialer == nil {
		dialer = &websocket.Dialer{HandshakeTimeout: defaultHandshakeTimeout}
	}
	if len(dialer.Subprotocols) == 0 {
		d := *dialer
		d.Subprotocols = []string{subprotocol}
		dialer = &d
	}

	conn, resp, err := dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		if resp != nil && resp.Body != nil {
			resp.Body.Close()
		}
		return nil, fmt.Errorf("issplus: dial %s: %w", c.url, err)
	}
	c.conn = conn

	if err := c.handshake(ctx, cred); err != nil {
		conn.Close()
		return nil, err
	}

	go c.readLoop()
	return c, nil
}

// handshake sends CONNECT and waits for the CONNECTED reply, which carries
// the feed's data catalog in its body.
func (c *Client) handshake(ctx context.Context, cred Credentials) error {
	connect := &Frame{Command: cmdConnect, Headers: map[string]string{
		"domain":   cred.Domain,
		"login":    cred.Login,
		"passcode": cred.Passcode,
	}}
	if err := c.writeFrame(connect); err != nil {
		return err
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetReadDeadline(deadline)
	} else {
		_ = c.conn.SetReadDeadline(time.Now().Add(defaultHandshakeTimeout))
	}
	defer c.conn.SetReadDeadline(time.Time{})

	reply, err := c.readFrame()
	if err != nil {
		return fmt.Errorf("issplus: handshake: %w", err)
	}
	if reply.Command != cmdConnected {
		return &AuthError{Message: reply.Header("message")}
	}

	if len(reply.Body) > 0 {
		var body struct {
			Structure json.RawMessage `json:"structure"`
		}
		if err := json.Unmarshal(reply.Body, &body); err != nil {
			return fmt.Errorf("issplus: decode structure: %w", err)
		}
		c.structure = body.Structure
	}
	return nil
}

// Structure returns the data catalog announced during the handshake:
// available destinations and their column layouts, as raw JSON.
func (c *Client) Structure() json.RawMessage {
	return c.structure
}

// Request performs a one-shot query against a destination and decodes the
// single reply. The selector filters rows server-side, e.g.
// `pattern="SBER"` against SEARCH.ticker.
func (c *Client) Request(ctx context.Context, destination, selector string) (*Payload, error) {
	id := uuid.NewString()
	ch := make(chan *Frame, 1)

	c.mu.Lock()
	if c.closed {
		err := c.cause
		c.mu.Unlock()
		return nil, err
	}
	c.pending[id] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	headers := map[string]string{"id": id, "destination": destination}
	if selector != "" {
		headers["selector"] = selector
	}
	if err := c.writeFrame(&Frame{Command: cmdRequest, Headers: headers}); err != nil {
		return nil, err
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		c.mu.Lock()
		err := c.cause
		c.mu.Unlock()
		return nil, err
	case reply := <-ch:
		if reply.Command == cmdError {
			return nil, &RequestError{ID: id, Message: reply.Header("message")}
		}
		return ParsePayload(reply.Body)
	}
}

// Subscribe opens a selector-filtered stream on a destination. The returned
// subscription delivers payloads until Unsubscribe, Close or a server
// ERROR frame ends it.
func (c *Client) Subscribe(destination, selector string) (*Subscription, error) {
	sub := &Subscription{
		id:          uuid.NewString(),
		destination: destination,
		client:      c,
		msgs:        make(chan *Payload, c.queueSize),
	}

	c.mu.Lock()
	if c.closed {
		err := c.cause
		c.mu.Unlock()
		return nil, err
	}
	c.subs[sub.id] = sub
	c.mu.Unlock()

	headers := map[string]string{
		"id":          sub.id,
		"receipt":     sub.id,
		"destination": destination,
	}
	if selector != "" {
		headers["selector"] = selector
	}
	if err := c.writeFrame(&Frame{Command: cmdSubscribe, Headers: headers}); err != nil {
		c.mu.Lock()
		delete(c.subs, sub.id)
		c.mu.Unlock()
		return nil, err
	}
	return sub, nil
}

// Close ends the session: active subscriptions are unsubscribed, pending
// requests fail with ErrClosed and the socket is closed.
func (c *Client) Close() error {
	subs := c.shutdown(ErrClosed)
	if subs == nil {
		return nil
	}
	for _, s := range subs {
		_ = c.writeFrame(&Frame{Command: cmdUnsubscribe, Headers: map[string]string{"id": s.id}})
		s.finish(nil)
	}
	return c.conn.Close()
}

// shutdown marks the client closed and detaches every subscription.
// It returns nil when the client was closed already.
func (c *Client) shutdown(cause error) []*Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.cause = cause
	subs := make([]*Subscription, 0, len(c.subs))
	for _, s := range c.subs {
		subs = append(subs, s)
	}
	c.subs = make(map[string]*Subscription)
	close(c.done)
	return subs
}

func (c *Client) unsubscribe(s *Subscription) error {
	c.mu.Lock()
	_, active := c.subs[s.id]
	delete(c.subs, s.id)
	closed := c.closed
	c.mu.Unlock()

	var err error
	if active && !closed {
		err = c.writeFrame(&Frame{Command: cmdUnsubscribe, Headers: map[string]string{"id": s.id}})
	}
	s.finish(nil)
	return err
}

func (c *Client) writeFrame(f *Frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(defaultWriteTimeout))
	if err := c.conn.WriteMessage(websocket.BinaryMessage, f.Marshal()); err != nil {
		return fmt.Errorf("issplus: write %s frame: %w", f.Command, err)
	}
	return nil
}

func (c *Client) readFrame() (*Frame, error) {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		// Heartbeats are bare newlines.
		if len(data) == 0 || data[0] == '\n' || data[0] == '\r' {
			continue
		}
		return ParseFrame(data)
	}
}

// readLoop fans incoming frames out to pending requests and subscriptions
// until the socket fails or the client closes.
func (c *Client) readLoop() {
	for {
		frame, err := c.readFrame()
		if err != nil {
			c.fail(err)
			return
		}
		c.dispatch(frame)
	}
}

// fail tears the session down after a socket error. Subscriptions end with
// the error, waiting requests observe it through the done channel.
func (c *Client) fail(err error) {
	cause := fmt.Errorf("issplus: connection lost: %w", err)
	subs := c.shutdown(cause)
	if subs == nil {
		return
	}
	for _, s := range subs {
		s.finish(cause)
	}
	_ = c.conn.Close()
}

func (c *Client) dispatch(f *Frame) {
	if id := f.Header("request-id"); id != "" {
		c.mu.Lock()
		ch, ok := c.pending[id]
		if ok {
			delete(c.pending, id)
		}
		c.mu.Unlock()
		if !ok {
			c.logf("issplus: no pending request %s", id)
			return
		}
		ch <- f
		return
	}

	id := f.Header("subscription")
	if id == "" {
		id = f.Header("receipt-id")
	}
	if id == "" {
		c.logf("issplus: unroutable %s frame", f.Command)
		return
	}

	c.mu.Lock()
	sub, ok := c.subs[id]
	if ok && f.Command == cmdError {
		delete(c.subs, id)
	}
	c.mu.Unlock()
	if !ok {
		c.logf("issplus: no subscription %s", id)
		return
	}

	if f.Command == cmdError {
		sub.finish(&SubscriptionError{ID: id, Message: f.Header("message")})
		return
	}
	if len(f.Body) == 0 {
		// Receipt acknowledgement.
		return
	}
	p, err := ParsePayload(f.Body)
	if err != nil {
		c.logf("issplus: subscription %s: %v", id, err)
		return
	}
	if !sub.deliver(p) {
		c.logf("issplus: subscription %s queue full, dropping message", id)
	}
}

// logf prints debug output when a logger is configured.
func (c *Client) logf(format string, args ...interface{}) {
	if c.logger != nil {
		c.logger.Printf(format, args...)
	}
}

// Subscription is a live stream of payloads from one destination.
type Subscription struct {
	id          string
	destination string
	client      *Client

	msgs chan *Payload

	mu     sync.Mutex
	closed bool
	err    error
}

// ID returns the subscription identifier used on the wire.
func (s *Subscription) ID() string {
	return s.id
}

// Destination returns the subscribed destination.
func (s *Subscription) Destination() string {
	return s.destination
}

// Messages returns the payload stream. The channel closes when the
// subscription ends; consult Err for the reason.
func (s *Subscription) Messages() <-chan *Payload {
	return s.msgs
}

// Err reports why the stream ended: nil after Unsubscribe or Close, the
// terminal error otherwise. Valid once Messages is closed.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Unsubscribe ends the stream and tells the server to stop sending.
func (s *Subscription) Unsubscribe() error {
	return s.client.unsubscribe(s)
}

func (s *Subscription) finish(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.err = err
	close(s.msgs)
}

// deliver queues a payload without blocking the read loop. It reports
// false when the queue is full.
func (s *Subscription) deliver(p *Payload) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return true
	}
	select {
	case s.msgs <- p:
		return true
	default:
		return false
	}
}
