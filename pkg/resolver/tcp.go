package resolver

import (
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/arrowhead-f/confsys/pkg/dnswire"
	"github.com/arrowhead-f/confsys/pkg/log"
	"github.com/arrowhead-f/confsys/pkg/metrics"
)

// tcpTransport is the stream half of a resolver socket. Messages are
// length-prefixed per RFC 1035 §4.2.2 and reassembled by frameParser. TCP
// tasks carry no retry budget; instead the connection itself is ended after
// timeout of silence and every in-flight task fails as unanswered.
type tcpTransport struct {
	server      string
	timeout     time.Duration
	keepOpenFor time.Duration
	unhandled   func(error)
	logger      zerolog.Logger

	mu           sync.Mutex
	conn         net.Conn
	opening      bool
	closed       bool
	outbound     []*task
	inbound      map[uint16]*task
	closeTimer   *time.Timer
	stopScan     chan struct{}
	lastActivity time.Time
}

func newTCPTransport(server string, timeout, keepOpenFor time.Duration, unhandled func(error)) *tcpTransport {
	return &tcpTransport{
		server:      server,
		timeout:     timeout,
		keepOpenFor: keepOpenFor,
		unhandled:   unhandled,
		logger:      log.ForTransport("tcp", server),
		inbound:     make(map[uint16]*task),
	}
}

func (c *tcpTransport) enqueue(t *task) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		t.reject(&Error{Kind: KindOther, Server: c.server, Cause: errors.New("resolver closed")})
		return
	}
	if c.idInUseLocked(t.id) {
		c.mu.Unlock()
		t.reject(&Error{Kind: KindRequestIDInUse, Server: c.server})
		return
	}
	c.cancelDeferredCloseLocked()

	if c.conn == nil {
		c.outbound = append(c.outbound, t)
		if !c.opening {
			c.opening = true
			go c.open()
		}
		c.mu.Unlock()
		return
	}
	conn := c.conn
	c.trackLocked(t)
	c.mu.Unlock()

	c.write(conn, t)
}

func (c *tcpTransport) idInUseLocked(id uint16) bool {
	if _, ok := c.inbound[id]; ok {
		return true
	}
	for _, queued := range c.outbound {
		if queued.id == id {
			return true
		}
	}
	return false
}

func (c *tcpTransport) open() {
	conn, err := net.DialTimeout("tcp", c.server, c.timeout)

	c.mu.Lock()
	c.opening = false
	if err != nil {
		pending := c.drainLocked()
		c.mu.Unlock()
		cause := &Error{Kind: KindOther, Server: c.server, Cause: err}
		for _, t := range pending {
			t.reject(cause)
		}
		c.report(cause)
		return
	}
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return
	}
	c.conn = conn
	c.lastActivity = time.Now()
	c.stopScan = make(chan struct{})
	go c.readLoop(conn)
	go c.scanLoop(c.stopScan)

	flush := c.outbound
	c.outbound = nil
	for _, t := range flush {
		c.trackLocked(t)
	}
	c.mu.Unlock()

	for _, t := range flush {
		c.write(conn, t)
	}
	c.logger.Debug().Msg("connection opened")
}

func (c *tcpTransport) trackLocked(t *task) {
	c.inbound[t.id] = t
	t.sentAt = time.Now()
	c.lastActivity = t.sentAt
	metrics.DNSQueriesSent.WithLabelValues("tcp").Inc()
}

// write frames and sends one message. net.Conn serializes concurrent
// writes, so frames never interleave.
func (c *tcpTransport) write(conn net.Conn, t *task) {
	if _, err := conn.Write(frame(t.encoded)); err != nil {
		c.mu.Lock()
		delete(c.inbound, t.id)
		c.mu.Unlock()
		t.reject(&Error{Kind: KindOther, Server: c.server, Cause: err})
	}
}

// readLoop feeds the stream parser. A clean remote close with in-flight
// tasks is reopenable: the tasks are re-enqueued and the connection is
// re-dialed straight away.
func (c *tcpTransport) readLoop(conn net.Conn) {
	parser := &frameParser{}
	buf := make([]byte, 4096)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			c.touch()
			if perr := parser.feed(buf[:n], c.dispatch); perr != nil {
				c.teardown(&Error{Kind: KindOther, Server: c.server, Cause: perr})
				return
			}
		}
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			if errors.Is(err, io.EOF) {
				c.reopen(conn)
				return
			}
			c.teardown(&Error{Kind: KindOther, Server: c.server, Cause: err})
			return
		}
	}
}

func (c *tcpTransport) touch() {
	c.mu.Lock()
	c.lastActivity = time.Now()
	c.mu.Unlock()
}

func (c *tcpTransport) dispatch(raw []byte) error {
	msg, err := dnswire.Decode(raw)
	if err != nil {
		// A stream that no longer parses as DNS cannot be resynchronized.
		return err
	}

	c.mu.Lock()
	t, ok := c.inbound[msg.ID]
	if !ok {
		c.mu.Unlock()
		c.report(&Error{Kind: KindResponseIDUnexpected, Server: c.server})
		return nil
	}
	delete(c.inbound, msg.ID)
	c.scheduleDeferredCloseLocked()
	c.mu.Unlock()

	completeTask(t, msg, c.server)
	return nil
}

// scanLoop times out tasks and idle connections every timeout/20.
func (c *tcpTransport) scanLoop(stop chan struct{}) {
	ticker := time.NewTicker(c.timeout / 20)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.scan()
		}
	}
}

func (c *tcpTransport) scan() {
	now := time.Now()

	c.mu.Lock()
	if c.conn != nil && len(c.inbound) > 0 && now.Sub(c.lastActivity) >= c.timeout {
		// The connection has gone silent; end it and fail everything on it.
		pending := c.drainLocked()
		c.closeConnLocked()
		c.mu.Unlock()
		for _, t := range pending {
			t.reject(&Error{Kind: KindRequestUnanswered, Server: c.server})
		}
		return
	}

	var expired []*task
	for id, t := range c.inbound {
		if now.Sub(t.sentAt) >= c.timeout {
			delete(c.inbound, id)
			expired = append(expired, t)
		}
	}
	if len(expired) > 0 {
		c.scheduleDeferredCloseLocked()
	}
	c.mu.Unlock()

	for _, t := range expired {
		t.reject(&Error{Kind: KindRequestUnanswered, Server: c.server})
	}
}

func (c *tcpTransport) scheduleDeferredCloseLocked() {
	if len(c.inbound) != 0 || len(c.outbound) != 0 || c.conn == nil {
		return
	}
	c.cancelDeferredCloseLocked()
	c.closeTimer = time.AfterFunc(c.keepOpenFor, c.deferredClose)
}

func (c *tcpTransport) cancelDeferredCloseLocked() {
	if c.closeTimer != nil {
		c.closeTimer.Stop()
		c.closeTimer = nil
	}
}

func (c *tcpTransport) deferredClose() {
	c.mu.Lock()
	if len(c.inbound) != 0 || len(c.outbound) != 0 || c.conn == nil {
		c.mu.Unlock()
		return
	}
	c.closeConnLocked()
	c.mu.Unlock()
	c.logger.Debug().Msg("connection closed after idle period")
}

func (c *tcpTransport) closeConnLocked() {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	if c.stopScan != nil {
		close(c.stopScan)
		c.stopScan = nil
	}
	c.cancelDeferredCloseLocked()
}

func (c *tcpTransport) drainLocked() []*task {
	pending := c.outbound
	c.outbound = nil
	for id, t := range c.inbound {
		pending = append(pending, t)
		delete(c.inbound, id)
	}
	return pending
}

// reopen re-enqueues in-flight tasks after a clean remote close and dials
// again if anything is waiting.
func (c *tcpTransport) reopen(conn net.Conn) {
	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		return
	}
	inflight := make([]*task, 0, len(c.inbound))
	for id, t := range c.inbound {
		inflight = append(inflight, t)
		delete(c.inbound, id)
	}
	c.closeConnLocked()
	if len(inflight) > 0 {
		c.outbound = append(c.outbound, inflight...)
		if !c.opening {
			c.opening = true
			go c.open()
		}
	}
	c.mu.Unlock()
}

func (c *tcpTransport) teardown(cause *Error) {
	c.mu.Lock()
	pending := c.drainLocked()
	c.closeConnLocked()
	c.mu.Unlock()

	for _, t := range pending {
		t.reject(cause)
	}
	c.report(cause)
}

func (c *tcpTransport) report(err error) {
	if c.unhandled != nil {
		c.unhandled(err)
	} else {
		c.logger.Debug().Err(err).Msg("unhandled resolver error")
	}
}

func (c *tcpTransport) close() {
	c.mu.Lock()
	c.closed = true
	pending := c.drainLocked()
	c.closeConnLocked()
	c.mu.Unlock()

	for _, t := range pending {
		t.reject(&Error{Kind: KindOther, Server: c.server, Cause: errors.New("resolver closed")})
	}
}
