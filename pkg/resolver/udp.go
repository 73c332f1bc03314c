package resolver

import (
	"errors"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/arrowhead-f/confsys/pkg/dnswire"
	"github.com/arrowhead-f/confsys/pkg/log"
	"github.com/arrowhead-f/confsys/pkg/metrics"
)

// udpRetries is the number of retransmissions a UDP task is allowed after
// its first transmission.
const udpRetries = 2

// udpTransport is the datagram half of a resolver socket. One datagram is
// one message; there is no framing state. The socket is opened lazily on
// first enqueue and closed keepOpenFor after the last activity.
type udpTransport struct {
	server      string
	timeout     time.Duration
	keepOpenFor time.Duration
	unhandled   func(error)
	logger      zerolog.Logger

	mu         sync.Mutex
	conn       net.Conn
	opening    bool
	closed     bool
	outbound   []*task
	inbound    map[uint16]*task
	closeTimer *time.Timer
	stopScan   chan struct{}
}

func newUDPTransport(server string, timeout, keepOpenFor time.Duration, unhandled func(error)) *udpTransport {
	return &udpTransport{
		server:      server,
		timeout:     timeout,
		keepOpenFor: keepOpenFor,
		unhandled:   unhandled,
		logger:      log.ForTransport("udp", server),
		inbound:     make(map[uint16]*task),
	}
}

// enqueue submits a task. An id collision with an in-flight or queued task
// is rejected without touching the socket.
func (u *udpTransport) enqueue(t *task) {
	u.mu.Lock()
	if u.closed {
		u.mu.Unlock()
		t.reject(&Error{Kind: KindOther, Server: u.server, Cause: errors.New("resolver closed")})
		return
	}
	if u.idInUseLocked(t.id) {
		u.mu.Unlock()
		t.reject(&Error{Kind: KindRequestIDInUse, Server: u.server})
		return
	}
	u.cancelDeferredCloseLocked()

	if u.conn == nil {
		u.outbound = append(u.outbound, t)
		if !u.opening {
			u.opening = true
			go u.open()
		}
		u.mu.Unlock()
		return
	}
	u.transmitLocked(t)
	u.mu.Unlock()
}

func (u *udpTransport) idInUseLocked(id uint16) bool {
	if _, ok := u.inbound[id]; ok {
		return true
	}
	for _, queued := range u.outbound {
		if queued.id == id {
			return true
		}
	}
	return false
}

// open dials the server and flushes the outbound queue. Runs off the
// caller's goroutine so enqueue never blocks on connect.
func (u *udpTransport) open() {
	conn, err := net.DialTimeout("udp", u.server, u.timeout)

	u.mu.Lock()
	u.opening = false
	if err != nil {
		pending := u.drainLocked()
		u.mu.Unlock()
		u.rejectAll(pending, &Error{Kind: KindOther, Server: u.server, Cause: err})
		return
	}
	if u.closed {
		u.mu.Unlock()
		conn.Close()
		return
	}
	u.conn = conn
	u.stopScan = make(chan struct{})
	go u.readLoop(conn)
	go u.scanLoop(u.stopScan)

	for _, t := range u.outbound {
		u.transmitLocked(t)
	}
	u.outbound = nil
	u.scheduleDeferredCloseLocked()
	u.mu.Unlock()

	u.logger.Debug().Msg("socket opened")
}

// transmitLocked moves a task into the inbound table and writes it out.
func (u *udpTransport) transmitLocked(t *task) {
	u.inbound[t.id] = t
	t.sentAt = time.Now()
	metrics.DNSQueriesSent.WithLabelValues("udp").Inc()
	if _, err := u.conn.Write(t.encoded); err != nil {
		delete(u.inbound, t.id)
		go t.reject(&Error{Kind: KindOther, Server: u.server, Cause: err})
	}
}

// readLoop receives datagrams and dispatches them by message id.
func (u *udpTransport) readLoop(conn net.Conn) {
	buf := make([]byte, dnswire.MaxMessageLen)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			u.teardown(&Error{Kind: KindOther, Server: u.server, Cause: err})
			return
		}
		msg, err := dnswire.Decode(buf[:n])
		if err != nil {
			u.report(&Error{Kind: KindOther, Server: u.server, Cause: err})
			continue
		}
		u.dispatch(msg)
	}
}

// dispatch matches a response to its task. Responses with unknown ids are
// surfaced to the unhandled-error sink and discarded; they do not kill the
// socket.
func (u *udpTransport) dispatch(msg *dnswire.Message) {
	u.mu.Lock()
	t, ok := u.inbound[msg.ID]
	if !ok {
		u.mu.Unlock()
		u.report(&Error{Kind: KindResponseIDUnexpected, Server: u.server})
		return
	}
	delete(u.inbound, msg.ID)
	u.scheduleDeferredCloseLocked()
	u.mu.Unlock()

	completeTask(t, msg, u.server)
}

// scanLoop retries and times out in-flight tasks every timeout/20.
func (u *udpTransport) scanLoop(stop chan struct{}) {
	ticker := time.NewTicker(u.timeout / 20)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			u.scan()
		}
	}
}

func (u *udpTransport) scan() {
	now := time.Now()
	var expired []*task

	u.mu.Lock()
	for id, t := range u.inbound {
		if now.Sub(t.sentAt) < u.timeout {
			continue
		}
		if t.retriesLeft > 0 {
			t.retriesLeft--
			t.sentAt = now
			metrics.DNSRetries.Inc()
			if u.conn != nil {
				u.conn.Write(t.encoded)
			}
			continue
		}
		delete(u.inbound, id)
		expired = append(expired, t)
	}
	if len(expired) > 0 {
		u.scheduleDeferredCloseLocked()
	}
	u.mu.Unlock()

	for _, t := range expired {
		t.reject(&Error{Kind: KindRequestUnanswered, Server: u.server})
	}
}

// scheduleDeferredCloseLocked arms the close timer when both queues are
// empty; any in-flight arrival cancels and re-arms it.
func (u *udpTransport) scheduleDeferredCloseLocked() {
	if len(u.inbound) != 0 || len(u.outbound) != 0 || u.conn == nil {
		return
	}
	u.cancelDeferredCloseLocked()
	u.closeTimer = time.AfterFunc(u.keepOpenFor, u.deferredClose)
}

func (u *udpTransport) cancelDeferredCloseLocked() {
	if u.closeTimer != nil {
		u.closeTimer.Stop()
		u.closeTimer = nil
	}
}

func (u *udpTransport) deferredClose() {
	u.mu.Lock()
	if len(u.inbound) != 0 || len(u.outbound) != 0 || u.conn == nil {
		u.mu.Unlock()
		return
	}
	u.closeConnLocked()
	u.mu.Unlock()
	u.logger.Debug().Msg("socket closed after idle period")
}

func (u *udpTransport) closeConnLocked() {
	if u.conn != nil {
		u.conn.Close()
		u.conn = nil
	}
	if u.stopScan != nil {
		close(u.stopScan)
		u.stopScan = nil
	}
	u.cancelDeferredCloseLocked()
}

func (u *udpTransport) drainLocked() []*task {
	pending := u.outbound
	u.outbound = nil
	for id, t := range u.inbound {
		pending = append(pending, t)
		delete(u.inbound, id)
	}
	return pending
}

// teardown fails every task on the transport after a socket-level error.
func (u *udpTransport) teardown(cause *Error) {
	u.mu.Lock()
	pending := u.drainLocked()
	u.closeConnLocked()
	u.mu.Unlock()

	u.rejectAll(pending, cause)
}

func (u *udpTransport) rejectAll(pending []*task, cause *Error) {
	for _, t := range pending {
		t.reject(cause)
	}
	u.report(cause)
}

func (u *udpTransport) report(err error) {
	if u.unhandled != nil {
		u.unhandled(err)
	} else {
		u.logger.Debug().Err(err).Msg("unhandled resolver error")
	}
}

// close shuts the transport down for good, rejecting anything outstanding.
func (u *udpTransport) close() {
	u.mu.Lock()
	u.closed = true
	pending := u.drainLocked()
	u.closeConnLocked()
	u.mu.Unlock()

	for _, t := range pending {
		t.reject(&Error{Kind: KindOther, Server: u.server, Cause: errors.New("resolver closed")})
	}
}

// completeTask applies the response acceptance rules shared by both
// transports: opcode must match the request and rcode must be zero.
func completeTask(t *task, msg *dnswire.Message, server string) {
	if msg.Flags.Opcode != t.request.Flags.Opcode {
		t.reject(&Error{Kind: KindResponseNotExpected, Server: server, Response: msg})
		return
	}
	if msg.Flags.Rcode != dnswire.RcodeNoError {
		t.reject(&Error{Kind: KindResponseBad, Server: server, Rcode: msg.Flags.Rcode, Response: msg})
		return
	}
	t.resolve(msg)
}
