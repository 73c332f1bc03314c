package resolver

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/arrowhead-f/confsys/pkg/dnswire"
)

const (
	// DefaultTimeout bounds each request before retry or rejection.
	DefaultTimeout = 10 * time.Second

	// DefaultKeepOpenFor is how long an idle socket stays open after the
	// last activity.
	DefaultKeepOpenFor = 3 * time.Second

	// DefaultPort is the DNS server port used when an address has none.
	DefaultPort = "53"
)

// Options configures a Socket. The zero value gets defaults applied.
type Options struct {
	// Timeout is the per-request timeout; retries count from each
	// transmission.
	Timeout time.Duration

	// KeepOpenFor delays socket close after the queues drain.
	KeepOpenFor time.Duration

	// OnUnhandledError receives socket-level faults and orphan responses
	// that cannot be attributed to a caller.
	OnUnhandledError func(error)
}

func (o *Options) withDefaults() Options {
	opts := Options{}
	if o != nil {
		opts = *o
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.KeepOpenFor <= 0 {
		opts.KeepOpenFor = DefaultKeepOpenFor
	}
	return opts
}

// Socket is a dual-transport request/response engine bound to one DNS
// server. UPDATE messages and messages longer than 512 bytes travel over
// TCP; everything else over UDP with up to two retries. Each transport
// opens lazily, tracks in-flight tasks by message id, and closes itself
// after an idle period.
type Socket struct {
	server string
	udp    *udpTransport
	tcp    *tcpTransport

	mu     sync.Mutex
	nextID uint16
}

// NewSocket creates a socket for the given server address (host or
// host:port). The message-id counter is seeded randomly and scoped to this
// socket.
func NewSocket(server string, opts *Options) *Socket {
	o := opts.withDefaults()
	addr := ensurePort(server)
	return &Socket{
		server: addr,
		udp:    newUDPTransport(addr, o.Timeout, o.KeepOpenFor, o.OnUnhandledError),
		tcp:    newTCPTransport(addr, o.Timeout, o.KeepOpenFor, o.OnUnhandledError),
		nextID: uint16(rand.Uint32()),
	}
}

// Server returns the server address this socket is bound to.
func (s *Socket) Server() string {
	return s.server
}

// NextID returns a fresh message id from the socket-scoped counter.
func (s *Socket) NextID() uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	return s.nextID
}

// Send transmits a message and waits for the matching response. The
// returned error is always a *Error; a response with a non-zero rcode is
// rejected as ResponseBad with the message attached.
func (s *Socket) Send(ctx context.Context, msg *dnswire.Message) (*dnswire.Message, error) {
	encoded, err := msg.Encode()
	if err != nil {
		return nil, &Error{Kind: KindOther, Server: s.server, Cause: err}
	}
	if len(encoded) > dnswire.MaxMessageLen {
		return nil, &Error{Kind: KindRequestTooLong, Server: s.server}
	}

	var t *task
	if wantsTCP(msg, encoded) {
		t = newTask(msg, encoded, 0)
		s.tcp.enqueue(t)
	} else {
		t = newTask(msg, encoded, udpRetries)
		s.udp.enqueue(t)
	}

	select {
	case res := <-t.done:
		return res.response, res.err
	case <-ctx.Done():
		// The task stays tracked and is eventually retried or timed out by
		// the transport; the caller just stops waiting.
		return nil, &Error{Kind: KindOther, Server: s.server, Cause: ctx.Err()}
	}
}

// Close shuts both transports down and rejects everything outstanding.
func (s *Socket) Close() {
	s.udp.close()
	s.tcp.close()
}

// MultiError aggregates per-server failures from SendAll.
type MultiError struct {
	Errors []error
}

func (m *MultiError) Error() string {
	if len(m.Errors) == 1 {
		return m.Errors[0].Error()
	}
	return fmt.Sprintf("resolver: %d requests failed (first: %v)", len(m.Errors), m.Errors[0])
}

// Resolver fans requests out over a set of server sockets.
type Resolver struct {
	sockets []*Socket
}

// New creates a resolver with one socket per server address.
func New(servers []string, opts *Options) *Resolver {
	r := &Resolver{}
	for _, server := range servers {
		r.sockets = append(r.sockets, NewSocket(server, opts))
	}
	return r
}

// Sockets exposes the underlying per-server sockets.
func (r *Resolver) Sockets() []*Socket {
	return r.sockets
}

// Send transmits via the first configured server.
func (r *Resolver) Send(ctx context.Context, msg *dnswire.Message) (*dnswire.Message, error) {
	if len(r.sockets) == 0 {
		return nil, &Error{Kind: KindNoKnownNameServers}
	}
	return r.sockets[0].Send(ctx, msg)
}

// SendAll builds one message per socket and sends them concurrently. The
// aggregate succeeds when at least one request succeeds; otherwise it fails
// with a MultiError wrapping every per-request failure.
func (r *Resolver) SendAll(ctx context.Context, build func(s *Socket) *dnswire.Message) ([]*dnswire.Message, error) {
	if len(r.sockets) == 0 {
		return nil, &Error{Kind: KindNoKnownNameServers}
	}

	type result struct {
		resp *dnswire.Message
		err  error
	}
	results := make([]result, len(r.sockets))

	var wg sync.WaitGroup
	for i, sock := range r.sockets {
		wg.Add(1)
		go func(i int, sock *Socket) {
			defer wg.Done()
			resp, err := sock.Send(ctx, build(sock))
			results[i] = result{resp: resp, err: err}
		}(i, sock)
	}
	wg.Wait()

	var responses []*dnswire.Message
	var failures []error
	for _, res := range results {
		if res.err != nil {
			failures = append(failures, res.err)
			continue
		}
		responses = append(responses, res.resp)
	}
	if len(responses) == 0 {
		return nil, &MultiError{Errors: failures}
	}
	return responses, nil
}

// Close closes every socket.
func (r *Resolver) Close() {
	for _, sock := range r.sockets {
		sock.Close()
	}
}

func ensurePort(server string) string {
	for i := len(server) - 1; i >= 0; i-- {
		switch server[i] {
		case ':':
			return server
		case '.':
			return server + ":" + DefaultPort
		}
	}
	return server + ":" + DefaultPort
}
