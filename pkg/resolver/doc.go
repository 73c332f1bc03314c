/*
Package resolver implements the DNS request/response engine.

A Socket is bound to one server and owns two transports. UDP carries small
queries with a retry budget; TCP carries UPDATE messages and anything over
512 bytes, with 16-bit length-prefix framing.

# Architecture

	┌──────────────────────────────────────────────────────┐
	│                      Socket                          │
	│  • encodes the message, checks the 64 KiB bound      │
	│  • selects transport: UPDATE or >512 bytes → TCP     │
	│  • scoped message-id counter                         │
	└──────────┬────────────────────────────┬──────────────┘
	           ▼                            ▼
	┌─────────────────────┐      ┌─────────────────────────┐
	│    udpTransport     │      │      tcpTransport       │
	│  1 datagram = 1 msg │      │  2-byte length framing  │
	│  2 retries/task     │      │  two-state stream parse │
	└─────────────────────┘      └─────────────────────────┘
	     each: outbound queue · inbound id table ·
	     lazy socket · deferred close · timeout scan

Each transport keeps an outbound queue for tasks submitted while its
socket is still opening, an inbound table of in-flight tasks keyed by
message id, a lazily opened socket, and a deferred-close timer that shuts
the socket down once both queues have been empty for a while.

A per-transport scan runs every timeout/20 and handles retransmission and
rejection. Responses are delivered to callers in the order the socket
produces them; a message id collision, an oversized request, an exhausted
retry budget, and a bad or unexpected response each map to a distinct
ErrorKind. Socket-level faults reject every task on the affected transport
and are surfaced through the optional unhandled-error sink.

Resolver fans a request out over several server sockets; SendAll succeeds
when at least one server answered.
*/
package resolver
