package resolver

import (
	"errors"

	"github.com/arrowhead-f/confsys/pkg/dnswire"
)

// frameState is the state of the TCP stream parser (RFC 1035 §4.2.2).
type frameState int

const (
	frameLength frameState = iota
	frameMessage
)

// errEmptyFrame is returned for a zero-length frame declaration, which
// cannot carry a DNS header.
var errEmptyFrame = errors.New("resolver: empty TCP frame")

// frameParser reassembles length-prefixed DNS messages from a TCP stream.
// It is a two-state machine: in frameLength it accumulates the two prefix
// bytes, in frameMessage exactly that many payload bytes. Chunk boundaries
// may split the prefix or merge several messages; the parser carries
// partial state across feed calls.
type frameParser struct {
	state   frameState
	prefix  [2]byte
	havePre int
	need    int
	message []byte
}

// feed consumes one chunk, invoking emit once per completed message.
func (p *frameParser) feed(chunk []byte, emit func([]byte) error) error {
	for len(chunk) > 0 {
		switch p.state {
		case frameLength:
			n := copy(p.prefix[p.havePre:], chunk)
			p.havePre += n
			chunk = chunk[n:]
			if p.havePre < 2 {
				return nil
			}
			p.need = int(p.prefix[0])<<8 | int(p.prefix[1])
			if p.need == 0 {
				return errEmptyFrame
			}
			p.havePre = 0
			p.state = frameMessage
			p.message = make([]byte, 0, p.need)

		case frameMessage:
			take := p.need - len(p.message)
			if take > len(chunk) {
				take = len(chunk)
			}
			p.message = append(p.message, chunk[:take]...)
			chunk = chunk[take:]
			if len(p.message) < p.need {
				return nil
			}
			msg := p.message
			p.message = nil
			p.state = frameLength
			if err := emit(msg); err != nil {
				return err
			}
		}
	}
	return nil
}

// frame prepends the 16-bit big-endian length to an encoded message.
func frame(encoded []byte) []byte {
	framed := make([]byte, 2+len(encoded))
	framed[0] = byte(len(encoded) >> 8)
	framed[1] = byte(len(encoded))
	copy(framed[2:], encoded)
	return framed
}

// maxUDPLen is the largest message sent over UDP; anything longer, and any
// UPDATE, goes over TCP.
const maxUDPLen = 512

// wantsTCP decides the transport for an encoded message.
func wantsTCP(msg *dnswire.Message, encoded []byte) bool {
	return msg.Flags.Opcode == dnswire.OpcodeUpdate || len(encoded) > maxUDPLen
}
