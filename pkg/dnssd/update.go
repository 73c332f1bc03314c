package dnssd

import (
	"github.com/arrowhead-f/confsys/pkg/dnswire"
)

// Update builds an RFC 2136 dynamic-update message. The question section
// names the zone, the answer section carries prerequisites, and the
// authority section carries the update records.
type Update struct {
	msg *dnswire.Message
}

// NewUpdate starts an update for the given zone.
func NewUpdate(id uint16, zone string) *Update {
	return &Update{
		msg: &dnswire.Message{
			ID:    id,
			Flags: dnswire.Flags{Opcode: dnswire.OpcodeUpdate},
			Questions: []dnswire.Record{
				{Name: zone, Type: dnswire.TypeSOA, Class: dnswire.ClassINET},
			},
		},
	}
}

// RequireAbsent adds a prerequisite that no record of any type exists at
// name (RFC 2136 §2.4.3: class NONE, type ANY, empty rdata).
func (u *Update) RequireAbsent(name string) *Update {
	u.msg.Answers = append(u.msg.Answers, dnswire.Record{
		Name:  name,
		Type:  dnswire.TypeANY,
		Class: dnswire.ClassNONE,
	})
	return u
}

// Add appends a record to insert.
func (u *Update) Add(rec dnswire.Record) *Update {
	u.msg.Authorities = append(u.msg.Authorities, rec)
	return u
}

// DeleteAll appends a delete of every RRset at name (RFC 2136 §2.5.2:
// class ANY, type ANY, TTL 0, empty rdata).
func (u *Update) DeleteAll(name string) *Update {
	u.msg.Authorities = append(u.msg.Authorities, dnswire.Record{
		Name:  name,
		Type:  dnswire.TypeANY,
		Class: dnswire.ClassANY,
	})
	return u
}

// Delete appends a delete of the records matching rec's type and rdata at
// rec's name (RFC 2136 §2.5.4: class NONE, TTL 0).
func (u *Update) Delete(rec dnswire.Record) *Update {
	rec.Class = dnswire.ClassNONE
	rec.TTL = 0
	u.msg.Authorities = append(u.msg.Authorities, rec)
	return u
}

// Sign attaches a transaction signer; the resolver serializes the message,
// invokes the signer, and patches ARCOUNT in place.
func (u *Update) Sign(signer dnswire.Signer) *Update {
	u.msg.Signer = signer
	return u
}

// Message returns the built update.
func (u *Update) Message() *dnswire.Message {
	return u.msg
}
