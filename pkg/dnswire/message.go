package dnswire

import "errors"

// MaxMessageLen is the largest DNS message either transport can carry; TCP
// frames carry a 16-bit length prefix (RFC 1035 §4.2.2).
const MaxMessageLen = 65535

// HeaderLen is the fixed DNS header size.
const HeaderLen = 12

// arcountOffset is the byte offset of ARCOUNT in the header, patched when a
// transaction signature is appended after encoding.
const arcountOffset = 10

// ErrSectionTooLong is returned when a section's record count does not fit
// in the 16-bit header field.
var ErrSectionTooLong = errors.New("dnswire: section exceeds 65535 records")

// Signer produces a transaction signature record for an already-encoded
// message. The record is appended to ADDITIONALS and ARCOUNT is patched in
// place.
type Signer interface {
	Sign(id uint16, encoded []byte) (Record, error)
}

// Flags is the unpacked DNS header flag word. The zero value is the
// all-clear flag word, so unset bits default to zero.
type Flags struct {
	QR     bool
	Opcode Opcode
	AA     bool
	TC     bool
	RD     bool
	RA     bool
	Z      uint8
	Rcode  Rcode
}

func (f Flags) pack() uint16 {
	var v uint16
	if f.QR {
		v |= 1 << 15
	}
	v |= uint16(f.Opcode&0xf) << 11
	if f.AA {
		v |= 1 << 10
	}
	if f.TC {
		v |= 1 << 9
	}
	if f.RD {
		v |= 1 << 8
	}
	if f.RA {
		v |= 1 << 7
	}
	v |= uint16(f.Z&0x7) << 4
	v |= uint16(f.Rcode & 0xf)
	return v
}

func unpackFlags(v uint16) Flags {
	return Flags{
		QR:     v&(1<<15) != 0,
		Opcode: Opcode(v >> 11 & 0xf),
		AA:     v&(1<<10) != 0,
		TC:     v&(1<<9) != 0,
		RD:     v&(1<<8) != 0,
		RA:     v&(1<<7) != 0,
		Z:      uint8(v >> 4 & 0x7),
		Rcode:  Rcode(v & 0xf),
	}
}

// Message is a full DNS message. It is built by the caller or decoded from
// a buffer and treated as immutable once constructed.
//
// In UPDATE messages (RFC 2136) the four sections are reinterpreted as
// zone, prerequisites, updates, and additionals; the wire layout is
// unchanged.
type Message struct {
	ID          uint16
	Flags       Flags
	Questions   []Record
	Answers     []Record
	Authorities []Record
	Additionals []Record

	// Signer, when set, signs the message during Encode.
	Signer Signer
}

// Len returns the unsigned wire length of the message.
func (m *Message) Len() int {
	n := HeaderLen
	for i := range m.Questions {
		n += m.Questions[i].QuestionLen()
	}
	for _, section := range [][]Record{m.Answers, m.Authorities, m.Additionals} {
		for i := range section {
			n += section[i].Len()
		}
	}
	return n
}

// Encode serializes the message. If a Signer is configured, the base
// message is encoded first, the signer is invoked over those bytes, the
// signature record is appended, and ARCOUNT is patched in place.
func (m *Message) Encode() ([]byte, error) {
	for _, section := range [][]Record{m.Questions, m.Answers, m.Authorities, m.Additionals} {
		if len(section) > 0xffff {
			return nil, ErrSectionTooLong
		}
	}

	w := NewWriter()
	w.WriteU16(m.ID)
	w.WriteU16(m.Flags.pack())
	w.WriteU16(uint16(len(m.Questions)))
	w.WriteU16(uint16(len(m.Answers)))
	w.WriteU16(uint16(len(m.Authorities)))
	w.WriteU16(uint16(len(m.Additionals)))

	for i := range m.Questions {
		m.Questions[i].writeQuestion(w)
	}
	for _, section := range [][]Record{m.Answers, m.Authorities, m.Additionals} {
		for i := range section {
			section[i].write(w)
		}
	}

	if m.Signer != nil {
		rec, err := m.Signer.Sign(m.ID, w.Bytes())
		if err != nil {
			return nil, err
		}
		rec.write(w)
		w.PatchU16(arcountOffset, uint16(len(m.Additionals))+1)
	}

	return w.Bytes(), nil
}

// Decode parses a DNS message from buf.
func Decode(buf []byte) (*Message, error) {
	r := NewReader(buf)

	var m Message
	var err error
	if m.ID, err = r.ReadU16(); err != nil {
		return nil, err
	}
	flags, err := r.ReadU16()
	if err != nil {
		return nil, err
	}
	m.Flags = unpackFlags(flags)

	var counts [4]uint16
	for i := range counts {
		if counts[i], err = r.ReadU16(); err != nil {
			return nil, err
		}
	}

	for i := 0; i < int(counts[0]); i++ {
		rec, err := readQuestion(r)
		if err != nil {
			return nil, err
		}
		m.Questions = append(m.Questions, rec)
	}
	for s, section := range []*[]Record{&m.Answers, &m.Authorities, &m.Additionals} {
		for i := 0; i < int(counts[s+1]); i++ {
			rec, err := readRecord(r)
			if err != nil {
				return nil, err
			}
			*section = append(*section, rec)
		}
	}

	return &m, nil
}
