package dnswire

import (
	"errors"
	"net"
)

// ErrBadRData is returned when resource data does not match its declared
// type or length.
var ErrBadRData = errors.New("dnswire: malformed resource data")

// RData is the typed payload of a resource record. Each variant knows its
// own wire length and byte layout.
type RData interface {
	// Len returns the number of bytes Write will emit.
	Len() int

	// Write appends the rdata to w.
	Write(w *Writer)
}

// A is an IPv4 host address (RFC 1035).
type A struct {
	Addr net.IP
}

func (a *A) Len() int { return 4 }

func (a *A) Write(w *Writer) {
	ip := a.Addr.To4()
	if ip == nil {
		ip = make(net.IP, 4)
	}
	w.WriteBytes(ip)
}

func readA(r *Reader) (RData, error) {
	b, err := r.ReadBytes(4)
	if err != nil {
		return nil, err
	}
	ip := make(net.IP, 4)
	copy(ip, b)
	return &A{Addr: ip}, nil
}

// AAAA is an IPv6 host address (RFC 3596).
type AAAA struct {
	Addr net.IP
}

func (a *AAAA) Len() int { return 16 }

func (a *AAAA) Write(w *Writer) {
	ip := a.Addr.To16()
	if ip == nil {
		ip = make(net.IP, 16)
	}
	w.WriteBytes(ip)
}

func readAAAA(r *Reader) (RData, error) {
	b, err := r.ReadBytes(16)
	if err != nil {
		return nil, err
	}
	ip := make(net.IP, 16)
	copy(ip, b)
	return &AAAA{Addr: ip}, nil
}

// NS names the authoritative name server of a zone.
type NS struct {
	Name string
}

func (n *NS) Len() int { return NameLen(n.Name) }

func (n *NS) Write(w *Writer) { w.WriteName(n.Name) }

// CNAME is the canonical name of an alias.
type CNAME struct {
	Name string
}

func (c *CNAME) Len() int { return NameLen(c.Name) }

func (c *CNAME) Write(w *Writer) { w.WriteName(c.Name) }

// PTR points from one name to another, as used by DNS-SD enumeration and
// reverse lookups.
type PTR struct {
	Name string
}

func (p *PTR) Len() int { return NameLen(p.Name) }

func (p *PTR) Write(w *Writer) { w.WriteName(p.Name) }

// MX names a mail exchange with a preference value.
type MX struct {
	Preference uint16
	Exchange   string
}

func (m *MX) Len() int { return 2 + NameLen(m.Exchange) }

func (m *MX) Write(w *Writer) {
	w.WriteU16(m.Preference)
	w.WriteName(m.Exchange)
}

func readMX(r *Reader) (RData, error) {
	pref, err := r.ReadU16()
	if err != nil {
		return nil, err
	}
	name, err := r.ReadName()
	if err != nil {
		return nil, err
	}
	return &MX{Preference: pref, Exchange: name}, nil
}

// SOA marks the start of a zone of authority.
type SOA struct {
	MName   string
	RName   string
	Serial  uint32
	Refresh uint32
	Retry   uint32
	Expire  uint32
	Minimum uint32
}

func (s *SOA) Len() int { return NameLen(s.MName) + NameLen(s.RName) + 20 }

func (s *SOA) Write(w *Writer) {
	w.WriteName(s.MName)
	w.WriteName(s.RName)
	w.WriteU32(s.Serial)
	w.WriteU32(s.Refresh)
	w.WriteU32(s.Retry)
	w.WriteU32(s.Expire)
	w.WriteU32(s.Minimum)
}

func readSOA(r *Reader) (RData, error) {
	var s SOA
	var err error
	if s.MName, err = r.ReadName(); err != nil {
		return nil, err
	}
	if s.RName, err = r.ReadName(); err != nil {
		return nil, err
	}
	for _, field := range []*uint32{&s.Serial, &s.Refresh, &s.Retry, &s.Expire, &s.Minimum} {
		if *field, err = r.ReadU32(); err != nil {
			return nil, err
		}
	}
	return &s, nil
}

// SRV locates the endpoint of a service instance (RFC 2782).
type SRV struct {
	Priority uint16
	Weight   uint16
	Port     uint16
	Target   string
}

func (s *SRV) Len() int { return 6 + NameLen(s.Target) }

func (s *SRV) Write(w *Writer) {
	w.WriteU16(s.Priority)
	w.WriteU16(s.Weight)
	w.WriteU16(s.Port)
	w.WriteName(s.Target)
}

func readSRV(r *Reader) (RData, error) {
	var s SRV
	var err error
	if s.Priority, err = r.ReadU16(); err != nil {
		return nil, err
	}
	if s.Weight, err = r.ReadU16(); err != nil {
		return nil, err
	}
	if s.Port, err = r.ReadU16(); err != nil {
		return nil, err
	}
	if s.Target, err = r.ReadName(); err != nil {
		return nil, err
	}
	return &s, nil
}

// TXT carries one or more length-prefixed character strings. DNS-SD layers
// RFC 1464 key=value attributes on top of them.
type TXT struct {
	Strings []string
}

func (t *TXT) Len() int {
	n := 0
	for _, s := range t.Strings {
		n += 1 + len(s)
	}
	return n
}

func (t *TXT) Write(w *Writer) {
	for _, s := range t.Strings {
		if len(s) > 255 {
			s = s[:255]
		}
		w.WriteU8(uint8(len(s)))
		w.WriteBytes([]byte(s))
	}
}

func readTXT(r *Reader, rdlength int) (RData, error) {
	end := r.Offset() + rdlength
	var t TXT
	for r.Offset() < end {
		length, err := r.ReadU8()
		if err != nil {
			return nil, err
		}
		if r.Offset()+int(length) > end {
			return nil, ErrBadRData
		}
		b, err := r.ReadBytes(int(length))
		if err != nil {
			return nil, err
		}
		t.Strings = append(t.Strings, string(b))
	}
	return &t, nil
}

// TSIG is a transaction signature (RFC 2845). TimeSigned is seconds since
// the epoch, carried as 48 bits on the wire.
type TSIG struct {
	Algorithm  string
	TimeSigned uint64
	Fudge      uint16
	MAC        []byte
	OrigID     uint16
	Error      uint16
	OtherData  []byte
}

func (t *TSIG) Len() int {
	return NameLen(t.Algorithm) + 6 + 2 + 2 + len(t.MAC) + 2 + 2 + 2 + len(t.OtherData)
}

func (t *TSIG) Write(w *Writer) {
	w.WriteName(t.Algorithm)
	w.WriteU48(t.TimeSigned)
	w.WriteU16(t.Fudge)
	w.WriteU16(uint16(len(t.MAC)))
	w.WriteBytes(t.MAC)
	w.WriteU16(t.OrigID)
	w.WriteU16(t.Error)
	w.WriteU16(uint16(len(t.OtherData)))
	w.WriteBytes(t.OtherData)
}

func readTSIG(r *Reader) (RData, error) {
	var t TSIG
	var err error
	if t.Algorithm, err = r.ReadName(); err != nil {
		return nil, err
	}
	if t.TimeSigned, err = r.ReadU48(); err != nil {
		return nil, err
	}
	if t.Fudge, err = r.ReadU16(); err != nil {
		return nil, err
	}
	macLen, err := r.ReadU16()
	if err != nil {
		return nil, err
	}
	mac, err := r.ReadBytes(int(macLen))
	if err != nil {
		return nil, err
	}
	t.MAC = append([]byte(nil), mac...)
	if t.OrigID, err = r.ReadU16(); err != nil {
		return nil, err
	}
	if t.Error, err = r.ReadU16(); err != nil {
		return nil, err
	}
	otherLen, err := r.ReadU16()
	if err != nil {
		return nil, err
	}
	other, err := r.ReadBytes(int(otherLen))
	if err != nil {
		return nil, err
	}
	t.OtherData = append([]byte(nil), other...)
	return &t, nil
}

// Opaque holds the raw rdata of record types the codec has no decoder for.
type Opaque struct {
	Bytes []byte
}

func (o *Opaque) Len() int { return len(o.Bytes) }

func (o *Opaque) Write(w *Writer) { w.WriteBytes(o.Bytes) }

// readRData dispatches on the record type. Unknown types fall through to
// Opaque, preserving rdlength raw bytes.
func readRData(r *Reader, typ Type, rdlength uint16) (RData, error) {
	switch typ {
	case TypeA:
		return readA(r)
	case TypeAAAA:
		return readAAAA(r)
	case TypeNS:
		name, err := r.ReadName()
		if err != nil {
			return nil, err
		}
		return &NS{Name: name}, nil
	case TypeCNAME:
		name, err := r.ReadName()
		if err != nil {
			return nil, err
		}
		return &CNAME{Name: name}, nil
	case TypePTR:
		name, err := r.ReadName()
		if err != nil {
			return nil, err
		}
		return &PTR{Name: name}, nil
	case TypeMX:
		return readMX(r)
	case TypeSOA:
		return readSOA(r)
	case TypeSRV:
		return readSRV(r)
	case TypeTXT:
		return readTXT(r, int(rdlength))
	case TypeTSIG:
		return readTSIG(r)
	default:
		b, err := r.ReadBytes(int(rdlength))
		if err != nil {
			return nil, err
		}
		return &Opaque{Bytes: append([]byte(nil), b...)}, nil
	}
}
