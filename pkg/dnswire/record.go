package dnswire

// Record is a single DNS resource record. Questions carry only name, type,
// and class; records in the other sections also carry TTL and rdata. A nil
// Data writes as an empty rdata (RDLENGTH 0), which RFC 2136 uses for
// prerequisite and delete records.
type Record struct {
	Name  string
	Type  Type
	Class Class
	TTL   uint32
	Data  RData
}

// Len returns the record's wire length in a non-question section.
func (rec *Record) Len() int {
	n := NameLen(rec.Name) + 10
	if rec.Data != nil {
		n += rec.Data.Len()
	}
	return n
}

// QuestionLen returns the record's wire length in the question section.
func (rec *Record) QuestionLen() int {
	return NameLen(rec.Name) + 4
}

func (rec *Record) write(w *Writer) {
	w.WriteName(rec.Name)
	w.WriteU16(uint16(rec.Type))
	w.WriteU16(uint16(rec.Class))
	w.WriteU32(rec.TTL)
	if rec.Data == nil {
		w.WriteU16(0)
		return
	}
	w.WriteU16(uint16(rec.Data.Len()))
	rec.Data.Write(w)
}

func (rec *Record) writeQuestion(w *Writer) {
	w.WriteName(rec.Name)
	w.WriteU16(uint16(rec.Type))
	w.WriteU16(uint16(rec.Class))
}

func readRecord(r *Reader) (Record, error) {
	var rec Record
	var err error
	if rec.Name, err = r.ReadName(); err != nil {
		return rec, err
	}
	typ, err := r.ReadU16()
	if err != nil {
		return rec, err
	}
	rec.Type = Type(typ)
	class, err := r.ReadU16()
	if err != nil {
		return rec, err
	}
	rec.Class = Class(class)
	if rec.TTL, err = r.ReadU32(); err != nil {
		return rec, err
	}
	rdlength, err := r.ReadU16()
	if err != nil {
		return rec, err
	}
	if rdlength == 0 {
		return rec, nil
	}
	end := r.Offset() + int(rdlength)
	if rec.Data, err = readRData(r, rec.Type, rdlength); err != nil {
		return rec, err
	}
	// A decoder that stops short of rdlength (trailing bytes in a
	// compressed name variant) must not desynchronize the section cursor.
	if r.Offset() < end {
		if _, err = r.ReadBytes(end - r.Offset()); err != nil {
			return rec, err
		}
	} else if r.Offset() > end {
		return rec, ErrBadRData
	}
	return rec, nil
}

func readQuestion(r *Reader) (Record, error) {
	var rec Record
	var err error
	if rec.Name, err = r.ReadName(); err != nil {
		return rec, err
	}
	typ, err := r.ReadU16()
	if err != nil {
		return rec, err
	}
	rec.Type = Type(typ)
	class, err := r.ReadU16()
	if err != nil {
		return rec, err
	}
	rec.Class = Class(class)
	return rec, nil
}
