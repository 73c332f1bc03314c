package apes

import (
	"bytes"
	"fmt"
	"math"
	"strings"
)

// EncodeXML renders a value as annotated XML: a root element tagged with
// semantics="APES" and a type attribute, list elements as <item> and map
// entries as <entry key="...">, each carrying its own type tag. There is
// no XML reader; this serialization is write-only.
func EncodeXML(v Value) ([]byte, error) {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, `<root semantics="APES" type="%s">`, v.Kind())
	if err := encodeXMLContent(&buf, v); err != nil {
		return nil, err
	}
	buf.WriteString("</root>")
	return buf.Bytes(), nil
}

func encodeXMLContent(buf *bytes.Buffer, v Value) error {
	switch v.Kind() {
	case KindNull:
		buf.WriteString("null")
	case KindBoolean:
		if v.boolean {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case KindNumber:
		if math.IsNaN(v.number) || math.IsInf(v.number, 0) {
			return fmt.Errorf("apes: number is not finite")
		}
		buf.WriteString(formatNumber(v.number))
	case KindText:
		buf.WriteString(escapeXML(v.text))
	case KindList:
		for _, item := range v.list {
			fmt.Fprintf(buf, `<item type="%s">`, item.Kind())
			if err := encodeXMLContent(buf, item); err != nil {
				return err
			}
			buf.WriteString("</item>")
		}
	case KindMap:
		for _, entry := range v.entries {
			fmt.Fprintf(buf, `<entry key="%s" type="%s">`, escapeXML(entry.Key), entry.Value.Kind())
			if err := encodeXMLContent(buf, entry.Value); err != nil {
				return err
			}
			buf.WriteString("</entry>")
		}
	}
	return nil
}

func escapeXML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	return s
}
