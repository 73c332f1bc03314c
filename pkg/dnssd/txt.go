package dnssd

import (
	"sort"
	"strings"
)

// WriteAttributes encodes a metadata map as RFC 1464 key=value strings, one
// per TXT character string. Keys are lower-cased; TAB, LF, SPACE, "=", and
// "`" in keys are escaped with a preceding backtick and characters outside
// the printable range 0x21..0x7e are dropped. Values pass through verbatim.
// Keys are emitted in sorted order so the encoding is deterministic.
func WriteAttributes(attrs map[string]string) []string {
	if len(attrs) == 0 {
		return nil
	}
	keys := make([]string, 0, len(attrs))
	for key := range attrs {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	out := make([]string, 0, len(keys))
	for _, key := range keys {
		out = append(out, printableKey(key)+"="+attrs[key])
	}
	return out
}

func printableKey(key string) string {
	var sb strings.Builder
	for i := 0; i < len(key); i++ {
		c := key[i]
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		switch c {
		case '\t', '\n', ' ', '=', '`':
			sb.WriteByte('`')
			sb.WriteByte(c)
		default:
			if c < 0x21 || c > 0x7e {
				continue
			}
			sb.WriteByte(c)
		}
	}
	return sb.String()
}

// ParseAttributes decodes RFC 1464 strings into a metadata map. Each string
// is split at its first unescaped "="; strings without one are discarded.
// A backtick escapes the following character. Later pairs override earlier
// ones.
func ParseAttributes(txts []string) map[string]string {
	attrs := make(map[string]string)
	for _, s := range txts {
		key, value, ok := splitAttribute(s)
		if !ok {
			continue
		}
		attrs[key] = value
	}
	return attrs
}

func splitAttribute(s string) (key, value string, ok bool) {
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '`' && i+1 < len(s):
			i++
			sb.WriteByte(s[i])
		case c == '=':
			return sb.String(), unescape(s[i+1:]), true
		default:
			sb.WriteByte(c)
		}
	}
	return "", "", false
}

func unescape(s string) string {
	if !strings.Contains(s, "`") {
		return s
	}
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '`' && i+1 < len(s) {
			i++
		}
		sb.WriteByte(s[i])
	}
	return sb.String()
}
