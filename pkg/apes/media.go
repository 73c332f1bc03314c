package apes

import (
	"regexp"
	"strings"
)

// Media types of the built-in codecs.
const (
	MediaTypeJSON = "application/json"
	MediaTypeXML  = "application/apes+xml"
)

// Codec binds a media type to an encoder and, optionally, a decoder. A nil
// Decode marks a write-only serialization.
type Codec struct {
	MediaType string
	Encode    func(Value) ([]byte, error)
	Decode    func([]byte) (Value, error)
}

// Registry maps media types to codecs. Lookup is a case-insensitive match
// on the type/subtype pair with "*" wildcards honored.
type Registry struct {
	codecs []*Codec
}

// NewRegistry returns a registry with the JSON codec and the annotated XML
// writer registered, JSON first so it wins wildcard negotiation.
func NewRegistry() *Registry {
	return &Registry{
		codecs: []*Codec{
			{MediaType: MediaTypeJSON, Encode: EncodeJSON, Decode: DecodeJSON},
			{MediaType: MediaTypeXML, Encode: EncodeXML},
		},
	}
}

// Register appends a codec.
func (r *Registry) Register(codec *Codec) {
	r.codecs = append(r.codecs, codec)
}

// Find returns the first codec whose media type matches the given pattern,
// or nil. Parameters after ";" are ignored.
func (r *Registry) Find(mediaType string) *Codec {
	pattern, err := compileMediaPattern(mediaType)
	if err != nil {
		return nil
	}
	for _, codec := range r.codecs {
		if pattern.MatchString(codec.MediaType) {
			return codec
		}
	}
	return nil
}

// FindDecoder is Find restricted to codecs that can read.
func (r *Registry) FindDecoder(mediaType string) *Codec {
	codec := r.Find(mediaType)
	if codec == nil || codec.Decode == nil {
		return nil
	}
	return codec
}

// Negotiate returns the first codec matching any of the given patterns, in
// pattern order. An empty list negotiates to the default codec.
func (r *Registry) Negotiate(accepts []string) *Codec {
	if len(accepts) == 0 {
		return r.codecs[0]
	}
	for _, accept := range accepts {
		if codec := r.Find(accept); codec != nil {
			return codec
		}
	}
	return nil
}

func compileMediaPattern(mediaType string) (*regexp.Regexp, error) {
	mediaType, _, _ = strings.Cut(mediaType, ";")
	mediaType = strings.TrimSpace(mediaType)

	var sb strings.Builder
	sb.WriteString("(?i)^")
	for _, c := range mediaType {
		switch c {
		case '*':
			sb.WriteString(`[^/]*`)
		case '+', '.', '(', ')', '[', ']', '?', '^', '$', '\\', '|', '{', '}':
			sb.WriteByte('\\')
			sb.WriteRune(c)
		default:
			sb.WriteRune(c)
		}
	}
	sb.WriteString("$")
	return regexp.Compile(sb.String())
}
