package tsig

import (
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
	"hash"
	"strings"
	"time"

	"github.com/arrowhead-f/confsys/pkg/dnswire"
)

// AlgorithmMD5 is the canonical name of the original TSIG algorithm
// (RFC 2845 §2.1). The hmac-shaN names of RFC 4635 are also accepted.
const AlgorithmMD5 = "HMAC-MD5.SIG-ALG.REG.INT"

// DefaultFudge is the permitted clock skew, in seconds, written into
// signatures when none is configured.
const DefaultFudge = 300

// Signer computes RFC 2845 transaction signatures over encoded DNS
// messages. It implements dnswire.Signer.
type Signer struct {
	keyName   string
	algorithm string
	key       []byte
	fudge     uint16

	// now is the wall clock, swapped in tests for determinism.
	now func() time.Time
}

// New creates a signer for the named key. The algorithm is a dotted DNS
// name; fudge values outside [0, 32767] fall back to DefaultFudge.
func New(keyName, algorithm string, key []byte, fudge int) (*Signer, error) {
	if _, err := resolveHash(algorithm); err != nil {
		return nil, err
	}
	if fudge < 0 || fudge > 0x7fff {
		fudge = DefaultFudge
	}
	return &Signer{
		keyName:   keyName,
		algorithm: algorithm,
		key:       key,
		fudge:     uint16(fudge),
		now:       time.Now,
	}, nil
}

// KeyName returns the DNS name of the signing key.
func (s *Signer) KeyName() string {
	return s.keyName
}

// Sign computes the signature record for an already-encoded message. The
// MAC covers the full message buffer followed by the RFC 2845 trailer: key
// name, class ANY, TTL 0, algorithm name, timestamp, fudge, error, and
// other-data length.
func (s *Signer) Sign(id uint16, encoded []byte) (dnswire.Record, error) {
	timestamp := uint64(s.now().Unix())

	newHash, err := resolveHash(s.algorithm)
	if err != nil {
		return dnswire.Record{}, err
	}

	mac := hmac.New(newHash, s.key)
	mac.Write(encoded)

	trailer := dnswire.NewWriter()
	trailer.WriteName(s.keyName)
	trailer.WriteU16(uint16(dnswire.ClassANY))
	trailer.WriteU32(0)
	trailer.WriteName(s.algorithm)
	trailer.WriteU48(timestamp)
	trailer.WriteU16(s.fudge)
	trailer.WriteU16(0)
	trailer.WriteU16(0)
	mac.Write(trailer.Bytes())

	return dnswire.Record{
		Name:  s.keyName,
		Type:  dnswire.TypeTSIG,
		Class: dnswire.ClassANY,
		TTL:   0,
		Data: &dnswire.TSIG{
			Algorithm:  s.algorithm,
			TimeSigned: timestamp,
			Fudge:      s.fudge,
			MAC:        mac.Sum(nil),
			OrigID:     id,
			Error:      0,
		},
	}, nil
}

// resolveHash maps a TSIG algorithm name to a local HMAC primitive.
func resolveHash(algorithm string) (func() hash.Hash, error) {
	name := strings.ToLower(strings.TrimSuffix(algorithm, "."))
	if name == strings.ToLower(AlgorithmMD5) {
		return md5.New, nil
	}
	switch strings.TrimPrefix(name, "hmac-") {
	case "md5":
		return md5.New, nil
	case "sha1":
		return sha1.New, nil
	case "sha224":
		return sha256.New224, nil
	case "sha256":
		return sha256.New, nil
	case "sha384":
		return sha512.New384, nil
	case "sha512":
		return sha512.New, nil
	}
	return nil, fmt.Errorf("tsig: unknown algorithm %q", algorithm)
}
