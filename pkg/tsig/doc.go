// Package tsig signs DNS messages with RFC 2845 transaction signatures.
package tsig
