/*
Package dnswire encodes and decodes DNS messages.

The codec covers RFC 1035 with the extensions this system needs: UPDATE
(RFC 2136), SRV (RFC 2782), TSIG (RFC 2845), and AAAA (RFC 3596). Two
primitives carry all serialization: a sequential Reader with a cursor over
the message buffer, and an append-only Writer. Both handle 8/16/32/48-bit
big-endian integers, opaque bytes, and dotted names.

The Reader follows RFC 1035 name compression pointers on a side cursor, so
a pointed-to name is consumed at its own offset without disturbing the
caller's position. The Writer never emits compression; round-tripping a
message that arrived compressed preserves content, not byte length.

Resource data is dispatched by record type on decode. Types without a
decoder fall through to an Opaque variant holding the raw rdata, so unknown
records survive a round trip untouched.
*/
package dnswire
