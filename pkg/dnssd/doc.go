/*
Package dnssd implements DNS-based service discovery (RFC 6763 style) over
the resolver socket.

Lookups walk the PTR → SRV + TXT chain: service types are enumerated from
the browsing domains via the _services._dns-sd._udp meta-query, instance
identifiers via a PTR query on the type, and a full service record via
parallel SRV and TXT queries with RFC 2782 weighted selection and RFC 1464
attribute aggregation.

Publication builds RFC 2136 UPDATE messages with an absence prerequisite
on the instance name, signs them with the configured TSIG key, and sends
them over TCP. When no domains are configured they are discovered by
reverse-resolving the local external addresses.
*/
package dnssd
