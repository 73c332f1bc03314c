package dnssd

import (
	"context"
	"fmt"
	"net"
	"strings"
)

// discoverDomains derives search domains from the local interfaces when
// none are configured: every external address is reverse-resolved and the
// first label of each resolved name is dropped.
func (s *Service) discoverDomains(ctx context.Context) ([]string, error) {
	names, err := s.reverseNames(ctx)
	if err != nil {
		return nil, err
	}

	var domains []string
	seen := make(map[string]bool)
	for _, name := range names {
		if _, domain, ok := strings.Cut(name, "."); ok && domain != "" && !seen[domain] {
			seen[domain] = true
			domains = append(domains, domain)
		}
	}
	if len(domains) == 0 {
		return nil, fmt.Errorf("dnssd: no domains discoverable from local addresses")
	}

	s.mu.Lock()
	s.browsing = domains
	s.registration = domains
	if s.hostname == "" && len(names) > 0 {
		s.hostname = names[0]
	}
	s.mu.Unlock()

	s.logger.Debug().Strs("domains", domains).Msg("discovered search domains")
	return domains, nil
}

// reverseNames resolves every external interface address to its PTR name.
// Addresses without a PTR record are skipped.
func (s *Service) reverseNames(ctx context.Context) ([]string, error) {
	addrs, err := externalAddrs()
	if err != nil {
		return nil, err
	}

	var names []string
	for _, ip := range addrs {
		resolved, err := s.queryPTR(ctx, reverseName(ip))
		if err != nil {
			continue
		}
		names = append(names, resolved...)
	}
	return names, nil
}

// discoveredHostname returns the configured or previously discovered
// hostname; it is empty when neither is set.
func (s *Service) discoveredHostname() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hostname
}

// externalAddrs enumerates non-loopback unicast addresses.
func externalAddrs() ([]net.IP, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	var ips []net.IP
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipnet, ok := addr.(*net.IPNet)
			if !ok || ipnet.IP.IsLoopback() || ipnet.IP.IsLinkLocalUnicast() {
				continue
			}
			ips = append(ips, ipnet.IP)
		}
	}
	return ips, nil
}

// reverseName builds the in-addr.arpa / ip6.arpa name for an address.
func reverseName(ip net.IP) string {
	if v4 := ip.To4(); v4 != nil {
		return fmt.Sprintf("%d.%d.%d.%d.in-addr.arpa.", v4[3], v4[2], v4[1], v4[0])
	}

	const hexDigits = "0123456789abcdef"
	v6 := ip.To16()
	var sb strings.Builder
	for i := len(v6) - 1; i >= 0; i-- {
		sb.WriteByte(hexDigits[v6[i]&0xf])
		sb.WriteByte('.')
		sb.WriteByte(hexDigits[v6[i]>>4])
		sb.WriteByte('.')
	}
	sb.WriteString("ip6.arpa.")
	return sb.String()
}
