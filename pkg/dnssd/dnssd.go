package dnssd

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/arrowhead-f/confsys/pkg/dnswire"
	"github.com/arrowhead-f/confsys/pkg/log"
	"github.com/arrowhead-f/confsys/pkg/metrics"
	"github.com/arrowhead-f/confsys/pkg/resolver"
	"github.com/arrowhead-f/confsys/pkg/tsig"
)

// MetaQueryName is the DNS-SD service-type enumeration name prefix
// (RFC 6763 §9).
const MetaQueryName = "_services._dns-sd._udp."

// DefaultTTL is the record TTL used for published services.
const DefaultTTL = 120

// ServiceRecord describes one resolved service instance.
type ServiceRecord struct {
	Hostname    string            // SRV target
	ServiceType string            // e.g. "_http._tcp"
	ServiceName string            // instance label
	Endpoint    string            // full instance identifier
	Port        uint16            // 1..65535
	Metadata    map[string]string // aggregated TXT attributes
}

// Instance describes a local service to publish.
type Instance struct {
	Name        string // instance label
	ServiceType string // e.g. "_http._tcp"
	Hostname    string // SRV target; the discovered hostname when empty
	Port        uint16
	Priority    uint16
	Weight      uint16
	Metadata    map[string]string
}

// Config holds service discovery configuration.
type Config struct {
	NameServers         []string
	BrowsingDomains     []string
	RegistrationDomains []string
	Hostname            string
	Signer              *tsig.Signer
	TTL                 uint32
	Resolver            *resolver.Options
}

// Service composes the resolver, the update builder, and the transaction
// signer into a DNS-SD interface.
type Service struct {
	res    *resolver.Resolver
	signer *tsig.Signer
	ttl    uint32
	logger zerolog.Logger

	// randByte drives RFC 2782 weighted selection; swapped in tests.
	randByte func() uint8

	mu           sync.Mutex
	browsing     []string
	registration []string
	hostname     string
}

// New creates a service discovery client.
func New(config *Config) *Service {
	if config == nil {
		config = &Config{}
	}
	ttl := config.TTL
	if ttl == 0 {
		ttl = DefaultTTL
	}
	return &Service{
		res:          resolver.New(config.NameServers, config.Resolver),
		signer:       config.Signer,
		ttl:          ttl,
		logger:       log.WithComponent("dnssd"),
		randByte:     func() uint8 { return uint8(rand.Intn(256)) },
		browsing:     fqdnAll(config.BrowsingDomains),
		registration: fqdnAll(config.RegistrationDomains),
		hostname:     fqdn(config.Hostname),
	}
}

// Close releases the underlying resolver sockets.
func (s *Service) Close() {
	s.res.Close()
}

// BrowsingDomains returns the configured browsing domains, discovering
// them from the local interfaces when none are configured.
func (s *Service) BrowsingDomains(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	domains := s.browsing
	s.mu.Unlock()
	if len(domains) > 0 {
		return domains, nil
	}
	return s.discoverDomains(ctx)
}

// RegistrationDomains returns the configured registration domains, falling
// back to discovery the same way as BrowsingDomains.
func (s *Service) RegistrationDomains(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	domains := s.registration
	s.mu.Unlock()
	if len(domains) > 0 {
		return domains, nil
	}
	return s.discoverDomains(ctx)
}

// LookupTypes enumerates the service types visible in the browsing
// domains, flattened and deduplicated.
func (s *Service) LookupTypes(ctx context.Context) ([]string, error) {
	domains, err := s.BrowsingDomains(ctx)
	if err != nil {
		return nil, err
	}

	var types []string
	seen := make(map[string]bool)
	for _, domain := range domains {
		answers, err := s.queryPTR(ctx, MetaQueryName+domain)
		if err != nil {
			return nil, err
		}
		for _, name := range answers {
			if !seen[name] {
				seen[name] = true
				types = append(types, name)
			}
		}
	}
	return types, nil
}

// LookupIdentifiers lists the instance identifiers of one service type,
// e.g. "_http._tcp.example.org." yields "svc._http._tcp.example.org.".
func (s *Service) LookupIdentifiers(ctx context.Context, serviceType string) ([]string, error) {
	return s.queryPTR(ctx, fqdn(serviceType))
}

// LookupRecord resolves one instance identifier into a service record. SRV
// and TXT queries are issued in parallel; the SRV answer is chosen by
// RFC 2782 rules and the TXT attributes are aggregated with later pairs
// overriding earlier ones.
func (s *Service) LookupRecord(ctx context.Context, identifier string) (*ServiceRecord, error) {
	identifier = fqdn(identifier)

	var wg sync.WaitGroup
	var srvMsg, txtMsg *dnswire.Message
	var srvErr, txtErr error

	wg.Add(2)
	go func() {
		defer wg.Done()
		srvMsg, srvErr = s.query(ctx, identifier, dnswire.TypeSRV)
	}()
	go func() {
		defer wg.Done()
		txtMsg, txtErr = s.query(ctx, identifier, dnswire.TypeTXT)
	}()
	wg.Wait()

	if srvErr != nil {
		return nil, srvErr
	}

	var options []*dnswire.SRV
	for _, rec := range srvMsg.Answers {
		if srv, ok := rec.Data.(*dnswire.SRV); ok {
			options = append(options, srv)
		}
	}
	srv := s.selectSRV(options)
	if srv == nil {
		return nil, fmt.Errorf("dnssd: no SRV record for %s", identifier)
	}

	metadata := make(map[string]string)
	if txtErr == nil {
		for _, rec := range txtMsg.Answers {
			if txt, ok := rec.Data.(*dnswire.TXT); ok {
				for key, value := range ParseAttributes(txt.Strings) {
					metadata[key] = value
				}
			}
		}
	}

	name, typ := splitIdentifier(identifier)
	return &ServiceRecord{
		Hostname:    srv.Target,
		ServiceType: typ,
		ServiceName: name,
		Endpoint:    identifier,
		Port:        srv.Port,
		Metadata:    metadata,
	}, nil
}

// selectSRV applies RFC 2782 selection: minimum priority first, then
// weighted-random among the remaining options.
func (s *Service) selectSRV(options []*dnswire.SRV) *dnswire.SRV {
	if len(options) == 0 {
		return nil
	}

	minPriority := options[0].Priority
	for _, o := range options[1:] {
		if o.Priority < minPriority {
			minPriority = o.Priority
		}
	}
	candidates := options[:0:0]
	var total uint32
	for _, o := range options {
		if o.Priority == minPriority {
			candidates = append(candidates, o)
			total += uint32(o.Weight)
		}
	}

	cutoff := float64(s.randByte()) / 255.0 * float64(total)
	running := float64(total)
	for _, o := range candidates {
		running -= float64(o.Weight)
		if running <= cutoff {
			return o
		}
	}
	return candidates[len(candidates)-1]
}

// Publish registers an instance in every registration domain. Each domain
// gets one signed UPDATE over TCP; publication succeeds only when every
// update is answered without error.
func (s *Service) Publish(ctx context.Context, inst Instance) error {
	domains, err := s.RegistrationDomains(ctx)
	if err != nil {
		return err
	}
	if len(domains) == 0 {
		return fmt.Errorf("dnssd: no registration domains")
	}

	target := fqdn(inst.Hostname)
	if target == "" {
		target = s.discoveredHostname()
	}

	for _, domain := range domains {
		typeName := inst.ServiceType + "." + domain
		instanceName := inst.Name + "." + typeName

		_, err := s.res.SendAll(ctx, func(sock *resolver.Socket) *dnswire.Message {
			u := NewUpdate(sock.NextID(), domain).
				RequireAbsent(instanceName).
				Add(dnswire.Record{
					Name: MetaQueryName + domain, Type: dnswire.TypePTR, Class: dnswire.ClassINET, TTL: s.ttl,
					Data: &dnswire.PTR{Name: typeName},
				}).
				Add(dnswire.Record{
					Name: typeName, Type: dnswire.TypePTR, Class: dnswire.ClassINET, TTL: s.ttl,
					Data: &dnswire.PTR{Name: instanceName},
				}).
				Add(dnswire.Record{
					Name: instanceName, Type: dnswire.TypeSRV, Class: dnswire.ClassINET, TTL: s.ttl,
					Data: &dnswire.SRV{
						Priority: inst.Priority,
						Weight:   inst.Weight,
						Port:     inst.Port,
						Target:   target,
					},
				})
			if txts := WriteAttributes(inst.Metadata); len(txts) > 0 {
				u.Add(dnswire.Record{
					Name: instanceName, Type: dnswire.TypeTXT, Class: dnswire.ClassINET, TTL: s.ttl,
					Data: &dnswire.TXT{Strings: txts},
				})
			}
			// Intermediate type suffixes, e.g. "_sub._http._tcp" also
			// registers under "_http._tcp".
			for _, suffix := range typeSuffixes(inst.ServiceType) {
				u.Add(dnswire.Record{
					Name: suffix + "." + domain, Type: dnswire.TypePTR, Class: dnswire.ClassINET, TTL: s.ttl,
					Data: &dnswire.PTR{Name: instanceName},
				})
			}
			if s.signer != nil {
				u.Sign(s.signer)
			}
			return u.Message()
		})
		if err != nil {
			return fmt.Errorf("dnssd: publish in %s: %w", domain, err)
		}
		zoneLog := log.ForZone(domain)
		zoneLog.Debug().Str("instance", instanceName).Msg("update accepted")
	}

	metrics.ServicesPublished.Inc()
	s.logger.Info().
		Str("instance", inst.Name).
		Str("type", inst.ServiceType).
		Uint16("port", inst.Port).
		Msg("service published")
	return nil
}

// Unpublish removes an instance from every registration domain: every
// RRset under the instance name is deleted and the type's PTR to it is
// withdrawn.
func (s *Service) Unpublish(ctx context.Context, inst Instance) error {
	domains, err := s.RegistrationDomains(ctx)
	if err != nil {
		return err
	}

	for _, domain := range domains {
		typeName := inst.ServiceType + "." + domain
		instanceName := inst.Name + "." + typeName

		_, err := s.res.SendAll(ctx, func(sock *resolver.Socket) *dnswire.Message {
			u := NewUpdate(sock.NextID(), domain).
				DeleteAll(instanceName).
				Delete(dnswire.Record{
					Name: typeName, Type: dnswire.TypePTR,
					Data: &dnswire.PTR{Name: instanceName},
				})
			if s.signer != nil {
				u.Sign(s.signer)
			}
			return u.Message()
		})
		if err != nil {
			return fmt.Errorf("dnssd: unpublish in %s: %w", domain, err)
		}
		zoneLog := log.ForZone(domain)
		zoneLog.Debug().Str("instance", instanceName).Msg("records withdrawn")
	}

	s.logger.Info().
		Str("instance", inst.Name).
		Str("type", inst.ServiceType).
		Msg("service unpublished")
	return nil
}

// query sends a single question and returns the response message.
func (s *Service) query(ctx context.Context, name string, typ dnswire.Type) (*dnswire.Message, error) {
	sockets := s.res.Sockets()
	if len(sockets) == 0 {
		return nil, &resolver.Error{Kind: resolver.KindNoKnownNameServers}
	}
	sock := sockets[0]
	return sock.Send(ctx, &dnswire.Message{
		ID:    sock.NextID(),
		Flags: dnswire.Flags{RD: true},
		Questions: []dnswire.Record{
			{Name: name, Type: typ, Class: dnswire.ClassINET},
		},
	})
}

// queryPTR sends a PTR question and returns the answer names.
func (s *Service) queryPTR(ctx context.Context, name string) ([]string, error) {
	msg, err := s.query(ctx, fqdn(name), dnswire.TypePTR)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, rec := range msg.Answers {
		if ptr, ok := rec.Data.(*dnswire.PTR); ok {
			names = append(names, ptr.Name)
		}
	}
	return names, nil
}

// splitIdentifier separates "<instance>.<type>.<domain>." into the
// instance label and the service type (the leading underscore labels).
func splitIdentifier(identifier string) (instance, serviceType string) {
	labels := strings.Split(strings.TrimSuffix(identifier, "."), ".")
	if len(labels) == 0 {
		return "", ""
	}
	instance = labels[0]
	var typeLabels []string
	for _, label := range labels[1:] {
		if !strings.HasPrefix(label, "_") {
			break
		}
		typeLabels = append(typeLabels, label)
	}
	return instance, strings.Join(typeLabels, ".")
}

// typeSuffixes lists the proper multi-label suffixes of a service type:
// "_a._b._tcp" yields "_b._tcp".
func typeSuffixes(serviceType string) []string {
	labels := strings.Split(serviceType, ".")
	var suffixes []string
	for i := 1; i < len(labels)-1; i++ {
		suffixes = append(suffixes, strings.Join(labels[i:], "."))
	}
	return suffixes
}

func fqdn(name string) string {
	if name == "" || strings.HasSuffix(name, ".") {
		return name
	}
	return name + "."
}

func fqdnAll(names []string) []string {
	out := make([]string, 0, len(names))
	for _, name := range names {
		out = append(out, fqdn(name))
	}
	return out
}
