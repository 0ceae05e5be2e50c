package discovery

import (
	"context"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/yndnr/memmesh-go/internal/federation/domain"
)

// DNSSource resolves configured names to peer addresses.
//
// Names starting with "_" are treated as SRV records (service name
// lookup); anything else is resolved as host A/AAAA records combined
// with the default port.
type DNSSource struct {
	names       []string
	defaultPort int
	resolver    *net.Resolver
	logger      *slog.Logger
}

// NewDNSSource creates a DNS source.
func NewDNSSource(names []string, defaultPort int, logger *slog.Logger) *DNSSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &DNSSource{
		names:       names,
		defaultPort: defaultPort,
		resolver:    net.DefaultResolver,
		logger:      logger,
	}
}

// Name implements Source.
func (s *DNSSource) Name() string { return domain.SourceDNS.String() }

// Priority implements Source.
func (s *DNSSource) Priority() int { return domain.SourceDNS.Priority() }

// Discover implements Source.
func (s *DNSSource) Discover(ctx context.Context) ([]domain.DiscoveryRecord, error) {
	now := time.Now()

	var records []domain.DiscoveryRecord
	for _, name := range s.names {
		addrs, err := s.resolve(ctx, name)
		if err != nil {
			// One unresolvable name must not hide the others
			s.logger.Warn("dns lookup failed", "name", name, "error", err)
			continue
		}

		for _, addr := range addrs {
			records = append(records, domain.DiscoveryRecord{
				NodeID:       addr,
				Addr:         addr,
				Source:       domain.SourceDNS,
				DiscoveredAt: now,
			})
		}
	}

	return records, nil
}

func (s *DNSSource) resolve(ctx context.Context, name string) ([]string, error) {
	if len(name) > 0 && name[0] == '_' {
		// SRV record: "_memmesh._tcp.example.com"
		_, srvs, err := s.resolver.LookupSRV(ctx, "", "", name)
		if err != nil {
			return nil, err
		}

		addrs := make([]string, 0, len(srvs))
		for _, srv := range srvs {
			host := srv.Target
			if len(host) > 0 && host[len(host)-1] == '.' {
				host = host[:len(host)-1]
			}
			addrs = append(addrs, net.JoinHostPort(host, strconv.Itoa(int(srv.Port))))
		}
		return addrs, nil
	}

	ips, err := s.resolver.LookupHost(ctx, name)
	if err != nil {
		return nil, err
	}

	addrs := make([]string, 0, len(ips))
	for _, ip := range ips {
		addrs = append(addrs, net.JoinHostPort(ip, strconv.Itoa(s.defaultPort)))
	}
	return addrs, nil
}
