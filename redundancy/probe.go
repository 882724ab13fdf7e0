package redundancy

import (
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/miekg/dns"

	"github.com/voxalabs/storage-redundancy-engine/interfaces"
)

// Resolver answers whether a hostname resolves. It exists to tell local
// network trouble apart from a provider-side outage when a connection test
// fails.
type Resolver interface {
	Resolve(host string) ([]string, error)
}

// DNSResolver queries a DNS server directly for A records.
type DNSResolver struct {
	// Server is the resolver address, defaulting to the local stub
	// resolver.
	Server string

	// Timeout bounds a single query, defaulting to 2 seconds.
	Timeout time.Duration
}

// Resolve looks up the A records for a host.
func (r *DNSResolver) Resolve(host string) ([]string, error) {
	m := new(dns.Msg)
	m.Id = dns.Id()
	m.RecursionDesired = true
	m.Question = []dns.Question{{
		Name:   dns.Fqdn(host),
		Qtype:  dns.TypeA,
		Qclass: dns.ClassINET,
	}}

	c := new(dns.Client)
	c.Timeout = r.Timeout
	if c.Timeout == 0 {
		c.Timeout = 2 * time.Second
	}
	server := r.Server
	if server == "" {
		server = "127.0.0.53:53"
	}

	in, _, err := c.Exchange(m, server)
	if err != nil {
		return nil, err
	}

	addrs := make([]string, 0, len(in.Answer))
	for _, answer := range in.Answer {
		if a, ok := answer.(*dns.A); ok {
			addrs = append(addrs, a.A.String())
		}
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("no A records for %s", host)
	}
	return addrs, nil
}

// diagnoseFailure augments a failed connection test with a DNS preflight of
// the provider's endpoint: an unresolvable host points at the local network,
// a resolvable one at the provider.
func diagnoseFailure(resolver Resolver, endpoint string, opErr error) error {
	host := endpointHost(endpoint)
	if host == "" || net.ParseIP(host) != nil {
		return opErr
	}

	if _, dnsErr := resolver.Resolve(host); dnsErr != nil {
		return fmt.Errorf("%w: %s does not resolve (%v), after: %v",
			interfaces.ErrNetworkFailure, host, dnsErr, opErr)
	}
	return fmt.Errorf("%w: %s resolves but the operation failed: %v",
		interfaces.ErrProviderUnavailable, host, opErr)
}

// endpointHost extracts the hostname from a provider endpoint, which may be
// a URL or a bare host:port.
func endpointHost(endpoint string) string {
	if strings.Contains(endpoint, "://") {
		u, err := url.Parse(endpoint)
		if err != nil {
			return ""
		}
		return u.Hostname()
	}
	if host, _, err := net.SplitHostPort(endpoint); err == nil {
		return host
	}
	return endpoint
}
