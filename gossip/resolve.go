package gossip

import (
	"context"
	"fmt"
	"net"
	"strings"

	"github.com/miekg/dns"
)

// EntrypointResolver turns configured host:port entrypoint strings into
// dialable IP:port addresses. Hostnames are resolved with a direct DNS query
// against the system's configured nameservers; literal IPs pass through.
type EntrypointResolver struct {
	client  *dns.Client
	servers []string
}

// NewEntrypointResolver loads nameservers from the standard resolver
// configuration. A missing or unreadable resolv.conf is not an error here;
// literal-IP entrypoints still work, hostname lookups will report failure.
func NewEntrypointResolver() *EntrypointResolver {
	r := &EntrypointResolver{client: &dns.Client{}}
	if cfg, err := dns.ClientConfigFromFile("/etc/resolv.conf"); err == nil {
		for _, server := range cfg.Servers {
			r.servers = append(r.servers, net.JoinHostPort(server, cfg.Port))
		}
	}
	return r
}

// Resolve parses host:port and replaces a hostname host with its first A
// record.
func (r *EntrypointResolver) Resolve(ctx context.Context, entrypoint string) (string, error) {
	host, port, err := net.SplitHostPort(strings.TrimSpace(entrypoint))
	if err != nil {
		return "", fmt.Errorf("parse entrypoint %q: %w", entrypoint, err)
	}
	if ip := net.ParseIP(host); ip != nil {
		return net.JoinHostPort(host, port), nil
	}
	if len(r.servers) == 0 {
		return "", fmt.Errorf("resolve entrypoint %q: no nameservers available", entrypoint)
	}
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(host), dns.TypeA)
	var lastErr error
	for _, server := range r.servers {
		resp, _, err := r.client.ExchangeContext(ctx, msg, server)
		if err != nil {
			lastErr = err
			continue
		}
		for _, ans := range resp.Answer {
			if a, ok := ans.(*dns.A); ok {
				return net.JoinHostPort(a.A.String(), port), nil
			}
		}
		lastErr = fmt.Errorf("no A records for %q", host)
	}
	return "", fmt.Errorf("resolve entrypoint %q: %w", entrypoint, lastErr)
}
