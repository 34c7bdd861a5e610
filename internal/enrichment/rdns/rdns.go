// Package rdns resolves router IDs to host names through PTR records.
package rdns

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/miekg/dns"

	"netmap/internal/naming"
)

const resolvConf = "/etc/resolv.conf"

type Resolver struct {
	server string
	client *dns.Client
}

// New returns a resolver that queries server ("host:port"). An empty server means the
// first nameserver in /etc/resolv.conf.
func New(server string, timeout time.Duration) (*Resolver, error) {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	server = strings.TrimSpace(server)
	if server == "" {
		cfg, err := dns.ClientConfigFromFile(resolvConf)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", resolvConf, err)
		}
		if len(cfg.Servers) == 0 {
			return nil, fmt.Errorf("no nameservers in %s", resolvConf)
		}
		server = net.JoinHostPort(cfg.Servers[0], cfg.Port)
	} else if _, _, err := net.SplitHostPort(server); err != nil {
		server = net.JoinHostPort(server, "53")
	}
	return &Resolver{server: server, client: &dns.Client{Timeout: timeout}}, nil
}

// LookupPTR returns the PTR targets for addr without the trailing dot. NXDOMAIN is not
// an error.
func (r *Resolver) LookupPTR(ctx context.Context, addr string) ([]string, error) {
	name, err := dns.ReverseAddr(addr)
	if err != nil {
		return nil, err
	}
	m := new(dns.Msg)
	m.SetQuestion(name, dns.TypePTR)

	in, _, err := r.client.ExchangeContext(ctx, m, r.server)
	if err != nil {
		return nil, fmt.Errorf("ptr %s: %w", addr, err)
	}
	switch in.Rcode {
	case dns.RcodeSuccess:
	case dns.RcodeNameError:
		return nil, nil
	default:
		return nil, fmt.Errorf("ptr %s: %s", addr, dns.RcodeToString[in.Rcode])
	}

	var out []string
	seen := make(map[string]struct{})
	for _, rr := range in.Answer {
		ptr, ok := rr.(*dns.PTR)
		if !ok {
			continue
		}
		host := strings.TrimSuffix(strings.TrimSpace(ptr.Ptr), ".")
		key := strings.ToLower(host)
		if _, dup := seen[key]; dup || host == "" {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, host)
	}
	return out, nil
}

// Names implements the importer's name source.
func (r *Resolver) Names(ctx context.Context, routerID string) ([]naming.Candidate, error) {
	hosts, err := r.LookupPTR(ctx, routerID)
	if err != nil {
		return nil, err
	}
	out := make([]naming.Candidate, 0, len(hosts))
	for _, h := range hosts {
		out = append(out, naming.Candidate{Name: h, Source: naming.SourceReverseDNS})
	}
	return out, nil
}
