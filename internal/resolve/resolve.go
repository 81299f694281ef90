// Package resolve turns host names into the addresses a target is
// registered under.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/miekg/dns"
)

// ErrNoAddrs is returned when a name resolves to nothing.
var ErrNoAddrs = errors.New("no addresses found")

const (
	defaultCacheSize = 1024
	maxCacheTTL      = 5 * time.Minute
	systemCacheTTL   = time.Minute
)

type cacheEntry struct {
	addrs   []string
	expires time.Time
}

// DNSResolver looks names up with A and AAAA queries against a list of
// nameservers, falling back to the system resolver when none are known.
type DNSResolver struct {
	client  *dns.Client
	conf    *dns.ClientConfig
	servers []string
	cache   *lru.TwoQueueCache
	now     func() time.Time
	system  func(ctx context.Context, name string) ([]net.IP, error)
}

// New builds a resolver. With no servers given, /etc/resolv.conf is used;
// if that cannot be read either, lookups go through the system resolver.
func New(servers []string, timeout time.Duration) (*DNSResolver, error) {
	cache, err := lru.New2Q(defaultCacheSize)
	if err != nil {
		return nil, fmt.Errorf("create resolve cache: %w", err)
	}

	r := &DNSResolver{
		client: &dns.Client{Timeout: timeout},
		cache:  cache,
		now:    time.Now,
		system: func(ctx context.Context, name string) ([]net.IP, error) {
			return net.DefaultResolver.LookupIP(ctx, "ip", name)
		},
	}

	if len(servers) > 0 {
		r.conf = &dns.ClientConfig{Ndots: 1}
		for _, s := range servers {
			r.servers = append(r.servers, withPort(s, "53"))
		}
		return r, nil
	}

	if conf, err := dns.ClientConfigFromFile("/etc/resolv.conf"); err == nil && len(conf.Servers) > 0 {
		r.conf = conf
		for _, s := range conf.Servers {
			r.servers = append(r.servers, withPort(s, conf.Port))
		}
	}
	return r, nil
}

// LookupAddrs returns the distinct addresses of name, IPv4 first. IP
// literals are returned as they are.
func (r *DNSResolver) LookupAddrs(ctx context.Context, name string) ([]string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: empty name", ErrNoAddrs)
	}
	if ip := net.ParseIP(name); ip != nil {
		return []string{ip.String()}, nil
	}

	if v, ok := r.cache.Get(name); ok {
		entry := v.(cacheEntry)
		if r.now().Before(entry.expires) {
			return append([]string(nil), entry.addrs...), nil
		}
		r.cache.Remove(name)
	}

	var (
		addrs []string
		ttl   time.Duration
		err   error
	)
	if len(r.servers) > 0 {
		addrs, ttl, err = r.query(ctx, name)
	} else {
		addrs, ttl, err = r.lookupSystem(ctx, name)
	}
	if err != nil {
		return nil, err
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoAddrs, name)
	}

	r.cache.Add(name, cacheEntry{addrs: addrs, expires: r.now().Add(ttl)})
	return append([]string(nil), addrs...), nil
}

func (r *DNSResolver) lookupSystem(ctx context.Context, name string) ([]string, time.Duration, error) {
	ips, err := r.system(ctx, name)
	if err != nil {
		return nil, 0, fmt.Errorf("resolve %s: %w", name, err)
	}
	var v4, v6 []string
	for _, ip := range ips {
		if ip.To4() != nil {
			v4 = append(v4, ip.String())
		} else {
			v6 = append(v6, ip.String())
		}
	}
	return dedup(append(v4, v6...)), systemCacheTTL, nil
}

// query tries every search-list candidate of name until one has records.
func (r *DNSResolver) query(ctx context.Context, name string) ([]string, time.Duration, error) {
	var lastErr error
	for _, fqdn := range r.conf.NameList(name) {
		var (
			addrs []string
			ttl   = maxCacheTTL
		)
		for _, qtype := range []uint16{dns.TypeA, dns.TypeAAAA} {
			answers, err := r.exchange(ctx, fqdn, qtype)
			if err != nil {
				lastErr = err
				continue
			}
			for _, rr := range answers {
				switch rec := rr.(type) {
				case *dns.A:
					addrs = append(addrs, rec.A.String())
				case *dns.AAAA:
					addrs = append(addrs, rec.AAAA.String())
				default:
					continue
				}
				if d := time.Duration(rr.Header().Ttl) * time.Second; d < ttl {
					ttl = d
				}
			}
		}
		if len(addrs) > 0 {
			return dedup(addrs), ttl, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}
	}
	if lastErr != nil {
		return nil, 0, fmt.Errorf("resolve %s: %w", name, lastErr)
	}
	return nil, 0, nil
}

// exchange asks each nameserver in turn until one answers.
func (r *DNSResolver) exchange(ctx context.Context, fqdn string, qtype uint16) ([]dns.RR, error) {
	msg := new(dns.Msg)
	msg.SetQuestion(fqdn, qtype)
	msg.RecursionDesired = true

	var lastErr error
	for _, server := range r.servers {
		in, _, err := r.client.ExchangeContext(ctx, msg, server)
		if err != nil {
			lastErr = err
			continue
		}
		switch in.Rcode {
		case dns.RcodeSuccess:
			return in.Answer, nil
		case dns.RcodeNameError:
			return nil, nil
		default:
			lastErr = fmt.Errorf("%s from %s", dns.RcodeToString[in.Rcode], server)
		}
	}
	return nil, lastErr
}

func withPort(server, port string) string {
	if _, _, err := net.SplitHostPort(server); err == nil {
		return server
	}
	return net.JoinHostPort(strings.Trim(server, "[]"), port)
}

func dedup(addrs []string) []string {
	seen := make(map[string]struct{}, len(addrs))
	out := addrs[:0]
	for _, a := range addrs {
		if _, ok := seen[a]; ok {
			continue
		}
		seen[a] = struct{}{}
		out = append(out, a)
	}
	return out
}
