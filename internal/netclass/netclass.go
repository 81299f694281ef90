// Package netclass classifies addresses relative to this node's own
// network interfaces.
package netclass

import (
	"net"
	"net/netip"
	"strings"
	"sync"
	"time"
)

// defaultRefresh bounds how stale the interface snapshot may get; DHCP
// renewals and VPNs change addresses under a running node.
const defaultRefresh = time.Minute

// Interfaces answers IsOwnInterface and IsLocalSegment from a periodically
// refreshed snapshot of the host's interface addresses.
type Interfaces struct {
	source  func() ([]net.Addr, error)
	refresh time.Duration
	now     func() time.Time

	mu       sync.Mutex
	prefixes []netip.Prefix
	loadedAt time.Time
}

// New returns a classifier backed by net.InterfaceAddrs.
func New() *Interfaces {
	return NewFromSource(net.InterfaceAddrs, defaultRefresh)
}

// NewFromSource returns a classifier reading addresses from source.
func NewFromSource(source func() ([]net.Addr, error), refresh time.Duration) *Interfaces {
	return &Interfaces{source: source, refresh: refresh, now: time.Now}
}

// NewStatic returns a classifier over a fixed set of CIDR prefixes, such
// as "192.168.0.10/24". Invalid entries are skipped.
func NewStatic(cidrs ...string) *Interfaces {
	var prefixes []netip.Prefix
	for _, c := range cidrs {
		if p, err := netip.ParsePrefix(c); err == nil {
			prefixes = append(prefixes, p)
		}
	}
	return &Interfaces{
		source:   func() ([]net.Addr, error) { return nil, nil },
		refresh:  0,
		now:      time.Now,
		prefixes: prefixes,
		loadedAt: time.Now(),
	}
}

// IsOwnInterface reports whether addr is assigned to one of our interfaces.
func (i *Interfaces) IsOwnInterface(addr string) bool {
	ip, ok := parseAddr(addr)
	if !ok {
		return false
	}
	for _, p := range i.snapshot() {
		if p.Addr() == ip {
			return true
		}
	}
	return false
}

// IsLocalSegment reports whether addr lies inside a network one of our
// interfaces is directly attached to.
func (i *Interfaces) IsLocalSegment(addr string) bool {
	ip, ok := parseAddr(addr)
	if !ok {
		return false
	}
	for _, p := range i.snapshot() {
		if p.Contains(ip) {
			return true
		}
	}
	return false
}

func (i *Interfaces) snapshot() []netip.Prefix {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.refresh > 0 && (i.loadedAt.IsZero() || i.now().Sub(i.loadedAt) >= i.refresh) {
		addrs, err := i.source()
		if err == nil {
			i.prefixes = toPrefixes(addrs)
			i.loadedAt = i.now()
		}
	}
	return i.prefixes
}

func toPrefixes(addrs []net.Addr) []netip.Prefix {
	prefixes := make([]netip.Prefix, 0, len(addrs))
	for _, a := range addrs {
		var (
			ip   net.IP
			mask net.IPMask
		)
		switch v := a.(type) {
		case *net.IPNet:
			ip, mask = v.IP, v.Mask
		case *net.IPAddr:
			ip = v.IP
		default:
			continue
		}
		nip, ok := netip.AddrFromSlice(ip)
		if !ok {
			continue
		}
		nip = nip.Unmap()
		bits := nip.BitLen()
		if mask != nil {
			ones, total := mask.Size()
			if total == 128 && nip.Is4() {
				ones -= 96
			}
			if ones >= 0 {
				bits = ones
			}
		}
		prefixes = append(prefixes, netip.PrefixFrom(nip, bits))
	}
	return prefixes
}

// parseAddr accepts IP literals, optionally with an IPv6 zone.
func parseAddr(addr string) (netip.Addr, bool) {
	addr = strings.Trim(strings.TrimSpace(addr), "[]")
	ip, err := netip.ParseAddr(addr)
	if err != nil {
		return netip.Addr{}, false
	}
	return ip.WithZone("").Unmap(), true
}
