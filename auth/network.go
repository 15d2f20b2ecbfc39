package auth

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// =============================================================================
// OFFICE NETWORK - ALLOWED_IPS matching
// =============================================================================

// OfficeNetwork is an allow-list of addresses and CIDR ranges. A bare
// address is a /32 (IPv4) or /128 (IPv6) rule. IPv4-mapped IPv6 addresses
// (::ffff:a.b.c.d) are compared as IPv4 on both sides. An empty list allows
// nothing.
type OfficeNetwork struct {
	prefixes []netip.Prefix
}

// ParseOfficeNetwork parses a comma-separated ALLOWED_IPS value.
func ParseOfficeNetwork(list string) (*OfficeNetwork, error) {
	var rules []string
	for _, entry := range strings.Split(list, ",") {
		if entry = strings.TrimSpace(entry); entry != "" {
			rules = append(rules, entry)
		}
	}
	return NewOfficeNetwork(rules)
}

// NewOfficeNetwork parses rules such as "203.0.113.7", "10.0.0.0/8" or
// "2001:db8::/32".
func NewOfficeNetwork(rules []string) (*OfficeNetwork, error) {
	n := &OfficeNetwork{}
	for _, rule := range rules {
		p, err := parseRule(rule)
		if err != nil {
			return nil, fmt.Errorf("allowed ip %q: %w", rule, err)
		}
		n.prefixes = append(n.prefixes, p)
	}
	return n, nil
}

func parseRule(rule string) (netip.Prefix, error) {
	if !strings.Contains(rule, "/") {
		addr, err := netip.ParseAddr(rule)
		if err != nil {
			return netip.Prefix{}, err
		}
		addr = addr.Unmap()
		return netip.PrefixFrom(addr, addr.BitLen()), nil
	}

	p, err := netip.ParsePrefix(rule)
	if err != nil {
		return netip.Prefix{}, err
	}
	if p.Addr().Is4In6() && p.Bits() >= 96 {
		p = netip.PrefixFrom(p.Addr().Unmap(), p.Bits()-96)
	}
	return p.Masked(), nil
}

// Allows reports whether ip belongs to the office network. Unparseable
// input is never allowed.
func (n *OfficeNetwork) Allows(ip string) bool {
	if n == nil {
		return false
	}
	addr, err := netip.ParseAddr(strings.TrimSpace(ip))
	if err != nil {
		return false
	}
	addr = addr.Unmap().WithZone("")
	for _, p := range n.prefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// Len is the number of rules.
func (n *OfficeNetwork) Len() int {
	if n == nil {
		return 0
	}
	return len(n.prefixes)
}

// ClientIP picks the caller's address. Behind a trusted proxy it takes
// the first X-Forwarded-For entry, then CF-Connecting-IP, then X-Real-IP.
// Otherwise those headers are client-controlled and only the connection's
// peer counts.
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			if first := strings.TrimSpace(strings.Split(xff, ",")[0]); first != "" {
				return first
			}
		}
		if cf := strings.TrimSpace(r.Header.Get("CF-Connecting-IP")); cf != "" {
			return cf
		}
		if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
			return xri
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
