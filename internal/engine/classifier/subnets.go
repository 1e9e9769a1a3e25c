package classifier

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"

	"go4.org/netipx"
)

// ErrNoSubnets is returned when a SubnetSet is built from an empty list.
var ErrNoSubnets = errors.New("expected at least one LAN subnet")

// SubnetSet is an immutable, validated list of LAN prefixes. It is safe for
// concurrent use once constructed.
type SubnetSet struct {
	prefixes []netip.Prefix
	set      *netipx.IPSet
}

// NewSubnetSet validates every entry and builds the membership set.
// Entries are CIDR prefixes ("192.168.1.0/24", "fd00::/8") or bare addresses,
// which are treated as single-host prefixes. Host bits are masked off.
func NewSubnetSet(cidrs []string) (*SubnetSet, error) {
	if len(cidrs) == 0 {
		return nil, ErrNoSubnets
	}

	var builder netipx.IPSetBuilder
	prefixes := make([]netip.Prefix, 0, len(cidrs))

	for _, entry := range cidrs {
		prefix, err := parsePrefix(strings.TrimSpace(entry))
		if err != nil {
			return nil, fmt.Errorf("invalid subnet %q: %w", entry, err)
		}
		prefixes = append(prefixes, prefix)
		builder.AddPrefix(prefix)
	}

	set, err := builder.IPSet()
	if err != nil {
		return nil, fmt.Errorf("failed to build subnet set: %w", err)
	}

	return &SubnetSet{prefixes: prefixes, set: set}, nil
}

func parsePrefix(entry string) (netip.Prefix, error) {
	if !strings.Contains(entry, "/") {
		addr, err := netip.ParseAddr(entry)
		if err != nil {
			return netip.Prefix{}, err
		}
		addr = addr.Unmap()
		return netip.PrefixFrom(addr, addr.BitLen()), nil
	}

	prefix, err := netip.ParsePrefix(entry)
	if err != nil {
		return netip.Prefix{}, err
	}
	if prefix.Addr().Is4In6() {
		bits := prefix.Bits() - 96
		if bits < 0 {
			return netip.Prefix{}, fmt.Errorf("prefix length %d too short for an IPv4-mapped address", prefix.Bits())
		}
		prefix = netip.PrefixFrom(prefix.Addr().Unmap(), bits)
	}
	return prefix.Masked(), nil
}

// Contains reports whether address lies inside any configured subnet.
// Anything that is not an IP literal is treated as external.
func (s *SubnetSet) Contains(address string) bool {
	addr, err := netip.ParseAddr(address)
	if err != nil {
		return false
	}
	return s.set.Contains(addr.Unmap())
}

// Prefixes returns the configured prefixes in configuration order.
func (s *SubnetSet) Prefixes() []netip.Prefix {
	out := make([]netip.Prefix, len(s.prefixes))
	copy(out, s.prefixes)
	return out
}

func (s *SubnetSet) String() string {
	parts := make([]string, len(s.prefixes))
	for i, p := range s.prefixes {
		parts[i] = p.String()
	}
	return strings.Join(parts, ",")
}
