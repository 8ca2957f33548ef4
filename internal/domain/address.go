package domain

import (
	"encoding/hex"
	"fmt"
	"net/netip"
	"strings"
)

const (
	// ZeroIPv4Range is the degenerate range start some upstream entries carry.
	ZeroIPv4Range = "00000000"

	ipv4HexLen = 8
	ipv6HexLen = 32
)

// EncodeAddress renders addr as upper-case hex of its 4 or 16 byte form.
// Addresses of one family sort lexicographically; mixed families do not.
func EncodeAddress(addr netip.Addr) string {
	return strings.ToUpper(hex.EncodeToString(addr.AsSlice()))
}

// DecodeAddress reverses EncodeAddress.
func DecodeAddress(encoded string) (netip.Addr, error) {
	if len(encoded) != ipv4HexLen && len(encoded) != ipv6HexLen {
		return netip.Addr{}, fmt.Errorf("domain: encoded address %q has length %d, want %d or %d", encoded, len(encoded), ipv4HexLen, ipv6HexLen)
	}
	raw, err := hex.DecodeString(encoded)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("domain: decode address %q: %w", encoded, err)
	}
	addr, ok := netip.AddrFromSlice(raw)
	if !ok {
		return netip.Addr{}, fmt.Errorf("domain: invalid address bytes %q", encoded)
	}
	return addr, nil
}
