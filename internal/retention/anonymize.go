package retention

import (
	"net/netip"
	"time"
)

// DefaultAnonymizeAfter is how long exported records keep full addresses.
const DefaultAnonymizeAfter = 90 * 24 * time.Hour

// AnonymizeIP truncates an address to its network part: the last octet of
// an IPv4 address and the last 80 bits of an IPv6 address are zeroed.
// Returns "" for input that is not an IP address.
func AnonymizeIP(s string) string {
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return ""
	}
	addr = addr.Unmap()

	bits := 48
	if addr.Is4() {
		bits = 24
	}
	prefix, err := addr.WithZone("").Prefix(bits)
	if err != nil {
		return ""
	}
	return prefix.Addr().String()
}

// AnonymizeCutoff returns the instant before which records should have their
// addresses anonymized on export.
func AnonymizeCutoff(now time.Time, after time.Duration) time.Time {
	if after <= 0 {
		after = DefaultAnonymizeAfter
	}
	return now.UTC().Add(-after)
}
