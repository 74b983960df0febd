package geoip

import (
	"net"
	"net/netip"

	"github.com/oschwald/geoip2-golang"
)

// Provider resolves server addresses to a region using a GeoLite2 country database.
// A nil Provider is valid and resolves nothing.
type Provider struct {
	db *geoip2.Reader
}

// Open loads the country database at path.
func Open(path string) (*Provider, error) {
	db, err := geoip2.Open(path)
	if err != nil {
		return nil, err
	}

	return &Provider{db: db}, nil
}

// Close releases the database.
func (p *Provider) Close() error {
	if p == nil || p.db == nil {
		return nil
	}
	return p.db.Close()
}

// Region returns the ISO country code ("US", "DE") of a server address, given as a bare IP
// or host:port. Unparsable, private and loopback addresses resolve to "".
func (p *Provider) Region(address string) string {
	if p == nil || p.db == nil {
		return ""
	}

	addr, ok := parseAddr(address)
	if !ok || !routable(addr) {
		return ""
	}

	record, err := p.db.Country(net.IP(addr.AsSlice()))
	if err != nil {
		return ""
	}

	return record.Country.IsoCode
}

func parseAddr(address string) (netip.Addr, bool) {
	if ap, err := netip.ParseAddrPort(address); err == nil {
		return ap.Addr().Unmap(), true
	}
	addr, err := netip.ParseAddr(address)
	if err != nil {
		return netip.Addr{}, false
	}
	return addr.Unmap(), true
}

func routable(addr netip.Addr) bool {
	return !addr.IsPrivate() && !addr.IsLoopback() && !addr.IsUnspecified() &&
		!addr.IsLinkLocalUnicast() && !addr.IsMulticast()
}
