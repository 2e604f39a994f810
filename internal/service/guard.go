package service

import "net/url"

// DomainGuard restricts outbound requests to a single host.
type DomainGuard struct {
	host string
}

// NewDomainGuard returns a guard admitting only URLs whose hostname is host.
func NewDomainGuard(host string) *DomainGuard {
	return &DomainGuard{host: host}
}

// IsAllowedDomain reports whether raw is an absolute URL whose hostname equals
// the allowed host exactly. Anything that fails to parse is rejected.
func (g *DomainGuard) IsAllowedDomain(raw string) bool {
	if g.host == "" {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return false
	}
	return u.Hostname() == g.host
}
