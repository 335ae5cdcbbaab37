package service

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/gobwas/glob"
	"golang.org/x/net/idna"
)

// builtinDenylist holds hosts that never serve a useful favicon: local
// addresses, shared static CDNs and static-hosting platforms.
var builtinDenylist = []string{
	"localhost",
	"*.localhost",
	"0.0.0.0",
	"::1",
	"*.cloudfront.net",
	"*.akamaized.net",
	"*.fastly.net",
	"cdn.jsdelivr.net",
	"cdnjs.cloudflare.com",
	"unpkg.com",
	"ajax.googleapis.com",
	"fonts.googleapis.com",
	"fonts.gstatic.com",
	"*.githubusercontent.com",
	"*.github.io",
	"*.netlify.app",
	"*.vercel.app",
	"*.pages.dev",
	"*.web.app",
	"*.firebaseapp.com",
}

// Denylist matches domains the icon fetcher must not contact
type Denylist struct {
	patterns []string
	globs    []glob.Glob
}

// NewDenylist compiles the built-in patterns plus operator-supplied ones
func NewDenylist(extra []string) (*Denylist, error) {
	d := &Denylist{}
	for _, p := range append(append([]string{}, builtinDenylist...), extra...) {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		g, err := glob.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid denylist pattern %q: %w", p, err)
		}
		d.patterns = append(d.patterns, p)
		d.globs = append(d.globs, g)
	}
	return d, nil
}

// Patterns returns the compiled pattern list
func (d *Denylist) Patterns() []string {
	return append([]string(nil), d.patterns...)
}

// Matches reports whether domain is denylisted. Local names and
// non-public IP literals always match.
func (d *Denylist) Matches(domain string) bool {
	domain = strings.ToLower(strings.TrimSpace(domain))
	if domain == "" {
		return false
	}
	if isLocalHost(domain) {
		return true
	}
	for _, g := range d.globs {
		if g.Match(domain) {
			return true
		}
	}
	return false
}

// isLocalHost reports whether host names this machine or a non-public
// address. Resolved names are checked again at dial time.
func isLocalHost(host string) bool {
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return true
	}
	if ip := net.ParseIP(strings.Trim(host, "[]")); ip != nil {
		return !isPublicIP(ip)
	}
	return false
}

// DomainFromURL derives the icon cache key: lowercased ASCII host with one
// leading "www." removed. Returns "" when rawURL has no host.
func DomainFromURL(rawURL string) string {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return ""
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	// "example.com/favicon.ico" parses as a path
	if u.Host == "" && u.Scheme == "" && !strings.HasPrefix(rawURL, "/") {
		if u, err = url.Parse("http://" + rawURL); err != nil {
			return ""
		}
	}
	return normalizeDomain(u.Hostname())
}

func normalizeDomain(host string) string {
	host = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(host)), ".")
	if host == "" {
		return ""
	}
	if ascii, err := idna.Lookup.ToASCII(host); err == nil && ascii != "" {
		host = ascii
	}
	return strings.TrimPrefix(host, "www.")
}
