// Package urlnorm turns raw hrefs into canonical absolute URLs and decides
// whether a URL belongs to the crawled site.
//
// A canonical URL is scheme + host + path with the userinfo, query string and
// fragment dropped and trailing slashes removed from the path. Two hrefs name the same
// page if and only if they canonicalize to the same string. Canonicalization
// is idempotent.
package urlnorm

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// ErrInvalidURL is returned when an href or its context cannot be parsed.
var ErrInvalidURL = errors.New("invalid url")

// Normalize resolves rawHref against contextURL and returns its canonical form.
func Normalize(rawHref, contextURL string) (string, error) {
	abs, err := resolve(rawHref, contextURL)
	if err != nil {
		return "", err
	}

	abs.User = nil
	abs.RawQuery = ""
	abs.ForceQuery = false
	abs.Fragment = ""
	abs.RawFragment = ""

	// An empty path stays empty: "http://h/" and "http://h" are the same page.
	// Trimming works on the decoded path, so an encoded trailing slash
	// ("/a%2F") is dropped as well.
	abs.Path = strings.TrimRight(abs.Path, "/")
	abs.RawPath = strings.TrimRight(abs.RawPath, "/")
	if abs.RawPath != "" && abs.RawPath == abs.Path {
		abs.RawPath = ""
	}

	return abs.String(), nil
}

// Resolve resolves rawHref against contextURL without canonicalizing it.
// Query strings and fragments are preserved.
func Resolve(rawHref, contextURL string) (string, error) {
	abs, err := resolve(rawHref, contextURL)
	if err != nil {
		return "", err
	}
	return abs.String(), nil
}

func resolve(rawHref, contextURL string) (*url.URL, error) {
	base, err := url.Parse(contextURL)
	if err != nil {
		return nil, fmt.Errorf("%w: context %q: %v", ErrInvalidURL, contextURL, err)
	}
	ref, err := url.Parse(strings.TrimSpace(rawHref))
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidURL, rawHref, err)
	}
	return base.ResolveReference(ref), nil
}

// IsSameDomain reports whether rawURL is an http(s) URL whose host (including
// any port, compared as given) equals baseDomain exactly.
func IsSameDomain(rawURL, baseDomain string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	return u.Host != "" && u.Host == baseDomain
}

// Host returns the host[:port] of rawURL.
func Host(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrInvalidURL, rawURL, err)
	}
	return u.Host, nil
}

// IsCrawlable reports whether rawURL is an absolute http(s) URL with a host.
func IsCrawlable(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// RegistrableDomain returns the eTLD+1 of host, or the bare hostname when it
// has none (IP addresses, localhost).
func RegistrableDomain(host string) string {
	hostname := host
	if u, err := url.Parse("//" + host); err == nil && u.Hostname() != "" {
		hostname = u.Hostname()
	}
	hostname = strings.ToLower(hostname)
	if net.ParseIP(hostname) != nil {
		return hostname
	}
	domain, err := publicsuffix.EffectiveTLDPlusOne(hostname)
	if err != nil {
		return hostname
	}
	return domain
}
