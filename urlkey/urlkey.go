// Package urlkey turns user-entered URLs into canonical cache keys.
package urlkey

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"

	"github.com/seo-optimizer/insights/models"
)

// Normalize canonicalizes a URL so that trivially different spellings of the
// same page share one key. The result always uses https, is lower case, has no
// fragment, default port or trailing slash. Subdomains, including www, are kept.
func Normalize(raw string) (string, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return "", fmt.Errorf("%w: empty", models.ErrInvalidURL)
	}
	if !hasScheme(s) {
		s = "https://" + strings.TrimLeft(s, "/")
	}

	u, err := url.Parse(s)
	if err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: unsupported scheme %q", models.ErrInvalidURL, u.Scheme)
	}

	host := strings.TrimSuffix(u.Hostname(), ".")
	if host == "" {
		return "", fmt.Errorf("%w: missing host", models.ErrInvalidURL)
	}
	if port := u.Port(); port != "" && port != "80" && port != "443" {
		host = net.JoinHostPort(host, port)
	} else if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}

	var b strings.Builder
	b.WriteString("https://")
	b.WriteString(host)
	b.WriteString(strings.TrimRight(u.EscapedPath(), "/"))
	if u.RawQuery != "" {
		b.WriteByte('?')
		b.WriteString(u.RawQuery)
	}
	return b.String(), nil
}

// hasScheme reports whether s starts with "<scheme>://", ignoring any "://"
// that appears later in the path, query or fragment.
func hasScheme(s string) bool {
	i := strings.Index(s, "://")
	return i > 0 && !strings.ContainsAny(s[:i], "/?#")
}

// Key builds a namespaced cache key: <namespace>:<strategy>:<normalized url>.
func Key(namespace, raw string, strategy models.Strategy) (string, error) {
	normalized, err := Normalize(raw)
	if err != nil {
		return "", err
	}
	return Prefix(namespace) + string(strategy) + ":" + normalized, nil
}

// Prefix returns the key prefix shared by every entry in a namespace.
func Prefix(namespace string) string {
	return namespace + ":"
}

// Domain returns the host of raw without port or a leading "www.".
func Domain(raw string) string {
	host := hostOf(raw)
	return strings.TrimPrefix(host, "www.")
}

// RootDomain returns the registrable domain (eTLD+1) of raw, falling back to
// the bare host for IPs, localhost and unknown suffixes.
func RootDomain(raw string) string {
	host := Domain(raw)
	if host == "" || net.ParseIP(host) != nil {
		return host
	}
	root, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return root
}

func hostOf(raw string) string {
	normalized, err := Normalize(raw)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(raw))
	}
	u, err := url.Parse(normalized)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
