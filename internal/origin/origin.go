// Package origin normalizes browser Origin headers and checks them against
// a configured allow list. Browsers are inconsistent about case and default
// ports, so raw string comparison rejects legitimate clients; everything is
// reduced to a canonical form before matching.
package origin

import (
	"net/url"
	"strconv"
	"strings"
)

// Normalize validates an Origin header value and reduces it to canonical
// scheme://host[:port] form: scheme and hostname lowercased, default ports
// dropped, IPv6 literals bracketed. The special value "null" (sandboxed
// iframes, file:// pages) is passed through as-is.
func Normalize(header string) (normalized, host string, ok bool) {
	trimmed := strings.TrimSpace(header)
	if trimmed == "" {
		return "", "", false
	}
	if trimmed == "null" {
		return "null", "", true
	}

	u, err := url.Parse(trimmed)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", "", false
	}
	// An origin is scheme://host[:port] and nothing else.
	if u.User != nil || u.RawQuery != "" || u.Fragment != "" {
		return "", "", false
	}
	if u.Path != "" && u.Path != "/" {
		return "", "", false
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", "", false
	}

	host, ok = canonicalHost(u.Host, scheme)
	if !ok {
		return "", "", false
	}
	return scheme + "://" + host, host, true
}

// Allowed reports whether the Origin header may access the service. An
// empty allow list admits every syntactically valid origin. Entries are
// compared after normalization, so a configured "https://app.example.com"
// matches a browser that sends "https://app.example.com:443"; the entry "*"
// admits everything.
func Allowed(header string, allowList []string) bool {
	normalized, _, ok := Normalize(header)
	if !ok {
		return false
	}
	if len(allowList) == 0 {
		return true
	}
	for _, entry := range allowList {
		if entry == "*" {
			return true
		}
		if canonical, _, ok := Normalize(entry); ok && canonical == normalized {
			return true
		}
	}
	return false
}

// canonicalHost lowercases the hostname, validates the port and drops it
// when it is the scheme's default.
func canonicalHost(rawHost, scheme string) (string, bool) {
	hostname, rawPort, ok := splitHostPort(strings.ToLower(rawHost))
	if !ok || hostname == "" {
		return "", false
	}

	var port uint64
	if rawPort != "" {
		n, err := strconv.ParseUint(rawPort, 10, 16)
		if err != nil || n == 0 {
			return "", false
		}
		port = n
	}
	if (scheme == "http" && port == 80) || (scheme == "https" && port == 443) {
		port = 0
	}

	host := hostname
	if strings.Contains(hostname, ":") {
		host = "[" + hostname + "]"
	}
	if port != 0 {
		host += ":" + strconv.FormatUint(port, 10)
	}
	return host, true
}

// splitHostPort splits an authority host[:port]. The hostname comes back
// without brackets for IPv6 literals; the port is returned unvalidated and
// empty when absent.
func splitHostPort(rawHost string) (hostname, port string, ok bool) {
	if rawHost == "" {
		return "", "", false
	}

	if strings.HasPrefix(rawHost, "[") {
		end := strings.IndexByte(rawHost, ']')
		if end < 0 {
			return "", "", false
		}
		hostname = rawHost[1:end]
		rest := rawHost[end+1:]
		if rest == "" {
			return hostname, "", true
		}
		if !strings.HasPrefix(rest, ":") || len(rest) == 1 {
			return "", "", false
		}
		return hostname, rest[1:], true
	}

	switch strings.Count(rawHost, ":") {
	case 0:
		return rawHost, "", true
	case 1:
		hostname, port, _ = strings.Cut(rawHost, ":")
		if hostname == "" || port == "" {
			return "", "", false
		}
		return hostname, port, true
	default:
		// Unbracketed IPv6 literals are not valid authority syntax.
		return "", "", false
	}
}
