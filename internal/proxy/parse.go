package proxy

import (
	"net"
	"net/url"
	"regexp"
	"strings"
)

var verbPattern = regexp.MustCompile(`^\w+`)

// fallbackURLPattern mirrors the absolute-form URL the client sends when
// structured parsing fails: scheme://host[:port]/path.
var fallbackURLPattern = regexp.MustCompile(`^(https?)://([^/]+)/(.*)$`)

// ParseRequestLine extracts a Fingerprint from the first line of an
// HTTP request sent in absolute form, e.g. "GET http://host/path HTTP/1.1".
// ok is false when fewer than the six fingerprint fields (verb, URL,
// scheme, host, port, path) can be determined.
func ParseRequestLine(line string) (fp Fingerprint, ok bool) {
	verb := verbPattern.FindString(line)
	if verb == "" {
		return Fingerprint{}, false
	}

	fields := strings.Fields(line)
	if len(fields) < 2 {
		return Fingerprint{}, false
	}
	rawURL := fields[1]

	scheme, host, port, path, ok := parseTarget(rawURL)
	if !ok {
		return Fingerprint{}, false
	}

	return Fingerprint{
		Verb:    verb,
		URL:     rawURL,
		Scheme:  scheme,
		Host:    host,
		Port:    port,
		Path:    path,
		RawLine: line,
	}, true
}

func parseTarget(raw string) (scheme, host, port, path string, ok bool) {
	if u, err := url.Parse(raw); err == nil && u.Scheme != "" && u.Host != "" {
		scheme = u.Scheme
		host, port = splitHostPort(u.Host, scheme)
		path = strings.TrimPrefix(u.EscapedPath(), "/")
		return scheme, host, port, path, true
	}

	m := fallbackURLPattern.FindStringSubmatch(raw)
	if m == nil {
		return "", "", "", "", false
	}

	scheme = m[1]
	host, port = splitHostPort(m[2], scheme)
	path = m[3]
	return scheme, host, port, path, true
}

func splitHostPort(hostPort, scheme string) (host, port string) {
	if h, p, err := net.SplitHostPort(hostPort); err == nil {
		return h, p
	}
	return hostPort, defaultPort(scheme)
}

func defaultPort(scheme string) string {
	if scheme == "https" {
		return "443"
	}
	return "80"
}
