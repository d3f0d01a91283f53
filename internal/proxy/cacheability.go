package proxy

import "strings"

// excludedExtensions preserves the source's literal set verbatim,
// including "jspa" without a leading dot: it is a substring test, not
// an extension comparison, so "jspa" also excludes paths such as
// "jspattern" that contain no ".jsp".
var excludedExtensions = []string{
	".asp", ".aspx", ".jsp", "jspa", ".jspx", ".pl", ".cgi", ".action", ".do", ".php",
}

// Cacheable reports whether a request is eligible for cache lookup and
// insertion: GET, with a present path containing none of the excluded
// extensions anywhere as a substring.
func Cacheable(verb, path string) bool {
	if verb != "GET" {
		return false
	}
	if path == "" {
		return false
	}
	for _, ext := range excludedExtensions {
		if strings.Contains(path, ext) {
			return false
		}
	}
	return true
}
