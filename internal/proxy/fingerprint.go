// Package proxy implements the forward HTTP proxy: a dispatcher accept
// loop, a per-connection handler state machine, request-line parsing,
// and the cacheability predicate that gates LRU cache interception.
package proxy

// Fingerprint is the 7-tuple extracted from a proxied request's first
// line. URL is the cache key.
type Fingerprint struct {
	Verb    string
	URL     string
	Scheme  string
	Host    string
	Port    string
	Path    string
	RawLine string
}
