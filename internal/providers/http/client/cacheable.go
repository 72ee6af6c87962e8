package client

import (
	"net/url"
	"strings"
)

// Decision is a tri-state override result. Undecided defers to the default.
type Decision int

const (
	Undecided Decision = iota
	Yes
	No
)

// Decide converts a bool into a Decision.
func Decide(b bool) Decision {
	if b {
		return Yes
	}
	return No
}

// IsCacheable reports whether responses for rawURL may be cached. A decided
// override wins; otherwise only paths ending in .js are cached. The query
// string is ignored.
func IsCacheable(rawURL string, override func(string) Decision) bool {
	if override != nil {
		switch override(rawURL) {
		case Yes:
			return true
		case No:
			return false
		}
	}

	path := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		path = u.Path
	} else if i := strings.IndexAny(rawURL, "?#"); i >= 0 {
		path = rawURL[:i]
	}
	return strings.HasSuffix(path, ".js")
}
