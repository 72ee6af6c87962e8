package client

import (
	"errors"
	"fmt"
	"net/http"
)

// HTTPError is returned for responses with status >= 400.
type HTTPError struct {
	Status int
	URL    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("GET %s failed with status %d %s", e.URL, e.Status, http.StatusText(e.Status))
}

// Props exposes the status for error normalization.
func (e *HTTPError) Props() map[string]any {
	return map[string]any{"status": e.Status, "url": e.URL}
}

// IsClientError reports whether err is an HTTPError with a 4xx status.
// Such errors do not count against a host's circuit breaker.
func IsClientError(err error) bool {
	var he *HTTPError
	return errors.As(err, &he) && he.Status >= 400 && he.Status < 500
}
