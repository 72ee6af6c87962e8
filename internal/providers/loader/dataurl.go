package loader

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"

	"github.com/GriffinCanCode/AgentOS/ssr/internal/shared/future"
)

// IsDataURL reports whether rawURL is an inline data: URL.
func IsDataURL(rawURL string) bool {
	return len(rawURL) >= 5 && strings.EqualFold(rawURL[:5], "data:")
}

// DecodeDataURL returns the payload of a data: URL.
func DecodeDataURL(rawURL string) ([]byte, error) {
	if !IsDataURL(rawURL) {
		return nil, fmt.Errorf("not a data url")
	}
	meta, payload, ok := strings.Cut(rawURL[5:], ",")
	if !ok {
		return nil, fmt.Errorf("malformed data url: missing comma")
	}

	if strings.HasSuffix(strings.ToLower(meta), ";base64") {
		payload = strings.Map(func(r rune) rune {
			if r == ' ' || r == '\n' || r == '\r' || r == '\t' {
				return -1
			}
			return r
		}, payload)
		if unescaped, err := url.PathUnescape(payload); err == nil {
			payload = unescaped
		}
		b, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			b, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
		}
		if err != nil {
			return nil, fmt.Errorf("malformed data url: %w", err)
		}
		return b, nil
	}

	s, err := url.PathUnescape(payload)
	if err != nil {
		return nil, fmt.Errorf("malformed data url: %w", err)
	}
	return []byte(s), nil
}

func fetchDataURL(rawURL string) *future.Future[[]byte] {
	b, err := DecodeDataURL(rawURL)
	if err != nil {
		return future.Rejected[[]byte](err)
	}
	if b == nil {
		b = Empty
	}
	return future.Resolved(b)
}
