// Package manifest builds render configurations from a static file.
//
// A manifest maps URL path prefixes to the scripts that render them and to
// where those scripts come from: either a network base URL or a directory
// on disk. YAML, TOML and JSON are accepted.
package manifest

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/goccy/go-yaml"
	"github.com/pelletier/go-toml/v2"
)

// DefaultCallback is the registration function name when the manifest
// does not set one.
const DefaultCallback = "registerRender"

var (
	ErrUnsupportedFormat = errors.New("unsupported manifest format")
	ErrInvalidManifest   = errors.New("invalid manifest")
	ErrNoRoute           = errors.New("no route matches")
)

// Format names a manifest encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
	FormatJSON Format = "json"
)

// Manifest is the decoded file.
type Manifest struct {
	Callback string  `yaml:"callback" toml:"callback" json:"callback"`
	Timeout  string  `yaml:"timeout" toml:"timeout" json:"timeout"`
	Routes   []Route `yaml:"routes" toml:"routes" json:"routes"`

	timeout time.Duration
}

// Route renders every URL whose path starts with Prefix.
type Route struct {
	Prefix string `yaml:"prefix" toml:"prefix" json:"prefix"`
	// Scripts are executed in order. With a file source they may be
	// doublestar patterns relative to the root.
	Scripts []string `yaml:"scripts" toml:"scripts" json:"scripts"`
	// Dir, relative to a file root, contributes every script below it
	// after Scripts.
	Dir    string `yaml:"dir" toml:"dir" json:"dir"`
	Source Source `yaml:"source" toml:"source" json:"source"`
}

// Source says where a route's scripts are loaded from. Exactly one field is
// set.
type Source struct {
	BaseURL string `yaml:"base_url" toml:"base_url" json:"base_url"`
	Root    string `yaml:"root" toml:"root" json:"root"`
}

// IsNetwork reports whether scripts are downloaded.
func (s Source) IsNetwork() bool {
	return s.BaseURL != ""
}

// FormatOf picks the format from a file extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	case ".json":
		return FormatJSON, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
}

// Load reads and validates the manifest at path. Relative file roots are
// resolved against the manifest's directory.
func Load(path string) (*Manifest, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	m, err := Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	base := filepath.Dir(path)
	for i := range m.Routes {
		src := &m.Routes[i].Source
		if src.Root != "" && !filepath.IsAbs(src.Root) {
			src.Root = filepath.Join(base, src.Root)
		}
	}
	return m, nil
}

// Parse decodes and validates a manifest.
func Parse(data []byte, format Format) (*Manifest, error) {
	var m Manifest
	var err error
	switch format {
	case FormatYAML:
		err = yaml.Unmarshal(data, &m)
	case FormatTOML:
		err = toml.Unmarshal(data, &m)
	case FormatJSON:
		err = sonic.Unmarshal(data, &m)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s manifest: %w", format, err)
	}
	if err := m.validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *Manifest) validate() error {
	if m.Callback == "" {
		m.Callback = DefaultCallback
	}
	if m.Timeout != "" {
		d, err := time.ParseDuration(m.Timeout)
		if err != nil {
			return fmt.Errorf("%w: timeout: %w", ErrInvalidManifest, err)
		}
		m.timeout = d
	}
	if len(m.Routes) == 0 {
		return fmt.Errorf("%w: no routes", ErrInvalidManifest)
	}

	seen := make(map[string]bool, len(m.Routes))
	for i := range m.Routes {
		r := &m.Routes[i]
		if r.Prefix == "" {
			r.Prefix = "/"
		}
		if !strings.HasPrefix(r.Prefix, "/") {
			return fmt.Errorf("%w: route prefix %q must start with /", ErrInvalidManifest, r.Prefix)
		}
		if seen[r.Prefix] {
			return fmt.Errorf("%w: duplicate route %q", ErrInvalidManifest, r.Prefix)
		}
		seen[r.Prefix] = true

		switch {
		case r.Source.BaseURL != "" && r.Source.Root != "":
			return fmt.Errorf("%w: route %q sets both base_url and root", ErrInvalidManifest, r.Prefix)
		case r.Source.BaseURL != "":
			u, err := url.Parse(r.Source.BaseURL)
			if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
				return fmt.Errorf("%w: route %q base_url %q is not an http(s) URL", ErrInvalidManifest, r.Prefix, r.Source.BaseURL)
			}
			if r.Dir != "" {
				return fmt.Errorf("%w: route %q: dir requires a file root", ErrInvalidManifest, r.Prefix)
			}
		case r.Source.Root == "":
			return fmt.Errorf("%w: route %q needs base_url or root", ErrInvalidManifest, r.Prefix)
		}
		if len(r.Scripts) == 0 && r.Dir == "" {
			return fmt.Errorf("%w: route %q has no scripts", ErrInvalidManifest, r.Prefix)
		}
	}

	// Longest prefix first so Match can take the first hit.
	sort.SliceStable(m.Routes, func(i, j int) bool {
		return len(m.Routes[i].Prefix) > len(m.Routes[j].Prefix)
	})
	return nil
}

// RenderTimeout is the parsed timeout, zero when unset.
func (m *Manifest) RenderTimeout() time.Duration {
	return m.timeout
}

// Match returns the route with the longest prefix of rawURL's path. A
// prefix matches whole path segments only.
func (m *Manifest) Match(rawURL string) (*Route, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid render url %q: %w", rawURL, err)
	}
	p := u.Path
	if p == "" {
		p = "/"
	}
	for i := range m.Routes {
		r := &m.Routes[i]
		if matchPrefix(p, r.Prefix) {
			return r, nil
		}
	}
	return nil, fmt.Errorf("%w %s", ErrNoRoute, p)
}

func matchPrefix(p, prefix string) bool {
	if prefix == "/" {
		return true
	}
	prefix = strings.TrimSuffix(prefix, "/")
	return p == prefix || strings.HasPrefix(p, prefix+"/")
}
