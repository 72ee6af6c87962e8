package manifest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/GriffinCanCode/AgentOS/ssr/internal/domain/render"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const yamlManifest = `
callback: mount
timeout: 2s
routes:
  - prefix: /
    scripts: [app.js]
    source:
      root: ./dist
  - prefix: /shop
    scripts: [vendor.js, shop.js]
    source:
      base_url: https://cdn.example.com/assets/
`

const tomlManifest = `
callback = "mount"
timeout = "2s"

[[routes]]
prefix = "/"
scripts = ["app.js"]
source = { root = "./dist" }

[[routes]]
prefix = "/shop"
scripts = ["vendor.js", "shop.js"]
source = { base_url = "https://cdn.example.com/assets/" }
`

const jsonManifest = `{
  "callback": "mount",
  "timeout": "2s",
  "routes": [
    {"prefix": "/", "scripts": ["app.js"], "source": {"root": "./dist"}},
    {"prefix": "/shop", "scripts": ["vendor.js", "shop.js"], "source": {"base_url": "https://cdn.example.com/assets/"}}
  ]
}`

func TestParseFormats(t *testing.T) {
	tests := []struct {
		format Format
		data   string
	}{
		{FormatYAML, yamlManifest},
		{FormatTOML, tomlManifest},
		{FormatJSON, jsonManifest},
	}
	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			m, err := Parse([]byte(tt.data), tt.format)
			require.NoError(t, err)

			assert.Equal(t, "mount", m.Callback)
			assert.Equal(t, 2*time.Second, m.RenderTimeout())
			require.Len(t, m.Routes, 2)
			// Longest prefix sorts first.
			assert.Equal(t, "/shop", m.Routes[0].Prefix)
			assert.True(t, m.Routes[0].Source.IsNetwork())
			assert.Equal(t, []string{"vendor.js", "shop.js"}, m.Routes[0].Scripts)
			assert.Equal(t, "./dist", m.Routes[1].Source.Root)
		})
	}
}

func TestParseDefaults(t *testing.T) {
	m, err := Parse([]byte("routes:\n  - scripts: [a.js]\n    source: {root: /srv}\n"), FormatYAML)
	require.NoError(t, err)
	assert.Equal(t, DefaultCallback, m.Callback)
	assert.Zero(t, m.RenderTimeout())
	assert.Equal(t, "/", m.Routes[0].Prefix)
}

func TestParseRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"no routes", "callback: x\n"},
		{"bad timeout", "timeout: soon\nroutes:\n  - scripts: [a.js]\n    source: {root: /srv}\n"},
		{"relative prefix", "routes:\n  - prefix: shop\n    scripts: [a.js]\n    source: {root: /srv}\n"},
		{"duplicate prefix", "routes:\n  - scripts: [a.js]\n    source: {root: /srv}\n  - prefix: /\n    scripts: [b.js]\n    source: {root: /srv}\n"},
		{"no source", "routes:\n  - scripts: [a.js]\n"},
		{"both sources", "routes:\n  - scripts: [a.js]\n    source: {root: /srv, base_url: 'https://cdn'}\n"},
		{"non http base", "routes:\n  - scripts: [a.js]\n    source: {base_url: 'ftp://cdn/'}\n"},
		{"dir on network", "routes:\n  - dir: js\n    source: {base_url: 'https://cdn/'}\n"},
		{"no scripts", "routes:\n  - source: {root: /srv}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data), FormatYAML)
			assert.ErrorIs(t, err, ErrInvalidManifest)
		})
	}

	_, err := Parse([]byte("routes: ["), FormatYAML)
	assert.Error(t, err)

	_, err = Parse([]byte(yamlManifest), Format("ini"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestFormatOf(t *testing.T) {
	for path, want := range map[string]Format{
		"ssr.yaml": FormatYAML,
		"ssr.YML":  FormatYAML,
		"ssr.toml": FormatTOML,
		"ssr.json": FormatJSON,
	} {
		got, err := FormatOf(path)
		require.NoError(t, err)
		assert.Equal(t, want, got, path)
	}
	_, err := FormatOf("ssr.ini")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestMatch(t *testing.T) {
	m, err := Parse([]byte(yamlManifest), FormatYAML)
	require.NoError(t, err)

	tests := []struct {
		url    string
		prefix string
	}{
		{"https://example.com/shop", "/shop"},
		{"https://example.com/shop/item/3?x=1", "/shop"},
		{"https://example.com/shopping", "/"},
		{"https://example.com", "/"},
		{"/about", "/"},
	}
	for _, tt := range tests {
		r, err := m.Match(tt.url)
		require.NoError(t, err, tt.url)
		assert.Equal(t, tt.prefix, r.Prefix, tt.url)
	}

	narrow, err := Parse([]byte("routes:\n  - prefix: /docs\n    scripts: [a.js]\n    source: {root: /srv}\n"), FormatYAML)
	require.NoError(t, err)
	_, err = narrow.Match("https://example.com/blog")
	assert.ErrorIs(t, err, ErrNoRoute)
}

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, body := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	}
	return root
}

func TestLoadResolvesRootAgainstManifest(t *testing.T) {
	dir := writeTree(t, map[string]string{"ssr.yaml": yamlManifest})

	m, err := Load(filepath.Join(dir, "ssr.yaml"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "dist"), m.Routes[1].Source.Root)
	assert.Empty(t, m.Routes[0].Source.Root)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestRouteFiles(t *testing.T) {
	root := writeTree(t, map[string]string{
		"vendor/a.js":       "",
		"vendor/b.js":       "",
		"pages/home.js":     "",
		"pages/nested/x.js": "",
		"pages/readme.md":   "",
	})
	r := Route{
		Scripts: []string{"polyfill.js", "vendor/*.js", "vendor/a.js"},
		Dir:     "pages",
		Source:  Source{Root: root},
	}

	files, err := r.files(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{
		"polyfill.js",
		"vendor/a.js",
		"vendor/b.js",
		"pages/home.js",
		"pages/nested/x.js",
	}, files)

	net := Route{Scripts: []string{"a.js", "/root.js", "https://other.example/c.js"}, Source: Source{BaseURL: "https://cdn.example.com/assets/"}}
	files, err = net.files(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{
		"https://cdn.example.com/assets/a.js",
		"https://cdn.example.com/root.js",
		"https://other.example/c.js",
	}, files)
}

func newEnvironment(t *testing.T, m *Manifest) *render.Environment {
	t.Helper()
	env, err := render.New(m.Configuration(Dependencies{Timeout: 5 * time.Second}))
	require.NoError(t, err)
	return env
}

func TestConfigurationRendersFromFiles(t *testing.T) {
	root := writeTree(t, map[string]string{
		"lib/double.js": "function double(n) { return n * 2; }",
		"app.js":        `mount(function (url) { return {body: String(double(21)) + " " + url, status: 200, headers: {}}; });`,
	})
	m, err := Parse([]byte("callback: mount\nroutes:\n  - scripts: ['lib/*.js', app.js]\n    source: {root: "+root+"}\n"), FormatYAML)
	require.NoError(t, err)

	env := newEnvironment(t, m)
	ctx := context.Background()
	res, err := env.Render(ctx, "https://example.com/home", render.NewAPI(ctx, nil, nil, nil))
	require.NoError(t, err)
	assert.Equal(t, "42 https://example.com/home", res.Body)
}

func TestConfigurationRendersFromNetwork(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/assets/vendor.js":
			_, _ = w.Write([]byte("var greeting = 'hello';"))
		case "/assets/shop.js":
			_, _ = w.Write([]byte(`mount(function (url, opts) { return {body: greeting + " " + opts.headers["x-user"], status: 200, headers: {"cache-control": "no-store"}}; });`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	m, err := Parse([]byte("callback: mount\nroutes:\n  - prefix: /shop\n    scripts: [vendor.js, shop.js]\n    source: {base_url: '"+srv.URL+"/assets/'}\n"), FormatYAML)
	require.NoError(t, err)

	env := newEnvironment(t, m)
	ctx := context.Background()
	res, err := env.Render(ctx, "https://example.com/shop/1", render.NewAPI(ctx, map[string]string{"x-user": "ann"}, nil, nil))
	require.NoError(t, err)
	assert.Equal(t, "hello ann", res.Body)
	assert.Equal(t, map[string]string{"cache-control": "no-store"}, res.Headers)
}

func TestConfigurationUnmatchedRoute(t *testing.T) {
	m, err := Parse([]byte("routes:\n  - prefix: /docs\n    scripts: [a.js]\n    source: {root: /srv}\n"), FormatYAML)
	require.NoError(t, err)

	env := newEnvironment(t, m)
	ctx := context.Background()
	_, err = env.Render(ctx, "https://example.com/blog", render.NewAPI(ctx, nil, nil, nil))
	assert.ErrorIs(t, err, ErrNoRoute)
}

func TestConfigurationMissingScript(t *testing.T) {
	root := writeTree(t, map[string]string{"app.js": "mount(function () {});"})
	m, err := Parse([]byte("routes:\n  - scripts: [gone.js, app.js]\n    source: {root: "+root+"}\n"), FormatYAML)
	require.NoError(t, err)

	env := newEnvironment(t, m)
	ctx := context.Background()
	_, err = env.Render(ctx, "https://example.com/", render.NewAPI(ctx, nil, nil, nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gone.js")
}
