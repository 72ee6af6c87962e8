package loader

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/GriffinCanCode/AgentOS/ssr/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/ssr/internal/providers/http/client"
	"github.com/GriffinCanCode/AgentOS/ssr/internal/shared/future"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func observed(level zapcore.Level) (*logging.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(level)
	return logging.Wrap(zap.New(core)), logs
}

func await(t *testing.T, f *future.Future[[]byte]) []byte {
	t.Helper()
	b, err := f.Result()
	require.NoError(t, err)
	return b
}

func TestIsScript(t *testing.T) {
	assert.True(t, IsScript("/app.js", FetchOptions{}))
	assert.True(t, IsScript("/app.mjs?v=2", FetchOptions{}))
	assert.True(t, IsScript("https://cdn/app.cjs#x", FetchOptions{}))
	assert.True(t, IsScript("/bundle", FetchOptions{Element: "script"}))
	assert.False(t, IsScript("/style.css", FetchOptions{Element: "link"}))
	assert.False(t, IsScript("/logo.png", FetchOptions{}))
}

func TestDecodeDataURL(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want string
	}{
		{name: "base64", url: "data:text/javascript;base64,d2luZG93LnYgPSAxOw==", want: "window.v = 1;"},
		{name: "percent", url: "data:text/plain,hello%20world", want: "hello world"},
		{name: "no media type", url: "data:,abc", want: "abc"},
		{name: "empty payload", url: "data:,", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := DecodeDataURL(tt.url)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(b))
		})
	}

	_, err := DecodeDataURL("data:text/plain")
	assert.Error(t, err)
	_, err = DecodeDataURL("data:;base64,!!!")
	assert.Error(t, err)
}

func TestNetworkFetchesScripts(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "fr", r.Header.Get("Accept-Language"))
		assert.Empty(t, r.Header.Get("X-SSR-Secret"))
		_, _ = w.Write([]byte("window.v = 42;"))
	}))
	defer srv.Close()

	n := NewNetwork(NetworkOptions{})
	defer n.Close()

	headers := map[string]string{"Accept-Language": "fr", "X-SSR-Secret": "s3cret", "Host": "evil"}
	b := await(t, n.Fetch(srv.URL+"/app.js", FetchOptions{Headers: headers}))
	assert.Equal(t, "window.v = 42;", string(b))

	b = await(t, n.Fetch(srv.URL+"/bundle", FetchOptions{Element: "script", Headers: headers}))
	assert.Equal(t, "window.v = 42;", string(b))

	assert.Equal(t, int32(2), hits.Load())
	assert.Equal(t, 1, n.Agents())
}

func TestNetworkSkipsNonScripts(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	n := NewNetwork(NetworkOptions{})
	defer n.Close()

	f := n.Fetch(srv.URL+"/logo.png", FetchOptions{Element: "img"})
	b := await(t, f)
	assert.NotNil(t, b)
	assert.Empty(t, b)
	assert.Zero(t, hits.Load())
	assert.Zero(t, n.Agents())
}

func TestNetworkResponseHandler(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("body"))
	}))
	defer srv.Close()

	n := NewNetwork(NetworkOptions{
		ResponseHandler: func(resp *client.Response) ([]byte, error) {
			return append([]byte("// handled\n"), resp.Body...), nil
		},
	})
	defer n.Close()

	b := await(t, n.Fetch(srv.URL+"/a.js", FetchOptions{}))
	assert.Equal(t, "// handled\nbody", string(b))
}

func TestNetworkHTTPErrorRejects(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	n := NewNetwork(NetworkOptions{})
	defer n.Close()

	_, err := n.Fetch(srv.URL+"/missing.js", FetchOptions{}).Result()
	var httpErr *client.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusNotFound, httpErr.Status)
}

func TestNetworkAbortResolvesEmpty(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	n := NewNetwork(NetworkOptions{})
	defer n.Close()

	f := n.Fetch(srv.URL+"/slow.js", FetchOptions{})
	f.Abort()

	b, err := f.Result()
	require.NoError(t, err)
	assert.Empty(t, b)
	assert.True(t, f.Aborted())
}

func TestNetworkResultAfterCloseIsDiscarded(t *testing.T) {
	logger, logs := observed(zapcore.InfoLevel)
	started := make(chan struct{})
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-release
		_, _ = w.Write([]byte("late"))
	}))
	defer srv.Close()

	n := NewNetwork(NetworkOptions{Logger: logger})
	url := srv.URL + "/late.js"
	f := n.Fetch(url, FetchOptions{})

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("request never reached the server")
	}
	require.NoError(t, n.Close())
	close(release)

	b := await(t, f)
	assert.Empty(t, b)
	assert.Equal(t, 1, logs.FilterMessage("File requested but never used: "+url).Len())
}

func TestNetworkAfterClose(t *testing.T) {
	logger, logs := observed(zapcore.WarnLevel)
	n := NewNetwork(NetworkOptions{Logger: logger})
	assert.True(t, n.IsActive())
	require.NoError(t, n.Close())
	require.NoError(t, n.Close())
	assert.False(t, n.IsActive())

	b := await(t, n.Fetch("https://cdn.example.com/app.js", FetchOptions{}))
	assert.Empty(t, b)
	assert.Equal(t, 1, logs.FilterMessage("File fetch attempted after resource loader close: https://cdn.example.com/app.js").Len())

	b = await(t, n.Fetch("data:,abc", FetchOptions{}))
	assert.Empty(t, b)
	assert.Equal(t, 1, logs.Len())
}

func TestNetworkDecodesDataURL(t *testing.T) {
	n := NewNetwork(NetworkOptions{})
	defer n.Close()

	b := await(t, n.Fetch("data:text/javascript,window.v%3D1", FetchOptions{}))
	assert.Equal(t, "window.v=1", string(b))
}

func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, body := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	}
	return root
}

func TestNewFileRequiresRoot(t *testing.T) {
	_, err := NewFile("", nil)
	assert.ErrorIs(t, err, ErrMissingRoot)
}

func TestFileFetch(t *testing.T) {
	root := writeFiles(t, map[string]string{
		"app.js":        "a",
		"static/lib.js": "b",
	})
	f, err := NewFile(root, nil)
	require.NoError(t, err)
	defer f.Close()

	tests := []struct {
		name string
		url  string
		want string
	}{
		{name: "relative", url: "app.js", want: "a"},
		{name: "nested relative", url: "static/lib.js", want: "b"},
		{name: "absolute", url: filepath.Join(root, "app.js"), want: "a"},
		{name: "file url", url: "file://" + filepath.ToSlash(filepath.Join(root, "static", "lib.js")), want: "b"},
		{name: "http url maps under root", url: "https://cdn.example.com/static/lib.js", want: "b"},
		{name: "data url", url: "data:,inline", want: "inline"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := await(t, f.Fetch(tt.url, FetchOptions{}))
			assert.Equal(t, tt.want, string(b))
		})
	}
}

func TestFileFetchErrors(t *testing.T) {
	f, err := NewFile(t.TempDir(), nil)
	require.NoError(t, err)

	_, err = f.Fetch("missing.js", FetchOptions{}).Result()
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = f.Fetch("../../etc/passwd", FetchOptions{}).Result()
	assert.ErrorContains(t, err, "escapes resource root")
}

func TestFileAfterClose(t *testing.T) {
	logger, logs := observed(zapcore.WarnLevel)
	root := writeFiles(t, map[string]string{"app.js": "a"})
	f, err := NewFile(root, logger)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	assert.False(t, f.IsActive())

	b := await(t, f.Fetch("app.js", FetchOptions{}))
	assert.Empty(t, b)
	b = await(t, f.Fetch("data:,x", FetchOptions{}))
	assert.Empty(t, b)

	assert.Equal(t, 1, logs.FilterMessage("File fetch attempted after resource loader close: app.js").Len())
	assert.Equal(t, 1, logs.Len())
}

func TestGlob(t *testing.T) {
	root := writeFiles(t, map[string]string{
		"vendor/b.js":     "",
		"vendor/a.js":     "",
		"app/main.js":     "",
		"app/nested/x.js": "",
		"app/style.css":   "",
	})

	files, err := Glob(root, "vendor/*.js", "app/**/*.js", "vendor/a.js")
	require.NoError(t, err)
	assert.Equal(t, []string{"vendor/a.js", "vendor/b.js", "app/main.js", "app/nested/x.js"}, files)

	_, err = Glob(root, "[")
	assert.Error(t, err)
	_, err = Glob("", "*.js")
	assert.ErrorIs(t, err, ErrMissingRoot)
}

func TestScripts(t *testing.T) {
	root := writeFiles(t, map[string]string{
		"b.js":      "",
		"a.mjs":     "",
		"lib/c.cjs": "",
		"lib/d.css": "",
		"README.md": "",
	})

	files, err := Scripts(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.mjs", "b.js", "lib/c.cjs"}, files)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Scripts(ctx, root)
	assert.Error(t, err)
}
