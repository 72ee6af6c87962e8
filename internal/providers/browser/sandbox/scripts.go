package sandbox

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/GriffinCanCode/AgentOS/ssr/internal/providers/loader"
	"github.com/GriffinCanCode/AgentOS/ssr/internal/shared/future"
	"github.com/dop251/goja"
	"github.com/gabriel-vasile/mimetype"
	"github.com/saintfish/chardet"
	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"
)

var errNullResource = errors.New("resource loader returned null")

var scriptTypes = map[string]bool{
	"":                         true,
	"text/javascript":          true,
	"application/javascript":   true,
	"application/x-javascript": true,
	"text/ecmascript":          true,
	"application/ecmascript":   true,
}

func isClassicScript(n *html.Node) bool {
	typ, ok := getAttr(n, "type")
	if !ok {
		return true
	}
	mediaType, _, _ := strings.Cut(strings.ToLower(strings.TrimSpace(typ)), ";")
	return scriptTypes[strings.TrimSpace(mediaType)]
}

// startScript runs a script element that became connected, once. Runs on
// the loop.
func (w *Window) startScript(n *html.Node) {
	d := w.dom
	if !w.opts.RunScripts || d.started[n] || !isClassicScript(n) {
		return
	}
	d.started[n] = true

	if src, ok := getAttr(n, "src"); ok {
		w.loadScript(n, src)
		return
	}

	w.inline++
	name := fmt.Sprintf("%s#inline-%d", w.url.String(), w.inline)
	w.runElement(n, name, textContent(n))
}

func (w *Window) runElement(n *html.Node, name, code string) {
	d := w.dom
	vm := w.vm.Load()
	prev := d.current
	d.current = n
	defer func() { d.current = prev }()

	if _, err := vm.RunScript(name, code); err != nil {
		w.uncaught(err)
	}
}

// loadScript fetches src through the loader and runs it on the loop once it
// arrives. Results arriving after Close are dropped.
func (w *Window) loadScript(n *html.Node, src string) {
	target := w.resolve(src)

	f := w.fetch(target)
	if f == nil || !w.track(f) {
		w.scriptFailed(n, target, errNullResource)
		return
	}

	go func() {
		body, err := f.Result()
		w.untrack(f)
		if w.closed.Load() {
			return
		}
		w.loop.RunOnLoop(func(*goja.Runtime) {
			if w.closed.Load() {
				return
			}
			w.finishScript(n, target, body, err)
		})
	}()
}

func (w *Window) fetch(target string) *future.Future[[]byte] {
	if w.opts.Loader == nil {
		return nil
	}
	return w.opts.Loader.Fetch(target, loader.FetchOptions{Element: "script", Headers: w.opts.Headers})
}

func (w *Window) finishScript(n *html.Node, target string, body []byte, err error) {
	if err == nil && body == nil {
		err = errNullResource
	}
	var code string
	if err == nil {
		code, err = DecodeScript(body)
	}
	if err != nil {
		w.scriptFailed(n, target, err)
		return
	}

	w.runElement(n, target, code)
	w.dom.fire(n, "load")
}

func (w *Window) scriptFailed(n *html.Node, target string, err error) {
	w.logger.Debug("script load failed", zap.String("src", target), zap.Error(err))
	w.console.InternalError(fmt.Errorf("Could not load script: %q: %w", target, err))
	w.dom.fire(n, "error")
}

// resolve makes src absolute against the document URL.
func (w *Window) resolve(src string) string {
	ref, err := url.Parse(strings.TrimSpace(src))
	if err != nil {
		return src
	}
	if w.url.Scheme == "" || w.url.Opaque != "" {
		return ref.String()
	}
	return w.url.ResolveReference(ref).String()
}

// DecodeScript turns fetched script bytes into source text. Binary payloads
// are rejected; invalid UTF-8 is decoded from its detected charset.
func DecodeScript(b []byte) (string, error) {
	if len(b) == 0 {
		return "", nil
	}
	mt := mimetype.Detect(b)
	if !isText(mt) {
		return "", fmt.Errorf("%w: detected %s", ErrBinaryScript, mt.String())
	}

	b = bytes.TrimPrefix(b, []byte("\xef\xbb\xbf"))
	if utf8.Valid(b) {
		return string(b), nil
	}

	label := "windows-1252"
	if _, params, ok := strings.Cut(mt.String(), "charset="); ok {
		label = params
	} else if res, err := chardet.NewTextDetector().DetectBest(b); err == nil && res != nil {
		label = strings.ToLower(res.Charset)
	}
	r, err := charset.NewReaderLabel(label, bytes.NewReader(b))
	if err != nil {
		return "", fmt.Errorf("unsupported script charset %s: %w", label, err)
	}
	decoded, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("failed to decode script: %w", err)
	}
	return string(decoded), nil
}

func isText(mt *mimetype.MIME) bool {
	for m := mt; m != nil; m = m.Parent() {
		if m.Is("text/plain") || strings.HasPrefix(m.String(), "text/") {
			return true
		}
	}
	return mt.Is("application/json") || mt.Is("application/javascript")
}
