package manifest

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/GriffinCanCode/AgentOS/ssr/internal/domain/render"
	"github.com/GriffinCanCode/AgentOS/ssr/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/AgentOS/ssr/internal/providers/http/client"
	"github.com/GriffinCanCode/AgentOS/ssr/internal/providers/loader"
	"github.com/GriffinCanCode/AgentOS/ssr/internal/shared/id"
)

// Dependencies are shared by every loader the configuration creates.
type Dependencies struct {
	// Request is the template for script downloads.
	Request client.Options
	Agent   client.AgentOptions
	// Breakers outlive single renders so a failing host stays tripped.
	// Nil uses loader.DefaultBreakerSettings.
	Breakers *resilience.Group
	// Timeout applies when the manifest sets none.
	Timeout time.Duration
}

// Configuration builds the render configuration for m.
func (m *Manifest) Configuration(deps Dependencies) *render.Configuration {
	breakers := deps.Breakers
	if breakers == nil {
		breakers = resilience.NewGroup(loader.DefaultBreakerSettings())
	}
	timeout := m.timeout
	if timeout == 0 {
		timeout = deps.Timeout
	}

	return &render.Configuration{
		RegistrationCallbackName: m.Callback,
		RenderTimeout:            timeout,
		GetFileList: func(ctx context.Context, rawURL string, api *render.API, _ render.FetchFunc) ([]string, error) {
			route, err := m.Match(rawURL)
			if err != nil {
				return nil, err
			}
			return route.files(ctx)
		},
		GetResourceLoader: func(rawURL string, api *render.API) (loader.ResourceLoader, error) {
			route, err := m.Match(rawURL)
			if err != nil {
				return nil, err
			}
			if !route.Source.IsNetwork() {
				return loader.NewFile(route.Source.Root, api.Logger)
			}
			// Entries written during this render carry its cache id, so
			// later fetches can tell them apart from older ones.
			cacheID := id.NewCacheID().String()
			req := deps.Request
			req.CacheID = func() string { return cacheID }
			if req.Tracer == nil {
				req.Tracer = api.Tracer
			}
			return loader.NewNetwork(loader.NetworkOptions{
				Logger:   api.Logger,
				Context:  api.Context(),
				Request:  req,
				Breakers: breakers,
				Agent:    deps.Agent,
			}), nil
		},
	}
}

// files lists the scripts for one render. Network routes yield absolute
// URLs; file routes yield root-relative paths.
func (r *Route) files(ctx context.Context) ([]string, error) {
	if r.Source.IsNetwork() {
		base, err := url.Parse(r.Source.BaseURL)
		if err != nil {
			return nil, err
		}
		out := make([]string, len(r.Scripts))
		for i, s := range r.Scripts {
			ref, err := url.Parse(s)
			if err != nil {
				return nil, fmt.Errorf("invalid script %q: %w", s, err)
			}
			out[i] = base.ResolveReference(ref).String()
		}
		return out, nil
	}

	var files []string
	seen := make(map[string]bool)
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			files = append(files, p)
		}
	}
	for _, s := range r.Scripts {
		// Literal names are kept even when absent so the render reports them.
		if !strings.ContainsAny(s, "*?[{") {
			add(filepath.ToSlash(s))
			continue
		}
		matches, err := loader.Glob(r.Source.Root, s)
		if err != nil {
			return nil, err
		}
		for _, m := range matches {
			add(m)
		}
	}
	if r.Dir == "" {
		return files, nil
	}

	scripts, err := loader.Scripts(ctx, filepath.Join(r.Source.Root, r.Dir))
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", r.Dir, err)
	}
	for _, s := range scripts {
		add(filepath.ToSlash(filepath.Join(r.Dir, filepath.FromSlash(s))))
	}
	return files, nil
}
