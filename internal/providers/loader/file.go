package loader

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/GriffinCanCode/AgentOS/ssr/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/ssr/internal/shared/future"
)

// File reads resources from a root directory.
type File struct {
	root   string
	logger *logging.Logger
	closed atomic.Bool
}

// NewFile creates a loader rooted at root.
func NewFile(root string, logger *logging.Logger) (*File, error) {
	if root == "" {
		return nil, ErrMissingRoot
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root %s: %w", root, err)
	}
	return &File{root: abs, logger: loggerOrNop(logger)}, nil
}

// Root returns the absolute root directory.
func (f *File) Root() string {
	return f.root
}

// IsActive implements ResourceLoader.
func (f *File) IsActive() bool {
	return !f.closed.Load()
}

// Close implements ResourceLoader.
func (f *File) Close() error {
	f.closed.Store(true)
	return nil
}

// Fetch implements ResourceLoader.
func (f *File) Fetch(rawURL string, _ FetchOptions) *future.Future[[]byte] {
	if !f.IsActive() {
		return closedFetch(f.logger, rawURL)
	}
	if IsDataURL(rawURL) {
		return fetchDataURL(rawURL)
	}

	path, err := f.Resolve(rawURL)
	if err != nil {
		return future.Rejected[[]byte](err)
	}

	return future.Go(context.Background(), func(ctx context.Context) ([]byte, error) {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", rawURL, err)
		}
		if ctx.Err() != nil {
			return Empty, nil
		}
		if !f.IsActive() {
			return neverUsed(f.logger, rawURL), nil
		}
		return data, nil
	})
}

// Resolve maps rawURL onto the file system. file:// URLs and absolute paths
// are used as is; http(s) URLs and relative paths resolve under the root
// and may not escape it.
func (f *File) Resolve(rawURL string) (string, error) {
	if u, err := url.Parse(rawURL); err == nil {
		switch u.Scheme {
		case "file":
			return filepath.FromSlash(u.Path), nil
		case "http", "https":
			return f.underRoot(u.Path)
		}
	}
	if filepath.IsAbs(rawURL) {
		return rawURL, nil
	}
	return f.underRoot(rawURL)
}

func (f *File) underRoot(p string) (string, error) {
	p = strings.TrimPrefix(filepath.FromSlash(p), string(filepath.Separator))
	full := filepath.Join(f.root, p)
	rel, err := filepath.Rel(f.root, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes resource root", p)
	}
	return full, nil
}
