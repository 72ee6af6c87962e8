package loader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/charlievieth/fastwalk"
)

// Glob expands patterns under root into root-relative slash paths. Matches
// of each pattern are sorted; earlier patterns come first and duplicates are
// dropped.
func Glob(root string, patterns ...string) ([]string, error) {
	if root == "" {
		return nil, ErrMissingRoot
	}
	fsys := os.DirFS(root)

	seen := make(map[string]bool)
	var files []string
	for _, pattern := range patterns {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("invalid pattern %q", pattern)
		}
		matches, err := doublestar.Glob(fsys, pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("glob %s: %w", pattern, err)
		}
		sort.Strings(matches)
		for _, m := range matches {
			if !seen[m] {
				seen[m] = true
				files = append(files, m)
			}
		}
	}
	return files, nil
}

// Scripts lists every script file below dir in lexical order, as slash
// paths relative to dir.
func Scripts(ctx context.Context, dir string) ([]string, error) {
	var files []string
	results := make(chan string)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for f := range results {
			files = append(files, f)
		}
	}()

	conf := fastwalk.Config{Follow: false}
	err := fastwalk.Walk(&conf, dir, func(p string, d os.DirEntry, err error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err != nil || d.IsDir() {
			return nil
		}
		if IsScript(p, FetchOptions{}) {
			rel, relErr := filepath.Rel(dir, p)
			if relErr == nil {
				results <- filepath.ToSlash(rel)
			}
		}
		return nil
	})
	close(results)
	<-done

	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", dir, err)
	}
	sort.Strings(files)
	return files, nil
}
