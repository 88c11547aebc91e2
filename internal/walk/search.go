// Copyright (C) 2025 Dyne.org foundation
// designed, written and maintained by Denis Roio <jaromil@dyne.org>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package walk

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	apperrors "fsguard/internal/errors"
)

// DefaultMaxResults caps search results when the caller does not.
const DefaultMaxResults = 100

// Search walks root and returns the files whose content matches pattern.
// Excluded entries are skipped at every level and the walk stops as soon as
// maxResults matches are collected. The result is sorted.
func (w *Walker) Search(ctx context.Context, root, pattern string, maxResults int) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeValidation, "Invalid regular expression", err)
	}
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	v, err := w.sc.Validate(root, true)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(v.Path()); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeIO, "failed to search", err)
	}

	capCtx, stop := context.WithCancel(ctx)
	defer stop()
	g, gctx := errgroup.WithContext(capCtx)

	var (
		mu      sync.Mutex
		matches []string
		scanned atomic.Int64
	)
	files := make(chan string)

	g.Go(func() error {
		defer close(files)
		err := filepath.WalkDir(v.Path(), func(p string, d fs.DirEntry, err error) error {
			if gctx.Err() != nil {
				return filepath.SkipAll
			}
			if err != nil {
				if p == v.Path() {
					return err
				}
				w.log.Debug().Err(err).Str("path", p).Msg("search: skipping entry")
				if d != nil && d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if w.sc.Excluded(p) {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if d.IsDir() {
				return nil
			}
			if d.Type()&fs.ModeSymlink != 0 {
				target, err := w.sc.Validate(p, true)
				if err != nil {
					return nil
				}
				if info, err := os.Stat(target.Path()); err != nil || !info.Mode().IsRegular() {
					return nil
				}
			} else if !d.Type().IsRegular() {
				return nil
			}
			select {
			case files <- p:
				return nil
			case <-gctx.Done():
				return filepath.SkipAll
			}
		})
		if err != nil && gctx.Err() == nil {
			return err
		}
		return nil
	})

	for i := 0; i < w.limits.MaxConcurrency; i++ {
		g.Go(func() error {
			for p := range files {
				if gctx.Err() != nil {
					continue
				}
				scanned.Add(1)
				if !w.fileMatches(p, re) {
					continue
				}
				mu.Lock()
				if len(matches) < maxResults {
					matches = append(matches, p)
					if len(matches) == maxResults {
						stop()
					}
				}
				mu.Unlock()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, ioOrContext(ctx, "failed to search", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	w.log.Debug().
		Str("root", v.Path()).
		Int64("scanned", scanned.Load()).
		Int("matches", len(matches)).
		Bool("capped", len(matches) == maxResults).
		Msg("search finished")
	slices.Sort(matches)
	return matches, nil
}

func (w *Walker) fileMatches(p string, re *regexp.Regexp) bool {
	info, err := os.Stat(p)
	if err != nil || info.Size() > w.limits.MaxFileSizeBytes {
		return false
	}
	data, err := os.ReadFile(p)
	if err != nil {
		w.log.Debug().Err(err).Str("path", p).Msg("search: unreadable file")
		return false
	}
	return re.Match(data)
}

func ioOrContext(ctx context.Context, message string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return apperrors.Wrap(apperrors.CodeIO, message, err)
}
