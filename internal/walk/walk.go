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

// Package walk lists, trees and searches directories inside the allowlist,
// filtering excluded entries at every level.
package walk

import (
	"cmp"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"

	"github.com/rs/zerolog"

	apperrors "fsguard/internal/errors"
	"fsguard/internal/fsops"
	"fsguard/internal/limits"
	"fsguard/internal/paths"
)

// Entry is one child of a listed directory.
type Entry struct {
	Type string `json:"type"`
	Name string `json:"name"`
	Path string `json:"path"`

	symlink bool
}

// Walker traverses directories against one security context.
type Walker struct {
	sc     *paths.SecurityContext
	limits limits.Limits
	log    zerolog.Logger
}

// Option configures a Walker.
type Option func(*Walker)

func WithLimits(l limits.Limits) Option {
	return func(w *Walker) { w.limits = l.Normalize() }
}

func WithLogger(log zerolog.Logger) Option {
	return func(w *Walker) { w.log = log }
}

// New binds traversal to sc.
func New(sc *paths.SecurityContext, opts ...Option) *Walker {
	w := &Walker{sc: sc, limits: limits.Default(), log: zerolog.Nop()}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// List returns the direct children of path, directories first and each
// group sorted by name.
func (w *Walker) List(ctx context.Context, path string) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dir, err := w.validateDir(path)
	if err != nil {
		return nil, err
	}
	entries, err := w.readDir(dir)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeIO, "failed to list directory", err)
	}
	return entries, nil
}

func (w *Walker) validateDir(path string) (string, error) {
	v, err := w.sc.Validate(path, true)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(v.Path())
	if err != nil {
		return "", apperrors.Wrap(apperrors.CodeIO, "failed to read directory", err)
	}
	if !info.IsDir() {
		return "", apperrors.New(apperrors.CodeIO, fmt.Sprintf("not a directory: %s", path))
	}
	return v.Path(), nil
}

// readDir reads, filters and sorts the children of dir. MaxDirectoryEntries
// truncates the sorted listing, so the kept entries do not depend on the
// order the filesystem returns them in.
func (w *Walker) readDir(dir string) ([]Entry, error) {
	dirents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(dirents))
	for _, de := range dirents {
		full := filepath.Join(dir, de.Name())
		if w.sc.Excluded(full) {
			continue
		}
		entry := Entry{
			Name:    de.Name(),
			Path:    full,
			symlink: de.Type()&fs.ModeSymlink != 0,
		}
		if info, err := os.Stat(full); err == nil {
			entry.Type = classify(info.Mode())
		} else {
			entry.Type = classify(de.Type())
		}
		entries = append(entries, entry)
	}
	SortEntries(entries)
	if n := w.limits.MaxDirectoryEntries; n > 0 && len(entries) > n {
		entries = entries[:n]
	}
	return entries, nil
}

func classify(mode fs.FileMode) string {
	if mode.IsDir() {
		return fsops.TypeDir
	}
	return fsops.TypeFile
}

// SortEntries orders directories before files, each alphabetically.
func SortEntries(entries []Entry) {
	slices.SortFunc(entries, func(a, b Entry) int {
		if a.Type != b.Type {
			if a.Type == fsops.TypeDir {
				return -1
			}
			if b.Type == fsops.TypeDir {
				return 1
			}
		}
		return cmp.Compare(a.Name, b.Name)
	})
}
