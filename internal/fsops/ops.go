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

// Package fsops implements file primitives that only ever touch paths
// authorized by a paths.SecurityContext.
package fsops

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	apperrors "fsguard/internal/errors"
	"fsguard/internal/limits"
	"fsguard/internal/paths"
)

const (
	defaultFileMode = 0o644
	defaultDirMode  = 0o755
)

// Ops performs file operations against one security context.
type Ops struct {
	sc     *paths.SecurityContext
	limits limits.Limits
	log    zerolog.Logger
}

// Option configures Ops.
type Option func(*Ops)

// WithLimits overrides the default resource limits.
func WithLimits(l limits.Limits) Option {
	return func(o *Ops) { o.limits = l.Normalize() }
}

// WithLogger sets the logger used for debug tracing.
func WithLogger(log zerolog.Logger) Option {
	return func(o *Ops) { o.log = log }
}

// New binds file operations to sc.
func New(sc *paths.SecurityContext, opts ...Option) *Ops {
	o := &Ops{sc: sc, limits: limits.Default(), log: zerolog.Nop()}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Context returns the security context the operations are bound to.
func (o *Ops) Context() *paths.SecurityContext { return o.sc }

// ReadResult is the outcome of reading one path of a batch.
type ReadResult struct {
	Path    string
	Content string
	Err     error
}

// ReadFile validates path and returns its full content.
func (o *Ops) ReadFile(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	v, err := o.sc.Validate(path, true)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(v.Path())
	if err != nil {
		return "", ioError("failed to read file", err)
	}
	if info.IsDir() {
		return "", apperrors.New(apperrors.CodeIO, fmt.Sprintf("failed to read file: %s is a directory", path))
	}
	if info.Size() > o.limits.MaxFileSizeBytes {
		return "", apperrors.New(apperrors.CodeValidation, fmt.Sprintf("file exceeds maximum size of %d bytes", o.limits.MaxFileSizeBytes))
	}
	data, err := os.ReadFile(v.Path())
	if err != nil {
		return "", ioError("failed to read file", err)
	}
	return string(data), nil
}

// ReadFiles reads every path independently. Results keep the input order and
// a failure on one path never affects the others.
func (o *Ops) ReadFiles(ctx context.Context, list []string) []ReadResult {
	results := make([]ReadResult, len(list))
	g := new(errgroup.Group)
	g.SetLimit(o.limits.MaxConcurrency)
	for i, p := range list {
		g.Go(func() error {
			content, err := o.ReadFile(ctx, p)
			results[i] = ReadResult{Path: p, Content: content, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// WriteFile creates or overwrites path with content. Missing parent
// directories are created first, then the final location is validated again
// before any byte is written.
func (o *Ops) WriteFile(ctx context.Context, path, content string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if int64(len(content)) > o.limits.MaxFileSizeBytes {
		return apperrors.New(apperrors.CodeValidation, fmt.Sprintf("content exceeds maximum size of %d bytes", o.limits.MaxFileSizeBytes))
	}
	v, err := o.sc.Validate(path, false)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(v.Path()), defaultDirMode); err != nil {
		return ioError("failed to create parent directories", err)
	}
	v, err = o.sc.Validate(path, true)
	if err != nil {
		return err
	}
	if info, err := os.Stat(v.Path()); err == nil && info.IsDir() {
		return apperrors.New(apperrors.CodeIO, fmt.Sprintf("failed to write file: %s is a directory", path))
	}
	// WriteFile keeps the permissions of an existing file.
	if err := os.WriteFile(v.Path(), []byte(content), defaultFileMode); err != nil {
		return ioError("failed to write file", err)
	}
	o.log.Debug().Str("path", v.Path()).Int("bytes", len(content)).Msg("file written")
	return nil
}

// MoveFile renames source to destination. Both paths are checked against the
// exclusion patterns before anything touches the filesystem.
func (o *Ops) MoveFile(ctx context.Context, source, destination string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if o.sc.Excluded(source) || o.sc.Excluded(destination) {
		return apperrors.New(apperrors.CodeAccessDenied, paths.MsgExcluded)
	}
	src, err := o.sc.Validate(source, true)
	if err != nil {
		return err
	}
	dst, err := o.sc.Validate(destination, false)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst.Path()), defaultDirMode); err != nil {
		return ioError("failed to move file", err)
	}
	if dst, err = o.sc.Validate(destination, true); err != nil {
		return err
	}
	if err := os.Rename(src.Path(), dst.Path()); err != nil {
		return ioError("failed to move file", err)
	}
	o.log.Debug().Str("source", src.Path()).Str("destination", dst.Path()).Msg("file moved")
	return nil
}

// CreateDirectory creates path and any missing parents. Creating an existing
// directory succeeds.
func (o *Ops) CreateDirectory(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	v, err := o.sc.Validate(path, false)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(v.Path(), defaultDirMode); err != nil {
		return ioError("failed to create directory", err)
	}
	if _, err := o.sc.Validate(path, true); err != nil {
		return err
	}
	return nil
}

// FileInfo describes one filesystem entry.
type FileInfo struct {
	Name     string    `json:"name"`
	Type     string    `json:"type"`
	Size     int64     `json:"size"`
	Mode     string    `json:"mode"`
	Modified time.Time `json:"modified"`
}

// Entry types reported by Stat and directory listings.
const (
	TypeFile  = "FILE"
	TypeDir   = "DIR"
	TypeOther = "OTHER"
)

// Stat returns metadata about an existing path.
func (o *Ops) Stat(ctx context.Context, path string) (FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return FileInfo{}, err
	}
	v, err := o.sc.Validate(path, true)
	if err != nil {
		return FileInfo{}, err
	}
	info, err := os.Stat(v.Path())
	if err != nil {
		return FileInfo{}, ioError("failed to stat path", err)
	}
	return FileInfo{
		Name:     info.Name(),
		Type:     EntryType(info.Mode()),
		Size:     info.Size(),
		Mode:     info.Mode().Perm().String(),
		Modified: info.ModTime().UTC(),
	}, nil
}

// EntryType classifies a followed file mode.
func EntryType(mode fs.FileMode) string {
	switch {
	case mode.IsDir():
		return TypeDir
	case mode.IsRegular():
		return TypeFile
	default:
		return TypeOther
	}
}

func ioError(message string, err error) error {
	return apperrors.Wrap(apperrors.CodeIO, message, err)
}
