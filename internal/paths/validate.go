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

package paths

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"syscall"

	apperrors "fsguard/internal/errors"
)

// Messages returned to callers. They are part of the tool contract.
const (
	MsgExcluded     = "Path matches exclude pattern"
	MsgAccessDenied = "Access denied - path outside allowed directories"
	MsgParentAbsent = "Parent directory does not exist"
)

const maxSymlinkHops = 40

var errTooManyLinks = errors.New("too many levels of symbolic links")

// Validated is a path proven to sit inside the allowlist and outside every
// exclusion at the moment it was checked. It is only built by Validate and
// must not be cached across calls: the filesystem can change in between, and
// nothing re-checks right before the I/O syscall.
type Validated struct {
	path   string
	exists bool
}

// Path returns the canonical path for existing targets and the absolute,
// unresolved path for targets that do not exist yet.
func (v Validated) Path() string { return v.path }

// Exists reports whether the target existed at validation time.
func (v Validated) Exists() bool { return v.exists }

func (v Validated) String() string { return v.path }

// Validate authorizes requested against the context. With requireParentExists
// a missing target must at least have an existing parent directory; creation
// paths that build nested directories pass false.
func (sc *SecurityContext) Validate(requested string, requireParentExists bool) (Validated, error) {
	if sc.Excluded(requested) {
		return Validated{}, apperrors.New(apperrors.CodeAccessDenied, MsgExcluded)
	}
	if err := ValidatePathString(requested, sc.maxLen); err != nil {
		return Validated{}, apperrors.Wrap(apperrors.CodeInvalidPath, "Invalid path", err)
	}

	abs, err := Absolute(requested)
	if err != nil {
		return Validated{}, apperrors.Wrap(apperrors.CodeInvalidPath, "Invalid path", err)
	}
	if sc.Excluded(abs) {
		return Validated{}, apperrors.New(apperrors.CodeAccessDenied, MsgExcluded)
	}

	resolved, exists, err := resolveBestEffort(abs, 0)
	if err != nil {
		// Resolution failures that are not "missing" (loops, permission on an
		// ancestor) are reported as denials so they do not reveal layout.
		return Validated{}, accessDenied(requested)
	}
	if !sc.Contains(resolved) {
		return Validated{}, accessDenied(requested)
	}
	if sc.Excluded(resolved) {
		return Validated{}, apperrors.New(apperrors.CodeAccessDenied, MsgExcluded)
	}

	if exists {
		return Validated{path: resolved, exists: true}, nil
	}
	if requireParentExists {
		parent := filepath.Dir(abs)
		info, err := os.Stat(parent)
		if err != nil || !info.IsDir() {
			return Validated{}, apperrors.New(apperrors.CodeInvalidPath, fmt.Sprintf("%s: %s", MsgParentAbsent, parent))
		}
	}
	return Validated{path: abs, exists: false}, nil
}

func accessDenied(requested string) error {
	return apperrors.New(apperrors.CodeAccessDenied, fmt.Sprintf("%s: %s", MsgAccessDenied, requested))
}

// resolveBestEffort returns the symlink-free form of abs. When abs does not
// exist, the deepest existing ancestor is canonicalized and the missing tail
// appended. Dangling symlinks are followed through their link text so a link
// pointing at a not-yet-created location is judged by where it points.
func resolveBestEffort(abs string, hops int) (string, bool, error) {
	if hops > maxSymlinkHops {
		return "", false, errTooManyLinks
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved, true, nil
	} else if !isMissing(err) {
		return "", false, err
	}

	cur := abs
	var tail []string
	for {
		info, err := os.Lstat(cur)
		if err == nil {
			base, evalErr := filepath.EvalSymlinks(cur)
			if evalErr == nil {
				return joinTail(base, tail), false, nil
			}
			if !isMissing(evalErr) || info.Mode()&fs.ModeSymlink == 0 {
				return "", false, evalErr
			}
			target, err := os.Readlink(cur)
			if err != nil {
				return "", false, err
			}
			if !filepath.IsAbs(target) {
				dir, err := filepath.EvalSymlinks(filepath.Dir(cur))
				if err != nil {
					return "", false, err
				}
				target = filepath.Join(dir, target)
			}
			resolved, _, err := resolveBestEffort(joinTail(filepath.Clean(target), tail), hops+1)
			return resolved, false, err
		}
		if !isMissing(err) {
			return "", false, err
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return abs, false, nil
		}
		tail = append([]string{filepath.Base(cur)}, tail...)
		cur = parent
	}
}

func joinTail(base string, tail []string) string {
	if len(tail) == 0 {
		return base
	}
	return filepath.Join(append([]string{base}, tail...)...)
}

func isMissing(err error) bool {
	return errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ENOTDIR)
}
