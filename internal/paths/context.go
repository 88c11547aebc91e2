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
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	apperrors "fsguard/internal/errors"
)

// SecurityContext is the policy every path is checked against: an ordered
// allowlist of root directories and a list of exclusion regexps matched
// against forward-slash paths. It is immutable once built and safe for
// concurrent use.
type SecurityContext struct {
	allowed  []string
	patterns []string
	excludes []*regexp.Regexp
	maxLen   int
}

// NewSecurityContext expands and absolutizes allowedDirs and compiles
// excludePatterns. Allowed directories are kept in their absolute but
// unresolved form; canonicalization happens on every validation.
func NewSecurityContext(allowedDirs, excludePatterns []string) (*SecurityContext, error) {
	sc := &SecurityContext{maxLen: DefaultMaxPathLength}
	seen := make(map[string]struct{}, len(allowedDirs))
	for _, dir := range allowedDirs {
		if strings.TrimSpace(dir) == "" {
			return nil, apperrors.New(apperrors.CodeValidation, "allowed directory cannot be empty")
		}
		abs, err := Absolute(dir)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.CodeValidation, fmt.Sprintf("invalid allowed directory %q", dir), err)
		}
		if _, dup := seen[abs]; dup {
			continue
		}
		seen[abs] = struct{}{}
		sc.allowed = append(sc.allowed, abs)
	}
	for _, pattern := range excludePatterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.CodeValidation, fmt.Sprintf("invalid exclude pattern %q", pattern), err)
		}
		sc.patterns = append(sc.patterns, pattern)
		sc.excludes = append(sc.excludes, re)
	}
	return sc, nil
}

// AllowedDirs returns the configured allowed directories in order.
func (sc *SecurityContext) AllowedDirs() []string {
	return append([]string(nil), sc.allowed...)
}

// ExcludePatterns returns the source of each exclusion regexp.
func (sc *SecurityContext) ExcludePatterns() []string {
	return append([]string(nil), sc.patterns...)
}

// Excluded reports whether path, normalized to forward slashes, matches any
// exclusion pattern.
func (sc *SecurityContext) Excluded(path string) bool {
	if len(sc.excludes) == 0 {
		return false
	}
	slashed := filepath.ToSlash(path)
	for _, re := range sc.excludes {
		if re.MatchString(slashed) {
			return true
		}
	}
	return false
}

// canonicalAllowed resolves every allowed directory. It runs per validation
// so symlink changes to the roots are always observed.
func (sc *SecurityContext) canonicalAllowed() []string {
	out := make([]string, 0, len(sc.allowed))
	for _, dir := range sc.allowed {
		resolved, err := canonicalDir(dir)
		if err != nil {
			continue
		}
		out = append(out, resolved)
	}
	return out
}

// Contains reports whether an already canonical path lies inside one of the
// canonical allowed directories.
func (sc *SecurityContext) Contains(canonical string) bool {
	for _, dir := range sc.canonicalAllowed() {
		if IsWithin(canonical, dir) {
			return true
		}
	}
	return false
}
