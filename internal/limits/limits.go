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

// Package limits holds the resource bounds shared by file and traversal operations.
package limits

// Limits configures size and traversal bounds for tool operations.
type Limits struct {
	// MaxFileSizeBytes bounds reads, writes and edits. Search skips larger files.
	MaxFileSizeBytes int64
	// MaxDirectoryEntries bounds the entries a listing keeps per directory,
	// after sorting; 0 means unlimited.
	MaxDirectoryEntries int
	// MaxConcurrency bounds parallel reads and directory visits within one call.
	MaxConcurrency int
}

const (
	defaultMaxFileSizeBytes int64 = 10 * 1024 * 1024
	defaultMaxConcurrency         = 8
)

// Default returns the default resource limits for tool operations.
func Default() Limits {
	return Limits{
		MaxFileSizeBytes: defaultMaxFileSizeBytes,
		MaxConcurrency:   defaultMaxConcurrency,
	}
}

// Normalize replaces unset or invalid values with defaults.
func (l Limits) Normalize() Limits {
	if l.MaxFileSizeBytes <= 0 {
		l.MaxFileSizeBytes = defaultMaxFileSizeBytes
	}
	if l.MaxDirectoryEntries < 0 {
		l.MaxDirectoryEntries = 0
	}
	if l.MaxConcurrency <= 0 {
		l.MaxConcurrency = defaultMaxConcurrency
	}
	return l
}
