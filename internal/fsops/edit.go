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

package fsops

import (
	"context"
	"fmt"
	"os"
	"strings"

	apperrors "fsguard/internal/errors"
)

// Edit replaces every occurrence of OldText with NewText.
type Edit struct {
	OldText string `json:"oldText" jsonschema:"description=Exact text to search for; every occurrence is replaced" validate:"required"`
	NewText string `json:"newText" jsonschema:"description=Replacement text"`
}

// EditNotFoundMessage prefixes the error for an edit whose text is absent.
const EditNotFoundMessage = "Could not find exact match for edit"

// EditFile applies edits in order against the file content and returns a line
// diff of the change. If any edit does not match, nothing is written. With
// dryRun the diff is returned and the file is left untouched.
func (o *Ops) EditFile(ctx context.Context, path string, edits []Edit, dryRun bool) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(edits) == 0 {
		return "", apperrors.New(apperrors.CodeValidation, "at least one edit is required")
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

	original := string(data)
	updated, err := ApplyEdits(original, edits)
	if err != nil {
		return "", err
	}
	diff := LineDiff(path, original, updated)
	if dryRun {
		return diff, nil
	}
	if int64(len(updated)) > o.limits.MaxFileSizeBytes {
		return "", apperrors.New(apperrors.CodeValidation, fmt.Sprintf("content exceeds maximum size of %d bytes", o.limits.MaxFileSizeBytes))
	}
	if err := os.WriteFile(v.Path(), []byte(updated), info.Mode().Perm()); err != nil {
		return "", ioError("failed to write file", err)
	}
	o.log.Debug().Str("path", v.Path()).Int("edits", len(edits)).Msg("file edited")
	return diff, nil
}

// ApplyEdits runs each edit against the running text. The first edit whose
// OldText is missing aborts the whole sequence.
func ApplyEdits(content string, edits []Edit) (string, error) {
	for i, edit := range edits {
		if edit.OldText == "" {
			return "", apperrors.New(apperrors.CodeValidation, fmt.Sprintf("edit %d: oldText cannot be empty", i+1))
		}
		if !strings.Contains(content, edit.OldText) {
			return "", apperrors.New(apperrors.CodeValidation, fmt.Sprintf("%s:\n%s", EditNotFoundMessage, edit.OldText))
		}
		content = strings.ReplaceAll(content, edit.OldText, edit.NewText)
	}
	return content, nil
}
