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

package tools

import (
	"strings"
	"testing"
)

type validationFixture struct {
	Name  string `json:"name" validate:"required,min=2,max=5"`
	Mode  string `json:"mode" validate:"oneof=alpha beta"`
	Count int    `json:"count" validate:"min=1"`
}

func TestUnmarshalAndValidateWriteFileArgs(t *testing.T) {
	args, err := unmarshalAndValidate[writeFileArgs](map[string]interface{}{
		"path":    "example.txt",
		"content": "hello",
	})
	if err != nil {
		t.Fatalf("expected validation success, got %v", err)
	}
	if args.Path != "example.txt" || args.Content != "hello" {
		t.Fatalf("unexpected decoded args: %+v", args)
	}
}

func TestUnmarshalAndValidateEmptyContentAllowed(t *testing.T) {
	if _, err := unmarshalAndValidate[writeFileArgs](map[string]interface{}{
		"path":    "empty.txt",
		"content": "",
	}); err != nil {
		t.Fatalf("expected empty content to be accepted, got %v", err)
	}
}

func TestUnmarshalAndValidateMissingPath(t *testing.T) {
	_, err := unmarshalAndValidate[writeFileArgs](map[string]interface{}{
		"content": "hello",
	})
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "'path'") {
		t.Fatalf("expected path error, got %v", err)
	}
}

func TestUnmarshalAndValidateTypeMismatch(t *testing.T) {
	_, err := unmarshalAndValidate[writeFileArgs](map[string]interface{}{
		"path":    123,
		"content": "hello",
	})
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "'path'") {
		t.Fatalf("expected path error, got %v", err)
	}
}

func TestUnmarshalAndValidateUnknownField(t *testing.T) {
	_, err := unmarshalAndValidate[pathArgs](map[string]interface{}{
		"path":  "a",
		"bogus": true,
	})
	if err == nil || !strings.Contains(err.Error(), "'bogus'") {
		t.Fatalf("expected unknown parameter error, got %v", err)
	}
}

func TestUnmarshalAndValidateNestedEdit(t *testing.T) {
	_, err := unmarshalAndValidate[editFileArgs](map[string]interface{}{
		"path": "a.txt",
		"edits": []interface{}{
			map[string]interface{}{"oldText": "", "newText": "x"},
		},
	})
	if err == nil || !strings.Contains(err.Error(), "'edits[0].oldText'") {
		t.Fatalf("expected nested oldText error, got %v", err)
	}

	_, err = unmarshalAndValidate[editFileArgs](map[string]interface{}{
		"path":  "a.txt",
		"edits": []interface{}{},
	})
	if err == nil || !strings.Contains(err.Error(), "'edits'") {
		t.Fatalf("expected empty edits error, got %v", err)
	}
}

func TestUnmarshalAndValidateOptionalPointer(t *testing.T) {
	args, err := unmarshalAndValidate[treeArgs](map[string]interface{}{"path": "."})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if args.Depth != nil {
		t.Fatalf("expected nil depth, got %d", *args.Depth)
	}

	args, err = unmarshalAndValidate[treeArgs](map[string]interface{}{"path": ".", "depth": 0})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if args.Depth == nil || *args.Depth != 0 {
		t.Fatalf("expected depth 0, got %v", args.Depth)
	}

	_, err = unmarshalAndValidate[treeArgs](map[string]interface{}{"path": ".", "depth": -1})
	if err == nil || !strings.Contains(err.Error(), "'depth'") {
		t.Fatalf("expected depth error, got %v", err)
	}

	_, err = unmarshalAndValidate[searchFilesArgs](map[string]interface{}{"path": ".", "pattern": "x", "maxResults": 2.5})
	if err == nil || !strings.Contains(err.Error(), "'maxResults'") {
		t.Fatalf("expected maxResults error, got %v", err)
	}
}

func TestUnmarshalAndValidateFixtureRequired(t *testing.T) {
	_, err := unmarshalAndValidate[validationFixture](map[string]interface{}{
		"mode":  "alpha",
		"count": 1,
	})
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "'name'") {
		t.Fatalf("expected name error, got %v", err)
	}
}

func TestUnmarshalAndValidateFixtureMinMax(t *testing.T) {
	for _, name := range []string{"a", "toolong"} {
		_, err := unmarshalAndValidate[validationFixture](map[string]interface{}{
			"name":  name,
			"mode":  "alpha",
			"count": 1,
		})
		if err == nil {
			t.Fatalf("expected validation error for %q", name)
		}
		if !strings.Contains(err.Error(), "'name'") {
			t.Fatalf("expected name error, got %v", err)
		}
	}
}

func TestUnmarshalAndValidateFixtureOneOf(t *testing.T) {
	_, err := unmarshalAndValidate[validationFixture](map[string]interface{}{
		"name":  "okay",
		"mode":  "gamma",
		"count": 1,
	})
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "'mode'") {
		t.Fatalf("expected mode error, got %v", err)
	}
}

func TestUnmarshalAndValidateFixtureMinValue(t *testing.T) {
	_, err := unmarshalAndValidate[validationFixture](map[string]interface{}{
		"name":  "okay",
		"mode":  "alpha",
		"count": 0,
	})
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "'count'") {
		t.Fatalf("expected count error, got %v", err)
	}
}
