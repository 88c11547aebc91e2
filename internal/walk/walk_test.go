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
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"gotest.tools/v3/assert"
	"gotest.tools/v3/fs"

	apperrors "fsguard/internal/errors"
	"fsguard/internal/fsops"
	"fsguard/internal/limits"
	"fsguard/internal/paths"
)

func fixture(t *testing.T) *fs.Dir {
	t.Helper()
	dir := fs.NewDir(t, "fsguard-walk",
		fs.WithFile("zeta.txt", "needle here"),
		fs.WithFile("Alpha.md", "nothing"),
		fs.WithFile("beta.txt", "another needle"),
		fs.WithDir("src",
			fs.WithFile("main.go", "package main // needle"),
			fs.WithDir("empty"),
			fs.WithDir("pkg", fs.WithFile("lib.go", "package pkg")),
		),
		fs.WithDir("docs", fs.WithFile("guide.md", "needle")),
		fs.WithDir(".git", fs.WithFile("HEAD", "needle")),
		fs.WithDir("node_modules", fs.WithFile("x.js", "needle")),
	)
	t.Cleanup(dir.Remove)
	return dir
}

func newWalker(t *testing.T, dir string, excludes ...string) *Walker {
	t.Helper()
	sc, err := paths.NewSecurityContext([]string{dir}, excludes)
	assert.NilError(t, err)
	return New(sc)
}

func names(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Type + ":" + e.Name
	}
	return out
}

func TestListSortsDirectoriesFirst(t *testing.T) {
	dir := fixture(t)
	w := newWalker(t, dir.Path(), `/\.`, `node_modules`)

	entries, err := w.List(context.Background(), dir.Path())
	assert.NilError(t, err)
	assert.DeepEqual(t, names(entries), []string{
		"DIR:docs", "DIR:src",
		"FILE:Alpha.md", "FILE:beta.txt", "FILE:zeta.txt",
	})
	for _, e := range entries {
		assert.Equal(t, filepath.Base(e.Path), e.Name)
	}
}

func TestListRejectsFileAndOutside(t *testing.T) {
	dir := fixture(t)
	w := newWalker(t, dir.Join("src"))

	_, err := w.List(context.Background(), dir.Join("src", "main.go"))
	assert.Assert(t, apperrors.HasCode(err, apperrors.CodeIO), "got %v", err)

	_, err = w.List(context.Background(), dir.Path())
	assert.Assert(t, apperrors.HasCode(err, apperrors.CodeAccessDenied), "got %v", err)
}

func TestListClassifiesSymlinkedDirectory(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	dir := fixture(t)
	assert.NilError(t, os.Symlink(dir.Join("src"), dir.Join("alias")))
	w := newWalker(t, dir.Path(), `/\.`, `node_modules`)

	entries, err := w.List(context.Background(), dir.Path())
	assert.NilError(t, err)
	assert.Equal(t, entries[0].Name, "alias")
	assert.Equal(t, entries[0].Type, fsops.TypeDir)
}

func TestListHonorsEntryLimit(t *testing.T) {
	dir := fixture(t)
	sc, err := paths.NewSecurityContext([]string{dir.Path()}, nil)
	assert.NilError(t, err)
	w := New(sc, WithLimits(limits.Limits{MaxDirectoryEntries: 2}))

	entries, err := w.List(context.Background(), dir.Join("src"))
	assert.NilError(t, err)
	// The limit cuts the sorted listing, so main.go is always the one dropped.
	assert.DeepEqual(t, names(entries), []string{"DIR:empty", "DIR:pkg"})

	w = New(sc, WithLimits(limits.Limits{MaxDirectoryEntries: 3}))
	entries, err = w.List(context.Background(), dir.Join("src"))
	assert.NilError(t, err)
	assert.DeepEqual(t, names(entries), []string{"DIR:empty", "DIR:pkg", "FILE:main.go"})
}

func TestSortEntriesArbitraryInput(t *testing.T) {
	entries := []Entry{
		{Type: fsops.TypeFile, Name: "b"},
		{Type: fsops.TypeDir, Name: "z"},
		{Type: fsops.TypeFile, Name: "a"},
		{Type: fsops.TypeDir, Name: "c"},
	}
	SortEntries(entries)
	assert.DeepEqual(t, names(entries), []string{"DIR:c", "DIR:z", "FILE:a", "FILE:b"})
}

func findChild(t *testing.T, n *Node, name string) *Node {
	t.Helper()
	assert.Assert(t, n.Children != nil, "node %s has no children array", n.Name)
	for _, c := range *n.Children {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("child %s not found under %s", name, n.Name)
	return nil
}

func TestTreeUnlimited(t *testing.T) {
	dir := fixture(t)
	w := newWalker(t, dir.Path(), `/\.`, `node_modules`)

	root, err := w.Tree(context.Background(), dir.Path(), nil)
	assert.NilError(t, err)
	assert.Equal(t, root.Type, fsops.TypeDir)

	top := make([]string, 0)
	for _, c := range *root.Children {
		top = append(top, c.Type+":"+c.Name)
	}
	assert.DeepEqual(t, top, []string{"DIR:docs", "DIR:src", "FILE:Alpha.md", "FILE:beta.txt", "FILE:zeta.txt"})

	src := findChild(t, root, "src")
	empty := findChild(t, src, "empty")
	assert.Assert(t, empty.Children != nil)
	assert.Equal(t, len(*empty.Children), 0)

	pkg := findChild(t, src, "pkg")
	lib := findChild(t, pkg, "lib.go")
	assert.Assert(t, lib.Children == nil)
}

func TestTreeDepthLimit(t *testing.T) {
	dir := fixture(t)
	w := newWalker(t, dir.Path(), `/\.`, `node_modules`)

	zero := 0
	root, err := w.Tree(context.Background(), dir.Path(), &zero)
	assert.NilError(t, err)
	assert.Assert(t, root.Children == nil)

	one := 1
	root, err = w.Tree(context.Background(), dir.Path(), &one)
	assert.NilError(t, err)
	src := findChild(t, root, "src")
	assert.Assert(t, src.Children == nil, "depth-limited directory must have no children array")

	two := 2
	root, err = w.Tree(context.Background(), dir.Path(), &two)
	assert.NilError(t, err)
	src = findChild(t, root, "src")
	empty := findChild(t, src, "empty")
	assert.Assert(t, empty.Children == nil)
}

func TestTreeJSONDistinguishesStoppedFromEmpty(t *testing.T) {
	dir := fixture(t)
	w := newWalker(t, dir.Join("src"))

	one := 1
	root, err := w.Tree(context.Background(), dir.Join("src"), &one)
	assert.NilError(t, err)
	data, err := json.Marshal(root)
	assert.NilError(t, err)
	assert.Assert(t, strings.Contains(string(data), `{"name":"empty","type":"DIR"}`), string(data))

	root, err = w.Tree(context.Background(), dir.Join("src"), nil)
	assert.NilError(t, err)
	data, err = json.Marshal(root)
	assert.NilError(t, err)
	assert.Assert(t, strings.Contains(string(data), `{"name":"empty","type":"DIR","children":[]}`), string(data))
}

func TestTreeDoesNotFollowSymlinkedDirectories(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	dir := fixture(t)
	assert.NilError(t, os.Symlink(dir.Path(), dir.Join("src", "loop")))
	w := newWalker(t, dir.Path(), `/\.`, `node_modules`)

	root, err := w.Tree(context.Background(), dir.Path(), nil)
	assert.NilError(t, err)
	loop := findChild(t, findChild(t, root, "src"), "loop")
	assert.Equal(t, loop.Type, fsops.TypeDir)
	assert.Assert(t, loop.Children == nil)
}

func TestTreeWideDirectory(t *testing.T) {
	dir := fs.NewDir(t, "fsguard-wide")
	t.Cleanup(dir.Remove)
	for i := 0; i < 40; i++ {
		sub := dir.Join(fmt.Sprintf("d%02d", i))
		assert.NilError(t, os.MkdirAll(filepath.Join(sub, "inner"), 0o755))
		assert.NilError(t, os.WriteFile(filepath.Join(sub, "inner", "f.txt"), []byte("x"), 0o644))
	}
	sc, err := paths.NewSecurityContext([]string{dir.Path()}, nil)
	assert.NilError(t, err)
	w := New(sc, WithLimits(limits.Limits{MaxConcurrency: 2}))

	root, err := w.Tree(context.Background(), dir.Path(), nil)
	assert.NilError(t, err)
	assert.Equal(t, len(*root.Children), 40)
	for i, c := range *root.Children {
		assert.Equal(t, c.Name, fmt.Sprintf("d%02d", i))
		inner := findChild(t, c, "inner")
		assert.Equal(t, len(*inner.Children), 1)
	}
}

func TestSearchFindsMatchesAndSkipsExcluded(t *testing.T) {
	dir := fixture(t)
	w := newWalker(t, dir.Path(), `/\.`, `node_modules`)

	matches, err := w.Search(context.Background(), dir.Path(), `needle`, 0)
	assert.NilError(t, err)
	resolved, err := filepath.EvalSymlinks(dir.Path())
	assert.NilError(t, err)
	assert.DeepEqual(t, matches, []string{
		filepath.Join(resolved, "beta.txt"),
		filepath.Join(resolved, "docs", "guide.md"),
		filepath.Join(resolved, "src", "main.go"),
		filepath.Join(resolved, "zeta.txt"),
	})
}

func TestSearchRespectsMaxResults(t *testing.T) {
	dir := fs.NewDir(t, "fsguard-many")
	t.Cleanup(dir.Remove)
	for i := 0; i < 50; i++ {
		assert.NilError(t, os.WriteFile(dir.Join(fmt.Sprintf("f%02d.txt", i)), []byte("hit"), 0o644))
	}
	w := newWalker(t, dir.Path())

	for _, limit := range []int{1, 3, 10} {
		matches, err := w.Search(context.Background(), dir.Path(), `hit`, limit)
		assert.NilError(t, err)
		assert.Equal(t, len(matches), limit)
	}
}

func TestSearchStopsWalkingAtCap(t *testing.T) {
	dir := fs.NewDir(t, "fsguard-cap")
	t.Cleanup(dir.Remove)
	const total = 200
	for i := 0; i < total; i++ {
		assert.NilError(t, os.WriteFile(dir.Join(fmt.Sprintf("f%03d.txt", i)), []byte("hit"), 0o644))
	}
	sc, err := paths.NewSecurityContext([]string{dir.Path()}, nil)
	assert.NilError(t, err)
	var logs bytes.Buffer
	w := New(sc,
		WithLimits(limits.Limits{MaxConcurrency: 1}),
		WithLogger(zerolog.New(&logs).Level(zerolog.DebugLevel)),
	)

	matches, err := w.Search(context.Background(), dir.Path(), `hit`, 1)
	assert.NilError(t, err)
	assert.Equal(t, len(matches), 1)

	var summary struct {
		Message string `json:"message"`
		Scanned int64  `json:"scanned"`
		Matches int    `json:"matches"`
		Capped  bool   `json:"capped"`
	}
	found := false
	scanner := bufio.NewScanner(&logs)
	for scanner.Scan() {
		assert.NilError(t, json.Unmarshal(scanner.Bytes(), &summary))
		if summary.Message == "search finished" {
			found = true
			break
		}
	}
	assert.Assert(t, found, "no summary line in %q", logs.String())
	assert.Assert(t, summary.Capped)
	assert.Equal(t, summary.Matches, 1)
	assert.Assert(t, summary.Scanned < 10, "scanned %d of %d files", summary.Scanned, total)
}

func TestSearchInvalidPattern(t *testing.T) {
	dir := fixture(t)
	w := newWalker(t, dir.Path())
	_, err := w.Search(context.Background(), dir.Path(), `(unclosed`, 0)
	assert.Assert(t, apperrors.HasCode(err, apperrors.CodeValidation), "got %v", err)
}

func TestSearchSkipsOversizedFiles(t *testing.T) {
	dir := fixture(t)
	sc, err := paths.NewSecurityContext([]string{dir.Path()}, []string{`/\.`, `node_modules`})
	assert.NilError(t, err)
	w := New(sc, WithLimits(limits.Limits{MaxFileSizeBytes: 12}))

	matches, err := w.Search(context.Background(), dir.Path(), `needle`, 0)
	assert.NilError(t, err)
	for _, m := range matches {
		assert.Assert(t, !strings.HasSuffix(m, "beta.txt"), "oversized file matched: %s", m)
		assert.Assert(t, !strings.HasSuffix(m, "main.go"), "oversized file matched: %s", m)
	}
	assert.Equal(t, len(matches), 2)
}

func TestSearchSymlinkOutsideIsIgnored(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	dir := fixture(t)
	outside := fs.NewDir(t, "fsguard-outside", fs.WithFile("secret.txt", "needle"))
	t.Cleanup(outside.Remove)
	assert.NilError(t, os.Symlink(outside.Join("secret.txt"), dir.Join("docs", "leak.txt")))

	w := newWalker(t, dir.Path(), `/\.`, `node_modules`)
	matches, err := w.Search(context.Background(), dir.Path(), `needle`, 0)
	assert.NilError(t, err)
	for _, m := range matches {
		assert.Assert(t, !strings.HasSuffix(m, "leak.txt"))
	}
}

func TestSearchCanceledContext(t *testing.T) {
	dir := fixture(t)
	w := newWalker(t, dir.Path())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := w.Search(ctx, dir.Path(), `needle`, 0)
	assert.ErrorIs(t, err, context.Canceled)
}
