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
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"fsguard/internal/fsops"
)

// Node is one entry of a directory tree. A nil Children means traversal
// stopped at this node (depth limit, symlink, unreadable); a non-nil empty
// slice means the directory is empty.
type Node struct {
	Name     string   `json:"name"`
	Type     string   `json:"type"`
	Children *[]*Node `json:"children,omitempty"`
}

// Tree builds the tree rooted at path. The root is depth 0 and a directory at
// depth d is expanded only while d < *depth; a nil depth is unlimited.
// Symlinked directories are reported but never descended.
func (w *Walker) Tree(ctx context.Context, path string, depth *int) (*Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dir, err := w.validateDir(path)
	if err != nil {
		return nil, err
	}
	root := &Node{Name: filepath.Base(dir), Type: fsops.TypeDir}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.limits.MaxConcurrency)

	var visit func(node *Node, dir string, level int, isRoot bool) error
	visit = func(node *Node, dir string, level int, isRoot bool) error {
		if err := gctx.Err(); err != nil {
			return err
		}
		if depth != nil && level >= *depth {
			return nil
		}
		entries, err := w.readDir(dir)
		if err != nil {
			if isRoot {
				return err
			}
			w.log.Debug().Err(err).Str("dir", dir).Msg("tree: skipping unreadable directory")
			return nil
		}
		children := make([]*Node, 0, len(entries))
		for _, e := range entries {
			child := &Node{Name: e.Name, Type: e.Type}
			children = append(children, child)
			if e.Type != fsops.TypeDir || e.symlink {
				continue
			}
			childDir, next := e.Path, level+1
			task := func() error { return visit(child, childDir, next, false) }
			if !g.TryGo(task) {
				if err := task(); err != nil {
					return err
				}
			}
		}
		node.Children = &children
		return nil
	}

	if err := visit(root, dir, 0, true); err != nil {
		_ = g.Wait()
		return nil, ioOrContext(ctx, "failed to build directory tree", err)
	}
	if err := g.Wait(); err != nil {
		return nil, ioOrContext(ctx, "failed to build directory tree", err)
	}
	return root, nil
}
