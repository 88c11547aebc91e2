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
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/rs/zerolog"

	"fsguard/internal/fsops"
	"fsguard/internal/paths"
	"fsguard/internal/shell"
	"fsguard/internal/walk"
)

// Built-in tool names.
const (
	ToolReadFiles              = "read_files"
	ToolWriteFile              = "write_file"
	ToolEditFile               = "edit_file"
	ToolMoveFile               = "move_file"
	ToolCreateDirectory        = "create_directory"
	ToolListDirectory          = "list_directory"
	ToolTree                   = "tree"
	ToolSearchFiles            = "search_files"
	ToolGetFileInfo            = "get_file_info"
	ToolListAllowedDirectories = "list_allowed_directories"
	ToolCommand                = "command"
)

type readFilesArgs struct {
	Paths []string `json:"paths" jsonschema:"description=Files to read; each path is validated and read independently"`
}

type writeFileArgs struct {
	Path    string `json:"path" jsonschema:"description=File to create or overwrite" validate:"required"`
	Content string `json:"content" jsonschema:"description=Complete new file content"`
}

type editFileArgs struct {
	Path   string       `json:"path" jsonschema:"description=File to edit" validate:"required"`
	Edits  []fsops.Edit `json:"edits" jsonschema:"description=Replacements applied in order" validate:"required,min=1,dive"`
	DryRun bool         `json:"dryRun,omitempty" jsonschema:"description=Return the diff without writing the file"`
}

type moveFileArgs struct {
	Source      string `json:"source" jsonschema:"description=Existing file or directory" validate:"required"`
	Destination string `json:"destination" jsonschema:"description=New location; missing parent directories are created" validate:"required"`
}

type pathArgs struct {
	Path string `json:"path" jsonschema:"description=Path inside an allowed directory" validate:"required"`
}

type treeArgs struct {
	Path  string `json:"path" jsonschema:"description=Root directory of the tree" validate:"required"`
	Depth *int   `json:"depth,omitempty" jsonschema:"description=Maximum depth below the root; unlimited when omitted" validate:"omitempty,min=0"`
}

type searchFilesArgs struct {
	Path       string `json:"path" jsonschema:"description=Directory to search recursively" validate:"required"`
	Pattern    string `json:"pattern" jsonschema:"description=Regular expression matched against file contents" validate:"required"`
	MaxResults *int   `json:"maxResults,omitempty" jsonschema:"description=Maximum number of matching files (default 100)" validate:"omitempty,min=1"`
}

type noArgs struct{}

type commandArgs struct {
	Command string            `json:"command" jsonschema:"description=Shell command line to run" validate:"required"`
	Cwd     string            `json:"cwd,omitempty" jsonschema:"description=Working directory inside an allowed directory"`
	Env     map[string]string `json:"env,omitempty" jsonschema:"description=Environment variables added to the inherited environment"`
}

// ReadFileResult is one item of a read_files result.
type ReadFileResult struct {
	Path    string `json:"path"`
	Content string `json:"content"`
	Error   string `json:"error,omitempty"`
}

type WriteFileResult struct {
	Path    string `json:"path"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

type EditFileResult struct {
	Path    string `json:"path"`
	Success bool   `json:"success"`
	Diff    string `json:"diff,omitempty"`
	Error   string `json:"error,omitempty"`
}

type MoveFileResult struct {
	Source      string `json:"source"`
	Destination string `json:"destination"`
	Success     bool   `json:"success"`
	Error       string `json:"error,omitempty"`
}

type CreateDirectoryResult struct {
	Path    string `json:"path"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

type ListDirectoryResult struct {
	Path  string       `json:"path"`
	Items []walk.Entry `json:"items"`
	Error string       `json:"error,omitempty"`
}

type TreeResult struct {
	Path  string     `json:"path"`
	Tree  *walk.Node `json:"tree,omitempty"`
	Error string     `json:"error,omitempty"`
}

type SearchFilesResult struct {
	Path    string   `json:"path"`
	Pattern string   `json:"pattern"`
	Matches []string `json:"matches"`
	Error   string   `json:"error,omitempty"`
}

type FileInfoResult struct {
	Path  string          `json:"path"`
	Info  *fsops.FileInfo `json:"info,omitempty"`
	Error string          `json:"error,omitempty"`
}

// AllowedDirectory reports the state of one configured root.
type AllowedDirectory struct {
	Path   string `json:"path"`
	Exists bool   `json:"exists"`
	Error  string `json:"error,omitempty"`
}

type AllowedDirectoriesResult struct {
	Directories []AllowedDirectory `json:"directories"`
}

// CommandResult carries the filtered output of a command. A command that
// ran and exited non-zero has Success false and a nil call error.
type CommandResult struct {
	Stdout    string `json:"stdout"`
	Stderr    string `json:"stderr"`
	Code      int    `json:"code"`
	Success   bool   `json:"success"`
	Truncated bool   `json:"truncated,omitempty"`
	Error     string `json:"error,omitempty"`
}

// builtins holds the components every built-in tool closes over. None of
// them carry state between calls.
type builtins struct {
	sc      *paths.SecurityContext
	ops     *fsops.Ops
	walker  *walk.Walker
	sandbox *shell.Sandbox
	filters OutputFilterConfig
}

func newBuiltins(cfg Config, log zerolog.Logger) *builtins {
	lim := cfg.Limits.Normalize()
	return &builtins{
		sc:     cfg.Security,
		ops:    fsops.New(cfg.Security, fsops.WithLimits(lim), fsops.WithLogger(log)),
		walker: walk.New(cfg.Security, walk.WithLimits(lim), walk.WithLogger(log)),
		sandbox: shell.New(cfg.Security,
			shell.WithPolicy(cfg.Command),
			shell.WithShell(cfg.Shell),
			shell.WithLogger(log)),
		filters: cfg.OutputFilters.normalize(),
	}
}

// registerBuiltInTools registers all built-in tools to the registry.
func registerBuiltInTools(r *Registry, b *builtins) error {
	defs := []Tool{
		newTypedTool(ToolReadFiles,
			"Read the contents of one or more files. Each path is read independently; a failing path reports its own error without failing the others.",
			b.readFiles),
		newTypedTool(ToolWriteFile,
			"Create a new file or completely overwrite an existing file. Missing parent directories inside an allowed directory are created.",
			b.writeFile),
		newTypedTool(ToolEditFile,
			"Apply exact text replacements to a file and return a line diff. Every occurrence of each oldText is replaced; if any oldText is missing nothing is written. Use dryRun to preview.",
			b.editFile),
		newTypedTool(ToolMoveFile,
			"Move or rename a file or directory. Both locations must be inside allowed directories.",
			b.moveFile),
		newTypedTool(ToolCreateDirectory,
			"Create a directory, including missing parents. Succeeds if the directory already exists.",
			b.createDirectory),
		newTypedTool(ToolListDirectory,
			"List the direct children of a directory as DIR or FILE entries, directories first.",
			b.listDirectory),
		newTypedTool(ToolTree,
			"Return a recursive tree of a directory, directories first. Limit the recursion with depth.",
			b.tree),
		newTypedTool(ToolSearchFiles,
			"Recursively find files whose contents match a regular expression. Returns at most maxResults paths.",
			b.searchFiles),
		newTypedTool(ToolGetFileInfo,
			"Return metadata (type, size, permissions, modification time) about a file or directory.",
			b.getFileInfo),
		newTypedTool(ToolListAllowedDirectories,
			"List the directories this server is allowed to access and whether each exists.",
			b.listAllowedDirectories),
		newTypedTool(ToolCommand,
			"Run a shell command and return its output. Destructive patterns (recursive delete, redirection, sudo, disk and power utilities) are rejected; the working directory must be inside an allowed directory.",
			b.command),
	}
	for _, def := range defs {
		if err := r.RegisterTool(def); err != nil {
			return err
		}
	}
	return nil
}

func errorString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func (b *builtins) readFiles(ctx context.Context, args readFilesArgs) ([]ReadFileResult, error) {
	read := b.ops.ReadFiles(ctx, args.Paths)
	out := make([]ReadFileResult, len(read))
	for i, r := range read {
		out[i] = ReadFileResult{Path: r.Path, Content: r.Content, Error: errorString(r.Err)}
	}
	return out, nil
}

func (b *builtins) writeFile(ctx context.Context, args writeFileArgs) (WriteFileResult, error) {
	err := b.ops.WriteFile(ctx, args.Path, args.Content)
	return WriteFileResult{Path: args.Path, Success: err == nil, Error: errorString(err)}, err
}

func (b *builtins) editFile(ctx context.Context, args editFileArgs) (EditFileResult, error) {
	diff, err := b.ops.EditFile(ctx, args.Path, args.Edits, args.DryRun)
	return EditFileResult{Path: args.Path, Success: err == nil, Diff: diff, Error: errorString(err)}, err
}

func (b *builtins) moveFile(ctx context.Context, args moveFileArgs) (MoveFileResult, error) {
	err := b.ops.MoveFile(ctx, args.Source, args.Destination)
	return MoveFileResult{
		Source:      args.Source,
		Destination: args.Destination,
		Success:     err == nil,
		Error:       errorString(err),
	}, err
}

func (b *builtins) createDirectory(ctx context.Context, args pathArgs) (CreateDirectoryResult, error) {
	err := b.ops.CreateDirectory(ctx, args.Path)
	return CreateDirectoryResult{Path: args.Path, Success: err == nil, Error: errorString(err)}, err
}

func (b *builtins) listDirectory(ctx context.Context, args pathArgs) (ListDirectoryResult, error) {
	items, err := b.walker.List(ctx, args.Path)
	if items == nil {
		items = []walk.Entry{}
	}
	return ListDirectoryResult{Path: args.Path, Items: items, Error: errorString(err)}, err
}

func (b *builtins) tree(ctx context.Context, args treeArgs) (TreeResult, error) {
	node, err := b.walker.Tree(ctx, args.Path, args.Depth)
	return TreeResult{Path: args.Path, Tree: node, Error: errorString(err)}, err
}

func (b *builtins) searchFiles(ctx context.Context, args searchFilesArgs) (SearchFilesResult, error) {
	maxResults := walk.DefaultMaxResults
	if args.MaxResults != nil {
		maxResults = *args.MaxResults
	}
	matches, err := b.walker.Search(ctx, args.Path, args.Pattern, maxResults)
	if matches == nil {
		matches = []string{}
	}
	return SearchFilesResult{Path: args.Path, Pattern: args.Pattern, Matches: matches, Error: errorString(err)}, err
}

func (b *builtins) getFileInfo(ctx context.Context, args pathArgs) (FileInfoResult, error) {
	info, err := b.ops.Stat(ctx, args.Path)
	if err != nil {
		return FileInfoResult{Path: args.Path, Error: err.Error()}, err
	}
	return FileInfoResult{Path: args.Path, Info: &info}, nil
}

func (b *builtins) listAllowedDirectories(_ context.Context, _ noArgs) (AllowedDirectoriesResult, error) {
	dirs := b.sc.AllowedDirs()
	out := AllowedDirectoriesResult{Directories: make([]AllowedDirectory, 0, len(dirs))}
	for _, dir := range dirs {
		entry := AllowedDirectory{Path: dir}
		info, err := os.Stat(dir)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			entry.Error = fmt.Sprintf("cannot access directory: %v", err)
		case !info.IsDir():
			entry.Error = "not a directory"
		default:
			entry.Exists = true
		}
		out.Directories = append(out.Directories, entry)
	}
	return out, nil
}

func (b *builtins) command(ctx context.Context, args commandArgs) (CommandResult, error) {
	outcome, err := b.sandbox.Execute(ctx, args.Command, shell.Options{Cwd: args.Cwd, Env: args.Env})
	stdout, cutOut := b.filters.Sanitize(outcome.Stdout)
	stderr, cutErr := b.filters.Sanitize(outcome.Stderr)
	result := CommandResult{
		Stdout:    stdout,
		Stderr:    stderr,
		Code:      outcome.ExitCode,
		Success:   err == nil && outcome.Success,
		Truncated: cutOut || cutErr,
	}
	if err != nil {
		if result.Code == 0 {
			result.Code = -1
		}
		result.Error = err.Error()
		return result, err
	}
	if !outcome.Success {
		result.Error = fmt.Sprintf("command exited with code %d", outcome.ExitCode)
	}
	return result, nil
}
