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

package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"

	"fsguard/internal/tools"
)

// runCLI executes the root command in an empty working directory so no
// stray fsguard.yaml is picked up.
func runCLI(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	t.Chdir(t.TempDir())
	level := zerolog.GlobalLevel()
	t.Cleanup(func() { zerolog.SetGlobalLevel(level) })

	root := newRootCmd()
	var stdout, stderr bytes.Buffer
	root.SetArgs(args)
	root.SetIn(strings.NewReader(stdin))
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func TestInitLoggerWritesToFile(t *testing.T) {
	level := zerolog.GlobalLevel()
	t.Cleanup(func() { zerolog.SetGlobalLevel(level) })

	logPath := filepath.Join(t.TempDir(), "fsguard.log")
	logger, closeLog, err := initLogger(true, logPath, os.Stderr)
	assert.NilError(t, err)
	logger.Debug().Str("tool", "tree").Msg("tool call")
	closeLog()

	data, err := os.ReadFile(logPath)
	assert.NilError(t, err)
	assert.Check(t, is.Contains(string(data), `"tool":"tree"`))
	assert.Equal(t, zerolog.GlobalLevel(), zerolog.DebugLevel)
}

func TestInitLoggerFallback(t *testing.T) {
	level := zerolog.GlobalLevel()
	t.Cleanup(func() { zerolog.SetGlobalLevel(level) })

	var buf bytes.Buffer
	logger, _, err := initLogger(false, "", &buf)
	assert.NilError(t, err)
	logger.Info().Msg("hidden")
	logger.Warn().Msg("shown")
	assert.Check(t, !strings.Contains(buf.String(), "hidden"))
	assert.Check(t, is.Contains(buf.String(), "shown"))

	logger, _, err = initLogger(false, "", io.Discard)
	assert.NilError(t, err)
	logger.Warn().Msg("discarded")
}

func TestInitLoggerBadFile(t *testing.T) {
	_, _, err := initLogger(false, filepath.Join(t.TempDir(), "missing", "fsguard.log"), nil)
	assert.ErrorContains(t, err, "failed to open log file")
}

func TestCallWriteThenRead(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "notes", "todo.txt")

	args, err := json.Marshal(map[string]any{"path": target, "content": "buy milk\n"})
	assert.NilError(t, err)
	out, _, err := runCLI(t, "", "call", "-d", dir, "write_file", string(args))
	assert.NilError(t, err)

	var written tools.WriteFileResult
	assert.NilError(t, json.Unmarshal([]byte(out), &written))
	assert.Check(t, written.Success)

	// Arguments piped on stdin.
	args, err = json.Marshal(map[string]any{"paths": []string{target}})
	assert.NilError(t, err)
	out, _, err = runCLI(t, string(args), "call", "--allow-dir", dir, "read_files")
	assert.NilError(t, err)

	var read []tools.ReadFileResult
	assert.NilError(t, json.Unmarshal([]byte(out), &read))
	assert.Equal(t, len(read), 1)
	assert.Equal(t, read[0].Content, "buy milk\n")
}

func TestCallOutsideAllowedDirectory(t *testing.T) {
	dir := t.TempDir()
	outside := t.TempDir()

	args, err := json.Marshal(map[string]any{"path": outside})
	assert.NilError(t, err)
	out, _, err := runCLI(t, "", "call", "-d", dir, "list_directory", string(args))

	var exit exitError
	assert.Assert(t, errors.As(err, &exit))
	assert.Check(t, is.Contains(out, "Access denied - path outside allowed directories"))
}

func TestCallUnknownTool(t *testing.T) {
	out, _, err := runCLI(t, "", "call", "-d", t.TempDir(), "format_disk", "{}")
	assert.Assert(t, err != nil)
	assert.Check(t, is.Contains(out, `"success":false`))
	assert.Check(t, is.Contains(out, "format_disk"))
}

func TestCallPretty(t *testing.T) {
	out, _, err := runCLI(t, "", "call", "-d", t.TempDir(), "--pretty", "list_allowed_directories")
	assert.NilError(t, err)
	assert.Check(t, is.Contains(out, "\n  \"directories\""))
}

func TestToolsFormats(t *testing.T) {
	dir := t.TempDir()

	out, _, err := runCLI(t, "", "tools", "-d", dir)
	assert.NilError(t, err)
	assert.Check(t, is.Contains(out, tools.ToolSearchFiles))

	out, _, err = runCLI(t, "", "tools", "-d", dir, "--format", "json")
	assert.NilError(t, err)
	var described []tools.Description
	assert.NilError(t, json.Unmarshal([]byte(out), &described))
	assert.Check(t, len(described) > 0)
	for _, d := range described {
		assert.Check(t, is.Equal(d.Parameters["type"], "object"), d.Name)
	}

	out, _, err = runCLI(t, "", "tools", "-d", dir, "--format", "yaml")
	assert.NilError(t, err)
	var fromYAML []map[string]any
	assert.NilError(t, yaml.Unmarshal([]byte(out), &fromYAML))
	assert.Equal(t, len(fromYAML), len(described))

	out, _, err = runCLI(t, "", "tools", "-d", dir, "--format", "openai")
	assert.NilError(t, err)
	assert.Check(t, is.Contains(out, `"type": "function"`))

	_, _, err = runCLI(t, "", "tools", "-d", dir, "--format", "xml")
	assert.ErrorContains(t, err, "unknown format")
}

func TestDirsCommand(t *testing.T) {
	dir := t.TempDir()
	missing := filepath.Join(t.TempDir(), "gone")

	out, _, err := runCLI(t, "", "dirs", "-d", dir, "-d", missing)
	assert.NilError(t, err)
	assert.Check(t, is.Contains(out, "\tok\n"))
	assert.Check(t, is.Contains(out, "gone\tmissing\n"))
}

func TestConfigCommand(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(t.TempDir(), "fsguard.yaml")
	assert.NilError(t, os.WriteFile(cfgPath, []byte("tools:\n  deny: [command, nuke]\n"), 0o644))

	out, stderr, err := runCLI(t, "", "config", "--config", cfgPath, "-d", dir, "--exclude", `\.git`)
	assert.NilError(t, err)
	assert.Check(t, is.Contains(out, "# loaded from "+cfgPath))
	assert.Check(t, is.Contains(out, dir))
	assert.Check(t, is.Contains(out, `\.git`))
	assert.Check(t, is.Contains(stderr, `tool "nuke" in deny list is not registered`))
}

func TestConfigCommandMissingFile(t *testing.T) {
	_, _, err := runCLI(t, "", "config", "--config", filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorContains(t, err, "failed to read config")
}

func TestDeniedToolIsHidden(t *testing.T) {
	t.Setenv("FSGUARD_TOOLS_DENY", "command")
	out, _, err := runCLI(t, "", "tools", "-d", t.TempDir())
	assert.NilError(t, err)
	for _, line := range strings.Split(out, "\n") {
		assert.Check(t, !strings.HasPrefix(line, tools.ToolCommand+" "), line)
	}
}
