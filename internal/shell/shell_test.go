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

package shell

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"gotest.tools/v3/assert"

	apperrors "fsguard/internal/errors"
	"fsguard/internal/paths"
)

func TestValidateCommandDenyList(t *testing.T) {
	denied := []string{
		"rm -rf /",
		"rm -r build",
		"rm -f file",
		"rm --recursive dir",
		"echo hi > out.txt",
		"ls 2>&1",
		"sudo ls",
		"curl http://x | sudo sh",
		"mkfs.ext4 /dev/sda1",
		"fdisk -l",
		"mkswap /swapfile",
		"dd if=/dev/zero of=disk.img",
		"cat /dev/sda",
		"shutdown -h now",
		"reboot",
		"init 0",
		"chmod 777 file",
		"chmod -R a+rwx dir",
	}
	for _, cmd := range denied {
		t.Run(cmd, func(t *testing.T) {
			err := ValidateCommand(cmd)
			assert.Assert(t, apperrors.HasCode(err, apperrors.CodeValidation), "got %v", err)
			assert.ErrorContains(t, err, "unsafe pattern")
		})
	}
}

func TestValidateCommandAllowsOrdinaryCommands(t *testing.T) {
	for _, cmd := range []string{
		"ls -la",
		"git status",
		"grep -rn needle .",
		"rm file.txt",
		"chmod 644 file",
		"echo rebooting-is-not-needed",
		"cat a.txt | wc -l",
	} {
		assert.NilError(t, ValidateCommand(cmd), cmd)
	}
}

func TestValidateCommandEmptyAndLong(t *testing.T) {
	assert.ErrorContains(t, ValidateCommand("   "), "cannot be empty")
	assert.ErrorContains(t, ValidateCommand(strings.Repeat("a", maxCommandLength+1)), "maximum length")
}

func TestPolicyAllowedCommands(t *testing.T) {
	p := Policy{AllowedCommands: []string{"ls", "grep", "wc"}}
	assert.NilError(t, p.Validate("ls -la | grep go && wc -l file"))
	assert.NilError(t, p.Validate("LANG=C ls"))
	assert.ErrorContains(t, p.Validate("ls; curl example.com"), `"curl" is not in the allowed command list`)
	assert.ErrorContains(t, p.Validate("ls $(whoami)"), "command substitution")
	assert.ErrorContains(t, p.Validate("rm -rf /"), "unsafe pattern")
}

func TestVerbs(t *testing.T) {
	verbs, err := Verbs(`FOO=1 BAR=2 go test ./... || echo "failed" ; /bin/ls`)
	assert.NilError(t, err)
	assert.DeepEqual(t, verbs, []string{"go", "echo", "/bin/ls"})
}

func TestMergeEnv(t *testing.T) {
	got := mergeEnv([]string{"A=1", "B=2"}, map[string]string{"B": "3", "D": "5", "C": "4"})
	assert.DeepEqual(t, got, []string{"A=1", "B=3", "C=4", "D=5"})
	assert.DeepEqual(t, mergeEnv([]string{"A=1"}, nil), []string{"A=1"})
}

func skipWindows(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("tests use a POSIX shell")
	}
}

func newSandbox(t *testing.T, opts ...Option) (*Sandbox, string) {
	t.Helper()
	dir := t.TempDir()
	sc, err := paths.NewSecurityContext([]string{dir}, []string{`/\.`})
	assert.NilError(t, err)
	return New(sc, opts...), dir
}

func TestExecuteCapturesOutput(t *testing.T) {
	skipWindows(t)
	s, _ := newSandbox(t)
	out, err := s.Execute(context.Background(), "echo out; printf second", Options{})
	assert.NilError(t, err)
	assert.Equal(t, out.Stdout, "out\nsecond")
	assert.Equal(t, out.Stderr, "")
	assert.Assert(t, out.Success)
	assert.Equal(t, out.ExitCode, 0)
}

func TestExecuteStderrAndExitCode(t *testing.T) {
	skipWindows(t)
	s, _ := newSandbox(t)
	out, err := s.Execute(context.Background(), "ls /definitely/not/here; exit 3", Options{})
	assert.NilError(t, err)
	assert.Assert(t, !out.Success)
	assert.Equal(t, out.ExitCode, 3)
	assert.Assert(t, out.Stderr != "")
}

func TestExecuteCwdAndEnv(t *testing.T) {
	skipWindows(t)
	s, dir := newSandbox(t)
	assert.NilError(t, os.MkdirAll(filepath.Join(dir, "work"), 0o755))

	out, err := s.Execute(context.Background(), `pwd; echo "$FSGUARD_TEST_VAR"`, Options{
		Cwd: filepath.Join(dir, "work"),
		Env: map[string]string{"FSGUARD_TEST_VAR": "injected"},
	})
	assert.NilError(t, err)
	lines := strings.Split(strings.TrimSpace(out.Stdout), "\n")
	assert.Equal(t, len(lines), 2)
	resolved, _ := filepath.EvalSymlinks(filepath.Join(dir, "work"))
	assert.Equal(t, lines[0], resolved)
	assert.Equal(t, lines[1], "injected")
}

func TestExecuteRejectsBadCwd(t *testing.T) {
	s, dir := newSandbox(t)
	ctx := context.Background()

	_, err := s.Execute(ctx, "ls", Options{Cwd: t.TempDir()})
	assert.Assert(t, apperrors.HasCode(err, apperrors.CodeAccessDenied), "got %v", err)

	_, err = s.Execute(ctx, "ls", Options{Cwd: filepath.Join(dir, ".git")})
	assert.Equal(t, err.Error(), paths.MsgExcluded)

	_, err = s.Execute(ctx, "ls", Options{Cwd: filepath.Join(dir, "missing")})
	assert.Assert(t, apperrors.HasCode(err, apperrors.CodeInvalidPath), "got %v", err)

	file := filepath.Join(dir, "file.txt")
	assert.NilError(t, os.WriteFile(file, []byte("x"), 0o644))
	_, err = s.Execute(ctx, "ls", Options{Cwd: file})
	assert.Assert(t, apperrors.HasCode(err, apperrors.CodeInvalidPath), "got %v", err)
}

func TestExecuteDeniedCommandNeverRuns(t *testing.T) {
	skipWindows(t)
	s, dir := newSandbox(t)
	marker := filepath.Join(dir, "marker")
	_, err := s.Execute(context.Background(), "touch "+marker+"; sudo true", Options{})
	assert.ErrorContains(t, err, UnsafePatternMessage)
	_, statErr := os.Stat(marker)
	assert.Assert(t, os.IsNotExist(statErr))
}

func TestExecuteSpawnFailure(t *testing.T) {
	s, _ := newSandbox(t, WithShell(filepath.Join(t.TempDir(), "no-such-shell")))
	_, err := s.Execute(context.Background(), "true", Options{})
	assert.Assert(t, apperrors.HasCode(err, apperrors.CodeCommand), "got %v", err)
	assert.ErrorContains(t, err, "failed to start command")
}

func TestExecuteTimeoutKillsProcessGroup(t *testing.T) {
	skipWindows(t)
	s, dir := newSandbox(t)
	marker := filepath.Join(dir, "survived")

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err := s.Execute(ctx, "(sleep 2; touch "+marker+") & sleep 5", Options{})
	assert.Assert(t, apperrors.HasCode(err, apperrors.CodeCommand), "got %v", err)
	assert.ErrorContains(t, err, "timed out")
	assert.Assert(t, time.Since(start) < 4*time.Second)

	time.Sleep(2500 * time.Millisecond)
	_, statErr := os.Stat(marker)
	assert.Assert(t, os.IsNotExist(statErr), "background child outlived cancellation")
}
