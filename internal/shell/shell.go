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

// Package shell runs command strings in two stages: a syntactic check
// against a deny-list, then a shell spawn confined to an allowed working
// directory. The deny-list is not a sandbox.
package shell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	apperrors "fsguard/internal/errors"
	"fsguard/internal/paths"
)

const defaultWaitDelay = 2 * time.Second

// Options are the per-call parameters of Execute.
type Options struct {
	Cwd string
	Env map[string]string
}

// Outcome is the result of a command that ran. Success means exit code 0.
type Outcome struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Success  bool
}

// Sandbox executes commands under one security context.
type Sandbox struct {
	sc        *paths.SecurityContext
	policy    Policy
	shell     string
	waitDelay time.Duration
	log       zerolog.Logger
}

// Option configures a Sandbox.
type Option func(*Sandbox)

// WithPolicy replaces the default deny-list only policy.
func WithPolicy(p Policy) Option {
	return func(s *Sandbox) { s.policy = p }
}

// WithShell sets the shell binary; it is invoked with -c (or /C on windows).
func WithShell(shell string) Option {
	return func(s *Sandbox) {
		if shell != "" {
			s.shell = shell
		}
	}
}

func WithLogger(log zerolog.Logger) Option {
	return func(s *Sandbox) { s.log = log }
}

// New returns a Sandbox bound to sc.
func New(sc *paths.SecurityContext, opts ...Option) *Sandbox {
	s := &Sandbox{sc: sc, shell: defaultShell, waitDelay: defaultWaitDelay, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Execute validates and runs command. A command that ran and exited non-zero
// returns an unsuccessful Outcome and a nil error. Spawn failures, timeouts
// and cancellation return a command_error together with any partial output.
// Cancellation kills the whole process group, not just the shell.
func (s *Sandbox) Execute(ctx context.Context, command string, opts Options) (Outcome, error) {
	if err := s.policy.Validate(command); err != nil {
		return Outcome{}, err
	}
	dir, err := s.workingDir(opts.Cwd)
	if err != nil {
		return Outcome{}, err
	}
	if err := ctx.Err(); err != nil {
		return Outcome{}, apperrors.Wrap(apperrors.CodeCommand, "command canceled", err)
	}

	cmd := shellCommand(ctx, s.shell, command)
	configureProcessGroup(cmd)
	cmd.WaitDelay = s.waitDelay
	cmd.Dir = dir
	cmd.Env = mergeEnv(os.Environ(), opts.Env)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	runErr := cmd.Run()
	out := Outcome{Stdout: stdout.String(), Stderr: stderr.String(), ExitCode: -1}
	s.log.Debug().Str("cwd", dir).Dur("duration", time.Since(start)).Err(runErr).Msg("command finished")

	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return out, apperrors.Wrap(apperrors.CodeCommand, "command timed out", ctx.Err())
	case ctx.Err() != nil:
		return out, apperrors.Wrap(apperrors.CodeCommand, "command canceled", ctx.Err())
	}

	var exitErr *exec.ExitError
	switch {
	case runErr == nil, errors.Is(runErr, exec.ErrWaitDelay):
		out.ExitCode = cmd.ProcessState.ExitCode()
		out.Success = out.ExitCode == 0
		return out, nil
	case errors.As(runErr, &exitErr):
		out.ExitCode = exitErr.ExitCode()
		return out, nil
	default:
		return out, apperrors.Wrap(apperrors.CodeCommand, "failed to start command", runErr)
	}
}

func (s *Sandbox) workingDir(cwd string) (string, error) {
	if cwd == "" {
		return "", nil
	}
	if s.sc.Excluded(cwd) {
		return "", apperrors.New(apperrors.CodeAccessDenied, paths.MsgExcluded)
	}
	v, err := s.sc.Validate(cwd, true)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(v.Path())
	if err != nil || !info.IsDir() {
		return "", apperrors.New(apperrors.CodeInvalidPath, fmt.Sprintf("Working directory does not exist or is not a directory: %s", cwd))
	}
	return v.Path(), nil
}

// mergeEnv overlays overrides on base, keeping base order and appending new
// keys sorted.
func mergeEnv(base []string, overrides map[string]string) []string {
	if len(overrides) == 0 {
		return base
	}
	out := make([]string, 0, len(base)+len(overrides))
	seen := make(map[string]bool, len(overrides))
	for _, kv := range base {
		key, _, _ := strings.Cut(kv, "=")
		if val, ok := overrides[key]; ok {
			out = append(out, key+"="+val)
			seen[key] = true
			continue
		}
		out = append(out, kv)
	}
	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		if !seen[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		out = append(out, k+"="+overrides[k])
	}
	return out
}
