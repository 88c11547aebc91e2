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
	"errors"
	"io"
	"strings"

	"github.com/chzyer/readline"

	"fsguard/internal/commands"
)

// readStep says what the console loop does after one Readline call.
type readStep int

const (
	stepProceed readStep = iota
	stepRetry
	stepQuit
)

// nextStep maps a Readline result to a loop step. Ctrl+C clears the line,
// Ctrl+D on an empty line leaves.
func nextStep(line string, err error) readStep {
	switch {
	case errors.Is(err, readline.ErrInterrupt):
		return stepRetry
	case errors.Is(err, io.EOF):
		if strings.TrimSpace(line) == "" {
			return stepQuit
		}
		return stepRetry
	default:
		return stepProceed
	}
}

type lineKind int

const (
	lineBlank lineKind = iota
	lineCommand
	lineToolCall
)

// consoleLine is one parsed console input: a slash command, a tool call
// written as "<tool> [json]", or nothing to run.
type consoleLine struct {
	kind lineKind
	text string
	tool string
	args string
}

// parseConsoleLine strips control characters a terminal may leave behind
// (stray ^C, ^G) and classifies what remains. Lines starting with # are
// comments so scripts can be annotated.
func parseConsoleLine(raw string) consoleLine {
	text := strings.TrimSpace(strings.Map(func(r rune) rune {
		if r < 0x20 && r != '\t' {
			return -1
		}
		return r
	}, raw))
	switch {
	case text == "" || strings.HasPrefix(text, "#"):
		return consoleLine{kind: lineBlank, text: text}
	case commands.IsCommand(text):
		return consoleLine{kind: lineCommand, text: text}
	}
	tool, args, _ := strings.Cut(text, " ")
	return consoleLine{kind: lineToolCall, text: text, tool: tool, args: strings.TrimSpace(args)}
}
