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
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chzyer/readline"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"fsguard/internal/commands"
	"fsguard/internal/tools"
)

func newReplCmd(opts *options) *cobra.Command {
	var historyFile string
	cmd := &cobra.Command{
		Use:   "repl",
		Short: "Call tools interactively",
		Long: `Start an interactive console. Each line is either a slash command
(/help, /tools, /dirs, /debug, /quit) or a tool call written as

  <tool> [json-arguments]

When stdin is not a terminal, lines are read as a script.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// The console owns the terminal; logs only go to --log-file.
			a, err := opts.loadApp(io.Discard)
			if err != nil {
				return err
			}
			defer a.Close()

			debugMode := a.cfg.Debug
			c := newConsole(a.registry, cmd.OutOrStdout(), a.log, &debugMode)

			in := cmd.InOrStdin()
			if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
				return c.interactive(cmd.Context(), historyFile)
			}
			return c.script(cmd.Context(), in)
		},
	}
	cmd.Flags().StringVar(&historyFile, "history-file", "", "persist console history to this file")
	return cmd
}

// console dispatches REPL lines to slash commands or tools.
type console struct {
	registry *tools.Registry
	commands *commands.Registry
	out      io.Writer
	log      zerolog.Logger
	canceler *operationCanceler
}

func newConsole(registry *tools.Registry, out io.Writer, logger zerolog.Logger, debugMode *bool) *console {
	return &console{
		registry: registry,
		commands: commands.NewRegistry(registry, debugMode),
		out:      out,
		log:      logger,
		canceler: &operationCanceler{},
	}
}

// handleLine runs one console line and reports whether the console should
// exit.
func (c *console) handleLine(ctx context.Context, line string) bool {
	parsed := parseConsoleLine(line)
	if parsed.kind == lineBlank {
		return false
	}
	c.log.Info().Str("user_input", parsed.text).Msg("User input received")

	if parsed.kind == lineCommand {
		return c.commands.Execute(parsed.text, c.out)
	}

	c.canceler.Run(ctx, func(ctx context.Context) {
		result := c.registry.ExecuteJSON(ctx, parsed.tool, []byte(parsed.args))
		if err := writeResult(c.out, result.JSON(), true); err != nil {
			c.log.Warn().Err(err).Msg("failed to print result")
		}
	})
	return false
}

func (c *console) interactive(ctx context.Context, historyFile string) error {
	c.log.Debug().Msg("Running in interactive console mode")

	rl, err := readline.NewEx(&readline.Config{
		Prompt:              "❯ ",
		HistoryFile:         historyFile,
		AutoComplete:        c.completer(),
		InterruptPrompt:     "^C",
		EOFPrompt:           "exit",
		FuncFilterInputRune: filterInterruptRune,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize readline: %w", err)
	}
	defer rl.Close()

	watchCtx, stopWatch := context.WithCancel(ctx)
	defer stopWatch()
	watchInterrupts(watchCtx, c.canceler, func() {
		fmt.Fprintln(c.out, "^C (cancelling)")
	})

	fmt.Fprintf(c.out, "fsguard %s\n", version)
	fmt.Fprintf(c.out, "Allowed directories: %s\n", strings.Join(c.registry.Context().AllowedDirs(), ", "))
	fmt.Fprintln(c.out, "Type /help for commands, Ctrl+D or /quit to exit")
	fmt.Fprintln(c.out)

	for {
		line, err := rl.Readline()
		switch nextStep(line, err) {
		case stepQuit:
			c.log.Info().Msg("Session ended")
			return nil
		case stepRetry:
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to read input: %w", err)
		}
		if c.handleLine(ctx, line) {
			c.log.Info().Msg("Session ended")
			return nil
		}
	}
}

// script runs lines from a non-interactive reader until EOF or /quit.
func (c *console) script(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxBatchLineBytes)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if c.handleLine(ctx, scanner.Text()) {
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading input: %w", err)
	}
	return nil
}

// completer builds a readline completer from slash commands and tool names.
func (c *console) completer() *readline.PrefixCompleter {
	var items []readline.PrefixCompleterInterface
	for _, name := range c.commands.Names() {
		items = append(items, readline.PcItem("/"+name))
	}
	for _, name := range c.registry.ToolNames() {
		items = append(items, readline.PcItem(name))
	}
	return readline.NewPrefixCompleter(items...)
}
