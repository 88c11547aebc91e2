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
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"fsguard/internal/tools"
)

const maxBatchLineBytes = 64 << 20

func newBatchCmd(opts *options) *cobra.Command {
	var input string
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Run OpenAI tool calls read as JSON lines",
		Long: `Read one OpenAI tool call per line, e.g.

  {"id":"call_1","type":"function","function":{"name":"tree","arguments":"{\"path\":\".\"}"}}

and write one tool message per line, in input order:

  {"role":"tool","content":"{...}","name":"tree","tool_call_id":"call_1"}

Calls run concurrently, bounded by tool_limits.max_concurrency. The command
exits non-zero when any call failed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := opts.loadApp(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			in := cmd.InOrStdin()
			if input != "" && input != "-" {
				f, err := os.Open(input)
				if err != nil {
					return fmt.Errorf("failed to open batch input: %w", err)
				}
				defer f.Close()
				in = f
			}

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			failed, err := runBatch(ctx, a.registry, in, cmd.OutOrStdout(), a.cfg.ToolLimitsConfig().MaxConcurrency, a.log)
			if err != nil {
				a.log.Error().Err(err).Msg("Batch mode failed")
				return err
			}
			if failed > 0 {
				return exitError{reason: fmt.Sprintf("%d tool calls failed", failed)}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", "", "read tool calls from this file instead of stdin")
	return cmd
}

// runBatch executes every tool call in in and writes the tool messages to
// out in input order. Blank lines are skipped. It returns how many calls
// failed; err is only set for I/O failures.
func runBatch(ctx context.Context, registry *tools.Registry, in io.Reader, out io.Writer, concurrency int, logger zerolog.Logger) (int, error) {
	logger.Debug().Msg("Running in batch mode")

	var lines []string
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxBatchLineBytes)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("error reading input: %w", err)
	}

	start := time.Now()
	messages := make([]openai.ChatCompletionMessage, len(lines))
	failed := make([]bool, len(lines))

	g, gctx := errgroup.WithContext(ctx)
	if concurrency > 0 {
		g.SetLimit(concurrency)
	}
	for i, line := range lines {
		g.Go(func() error {
			messages[i], failed[i] = runBatchLine(gctx, registry, line)
			return nil
		})
	}
	_ = g.Wait()

	enc := json.NewEncoder(out)
	enc.SetEscapeHTML(false)
	count := 0
	for i, msg := range messages {
		if failed[i] {
			count++
		}
		if err := enc.Encode(msg); err != nil {
			return count, fmt.Errorf("failed to write result: %w", err)
		}
	}

	logger.Info().
		Int("calls", len(lines)).
		Int("failed", count).
		Dur("duration_ms", time.Since(start)).
		Msg("Batch completed")
	return count, nil
}

func runBatchLine(ctx context.Context, registry *tools.Registry, line string) (openai.ChatCompletionMessage, bool) {
	var call openai.ToolCall
	if err := json.Unmarshal([]byte(line), &call); err != nil {
		content, _ := json.Marshal(tools.FailureResult{Error: fmt.Sprintf("malformed tool call: %v", err)})
		return openai.ChatCompletionMessage{Role: openai.ChatMessageRoleTool, Content: string(content)}, true
	}

	result := registry.ExecuteOpenAIToolCall(ctx, call)
	return openai.ChatCompletionMessage{
		Role:       openai.ChatMessageRoleTool,
		Content:    result.JSON(),
		Name:       result.Function,
		ToolCallID: call.ID,
	}, result.Error != nil
}
