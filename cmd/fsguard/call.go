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
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func newCallCmd(opts *options) *cobra.Command {
	var pretty bool
	cmd := &cobra.Command{
		Use:   "call <tool> [json-arguments]",
		Short: "Call one tool and print its JSON result",
		Long: `Call one tool and print its JSON result envelope on stdout.

Arguments are a JSON object, given as the second argument or piped on stdin.
The command exits non-zero when the call failed; the envelope still carries
the error.`,
		Example: `  fsguard call list_directory '{"path": "."}' -d .
  echo '{"paths": ["go.mod"]}' | fsguard call read_files -d .`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.loadApp(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			raw, err := callArguments(cmd.InOrStdin(), args[1:])
			if err != nil {
				return err
			}

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			result := a.registry.ExecuteJSON(ctx, args[0], raw)
			if err := writeResult(cmd.OutOrStdout(), result.JSON(), pretty); err != nil {
				return err
			}
			if result.Error != nil {
				return exitError{reason: result.Error.Error()}
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&pretty, "pretty", "p", false, "indent the JSON result")
	return cmd
}

// callArguments returns the JSON arguments of a call: the positional
// argument when present, otherwise stdin unless it is a terminal.
func callArguments(stdin io.Reader, args []string) ([]byte, error) {
	if len(args) > 0 {
		return []byte(args[0]), nil
	}
	if f, ok := stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return nil, nil
	}
	if stdin == nil {
		return nil, nil
	}
	raw, err := io.ReadAll(stdin)
	if err != nil {
		return nil, fmt.Errorf("failed to read arguments from stdin: %w", err)
	}
	return raw, nil
}

func writeResult(out io.Writer, result string, pretty bool) error {
	if pretty {
		var buf bytes.Buffer
		if err := json.Indent(&buf, []byte(result), "", "  "); err == nil {
			result = buf.String()
		}
	}
	_, err := fmt.Fprintln(out, strings.TrimRight(result, "\n"))
	return err
}
