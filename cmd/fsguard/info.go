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
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"fsguard/internal/config"
	"fsguard/internal/tools"
)

func newToolsCmd(opts *options) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List the exposed tools and their argument schemas",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := opts.loadApp(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()
			return printTools(cmd.OutOrStdout(), a.registry, format)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "text", "output format: text, json, yaml or openai")
	return cmd
}

func printTools(out io.Writer, registry *tools.Registry, format string) error {
	switch strings.ToLower(format) {
	case "text", "":
		w := tabwriter.NewWriter(out, 0, 8, 2, ' ', 0)
		for _, d := range registry.Describe() {
			desc, _, _ := strings.Cut(d.Description, "\n")
			fmt.Fprintf(w, "%s\t%s\n", d.Name, desc)
		}
		return w.Flush()
	case "json":
		return writeJSON(out, registry.Describe())
	case "yaml":
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(registry.Describe()); err != nil {
			return err
		}
		return enc.Close()
	case "openai":
		return writeJSON(out, registry.OpenAITools())
	default:
		return fmt.Errorf("unknown format %q (use text, json, yaml or openai)", format)
	}
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newDirsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "dirs",
		Short: "Show the allowed directories and whether they exist",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := opts.loadApp(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			result := a.registry.Execute(cmd.Context(), tools.ToolListAllowedDirectories, nil)
			if result.Error != nil {
				return result.Error
			}
			listing, ok := result.Result.(tools.AllowedDirectoriesResult)
			if !ok {
				return fmt.Errorf("unexpected result %T", result.Result)
			}
			return printAllowedDirectories(cmd.OutOrStdout(), listing)
		},
	}
}

func printAllowedDirectories(out io.Writer, listing tools.AllowedDirectoriesResult) error {
	if len(listing.Directories) == 0 {
		_, err := fmt.Fprintln(out, "No allowed directories configured")
		return err
	}
	for _, dir := range listing.Directories {
		status := "ok"
		switch {
		case dir.Error != "":
			status = dir.Error
		case !dir.Exists:
			status = "missing"
		}
		if _, err := fmt.Fprintf(out, "%s\t%s\n", dir.Path, status); err != nil {
			return err
		}
	}
	return nil
}

func newConfigCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration and its warnings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := opts.loadApp(io.Discard)
			if err != nil {
				return err
			}
			defer a.Close()

			out, err := a.cfg.YAML()
			if err != nil {
				return err
			}
			if file := config.File(opts.v); file != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "# loaded from %s\n", file)
			}
			if _, err := cmd.OutOrStdout().Write(out); err != nil {
				return err
			}
			for _, w := range a.cfg.Validate(a.registry) {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s: %s\n", w.Field, w.Message)
			}
			return nil
		},
	}
}
