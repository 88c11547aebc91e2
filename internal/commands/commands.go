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

// Package commands implements the slash commands of the interactive console.
package commands

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/rs/zerolog"

	"fsguard/internal/tools"
)

// Handler runs a command. It returns true when the console should exit.
type Handler func(out io.Writer, args []string) bool

// Command represents a slash command
type Command struct {
	Name        string
	Description string
	Handler     Handler
}

// Registry holds all available commands
type Registry struct {
	commands  map[string]*Command
	tools     *tools.Registry
	DebugMode *bool // toggled by /debug
}

// NewRegistry creates a command registry for a console bound to toolRegistry.
func NewRegistry(toolRegistry *tools.Registry, debugMode *bool) *Registry {
	r := &Registry{
		commands:  make(map[string]*Command),
		tools:     toolRegistry,
		DebugMode: debugMode,
	}

	r.Register("quit", "Exit the console", handleQuit)
	r.Register("exit", "Exit the console", handleQuit)
	r.Register("help", "Show available commands", r.handleHelp)
	r.Register("tools", "List the exposed tools", r.handleTools)
	r.Register("dirs", "Show the allowed directories", r.handleDirs)
	r.Register("debug", "Toggle debug logging", r.handleDebug)

	return r
}

// Register adds a new command to the registry
func (r *Registry) Register(name, description string, handler Handler) {
	r.commands[name] = &Command{
		Name:        name,
		Description: description,
		Handler:     handler,
	}
}

// IsCommand reports whether input is a slash command.
func IsCommand(input string) bool {
	return strings.HasPrefix(strings.TrimSpace(input), "/")
}

// Execute runs the slash command in input and reports whether the console
// should exit. Unknown commands print a hint and keep the console running.
func (r *Registry) Execute(input string, out io.Writer) bool {
	fields := strings.Fields(strings.TrimPrefix(strings.TrimSpace(input), "/"))
	if len(fields) == 0 {
		fmt.Fprintln(out, "✗ Empty command (type /help for available commands)")
		return false
	}
	name := strings.ToLower(fields[0])

	cmd, exists := r.commands[name]
	if !exists {
		fmt.Fprintf(out, "✗ Unknown command: /%s (type /help for available commands)\n", name)
		return false
	}
	return cmd.Handler(out, fields[1:])
}

// Names returns the registered command names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.commands))
	for name := range r.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Command handlers

func handleQuit(io.Writer, []string) bool {
	return true
}

func (r *Registry) handleHelp(out io.Writer, _ []string) bool {
	fmt.Fprintln(out, "\nAvailable Commands:")
	for _, name := range r.Names() {
		fmt.Fprintf(out, "  /%-12s - %s\n", name, r.commands[name].Description)
	}
	fmt.Fprintln(out, "\nAnything else is a tool call: <tool> [json arguments]")
	fmt.Fprintln(out, `  e.g. list_directory {"path": "."}`)
	fmt.Fprintln(out, "\nKeyboard Shortcuts:")
	fmt.Fprintln(out, "  Ctrl+C       - Cancel the running tool call")
	fmt.Fprintln(out, "  Ctrl+D       - Exit")
	fmt.Fprintln(out, "  Tab          - Auto-complete commands and tool names")
	fmt.Fprintln(out)
	return false
}

func (r *Registry) handleTools(out io.Writer, args []string) bool {
	descriptions := r.tools.Describe()
	if len(descriptions) == 0 {
		fmt.Fprintln(out, "No tools available")
		return false
	}

	w := tabwriter.NewWriter(out, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "Tool\tDescription")
	fmt.Fprintln(w, "────\t───────────")
	for _, d := range descriptions {
		if len(args) > 0 && !containsName(args, d.Name) {
			continue
		}
		desc, _, _ := strings.Cut(d.Description, "\n")
		fmt.Fprintf(w, "%s\t%s\n", d.Name, desc)
	}
	w.Flush()
	return false
}

func containsName(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

func (r *Registry) handleDirs(out io.Writer, _ []string) bool {
	dirs := r.tools.Context().AllowedDirs()
	if len(dirs) == 0 {
		fmt.Fprintln(out, "No allowed directories configured")
		return false
	}
	for _, dir := range dirs {
		status := "ok"
		if info, err := os.Stat(dir); err != nil {
			status = "missing"
		} else if !info.IsDir() {
			status = "not a directory"
		}
		fmt.Fprintf(out, "  %s (%s)\n", dir, status)
	}
	return false
}

func (r *Registry) handleDebug(out io.Writer, _ []string) bool {
	if r.DebugMode == nil {
		fmt.Fprintln(out, "✗ Debug mode is not available")
		return false
	}
	*r.DebugMode = !*r.DebugMode
	if *r.DebugMode {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		fmt.Fprintln(out, "✓ Debug mode enabled")
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
		fmt.Fprintln(out, "✓ Debug mode disabled")
	}
	return false
}
