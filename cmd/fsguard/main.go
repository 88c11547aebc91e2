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
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"fsguard/internal/config"
	"fsguard/internal/tools"
)

var version = "dev"

func main() {
	// A missing .env is not an error; it only seeds FSGUARD_* variables.
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		var exit exitError
		if !errors.As(err, &exit) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

// exitError makes the process exit non-zero after its output was already
// printed, without cobra adding an error line.
type exitError struct{ reason string }

func (e exitError) Error() string { return e.reason }

type options struct {
	configFile string
	allowDirs  []string
	excludes   []string
	v          *viper.Viper
}

func newRootCmd() *cobra.Command {
	opts := &options{v: config.NewViper()}

	root := &cobra.Command{
		Use:   "fsguard",
		Short: "Sandboxed filesystem and command tools for LLM agents",
		Long: `fsguard exposes file and command tools confined to a fixed set of allowed
directories. Tools can be served over MCP (stdio), called one at a time,
run in batch from OpenAI tool-call payloads, or explored interactively.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&opts.configFile, "config", "c", "", "config file (default: ./fsguard.yaml or ~/.config/fsguard/fsguard.yaml)")
	flags.StringArrayVarP(&opts.allowDirs, "allow-dir", "d", nil, "allowed directory (repeatable, appended to allowed_dirs)")
	flags.StringArrayVar(&opts.excludes, "exclude", nil, "exclusion regexp (repeatable, appended to exclude_patterns)")
	flags.Bool("debug", false, "enable debug logging")
	flags.String("log-file", "", "write logs to this file")
	_ = opts.v.BindPFlag("debug", flags.Lookup("debug"))
	_ = opts.v.BindPFlag("log_file", flags.Lookup("log-file"))

	root.AddCommand(
		newServeCmd(opts),
		newCallCmd(opts),
		newBatchCmd(opts),
		newReplCmd(opts),
		newToolsCmd(opts),
		newDirsCmd(opts),
		newConfigCmd(opts),
	)
	return root
}

// app is what every subcommand works with: the effective configuration and
// a registry bound to it.
type app struct {
	cfg      *config.Config
	registry *tools.Registry
	log      zerolog.Logger
	closeLog func()
}

func (a *app) Close() {
	if a.closeLog != nil {
		a.closeLog()
	}
}

// loadApp reads configuration and builds the registry. Logs go to the log
// file when configured, otherwise to fallback.
func (o *options) loadApp(fallback io.Writer) (*app, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}

	logger, closeLog, err := initLogger(cfg.Debug, cfg.LogFile, fallback)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, log: logger, closeLog: closeLog}

	regCfg, err := cfg.RegistryConfig(&a.log)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("invalid security settings: %w", err)
	}
	a.registry, err = tools.NewRegistry(regCfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	for _, w := range cfg.Validate(a.registry) {
		a.log.Warn().Str("field", w.Field).Msg(w.Message)
	}
	a.log.Debug().
		Str("config_file", config.File(o.v)).
		Strs("allowed_dirs", cfg.AllowedDirs).
		Strs("tools", a.registry.ToolNames()).
		Msg("fsguard ready")
	return a, nil
}

func (o *options) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(o.v, o.configFile)
	if err != nil {
		return nil, err
	}
	cfg.AllowedDirs = append(cfg.AllowedDirs, o.allowDirs...)
	cfg.ExcludePatterns = append(cfg.ExcludePatterns, o.excludes...)
	return cfg, nil
}

// initLogger builds the process logger. Without a log file, output goes to
// fallback at warn level unless debug is on; io.Discard silences it.
func initLogger(debug bool, logFilePath string, fallback io.Writer) (zerolog.Logger, func(), error) {
	// Set log level
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	if logFilePath != "" {
		file, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return zerolog.Nop(), nil, fmt.Errorf("failed to open log file: %w", err)
		}
		logger := zerolog.New(file).With().Timestamp().Logger()
		return logger, func() { _ = file.Close() }, nil
	}

	if fallback == nil || fallback == io.Discard {
		return zerolog.New(io.Discard), func() {}, nil
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: fallback, TimeFormat: time.Kitchen}).With().Timestamp().Logger()
	if !debug {
		logger = logger.Level(zerolog.WarnLevel)
	}
	return logger, func() {}, nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
