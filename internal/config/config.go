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

// Package config loads fsguard settings from a config file, FSGUARD_*
// environment variables and command-line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"fsguard/internal/limits"
	"fsguard/internal/paths"
	"fsguard/internal/shell"
	"fsguard/internal/tools"
)

// EnvPrefix prefixes every environment override, e.g. FSGUARD_DEBUG.
const EnvPrefix = "FSGUARD"

const configName = "fsguard"

// Config represents the application configuration.
type Config struct {
	AllowedDirs       []string          `mapstructure:"allowed_dirs" yaml:"allowed_dirs"`
	ExcludePatterns   []string          `mapstructure:"exclude_patterns" yaml:"exclude_patterns"`
	Tools             ToolSettings      `mapstructure:"tools" yaml:"tools"`
	ToolLimits        ToolLimits        `mapstructure:"tool_limits" yaml:"tool_limits"`
	ToolTimeouts      ToolTimeouts      `mapstructure:"tool_timeouts" yaml:"tool_timeouts"`
	ToolOutputFilters ToolOutputFilters `mapstructure:"tool_output_filters" yaml:"tool_output_filters"`
	Command           CommandSettings   `mapstructure:"command" yaml:"command"`
	LogFile           string            `mapstructure:"log_file" yaml:"log_file,omitempty"`
	Debug             bool              `mapstructure:"debug" yaml:"debug"`
}

// ToolSettings describes tool allow/deny lists.
type ToolSettings struct {
	Allow []string `mapstructure:"allow" yaml:"allow"`
	Deny  []string `mapstructure:"deny" yaml:"deny"`
}

// ToolLimits configures resource limits for tool execution.
type ToolLimits struct {
	MaxFileSizeBytes    int64 `mapstructure:"max_file_size_bytes" yaml:"max_file_size_bytes"`
	MaxDirectoryEntries int   `mapstructure:"max_directory_entries" yaml:"max_directory_entries"`
	MaxConcurrency      int   `mapstructure:"max_concurrency" yaml:"max_concurrency"`
}

// ToolTimeouts configures tool execution timeouts.
type ToolTimeouts struct {
	DefaultSeconds int            `mapstructure:"default_seconds" yaml:"default_seconds"`
	PerToolSeconds map[string]int `mapstructure:"per_tool_seconds" yaml:"per_tool_seconds"`
}

// ToolOutputFilters configures output sanitization for command results.
type ToolOutputFilters struct {
	MaxChars     int  `mapstructure:"max_chars" yaml:"max_chars"`
	StripANSI    bool `mapstructure:"strip_ansi" yaml:"strip_ansi"`
	StripControl bool `mapstructure:"strip_control" yaml:"strip_control"`
}

// CommandSettings configures the command tool.
type CommandSettings struct {
	Shell           string   `mapstructure:"shell" yaml:"shell,omitempty"`
	AllowedCommands []string `mapstructure:"allowed_commands" yaml:"allowed_commands"`
}

// DefaultConfig returns a config with default values.
func DefaultConfig() *Config {
	lim := limits.Default()
	timeouts := tools.DefaultTimeoutConfig()
	filters := tools.DefaultOutputFilterConfig()
	return &Config{
		AllowedDirs:     []string{},
		ExcludePatterns: []string{},
		Tools:           ToolSettings{Allow: []string{}, Deny: []string{}},
		ToolLimits: ToolLimits{
			MaxFileSizeBytes:    lim.MaxFileSizeBytes,
			MaxDirectoryEntries: lim.MaxDirectoryEntries,
			MaxConcurrency:      lim.MaxConcurrency,
		},
		ToolTimeouts: ToolTimeouts{
			PerToolSeconds: map[string]int{
				tools.ToolCommand: int(timeouts.PerTool[tools.ToolCommand].Seconds()),
			},
		},
		ToolOutputFilters: ToolOutputFilters{
			MaxChars:     filters.MaxChars,
			StripANSI:    filters.StripANSI,
			StripControl: filters.StripControl,
		},
		Command: CommandSettings{AllowedCommands: []string{}},
	}
}

// SetDefaults registers every key with its default so that environment
// variables can override keys that no config file mentions.
func SetDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault("allowed_dirs", d.AllowedDirs)
	v.SetDefault("exclude_patterns", d.ExcludePatterns)
	v.SetDefault("tools.allow", d.Tools.Allow)
	v.SetDefault("tools.deny", d.Tools.Deny)
	v.SetDefault("tool_limits.max_file_size_bytes", d.ToolLimits.MaxFileSizeBytes)
	v.SetDefault("tool_limits.max_directory_entries", d.ToolLimits.MaxDirectoryEntries)
	v.SetDefault("tool_limits.max_concurrency", d.ToolLimits.MaxConcurrency)
	v.SetDefault("tool_timeouts.default_seconds", d.ToolTimeouts.DefaultSeconds)
	v.SetDefault("tool_timeouts.per_tool_seconds", d.ToolTimeouts.PerToolSeconds)
	v.SetDefault("tool_output_filters.max_chars", d.ToolOutputFilters.MaxChars)
	v.SetDefault("tool_output_filters.strip_ansi", d.ToolOutputFilters.StripANSI)
	v.SetDefault("tool_output_filters.strip_control", d.ToolOutputFilters.StripControl)
	v.SetDefault("command.shell", d.Command.Shell)
	v.SetDefault("command.allowed_commands", d.Command.AllowedCommands)
	v.SetDefault("log_file", d.LogFile)
	v.SetDefault("debug", d.Debug)
}

// NewViper returns a viper instance with defaults and FSGUARD_* environment
// overrides. Nested keys use underscores: FSGUARD_TOOL_LIMITS_MAX_CONCURRENCY.
// List values from the environment are comma separated.
func NewViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the config file at path, or searches for fsguard.{yaml,json,toml}
// in the working directory and ~/.config/fsguard when path is empty. A missing
// file is only an error when path was given explicitly. Unknown keys are
// rejected.
func Load(v *viper.Viper, path string) (*Config, error) {
	if v == nil {
		v = NewViper()
	}
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(configName)
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", configName))
		}
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.UnmarshalExact(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// File returns the config file viper loaded, if any.
func File(v *viper.Viper) string {
	return v.ConfigFileUsed()
}

// SecurityContext builds the security context every tool is bound to.
func (c *Config) SecurityContext() (*paths.SecurityContext, error) {
	return paths.NewSecurityContext(c.AllowedDirs, c.ExcludePatterns)
}

// ToolPolicy converts config settings into a tool policy.
func (c *Config) ToolPolicy() tools.Policy {
	return tools.Policy{
		Allow: append([]string(nil), c.Tools.Allow...),
		Deny:  append([]string(nil), c.Tools.Deny...),
	}
}

// ToolLimitsConfig returns tool limits for runtime enforcement.
func (c *Config) ToolLimitsConfig() limits.Limits {
	return limits.Limits{
		MaxFileSizeBytes:    c.ToolLimits.MaxFileSizeBytes,
		MaxDirectoryEntries: c.ToolLimits.MaxDirectoryEntries,
		MaxConcurrency:      c.ToolLimits.MaxConcurrency,
	}.Normalize()
}

// ToolTimeoutsConfig returns timeout configuration for tools. Non-positive
// entries are ignored.
func (c *Config) ToolTimeoutsConfig() tools.TimeoutConfig {
	return tools.TimeoutsFromSeconds(c.ToolTimeouts.DefaultSeconds, c.ToolTimeouts.PerToolSeconds)
}

// ToolOutputFiltersConfig returns output filter configuration for tools.
func (c *Config) ToolOutputFiltersConfig() tools.OutputFilterConfig {
	return tools.OutputFilterConfig{
		MaxChars:     c.ToolOutputFilters.MaxChars,
		StripANSI:    c.ToolOutputFilters.StripANSI,
		StripControl: c.ToolOutputFilters.StripControl,
	}
}

// CommandPolicy returns the syntactic policy of the command tool.
func (c *Config) CommandPolicy() shell.Policy {
	return shell.Policy{AllowedCommands: append([]string(nil), c.Command.AllowedCommands...)}
}

// RegistryConfig assembles everything a tool registry binds at construction.
func (c *Config) RegistryConfig(log *zerolog.Logger) (tools.Config, error) {
	sc, err := c.SecurityContext()
	if err != nil {
		return tools.Config{}, err
	}
	return tools.Config{
		Security:      sc,
		Limits:        c.ToolLimitsConfig(),
		Timeouts:      c.ToolTimeoutsConfig(),
		OutputFilters: c.ToolOutputFiltersConfig(),
		Command:       c.CommandPolicy(),
		Shell:         c.Command.Shell,
		Policy:        c.ToolPolicy(),
		Logger:        log,
	}, nil
}

// YAML renders the effective configuration.
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}

// ValidationWarning represents a non-fatal configuration issue
type ValidationWarning struct {
	Field   string
	Message string
}

// Validate checks the configuration for common issues and returns warnings
func (c *Config) Validate(registry *tools.Registry) []ValidationWarning {
	var warnings []ValidationWarning

	if len(c.AllowedDirs) == 0 {
		warnings = append(warnings, ValidationWarning{
			Field:   "allowed_dirs",
			Message: "no allowed directories configured; every path will be denied",
		})
	}
	for _, dir := range c.AllowedDirs {
		abs, err := paths.Absolute(dir)
		if err != nil {
			continue
		}
		info, err := os.Stat(abs)
		switch {
		case err != nil:
			warnings = append(warnings, ValidationWarning{
				Field:   "allowed_dirs",
				Message: fmt.Sprintf("allowed directory %q is not accessible: %v", dir, err),
			})
		case !info.IsDir():
			warnings = append(warnings, ValidationWarning{
				Field:   "allowed_dirs",
				Message: fmt.Sprintf("allowed directory %q is not a directory", dir),
			})
		}
	}

	if registry != nil {
		for _, name := range registry.Unknown(c.Tools.Allow) {
			warnings = append(warnings, ValidationWarning{
				Field:   "tools.allow",
				Message: fmt.Sprintf("tool %q in allow list is not registered", name),
			})
		}
		for _, name := range registry.Unknown(c.Tools.Deny) {
			warnings = append(warnings, ValidationWarning{
				Field:   "tools.deny",
				Message: fmt.Sprintf("tool %q in deny list is not registered", name),
			})
		}
		for name := range c.ToolTimeouts.PerToolSeconds {
			if unknown := registry.Unknown([]string{name}); len(unknown) > 0 {
				warnings = append(warnings, ValidationWarning{
					Field:   "tool_timeouts.per_tool_seconds",
					Message: fmt.Sprintf("timeout configured for unknown tool %q", name),
				})
			}
		}
	}

	if c.ToolLimits.MaxFileSizeBytes <= 0 {
		warnings = append(warnings, ValidationWarning{
			Field:   "tool_limits.max_file_size_bytes",
			Message: fmt.Sprintf("max_file_size_bytes %d should be positive, using default", c.ToolLimits.MaxFileSizeBytes),
		})
	}
	if c.ToolLimits.MaxConcurrency <= 0 {
		warnings = append(warnings, ValidationWarning{
			Field:   "tool_limits.max_concurrency",
			Message: fmt.Sprintf("max_concurrency %d should be positive, using default", c.ToolLimits.MaxConcurrency),
		})
	}

	return warnings
}
