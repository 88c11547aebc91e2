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

package tools

import (
	"context"
	"time"
)

// commandTimeout bounds the command tool when nothing else is configured.
// Filesystem tools finish on their own and only follow the caller's context.
const commandTimeout = 120 * time.Second

// TimeoutConfig holds per-call deadlines. Zero means no deadline of our own.
type TimeoutConfig struct {
	Default time.Duration
	PerTool map[string]time.Duration
}

func DefaultTimeoutConfig() TimeoutConfig {
	return TimeoutConfig{PerTool: map[string]time.Duration{ToolCommand: commandTimeout}}
}

// TimeoutsFromSeconds builds a TimeoutConfig from whole-second settings.
// Non-positive entries are dropped, so a tool set to 0 falls back to the default.
func TimeoutsFromSeconds(defaultSeconds int, perTool map[string]int) TimeoutConfig {
	cfg := TimeoutConfig{PerTool: make(map[string]time.Duration, len(perTool))}
	if defaultSeconds > 0 {
		cfg.Default = time.Duration(defaultSeconds) * time.Second
	}
	for name, seconds := range perTool {
		if seconds > 0 {
			cfg.PerTool[name] = time.Duration(seconds) * time.Second
		}
	}
	return cfg
}

// TimeoutForTool returns the deadline applied to one call of name.
func (t TimeoutConfig) TimeoutForTool(name string) time.Duration {
	if d, ok := t.PerTool[name]; ok {
		return d
	}
	return t.Default
}

// WithTimeout derives the context a call of name runs under. The returned
// cancel func must always be called.
func (t TimeoutConfig) WithTimeout(ctx context.Context, name string) (context.Context, context.CancelFunc) {
	if d := t.TimeoutForTool(name); d > 0 {
		return context.WithTimeout(ctx, d)
	}
	return context.WithCancel(ctx)
}
