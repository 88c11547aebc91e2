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
	"os"
	"os/signal"
	"sync"

	"github.com/chzyer/readline"
)

// operationCanceler tracks the tool call currently running in the console
// so an interrupt cancels that call instead of the whole process.
type operationCanceler struct {
	mu     sync.Mutex
	cancel context.CancelFunc
}

// Run calls fn with a context that Cancel can abort while fn runs.
func (c *operationCanceler) Run(parent context.Context, fn func(context.Context)) {
	ctx, cancel := context.WithCancel(parent)
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.cancel = nil
		c.mu.Unlock()
		cancel()
	}()
	fn(ctx)
}

// Cancel aborts the running call. It reports false when nothing is running.
func (c *operationCanceler) Cancel() bool {
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel == nil {
		return false
	}
	cancel()
	return true
}

// watchInterrupts forwards SIGINT to the canceler until ctx is done. While
// readline owns the terminal, ^C arrives as readline.ErrInterrupt instead.
func watchInterrupts(ctx context.Context, c *operationCanceler, onCancel func()) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt)
	go func() {
		defer signal.Stop(sigs)
		for {
			select {
			case <-ctx.Done():
				return
			case <-sigs:
				if c.Cancel() && onCancel != nil {
					onCancel()
				}
			}
		}
	}()
}

// filterInterruptRune swallows ^G, which readline would otherwise echo as
// a bell into the prompt.
func filterInterruptRune(r rune) (rune, bool) {
	if r == readline.CharBell {
		return 0, false
	}
	return r, true
}
