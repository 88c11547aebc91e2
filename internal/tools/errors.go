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
	"errors"
	"fmt"
	"strings"

	apperrors "fsguard/internal/errors"
)

// Sentinels reachable through errors.Is on a ToolResult error.
var (
	ErrToolNotAllowed   = errors.New("tool blocked by policy")
	ErrToolNotFound     = errors.New("tool not found")
	ErrInvalidArguments = errors.New("invalid tool arguments")
)

// NewUnknownToolError reports a call to a name the registry does not hold.
// The message lists what is available so the model can correct itself.
func NewUnknownToolError(name string, available []string) *apperrors.Error {
	msg := fmt.Sprintf("unknown tool %q", name)
	if len(available) > 0 {
		msg += " (available: " + strings.Join(available, ", ") + ")"
	}
	return apperrors.Wrap(apperrors.CodeToolExecution, msg, ErrToolNotFound)
}

// NewPolicyError reports a registered tool hidden by the allow/deny policy.
func NewPolicyError(name string) *apperrors.Error {
	return apperrors.Wrap(apperrors.CodePermission, "permission denied for tool "+name, ErrToolNotAllowed)
}

// NewMalformedCallError reports a call whose envelope could not be decoded,
// before any schema check runs.
func NewMalformedCallError(name, reason string) *apperrors.Error {
	return NewArgumentError(name, fmt.Errorf("%w: %s", ErrInvalidArguments, reason))
}

// NewArgumentError reports arguments that failed schema validation.
func NewArgumentError(name string, err error) *apperrors.Error {
	return apperrors.Wrap(apperrors.CodeValidation, "invalid arguments for "+name, err)
}

// NewExecutionError reports a tool that failed without a coded error of its own.
func NewExecutionError(name string, err error) *apperrors.Error {
	return apperrors.Wrap(apperrors.CodeToolExecution, "tool "+name+" failed", err)
}
