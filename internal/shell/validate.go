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

package shell

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/mattn/go-shellwords"

	apperrors "fsguard/internal/errors"
)

const maxCommandLength = 10000

// UnsafePatternMessage prefixes the error for a deny-listed command.
const UnsafePatternMessage = "Command contains unsafe pattern"

// denyPatterns is a syntactic filter. It raises the bar against obviously
// destructive commands; aliases, variables and encodings can still get past it.
var denyPatterns = []*regexp.Regexp{
	// recursive or forced delete
	regexp.MustCompile(`\brm\s+(-[a-zA-Z]*[rRf][a-zA-Z]*|--recursive|--force)\b`),
	// output redirection
	regexp.MustCompile(`>`),
	// privilege escalation, direct or piped
	regexp.MustCompile(`\bsudo\b`),
	// filesystem formatting
	regexp.MustCompile(`\b(mkfs(\.\w+)?|mke2fs|mkswap|fdisk|sfdisk|parted|wipefs)\b`),
	// raw disk access
	regexp.MustCompile(`\bdd\b.*\b(if|of)=`),
	regexp.MustCompile(`/dev/(sd|hd|nvme|xvd|vd|mmcblk|disk)`),
	// system power control
	regexp.MustCompile(`\b(shutdown|reboot|halt|poweroff)\b`),
	regexp.MustCompile(`\binit\s+[06]\b`),
	// overly permissive chmod
	regexp.MustCompile(`\bchmod\s+(-\w+\s+)*(0?777|[augo]*\+rwx)\b`),
}

var segmentSeparator = regexp.MustCompile(`\|\||&&|[|;&\n]`)

// Policy is the syntactic stage of command execution.
type Policy struct {
	// AllowedCommands, when non-empty, lists the only verbs a command may
	// invoke. It applies on top of the deny-list.
	AllowedCommands []string
}

// ValidateCommand applies the default policy.
func ValidateCommand(command string) error {
	return Policy{}.Validate(command)
}

// Validate rejects empty, oversized and deny-listed commands.
func (p Policy) Validate(command string) error {
	if strings.TrimSpace(command) == "" {
		return apperrors.New(apperrors.CodeValidation, "command cannot be empty")
	}
	if len(command) > maxCommandLength {
		return apperrors.Newf(apperrors.CodeValidation, "command exceeds maximum length of %d characters", maxCommandLength)
	}
	for _, pattern := range denyPatterns {
		if pattern.MatchString(command) {
			return apperrors.Newf(apperrors.CodeValidation, "%s: %s", UnsafePatternMessage, pattern.String())
		}
	}
	if len(p.AllowedCommands) == 0 {
		return nil
	}
	verbs, err := Verbs(command)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeValidation, "cannot check command against allowlist", err)
	}
	for _, verb := range verbs {
		if !slices.Contains(p.AllowedCommands, verb) {
			return apperrors.Newf(apperrors.CodeValidation, "command %q is not in the allowed command list", verb)
		}
	}
	return nil
}

// Verbs returns the first word of every pipeline or list segment, skipping
// leading VAR=value assignments. A path such as /bin/ls is returned as is.
func Verbs(command string) ([]string, error) {
	if strings.Contains(command, "`") || strings.Contains(command, "$(") {
		return nil, fmt.Errorf("command substitution is not supported")
	}
	var verbs []string
	for _, segment := range segmentSeparator.Split(command, -1) {
		if strings.TrimSpace(segment) == "" {
			continue
		}
		words, err := shellwords.Parse(segment)
		if err != nil {
			return nil, err
		}
		for len(words) > 0 && isAssignment(words[0]) {
			words = words[1:]
		}
		if len(words) == 0 {
			continue
		}
		verbs = append(verbs, words[0])
	}
	return verbs, nil
}

func isAssignment(word string) bool {
	name, _, ok := strings.Cut(word, "=")
	if !ok || name == "" {
		return false
	}
	for i, r := range name {
		if r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (i > 0 && r >= '0' && r <= '9') {
			continue
		}
		return false
	}
	return true
}
