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

package fsops

import "strings"

// LineDiff renders the change from before to after. Lines are aligned with
// two cursors and one line of look-ahead, which is enough for the localized
// replacements edit_file produces. Unchanged lines are emitted as-is, removed
// lines with "-" and added lines with "+".
func LineDiff(name, before, after string) string {
	a := splitLines(before)
	b := splitLines(after)

	var sb strings.Builder
	sb.WriteString("--- " + name + "\n")
	sb.WriteString("+++ " + name + "\n")

	i, j := 0, 0
	for i < len(a) || j < len(b) {
		switch {
		case i < len(a) && j < len(b) && a[i] == b[j]:
			sb.WriteString(a[i] + "\n")
			i++
			j++
		case i < len(a) && j < len(b):
			switch {
			case j+1 < len(b) && a[i] == b[j+1]:
				sb.WriteString("+" + b[j] + "\n")
				j++
			case i+1 < len(a) && a[i+1] == b[j]:
				sb.WriteString("-" + a[i] + "\n")
				i++
			default:
				sb.WriteString("-" + a[i] + "\n")
				sb.WriteString("+" + b[j] + "\n")
				i++
				j++
			}
		case i < len(a):
			sb.WriteString("-" + a[i] + "\n")
			i++
		default:
			sb.WriteString("+" + b[j] + "\n")
			j++
		}
	}
	return sb.String()
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(s, "\n"), "\n")
}
