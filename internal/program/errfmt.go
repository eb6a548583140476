package program

import (
	"fmt"
	"strings"
)

// contextLines is how many source lines are shown either side of the error.
const contextLines = 3

// FormatError renders a loader error as a numbered source window with a
// caret under the offending column, for CLI diagnostics.
func FormatError(src string, err *LoadError) string {
	lines := strings.Split(src, "\n")

	idx := err.Loc.Line - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(lines) {
		idx = len(lines) - 1
	}

	start := idx - contextLines
	if start < 0 {
		start = 0
	}
	end := idx + contextLines
	if end >= len(lines) {
		end = len(lines) - 1
	}

	var out []string
	for i := start; i <= end; i++ {
		prefix := fmt.Sprintf("%4d: ", i+1)
		out = append(out, prefix+strings.TrimSuffix(lines[i], "\r"))
		if i == idx {
			pad := strings.Repeat(" ", len(prefix)+err.Loc.Col-1)
			out = append(out, pad+"^")
			out = append(out, pad+fmt.Sprintf("%s: %s", err.Kind, err.Msg))
		}
	}
	return strings.Join(out, "\n")
}
