// Package program loads and formats the line-oriented IR text format:
//
//	# comment
//	label: opcode operand 'quoted operand' $ref $other.ref
//
// The first argument of a command is its opcode. Quoted literals support the
// escapes \\, \" and \n. A trailing newline on the last command is optional.
package program

import (
	"fmt"
	"strings"

	"github.com/ternarybob/loom/internal/models"
)

// Location points into the source text, 1-based.
type Location struct {
	Line int
	Col  int
}

// ErrKind classifies loader failures.
type ErrKind int

const (
	// KindSyntax: the line does not match the grammar.
	KindSyntax ErrKind = iota
	// KindOpcodeMissing: a command has no arguments at all.
	KindOpcodeMissing
	// KindDuplicateLabel: a label occurs twice.
	KindDuplicateLabel
)

func (k ErrKind) String() string {
	switch k {
	case KindSyntax:
		return "Syntax"
	case KindOpcodeMissing:
		return "OpcodeMissing"
	case KindDuplicateLabel:
		return "DuplicateLabel"
	default:
		return fmt.Sprintf("ErrKind(%d)", int(k))
	}
}

// LoadError is a located loader failure.
type LoadError struct {
	Loc  Location
	Kind ErrKind
	Msg  string
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("%d:%d: %s: %s", e.Loc.Line, e.Loc.Col, e.Kind, e.Msg)
}

func errAt(line, col int, kind ErrKind, format string, args ...interface{}) *LoadError {
	return &LoadError{
		Loc:  Location{Line: line, Col: col},
		Kind: kind,
		Msg:  fmt.Sprintf(format, args...),
	}
}

// Load parses IR source into commands. Labels must be unique; every command
// needs at least an opcode.
func Load(src string) ([]models.Cmd, *LoadError) {
	lines := strings.Split(src, "\n")

	var cmds []models.Cmd
	seen := make(map[models.CommandID]int)

	for i, raw := range lines {
		lineNo := i + 1
		line := strings.TrimSuffix(raw, "\r")

		if strings.TrimSpace(line) == "" {
			continue
		}
		if line[0] == '#' {
			continue
		}

		label, args, err := parseCommand(line, lineNo)
		if err != nil {
			return nil, err
		}
		if len(args) == 0 {
			return nil, errAt(lineNo, len(label)+2, KindOpcodeMissing, "command %q has no opcode", label)
		}
		if prev, dup := seen[label]; dup {
			return nil, errAt(lineNo, 1, KindDuplicateLabel, "label %q already defined on line %d", label, prev)
		}
		seen[label] = lineNo

		cmds = append(cmds, models.NewCmd(label, args[0], args[1:]...))
	}
	return cmds, nil
}

func isIdentByte(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_'
}

func parseCommand(line string, lineNo int) (models.CommandID, []models.CmdArg, *LoadError) {
	pos := 0

	start := pos
	for pos < len(line) && isIdentByte(line[pos]) {
		pos++
	}
	if pos == start {
		return "", nil, errAt(lineNo, pos+1, KindSyntax, "expected label")
	}
	label := line[start:pos]

	if pos >= len(line) || line[pos] != ':' {
		return "", nil, errAt(lineNo, pos+1, KindSyntax, "expected ':' after label %q", label)
	}
	pos++

	var args []models.CmdArg
	for {
		for pos < len(line) && (line[pos] == ' ' || line[pos] == '\t') {
			pos++
		}
		if pos >= len(line) {
			break
		}

		arg, next, err := parseArg(line, pos, lineNo)
		if err != nil {
			return "", nil, err
		}
		args = append(args, arg)
		pos = next
	}
	return label, args, nil
}

func parseArg(line string, pos, lineNo int) (models.CmdArg, int, *LoadError) {
	switch c := line[pos]; {
	case c == '\'':
		return parseQuoted(line, pos, lineNo)

	case c == '$':
		pos++
		ident, next, err := parseIdent(line, pos, lineNo)
		if err != nil {
			return nil, 0, err
		}
		pos = next
		if pos < len(line) && line[pos] == '.' {
			pos++
			field, next, err := parseIdent(line, pos, lineNo)
			if err != nil {
				return nil, 0, err
			}
			return models.ArgRef{Ref: models.NamedRef(ident, field)}, next, nil
		}
		return models.ArgRef{Ref: models.CurrRef(ident)}, pos, nil

	case isIdentByte(c):
		ident, next, _ := parseIdent(line, pos, lineNo)
		return models.ArgConst{Value: ident}, next, nil

	default:
		return nil, 0, errAt(lineNo, pos+1, KindSyntax, "unexpected character %q", c)
	}
}

func parseIdent(line string, pos, lineNo int) (string, int, *LoadError) {
	start := pos
	for pos < len(line) && isIdentByte(line[pos]) {
		pos++
	}
	if pos == start {
		return "", 0, errAt(lineNo, pos+1, KindSyntax, "expected identifier")
	}
	return line[start:pos], pos, nil
}

func parseQuoted(line string, pos, lineNo int) (models.CmdArg, int, *LoadError) {
	openCol := pos + 1
	pos++ // opening quote

	var b strings.Builder
	for pos < len(line) {
		switch c := line[pos]; c {
		case '\'':
			return models.ArgConst{Value: b.String()}, pos + 1, nil
		case '\\':
			pos++
			if pos >= len(line) {
				return nil, 0, errAt(lineNo, pos+1, KindSyntax, "dangling escape")
			}
			switch line[pos] {
			case '\\':
				b.WriteByte('\\')
			case '"':
				b.WriteByte('"')
			case 'n':
				b.WriteByte('\n')
			default:
				return nil, 0, errAt(lineNo, pos+1, KindSyntax, "unknown escape \\%c", line[pos])
			}
			pos++
		default:
			b.WriteByte(c)
			pos++
		}
	}
	return nil, 0, errAt(lineNo, openCol, KindSyntax, "unterminated string literal")
}
