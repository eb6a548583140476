package program

import (
	"fmt"
	"strings"

	"github.com/ternarybob/loom/internal/models"
)

// Format renders commands back to IR text. Load(Format(cmds)) yields cmds
// for any command list whose values the syntax can carry; a single quote in
// a literal has no escape and is reported as an error.
func Format(cmds []models.Cmd) (string, error) {
	var b strings.Builder
	for _, cmd := range cmds {
		if !isIdent(cmd.ID) {
			return "", fmt.Errorf("label %q is not an identifier", cmd.ID)
		}
		b.WriteString(cmd.ID)
		b.WriteString(":")

		args := append([]models.CmdArg{cmd.Opcode}, cmd.Args...)
		for _, arg := range args {
			rendered, err := formatArg(arg)
			if err != nil {
				return "", fmt.Errorf("command %q: %w", cmd.ID, err)
			}
			b.WriteString(" ")
			b.WriteString(rendered)
		}
		b.WriteString("\n")
	}
	return b.String(), nil
}

func formatArg(arg models.CmdArg) (string, error) {
	switch a := arg.(type) {
	case models.ArgConst:
		if isIdent(a.Value) {
			return a.Value, nil
		}
		return quote(a.Value)

	case models.ArgRef:
		switch ns := a.Ref.Ns.(type) {
		case models.NsCurr:
			if !isIdent(a.Ref.Ident) {
				return "", fmt.Errorf("reference %q is not an identifier", a.Ref.Ident)
			}
			return "$" + a.Ref.Ident, nil
		case models.NsRef:
			if !isIdent(ns.Name) || !isIdent(a.Ref.Ident) {
				return "", fmt.Errorf("reference %q.%q is not an identifier pair", ns.Name, a.Ref.Ident)
			}
			return "$" + ns.Name + "." + a.Ref.Ident, nil
		}
	}
	return "", fmt.Errorf("unknown argument kind %T", arg)
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isIdentByte(s[i]) {
			return false
		}
	}
	return true
}

func quote(v models.Value) (string, error) {
	var b strings.Builder
	b.WriteByte('\'')
	for i := 0; i < len(v); i++ {
		switch c := v[i]; c {
		case '\'':
			return "", fmt.Errorf("value %q contains an unescapable single quote", v)
		case '\\':
			b.WriteString(`\\`)
		case '"':
			b.WriteString(`\"`)
		case '\n':
			b.WriteString(`\n`)
		default:
			b.WriteByte(c)
		}
	}
	b.WriteByte('\'')
	return b.String(), nil
}
