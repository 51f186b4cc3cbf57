package db

import (
	"strings"
	"unicode"
)

// splitStatements breaks a script on semicolons outside of quotes and
// comments, for drivers that run a single statement per Exec. Chunks that
// hold only comments are dropped.
func splitStatements(sqlText string) []string {
	var (
		out      []string
		current  strings.Builder
		inSingle bool
		inDouble bool
		inLine   bool
		inBlock  bool
		content  bool
	)

	flush := func() {
		stmt := strings.TrimSpace(current.String())
		if content && stmt != "" {
			out = append(out, stmt)
		}
		current.Reset()
		content = false
	}

	runes := []rune(sqlText)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		var next rune
		if i+1 < len(runes) {
			next = runes[i+1]
		}
		switch {
		case inLine:
			if r == '\n' {
				inLine = false
			}
		case inBlock:
			if r == '*' && next == '/' {
				inBlock = false
				current.WriteString("*/")
				i++
				continue
			}
		case inSingle:
			if r == '\'' {
				inSingle = false
			}
		case inDouble:
			if r == '"' {
				inDouble = false
			}
		case r == '-' && next == '-':
			inLine = true
		case r == '/' && next == '*':
			inBlock = true
			current.WriteString("/*")
			i++
			continue
		case r == '\'':
			inSingle, content = true, true
		case r == '"':
			inDouble, content = true, true
		case r == ';':
			flush()
			continue
		case !unicode.IsSpace(r):
			content = true
		}
		current.WriteRune(r)
	}
	flush()
	return out
}
