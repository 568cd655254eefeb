package expr

import (
	"regexp"
	"strings"

	"github.com/juju/errors"
)

// stateGetCall matches the method-call spelling state.get( outside of
// string literals. The accessor is exposed as the get function.
var stateGetCall = regexp.MustCompile(`(^|[^\w\-.])state\s*\.\s*get\s*\(`)

// normalize rewrites single-quoted strings into HCL double-quoted strings and
// state.get(...) calls into get(...). Double-quoted literals are copied as is.
func normalize(src string) (string, error) {
	var (
		out  strings.Builder
		code strings.Builder
	)
	flush := func() {
		out.WriteString(stateGetCall.ReplaceAllString(code.String(), "${1}get("))
		code.Reset()
	}

	for i := 0; i < len(src); i++ {
		c := src[i]
		switch c {
		case '"':
			end, err := scanString(src, i, '"')
			if err != nil {
				return "", err
			}
			flush()
			out.WriteString(src[i : end+1])
			i = end
		case '\'':
			end, err := scanString(src, i, '\'')
			if err != nil {
				return "", err
			}
			flush()
			out.WriteString(requote(src[i+1 : end]))
			i = end
		default:
			code.WriteByte(c)
		}
	}
	flush()
	return out.String(), nil
}

// scanString returns the index of the quote closing the literal opened at
// start.
func scanString(src string, start int, quote byte) (int, error) {
	for i := start + 1; i < len(src); i++ {
		switch src[i] {
		case '\\':
			i++
		case quote:
			return i, nil
		}
	}
	return 0, errors.NotValidf("unterminated string at offset %d", start)
}

func requote(body string) string {
	var b strings.Builder
	b.WriteByte('"')
	for i := 0; i < len(body); i++ {
		c := body[i]
		switch {
		case c == '\\' && i+1 < len(body) && body[i+1] == '\'':
			b.WriteByte('\'')
			i++
		case c == '\\' && i+1 < len(body):
			b.WriteByte(c)
			b.WriteByte(body[i+1])
			i++
		case c == '"':
			b.WriteString(`\"`)
		case (c == '$' || c == '%') && i+1 < len(body) && body[i+1] == '{':
			b.WriteByte(c)
			b.WriteByte(c)
		default:
			b.WriteByte(c)
		}
	}
	b.WriteByte('"')
	return b.String()
}
