package tools

import "strings"

// SplitArgs splits tool input into arguments the way a simple shell would.
// Spaces separate arguments, single and double quotes group them, and a
// backslash escapes the next character. A closing quote always ends an
// argument, so "" yields an empty argument. An unterminated quote runs to
// the end of the input.
func SplitArgs(input string) []string {
	var (
		args    []string
		current strings.Builder
		single  bool
		double  bool
		escape  bool
	)
	flush := func() {
		if current.Len() > 0 {
			args = append(args, current.String())
			current.Reset()
		}
	}

	for _, r := range input {
		switch {
		case escape:
			current.WriteRune(r)
			escape = false
		case r == '\\':
			escape = true
		case r == '\'' && !double:
			if single {
				args = append(args, current.String())
				current.Reset()
			}
			single = !single
		case r == '"' && !single:
			if double {
				args = append(args, current.String())
				current.Reset()
			}
			double = !double
		case r == ' ' && !single && !double:
			flush()
		default:
			current.WriteRune(r)
		}
	}
	flush()
	return args
}
