package shell

import "strings"

// escapeArg quotes one argument following the CommandLineToArgvW rules that
// Windows CreateProcess uses: backslashes are doubled only when they precede
// a double quote, double quotes are backslash-escaped, and the result is
// wrapped in quotes only when it contains whitespace. An empty argument
// becomes "".
func escapeArg(arg string) string {
	if arg == "" {
		return `""`
	}

	needsQuotes := strings.ContainsAny(arg, " \t")
	needsEscape := strings.ContainsAny(arg, `"\`)
	if !needsQuotes && !needsEscape {
		return arg
	}
	if !needsEscape {
		return `"` + arg + `"`
	}

	var b strings.Builder
	if needsQuotes {
		b.WriteByte('"')
	}
	slashes := 0
	for i := 0; i < len(arg); i++ {
		c := arg[i]
		switch c {
		case '\\':
			slashes++
		case '"':
			b.WriteString(strings.Repeat(`\`, slashes+1))
			slashes = 0
		default:
			slashes = 0
		}
		b.WriteByte(c)
	}
	if needsQuotes {
		// Trailing backslashes would otherwise escape the closing quote.
		b.WriteString(strings.Repeat(`\`, slashes))
		b.WriteByte('"')
	}
	return b.String()
}

// buildCommandLine joins argv into the single command-line string
// CreateProcess expects.
func buildCommandLine(args []string) string {
	parts := make([]string, len(args))
	for i, arg := range args {
		parts[i] = escapeArg(arg)
	}
	return strings.Join(parts, " ")
}
