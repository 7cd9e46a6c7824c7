package command

import "strings"

// SplitArgs splits s on whitespace, honoring single- and double-quoted
// segments as single tokens. `a "two words" c` yields three tokens with
// `two words` as one. A quote opens a segment only at the start of a
// token, so a mid-token apostrophe (`it's`) stays literal. An unterminated
// quote captures the rest of the input.
func SplitArgs(s string) []string {
	var (
		tokens  []string
		current strings.Builder
		quote   rune
		open    bool
		started bool
	)

	flush := func() {
		if started {
			tokens = append(tokens, current.String())
			current.Reset()
			started = false
		}
	}

	for _, r := range s {
		switch {
		case open:
			if r == quote {
				open = false
				continue
			}
			current.WriteRune(r)
		case (r == '"' || r == '\'') && !started:
			open = true
			quote = r
			started = true
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
			flush()
		default:
			current.WriteRune(r)
			started = true
		}
	}
	flush()

	return tokens
}
