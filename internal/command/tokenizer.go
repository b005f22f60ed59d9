package command

import "regexp"

// tokenPattern matches one token: a double-quoted span, a bracketed span, or
// a run of non-space characters. Quoted and bracketed spans keep interior
// spaces, so `create 10 "small drylands" Bardur` yields four tokens.
var tokenPattern = regexp.MustCompile(`"([^"]*)"|\[([^\]]*)\]|(\S+)`)

// Tokenize splits an input line into arguments.
func Tokenize(line string) []string {
	matches := tokenPattern.FindAllStringSubmatch(line, -1)
	if len(matches) == 0 {
		return nil
	}
	tokens := make([]string, 0, len(matches))
	for _, m := range matches {
		switch {
		case m[1] != "" || m[0] == `""`:
			tokens = append(tokens, m[1])
		case m[2] != "" || m[0] == "[]":
			tokens = append(tokens, m[2])
		default:
			tokens = append(tokens, m[3])
		}
	}
	return tokens
}
