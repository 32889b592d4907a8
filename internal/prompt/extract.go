package prompt

import (
	"regexp"
	"strings"
)

var fencedBlockPattern = regexp.MustCompile("(?s)```" + CodeFence + "\\s*\\n(.*?)```")

// ExtractCodeBlock returns the content of the first ```repl fenced block in
// reply, per the first-code-block-wins tie-break (spec §4.7). ok is false if
// no such block is present, in which case the Engine must inject
// CodeRequiredReminder instead of calling the Executor.
func ExtractCodeBlock(reply string) (code string, ok bool) {
	m := fencedBlockPattern.FindStringSubmatch(reply)
	if m == nil {
		return "", false
	}
	return strings.TrimRight(m[1], "\n"), true
}

var directFinalPattern = regexp.MustCompile(`(?m)^\s*FINAL\((.*)\)\s*$`)

// ExtractDirectFinal detects a bare FINAL(value) directive in the reply's
// top-level text, outside of any fenced code block — the model bypassing
// the REPL and answering directly (spec §4.7 step 2.3). Per the FINAL-vs-
// code-block tie-break (spec §4.7), this check is made first and, if it
// matches, wins over any code block also present in the reply.
func ExtractDirectFinal(reply string) (answer string, ok bool) {
	withoutBlocks := fencedBlockPattern.ReplaceAllString(reply, "")
	m := directFinalPattern.FindStringSubmatch(withoutBlocks)
	if m == nil {
		return "", false
	}
	return unquote(strings.TrimSpace(m[1])), true
}

func unquote(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
