package cmakegen

import "strings"

var quotedEscaper = strings.NewReplacer(
	`\`, `\\`,
	`"`, `\"`,
	`$`, `\$`,
)

// Quote returns s as a quoted CMake argument whose content is taken literally.
func Quote(s string) string {
	return `"` + quotedEscaper.Replace(s) + `"`
}

var expandingEscaper = strings.NewReplacer(
	`\`, `\\`,
	`"`, `\"`,
)

// QuoteExpanding quotes s but leaves variable references such as ${X} for CMake to
// expand.
func QuoteExpanding(s string) string {
	return `"` + expandingEscaper.Replace(s) + `"`
}

// QuoteList quotes every element of list into a new slice.
func QuoteList(list []string) []string {
	out := make([]string, len(list))
	for i, s := range list {
		out[i] = Quote(s)
	}
	return out
}

// Bool renders b as a CMake boolean constant.
func Bool(b bool) string {
	if b {
		return "ON"
	}
	return "OFF"
}
