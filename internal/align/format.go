package align

import "strings"

// FormatLine builds the single corpus transcript line: the base name, one
// space, then the words of text separated by single spaces.
func FormatLine(text, base string) string {
	return base + " " + strings.Join(strings.Fields(text), " ")
}

// preview returns the first n whitespace-separated words of text.
func preview(text string, n int) []string {
	words := strings.Fields(text)
	if len(words) > n {
		words = words[:n]
	}
	return words
}
