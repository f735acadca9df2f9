package tokenizer

import (
	"strings"
)

// CountTokens estimates token usage from word count. Training cost and
// artifact sizing only need a rough figure; exact counts would take a
// model-specific tokenizer.
func CountTokens(text string) int {
	words := strings.Fields(text)
	return max(len(words)*4/3, 1)
}
