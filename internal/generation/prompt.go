package generation

import (
	"encoding/json"
	"strings"

	"github.com/ahrav/go-recall/internal/domain"
)

// DefaultMaxSnippets bounds how many retrieved snippets reach the prompt.
const DefaultMaxSnippets = 10

// BuildPrompt renders the question and the content of at most maxSnippets
// snippets. Earlier snippets take priority; the rest are dropped silently.
// A maxSnippets below 1 falls back to DefaultMaxSnippets.
func BuildPrompt(question string, snippets []domain.ContextSnippet, maxSnippets int) string {
	if maxSnippets < 1 {
		maxSnippets = DefaultMaxSnippets
	}
	if len(snippets) > maxSnippets {
		snippets = snippets[:maxSnippets]
	}

	contents := make([]string, len(snippets))
	for i, s := range snippets {
		contents[i] = s.Content
	}
	// A []string always marshals.
	data, _ := json.Marshal(contents)

	var b strings.Builder
	b.WriteString("Given the data, answer the following question:\n  ")
	b.WriteString(question)
	b.WriteString("\n\n  The data is:\n  ```\n  ")
	b.Write(data)
	b.WriteString("\n  ```\n")
	return b.String()
}
