package retrieve

import (
	"fmt"
	"strings"
)

// formatBlock renders one candidate for prompt context. Sources whose
// title matches a configured generic label (catch-all collections) do
// not get the high-relevance tag, so they cannot outrank specific
// lessons in the model's attention.
func (r *Retriever) formatBlock(title, url, content string) string {
	var b strings.Builder
	if !r.isGenericLabel(title) {
		b.WriteString("[HIGH RELEVANCE]\n")
	}
	fmt.Fprintf(&b, "[SOURCE: %s (Link: %s)]\n%s", title, url, content)
	return b.String()
}

func (r *Retriever) isGenericLabel(title string) bool {
	lowered := strings.ToLower(title)
	for _, label := range r.cfg.GenericLabels {
		if strings.Contains(lowered, strings.ToLower(label)) {
			return true
		}
	}
	return false
}
