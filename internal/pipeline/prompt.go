package pipeline

import (
	"fmt"
	"sort"
	"strings"

	"github.com/solace-labs/solace/internal/emotion"
	"github.com/solace-labs/solace/internal/sense"
	"github.com/solace-labs/solace/internal/session"
)

const coachPersona = `You are Solace, a warm, grounded personal coach.
Listen first, validate feelings, and offer concrete next steps when
asked. Never diagnose. If the user appears to be in danger, gently
point them to professional crisis resources.`

// buildSystemPrompt assembles the system prompt from the persona, the
// knowledge context, the user's known facts, and the sensed state.
func (p *Pipeline) buildSystemPrompt(reading sense.Reading, knowledgeContext string, facts map[string]string, trend string) string {
	var b strings.Builder
	b.WriteString(coachPersona)

	fmt.Fprintf(&b, "\n\nRespond in the user's language (%s). The user currently seems %s.",
		reading.Language, reading.Sentiment)

	switch trend {
	case emotion.TrendDeclining:
		b.WriteString(" Their mood over recent sessions has been declining; check in gently without repeating earlier reassurances.")
	case emotion.TrendImproving:
		b.WriteString(" Their mood over recent sessions has been improving; acknowledge the progress briefly.")
	}

	if len(facts) > 0 {
		b.WriteString("\n\nWhat you know about the user:")
		keys := make([]string, 0, len(facts))
		for k := range facts {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "\n- %s: %s", k, facts[k])
		}
	}

	b.WriteString("\n\nReference material (may say \"No specific knowledge.\"):\n")
	b.WriteString(knowledgeContext)
	return b.String()
}

// buildUserPrompt renders recent history above the new message.
func buildUserPrompt(history []session.Message, query string) string {
	if len(history) == 0 {
		return query
	}
	var b strings.Builder
	b.WriteString("Conversation so far:\n")
	for _, m := range history {
		role := "User"
		if m.Role == session.RoleModel {
			role = "Coach"
		}
		fmt.Fprintf(&b, "%s: %s\n", role, m.Content)
	}
	b.WriteString("\nNew message:\n")
	b.WriteString(query)
	return b.String()
}
