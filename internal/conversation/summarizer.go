package conversation

import (
	"fmt"
	"sort"
	"strings"
)

const (
	summaryImportanceFloor = 7
	summaryRecentEntries   = 5
	summaryFlowEntries     = 3
	summaryResponseRunes   = 50
)

// Summarize renders the context block handed to the language model. Sections
// with nothing to say are left out entirely.
func Summarize(conv *Conversation) string {
	if conv == nil {
		return ""
	}
	cc := conv.Context
	var b strings.Builder

	line := func(label, value string) {
		if value != "" {
			fmt.Fprintf(&b, "%s: %s\n", label, value)
		}
	}

	line("Client", cc.ClientName)
	line("Business type", cc.BusinessType)
	if cc.CurrentTopic != "" {
		line("Current topic", cc.CurrentTopic)
		fmt.Fprintf(&b, "Messages in topic: %d\n", len(cc.TopicMessages))
	}
	line("Emotional state", string(cc.EmotionalState))
	line("Urgency", string(cc.Urgency))
	line("Last intent", string(cc.LastIntent))
	if len(cc.Preferences.PreferredColors) > 0 {
		line("Preferred colors", strings.Join(cc.Preferences.PreferredColors, ", "))
	}

	if recent := recentImportant(cc.ContextWindow); len(recent) > 0 {
		b.WriteString("\nRecent context:\n")
		for _, e := range recent {
			fmt.Fprintf(&b, "- %s\n", e.Message)
		}
	}

	if flow := keepLast(cc.ConversationFlow, summaryFlowEntries); len(flow) > 0 {
		b.WriteString("\nConversation flow:\n")
		for _, f := range flow {
			fmt.Fprintf(&b, "%s (%.2f)", f.Intent, f.Confidence)
			if f.Response != "" {
				fmt.Fprintf(&b, " -> %s", truncateRunes(f.Response, summaryResponseRunes))
			}
			b.WriteString("\n")
		}
	}

	return b.String()
}

// recentImportant returns the most recent high-importance window entries,
// oldest first.
func recentImportant(window []WindowEntry) []WindowEntry {
	var out []WindowEntry
	for _, e := range window {
		if e.Importance >= summaryImportanceFloor {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return keepLast(out, summaryRecentEntries)
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
