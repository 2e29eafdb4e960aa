package conversation

import (
	"sort"
	"time"
)

// WindowManager keeps the importance-ranked context window bounded.
type WindowManager struct {
	max int
}

// NewWindowManager returns a manager retaining at most max entries.
func NewWindowManager(max int) *WindowManager {
	if max <= 0 {
		max = DefaultLimits().MaxContextWindow
	}
	return &WindowManager{max: max}
}

// Insert adds message and evicts the lowest-importance, then oldest, entries.
func (w *WindowManager) Insert(cc *ConversationContext, message string, importance int, now time.Time) {
	entries := make([]WindowEntry, 0, len(cc.ContextWindow)+1)
	// The newest entry goes first so it wins exact ties after the stable sort.
	entries = append(entries, WindowEntry{
		Message:    message,
		Timestamp:  now,
		Importance: importance,
	})
	entries = append(entries, cc.ContextWindow...)
	rankWindow(entries)
	if len(entries) > w.max {
		entries = entries[:w.max]
	}
	cc.ContextWindow = entries
}

// rankWindow orders by importance desc, most recent first among equals.
func rankWindow(entries []WindowEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Importance != entries[j].Importance {
			return entries[i].Importance > entries[j].Importance
		}
		return entries[i].Timestamp.After(entries[j].Timestamp)
	})
}
