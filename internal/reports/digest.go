package reports

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/wolfman30/heitor/internal/conversation"
)

const (
	PeriodDaily  = "daily"
	PeriodWeekly = "weekly"

	topTopicCount = 5
)

// ConversationFinder is the engine query the digests are built from.
type ConversationFinder interface {
	FindByActivityWindow(ctx context.Context, start, end time.Time) ([]*conversation.Conversation, error)
}

// TopicCount is one row of the topic ranking.
type TopicCount struct {
	Topic string `json:"topic"`
	Count int    `json:"count"`
}

// Digest aggregates the conversations active in [Start, End].
type Digest struct {
	Period        string                              `json:"period"`
	Start         time.Time                           `json:"start"`
	End           time.Time                           `json:"end"`
	Conversations int                                 `json:"conversations"`
	Groups        int                                 `json:"groups"`
	Private       int                                 `json:"private"`
	Messages      int                                 `json:"messages"`
	ByEmotion     map[conversation.EmotionalState]int `json:"by_emotion"`
	ByUrgency     map[conversation.Urgency]int        `json:"by_urgency"`
	TopTopics     []TopicCount                        `json:"top_topics"`
}

// Reporter builds digests in a fixed reporting timezone.
type Reporter struct {
	finder ConversationFinder
	loc    *time.Location
}

func NewReporter(finder ConversationFinder, loc *time.Location) *Reporter {
	if finder == nil {
		panic("reports: conversation finder cannot be nil")
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Reporter{finder: finder, loc: loc}
}

// Daily covers the calendar day containing day.
func (r *Reporter) Daily(ctx context.Context, day time.Time) (Digest, error) {
	start := r.startOfDay(day)
	return r.build(ctx, PeriodDaily, start, lastInstantBefore(start.AddDate(0, 0, 1)))
}

// Weekly covers the Sunday to Saturday week containing ref.
func (r *Reporter) Weekly(ctx context.Context, ref time.Time) (Digest, error) {
	day := r.startOfDay(ref)
	start := day.AddDate(0, 0, -int(day.Weekday()))
	return r.build(ctx, PeriodWeekly, start, lastInstantBefore(start.AddDate(0, 0, 7)))
}

// lastInstantBefore closes an inclusive window so it abuts the next one;
// activity timestamps carry nanoseconds.
func lastInstantBefore(next time.Time) time.Time {
	return next.Add(-time.Nanosecond)
}

func (r *Reporter) startOfDay(t time.Time) time.Time {
	t = t.In(r.loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, r.loc)
}

func (r *Reporter) build(ctx context.Context, period string, start, end time.Time) (Digest, error) {
	convs, err := r.finder.FindByActivityWindow(ctx, start, end)
	if err != nil {
		return Digest{}, fmt.Errorf("reports: %s digest: %w", period, err)
	}

	d := Digest{
		Period:    period,
		Start:     start,
		End:       end,
		ByEmotion: make(map[conversation.EmotionalState]int),
		ByUrgency: make(map[conversation.Urgency]int),
	}
	topics := make(map[string]int)
	for _, conv := range convs {
		d.Conversations++
		if conv.IsGroup {
			d.Groups++
		} else {
			d.Private++
		}
		for _, m := range conv.Messages {
			if !m.Timestamp.Before(start) && !m.Timestamp.After(end) {
				d.Messages++
			}
		}
		if s := conv.Context.EmotionalState; s != "" {
			d.ByEmotion[s]++
		}
		if u := conv.Context.Urgency; u != "" {
			d.ByUrgency[u]++
		}
		if t := conv.Context.CurrentTopic; t != "" {
			topics[t]++
		}
	}
	d.TopTopics = rankTopics(topics)
	return d, nil
}

func rankTopics(counts map[string]int) []TopicCount {
	out := make([]TopicCount, 0, len(counts))
	for topic, n := range counts {
		out = append(out, TopicCount{Topic: topic, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Topic < out[j].Topic
	})
	if len(out) > topTopicCount {
		out = out[:topTopicCount]
	}
	return out
}

// Title is the headline used for both the message and the email subject.
func (d Digest) Title() string {
	if d.Period == PeriodWeekly {
		return fmt.Sprintf("📈 Relatório Semanal - %s a %s", d.Start.Format("02/01"), d.End.Format("02/01"))
	}
	return fmt.Sprintf("📊 Relatório Diário - %s", d.Start.Format("02/01/2006"))
}

// Render formats the digest for the owner.
func Render(d Digest) string {
	var b strings.Builder
	b.WriteString(d.Title())
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "💬 Conversas ativas: %d (grupos: %d, privadas: %d)\n", d.Conversations, d.Groups, d.Private)
	fmt.Fprintf(&b, "✉️ Mensagens recebidas: %d\n", d.Messages)

	if len(d.ByEmotion) > 0 {
		fmt.Fprintf(&b, "😊 Humor: %s\n", joinCounts(d.ByEmotion))
	}
	if len(d.ByUrgency) > 0 {
		fmt.Fprintf(&b, "🚨 Urgência: %s\n", joinCounts(d.ByUrgency))
	}
	if len(d.TopTopics) > 0 {
		b.WriteString("\n🎯 Principais assuntos:\n")
		for _, t := range d.TopTopics {
			fmt.Fprintf(&b, "• %s (%d)\n", t.Topic, t.Count)
		}
	}
	if d.Conversations == 0 {
		b.WriteString("\nNenhuma conversa no período.\n")
	}
	return b.String()
}

// joinCounts renders "key n" pairs ordered by key.
func joinCounts[K ~string](m map[K]int) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s %d", k, m[K(k)]))
	}
	return strings.Join(parts, ", ")
}
