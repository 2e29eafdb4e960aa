package reports

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/heitor/internal/conversation"
	"github.com/wolfman30/heitor/internal/notify"
	"github.com/wolfman30/heitor/internal/observability/metrics"
	"github.com/wolfman30/heitor/pkg/logging"
)

var brt = time.FixedZone("BRT", -3*60*60)

func testLogger() *logging.Logger {
	return logging.NewWithWriter(io.Discard, "error")
}

type stubFinder struct {
	start, end time.Time
	convs      []*conversation.Conversation
	err        error
}

func (f *stubFinder) FindByActivityWindow(_ context.Context, start, end time.Time) ([]*conversation.Conversation, error) {
	f.start, f.end = start, end
	return f.convs, f.err
}

func TestReporter_DailyWindow(t *testing.T) {
	finder := &stubFinder{}
	r := NewReporter(finder, brt)

	// 01:30 UTC on the 11th is still the 10th in BRT.
	d, err := r.Daily(context.Background(), time.Date(2025, 3, 11, 1, 30, 0, 0, time.UTC))
	require.NoError(t, err)

	assert.Equal(t, PeriodDaily, d.Period)
	assert.True(t, finder.start.Equal(time.Date(2025, 3, 10, 0, 0, 0, 0, brt)))
	assert.True(t, finder.end.Equal(time.Date(2025, 3, 10, 23, 59, 59, 999999999, brt)))
	assert.Equal(t, "📊 Relatório Diário - 10/03/2025", d.Title())
}

func TestReporter_WeeklyStartsOnSunday(t *testing.T) {
	finder := &stubFinder{}
	r := NewReporter(finder, brt)

	d, err := r.Weekly(context.Background(), time.Date(2025, 3, 12, 15, 0, 0, 0, brt))
	require.NoError(t, err)

	assert.True(t, finder.start.Equal(time.Date(2025, 3, 9, 0, 0, 0, 0, brt)))
	assert.Equal(t, time.Sunday, finder.start.Weekday())
	assert.True(t, finder.end.Equal(time.Date(2025, 3, 15, 23, 59, 59, 999999999, brt)))
	assert.Equal(t, "📈 Relatório Semanal - 09/03 a 15/03", d.Title())

	// A Sunday reference is the first day of its own week.
	_, err = r.Weekly(context.Background(), time.Date(2025, 3, 16, 8, 0, 0, 0, brt))
	require.NoError(t, err)
	assert.True(t, finder.start.Equal(time.Date(2025, 3, 16, 0, 0, 0, 0, brt)))
}

func TestReporter_DaysAbutWithoutGap(t *testing.T) {
	lastTick := time.Date(2025, 3, 10, 23, 59, 59, 999_500_000, time.UTC)
	engine := conversation.NewEngine(conversation.NewMemoryStore(), testLogger(),
		conversation.WithClock(func() time.Time { return lastTick }),
	)
	ctx := context.Background()
	_, err := engine.Process(ctx, conversation.Message{From: "5511000000009", Body: "Oi"}, nil)
	require.NoError(t, err)

	r := NewReporter(engine, time.UTC)
	day, err := r.Daily(ctx, lastTick)
	require.NoError(t, err)
	assert.Equal(t, 1, day.Conversations)

	next, err := r.Daily(ctx, lastTick.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, 0, next.Conversations)
}

func TestReporter_FinderError(t *testing.T) {
	r := NewReporter(&stubFinder{err: conversation.ErrStorageUnavailable}, nil)
	_, err := r.Daily(context.Background(), time.Now())
	require.ErrorIs(t, err, conversation.ErrStorageUnavailable)
}

func TestReporter_AggregatesEngineConversations(t *testing.T) {
	clock := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	engine := conversation.NewEngine(conversation.NewMemoryStore(), testLogger(),
		conversation.WithClock(func() time.Time { return clock }),
	)
	ctx := context.Background()

	apply := func(msg conversation.Message) {
		t.Helper()
		_, err := engine.Process(ctx, msg, nil)
		require.NoError(t, err)
	}
	apply(conversation.Message{From: "5511000000001", Body: "Preciso de um banner urgente"})
	apply(conversation.Message{From: "5511000000001", Body: "pode ser azul"})
	apply(conversation.Message{From: "5511000000002", Body: "Quero uma arte pro insta"})
	apply(conversation.Message{From: "5511000000003", Body: "Bora fazer uma campanha", IsGroup: true, GroupID: "grupo-1"})

	clock = time.Date(2025, 3, 11, 12, 0, 0, 0, time.UTC)
	apply(conversation.Message{From: "5511000000004", Body: "Oi"})

	d, err := NewReporter(engine, time.UTC).Daily(ctx, time.Date(2025, 3, 10, 18, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	assert.Equal(t, 3, d.Conversations)
	assert.Equal(t, 1, d.Groups)
	assert.Equal(t, 2, d.Private)
	assert.Equal(t, 4, d.Messages)
	assert.Equal(t, 3, d.ByEmotion[conversation.EmotionNeutral]+d.ByEmotion[conversation.EmotionUrgent]+d.ByEmotion[conversation.EmotionPositive]+d.ByEmotion[conversation.EmotionNegative])
	require.NotEmpty(t, d.TopTopics)
	assert.Equal(t, 2, d.TopTopics[0].Count)
}

func TestRankTopics(t *testing.T) {
	got := rankTopics(map[string]int{"b": 2, "a": 2, "c": 5, "d": 1, "e": 1, "f": 1})
	assert.Equal(t, []TopicCount{{"c", 5}, {"a", 2}, {"b", 2}, {"d", 1}, {"e", 1}}, got)
}

func TestRender(t *testing.T) {
	d := Digest{
		Period:        PeriodDaily,
		Start:         time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
		Conversations: 3,
		Groups:        1,
		Private:       2,
		Messages:      7,
		ByEmotion:     map[conversation.EmotionalState]int{conversation.EmotionUrgent: 1, conversation.EmotionNeutral: 2},
		ByUrgency:     map[conversation.Urgency]int{conversation.UrgencyHigh: 1},
		TopTopics:     []TopicCount{{"Art creation", 2}},
	}

	want := "📊 Relatório Diário - 10/03/2025\n\n" +
		"💬 Conversas ativas: 3 (grupos: 1, privadas: 2)\n" +
		"✉️ Mensagens recebidas: 7\n" +
		"😊 Humor: neutral 2, urgent 1\n" +
		"🚨 Urgência: high 1\n" +
		"\n🎯 Principais assuntos:\n" +
		"• Art creation (2)\n"
	assert.Equal(t, want, Render(d))

	empty := Render(Digest{Period: PeriodWeekly, Start: d.Start, End: d.Start.AddDate(0, 0, 6)})
	assert.Contains(t, empty, "Nenhuma conversa no período.")
}

type recordingEmail struct {
	mu   sync.Mutex
	sent []notify.EmailMessage
	err  error
}

func (r *recordingEmail) Send(_ context.Context, msg notify.EmailMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, msg)
	return r.err
}

func TestScheduler_RunOnce(t *testing.T) {
	now := time.Date(2025, 3, 16, 18, 5, 0, 0, brt) // Sunday
	email := &recordingEmail{}
	reg := prometheus.NewRegistry()
	m := metrics.NewDispatchMetrics(reg)

	s := NewScheduler(NewReporter(&stubFinder{}, brt), email, "owner@example.com", 18, testLogger(),
		WithSchedulerClock(func() time.Time { return now }),
		WithDigestMetrics(m),
		WithRecipientName("Andrey"),
	)

	s.RunOnce(context.Background())
	require.Len(t, email.sent, 2)
	assert.Equal(t, "📊 Relatório Diário - 16/03/2025", email.sent[0].Subject)
	assert.Equal(t, PeriodDaily, email.sent[0].Kind)
	assert.Equal(t, "owner@example.com", email.sent[0].To)
	assert.Equal(t, "Andrey", email.sent[0].ToName)
	assert.Equal(t, "📈 Relatório Semanal - 16/03 a 22/03", email.sent[1].Subject)

	// Same day, same hour: nothing new.
	now = now.Add(30 * time.Minute)
	s.RunOnce(context.Background())
	assert.Len(t, email.sent, 2)

	// Monday, wrong hour.
	now = time.Date(2025, 3, 17, 9, 0, 0, 0, brt)
	s.RunOnce(context.Background())
	assert.Len(t, email.sent, 2)

	// Monday at the configured hour: daily only.
	now = time.Date(2025, 3, 17, 18, 0, 0, 0, brt)
	s.RunOnce(context.Background())
	require.Len(t, email.sent, 3)
	assert.Contains(t, email.sent[2].Subject, "Diário")

	count, err := testutil.GatherAndCount(reg, "heitor_reports_digests_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestScheduler_SendFailureIsNotRetriedSameDay(t *testing.T) {
	now := time.Date(2025, 3, 17, 18, 0, 0, 0, time.UTC)
	email := &recordingEmail{err: errors.New("smtp down")}
	s := NewScheduler(NewReporter(&stubFinder{}, time.UTC), email, "owner@example.com", 18, testLogger(),
		WithSchedulerClock(func() time.Time { return now }),
	)

	s.RunOnce(context.Background())
	s.RunOnce(context.Background())
	assert.Len(t, email.sent, 1)
}

func TestScheduler_StartStopsOnCancel(t *testing.T) {
	s := NewScheduler(NewReporter(&stubFinder{}, time.UTC), &recordingEmail{}, "owner@example.com", 3, testLogger(),
		WithCheckInterval(time.Millisecond),
	)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestNewScheduler_Panics(t *testing.T) {
	assert.Panics(t, func() { NewScheduler(nil, &recordingEmail{}, "", 0, nil) })
	assert.Panics(t, func() { NewScheduler(NewReporter(&stubFinder{}, nil), nil, "", 0, nil) })
}
