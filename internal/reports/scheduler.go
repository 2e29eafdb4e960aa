package reports

import (
	"context"
	"sync"
	"time"

	"github.com/wolfman30/heitor/internal/notify"
	"github.com/wolfman30/heitor/internal/observability/metrics"
	"github.com/wolfman30/heitor/pkg/logging"
)

const defaultCheckInterval = time.Minute

// Scheduler emails the daily digest at a fixed hour and the weekly digest on
// Sundays at the same hour.
type Scheduler struct {
	reporter *Reporter
	sender   notify.EmailSender
	to       string
	toName   string
	hour     int
	loc      *time.Location
	interval time.Duration
	now      func() time.Time
	metrics  *metrics.DispatchMetrics
	logger   *logging.Logger

	mu         sync.Mutex
	lastDaily  string
	lastWeekly string
}

type SchedulerOption func(*Scheduler)

func WithCheckInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

func WithSchedulerClock(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

func WithDigestMetrics(m *metrics.DispatchMetrics) SchedulerOption {
	return func(s *Scheduler) {
		s.metrics = m
	}
}

func WithRecipientName(name string) SchedulerOption {
	return func(s *Scheduler) {
		s.toName = name
	}
}

// NewScheduler builds a scheduler delivering to the owner address to.
func NewScheduler(reporter *Reporter, sender notify.EmailSender, to string, hour int, logger *logging.Logger, opts ...SchedulerOption) *Scheduler {
	if reporter == nil {
		panic("reports: reporter cannot be nil")
	}
	if sender == nil {
		panic("reports: email sender cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	s := &Scheduler{
		reporter: reporter,
		sender:   sender,
		to:       to,
		hour:     max(0, min(hour, 23)),
		loc:      reporter.loc,
		interval: defaultCheckInterval,
		now:      time.Now,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start runs the schedule. Blocks until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("starting digest scheduler",
		"hour", s.hour,
		"timezone", s.loc.String(),
		"interval", s.interval.String(),
	)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("digest scheduler shutting down")
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce sends whichever digests are due and not yet sent today.
func (s *Scheduler) RunOnce(ctx context.Context) {
	now := s.now().In(s.loc)
	if now.Hour() != s.hour {
		return
	}
	today := now.Format(time.DateOnly)

	if s.claim(&s.lastDaily, today) {
		s.deliver(ctx, PeriodDaily, now)
	}
	if now.Weekday() == time.Sunday && s.claim(&s.lastWeekly, today) {
		s.deliver(ctx, PeriodWeekly, now)
	}
}

func (s *Scheduler) claim(last *string, today string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if *last == today {
		return false
	}
	*last = today
	return true
}

func (s *Scheduler) deliver(ctx context.Context, period string, now time.Time) {
	var (
		d   Digest
		err error
	)
	if period == PeriodWeekly {
		d, err = s.reporter.Weekly(ctx, now)
	} else {
		d, err = s.reporter.Daily(ctx, now)
	}
	if err != nil {
		s.logger.Error("failed to build digest", "period", period, "error", err)
		s.metrics.ObserveDigest(period, "error")
		return
	}

	body := Render(d)
	err = s.sender.Send(ctx, notify.EmailMessage{
		To:      s.to,
		ToName:  s.toName,
		Subject: d.Title(),
		Body:    body,
		Kind:    period,
	})
	if err != nil {
		s.logger.Error("failed to send digest", "period", period, "error", err)
		s.metrics.ObserveDigest(period, "error")
		return
	}
	s.metrics.ObserveDigest(period, "sent")
	s.logger.Info("digest sent", "period", period, "conversations", d.Conversations)
}
