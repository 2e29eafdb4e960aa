package assistant

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"github.com/wolfman30/heitor/pkg/logging"
)

// ErrCompleterUnavailable is returned while the breaker is open.
var ErrCompleterUnavailable = errors.New("assistant: language model temporarily unavailable")

// BreakerSettings tunes when the breaker opens and how long it stays open.
type BreakerSettings struct {
	Name             string
	MinRequests      uint32
	FailureThreshold float64
	Interval         time.Duration
	OpenTimeout      time.Duration
	HalfOpenRequests uint32
}

// DefaultBreakerSettings opens after half of at least five calls in a minute
// fail, and tries again after thirty seconds.
func DefaultBreakerSettings(name string) BreakerSettings {
	return BreakerSettings{
		Name:             name,
		MinRequests:      5,
		FailureThreshold: 0.5,
		Interval:         time.Minute,
		OpenTimeout:      30 * time.Second,
		HalfOpenRequests: 1,
	}
}

// BreakerCompleter stops calling a failing provider for a while so replies
// fall back immediately instead of waiting on timeouts.
type BreakerCompleter struct {
	inner Completer
	cb    *gobreaker.CircuitBreaker
}

func NewBreakerCompleter(inner Completer, settings BreakerSettings, logger *logging.Logger) *BreakerCompleter {
	if inner == nil {
		panic("assistant: breaker needs a completer")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if settings.Name == "" {
		settings.Name = "completer"
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        settings.Name,
		MaxRequests: settings.HalfOpenRequests,
		Interval:    settings.Interval,
		Timeout:     settings.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < settings.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= settings.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("completer breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return &BreakerCompleter{inner: inner, cb: cb}
}

func (b *BreakerCompleter) Complete(ctx context.Context, req Request) (Completion, error) {
	out, err := b.cb.Execute(func() (interface{}, error) {
		return b.inner.Complete(ctx, req)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return Completion{}, fmt.Errorf("%w: %v", ErrCompleterUnavailable, err)
	}
	if err != nil {
		return Completion{}, err
	}
	return out.(Completion), nil
}

// State reports the breaker state, mostly for tests and health output.
func (b *BreakerCompleter) State() string {
	return b.cb.State().String()
}

var _ Completer = (*BreakerCompleter)(nil)
