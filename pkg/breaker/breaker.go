package breaker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker/v2"
)

// Config holds circuit breaker settings.
type Config struct {
	// Name identifies the breaker in metrics and logs.
	Name string

	// MaxRequests allowed through while half-open. 0 means 1.
	MaxRequests uint32

	// Interval after which closed-state counts are cleared. 0 never clears.
	Interval time.Duration

	// Timeout is how long the breaker stays open before probing again.
	Timeout time.Duration

	// FailureRatio of failed to total requests that trips the breaker.
	FailureRatio float64

	// MinRequests before FailureRatio is evaluated.
	MinRequests uint32
}

// DefaultConfig returns the settings used for backing stores.
func DefaultConfig(name string) Config {
	return Config{
		Name:         name,
		MaxRequests:  1,
		Interval:     60 * time.Second,
		Timeout:      15 * time.Second,
		FailureRatio: 0.5,
		MinRequests:  5,
	}
}

var (
	// ErrOpen is returned without calling the wrapped function while the
	// breaker is open.
	ErrOpen = gobreaker.ErrOpenState
	// ErrTooManyRequests is returned while half-open once MaxRequests trial calls
	// are in flight.
	ErrTooManyRequests = gobreaker.ErrTooManyRequests
)

var (
	stateGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Current state of the circuit breaker (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	rejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_rejected_total",
			Help: "Calls rejected without being attempted because the breaker was open",
		},
		[]string{"name"},
	)
)

func init() {
	prometheus.MustRegister(stateGauge, rejectedTotal)
}

func stateValue(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

// Option customizes a Breaker.
type Option func(*gobreaker.Settings)

// WithIsSuccessful marks errors that should not count as failures, such as a
// lookup that found nothing.
func WithIsSuccessful(fn func(err error) bool) Option {
	return func(s *gobreaker.Settings) { s.IsSuccessful = fn }
}

// Breaker wraps gobreaker with logging and Prometheus state reporting.
type Breaker struct {
	name string
	cb   *gobreaker.CircuitBreaker[any]
}

// New creates a closed breaker.
func New(cfg Config, logger *slog.Logger, opts ...Option) *Breaker {
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
			stateGauge.WithLabelValues(name).Set(stateValue(to))
		},
	}
	for _, opt := range opts {
		opt(&settings)
	}

	stateGauge.WithLabelValues(cfg.Name).Set(0)

	return &Breaker{
		name: cfg.Name,
		cb:   gobreaker.NewCircuitBreaker[any](settings),
	}
}

// Do runs fn through the breaker.
func (b *Breaker) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	_, err := b.cb.Execute(func() (any, error) {
		return nil, fn(ctx)
	})
	b.countRejection(err)
	return err
}

// Execute runs fn through b and returns its value.
func Execute[T any](ctx context.Context, b *Breaker, fn func(ctx context.Context) (T, error)) (T, error) {
	v, err := b.cb.Execute(func() (any, error) {
		return fn(ctx)
	})
	b.countRejection(err)
	tv, _ := v.(T)
	return tv, err
}

func (b *Breaker) countRejection(err error) {
	if errors.Is(err, ErrOpen) || errors.Is(err, ErrTooManyRequests) {
		rejectedTotal.WithLabelValues(b.name).Inc()
	}
}

// IsRejection reports whether err came from the breaker rather than the
// wrapped call.
func IsRejection(err error) bool {
	return errors.Is(err, ErrOpen) || errors.Is(err, ErrTooManyRequests)
}

// State returns the current breaker state.
func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}

// Name returns the breaker name.
func (b *Breaker) Name() string {
	return b.name
}
