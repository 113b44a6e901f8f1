package mail

import (
	"context"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"
)

// BreakerConfig holds configuration for the circuit breaker.
type BreakerConfig struct {
	// Name identifies this breaker in logs.
	Name string

	// MaxRequests is the number of probes allowed in the half-open state.
	MaxRequests uint32

	// Interval clears the failure counts while closed. 0 never clears.
	Interval time.Duration

	// Timeout is how long the breaker stays open before probing again.
	Timeout time.Duration

	// FailureRatio trips the breaker once this share of requests fails.
	FailureRatio float64

	// MinRequests is the sample size needed before FailureRatio applies.
	MinRequests uint32
}

// DefaultBreakerConfig returns defaults suited to a mail relay.
func DefaultBreakerConfig(name string) BreakerConfig {
	return BreakerConfig{
		Name:         name,
		MaxRequests:  1,
		Interval:     60 * time.Second,
		Timeout:      30 * time.Second,
		FailureRatio: 0.5,
		MinRequests:  5,
	}
}

// ErrCircuitOpen is returned while the breaker rejects sends.
var ErrCircuitOpen = gobreaker.ErrOpenState

// BreakerMailer guards a Mailer with a circuit breaker.
type BreakerMailer struct {
	next    Mailer
	breaker *gobreaker.CircuitBreaker[struct{}]
}

// NewBreakerMailer wraps next. State changes are logged at WARN.
func NewBreakerMailer(next Mailer, cfg BreakerConfig, logger *slog.Logger) *BreakerMailer {
	if logger == nil {
		logger = slog.Default()
	}
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= cfg.FailureRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("mail circuit breaker state change",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
	}

	return &BreakerMailer{
		next:    next,
		breaker: gobreaker.NewCircuitBreaker[struct{}](settings),
	}
}

func (m *BreakerMailer) SendVerificationEmail(ctx context.Context, to, token string) error {
	return m.run(func() error { return m.next.SendVerificationEmail(ctx, to, token) })
}

func (m *BreakerMailer) SendPasswordResetEmail(ctx context.Context, to, token string) error {
	return m.run(func() error { return m.next.SendPasswordResetEmail(ctx, to, token) })
}

func (m *BreakerMailer) run(fn func() error) error {
	_, err := m.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// State returns the current breaker state.
func (m *BreakerMailer) State() gobreaker.State {
	return m.breaker.State()
}
