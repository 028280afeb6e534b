package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// GuardConfig configures rate limiting and circuit breaking around a Client.
type GuardConfig struct {
	// RequestsPerSecond <= 0 disables rate limiting.
	RequestsPerSecond float64
	Burst             int
	// FailureThreshold is the number of consecutive failures that opens the breaker.
	FailureThreshold uint32
	// OpenTimeout is how long the breaker stays open before probing again.
	OpenTimeout time.Duration
}

// DefaultGuardConfig returns conservative limits for interactive use.
func DefaultGuardConfig() GuardConfig {
	return GuardConfig{
		RequestsPerSecond: 2,
		Burst:             4,
		FailureThreshold:  3,
		OpenTimeout:       30 * time.Second,
	}
}

// Guarded wraps a Client with a token-bucket limiter and a circuit breaker.
type Guarded struct {
	next    Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
}

// NewGuarded wraps next. Breaker state changes are logged to logger.
func NewGuarded(next Client, cfg GuardConfig, logger *logrus.Logger) *Guarded {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	threshold := cfg.FailureThreshold
	if threshold == 0 {
		threshold = 3
	}

	settings := gobreaker.Settings{
		Name:        fmt.Sprintf("llm-%s", next.Provider()),
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		// A rejected key or malformed request says nothing about provider health.
		IsSuccessful: func(err error) bool {
			return err == nil || IsClientError(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("LLM circuit breaker state changed")
		},
	}

	return &Guarded{
		next:    next,
		limiter: rate.NewLimiter(limit, burst),
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

// Complete waits for a rate-limit token, then calls the wrapped client
// through the breaker. An open breaker fails fast with gobreaker.ErrOpenState.
func (g *Guarded) Complete(ctx context.Context, messages []Message, opts Options) (*Response, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	out, err := g.breaker.Execute(func() (interface{}, error) {
		return g.next.Complete(ctx, messages, opts)
	})
	if err != nil {
		return nil, err
	}
	return out.(*Response), nil
}

// Provider returns the wrapped provider.
func (g *Guarded) Provider() Provider {
	return g.next.Provider()
}

// Model returns the wrapped model.
func (g *Guarded) Model() string {
	return g.next.Model()
}

// State reports the breaker state.
func (g *Guarded) State() gobreaker.State {
	return g.breaker.State()
}
