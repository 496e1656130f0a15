package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/coder/quartz"

	"github.com/useembed/useembed/internal/chat"
)

const (
	DefaultMaxRetries = 3
	DefaultRetryDelay = time.Second
)

// Orchestrator runs a generation pass against a primary provider and, once its
// retries are exhausted, an optional fallback.
type Orchestrator struct {
	primary    chat.Provider
	fallback   chat.Provider
	maxRetries int
	retryDelay time.Duration
	clock      quartz.Clock
	metrics    *Metrics
	logger     *slog.Logger
}

type Option func(*Orchestrator)

func WithClock(clock quartz.Clock) Option {
	return func(o *Orchestrator) { o.clock = clock }
}

func WithMetrics(m *Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

func New(log *slog.Logger, primary, fallback chat.Provider, maxRetries int, retryDelay time.Duration, opts ...Option) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	if retryDelay <= 0 {
		retryDelay = DefaultRetryDelay
	}
	o := &Orchestrator{
		primary:    primary,
		fallback:   fallback,
		maxRetries: maxRetries,
		retryDelay: retryDelay,
		clock:      quartz.NewReal(),
		logger:     log.With(slog.String("service", "generation")),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Generate returns the first successful result. Every error is retried.
func (o *Orchestrator) Generate(ctx context.Context, messages []chat.Message, opts chat.Options) (chat.Result, error) {
	res, err := o.run(ctx, o.primary, messages, opts)
	if err == nil {
		return res, nil
	}
	if o.fallback == nil || ctx.Err() != nil {
		return chat.Result{}, err
	}
	o.logger.Warn("primary provider exhausted, switching to fallback",
		slog.String("primary", o.primary.Name()),
		slog.String("fallback", o.fallback.Name()),
		slog.Any("error", err),
	)
	return o.run(ctx, o.fallback, messages, opts)
}

func (o *Orchestrator) run(ctx context.Context, p chat.Provider, messages []chat.Message, opts chat.Options) (chat.Result, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = o.retryDelay
	policy.RandomizationFactor = 0
	policy.Multiplier = 2
	policy.MaxInterval = o.retryDelay << o.maxRetries
	policy.MaxElapsedTime = 0
	policy.Reset()

	var lastErr error
	for attempt := 1; attempt <= o.maxRetries; attempt++ {
		start := o.clock.Now()
		res, err := p.Generate(ctx, messages, opts)
		o.metrics.observe(p.Name(), o.clock.Since(start).Seconds(), err)
		if err == nil {
			return res, nil
		}
		lastErr = err
		o.logger.Warn("generation attempt failed",
			slog.String("provider", p.Name()),
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", o.maxRetries),
			slog.Any("error", err),
		)
		if ctx.Err() != nil {
			return chat.Result{}, ctx.Err()
		}
		if attempt == o.maxRetries {
			break
		}
		if err := o.sleep(ctx, policy.NextBackOff()); err != nil {
			return chat.Result{}, err
		}
	}
	return chat.Result{}, fmt.Errorf("%s: %w", p.Name(), lastErr)
}

func (o *Orchestrator) sleep(ctx context.Context, d time.Duration) error {
	if d == backoff.Stop {
		return errors.New("retry policy stopped")
	}
	timer := o.clock.NewTimer(d, "generation", "retry")
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
