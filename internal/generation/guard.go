package generation

import (
	"context"
	"errors"
	"iter"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"mpkai/internal/domain"
)

// GuardConfig throttles and trips a generator. Zero values disable the corresponding guard.
type GuardConfig struct {
	RequestsPerMinute int
	BreakerFailures   int
	BreakerCooldown   time.Duration
}

// Guard wraps a generator with a request rate limit and a circuit breaker.
// A stream counts as a breaker failure only when it ends with an error that
// is not caused by the caller cancelling it.
type Guard struct {
	next    domain.Generator
	limiter *rate.Limiter
	breaker *gobreaker.TwoStepCircuitBreaker
}

func NewGuard(next domain.Generator, cfg GuardConfig, log *zap.Logger) *Guard {
	g := &Guard{next: next}
	if cfg.RequestsPerMinute > 0 {
		g.limiter = rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60.0), max(1, cfg.RequestsPerMinute/10))
	}
	if cfg.BreakerFailures > 0 {
		failures := uint32(cfg.BreakerFailures)
		g.breaker = gobreaker.NewTwoStepCircuitBreaker(gobreaker.Settings{
			Name:    next.Name(),
			Timeout: cfg.BreakerCooldown,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= failures
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Warn("generation breaker state changed",
					zap.String("backend", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()),
				)
			},
		})
	}
	return g
}

func (g *Guard) Name() string { return g.next.Name() }

func (g *Guard) Generate(ctx context.Context, prompt string, params domain.GenerationParams) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		if g.limiter != nil {
			if err := g.limiter.Wait(ctx); err != nil {
				yield("", Failed(g.Name(), err))
				return
			}
		}
		done := func(bool) {}
		if g.breaker != nil {
			d, err := g.breaker.Allow()
			if err != nil {
				yield("", Failed(g.Name(), err))
				return
			}
			done = d
		}

		success := true
		for frag, err := range g.next.Generate(ctx, prompt, params) {
			if err != nil {
				success = errors.Is(ctx.Err(), context.Canceled)
				yield("", err)
				break
			}
			if !yield(frag, nil) {
				break
			}
		}
		done(success)
	}
}
