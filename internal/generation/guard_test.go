package generation

import (
	"context"
	"errors"
	"iter"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mpkai/internal/domain"
)

type scripted struct {
	fragments []string
	err       error
	calls     atomic.Int32
}

func (s *scripted) Name() string { return "scripted" }

func (s *scripted) Generate(_ context.Context, _ string, _ domain.GenerationParams) iter.Seq2[string, error] {
	s.calls.Add(1)
	return func(yield func(string, error) bool) {
		for _, f := range s.fragments {
			if !yield(f, nil) {
				return
			}
		}
		if s.err != nil {
			yield("", Failed("scripted", s.err))
		}
	}
}

func TestCollect(t *testing.T) {
	var seen []string
	text, err := Collect((&scripted{fragments: []string{"PT ", "MPK"}}).Generate(context.Background(), "", domain.GenerationParams{}),
		func(f string) { seen = append(seen, f) })
	require.NoError(t, err)
	assert.Equal(t, "PT MPK", text)
	assert.Equal(t, []string{"PT ", "MPK"}, seen)
}

func TestCollect_DiscardsPartialOnError(t *testing.T) {
	gen := &scripted{fragments: []string{"partial"}, err: context.DeadlineExceeded}
	text, err := Collect(gen.Generate(context.Background(), "", domain.GenerationParams{}), nil)
	assert.Empty(t, text)
	assert.ErrorIs(t, err, domain.ErrGenerationFailed)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestGuard_PassesThrough(t *testing.T) {
	g := NewGuard(&scripted{fragments: []string{"a", "b"}}, GuardConfig{RequestsPerMinute: 600, BreakerFailures: 2, BreakerCooldown: time.Minute}, zap.NewNop())
	text, err := Collect(g.Generate(context.Background(), "", domain.GenerationParams{}), nil)
	require.NoError(t, err)
	assert.Equal(t, "ab", text)
	assert.Equal(t, "scripted", g.Name())
}

func TestGuard_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	inner := &scripted{err: errors.New("backend down")}
	g := NewGuard(inner, GuardConfig{BreakerFailures: 2, BreakerCooldown: time.Minute}, zap.NewNop())

	for range 2 {
		_, err := Collect(g.Generate(context.Background(), "", domain.GenerationParams{}), nil)
		require.ErrorIs(t, err, domain.ErrGenerationFailed)
	}

	_, err := Collect(g.Generate(context.Background(), "", domain.GenerationParams{}), nil)
	assert.ErrorIs(t, err, domain.ErrGenerationFailed)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, int32(2), inner.calls.Load())
}

func TestGuard_CancelledStreamDoesNotTrip(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	inner := &scripted{err: context.Canceled}
	g := NewGuard(inner, GuardConfig{BreakerFailures: 1, BreakerCooldown: time.Minute}, zap.NewNop())

	for range 3 {
		_, err := Collect(g.Generate(ctx, "", domain.GenerationParams{}), nil)
		assert.ErrorIs(t, err, context.Canceled)
	}
	assert.Equal(t, int32(3), inner.calls.Load())
}

func TestGuard_EarlyStopCountsAsSuccess(t *testing.T) {
	inner := &scripted{fragments: []string{"a", "b", "c"}}
	g := NewGuard(inner, GuardConfig{BreakerFailures: 1, BreakerCooldown: time.Minute}, zap.NewNop())

	for range 2 {
		for range g.Generate(context.Background(), "", domain.GenerationParams{}) {
			break
		}
	}
	text, err := Collect(g.Generate(context.Background(), "", domain.GenerationParams{}), nil)
	require.NoError(t, err)
	assert.Equal(t, "abc", text)
}

func TestGuard_RateLimitRespectsContext(t *testing.T) {
	inner := &scripted{fragments: []string{"x"}}
	g := NewGuard(inner, GuardConfig{RequestsPerMinute: 1}, zap.NewNop())

	_, err := Collect(g.Generate(context.Background(), "", domain.GenerationParams{}), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = Collect(g.Generate(ctx, "", domain.GenerationParams{}), nil)
	assert.ErrorIs(t, err, domain.ErrGenerationFailed)
	assert.Equal(t, int32(1), inner.calls.Load())
}
