package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock lets tests advance time deterministically instead of sleeping.
type fakeClock struct {
	t time.Time
}

func (f *fakeClock) now() time.Time { return f.t }

func (f *fakeClock) sleep(_ context.Context, d time.Duration) error {
	f.t = f.t.Add(d)
	return nil
}

func newTestGate(t *testing.T, maxPerMinute int) (*Gate, *fakeClock) {
	t.Helper()
	g := New(Config{MaxPerMinute: maxPerMinute})
	fc := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	g.now = fc.now
	g.sleep = fc.sleep
	return g, fc
}

func TestAcquire_RespectsSlidingWindow(t *testing.T) {
	g, _ := newTestGate(t, 3)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		_, err := g.Acquire(ctx)
		require.NoError(t, err)
	}

	// every acquire must have been recorded, and at no point should the
	// window have exceeded maxPerMinute entries within any 60s span.
	require.LessOrEqual(t, len(g.window), g.maxPerMinute)
}

func TestAcquire_BlockedDuringCooldown(t *testing.T) {
	g, fc := newTestGate(t, 12)
	ctx := context.Background()

	g.Report(OutcomeCaptcha)
	_, err := g.Acquire(ctx)
	require.Error(t, err)

	var cooldownErr *CooldownError
	require.ErrorAs(t, err, &cooldownErr)

	// advance past the cooldown window; now acquire should succeed.
	fc.t = cooldownErr.BlockedUntil.Add(time.Second)
	_, err = g.Acquire(ctx)
	require.NoError(t, err)
}

func TestReport_EscalatesMultiplierForConsecutiveCaptchas(t *testing.T) {
	g, fc := newTestGate(t, 12)

	g.Report(OutcomeCaptcha)
	assert.Equal(t, 1, g.cooldown.consecutiveCaptchas)
	assert.InDelta(t, 1.0, g.cooldown.multiplier, 0.001)

	fc.t = fc.t.Add(10 * time.Minute)
	g.Report(OutcomeCaptcha)
	assert.Equal(t, 2, g.cooldown.consecutiveCaptchas)
	assert.InDelta(t, 2.25, g.cooldown.multiplier, 0.001)

	fc.t = fc.t.Add(10 * time.Minute)
	g.Report(OutcomeCaptcha)
	assert.Equal(t, 3, g.cooldown.consecutiveCaptchas)
	assert.InDelta(t, 3.375, g.cooldown.multiplier, 0.001)

	// a fourth consecutive captcha would exceed 4.0 (1.5^4 = 5.0625) and
	// must clamp.
	fc.t = fc.t.Add(10 * time.Minute)
	g.Report(OutcomeCaptcha)
	assert.InDelta(t, 4.0, g.cooldown.multiplier, 0.001)
}

func TestReport_ResetsConsecutiveAfterTwoHours(t *testing.T) {
	g, fc := newTestGate(t, 12)

	g.Report(OutcomeCaptcha)
	fc.t = fc.t.Add(3 * time.Hour)
	g.Report(OutcomeCaptcha)

	assert.Equal(t, 1, g.cooldown.consecutiveCaptchas)
	assert.InDelta(t, 1.0, g.cooldown.multiplier, 0.001)
}

func TestReport_NonCaptchaOutcomesDoNotTriggerCooldown(t *testing.T) {
	g, _ := newTestGate(t, 12)
	g.Report(OutcomeTransportError)
	g.Report(OutcomeHTTP429)
	g.Report(OutcomeOK)

	status := g.Status()
	assert.False(t, status.Blocked)
}
