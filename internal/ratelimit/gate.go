// Package ratelimit implements the Rate Gate (spec.md §4.1): a
// process-singleton, total-ordering admission control in front of every
// outbound request to the upstream archive, with adaptive CAPTCHA cooldown
// and request-pattern jitter.
package ratelimit

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Outcome classifies the result of a request issued after Acquire, as
// reported back to the gate via Report.
type Outcome int

const (
	OutcomeOK Outcome = iota
	OutcomeCaptcha
	OutcomeTransportError
	OutcomeHTTP429
	OutcomeHTTPOther
)

// CooldownError is returned by Acquire when the global CAPTCHA cooldown is
// active; no HTTP request may be issued while this error is returned.
type CooldownError struct {
	BlockedUntil time.Time
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("ratelimit: global cooldown active until %s", e.BlockedUntil.Format(time.RFC3339))
}

const (
	baseCooldown       = time.Hour
	consecutiveWindow  = 2 * time.Hour
	maxCooldownMultBase = 4.0
)

type cooldownState struct {
	lastCaptchaAt       time.Time
	consecutiveCaptchas int
	multiplier          float64
}

func (c cooldownState) blockedUntil() time.Time {
	if c.lastCaptchaAt.IsZero() {
		return time.Time{}
	}
	mult := c.multiplier
	if mult == 0 {
		mult = 1.0
	}
	return c.lastCaptchaAt.Add(time.Duration(float64(baseCooldown) * mult))
}

// Gate is the process-singleton Rate Gate. All outbound HTTP in the engine
// is expected to share one Gate instance (spec.md §5's "process-singleton"
// requirement, satisfied here by explicit construction and sharing rather
// than the source's module-level singleton, per spec.md §9's guidance to
// replace singleton mutable state with an explicitly owned, passed value).
type Gate struct {
	mu sync.Mutex

	maxPerMinute int
	limiter      *rate.Limiter
	window       []time.Time

	cooldown cooldownState

	uaPicker *UserAgentPicker
	rng      *rand.Rand

	now   func() time.Time
	sleep func(context.Context, time.Duration) error

	log *logrus.Entry
}

// Config configures a Gate. Defaults follow spec.md §4.1.
type Config struct {
	MaxPerMinute int
	Logger       *logrus.Logger
}

// New constructs a Gate ready for use.
func New(cfg Config) *Gate {
	maxPerMinute := cfg.MaxPerMinute
	if maxPerMinute <= 0 {
		maxPerMinute = 12
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	minInterval := time.Minute / time.Duration(maxPerMinute)
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	return &Gate{
		maxPerMinute: maxPerMinute,
		limiter:      rate.NewLimiter(rate.Every(minInterval), 1),
		uaPicker:     NewUserAgentPicker(rng),
		rng:          rng,
		now:          time.Now,
		sleep:        sleepCtx,
		log:          logger.WithField("component", "ratelimit.Gate"),
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Acquire blocks the caller until a request may proceed without violating
// the global policy, per spec.md §4.1/§5. It holds the Gate's mutex for
// its entire duration (the "short critical section" spec.md describes,
// which never spans the caller's actual network I/O — that happens after
// Acquire returns) so that acquires are strictly totally ordered.
func (g *Gate) Acquire(ctx context.Context) (userAgent string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if blocked := g.cooldown.blockedUntil(); !blocked.IsZero() && g.now().Before(blocked) {
		return "", &CooldownError{BlockedUntil: blocked}
	}

	// Independent minimum inter-request delay with ±20% jitter, per
	// spec.md §4.1. rate.Limiter enforces the base cadence; we widen or
	// narrow the wait by up to 20% before honoring it so the pattern
	// doesn't read as perfectly periodic to upstream detection.
	jitterFactor := 0.8 + 0.4*g.rng.Float64() // in [0.8, 1.2)
	reservation := g.limiter.ReserveN(g.now(), 1)
	if !reservation.OK() {
		return "", fmt.Errorf("ratelimit: reservation could not be satisfied")
	}
	delay := time.Duration(float64(reservation.DelayFrom(g.now())) * jitterFactor)
	if delay > 0 {
		if err := g.sleep(ctx, delay); err != nil {
			reservation.Cancel()
			return "", err
		}
	}

	// Small additional jitter even on the fast path, per spec.md §4.1.
	extra := time.Duration(100+g.rng.Intn(700)) * time.Millisecond
	if err := g.sleep(ctx, extra); err != nil {
		return "", err
	}

	// Sliding 60s window enforcement (the literal testable invariant in
	// spec.md §8): evict stale entries, then wait out any overflow.
	for {
		now := g.now()
		g.pruneWindow(now)
		if len(g.window) < g.maxPerMinute {
			break
		}
		waitFor := g.window[0].Add(time.Minute).Sub(now)
		if waitFor <= 0 {
			continue
		}
		if err := g.sleep(ctx, waitFor); err != nil {
			return "", err
		}
	}

	now := g.now()
	g.window = append(g.window, now)
	return g.uaPicker.Next(), nil
}

func (g *Gate) pruneWindow(now time.Time) {
	cutoff := now.Add(-time.Minute)
	i := 0
	for ; i < len(g.window); i++ {
		if g.window[i].After(cutoff) {
			break
		}
	}
	g.window = g.window[i:]
}

// Report records the outcome of a request previously admitted by Acquire,
// per spec.md §4.1's captcha-handling algorithm.
func (g *Gate) Report(outcome Outcome) {
	if outcome != OutcomeCaptcha {
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if !g.cooldown.lastCaptchaAt.IsZero() && now.Sub(g.cooldown.lastCaptchaAt) < consecutiveWindow {
		g.cooldown.consecutiveCaptchas++
		mult := pow(1.5, g.cooldown.consecutiveCaptchas)
		if mult > maxCooldownMultBase {
			mult = maxCooldownMultBase
		}
		g.cooldown.multiplier = mult
	} else {
		g.cooldown.consecutiveCaptchas = 1
		g.cooldown.multiplier = 1.0
	}
	g.cooldown.lastCaptchaAt = now

	g.log.WithFields(logrus.Fields{
		"consecutive_captchas": g.cooldown.consecutiveCaptchas,
		"multiplier":           g.cooldown.multiplier,
		"blocked_until":        g.cooldown.blockedUntil(),
	}).Warn("global CAPTCHA cooldown triggered")
}

// Status exposes the current cooldown state for observability (the
// progress/statusapi consumers named in spec.md §9).
type Status struct {
	Blocked             bool
	BlockedUntil        time.Time
	ConsecutiveCaptchas int
	Multiplier          float64
}

// Status returns a snapshot of the current cooldown state.
func (g *Gate) Status() Status {
	g.mu.Lock()
	defer g.mu.Unlock()

	blockedUntil := g.cooldown.blockedUntil()
	return Status{
		Blocked:             !blockedUntil.IsZero() && g.now().Before(blockedUntil),
		BlockedUntil:        blockedUntil,
		ConsecutiveCaptchas: g.cooldown.consecutiveCaptchas,
		Multiplier:          g.cooldown.multiplier,
	}
}

func pow(base float64, exp int) float64 {
	result := 1.0
	for i := 0; i < exp; i++ {
		result *= base
	}
	return result
}
