// Package humanoid paces keystrokes so typed text arrives with a human rhythm
// rather than as a single burst.
package humanoid

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/xkilldash9x/mailpilot/internal/config"
)

// Executor is the low-level capability the typist drives.
type Executor interface {
	// SendKeys types keys into the focused element.
	SendKeys(ctx context.Context, keys string) error
	Sleep(ctx context.Context, d time.Duration) error
}

// commonNgrams contains letter combinations typed faster than the base rhythm.
var commonNgrams = map[string]bool{
	"th": true, "he": true, "in": true, "er": true, "an": true, "re": true,
	"es": true, "on": true, "st": true, "nt": true,
	"the": true, "and": true, "ing": true, "ion": true, "tio": true,
}

const (
	ngramFactor2 = 0.8
	ngramFactor3 = 0.7
	// wordGapFactor stretches the pause before the first key of a new word.
	wordGapFactor = 1.6
)

// Typist sends text one rune at a time with jittered inter-key delays.
type Typist struct {
	executor Executor
	cfg      config.HumanoidConfig

	mu  sync.Mutex
	rng *rand.Rand
}

// NewTypist creates a Typist. A zero seed draws one from the clock.
func NewTypist(executor Executor, cfg config.HumanoidConfig) *Typist {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Typist{
		executor: executor,
		cfg:      cfg,
		rng:      rand.New(rand.NewSource(seed)),
	}
}

// Type sends text into the focused element, pausing roughly baseDelay
// between keys. With the humanoid model disabled every pause is exactly
// baseDelay.
func (t *Typist) Type(ctx context.Context, text string, baseDelay time.Duration) error {
	runes := []rune(text)
	for i, r := range runes {
		if err := ctx.Err(); err != nil {
			return err
		}
		if i > 0 {
			if err := t.executor.Sleep(ctx, t.keyPause(runes, i, baseDelay)); err != nil {
				return err
			}
		}
		if err := t.executor.SendKeys(ctx, string(r)); err != nil {
			return fmt.Errorf("humanoid: failed to send key %q: %w", r, err)
		}
	}
	return nil
}

// keyPause computes the inter-key delay before runes[index].
func (t *Typist) keyPause(runes []rune, index int, baseDelay time.Duration) time.Duration {
	if !t.cfg.Enabled || baseDelay <= 0 {
		return baseDelay
	}

	mean := float64(baseDelay)
	switch {
	case index > 1 && commonNgrams[strings.ToLower(string(runes[index-2:index+1]))]:
		mean *= ngramFactor3
	case commonNgrams[strings.ToLower(string(runes[index-1:index+1]))]:
		mean *= ngramFactor2
	case runes[index-1] == ' ':
		mean *= wordGapFactor
	}

	t.mu.Lock()
	randNorm := t.rng.NormFloat64()
	t.mu.Unlock()

	delay := randNorm*mean*t.cfg.KeyDelayJitter + mean
	return time.Duration(math.Round(math.Max(delay, float64(t.cfg.MinKeyDelay))))
}
