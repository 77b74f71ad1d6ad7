package ev

import (
	"context"
	"errors"
	"testing"
	"time"

	"fixture-edge/internal/domain"

	"github.com/shopspring/decimal"
)

func TestPercent(t *testing.T) {
	tests := []struct {
		p, price float64
		want     string
	}{
		{50, 2.0, "0"},
		{60, 2.0, "20"},
		{55, 2.0, "10"},
		{40, 2.1, "-16"},
		{33.3, 3.3, "9.89"},
	}
	for _, tt := range tests {
		if got := Percent(tt.p, tt.price); !got.Equal(decimal.RequireFromString(tt.want)) {
			t.Fatalf("Percent(%v, %v) = %s, want %s", tt.p, tt.price, got, tt.want)
		}
	}
}

func TestTierBoundaries(t *testing.T) {
	cfg := DefaultConfig()
	tests := []struct {
		ev   float64
		want domain.Tier
	}{
		{-5, domain.TierDiscard},
		{9.9, domain.TierDiscard},
		{10.0, domain.TierFree},
		{14.99, domain.TierFree},
		{15, domain.TierCompetitive},
		{20, domain.TierAdvanced},
		{29.9999, domain.TierAdvanced},
		{30, domain.TierElite},
		{39.9, domain.TierElite},
		{40, domain.TierUltraElite},
		{120, domain.TierUltraElite},
	}
	for _, tt := range tests {
		if got := cfg.Tier(decimal.NewFromFloat(tt.ev)); got != tt.want {
			t.Fatalf("Tier(%v) = %s, want %s", tt.ev, got, tt.want)
		}
	}
}

func TestEvaluate(t *testing.T) {
	e := New(DefaultConfig(), nil)

	a, err := e.Evaluate(60, 2.0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.EVPct != 20 || a.Tier != domain.TierAdvanced || a.ImpliedProbabilityPct != 50 {
		t.Fatalf("unexpected assessment %+v", a)
	}

	a, err = e.Evaluate(50, 2.0)
	if err != nil || a.EVPct != 0 || a.Tier != domain.TierDiscard {
		t.Fatalf("expected zero-edge discard, got %+v %v", a, err)
	}

	a, err = e.Evaluate(55, 2.0)
	if err != nil || a.EVPct != 10 || a.Tier != domain.TierFree {
		t.Fatalf("expected free tier at exactly 10, got %+v %v", a, err)
	}
}

func TestEvaluateGates(t *testing.T) {
	e := New(DefaultConfig(), nil)
	tests := []struct {
		name   string
		p      float64
		price  float64
		reason string
	}{
		{"price of one", 50, 1.0, ReasonInvalidPrice},
		{"price below one", 50, 0.5, ReasonInvalidPrice},
		{"probability too low", 4.9, 30, ReasonProbabilityRange},
		{"probability too high", 85.1, 1.2, ReasonProbabilityRange},
		{"gap too wide", 70, 2.0, ReasonGapExceeded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Evaluate(tt.p, tt.price)
			if !errors.Is(err, domain.ErrValidation) {
				t.Fatalf("expected validation failure, got %v", err)
			}
			if domain.ReasonOf(err) != tt.reason {
				t.Fatalf("expected reason %s, got %s", tt.reason, domain.ReasonOf(err))
			}
		})
	}

	if _, err := e.Evaluate(65, 2.0); err != nil {
		t.Fatalf("gap of exactly 15 should pass: %v", err)
	}
	if _, err := e.Evaluate(5, 25); err != nil {
		t.Fatalf("lower probability bound is inclusive: %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default should be valid: %v", err)
	}
	bad := DefaultConfig()
	bad.TierBoundaries = []float64{10, 15, 15, 30, 40}
	if err := bad.Validate(); err == nil {
		t.Fatal("expected non-increasing boundaries to fail")
	}
	bad = DefaultConfig()
	bad.MaxGapPct = 0
	if err := bad.Validate(); err == nil {
		t.Fatal("expected zero gap to fail")
	}
	bad = DefaultConfig()
	bad.TierBoundaries = []float64{10}
	if err := bad.Validate(); err == nil {
		t.Fatal("expected short boundary list to fail")
	}
}

type memoryCooldown struct {
	held map[string]time.Duration
	err  error
}

func (m *memoryCooldown) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	if _, ok := m.held[key]; ok {
		return false, nil
	}
	m.held[key] = ttl
	return true, nil
}

func TestEvaluateOnceDeduplicatesWithinBucket(t *testing.T) {
	cd := &memoryCooldown{held: map[string]time.Duration{}}
	e := New(DefaultConfig(), cd)
	at := time.Date(2025, 4, 20, 13, 10, 0, 0, time.UTC)

	_, fresh, err := e.EvaluateOnce(context.Background(), "fx1", "h2h:home", at, 60, 2.0)
	if err != nil || !fresh {
		t.Fatalf("first evaluation should run: %v %v", fresh, err)
	}
	_, fresh, err = e.EvaluateOnce(context.Background(), "fx1", "h2h:home", at.Add(time.Hour), 60, 2.0)
	if err != nil || fresh {
		t.Fatalf("second evaluation in the same bucket should be skipped: %v %v", fresh, err)
	}
	_, fresh, _ = e.EvaluateOnce(context.Background(), "fx1", "h2h:away", at, 40, 3.0)
	if !fresh {
		t.Fatal("a different selection has its own cooldown")
	}
	_, fresh, _ = e.EvaluateOnce(context.Background(), "fx1", "h2h:home", at.Add(6*time.Hour), 60, 2.0)
	if !fresh {
		t.Fatal("the next bucket should evaluate again")
	}
	for _, ttl := range cd.held {
		if ttl != 6*time.Hour {
			t.Fatalf("unexpected ttl %v", ttl)
		}
	}
}

func TestEvaluateOnceStoreFailure(t *testing.T) {
	e := New(DefaultConfig(), &memoryCooldown{err: errors.New("redis down")})
	_, _, err := e.EvaluateOnce(context.Background(), "fx1", "h2h:home", time.Now(), 60, 2.0)
	if !errors.Is(err, domain.ErrUpstream) {
		t.Fatalf("expected upstream error, got %v", err)
	}
}

func TestEvaluateOnceRejectionKeepsSlotFree(t *testing.T) {
	cd := &memoryCooldown{held: map[string]time.Duration{}}
	e := New(DefaultConfig(), cd)
	at := time.Date(2025, 4, 20, 13, 10, 0, 0, time.UTC)

	_, fresh, err := e.EvaluateOnce(context.Background(), "fx1", "h2h:home", at, 99, 2.0)
	if !errors.Is(err, &domain.Error{Kind: domain.KindValidation, Reason: ReasonProbabilityRange}) || fresh {
		t.Fatalf("expected a range rejection, got fresh=%v err=%v", fresh, err)
	}
	if len(cd.held) != 0 {
		t.Fatalf("a rejected evaluation must not hold the cooldown, held %v", cd.held)
	}

	a, fresh, err := e.EvaluateOnce(context.Background(), "fx1", "h2h:home", at, 60, 2.0)
	if err != nil || !fresh {
		t.Fatalf("a valid estimate after a rejection should be graded: fresh=%v err=%v", fresh, err)
	}
	if a.EVPct != 20 {
		t.Fatalf("expected ev 20%%, got %v", a.EVPct)
	}
}

func TestCooldownKey(t *testing.T) {
	at := time.Date(2025, 4, 20, 13, 10, 0, 0, time.UTC)
	got := CooldownKey("fx1", "h2h:home", at, 6*time.Hour)
	want := "ev:cooldown:fx1:h2h:home:1745150400"
	if got != want {
		t.Fatalf("got %s want %s", got, want)
	}
}
