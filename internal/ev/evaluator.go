// Package ev grades an estimated win probability against a market price.
package ev

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fixture-edge/internal/domain"
	"fixture-edge/internal/market"

	"github.com/shopspring/decimal"
)

const (
	ReasonInvalidPrice     = "invalid_price"
	ReasonProbabilityRange = "probability_out_of_range"
	ReasonGapExceeded      = "probability_gap_exceeded"
)

var hundred = decimal.NewFromInt(100)

var tierOrder = []domain.Tier{
	domain.TierFree,
	domain.TierCompetitive,
	domain.TierAdvanced,
	domain.TierElite,
	domain.TierUltraElite,
}

type Config struct {
	MinProbabilityPct float64 `yaml:"min_probability_pct"`
	MaxProbabilityPct float64 `yaml:"max_probability_pct"`
	MaxGapPct         float64 `yaml:"max_probability_gap_pct"`
	// TierBoundaries are the inclusive lower bounds of free, competitive,
	// advanced, elite and ultra-elite. Anything below the first is discarded.
	TierBoundaries []float64     `yaml:"ev_tier_boundaries"`
	CooldownWindow time.Duration `yaml:"cooldown_window"`
}

func DefaultConfig() Config {
	return Config{
		MinProbabilityPct: 5,
		MaxProbabilityPct: 85,
		MaxGapPct:         15,
		TierBoundaries:    []float64{10, 15, 20, 30, 40},
		CooldownWindow:    6 * time.Hour,
	}
}

func (c Config) Validate() error {
	var errs []error
	if !(c.MinProbabilityPct >= 0 && c.MinProbabilityPct < c.MaxProbabilityPct && c.MaxProbabilityPct <= 100) {
		errs = append(errs, fmt.Errorf("probability range [%v, %v] must satisfy 0 <= min < max <= 100", c.MinProbabilityPct, c.MaxProbabilityPct))
	}
	if !(c.MaxGapPct > 0 && c.MaxGapPct <= 100) {
		errs = append(errs, fmt.Errorf("max_probability_gap_pct=%v must be in (0, 100]", c.MaxGapPct))
	}
	if len(c.TierBoundaries) != len(tierOrder) {
		errs = append(errs, fmt.Errorf("ev_tier_boundaries needs %d values, got %d", len(tierOrder), len(c.TierBoundaries)))
	} else {
		for i := 1; i < len(c.TierBoundaries); i++ {
			if c.TierBoundaries[i] <= c.TierBoundaries[i-1] {
				errs = append(errs, fmt.Errorf("ev_tier_boundaries must be strictly increasing: %v", c.TierBoundaries))
				break
			}
		}
	}
	if c.CooldownWindow <= 0 {
		errs = append(errs, errors.New("cooldown window must be positive"))
	}
	return errors.Join(errs...)
}

// Percent returns (p/100 * price - 1) * 100 computed exactly.
func Percent(probabilityPct, price float64) decimal.Decimal {
	p := decimal.NewFromFloat(probabilityPct)
	return p.Mul(decimal.NewFromFloat(price)).Sub(hundred)
}

// Tier places an EV percentage into its band. Bounds are inclusive at the bottom.
func (c Config) Tier(evPct decimal.Decimal) domain.Tier {
	tier := domain.TierDiscard
	for i, bound := range c.TierBoundaries {
		if i >= len(tierOrder) {
			break
		}
		if evPct.GreaterThanOrEqual(decimal.NewFromFloat(bound)) {
			tier = tierOrder[i]
		}
	}
	return tier
}

// Cooldown claims a key for a period. Acquire reports false if the key is already held.
type Cooldown interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

type Evaluator struct {
	cfg      Config
	cooldown Cooldown
}

func New(cfg Config, cooldown Cooldown) *Evaluator {
	return &Evaluator{cfg: cfg, cooldown: cooldown}
}

func (e *Evaluator) Config() Config { return e.cfg }

// Evaluate validates the inputs and grades the edge. A failed gate returns a
// ValidationFailure naming the gate and no assessment.
func (e *Evaluator) Evaluate(probabilityPct, price float64) (domain.EVAssessment, error) {
	if !market.ValidPrice(price) {
		return domain.EVAssessment{}, domain.Errorf(domain.KindValidation, ReasonInvalidPrice, "price %v is not valid decimal odds", price)
	}
	if probabilityPct != probabilityPct || probabilityPct < e.cfg.MinProbabilityPct || probabilityPct > e.cfg.MaxProbabilityPct {
		return domain.EVAssessment{}, domain.Errorf(domain.KindValidation, ReasonProbabilityRange,
			"probability %v%% outside [%v, %v]", probabilityPct, e.cfg.MinProbabilityPct, e.cfg.MaxProbabilityPct)
	}

	implied, err := market.ImpliedProbability(price)
	if err != nil {
		return domain.EVAssessment{}, domain.Wrap(domain.KindValidation, ReasonInvalidPrice, err)
	}
	impliedPct := decimal.NewFromFloat(implied).Mul(hundred)
	gap := decimal.NewFromFloat(probabilityPct).Sub(impliedPct).Abs()
	if gap.GreaterThan(decimal.NewFromFloat(e.cfg.MaxGapPct)) {
		return domain.EVAssessment{}, domain.Errorf(domain.KindValidation, ReasonGapExceeded,
			"probability %v%% is %s points from implied %s%%", probabilityPct, gap.StringFixed(2), impliedPct.StringFixed(2))
	}

	evPct := Percent(probabilityPct, price)
	return domain.EVAssessment{
		ProbabilityPct:        probabilityPct,
		SelectedPrice:         price,
		ImpliedProbabilityPct: impliedPct.Round(4).InexactFloat64(),
		EVPct:                 evPct.Round(4).InexactFloat64(),
		Tier:                  e.cfg.Tier(evPct),
	}, nil
}

// CooldownKey identifies a fixture selection within one cooldown bucket.
func CooldownKey(fixtureID, selection string, at time.Time, window time.Duration) string {
	return fmt.Sprintf("ev:cooldown:%s:%s:%d", fixtureID, selection, Bucket(at, window).Unix())
}

// Bucket returns the start of the cooldown bucket containing at.
func Bucket(at time.Time, window time.Duration) time.Time {
	if window <= 0 {
		return at.UTC()
	}
	return at.UTC().Truncate(window)
}

// EvaluateOnce grades the selection and then claims its cooldown. A rejected
// evaluation leaves the slot free. The bool is false when the selection was
// already graded inside the current bucket.
func (e *Evaluator) EvaluateOnce(ctx context.Context, fixtureID, selection string, at time.Time, probabilityPct, price float64) (domain.EVAssessment, bool, error) {
	a, err := e.Evaluate(probabilityPct, price)
	if err != nil {
		return domain.EVAssessment{}, false, err
	}
	if e.cooldown != nil {
		key := CooldownKey(fixtureID, selection, at, e.cfg.CooldownWindow)
		ok, err := e.cooldown.Acquire(ctx, key, e.cfg.CooldownWindow)
		if err != nil {
			return domain.EVAssessment{}, false, domain.Wrap(domain.KindUpstream, "cooldown_store", err)
		}
		if !ok {
			return domain.EVAssessment{}, false, nil
		}
	}
	return a, true, nil
}
