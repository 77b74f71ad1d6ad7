package matcher

import (
	"errors"
	"fmt"
)

// Config holds the resolution weights and the two acceptance thresholds.
type Config struct {
	WeightNames  float64 `yaml:"weight_names"`
	WeightTime   float64 `yaml:"weight_time"`
	WeightLeague float64 `yaml:"weight_league"`
	CountryBonus float64 `yaml:"weight_country"`

	// TeamMin gates the team-pair score on its own; OverallMin gates the weighted total.
	TeamMin    float64 `yaml:"team_min_similarity"`
	OverallMin float64 `yaml:"overall_min_score"`
}

func DefaultConfig() Config {
	return Config{
		WeightNames:  0.65,
		WeightTime:   0.20,
		WeightLeague: 0.15,
		CountryBonus: 0.05,
		TeamMin:      0.60,
		OverallMin:   0.75,
	}
}

func (c Config) Validate() error {
	var errs []error
	check := func(name string, v, lo, hi float64, loExclusive bool) {
		if v != v || v > hi || v < lo || (loExclusive && v == lo) {
			bound := "["
			if loExclusive {
				bound = "("
			}
			errs = append(errs, fmt.Errorf("%s=%v out of range %s%g, %g]", name, v, bound, lo, hi))
		}
	}
	check("weight_names", c.WeightNames, 0, 1, false)
	check("weight_time", c.WeightTime, 0, 1, false)
	check("weight_league", c.WeightLeague, 0, 1, false)
	check("weight_country", c.CountryBonus, 0, 1, false)
	check("team_min_similarity", c.TeamMin, 0, 1, true)
	check("overall_min_score", c.OverallMin, 0, 1, true)

	if sum := c.WeightNames + c.WeightTime + c.WeightLeague; sum > 1+1e-9 {
		errs = append(errs, fmt.Errorf("weights sum to %.4f, must not exceed 1", sum))
	}
	if c.WeightNames == 0 {
		errs = append(errs, errors.New("weight_names must be positive"))
	}
	return errors.Join(errs...)
}
