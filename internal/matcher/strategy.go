package matcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fixture-edge/internal/domain"
)

// FixtureSource is the fixtures catalog as seen by the retrieval strategies.
type FixtureSource interface {
	FixturesByTeam(ctx context.Context, team string, from, to time.Time) ([]domain.CandidateFixture, error)
	FixturesByDate(ctx context.Context, from, to time.Time) ([]domain.CandidateFixture, error)
	HeadToHead(ctx context.Context, home, away string) ([]domain.CandidateFixture, error)
}

// Strategy produces candidates for an event, or none.
type Strategy interface {
	Name() string
	Candidates(ctx context.Context, e domain.RawEvent) ([]domain.CandidateFixture, error)
}

const (
	StrategyTeamWindow = "team_window"
	StrategyDateScan   = "date_scan"
	StrategyHeadToHead = "head_to_head"
)

// TeamWindow looks up fixtures for the home team, then the away team, inside a
// window around the event's start.
type TeamWindow struct {
	Source FixtureSource
	Window time.Duration
}

func (s TeamWindow) Name() string { return StrategyTeamWindow }

func (s TeamWindow) Candidates(ctx context.Context, e domain.RawEvent) ([]domain.CandidateFixture, error) {
	from, to := window(e.StartTime, s.Window)
	var errs []error
	for _, team := range []string{e.Home, e.Away} {
		fixtures, err := s.Source.FixturesByTeam(ctx, team, from, to)
		if err != nil {
			errs = append(errs, fmt.Errorf("team %q: %w", team, err))
			continue
		}
		if len(fixtures) > 0 {
			return fixtures, nil
		}
	}
	return nil, errors.Join(errs...)
}

// DateScan scans every fixture in the window regardless of team.
type DateScan struct {
	Source FixtureSource
	Window time.Duration
}

func (s DateScan) Name() string { return StrategyDateScan }

func (s DateScan) Candidates(ctx context.Context, e domain.RawEvent) ([]domain.CandidateFixture, error) {
	from, to := window(e.StartTime, s.Window)
	return s.Source.FixturesByDate(ctx, from, to)
}

// HeadToHead asks the catalog for meetings between the two named teams.
type HeadToHead struct {
	Source FixtureSource
}

func (s HeadToHead) Name() string { return StrategyHeadToHead }

func (s HeadToHead) Candidates(ctx context.Context, e domain.RawEvent) ([]domain.CandidateFixture, error) {
	return s.Source.HeadToHead(ctx, e.Home, e.Away)
}

func window(start time.Time, w time.Duration) (time.Time, time.Time) {
	if w <= 0 {
		w = 24 * time.Hour
	}
	return start.Add(-w), start.Add(w)
}

// Chain tries strategies in order and returns the first non-empty result.
type Chain struct {
	strategies []Strategy
}

func NewChain(strategies ...Strategy) *Chain {
	return &Chain{strategies: strategies}
}

// DefaultChain is team window, then date scan, then head-to-head.
func DefaultChain(src FixtureSource, w time.Duration) *Chain {
	return NewChain(
		TeamWindow{Source: src, Window: w},
		DateScan{Source: src, Window: w},
		HeadToHead{Source: src},
	)
}

// Retrieve returns the candidates and the name of the strategy that produced them.
// A failing strategy does not stop the chain; if nothing is found and any strategy
// failed, the failures are returned as an UpstreamError.
func (c *Chain) Retrieve(ctx context.Context, e domain.RawEvent) ([]domain.CandidateFixture, string, error) {
	var errs []error
	for _, s := range c.strategies {
		if err := ctx.Err(); err != nil {
			return nil, "", domain.Wrap(domain.KindBudgetExceeded, "deadline", err)
		}
		fixtures, err := s.Candidates(ctx, e)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
		if len(fixtures) > 0 {
			return fixtures, s.Name(), nil
		}
	}
	if len(errs) > 0 {
		return nil, "", domain.Wrap(domain.KindUpstream, "candidate_lookup", errors.Join(errs...))
	}
	return nil, "", nil
}
