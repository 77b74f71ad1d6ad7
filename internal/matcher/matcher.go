// Package matcher resolves an odds-feed event to its fixture-catalog counterpart.
package matcher

import (
	"context"
	"math"
	"time"

	"fixture-edge/internal/domain"
	"fixture-edge/internal/normalize"
	"fixture-edge/internal/similarity"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type timeBucket struct {
	maxHours float64
	score    float64
}

// Buckets are coarse on purpose: providers disagree on timezones and kickoff rounding.
var timeBuckets = []timeBucket{
	{6, 1.00},
	{12, 0.95},
	{24, 0.90},
	{36, 0.85},
	{48, 0.80},
	{60, 0.75},
}

const farTimeScore = 0.60

// TimeScore maps the absolute gap between two kickoff times to a proximity score.
func TimeScore(a, b time.Time) float64 {
	hours := math.Abs(a.Sub(b).Hours())
	for _, bk := range timeBuckets {
		if hours <= bk.maxHours {
			return bk.score
		}
	}
	return farTimeScore
}

type preparedEvent struct {
	home, away normalize.Name
	league     normalize.Name
	country    string
	start      time.Time
}

func prepare(e domain.RawEvent) preparedEvent {
	return preparedEvent{
		home:    normalize.Team(e.Home),
		away:    normalize.Team(e.Away),
		league:  normalize.League(e.League),
		country: normalize.Country(e.Country),
		start:   e.StartTime,
	}
}

// Score evaluates one candidate against an event. Both home/away orientations are
// always tried because providers do not agree on ordering.
func Score(e domain.RawEvent, c domain.CandidateFixture, cfg Config) domain.MatchScore {
	return score(prepare(e), c, cfg)
}

func score(p preparedEvent, c domain.CandidateFixture, cfg Config) domain.MatchScore {
	cHome, cAway := normalize.Team(c.Home), normalize.Team(c.Away)

	direct := (similarity.Compare(p.home, cHome) + similarity.Compare(p.away, cAway)) / 2
	swapped := (similarity.Compare(p.home, cAway) + similarity.Compare(p.away, cHome)) / 2

	s := domain.MatchScore{TeamSimilarity: direct, Alignment: domain.AlignmentDirect}
	if swapped > direct {
		s.TeamSimilarity = swapped
		s.Alignment = domain.AlignmentSwapped
	}

	s.TimeProximity = TimeScore(p.start, c.StartTime)
	s.LeagueAffinity = similarity.Compare(p.league, normalize.League(c.League))
	if p.country != "" && p.country == normalize.Country(c.Country) {
		s.CountryBonus = cfg.CountryBonus
	}

	s.Total = similarity.Clamp(
		cfg.WeightNames*s.TeamSimilarity+
			cfg.WeightTime*s.TimeProximity+
			cfg.WeightLeague*s.LeagueAffinity+
			s.CountryBonus,
		0, 1,
	)
	return s
}

// Resolve picks the best-scoring candidate and accepts it only if the team pair and
// the weighted total each clear their own threshold. A strong league/time score can
// never stand in for weak team evidence.
func Resolve(e domain.RawEvent, candidates []domain.CandidateFixture, cfg Config) (*domain.ResolvedMatch, domain.NoMatchReason) {
	if len(candidates) == 0 {
		return nil, domain.ReasonNoCandidates
	}

	p := prepare(e)
	bestIdx := -1
	var best domain.MatchScore
	var bestDelta time.Duration
	for i, c := range candidates {
		s := score(p, c, cfg)
		delta := absDuration(e.StartTime.Sub(c.StartTime))
		if bestIdx < 0 || s.Total > best.Total || (s.Total == best.Total && delta < bestDelta) {
			bestIdx, best, bestDelta = i, s, delta
		}
	}

	if best.TeamSimilarity < cfg.TeamMin {
		return nil, domain.ReasonBelowTeamThreshold
	}
	if best.Total < cfg.OverallMin {
		return nil, domain.ReasonBelowOverallThreshold
	}
	return &domain.ResolvedMatch{Fixture: candidates[bestIdx], Score: best}, domain.ReasonNone
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

// Matcher couples candidate retrieval with resolution for one event.
type Matcher struct {
	tracer trace.Tracer
	chain  *Chain
	cfg    Config
}

func New(tracer trace.Tracer, chain *Chain, cfg Config) *Matcher {
	return &Matcher{tracer: tracer, chain: chain, cfg: cfg}
}

// Match retrieves candidates through the strategy chain and resolves the event.
// A below-threshold outcome is reported as a NoMatchFound error carrying the reason code.
func (m *Matcher) Match(ctx context.Context, e domain.RawEvent) (*domain.ResolvedMatch, error) {
	ctx, span := m.tracer.Start(ctx, "matcher.match")
	defer span.End()

	if err := e.Validate(); err != nil {
		return nil, err
	}

	candidates, method, err := m.chain.Retrieve(ctx, e)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(
		attribute.String("event", e.Key()),
		attribute.String("strategy", method),
		attribute.Int("candidates", len(candidates)),
	)

	match, reason := Resolve(e, candidates, m.cfg)
	if match == nil {
		span.SetAttributes(attribute.String("no_match_reason", string(reason)))
		return nil, domain.Errorf(domain.KindNoMatch, string(reason), "event %s: %s", e.Key(), reason)
	}
	match.Method = method
	span.SetAttributes(
		attribute.String("fixture_id", match.Fixture.FixtureID),
		attribute.String("alignment", string(match.Score.Alignment)),
	)
	return match, nil
}
