package domain

import (
	"fmt"
	"strings"
	"time"
)

// RawEvent is one event as published by the odds feed. It lives for a single cycle.
type RawEvent struct {
	ProviderID string        `json:"provider_id"`
	Sport      string        `json:"sport"`
	Home       string        `json:"home"`
	Away       string        `json:"away"`
	League     string        `json:"league"`
	Country    string        `json:"country,omitempty"`
	StartTime  time.Time     `json:"start_time"`
	Quotes     []MarketQuote `json:"quotes,omitempty"`
}

// Key identifies the event for logging and failure reports.
func (e RawEvent) Key() string {
	if e.ProviderID != "" {
		return e.ProviderID
	}
	return fmt.Sprintf("%s|%s|%s", strings.TrimSpace(e.Home), strings.TrimSpace(e.Away), e.StartTime.UTC().Format(time.RFC3339))
}

// Validate reports missing identity fields as an InputError.
func (e RawEvent) Validate() error {
	switch {
	case strings.TrimSpace(e.Home) == "":
		return Errorf(KindInput, "missing_home", "event %s has no home team", e.Key())
	case strings.TrimSpace(e.Away) == "":
		return Errorf(KindInput, "missing_away", "event %s has no away team", e.Key())
	case e.StartTime.IsZero():
		return Errorf(KindInput, "missing_start_time", "event %s has no start time", e.Key())
	}
	return nil
}

// CandidateFixture is a fixture-catalog record that may correspond to a RawEvent.
type CandidateFixture struct {
	FixtureID string    `json:"fixture_id"`
	Home      string    `json:"home"`
	Away      string    `json:"away"`
	League    string    `json:"league"`
	Country   string    `json:"country,omitempty"`
	StartTime time.Time `json:"start_time"`
}

type Alignment string

const (
	AlignmentDirect  Alignment = "direct"
	AlignmentSwapped Alignment = "swapped"
)

// MatchScore breaks down how a candidate scored against an event. Total is in [0,1].
type MatchScore struct {
	TeamSimilarity float64   `json:"team_similarity"`
	TimeProximity  float64   `json:"time_proximity"`
	LeagueAffinity float64   `json:"league_affinity"`
	CountryBonus   float64   `json:"country_bonus"`
	Alignment      Alignment `json:"alignment"`
	Total          float64   `json:"total"`
}

type NoMatchReason string

const (
	ReasonNone                  NoMatchReason = ""
	ReasonNoCandidates          NoMatchReason = "no_candidates"
	ReasonBelowTeamThreshold    NoMatchReason = "below_team_threshold"
	ReasonBelowOverallThreshold NoMatchReason = "below_overall_threshold"
)

type ResolvedMatch struct {
	Fixture CandidateFixture `json:"fixture"`
	Score   MatchScore       `json:"score"`
	Method  string           `json:"method"`
}

// MarketQuote is one bookmaker price. Point is nil for markets without a line.
type MarketQuote struct {
	Bookmaker  string    `json:"bookmaker"`
	MarketKey  string    `json:"market_key"`
	Outcome    string    `json:"outcome"`
	Price      float64   `json:"price"`
	Point      *float64  `json:"point,omitempty"`
	ObservedAt time.Time `json:"observed_at"`
}

// PointValue returns the line, or 0 when the market has none.
func (q MarketQuote) PointValue() float64 {
	if q.Point == nil {
		return 0
	}
	return *q.Point
}

// MarketConsensus aggregates one (market, outcome, point) bucket across bookmakers.
type MarketConsensus struct {
	MarketKey       string        `json:"market_key"`
	Outcome         string        `json:"outcome"`
	Point           *float64      `json:"point,omitempty"`
	Best            MarketQuote   `json:"best"`
	MedianPrice     float64       `json:"median_price"`
	Top3            []MarketQuote `json:"top3"`
	BookmakerCount  int           `json:"bookmaker_count"`
	FairProbability float64       `json:"fair_probability,omitempty"`
}

// Selection names the outcome a consensus bucket prices, e.g. "totals:over:2.5".
func (c MarketConsensus) Selection() string {
	if c.Point == nil {
		return c.MarketKey + ":" + c.Outcome
	}
	return fmt.Sprintf("%s:%s:%g", c.MarketKey, c.Outcome, *c.Point)
}

type Tier string

const (
	TierDiscard     Tier = "discard"
	TierFree        Tier = "free"
	TierCompetitive Tier = "competitive"
	TierAdvanced    Tier = "advanced"
	TierElite       Tier = "elite"
	TierUltraElite  Tier = "ultra_elite"
)

type EVAssessment struct {
	ProbabilityPct        float64 `json:"probability_pct"`
	SelectedPrice         float64 `json:"selected_price"`
	ImpliedProbabilityPct float64 `json:"implied_probability_pct"`
	EVPct                 float64 `json:"ev_pct"`
	Tier                  Tier    `json:"tier"`
}

// Alert is a graded assessment ready for dispatch and persistence.
type Alert struct {
	EventKey   string          `json:"event_key"`
	Match      ResolvedMatch   `json:"match"`
	Event      RawEvent        `json:"event"`
	Consensus  MarketConsensus `json:"consensus"`
	Assessment EVAssessment    `json:"assessment"`
	Bucket     time.Time       `json:"bucket"`
}

type EventFailure struct {
	EventKey string `json:"event_key"`
	Kind     Kind   `json:"kind"`
	Reason   string `json:"reason"`
	Message  string `json:"message"`
}

// CycleSummary is what a caller always receives from a cycle, including partial ones.
type CycleSummary struct {
	ID            string         `json:"id"`
	StartedAt     time.Time      `json:"started_at"`
	FinishedAt    time.Time      `json:"finished_at"`
	Events        int            `json:"events"`
	Resolved      int            `json:"resolved"`
	NoMatch       int            `json:"no_match"`
	Assessed      int            `json:"assessed"`
	Emitted       int            `json:"emitted"`
	Deduplicated  int            `json:"deduplicated"`
	ExternalCalls int            `json:"external_calls"`
	Partial       bool           `json:"partial"`
	Failures      []EventFailure `json:"failures,omitempty"`
}

func (s CycleSummary) Duration() time.Duration {
	return s.FinishedAt.Sub(s.StartedAt)
}

// AssessmentRecord is a persisted alert as read back for reporting.
type AssessmentRecord struct {
	FixtureID      string    `json:"fixture_id"`
	Selection      string    `json:"selection"`
	Home           string    `json:"home"`
	Away           string    `json:"away"`
	League         string    `json:"league"`
	Bookmaker      string    `json:"bookmaker"`
	Price          float64   `json:"price"`
	ProbabilityPct float64   `json:"probability_pct"`
	EVPct          float64   `json:"ev_pct"`
	Tier           Tier      `json:"tier"`
	Bucket         time.Time `json:"bucket"`
	CreatedAt      time.Time `json:"created_at"`
}
