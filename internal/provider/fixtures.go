package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"strconv"
	"time"

	"fixture-edge/internal/domain"
	"fixture-edge/internal/normalize"
	"fixture-edge/internal/similarity"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	fixturesBaseURL = "https://v3.football.api-sports.io"
	teamIDTTL       = 7 * 24 * time.Hour
	maxScanDays     = 7
	headToHeadNext  = 5
	minTeamMatch    = 0.5
)

// LookupCache stores provider identifiers between cycles.
type LookupCache interface {
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
}

// FixturesProvider queries a fixtures catalog in the API-Football v3 shape.
type FixturesProvider struct {
	*client
	ids LookupCache
}

func NewFixturesProvider(tracer trace.Tracer, apiKey string, ids LookupCache, opts ...Option) *FixturesProvider {
	c := newClient("fixtures-api", fixturesBaseURL, tracer, opts...)
	c.header.Set("x-apisports-key", apiKey)
	return &FixturesProvider{client: c, ids: ids}
}

type envelope[T any] struct {
	Errors   json.RawMessage `json:"errors"`
	Results  int             `json:"results"`
	Response []T             `json:"response"`
}

// API-Football reports quota and parameter problems in a 200 body.
func (e envelope[T]) err() error {
	trimmed := bytes.TrimSpace(e.Errors)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("[]")) || bytes.Equal(trimmed, []byte("{}")) || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	return domain.Errorf(domain.KindUpstream, "api_errors", "fixtures API errors: %s", string(trimmed))
}

type apiTeam struct {
	Team struct {
		ID      int    `json:"id"`
		Name    string `json:"name"`
		Country string `json:"country"`
	} `json:"team"`
}

type apiFixture struct {
	Fixture struct {
		ID   int64     `json:"id"`
		Date time.Time `json:"date"`
	} `json:"fixture"`
	League struct {
		Name    string `json:"name"`
		Country string `json:"country"`
	} `json:"league"`
	Teams struct {
		Home struct {
			Name string `json:"name"`
		} `json:"home"`
		Away struct {
			Name string `json:"name"`
		} `json:"away"`
	} `json:"teams"`
}

func (f apiFixture) candidate() domain.CandidateFixture {
	return domain.CandidateFixture{
		FixtureID: strconv.FormatInt(f.Fixture.ID, 10),
		Home:      f.Teams.Home.Name,
		Away:      f.Teams.Away.Name,
		League:    f.League.Name,
		Country:   f.League.Country,
		StartTime: f.Fixture.Date.UTC(),
	}
}

func (p *FixturesProvider) fixtures(ctx context.Context, q url.Values, path string) ([]domain.CandidateFixture, error) {
	var env envelope[apiFixture]
	if err := p.getJSON(ctx, path, q, &env); err != nil {
		return nil, err
	}
	if err := env.err(); err != nil {
		return nil, err
	}
	out := make([]domain.CandidateFixture, 0, len(env.Response))
	for _, f := range env.Response {
		out = append(out, f.candidate())
	}
	return out, nil
}

// TeamID resolves a team name to the catalog's identifier, using the lookup cache
// first. found is false when the catalog has no plausible team.
func (p *FixturesProvider) TeamID(ctx context.Context, name string) (int, bool, error) {
	canonical := normalize.Team(name).Canonical
	if canonical == "" {
		return 0, false, nil
	}
	key := "team-id:" + canonical

	if p.ids != nil {
		var id int
		found, err := p.ids.Get(ctx, key, &id)
		if err != nil {
			log.Printf("team id cache read error: %v", err)
		}
		if found {
			return id, true, nil
		}
	}

	search := canonical
	if len([]rune(search)) < 3 {
		search = normalize.Plain(name)
	}
	q := url.Values{}
	q.Set("search", search)

	var env envelope[apiTeam]
	if err := p.getJSON(ctx, "/teams", q, &env); err != nil {
		return 0, false, fmt.Errorf("search team %q: %w", name, err)
	}
	if err := env.err(); err != nil {
		return 0, false, err
	}

	bestID, bestScore := 0, 0.0
	for _, t := range env.Response {
		if s := similarity.Names(name, t.Team.Name); s > bestScore {
			bestID, bestScore = t.Team.ID, s
		}
	}
	if bestScore < minTeamMatch {
		return 0, false, nil
	}

	if p.ids != nil {
		if err := p.ids.Set(ctx, key, bestID, teamIDTTL); err != nil {
			log.Printf("team id cache write error: %v", err)
		}
	}
	return bestID, true, nil
}

func (p *FixturesProvider) FixturesByTeam(ctx context.Context, team string, from, to time.Time) ([]domain.CandidateFixture, error) {
	ctx, span := p.tracer.Start(ctx, "fixtures-api.by-team")
	defer span.End()

	id, found, err := p.TeamID(ctx, team)
	if err != nil || !found {
		return nil, err
	}
	span.SetAttributes(attribute.Int("team_id", id))

	q := url.Values{}
	q.Set("team", strconv.Itoa(id))
	q.Set("season", strconv.Itoa(season(from)))
	q.Set("from", from.UTC().Format(time.DateOnly))
	q.Set("to", to.UTC().Format(time.DateOnly))

	out, err := p.fixtures(ctx, q, "/fixtures")
	if err != nil {
		return nil, fmt.Errorf("fixtures for team %q: %w", team, err)
	}
	return inWindow(out, from, to), nil
}

// FixturesByDate scans day by day, capped at maxScanDays requests.
func (p *FixturesProvider) FixturesByDate(ctx context.Context, from, to time.Time) ([]domain.CandidateFixture, error) {
	ctx, span := p.tracer.Start(ctx, "fixtures-api.by-date")
	defer span.End()

	var all []domain.CandidateFixture
	day := from.UTC().Truncate(24 * time.Hour)
	last := to.UTC().Truncate(24 * time.Hour)
	for n := 0; !day.After(last) && n < maxScanDays; n++ {
		q := url.Values{}
		q.Set("date", day.Format(time.DateOnly))
		out, err := p.fixtures(ctx, q, "/fixtures")
		if err != nil {
			return nil, fmt.Errorf("fixtures on %s: %w", day.Format(time.DateOnly), err)
		}
		all = append(all, out...)
		day = day.AddDate(0, 0, 1)
	}
	span.SetAttributes(attribute.Int("fixtures", len(all)))
	return inWindow(all, from, to), nil
}

// HeadToHead returns the next scheduled meetings of the two teams.
func (p *FixturesProvider) HeadToHead(ctx context.Context, home, away string) ([]domain.CandidateFixture, error) {
	ctx, span := p.tracer.Start(ctx, "fixtures-api.head-to-head")
	defer span.End()

	homeID, ok, err := p.TeamID(ctx, home)
	if err != nil || !ok {
		return nil, err
	}
	awayID, ok, err := p.TeamID(ctx, away)
	if err != nil || !ok {
		return nil, err
	}

	q := url.Values{}
	q.Set("h2h", fmt.Sprintf("%d-%d", homeID, awayID))
	q.Set("next", strconv.Itoa(headToHeadNext))
	out, err := p.fixtures(ctx, q, "/fixtures/headtohead")
	if err != nil {
		return nil, fmt.Errorf("head to head %q vs %q: %w", home, away, err)
	}
	return out, nil
}

// European seasons start in July and are named by their starting year.
func season(t time.Time) int {
	t = t.UTC()
	if t.Month() >= time.July {
		return t.Year()
	}
	return t.Year() - 1
}

func inWindow(fixtures []domain.CandidateFixture, from, to time.Time) []domain.CandidateFixture {
	out := fixtures[:0]
	for _, f := range fixtures {
		if f.StartTime.Before(from) || f.StartTime.After(to) {
			continue
		}
		out = append(out, f)
	}
	return out
}
