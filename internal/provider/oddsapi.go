package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"fixture-edge/internal/domain"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const oddsAPIBaseURL = "https://api.the-odds-api.com/v4"

// OddsAPIProvider reads upcoming events with nested bookmaker quotes from an
// odds feed in The Odds API v4 shape.
type OddsAPIProvider struct {
	*client
	apiKey  string
	sports  []string
	regions string
	markets []string
}

func NewOddsAPIProvider(tracer trace.Tracer, apiKey string, sports []string, opts ...Option) *OddsAPIProvider {
	return &OddsAPIProvider{
		client:  newClient("odds-api", oddsAPIBaseURL, tracer, opts...),
		apiKey:  apiKey,
		sports:  sports,
		regions: "eu,uk",
		markets: []string{"h2h", "totals", "btts", "draw_no_bet"},
	}
}

type oddsEvent struct {
	ID           string          `json:"id"`
	SportKey     string          `json:"sport_key"`
	SportTitle   string          `json:"sport_title"`
	CommenceTime time.Time       `json:"commence_time"`
	HomeTeam     string          `json:"home_team"`
	AwayTeam     string          `json:"away_team"`
	Bookmakers   []oddsBookmaker `json:"bookmakers"`
}

type oddsBookmaker struct {
	Key        string       `json:"key"`
	Title      string       `json:"title"`
	LastUpdate time.Time    `json:"last_update"`
	Markets    []oddsMarket `json:"markets"`
}

type oddsMarket struct {
	Key        string        `json:"key"`
	LastUpdate time.Time     `json:"last_update"`
	Outcomes   []oddsOutcome `json:"outcomes"`
}

type oddsOutcome struct {
	Name  string       `json:"name"`
	Price json.Number  `json:"price"`
	Point *json.Number `json:"point,omitempty"`
}

// FetchEvents pulls every configured sport. A failing sport is logged and skipped;
// the call only fails when every sport failed.
func (p *OddsAPIProvider) FetchEvents(ctx context.Context) ([]domain.RawEvent, error) {
	ctx, span := p.tracer.Start(ctx, "odds-api.fetch-events")
	defer span.End()

	var events []domain.RawEvent
	var errs []error
	for _, sport := range p.sports {
		batch, err := p.FetchSport(ctx, sport)
		if err != nil {
			log.Printf("odds feed: sport %s failed: %v", sport, err)
			errs = append(errs, err)
			continue
		}
		events = append(events, batch...)
	}
	span.SetAttributes(attribute.Int("events", len(events)), attribute.Int("failed_sports", len(errs)))

	if len(errs) > 0 && len(errs) == len(p.sports) {
		return nil, fmt.Errorf("fetch odds: %w", errors.Join(errs...))
	}
	return events, nil
}

func (p *OddsAPIProvider) FetchSport(ctx context.Context, sport string) ([]domain.RawEvent, error) {
	q := url.Values{}
	q.Set("apiKey", p.apiKey)
	q.Set("regions", p.regions)
	q.Set("markets", strings.Join(p.markets, ","))
	q.Set("oddsFormat", "decimal")
	q.Set("dateFormat", "iso")

	var raw []oddsEvent
	if err := p.getJSON(ctx, "/sports/"+url.PathEscape(sport)+"/odds", q, &raw); err != nil {
		return nil, fmt.Errorf("fetch odds for %s: %w", sport, err)
	}

	events := make([]domain.RawEvent, 0, len(raw))
	for _, ev := range raw {
		events = append(events, toRawEvent(ev))
	}
	return events, nil
}

func toRawEvent(ev oddsEvent) domain.RawEvent {
	league, country := splitSportTitle(ev.SportTitle)
	out := domain.RawEvent{
		ProviderID: ev.ID,
		Sport:      ev.SportKey,
		Home:       ev.HomeTeam,
		Away:       ev.AwayTeam,
		League:     league,
		Country:    country,
		StartTime:  ev.CommenceTime.UTC(),
	}
	for _, bm := range ev.Bookmakers {
		for _, m := range bm.Markets {
			observed := m.LastUpdate
			if observed.IsZero() {
				observed = bm.LastUpdate
			}
			for _, o := range m.Outcomes {
				q, ok := toQuote(ev, bm.Key, m.Key, o, observed)
				if !ok {
					continue
				}
				out.Quotes = append(out.Quotes, q)
			}
		}
	}
	return out
}

// Prices that do not parse are dropped here; the aggregator rejects the rest.
func toQuote(ev oddsEvent, bookmaker, marketKey string, o oddsOutcome, observed time.Time) (domain.MarketQuote, bool) {
	price, err := decimal.NewFromString(o.Price.String())
	if err != nil {
		return domain.MarketQuote{}, false
	}
	q := domain.MarketQuote{
		Bookmaker:  bookmaker,
		MarketKey:  marketKey,
		Outcome:    outcomeLabel(ev, o.Name),
		Price:      price.InexactFloat64(),
		ObservedAt: observed.UTC(),
	}
	if o.Point != nil {
		point, err := decimal.NewFromString(o.Point.String())
		if err != nil {
			return domain.MarketQuote{}, false
		}
		v := point.InexactFloat64()
		q.Point = &v
	}
	return q, true
}

func outcomeLabel(ev oddsEvent, name string) string {
	switch {
	case strings.EqualFold(name, ev.HomeTeam):
		return "home"
	case strings.EqualFold(name, ev.AwayTeam):
		return "away"
	}
	return strings.ToLower(strings.TrimSpace(name))
}

// splitSportTitle splits titles like "La Liga - Spain" into league and country.
func splitSportTitle(title string) (string, string) {
	league, country, ok := strings.Cut(title, " - ")
	if !ok {
		return strings.TrimSpace(title), ""
	}
	return strings.TrimSpace(league), strings.TrimSpace(country)
}
