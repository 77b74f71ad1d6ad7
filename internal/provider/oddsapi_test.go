package provider

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"
)

const oddsPayload = `[
  {
    "id": "evt-1",
    "sport_key": "soccer_spain_la_liga",
    "sport_title": "La Liga - Spain",
    "commence_time": "2025-04-20T20:00:00Z",
    "home_team": "Real Madrid",
    "away_team": "Barcelona",
    "bookmakers": [
      {
        "key": "pinnacle",
        "title": "Pinnacle",
        "last_update": "2025-04-20T12:00:00Z",
        "markets": [
          {"key": "h2h", "outcomes": [
            {"name": "Real Madrid", "price": 2.35},
            {"name": "Barcelona", "price": 2.9},
            {"name": "Draw", "price": 3.6}
          ]},
          {"key": "totals", "last_update": "2025-04-20T12:05:00Z", "outcomes": [
            {"name": "Over", "price": 1.8, "point": 2.5},
            {"name": "Under", "price": 2.05, "point": 2.5}
          ]}
        ]
      }
    ]
  }
]`

func TestOddsAPIFetchEvents(t *testing.T) {
	var paths []string
	p := NewOddsAPIProvider(testTracer, "key", []string{"soccer_spain_la_liga"}, testOptions(func(req *http.Request) (*http.Response, error) {
		paths = append(paths, req.URL.Path)
		q := req.URL.Query()
		if q.Get("apiKey") != "key" || q.Get("oddsFormat") != "decimal" {
			t.Fatalf("unexpected query %s", req.URL.RawQuery)
		}
		return jsonResponse(http.StatusOK, oddsPayload), nil
	})...)

	events, err := p.FetchEvents(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(paths) != 1 || paths[0] != "/sports/soccer_spain_la_liga/odds" {
		t.Fatalf("unexpected paths %v", paths)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	e := events[0]
	if e.League != "La Liga" || e.Country != "Spain" || e.Home != "Real Madrid" {
		t.Fatalf("unexpected event %+v", e)
	}
	if !e.StartTime.Equal(time.Date(2025, 4, 20, 20, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected start %v", e.StartTime)
	}
	if len(e.Quotes) != 5 {
		t.Fatalf("expected 5 quotes, got %d", len(e.Quotes))
	}

	labels := map[string]float64{}
	for _, q := range e.Quotes {
		labels[q.MarketKey+":"+q.Outcome] = q.Price
	}
	if labels["h2h:home"] != 2.35 || labels["h2h:away"] != 2.9 || labels["h2h:draw"] != 3.6 {
		t.Fatalf("unexpected h2h labels %v", labels)
	}
	for _, q := range e.Quotes {
		if q.MarketKey == "totals" {
			if q.Point == nil || *q.Point != 2.5 {
				t.Fatalf("expected point 2.5, got %v", q.Point)
			}
			if !q.ObservedAt.Equal(time.Date(2025, 4, 20, 12, 5, 0, 0, time.UTC)) {
				t.Fatalf("expected market update time, got %v", q.ObservedAt)
			}
		}
	}
}

func TestOddsAPIPartialSportFailure(t *testing.T) {
	p := NewOddsAPIProvider(testTracer, "key", []string{"good", "bad"}, testOptions(func(req *http.Request) (*http.Response, error) {
		if strings.Contains(req.URL.Path, "/bad/") {
			return jsonResponse(http.StatusUnprocessableEntity, "unknown sport"), nil
		}
		return jsonResponse(http.StatusOK, oddsPayload), nil
	})...)

	events, err := p.FetchEvents(context.Background())
	if err != nil {
		t.Fatalf("one good sport should be enough: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected events from the good sport, got %d", len(events))
	}
}

func TestOddsAPIAllSportsFail(t *testing.T) {
	p := NewOddsAPIProvider(testTracer, "key", []string{"a"}, testOptions(func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusUnauthorized, "bad key"), nil
	})...)

	if _, err := p.FetchEvents(context.Background()); err == nil {
		t.Fatal("expected error when every sport fails")
	}
}

func TestSplitSportTitle(t *testing.T) {
	league, country := splitSportTitle("EPL")
	if league != "EPL" || country != "" {
		t.Fatalf("unexpected split %q %q", league, country)
	}
}
