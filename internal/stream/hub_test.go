package stream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"fixture-edge/internal/domain"

	"github.com/gorilla/websocket"
)

func sampleAlert(market, outcome string, evPct float64) domain.Alert {
	kickOff := time.Date(2025, 4, 20, 19, 0, 0, 0, time.UTC)
	return domain.Alert{
		EventKey: "evt-1",
		Match: domain.ResolvedMatch{
			Fixture: domain.CandidateFixture{FixtureID: "1208021", Home: "Real Madrid", Away: "Barcelona", League: "La Liga", StartTime: kickOff},
		},
		Consensus: domain.MarketConsensus{
			MarketKey:      market,
			Outcome:        outcome,
			Best:           domain.MarketQuote{Bookmaker: "pinnacle", Price: 2.35},
			MedianPrice:    2.2,
			BookmakerCount: 4,
		},
		Assessment: domain.EVAssessment{ProbabilityPct: 50, SelectedPrice: 2.35, EVPct: evPct, Tier: domain.TierCompetitive},
	}
}

func TestFilterMatches(t *testing.T) {
	p := newAlertPayload(sampleAlert("h2h", "home", 17.5))
	cases := []struct {
		name   string
		filter Filter
		want   bool
	}{
		{"zero value", Filter{}, true},
		{"market listed", Filter{Markets: []string{"totals", "h2h"}}, true},
		{"market not listed", Filter{Markets: []string{"btts"}}, false},
		{"ev below floor", Filter{MinEVPct: 20}, false},
		{"ev at floor", Filter{MinEVPct: 17.5}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.filter.matches(p); got != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestAlertPayload(t *testing.T) {
	p := newAlertPayload(sampleAlert("h2h", "home", 17.5))
	if p.Selection != "h2h:home" || p.Bookmaker != "pinnacle" || p.Books != 4 || p.FixtureID != "1208021" {
		t.Fatalf("unexpected payload %+v", p)
	}
}

func TestNotifyRespectsCancelledContext(t *testing.T) {
	h := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := h.Notify(ctx, sampleAlert("h2h", "home", 10)); err == nil {
		t.Fatal("expected an error for a cancelled context")
	}
}

func TestNotifyDropsWhenBufferFull(t *testing.T) {
	h := NewHub()
	for i := 0; i < broadcastBuffer+5; i++ {
		if err := h.Notify(context.Background(), sampleAlert("h2h", "home", 10)); err != nil {
			t.Fatalf("notify must not fail on a full buffer: %v", err)
		}
	}
	if len(h.broadcast) != broadcastBuffer {
		t.Fatalf("expected a full buffer, got %d", len(h.broadcast))
	}
}

func TestSlowClientIsDropped(t *testing.T) {
	h := NewHub()
	c := newClient("slow", nil, h)
	h.clients[c] = struct{}{}
	for i := 0; i < sendBufferSize; i++ {
		c.send <- ServerMessage{Type: MessageTypeAlert}
	}

	h.deliver(newAlertPayload(sampleAlert("h2h", "home", 10)))

	if h.ClientCount() != 0 {
		t.Fatal("expected the slow client to be removed")
	}
	select {
	case <-c.done:
	default:
		t.Fatal("expected the slow client to be closed")
	}
}

func TestStreamDeliversFilteredAlerts(t *testing.T) {
	h := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(h.ServeWS))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	if err := conn.WriteJSON(ClientMessage{Type: "subscribe", Filter: Filter{Markets: []string{"h2h"}}}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	var ack ServerMessage
	if err := conn.ReadJSON(&ack); err != nil {
		t.Fatalf("read ack: %v", err)
	}
	if ack.Type != MessageTypeSubscribed || ack.Filter == nil || len(ack.Filter.Markets) != 1 {
		t.Fatalf("unexpected ack %+v", ack)
	}
	if h.ClientCount() != 1 {
		t.Fatalf("expected one registered client, got %d", h.ClientCount())
	}

	h.Notify(context.Background(), sampleAlert("totals", "over", 30))
	h.Notify(context.Background(), sampleAlert("h2h", "home", 17.5))

	var msg ServerMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read alert: %v", err)
	}
	if msg.Type != MessageTypeAlert || msg.Alert == nil || msg.Alert.Market != "h2h" {
		t.Fatalf("expected the h2h alert only, got %+v", msg)
	}
}
