package stream

import (
	"time"

	"fixture-edge/internal/domain"
)

const (
	MessageTypeAlert      = "alert"
	MessageTypeSubscribed = "subscribed"
	MessageTypeError      = "error"
)

// AlertPayload is the wire shape of one graded alert.
type AlertPayload struct {
	EventKey    string      `json:"event_key"`
	FixtureID   string      `json:"fixture_id"`
	Home        string      `json:"home"`
	Away        string      `json:"away"`
	League      string      `json:"league"`
	KickOff     time.Time   `json:"kick_off"`
	Market      string      `json:"market"`
	Selection   string      `json:"selection"`
	Bookmaker   string      `json:"bookmaker"`
	Price       float64     `json:"price"`
	MedianPrice float64     `json:"median_price"`
	Books       int         `json:"books"`
	EVPct       float64     `json:"ev_pct"`
	Probability float64     `json:"probability_pct"`
	Tier        domain.Tier `json:"tier"`
}

func newAlertPayload(a domain.Alert) AlertPayload {
	return AlertPayload{
		EventKey:    a.EventKey,
		FixtureID:   a.Match.Fixture.FixtureID,
		Home:        a.Match.Fixture.Home,
		Away:        a.Match.Fixture.Away,
		League:      a.Match.Fixture.League,
		KickOff:     a.Match.Fixture.StartTime,
		Market:      a.Consensus.MarketKey,
		Selection:   a.Consensus.Selection(),
		Bookmaker:   a.Consensus.Best.Bookmaker,
		Price:       a.Assessment.SelectedPrice,
		MedianPrice: a.Consensus.MedianPrice,
		Books:       a.Consensus.BookmakerCount,
		EVPct:       a.Assessment.EVPct,
		Probability: a.Assessment.ProbabilityPct,
		Tier:        a.Assessment.Tier,
	}
}

type ServerMessage struct {
	Type      string        `json:"type"`
	Alert     *AlertPayload `json:"alert,omitempty"`
	Filter    *Filter       `json:"filter,omitempty"`
	Error     string        `json:"error,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// ClientMessage is what a subscriber may send; only "subscribe" is understood.
type ClientMessage struct {
	Type   string `json:"type"`
	Filter Filter `json:"filter"`
}

// Filter narrows the alerts a client receives. The zero value accepts all.
type Filter struct {
	Markets  []string `json:"markets,omitempty"`
	MinEVPct float64  `json:"min_ev_pct,omitempty"`
}

func (f Filter) matches(p AlertPayload) bool {
	if p.EVPct < f.MinEVPct {
		return false
	}
	if len(f.Markets) == 0 {
		return true
	}
	for _, m := range f.Markets {
		if m == p.Market {
			return true
		}
	}
	return false
}
