package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestRawEventValidate(t *testing.T) {
	start := time.Date(2025, 4, 20, 20, 0, 0, 0, time.UTC)
	tests := []struct {
		name   string
		event  RawEvent
		reason string
	}{
		{name: "ok", event: RawEvent{Home: "A", Away: "B", StartTime: start}},
		{name: "no home", event: RawEvent{Away: "B", StartTime: start}, reason: "missing_home"},
		{name: "blank away", event: RawEvent{Home: "A", Away: "  ", StartTime: start}, reason: "missing_away"},
		{name: "no start", event: RawEvent{Home: "A", Away: "B"}, reason: "missing_start_time"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.event.Validate()
			if tt.reason == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, ErrInput) {
				t.Fatalf("expected input error, got %v", err)
			}
			if ReasonOf(err) != tt.reason {
				t.Fatalf("expected reason %s, got %s", tt.reason, ReasonOf(err))
			}
		})
	}
}

func TestRawEventKey(t *testing.T) {
	e := RawEvent{ProviderID: "abc"}
	if e.Key() != "abc" {
		t.Fatalf("expected provider id key, got %s", e.Key())
	}
	e = RawEvent{Home: " A ", Away: "B", StartTime: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)}
	if e.Key() != "A|B|2025-01-02T03:04:05Z" {
		t.Fatalf("unexpected key: %s", e.Key())
	}
}

func TestErrorKindsThroughWrapping(t *testing.T) {
	base := Wrap(KindUpstream, "http_503", errors.New("service unavailable"))
	wrapped := fmt.Errorf("fetch fixtures: %w", base)

	if !errors.Is(wrapped, ErrUpstream) {
		t.Fatal("expected wrapped error to match upstream sentinel")
	}
	if errors.Is(wrapped, ErrValidation) {
		t.Fatal("did not expect validation match")
	}
	if !errors.Is(wrapped, &Error{Kind: KindUpstream, Reason: "http_503"}) {
		t.Fatal("expected reason-specific match")
	}
	if KindOf(wrapped) != KindUpstream {
		t.Fatalf("unexpected kind: %s", KindOf(wrapped))
	}
	if KindOf(errors.New("plain")) != "" {
		t.Fatal("plain errors carry no kind")
	}
	if Wrap(KindInput, "x", nil) != nil {
		t.Fatal("wrapping nil should stay nil")
	}
}

func TestConsensusSelection(t *testing.T) {
	p := 2.5
	c := MarketConsensus{MarketKey: "totals", Outcome: "over", Point: &p}
	if c.Selection() != "totals:over:2.5" {
		t.Fatalf("unexpected selection: %s", c.Selection())
	}
	c = MarketConsensus{MarketKey: "h2h", Outcome: "home"}
	if c.Selection() != "h2h:home" {
		t.Fatalf("unexpected selection: %s", c.Selection())
	}
}
