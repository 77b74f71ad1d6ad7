package bot

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"fixture-edge/internal/domain"

	tele "gopkg.in/telebot.v3"
)

func TestStartTelegramBotSkipsWithoutToken(t *testing.T) {
	if n := StartTelegramBot("", 42, nil, nil); n != nil {
		t.Fatal("expected no notifier without a token")
	}
}

type stubSender struct {
	to   tele.Recipient
	what interface{}
	err  error
}

func (s *stubSender) Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error) {
	s.to, s.what = to, what
	return &tele.Message{}, s.err
}

func sampleAlert() domain.Alert {
	point := 2.5
	return domain.Alert{
		Match: domain.ResolvedMatch{Fixture: domain.CandidateFixture{
			Home: "Real Madrid", Away: "Barcelona", League: "La Liga",
			StartTime: time.Date(2025, 4, 20, 19, 0, 0, 0, time.UTC),
		}},
		Consensus: domain.MarketConsensus{
			MarketKey: "totals", Outcome: "over", Point: &point,
			Best: domain.MarketQuote{Bookmaker: "pinnacle"}, MedianPrice: 1.92, BookmakerCount: 4,
		},
		Assessment: domain.EVAssessment{ProbabilityPct: 58, SelectedPrice: 2.05, ImpliedProbabilityPct: 48.8, EVPct: 18.9, Tier: domain.TierCompetitive},
	}
}

func TestNotifySendsToConfiguredChat(t *testing.T) {
	s := &stubSender{}
	if err := NewTelegramNotifier(s, -100123).Notify(context.Background(), sampleAlert()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.to.Recipient() != "-100123" {
		t.Fatalf("unexpected recipient %s", s.to.Recipient())
	}
	msg, _ := s.what.(string)
	for _, want := range []string{"EV +18.9% [competitive]", "Real Madrid vs Barcelona", "TOTALS over 2.5 @ 2.05 (pinnacle)", "20.04 19:00"} {
		if !strings.Contains(msg, want) {
			t.Fatalf("expected %q in %q", want, msg)
		}
	}
}

func TestNotifyError(t *testing.T) {
	s := &stubSender{err: errors.New("chat not found")}
	if err := NewTelegramNotifier(s, 1).Notify(context.Background(), sampleAlert()); err == nil {
		t.Fatal("expected send error")
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := NewTelegramNotifier(&stubSender{}, 1).Notify(ctx, sampleAlert()); err == nil {
		t.Fatal("expected cancelled context to stop the send")
	}
}

type stubSummaries struct {
	summary domain.CycleSummary
	found   bool
	err     error
}

func (s stubSummaries) LastSummary(ctx context.Context) (domain.CycleSummary, bool, error) {
	return s.summary, s.found, s.err
}

func TestLastReply(t *testing.T) {
	if got := lastReply(context.Background(), stubSummaries{}); got != "No cycle has run yet." {
		t.Fatalf("unexpected reply %q", got)
	}
	start := time.Date(2025, 4, 20, 12, 0, 0, 0, time.UTC)
	s := domain.CycleSummary{
		ID: "3f1c2a9e-0000", StartedAt: start, FinishedAt: start.Add(42 * time.Second),
		Events: 12, Resolved: 10, NoMatch: 2, Assessed: 25, Emitted: 3, Partial: true,
	}
	got := lastReply(context.Background(), stubSummaries{summary: s, found: true})
	for _, want := range []string{"Cycle 3f1c2a9e (partial)", "42s", "Events 12, resolved 10, no match 2", "emitted 3"} {
		if !strings.Contains(got, want) {
			t.Fatalf("expected %q in %q", want, got)
		}
	}
}

type stubRecent struct {
	records []domain.AssessmentRecord
	err     error
}

func (s stubRecent) RecentAssessments(ctx context.Context, limit int) ([]domain.AssessmentRecord, error) {
	return s.records, s.err
}

func TestRecentReply(t *testing.T) {
	if got := recentReply(context.Background(), nil); got != "Persistence is disabled." {
		t.Fatalf("unexpected reply %q", got)
	}
	if got := recentReply(context.Background(), stubRecent{}); got != "No assessments yet." {
		t.Fatalf("unexpected reply %q", got)
	}
	got := recentReply(context.Background(), stubRecent{records: []domain.AssessmentRecord{
		{Home: "Real Madrid", Away: "Barcelona", Selection: "h2h:home", Price: 2.0, EVPct: 20, Tier: domain.TierAdvanced},
	}})
	if got != "Real Madrid vs Barcelona | h2h:home @ 2.00 | EV +20.0% (advanced)" {
		t.Fatalf("unexpected reply %q", got)
	}
}
