// Package bot dispatches graded alerts to Telegram and answers status commands.
package bot

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"fixture-edge/internal/domain"

	tele "gopkg.in/telebot.v3"
)

const recentLimit = 5

// Sender is the part of *tele.Bot used for outbound messages.
type Sender interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

type SummaryReader interface {
	LastSummary(ctx context.Context) (domain.CycleSummary, bool, error)
}

type AssessmentReader interface {
	RecentAssessments(ctx context.Context, limit int) ([]domain.AssessmentRecord, error)
}

// TelegramNotifier sends alerts to one chat.
type TelegramNotifier struct {
	sender Sender
	chat   tele.ChatID
}

func NewTelegramNotifier(sender Sender, chatID int64) *TelegramNotifier {
	return &TelegramNotifier{sender: sender, chat: tele.ChatID(chatID)}
}

func (n *TelegramNotifier) Notify(ctx context.Context, a domain.Alert) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := n.sender.Send(n.chat, FormatAlert(a)); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}

// StartTelegramBot starts the command poller and returns a notifier for the
// configured chat. It returns nil when no token is configured.
func StartTelegramBot(token string, chatID int64, summaries SummaryReader, recent AssessmentReader) *TelegramNotifier {
	if token == "" {
		log.Println("TELEGRAM_BOT_TOKEN not set, skipping Telegram bot startup")
		return nil
	}
	pref := tele.Settings{
		Token:  token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	}
	b, err := tele.NewBot(pref)
	if err != nil {
		log.Fatalf("failed to create Telegram bot: %v", err)
	}

	b.Handle("/ping", func(c tele.Context) error {
		return c.Send("pong")
	})
	b.Handle("/last", func(c tele.Context) error {
		return c.Send(lastReply(context.Background(), summaries))
	})
	b.Handle("/recent", func(c tele.Context) error {
		return c.Send(recentReply(context.Background(), recent))
	})

	log.Println("Telegram bot started")
	go b.Start()

	if chatID == 0 {
		log.Println("TELEGRAM_CHAT_ID not set, alerts will not be sent")
		return nil
	}
	return NewTelegramNotifier(b, chatID)
}

func lastReply(ctx context.Context, summaries SummaryReader) string {
	if summaries == nil {
		return "No cycle has run yet."
	}
	s, found, err := summaries.LastSummary(ctx)
	if err != nil {
		return fmt.Sprintf("Error reading last cycle: %v", err)
	}
	if !found {
		return "No cycle has run yet."
	}
	return FormatSummary(s)
}

func recentReply(ctx context.Context, recent AssessmentReader) string {
	if recent == nil {
		return "Persistence is disabled."
	}
	records, err := recent.RecentAssessments(ctx, recentLimit)
	if err != nil {
		return fmt.Sprintf("Error reading assessments: %v", err)
	}
	if len(records) == 0 {
		return "No assessments yet."
	}
	var b strings.Builder
	for i, r := range records {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s vs %s | %s @ %.2f | EV %+.1f%% (%s)", r.Home, r.Away, r.Selection, r.Price, r.EVPct, r.Tier)
	}
	return b.String()
}

func FormatAlert(a domain.Alert) string {
	f := a.Match.Fixture
	c := a.Consensus
	var b strings.Builder
	fmt.Fprintf(&b, "EV %+.1f%% [%s]\n", a.Assessment.EVPct, a.Assessment.Tier)
	fmt.Fprintf(&b, "%s vs %s\n", f.Home, f.Away)
	if f.League != "" {
		fmt.Fprintf(&b, "%s\n", f.League)
	}
	fmt.Fprintf(&b, "Kick-off: %s UTC\n", f.StartTime.UTC().Format("02.01 15:04"))
	fmt.Fprintf(&b, "Pick: %s", selectionLabel(c))
	fmt.Fprintf(&b, " @ %.2f (%s)\n", a.Assessment.SelectedPrice, c.Best.Bookmaker)
	fmt.Fprintf(&b, "Median %.2f across %d books\n", c.MedianPrice, c.BookmakerCount)
	fmt.Fprintf(&b, "Model %.1f%% vs implied %.1f%%", a.Assessment.ProbabilityPct, a.Assessment.ImpliedProbabilityPct)
	return b.String()
}

func selectionLabel(c domain.MarketConsensus) string {
	label := strings.ToUpper(c.MarketKey) + " " + c.Outcome
	if c.Point != nil {
		label += fmt.Sprintf(" %g", *c.Point)
	}
	return label
}

func FormatSummary(s domain.CycleSummary) string {
	var b strings.Builder
	status := "complete"
	if s.Partial {
		status = "partial"
	}
	fmt.Fprintf(&b, "Cycle %s (%s) at %s UTC, %s\n", shortID(s.ID), status, s.FinishedAt.UTC().Format("02.01 15:04"), s.Duration().Round(time.Second))
	fmt.Fprintf(&b, "Events %d, resolved %d, no match %d\n", s.Events, s.Resolved, s.NoMatch)
	fmt.Fprintf(&b, "Assessed %d, emitted %d, deduplicated %d\n", s.Assessed, s.Emitted, s.Deduplicated)
	fmt.Fprintf(&b, "External calls %d, failures %d", s.ExternalCalls, len(s.Failures))
	return b.String()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
