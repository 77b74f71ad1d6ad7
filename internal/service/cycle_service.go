package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"fixture-edge/internal/domain"
	"fixture-edge/internal/estimator"
	"fixture-edge/internal/ev"
	"fixture-edge/internal/market"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// OddsFeed supplies the raw events of one cycle, quotes included.
type OddsFeed interface {
	FetchEvents(ctx context.Context) ([]domain.RawEvent, error)
}

// Resolver maps a raw event to its catalog fixture.
type Resolver interface {
	Match(ctx context.Context, e domain.RawEvent) (*domain.ResolvedMatch, error)
}

// Dispatcher delivers graded alerts.
type Dispatcher interface {
	Notify(ctx context.Context, a domain.Alert) error
}

// Store persists resolutions and alerts. Writes must be upserts so a retried
// cycle does not duplicate rows.
type Store interface {
	SaveResolution(ctx context.Context, eventKey string, m domain.ResolvedMatch) error
	SaveAssessments(ctx context.Context, alerts []domain.Alert) error
}

// Recorder receives cycle observations for metrics.
type Recorder interface {
	ObserveResolution(outcome string, score float64)
	ObserveAssessment(tier domain.Tier)
	ObserveFailure(kind domain.Kind)
	ObserveCycle(s domain.CycleSummary)
}

type CycleConfig struct {
	SoftBudget       time.Duration
	MaxConcurrent    int
	MaxExternalCalls int
	Market           market.Config
}

type CycleService struct {
	tracer     trace.Tracer
	feed       OddsFeed
	resolver   Resolver
	estimator  estimator.Estimator
	evaluator  *ev.Evaluator
	dispatcher Dispatcher
	store      Store
	recorder   Recorder
	cfg        CycleConfig
	now        func() time.Time
}

// NewCycleService wires a cycle. dispatcher, store and recorder may be nil.
func NewCycleService(
	tracer trace.Tracer,
	feed OddsFeed,
	resolver Resolver,
	est estimator.Estimator,
	evaluator *ev.Evaluator,
	dispatcher Dispatcher,
	store Store,
	recorder Recorder,
	cfg CycleConfig,
) *CycleService {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &CycleService{
		tracer:     tracer,
		feed:       feed,
		resolver:   resolver,
		estimator:  est,
		evaluator:  evaluator,
		dispatcher: dispatcher,
		store:      store,
		recorder:   recorder,
		cfg:        cfg,
		now:        time.Now,
	}
}

type eventResult struct {
	key       string
	match     *domain.ResolvedMatch
	noMatch   bool
	assessed  int
	dedup     int
	budgetHit bool
	alerts    []domain.Alert
	failures  []domain.EventFailure
}

func (r *eventResult) fail(err error) {
	kind := domain.KindOf(err)
	if kind == "" {
		kind = domain.KindUpstream
	}
	r.failures = append(r.failures, domain.EventFailure{
		EventKey: r.key,
		Kind:     kind,
		Reason:   domain.ReasonOf(err),
		Message:  err.Error(),
	})
	if kind == domain.KindBudgetExceeded || errors.Is(err, context.DeadlineExceeded) {
		r.budgetHit = true
	}
}

// RunCycle resolves, aggregates and evaluates every event of the feed within the
// soft budget. It always returns a summary; the error is set only when the feed
// itself could not be read.
func (s *CycleService) RunCycle(ctx context.Context) (domain.CycleSummary, error) {
	ctx, span := s.tracer.Start(ctx, "cycle.run")
	defer span.End()

	summary := domain.CycleSummary{ID: uuid.NewString(), StartedAt: s.now().UTC()}
	span.SetAttributes(attribute.String("cycle_id", summary.ID))

	budget := newBudgetAt(s.now, s.cfg.SoftBudget, s.cfg.MaxExternalCalls)
	cycleCtx, cancel := context.WithDeadline(ctx, budget.Deadline())
	defer cancel()

	events, err := s.feed.FetchEvents(cycleCtx)
	if err != nil {
		res := &eventResult{key: "feed"}
		res.fail(domain.Wrap(domain.KindUpstream, "odds_feed", err))
		summary.Failures = res.failures
		s.finish(&summary, budget)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return summary, fmt.Errorf("fetch events: %w", err)
	}
	events = dedupe(events)
	summary.Events = len(events)

	est := s.estimator
	if estimator.IsRemote(est) {
		est = estimator.NewBudgeted(est, budget)
	}

	var (
		mu      sync.Mutex
		results = make([]*eventResult, 0, len(events))
		g       errgroup.Group
	)
	record := func(res *eventResult) {
		mu.Lock()
		defer mu.Unlock()
		results = append(results, res)
	}
	g.SetLimit(s.cfg.MaxConcurrent)
	for _, e := range events {
		if cycleCtx.Err() != nil {
			res := &eventResult{key: e.Key()}
			res.fail(domain.Errorf(domain.KindBudgetExceeded, ReasonDeadline, "not started before the soft budget ran out"))
			record(res)
			continue
		}
		g.Go(func() error {
			record(s.processEvent(cycleCtx, est, e))
			return nil
		})
	}
	_ = g.Wait()

	// Side effects use the caller's context so resolved work is still emitted
	// after the soft budget has expired.
	var alerts []domain.Alert
	for _, res := range results {
		s.tally(&summary, res)
		if res.match != nil && s.store != nil {
			if err := s.store.SaveResolution(ctx, res.key, *res.match); err != nil {
				log.Printf("cycle %s: save resolution %s: %v", summary.ID, res.key, err)
			}
		}
		alerts = append(alerts, res.alerts...)
	}
	summary.Emitted = s.emit(ctx, &summary, alerts)
	sortFailures(summary.Failures)

	s.finish(&summary, budget)
	span.SetAttributes(
		attribute.Int("events", summary.Events),
		attribute.Int("resolved", summary.Resolved),
		attribute.Int("emitted", summary.Emitted),
		attribute.Bool("partial", summary.Partial),
	)
	return summary, nil
}

func (s *CycleService) processEvent(ctx context.Context, est estimator.Estimator, e domain.RawEvent) *eventResult {
	res := &eventResult{key: e.Key()}
	if ctx.Err() != nil {
		res.fail(domain.Errorf(domain.KindBudgetExceeded, ReasonDeadline, "not started before the soft budget ran out"))
		return res
	}

	if err := e.Validate(); err != nil {
		res.fail(err)
		return res
	}

	match, err := s.resolver.Match(ctx, e)
	if err != nil {
		if errors.Is(err, domain.ErrNoMatch) {
			res.noMatch = true
			s.recorder.ObserveResolution(domain.ReasonOf(err), 0)
		}
		res.fail(err)
		return res
	}
	res.match = match
	s.recorder.ObserveResolution("resolved", match.Score.Total)

	consensus, report := market.Aggregate(e.Quotes, s.cfg.Market)
	if err := report.Err(); err != nil {
		res.fail(err)
	}
	market.FairProbabilities(consensus)

	at := s.now()
	for _, c := range consensus {
		if !estimated(c.MarketKey) {
			continue
		}
		if ctx.Err() != nil {
			res.fail(domain.Errorf(domain.KindBudgetExceeded, ReasonDeadline, "stopped before %s", c.Selection()))
			return res
		}

		pct, err := est.Estimate(ctx, estimator.Request{Match: *match, Event: e, Consensus: c})
		if err != nil {
			res.fail(err)
			if errors.Is(err, domain.ErrBudgetExceeded) {
				return res
			}
			continue
		}

		assessment, fresh, err := s.evaluator.EvaluateOnce(ctx, match.Fixture.FixtureID, c.Selection(), at, pct, c.Best.Price)
		if err != nil {
			res.fail(err)
			continue
		}
		if !fresh {
			res.dedup++
			continue
		}
		res.assessed++
		s.recorder.ObserveAssessment(assessment.Tier)
		if assessment.Tier == domain.TierDiscard {
			continue
		}
		res.alerts = append(res.alerts, domain.Alert{
			EventKey:   res.key,
			Match:      *match,
			Event:      e,
			Consensus:  c,
			Assessment: assessment,
			Bucket:     ev.Bucket(at, s.evaluator.Config().CooldownWindow),
		})
	}
	return res
}

// estimated reports whether selections of a market are sent to the estimator.
func estimated(marketKey string) bool {
	return marketKey == market.H2H || marketKey == market.Totals
}

// sortFailures orders failures by event key, then kind, keeping the order of
// failures that share both.
func sortFailures(fs []domain.EventFailure) {
	sort.SliceStable(fs, func(i, j int) bool {
		if fs[i].EventKey != fs[j].EventKey {
			return fs[i].EventKey < fs[j].EventKey
		}
		return fs[i].Kind < fs[j].Kind
	})
}

func (s *CycleService) tally(summary *domain.CycleSummary, res *eventResult) {
	if res.match != nil {
		summary.Resolved++
	}
	if res.noMatch {
		summary.NoMatch++
	}
	if res.budgetHit {
		summary.Partial = true
	}
	summary.Assessed += res.assessed
	summary.Deduplicated += res.dedup
	summary.Failures = append(summary.Failures, res.failures...)
}

func (s *CycleService) emit(ctx context.Context, summary *domain.CycleSummary, alerts []domain.Alert) int {
	if len(alerts) == 0 {
		return 0
	}
	if s.store != nil {
		if err := s.store.SaveAssessments(ctx, alerts); err != nil {
			log.Printf("cycle %s: save %d assessments: %v", summary.ID, len(alerts), err)
		}
	}
	if s.dispatcher == nil {
		return len(alerts)
	}

	emitted := 0
	for _, a := range alerts {
		if err := s.dispatcher.Notify(ctx, a); err != nil {
			res := &eventResult{key: a.EventKey}
			res.fail(domain.Wrap(domain.KindUpstream, "dispatch", err))
			summary.Failures = append(summary.Failures, res.failures...)
			continue
		}
		emitted++
	}
	return emitted
}

func (s *CycleService) finish(summary *domain.CycleSummary, budget *Budget) {
	summary.ExternalCalls = budget.Calls()
	summary.FinishedAt = s.now().UTC()
	for _, f := range summary.Failures {
		s.recorder.ObserveFailure(f.Kind)
	}
	s.recorder.ObserveCycle(*summary)
}

// dedupe keeps the first occurrence of each event key.
func dedupe(events []domain.RawEvent) []domain.RawEvent {
	seen := make(map[string]struct{}, len(events))
	out := events[:0:0]
	for _, e := range events {
		k := e.Key()
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, e)
	}
	return out
}

type nopRecorder struct{}

func (nopRecorder) ObserveResolution(string, float64) {}
func (nopRecorder) ObserveAssessment(domain.Tier)     {}
func (nopRecorder) ObserveFailure(domain.Kind)        {}
func (nopRecorder) ObserveCycle(domain.CycleSummary)  {}
