package job

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"fixture-edge/internal/domain"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type CycleRunner interface {
	RunCycle(ctx context.Context) (domain.CycleSummary, error)
}

// SummaryMirror shares the last summary with other replicas.
type SummaryMirror interface {
	SaveSummary(ctx context.Context, s domain.CycleSummary) error
	LastSummary(ctx context.Context) (domain.CycleSummary, bool, error)
}

// SummaryStore holds the most recent cycle summary for readers such as the
// HTTP handler and the bot.
type SummaryStore struct {
	mu     sync.RWMutex
	last   domain.CycleSummary
	found  bool
	mirror SummaryMirror
}

// NewSummaryStore creates a store. mirror may be nil.
func NewSummaryStore(mirror SummaryMirror) *SummaryStore {
	return &SummaryStore{mirror: mirror}
}

func (s *SummaryStore) Save(ctx context.Context, summary domain.CycleSummary) {
	s.mu.Lock()
	s.last, s.found = summary, true
	s.mu.Unlock()

	if s.mirror != nil {
		if err := s.mirror.SaveSummary(ctx, summary); err != nil {
			log.Printf("summary mirror write error: %v", err)
		}
	}
}

func (s *SummaryStore) LastSummary(ctx context.Context) (domain.CycleSummary, bool, error) {
	s.mu.RLock()
	last, found := s.last, s.found
	s.mu.RUnlock()
	if found || s.mirror == nil {
		return last, found, nil
	}
	return s.mirror.LastSummary(ctx)
}

type CycleJob struct {
	tracer       trace.Tracer
	runner       CycleRunner
	summaries    *SummaryStore
	pollInterval time.Duration
}

func NewCycleJob(tracer trace.Tracer, runner CycleRunner, summaries *SummaryStore, pollInterval time.Duration) *CycleJob {
	if pollInterval <= 0 {
		pollInterval = 5 * time.Minute
	}
	if summaries == nil {
		summaries = NewSummaryStore(nil)
	}
	return &CycleJob{tracer: tracer, runner: runner, summaries: summaries, pollInterval: pollInterval}
}

func (j *CycleJob) Start(ctx context.Context) {
	if j.runner == nil {
		log.Println("Cycle job disabled: no runner")
		<-ctx.Done()
		return
	}

	j.runOnce(ctx)
	ticker := time.NewTicker(j.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.runOnce(ctx)
		}
	}
}

func (j *CycleJob) runOnce(ctx context.Context) {
	_, _ = j.RunNow(ctx)
}

// RunNow runs one cycle outside the ticker and records its summary.
func (j *CycleJob) RunNow(ctx context.Context) (domain.CycleSummary, error) {
	if j.runner == nil {
		return domain.CycleSummary{}, errors.New("cycle job has no runner")
	}
	ctx, span := j.tracer.Start(ctx, "cycle-job.run-once")
	defer span.End()

	summary, err := j.runner.RunCycle(ctx)
	j.summaries.Save(ctx, summary)
	span.SetAttributes(
		attribute.String("cycle_id", summary.ID),
		attribute.Bool("partial", summary.Partial),
	)
	if err != nil {
		log.Printf("Cycle %s error: %v", summary.ID, err)
		return summary, err
	}
	log.Printf(
		"Cycle %s complete events=%d resolved=%d no_match=%d assessed=%d emitted=%d dedup=%d calls=%d failures=%d partial=%t took=%s",
		summary.ID,
		summary.Events,
		summary.Resolved,
		summary.NoMatch,
		summary.Assessed,
		summary.Emitted,
		summary.Deduplicated,
		summary.ExternalCalls,
		len(summary.Failures),
		summary.Partial,
		summary.Duration().Round(time.Millisecond),
	)
	return summary, nil
}
