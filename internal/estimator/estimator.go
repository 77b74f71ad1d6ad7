// Package estimator obtains win-probability estimates for resolved selections.
// The estimates are validated and graded by the ev package, never produced there.
package estimator

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"fixture-edge/internal/domain"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Request describes one selection to estimate.
type Request struct {
	Match     domain.ResolvedMatch
	Event     domain.RawEvent
	Consensus domain.MarketConsensus
}

type Estimator interface {
	Estimate(ctx context.Context, req Request) (float64, error)
}

// Remote marks estimators whose Estimate calls an external service. Only those
// are charged against the per-cycle call cap.
type Remote interface {
	Remote() bool
}

// IsRemote reports whether e makes an external call per estimate.
func IsRemote(e Estimator) bool {
	r, ok := e.(Remote)
	return ok && r.Remote()
}

// LLMClient abstracts the OpenAI chat completions API for testability.
type LLMClient interface {
	CreateChatCompletion(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error)
}

const instruction = `You estimate football outcome probabilities. ` +
	`Reply with JSON only, exactly {"probability_pct": <number between 0 and 100>}.`

type OpenAIEstimator struct {
	tracer trace.Tracer
	llm    LLMClient
	model  string
}

func NewOpenAIEstimator(tracer trace.Tracer, llm LLMClient, model string) *OpenAIEstimator {
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &OpenAIEstimator{tracer: tracer, llm: llm, model: model}
}

func (e *OpenAIEstimator) Remote() bool { return true }

func (e *OpenAIEstimator) Estimate(ctx context.Context, req Request) (float64, error) {
	ctx, span := e.tracer.Start(ctx, "estimator.llm-call")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.model", e.model),
		attribute.String("fixture_id", req.Match.Fixture.FixtureID),
		attribute.String("selection", req.Consensus.Selection()),
	)

	completion, err := e.llm.CreateChatCompletion(ctx, openai.ChatCompletionNewParams{
		Model: e.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(instruction),
			openai.UserMessage(describe(req)),
		},
	})
	if err != nil {
		return 0, domain.Wrap(domain.KindUpstream, "estimator", err)
	}
	if len(completion.Choices) == 0 {
		return 0, domain.Errorf(domain.KindUpstream, "estimator", "no choices in LLM response")
	}

	pct, err := parseProbability(completion.Choices[0].Message.Content)
	if err != nil {
		return 0, err
	}
	span.SetAttributes(attribute.Float64("probability_pct", pct))
	return pct, nil
}

func describe(req Request) string {
	f := req.Match.Fixture
	c := req.Consensus
	var b strings.Builder
	fmt.Fprintf(&b, "%s vs %s, %s", f.Home, f.Away, f.League)
	if f.Country != "" {
		fmt.Fprintf(&b, " (%s)", f.Country)
	}
	fmt.Fprintf(&b, ", kickoff %s UTC.\n", f.StartTime.UTC().Format("2006-01-02 15:04"))
	fmt.Fprintf(&b, "Market %s, outcome %s", c.MarketKey, c.Outcome)
	if c.Point != nil {
		fmt.Fprintf(&b, " line %g", *c.Point)
	}
	fmt.Fprintf(&b, ". Median price %.2f across %d bookmakers.", c.MedianPrice, c.BookmakerCount)
	return b.String()
}

// parseProbability accepts a bare JSON object, optionally inside a code fence.
func parseProbability(content string) (float64, error) {
	s := strings.TrimSpace(content)
	if i := strings.Index(s, "{"); i >= 0 {
		if j := strings.LastIndex(s, "}"); j > i {
			s = s[i : j+1]
		}
	}
	var out struct {
		ProbabilityPct *float64 `json:"probability_pct"`
	}
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return 0, domain.Wrap(domain.KindUpstream, "estimator_decode", fmt.Errorf("parse estimate %q: %w", content, err))
	}
	if out.ProbabilityPct == nil {
		return 0, domain.Errorf(domain.KindUpstream, "estimator_decode", "estimate missing probability_pct: %q", content)
	}
	v := *out.ProbabilityPct
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, domain.Errorf(domain.KindValidation, "probability_not_finite", "estimate is not finite")
	}
	return v, nil
}

// FairEstimator uses the vig-free consensus probability. It makes no external
// call and serves as the estimator when no model is configured.
type FairEstimator struct{}

func (FairEstimator) Estimate(_ context.Context, req Request) (float64, error) {
	p := req.Consensus.FairProbability
	if p <= 0 {
		return 0, domain.Errorf(domain.KindInvalidMarketData, "no_fair_probability", "no fair probability for %s", req.Consensus.Selection())
	}
	return p * 100, nil
}

// Budget caps external calls within a cycle.
type Budget interface {
	TryCall() error
}

// Budgeted charges every estimate against a cycle budget before delegating.
// It is itself Remote so a wrapped estimator is never charged twice.
type Budgeted struct {
	next   Estimator
	budget Budget
}

func NewBudgeted(next Estimator, budget Budget) *Budgeted {
	return &Budgeted{next: next, budget: budget}
}

func (b *Budgeted) Remote() bool { return true }

func (b *Budgeted) Estimate(ctx context.Context, req Request) (float64, error) {
	if err := b.budget.TryCall(); err != nil {
		return 0, err
	}
	return b.next.Estimate(ctx, req)
}

// openaiClient wraps the official SDK's chat completions service.
type openaiClient struct {
	client openai.Client
}

func NewOpenAIClient(apiKey string) LLMClient {
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &openaiClient{client: client}
}

func (c *openaiClient) CreateChatCompletion(
	ctx context.Context,
	params openai.ChatCompletionNewParams,
) (*openai.ChatCompletion, error) {
	return c.client.Chat.Completions.New(ctx, params)
}
