// Package judge scores museums on their subjective dimensions using an LLM.
// Its output is never authoritative: envelopes carry model-level trust, so
// the volatility gate routes them to review unless confidence is high and a
// better source has not already claimed the field.
package judge

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/museumatlas/curator/internal/cost"
	"github.com/museumatlas/curator/internal/model"
	"github.com/museumatlas/curator/internal/resilience"
	"github.com/museumatlas/curator/pkg/anthropic"
)

const systemPrompt = `You are a museum assessment judge. Given a museum's ` +
	`known details, score it on fixed scales and reply with a single JSON ` +
	`object, no prose:
{
  "collection_strength": 0-5,
  "exhibition_strength": 0-5,
  "historical_context": 0-5,
  "reputation_penalty": 0-3,
  "collection_tier": 0-3,
  "visit_duration": "under_1h" | "1_3h" | "3_6h" | "multi_day",
  "confidence": 1-5
}
Omit any key you cannot judge. collection_tier and reputation_penalty are ` +
	`penalties: 0 is best. confidence reflects how much the provided details ` +
	`actually support your scores.`

// estimatedInputTokens is a conservative per-record prompt size used for the
// budget reserve check before the real token count is known.
const estimatedInputTokens = 1500

// scorePayload is the JSON shape the model is asked for.
type scorePayload struct {
	CollectionStrength *int   `json:"collection_strength"`
	ExhibitionStrength *int   `json:"exhibition_strength"`
	HistoricalContext  *int   `json:"historical_context"`
	ReputationPenalty  *int   `json:"reputation_penalty"`
	CollectionTier     *int   `json:"collection_tier"`
	VisitDuration      string `json:"visit_duration"`
	Confidence         int    `json:"confidence"`
}

// Judge is the LLM-backed scoring adapter. It satisfies the source.Provider
// contract so the scoring stage treats it like any other source.
type Judge struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	limiter   *rate.Limiter
	policy    resilience.Policy
	calc      *cost.Calculator
	onCost    func(usd float64)
	now       func() time.Time
}

// Option configures the judge.
type Option func(*Judge)

// WithRateLimit caps request throughput.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(j *Judge) { j.limiter = rate.NewLimiter(rate.Limit(perSecond), burst) }
}

// WithRetryPolicy overrides the default retry policy.
func WithRetryPolicy(p resilience.Policy) Option {
	return func(j *Judge) { j.policy = p }
}

// WithMaxTokens overrides the response token cap.
func WithMaxTokens(n int64) Option {
	return func(j *Judge) { j.maxTokens = n }
}

// WithCostSink registers a callback invoked with the actual cost of every
// completed call. The orchestrator points this at the run's budget.
func WithCostSink(fn func(usd float64)) Option {
	return func(j *Judge) { j.onCost = fn }
}

// New creates a judge for the given model.
func New(client anthropic.Client, modelName string, calc *cost.Calculator, opts ...Option) *Judge {
	j := &Judge{
		client:    client,
		model:     modelName,
		maxTokens: 512,
		limiter:   rate.NewLimiter(rate.Limit(2), 4),
		policy:    resilience.DefaultPolicy(),
		calc:      calc,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

func (j *Judge) Name() string            { return "llm_judge" }
func (j *Judge) Trust() model.TrustLevel { return model.TrustModelGuess }

// CostUSD estimates one scoring call at the full response cap.
func (j *Judge) CostUSD() float64 {
	return j.calc.Claude(j.model, estimatedInputTokens, int(j.maxTokens))
}

// Lookup scores one museum. Subjective scores come back at model_guess
// trust; visit_duration is extracted from provided text and carries
// model_extracted.
func (j *Judge) Lookup(ctx context.Context, m *model.Museum) (map[string]model.EnrichedField, error) {
	if err := j.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "judge: rate limit wait")
	}

	resp, err := resilience.Retry(ctx, j.policy, "judge_score", func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return j.client.CreateMessage(ctx, anthropic.MessageRequest{
			Model:     j.model,
			MaxTokens: j.maxTokens,
			System:    systemPrompt,
			Messages: []anthropic.Message{
				{Role: "user", Content: describeMuseum(m)},
			},
		})
	})
	if err != nil {
		return nil, eris.Wrapf(err, "judge: score %s", m.ID)
	}

	if j.onCost != nil {
		j.onCost(j.calc.Claude(j.model, int(resp.Usage.InputTokens), int(resp.Usage.OutputTokens)))
	}

	var payload scorePayload
	if err := json.Unmarshal([]byte(cleanJSON(resp.Text)), &payload); err != nil {
		return nil, eris.Wrapf(err, "judge: parse scores for %s", m.ID)
	}

	confidence := payload.Confidence
	if confidence < 1 {
		confidence = 1
	} else if confidence > 5 {
		confidence = 5
	}

	now := j.now().UTC()
	fields := make(map[string]model.EnrichedField)
	addScore := func(key string, v *int, max int) {
		if v == nil || *v < 0 || *v > max {
			return
		}
		f, err := model.NewEnrichedField(*v, j.Name(), model.TrustModelGuess, confidence, now)
		if err != nil {
			return
		}
		fields[key] = f
	}

	addScore("collection_strength", payload.CollectionStrength, 5)
	addScore("exhibition_strength", payload.ExhibitionStrength, 5)
	addScore("historical_context", payload.HistoricalContext, 5)
	addScore("reputation_penalty", payload.ReputationPenalty, 3)
	addScore("collection_tier", payload.CollectionTier, 3)

	if payload.VisitDuration != "" {
		if f, err := model.NewEnrichedField(payload.VisitDuration, j.Name(), model.TrustModelExtracted, confidence, now); err == nil {
			fields["visit_duration"] = f
		}
	}

	zap.L().Debug("judge: scored museum",
		zap.String("museum", m.ID),
		zap.Int("fields", len(fields)),
		zap.Int("confidence", confidence),
	)
	return fields, nil
}

func describeMuseum(m *model.Museum) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Museum: %s\n", m.Name)
	if m.City != "" || m.Country != "" {
		fmt.Fprintf(&b, "Location: %s, %s\n", m.City, m.Country)
	}
	if m.MuseumType != "" {
		fmt.Fprintf(&b, "Type: %s\n", m.MuseumType)
	}
	if m.Website != "" {
		fmt.Fprintf(&b, "Website: %s\n", m.Website)
	}
	if m.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", m.Description)
	}
	return b.String()
}

// cleanJSON strips code fences and surrounding prose from a model reply.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}
	return strings.TrimSpace(text)
}
