package generator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/seminarlabs/seminar-core/internal/config"
	"github.com/seminarlabs/seminar-core/internal/persona"
	"github.com/seminarlabs/seminar-core/internal/queue"
)

// Adapter wraps a Generator backend with bounded retries, roster filtering
// and batch clamping. Exhausted retries yield an empty batch, never an
// error: callers treat "no new content" as a quiet conversation.
type Adapter struct {
	gen Generator
	cfg config.GeneratorConfig
	log *slog.Logger

	latency  metric.Float64Histogram
	failures metric.Int64Counter
}

// FromConfig builds the configured backend wrapped in an Adapter.
func FromConfig(cfg config.GeneratorConfig, log *slog.Logger) (*Adapter, error) {
	var gen Generator
	var err error
	switch cfg.Mode {
	case "mock":
		gen = NewMockGenerator()
	case "ollama":
		gen = NewOllamaGenerator(cfg.Endpoint, cfg.Model)
	case "exec":
		gen, err = NewExecGenerator(cfg.Command)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown generator mode %q", cfg.Mode)
	}
	return NewAdapter(gen, cfg, log), nil
}

func NewAdapter(gen Generator, cfg config.GeneratorConfig, log *slog.Logger) *Adapter {
	meter := otel.Meter("seminar.generator")
	latency, _ := meter.Float64Histogram("seminar.generator.latency_ms",
		metric.WithDescription("Latency of one successful generation call"))
	failures, _ := meter.Int64Counter("seminar.generator.failures",
		metric.WithDescription("Generation attempts that returned an error"))
	if cfg.RetryWaitMS <= 0 {
		cfg.RetryWaitMS = 500
	}
	return &Adapter{
		gen:      gen,
		cfg:      cfg,
		log:      log.With(slog.String("component", "generator")),
		latency:  latency,
		failures: failures,
	}
}

// GenerateBatch runs one generation request with up to cfg.MaxAttempts
// tries. The result is parsed, stripped of any draft attributed to the
// human persona or to an id outside the roster, and clamped to
// cfg.MaxDrafts. On exhaustion it returns an empty batch.
func (a *Adapter) GenerateBatch(ctx context.Context, req Request) []queue.Draft {
	if req.MaxDrafts <= 0 {
		req.MaxDrafts = a.cfg.MaxDrafts
	}
	if req.MaxTokens == 0 {
		req.MaxTokens = a.cfg.MaxTokens
	}
	if req.Temperature == 0 {
		req.Temperature = a.cfg.Temperature
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = time.Duration(a.cfg.RetryWaitMS) * time.Millisecond

	start := time.Now()
	raw, err := backoff.Retry(ctx, func() (string, error) {
		out, err := a.gen.Complete(ctx, req)
		if err != nil {
			a.failures.Add(ctx, 1)
			a.log.Warn("generation attempt failed", slog.String("error", err.Error()))
			return "", err
		}
		return out, nil
	}, backoff.WithBackOff(policy), backoff.WithMaxTries(uint(a.cfg.MaxAttempts)))
	if err != nil {
		a.log.Warn("generation exhausted retries, returning empty batch",
			slog.Int("attempts", a.cfg.MaxAttempts),
			slog.String("error", err.Error()))
		return nil
	}
	a.latency.Record(ctx, float64(time.Since(start).Milliseconds()))

	drafts := toDrafts(parseDrafts(raw))
	drafts = a.filterRoster(req.Roster, drafts)
	if len(drafts) > req.MaxDrafts {
		drafts = drafts[:req.MaxDrafts]
	}
	return drafts
}

// filterRoster drops drafts attributed to the human persona or to ids the
// roster does not contain.
func (a *Adapter) filterRoster(roster *persona.Roster, drafts []queue.Draft) []queue.Draft {
	out := drafts[:0]
	for _, d := range drafts {
		p, ok := roster.Resolve(d.PersonaRef)
		if !ok {
			a.log.Warn("dropping draft for unknown persona", slog.String("persona", d.PersonaRef))
			continue
		}
		if persona.IsHuman(p) {
			a.log.Warn("dropping draft attributed to human persona", slog.String("persona", d.PersonaRef))
			continue
		}
		out = append(out, d)
	}
	return out
}
