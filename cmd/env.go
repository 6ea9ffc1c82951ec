package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/museumatlas/curator/internal/cost"
	"github.com/museumatlas/curator/internal/drift"
	"github.com/museumatlas/curator/internal/judge"
	"github.com/museumatlas/curator/internal/pipeline"
	"github.com/museumatlas/curator/internal/record"
	"github.com/museumatlas/curator/internal/resilience"
	"github.com/museumatlas/curator/internal/source"
	"github.com/museumatlas/curator/internal/store"
	anthropicpkg "github.com/museumatlas/curator/pkg/anthropic"
)

// env bundles the wired dependencies a pipeline command needs.
type env struct {
	Store        store.Store
	Budget       *cost.BudgetState
	Orchestrator *pipeline.Orchestrator
}

func (e *env) Close() {
	if err := e.Store.Close(); err != nil {
		zap.L().Warn("close store", zap.Error(err))
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "curator.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initEnv wires the store, the source adapters, and the orchestrator from
// config. The shared budget backs every partition a batch run touches.
func initEnv(ctx context.Context, dryRun bool) (*env, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	calc := cost.NewCalculator(cfg.Pricing)
	budget := cost.NewBudgetState(cfg.Budget.TotalUSD, cfg.Budget.ReserveRatio)
	policy := resilience.PolicyFromConfig(
		cfg.Retry.MaxAttempts, cfg.Retry.BaseDelayMs, cfg.Retry.MaxDelayMs,
		cfg.Retry.Growth, cfg.Retry.JitterFraction,
	)
	breakers := resilience.NewBreakerSet(
		cfg.Breaker.FailureThreshold,
		time.Duration(cfg.Breaker.CooldownSecs)*time.Second,
	)
	cacheTTL := time.Duration(cfg.Pipeline.CacheTTLHours) * time.Hour

	var backbone source.Provider
	if cfg.Backbone.Path != "" {
		bb, err := source.LoadBackbone(cfg.Backbone.Path)
		if err != nil {
			_ = st.Close()
			return nil, eris.Wrap(err, "load backbone")
		}
		backbone = bb
	} else {
		backbone = source.NewBackbone(nil)
	}

	ency := source.NewEncyclopedia(
		cfg.Encyclopedia.BaseURL, cfg.Encyclopedia.Key,
		source.WithLookupCost(calc.EncyclopediaQuery()),
		source.WithCostSink(budget.Record),
	)
	encyclopedia := source.WithCache(
		source.WithResilience(ency, policy, breakers.For(ency.Name())),
		st, cacheTTL,
	)

	judgeProvider := judge.New(
		anthropicpkg.NewClient(cfg.Judge.Key), cfg.Judge.Model, calc,
		judge.WithMaxTokens(cfg.Judge.MaxTokens),
		judge.WithRateLimit(cfg.Judge.RatePerSec, cfg.Judge.RateBurst),
		judge.WithRetryPolicy(policy),
		judge.WithCostSink(budget.Record),
	)

	var gold drift.GoldSet
	if cfg.GoldSet.Path != "" {
		gold, err = drift.LoadGoldSet(cfg.GoldSet.Path)
		if err != nil {
			_ = st.Close()
			return nil, err
		}
	}

	applier := record.NewApplier(record.Gates{
		ConfidenceThreshold: cfg.Thresholds.Confidence,
		VolatileFields:      cfg.Fields.Volatile,
		DomainFields:        domainFields(cfg.Fields.ArtOnly),
	})

	orch := pipeline.New(st, applier, backbone, encyclopedia, judgeProvider, budget, gold, pipeline.Params{
		TopN:           cfg.Pipeline.TopN,
		PrereqCoverage: cfg.Pipeline.PrereqCoverage,
		FailureRateMax: cfg.Thresholds.FailureRate,
		DriftThreshold: cfg.Thresholds.DriftRate,
		DryRun:         dryRun || cfg.Pipeline.DryRun,
	})

	return &env{Store: st, Budget: budget, Orchestrator: orch}, nil
}

func domainFields(artOnly []string) map[string]string {
	m := make(map[string]string, len(artOnly))
	for _, f := range artOnly {
		m[f] = "art"
	}
	return m
}
