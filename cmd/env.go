package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/govscout/internal/backfill"
	"github.com/sells-group/govscout/internal/fetcher"
	"github.com/sells-group/govscout/internal/matcher"
	"github.com/sells-group/govscout/internal/scout"
	"github.com/sells-group/govscout/internal/semantic"
	"github.com/sells-group/govscout/internal/source"
	"github.com/sells-group/govscout/internal/spending"
	"github.com/sells-group/govscout/internal/state"
	"github.com/sells-group/govscout/internal/store"
	"github.com/sells-group/govscout/pkg/anthropic"
)

// pipelineEnv holds the initialized store, source adapters, and
// coordinators shared by the serve/scout/backfill commands.
type pipelineEnv struct {
	Store       store.Store
	Checkpoints state.Store
	Engine      *matcher.Engine
	SAM         *source.SAMClient
	Sources     []source.Adapter
	Scout       *scout.Coordinator
	Backfill    *backfill.Coordinator
	Scorer      *semantic.Scorer
	Generator   *semantic.Generator
	Spending    *spending.Client
}

// Close releases store and checkpoint handles.
func (pe *pipelineEnv) Close() {
	if pe.Checkpoints != nil {
		_ = pe.Checkpoints.Close()
	}
	if pe.Store != nil {
		pe.Store.Close()
	}
}

// initStore opens Postgres when configured, otherwise an in-memory store
// so the pipeline still runs without persistence.
func initStore(ctx context.Context) (store.Store, error) {
	if cfg.Store.DatabaseURL == "" {
		zap.L().Warn("GOVSCOUT_STORE_DATABASE_URL not set, using in-memory store")
		return store.NewMemory(), nil
	}
	return store.NewPostgres(ctx, cfg.Store.DatabaseURL)
}

// initEnv wires the full pipeline. Callers should defer env.Close().
func initEnv(ctx context.Context) (*pipelineEnv, error) {
	if err := cfg.Validate("sam"); err != nil {
		return nil, err
	}
	if err := cfg.Validate("matcher"); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	checkpoints, err := state.NewSQLite(cfg.State.Path)
	if err != nil {
		st.Close()
		return nil, err
	}

	httpClient := fetcher.New(fetcher.Options{
		Timeout:           time.Duration(cfg.SAM.TimeoutSecs) * time.Second,
		UserAgent:         cfg.SubNet.UserAgent,
		RequestsPerSecond: cfg.SAM.RequestsPerSecond,
	})

	sam := source.NewSAMClient(httpClient, source.SAMOptions{
		BaseURL: cfg.SAM.BaseURL,
		APIKey:  cfg.SAM.APIKey,
	})
	sources := []source.Adapter{sam}

	if cfg.SubNet.Enabled {
		sources = append(sources, source.NewSubNetClient(httpClient, source.SubNetOptions{
			ListURL: cfg.SubNet.ListURL,
		}))
	}
	if cfg.Portals.RegistryPath != "" {
		reg, err := source.LoadPortalRegistry(cfg.Portals.RegistryPath)
		if err != nil {
			checkpointClose(checkpoints, st)
			return nil, err
		}
		sources = append(sources, reg.Adapters(httpClient)...)
		zap.L().Info("portal registry loaded", zap.Int("portals", len(reg.Portals)))
	}

	engine := matcher.New(matcher.Config{
		HighThreshold:   cfg.Matcher.HighThreshold,
		MediumThreshold: cfg.Matcher.MediumThreshold,
	})

	var claude anthropic.Client
	if cfg.Semantic.APIKey != "" {
		claude = anthropic.NewClient(cfg.Semantic.APIKey)
	} else {
		zap.L().Info("GOVSCOUT_SEMANTIC_API_KEY not set, semantic scoring disabled")
	}

	env := &pipelineEnv{
		Store:       st,
		Checkpoints: checkpoints,
		Engine:      engine,
		SAM:         sam,
		Sources:     sources,
		Generator:   semantic.NewGenerator(claude),
		Spending:    spending.New(httpClient, st, ""),
	}
	env.Scorer = semantic.NewScorer(claude, st, engine, semantic.Options{
		Model:     cfg.Semantic.Model,
		MaxPerRun: cfg.Semantic.MaxPerRun,
	})
	env.Scout = scout.New(sources, st, checkpoints, engine, scout.Options{
		ScoreThreshold: cfg.Scout.ScoreThreshold,
		FetchLimit:     cfg.Scout.FetchLimit,
		Interval:       time.Duration(cfg.Scout.IntervalHours) * time.Hour,
	})
	env.Backfill = backfill.New(sam, st, checkpoints, backfill.Options{
		PageSize:       cfg.Backfill.PageSize,
		RateLimitPause: time.Duration(cfg.Backfill.RateLimitPauseSecs * float64(time.Second)),
		MaxPageRetries: cfg.Backfill.MaxPageRetries,
		MonthPause:     time.Duration(cfg.Backfill.MonthPauseSecs * float64(time.Second)),
		PagePause:      time.Duration(cfg.Backfill.PagePauseSecs * float64(time.Second)),
	})

	return env, nil
}

func checkpointClose(checkpoints state.Store, st store.Store) {
	_ = checkpoints.Close()
	st.Close()
}
