package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/kevinvandever/secureask/internal/engine"
	"github.com/kevinvandever/secureask/internal/entity"
	"github.com/kevinvandever/secureask/internal/evidence"
	"github.com/kevinvandever/secureask/internal/fetch"
	"github.com/kevinvandever/secureask/internal/resilience"
	"github.com/kevinvandever/secureask/internal/store"
	"github.com/kevinvandever/secureask/pkg/edgar"
	"github.com/kevinvandever/secureask/pkg/graph"
	"github.com/kevinvandever/secureask/pkg/reddit"
	"github.com/kevinvandever/secureask/pkg/tiktok"
)

// queryEnv holds the initialized store, source clients, and engine shared by
// the ask/serve commands.
type queryEnv struct {
	Store    store.Store
	Engine   *engine.Engine
	Breakers *resilience.ServiceBreakers
}

// Close releases resources held by the query environment.
func (qe *queryEnv) Close() {
	if qe.Store != nil {
		_ = qe.Store.Close()
	}
}

// initEngine validates config for the given mode, opens the store, builds
// the source clients (live or demo), and assembles the engine. Callers
// should defer env.Close().
func initEngine(ctx context.Context, mode string) (*queryEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	cache := fetch.NewCache(st)
	breakers := resilience.NewServiceBreakers(resilience.CircuitBreakerConfig{})

	var (
		edgarClient  edgar.Client
		redditClient reddit.Client
		tiktokClient tiktok.Client
		graphClient  graph.Client
	)

	if cfg.Demo {
		zap.L().Info("demo mode: serving built-in fixtures, no network calls")
		edgarClient = edgar.NewDemoClient()
		redditClient = reddit.NewDemoClient()
		tiktokClient = tiktok.NewDemoClient()
		graphClient = graph.NewDemoClient()
	} else {
		edgarClient = edgar.NewClient(
			edgar.WithBaseURL(cfg.Edgar.BaseURL),
			edgar.WithUserAgent(cfg.Edgar.UserAgent),
		)
		redditClient = reddit.NewClient(
			reddit.WithBaseURL(cfg.Reddit.BaseURL),
			reddit.WithUserAgent(cfg.Reddit.UserAgent),
		)
		if cfg.TikTok.Token != "" {
			tiktokClient = tiktok.NewClient(cfg.TikTok.Token,
				tiktok.WithBaseURL(cfg.TikTok.BaseURL),
				tiktok.WithActor(cfg.TikTok.Actor),
			)
		} else {
			zap.L().Warn("tiktok api token not set, tiktok source disabled")
		}
		if cfg.Graph.BaseURL != "" {
			graphClient = graph.NewClient(cfg.Graph.BaseURL, graph.WithAPIKey(cfg.Graph.Key))
			zap.L().Info("graph service enabled", zap.String("base_url", cfg.Graph.BaseURL))
		} else {
			zap.L().Debug("graph service not configured, queries run without graph context")
		}
	}

	extractor, err := initExtractor()
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	ranker, err := initRanker()
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	fetchers := []fetch.SourceFetcher{
		fetch.NewSECFetcher(edgarClient, cache,
			time.Duration(cfg.Fetch.SECTTLSecs)*time.Second, breakers.Get("edgar")),
		fetch.NewRedditFetcher(redditClient, cache,
			time.Duration(cfg.Fetch.RedditTTLSecs)*time.Second, breakers.Get("reddit")),
	}
	if tiktokClient != nil {
		fetchers = append(fetchers, fetch.NewTikTokFetcher(tiktokClient, cache,
			time.Duration(cfg.Fetch.TikTokTTLSecs)*time.Second, breakers.Get("tiktok")))
	}

	// query_ttl_secs 0 disables whole-query caching rather than taking the
	// engine default.
	queryTTL := time.Duration(cfg.Fetch.QueryTTLSecs) * time.Second
	if cfg.Fetch.QueryTTLSecs == 0 {
		queryTTL = -1
	}

	eng := engine.New(engine.Config{
		Store:         st,
		Cache:         cache,
		Graph:         graphClient,
		Extractor:     extractor,
		Ranker:        ranker,
		Fetchers:      fetchers,
		SourceTimeout: time.Duration(cfg.Fetch.SourceTimeoutSecs) * time.Second,
		QueryTTL:      queryTTL,
	})

	return &queryEnv{
		Store:    st,
		Engine:   eng,
		Breakers: breakers,
	}, nil
}

// initExtractor loads the ticker alias rules, built-in unless overridden.
func initExtractor() (*entity.Extractor, error) {
	if cfg.Entity.RulesFile == "" {
		return entity.NewExtractor(nil), nil
	}
	rules, err := entity.LoadRules(cfg.Entity.RulesFile)
	if err != nil {
		return nil, eris.Wrap(err, "load entity rules")
	}
	zap.L().Info("entity rules loaded",
		zap.String("file", cfg.Entity.RulesFile),
		zap.Int("rules", len(rules)),
	)
	return entity.NewExtractor(rules), nil
}

// initRanker loads the evidence keyword weights, built-in unless overridden.
func initRanker() (*evidence.Ranker, error) {
	if cfg.Evidence.KeywordsFile == "" {
		return evidence.NewRanker(nil), nil
	}
	keywords, err := evidence.LoadKeywords(cfg.Evidence.KeywordsFile)
	if err != nil {
		return nil, eris.Wrap(err, "load evidence keywords")
	}
	zap.L().Info("evidence keywords loaded",
		zap.String("file", cfg.Evidence.KeywordsFile),
		zap.Int("keywords", len(keywords)),
	)
	return evidence.NewRanker(keywords), nil
}
