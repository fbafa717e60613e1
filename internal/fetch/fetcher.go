package fetch

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kevinvandever/secureask/internal/model"
	"github.com/kevinvandever/secureask/internal/resilience"
	"github.com/kevinvandever/secureask/pkg/edgar"
	"github.com/kevinvandever/secureask/pkg/reddit"
	"github.com/kevinvandever/secureask/pkg/tiktok"
)

const (
	secFilingType = "10-K"
	fetchLimit    = 10
)

// SourceFetcher fetches evidence for one source class. Fetch never returns a
// Go error: failures come back as envelopes with Success=false so one source
// cannot abort a query's other sources. The key is the fetch subject (ticker
// for filings, search terms for social sources).
type SourceFetcher interface {
	Source() model.SourceType
	Fetch(ctx context.Context, key string) *model.SourceResponse
}

// fetcher is the shared cache-probe / call / cache-write skeleton behind all
// three source classes.
type fetcher struct {
	source  model.SourceType
	cache   *Cache
	ttl     time.Duration
	breaker *resilience.CircuitBreaker
	keyFn   func(key string) string
	callFn  func(ctx context.Context, key string) ([]map[string]any, error)
}

func (f *fetcher) Source() model.SourceType {
	return f.source
}

func (f *fetcher) Fetch(ctx context.Context, key string) *model.SourceResponse {
	key = strings.TrimSpace(key)
	if key == "" {
		return &model.SourceResponse{
			Source:  f.source,
			Success: false,
			Error:   "no search key resolved from question",
		}
	}

	cacheKey := f.keyFn(key)
	if cached, ok := f.cache.Get(ctx, cacheKey); ok {
		zap.L().Debug("source cache hit",
			zap.String("source", string(f.source)),
			zap.String("cache_key", cacheKey),
		)
		cached.Cached = true
		return cached
	}

	start := time.Now()
	records, err := f.callRecords(ctx, key)
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		zap.L().Warn("source fetch failed",
			zap.String("source", string(f.source)),
			zap.String("key", key),
			zap.Error(err),
		)
		return &model.SourceResponse{
			Source:         f.source,
			Success:        false,
			Error:          err.Error(),
			ResponseTimeMS: elapsed,
		}
	}

	envelope := &model.SourceResponse{
		Source:         f.source,
		Success:        true,
		Records:        records,
		ResponseTimeMS: elapsed,
	}
	f.cache.Set(ctx, cacheKey, envelope, f.ttl)
	return envelope
}

func (f *fetcher) callRecords(ctx context.Context, key string) ([]map[string]any, error) {
	if f.breaker == nil {
		return f.callFn(ctx, key)
	}
	return resilience.ExecuteVal(ctx, f.breaker, func(ctx context.Context) ([]map[string]any, error) {
		return f.callFn(ctx, key)
	})
}

// NewSECFetcher returns the regulatory-filings fetcher. The fetch key is the
// company ticker; an empty ticker means no identifier resolved from the
// question and fails the envelope without touching the network.
func NewSECFetcher(client edgar.Client, cache *Cache, ttl time.Duration, breaker *resilience.CircuitBreaker) SourceFetcher {
	return &fetcher{
		source:  model.SourceSEC,
		cache:   cache,
		ttl:     ttl,
		breaker: breaker,
		keyFn: func(key string) string {
			return SECFilingsKey(key, secFilingType)
		},
		callFn: func(ctx context.Context, key string) ([]map[string]any, error) {
			filings, err := client.SearchFilings(ctx, key, secFilingType, fetchLimit)
			if err != nil {
				return nil, err
			}
			return secRecords(key, filings), nil
		},
	}
}

// NewRedditFetcher returns the forum-discussion fetcher keyed by search terms.
func NewRedditFetcher(client reddit.Client, cache *Cache, ttl time.Duration, breaker *resilience.CircuitBreaker) SourceFetcher {
	return &fetcher{
		source:  model.SourceReddit,
		cache:   cache,
		ttl:     ttl,
		breaker: breaker,
		keyFn:   RedditPostsKey,
		callFn: func(ctx context.Context, key string) ([]map[string]any, error) {
			posts, err := client.SearchPosts(ctx, key, fetchLimit)
			if err != nil {
				return nil, err
			}
			return redditRecords(posts), nil
		},
	}
}

// NewTikTokFetcher returns the short-video fetcher keyed by search terms.
func NewTikTokFetcher(client tiktok.Client, cache *Cache, ttl time.Duration, breaker *resilience.CircuitBreaker) SourceFetcher {
	return &fetcher{
		source:  model.SourceTikTok,
		cache:   cache,
		ttl:     ttl,
		breaker: breaker,
		keyFn:   TikTokContentKey,
		callFn: func(ctx context.Context, key string) ([]map[string]any, error) {
			videos, err := client.SearchContent(ctx, key, fetchLimit)
			if err != nil {
				return nil, err
			}
			return tiktokRecords(videos), nil
		},
	}
}

func secRecords(ticker string, filings []edgar.Filing) []map[string]any {
	records := make([]map[string]any, 0, len(filings))
	for _, f := range filings {
		records = append(records, map[string]any{
			"company":     f.Company,
			"ticker":      strings.ToUpper(strings.TrimSpace(ticker)),
			"filing_type": f.FilingType,
			"url":         f.URL,
			"content":     f.Content,
			"date":        f.Date,
			"cik":         f.CIK,
			"accession":   f.Accession,
		})
	}
	return records
}

func redditRecords(posts []reddit.Post) []map[string]any {
	records := make([]map[string]any, 0, len(posts))
	for _, p := range posts {
		records = append(records, map[string]any{
			"title":        p.Title,
			"content":      p.Content,
			"url":          p.URL,
			"subreddit":    p.Subreddit,
			"score":        p.Score,
			"num_comments": p.NumComments,
			"created_utc":  p.CreatedUTC,
		})
	}
	return records
}

func tiktokRecords(videos []tiktok.Video) []map[string]any {
	records := make([]map[string]any, 0, len(videos))
	for _, v := range videos {
		records = append(records, map[string]any{
			"title":       v.Title,
			"content":     v.Content,
			"url":         v.URL,
			"author":      v.Author,
			"views":       v.Views,
			"likes":       v.Likes,
			"comments":    v.Comments,
			"created_utc": v.CreatedUTC,
			"hashtags":    v.Hashtags,
		})
	}
	return records
}
