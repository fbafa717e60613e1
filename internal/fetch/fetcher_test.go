package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kevinvandever/secureask/internal/model"
	"github.com/kevinvandever/secureask/internal/resilience"
	"github.com/kevinvandever/secureask/pkg/edgar"
	"github.com/kevinvandever/secureask/pkg/reddit"
	"github.com/kevinvandever/secureask/pkg/tiktok"
)

type fakeEdgarClient struct {
	filings []edgar.Filing
	err     error
	calls   atomic.Int32
}

func (f *fakeEdgarClient) SearchFilings(_ context.Context, _, _ string, _ int) ([]edgar.Filing, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return f.filings, nil
}

type fakeRedditClient struct {
	posts []reddit.Post
	err   error
	calls atomic.Int32
}

func (f *fakeRedditClient) SearchPosts(_ context.Context, _ string, _ int) ([]reddit.Post, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return f.posts, nil
}

type fakeTikTokClient struct {
	videos []tiktok.Video
	err    error
	calls  atomic.Int32
}

func (f *fakeTikTokClient) SearchContent(_ context.Context, _ string, _ int) ([]tiktok.Video, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return f.videos, nil
}

func TestSECFetcherBuildsRecords(t *testing.T) {
	t.Parallel()

	client := &fakeEdgarClient{filings: []edgar.Filing{
		{
			Company:    "Apple Inc.",
			FilingType: "10-K",
			URL:        "https://www.sec.gov/Archives/edgar/data/320193/aapl-10k.htm",
			Content:    "Climate change poses risks to our supply chain.",
			Date:       "2023-11-03",
			CIK:        "0000320193",
			Accession:  "0000320193-23-000106",
		},
		{Company: "Apple Inc.", FilingType: "10-K", URL: "https://www.sec.gov/second.htm"},
	}}
	f := NewSECFetcher(client, NewCache(nil), time.Minute, nil)

	assert.Equal(t, model.SourceSEC, f.Source())

	resp := f.Fetch(context.Background(), "aapl")
	require.True(t, resp.Success)
	assert.Equal(t, model.SourceSEC, resp.Source)
	assert.False(t, resp.Cached)
	assert.Empty(t, resp.Error)
	require.Len(t, resp.Records, 2)

	rec := resp.Records[0]
	assert.Equal(t, "Apple Inc.", rec["company"])
	assert.Equal(t, "AAPL", rec["ticker"])
	assert.Equal(t, "10-K", rec["filing_type"])
	assert.Equal(t, "https://www.sec.gov/Archives/edgar/data/320193/aapl-10k.htm", rec["url"])
	assert.Equal(t, "Climate change poses risks to our supply chain.", rec["content"])
	assert.Equal(t, "2023-11-03", rec["date"])
	assert.Equal(t, "0000320193", rec["cik"])
	assert.Equal(t, "0000320193-23-000106", rec["accession"])
}

func TestFetcherServesCachedEnvelope(t *testing.T) {
	t.Parallel()

	cache, _ := newTestCache(t)
	client := &fakeEdgarClient{filings: []edgar.Filing{
		{Company: "Apple Inc.", FilingType: "10-K", URL: "https://www.sec.gov/a.htm", Content: "Risk factors."},
	}}
	f := NewSECFetcher(client, cache, time.Minute, nil)
	ctx := context.Background()

	first := f.Fetch(ctx, "AAPL")
	require.True(t, first.Success)
	assert.False(t, first.Cached)

	second := f.Fetch(ctx, "AAPL")
	require.True(t, second.Success)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Records, second.Records)
	assert.Equal(t, int32(1), client.calls.Load())
}

func TestRedditFetcherRecordIdentityAcrossCache(t *testing.T) {
	t.Parallel()

	cache, _ := newTestCache(t)
	client := &fakeRedditClient{posts: []reddit.Post{
		{
			ID:          "abc123",
			Title:       "Apple ESG discussion",
			Content:     "Their supply chain audits improved this year.",
			URL:         "https://reddit.com/r/investing/comments/abc123",
			Subreddit:   "investing",
			Score:       147,
			NumComments: 32,
			CreatedUTC:  "2024-05-18T09:30:00Z",
		},
	}}
	f := NewRedditFetcher(client, cache, time.Minute, nil)
	ctx := context.Background()

	fresh := f.Fetch(ctx, "apple esg risks")
	require.True(t, fresh.Success)
	require.Len(t, fresh.Records, 1)
	assert.Equal(t, 147, fresh.Records[0]["score"])
	assert.Equal(t, "investing", fresh.Records[0]["subreddit"])

	cached := f.Fetch(ctx, "apple esg risks")
	require.True(t, cached.Success)
	assert.True(t, cached.Cached)
	assert.Equal(t, int32(1), client.calls.Load())

	// JSON-level identity: the cached envelope round-trips through the store,
	// so numeric types may widen but the content must match exactly.
	freshJSON, err := json.Marshal(fresh.Records)
	require.NoError(t, err)
	cachedJSON, err := json.Marshal(cached.Records)
	require.NoError(t, err)
	assert.JSONEq(t, string(freshJSON), string(cachedJSON))
}

func TestTikTokFetcherBuildsRecords(t *testing.T) {
	t.Parallel()

	client := &fakeTikTokClient{videos: []tiktok.Video{
		{
			Title:      "Apple supplier audit breakdown",
			Content:    "Apple supplier audit breakdown with the numbers.",
			URL:        "https://www.tiktok.com/@esgwatch/video/1",
			Author:     "esgwatch",
			Views:      125000,
			Likes:      8900,
			Comments:   234,
			CreatedUTC: "2024-06-03T16:45:00Z",
			Hashtags:   []string{"#apple", "#esg"},
		},
	}}
	f := NewTikTokFetcher(client, NewCache(nil), time.Minute, nil)

	resp := f.Fetch(context.Background(), "apple esg")
	require.True(t, resp.Success)
	assert.Equal(t, model.SourceTikTok, resp.Source)
	require.Len(t, resp.Records, 1)

	rec := resp.Records[0]
	assert.Equal(t, "Apple supplier audit breakdown", rec["title"])
	assert.Equal(t, "esgwatch", rec["author"])
	assert.Equal(t, int64(125000), rec["views"])
	assert.Equal(t, int64(8900), rec["likes"])
	assert.Equal(t, int64(234), rec["comments"])
	assert.Equal(t, []string{"#apple", "#esg"}, rec["hashtags"])
}

func TestFetcherFailureEnvelope(t *testing.T) {
	t.Parallel()

	client := &fakeRedditClient{err: errors.New("reddit down")}
	f := NewRedditFetcher(client, NewCache(nil), time.Minute, nil)
	ctx := context.Background()

	resp := f.Fetch(ctx, "apple esg")
	require.False(t, resp.Success)
	assert.Equal(t, "reddit down", resp.Error)
	assert.Empty(t, resp.Records)

	// Failures are never cached.
	_ = f.Fetch(ctx, "apple esg")
	assert.Equal(t, int32(2), client.calls.Load())
}

func TestFetcherEmptyKey(t *testing.T) {
	t.Parallel()

	client := &fakeEdgarClient{}
	f := NewSECFetcher(client, NewCache(nil), time.Minute, nil)

	resp := f.Fetch(context.Background(), "   ")
	require.False(t, resp.Success)
	assert.Equal(t, "no search key resolved from question", resp.Error)
	assert.Equal(t, int32(0), client.calls.Load())
}

func TestFetcherBreakerOpensAfterFailures(t *testing.T) {
	t.Parallel()

	breaker := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		FailureThreshold: 2,
		ResetTimeout:     time.Minute,
	})
	client := &fakeRedditClient{err: errors.New("reddit down")}
	f := NewRedditFetcher(client, NewCache(nil), time.Minute, breaker)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		resp := f.Fetch(ctx, "apple esg")
		require.False(t, resp.Success)
		assert.Equal(t, "reddit down", resp.Error)
	}
	assert.Equal(t, resilience.StateOpen, breaker.State())

	short := f.Fetch(ctx, "apple esg")
	require.False(t, short.Success)
	assert.Contains(t, short.Error, "circuit breaker is open")
	assert.Equal(t, int32(2), client.calls.Load())
}

func TestFetcherNilCacheStillFetches(t *testing.T) {
	t.Parallel()

	client := &fakeTikTokClient{videos: []tiktok.Video{{Title: "clip", URL: "https://www.tiktok.com/v/1"}}}
	f := NewTikTokFetcher(client, NewCache(nil), time.Minute, nil)
	ctx := context.Background()

	first := f.Fetch(ctx, "tesla")
	second := f.Fetch(ctx, "tesla")
	assert.False(t, first.Cached)
	assert.False(t, second.Cached)
	assert.Equal(t, int32(2), client.calls.Load())
}
