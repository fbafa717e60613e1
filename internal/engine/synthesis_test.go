package engine

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kevinvandever/secureask/internal/evidence"
	"github.com/kevinvandever/secureask/internal/model"
)

func successEnvelope(source model.SourceType, records []map[string]any) *model.SourceResponse {
	return &model.SourceResponse{Source: source, Success: true, Records: records}
}

func failedEnvelope(source model.SourceType, msg string) *model.SourceResponse {
	return &model.SourceResponse{Source: source, Success: false, Error: msg}
}

func secContentRecords(contents ...string) []map[string]any {
	records := make([]map[string]any, 0, len(contents))
	for i, content := range contents {
		records = append(records, map[string]any{
			"company": "Apple Inc.",
			"ticker":  "AAPL",
			"url":     fmt.Sprintf("https://www.sec.gov/filing/%d", i),
			"content": content,
		})
	}
	return records
}

func scoredRedditRecords(scores ...int) []map[string]any {
	records := make([]map[string]any, 0, len(scores))
	for i, score := range scores {
		records = append(records, map[string]any{
			"title":   fmt.Sprintf("Post %d", i),
			"content": "Investors debate the company's ESG performance and valuation.",
			"url":     fmt.Sprintf("https://reddit.com/r/investing/%d", i),
			"score":   score,
		})
	}
	return records
}

func viewedTikTokRecords(views ...int64) []map[string]any {
	records := make([]map[string]any, 0, len(views))
	for i, v := range views {
		records = append(records, map[string]any{
			"title":   fmt.Sprintf("Video %d", i),
			"content": "Creator breaks down the ESG score and what it means for investors.",
			"url":     fmt.Sprintf("https://www.tiktok.com/@creator/video/%d", i),
			"views":   v,
		})
	}
	return records
}

func TestSynthesizeCitationFields(t *testing.T) {
	t.Parallel()

	e := New(Config{})
	envelopes := map[model.SourceType]*model.SourceResponse{
		model.SourceSEC: successEnvelope(model.SourceSEC, secContentRecords(
			"The company faces material climate risk exposure across its operations. Quarterly revenue grew steadily.",
		)),
	}

	result := e.synthesize("What are the climate risks?", []model.SourceType{model.SourceSEC}, envelopes, true)

	require.Len(t, result.Citations, 1)
	c := result.Citations[0]
	assert.Equal(t, "sec_0", c.NodeID)
	assert.Equal(t, model.SourceSEC, c.Source)
	assert.Equal(t, "https://www.sec.gov/filing/0", c.URL)
	assert.Contains(t, c.Snippet, "climate risk")
	assert.InDelta(t, 0.95, c.Confidence, 0.001)
}

func TestSynthesizeComposesAnswer(t *testing.T) {
	t.Parallel()

	e := New(Config{})
	envelopes := map[model.SourceType]*model.SourceResponse{
		model.SourceSEC: successEnvelope(model.SourceSEC, secContentRecords(
			"Climate risk disclosures dominate the filing.",
			"Supply chain dependencies and ESG environment factors are described.",
		)),
		model.SourceReddit: successEnvelope(model.SourceReddit, scoredRedditRecords(200, 100)),
		model.SourceTikTok: successEnvelope(model.SourceTikTok, viewedTikTokRecords(70000, 60000)),
	}

	result := e.synthesize("What are Apple's ESG risks?", model.AllSources(), envelopes, true)

	want := "According to recent SEC filings, the company has disclosed regulatory and climate risks, supply chain considerations, ESG factors in their regulatory filings." +
		" Social media discussions on Reddit reveal generally positive sentiment among retail investors, with discussions focusing on investment strategies and market analysis." +
		" TikTok content analysis shows high engagement with financial content creators discussing investment perspectives and market trends."
	assert.Equal(t, want, result.Answer)
	assert.Equal(t, []string{"query_analysis", "sec_filings", "reddit_discussions", "tiktok_content", "synthesis"}, result.GraphPath)
}

func TestSynthesizeAnswerSuppressed(t *testing.T) {
	t.Parallel()

	e := New(Config{})
	envelopes := map[model.SourceType]*model.SourceResponse{
		model.SourceReddit: successEnvelope(model.SourceReddit, scoredRedditRecords(80)),
	}

	result := e.synthesize("What are Apple's ESG risks?", []model.SourceType{model.SourceReddit}, envelopes, false)

	// Citations survive even when the caller declined an answer.
	assert.Len(t, result.Citations, 1)
	assert.Equal(t, insufficientEvidence, result.Answer)
}

func TestSynthesizeNoEvidence(t *testing.T) {
	t.Parallel()

	e := New(Config{})
	envelopes := map[model.SourceType]*model.SourceResponse{
		model.SourceSEC:    failedEnvelope(model.SourceSEC, "service unavailable"),
		model.SourceReddit: successEnvelope(model.SourceReddit, nil),
	}

	result := e.synthesize("What are Apple's ESG risks?", []model.SourceType{model.SourceSEC, model.SourceReddit}, envelopes, true)

	assert.Equal(t, insufficientEvidence, result.Answer)
	assert.NotNil(t, result.Citations)
	assert.Empty(t, result.Citations)
	assert.Equal(t, []string{"query_analysis", "synthesis"}, result.GraphPath)
}

func TestSynthesizeCapsAndOrdersCitations(t *testing.T) {
	t.Parallel()

	e := New(Config{})
	envelopes := map[model.SourceType]*model.SourceResponse{
		model.SourceSEC: successEnvelope(model.SourceSEC, secContentRecords(
			"Risk factors one.", "Risk factors two.", "Risk factors three.", "Risk factors four.", "Risk factors five.",
		)),
		model.SourceReddit: successEnvelope(model.SourceReddit, scoredRedditRecords(10, 20, 30, 40, 50, 60, 70)),
		model.SourceTikTok: successEnvelope(model.SourceTikTok, viewedTikTokRecords(100, 200, 300, 400)),
	}

	result := e.synthesize("What are Apple's ESG risks?", model.AllSources(), envelopes, true)

	require.Len(t, result.Citations, 11)
	wantIDs := []string{
		"sec_0", "sec_1", "sec_2",
		"reddit_0", "reddit_1", "reddit_2", "reddit_3", "reddit_4",
		"tiktok_0", "tiktok_1", "tiktok_2",
	}
	for i, c := range result.Citations {
		assert.Equal(t, wantIDs[i], c.NodeID)
	}
	assert.Equal(t, "https://reddit.com/r/investing/4", result.Citations[7].URL)
}

func TestSynthesizeSkipsUnrequestedSources(t *testing.T) {
	t.Parallel()

	e := New(Config{})
	envelopes := map[model.SourceType]*model.SourceResponse{
		model.SourceSEC:    successEnvelope(model.SourceSEC, secContentRecords("Risk factors.")),
		model.SourceTikTok: successEnvelope(model.SourceTikTok, viewedTikTokRecords(90000)),
	}

	result := e.synthesize("What are Apple's ESG risks?", []model.SourceType{model.SourceSEC}, envelopes, true)

	require.Len(t, result.Citations, 1)
	assert.Equal(t, model.SourceSEC, result.Citations[0].Source)
	assert.NotContains(t, result.GraphPath, "tiktok_content")
}

func TestSynthesizeMissingContentSnippet(t *testing.T) {
	t.Parallel()

	e := New(Config{})
	envelopes := map[model.SourceType]*model.SourceResponse{
		model.SourceReddit: successEnvelope(model.SourceReddit, []map[string]any{
			{"url": "https://reddit.com/r/stocks/1", "score": 10},
		}),
	}

	result := e.synthesize("What are Apple's ESG risks?", []model.SourceType{model.SourceReddit}, envelopes, true)

	require.Len(t, result.Citations, 1)
	assert.Equal(t, evidence.NoContent, result.Citations[0].Snippet)
}

func TestSECSummaryThemes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		contents []string
		want     string
	}{
		{
			name:     "no themes",
			contents: []string{"Quarterly revenue results were reported."},
			want:     "the company has disclosed various business factors in their regulatory filings.",
		},
		{
			name:     "deduped across records",
			contents: []string{"Risk factors include litigation.", "Climate risk remains elevated."},
			want:     "the company has disclosed regulatory and climate risks in their regulatory filings.",
		},
		{
			name:     "first-seen order",
			contents: []string{"ESG factors discussed.", "Supply chain notes.", "Risk appendix."},
			want:     "the company has disclosed ESG factors, supply chain considerations, regulatory and climate risks in their regulatory filings.",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, secSummary(secContentRecords(tt.contents...)))
		})
	}
}

func TestRedditSummaryBands(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		scores []int
		want   string
	}{
		{name: "low scores", scores: []int{10, 20}, want: "mixed sentiment"},
		{name: "boundary fifty", scores: []int{50}, want: "moderate engagement"},
		{name: "mid scores", scores: []int{75, 85}, want: "moderate engagement"},
		{name: "boundary hundred", scores: []int{100}, want: "moderate engagement"},
		{name: "high scores", scores: []int{150, 200}, want: "generally positive sentiment"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := redditSummary(scoredRedditRecords(tt.scores...))
			assert.Contains(t, got, tt.want+" among retail investors")
		})
	}
}

func TestTikTokSummaryBands(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		views []int64
		want  string
	}{
		{name: "low views", views: []int64{5000}, want: "limited engagement"},
		{name: "boundary ten thousand", views: []int64{10000}, want: "limited engagement"},
		{name: "mid views", views: []int64{20000}, want: "moderate engagement"},
		{name: "boundary fifty thousand", views: []int64{50000}, want: "moderate engagement"},
		{name: "high views", views: []int64{60000, 70000}, want: "high engagement"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := tiktokSummary(viewedTikTokRecords(tt.views...))
			assert.Contains(t, got, tt.want+" with financial content creators")
		})
	}
}

func TestNumberFieldToleratesWidening(t *testing.T) {
	t.Parallel()

	rec := map[string]any{
		"int":     42,
		"int64":   int64(43),
		"float64": 44.5,
		"string":  "45",
	}
	assert.Equal(t, 42.0, numberField(rec, "int"))
	assert.Equal(t, 43.0, numberField(rec, "int64"))
	assert.Equal(t, 44.5, numberField(rec, "float64"))
	assert.Equal(t, 0.0, numberField(rec, "string"))
	assert.Equal(t, 0.0, numberField(rec, "absent"))
}
