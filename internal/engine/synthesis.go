package engine

import (
	"fmt"
	"strings"

	"github.com/kevinvandever/secureask/internal/model"
)

const snippetMaxLength = 200

// insufficientEvidence is the answer when no source contributed records, or
// when the caller declined a synthesized answer.
const insufficientEvidence = "I wasn't able to find sufficient information to provide a comprehensive answer to your question. This could be due to API limitations or the specific nature of your query."

// synthesize builds the deterministic result from the source envelopes:
// citations capped per source and ordered by source priority, the reasoning
// path, and the composed answer. ProcessingTimeMS is stamped by the caller.
func (e *Engine) synthesize(question string, sources []model.SourceType, envelopes map[model.SourceType]*model.SourceResponse, includeAnswer bool) *model.QueryResult {
	requested := make(map[model.SourceType]bool, len(sources))
	for _, s := range sources {
		requested[s] = true
	}

	citations := []model.Citation{}
	var answerParts []string
	graphPath := []string{model.StageQueryAnalysis}

	for _, source := range model.AllSources() {
		if !requested[source] {
			continue
		}
		envelope := envelopes[source]
		if envelope == nil || !envelope.Success || len(envelope.Records) == 0 {
			continue
		}

		records := envelope.Records
		graphPath = append(graphPath, source.StageName())
		answerParts = append(answerParts, answerPart(source, records))

		limit := source.CitationCap()
		for i, rec := range records {
			if i == limit {
				break
			}
			citations = append(citations, model.Citation{
				NodeID:     fmt.Sprintf("%s_%d", source, i),
				Source:     source,
				URL:        stringField(rec, "url"),
				Snippet:    e.ranker.ExtractSnippet(stringField(rec, "content"), question, snippetMaxLength),
				Confidence: source.Confidence(),
			})
		}
	}
	graphPath = append(graphPath, model.StageSynthesis)

	answer := insufficientEvidence
	if includeAnswer && len(citations) > 0 {
		answer = strings.Join(answerParts, " ")
	}

	return &model.QueryResult{
		Answer:    answer,
		Citations: citations,
		GraphPath: graphPath,
	}
}

// answerPart phrases one source's contribution. The framing per source is
// fixed; the variable fragment reacts to what the evidence shows.
func answerPart(source model.SourceType, records []map[string]any) string {
	switch source {
	case model.SourceSEC:
		return "According to recent SEC filings, " + secSummary(records)
	case model.SourceReddit:
		return "Social media discussions on Reddit reveal " + redditSummary(records)
	case model.SourceTikTok:
		return "TikTok content analysis shows " + tiktokSummary(records)
	default:
		return ""
	}
}

// secSummary names the disclosure themes present in filing text, in the
// order they first appear.
func secSummary(records []map[string]any) string {
	var themes []string
	seen := make(map[string]bool)
	add := func(theme string) {
		if !seen[theme] {
			seen[theme] = true
			themes = append(themes, theme)
		}
	}

	for _, rec := range records {
		content := strings.ToLower(stringField(rec, "content"))
		if strings.Contains(content, "risk") || strings.Contains(content, "climate") {
			add("regulatory and climate risks")
		}
		if strings.Contains(content, "supply") || strings.Contains(content, "chain") {
			add("supply chain considerations")
		}
		if strings.Contains(content, "esg") || strings.Contains(content, "environment") {
			add("ESG factors")
		}
	}

	if len(themes) == 0 {
		return "the company has disclosed various business factors in their regulatory filings."
	}
	return fmt.Sprintf("the company has disclosed %s in their regulatory filings.", strings.Join(themes, ", "))
}

// redditSummary reads overall sentiment from average post score.
func redditSummary(records []map[string]any) string {
	var total float64
	for _, rec := range records {
		total += numberField(rec, "score")
	}
	avg := total / float64(len(records))

	sentiment := "moderate engagement"
	switch {
	case avg < 50:
		sentiment = "mixed sentiment"
	case avg > 100:
		sentiment = "generally positive sentiment"
	}
	return sentiment + " among retail investors, with discussions focusing on investment strategies and market analysis."
}

// tiktokSummary reads engagement from average view count.
func tiktokSummary(records []map[string]any) string {
	var total float64
	for _, rec := range records {
		total += numberField(rec, "views")
	}
	avg := total / float64(len(records))

	engagement := "limited engagement"
	switch {
	case avg > 50000:
		engagement = "high engagement"
	case avg > 10000:
		engagement = "moderate engagement"
	}
	return engagement + " with financial content creators discussing investment perspectives and market trends."
}

// stringField reads a string value from a record, tolerating absent keys.
func stringField(rec map[string]any, key string) string {
	if v, ok := rec[key].(string); ok {
		return v
	}
	return ""
}

// numberField reads a numeric value from a record. Fresh records carry the
// client's integer types; records that round-tripped through the JSON cache
// carry float64.
func numberField(rec map[string]any, key string) float64 {
	switch v := rec[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return 0
}
