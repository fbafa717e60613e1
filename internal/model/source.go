package model

import (
	"sort"
	"strings"

	"github.com/rotisserie/eris"
)

// SourceType identifies one of the external evidence sources.
type SourceType string

const (
	SourceSEC    SourceType = "sec"
	SourceReddit SourceType = "reddit"
	SourceTikTok SourceType = "tiktok"
)

// Pipeline stage names recorded in a result's graph path.
const (
	StageQueryAnalysis = "query_analysis"
	StageSynthesis     = "synthesis"
)

// AllSources returns every source in citation priority order: regulatory
// filings first, then forum discussion, then short-video content.
func AllSources() []SourceType {
	return []SourceType{SourceSEC, SourceReddit, SourceTikTok}
}

// Valid reports whether s names a known source.
func (s SourceType) Valid() bool {
	switch s {
	case SourceSEC, SourceReddit, SourceTikTok:
		return true
	}
	return false
}

// ParseSources normalizes a list of source names. An empty list defaults to
// all sources. Unknown names are rejected. The result is deduplicated and
// ordered by source priority regardless of input order.
func ParseSources(names []string) ([]SourceType, error) {
	if len(names) == 0 {
		return AllSources(), nil
	}

	want := make(map[SourceType]bool, len(names))
	for _, n := range names {
		s := SourceType(strings.ToLower(strings.TrimSpace(n)))
		if !s.Valid() {
			return nil, eris.Errorf("model: unknown source %q", n)
		}
		want[s] = true
	}

	out := make([]SourceType, 0, len(want))
	for _, s := range AllSources() {
		if want[s] {
			out = append(out, s)
		}
	}
	return out, nil
}

// SortedNames returns the source names sorted lexically, for building
// deterministic cache keys.
func SortedNames(sources []SourceType) []string {
	names := make([]string, 0, len(sources))
	for _, s := range sources {
		names = append(names, string(s))
	}
	sort.Strings(names)
	return names
}

// CitationCap returns the maximum number of citations drawn from this source
// during synthesis.
func (s SourceType) CitationCap() int {
	switch s {
	case SourceSEC:
		return 3
	case SourceReddit:
		return 5
	case SourceTikTok:
		return 3
	default:
		return 0
	}
}

// Confidence returns the fixed citation confidence for this source. The
// values reflect source authority, not a computed statistic.
func (s SourceType) Confidence() float64 {
	switch s {
	case SourceSEC:
		return 0.95
	case SourceReddit:
		return 0.78
	case SourceTikTok:
		return 0.65
	default:
		return 0
	}
}

// StageName returns the graph-path stage recorded when this source
// contributes records to an answer.
func (s SourceType) StageName() string {
	switch s {
	case SourceSEC:
		return "sec_filings"
	case SourceReddit:
		return "reddit_discussions"
	case SourceTikTok:
		return "tiktok_content"
	default:
		return string(s)
	}
}
