package tiktok

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// NewDemoClient returns a Client that serves canned videos without calling
// Apify. Used in demo mode and when no Apify token is configured.
func NewDemoClient() Client {
	return demoClient{}
}

type demoClient struct{}

func (demoClient) SearchContent(_ context.Context, terms string, limit int) ([]Video, error) {
	terms = strings.TrimSpace(terms)
	if terms == "" {
		return nil, eris.New("tiktok: search terms must not be empty")
	}
	if limit <= 0 {
		limit = defaultLimit
	}

	videos := demoVideos(terms)
	if len(videos) > limit {
		videos = videos[:limit]
	}
	return videos, nil
}

func demoVideos(terms string) []Video {
	hashtags := searchHashtags(terms)
	return []Video{
		{
			Title:      fmt.Sprintf("ESG Investing: What You Need to Know About %s", terms),
			Content:    fmt.Sprintf("Breaking down the ESG factors for %s. Sustainability is becoming a major factor in investment decisions. Here is what the data shows about environmental and governance practices.", terms),
			URL:        "https://www.tiktok.com/@financeinfluencer/video/7349812001",
			Author:     "FinanceInfluencer",
			Views:      125000,
			Likes:      8900,
			Comments:   234,
			CreatedUTC: "2024-06-03T16:45:00Z",
			Hashtags:   hashtags,
		},
		{
			Title:      fmt.Sprintf("Why the %s ESG Score Matters for Your Portfolio", terms),
			Content:    fmt.Sprintf("Quick analysis of %s sustainability metrics. ESG scores are increasingly important for long-term investors. These are the key numbers to watch.", terms),
			URL:        "https://www.tiktok.com/@stockanalyst/video/7351204455",
			Author:     "StockAnalyst",
			Views:      89000,
			Likes:      5600,
			Comments:   189,
			CreatedUTC: "2024-06-07T12:20:00Z",
			Hashtags:   hashtags,
		},
	}
}
