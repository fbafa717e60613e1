package reddit

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// NewDemoClient returns a Client backed by a fixture dataset so demos and
// tests run offline.
func NewDemoClient() Client {
	return demoClient{}
}

type demoClient struct{}

func (demoClient) SearchPosts(_ context.Context, terms string, limit int) ([]Post, error) {
	terms = strings.TrimSpace(terms)
	if terms == "" {
		return nil, eris.New("reddit: search terms must not be empty")
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	return normalize(demoPosts(terms), limit), nil
}

func demoPosts(terms string) []Post {
	slug := strings.ReplaceAll(strings.ToLower(terms), " ", "-")
	return []Post{
		{
			ID:    "demo-12345",
			Title: fmt.Sprintf("Discussion: %s latest developments", terms),
			Content: fmt.Sprintf("Retail investors are actively discussing %s. Key points include regulatory "+
				"compliance costs, supply chain transparency requirements, and investor expectations for ESG "+
				"reporting. Some users highlight potential competitive advantages from early adoption of "+
				"sustainable practices.", terms),
			URL:         fmt.Sprintf("https://reddit.com/r/investing/posts/12345-%s", slug),
			Subreddit:   "investing",
			Score:       147,
			NumComments: 42,
			CreatedUTC:  "2024-05-20T14:30:00Z",
		},
		{
			ID:    "demo-67890",
			Title: fmt.Sprintf("%s ESG analysis - worth the investment?", terms),
			Content: fmt.Sprintf("Mixed opinions on %s ESG initiatives. Bulls argue that sustainability investments "+
				"drive long-term value and reduce regulatory risk. Bears worry about near-term costs and "+
				"implementation challenges. Most agree that transparent reporting is crucial for investor "+
				"confidence.", terms),
			URL:         fmt.Sprintf("https://reddit.com/r/SecurityAnalysis/posts/67890-%s-esg", slug),
			Subreddit:   "SecurityAnalysis",
			Score:       89,
			NumComments: 28,
			CreatedUTC:  "2024-05-18T09:15:00Z",
		},
		{
			ID:    "demo-24680",
			Title: fmt.Sprintf("Risk assessment: %s climate exposure", terms),
			Content: fmt.Sprintf("Analysis of %s climate-related risks and opportunities. Physical risks include "+
				"supply chain disruption from extreme weather. Transition risks include carbon pricing and changing "+
				"consumer preferences. Opportunities include market leadership in clean technology.", terms),
			URL:         fmt.Sprintf("https://reddit.com/r/stocks/posts/24680-%s-climate", slug),
			Subreddit:   "stocks",
			Score:       203,
			NumComments: 67,
			CreatedUTC:  "2024-05-22T19:45:00Z",
		},
		{
			ID:    "demo-13579",
			Title: fmt.Sprintf("Institutional perspective on %s sustainability", terms),
			Content: fmt.Sprintf("Large institutional investors are increasingly focused on %s ESG metrics. BlackRock "+
				"and Vanguard have raised questions about long-term sustainability strategies. Proxy voting trends "+
				"show growing support for climate-related shareholder proposals.", terms),
			URL:         fmt.Sprintf("https://reddit.com/r/ValueInvesting/posts/13579-%s-institutional", slug),
			Subreddit:   "ValueInvesting",
			Score:       156,
			NumComments: 38,
			CreatedUTC:  "2024-05-19T11:00:00Z",
		},
		{
			ID:    "demo-97531",
			Title: fmt.Sprintf("%s quarterly earnings call - ESG highlights", terms),
			Content: fmt.Sprintf("Recent earnings call included significant discussion of %s ESG initiatives and "+
				"climate commitments. Management emphasized progress on renewable energy goals and supply chain "+
				"sustainability. Analysts asked pointed questions about carbon accounting and disclosure standards.", terms),
			URL:         fmt.Sprintf("https://reddit.com/r/financialindependence/posts/97531-%s-earnings", slug),
			Subreddit:   "financialindependence",
			Score:       94,
			NumComments: 23,
			CreatedUTC:  "2024-05-21T16:20:00Z",
		},
	}
}
