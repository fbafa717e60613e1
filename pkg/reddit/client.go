// Package reddit provides a client for Reddit's public search API.
package reddit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

const (
	defaultBaseURL   = "https://www.reddit.com"
	defaultUserAgent = "SecureAsk/1.0"
	defaultLimit     = 10

	// perSubredditCap bounds each listing so one busy subreddit cannot
	// crowd out the others.
	perSubredditCap = 3
	// maxQueried caps how many subreddits are hit per search; the
	// unauthenticated API rate-limits aggressively.
	maxQueried      = 3
	contentMaxRunes = 500
)

// defaultSubreddits are searched in declaration order.
var defaultSubreddits = []string{
	"investing", "stocks", "SecurityAnalysis", "ValueInvesting", "financialindependence",
}

// Client defines the Reddit search operations.
type Client interface {
	// SearchPosts searches the configured subreddits for terms and returns
	// deduplicated posts sorted by score. limit caps the combined result;
	// limit <= 0 means 10.
	SearchPosts(ctx context.Context, terms string, limit int) ([]Post, error)
}

// Post is one discussion record, normalized for citation building.
type Post struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Content     string `json:"content"`
	URL         string `json:"url"`
	Subreddit   string `json:"subreddit"`
	Score       int    `json:"score"`
	NumComments int    `json:"num_comments"`
	CreatedUTC  string `json:"created_utc"`
}

type listingResponse struct {
	Data listingData `json:"data"`
}

type listingData struct {
	Children []listingChild `json:"children"`
}

type listingChild struct {
	Data postData `json:"data"`
}

type postData struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Selftext    string  `json:"selftext"`
	Permalink   string  `json:"permalink"`
	Score       int     `json:"score"`
	NumComments int     `json:"num_comments"`
	CreatedUTC  float64 `json:"created_utc"`
}

func (p postData) toPost(subreddit string) Post {
	content := p.Selftext
	if content == "" {
		content = p.Title
	}

	var created string
	if p.CreatedUTC > 0 {
		created = time.Unix(int64(p.CreatedUTC), 0).UTC().Format(time.RFC3339)
	}
	return Post{
		ID:          p.ID,
		Title:       p.Title,
		Content:     truncateRunes(content, contentMaxRunes),
		URL:         "https://reddit.com" + p.Permalink,
		Subreddit:   subreddit,
		Score:       p.Score,
		NumComments: p.NumComments,
		CreatedUTC:  created,
	}
}

// Option configures the Reddit client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithUserAgent sets the declared User-Agent.
func WithUserAgent(ua string) Option {
	return func(c *httpClient) {
		c.userAgent = ua
	}
}

// WithSubreddits overrides the searched subreddit set.
func WithSubreddits(subreddits ...string) Option {
	return func(c *httpClient) {
		c.subreddits = subreddits
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRetryBackoff sets the initial retry backoff (for testing).
func WithRetryBackoff(d time.Duration) Option {
	return func(c *httpClient) {
		c.retryBackoff = d
	}
}

type httpClient struct {
	baseURL      string
	userAgent    string
	subreddits   []string
	http         *http.Client
	retryBackoff time.Duration
}

// NewClient creates a Reddit search client using the public, unauthenticated
// JSON endpoints.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL:    defaultBaseURL,
		userAgent:  defaultUserAgent,
		subreddits: defaultSubreddits,
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		retryBackoff: 1 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) SearchPosts(ctx context.Context, terms string, limit int) ([]Post, error) {
	terms = strings.TrimSpace(terms)
	if terms == "" {
		return nil, eris.New("reddit: search terms must not be empty")
	}
	if limit <= 0 {
		limit = defaultLimit
	}

	queried := c.subreddits
	if len(queried) > maxQueried {
		queried = queried[:maxQueried]
	}

	var (
		posts   []Post
		lastErr error
	)
	for _, subreddit := range queried {
		subPosts, err := c.searchSubreddit(ctx, subreddit, terms)
		if err != nil {
			lastErr = err
			continue
		}
		posts = append(posts, subPosts...)
	}
	if len(posts) == 0 && lastErr != nil {
		return nil, eris.Wrap(lastErr, "reddit: search failed")
	}

	return normalize(posts, limit), nil
}

func (c *httpClient) searchSubreddit(ctx context.Context, subreddit, terms string) ([]Post, error) {
	params := url.Values{}
	params.Set("q", terms)
	params.Set("sort", "relevance")
	params.Set("limit", "10")
	params.Set("restrict_sr", "1")
	reqURL := fmt.Sprintf("%s/r/%s/search.json?%s", c.baseURL, subreddit, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "reddit: create request")
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	body, statusCode, err := c.retryDo(ctx, req)
	if err != nil {
		return nil, eris.Wrapf(err, "reddit: search r/%s", subreddit)
	}
	if statusCode != http.StatusOK {
		return nil, eris.Errorf("reddit: r/%s status %d: %s", subreddit, statusCode, string(body))
	}

	var listing listingResponse
	if err := json.Unmarshal(body, &listing); err != nil {
		return nil, eris.Wrap(err, "reddit: unmarshal listing")
	}

	posts := make([]Post, 0, perSubredditCap)
	for _, child := range listing.Data.Children {
		posts = append(posts, child.Data.toPost(subreddit))
		if len(posts) == perSubredditCap {
			break
		}
	}
	return posts, nil
}

// retryableStatusCode returns true if the HTTP status code should trigger a retry.
func retryableStatusCode(code int) bool {
	return code == http.StatusTooManyRequests ||
		code == http.StatusInternalServerError ||
		code == http.StatusBadGateway ||
		code == http.StatusServiceUnavailable
}

// retryDo executes an HTTP request with exponential backoff retries on
// transient failures (429, 500, 502, 503).
func (c *httpClient) retryDo(ctx context.Context, req *http.Request) ([]byte, int, error) {
	const maxAttempts = 3
	backoff := c.retryBackoff

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		retryReq := req.Clone(ctx)

		resp, err := c.http.Do(retryReq)
		if err != nil {
			lastErr = err
			if attempt < maxAttempts {
				select {
				case <-ctx.Done():
					return nil, 0, ctx.Err()
				case <-time.After(backoff):
				}
				backoff *= 2
				continue
			}
			return nil, 0, lastErr
		}

		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return nil, resp.StatusCode, eris.Wrap(readErr, "reddit: read response body")
		}

		if retryableStatusCode(resp.StatusCode) && attempt < maxAttempts {
			lastErr = eris.Errorf("reddit: status %d: %s", resp.StatusCode, string(body))
			select {
			case <-ctx.Done():
				return nil, 0, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			continue
		}

		return body, resp.StatusCode, nil
	}

	return nil, 0, lastErr
}

// normalize dedupes by post id (URL when the id is missing), sorts by score
// descending, and caps the result.
func normalize(posts []Post, limit int) []Post {
	seen := make(map[string]bool, len(posts))
	unique := posts[:0]
	for _, p := range posts {
		key := p.ID
		if key == "" {
			key = p.URL
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		unique = append(unique, p)
	}

	sort.SliceStable(unique, func(i, j int) bool { return unique[i].Score > unique[j].Score })
	if len(unique) > limit {
		unique = unique[:limit]
	}
	return unique
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
