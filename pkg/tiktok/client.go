// Package tiktok provides a client for TikTok content search through the
// Apify actor-run API.
package tiktok

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

const (
	defaultBaseURL      = "https://api.apify.com"
	defaultActor        = "clockworks~free-tiktok-scraper"
	defaultLimit        = 10
	maxResultsPerPage   = 20
	defaultPollInterval = 1 * time.Second
	defaultMaxWait      = 30 * time.Second
	titleMaxRunes       = 100
)

// Apify run lifecycle states.
const (
	statusSucceeded = "SUCCEEDED"
	statusFailed    = "FAILED"
	statusAborted   = "ABORTED"
)

// Client defines the TikTok content-search operations.
type Client interface {
	// SearchContent runs the scraper actor for terms and returns normalized
	// videos. limit caps the result; limit <= 0 means 10.
	SearchContent(ctx context.Context, terms string, limit int) ([]Video, error)
}

// Video is one content record, normalized for citation building.
type Video struct {
	Title      string   `json:"title"`
	Content    string   `json:"content"`
	URL        string   `json:"url"`
	Author     string   `json:"author"`
	Views      int64    `json:"views"`
	Likes      int64    `json:"likes"`
	Comments   int64    `json:"comments"`
	CreatedUTC string   `json:"created_utc"`
	Hashtags   []string `json:"hashtags"`
}

type runInput struct {
	Hashtags             []string `json:"hashtags"`
	ResultsPerPage       int      `json:"resultsPerPage"`
	ShouldDownloadVideos bool     `json:"shouldDownloadVideos"`
	ShouldDownloadCovers bool     `json:"shouldDownloadCovers"`
}

type runResponse struct {
	Data runData `json:"data"`
}

type runData struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type apifyItem struct {
	Text         string         `json:"text"`
	WebVideoURL  string         `json:"webVideoUrl"`
	AuthorMeta   apifyAuthor    `json:"authorMeta"`
	PlayCount    int64          `json:"playCount"`
	DiggCount    int64          `json:"diggCount"`
	CommentCount int64          `json:"commentCount"`
	CreateTime   int64          `json:"createTime"`
	Hashtags     []apifyHashtag `json:"hashtags"`
}

type apifyAuthor struct {
	Name string `json:"name"`
}

type apifyHashtag struct {
	Name string `json:"name"`
}

func (item apifyItem) toVideo() Video {
	hashtags := make([]string, 0, len(item.Hashtags))
	for _, h := range item.Hashtags {
		if h.Name != "" {
			hashtags = append(hashtags, "#"+h.Name)
		}
	}
	var created string
	if item.CreateTime > 0 {
		created = time.Unix(item.CreateTime, 0).UTC().Format(time.RFC3339)
	}
	return Video{
		Title:      truncateRunes(item.Text, titleMaxRunes),
		Content:    item.Text,
		URL:        item.WebVideoURL,
		Author:     item.AuthorMeta.Name,
		Views:      item.PlayCount,
		Likes:      item.DiggCount,
		Comments:   item.CommentCount,
		CreatedUTC: created,
		Hashtags:   hashtags,
	}
}

// Option configures the TikTok client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithActor overrides the scraper actor id.
func WithActor(actor string) Option {
	return func(c *httpClient) {
		c.actor = actor
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithPollInterval overrides the run-status poll interval.
func WithPollInterval(d time.Duration) Option {
	return func(c *httpClient) {
		c.pollInterval = d
	}
}

// WithMaxWait overrides the default run timeout (applied only if the parent
// context has no deadline).
func WithMaxWait(d time.Duration) Option {
	return func(c *httpClient) {
		c.maxWait = d
	}
}

type httpClient struct {
	token        string
	baseURL      string
	actor        string
	http         *http.Client
	pollInterval time.Duration
	maxWait      time.Duration
}

// NewClient creates an Apify-backed TikTok search client.
func NewClient(token string, opts ...Option) Client {
	c := &httpClient{
		token:   token,
		baseURL: defaultBaseURL,
		actor:   defaultActor,
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		pollInterval: defaultPollInterval,
		maxWait:      defaultMaxWait,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) SearchContent(ctx context.Context, terms string, limit int) ([]Video, error) {
	terms = strings.TrimSpace(terms)
	if terms == "" {
		return nil, eris.New("tiktok: search terms must not be empty")
	}
	if limit <= 0 {
		limit = defaultLimit
	}

	run, err := c.startRun(ctx, terms, limit)
	if err != nil {
		return nil, err
	}
	if err := c.waitForRun(ctx, run.ID); err != nil {
		return nil, err
	}

	items, err := c.runItems(ctx, run.ID)
	if err != nil {
		return nil, err
	}
	return toVideos(items, limit), nil
}

func (c *httpClient) startRun(ctx context.Context, terms string, limit int) (*runData, error) {
	input := runInput{
		Hashtags:       searchHashtags(terms),
		ResultsPerPage: min(limit, maxResultsPerPage),
	}

	body, status, err := c.do(ctx, http.MethodPost, fmt.Sprintf("/v2/acts/%s/runs", c.actor), input)
	if err != nil {
		return nil, eris.Wrap(err, "tiktok: start run")
	}
	if status != http.StatusCreated {
		return nil, eris.Errorf("tiktok: start run status %d: %s", status, string(body))
	}

	var resp runResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, eris.Wrap(err, "tiktok: unmarshal run")
	}
	if resp.Data.ID == "" {
		return nil, eris.New("tiktok: run id missing from response")
	}
	return &resp.Data, nil
}

// waitForRun polls the run until it succeeds, ends in a terminal failure
// state, or the context expires.
func (c *httpClient) waitForRun(ctx context.Context, id string) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.maxWait)
		defer cancel()
	}

	for {
		select {
		case <-ctx.Done():
			return eris.Wrapf(ctx.Err(), "tiktok: run %s timed out", id)
		case <-time.After(c.pollInterval):
		}

		body, status, err := c.do(ctx, http.MethodGet, "/v2/actor-runs/"+id, nil)
		if err != nil {
			if ctx.Err() != nil {
				return eris.Wrapf(ctx.Err(), "tiktok: run %s timed out", id)
			}
			return eris.Wrapf(err, "tiktok: poll run %s", id)
		}
		if status != http.StatusOK {
			return eris.Errorf("tiktok: poll run %s status %d: %s", id, status, string(body))
		}

		var resp runResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return eris.Wrap(err, "tiktok: unmarshal run status")
		}

		switch resp.Data.Status {
		case statusSucceeded:
			return nil
		case statusFailed, statusAborted:
			return eris.Errorf("tiktok: run %s ended %s", id, resp.Data.Status)
		}
	}
}

func (c *httpClient) runItems(ctx context.Context, id string) ([]apifyItem, error) {
	body, status, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/v2/actor-runs/%s/dataset/items", id), nil)
	if err != nil {
		return nil, eris.Wrapf(err, "tiktok: fetch run %s items", id)
	}
	if status != http.StatusOK {
		return nil, eris.Errorf("tiktok: fetch run %s items status %d: %s", id, status, string(body))
	}

	var items []apifyItem
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, eris.Wrap(err, "tiktok: unmarshal items")
	}
	return items, nil
}

func (c *httpClient) do(ctx context.Context, method, path string, body any) ([]byte, int, error) {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, 0, eris.Wrap(err, "marshal request")
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, 0, eris.Wrap(err, "create request")
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, eris.Wrap(err, "execute request")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, eris.Wrap(err, "read response body")
	}
	return data, resp.StatusCode, nil
}

func searchHashtags(terms string) []string {
	return []string{
		"#" + strings.ReplaceAll(terms, " ", ""),
		"#investing",
		"#finance",
	}
}

func toVideos(items []apifyItem, limit int) []Video {
	videos := make([]Video, 0, min(len(items), limit))
	for _, item := range items {
		videos = append(videos, item.toVideo())
		if len(videos) == limit {
			break
		}
	}
	return videos
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
