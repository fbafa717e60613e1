// Package edgar provides a client for the SEC EDGAR full-text search API.
package edgar

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

const (
	defaultBaseURL   = "https://efts.sec.gov/LATEST"
	defaultUserAgent = "SecureAsk research@secureask.dev"
	defaultLimit     = 10

	// SEC fair-access guidance caps automated traffic at 10 requests/second.
	requestsPerSecond = 10
)

// Client defines the EDGAR search operations.
type Client interface {
	// SearchFilings runs a full-text search for a ticker restricted to one
	// filing type. limit caps the returned filings; limit <= 0 means 10.
	SearchFilings(ctx context.Context, ticker, filingType string, limit int) ([]Filing, error)
}

// Filing is one filing record, normalized for citation building.
type Filing struct {
	Company    string `json:"company"`
	FilingType string `json:"filing_type"`
	URL        string `json:"url"`
	Content    string `json:"content"`
	Date       string `json:"date"`
	CIK        string `json:"cik"`
	Accession  string `json:"accession"`
}

// SearchResponse is the full-text search wire response.
type SearchResponse struct {
	Hits SearchHits `json:"hits"`
}

// SearchHits wraps the result set.
type SearchHits struct {
	Total HitTotal    `json:"total"`
	Hits  []FilingHit `json:"hits"`
}

// HitTotal carries the match count.
type HitTotal struct {
	Value int `json:"value"`
}

// FilingHit is one search hit. ID has the form "accession:document".
type FilingHit struct {
	ID     string       `json:"_id"`
	Source FilingSource `json:"_source"`
}

// FilingSource is the indexed filing metadata.
type FilingSource struct {
	CIKs            []string `json:"ciks"`
	DisplayNames    []string `json:"display_names"`
	FileType        string   `json:"file_type"`
	FileDate        string   `json:"file_date"`
	FileDescription string   `json:"file_description"`
	Accession       string   `json:"adsh"`
}

func (h FilingHit) toFiling(ticker string) Filing {
	src := h.Source
	var cik string
	if len(src.CIKs) > 0 {
		cik = src.CIKs[0]
	}
	return Filing{
		Company:    ticker,
		FilingType: src.FileType,
		URL:        h.documentURL(cik),
		Content:    strings.TrimSpace(src.FileDescription),
		Date:       src.FileDate,
		CIK:        cik,
		Accession:  src.Accession,
	}
}

// documentURL rebuilds the archive link the way the EDGAR search UI does:
// /Archives/edgar/data/<cik, no leading zeros>/<accession, no dashes>/<document>.
func (h FilingHit) documentURL(cik string) string {
	accession, doc, ok := strings.Cut(h.ID, ":")
	if !ok || cik == "" {
		return ""
	}
	return fmt.Sprintf("https://www.sec.gov/Archives/edgar/data/%s/%s/%s",
		strings.TrimLeft(cik, "0"), strings.ReplaceAll(accession, "-", ""), doc)
}

// Option configures the EDGAR client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithUserAgent sets the declared User-Agent. SEC requires identifying
// contact information in automated traffic.
func WithUserAgent(ua string) Option {
	return func(c *httpClient) {
		c.userAgent = ua
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
	http         *http.Client
	limiter      *rate.Limiter
	retryBackoff time.Duration
}

// NewClient creates an EDGAR full-text search client. The API is keyless;
// etiquette is a declared User-Agent and a 10 req/s ceiling.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL:   defaultBaseURL,
		userAgent: defaultUserAgent,
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter:      rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond),
		retryBackoff: 1 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// retryableStatusCode returns true if the HTTP status code should trigger a retry.
func retryableStatusCode(code int) bool {
	return code == http.StatusTooManyRequests ||
		code == http.StatusInternalServerError ||
		code == http.StatusBadGateway ||
		code == http.StatusServiceUnavailable
}

// retryDo executes an HTTP request with exponential backoff retries on
// transient failures (429, 500, 502, 503). Returns the response body and
// status code on success, or the last error after exhausting retries.
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
			return nil, resp.StatusCode, eris.Wrap(readErr, "edgar: read response body")
		}

		if retryableStatusCode(resp.StatusCode) && attempt < maxAttempts {
			lastErr = eris.Errorf("edgar: status %d: %s", resp.StatusCode, string(body))
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

func (c *httpClient) SearchFilings(ctx context.Context, ticker, filingType string, limit int) ([]Filing, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	if ticker == "" {
		return nil, eris.New("edgar: ticker must not be empty")
	}
	if limit <= 0 {
		limit = defaultLimit
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "edgar: rate limiter")
	}

	reqURL := fmt.Sprintf("%s/search-index?q=%s&forms=%s",
		c.baseURL, url.QueryEscape(fmt.Sprintf("%q", ticker)), url.QueryEscape(filingType))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "edgar: create request")
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	body, statusCode, err := c.retryDo(ctx, req)
	if err != nil {
		return nil, eris.Wrap(err, "edgar: search request failed")
	}
	if statusCode != http.StatusOK {
		return nil, eris.Errorf("edgar: unexpected status %d: %s", statusCode, string(body))
	}

	var result SearchResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "edgar: unmarshal response")
	}

	filings := make([]Filing, 0, len(result.Hits.Hits))
	for _, hit := range result.Hits.Hits {
		filings = append(filings, hit.toFiling(ticker))
		if len(filings) == limit {
			break
		}
	}
	return filings, nil
}
