package fetch

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/kevinvandever/secureask/internal/model"
)

// Cache keys keep the <source>_<normalizedKey> layout so entries stay
// greppable in the store.

// SECFilingsKey returns the cache key for a ticker's filing search. The
// filing type is compacted ("10-K" -> "10K", "DEF 14A" -> "DEF14A") to keep
// keys free of separators.
func SECFilingsKey(ticker, filingType string) string {
	t := strings.ToUpper(strings.TrimSpace(ticker))
	ft := strings.ToUpper(strings.TrimSpace(filingType))
	ft = strings.ReplaceAll(ft, "-", "")
	ft = strings.ReplaceAll(ft, " ", "")
	return fmt.Sprintf("sec_filings_%s_%s", t, ft)
}

// RedditPostsKey returns the cache key for a terms search.
func RedditPostsKey(terms string) string {
	return "reddit_posts_" + hashKey(terms)
}

// TikTokContentKey returns the cache key for a terms search.
func TikTokContentKey(terms string) string {
	return "tiktok_content_" + hashKey(terms)
}

// QueryResultKey returns the whole-query cache key. Sources are sorted so the
// key is independent of request order.
func QueryResultKey(question string, sources []model.SourceType, maxHops int) string {
	names := model.SortedNames(sources)
	return "query_result_" + hashKey(fmt.Sprintf("%s:%s:%d", question, strings.Join(names, ","), maxHops))
}

// hashKey fingerprints free text into a fixed-width hex token. md5 namespaces
// cache entries; nothing security-relevant rides on it.
func hashKey(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}
