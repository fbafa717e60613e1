// Package engine orchestrates query processing: graph context lookup, entity
// extraction, concurrent evidence fetching, citation synthesis, and detached
// graph enrichment.
package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kevinvandever/secureask/internal/entity"
	"github.com/kevinvandever/secureask/internal/evidence"
	"github.com/kevinvandever/secureask/internal/fetch"
	"github.com/kevinvandever/secureask/internal/model"
	"github.com/kevinvandever/secureask/internal/resilience"
	"github.com/kevinvandever/secureask/internal/store"
	"github.com/kevinvandever/secureask/pkg/graph"
)

const (
	defaultMaxHops       = 2
	defaultSourceTimeout = 15 * time.Second
	defaultQueryTTL      = 30 * time.Minute
	enrichTimeout        = 60 * time.Second
)

// ErrGraphNotConfigured is returned by graph-backed operations when no graph
// service was wired in.
var ErrGraphNotConfigured = eris.New("engine: graph service not configured")

// QueryRequest carries one question through ProcessQuery.
type QueryRequest struct {
	Question      string
	MaxHops       int
	Sources       []model.SourceType
	UserID        string
	IncludeAnswer bool
}

// Config assembles an Engine. Store, Cache, and Graph may each be nil; the
// engine then runs unlogged, uncached, or without graph context. QueryTTL 0
// takes the default; a negative value disables whole-query caching.
type Config struct {
	Store         store.Store
	Cache         *fetch.Cache
	Graph         graph.Client
	Extractor     *entity.Extractor
	Ranker        *evidence.Ranker
	Fetchers      []fetch.SourceFetcher
	SourceTimeout time.Duration
	QueryTTL      time.Duration
}

// Engine coordinates the full query pipeline.
type Engine struct {
	store         store.Store
	cache         *fetch.Cache
	graph         graph.Client
	extractor     *entity.Extractor
	ranker        *evidence.Ranker
	fetchers      map[model.SourceType]fetch.SourceFetcher
	registry      *Registry
	sourceTimeout time.Duration
	queryTTL      time.Duration
}

// New builds an Engine from cfg, filling gaps with defaults.
func New(cfg Config) *Engine {
	e := &Engine{
		store:         cfg.Store,
		cache:         cfg.Cache,
		graph:         cfg.Graph,
		extractor:     cfg.Extractor,
		ranker:        cfg.Ranker,
		fetchers:      make(map[model.SourceType]fetch.SourceFetcher, len(cfg.Fetchers)),
		registry:      NewRegistry(),
		sourceTimeout: cfg.SourceTimeout,
		queryTTL:      cfg.QueryTTL,
	}
	if e.cache == nil {
		e.cache = fetch.NewCache(nil)
	}
	if e.extractor == nil {
		e.extractor = entity.NewExtractor(nil)
	}
	if e.ranker == nil {
		e.ranker = evidence.NewRanker(nil)
	}
	if e.sourceTimeout <= 0 {
		e.sourceTimeout = defaultSourceTimeout
	}
	if e.queryTTL == 0 {
		e.queryTTL = defaultQueryTTL
	}
	for _, f := range cfg.Fetchers {
		e.fetchers[f.Source()] = f
	}
	return e
}

// ProcessQuery runs the full pipeline for one question. Source failures never
// fail the query: every requested source contributes an envelope, failed ones
// simply carry no records. The failed status is reserved for an internal
// fault, which is recovered at this boundary and returned as a generic
// failure response.
func (e *Engine) ProcessQuery(ctx context.Context, req QueryRequest) (resp *model.QueryResponse, err error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, eris.New("engine: question must not be empty")
	}
	maxHops := req.MaxHops
	if maxHops <= 0 {
		maxHops = defaultMaxHops
	}
	sources := req.Sources
	if len(sources) == 0 {
		sources = model.AllSources()
	}

	start := time.Now()
	queryID := uuid.New().String()
	query := model.Query{
		ID:        queryID,
		Question:  question,
		MaxHops:   maxHops,
		Sources:   sources,
		UserID:    req.UserID,
		CreatedAt: start.UTC(),
	}
	logger := zap.L().With(zap.String("query_id", queryID))

	e.registry.Add(queryID, &model.ProcessingContext{Query: query, StartedAt: start})
	defer e.registry.Remove(queryID)

	// Outermost fault boundary: anything unrecovered below becomes a failed
	// response, never a crash, and the caller sees no internal detail.
	defer func() {
		if r := recover(); r != nil {
			logger.Error("query processing fault", zap.Any("panic", r), zap.Stack("stack"))
			resp, err = e.failQuery(ctx, query, start, logger), nil
		}
	}()

	logger.Info("processing query",
		zap.String("question", preview(question)),
		zap.Int("max_hops", maxHops),
		zap.Strings("sources", sourceNames(sources)),
	)
	e.logQueryStart(ctx, query, logger)

	queryKey := fetch.QueryResultKey(question, sources, maxHops)
	if cached, ok := e.cache.GetQueryResponse(ctx, queryKey); ok && cached.Status == model.QueryStatusCompleted {
		logger.Info("serving cached query result")
		cached.QueryID = queryID
		e.logQueryDone(ctx, queryID, model.QueryStatusCompleted, citationCount(cached.Result), time.Since(start).Milliseconds(), logger)
		return cached, nil
	}

	nodes := e.lookupNodes(ctx, question, maxHops, logger)

	ticker, _ := e.extractor.ExtractTicker(question)
	terms := e.extractor.ExtractSearchTerms(question)
	logger.Info("extracted query components",
		zap.String("ticker", ticker),
		zap.String("search_terms", terms),
	)

	envelopes := e.fetchAll(ctx, sources, ticker, terms)

	if e.graph != nil && successfulSources(envelopes) > 0 {
		e.enrichGraph(ctx, queryID, ticker, envelopes)
	}

	result := e.synthesize(question, sources, envelopes, req.IncludeAnswer)
	result.ProcessingTimeMS = time.Since(start).Milliseconds()
	logger.Info("query completed",
		zap.Int("node_count", len(nodes)),
		zap.Int("citations", len(result.Citations)),
		zap.Int64("processing_time_ms", result.ProcessingTimeMS),
	)

	completedAt := time.Now().UTC()
	resp = &model.QueryResponse{
		QueryID:     queryID,
		Question:    question,
		Status:      model.QueryStatusCompleted,
		Result:      result,
		CreatedAt:   query.CreatedAt,
		CompletedAt: &completedAt,
	}

	e.cache.SetQueryResponse(ctx, queryKey, resp, e.queryTTL)
	e.logQueryDone(ctx, queryID, model.QueryStatusCompleted, len(result.Citations), result.ProcessingTimeMS, logger)
	return resp, nil
}

// GetQueryResult reports the state of a query by id: a processing view while
// in flight, the audit-row view once finished, or ErrQueryNotFound.
// Synthesized answers are not retrievable by id; completed results live in
// the response cache keyed by question.
func (e *Engine) GetQueryResult(ctx context.Context, queryID string) (*model.QueryResponse, error) {
	if pc, ok := e.registry.Get(queryID); ok {
		return &model.QueryResponse{
			QueryID:   queryID,
			Question:  pc.Query.Question,
			Status:    model.QueryStatusProcessing,
			CreatedAt: pc.Query.CreatedAt,
		}, nil
	}

	if e.store != nil {
		entry, err := e.store.GetQuery(ctx, queryID)
		if err == nil {
			return &model.QueryResponse{
				QueryID:     entry.ID,
				Question:    entry.Question,
				Status:      entry.Status,
				CreatedAt:   entry.CreatedAt,
				CompletedAt: entry.CompletedAt,
			}, nil
		}
		if !errors.Is(err, store.ErrQueryNotFound) {
			return nil, err
		}
	}

	return nil, eris.Wrapf(store.ErrQueryNotFound, "engine: query %s", queryID)
}

// IngestDocument forwards one document into the knowledge graph.
func (e *Engine) IngestDocument(ctx context.Context, docID, content, source string) (*graph.IngestResult, error) {
	if e.graph == nil {
		return nil, ErrGraphNotConfigured
	}
	return e.graph.IngestDocument(ctx, docID, content, source)
}

// ActiveQueries returns the number of in-flight queries.
func (e *Engine) ActiveQueries() int {
	return e.registry.Len()
}

// GraphHealth probes the graph service, or reports it unconfigured.
func (e *Engine) GraphHealth(ctx context.Context) error {
	if e.graph == nil {
		return ErrGraphNotConfigured
	}
	return e.graph.Health(ctx)
}

// SearchGraph passes a node lookup through to the graph service.
func (e *Engine) SearchGraph(ctx context.Context, query string, maxHops int) ([]model.GraphNode, error) {
	if e.graph == nil {
		return nil, ErrGraphNotConfigured
	}
	return e.graph.SearchNodes(ctx, query, maxHops)
}

// lookupNodes resolves graph context for the question. Failures degrade to an
// empty node set; the query proceeds either way.
func (e *Engine) lookupNodes(ctx context.Context, question string, maxHops int, logger *zap.Logger) []model.GraphNode {
	if e.graph == nil {
		return nil
	}
	nodes, err := e.graph.SearchNodes(ctx, question, maxHops)
	if err != nil {
		logger.Warn("graph node lookup failed", zap.Error(err))
		return nil
	}
	logger.Info("found relevant nodes", zap.Int("node_count", len(nodes)))
	return nodes
}

// fetchAll fans one fetch per requested source onto an errgroup and waits for
// every envelope. Fetchers never error into the group, so a failing source
// cannot short-circuit the others; stalled sources are cut by the per-source
// timeout, and a panicking fetcher is isolated to its own envelope.
func (e *Engine) fetchAll(ctx context.Context, sources []model.SourceType, ticker, terms string) map[model.SourceType]*model.SourceResponse {
	var mu sync.Mutex
	envelopes := make(map[model.SourceType]*model.SourceResponse, len(sources))

	g, gctx := errgroup.WithContext(ctx)
	for _, source := range sources {
		fetcher, ok := e.fetchers[source]
		if !ok {
			mu.Lock()
			envelopes[source] = &model.SourceResponse{
				Source:  source,
				Success: false,
				Error:   "no fetcher configured",
			}
			mu.Unlock()
			continue
		}

		key := terms
		if source == model.SourceSEC {
			key = ticker
		}

		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					zap.L().Error("source fetch panicked",
						zap.String("source", string(source)),
						zap.Any("panic", r),
					)
					mu.Lock()
					envelopes[source] = &model.SourceResponse{
						Source:  source,
						Success: false,
						Error:   "internal fetch fault",
					}
					mu.Unlock()
				}
			}()

			fctx, cancel := context.WithTimeout(gctx, e.sourceTimeout)
			defer cancel()

			envelope := fetcher.Fetch(fctx, key)

			mu.Lock()
			envelopes[source] = envelope
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return envelopes
}

// enrichGraph submits fetched records to the graph service from a detached
// goroutine. The outcome is logged and never affects the query's own status
// or latency beyond issuing the call.
func (e *Engine) enrichGraph(ctx context.Context, queryID, ticker string, envelopes map[model.SourceType]*model.SourceResponse) {
	detached := context.WithoutCancel(ctx)
	retryCfg := resilience.RetryConfig{OnRetry: resilience.RetryLogger("graph", "ingest")}

	go func() {
		ectx, cancel := context.WithTimeout(detached, enrichTimeout)
		defer cancel()

		logger := zap.L().With(zap.String("query_id", queryID))
		for _, source := range model.AllSources() {
			envelope := envelopes[source]
			if envelope == nil || !envelope.Success || len(envelope.Records) == 0 {
				continue
			}

			result, err := resilience.DoVal(ectx, retryCfg, func(ctx context.Context) (*graph.IngestResult, error) {
				return e.graph.IngestRecords(ctx, string(source), ticker, envelope.Records)
			})
			if err != nil {
				logger.Warn("graph enrichment failed",
					zap.String("source", string(source)),
					zap.Error(err),
				)
				continue
			}
			logger.Debug("graph enrichment complete",
				zap.String("source", string(source)),
				zap.String("document_id", result.DocumentID),
				zap.Int("triples_extracted", result.TriplesExtracted),
			)
		}
	}()
}

// failQuery builds the generic failed response after an internal fault.
func (e *Engine) failQuery(ctx context.Context, query model.Query, start time.Time, logger *zap.Logger) *model.QueryResponse {
	e.logQueryDone(ctx, query.ID, model.QueryStatusFailed, 0, time.Since(start).Milliseconds(), logger)
	completedAt := time.Now().UTC()
	return &model.QueryResponse{
		QueryID:     query.ID,
		Question:    query.Question,
		Status:      model.QueryStatusFailed,
		CreatedAt:   query.CreatedAt,
		CompletedAt: &completedAt,
	}
}

// logQueryStart writes the audit row. Best-effort: the query proceeds when
// the store is down.
func (e *Engine) logQueryStart(ctx context.Context, query model.Query, logger *zap.Logger) {
	if e.store == nil {
		return
	}
	entry := &model.QueryLogEntry{
		ID:        query.ID,
		Question:  query.Question,
		UserID:    query.UserID,
		Status:    model.QueryStatusProcessing,
		Sources:   query.Sources,
		CreatedAt: query.CreatedAt,
	}
	if err := e.store.CreateQuery(ctx, entry); err != nil {
		logger.Warn("query log insert failed", zap.Error(err))
	}
}

// logQueryDone finalizes the audit row. Best-effort.
func (e *Engine) logQueryDone(ctx context.Context, id string, status model.QueryStatus, citations int, elapsedMS int64, logger *zap.Logger) {
	if e.store == nil {
		return
	}
	if err := e.store.CompleteQuery(ctx, id, status, citations, elapsedMS); err != nil {
		logger.Warn("query log update failed", zap.Error(err))
	}
}

func successfulSources(envelopes map[model.SourceType]*model.SourceResponse) int {
	n := 0
	for _, envelope := range envelopes {
		if envelope != nil && envelope.Success {
			n++
		}
	}
	return n
}

func citationCount(result *model.QueryResult) int {
	if result == nil {
		return 0
	}
	return len(result.Citations)
}

// preview trims long questions for log lines.
func preview(s string) string {
	const max = 100
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

func sourceNames(sources []model.SourceType) []string {
	names := make([]string, 0, len(sources))
	for _, s := range sources {
		names = append(names, string(s))
	}
	return names
}
