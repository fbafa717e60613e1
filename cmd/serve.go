package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kevinvandever/secureask/internal/engine"
	"github.com/kevinvandever/secureask/internal/model"
	"github.com/kevinvandever/secureask/internal/monitoring"
	"github.com/kevinvandever/secureask/internal/resilience"
	"github.com/kevinvandever/secureask/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP query API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEngine(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		if cfg.Monitoring.WebhookURL != "" {
			checker := monitoring.NewChecker(
				monitoring.NewCollector(env.Store),
				monitoring.NewAlerter(cfg.Monitoring),
				cfg.Monitoring,
			)
			go checker.Run(ctx)
		}

		router := buildRouter(env.Engine, env.Breakers, cfg.Server.CORSOrigins, cfg.Server.RateLimitPerMin)
		return startServer(ctx, router, resolvePort(servePort, cfg.Server.Port))
	},
}

// resolvePort picks the flag value when set, else the configured port.
func resolvePort(flag, configured int) int {
	if flag != 0 {
		return flag
	}
	return configured
}

// startServer runs the HTTP server until ctx is canceled, then drains
// connections under a shutdown timeout.
func startServer(ctx context.Context, handler http.Handler, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		zap.L().Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			zap.L().Warn("server shutdown", zap.Error(err))
		}
	}()

	zap.L().Info("starting server", zap.Int("port", port))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return eris.Wrap(err, "server listen")
	}
	return nil
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// buildRouter assembles the API routes with logging, CORS, and per-client
// rate limiting.
func buildRouter(eng *engine.Engine, breakers *resilience.ServiceBreakers, corsOrigins []string, ratePerMin int) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: corsOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "Authorization"},
		MaxAge:         300,
	}))
	if ratePerMin > 0 {
		r.Use(rateLimitMiddleware(ratePerMin))
	}

	r.Get("/health", handleHealth(eng, breakers))
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/query", handleQuery(eng))
		r.Get("/query/{queryID}", handleQueryStatus(eng))
		r.Post("/graph/search", handleGraphSearch(eng))
		r.Post("/ingest", handleIngest(eng))
	})
	return r
}

// requestLogger emits one structured line per request.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		zap.L().Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
		)
	})
}

// ipLimiters hands out one token bucket per client address.
type ipLimiters struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	perMin   int
}

func newIPLimiters(perMin int) *ipLimiters {
	return &ipLimiters{limiters: make(map[string]*rate.Limiter), perMin: perMin}
}

func (l *ipLimiters) get(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.limiters[ip]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(float64(l.perMin)/60.0), l.perMin)
		l.limiters[ip] = lim
	}
	return lim
}

// rateLimitMiddleware rejects clients that exceed perMin requests per minute.
// Unparseable remote addresses count as their raw string rather than being
// rejected outright.
func rateLimitMiddleware(perMin int) func(http.Handler) http.Handler {
	limiters := newIPLimiters(perMin)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				ip = r.RemoteAddr
			}
			if !limiters.get(ip).Allow() {
				writeJSONError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func handleHealth(eng *engine.Engine, breakers *resilience.ServiceBreakers) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body := map[string]any{
			"status":        "ok",
			"activeQueries": eng.ActiveQueries(),
		}
		if breakers != nil {
			body["breakers"] = breakers.States()
		}
		writeJSON(w, http.StatusOK, body)
	}
}

// queryAPIRequest mirrors the POST /api/v1/query body. includeAnswer
// defaults to true when omitted.
type queryAPIRequest struct {
	Question      string   `json:"question"`
	MaxHops       int      `json:"maxHops"`
	Sources       []string `json:"sources"`
	UserID        string   `json:"userId"`
	IncludeAnswer *bool    `json:"includeAnswer"`
}

func handleQuery(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req queryAPIRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if strings.TrimSpace(req.Question) == "" {
			writeJSONError(w, http.StatusBadRequest, "question is required")
			return
		}
		sources, err := model.ParseSources(req.Sources)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		includeAnswer := true
		if req.IncludeAnswer != nil {
			includeAnswer = *req.IncludeAnswer
		}

		resp, err := eng.ProcessQuery(r.Context(), engine.QueryRequest{
			Question:      req.Question,
			MaxHops:       req.MaxHops,
			Sources:       sources,
			UserID:        req.UserID,
			IncludeAnswer: includeAnswer,
		})
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func handleQueryStatus(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		queryID := chi.URLParam(r, "queryID")
		resp, err := eng.GetQueryResult(r.Context(), queryID)
		if err != nil {
			if errors.Is(err, store.ErrQueryNotFound) {
				writeJSONError(w, http.StatusNotFound, "query not found")
				return
			}
			zap.L().Error("query status lookup failed", zap.String("query_id", queryID), zap.Error(err))
			writeJSONError(w, http.StatusInternalServerError, "query lookup failed")
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

type graphSearchRequest struct {
	Query   string `json:"query"`
	MaxHops int    `json:"maxHops"`
}

func handleGraphSearch(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req graphSearchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if strings.TrimSpace(req.Query) == "" {
			writeJSONError(w, http.StatusBadRequest, "query is required")
			return
		}

		nodes, err := eng.SearchGraph(r.Context(), req.Query, req.MaxHops)
		if err != nil {
			if errors.Is(err, engine.ErrGraphNotConfigured) {
				writeJSONError(w, http.StatusServiceUnavailable, "graph service not configured")
				return
			}
			zap.L().Error("graph search failed", zap.Error(err))
			writeJSONError(w, http.StatusBadGateway, "graph search failed")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"nodes": nodes})
	}
}

type ingestRequest struct {
	DocID   string `json:"docId"`
	Content string `json:"content"`
	Source  string `json:"source"`
}

func handleIngest(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ingestRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if strings.TrimSpace(req.Content) == "" {
			writeJSONError(w, http.StatusBadRequest, "content is required")
			return
		}

		result, err := eng.IngestDocument(r.Context(), req.DocID, req.Content, req.Source)
		if err != nil {
			if errors.Is(err, engine.ErrGraphNotConfigured) {
				writeJSONError(w, http.StatusServiceUnavailable, "graph service not configured")
				return
			}
			zap.L().Error("document ingest failed", zap.Error(err))
			writeJSONError(w, http.StatusBadGateway, "document ingest failed")
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Error("write response failed", zap.Error(err))
	}
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
