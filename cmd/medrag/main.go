package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/clinika/medrag/internal/cache/assets"
	"github.com/clinika/medrag/internal/cache/rescache"
	"github.com/clinika/medrag/internal/config"
	"github.com/clinika/medrag/internal/db"
	dbRedis "github.com/clinika/medrag/internal/db/redis"
	"github.com/clinika/medrag/internal/embedder"
	openaiEmb "github.com/clinika/medrag/internal/embedder/openai"
	logpkg "github.com/clinika/medrag/internal/logger"
	"github.com/clinika/medrag/internal/metrics"
	icd10repo "github.com/clinika/medrag/internal/repository/icd10"
	vectorrepo "github.com/clinika/medrag/internal/repository/vector"
	indexuc "github.com/clinika/medrag/internal/usecase/index"
	searchuc "github.com/clinika/medrag/internal/usecase/search"
	"github.com/clinika/medrag/internal/version"
)

func main() {
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting medrag retrieval engine",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Strings("redis_addrs", cfg.Redis.Addrs),
	)

	metrics.Register()

	// Result cache connects lazily on first use. A dead Redis downgrades
	// caching to a no-op instead of blocking startup.
	resultCache := rescache.New(
		cfg.Cache.Namespace,
		rescache.NewStoreConnector(func(ctx context.Context) (db.Store, error) {
			store, err := dbRedis.NewStore(dbRedis.Config{
				Addrs:    cfg.Redis.Addrs,
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
				Timeout:  time.Duration(cfg.Redis.ConnectTimeoutSec) * time.Second,
			})
			if err != nil {
				return nil, err
			}
			if err := store.WaitForReady(ctx, time.Duration(cfg.Redis.ConnectTimeoutSec)*time.Second); err != nil {
				store.Close()
				return nil, err
			}
			return store, nil
		}),
		logger,
	)

	// Keyword index: embedded sqlite, migrations run on open.
	icd10DB, err := icd10repo.Open(cfg.ICD10.Path, logger)
	if err != nil {
		logger.Fatal("Failed to open ICD-10 index", zap.Error(err))
	}
	defer icd10DB.Close()

	ctx := context.Background()
	if n, err := icd10DB.Count(ctx); err == nil {
		logger.Info("ICD-10 index opened", zap.String("path", cfg.ICD10.Path), zap.Int("codes", n))
	}

	vectorStore := vectorrepo.New(cfg.Collections, logger)

	// Embedder chain: OpenAI-compatible provider behind a process-local
	// content-hash cache.
	baseEmbedder := openaiEmb.NewEmbedder(&openaiEmb.Config{
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		Provider:   cfg.Embedding.Provider,
		Logger:     logger,
	})
	cachedEmbedder := embedder.NewCached(baseEmbedder, cfg.Embedding.CacheSize, logger)
	logger.Info("Embedder created",
		zap.String("provider", cfg.Embedding.Provider),
		zap.String("model", cfg.Embedding.Model),
		zap.Int("dimensions", cfg.Embedding.Dimensions),
	)

	searchSvc := searchuc.New(icd10DB, vectorStore, cachedEmbedder, logger).
		WithCache(resultCache).
		WithMinSimilarity(cfg.Search.MinSimilarity)

	indexSvc := indexuc.New(vectorStore, cachedEmbedder, indexuc.Config{
		QueueSize:  cfg.Indexer.QueueSize,
		Workers:    cfg.Indexer.Workers,
		JobTimeout: time.Duration(cfg.Indexer.JobTimeoutSec) * time.Second,
	}, logger)
	defer indexSvc.Close()

	assetRegistry, err := assets.NewDefaultRegistry(nil, logger)
	if err != nil {
		logger.Fatal("Failed to build asset cache registry", zap.Error(err))
	}

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(metrics.Middleware())

	r.Get("/healthz", healthHandler(icd10DB, vectorStore, resultCache, indexSvc))
	r.Get("/cachez", assetStatsHandler(assetRegistry))
	r.Get("/searchz", debugSearchHandler(searchSvc, cfg.Search.DefaultTopK))
	r.Handle("/metrics", promhttp.Handler())

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting ops HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// healthHandler reports component status. The result cache being down is
// "degraded", not unhealthy: retrieval still works without it.
func healthHandler(
	icd10DB *icd10repo.Table,
	vectors *vectorrepo.Store,
	cache *rescache.Cache,
	indexer *indexuc.Service,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		codes, _ := icd10DB.Count(r.Context())

		status := "ok"
		cacheStatus := "connected"
		if !cache.Connected(r.Context()) {
			status = "degraded"
			cacheStatus = "disabled"
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":       status,
			"version":      version.Version,
			"result_cache": cacheStatus,
			"icd10_codes":  codes,
			"collections":  vectors.Collections(),
			"index_queue":  indexer.QueueDepth(),
		})
	}
}

// debugSearchHandler is an operator convenience for poking the hybrid
// pipeline from curl. Not a public API.
func debugSearchHandler(svc *searchuc.Service, defaultTopK int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query().Get("q")
		if query == "" {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "q is required"})
			return
		}

		opts := searchuc.DefaultHybridOptions()
		if defaultTopK > 0 {
			opts.TopK = defaultTopK
		}
		if v := r.URL.Query().Get("top_k"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				opts.TopK = n
			}
		}

		hits, err := svc.HybridSearch(r.Context(), query, opts)
		if err != nil {
			w.WriteHeader(http.StatusGatewayTimeout)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"query": query,
			"hits":  hits,
		})
	}
}

func assetStatsHandler(registry *assets.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(registry.Stats())
	}
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			requestID := chiMiddleware.GetReqID(r.Context())
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
