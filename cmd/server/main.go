package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"darwin.app/engine/common/id"
	"darwin.app/engine/common/llm"
	"darwin.app/engine/common/logger"
	"darwin.app/engine/common/otel"
	"darwin.app/engine/core/config"
	"darwin.app/engine/core/db"
	"darwin.app/engine/internal/cluster"
	"darwin.app/engine/internal/feedback"
	"darwin.app/engine/internal/fixer"
	"darwin.app/engine/internal/http/handler"
	"darwin.app/engine/internal/http/handler/webhook"
	"darwin.app/engine/internal/http/middleware"
	httprouter "darwin.app/engine/internal/http/router"
	"darwin.app/engine/internal/ingest"
	"darwin.app/engine/internal/learning"
	"darwin.app/engine/internal/mapper"
	"darwin.app/engine/internal/metrics"
	"darwin.app/engine/internal/products"
	"darwin.app/engine/internal/queue"
	"darwin.app/engine/internal/repohost"
	"darwin.app/engine/internal/store"
)

func main() {
	fmt.Printf("%s\n", banner)
	ctx := context.Background()

	cfg, err := config.Load(config.ServiceTypeServer)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	// OTel must init before logger (logger uses OTel provider in production)
	telemetry, err := otel.Setup(ctx, cfg.OTel, cfg.Env, otel.ProcessServer)
	if err != nil {
		os.Stderr.WriteString("failed to initialize otel: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger.Setup(cfg)

	if telemetry != nil {
		slog.InfoContext(ctx, "otel initialized", "endpoint", cfg.OTel.Endpoint)
	} else {
		slog.InfoContext(ctx, "otel disabled (no endpoint configured)")
	}

	slog.InfoContext(ctx, "darwin server starting", "env", cfg.Env, "service", cfg.OTel.ServiceName)
	if err := id.Init(1); err != nil {
		slog.ErrorContext(ctx, "failed to initialize snowflake id generator", "error", err)
		os.Exit(1)
	}

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		slog.ErrorContext(ctx, "failed to register metrics", "error", err)
		os.Exit(1)
	}

	rdb, err := store.NewRedisClient(ctx, cfg.Redis.URL)
	if err != nil {
		slog.ErrorContext(ctx, "failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer rdb.Close()
	slog.InfoContext(ctx, "redis connected")

	if err := store.EnsureIndexes(ctx, rdb, cfg.Embedding.Dimensions); err != nil {
		slog.ErrorContext(ctx, "failed to ensure search indexes", "error", err)
		os.Exit(1)
	}

	var observer llm.Observer
	if cfg.DB.Enabled() {
		database, err := db.New(ctx, cfg.DB)
		if err != nil {
			slog.ErrorContext(ctx, "failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer database.Close()
		if err := database.Migrate(ctx); err != nil {
			slog.ErrorContext(ctx, "failed to migrate database", "error", err)
			os.Exit(1)
		}
		observer = store.AuditObserver(store.NewLLMEvalStore(database))
		slog.InfoContext(ctx, "database connected, llm audit log enabled")
	}

	catalog := loadCatalog(ctx, cfg.ProductsFile)
	resolver := repohost.NewResolver(catalog, buildHosts(ctx, cfg))

	embedder, err := llm.NewEmbedder(llm.EmbedderConfig{
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to create embedder", "error", err)
		os.Exit(1)
	}

	var extractor learning.RuleExtractor
	if cfg.RuleLLM.Enabled() {
		ruleClient, err := llm.New(llmConfig(cfg.RuleLLM), observer)
		if err != nil {
			slog.ErrorContext(ctx, "failed to create rule extraction client", "error", err)
			os.Exit(1)
		}
		extractor = learning.NewLLMExtractor(ruleClient)
	} else {
		slog.WarnContext(ctx, "rule LLM not configured, review feedback will not produce rules")
	}

	stores := store.NewStores(rdb)
	triage := queue.NewTriageQueue(rdb)
	producer := queue.NewRedisProducer(rdb, cfg.Worker.FixStream, nil)

	engine := cluster.New(
		stores.TopicIndex(),
		stores.Topics(),
		stores.Signals(),
		triage,
		queue.NewListQueue(rdb, queue.ToClassify),
		cluster.Config{
			K:             cfg.Cluster.K,
			HighThreshold: cfg.Cluster.HighThreshold,
			LowThreshold:  cfg.Cluster.LowThreshold,
		},
	)
	ingester := ingest.NewService(
		stores.Signals(),
		stores.Topics(),
		queue.NewListQueue(rdb, queue.ToEmbed),
		embedder,
		engine,
	)

	policy := fixer.NewPolicy(fixer.TriggerMode(cfg.Fix.TriggerMode), cfg.Fix.TriggerProducts, cfg.Fix.TriggerPerHour)
	scheduler := fixer.NewScheduler(stores.Tasks(), producer, policy)
	learner := learning.NewStore(stores.Fixes(), stores.Rules(), embedder, extractor)
	prLifecycle := feedback.NewHandler(stores.Tasks(), learner, scheduler, cfg.Fix.MaxIterations)
	issues := repohost.NewIssueService(resolver, stores.Tasks(), stores.Topics(), cfg.Fix.IssueTimeout)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := setupRouter(cfg, httprouter.Handlers{
		Ingest:        handler.NewIngestHandler(ingester),
		Topics:        handler.NewTopicHandler(stores.Topics()),
		Tasks:         handler.NewTaskHandler(stores.Tasks(), issues, scheduler),
		Triage:        handler.NewTriageHandler(triage, engine),
		GitHubWebhook: webhook.NewGitHubWebhookHandler(cfg.Webhook.GitHubSecret, mapper.NewGitHubEventMapper(), prLifecycle),
		GitLabWebhook: webhook.NewGitLabWebhookHandler(cfg.Webhook.GitLabToken, mapper.NewGitLabEventMapper(cfg.GitLab.BotUsername), prLifecycle),
	})
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.InfoContext(ctx, "http server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.ErrorContext(ctx, "http server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.InfoContext(ctx, "shutting down...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.ErrorContext(shutdownCtx, "http server shutdown error", "error", err)
	}

	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "otel shutdown error", "error", err)
		}
	}

	slog.InfoContext(shutdownCtx, "shutdown complete")
}

func setupRouter(cfg config.Config, handlers httprouter.Handlers) *gin.Engine {
	router := gin.New()

	// Order matters: OTel creates span → Recovery catches panics → Logger logs with trace context
	if cfg.OTel.Enabled() {
		router.Use(otelgin.Middleware(cfg.OTel.ServiceName))
	}
	router.Use(middleware.Recovery())
	router.Use(middleware.Logger("/health", "/metrics"))

	httprouter.SetupRoutes(router, handlers, httprouter.RouterConfig{
		APIKey: cfg.APIKey,
	})

	return router
}

// loadCatalog falls back to an empty catalog when the products file is
// absent. Issue and fix requests then fail with no repository configured.
func loadCatalog(ctx context.Context, path string) *products.Catalog {
	catalog, err := products.Load(path)
	if err == nil {
		slog.InfoContext(ctx, "products loaded", "path", path, "count", len(catalog.All()))
		return catalog
	}
	if !errors.Is(err, fs.ErrNotExist) {
		slog.ErrorContext(ctx, "failed to load products", "error", err, "path", path)
		os.Exit(1)
	}
	slog.WarnContext(ctx, "products file not found, no repositories configured", "path", path)
	empty, _ := products.New(nil)
	return empty
}

func buildHosts(ctx context.Context, cfg config.Config) map[string]repohost.Host {
	hosts := map[string]repohost.Host{}
	if cfg.GitHub.Enabled() {
		gh, err := repohost.NewGitHub(cfg.GitHub.Token, cfg.GitHub.BaseURL)
		if err != nil {
			slog.ErrorContext(ctx, "failed to create github client", "error", err)
			os.Exit(1)
		}
		hosts[products.HostGitHub] = gh
	}
	if cfg.GitLab.Enabled() {
		gl, err := repohost.NewGitLab(cfg.GitLab.Token, cfg.GitLab.BaseURL)
		if err != nil {
			slog.ErrorContext(ctx, "failed to create gitlab client", "error", err)
			os.Exit(1)
		}
		hosts[products.HostGitLab] = gl
	}
	return hosts
}

func llmConfig(c config.LLMConfig) llm.Config {
	return llm.Config{
		Provider:  c.Provider,
		APIKey:    c.APIKey,
		BaseURL:   c.BaseURL,
		Model:     c.Model,
		MaxTokens: c.MaxTokens,
		Timeout:   c.Timeout,
	}
}

const banner = `
██████╗  █████╗ ██████╗ ██╗    ██╗██╗███╗   ██╗
██╔══██╗██╔══██╗██╔══██╗██║    ██║██║████╗  ██║
██║  ██║███████║██████╔╝██║ █╗ ██║██║██╔██╗ ██║
██║  ██║██╔══██║██╔══██╗██║███╗██║██║██║╚██╗██║
██████╔╝██║  ██║██║  ██║╚███╔███╔╝██║██║ ╚████║
╚═════╝ ╚═╝  ╚═╝╚═╝  ╚═╝ ╚══╝╚══╝ ╚═╝╚═╝  ╚═══╝
                                        server
`
