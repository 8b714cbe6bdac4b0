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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"darwin.app/engine/common/id"
	"darwin.app/engine/common/llm"
	"darwin.app/engine/common/logger"
	"darwin.app/engine/common/otel"
	"darwin.app/engine/core/config"
	"darwin.app/engine/core/db"
	"darwin.app/engine/internal/agent"
	"darwin.app/engine/internal/classify"
	"darwin.app/engine/internal/cluster"
	"darwin.app/engine/internal/fixer"
	"darwin.app/engine/internal/gitops"
	"darwin.app/engine/internal/ingest"
	"darwin.app/engine/internal/learning"
	"darwin.app/engine/internal/metrics"
	"darwin.app/engine/internal/products"
	"darwin.app/engine/internal/queue"
	"darwin.app/engine/internal/repohost"
	"darwin.app/engine/internal/store"
	"darwin.app/engine/internal/worker"
)

// runner is a background loop the worker binary supervises.
type runner interface {
	Run(ctx context.Context) error
	Stop()
}

func main() {
	ctx := context.Background()

	cfg, err := config.Load(config.ServiceTypeWorker)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	fmt.Printf("%s\n", banner)

	telemetry, err := otel.Setup(ctx, cfg.OTel, cfg.Env, otel.ProcessWorker)
	if err != nil {
		os.Stderr.WriteString("failed to initialize otel: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger.Setup(cfg)

	slog.InfoContext(ctx, "darwin worker starting",
		"env", cfg.Env,
		"fix_group", cfg.Worker.FixGroup,
		"fix_consumer", cfg.Worker.FixConsumer)

	// Different node id than the server so ids never collide.
	if err := id.Init(2); err != nil {
		slog.ErrorContext(ctx, "failed to initialize id generator", "error", err)
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

	if !cfg.ClassifierLLM.Enabled() {
		slog.ErrorContext(ctx, "CLASSIFIER_LLM_API_KEY or OPENAI_API_KEY is required")
		os.Exit(1)
	}
	classifierClient, err := llm.New(llmConfig(cfg.ClassifierLLM), observer)
	if err != nil {
		slog.ErrorContext(ctx, "failed to create classifier client", "error", err)
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
	}

	catalog := loadCatalog(ctx, cfg.ProductsFile)
	resolver := repohost.NewResolver(catalog, buildHosts(ctx, cfg))

	stores := store.NewStores(rdb)
	producer := queue.NewRedisProducer(rdb, cfg.Worker.FixStream, nil)
	policy := fixer.NewPolicy(fixer.TriggerMode(cfg.Fix.TriggerMode), cfg.Fix.TriggerProducts, cfg.Fix.TriggerPerHour)
	scheduler := fixer.NewScheduler(stores.Tasks(), producer, policy)
	issues := repohost.NewIssueService(resolver, stores.Tasks(), stores.Topics(), cfg.Fix.IssueTimeout)

	engine := cluster.New(
		stores.TopicIndex(),
		stores.Topics(),
		stores.Signals(),
		queue.NewTriageQueue(rdb),
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
	classifier := classify.NewProcessor(
		stores.Topics(),
		stores.Tasks(),
		classify.NewLLMClassifier(classifierClient),
		issues,
		scheduler,
		classify.ProcessorConfig{
			Timeout:      cfg.ClassifierLLM.Timeout,
			CreateIssues: cfg.Fix.AutoCreateIssues,
		},
	)

	runners := []runner{
		worker.NewPoller(queue.NewListQueue(rdb, queue.ToEmbed), func(ctx context.Context, signalID string) error {
			_, err := ingester.Process(ctx, signalID)
			return err
		}, worker.PollerConfig{
			Name:         queue.ToEmbed,
			Component:    "darwin.worker.embed",
			PollInterval: cfg.Worker.PollInterval,
			BatchSize:    cfg.Worker.BatchSize,
		}),
		worker.NewPoller(queue.NewListQueue(rdb, queue.ToClassify), classifier.Process, worker.PollerConfig{
			Name:         queue.ToClassify,
			Component:    "darwin.worker.classify",
			PollInterval: cfg.Worker.PollInterval,
			BatchSize:    cfg.Worker.BatchSize,
		}),
	}

	if cfg.AgentLLM.Enabled() {
		fixRunners, err := setupFixWorker(ctx, cfg, rdb, stores, resolver, embedder, extractor)
		if err != nil {
			slog.ErrorContext(ctx, "failed to set up fix worker", "error", err)
			os.Exit(1)
		}
		runners = append(runners, fixRunners...)
	} else {
		slog.WarnContext(ctx, "agent LLM not configured, fix jobs will stay queued")
	}

	metricsServer := &http.Server{
		Addr:              ":" + cfg.Worker.MetricsPort,
		Handler:           promhttp.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.ErrorContext(ctx, "metrics server error", "error", err)
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	for _, r := range runners {
		g.Go(func() error { return r.Run(gctx) })
	}

	slog.InfoContext(ctx, "worker initialized and running", "loops", len(runners))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.InfoContext(ctx, "shutting down worker...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		for _, r := range runners {
			r.Stop()
		}
		done <- g.Wait()
	}()

	select {
	case <-shutdownCtx.Done():
		slog.WarnContext(ctx, "shutdown timeout exceeded")
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			slog.ErrorContext(ctx, "worker error during shutdown", "error", err)
		}
	}

	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		slog.ErrorContext(shutdownCtx, "metrics server shutdown error", "error", err)
	}
	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "otel shutdown error", "error", err)
		}
	}

	slog.InfoContext(ctx, "worker shutdown complete")
}

// setupFixWorker builds the fix job consumer and the reclaimer that fails
// jobs orphaned by a crashed consumer.
func setupFixWorker(
	ctx context.Context,
	cfg config.Config,
	rdb *redis.Client,
	stores *store.Stores,
	resolver repohost.Resolver,
	embedder llm.Embedder,
	extractor learning.RuleExtractor,
) ([]runner, error) {
	agentClient, err := llm.NewAgentClient(llmConfig(cfg.AgentLLM))
	if err != nil {
		return nil, fmt.Errorf("creating agent client: %w", err)
	}

	git := gitops.New(gitops.Config{
		WorkDir:      cfg.Fix.WorkDir,
		CloneTimeout: cfg.Fix.CloneTimeout,
		PushTimeout:  cfg.Fix.PushTimeout,
		GitTimeout:   cfg.Fix.GitTimeout,
		AuthorName:   cfg.Fix.AuthorName,
		AuthorEmail:  cfg.Fix.AuthorEmail,
		Concurrency:  int64(cfg.Worker.FixConcurrency) * 2,
	}, nil)

	fx := fixer.New(
		stores.Tasks(),
		resolver,
		git,
		agent.New(agentClient, agent.Config{MaxTurns: cfg.Fix.AgentMaxTurns, MaxTokens: cfg.AgentLLM.MaxTokens}),
		learning.NewStore(stores.Fixes(), stores.Rules(), embedder, extractor),
		fixer.Config{
			BranchPrefix:       cfg.Fix.BranchPrefix,
			MaxIterations:      cfg.Fix.MaxIterations,
			SimilarFixLimit:    cfg.Fix.SimilarFixLimit,
			SimilarFixMinScore: cfg.Fix.SimilarFixMinScore,
			RuleLimit:          cfg.Fix.RuleLimit,
		},
	)

	consumer, err := queue.NewRedisConsumer(ctx, rdb, queue.ConsumerConfig{
		Stream:    cfg.Worker.FixStream,
		Group:     cfg.Worker.FixGroup,
		Consumer:  cfg.Worker.FixConsumer,
		DLQStream: cfg.Worker.FixDLQStream,
		BatchSize: int64(cfg.Worker.FixConcurrency),
		Block:     5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("creating fix consumer: %w", err)
	}

	reclaimer := worker.NewRedisReclaimer(rdb, worker.RedisReclaimerConfig{
		Stream:    cfg.Worker.FixStream,
		Group:     cfg.Worker.FixGroup,
		Consumer:  cfg.Worker.FixConsumer + "-reclaimer",
		MinIdle:   cfg.Worker.ReclaimMinIdle,
		Interval:  cfg.Worker.ReclaimInterval,
		BatchSize: 10,
	}, consumer, stores.Tasks())

	return []runner{
		worker.New(consumer, fx, worker.Config{Concurrency: cfg.Worker.FixConcurrency}),
		reclaimerRunner{reclaimer},
	}, nil
}

// reclaimerRunner adapts the reclaimer, whose Run has no error, to runner.
type reclaimerRunner struct {
	*worker.RedisReclaimer
}

func (r reclaimerRunner) Run(ctx context.Context) error {
	r.RedisReclaimer.Run(ctx)
	return nil
}

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
                                        worker
`
