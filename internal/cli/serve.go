package cli

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/IAmMonkeyBoy/context-memory-store/internal/config"
	"github.com/IAmMonkeyBoy/context-memory-store/internal/logger"
	"github.com/IAmMonkeyBoy/context-memory-store/internal/observability"
	"github.com/IAmMonkeyBoy/context-memory-store/internal/tracing"
	"github.com/IAmMonkeyBoy/context-memory-store/pkg/chunker"
	"github.com/IAmMonkeyBoy/context-memory-store/pkg/engine"
	"github.com/IAmMonkeyBoy/context-memory-store/pkg/graphstore"
	"github.com/IAmMonkeyBoy/context-memory-store/pkg/lifecycle"
	"github.com/IAmMonkeyBoy/context-memory-store/pkg/llm"
	"github.com/IAmMonkeyBoy/context-memory-store/pkg/resilience"
	"github.com/IAmMonkeyBoy/context-memory-store/pkg/vectorstore"
)

var serveCmd = &cobra.Command{
	Use:   "serve [project-id...]",
	Short: "Run the memory daemon",
	Long: `Run the memory daemon: start the given projects, expose Prometheus
metrics, and keep serving until interrupted. On shutdown every running
project is stopped cleanly (drained and snapshotted).`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if errs := config.NewValidator().ValidateConfig(cfg); len(errs) > 0 {
		msgs := make([]string, len(errs))
		for i, e := range errs {
			msgs[i] = e.Error()
		}
		return fmt.Errorf("invalid configuration:\n  %s", strings.Join(msgs, "\n  "))
	}

	lg, err := logger.New(logger.Config{
		Level:     cfg.Logging.Level,
		File:      cfg.Logging.File,
		Console:   true,
		Pretty:    true,
		Redaction: true,
		MaxSize:   cfg.Logging.MaxSize,
		MaxAge:    cfg.Logging.MaxAge,
		Compress:  cfg.Logging.Compress,
	})
	if err != nil {
		return err
	}
	defer lg.Close()
	zl := lg.GetZerolog()

	observability.EnsureRegistered()
	if err := observability.InitAuditLogger(filepath.Join(cfg.DataDir, "audit.log")); err != nil {
		zl.Warn().Err(err).Msg("Audit log unavailable, falling back to stderr")
	}
	if err := tracing.InitOpenTelemetry("memoryd"); err != nil {
		zl.Warn().Err(err).Msg("Tracing unavailable")
	}

	stack, err := buildStack(cfg, zl)
	if err != nil {
		return err
	}
	defer stack.manager.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	for _, projectID := range args {
		if err := stack.manager.Start(ctx, projectID); err != nil {
			return fmt.Errorf("failed to start project %s: %w", projectID, err)
		}
	}

	var metricsSrv *http.Server
	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", observability.MetricsHandler())
		metricsSrv = &http.Server{
			Addr:    fmt.Sprintf("%s:%d", cfg.Metrics.Host, cfg.Metrics.Port),
			Handler: mux,
		}
		go func() {
			zl.Info().Str("addr", metricsSrv.Addr).Msg("Serving metrics")
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				zl.Error().Err(err).Msg("Metrics server failed")
			}
		}()
	}

	zl.Info().Strs("projects", args).Msg("memoryd running")
	<-ctx.Done()
	zl.Info().Msg("Shutting down")

	// The parent ctx is already cancelled; shutdown gets its own deadline.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	for _, projectID := range stack.manager.Running() {
		if err := stack.manager.Stop(shutdownCtx, projectID, "daemon shutdown"); err != nil {
			zl.Error().Err(err).Str("project", projectID).Msg("Failed to stop project")
		}
	}
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	_ = tracing.ShutdownOpenTelemetry(shutdownCtx)
	return nil
}

type serviceStack struct {
	manager *lifecycle.Manager
	engine  *engine.Engine
}

// buildStack wires backends, resilience, engine and lifecycle from config.
func buildStack(cfg *config.Config, zl zerolog.Logger) (*serviceStack, error) {
	resCfg := resilienceConfig(cfg.Resilience)

	vectors := buildVectorStore(cfg, resCfg, zl)
	graph := buildGraphStore(cfg, resCfg, zl)
	svc, err := buildLLM(cfg, resCfg, zl)
	if err != nil {
		return nil, err
	}

	ck, err := chunker.New(chunker.Config{
		MaxChunkSize: cfg.Chunking.MaxChunkSize,
		Overlap:      cfg.Chunking.Overlap,
	})
	if err != nil {
		return nil, err
	}

	exporter, err := lifecycle.NewFileExporter(cfg.Snapshot.Dir)
	if err != nil {
		return nil, err
	}

	manager, err := lifecycle.New(lifecycle.Config{
		Vectors:      vectors,
		Graph:        graph,
		LLM:          svc,
		Exporter:     exporter,
		Logger:       zl,
		DrainTimeout: time.Duration(cfg.Snapshot.DrainTimeoutSeconds) * time.Second,
		SnapshotSpec: cfg.Snapshot.Schedule,
	})
	if err != nil {
		return nil, err
	}

	eng := engine.New(engine.Config{
		Vectors:           vectors,
		Graph:             graph,
		LLM:               svc,
		Chunker:           ck,
		States:            manager,
		Logger:            zl,
		Workers:           cfg.Ingestion.Workers,
		DefaultQueryLimit: cfg.Query.DefaultLimit,
		DefaultMinScore:   cfg.Query.MinScore,
		SummaryMaxWords:   cfg.Ingestion.SummaryMaxWords,
	})
	manager.AttachEngine(eng)

	return &serviceStack{manager: manager, engine: eng}, nil
}

func resilienceConfig(cfg config.ResilienceConfig) resilience.Config {
	return resilience.Config{
		Retry: resilience.RetryConfig{
			MaxAttempts:    cfg.MaxAttempts,
			InitialBackoff: time.Duration(cfg.InitialBackoffMs) * time.Millisecond,
			MaxBackoff:     time.Duration(cfg.MaxBackoffMs) * time.Millisecond,
		},
		Breaker: resilience.BreakerConfig{
			FailureThreshold: cfg.BreakerThreshold,
			Cooldown:         time.Duration(cfg.BreakerCooldownSeconds) * time.Second,
		},
		RequestTimeout: time.Duration(cfg.RequestTimeoutSeconds) * time.Second,
	}
}

// newExecutor creates a backend executor with its breaker state exported as
// a gauge.
func newExecutor(backend string, cfg resilience.Config, zl zerolog.Logger) *resilience.Executor {
	exec := resilience.NewExecutor(backend, cfg, zl)
	exec.Breaker().OnTransition(func(name string, state resilience.BreakerState) {
		observability.SetBreakerOpen(name, state != resilience.BreakerClosed)
	})
	return exec
}

func buildVectorStore(cfg *config.Config, resCfg resilience.Config, zl zerolog.Logger) vectorstore.Store {
	if cfg.VectorStore.URL == "" {
		zl.Info().Msg("Using embedded in-memory vector store")
		return vectorstore.NewMemory()
	}
	qdrant := vectorstore.NewQdrant(vectorstore.QdrantConfig{
		URL:     cfg.VectorStore.URL,
		APIKey:  cfg.VectorStore.APIKey,
		Timeout: time.Duration(cfg.VectorStore.TimeoutSeconds) * time.Second,
	}, zl)
	return vectorstore.NewResilient(qdrant, newExecutor("qdrant", resCfg, zl))
}

func buildGraphStore(cfg *config.Config, resCfg resilience.Config, zl zerolog.Logger) graphstore.Store {
	if cfg.GraphStore.URL == "" {
		zl.Info().Msg("Using embedded in-memory graph store")
		return graphstore.NewMemory()
	}
	neo4j := graphstore.NewNeo4j(graphstore.Neo4jConfig{
		URL:      cfg.GraphStore.URL,
		Database: cfg.GraphStore.Database,
		Username: cfg.GraphStore.Username,
		Password: cfg.GraphStore.Password,
		Timeout:  time.Duration(cfg.GraphStore.TimeoutSeconds) * time.Second,
	}, zl)
	return graphstore.NewResilient(neo4j, newExecutor("neo4j", resCfg, zl))
}

func buildLLM(cfg *config.Config, resCfg resilience.Config, zl zerolog.Logger) (llm.Service, error) {
	if cfg.LLM.Provider == "fake" {
		return llm.NewFake(cfg.LLM.EmbeddingDimension), nil
	}

	svc, err := llm.New(llm.Config{
		Provider:           cfg.LLM.Provider,
		APIKey:             cfg.LLM.APIKey,
		ChatModel:          cfg.LLM.ChatModel,
		EmbeddingModel:     cfg.LLM.EmbeddingModel,
		EmbeddingDimension: cfg.LLM.EmbeddingDimension,
	})
	if err != nil {
		return nil, err
	}

	// Retry per sub-batch: the batcher sits outside the resilience wrapper
	// so one transient provider error does not fail sibling sub-batches.
	resilient := llm.NewResilient(svc, newExecutor(cfg.LLM.Provider, resCfg, zl))
	return llm.NewBatchEmbedder(resilient, llm.BatchConfig{
		MaxBatchSize:      cfg.LLM.MaxBatchSize,
		ConcurrentBatches: cfg.LLM.ConcurrentBatches,
	}, zl), nil
}
