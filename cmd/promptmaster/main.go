package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/afero"

	"github.com/Nyukimin/promptmaster/internal/adapter/auth"
	"github.com/Nyukimin/promptmaster/internal/adapter/config"
	"github.com/Nyukimin/promptmaster/internal/adapter/httpapi"
	"github.com/Nyukimin/promptmaster/internal/application/ingestion"
	"github.com/Nyukimin/promptmaster/internal/application/pipeline"
	"github.com/Nyukimin/promptmaster/internal/application/retention"
	"github.com/Nyukimin/promptmaster/internal/domain/agent"
	"github.com/Nyukimin/promptmaster/internal/domain/llm"
	"github.com/Nyukimin/promptmaster/internal/infrastructure/contextretrieval"
	"github.com/Nyukimin/promptmaster/internal/infrastructure/llm/claude"
	"github.com/Nyukimin/promptmaster/internal/infrastructure/llm/openai"
	"github.com/Nyukimin/promptmaster/internal/infrastructure/persistence/blob"
	"github.com/Nyukimin/promptmaster/internal/infrastructure/persistence/postgres"
	routinginfra "github.com/Nyukimin/promptmaster/internal/infrastructure/routing"
)

const version = "1.0.0"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "promptmaster: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig(getConfigPath())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := buildLogger(cfg.Log)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := postgres.Connect(ctx, cfg.Database.DSN)
	if err != nil {
		return err
	}
	defer pool.Close()

	deps, err := buildDependencies(cfg, pool, logger)
	if err != nil {
		return err
	}

	go deps.Pruner.Start(ctx)

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      deps.Handler.Routes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server started", "addr", cfg.Server.Addr(), "provider", cfg.LLM.Provider, "version", version)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		return fmt.Errorf("server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// Dependencies は組み立て済みのアプリケーション構成要素
type Dependencies struct {
	Handler *httpapi.Handler
	Pruner  *retention.Pruner
}

// buildDependencies は設定から全コンポーネントを配線する
func buildDependencies(cfg *config.Config, pool *pgxpool.Pool, logger *slog.Logger) (*Dependencies, error) {
	primary, secondary, embedder, err := buildProviders(cfg)
	if err != nil {
		return nil, err
	}

	registry := agent.NewRegistry()
	classifier := routinginfra.NewLLMClassifier(secondary, registry, cfg.LLM.RequestTimeout)
	evaluator := agent.NewEvaluator(registry, primary, cfg.LLM.RequestTimeout)

	historyRepo := postgres.NewHistoryRepository(pool)
	projectRepo := postgres.NewProjectRepository(pool)
	userRepo := postgres.NewUserRepository(pool)
	vectorRepo := postgres.NewVectorRepository(pool)

	retriever := contextretrieval.NewRetriever(embedder, vectorRepo, cfg.Context.TopK, cfg.Context.Threshold)
	pipe := pipeline.New(classifier, retriever, evaluator, historyRepo, cfg.Retention.UserKeep, logger)

	store := blob.NewStore(afero.NewOsFs(), cfg.Storage.UploadDir)
	ingestor := ingestion.NewService(store, embedder, vectorRepo, cfg.Ingestion.ChunkSize, cfg.Ingestion.ChunkOverlap)

	var verifier auth.Verifier
	if cfg.Auth.Enabled() {
		verifier = auth.NewHTTPVerifier(cfg.Auth.BaseURL, cfg.Auth.APIKey)
	}

	handler := httpapi.NewHandler(
		pipe,
		ingestor,
		projectRepo,
		historyRepo,
		userRepo,
		registry,
		verifier,
		cfg.Storage.MaxUploadBytes,
		version,
		logger,
	)

	pruner, err := retention.NewPruner(historyRepo, cfg.Retention.Schedule, cfg.Retention.ProjectKeep, logger)
	if err != nil {
		return nil, err
	}

	return &Dependencies{Handler: handler, Pruner: pruner}, nil
}

// buildProviders は分類用・評価用モデルと埋め込みクライアントを組み立てる
// 分類は軽量なセカンダリモデル、評価はプライマリモデルを使う
// 埋め込みはプロバイダー設定によらずOpenAIを使う
func buildProviders(cfg *config.Config) (primary, secondary llm.Provider, embedder llm.Embedder, err error) {
	embedder = openai.NewEmbedder(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, cfg.LLM.EmbeddingModel, cfg.LLM.EmbeddingDimension)

	switch cfg.LLM.Provider {
	case "openai":
		primary = openai.NewProvider(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, cfg.LLM.PrimaryModel)
		secondary = openai.NewProvider(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, cfg.LLM.SecondaryModel)
	case "claude":
		primary = claude.NewProvider(cfg.Anthropic.APIKey, cfg.Anthropic.BaseURL, cfg.LLM.PrimaryModel)
		secondary = claude.NewProvider(cfg.Anthropic.APIKey, cfg.Anthropic.BaseURL, cfg.LLM.SecondaryModel)
	default:
		return nil, nil, nil, fmt.Errorf("unknown llm provider %q", cfg.LLM.Provider)
	}
	return primary, secondary, embedder, nil
}

func getConfigPath() string {
	if path := os.Getenv("PROMPTMASTER_CONFIG"); path != "" {
		return path
	}
	return "config.yaml"
}

func buildLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}
