package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/assistantd/internal/api"
	"github.com/haasonsaas/assistantd/internal/config"
	"github.com/haasonsaas/assistantd/internal/llm"
	"github.com/haasonsaas/assistantd/internal/observability"
	"github.com/haasonsaas/assistantd/internal/runner"
	"github.com/haasonsaas/assistantd/internal/scheduler"
	"github.com/haasonsaas/assistantd/internal/storage"
	"github.com/haasonsaas/assistantd/internal/tools"
	"github.com/haasonsaas/assistantd/internal/vectorstore"
)

func buildServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the assistants API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			return runServe(cfg)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to YAML config file")
	return cmd
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

func runServe(cfg *config.Config) error {
	logger := observability.NewLogger(observability.LogConfig{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		AddSource: cfg.Logging.AddSource,
	})
	slog.SetDefault(logger)

	metrics := observability.NewMetrics(nil)

	stores, err := storage.NewSQLiteStores(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer stores.Close()

	vs, err := vectorstore.NewSQLiteStore(cfg.Retrieval.Path, buildEmbedder(cfg))
	if err != nil {
		return fmt.Errorf("open vector store: %w", err)
	}
	defer vs.Close()

	backends := buildBackends(cfg)

	toolRegistry, err := tools.Build(cfg.Tools, tools.Deps{
		VectorStore: vs,
		Chat:        chatFunc(backends, cfg.LLM.DefaultModel),
		Logger:      logger,
	})
	if err != nil {
		return fmt.Errorf("build tools: %w", err)
	}
	pipeline := tools.NewPipeline(toolRegistry, logger, metrics)

	executor := runner.New(stores, backends, pipeline, runner.Options{
		DefaultModel: cfg.LLM.DefaultModel,
		HistoryLimit: cfg.LLM.HistoryLimit,
		Logger:       logger,
		Metrics:      metrics,
	})

	sched := scheduler.New(executor.Execute, scheduler.Options{
		StreamTTL:     cfg.Scheduler.StreamTTL,
		SweepInterval: cfg.Scheduler.SweepInterval,
		Logger:        logger,
		Metrics:       metrics,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	sched.Start(ctx)

	server := api.NewServer(api.Options{
		Stores:     stores,
		Scheduler:  sched,
		Backends:   backends,
		Tools:      toolRegistry,
		Vectors:    vs,
		DeleteMode: storage.DeleteMode(cfg.Database.DeleteMode),
		Logger:     logger,
		Metrics:    metrics,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", addr, "version", version)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", "error", err)
	}
	sched.Wait()
	return nil
}

// buildEmbedder picks the retrieval embedder: OpenAI embeddings when an API
// key is configured, otherwise a deterministic local hash embedding so
// retrieval works offline.
func buildEmbedder(cfg *config.Config) vectorstore.Embedder {
	if cfg.LLM.APIKey != "" {
		return vectorstore.NewOpenAIEmbedder(vectorstore.OpenAIEmbedderOptions{
			APIKey:  cfg.LLM.APIKey,
			BaseURL: cfg.LLM.Endpoint,
		})
	}
	return vectorstore.NewHashEmbedder(cfg.Retrieval.Dimension)
}

func buildBackends(cfg *config.Config) *llm.Registry {
	registry := llm.NewRegistry()
	registry.Register(llm.NewMockBackend())
	registry.Register(llm.NewOpenAIBackend(llm.OpenAIOptions{
		APIKey:     cfg.LLM.APIKey,
		BaseURL:    cfg.LLM.Endpoint,
		Timeout:    cfg.LLM.Timeout,
		MaxRetries: cfg.LLM.MaxRetries,
		RetryDelay: cfg.LLM.RetryDelay,
	}))
	if cfg.LLM.AnthropicAPIKey != "" {
		registry.Register(llm.NewAnthropicBackend(llm.AnthropicOptions{
			APIKey:  cfg.LLM.AnthropicAPIKey,
			Timeout: cfg.LLM.Timeout,
		}))
	}
	return registry
}

// chatFunc adapts the backend registry to the single-shot completion calls
// pipeline tools make for rewriting and summarization.
func chatFunc(registry *llm.Registry, defaultModel string) tools.ChatFunc {
	return func(ctx context.Context, messages []tools.Message, args map[string]any) (string, error) {
		backend, model, err := registry.Resolve(defaultModel)
		if err != nil {
			return "", err
		}
		req := &llm.CompletionRequest{Model: model, Args: args}
		for _, m := range messages {
			req.Messages = append(req.Messages, llm.CompletionMessage{
				Role:    m.Role,
				Content: m.Content,
			})
		}
		result, err := llm.Chat(ctx, backend, req)
		if err != nil {
			return "", err
		}
		return result.Text, nil
	}
}
