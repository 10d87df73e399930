package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/GavinStein1/pod2chat/internal/config"
	"github.com/GavinStein1/pod2chat/internal/handlers"
	apphttp "github.com/GavinStein1/pod2chat/internal/http"
	"github.com/GavinStein1/pod2chat/internal/indexer"
	"github.com/GavinStein1/pod2chat/internal/llm"
	"github.com/GavinStein1/pod2chat/internal/orchestrator"
	"github.com/GavinStein1/pod2chat/internal/rag"
	"github.com/GavinStein1/pod2chat/internal/summary"
	"github.com/GavinStein1/pod2chat/internal/youtube"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	completer := llm.NewClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel, cfg.Tuning.Model.ResponseReserve)
	embedder := llm.NewEmbeddingClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.EmbeddingModel)
	orch := orchestrator.New(completer, embedder,
		orchestrator.NewRateBudget(cfg.Tuning.Rate), cfg.Tuning.Model)

	yt := youtube.NewClient()
	ix := indexer.New(yt, embedder, cfg.DataDir, cfg.Tuning.Fine, cfg.Tuning.Coarse)

	router := apphttp.NewRouter(
		logger,
		handlers.NewVideoHandler(ix),
		handlers.NewAskHandler(rag.New(embedder, orch), cfg.DataDir),
		handlers.NewSummaryHandler(summary.New(orch), yt, cfg.DataDir),
		handlers.NewHealthHandler(cfg.DataDir),
	)

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("server listening", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", slog.String("error", err.Error()))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", slog.String("error", err.Error()))
	}
}
