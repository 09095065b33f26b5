package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/louloulin/agentmem/internal/api"
	"github.com/louloulin/agentmem/internal/clock"
	"github.com/louloulin/agentmem/internal/config"
	"github.com/louloulin/agentmem/internal/conflict"
	"github.com/louloulin/agentmem/internal/coordinator"
	"github.com/louloulin/agentmem/internal/embedding"
	"github.com/louloulin/agentmem/internal/engine"
	"github.com/louloulin/agentmem/internal/hierarchy"
	"github.com/louloulin/agentmem/internal/retrieval"
	"github.com/louloulin/agentmem/internal/scorer"
	"github.com/louloulin/agentmem/internal/search"
	"github.com/louloulin/agentmem/internal/store"
	"github.com/louloulin/agentmem/internal/storepg"
	"github.com/louloulin/agentmem/internal/strategy"
)

func main() {
	logger, _ := zap.NewProduction()
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	ctx := context.Background()
	clk := clock.NewSystem()
	ids := clock.NewUUIDGen()

	st := store.New(cfg.Store, clk, ids, logger)

	var pool *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		pool, err = pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("failed to connect to database", zap.Error(err))
		}
		defer pool.Close()
		if err := pool.Ping(ctx); err != nil {
			logger.Fatal("failed to ping database", zap.Error(err))
		}
		logger.Info("connected to database")

		sink := storepg.NewMemorySink(pool)
		st.SetDurableSink(sink)

		if records, err := sink.Reload(ctx); err != nil {
			logger.Warn("durable store reload failed", zap.Error(err))
		} else {
			logger.Info("reloaded memories from durable store", zap.Int("count", len(records)))
		}
	} else {
		logger.Warn("DATABASE_URL not set; running with in-memory store only")
	}

	sc := scorer.New(cfg.Scorer, logger)
	cf := conflict.New(cfg.Conflict, clk, ids, logger)
	hi := hierarchy.New(cfg.Hierarchy, clk, ids, logger)
	sm := strategy.New(cfg.Strategy, clk, logger)
	se := search.New(cfg.Search, st, embedding.NewMock(), logger)
	router := retrieval.NewRouter()
	synth := retrieval.NewSynthesizer(0.85, retrieval.SynthesisKeepMostRelevant)
	coord := coordinator.New(cfg.Coordinator, clk, ids, logger)

	eng := engine.New(engine.Components{
		Store:       st,
		Scorer:      sc,
		Conflict:    cf,
		AutoResolve: cfg.Store.AutoResolveConflicts,
		Hierarchy:   hi,
		Strategy:    sm,
		Search:      se,
		Router:      router,
		Synthesizer: synth,
		Coordinator: coord,
		Clock:       clk,
		IdGen:       ids,
		Logger:      logger,
	})

	// Agents are considered healthy as long as their registration is
	// still live; a real deployment would probe the agent's own
	// endpoint instead of this always-healthy stand-in.
	coord.Start(func(ctx context.Context, agentID string) bool { return true })
	defer coord.Stop()

	sched := cron.New()
	rebalanceSpec := fmt.Sprintf("@every %dh", cfg.Hierarchy.RebalanceIntervalHours)
	if _, err := sched.AddFunc(rebalanceSpec, func() {
		splits, merges := eng.Rebalance()
		logger.Info("hierarchy rebalance complete", zap.Int("splits", splits), zap.Int("merges", merges))
	}); err != nil {
		logger.Warn("failed to schedule hierarchy rebalance", zap.Error(err))
	}
	if _, err := sched.AddFunc("@every 5m", func() {
		if t := eng.MaybeAdapt(); t != nil {
			logger.Info("strategy transition", zap.String("from", t.From.String()), zap.String("to", t.To.String()))
		}
	}); err != nil {
		logger.Warn("failed to schedule strategy adaptation", zap.Error(err))
	}
	sched.Start()
	defer sched.Stop()

	r := api.NewRouter(eng, logger, cfg.RateLimitRPS, cfg.RateLimitBurst)
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.ServerPort),
		Handler: r,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("server starting", zap.Int("port", cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}
