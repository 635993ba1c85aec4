package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/partydeck/hangout-backend/internal/cards"
	"github.com/partydeck/hangout-backend/internal/config"
	"github.com/partydeck/hangout-backend/internal/game"
	"github.com/partydeck/hangout-backend/internal/httpapi"
	"github.com/partydeck/hangout-backend/internal/hub"
	"github.com/partydeck/hangout-backend/internal/states"
	"github.com/partydeck/hangout-backend/internal/store"
)

func main() {
	log, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("load config", zap.Error(err))
	}

	gameCfg := game.Config{
		HandSize:      cfg.HandSize,
		RoundsPerGame: cfg.RoundsPerGame,
		QuestionCount: len(cards.Questions),
		AnswerCount:   len(cards.Answers),
		RoundTimeout:  cfg.RoundTimeout,
	}

	var st store.Store
	if cfg.DatabaseURL != "" {
		pg, err := store.OpenPostgres(cfg.DatabaseURL, log)
		if err != nil {
			log.Fatal("open store", zap.Error(err))
		}
		st = pg
	} else {
		log.Warn("DATABASE_URL not set, using in-memory store")
		st = store.NewMemory()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	h := hub.NewHub(ctx, log)
	machine := states.NewMachine(st, h, gameCfg, log)

	api := &httpapi.API{
		Store:   st,
		Machine: machine,
		Hub:     h,
		Cfg:     gameCfg,
		Log:     log,
	}

	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: api.Routes(),
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return machine.RunSweeper(ctx, cfg.SweepInterval)
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		h.Shutdown()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal("server exited", zap.Error(err))
	}
	log.Info("server stopped")
}
