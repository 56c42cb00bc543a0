package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/punchamoorthee/crashledger/internal/api"
	"github.com/punchamoorthee/crashledger/internal/config"
	"github.com/punchamoorthee/crashledger/internal/identifier"
	"github.com/punchamoorthee/crashledger/internal/logging"
	"github.com/punchamoorthee/crashledger/internal/service"
	"github.com/punchamoorthee/crashledger/internal/store"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.Env)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize Layers
	var (
		st     store.Store
		source identifier.SuffixSource = identifier.NewULIDSource()
	)
	if cfg.DBSource != "" {
		pg, err := store.NewPostgresStore(ctx, cfg.DBSource)
		if err != nil {
			logger.Fatal("unable to connect to database", zap.Error(err))
		}
		defer pg.Close()
		if err := pg.Migrate(ctx); err != nil {
			logger.Fatal("schema migration failed", zap.Error(err))
		}
		st = pg
		if cfg.IdentifierSource == config.IdentifierSequence {
			source = pg
		}
	} else {
		logger.Warn("DB_SOURCE not set, using in-memory store")
		st = store.NewMemoryStore()
	}

	node, err := snowflake.NewNode(cfg.NodeID)
	if err != nil {
		logger.Fatal("invalid snowflake node", zap.Error(err))
	}

	svc := service.New(service.Params{
		Store:  st,
		Issuer: identifier.NewIssuer(source, time.Now, logger),
		GenID:  node,
		Log:    logger,
	})
	handler := api.NewHandler(svc, st, logger)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           api.NewRouter(handler),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("port", cfg.Port), zap.String("identifier_source", cfg.IdentifierSource))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}
