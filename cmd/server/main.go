// Package main is the entry point for the foliorank simulation service.
// It exposes the gated portfolio design, simulation, and comparison
// pipeline over HTTP and runs the periodic audit chain sweep.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/foliorank/foliorank/internal/config"
	"github.com/foliorank/foliorank/internal/di"
	"github.com/foliorank/foliorank/internal/scheduler"
	"github.com/foliorank/foliorank/internal/server"
	"github.com/foliorank/foliorank/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	logger.SetGlobalLogger(log)

	log.Info().Msg("Starting foliorank")

	container, err := di.Wire(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire dependencies")
	}
	defer container.Close()

	// Verify the persisted chain before accepting any new entries.
	if err := container.AuditLedger.VerifyChain(); err != nil {
		log.Fatal().Err(err).Msg("Audit chain verification failed at startup")
	}

	sched := scheduler.New(log)
	if err := sched.AddJob(cfg.VerifyInterval, scheduler.NewVerifyLedgerJob(container.AuditLedger, log)); err != nil {
		log.Fatal().Err(err).Msg("Failed to register ledger sweep")
	}
	sched.Start()

	srv := server.New(server.Config{
		Log:       log,
		Config:    cfg,
		Container: container,
		Port:      cfg.Port,
		DevMode:   cfg.DevMode,
	})

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down...")

	sched.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}
