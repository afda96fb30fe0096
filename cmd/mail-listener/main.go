package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"orderdesk/internal/config"
	"orderdesk/internal/listener"
	"orderdesk/internal/metrics"
	"orderdesk/internal/pipeline"
	"orderdesk/internal/storage"
)

func main() {
	cfg, err := config.Load()
	must(err)

	db, err := storage.Open(cfg.DBPath)
	must(err)
	defer db.Close()

	p, err := pipeline.NewParser(cfg)
	must(err)
	intake := pipeline.NewIntakeService(db, cfg, p, metrics.NewRegistry())

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	svc := listener.NewService(db, cfg, intake, logger)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	must(svc.Run(ctx))
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
