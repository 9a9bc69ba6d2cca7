package main

import (
	"context"
	"fmt"
	"log/slog"

	"dbvoir/internal/config"
	"dbvoir/internal/logging"
	"dbvoir/internal/processed"
)

// localSession bundles what a one-shot command needs when no daemon is
// running.
type localSession struct {
	cfg    *config.Config
	logger *slog.Logger
	record processed.Record
}

func openLocal(ctx context.Context, cfg *config.Config) (*localSession, error) {
	logger, err := logging.NewFromConfig(cfg, "")
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	record, err := processed.Open(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("open processed record: %w", err)
	}
	return &localSession{cfg: cfg, logger: logger, record: record}, nil
}

func (s *localSession) Close() error {
	return s.record.Close()
}
