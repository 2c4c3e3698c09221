package syncer

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/labelwatch/cola-sync/internal/cola"
)

// replace wipes the store and recreates it from a fresh scrape. Destructive
// and irreversible; the caller confirms before this strategy is ever
// constructed.
type replace struct {
	source cola.DataSource
	target cola.StorageTarget
	logger *zap.Logger
}

func (s *replace) Name() string { return StrategyReplace }

func (s *replace) Sync(ctx context.Context) (cola.SyncStats, error) {
	var stats cola.SyncStats

	s.logger.Warn("replace sync deleting all existing records")
	deleted, err := s.target.DeleteAll(ctx)
	stats.Deleted = deleted
	if err != nil {
		return stats, fmt.Errorf("delete all: %w", err)
	}
	s.logger.Info("existing records deleted", zap.Int("count", deleted))

	items, err := s.source.Scrape(ctx)
	if err != nil {
		return stats, fmt.Errorf("scrape source: %w", err)
	}
	stats.Total = len(items)
	if len(items) == 0 {
		s.logger.Warn("source returned no items, store left empty")
		return stats, nil
	}

	created, err := s.target.CreateItems(ctx, items)
	stats.Created = created
	if err != nil {
		return stats, fmt.Errorf("create items: %w", err)
	}

	s.logger.Info("replace sync finished",
		zap.Int("deleted", stats.Deleted),
		zap.Int("created", stats.Created),
	)
	return stats, nil
}
