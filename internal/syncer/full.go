package syncer

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/labelwatch/cola-sync/internal/cola"
)

// full creates missing items and pushes an update for every item that
// already exists. The storage target's own change detection decides whether
// each update actually writes anything. No deprecation pass.
type full struct {
	source cola.DataSource
	target cola.StorageTarget
	logger *zap.Logger
}

func (s *full) Name() string { return StrategyFull }

func (s *full) Sync(ctx context.Context) (cola.SyncStats, error) {
	var stats cola.SyncStats

	items, err := s.source.Scrape(ctx)
	if err != nil {
		return stats, fmt.Errorf("scrape source: %w", err)
	}
	stats.Total = len(items)
	if len(items) == 0 {
		s.logger.Warn("nothing to sync, source returned no items")
		return stats, nil
	}

	existing, err := s.target.GetExistingIDs(ctx)
	if err != nil {
		return stats, fmt.Errorf("read existing ids: %w", err)
	}

	var newItems, existingItems []cola.Item
	for _, item := range items {
		if existing.Contains(item.TTBID) {
			existingItems = append(existingItems, item)
		} else {
			newItems = append(newItems, item)
		}
	}
	s.logger.Info("full diff computed",
		zap.Int("scraped", len(items)),
		zap.Int("new", len(newItems)),
		zap.Int("to_update", len(existingItems)),
	)

	if len(newItems) > 0 {
		created, err := s.target.CreateItems(ctx, newItems)
		stats.Created = created
		if err != nil {
			return stats, fmt.Errorf("create items: %w", err)
		}
	}

	for _, item := range existingItems {
		changed, err := s.target.UpdateItem(ctx, item)
		if err != nil {
			return stats, fmt.Errorf("update item %s: %w", item.TTBID, err)
		}
		if changed {
			stats.Updated++
		} else {
			stats.Skipped++
		}
	}

	s.logger.Info("full sync finished",
		zap.Int("total", stats.Total),
		zap.Int("created", stats.Created),
		zap.Int("updated", stats.Updated),
		zap.Int("skipped", stats.Skipped),
	)
	return stats, nil
}
