package syncer

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/labelwatch/cola-sync/internal/cola"
)

// incremental creates items absent from storage and deprecates stored items
// absent from the fresh snapshot. Items present on both sides are skipped,
// never updated. Cheapest policy; intended for routine runs.
type incremental struct {
	source cola.DataSource
	target cola.StorageTarget
	logger *zap.Logger
}

func (s *incremental) Name() string { return StrategyIncremental }

func (s *incremental) Sync(ctx context.Context) (cola.SyncStats, error) {
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

	scraped := make(cola.IDSet, len(items))
	var newItems []cola.Item
	for _, item := range items {
		scraped[item.TTBID] = struct{}{}
		if !existing.Contains(item.TTBID) {
			newItems = append(newItems, item)
		}
	}
	stats.Skipped = len(items) - len(newItems)

	s.logger.Info("incremental diff computed",
		zap.Int("scraped", len(items)),
		zap.Int("existing", len(existing)),
		zap.Int("new", len(newItems)),
		zap.Int("skipped", stats.Skipped),
	)

	if len(newItems) > 0 {
		created, err := s.target.CreateItems(ctx, newItems)
		stats.Created = created
		if err != nil {
			return stats, fmt.Errorf("create items: %w", err)
		}
	}

	var vanished []string
	for id := range existing {
		if !scraped.Contains(id) {
			vanished = append(vanished, id)
		}
	}
	if len(vanished) > 0 {
		deprecated, err := s.target.MarkAsDeprecated(ctx, vanished)
		stats.Deprecated = deprecated
		if err != nil {
			return stats, fmt.Errorf("mark deprecated: %w", err)
		}
	}

	s.logger.Info("incremental sync finished",
		zap.Int("total", stats.Total),
		zap.Int("created", stats.Created),
		zap.Int("skipped", stats.Skipped),
		zap.Int("deprecated", stats.Deprecated),
	)
	return stats, nil
}
