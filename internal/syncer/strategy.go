// Package syncer implements the reconciliation engine that drives a scraped
// snapshot into a storage target under one of three policies.
package syncer

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/labelwatch/cola-sync/internal/cola"
)

// Strategy names accepted by New.
const (
	StrategyIncremental = "incremental"
	StrategyFull        = "full"
	StrategyReplace     = "replace"
)

// Strategy runs one reconciliation pass. Implementations never retry
// internally; storage failures abort the pass and the returned stats count
// only verified successes.
type Strategy interface {
	Name() string
	Sync(ctx context.Context) (cola.SyncStats, error)
}

// New selects a strategy by name. The replace strategy is destructive; its
// confirmation gate lives at the caller boundary, not here.
func New(name string, source cola.DataSource, target cola.StorageTarget, logger *zap.Logger) (Strategy, error) {
	if source == nil || target == nil {
		return nil, fmt.Errorf("data source and storage target are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	switch strings.ToLower(name) {
	case StrategyIncremental:
		return &incremental{source: source, target: target, logger: logger}, nil
	case StrategyFull:
		return &full{source: source, target: target, logger: logger}, nil
	case StrategyReplace:
		return &replace{source: source, target: target, logger: logger}, nil
	default:
		return nil, fmt.Errorf("unknown sync strategy %q (valid: %s, %s, %s)",
			name, StrategyIncremental, StrategyFull, StrategyReplace)
	}
}
