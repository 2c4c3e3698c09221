// Package archive persists sync artifacts: the post-sync JSON snapshot of
// all scraped items and fetched label PDFs.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/labelwatch/cola-sync/internal/cola"
)

// BlobStore is the write-side of a blob backend.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// Archiver names and serializes artifacts before handing them to a
// BlobStore.
type Archiver struct {
	store  BlobStore
	logger *zap.Logger
	now    func() time.Time
}

// New builds an Archiver over the given store.
func New(store BlobStore, logger *zap.Logger) (*Archiver, error) {
	if store == nil {
		return nil, fmt.Errorf("blob store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Archiver{store: store, logger: logger, now: time.Now}, nil
}

// SaveSnapshot writes the full item list as a timestamped JSON array and
// returns the artifact URI.
func (a *Archiver) SaveSnapshot(ctx context.Context, items []cola.Item) (string, error) {
	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal snapshot: %w", err)
	}
	path := fmt.Sprintf("snapshots/items-%s.json", a.now().UTC().Format("20060102-150405"))
	uri, err := a.store.PutObject(ctx, path, "application/json", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("store snapshot: %w", err)
	}
	a.logger.Info("snapshot archived", zap.String("uri", uri), zap.Int("items", len(items)))
	return uri, nil
}

// SaveDocument writes one fetched label PDF and returns the artifact URI.
func (a *Archiver) SaveDocument(ctx context.Context, ttbID string, pdf []byte) (string, error) {
	if ttbID == "" {
		return "", fmt.Errorf("ttb id is required")
	}
	path := fmt.Sprintf("documents/%s.pdf", ttbID)
	uri, err := a.store.PutObject(ctx, path, "application/pdf", bytes.NewReader(pdf))
	if err != nil {
		return "", fmt.Errorf("store document %s: %w", ttbID, err)
	}
	a.logger.Info("document archived", zap.String("uri", uri), zap.String("ttb_id", ttbID))
	return uri, nil
}
