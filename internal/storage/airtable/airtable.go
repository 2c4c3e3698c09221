// Package airtable implements the storage target against the Airtable REST
// API.
package airtable

import (
	"context"
	"fmt"

	airtableapi "github.com/mehanizm/airtable"
	"go.uber.org/zap"

	"github.com/labelwatch/cola-sync/internal/cola"
)

// batchLimit is the Airtable API ceiling for create and delete calls.
const batchLimit = 10

// recordsAPI is the slice of the Airtable client the adapter needs. A narrow
// interface keeps the adapter testable without network access.
type recordsAPI interface {
	List(ctx context.Context, offset, filterFormula string, fields []string) (*airtableapi.Records, error)
	Add(ctx context.Context, records []*airtableapi.Record) (int, error)
	UpdatePartial(ctx context.Context, recordID string, fields map[string]any) error
	Delete(ctx context.Context, recordIDs []string) (int, error)
}

// Config controls the Airtable adapter.
type Config struct {
	APIKey string
	BaseID string
	Table  string
}

// Adapter implements cola.StorageTarget on an Airtable table. When a
// document fetcher is attached, create and update also pull the label PDF
// and upload it to the record's attachment column; fetch failures degrade to
// a record without a document.
type Adapter struct {
	cfg     Config
	api     recordsAPI
	fetcher cola.DocumentFetcher
	uploads *attachmentUploader
	logger  *zap.Logger
}

// Option customizes an Adapter.
type Option func(*Adapter)

// WithDocumentFetcher enables document attachment during create and update.
func WithDocumentFetcher(f cola.DocumentFetcher) Option {
	return func(a *Adapter) { a.fetcher = f }
}

// New builds an Adapter for the configured base and table.
func New(cfg Config, logger *zap.Logger, opts ...Option) (*Adapter, error) {
	if cfg.APIKey == "" || cfg.BaseID == "" {
		return nil, fmt.Errorf("airtable api key and base id are required")
	}
	if cfg.Table == "" {
		cfg.Table = "TTB COLAs"
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client := airtableapi.NewClient(cfg.APIKey)
	a := &Adapter{
		cfg:     cfg,
		api:     &tableClient{table: client.GetTable(cfg.BaseID, cfg.Table)},
		uploads: newAttachmentUploader(cfg.APIKey, cfg.BaseID),
		logger:  logger,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// GetExistingIDs pages through the table and returns every stored TTB ID,
// deprecated records included.
func (a *Adapter) GetExistingIDs(ctx context.Context) (cola.IDSet, error) {
	ids := make(cola.IDSet)
	offset := ""
	for {
		page, err := a.api.List(ctx, offset, "", []string{fieldTTBID})
		if err != nil {
			return nil, fmt.Errorf("list existing records: %w", err)
		}
		for _, rec := range page.Records {
			if id, ok := rec.Fields[fieldTTBID].(string); ok && id != "" {
				ids[id] = struct{}{}
			}
		}
		if page.Offset == "" {
			break
		}
		offset = page.Offset
	}
	a.logger.Info("fetched existing record ids", zap.Int("count", len(ids)))
	return ids, nil
}

// CreateItems inserts items in API-sized batches and returns the number
// created. A failed batch aborts with the count so far.
func (a *Adapter) CreateItems(ctx context.Context, items []cola.Item) (int, error) {
	created := 0
	for start := 0; start < len(items); start += batchLimit {
		end := start + batchLimit
		if end > len(items) {
			end = len(items)
		}
		batch := make([]*airtableapi.Record, 0, end-start)
		for _, item := range items[start:end] {
			batch = append(batch, &airtableapi.Record{Fields: itemFields(item)})
		}
		n, err := a.api.Add(ctx, batch)
		if err != nil {
			return created, fmt.Errorf("create batch at %d: %w", start, err)
		}
		created += n
	}
	a.logger.Info("created records", zap.Int("count", created))

	if a.fetcher != nil {
		for _, item := range items {
			a.attachDocument(ctx, item.TTBID)
		}
	}
	return created, nil
}

// UpdateItem rewrites a stored record when the incoming item differs on any
// synced column. It returns false without error when the record is missing
// or already up to date.
func (a *Adapter) UpdateItem(ctx context.Context, item cola.Item) (bool, error) {
	rec, err := a.findByID(ctx, item.TTBID)
	if err != nil {
		return false, err
	}
	if rec == nil {
		a.logger.Warn("record not found for update", zap.String("ttb_id", item.TTBID))
		return false, nil
	}
	if !fieldsChanged(rec.Fields, item) && !isDeprecated(rec.Fields) {
		return false, nil
	}
	if err := a.api.UpdatePartial(ctx, rec.ID, itemFields(item)); err != nil {
		return false, fmt.Errorf("update record %s: %w", item.TTBID, err)
	}
	if a.fetcher != nil && !recordHasDocument(rec.Fields) {
		a.attachDocument(ctx, item.TTBID)
	}
	return true, nil
}

// MarkAsDeprecated flags the given identifiers. Records that no longer exist
// are skipped.
func (a *Adapter) MarkAsDeprecated(ctx context.Context, ttbIDs []string) (int, error) {
	if len(ttbIDs) == 0 {
		return 0, nil
	}
	index, err := a.recordIndex(ctx)
	if err != nil {
		return 0, err
	}
	marked := 0
	for _, id := range ttbIDs {
		recID, ok := index[id]
		if !ok {
			a.logger.Warn("record not found for deprecation", zap.String("ttb_id", id))
			continue
		}
		if err := a.api.UpdatePartial(ctx, recID, map[string]any{fieldDeprecated: true}); err != nil {
			return marked, fmt.Errorf("deprecate record %s: %w", id, err)
		}
		marked++
	}
	a.logger.Info("marked records deprecated", zap.Int("count", marked))
	return marked, nil
}

// DeleteAll removes every record from the table in API-sized batches.
func (a *Adapter) DeleteAll(ctx context.Context) (int, error) {
	var recordIDs []string
	offset := ""
	for {
		page, err := a.api.List(ctx, offset, "", []string{fieldTTBID})
		if err != nil {
			return 0, fmt.Errorf("list records for delete: %w", err)
		}
		for _, rec := range page.Records {
			recordIDs = append(recordIDs, rec.ID)
		}
		if page.Offset == "" {
			break
		}
		offset = page.Offset
	}

	deleted := 0
	for start := 0; start < len(recordIDs); start += batchLimit {
		end := start + batchLimit
		if end > len(recordIDs) {
			end = len(recordIDs)
		}
		n, err := a.api.Delete(ctx, recordIDs[start:end])
		if err != nil {
			return deleted, fmt.Errorf("delete batch at %d: %w", start, err)
		}
		deleted += n
	}
	a.logger.Info("deleted all records", zap.Int("count", deleted))
	return deleted, nil
}

func (a *Adapter) findByID(ctx context.Context, ttbID string) (*airtableapi.Record, error) {
	page, err := a.api.List(ctx, "", idFilterFormula(ttbID), nil)
	if err != nil {
		return nil, fmt.Errorf("find record %s: %w", ttbID, err)
	}
	if len(page.Records) == 0 {
		return nil, nil
	}
	return page.Records[0], nil
}

func (a *Adapter) recordIndex(ctx context.Context) (map[string]string, error) {
	index := make(map[string]string)
	offset := ""
	for {
		page, err := a.api.List(ctx, offset, "", []string{fieldTTBID})
		if err != nil {
			return nil, fmt.Errorf("build record index: %w", err)
		}
		for _, rec := range page.Records {
			if id, ok := rec.Fields[fieldTTBID].(string); ok && id != "" {
				index[id] = rec.ID
			}
		}
		if page.Offset == "" {
			break
		}
		offset = page.Offset
	}
	return index, nil
}

// attachDocument fetches the label PDF and uploads it to the record. Every
// failure is logged and swallowed: a record without its document is still a
// synced record.
func (a *Adapter) attachDocument(ctx context.Context, ttbID string) {
	pdf, err := a.fetcher.FetchDocument(ctx, ttbID)
	if err != nil {
		a.logger.Warn("document fetch failed", zap.String("ttb_id", ttbID), zap.Error(err))
		return
	}
	rec, err := a.findByID(ctx, ttbID)
	if err != nil || rec == nil {
		a.logger.Warn("record lookup for attachment failed", zap.String("ttb_id", ttbID), zap.Error(err))
		return
	}
	if err := a.uploads.Upload(ctx, rec.ID, fieldDocument, ttbID+".pdf", pdf); err != nil {
		a.logger.Warn("document upload failed", zap.String("ttb_id", ttbID), zap.Error(err))
		return
	}
	a.logger.Info("document attached", zap.String("ttb_id", ttbID), zap.Int("pdf_bytes", len(pdf)))
}

func recordHasDocument(fields map[string]any) bool {
	v, ok := fields[fieldDocument].([]any)
	return ok && len(v) > 0
}

// tableClient adapts the Airtable library to recordsAPI. The library's
// operations are not context-aware; the context is checked up front and the
// underlying HTTP client enforces its own timeout.
type tableClient struct {
	table *airtableapi.Table
}

func (c *tableClient) List(ctx context.Context, offset, filterFormula string, fields []string) (*airtableapi.Records, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cfg := c.table.GetRecords()
	if offset != "" {
		cfg = cfg.WithOffset(offset)
	}
	if filterFormula != "" {
		cfg = cfg.WithFilterFormula(filterFormula)
	}
	if len(fields) > 0 {
		cfg = cfg.ReturnFields(fields...)
	}
	return cfg.Do()
}

func (c *tableClient) Add(ctx context.Context, records []*airtableapi.Record) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	res, err := c.table.AddRecords(&airtableapi.Records{Records: records})
	if err != nil {
		return 0, err
	}
	return len(res.Records), nil
}

func (c *tableClient) UpdatePartial(ctx context.Context, recordID string, fields map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := c.table.UpdateRecords(&airtableapi.Records{
		Records: []*airtableapi.Record{{ID: recordID, Fields: fields}},
	})
	return err
}

func (c *tableClient) Delete(ctx context.Context, recordIDs []string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	res, err := c.table.DeleteRecords(recordIDs)
	if err != nil {
		return 0, err
	}
	return len(res.Records), nil
}
