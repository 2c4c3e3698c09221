package airtable

import (
	"context"
	"errors"
	"fmt"
	"testing"

	airtableapi "github.com/mehanizm/airtable"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/labelwatch/cola-sync/internal/cola"
)

// fakeAPI holds records in memory and answers the same call shapes the real
// table client does, including paging.
type fakeAPI struct {
	records  []*airtableapi.Record
	pageSize int
	nextID   int

	addErr    error
	updateErr error
	updated   []string
}

func (f *fakeAPI) List(_ context.Context, offset, filterFormula string, _ []string) (*airtableapi.Records, error) {
	matched := f.records
	if filterFormula != "" {
		matched = nil
		for _, rec := range f.records {
			id, _ := rec.Fields[fieldTTBID].(string)
			if filterFormula == idFilterFormula(id) {
				matched = append(matched, rec)
			}
		}
	}

	start := 0
	if offset != "" {
		fmt.Sscanf(offset, "page-%d", &start)
	}
	size := f.pageSize
	if size <= 0 {
		size = 100
	}
	end := start + size
	next := ""
	if end >= len(matched) {
		end = len(matched)
	} else {
		next = fmt.Sprintf("page-%d", end)
	}
	return &airtableapi.Records{Records: matched[start:end], Offset: next}, nil
}

func (f *fakeAPI) Add(_ context.Context, records []*airtableapi.Record) (int, error) {
	if f.addErr != nil {
		return 0, f.addErr
	}
	for _, rec := range records {
		f.nextID++
		rec.ID = fmt.Sprintf("rec%03d", f.nextID)
		f.records = append(f.records, rec)
	}
	return len(records), nil
}

func (f *fakeAPI) UpdatePartial(_ context.Context, recordID string, fields map[string]any) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	for _, rec := range f.records {
		if rec.ID == recordID {
			for k, v := range fields {
				rec.Fields[k] = v
			}
			f.updated = append(f.updated, recordID)
			return nil
		}
	}
	return fmt.Errorf("record %s not found", recordID)
}

func (f *fakeAPI) Delete(_ context.Context, recordIDs []string) (int, error) {
	if len(recordIDs) > batchLimit {
		return 0, fmt.Errorf("batch of %d exceeds limit", len(recordIDs))
	}
	remaining := f.records[:0]
	deleted := 0
	for _, rec := range f.records {
		drop := false
		for _, id := range recordIDs {
			if rec.ID == id {
				drop = true
				break
			}
		}
		if drop {
			deleted++
		} else {
			remaining = append(remaining, rec)
		}
	}
	f.records = remaining
	return deleted, nil
}

func (f *fakeAPI) seed(items ...cola.Item) {
	for _, item := range items {
		f.nextID++
		fields := itemFields(item)
		f.records = append(f.records, &airtableapi.Record{
			ID:     fmt.Sprintf("rec%03d", f.nextID),
			Fields: fields,
		})
	}
}

func newTestAdapter(api recordsAPI) *Adapter {
	return &Adapter{
		cfg:    Config{APIKey: "key", BaseID: "base", Table: "TTB COLAs"},
		api:    api,
		logger: zap.NewNop(),
	}
}

func TestGetExistingIDsPaginates(t *testing.T) {
	api := &fakeAPI{pageSize: 2}
	api.seed(
		cola.Item{TTBID: "25079001000101"},
		cola.Item{TTBID: "25079001000102"},
		cola.Item{TTBID: "05079001000042"},
	)
	a := newTestAdapter(api)

	ids, err := a.GetExistingIDs(context.Background())
	require.NoError(t, err)
	assert.Len(t, ids, 3)
	assert.True(t, ids.Contains("05079001000042"))
}

func TestCreateItemsBatches(t *testing.T) {
	api := &fakeAPI{}
	a := newTestAdapter(api)

	items := make([]cola.Item, 23)
	for i := range items {
		items[i] = cola.Item{TTBID: fmt.Sprintf("250790010002%02d", i)}
	}
	n, err := a.CreateItems(context.Background(), items)
	require.NoError(t, err)
	assert.Equal(t, 23, n)
	assert.Len(t, api.records, 23)
}

func TestCreateItemsAbortsWithPartialCount(t *testing.T) {
	api := &fakeAPI{addErr: errors.New("rate limited")}
	a := newTestAdapter(api)

	n, err := a.CreateItems(context.Background(), []cola.Item{{TTBID: "25079001000101"}})
	require.Error(t, err)
	assert.Zero(t, n)
}

func TestUpdateItemSkipsUnchanged(t *testing.T) {
	api := &fakeAPI{}
	api.seed(cola.Item{TTBID: "25079001000101", BrandName: "OLD TOWN", CompletedDate: "03/12/2025"})
	a := newTestAdapter(api)

	// Stored date is ISO, incoming is source format; still no change.
	changed, err := a.UpdateItem(context.Background(), cola.Item{
		TTBID: "25079001000101", BrandName: "OLD TOWN", CompletedDate: "03/12/2025",
	})
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Empty(t, api.updated)
}

func TestUpdateItemWritesChanges(t *testing.T) {
	api := &fakeAPI{}
	api.seed(cola.Item{TTBID: "25079001000101", BrandName: "OLD TOWN"})
	a := newTestAdapter(api)

	changed, err := a.UpdateItem(context.Background(), cola.Item{
		TTBID: "25079001000101", BrandName: "OLD TOWN RESERVE",
	})
	require.NoError(t, err)
	assert.True(t, changed)
	require.Len(t, api.updated, 1)
	assert.Equal(t, "OLD TOWN RESERVE", api.records[0].Fields[fieldBrandName])
}

func TestUpdateItemResurrectsDeprecated(t *testing.T) {
	api := &fakeAPI{}
	api.seed(cola.Item{TTBID: "25079001000101", BrandName: "OLD TOWN"})
	api.records[0].Fields[fieldDeprecated] = true
	a := newTestAdapter(api)

	// Identical content but the record is deprecated; the write clears it.
	changed, err := a.UpdateItem(context.Background(), cola.Item{
		TTBID: "25079001000101", BrandName: "OLD TOWN",
	})
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, false, api.records[0].Fields[fieldDeprecated])
}

func TestUpdateItemMissingRecord(t *testing.T) {
	a := newTestAdapter(&fakeAPI{})

	changed, err := a.UpdateItem(context.Background(), cola.Item{TTBID: "25079001000404"})
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestMarkAsDeprecated(t *testing.T) {
	api := &fakeAPI{}
	api.seed(cola.Item{TTBID: "25079001000101"}, cola.Item{TTBID: "25079001000102"})
	a := newTestAdapter(api)

	n, err := a.MarkAsDeprecated(context.Background(), []string{"25079001000101", "25079001000404"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, true, api.records[0].Fields[fieldDeprecated])
	assert.Equal(t, false, api.records[1].Fields[fieldDeprecated])
}

func TestDeleteAllBatches(t *testing.T) {
	api := &fakeAPI{}
	items := make([]cola.Item, 25)
	for i := range items {
		items[i] = cola.Item{TTBID: fmt.Sprintf("250790010003%02d", i)}
	}
	api.seed(items...)
	a := newTestAdapter(api)

	n, err := a.DeleteAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 25, n)
	assert.Empty(t, api.records)
}

func TestNewValidatesConfig(t *testing.T) {
	_, err := New(Config{}, nil)
	require.Error(t, err)
}
