package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/labelwatch/cola-sync/internal/cola"
)

func TestCreateAndList(t *testing.T) {
	ctx := context.Background()
	s := New()

	n, err := s.CreateItems(ctx, []cola.Item{
		{TTBID: "25079001000101", BrandName: "OLD TOWN"},
		{TTBID: "05079001000042", BrandName: "NORTH COAST"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	ids, err := s.GetExistingIDs(ctx)
	require.NoError(t, err)
	assert.True(t, ids.Contains("05079001000042"))
	assert.False(t, ids.Contains("5079001000042"), "identifiers keep their leading zeros")
}

func TestUpdateItemDetectsChanges(t *testing.T) {
	ctx := context.Background()
	s := New()
	s.Seed(cola.Item{TTBID: "25079001000101", BrandName: "OLD TOWN", CompletedDate: "2025-03-12"})

	// Same content with the date in source format is not a change.
	changed, err := s.UpdateItem(ctx, cola.Item{TTBID: "25079001000101", BrandName: "OLD TOWN", CompletedDate: "03/12/2025"})
	require.NoError(t, err)
	assert.False(t, changed)

	changed, err = s.UpdateItem(ctx, cola.Item{TTBID: "25079001000101", BrandName: "OLD TOWN RESERVE", CompletedDate: "03/12/2025"})
	require.NoError(t, err)
	assert.True(t, changed)

	item, ok := s.Item("25079001000101")
	require.True(t, ok)
	assert.Equal(t, "OLD TOWN RESERVE", item.BrandName)
	assert.Equal(t, "2025-03-12", item.CompletedDate, "dates are stored normalized")
}

func TestUpdateUnknownItem(t *testing.T) {
	s := New()
	changed, err := s.UpdateItem(context.Background(), cola.Item{TTBID: "25079001000999"})
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Zero(t, s.Len())
}

func TestMarkAsDeprecated(t *testing.T) {
	ctx := context.Background()
	s := New()
	s.Seed(cola.Item{TTBID: "25079001000101"}, cola.Item{TTBID: "25079001000102"})

	n, err := s.MarkAsDeprecated(ctx, []string{"25079001000101", "25079001000404"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.True(t, s.Deprecated("25079001000101"))
	assert.False(t, s.Deprecated("25079001000102"))

	// A subsequent update clears the flag.
	changed, err := s.UpdateItem(ctx, cola.Item{TTBID: "25079001000101", BrandName: "BACK"})
	require.NoError(t, err)
	assert.True(t, changed)
	assert.False(t, s.Deprecated("25079001000101"))
}

func TestDeleteAll(t *testing.T) {
	ctx := context.Background()
	s := New()
	s.Seed(cola.Item{TTBID: "25079001000101"}, cola.Item{TTBID: "25079001000102"})

	n, err := s.DeleteAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Zero(t, s.Len())
}

func TestOperationOrderIsRecorded(t *testing.T) {
	ctx := context.Background()
	s := New()

	_, err := s.GetExistingIDs(ctx)
	require.NoError(t, err)
	_, err = s.DeleteAll(ctx)
	require.NoError(t, err)
	_, err = s.CreateItems(ctx, []cola.Item{{TTBID: "25079001000101"}})
	require.NoError(t, err)

	assert.Equal(t, []string{"get_existing_ids", "delete_all", "create_items"}, s.Operations())
}

func TestContextCancellation(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.GetExistingIDs(ctx)
	require.ErrorIs(t, err, context.Canceled)
}
