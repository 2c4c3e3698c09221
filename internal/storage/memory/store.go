// Package memory provides an in-process storage target. It backs local runs
// without credentials and doubles as the reference implementation for the
// storage contract in tests.
package memory

import (
	"context"
	"sync"

	"github.com/labelwatch/cola-sync/internal/cola"
)

// Store keeps items in a map keyed by TTB ID. Safe for concurrent use.
type Store struct {
	mu         sync.Mutex
	items      map[string]cola.Item
	deprecated map[string]bool
	ops        []string
}

// New returns an empty store.
func New() *Store {
	return &Store{
		items:      make(map[string]cola.Item),
		deprecated: make(map[string]bool),
	}
}

// Seed loads items directly, bypassing operation recording.
func (s *Store) Seed(items ...cola.Item) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, item := range items {
		s.items[item.TTBID] = item
	}
}

// GetExistingIDs returns the identifiers currently stored, deprecated ones
// included.
func (s *Store) GetExistingIDs(ctx context.Context) (cola.IDSet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops = append(s.ops, "get_existing_ids")
	ids := make(cola.IDSet, len(s.items))
	for id := range s.items {
		ids[id] = struct{}{}
	}
	return ids, nil
}

// CreateItems stores the given items and returns how many were written.
func (s *Store) CreateItems(ctx context.Context, items []cola.Item) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops = append(s.ops, "create_items")
	for _, item := range items {
		s.items[item.TTBID] = cola.NormalizeItemDates(item)
		delete(s.deprecated, item.TTBID)
	}
	return len(items), nil
}

// UpdateItem overwrites a stored item when its content differs. The bool
// reports whether a write happened; an unknown identifier is not an error,
// it simply changes nothing.
func (s *Store) UpdateItem(ctx context.Context, item cola.Item) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops = append(s.ops, "update_item")
	current, ok := s.items[item.TTBID]
	if !ok {
		return false, nil
	}
	if cola.ItemsEquivalent(current, item) && !s.deprecated[item.TTBID] {
		return false, nil
	}
	s.items[item.TTBID] = cola.NormalizeItemDates(item)
	delete(s.deprecated, item.TTBID)
	return true, nil
}

// MarkAsDeprecated flags the given identifiers. Unknown identifiers are
// skipped.
func (s *Store) MarkAsDeprecated(ctx context.Context, ttbIDs []string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops = append(s.ops, "mark_as_deprecated")
	marked := 0
	for _, id := range ttbIDs {
		if _, ok := s.items[id]; !ok {
			continue
		}
		if !s.deprecated[id] {
			s.deprecated[id] = true
			marked++
		}
	}
	return marked, nil
}

// DeleteAll removes every record and returns how many were removed.
func (s *Store) DeleteAll(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops = append(s.ops, "delete_all")
	n := len(s.items)
	s.items = make(map[string]cola.Item)
	s.deprecated = make(map[string]bool)
	return n, nil
}

// Item returns the stored item for id.
func (s *Store) Item(id string) (cola.Item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[id]
	return item, ok
}

// Deprecated reports whether id is flagged as deprecated.
func (s *Store) Deprecated(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deprecated[id]
}

// Len returns the number of stored items.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Operations returns the order of storage calls made so far.
func (s *Store) Operations() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.ops...)
}
