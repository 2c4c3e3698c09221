package cola

import (
	"context"
	"errors"
	"time"
)

// ErrDocumentUnavailable is returned by a DocumentFetcher when the document
// page could not be reached within the retry budget. Callers treat it as
// "no result" and continue with the remaining identifiers.
var ErrDocumentUnavailable = errors.New("document unavailable")

// DataSource produces a full snapshot of items from the authoritative source.
type DataSource interface {
	Scrape(ctx context.Context) ([]Item, error)
}

// StorageTarget abstracts the destination store consumed by the sync engine.
// Implementations batch mutations internally; callers never see batch limits.
type StorageTarget interface {
	GetExistingIDs(ctx context.Context) (IDSet, error)
	CreateItems(ctx context.Context, items []Item) (int, error)
	UpdateItem(ctx context.Context, item Item) (bool, error)
	MarkAsDeprecated(ctx context.Context, ttbIDs []string) (int, error)
	DeleteAll(ctx context.Context) (int, error)
}

// DocumentFetcher retrieves the official label certificate for one TTB ID as
// a rendered PDF byte stream.
type DocumentFetcher interface {
	FetchDocument(ctx context.Context, ttbID string) ([]byte, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}
