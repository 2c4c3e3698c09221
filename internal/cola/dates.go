package cola

import (
	"strings"
	"time"
)

// sourceDateLayouts lists the locale formats the source site emits. The ISO
// layout is included so already-normalized values pass through unchanged,
// which keeps change detection stable across both sides of a comparison.
var sourceDateLayouts = []string{
	"01/02/2006",
	"2006-01-02",
}

// NormalizeDate converts a source-formatted date string to YYYY-MM-DD.
// A failed parse returns ok=false; callers must store nothing and continue
// rather than abort the record.
func NormalizeDate(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	for _, layout := range sourceDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02"), true
		}
	}
	return "", false
}

// NormalizeItemDates returns a copy of the item with its date fields in ISO
// form. Unparseable values are left untouched.
func NormalizeItemDates(item Item) Item {
	if iso, ok := NormalizeDate(item.CompletedDate); ok {
		item.CompletedDate = iso
	}
	if iso, ok := NormalizeDate(item.ApprovalDate); ok {
		item.ApprovalDate = iso
	}
	return item
}

// ItemsEquivalent reports whether two items carry the same data once dates
// are normalized on both sides. Stored records hold ISO dates while freshly
// scraped ones hold the source format; comparing raw values would flag every
// record as changed on every run.
func ItemsEquivalent(a, b Item) bool {
	return NormalizeItemDates(a) == NormalizeItemDates(b)
}
