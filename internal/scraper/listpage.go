package scraper

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/labelwatch/cola-sync/internal/cola"
)

// The results table is only identifiable by its fixed width attribute; the
// markup carries no ids or classes.
const resultsTableSelector = `table[width="785"]`

// listColumns is the expected column count of a result row:
// TTB ID, Permit No, Serial Number, Completed Date, Fanciful Name,
// Brand Name, Origin Code, Origin Desc, Class/Type Code, Class/Type Desc.
const listColumns = 10

var rangePattern = regexp.MustCompile(`(\d+)\s+to\s+(\d+)\s+of\s+(\d+)`)

// parseListRows extracts items from a list page. Rows missing the identifier
// link or the expected column count are skipped, not fatal.
func parseListRows(doc *goquery.Document, base *url.URL) []cola.Item {
	var items []cola.Item

	doc.Find(resultsTableSelector).Each(func(_ int, table *goquery.Selection) {
		table.Find("tr").Each(func(i int, row *goquery.Selection) {
			if i == 0 {
				// Header row.
				return
			}
			cells := row.Find("td")
			if cells.Length() < listColumns {
				return
			}

			link := cells.Eq(0).Find("a").First()
			ttbID := strings.TrimSpace(link.Text())
			if ttbID == "" {
				return
			}

			items = append(items, cola.Item{
				TTBID:         ttbID,
				PermitNo:      cellText(cells, 1),
				SerialNumber:  cellText(cells, 2),
				CompletedDate: cellText(cells, 3),
				FancifulName:  cellText(cells, 4),
				BrandName:     cellText(cells, 5),
				OriginCode:    cellText(cells, 6),
				OriginDesc:    cellText(cells, 7),
				ClassType:     cellText(cells, 8),
				ClassTypeDesc: cellText(cells, 9),
				URL:           rowURL(link, base, ttbID),
			})
		})
	})

	return items
}

func cellText(cells *goquery.Selection, i int) string {
	return strings.TrimSpace(cells.Eq(i).Text())
}

// rowURL resolves the row's detail link against the site base, falling back
// to the canonical detail URL when the anchor has no href.
func rowURL(link *goquery.Selection, base *url.URL, ttbID string) string {
	href, ok := link.Attr("href")
	if ok && href != "" {
		if ref, err := url.Parse(href); err == nil {
			return base.ResolveReference(ref).String()
		}
	}
	detail := *base
	detail.Path = "/colasonline/viewColaDetails.do"
	detail.RawQuery = url.Values{
		"action": {"publicDisplaySearchAdvanced"},
		"ttbid":  {ttbID},
	}.Encode()
	return detail.String()
}

// hasNextPage inspects the pagination block. The "X to Y of Z" range is
// authoritative; a live Next link is accepted as a fallback when the range
// is absent.
func hasNextPage(doc *goquery.Document) bool {
	next := false
	doc.Find("div.pagination").EachWithBreak(func(_ int, div *goquery.Selection) bool {
		if m := rangePattern.FindStringSubmatch(div.Text()); m != nil {
			end, err1 := strconv.Atoi(m[2])
			total, err2 := strconv.Atoi(m[3])
			if err1 == nil && err2 == nil {
				next = end < total
				return false
			}
		}
		found := false
		div.Find("a").EachWithBreak(func(_ int, a *goquery.Selection) bool {
			if !strings.Contains(strings.ToLower(a.Text()), "next") {
				return true
			}
			href, ok := a.Attr("href")
			if ok && href != "" && href != "#" {
				found = true
				return false
			}
			return true
		})
		if found {
			next = true
			return false
		}
		return true
	})
	return next
}
