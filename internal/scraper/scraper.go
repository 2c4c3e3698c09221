// Package scraper implements the paginated source client for the public
// label-approval database using the Colly library.
package scraper

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/labelwatch/cola-sync/internal/cola"
	"github.com/labelwatch/cola-sync/internal/metrics"
)

// Config controls scraper behavior.
type Config struct {
	ProductName   string
	VendorCode    string
	SearchURL     string
	PaginationURL string
	UserAgent     string
	Delay         time.Duration
	Timeout       time.Duration
	DetailPages   bool
	LookbackYears int
}

// Scraper retrieves the full item snapshot from the source site. It owns a
// persistent cookie session: the initial search POST establishes server-side
// paging state and every subsequent "next set" GET depends on it, so a single
// collector is reused for the whole run. Single-writer; not safe for
// concurrent use.
type Scraper struct {
	cfg       Config
	logger    *zap.Logger
	collector *colly.Collector
	limiter   *rate.Limiter
	baseURL   *url.URL
	now       func() time.Time

	lastBody   []byte
	lastStatus int
}

// New builds a Scraper. It fails fast on malformed URLs so misconfiguration
// surfaces before any network activity.
func New(cfg Config, logger *zap.Logger) (*Scraper, error) {
	if cfg.ProductName == "" {
		return nil, fmt.Errorf("product name is required")
	}
	if cfg.SearchURL == "" || cfg.PaginationURL == "" {
		return nil, fmt.Errorf("search and pagination URLs are required")
	}
	base, err := url.Parse(cfg.SearchURL)
	if err != nil {
		return nil, fmt.Errorf("parse search url: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.LookbackYears <= 0 {
		cfg.LookbackYears = 15
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var limiter *rate.Limiter
	if cfg.Delay > 0 {
		limiter = rate.NewLimiter(rate.Every(cfg.Delay), 1)
	}

	s := &Scraper{
		cfg:     cfg,
		logger:  logger,
		limiter: limiter,
		baseURL: base,
		now:     time.Now,
	}
	s.collector = s.initCollector()
	return s, nil
}

func (s *Scraper) initCollector() *colly.Collector {
	c := colly.NewCollector(colly.UserAgent(s.cfg.UserAgent))
	// The pagination endpoint is one URL serving successive result sets from
	// session state, so revisits must be allowed.
	c.AllowURLRevisit = true
	// The search flow is form-driven; robots.txt does not gate it.
	c.IgnoreRobotsTxt = true
	c.SetRequestTimeout(s.cfg.Timeout)

	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
		r.Headers.Set("Accept-Language", "en-US,en;q=0.9")
		r.Headers.Set("Origin", s.baseURL.Scheme+"://"+s.baseURL.Host)
		r.Headers.Set("Referer", s.cfg.SearchURL)
	})
	c.OnResponse(func(r *colly.Response) {
		s.lastStatus = r.StatusCode
		s.lastBody = append([]byte(nil), r.Body...)
	})
	c.OnError(func(r *colly.Response, _ error) {
		if r != nil {
			s.lastStatus = r.StatusCode
		}
	})
	return c
}

// Scrape paginates through the search results and returns every distinct
// item collected. Transient failures end pagination early and the partial
// result is returned; only context cancellation produces an error.
func (s *Scraper) Scrape(ctx context.Context) ([]cola.Item, error) {
	var all []cola.Item
	seen := make(cola.IDSet)
	page := 1

	s.logger.Info("starting scrape", zap.String("product", s.cfg.ProductName))

	for {
		if err := s.wait(ctx); err != nil {
			return all, err
		}

		body, err := s.fetchListPage(page)
		if err != nil {
			s.logger.Warn("list page fetch failed, ending pagination",
				zap.Int("page", page),
				zap.Int("status_code", s.lastStatus),
				zap.Error(err),
			)
			break
		}

		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
		if err != nil {
			s.logger.Warn("list page parse failed, ending pagination", zap.Int("page", page), zap.Error(err))
			break
		}

		metrics.ObserveScrapePage()
		rows := parseListRows(doc, s.baseURL)
		if len(rows) == 0 {
			s.logger.Info("no results on page, ending pagination", zap.Int("page", page))
			break
		}

		dups := 0
		for _, item := range rows {
			if seen.Contains(item.TTBID) {
				dups++
				continue
			}
			seen[item.TTBID] = struct{}{}
			all = append(all, item)
		}
		s.logger.Info("collected page",
			zap.Int("page", page),
			zap.Int("rows", len(rows)),
			zap.Int("new", len(rows)-dups),
			zap.Int("duplicates", dups),
		)

		// A page made entirely of already-seen rows means the site's paging
		// state has looped back to the start.
		if dups == len(rows) {
			s.logger.Warn("all rows duplicated, stopping pagination", zap.Int("page", page))
			break
		}
		if !hasNextPage(doc) {
			s.logger.Info("reached last page", zap.Int("page", page))
			break
		}
		page++
	}

	if s.cfg.DetailPages {
		s.enrichAll(ctx, all)
	}

	s.logger.Info("scrape finished", zap.Int("total", len(all)))
	return all, nil
}

func (s *Scraper) fetchListPage(page int) ([]byte, error) {
	s.lastBody = nil
	s.lastStatus = 0

	var err error
	if page == 1 {
		err = s.collector.Post(s.cfg.SearchURL, s.searchForm())
	} else {
		err = s.collector.Visit(s.cfg.PaginationURL + "?action=page&pgfcn=nextset")
	}
	if err != nil {
		return nil, fmt.Errorf("fetch page %d: %w", page, err)
	}
	return s.lastBody, nil
}

func (s *Scraper) searchForm() map[string]string {
	to := s.now()
	from := to.AddDate(-s.cfg.LookbackYears, 0, 1)
	return map[string]string{
		"searchCriteria.dateCompletedFrom":      from.Format("01/02/2006"),
		"searchCriteria.dateCompletedTo":        to.Format("01/02/2006"),
		"searchCriteria.productOrFancifulName":  s.cfg.ProductName,
		"searchCriteria.productNameSearchType":  "B",
		"searchCriteria.classTypeDesired":       "desc",
		"searchCriteria.classTypeCode":          "",
		"searchCriteria.ttbIdFrom":              "",
		"searchCriteria.ttbIdTo":                "",
		"searchCriteria.serialNumFrom":          "",
		"searchCriteria.serialNumTo":            "",
		"searchCriteria.permitId":               "",
		"searchCriteria.vendorCode":             s.cfg.VendorCode,
		"action":                                "search",
	}
}

// enrichAll fetches each item's detail page in place. Failures leave the
// list-page fields untouched.
func (s *Scraper) enrichAll(ctx context.Context, items []cola.Item) {
	for i := range items {
		if err := s.wait(ctx); err != nil {
			s.logger.Warn("detail enrichment canceled", zap.Error(err))
			return
		}
		if err := s.enrichItem(&items[i]); err != nil {
			s.logger.Warn("detail fetch failed, keeping list fields",
				zap.String("ttb_id", items[i].TTBID),
				zap.Error(err),
			)
		}
	}
}

func (s *Scraper) enrichItem(item *cola.Item) error {
	s.lastBody = nil
	s.lastStatus = 0
	if err := s.collector.Visit(item.URL); err != nil {
		return fmt.Errorf("fetch detail page: %w", err)
	}
	fields := ExtractDetailFields(bytes.NewReader(s.lastBody))
	applyDetailFields(item, fields)
	return nil
}

func (s *Scraper) wait(ctx context.Context) error {
	if s.limiter == nil {
		return ctx.Err()
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("request delay: %w", err)
	}
	return nil
}
