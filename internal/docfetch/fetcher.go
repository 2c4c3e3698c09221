package docfetch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/labelwatch/cola-sync/internal/captcha"
	"github.com/labelwatch/cola-sync/internal/cola"
	"github.com/labelwatch/cola-sync/internal/metrics"
)

// Config controls a document fetch.
type Config struct {
	// DocumentURL is the printable-form endpoint; the identifier is appended
	// as the ttbid query parameter.
	DocumentURL    string
	CaptchaRetries int
	SettleDelay    time.Duration
	FetchTimeout   time.Duration
}

// Fetcher implements cola.DocumentFetcher against a browser session. Fetches
// are serialized: the captcha gate is tied to browser state, so concurrent
// tabs would invalidate each other.
type Fetcher struct {
	cfg    Config
	solver captcha.Solver
	logger *zap.Logger

	mu       sync.Mutex
	openPage func(ctx context.Context) (pageDriver, context.CancelFunc, error)
}

// New builds a Fetcher on an established browser session.
func New(session *Session, solver captcha.Solver, cfg Config, logger *zap.Logger) (*Fetcher, error) {
	if session == nil {
		return nil, fmt.Errorf("browser session is required")
	}
	f, err := newWithPageOpener(solver, cfg, logger, func(context.Context) (pageDriver, context.CancelFunc, error) {
		tabCtx, cancel := session.NewTab()
		return &chromeTab{ctx: tabCtx}, cancel, nil
	})
	if err != nil {
		return nil, err
	}
	return f, nil
}

func newWithPageOpener(solver captcha.Solver, cfg Config, logger *zap.Logger,
	open func(ctx context.Context) (pageDriver, context.CancelFunc, error)) (*Fetcher, error) {
	if solver == nil {
		return nil, fmt.Errorf("captcha solver is required")
	}
	if cfg.DocumentURL == "" {
		cfg.DocumentURL = "https://ttbonline.gov/colasonline/viewColaDetails.do?action=publicFormDisplay&ttbid="
	}
	if cfg.CaptchaRetries <= 0 {
		cfg.CaptchaRetries = 3
	}
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = 2 * time.Second
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{cfg: cfg, solver: solver, logger: logger, openPage: open}, nil
}

// FetchDocument navigates to the item's printable form, works through the
// captcha gate if one appears, and returns the rendered PDF. A page that
// stays unrecognizable across repeated checks, or a gate that survives every
// solve attempt, yields cola.ErrDocumentUnavailable.
func (f *Fetcher) FetchDocument(ctx context.Context, ttbID string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, f.cfg.FetchTimeout)
	defer cancel()

	page, closeTab, err := f.openPage(ctx)
	if err != nil {
		return nil, fmt.Errorf("open browser tab: %w", err)
	}
	defer closeTab()

	url := f.cfg.DocumentURL + ttbID
	f.logger.Info("fetching document", zap.String("ttb_id", ttbID))
	if err := page.Navigate(ctx, url); err != nil {
		return nil, err
	}
	if err := f.settle(ctx); err != nil {
		return nil, err
	}

	// Every solve cycle ends with a fresh probe, so an answer submitted on
	// the last cycle still gets its document check. A page that matches
	// neither landmark set is treated as still loading and re-probed after
	// the settle delay.
	solves := 0
	unknown := 0
	for {
		probe, err := page.Probe(ctx)
		if err != nil {
			return nil, err
		}

		if probe.IsDocument {
			pdf, err := page.PrintPDF(ctx)
			if err != nil {
				metrics.ObserveDocumentFetch("print_failed")
				return nil, err
			}
			metrics.ObserveDocumentFetch("success")
			f.logger.Info("document fetched",
				zap.String("ttb_id", ttbID),
				zap.Int("pdf_bytes", len(pdf)),
				zap.Int("captcha_attempts", solves),
			)
			return pdf, nil
		}
		if !probe.HasCaptcha {
			unknown++
			if unknown > f.cfg.CaptchaRetries {
				f.logger.Warn("page is neither document nor captcha gate", zap.String("ttb_id", ttbID))
				metrics.ObserveDocumentFetch("unavailable")
				return nil, fmt.Errorf("%s: %w", ttbID, cola.ErrDocumentUnavailable)
			}
			f.logger.Debug("page not recognized yet, re-checking",
				zap.String("ttb_id", ttbID),
				zap.Int("checks", unknown),
			)
			if err := f.settle(ctx); err != nil {
				return nil, err
			}
			continue
		}
		unknown = 0

		if solves >= f.cfg.CaptchaRetries {
			break
		}
		solves++
		f.logger.Info("captcha gate encountered",
			zap.String("ttb_id", ttbID),
			zap.Int("attempt", solves),
			zap.Int("max_attempts", f.cfg.CaptchaRetries),
		)
		answer, err := f.solver.Solve(ctx, probe.CaptchaImage)
		if err != nil {
			return nil, fmt.Errorf("solve captcha for %s: %w", ttbID, err)
		}
		if err := page.SubmitCaptcha(ctx, answer); err != nil {
			return nil, err
		}
		if err := f.settle(ctx); err != nil {
			return nil, err
		}
	}

	f.logger.Warn("captcha gate not cleared", zap.String("ttb_id", ttbID), zap.Int("attempts", f.cfg.CaptchaRetries))
	metrics.ObserveDocumentFetch("captcha_exhausted")
	return nil, fmt.Errorf("%s: captcha not cleared: %w", ttbID, cola.ErrDocumentUnavailable)
}

func (f *Fetcher) settle(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(f.cfg.SettleDelay):
		return nil
	}
}
