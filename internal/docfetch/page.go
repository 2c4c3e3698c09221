package docfetch

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// pageProbe is what a single inspection of the current page found.
type pageProbe struct {
	HasCaptcha   bool   `json:"hasCaptcha"`
	CaptchaImage string `json:"captchaImage"`
	IsDocument   bool   `json:"isDocument"`
}

// pageDriver abstracts the browser tab so the fetch state machine can be
// tested without a browser.
type pageDriver interface {
	Navigate(ctx context.Context, url string) error
	Probe(ctx context.Context) (pageProbe, error)
	SubmitCaptcha(ctx context.Context, answer string) error
	PrintPDF(ctx context.Context) ([]byte, error)
}

// The gate page shows a prompt and an inline image; the document page is
// recognized by its application form with two weaker fallbacks for partial
// renders.
const probeScript = `(() => {
	const img = document.querySelector('img[alt="bottle"]');
	const text = document.body ? document.body.innerText : '';
	const hasCaptcha = text.includes('What code is in the image?') &&
		!!img && (img.src || '').startsWith('data:image');

	let isDocument = false;
	if (!hasCaptcha) {
		isDocument = !!document.querySelector('form[name="colaApplicationForm"]') ||
			Array.from(document.querySelectorAll('div.label'))
				.some(el => el.textContent.includes('TTB ID')) ||
			Array.from(document.querySelectorAll('div.sectionhead'))
				.some(el => el.textContent.includes('PART I - APPLICATION'));
	}

	return {
		hasCaptcha: hasCaptcha,
		captchaImage: hasCaptcha ? img.src : '',
		isDocument: isDocument,
	};
})()`

// chromeTab drives a real browser tab via chromedp.
type chromeTab struct {
	ctx context.Context
}

func (t *chromeTab) run(ctx context.Context, actions ...chromedp.Action) error {
	// The tab has its own chromedp context; the caller's context only bounds
	// the wait.
	runCtx := t.ctx
	if deadline, ok := ctx.Deadline(); ok {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithDeadline(runCtx, deadline)
		defer cancel()
	}
	return chromedp.Run(runCtx, actions...)
}

func (t *chromeTab) Navigate(ctx context.Context, url string) error {
	if err := t.run(ctx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

func (t *chromeTab) Probe(ctx context.Context) (pageProbe, error) {
	var probe pageProbe
	if err := t.run(ctx, chromedp.Evaluate(probeScript, &probe)); err != nil {
		return pageProbe{}, fmt.Errorf("probe page: %w", err)
	}
	return probe, nil
}

func (t *chromeTab) SubmitCaptcha(ctx context.Context, answer string) error {
	if err := t.run(ctx,
		chromedp.WaitVisible("input#ans", chromedp.ByQuery),
		chromedp.SetValue("input#ans", answer, chromedp.ByQuery),
		chromedp.Click("button#jar", chromedp.ByQuery),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(time.Second),
	); err != nil {
		return fmt.Errorf("submit captcha answer: %w", err)
	}
	return nil
}

// PrintPDF renders the page with the browser's print pipeline: Letter paper,
// half-inch margins, backgrounds included so label images survive.
func (t *chromeTab) PrintPDF(ctx context.Context) ([]byte, error) {
	var pdf []byte
	err := t.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		buf, _, err := page.PrintToPDF().
			WithPrintBackground(true).
			WithPaperWidth(8.5).
			WithPaperHeight(11).
			WithMarginTop(0.5).
			WithMarginBottom(0.5).
			WithMarginLeft(0.5).
			WithMarginRight(0.5).
			Do(ctx)
		if err != nil {
			return err
		}
		pdf = buf
		return nil
	}))
	if err != nil {
		return nil, fmt.Errorf("print to pdf: %w", err)
	}
	return pdf, nil
}
