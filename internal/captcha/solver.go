// Package captcha provides image-captcha solving through the 2Captcha HTTP
// API.
package captcha

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/labelwatch/cola-sync/internal/metrics"
)

// ErrNotSolved reports that the service did not produce an answer within the
// polling window.
var ErrNotSolved = errors.New("captcha not solved")

// Solver turns a captcha image into its text answer.
type Solver interface {
	Solve(ctx context.Context, imageBase64 string) (string, error)
}

// Config controls the 2Captcha client.
type Config struct {
	APIKey          string
	BaseURL         string
	PollInterval    time.Duration
	MaxPollAttempts int
}

// TwoCaptcha submits images to the 2Captcha service and polls for answers.
type TwoCaptcha struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
}

// NewTwoCaptcha builds a TwoCaptcha solver.
func NewTwoCaptcha(cfg Config, logger *zap.Logger) (*TwoCaptcha, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("captcha api key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://2captcha.com"
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.MaxPollAttempts <= 0 {
		cfg.MaxPollAttempts = 60
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TwoCaptcha{
		cfg:    cfg,
		client: &http.Client{Timeout: 30 * time.Second},
		logger: logger,
	}, nil
}

// apiResponse is the json=1 envelope shared by the submit and poll
// endpoints. Status is 1 on success; Request carries either the payload or
// an error code such as CAPCHA_NOT_READY.
type apiResponse struct {
	Status  int    `json:"status"`
	Request string `json:"request"`
}

// Solve submits the image and polls until the service answers or the polling
// window is exhausted. Data-URI prefixes on the image are stripped.
func (t *TwoCaptcha) Solve(ctx context.Context, imageBase64 string) (string, error) {
	id, err := t.submit(ctx, stripDataURI(imageBase64))
	if err != nil {
		metrics.ObserveCaptchaSolve("failed")
		return "", err
	}
	t.logger.Debug("captcha submitted", zap.String("task_id", id))

	for attempt := 1; attempt <= t.cfg.MaxPollAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(t.cfg.PollInterval):
		}

		answer, ready, err := t.poll(ctx, id)
		if err != nil {
			metrics.ObserveCaptchaSolve("failed")
			return "", err
		}
		if ready {
			t.logger.Info("captcha solved", zap.String("task_id", id), zap.Int("attempts", attempt))
			metrics.ObserveCaptchaSolve("solved")
			return answer, nil
		}
	}
	metrics.ObserveCaptchaSolve("exhausted")
	return "", fmt.Errorf("task %s after %d polls: %w", id, t.cfg.MaxPollAttempts, ErrNotSolved)
}

func (t *TwoCaptcha) submit(ctx context.Context, imageBase64 string) (string, error) {
	form := url.Values{
		"key":    {t.cfg.APIKey},
		"method": {"base64"},
		"body":   {imageBase64},
		"json":   {"1"},
	}
	resp, err := t.call(ctx, http.MethodPost, t.cfg.BaseURL+"/in.php", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("submit captcha: %w", err)
	}
	if resp.Status != 1 {
		return "", fmt.Errorf("submit captcha: service error %q", resp.Request)
	}
	return resp.Request, nil
}

func (t *TwoCaptcha) poll(ctx context.Context, id string) (answer string, ready bool, err error) {
	q := url.Values{
		"key":    {t.cfg.APIKey},
		"action": {"get"},
		"id":     {id},
		"json":   {"1"},
	}
	resp, err := t.call(ctx, http.MethodGet, t.cfg.BaseURL+"/res.php?"+q.Encode(), nil)
	if err != nil {
		return "", false, fmt.Errorf("poll captcha: %w", err)
	}
	if resp.Status == 1 {
		return resp.Request, true, nil
	}
	if resp.Request == "CAPCHA_NOT_READY" {
		return "", false, nil
	}
	return "", false, fmt.Errorf("poll captcha: service error %q", resp.Request)
}

func (t *TwoCaptcha) call(ctx context.Context, method, rawURL string, body io.Reader) (*apiResponse, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	res, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", res.StatusCode)
	}
	var out apiResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &out, nil
}

// stripDataURI removes a leading data-URI header so callers can pass the
// image exactly as the page exposes it.
func stripDataURI(s string) string {
	if !strings.HasPrefix(s, "data:") {
		return s
	}
	if i := strings.Index(s, ","); i >= 0 {
		return s[i+1:]
	}
	return s
}
