// Package docfetch retrieves certificate documents as PDFs through a remote
// headless browser, solving the image captcha that gates them.
package docfetch

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// SessionConfig controls the remote browser connection.
type SessionConfig struct {
	WSSEndpoint        string
	MaxConnectAttempts int
	InitialTimeout     time.Duration
}

// Session is a persistent connection to a remote browser. Serverless browser
// pools cold-start slowly, so Connect retries with growing timeouts and the
// session is reused across document fetches. Close when done.
type Session struct {
	allocCancel   context.CancelFunc
	browser       context.Context
	browserCancel context.CancelFunc
}

// Connect dials the browser's websocket endpoint. Each attempt gets a longer
// timeout than the last; attempts are separated by capped exponential
// backoff.
func Connect(ctx context.Context, cfg SessionConfig, logger *zap.Logger) (*Session, error) {
	if cfg.WSSEndpoint == "" {
		return nil, fmt.Errorf("browser wss endpoint is required")
	}
	if cfg.MaxConnectAttempts <= 0 {
		cfg.MaxConnectAttempts = 5
	}
	if cfg.InitialTimeout <= 0 {
		cfg.InitialTimeout = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxConnectAttempts; attempt++ {
		timeout := cfg.InitialTimeout + time.Duration(attempt-1)*30*time.Second
		logger.Info("connecting to remote browser",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", cfg.MaxConnectAttempts),
			zap.Duration("timeout", timeout),
		)

		s, err := dial(ctx, cfg.WSSEndpoint, timeout)
		if err == nil {
			logger.Info("remote browser connected", zap.Int("attempt", attempt))
			return s, nil
		}
		lastErr = err
		logger.Warn("browser connection attempt failed", zap.Int("attempt", attempt), zap.Error(err))

		if attempt == cfg.MaxConnectAttempts {
			break
		}
		backoff := time.Duration(1<<attempt) * time.Second
		if backoff > 30*time.Second {
			backoff = 30 * time.Second
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}
	return nil, fmt.Errorf("connect to browser after %d attempts: %w", cfg.MaxConnectAttempts, lastErr)
}

func dial(ctx context.Context, endpoint string, timeout time.Duration) (*Session, error) {
	allocCtx, allocCancel := chromedp.NewRemoteAllocator(context.Background(), endpoint)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// An empty Run forces the websocket handshake so failures surface here
	// instead of on the first fetch.
	warmCtx, warmCancel := context.WithTimeout(browserCtx, timeout)
	defer warmCancel()
	if err := chromedp.Run(warmCtx); err != nil {
		browserCancel()
		allocCancel()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("browser handshake: %w", err)
	}

	return &Session{
		allocCancel:   allocCancel,
		browser:       browserCtx,
		browserCancel: browserCancel,
	}, nil
}

// NewTab opens a fresh tab in the shared browser. The cancel func closes the
// tab without tearing down the session.
func (s *Session) NewTab() (context.Context, context.CancelFunc) {
	return chromedp.NewContext(s.browser)
}

// Close tears down the browser connection.
func (s *Session) Close() {
	s.browserCancel()
	s.allocCancel()
}
