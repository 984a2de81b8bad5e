package fetcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/amosWeiskopf/sitescribe/internal/models"
)

// RenderOptions configures the headless browser.
type RenderOptions struct {
	Timeout      time.Duration
	InitialWait  time.Duration
	ScrollWait   time.Duration
	MaxScrolls   int
	Headless     bool
	UserAgent    string
	MaxBodyBytes int64
}

// RenderFetcher loads pages in headless Chrome, scrolls until lazily loaded
// content stops growing the page, and returns the resulting DOM. One browser
// is shared by all calls; each call gets its own tab.
type RenderFetcher struct {
	opts   RenderOptions
	logger *slog.Logger

	once          sync.Once
	browserCtx    context.Context
	cancelBrowser context.CancelFunc
	allocCancel   context.CancelFunc
	startErr      error
}

// NewRenderFetcher creates a renderer. The browser is launched on first use.
func NewRenderFetcher(opts RenderOptions, logger *slog.Logger) *RenderFetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.InitialWait < 0 {
		opts.InitialWait = 0
	}
	if opts.ScrollWait <= 0 {
		opts.ScrollWait = 2 * time.Second
	}
	if opts.MaxScrolls <= 0 {
		opts.MaxScrolls = 20
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 10 * 1024 * 1024
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RenderFetcher{opts: opts, logger: logger}
}

func (r *RenderFetcher) start() error {
	r.once.Do(func() {
		execOpts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", r.opts.Headless),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("disable-dev-shm-usage", true),
			chromedp.Flag("no-sandbox", true),
			chromedp.UserAgent(r.opts.UserAgent),
		)
		allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), execOpts...)
		browserCtx, cancel := chromedp.NewContext(allocCtx)

		// Run with no actions starts the browser.
		if err := chromedp.Run(browserCtx); err != nil {
			cancel()
			allocCancel()
			r.startErr = fmt.Errorf("start browser: %w", err)
			return
		}
		r.browserCtx = browserCtx
		r.cancelBrowser = cancel
		r.allocCancel = allocCancel
	})
	return r.startErr
}

// Render navigates to pageURL in a new tab and captures the outer HTML once
// scrolling no longer changes the document height.
func (r *RenderFetcher) Render(ctx context.Context, pageURL string) (*models.RawDocument, error) {
	if err := r.start(); err != nil {
		return nil, &FetchError{Kind: KindNetwork, URL: pageURL, Err: err}
	}

	tabCtx, cancelTab := chromedp.NewContext(r.browserCtx)
	defer cancelTab()
	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, r.opts.Timeout)
	defer cancelTimeout()
	stop := context.AfterFunc(ctx, cancelTab)
	defer stop()

	start := time.Now()
	resp, err := chromedp.RunResponse(tabCtx, chromedp.Navigate(pageURL))
	if err != nil {
		return nil, r.renderError(ctx, tabCtx, pageURL, err)
	}
	status := 200
	contentType := "text/html; charset=utf-8"
	if resp != nil {
		status = int(resp.Status)
		if resp.MimeType != "" {
			contentType = resp.MimeType
		}
	}
	if status < 200 || status > 299 {
		return nil, &FetchError{Kind: KindHTTPStatus, URL: pageURL, StatusCode: status}
	}

	var html, finalURL string
	err = chromedp.Run(tabCtx,
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(r.opts.InitialWait),
		r.scrollToBottom(),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
		chromedp.Location(&finalURL),
	)
	if err != nil {
		return nil, r.renderError(ctx, tabCtx, pageURL, err)
	}

	if int64(len(html)) > r.opts.MaxBodyBytes {
		return nil, &FetchError{Kind: KindNetwork, URL: pageURL,
			Err: fmt.Errorf("rendered document exceeds limit of %d bytes", r.opts.MaxBodyBytes)}
	}
	if finalURL == "" {
		finalURL = pageURL
	}

	r.logger.Debug("render complete",
		"url", pageURL,
		"final_url", finalURL,
		"latency_ms", time.Since(start).Milliseconds(),
		"html_bytes", len(html),
	)
	return &models.RawDocument{
		URL:         pageURL,
		FinalURL:    finalURL,
		StatusCode:  status,
		ContentType: contentType,
		Body:        []byte(html),
		Rendered:    true,
		FetchedAt:   time.Now().UTC(),
	}, nil
}

// Fetch makes RenderFetcher usable on its own as a crawler fetcher.
func (r *RenderFetcher) Fetch(ctx context.Context, pageURL string) (*models.RawDocument, error) {
	return r.Render(ctx, pageURL)
}

func (r *RenderFetcher) renderError(ctx, tabCtx context.Context, pageURL string, err error) error {
	if ctx.Err() != nil {
		return classify(pageURL, ctx.Err())
	}
	if errors.Is(tabCtx.Err(), context.DeadlineExceeded) {
		return &FetchError{Kind: KindTimeout, URL: pageURL, Err: err}
	}
	return classify(pageURL, err)
}

// scrollToBottom keeps scrolling while the body grows, up to MaxScrolls times,
// then returns to the top of the page.
func (r *RenderFetcher) scrollToBottom() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		var last int64
		if err := chromedp.Evaluate(`document.body.scrollHeight`, &last).Do(ctx); err != nil {
			return err
		}
		for i := 0; i < r.opts.MaxScrolls; i++ {
			if err := chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight)`, nil).Do(ctx); err != nil {
				return err
			}
			if err := sleepCtx(ctx, r.opts.ScrollWait); err != nil {
				return err
			}
			var height int64
			if err := chromedp.Evaluate(`document.body.scrollHeight`, &height).Do(ctx); err != nil {
				return err
			}
			if height == last {
				break
			}
			last = height
		}
		return chromedp.Evaluate(`window.scrollTo(0, 0)`, nil).Do(ctx)
	})
}

// Close shuts the browser down.
func (r *RenderFetcher) Close() error {
	if r.cancelBrowser != nil {
		r.cancelBrowser()
	}
	if r.allocCancel != nil {
		r.allocCancel()
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
