// Package fetcher retrieves raw page documents over plain HTTP or through a
// headless browser. Fetchers never follow links on their own.
package fetcher

import (
	"compress/flate"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"golang.org/x/time/rate"

	"github.com/amosWeiskopf/sitescribe/internal/models"
)

const defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Options controls HTTP fetching behaviour.
type Options struct {
	UserAgent         string
	Headers           map[string]string
	Timeout           time.Duration
	MaxBodyBytes      int64
	RequestsPerSecond float64 // 0 disables throttling
}

// HTTPFetcher fetches pages with a net/http client.
type HTTPFetcher struct {
	client       *http.Client
	userAgent    string
	headers      map[string]string
	maxBodyBytes int64
	limiter      *rate.Limiter
}

// NewHTTPFetcher constructs an HTTP fetcher using the provided options.
func NewHTTPFetcher(opts Options) *HTTPFetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 40 * time.Second
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 10 * 1024 * 1024
	}
	if strings.TrimSpace(opts.UserAgent) == "" {
		opts.UserAgent = defaultUserAgent
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		MaxIdleConns:          50,
		MaxIdleConnsPerHost:   50,
		IdleConnTimeout:       30 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
	jar, _ := cookiejar.New(nil)

	headers := make(map[string]string, len(opts.Headers))
	for k, v := range opts.Headers {
		headers[k] = v
	}

	var limiter *rate.Limiter
	if opts.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}

	return &HTTPFetcher{
		client:       &http.Client{Transport: transport, Timeout: opts.Timeout, Jar: jar},
		userAgent:    opts.UserAgent,
		headers:      headers,
		maxBodyBytes: opts.MaxBodyBytes,
		limiter:      limiter,
	}
}

// Fetch downloads pageURL. A non-2xx status is reported as a FetchError of
// kind http_status.
func (f *HTTPFetcher) Fetch(ctx context.Context, pageURL string) (*models.RawDocument, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, classify(pageURL, err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, &FetchError{Kind: KindNetwork, URL: pageURL, Err: err}
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")
	for k, v := range f.headers {
		req.Header.Set(k, v)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, classify(pageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &FetchError{Kind: KindHTTPStatus, URL: pageURL, StatusCode: resp.StatusCode}
	}

	body, err := f.readBody(resp)
	if err != nil {
		return nil, classify(pageURL, err)
	}

	finalURL := pageURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	return &models.RawDocument{
		URL:         pageURL,
		FinalURL:    finalURL,
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
		FetchedAt:   time.Now().UTC(),
	}, nil
}

func (f *HTTPFetcher) readBody(resp *http.Response) ([]byte, error) {
	reader := io.Reader(resp.Body)

	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("gzip decode: %w", err)
		}
		defer gz.Close()
		reader = gz
	case "br":
		reader = brotli.NewReader(resp.Body)
	case "deflate":
		fl := flate.NewReader(resp.Body)
		defer fl.Close()
		reader = fl
	}

	body, err := io.ReadAll(io.LimitReader(reader, f.maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > f.maxBodyBytes {
		return nil, fmt.Errorf("response body exceeds limit of %d bytes", f.maxBodyBytes)
	}
	return body, nil
}

// Renderer executes JavaScript and returns the rendered DOM.
type Renderer interface {
	Render(ctx context.Context, pageURL string) (*models.RawDocument, error)
}

// Composite renders pages first and falls back to plain HTTP when the
// renderer fails.
type Composite struct {
	http     *HTTPFetcher
	renderer Renderer
	logger   *slog.Logger
}

// NewComposite builds a composite fetcher. A nil renderer makes it a plain
// HTTP fetcher.
func NewComposite(httpFetcher *HTTPFetcher, renderer Renderer, logger *slog.Logger) *Composite {
	if logger == nil {
		logger = slog.Default()
	}
	return &Composite{http: httpFetcher, renderer: renderer, logger: logger}
}

// Fetch delegates to the renderer, then to the HTTP fetcher.
func (c *Composite) Fetch(ctx context.Context, pageURL string) (*models.RawDocument, error) {
	if c.renderer != nil {
		doc, err := c.renderer.Render(ctx, pageURL)
		if err == nil {
			return doc, nil
		}
		if ctx.Err() != nil {
			return nil, classify(pageURL, ctx.Err())
		}
		var fe *FetchError
		if errors.As(err, &fe) && fe.Kind == KindHTTPStatus {
			return nil, err
		}
		c.logger.Warn("renderer failed, falling back to HTTP fetch",
			"url", pageURL, "timeout", IsTimeout(err), "error", err)
	}
	return c.http.Fetch(ctx, pageURL)
}
