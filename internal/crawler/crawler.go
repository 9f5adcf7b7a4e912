// Package crawler fetches pages from one site breadth-first and extracts
// their title and main text.
package crawler

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/taxrag/internal/corpus"
)

const (
	// DefaultTimeout bounds each page fetch.
	DefaultTimeout = 10 * time.Second
	// DefaultDelay is the politeness interval between fetches.
	DefaultDelay = time.Second
	// DefaultUserAgent identifies the crawler as a desktop browser.
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"

	maxBodyBytes = 10 << 20
)

var tracer = otel.Tracer("github.com/fyrsmithlabs/taxrag/internal/crawler")

// Sink receives crawl output. corpus.DirWriter is the file-backed sink.
type Sink interface {
	SavePage(n int, p corpus.Page) error
	SaveManifest(pages []corpus.Page) error
}

// Config holds crawler configuration.
type Config struct {
	// BaseURL bounds the crawl: only links with this prefix are followed.
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
	Delay     time.Duration
}

// Crawler walks a site breadth-first from its base URL.
type Crawler struct {
	base      *url.URL
	userAgent string
	client    *http.Client
	limiter   *rate.Limiter
	sink      Sink
	logger    *zap.Logger
}

// Option configures a Crawler.
type Option func(*Crawler)

// WithHTTPClient replaces the default client. Its Timeout is left as given.
func WithHTTPClient(c *http.Client) Option {
	return func(cr *Crawler) { cr.client = c }
}

// WithSink persists pages as they are saved and the manifest at the end.
func WithSink(s Sink) Option {
	return func(cr *Crawler) { cr.sink = s }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(cr *Crawler) {
		if l != nil {
			cr.logger = l
		}
	}
}

// New creates a crawler. Zero durations take the defaults; a negative Delay
// disables rate limiting.
func New(cfg Config, opts ...Option) (*Crawler, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil || (base.Scheme != "http" && base.Scheme != "https") || base.Host == "" {
		return nil, fmt.Errorf("invalid base url %q", cfg.BaseURL)
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Delay == 0 {
		cfg.Delay = DefaultDelay
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}

	limit := rate.Inf
	if cfg.Delay > 0 {
		limit = rate.Every(cfg.Delay)
	}

	c := &Crawler{
		base:      base,
		userAgent: cfg.UserAgent,
		client:    &http.Client{Timeout: cfg.Timeout},
		limiter:   rate.NewLimiter(limit, 1),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Result summarises a crawl.
type Result struct {
	Pages   []corpus.Page
	Visited int
	Failed  int
}

// Crawl visits up to maxPages URLs breadth-first starting at seedURL (the
// base URL when empty). Fetch and parse failures are logged and skipped.
// Pages without extractable text are not saved, but their links are followed.
// Only context cancellation and sink errors abort the crawl.
func (c *Crawler) Crawl(ctx context.Context, seedURL string, maxPages int) (*Result, error) {
	if seedURL == "" {
		seedURL = c.base.String()
	}

	frontier := []string{seedURL}
	queued := map[string]struct{}{seedURL: {}}
	visited := make(map[string]struct{})
	res := &Result{}

	for len(frontier) > 0 && len(visited) < maxPages {
		pageURL := frontier[0]
		frontier = frontier[1:]
		visited[pageURL] = struct{}{}

		if err := c.limiter.Wait(ctx); err != nil {
			return res, err
		}

		c.logger.Info("fetching page",
			zap.Int("n", len(visited)),
			zap.Int("max", maxPages),
			zap.String("url", pageURL),
		)

		page, links, err := c.visit(ctx, pageURL)
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			res.Failed++
			c.logger.Warn("skipping page", zap.String("url", pageURL), zap.Error(err))
			continue
		}

		if page != nil {
			res.Pages = append(res.Pages, *page)
			if c.sink != nil {
				if err := c.sink.SavePage(len(res.Pages), *page); err != nil {
					return res, fmt.Errorf("save page %s: %w", pageURL, err)
				}
			}
			c.logger.Debug("page saved",
				zap.String("url", pageURL),
				zap.Int("chars", len([]rune(page.Content))),
			)
		}

		for _, link := range links {
			if _, ok := queued[link]; ok {
				continue
			}
			queued[link] = struct{}{}
			frontier = append(frontier, link)
		}
	}

	res.Visited = len(visited)
	if c.sink != nil {
		if err := c.sink.SaveManifest(res.Pages); err != nil {
			return res, fmt.Errorf("save manifest: %w", err)
		}
	}
	return res, nil
}

// visit fetches one URL and returns its page (nil when it has no text) and
// outbound links.
func (c *Crawler) visit(ctx context.Context, pageURL string) (*corpus.Page, []string, error) {
	ctx, span := tracer.Start(ctx, "crawler.visit")
	defer span.End()
	span.SetAttributes(attribute.String("url", pageURL))

	body, err := c.fetch(ctx, pageURL)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, nil, fmt.Errorf("parse html: %w", err)
	}

	// links come from the full document, navigation included
	links := extractLinks(doc, c.base)
	title, text := extractContent(doc, pageURL)
	span.SetAttributes(attribute.Int("links", len(links)), attribute.Int("chars", len(text)))

	if strings.TrimSpace(text) == "" {
		return nil, links, nil
	}
	page, err := corpus.NewPage(pageURL, title, text)
	if err != nil {
		return nil, links, err
	}
	return &page, links, nil
}

func (c *Crawler) fetch(ctx context.Context, pageURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("fetch: unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}
