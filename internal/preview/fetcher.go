package preview

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"vox-chat/internal/domain"
	"vox-chat/internal/observability"
	voxerrors "vox-chat/pkg/errors"
	"vox-chat/pkg/logger"

	"go.uber.org/zap"
)

const maxBodyBytes = 2 << 20

// Cache stores previews by URL. A cached nil preview means the URL was
// looked up and produced nothing.
type Cache interface {
	GetPreview(ctx context.Context, url string) (*domain.LinkPreview, bool, error)
	SetPreview(ctx context.Context, url string, p *domain.LinkPreview) error
}

// Fetcher downloads pages and extracts their previews.
type Fetcher struct {
	httpClient    *http.Client
	skipSSRFCheck bool
	lookup        func(string) ([]net.IP, error)
	cache         Cache
	metrics       *observability.Metrics
	log           *logger.Logger
}

type Option func(*Fetcher)

func WithCache(c Cache) Option {
	return func(f *Fetcher) { f.cache = c }
}

func WithMetrics(m *observability.Metrics) Option {
	return func(f *Fetcher) { f.metrics = m }
}

func WithLogger(l *logger.Logger) Option {
	return func(f *Fetcher) { f.log = l }
}

// NewFetcher creates a fetcher whose requests time out after timeout.
func NewFetcher(timeout time.Duration, opts ...Option) *Fetcher {
	f := &Fetcher{
		httpClient: &http.Client{Timeout: timeout},
		lookup:     net.LookupIP,
		log:        logger.Nop(),
	}
	f.httpClient.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) >= 5 {
			return errors.New("stopped after 5 redirects")
		}
		if f.skipSSRFCheck {
			return nil
		}
		return validateURL(req.URL.String(), f.lookup)
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// NewFetcherForTesting creates a fetcher that allows loopback URLs, for
// httptest servers.
func NewFetcherForTesting(timeout time.Duration, opts ...Option) *Fetcher {
	f := NewFetcher(timeout, opts...)
	f.skipSSRFCheck = true
	return f
}

// Fetch returns the preview for url, or nil when the page has none.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*domain.LinkPreview, error) {
	if !f.skipSSRFCheck {
		if err := validateURL(url, f.lookup); err != nil {
			f.metrics.Preview("error")
			return nil, fmt.Errorf("%w: %v", voxerrors.ErrInvalidInput, err)
		}
	}

	if f.cache != nil {
		p, found, err := f.cache.GetPreview(ctx, url)
		if err != nil {
			f.log.Logger.Warn("preview cache read failed", zap.String("url", url), zap.Error(err))
		} else if found {
			f.metrics.Preview("hit")
			return p, nil
		}
	}

	p, err := f.download(ctx, url)
	if err != nil {
		f.metrics.Preview("error")
		return nil, err
	}
	if p == nil {
		f.metrics.Preview("none")
	} else {
		f.metrics.Preview("fetched")
	}

	if f.cache != nil {
		if err := f.cache.SetPreview(ctx, url, p); err != nil {
			f.log.Logger.Warn("preview cache write failed", zap.String("url", url), zap.Error(err))
		}
	}
	return p, nil
}

func (f *Fetcher) download(ctx context.Context, url string) (*domain.LinkPreview, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", voxerrors.ErrInvalidInput, err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; VoxChatBot/1.0)")
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, nil
	}
	contentType := resp.Header.Get("Content-Type")
	if contentType != "" && !strings.Contains(contentType, "html") {
		return nil, nil
	}
	return Parse(url, io.LimitReader(resp.Body, maxBodyBytes))
}
