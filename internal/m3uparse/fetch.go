package m3uparse

import (
	"compress/gzip"
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/andybalholm/brotli"

	"github.com/ingestcore/m3uingest/internal/httpclient"
)

// FetchConfig bounds a single playlist fetch attempt.
type FetchConfig struct {
	MaxBytes   int64         // reject sources larger than this (default 1GB)
	Timeout    time.Duration // overall fetch timeout (default 30m)
	UserAgent  string
	MaxRetries int
}

// DefaultFetchConfig is a conservative baseline for large playlists.
var DefaultFetchConfig = FetchConfig{
	MaxBytes:   1 << 30,
	Timeout:    30 * time.Minute,
	UserAgent:  "m3uingest/1.0 (+playlist fetcher; conservative crawl)",
	MaxRetries: 2,
}

// Fetch retrieves playlistURL and returns a reader over its decoded body.
// The caller must close the returned io.ReadCloser. Content-Length is
// checked against cfg.MaxBytes before any body bytes are read; if the
// origin omits Content-Length, the cap is still enforced during the read
// via a limiting wrapper so a lying/absent header can't bypass it.
func Fetch(ctx context.Context, playlistURL string, cfg FetchConfig) (io.ReadCloser, error) {
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultFetchConfig.MaxBytes
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultFetchConfig.Timeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultFetchConfig.UserAgent
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, playlistURL, nil)
	if err != nil {
		cancel()
		return nil, err
	}
	req.Header.Set("User-Agent", cfg.UserAgent)
	req.Header.Set("Accept-Encoding", "br, gzip, identity")

	policy := httpclient.DefaultRetryPolicy
	policy.MaxRetries = cfg.MaxRetries
	if policy.MaxRetries <= 0 {
		policy.MaxRetries = DefaultFetchConfig.MaxRetries
	}

	resp, err := httpclient.DoWithRetry(ctx, httpclient.ForStreaming(), req, policy)
	if err != nil {
		cancel()
		if ctx.Err() == context.DeadlineExceeded {
			return nil, ErrTimeout
		}
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		cancel()
		return nil, &HTTPError{Status: resp.StatusCode}
	}

	if cl := resp.Header.Get("Content-Length"); cl != "" {
		if n, err := strconv.ParseInt(cl, 10, 64); err == nil && n > cfg.MaxBytes {
			resp.Body.Close()
			cancel()
			return nil, ErrSourceTooLarge
		}
	}

	body := io.ReadCloser(resp.Body)
	switch resp.Header.Get("Content-Encoding") {
	case "br":
		body = &brotliReadCloser{r: brotli.NewReader(resp.Body), under: resp.Body}
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			resp.Body.Close()
			cancel()
			return nil, err
		}
		body = &gzipReadCloser{gz: gz, under: resp.Body}
	}

	limited := &cappedReadCloser{
		r:      body,
		remain: cfg.MaxBytes,
		cancel: cancel,
	}
	return limited, nil
}

type brotliReadCloser struct {
	r     *brotli.Reader
	under io.Closer
}

func (b *brotliReadCloser) Read(p []byte) (int, error) { return b.r.Read(p) }
func (b *brotliReadCloser) Close() error                { return b.under.Close() }

type gzipReadCloser struct {
	gz    *gzip.Reader
	under io.Closer
}

func (g *gzipReadCloser) Read(p []byte) (int, error) { return g.gz.Read(p) }
func (g *gzipReadCloser) Close() error {
	g.gz.Close()
	return g.under.Close()
}

// cappedReadCloser enforces MaxBytes on the decoded stream regardless of
// what (or whether) Content-Length claimed, and releases the fetch's
// context timer once the body is closed.
type cappedReadCloser struct {
	r      io.ReadCloser
	remain int64
	cancel context.CancelFunc
}

func (c *cappedReadCloser) Read(p []byte) (int, error) {
	if c.remain <= 0 {
		return 0, ErrSourceTooLarge
	}
	if int64(len(p)) > c.remain {
		p = p[:c.remain]
	}
	n, err := c.r.Read(p)
	c.remain -= int64(n)
	return n, err
}

func (c *cappedReadCloser) Close() error {
	c.cancel()
	return c.r.Close()
}
