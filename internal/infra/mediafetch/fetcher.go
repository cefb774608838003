package mediafetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	keepdomain "github.com/sleroq/keep-to-markdown/internal/domain/keep"
)

// Fetcher downloads attachment content. It follows redirects and also serves
// file:// URLs from the local filesystem.
type Fetcher struct {
	client  *http.Client
	limiter *rate.Limiter
}

type Option func(*Fetcher)

func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) {
		f.client.Timeout = d
	}
}

// WithRateLimit caps requests per second; zero or less disables limiting.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(f *Fetcher) {
		if perSecond <= 0 {
			f.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		f.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

func WithTransport(rt http.RoundTripper) Option {
	return func(f *Fetcher) {
		f.client.Transport = rt
	}
}

func New(opts ...Option) *Fetcher {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.RegisterProtocol("file", http.NewFileTransport(http.Dir("/")))
	f := &Fetcher{
		client: &http.Client{Transport: transport},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch returns the body and the declared Content-Type of url.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, string, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, "", fmt.Errorf("%w: wait for rate limit: %w", keepdomain.ErrNetwork, err)
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("%w: build request for %s: %w", keepdomain.ErrNetwork, url, err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("%w: get %s: %w", keepdomain.ErrNetwork, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, "", fmt.Errorf("%w: get %s: unexpected status %s", keepdomain.ErrNetwork, url, resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("%w: read %s: %w", keepdomain.ErrNetwork, url, err)
	}
	return body, resp.Header.Get("Content-Type"), nil
}
