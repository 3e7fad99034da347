package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
	maxBodyBytes     = 8 << 20
)

// Options configures a Fetcher.
type Options struct {
	Client    *http.Client
	UserAgent string
	// ProxyURL routes requests through a CORS-style proxy. A "{url}" placeholder
	// is replaced by the escaped target; otherwise the escaped target is appended.
	ProxyURL string
	// RatePerSecond limits outgoing requests; zero disables limiting.
	RatePerSecond float64
	Burst         int
}

// Fetcher performs GET requests on behalf of one source.
type Fetcher struct {
	client    *http.Client
	userAgent string
	proxyURL  string
	limiter   *rate.Limiter
}

// NewFetcher builds a fetcher; a nil client gets a 20s timeout client.
func NewFetcher(opts Options) *Fetcher {
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	ua := strings.TrimSpace(opts.UserAgent)
	if ua == "" {
		ua = defaultUserAgent
	}

	f := &Fetcher{client: client, userAgent: ua, proxyURL: strings.TrimSpace(opts.ProxyURL)}
	if opts.RatePerSecond > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		f.limiter = rate.NewLimiter(rate.Limit(opts.RatePerSecond), burst)
	}
	return f
}

// StatusError reports a non-2xx upstream response.
type StatusError struct {
	URL    string
	Status string
	Code   int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s returned %s", e.URL, e.Status)
}

// Get fetches target and returns the response body.
func (f *Fetcher) Get(ctx context.Context, target string, accept string) ([]byte, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit: %w", err)
		}
	}

	endpoint := f.resolve(target)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept-Language", "pt-BR,pt;q=0.9,en-US;q=0.8,en;q=0.7")
	if accept != "" {
		req.Header.Set("Accept", accept)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{URL: target, Status: resp.Status, Code: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

// GetJSON fetches target and decodes the JSON body into v.
func (f *Fetcher) GetJSON(ctx context.Context, target string, v any) error {
	body, err := f.Get(ctx, target, "application/json")
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decode %s: %w", target, err)
	}
	return nil
}

func (f *Fetcher) resolve(target string) string {
	if f.proxyURL == "" {
		return target
	}
	escaped := url.QueryEscape(target)
	if strings.Contains(f.proxyURL, "{url}") {
		return strings.ReplaceAll(f.proxyURL, "{url}", escaped)
	}
	return f.proxyURL + escaped
}
