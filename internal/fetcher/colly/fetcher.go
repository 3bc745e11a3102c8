// Package collyfetcher implements crawler.Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/frontier-crawler/internal/crawler"
)

// ErrUnexpectedStatus is returned when the server answers with anything but 200.
var ErrUnexpectedStatus = errors.New("unexpected http status")

// DefaultUserAgents is the browser identity pool rotated across requests.
var DefaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/14.1.1 Safari/605.1.15",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:89.0) Gecko/20100101 Firefox/89.0",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36",
}

// Config controls collector behavior.
type Config struct {
	UserAgents   []string
	Timeout      time.Duration
	MaxBodyBytes int
}

// Fetcher implements crawler.Fetcher using the Colly collector.
type Fetcher struct {
	cfg  Config
	base *colly.Collector
	pick func(n int) int
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher. robots.txt is not consulted.
func New(cfg Config) *Fetcher {
	if len(cfg.UserAgents) == 0 {
		cfg.UserAgents = DefaultUserAgents
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	c := colly.NewCollector(colly.Async(false))
	c.IgnoreRobotsTxt = true
	c.AllowURLRevisit = true
	if cfg.MaxBodyBytes > 0 {
		c.MaxBodySize = cfg.MaxBodyBytes
	}
	c.WithTransport(newHTTPTransport())
	return &Fetcher{cfg: cfg, base: c, pick: rand.IntN}
}

// Fetch executes a single HTTP GET. Any status other than 200 is returned as an
// ErrUnexpectedStatus error alongside the partial response.
func (f *Fetcher) Fetch(ctx context.Context, request crawler.FetchRequest) (crawler.FetchResponse, error) {
	var (
		result   crawler.FetchResponse
		fetchErr error
	)
	collector := f.base.Clone()
	collector.Context = ctx
	collector.UserAgent = f.userAgent()
	collector.SetRequestTimeout(f.cfg.Timeout)
	f.configureHooks(collector, request, time.Now(), &result, &fetchErr)

	if err := run(ctx, collector, request.URL); err != nil {
		if ctx.Err() != nil {
			return crawler.FetchResponse{}, err
		}
		if fetchErr == nil {
			return result, fmt.Errorf("colly visit failed: %w", err)
		}
	}
	if fetchErr != nil {
		return result, fmt.Errorf("fetch %s: %w", request.URL, fetchErr)
	}
	if result.StatusCode != http.StatusOK {
		return result, fmt.Errorf("fetch %s: %w: %d", request.URL, ErrUnexpectedStatus, result.StatusCode)
	}
	return result, nil
}

func (f *Fetcher) userAgent() string {
	return f.cfg.UserAgents[f.pick(len(f.cfg.UserAgents))]
}

func (f *Fetcher) configureHooks(
	hooks collectorHooks,
	request crawler.FetchRequest,
	start time.Time,
	result *crawler.FetchResponse,
	fetchErr *error,
) {
	hooks.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
		r.Headers.Set("Accept-Language", "en-US,en;q=0.5")
		r.Headers.Set("Connection", "keep-alive")
		r.Headers.Set("Upgrade-Insecure-Requests", "1")
		for key, values := range request.Headers {
			r.Headers.Del(key)
			for _, v := range values {
				r.Headers.Add(key, v)
			}
		}
	})

	hooks.OnResponse(func(r *colly.Response) {
		*result = toResponse(r, start)
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			*result = toResponse(r, start)
			*fetchErr = fmt.Errorf("%w: %d", ErrUnexpectedStatus, r.StatusCode)
			return
		}
		*fetchErr = err
	})
}

func toResponse(r *colly.Response, start time.Time) crawler.FetchResponse {
	resp := crawler.FetchResponse{
		StatusCode: r.StatusCode,
		Body:       append([]byte(nil), r.Body...),
		Duration:   time.Since(start),
	}
	if r.Request != nil && r.Request.URL != nil {
		resp.URL = r.Request.URL.String()
	}
	if r.Headers != nil {
		resp.Headers = r.Headers.Clone()
	}
	return resp
}

func run(ctx context.Context, collector *colly.Collector, url string) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		return err
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          50,
		IdleConnTimeout:       90 * time.Second,
	}
}
