package fetcher

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/net/html/charset"
	"golang.org/x/time/rate"
)

const (
	// DefaultUserAgent is a desktop browser string; many portfolio hosts
	// block obvious bots.
	DefaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome Safari"

	// DefaultMaxBodyBytes caps how much of a response body is read.
	DefaultMaxBodyBytes = 4 << 20

	acceptHTML     = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"
	acceptJSON     = "application/json,text/plain;q=0.5,*/*;q=0.1"
	acceptLanguage = "pt-BR,pt;q=0.9,en;q=0.8,es;q=0.7"
)

// Observer is told about every finished request. code is "OK" on success
// or one of the failure codes.
type Observer func(host, code string, elapsed time.Duration)

// HTTPOptions configures the HTTP fetcher.
type HTTPOptions struct {
	UserAgent string
	// Delay is the minimum interval between two page requests to the same
	// host. Zero disables the limiter.
	Delay        time.Duration
	MaxBodyBytes int64
	Observer     Observer
	Transport    http.RoundTripper
}

// HTTPFetcher implements Fetcher using net/http with a per-host politeness limiter.
// It never retries; callers move on to the next page instead.
type HTTPFetcher struct {
	client *http.Client
	opts   HTTPOptions

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewHTTPFetcher creates a new HTTPFetcher with the given options.
func NewHTTPFetcher(opts HTTPOptions) *HTTPFetcher {
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}
	transport := opts.Transport
	if transport == nil {
		transport = &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConnsPerHost: 4,
			MaxConnsPerHost:     8,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		}
	}
	return &HTTPFetcher{
		client:   &http.Client{Transport: transport},
		opts:     opts,
		limiters: make(map[string]*rate.Limiter),
	}
}

func (f *HTTPFetcher) limiterFor(host string) *rate.Limiter {
	if f.opts.Delay <= 0 {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	lim, ok := f.limiters[host]
	if !ok {
		lim = rate.NewLimiter(rate.Every(f.opts.Delay), 1)
		f.limiters[host] = lim
	}
	return lim
}

// FetchHTML GETs rawURL and returns the decoded document.
func (f *HTTPFetcher) FetchHTML(ctx context.Context, rawURL string, timeout time.Duration) (page *Page, err error) {
	start := time.Now()
	defer func() { f.observe(rawURL, start, err) }()

	resp, cancel, err := f.open(ctx, http.MethodGet, rawURL, acceptHTML, nil, timeout, true)
	if err != nil {
		return nil, err
	}
	defer cancel()
	defer resp.Body.Close() //nolint:errcheck

	if err := checkStatus(resp, rawURL); err != nil {
		return nil, err
	}
	ct := resp.Header.Get("Content-Type")
	if !strings.Contains(strings.ToLower(ct), "text/html") {
		return nil, &Error{Code: CodeNotHTML, Status: resp.StatusCode, URL: rawURL}
	}

	body, err := f.read(ctx, resp, rawURL)
	if err != nil {
		return nil, err
	}
	return &Page{
		URL:         rawURL,
		FinalURL:    resp.Request.URL.String(),
		Body:        decode(body, ct),
		ContentType: ct,
	}, nil
}

// FetchJSON GETs rawURL and returns the raw JSON body.
func (f *HTTPFetcher) FetchJSON(ctx context.Context, rawURL string, timeout time.Duration) (data []byte, err error) {
	start := time.Now()
	defer func() { f.observe(rawURL, start, err) }()

	resp, cancel, err := f.open(ctx, http.MethodGet, rawURL, acceptJSON, nil, timeout, true)
	if err != nil {
		return nil, err
	}
	defer cancel()
	defer resp.Body.Close() //nolint:errcheck

	if err := checkStatus(resp, rawURL); err != nil {
		return nil, err
	}
	if !strings.Contains(strings.ToLower(resp.Header.Get("Content-Type")), "application/json") {
		return nil, &Error{Code: CodeNotJSON, Status: resp.StatusCode, URL: rawURL}
	}
	return f.read(ctx, resp, rawURL)
}

// Status issues the request and returns its status code without reading the body.
// Status is not rate limited.
func (f *HTTPFetcher) Status(ctx context.Context, method, rawURL string, header http.Header, timeout time.Duration) (status int, err error) {
	start := time.Now()
	defer func() { f.observe(rawURL, start, err) }()

	resp, cancel, err := f.open(ctx, method, rawURL, "*/*", header, timeout, false)
	if err != nil {
		return 0, err
	}
	defer cancel()
	_ = resp.Body.Close()
	return resp.StatusCode, nil
}

// open validates the URL, waits on the host limiter and sends the request.
// The returned cancel func must be called once the body has been consumed.
func (f *HTTPFetcher) open(ctx context.Context, method, rawURL, accept string, header http.Header, timeout time.Duration, limited bool) (*http.Response, context.CancelFunc, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, nil, &Error{Code: CodeInvalid, URL: rawURL, Err: err}
	}

	if limited {
		if lim := f.limiterFor(u.Host); lim != nil {
			if err := lim.Wait(ctx); err != nil {
				return nil, nil, classify(ctx, rawURL, eris.Wrap(err, "fetcher: rate limiter wait"))
			}
		}
	}

	var (
		cctx   context.Context
		cancel context.CancelFunc
	)
	if timeout > 0 {
		cctx, cancel = context.WithTimeout(ctx, timeout)
	} else {
		cctx, cancel = context.WithCancel(ctx)
	}

	req, err := http.NewRequestWithContext(cctx, method, rawURL, nil)
	if err != nil {
		cancel()
		return nil, nil, &Error{Code: CodeInvalid, URL: rawURL, Err: eris.Wrap(err, "fetcher: create request")}
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)
	req.Header.Set("Accept", accept)
	req.Header.Set("Accept-Language", acceptLanguage)
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Pragma", "no-cache")

	resp, err := f.client.Do(req)
	if err != nil {
		cancel()
		return nil, nil, classify(ctx, rawURL, eris.Wrapf(err, "fetcher: %s", strings.ToLower(method)))
	}
	return resp, cancel, nil
}

func (f *HTTPFetcher) read(ctx context.Context, resp *http.Response, rawURL string) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, f.opts.MaxBodyBytes))
	if err != nil {
		return nil, classify(ctx, rawURL, eris.Wrap(err, "fetcher: read body"))
	}
	return body, nil
}

func (f *HTTPFetcher) observe(rawURL string, start time.Time, err error) {
	code := "OK"
	if err != nil {
		code = CodeOf(err)
	}
	host := rawURL
	if u, perr := url.Parse(rawURL); perr == nil && u.Host != "" {
		host = u.Host
	}
	zap.L().Debug("fetcher: request done",
		zap.String("url", rawURL),
		zap.String("code", code),
		zap.Duration("elapsed", time.Since(start)),
	)
	if f.opts.Observer != nil {
		f.opts.Observer(host, code, time.Since(start))
	}
}

func checkStatus(resp *http.Response, rawURL string) error {
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &Error{Code: HTTPCode(resp.StatusCode), Status: resp.StatusCode, URL: rawURL}
	}
	return nil
}

// classify maps a transport error to a failure code. A cancelled parent
// context wins over the per-call deadline.
func classify(parent context.Context, rawURL string, err error) *Error {
	if parent.Err() != nil {
		return &Error{Code: CodeCanceled, URL: rawURL, Err: err}
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &Error{Code: CodeTimeout, URL: rawURL, Err: err}
	}
	return &Error{Code: CodeNetwork, URL: rawURL, Err: err}
}

// decode converts body to UTF-8 using the declared or sniffed charset.
// Undecodable bodies are returned as-is.
func decode(body []byte, contentType string) string {
	r, err := charset.NewReader(bytes.NewReader(body), contentType)
	if err != nil {
		return string(body)
	}
	out, err := io.ReadAll(r)
	if err != nil {
		return string(body)
	}
	return string(out)
}
