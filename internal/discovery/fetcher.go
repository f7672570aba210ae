package discovery

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
)

const (
	defaultTimeout       = 3 * time.Second
	defaultRetryInterval = 250 * time.Millisecond
	maxRetryInterval     = 2 * time.Second

	// maxBodySize bounds what is read from a device; info pages are small.
	maxBodySize = 1 << 20
)

// Logger is the logging interface used by discovery components.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// FetcherConfig configures a Fetcher.
type FetcherConfig struct {
	// Timeout bounds each HTTP attempt.
	Timeout time.Duration

	// Retries is the number of extra attempts after the first.
	Retries int

	// RetryInterval is the initial backoff between attempts.
	RetryInterval time.Duration

	// Password is the CircuitPython Web API password, sent as Basic auth
	// with an empty user. Empty disables auth.
	Password string

	// UserAgent defaults to "ndb".
	UserAgent string
}

// Result is one successful fetch.
type Result struct {
	URL  string
	Body string
	Info *DeviceInfo
}

// Fetcher reads device info from a board's web workflow.
type Fetcher struct {
	cfg    FetcherConfig
	client *http.Client
	logger Logger
}

// NewFetcher creates a fetcher. Zero values in cfg take defaults.
func NewFetcher(cfg FetcherConfig) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = defaultRetryInterval
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "ndb"
	}
	return &Fetcher{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the fetcher.
func (f *Fetcher) SetLogger(logger Logger) {
	f.logger = logger
}

// Fetch retrieves and parses /cp/version.json from host.
//
// Transport failures, error statuses and empty bodies are retried with
// exponential backoff. A body that does not parse is not retried: the
// returned error wraps ErrParse and the Result still carries URL and Body.
// When the device does not report its IP, the queried host is used.
func (f *Fetcher) Fetch(ctx context.Context, host string) (*Result, error) {
	res, err := f.FetchRaw(ctx, host)
	if err != nil {
		return nil, err
	}

	info, ok := Parse(res.Body)
	if !ok {
		f.logger.Debug("device info did not parse", "url", res.URL)
		return res, fmt.Errorf("%w: %s", ErrParse, res.URL)
	}
	if info.IPAddress == nil {
		hostPort, _ := NormalizeHost(host)
		ip := hostOnly(hostPort)
		info.IPAddress = &ip
	}
	res.Info = info
	return res, nil
}

// FetchRaw retrieves the version.json body from host without parsing it.
func (f *Fetcher) FetchRaw(ctx context.Context, host string) (*Result, error) {
	hostPort, err := NormalizeHost(host)
	if err != nil {
		return nil, err
	}
	url := VersionURL(hostPort)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = f.cfg.RetryInterval
	b.MaxInterval = maxRetryInterval

	attempt := 0
	body, err := backoff.Retry(ctx, func() (string, error) {
		attempt++
		return f.get(ctx, url)
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(f.cfg.Retries)+1), // #nosec G115 -- Retries is non-negative
		backoff.WithNotify(func(err error, next time.Duration) {
			f.logger.Debug("device fetch failed, retrying", "url", url, "attempt", attempt, "next", next, "error", err)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %s after %d attempt(s): %w", ErrUnreachable, url, attempt, err)
	}

	return &Result{URL: url, Body: body}, nil
}

// get performs a single attempt and returns the body as UTF-8 text.
func (f *Fetcher) get(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", backoff.Permanent(err)
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)
	if f.cfg.Password != "" {
		req.SetBasicAuth("", f.cfg.Password)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return "", fmt.Errorf("unexpected status %s", resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return "", fmt.Errorf("reading body: %w", err)
	}

	if !resp.Uncompressed && strings.Contains(strings.ToLower(resp.Header.Get("Content-Encoding")), "gzip") {
		if plain, err := gunzip(data); err == nil {
			data = plain
		}
	}

	if len(data) == 0 {
		return "", errors.New("empty body")
	}
	return strings.ToValidUTF8(string(data), "\uFFFD"), nil
}

func gunzip(data []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(io.LimitReader(zr, maxBodySize))
}
