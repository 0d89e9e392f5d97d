package checker

import (
	"context"
	"crypto/tls"
	"net/http"
	"time"

	"github.com/katieblackabee/upquack/internal/storage"
)

const (
	DefaultTimeout   = 10 * time.Second
	DefaultUserAgent = "Upquack/1.0 (Uptime Monitor)"

	maxRedirects = 10
)

type HTTPChecker struct {
	client    *http.Client
	timeout   time.Duration
	userAgent string
	now       func() time.Time
}

type HTTPCheckerConfig struct {
	Timeout   time.Duration
	UserAgent string
}

func NewHTTPChecker(cfg HTTPCheckerConfig) *HTTPChecker {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}

	transport := &http.Transport{
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}

	client := &http.Client{
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}

	return &HTTPChecker{
		client:    client,
		timeout:   cfg.Timeout,
		userAgent: cfg.UserAgent,
		now:       time.Now,
	}
}

// Probe sends one HEAD request to url and reports the outcome as a record.
// It never fails: transport errors are classified into the record's status.
func (h *HTTPChecker) Probe(ctx context.Context, url string) storage.CheckRecord {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	startedAt := h.now()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return failure(startedAt, err)
	}
	req.Header.Set("User-Agent", h.userAgent)

	start := time.Now()
	resp, err := h.client.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		return failure(startedAt, err)
	}
	resp.Body.Close()

	return storage.UpRecord(startedAt, resp.StatusCode, elapsed.Milliseconds())
}

// Close drops idle keep-alive connections.
func (h *HTTPChecker) Close() {
	h.client.CloseIdleConnections()
}
