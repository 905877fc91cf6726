package downloader

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"
)

const catalogUserAgent = "Mozilla/5.0 (X11; Linux x86_64; rv:128.0) Gecko/20100101 Firefox/128.0"

// Catalog performs rate-limited JSON requests against the platforms' public APIs.
type Catalog struct {
	client  *http.Client
	limiter *rate.Limiter

	// baseURLs replaces a platform's API root, keyed by platform name.
	baseURLs map[string]string
}

// NewCatalog creates a Catalog allowing requestsPerMinute requests across all platforms.
func NewCatalog(requestsPerMinute int, client *http.Client) *Catalog {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	if requestsPerMinute <= 0 {
		requestsPerMinute = 60
	}
	burst := requestsPerMinute / 10
	if burst < 1 {
		burst = 1
	}
	return &Catalog{
		client:   client,
		limiter:  rate.NewLimiter(rate.Every(time.Minute/time.Duration(requestsPerMinute)), burst),
		baseURLs: make(map[string]string),
	}
}

func (c *Catalog) base(platform, def string) string {
	if override, ok := c.baseURLs[platform]; ok {
		return override
	}
	return def
}

// getJSON waits for the limiter, performs a GET and decodes the body into out.
func (c *Catalog) getJSON(ctx context.Context, endpoint string, query url.Values, header http.Header, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return NewDownloadErrorWithCause(ErrorCancelled, "search cancelled", ctx.Err())
		}
		return NewDownloadErrorWithCause(ErrorTransientNetwork, "rate limiter wait failed", err)
	}

	target := endpoint
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return NewDownloadErrorWithCause(ErrorUnknown, "failed to create request", err)
	}
	req.Header.Set("User-Agent", catalogUserAgent)
	req.Header.Set("Accept", "application/json")
	for key, values := range header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return NewDownloadErrorWithCause(ErrorCancelled, "search cancelled", ctx.Err())
		}
		return NewDownloadErrorWithCause(ErrorTransientNetwork, "catalog request failed", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return NewDownloadError(ErrorAuthenticationFailed, fmt.Sprintf("catalog rejected credentials (status %d)", resp.StatusCode))
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return NewDownloadError(ErrorTransientNetwork, fmt.Sprintf("catalog unavailable (status %d)", resp.StatusCode))
	case resp.StatusCode != http.StatusOK:
		return NewDownloadError(ErrorUnknown, fmt.Sprintf("catalog returned status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return NewDownloadErrorWithCause(ErrorTransientNetwork, "failed to read catalog response", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return NewDownloadErrorWithCause(ErrorUnknown, "failed to decode catalog response", err)
	}
	return nil
}
