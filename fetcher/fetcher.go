// Package fetcher downloads raw image bytes.
package fetcher

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/ShoshinNikita/rgrid/pkg/metrics"
	"github.com/ShoshinNikita/rgrid/pkg/misc"
	"github.com/ShoshinNikita/rgrid/pkg/rlog"
	"github.com/ShoshinNikita/rgrid/rgrid"
)

const bodyPrefixSize = 50

// Fetcher performs a single GET request per image. It doesn't retry failed requests.
type Fetcher struct {
	httpClient  *http.Client
	maxBodySize int64
}

var _ rgrid.Fetcher = (*Fetcher)(nil)

// NewFetcher returns a new Fetcher. Responses larger than maxBodySize are rejected,
// maxBodySize <= 0 disables the limit.
func NewFetcher(maxBodySize int64) *Fetcher {
	return &Fetcher{
		httpClient:  NewHTTPClient(),
		maxBodySize: maxBodySize,
	}
}

// NewHTTPClient returns a client for upstream requests. It has no overall timeout:
// requests are bounded by their contexts and the transport timeouts.
func NewHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           (&net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   32,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}
}

func (f *Fetcher) Fetch(ctx context.Context, url string) (data []byte, err error) {
	now := time.Now()
	defer func() {
		if err != nil {
			metrics.FetchErrors.Inc()
			return
		}

		dur := time.Since(now)
		metrics.FetchResponseTime.Observe(dur.Seconds())
		metrics.FetchedImageSizes.Observe(float64(len(data)))
		rlog.Debugf("image %q (%s) was fetched in %s", url, misc.FormatFileSize(int64(len(data))), dur)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("couldn't prepare request: %w", err)
	}
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		bodyPrefix := make([]byte, bodyPrefixSize)
		n, _ := io.ReadFull(resp.Body, bodyPrefix)
		bodyPrefix = bodyPrefix[:n]

		return nil, &rgrid.FetchError{
			URL:        url,
			StatusCode: resp.StatusCode,
			BodyPrefix: string(bodyPrefix),
		}
	}

	var body io.Reader = resp.Body
	if f.maxBodySize > 0 {
		// Read one more byte to detect too large responses.
		body = io.LimitReader(resp.Body, f.maxBodySize+1)
	}
	data, err = io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("couldn't read response body: %w", err)
	}
	if f.maxBodySize > 0 && int64(len(data)) > f.maxBodySize {
		return nil, fmt.Errorf("response body is larger than %d bytes", f.maxBodySize)
	}
	if len(data) == 0 {
		return nil, rgrid.ErrEmptyBody
	}

	return data, nil
}
