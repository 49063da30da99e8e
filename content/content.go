// Package content loads the list of grid items from the content API.
package content

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/ShoshinNikita/rgrid/pkg/metrics"
	"github.com/ShoshinNikita/rgrid/pkg/rlog"
	"github.com/ShoshinNikita/rgrid/rgrid"
)

const bodyPrefixSize = 50

type Client struct {
	httpClient *http.Client
	endpoint   string
	limit      int
}

func NewClient(httpClient *http.Client, endpoint string, limit int) *Client {
	return &Client{
		httpClient: httpClient,
		endpoint:   endpoint,
		limit:      limit,
	}
}

// FetchItems loads the record list and converts it to grid items. Index of every item
// is the position of its record in the response. All errors are [*rgrid.ListFetchError].
func (c *Client) FetchItems(ctx context.Context) (items []rgrid.GridItem, err error) {
	now := time.Now()
	defer func() {
		if err != nil {
			metrics.ContentListErrors.Inc()
			err = &rgrid.ListFetchError{Endpoint: c.endpoint, Err: err}
			return
		}

		dur := time.Since(now)
		metrics.ContentListResponseTime.Observe(dur.Seconds())
		metrics.ContentListItems.Set(float64(len(items)))
		rlog.Debugf("%d items were loaded in %s", len(items), dur)
	}()

	endpoint, err := c.buildURL()
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("couldn't prepare request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		bodyPrefix := make([]byte, bodyPrefixSize)
		n, _ := io.ReadFull(resp.Body, bodyPrefix)
		bodyPrefix = bodyPrefix[:n]

		return nil, &rgrid.FetchError{
			URL:        endpoint,
			StatusCode: resp.StatusCode,
			BodyPrefix: string(bodyPrefix),
		}
	}

	var records []rgrid.Record
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		return nil, fmt.Errorf("couldn't decode response: %w", err)
	}

	return convertRecords(records), nil
}

func (c *Client) buildURL() (string, error) {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid endpoint: %w", err)
	}
	if !u.IsAbs() {
		return "", fmt.Errorf("endpoint must be an absolute url")
	}

	if c.limit > 0 {
		query := u.Query()
		query.Set("limit", strconv.Itoa(c.limit))
		u.RawQuery = query.Encode()
	}
	return u.String(), nil
}

func convertRecords(records []rgrid.Record) []rgrid.GridItem {
	items := make([]rgrid.GridItem, 0, len(records))
	for i, record := range records {
		items = append(items, rgrid.GridItem{
			Index:       i,
			URL:         record.Thumbnail.ImageURL(),
			ID:          record.ID,
			Title:       norm.NFC.String(strings.TrimSpace(record.Title)),
			Language:    record.Language,
			AspectRatio: record.Thumbnail.AspectRatio,
		})
	}
	return items
}

// Filter returns items with titles that contain the query. Comparison is case-insensitive.
// Items keep their original indexes.
func Filter(items []rgrid.GridItem, query string) []rgrid.GridItem {
	query = strings.TrimSpace(query)
	if query == "" {
		return items
	}

	caser := cases.Fold()
	query = caser.String(norm.NFC.String(query))

	res := make([]rgrid.GridItem, 0, len(items))
	for _, item := range items {
		if strings.Contains(caser.String(item.Title), query) {
			res = append(res, item)
		}
	}
	return res
}
