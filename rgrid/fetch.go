package rgrid

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

var ErrEmptyBody = errors.New("empty response body")

type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// FetchError is returned for responses with non-2xx status codes.
type FetchError struct {
	URL        string
	StatusCode int
	BodyPrefix string
}

func (err *FetchError) Error() string {
	return fmt.Sprintf("unexpected response for %q: status code: %d, body prefix: %q", err.URL, err.StatusCode, err.BodyPrefix)
}

func IsNotFoundError(err error) bool {
	var fetchErr *FetchError
	return errors.As(err, &fetchErr) && fetchErr.StatusCode == http.StatusNotFound
}

// ListFetchError wraps any error that occurred during loading of the item list.
type ListFetchError struct {
	Endpoint string
	Err      error
}

func (err *ListFetchError) Error() string {
	return fmt.Sprintf("couldn't fetch item list from %q: %s", err.Endpoint, err.Err)
}

func (err *ListFetchError) Unwrap() error {
	return err.Err
}
