package fetcher

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/ShoshinNikita/rgrid/rgrid"
	"github.com/stretchr/testify/require"
)

func TestFetcher(t *testing.T) {
	t.Parallel()

	var requests atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)

		switch r.URL.Path {
		case "/image.jpg":
			w.Write([]byte("image content"))
		case "/empty.jpg":
			w.WriteHeader(http.StatusOK)
		case "/large.jpg":
			w.Write([]byte(strings.Repeat("a", 100)))
		case "/broken.jpg":
			http.Error(w, "internal error: "+strings.Repeat("x", 100), http.StatusInternalServerError)
		default:
			http.Error(w, "not found", http.StatusNotFound)
		}
	}))
	t.Cleanup(server.Close)

	fetcher := NewFetcher(64)

	t.Run("success", func(t *testing.T) {
		r := require.New(t)

		data, err := fetcher.Fetch(t.Context(), server.URL+"/image.jpg")
		r.NoError(err)
		r.Equal("image content", string(data))
	})

	t.Run("not found", func(t *testing.T) {
		r := require.New(t)

		_, err := fetcher.Fetch(t.Context(), server.URL+"/missing.jpg")
		r.Error(err)
		r.True(rgrid.IsNotFoundError(err))

		var fetchErr *rgrid.FetchError
		r.True(errors.As(err, &fetchErr))
		r.Equal(server.URL+"/missing.jpg", fetchErr.URL)
		r.Equal("not found\n", fetchErr.BodyPrefix)
	})

	t.Run("server error", func(t *testing.T) {
		r := require.New(t)

		before := requests.Load()

		_, err := fetcher.Fetch(t.Context(), server.URL+"/broken.jpg")
		r.Error(err)
		r.False(rgrid.IsNotFoundError(err))

		var fetchErr *rgrid.FetchError
		r.True(errors.As(err, &fetchErr))
		r.Equal(http.StatusInternalServerError, fetchErr.StatusCode)
		r.Len(fetchErr.BodyPrefix, bodyPrefixSize)

		// No retries.
		r.Equal(before+1, requests.Load())
	})

	t.Run("empty body", func(t *testing.T) {
		_, err := fetcher.Fetch(t.Context(), server.URL+"/empty.jpg")
		require.ErrorIs(t, err, rgrid.ErrEmptyBody)
	})

	t.Run("too large", func(t *testing.T) {
		r := require.New(t)

		_, err := fetcher.Fetch(t.Context(), server.URL+"/large.jpg")
		r.ErrorContains(err, "larger than 64 bytes")

		data, err := NewFetcher(0).Fetch(t.Context(), server.URL+"/large.jpg")
		r.NoError(err)
		r.Len(data, 100)
	})

	t.Run("invalid url", func(t *testing.T) {
		_, err := fetcher.Fetch(t.Context(), "://invalid")
		require.Error(t, err)
	})
}

func TestFetcher_TransportFailure(t *testing.T) {
	t.Parallel()

	r := require.New(t)

	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL + "/image.jpg"
	server.Close()

	_, err := NewFetcher(0).Fetch(t.Context(), url)
	r.ErrorContains(err, "request failed")

	var fetchErr *rgrid.FetchError
	r.False(errors.As(err, &fetchErr))
}
