package rgrid

import "strings"

// Record is a single entry of the media coverage list.
type Record struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Language  string    `json:"language"`
	Thumbnail Thumbnail `json:"thumbnail"`
}

type Thumbnail struct {
	ID          string  `json:"id"`
	Version     int     `json:"version"`
	Domain      string  `json:"domain"`
	BasePath    string  `json:"basePath"`
	Key         string  `json:"key"`
	Qualities   []int   `json:"qualities"`
	AspectRatio float64 `json:"aspectRatio"`
}

// ImageURL returns the url of the thumbnail image: '<domain>/<basePath>/0/<key>'.
func (t Thumbnail) ImageURL() string {
	return strings.Join([]string{t.Domain, t.BasePath, "0", t.Key}, "/")
}

// GridItem is an image slot of the grid. Index is the position of the record in the
// upstream list, items of one list never share an index.
type GridItem struct {
	Index int
	URL   string

	ID          string
	Title       string
	Language    string
	AspectRatio float64
}

func (item GridItem) CacheKey() CacheKey {
	return NewCacheKey(item.URL, item.Index)
}
