package rgrid

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRecord_Unmarshal(t *testing.T) {
	t.Parallel()

	r := require.New(t)

	const data = `{
		"id": "b7c2",
		"title": "Interview",
		"language": "english",
		"thumbnail": {
			"id": "t-1",
			"version": 2,
			"domain": "https://cimg.acharyaprashant.org",
			"basePath": "images/img-1",
			"key": "image.jpg",
			"qualities": [10, 20, 30],
			"aspectRatio": 1.7778
		}
	}`

	var rec Record
	r.NoError(json.Unmarshal([]byte(data), &rec))
	r.Equal("b7c2", rec.ID)
	r.Equal([]int{10, 20, 30}, rec.Thumbnail.Qualities)
	r.InDelta(1.7778, rec.Thumbnail.AspectRatio, 1e-9)
	r.Equal("https://cimg.acharyaprashant.org/images/img-1/0/image.jpg", rec.Thumbnail.ImageURL())
}
