package web

import (
	"strconv"

	"github.com/ShoshinNikita/rgrid/rgrid"
)

// Service response.
type (
	GridPage struct {
		rgrid.BuildInfo `json:"-"`

		Query string `json:"query"`
		Items []Item `json:"items"`
	}

	Item struct {
		Index       int     `json:"index"`
		ID          string  `json:"id"`
		Title       string  `json:"title"`
		Language    string  `json:"language"`
		AspectRatio float64 `json:"aspect_ratio"`
		// ImageURL is the url of the cropped image served by rgrid.
		ImageURL string `json:"image_url"`
		// OriginalURL is the url of the image on the upstream server.
		OriginalURL string `json:"original_url"`
	}

	RefreshResponse struct {
		ItemsCount int `json:"items_count"`
	}
)

func convertItems(items []rgrid.GridItem) []Item {
	// Always encode items as a slice.
	res := make([]Item, 0, len(items))
	for _, item := range items {
		res = append(res, Item{
			Index:       item.Index,
			ID:          item.ID,
			Title:       item.Title,
			Language:    item.Language,
			AspectRatio: item.AspectRatio,
			ImageURL:    "/api/images/" + strconv.Itoa(item.Index),
			OriginalURL: item.URL,
		})
	}
	return res
}
