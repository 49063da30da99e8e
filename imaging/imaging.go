// Package imaging contains the transformations applied to images before caching.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/gif" // register decoder
	"image/jpeg"
	_ "image/png" // register decoder
	"sync"

	_ "golang.org/x/image/webp" // register decoder

	"github.com/ShoshinNikita/rgrid/rgrid"
)

const jpegQuality = 100

var ErrUnsupportedImageFormat = errors.New("unsupported image format")

// CenterCrop returns the centered square part of the image with side min(width, height).
// The image is never resampled. Square and empty images are returned as is.
func CenterCrop(img image.Image) image.Image {
	if img == nil {
		return nil
	}

	rect, shouldCrop := centerSquare(img.Bounds())
	if !shouldCrop {
		return img
	}

	if sub, ok := img.(interface {
		SubImage(r image.Rectangle) image.Image
	}); ok {
		return sub.SubImage(rect)
	}

	dst := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	draw.Draw(dst, dst.Bounds(), img, rect.Min, draw.Src)
	return dst
}

// Compact copies the image into a new RGBA image with bounds starting at (0, 0).
// The result doesn't share pixels with the source.
func Compact(img image.Image) image.Image {
	if img == nil {
		return nil
	}

	bounds := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(dst, dst.Bounds(), img, bounds.Min, draw.Src)
	return dst
}

// centerSquare returns the rectangle to crop. It returns shouldCrop = false if
// the image is already a square or empty.
func centerSquare(bounds image.Rectangle) (rect image.Rectangle, shouldCrop bool) {
	width := bounds.Dx()
	height := bounds.Dy()

	if width == height || width <= 0 || height <= 0 {
		return bounds, false
	}

	side := min(width, height)
	offset := image.Point{
		X: (width - side) / 2,
		Y: (height - side) / 2,
	}
	minPoint := bounds.Min.Add(offset)

	return image.Rectangle{
		Min: minPoint,
		Max: minPoint.Add(image.Point{X: side, Y: side}),
	}, true
}

// Decode decodes JPEG, PNG, GIF and WebP images.
func Decode(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		if errors.Is(err, image.ErrFormat) {
			return nil, ErrUnsupportedImageFormat
		}
		return nil, fmt.Errorf("couldn't decode image: %w", err)
	}
	return img, nil
}

// EncodeJPEG encodes the image as JPEG with the maximum quality.
func EncodeJPEG(img image.Image) ([]byte, error) {
	if img == nil {
		return nil, errors.New("nil image")
	}

	buf := bytes.NewBuffer(nil)
	err := jpeg.Encode(buf, img, &jpeg.Options{Quality: jpegQuality})
	if err != nil {
		return nil, fmt.Errorf("couldn't encode image: %w", err)
	}
	return buf.Bytes(), nil
}

const placeholderSize = 64

var (
	placeholderColor = color.RGBA{R: 0xdd, G: 0xdd, B: 0xdd, A: 0xff}

	placeholderOnce sync.Once
	placeholder     rgrid.Image
)

// Placeholder returns the image used instead of images that couldn't be fetched or decoded.
// Every call returns a new *rgrid.Image that shares the bitmap and encoded data, they must not be modified.
func Placeholder() *rgrid.Image {
	placeholderOnce.Do(func() {
		img := image.NewRGBA(image.Rect(0, 0, placeholderSize, placeholderSize))
		draw.Draw(img, img.Bounds(), &image.Uniform{C: placeholderColor}, image.Point{}, draw.Src)

		data, err := EncodeJPEG(img)
		if err != nil {
			panic(fmt.Sprintf("couldn't encode placeholder: %s", err))
		}

		placeholder = rgrid.Image{
			Key:         "placeholder",
			Image:       img,
			Data:        data,
			Placeholder: true,
		}
	})

	res := placeholder
	return &res
}
