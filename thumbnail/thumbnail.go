// Package thumbnail captures, prepares and selects the image shown to users when relocalizing
// against a saved map.
package thumbnail

import (
	"bytes"
	"image"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
)

// Prepare scales img to a third of its width and turns it a quarter clockwise so a landscape
// camera image displays upright in portrait.
func Prepare(img image.Image) *image.NRGBA {
	width := img.Bounds().Dx() / 3
	if width < 1 {
		width = 1
	}
	return imaging.Rotate270(imaging.Resize(img, width, 0, imaging.Linear))
}

// EncodePNG encodes img as PNG.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, errors.Wrap(err, "encoding thumbnail")
	}
	return buf.Bytes(), nil
}

// DecodePNG decodes a thumbnail produced by EncodePNG.
func DecodePNG(data []byte) (image.Image, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(err, "decoding thumbnail")
	}
	return img, nil
}
