package thumbnail

import (
	"image"
	"image/color"
	"testing"

	"go.viam.com/test"
)

func halfRedHalfBlue(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.NRGBA{B: 255, A: 255}
			if x < w/2 {
				c = color.NRGBA{R: 255, A: 255}
			}
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func TestPrepare(t *testing.T) {
	out := Prepare(halfRedHalfBlue(300, 150))
	test.That(t, out.Bounds().Dx(), test.ShouldEqual, 50)
	test.That(t, out.Bounds().Dy(), test.ShouldEqual, 100)

	// a clockwise quarter turn moves the left half of the source to the top
	top := out.NRGBAAt(25, 5)
	bottom := out.NRGBAAt(25, 95)
	test.That(t, top.R, test.ShouldBeGreaterThan, 200)
	test.That(t, top.B, test.ShouldBeLessThan, 50)
	test.That(t, bottom.B, test.ShouldBeGreaterThan, 200)
	test.That(t, bottom.R, test.ShouldBeLessThan, 50)

	tiny := Prepare(image.NewNRGBA(image.Rect(0, 0, 2, 2)))
	test.That(t, tiny.Bounds().Dy(), test.ShouldEqual, 1)
}

func TestPNG(t *testing.T) {
	src := halfRedHalfBlue(8, 4)
	data, err := EncodePNG(src)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(data), test.ShouldBeGreaterThan, 0)

	img, err := DecodePNG(data)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, img.Bounds(), test.ShouldResemble, src.Bounds())
	r, _, b, _ := img.At(0, 0).RGBA()
	test.That(t, r, test.ShouldEqual, uint32(0xffff))
	test.That(t, b, test.ShouldEqual, uint32(0))

	_, err = DecodePNG([]byte("not a png"))
	test.That(t, err, test.ShouldNotBeNil)
}
