package thumbnail

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"  // register GIF decoder
	_ "image/jpeg" // register JPEG decoder
	_ "image/png"  // register PNG decoder
	"io"
	"math"
	"os"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"github.com/rwcarlsen/goexif/exif"
	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
	_ "golang.org/x/image/bmp"  // register BMP decoder
	_ "golang.org/x/image/tiff" // register TIFF decoder
)

// scaleDimensions shrinks w x h, preserving aspect ratio, so that the area
// fits within target pixels. Images already within budget are unchanged.
func scaleDimensions(w, h int, target float64) (int, int) {
	area := float64(w) * float64(h)
	if area <= target || area == 0 {
		return w, h
	}
	return fitDimensions(float64(w), float64(h), target)
}

// fitDimensions scales w x h up or down so its area is about target pixels.
func fitDimensions(w, h, target float64) (int, int) {
	sf := math.Sqrt(target / (w * h))
	sw := int(math.Round(w * sf))
	sh := int(math.Round(h * sf))
	return max(sw, 1), max(sh, 1)
}

func decodeRaster(r io.Reader) (image.Image, error) {
	img, err := imaging.Decode(r)
	if err != nil {
		return nil, err
	}
	return img, nil
}

// renderSVG rasterizes an SVG at the size whose area matches TargetPixels.
func renderSVG(r io.Reader) (image.Image, error) {
	icon, err := oksvg.ReadIconStream(r)
	if err != nil {
		return nil, err
	}
	if icon.ViewBox.W <= 0 || icon.ViewBox.H <= 0 {
		return nil, fmt.Errorf("svg has empty view box")
	}

	w, h := fitDimensions(icon.ViewBox.W, icon.ViewBox.H, TargetPixels)
	icon.SetTarget(0, 0, float64(w), float64(h))

	canvas := image.NewRGBA(image.Rect(0, 0, w, h))
	scanner := rasterx.NewScannerGV(w, h, canvas, canvas.Bounds())
	icon.Draw(rasterx.NewDasher(w, h, scanner), 1)
	return canvas, nil
}

func resize(img image.Image) image.Image {
	b := img.Bounds()
	w, h := scaleDimensions(b.Dx(), b.Dy(), TargetPixels)
	if w == b.Dx() && h == b.Dy() {
		return img
	}
	return imaging.Resize(img, w, h, imaging.Linear)
}

// readOrientation returns the EXIF orientation of the file at path, or 1
// when there is none.
func readOrientation(path string) int {
	f, err := os.Open(path)
	if err != nil {
		return 1
	}
	defer f.Close()

	x, err := exif.Decode(f)
	if err != nil {
		return 1
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return 1
	}
	o, err := tag.Int(0)
	if err != nil || o < 1 || o > 8 {
		return 1
	}
	return o
}

// orient applies an EXIF orientation so the image displays upright.
func orient(img image.Image, orientation int) image.Image {
	switch orientation {
	case 2:
		return imaging.FlipH(img)
	case 3:
		return imaging.Rotate180(img)
	case 4:
		return imaging.FlipV(img)
	case 5:
		return imaging.Transpose(img)
	case 6:
		return imaging.Rotate270(img)
	case 7:
		return imaging.Transverse(img)
	case 8:
		return imaging.Rotate90(img)
	default:
		return img
	}
}

func encodeWebP(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := webp.Encode(&buf, img, &webp.Options{Quality: TargetQuality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
