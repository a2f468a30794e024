package capture

import (
	"image"
	"io"
	"math"

	"github.com/disintegration/imaging"

	"github.com/cjeanneret/camctl/internal/hw/camera"
)

// DefaultJPEGQuality is used when encoding captured images.
const DefaultJPEGQuality = 92

// CropToRatio trims img vertically to width/height = ratio, centered:
// targetHeight = w / ratio, offset = max(0, (h − targetHeight) / 2).
// When the crop is infeasible (the target is taller than the source, or the
// buffer is empty) the original image is returned unchanged. The boolean
// reports whether pixels were trimmed.
func CropToRatio(img image.Image, ratio float64) (image.Image, bool) {
	if img == nil || ratio <= 0 || math.IsNaN(ratio) || math.IsInf(ratio, 0) {
		return img, false
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= 0 || h <= 0 {
		return img, false
	}

	targetHeight := int(math.Round(float64(w) / ratio))
	if targetHeight > h || targetHeight <= 0 {
		return img, false
	}
	if targetHeight == h {
		return img, false
	}
	offset := (h - targetHeight) / 2

	rect := image.Rect(b.Min.X, b.Min.Y+offset, b.Max.X, b.Min.Y+offset+targetHeight)
	return imaging.Crop(img, rect), true
}

// Upright rotates or flips a sensor buffer so it displays upright.
func Upright(img image.Image, o camera.Orientation) image.Image {
	if img == nil {
		return nil
	}
	switch o {
	case camera.OrientationDown:
		return imaging.Rotate180(img)
	case camera.OrientationLeft:
		return imaging.Rotate90(img)
	case camera.OrientationRight:
		return imaging.Rotate270(img)
	case camera.OrientationUpMirrored:
		return imaging.FlipH(img)
	case camera.OrientationDownMirrored:
		return imaging.FlipV(img)
	case camera.OrientationLeftMirrored:
		return imaging.Transpose(img)
	case camera.OrientationRightMirrored:
		return imaging.Transverse(img)
	default:
		return img
	}
}

// EncodeJPEG writes img as a JPEG.
func EncodeJPEG(w io.Writer, img image.Image, quality int) error {
	if quality <= 0 || quality > 100 {
		quality = DefaultJPEGQuality
	}
	return imaging.Encode(w, img, imaging.JPEG, imaging.JPEGQuality(quality))
}
