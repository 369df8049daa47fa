package attachments

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// ThumbnailMaxSide bounds the longer edge of generated thumbnails.
const ThumbnailMaxSide = 320

// Thumbnail decodes an image and returns a jpeg no larger than maxSide on either edge.
// Images already within bounds are re-encoded as-is.
func Thumbnail(data []byte, maxSide int) ([]byte, error) {
	if maxSide <= 0 {
		maxSide = ThumbnailMaxSide
	}
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("image has empty bounds")
	}
	tw, th := w, h
	if w > maxSide || h > maxSide {
		if w >= h {
			tw = maxSide
			th = max(1, h*maxSide/w)
		} else {
			th = maxSide
			tw = max(1, w*maxSide/h)
		}
	}
	dst := image.NewRGBA(image.Rect(0, 0, tw, th))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)

	var out bytes.Buffer
	if err := jpeg.Encode(&out, dst, &jpeg.Options{Quality: 80}); err != nil {
		return nil, fmt.Errorf("encode thumbnail: %w", err)
	}
	return out.Bytes(), nil
}
