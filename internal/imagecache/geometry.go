package imagecache

import (
	"image"
	"math"

	"github.com/conneroisu/charoster/internal/interfaces"
)

// AutoCrop returns the crop rectangle for a w x h source at the given
// width/height ratio. The full width is kept when the resulting height fits;
// otherwise the full height is kept and the rectangle is centred horizontally.
func AutoCrop(w, h int, ratio float64) image.Rectangle {
	if ratio <= 0 || w <= 0 || h <= 0 {
		return image.Rect(0, 0, w, h)
	}

	height := int(math.Round(float64(w) / ratio))
	if height <= h {
		return image.Rect(0, 0, w, max(height, 1))
	}

	width := int(math.Round(float64(h) * ratio))
	x := (w - width) / 2
	return image.Rect(x, 0, x+max(width, 1), h)
}

// Padding returns how far rect extends past bounds on each edge
func Padding(rect, bounds image.Rectangle) interfaces.Padding {
	return interfaces.Padding{
		Top:    max(0, bounds.Min.Y-rect.Min.Y),
		Right:  max(0, rect.Max.X-bounds.Max.X),
		Bottom: max(0, rect.Max.Y-bounds.Max.Y),
		Left:   max(0, bounds.Min.X-rect.Min.X),
	}
}

// explicitCrop reads {x, y, width, height} crop data for size from the first
// record that has it.
func explicitCrop(size string, records ...map[string]interface{}) (image.Rectangle, bool) {
	for _, record := range records {
		sizes, ok := record["sizes"].(map[string]interface{})
		if !ok {
			continue
		}
		crop, ok := sizes[size].(map[string]interface{})
		if !ok {
			continue
		}
		x, _ := number(crop["x"])
		y, _ := number(crop["y"])
		w, okW := number(crop["width"])
		h, okH := number(crop["height"])
		if !okW || !okH || w <= 0 || h <= 0 {
			continue
		}
		return image.Rect(x, y, x+w, y+h), true
	}
	return image.Rectangle{}, false
}

func number(v interface{}) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(math.Round(n)), true
	case int:
		return n, true
	default:
		return 0, false
	}
}
