package imagecache

import (
	"bytes"
	"fmt"
	"image"
	"image/png"

	// registered decoders for source assets
	_ "image/gif"
	_ "image/jpeg"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/conneroisu/charoster/internal/interfaces"
)

// RasterCodec is the default codec. Output is always PNG.
type RasterCodec struct {
	encoder png.Encoder
}

var _ interfaces.Codec = (*RasterCodec)(nil)

// NewRasterCodec creates the default codec
func NewRasterCodec() *RasterCodec {
	return &RasterCodec{encoder: png.Encoder{CompressionLevel: png.BestSpeed}}
}

// Decode decodes PNG, JPEG, GIF or WebP data
func (c *RasterCodec) Decode(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	return img, err
}

// Extend adds transparent padding around img
func (c *RasterCodec) Extend(img image.Image, pad interfaces.Padding) image.Image {
	if pad.IsZero() {
		return img
	}
	b := img.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx()+pad.Left+pad.Right, b.Dy()+pad.Top+pad.Bottom))
	draw.Draw(dst, image.Rect(pad.Left, pad.Top, pad.Left+b.Dx(), pad.Top+b.Dy()), img, b.Min, draw.Src)
	return dst
}

// Crop copies rect out of img. rect must lie inside the image.
func (c *RasterCodec) Crop(img image.Image, rect image.Rectangle) (image.Image, error) {
	b := img.Bounds()
	rect = rect.Add(b.Min)
	if rect.Empty() || !rect.In(b) {
		return nil, fmt.Errorf("crop %v outside image bounds %v", rect, b)
	}
	dst := image.NewNRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	draw.Draw(dst, dst.Bounds(), img, rect.Min, draw.Src)
	return dst, nil
}

// Resize scales img to width keeping its aspect ratio
func (c *RasterCodec) Resize(img image.Image, width int) image.Image {
	b := img.Bounds()
	if width <= 0 || b.Dx() == 0 {
		return img
	}
	height := max(1, b.Dy()*width/b.Dx())
	dst := image.NewNRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return dst
}

// Encode writes img as PNG
func (c *RasterCodec) Encode(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := c.encoder.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
