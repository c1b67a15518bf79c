// Package raster provides origin-based RGBA buffers and bounds-checked region
// copies used by the compositors.
package raster

import (
	"image"
	"image/color"
	"image/draw"

	"github.com/pkg/errors"
)

// ErrOutOfBounds is returned when a region does not lie inside its buffer.
var ErrOutOfBounds = errors.New("region exceeds buffer bounds")

// Buffer is an RGBA raster whose bounds always start at (0, 0).
type Buffer struct {
	img *image.RGBA
}

// Tile is a single decoded frame, owned by whoever pulled it.
type Tile = Buffer

// New allocates a zeroed (transparent black) buffer.
func New(width, height int) *Buffer {
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}
	return &Buffer{img: image.NewRGBA(image.Rect(0, 0, width, height))}
}

// Wrap adopts img without copying when it is already origin based,
// otherwise its pixels are copied into a new buffer.
func Wrap(img *image.RGBA) *Buffer {
	if img.Rect.Min == (image.Point{}) {
		return &Buffer{img: img}
	}
	return FromImage(img)
}

// FromImage converts any image (YCbCr frames from the decoder, mostly)
// into a new RGBA buffer.
func FromImage(src image.Image) *Buffer {
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Rect, src, b.Min, draw.Src)
	return &Buffer{img: dst}
}

// Width of the buffer in pixels.
func (b *Buffer) Width() int {
	return b.img.Rect.Dx()
}

// Height of the buffer in pixels.
func (b *Buffer) Height() int {
	return b.img.Rect.Dy()
}

// Size returns the buffer dimensions as a point.
func (b *Buffer) Size() image.Point {
	return b.img.Rect.Size()
}

// Bounds is always image.Rect(0, 0, Width, Height).
func (b *Buffer) Bounds() image.Rectangle {
	return b.img.Rect
}

// Image exposes the underlying RGBA image. Writes through it bypass the
// bounds checks of this package.
func (b *Buffer) Image() *image.RGBA {
	return b.img
}

// At returns the pixel at (x, y), or the zero color outside the buffer.
func (b *Buffer) At(x, y int) color.RGBA {
	return b.img.RGBAAt(x, y)
}

// Contains reports whether r lies inside the buffer. Empty rectangles are
// contained only when their origin is inside or on the buffer edge.
func (b *Buffer) Contains(r image.Rectangle) bool {
	if r.Min.X < 0 || r.Min.Y < 0 || r.Max.X < r.Min.X || r.Max.Y < r.Min.Y {
		return false
	}
	return r.Max.X <= b.Width() && r.Max.Y <= b.Height()
}

// Sub returns a view sharing pixels with b, rebased so the view's bounds
// start at (0, 0). The region must lie inside b.
func (b *Buffer) Sub(r image.Rectangle) (*Buffer, error) {
	if !b.Contains(r) {
		return nil, errors.Wrapf(ErrOutOfBounds, "sub %v of %v", r, b.Bounds())
	}
	if r.Empty() {
		return New(0, 0), nil
	}
	start := b.img.PixOffset(r.Min.X, r.Min.Y)
	end := b.img.PixOffset(r.Max.X-1, r.Max.Y-1) + 4
	return &Buffer{img: &image.RGBA{
		Pix:    b.img.Pix[start:end:end],
		Stride: b.img.Stride,
		Rect:   image.Rect(0, 0, r.Dx(), r.Dy()),
	}}, nil
}

// Clone returns a tightly packed copy that shares nothing with b.
func (b *Buffer) Clone() *Buffer {
	dst := New(b.Width(), b.Height())
	rowLen := b.Width() * 4
	for y := 0; y < b.Height(); y++ {
		so := y * b.img.Stride
		do := y * dst.img.Stride
		copy(dst.img.Pix[do:do+rowLen], b.img.Pix[so:so+rowLen])
	}
	return dst
}

// Fill paints r with c. The region must lie inside b.
func (b *Buffer) Fill(r image.Rectangle, c color.RGBA) error {
	if !b.Contains(r) {
		return errors.Wrapf(ErrOutOfBounds, "fill %v of %v", r, b.Bounds())
	}
	for y := r.Min.Y; y < r.Max.Y; y++ {
		o := b.img.PixOffset(r.Min.X, y)
		for x := r.Min.X; x < r.Max.X; x++ {
			b.img.Pix[o+0] = c.R
			b.img.Pix[o+1] = c.G
			b.img.Pix[o+2] = c.B
			b.img.Pix[o+3] = c.A
			o += 4
		}
	}
	return nil
}

// Copy copies the from region of src into dst with its top-left corner at
// at. Both the source region and the destination region must lie inside
// their buffers; nothing is clamped.
func Copy(dst *Buffer, at image.Point, src *Buffer, from image.Rectangle) error {
	if !src.Contains(from) {
		return errors.Wrapf(ErrOutOfBounds, "source %v of %v", from, src.Bounds())
	}
	to := from.Sub(from.Min).Add(at)
	if !dst.Contains(to) {
		return errors.Wrapf(ErrOutOfBounds, "destination %v of %v", to, dst.Bounds())
	}
	if from.Empty() {
		return nil
	}
	rowLen := from.Dx() * 4
	for y := 0; y < from.Dy(); y++ {
		so := src.img.PixOffset(from.Min.X, from.Min.Y+y)
		do := dst.img.PixOffset(to.Min.X, to.Min.Y+y)
		copy(dst.img.Pix[do:do+rowLen], src.img.Pix[so:so+rowLen])
	}
	return nil
}
