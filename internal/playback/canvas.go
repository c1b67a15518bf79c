package playback

import (
	"image"

	"github.com/rviscarra/webrtc-video-wall/internal/raster"
)

// canvas owns the off-screen buffer of a session. The buffer is reused
// while its size is stable so stale cells keep their previous content.
type canvas struct {
	viewports []image.Point
	maxTile   int
	buf       *raster.Buffer
}

func newCanvas(viewports []image.Point) *canvas {
	return &canvas{viewports: viewports}
}

// size is primary viewport wide and tall enough for every viewport plus
// two rows of the tallest tile seen so far.
func (c *canvas) size() image.Point {
	h := 0
	for _, vp := range c.viewports {
		h += vp.Y
	}
	return image.Pt(c.viewports[0].X, h+2*c.maxTile)
}

// ensure grows the tile height bound from tiles and returns the buffer,
// reallocating it when its size changed.
func (c *canvas) ensure(tiles []*raster.Tile) *raster.Buffer {
	for _, t := range tiles {
		if t != nil && t.Height() > c.maxTile {
			c.maxTile = t.Height()
		}
	}
	want := c.size()
	if c.buf == nil || c.buf.Size() != want {
		c.buf = raster.New(want.X, want.Y)
	}
	return c.buf
}

// slices cuts one independent copy per viewport, stacked top to bottom.
func (c *canvas) slices() ([]*raster.Buffer, error) {
	out := make([]*raster.Buffer, 0, len(c.viewports))
	y := 0
	for _, vp := range c.viewports {
		w := min(vp.X, c.buf.Width())
		view, err := c.buf.Sub(image.Rect(0, y, w, y+vp.Y))
		if err != nil {
			return nil, err
		}
		out = append(out, view.Clone())
		y += vp.Y
	}
	return out, nil
}

func (c *canvas) reset() {
	c.buf = nil
	c.maxTile = 0
}
