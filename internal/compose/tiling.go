// Package compose packs decoded tiles into the off-screen canvas.
package compose

import (
	"image"

	"github.com/rviscarra/webrtc-video-wall/internal/raster"
)

// Strategy writes one tick's tiles into the canvas.
type Strategy interface {
	Compose(canvas *raster.Buffer, tiles []*raster.Tile) error
}

// Selection decides which tile goes into each cell.
type Selection int

const (
	// Single reuses the first available tile for every cell.
	Single Selection = iota
	// Circular walks the tiles in order, wrapping after the last one.
	Circular
)

func (s Selection) String() string {
	if s == Single {
		return "single"
	}
	return "circular"
}

// Tiling packs tiles row by row, carrying the part of a tile that does not
// fit at the end of a row into the start of the next row.
type Tiling struct {
	Selection Selection
}

// Compose implements Strategy.
func (t Tiling) Compose(canvas *raster.Buffer, tiles []*raster.Tile) error {
	return Pack(canvas, tiles, t.Selection)
}

// Pack lays tiles into canvas. Rows advance by the height of the first
// available tile and stop before canvasHeight - 2*rowHeight, leaving the
// margin rows for wraparound spill. Nil tiles are skipped; when every tile
// is nil the canvas is left untouched.
func Pack(canvas *raster.Buffer, tiles []*raster.Tile, sel Selection) error {
	next, first := newSelector(tiles, sel)
	if first == nil {
		return nil
	}

	cw, ch := canvas.Width(), canvas.Height()
	rowHeight := first.Height()
	if rowHeight == 0 || cw == 0 {
		return nil
	}

	startX := 0
	for y := 0; y < ch-rowHeight*2; y += rowHeight {
		for x := startX; x < cw; {
			tile := next()
			tw, th := tile.Width(), tile.Height()
			if tw == 0 {
				// nothing to place, and x would never advance
				break
			}

			copyW := min(tw, cw-x)
			copyH := min(th, ch-y)
			err := raster.Copy(canvas, image.Pt(x, y), tile, image.Rect(0, 0, copyW, copyH))
			if err != nil {
				return err
			}

			wrapW := tw - copyW
			if wrapW > 0 {
				if err := wrap(canvas, tile, copyW, y+rowHeight); err != nil {
					return err
				}
			}

			x += copyW
			startX = x
			if startX >= cw {
				startX = wrapW
				if startX >= cw {
					startX = 0
				}
			}
		}
	}
	return nil
}

// wrap copies the columns of tile starting at fromX into the left edge of
// the row at y, when that row lies inside the canvas.
func wrap(canvas *raster.Buffer, tile *raster.Tile, fromX, y int) error {
	cw, ch := canvas.Width(), canvas.Height()
	if y >= ch {
		return nil
	}
	w := min(tile.Width()-fromX, cw)
	h := min(tile.Height(), ch-y)
	return raster.Copy(canvas, image.Pt(0, y), tile, image.Rect(fromX, 0, fromX+w, h))
}

// newSelector returns a function yielding the tile for the next cell and
// the tile that defines the row height (nil when there is none).
func newSelector(tiles []*raster.Tile, sel Selection) (func() *raster.Tile, *raster.Tile) {
	var first *raster.Tile
	for _, t := range tiles {
		if t != nil {
			first = t
			break
		}
	}
	if first == nil {
		return nil, nil
	}
	if sel == Single {
		return func() *raster.Tile { return first }, first
	}

	i := 0
	return func() *raster.Tile {
		for {
			t := tiles[i]
			i = (i + 1) % len(tiles)
			if t != nil {
				return t
			}
		}
	}, first
}
