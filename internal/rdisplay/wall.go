package rdisplay

import (
	"context"
	"image"

	"github.com/nfnt/resize"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/rviscarra/webrtc-video-wall/internal/raster"
)

// SurfaceConfig places one surface
type SurfaceConfig struct {
	Kind   string
	Bounds image.Rectangle
}

// Wall is the set of surfaces the canvas is split across. It implements
// playback's Presenter: slices are marshalled onto the display thread.
type Wall struct {
	dispatcher *Dispatcher
	display    Service
	surfaces   []Surface
	log        zerolog.Logger
}

// NewWall creates an empty wall; display may be nil when no window
// surfaces are used.
func NewWall(d *Dispatcher, display Service, logger zerolog.Logger) *Wall {
	return &Wall{
		dispatcher: d,
		display:    display,
		log:        logger.With().Str("component", "wall").Logger(),
	}
}

// Open creates the configured surfaces on the display thread.
func (w *Wall) Open(ctx context.Context, configs []SurfaceConfig) error {
	if len(configs) == 0 || len(configs) > 2 {
		return errors.Errorf("a wall has one or two surfaces, got %d", len(configs))
	}
	return w.dispatcher.Invoke(ctx, func() error {
		for i, c := range configs {
			s, err := NewSurface(c.Kind, i, c.Bounds)
			if err != nil {
				w.closeSurfaces()
				return errors.Wrapf(err, "surface %d", i)
			}
			w.log.Info().Int("surface", i).Str("kind", c.Kind).Str("bounds", c.Bounds.String()).Msg("surface opened")
			w.surfaces = append(w.surfaces, s)
		}
		return nil
	})
}

// Viewports are the surface sizes, in surface order
func (w *Wall) Viewports() []image.Point {
	vps := make([]image.Point, len(w.surfaces))
	for i, s := range w.surfaces {
		vps[i] = s.Bounds().Size()
	}
	return vps
}

// Surfaces returns the open surfaces
func (w *Wall) Surfaces() []Surface {
	return w.surfaces
}

// Present shows slice i on surface i. Slices that do not match their
// surface's size are scaled to it.
func (w *Wall) Present(ctx context.Context, slices []*raster.Buffer) error {
	if len(slices) != len(w.surfaces) {
		return errors.Errorf("%d slices for %d surfaces", len(slices), len(w.surfaces))
	}
	frames := make([]*image.RGBA, len(slices))
	for i, s := range slices {
		frames[i] = fit(s.Image(), w.surfaces[i].Bounds().Size())
	}
	return w.dispatcher.Invoke(ctx, func() error {
		for i, s := range w.surfaces {
			if err := s.Show(frames[i]); err != nil {
				return errors.Wrapf(err, "show on surface %d", s.ID())
			}
		}
		return nil
	})
}

// CreateFrameGrabber streams surface ix to a remote viewer. Remote
// surfaces feed their frames directly, windows are captured from screen.
func (w *Wall) CreateFrameGrabber(ix int, fps int) (FrameGrabber, error) {
	if ix < 0 || ix >= len(w.surfaces) {
		return nil, errors.Errorf("no surface %d", ix)
	}
	switch s := w.surfaces[ix].(type) {
	case *RemoteSurface:
		return s.Grabber(fps), nil
	default:
		if w.display == nil {
			return nil, errors.Errorf("surface %d can't be captured", ix)
		}
		return w.display.CreateScreenGrabber(s.Bounds(), fps)
	}
}

// Close closes every surface on the display thread.
func (w *Wall) Close(ctx context.Context) error {
	return w.dispatcher.Invoke(ctx, func() error {
		return w.closeSurfaces()
	})
}

func (w *Wall) closeSurfaces() error {
	var first error
	for _, s := range w.surfaces {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	w.surfaces = nil
	return first
}

func fit(img *image.RGBA, size image.Point) *image.RGBA {
	if img.Bounds().Size() == size {
		return img
	}
	resized := resize.Resize(uint(size.X), uint(size.Y), img, resize.Bilinear)
	if rgba, ok := resized.(*image.RGBA); ok {
		return rgba
	}
	return raster.FromImage(resized).Image()
}
