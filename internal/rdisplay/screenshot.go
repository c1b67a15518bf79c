package rdisplay

import (
	"image"
	"sync"
	"time"

	"github.com/kbinani/screenshot"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// XVideoProvider implements the rdisplay.Service interface for XServer
type XVideoProvider struct {
	log zerolog.Logger
}

// XScreenGrabber captures a region of the X server, usually the area a
// window surface is drawn on
type XScreenGrabber struct {
	fps    int
	region image.Rectangle
	frames chan *image.RGBA
	stop   chan struct{}
	once   sync.Once
	log    zerolog.Logger
}

// CreateScreenGrabber creates a capturer for region
func (x *XVideoProvider) CreateScreenGrabber(region image.Rectangle, fps int) (FrameGrabber, error) {
	if region.Empty() {
		return nil, errors.Errorf("empty capture region %v", region)
	}
	if fps <= 0 {
		return nil, errors.Errorf("invalid frame rate %d", fps)
	}
	return &XScreenGrabber{
		region: region,
		fps:    fps,
		frames: make(chan *image.RGBA),
		stop:   make(chan struct{}),
		log:    x.log.With().Str("region", region.String()).Logger(),
	}, nil
}

// Screens Returns the active displays
func (x *XVideoProvider) Screens() ([]Screen, error) {
	numScreens := screenshot.NumActiveDisplays()
	if numScreens <= 0 {
		return nil, errors.New("no active displays")
	}
	screens := make([]Screen, numScreens)
	for i := 0; i < numScreens; i++ {
		screens[i] = Screen{
			Index:  i,
			Bounds: screenshot.GetDisplayBounds(i),
		}
	}
	return screens, nil
}

// Frames returns a channel that will receive an image stream
func (g *XScreenGrabber) Frames() <-chan *image.RGBA {
	return g.frames
}

// Start initiates the capture loop
func (g *XScreenGrabber) Start() {
	delta := time.Second / time.Duration(g.fps)
	go func() {
		defer close(g.frames)
		for {
			startedAt := time.Now()
			img, err := screenshot.CaptureRect(g.region)
			if err != nil {
				g.log.Error().Err(err).Msg("capture failed")
				return
			}
			select {
			case <-g.stop:
				return
			case g.frames <- img:
			}
			sleepDuration := delta - time.Since(startedAt)
			if sleepDuration > 0 {
				select {
				case <-g.stop:
					return
				case <-time.After(sleepDuration):
				}
			}
		}
	}()
}

// Stop sends a stop signal to the capture loop
func (g *XScreenGrabber) Stop() {
	g.once.Do(func() { close(g.stop) })
}

// Bounds returns the captured region
func (g *XScreenGrabber) Bounds() image.Rectangle {
	return g.region
}

// Fps returns the frames per sec. we're capturing
func (g *XScreenGrabber) Fps() int {
	return g.fps
}

// NewVideoProvider returns an X Server-based video provider
func NewVideoProvider(logger zerolog.Logger) (Service, error) {
	return &XVideoProvider{
		log: logger.With().Str("component", "display").Logger(),
	}, nil
}
