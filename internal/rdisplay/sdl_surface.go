//go:build sdl
// +build sdl

package rdisplay

import (
	"fmt"
	"image"
	"sync"

	"github.com/pkg/errors"
	"github.com/veandco/go-sdl2/sdl"
)

var sdlInit sync.Once
var sdlInitErr error

// windowSurface is a borderless SDL window at a fixed screen position.
type windowSurface struct {
	id       int
	bounds   image.Rectangle
	window   *sdl.Window
	renderer *sdl.Renderer
	texture  *sdl.Texture
}

func newWindowSurface(id int, bounds image.Rectangle) (Surface, error) {
	sdlInit.Do(func() {
		sdlInitErr = sdl.Init(sdl.INIT_VIDEO)
	})
	if sdlInitErr != nil {
		return nil, errors.Wrap(sdlInitErr, "init SDL")
	}

	w, h := int32(bounds.Dx()), int32(bounds.Dy())
	window, err := sdl.CreateWindow(
		fmt.Sprintf("wall %d", id),
		int32(bounds.Min.X), int32(bounds.Min.Y), w, h,
		sdl.WINDOW_SHOWN|sdl.WINDOW_BORDERLESS,
	)
	if err != nil {
		return nil, errors.Wrap(err, "create window")
	}
	renderer, err := sdl.CreateRenderer(window, -1, sdl.RENDERER_ACCELERATED)
	if err != nil {
		window.Destroy()
		return nil, errors.Wrap(err, "create renderer")
	}
	texture, err := renderer.CreateTexture(uint32(sdl.PIXELFORMAT_RGBA32), sdl.TEXTUREACCESS_STREAMING, w, h)
	if err != nil {
		renderer.Destroy()
		window.Destroy()
		return nil, errors.Wrap(err, "create texture")
	}
	return &windowSurface{
		id:       id,
		bounds:   bounds,
		window:   window,
		renderer: renderer,
		texture:  texture,
	}, nil
}

func (s *windowSurface) ID() int {
	return s.id
}

func (*windowSurface) Kind() string {
	return KindWindow
}

func (s *windowSurface) Bounds() image.Rectangle {
	return s.bounds
}

func (s *windowSurface) Show(frame *image.RGBA) error {
	if err := s.upload(frame); err != nil {
		return err
	}
	if err := s.renderer.Clear(); err != nil {
		return errors.Wrap(err, "clear")
	}
	if err := s.renderer.Copy(s.texture, nil, nil); err != nil {
		return errors.Wrap(err, "copy texture")
	}
	s.renderer.Present()
	return nil
}

func (s *windowSurface) upload(frame *image.RGBA) error {
	pixels, pitch, err := s.texture.Lock(nil)
	if err != nil {
		return errors.Wrap(err, "lock texture")
	}
	defer s.texture.Unlock()

	rowLen := frame.Rect.Dx() * 4
	for y := 0; y < frame.Rect.Dy(); y++ {
		so := y * frame.Stride
		do := y * pitch
		if do+rowLen > len(pixels) {
			break
		}
		copy(pixels[do:do+rowLen], frame.Pix[so:so+rowLen])
	}
	return nil
}

func (s *windowSurface) Close() error {
	if err := s.texture.Destroy(); err != nil {
		return err
	}
	if err := s.renderer.Destroy(); err != nil {
		return err
	}
	return s.window.Destroy()
}

// pumpSDLEvents keeps the windows responsive; the wall ignores input.
func pumpSDLEvents() {
	for event := sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
	}
}

func init() {
	registeredSurfaces[KindWindow] = newWindowSurface
	eventPumps = append(eventPumps, pumpSDLEvents)
}
