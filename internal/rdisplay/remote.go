package rdisplay

import (
	"image"
	"sync"
	"time"
)

// RemoteSurface keeps the last shown frame in memory so it can be streamed
// to WebRTC viewers.
type RemoteSurface struct {
	id     int
	bounds image.Rectangle

	mu     sync.RWMutex
	latest *image.RGBA
}

func newRemoteSurface(id int, bounds image.Rectangle) (Surface, error) {
	return &RemoteSurface{id: id, bounds: bounds}, nil
}

// ID of the surface
func (s *RemoteSurface) ID() int {
	return s.id
}

// Kind is always KindRemote
func (*RemoteSurface) Kind() string {
	return KindRemote
}

// Bounds of the surface
func (s *RemoteSurface) Bounds() image.Rectangle {
	return s.bounds
}

// Show replaces the current frame. Frames are never mutated after Show so
// readers may hold on to them.
func (s *RemoteSurface) Show(frame *image.RGBA) error {
	s.mu.Lock()
	s.latest = frame
	s.mu.Unlock()
	return nil
}

// Latest returns the last shown frame, nil before the first one
func (s *RemoteSurface) Latest() *image.RGBA {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest
}

// Close drops the current frame
func (s *RemoteSurface) Close() error {
	s.mu.Lock()
	s.latest = nil
	s.mu.Unlock()
	return nil
}

// Grabber returns a feed that re-sends the current frame fps times a second
func (s *RemoteSurface) Grabber(fps int) FrameGrabber {
	return &surfaceFeed{
		surface: s,
		fps:     fps,
		frames:  make(chan *image.RGBA),
		stop:    make(chan struct{}),
	}
}

type surfaceFeed struct {
	surface *RemoteSurface
	fps     int
	frames  chan *image.RGBA
	stop    chan struct{}
	once    sync.Once
}

func (f *surfaceFeed) Frames() <-chan *image.RGBA {
	return f.frames
}

func (f *surfaceFeed) Start() {
	ticker := time.NewTicker(time.Second / time.Duration(f.fps))
	go func() {
		defer close(f.frames)
		defer ticker.Stop()
		for {
			select {
			case <-f.stop:
				return
			case <-ticker.C:
			}
			frame := f.surface.Latest()
			if frame == nil {
				// nothing presented yet
				continue
			}
			select {
			case <-f.stop:
				return
			case f.frames <- frame:
			}
		}
	}()
}

func (f *surfaceFeed) Stop() {
	f.once.Do(func() { close(f.stop) })
}

func (f *surfaceFeed) Fps() int {
	return f.fps
}

func (f *surfaceFeed) Bounds() image.Rectangle {
	return f.surface.bounds
}

func init() {
	registeredSurfaces[KindRemote] = newRemoteSurface
}
