package rdisplay

import (
	"image"
	"sort"

	"github.com/pkg/errors"
)

const (
	// KindWindow is a borderless window placed on a local screen.
	KindWindow = "window"
	// KindRemote is an off-screen surface only visible over WebRTC.
	KindRemote = "remote"
)

// ErrUnknownKind is returned for surface kinds not compiled in.
var ErrUnknownKind = errors.New("unknown surface kind")

// Surface shows one canvas slice. Creation, Show and Close must happen on
// the dispatcher goroutine.
type Surface interface {
	ID() int
	Kind() string
	Bounds() image.Rectangle
	// Show displays frame; frame is sized to Bounds and owned by the
	// surface from then on.
	Show(frame *image.RGBA) error
	Close() error
}

type surfaceFactory = func(id int, bounds image.Rectangle) (Surface, error)

// Surface kinds register themselves so cgo backed ones can be left out
// at build time.
var registeredSurfaces = make(map[string]surfaceFactory, 2)

// eventPumps run on the dispatcher thread between jobs.
var eventPumps []func()

// NewSurface creates a surface of kind; call it through Dispatcher.Invoke.
func NewSurface(kind string, id int, bounds image.Rectangle) (Surface, error) {
	factory, found := registeredSurfaces[kind]
	if !found {
		return nil, errors.Wrapf(ErrUnknownKind, "%q (available: %v)", kind, SurfaceKinds())
	}
	if bounds.Empty() {
		return nil, errors.Errorf("surface %d has empty bounds %v", id, bounds)
	}
	return factory(id, bounds)
}

// SurfaceKinds lists the compiled in kinds.
func SurfaceKinds() []string {
	kinds := make([]string, 0, len(registeredSurfaces))
	for k := range registeredSurfaces {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}
