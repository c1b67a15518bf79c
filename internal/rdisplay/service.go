// Package rdisplay owns the output side of the wall: attached screens, the
// surfaces the canvas slices are shown on and the thread those surfaces
// must be driven from.
package rdisplay

import "image"

// FrameGrabber streams what a surface is showing at a fixed rate
type FrameGrabber interface {
	Start()
	Frames() <-chan *image.RGBA
	Stop()
	Fps() int
	Bounds() image.Rectangle
}

// Screen is one attached display
type Screen struct {
	Index  int
	Bounds image.Rectangle
}

// Service enumerates displays and captures regions of them
type Service interface {
	Screens() ([]Screen, error)
	CreateScreenGrabber(region image.Rectangle, fps int) (FrameGrabber, error)
}
