package api

import (
	"image"

	"github.com/rviscarra/webrtc-video-wall/internal/playlist"
)

type newSessionRequest struct {
	Offer   string `json:"offer"`
	Surface int    `json:"surface"`
}

type newSessionResponse struct {
	Answer string `json:"answer"`
}

type rectPayload struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

func newRect(r image.Rectangle) rectPayload {
	return rectPayload{X: r.Min.X, Y: r.Min.Y, Width: r.Dx(), Height: r.Dy()}
}

type screenPayload struct {
	Index  int         `json:"index"`
	Bounds rectPayload `json:"bounds"`
}

type screensResponse struct {
	Screens []screenPayload `json:"screens"`
}

type surfacePayload struct {
	Index  int         `json:"index"`
	Kind   string      `json:"kind"`
	Bounds rectPayload `json:"bounds"`
}

type surfacesResponse struct {
	Surfaces []surfacePayload `json:"surfaces"`
}

// startRequest overrides the configured playlist when either field is set
type startRequest struct {
	Playlist string           `json:"playlist,omitempty"`
	Entries  []playlist.Entry `json:"entries,omitempty"`
}

type startResponse struct {
	Session string `json:"session"`
}

type errorResponse struct {
	Error string `json:"error"`
}
