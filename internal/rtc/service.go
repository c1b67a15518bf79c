package rtc

import (
	"io"

	"github.com/rviscarra/webrtc-video-wall/internal/rdisplay"
)

type videoStreamer interface {
	start()
	close()
}

// GrabberSource hands out feeds of the wall's surfaces
type GrabberSource interface {
	CreateFrameGrabber(surfaceIx int, fps int) (rdisplay.FrameGrabber, error)
}

// RemoteSurfaceConnection Represents a WebRTC connection to a single peer
// watching one wall surface
type RemoteSurfaceConnection interface {
	io.Closer
	ProcessOffer(offer string) (string, error)
}

// Service WebRTC service
type Service interface {
	CreateRemoteSurfaceConnection(surfaceIx int, fps int) (RemoteSurfaceConnection, error)
}
