package rtc

import (
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/rviscarra/webrtc-video-wall/internal/encoders"
)

// RemoteSurfaceService is our implementation of the rtc.Service
type RemoteSurfaceService struct {
	stunServer      string
	grabbers        GrabberSource
	encodingService encoders.Service
	log             zerolog.Logger
}

// NewRemoteSurfaceService creates a new instances of RemoteSurfaceService
func NewRemoteSurfaceService(stun string, grabbers GrabberSource, enc encoders.Service, logger zerolog.Logger) Service {
	return &RemoteSurfaceService{
		stunServer:      stun,
		grabbers:        grabbers,
		encodingService: enc,
		log:             logger.With().Str("component", "rtc").Logger(),
	}
}

// CreateRemoteSurfaceConnection creates and configures a new peer connection
// that will stream the selected surface
func (svc *RemoteSurfaceService) CreateRemoteSurfaceConnection(surfaceIx int, fps int) (RemoteSurfaceConnection, error) {
	if !svc.encodingService.Supports(encoders.H264Codec) {
		return nil, errors.Wrap(encoders.ErrUnsupportedCodec, "remote viewing needs the h264enc build")
	}
	grabber, err := svc.grabbers.CreateFrameGrabber(surfaceIx, fps)
	if err != nil {
		return nil, err
	}
	logger := svc.log.With().Int("surface", surfaceIx).Logger()
	return newRemoteSurfacePeerConn(svc.stunServer, grabber, svc.encodingService, logger), nil
}
