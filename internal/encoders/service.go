package encoders

import (
	"image"
	"io"
)

// Service creates encoder instances
type Service interface {
	NewEncoder(codec VideoCodec, size image.Point, frameRate int) (Encoder, error)
	Supports(codec VideoCodec) bool
}

// Encoder takes an image/frame and encodes it
type Encoder interface {
	io.Closer
	Encode(*image.RGBA) ([]byte, error)
	// VideoSize is the frame size the encoder expects
	VideoSize() (image.Point, error)
}

//VideoCodec supported by the remote viewer
type VideoCodec = int

const (
	//H264Codec h264
	H264Codec VideoCodec = iota
)
