//go:build h264enc
// +build h264enc

package encoders

import (
	"bytes"
	"image"

	"github.com/gen2brain/x264-go"
	"github.com/pkg/errors"
)

//H264Encoder h264 encoder
type H264Encoder struct {
	buffer   *bytes.Buffer
	encoder  *x264.Encoder
	realSize image.Point
}

func newH264Encoder(size image.Point, frameRate int) (Encoder, error) {
	buffer := bytes.NewBuffer(make([]byte, 0))
	realSize, err := FindBestSizeForH264Profile(H264SupportedProfile, size)
	if err != nil {
		return nil, err
	}
	opts := x264.Options{
		Width:     realSize.X,
		Height:    realSize.Y,
		FrameRate: frameRate,
		Tune:      "zerolatency",
		Preset:    "veryfast",
		Profile:   "baseline",
		LogLevel:  x264.LogWarning,
	}
	encoder, err := x264.NewEncoder(buffer, &opts)
	if err != nil {
		return nil, errors.Wrap(err, "x264 encoder")
	}
	return &H264Encoder{
		buffer:   buffer,
		encoder:  encoder,
		realSize: realSize,
	}, nil
}

//Encode encodes a wall frame into a h264 payload, the frame must already
//have VideoSize
func (e *H264Encoder) Encode(frame *image.RGBA) ([]byte, error) {
	if frame.Rect.Size() != e.realSize {
		return nil, errors.Errorf("frame is %v, encoder expects %v", frame.Rect.Size(), e.realSize)
	}
	if err := e.encoder.Encode(frame); err != nil {
		return nil, err
	}
	if err := e.encoder.Flush(); err != nil {
		return nil, err
	}
	payload := append([]byte(nil), e.buffer.Bytes()...)
	e.buffer.Reset()
	return payload, nil
}

//VideoSize returns the size the other side is expecting
func (e *H264Encoder) VideoSize() (image.Point, error) {
	return e.realSize, nil
}

//Close flushes and closes the inner x264 encoder
func (e *H264Encoder) Close() error {
	return e.encoder.Close()
}

func init() {
	registeredEncoders[H264Codec] = newH264Encoder
}
