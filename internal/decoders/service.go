package decoders

import (
	"io"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/rviscarra/webrtc-video-wall/internal/raster"
)

var (
	// ErrEndOfStream is returned by Next once the last frame was delivered.
	ErrEndOfStream = errors.New("end of stream")
	// ErrUnavailable is returned when a media spec can't be opened.
	ErrUnavailable = errors.New("media unavailable")
)

// Decoder turns one media stream into raster frames
type Decoder interface {
	io.Closer
	// Next decodes the next frame, or returns ErrEndOfStream.
	Next() (*raster.Tile, error)
	// FrameRate reports the stream rate in frames per second, if known.
	FrameRate() (float64, bool)
	// SeekToStart rewinds the stream to its first frame.
	SeekToStart() error
}

// OpenFunc opens a decoder for the path part of a media spec
type OpenFunc = func(path string) (Decoder, error)

// FileTag is the tag used for specs without an explicit, registered tag.
const FileTag = "file"

// Index of supported sources, each decoder registers itself. The ffmpeg
// backed file decoder is only compiled with the ffmpeg build tag.
var registeredDecoders = make(map[string]OpenFunc, 2)

// Register makes a decoder available under tag.
func Register(tag string, open OpenFunc) {
	registeredDecoders[tag] = open
}

// Tags lists the registered decoder tags
func Tags() []string {
	var tags []string
	for t := range registeredDecoders {
		tags = append(tags, t)
	}
	sort.Strings(tags)
	return tags
}

// Split separates a media spec ("tag:path") into its tag and path. Specs
// whose prefix isn't a registered tag, such as plain paths or Windows drive
// letters, are file paths.
func Split(spec string) (tag, path string) {
	parts := strings.SplitN(spec, ":", 2)
	if len(parts) == 2 && parts[0] != FileTag {
		if _, found := registeredDecoders[parts[0]]; found {
			return parts[0], parts[1]
		}
	}
	if len(parts) == 2 && parts[0] == FileTag {
		return FileTag, parts[1]
	}
	return FileTag, spec
}

// IsVirtual reports whether spec names a generated source rather than a
// file on disk.
func IsVirtual(spec string) bool {
	tag, _ := Split(spec)
	return tag != FileTag
}

// Open opens the decoder registered for the spec's tag.
func Open(spec string) (Decoder, error) {
	tag, path := Split(spec)
	open, found := registeredDecoders[tag]
	if !found {
		return nil, errors.Wrapf(ErrUnavailable, "no decoder registered for %q (have %v)", tag, Tags())
	}
	dec, err := open(path)
	if err != nil {
		return nil, errors.Wrapf(ErrUnavailable, "open %s: %v", spec, err)
	}
	return dec, nil
}
