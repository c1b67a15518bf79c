// Package playlist loads and validates the ordered list of media a wall
// plays, and binds repeated entries to shared sources.
package playlist

import (
	"encoding/xml"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/rviscarra/webrtc-video-wall/internal/decoders"
)

const (
	// MinFileSize excludes placeholder and truncated files.
	MinFileSize = 1024 * 1024

	// Unbounded means "play until the natural end of the stream".
	Unbounded time.Duration = math.MaxInt64
)

// ErrRejected is returned for entries that fail validation.
var ErrRejected = errors.New("media rejected")

// MediaReference is one accepted playlist entry.
type MediaReference struct {
	Path        string
	MaxDuration time.Duration
}

// NewReference normalizes a zero (or negative) duration to Unbounded.
func NewReference(path string, maxDuration time.Duration) MediaReference {
	if maxDuration <= 0 {
		maxDuration = Unbounded
	}
	return MediaReference{Path: path, MaxDuration: maxDuration}
}

// Bounded reports whether the entry has a maximum play duration.
func (r MediaReference) Bounded() bool {
	return r.MaxDuration != Unbounded
}

func (r MediaReference) String() string {
	if !r.Bounded() {
		return r.Path
	}
	return fmt.Sprintf("%s (%v)", r.Path, r.MaxDuration)
}

// Entry is the unvalidated form of a playlist item, as found in playlist
// files, the YAML config and API requests.
type Entry struct {
	Path     string `yaml:"path" xml:"Filename" json:"path"`
	Duration string `yaml:"duration" xml:"Duration" json:"duration"`
}

type xmlPlaylist struct {
	Files []Entry `xml:"File"`
}

// ParseDuration parses the "mm:ss" form used by playlists. An empty string
// is a zero duration.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	parts := strings.Split(s, ":")
	if len(parts) != 2 || len(parts[0]) != 2 || len(parts[1]) != 2 {
		return 0, errors.Errorf("duration %q is not mm:ss", s)
	}
	mm, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, errors.Wrapf(err, "duration %q", s)
	}
	ss, err := strconv.Atoi(parts[1])
	if err != nil || ss > 59 {
		return 0, errors.Errorf("duration %q has invalid seconds", s)
	}
	if mm < 0 || ss < 0 {
		return 0, errors.Errorf("duration %q is negative", s)
	}
	return time.Duration(mm)*time.Minute + time.Duration(ss)*time.Second, nil
}

// Validate checks that path names a usable file: it exists, is regular and
// is larger than MinFileSize. MP4 files must also carry a readable video
// stream. Generated sources are always accepted.
func Validate(path string) error {
	if decoders.IsVirtual(path) {
		return nil
	}
	_, name := decoders.Split(path)
	fi, err := os.Stat(name)
	if err != nil {
		return errors.Wrapf(ErrRejected, "%s: %v", path, err)
	}
	if !fi.Mode().IsRegular() {
		return errors.Wrapf(ErrRejected, "%s is not a regular file", path)
	}
	if fi.Size() <= MinFileSize {
		return errors.Wrapf(ErrRejected, "%s is only %d bytes", path, fi.Size())
	}
	if decoders.IsMP4(name) {
		if _, err := decoders.Probe(name); err != nil {
			return errors.Wrapf(ErrRejected, "%s: %v", path, err)
		}
	}
	return nil
}

// FromEntries validates entries and returns the accepted references in
// order. Rejected entries are logged and skipped.
func FromEntries(entries []Entry, logger zerolog.Logger) []MediaReference {
	var refs []MediaReference
	for i, e := range entries {
		path := strings.TrimSpace(e.Path)
		d, err := ParseDuration(e.Duration)
		if err != nil {
			logger.Warn().Err(err).Int("entry", i).Str("path", path).Msg("skipping playlist entry")
			continue
		}
		if err := Validate(path); err != nil {
			logger.Warn().Err(err).Int("entry", i).Msg("skipping playlist entry")
			continue
		}
		refs = append(refs, NewReference(path, d))
	}
	return refs
}

// LoadXML reads a playlist of <File><Filename/><Duration/></File> nodes.
func LoadXML(path string, logger zerolog.Logger) ([]MediaReference, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read playlist")
	}
	var doc xmlPlaylist
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrapf(err, "parse playlist %s", path)
	}
	refs := FromEntries(doc.Files, logger)
	logger.Info().Str("playlist", path).Int("entries", len(doc.Files)).Int("accepted", len(refs)).Msg("playlist loaded")
	return refs, nil
}
