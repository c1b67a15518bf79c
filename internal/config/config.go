// Package config holds the wall's settings, read from a YAML file and
// overridden by command line flags.
package config

import (
	"image"
	"image/color"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/rviscarra/webrtc-video-wall/internal/decoders"
	"github.com/rviscarra/webrtc-video-wall/internal/playback"
	"github.com/rviscarra/webrtc-video-wall/internal/playlist"
	"github.com/rviscarra/webrtc-video-wall/internal/rdisplay"
)

const (
	DefaultHTTPPort   = "9000"
	DefaultStunServer = "stun:stun.l.google.com:19302"
	DefaultFPS        = 20
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Surface places one output surface, either over a whole screen or at an
// explicit rectangle in desktop coordinates.
type Surface struct {
	Kind   string `yaml:"kind"`
	Screen *int   `yaml:"screen,omitempty"`
	X      int    `yaml:"x"`
	Y      int    `yaml:"y"`
	Width  int    `yaml:"width"`
	Height int    `yaml:"height"`
}

// Config of the wall
type Config struct {
	HTTPPort   string `yaml:"http_port"`
	StunServer string `yaml:"stun_server"`
	LogLevel   string `yaml:"log_level"`

	Mode            string        `yaml:"mode"`
	FPS             int           `yaml:"fps"`
	DefaultInterval time.Duration `yaml:"default_interval"`
	ScaleHeight     int           `yaml:"scale_height"`
	FillColor       string        `yaml:"fill_color"`

	// Playlist is an XML playlist file; Entries are appended after it.
	Playlist  string           `yaml:"playlist"`
	Entries   []playlist.Entry `yaml:"entries"`
	Autostart bool             `yaml:"autostart"`

	Surfaces []Surface `yaml:"surfaces"`
}

// Default returns the built in settings: one remote 1280x720 surface.
func Default() Config {
	return Config{
		HTTPPort:        DefaultHTTPPort,
		StunServer:      DefaultStunServer,
		LogLevel:        "info",
		Mode:            playback.ModeTiling.String(),
		FPS:             DefaultFPS,
		DefaultInterval: playback.DefaultInterval,
		FillColor:       "000000",
		Autostart:       true,
		Surfaces: []Surface{
			{Kind: rdisplay.KindRemote, Width: 1280, Height: 720},
		},
	}
}

// Load reads path over the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrap(err, "read config")
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "parse config %s", path)
	}
	return cfg, nil
}

// Validate checks the settings that can be checked without a display.
func (c Config) Validate() error {
	if _, err := c.PlaybackMode(); err != nil {
		return errors.Wrap(ErrInvalid, err.Error())
	}
	if _, err := c.Fill(); err != nil {
		return errors.Wrap(ErrInvalid, err.Error())
	}
	if _, err := c.Level(); err != nil {
		return errors.Wrap(ErrInvalid, err.Error())
	}
	if c.FPS <= 0 {
		return errors.Wrapf(ErrInvalid, "fps must be positive, got %d", c.FPS)
	}
	if c.DefaultInterval <= 0 {
		return errors.Wrapf(ErrInvalid, "default_interval must be positive, got %v", c.DefaultInterval)
	}
	if c.ScaleHeight < 0 {
		return errors.Wrapf(ErrInvalid, "scale_height can't be negative")
	}
	if n := len(c.Surfaces); n == 0 || n > 2 {
		return errors.Wrapf(ErrInvalid, "one or two surfaces required, got %d", n)
	}
	for i, s := range c.Surfaces {
		if s.Screen != nil {
			if *s.Screen < 0 {
				return errors.Wrapf(ErrInvalid, "surface %d: negative screen index", i)
			}
			continue
		}
		if s.Width <= 0 || s.Height <= 0 {
			return errors.Wrapf(ErrInvalid, "surface %d: needs a screen or a positive size", i)
		}
	}
	return nil
}

// PlaybackMode parses Mode.
func (c Config) PlaybackMode() (playback.Mode, error) {
	return playback.ParseMode(c.Mode)
}

// Fill parses FillColor.
func (c Config) Fill() (color.RGBA, error) {
	return decoders.ParseHexColor(c.FillColor)
}

// Level parses LogLevel.
func (c Config) Level() (zerolog.Level, error) {
	return zerolog.ParseLevel(strings.ToLower(c.LogLevel))
}

// ResolveSurfaces turns the configured surfaces into placed rectangles.
// Screen bound surfaces take the bounds of that screen.
func (c Config) ResolveSurfaces(screens []rdisplay.Screen) ([]rdisplay.SurfaceConfig, error) {
	out := make([]rdisplay.SurfaceConfig, len(c.Surfaces))
	for i, s := range c.Surfaces {
		kind := s.Kind
		if kind == "" {
			kind = rdisplay.KindRemote
		}
		var bounds image.Rectangle
		if s.Screen != nil {
			ix := *s.Screen
			if ix >= len(screens) {
				return nil, errors.Errorf("surface %d: screen %d not found (%d active)", i, ix, len(screens))
			}
			bounds = screens[ix].Bounds
		} else {
			bounds = image.Rect(s.X, s.Y, s.X+s.Width, s.Y+s.Height)
		}
		out[i] = rdisplay.SurfaceConfig{Kind: kind, Bounds: bounds}
	}
	return out, nil
}

// MediaReferences loads the XML playlist, if any, followed by the inline
// entries. Rejected entries are logged and skipped.
func (c Config) MediaReferences(logger zerolog.Logger) ([]playlist.MediaReference, error) {
	var refs []playlist.MediaReference
	if c.Playlist != "" {
		loaded, err := playlist.LoadXML(c.Playlist, logger)
		if err != nil {
			return nil, err
		}
		refs = append(refs, loaded...)
	}
	return append(refs, playlist.FromEntries(c.Entries, logger)...), nil
}
