package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	flag "github.com/spf13/pflag"

	"github.com/rviscarra/webrtc-video-wall/internal/config"
	"github.com/rviscarra/webrtc-video-wall/internal/decoders"
	"github.com/rviscarra/webrtc-video-wall/internal/rdisplay"
)

var (
	flagConfig      string
	flagHTTPPort    string
	flagStunServer  string
	flagMode        string
	flagFPS         int
	flagScaleHeight int
	flagFill        string
	flagLogLevel    string
	flagPlaylist    string
	flagNoAutostart bool
	flagHelp        bool
)

func init() {
	flag.StringVarP(&flagConfig, "config", "c", "", "YAML configuration file")
	flag.StringVar(&flagHTTPPort, "http.port", config.DefaultHTTPPort, "HTTP listen port")
	flag.StringVar(&flagStunServer, "stun.server", config.DefaultStunServer, "STUN server URL (stun:)")
	flag.StringVarP(&flagMode, "mode", "m", "tiling", "Playback mode")
	flag.IntVar(&flagFPS, "fps", config.DefaultFPS, "Remote viewer frame rate")
	flag.IntVar(&flagScaleHeight, "scale-height", 0, "Scale every source to this height")
	flag.StringVar(&flagFill, "fill", "000000", "Mosaic padding color")
	flag.StringVar(&flagLogLevel, "log-level", "info", "Log level")
	flag.StringVarP(&flagPlaylist, "playlist", "p", "", "XML playlist")
	flag.BoolVar(&flagNoAutostart, "no-autostart", false, "Wait for the API before playing")

	flag.BoolVarP(&flagHelp, "help", "h", false, "Print usage information and exit")
}

// applyFlags overrides cfg with the flags given on the command line.
func applyFlags(cfg *config.Config) {
	set := func(name string, apply func()) {
		if flag.CommandLine.Changed(name) {
			apply()
		}
	}
	set("http.port", func() { cfg.HTTPPort = flagHTTPPort })
	set("stun.server", func() { cfg.StunServer = flagStunServer })
	set("mode", func() { cfg.Mode = flagMode })
	set("fps", func() { cfg.FPS = flagFPS })
	set("scale-height", func() { cfg.ScaleHeight = flagScaleHeight })
	set("fill", func() { cfg.FillColor = flagFill })
	set("log-level", func() { cfg.LogLevel = flagLogLevel })
	set("playlist", func() { cfg.Playlist = flagPlaylist })
	set("no-autostart", func() { cfg.Autostart = !flagNoAutostart })
}

const helpString = `Tiles one or more videos across one or two screens

Usage: wall [OPTION]...

Configuration:
  -c, --config=FILE        YAML configuration file
      --log-level=LEVEL    debug, info, warn or error (default: info)

Playback:
  -p, --playlist=FILE      XML playlist of <File><Filename/><Duration/></File>
  -m, --mode=MODE          tiling, mosaic or single (default: tiling)
      --scale-height=NUM   Scale every source to this height (default: native)
      --fill=RRGGBB        Mosaic padding color (default: 000000)
      --no-autostart       Wait for POST /api/playback/start

Remote viewing:
      --http.port=PORT     HTTP listen port (default: 9000)
      --stun.server=URI    STUN server (default: stun:stun.l.google.com:19302)
      --fps=NUM            Frame rate sent to viewers (default: 20)

Miscellaneous:
  -h, --help               Prints this help message and exits
`

// Help information is printed and program exits
func help() {
	title := color.New(color.FgCyan, color.Bold)
	note := color.New(color.FgYellow)

	title.Println("video wall")
	fmt.Print(helpString)
	note.Printf("Media decoders: %s\n", strings.Join(decoders.Tags(), ", "))
	note.Printf("Surface kinds:  %s\n", strings.Join(rdisplay.SurfaceKinds(), ", "))
}
