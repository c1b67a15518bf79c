package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	flag "github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/rviscarra/webrtc-video-wall/internal/api"
	"github.com/rviscarra/webrtc-video-wall/internal/config"
	"github.com/rviscarra/webrtc-video-wall/internal/encoders"
	"github.com/rviscarra/webrtc-video-wall/internal/playback"
	"github.com/rviscarra/webrtc-video-wall/internal/playlist"
	"github.com/rviscarra/webrtc-video-wall/internal/rdisplay"
	"github.com/rviscarra/webrtc-video-wall/internal/rtc"
	"github.com/rviscarra/webrtc-video-wall/internal/source"
)

const shutdownTimeout = 5 * time.Second

func main() {
	flag.Parse()
	if flagHelp {
		help()
		return
	}

	cfg := config.Default()
	if flagConfig != "" {
		loaded, err := config.Load(flagConfig)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Can't load config: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	applyFlags(&cfg)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(2)
	}

	level, _ := cfg.Level()
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(level).With().Timestamp().Logger()

	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("wall stopped")
	}
	logger.Info().Msg("bye")
}

// run owns the process lifecycle. The display dispatcher runs on the main
// goroutine; everything else runs in the errgroup and stops the
// dispatcher once it has released its surfaces.
func run(cfg config.Config, logger zerolog.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	video, err := rdisplay.NewVideoProvider(logger)
	if err != nil {
		return err
	}
	screens, err := video.Screens()
	if err != nil {
		logger.Warn().Err(err).Msg("no screens, only explicit surfaces can be used")
	}
	for _, s := range screens {
		logger.Info().Int("screen", s.Index).Str("bounds", s.Bounds.String()).Msg("screen found")
	}
	surfaces, err := cfg.ResolveSurfaces(screens)
	if err != nil {
		return err
	}

	dispatcher := rdisplay.NewDispatcher(logger)
	wall := rdisplay.NewWall(dispatcher, video, logger)

	displayCtx, stopDisplay := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer stopDisplay()
		return serve(gctx, cfg, video, wall, surfaces, logger)
	})

	dispatcher.Run(displayCtx)
	return g.Wait()
}

func serve(ctx context.Context, cfg config.Config, video rdisplay.Service, wall *rdisplay.Wall, surfaces []rdisplay.SurfaceConfig, logger zerolog.Logger) error {
	if err := wall.Open(ctx, surfaces); err != nil {
		return err
	}
	defer func() {
		if err := wall.Close(context.Background()); err != nil {
			logger.Warn().Err(err).Msg("closing surfaces")
		}
	}()

	mode, _ := cfg.PlaybackMode()
	fill, _ := cfg.Fill()
	scheduler := playback.New(playback.Config{
		Mode:            mode,
		Viewports:       wall.Viewports(),
		DefaultInterval: cfg.DefaultInterval,
		Fill:            fill,
		Sources:         source.Options{ScaleHeight: cfg.ScaleHeight},
		Presenter:       wall,
		Logger:          logger,
	})
	defer func() {
		scheduler.Stop()
		scheduler.Wait()
	}()

	configured := func() ([]playlist.MediaReference, error) {
		return cfg.MediaReferences(logger)
	}
	if cfg.Autostart {
		refs, err := configured()
		if err == nil {
			_, err = scheduler.Start(ctx, refs)
		}
		if err != nil {
			logger.Warn().Err(err).Msg("playback not started")
		}
	}

	webrtc := rtc.NewRemoteSurfaceService(cfg.StunServer, wall, encoders.NewEncoderService(), logger)

	mux := http.NewServeMux()
	mux.Handle("/api/", http.StripPrefix("/api", api.MakeHandler(api.Options{
		RTC:      webrtc,
		Display:  video,
		Wall:     wall,
		Playback: scheduler,
		Playlist: configured,
		Context:  ctx,
		FPS:      cfg.FPS,
		Logger:   logger,
	})))

	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.HTTPPort),
		Handler: mux,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("port", cfg.HTTPPort).Msg("starting control server")
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
