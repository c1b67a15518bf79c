package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/rviscarra/webrtc-video-wall/internal/playback"
	"github.com/rviscarra/webrtc-video-wall/internal/playlist"
	"github.com/rviscarra/webrtc-video-wall/internal/rdisplay"
	"github.com/rviscarra/webrtc-video-wall/internal/rtc"
)

const defaultEventInterval = time.Second

// Playback is the part of the scheduler the API drives
type Playback interface {
	Start(ctx context.Context, refs []playlist.MediaReference) (string, error)
	Stop()
	Status() playback.Status
}

// SurfaceLister lists the wall's surfaces
type SurfaceLister interface {
	Surfaces() []rdisplay.Surface
}

// Options wires the handler to the rest of the wall. RTC and Display may
// be nil, their endpoints then answer 503.
type Options struct {
	RTC      rtc.Service
	Display  rdisplay.Service
	Wall     SurfaceLister
	Playback Playback
	// Playlist returns the configured media when a start request names none
	Playlist func() ([]playlist.MediaReference, error)
	// Context outlives requests; playback started over HTTP runs under it
	Context       context.Context
	FPS           int
	EventInterval time.Duration
	Logger        zerolog.Logger
}

type handler struct {
	opts     Options
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

func (h *handler) writeError(w http.ResponseWriter, status int, err error) {
	h.log.Warn().Err(err).Int("status", status).Msg("request failed")
	h.writeJSON(w, status, errorResponse{Error: err.Error()})
}

func (h *handler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	payload, err := json.Marshal(v)
	if err != nil {
		h.log.Error().Err(err).Msg("can't encode response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(payload)
}

func allow(method string, w http.ResponseWriter, r *http.Request) bool {
	if r.Method != method {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return false
	}
	return true
}

// MakeHandler returns an HTTP handler for the wall's control API
func MakeHandler(opts Options) http.Handler {
	if opts.Context == nil {
		opts.Context = context.Background()
	}
	if opts.EventInterval <= 0 {
		opts.EventInterval = defaultEventInterval
	}
	h := &handler{
		opts: opts,
		log:  opts.Logger.With().Str("component", "api").Logger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/session", h.session)
	mux.HandleFunc("/screens", h.screens)
	mux.HandleFunc("/surfaces", h.surfaces)
	mux.HandleFunc("/playback/start", h.start)
	mux.HandleFunc("/playback/stop", h.stop)
	mux.HandleFunc("/playback/status", h.status)
	mux.HandleFunc("/events", h.events)
	return mux
}

func (h *handler) session(w http.ResponseWriter, r *http.Request) {
	if !allow(http.MethodPost, w, r) {
		return
	}
	if h.opts.RTC == nil {
		h.writeError(w, http.StatusServiceUnavailable, errors.New("remote viewing is disabled"))
		return
	}
	req := newSessionRequest{}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, errors.Wrap(err, "decode request"))
		return
	}

	peer, err := h.opts.RTC.CreateRemoteSurfaceConnection(req.Surface, h.opts.FPS)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	answer, err := peer.ProcessOffer(req.Offer)
	if err != nil {
		peer.Close()
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	h.writeJSON(w, http.StatusOK, newSessionResponse{Answer: answer})
}

func (h *handler) screens(w http.ResponseWriter, r *http.Request) {
	if !allow(http.MethodGet, w, r) {
		return
	}
	if h.opts.Display == nil {
		h.writeError(w, http.StatusServiceUnavailable, errors.New("no display"))
		return
	}
	screens, err := h.opts.Display.Screens()
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	resp := screensResponse{Screens: make([]screenPayload, len(screens))}
	for i, s := range screens {
		resp.Screens[i] = screenPayload{Index: s.Index, Bounds: newRect(s.Bounds)}
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *handler) surfaces(w http.ResponseWriter, r *http.Request) {
	if !allow(http.MethodGet, w, r) {
		return
	}
	surfaces := h.opts.Wall.Surfaces()
	resp := surfacesResponse{Surfaces: make([]surfacePayload, len(surfaces))}
	for i, s := range surfaces {
		resp.Surfaces[i] = surfacePayload{Index: s.ID(), Kind: s.Kind(), Bounds: newRect(s.Bounds())}
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *handler) references(r *http.Request) ([]playlist.MediaReference, error) {
	req := startRequest{}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		return nil, errors.Wrap(err, "decode request")
	}
	if req.Playlist == "" && len(req.Entries) == 0 {
		if h.opts.Playlist == nil {
			return nil, nil
		}
		return h.opts.Playlist()
	}
	var refs []playlist.MediaReference
	if req.Playlist != "" {
		loaded, err := playlist.LoadXML(req.Playlist, h.log)
		if err != nil {
			return nil, err
		}
		refs = loaded
	}
	return append(refs, playlist.FromEntries(req.Entries, h.log)...), nil
}

func (h *handler) start(w http.ResponseWriter, r *http.Request) {
	if !allow(http.MethodPost, w, r) {
		return
	}
	refs, err := h.references(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	id, err := h.opts.Playback.Start(h.opts.Context, refs)
	switch errors.Cause(err) {
	case nil:
		h.writeJSON(w, http.StatusCreated, startResponse{Session: id})
	case playback.ErrAlreadyRunning:
		h.writeError(w, http.StatusConflict, err)
	case playback.ErrNoPlayableMedia:
		h.writeError(w, http.StatusUnprocessableEntity, err)
	default:
		h.writeError(w, http.StatusInternalServerError, err)
	}
}

func (h *handler) stop(w http.ResponseWriter, r *http.Request) {
	if !allow(http.MethodPost, w, r) {
		return
	}
	h.opts.Playback.Stop()
	h.writeJSON(w, http.StatusAccepted, h.opts.Playback.Status())
}

func (h *handler) status(w http.ResponseWriter, r *http.Request) {
	if !allow(http.MethodGet, w, r) {
		return
	}
	h.writeJSON(w, http.StatusOK, h.opts.Playback.Status())
}

// events pushes a status snapshot every EventInterval until the client
// goes away.
func (h *handler) events(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("upgrade failed")
		return
	}
	defer ws.Close()

	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(h.opts.EventInterval)
	defer ticker.Stop()
	for {
		ws.SetWriteDeadline(time.Now().Add(h.opts.EventInterval + time.Second))
		if err := ws.WriteJSON(h.opts.Playback.Status()); err != nil {
			h.log.Debug().Err(err).Msg("event stream closed")
			return
		}
		select {
		case <-gone:
			return
		case <-h.opts.Context.Done():
			return
		case <-ticker.C:
		}
	}
}
