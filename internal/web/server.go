package web

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/cjeanneret/camctl/internal/debug"
	"github.com/cjeanneret/camctl/internal/logic/events"
)

// Server wraps the HTTP server and handlers.
type Server struct {
	addr     string
	handlers *Handlers
}

// NewServer creates a server configured for the given address and dependencies.
func NewServer(addr string, cam Camera, hub *events.Hub, jpegQuality int) *Server {
	return &Server{
		addr:     addr,
		handlers: NewHandlers(cam, hub, jpegQuality, panelFS()),
	}
}

// Mux returns an http.Handler with all routes registered.
func (s *Server) Mux() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /session/start", s.handlers.HandleStart)
	mux.HandleFunc("POST /session/stop", s.handlers.HandleStop)
	mux.HandleFunc("POST /camera/switch", s.handlers.HandleSwitch)
	mux.HandleFunc("POST /focus", s.handlers.HandleFocus)
	mux.HandleFunc("POST /exposure", s.handlers.HandleExposure)
	mux.HandleFunc("POST /zoom", s.handlers.HandleZoom)
	mux.HandleFunc("POST /torch", s.handlers.HandleTorch)
	mux.HandleFunc("POST /grid", s.handlers.HandleGrid)
	mux.HandleFunc("POST /ratio", s.handlers.HandleRatio)
	mux.HandleFunc("POST /view", s.handlers.HandleView)
	mux.HandleFunc("POST /gesture", s.handlers.HandleGesture)
	mux.HandleFunc("POST /capture", s.handlers.HandleCapture)
	mux.HandleFunc("GET /state", s.handlers.HandleState)
	mux.HandleFunc("GET /overlay", s.handlers.HandleOverlay)
	mux.HandleFunc("GET /events", s.handlers.HandleEvents)
	mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.FS(s.handlers.staticFS))))
	mux.HandleFunc("GET /{$}", s.handlers.ServeIndex) // exact match for root only

	return mux
}

// Run starts the server and blocks until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	// Request contexts end with ctx so open event streams let Shutdown finish.
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Mux(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	errCh := make(chan error, 1)
	go func() {
		debug.Info("web server listening on %s", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
