package ws

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/manga-lockstep/backend/internal/catalog"
	"github.com/manga-lockstep/backend/internal/frontend"
	"github.com/manga-lockstep/backend/internal/images"
	"github.com/manga-lockstep/backend/internal/viewing"
	"github.com/rs/cors"
	"github.com/rs/zerolog/hlog"
	"github.com/rs/zerolog/log"
)

// Server is the HTTP gateway: the viewer page, the websocket endpoint and
// page images.
type Server struct {
	state          *viewing.State
	resolver       *images.Resolver
	frontend       *frontend.Frontend
	session        SessionConfig
	upgrader       websocket.Upgrader
	allowedOrigins map[string]bool
	allowedHosts   map[string]bool

	// sessions counts running websocket handlers. Hijacked connections are
	// invisible to http.Server.Shutdown, so Serve waits on this instead.
	sessions sync.WaitGroup
}

func NewServer(state *viewing.State, resolver *images.Resolver, fe *frontend.Frontend, sessionCfg SessionConfig, allowedOrigins []string) *Server {
	s := &Server{
		state:          state,
		resolver:       resolver,
		frontend:       fe,
		session:        sessionCfg,
		allowedOrigins: make(map[string]bool),
		allowedHosts:   make(map[string]bool),
	}

	for _, origin := range allowedOrigins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		s.allowedOrigins[trimmed] = true
		if parsed, err := url.Parse(trimmed); err == nil && parsed.Host != "" {
			s.allowedHosts[parsed.Host] = true
		}
	}

	s.upgrader = websocket.Upgrader{CheckOrigin: s.checkOrigin}
	return s
}

func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /ws", s.handleWS)
	mux.HandleFunc("GET /image", s.handleImage)
	mux.HandleFunc("GET /api/state", s.handleState)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /static/", http.StripPrefix("/static/", hideTemplate(s.frontend.Assets())))
}

// Handler returns the routed gateway wrapped in logging, security headers
// and, when origins are configured, CORS.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.SetupRoutes(mux)

	var h http.Handler = securityHeaders(mux)
	if len(s.allowedOrigins) > 0 {
		origins := make([]string, 0, len(s.allowedOrigins))
		for o := range s.allowedOrigins {
			origins = append(origins, o)
		}
		h = cors.New(cors.Options{
			AllowedOrigins: origins,
			AllowedMethods: []string{http.MethodGet, http.MethodHead},
		}).Handler(h)
	}

	h = hlog.AccessHandler(func(r *http.Request, status, size int, d time.Duration) {
		hlog.FromRequest(r).Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("size", size).
			Dur("duration", d).
			Msg("request")
	})(h)
	h = hlog.RemoteAddrHandler("remote")(h)
	return hlog.NewHandler(log.Logger)(h)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := s.frontend.RenderPage(&buf, s.state.Snapshot()); err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("rendering viewer page")
		http.Error(w, "failed to render page", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes())
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	s.sessions.Add(1)
	defer s.sessions.Done()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		hlog.FromRequest(r).Warn().Err(err).Msg("ws upgrade failed")
		return
	}

	sess := newSession(conn, s.state, s.session, r.RemoteAddr)
	sess.run(r.Context())
}

func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	item, err := strconv.Atoi(q.Get("manga"))
	if err != nil {
		http.Error(w, "invalid manga index", http.StatusBadRequest)
		return
	}
	page, err := strconv.Atoi(q.Get("page"))
	if err != nil {
		http.Error(w, "invalid page index", http.StatusBadRequest)
		return
	}

	img, err := s.resolver.Resolve(r.Context(), item, page)
	switch {
	case errors.Is(err, catalog.ErrOutOfRange):
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	case errors.Is(err, images.ErrUnreadable):
		hlog.FromRequest(r).Error().Err(err).Int("manga", item).Int("page", page).Msg("reading page image")
		http.Error(w, "failed to read image", http.StatusInternalServerError)
		return
	case err != nil:
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", img.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(img.Data)))
	w.Write(img.Data)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	st := s.state.Stats()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(StatePayload{
		Viewers:      st.Viewers,
		PendingVotes: st.Pending,
		Moves:        st.Moves,
		Cursor:       st.Cursor,
		Snapshot:     st.Snapshot,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.Write([]byte("ok"))
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	if len(s.allowedOrigins) > 0 {
		if s.allowedOrigins[origin] {
			return true
		}
		if parsed, err := url.Parse(origin); err == nil && parsed.Host != "" {
			return s.allowedHosts[parsed.Host]
		}
		return false
	}

	parsed, err := url.Parse(origin)
	if err != nil {
		return false
	}

	host := parsed.Host
	if host == "" {
		return false
	}

	if host == r.Host {
		return true
	}

	if strings.HasPrefix(host, "localhost:") || host == "localhost" {
		return true
	}
	if strings.HasPrefix(host, "127.0.0.1:") || host == "127.0.0.1" {
		return true
	}
	if strings.HasPrefix(host, "[::1]:") || host == "::1" {
		return true
	}

	return false
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Content-Security-Policy", "default-src 'self'; connect-src 'self' ws: wss:")
		next.ServeHTTP(w, r)
	})
}

// hideTemplate keeps the raw page template out of the static file server.
func hideTemplate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "index.html" || r.URL.Path == "/index.html" || r.URL.Path == "" || r.URL.Path == "/" {
			http.NotFound(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ListenAndServe serves the gateway on addr until ctx is cancelled.
// Shutdown stops the listener first and lets in-flight requests finish
// within grace. Open viewer sessions are then sent a going-away close and
// Serve waits, again bounded by grace, for each of them to unregister.
func (s *Server) ListenAndServe(ctx context.Context, addr string, grace time.Duration) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln, grace)
}

func (s *Server) Serve(ctx context.Context, ln net.Listener, grace time.Duration) error {
	return serve(ctx, ln, s.Handler(), grace, s.sessions.Wait)
}

// serve runs handler on ln until ctx is cancelled. drain, when set, blocks
// until every hijacked connection has finished.
func serve(ctx context.Context, ln net.Listener, handler http.Handler, grace time.Duration, drain func()) error {
	baseCtx, closeSessions := context.WithCancel(context.WithoutCancel(ctx))
	defer closeSessions()

	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", ln.Addr().String()).Msg("server listening")
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	closeSessions()

	if drain != nil {
		drained := make(chan struct{})
		go func() {
			drain()
			close(drained)
		}()
		timer := time.NewTimer(grace)
		defer timer.Stop()
		select {
		case <-drained:
		case <-timer.C:
			log.Warn().Dur("grace", grace).Msg("viewer sessions still open after grace period")
		}
	}

	if serveErr := <-errCh; serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
		return serveErr
	}
	return err
}
