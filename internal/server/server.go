package server

import (
	"crypto/rand"
	"embed"
	"encoding/hex"
	"io/fs"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/okoskine/inkwash/internal/imaging"
	"github.com/okoskine/inkwash/internal/studio"
)

//go:embed static/*
var staticFS embed.FS

const sessionCookie = "inkwash_session"

// maxUploadBytes caps a single image upload.
const maxUploadBytes = 25 << 20

// Server exposes the studio over HTTP. Each browser session (cookie)
// maps to one studio session.
type Server struct {
	registry *studio.Registry
	fetcher  *imaging.Fetcher
	mux      *http.ServeMux
}

// New builds the server around a session registry.
func New(registry *studio.Registry) *Server {
	s := &Server{
		registry: registry,
		fetcher:  imaging.NewFetcher(),
		mux:      http.NewServeMux(),
	}

	s.mux.HandleFunc("GET /api/session", s.handleSession)
	s.mux.HandleFunc("POST /api/reference", s.handleReference)
	s.mux.HandleFunc("POST /api/lineart", s.handleLineArt)
	s.mux.HandleFunc("POST /api/synthesize", s.handleSynthesize)
	s.mux.HandleFunc("POST /api/settings", s.handleSettings)
	s.mux.HandleFunc("POST /api/result/discard", s.handleDiscardResult)
	s.mux.HandleFunc("POST /api/reset", s.handleReset)

	staticSub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	s.mux.Handle("/", http.FileServer(http.FS(staticSub)))

	return s
}

// Handler returns the root handler with request logging.
func (s *Server) Handler() http.Handler {
	return withLogging(s.mux)
}

// session resolves the studio session for the request, issuing a
// session cookie when the browser has none yet.
func (s *Server) session(w http.ResponseWriter, r *http.Request) *studio.Session {
	if c, err := r.Cookie(sessionCookie); err == nil && c.Value != "" {
		return s.registry.Get(c.Value)
	}

	id := newSessionID()
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return s.registry.Get(id)
}

func newSessionID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b[:])
}

func withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Info().Str("method", r.Method).Str("path", r.URL.Path).
			Dur("elapsed", time.Since(start)).Msg("http request")
	})
}
