package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/conorfennell/studydeck/internal/sm2"
	"github.com/conorfennell/studydeck/internal/storage"
	"github.com/conorfennell/studydeck/internal/sync"
)

//go:embed all:static
var staticFiles embed.FS

//go:embed all:templates
var templateFiles embed.FS

// Server holds the dependencies for the HTTP server.
type Server struct {
	db        *storage.DB
	syncer    *sync.Syncer
	engine    sm2.Engine
	sessions  *sessionRegistry
	router    *http.ServeMux
	templates *template.Template
	log       *slog.Logger
}

// NewServer creates and configures a new server.
// Study sessions idle for longer than sessionTTL are discarded.
func NewServer(db *storage.DB, syncer *sync.Syncer, engine sm2.Engine, sessionTTL time.Duration) (*Server, error) {
	tpl, err := template.New("").Funcs(templateFuncs).ParseFS(templateFiles, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}

	s := &Server{
		db:        db,
		syncer:    syncer,
		engine:    engine,
		sessions:  newSessionRegistry(sessionTTL),
		router:    http.NewServeMux(),
		templates: tpl,
		log:       slog.Default(),
	}
	if err := s.routes(); err != nil {
		return nil, err
	}
	return s, nil
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// routes sets up the routing for the server.
func (s *Server) routes() error {
	staticFS, err := fs.Sub(staticFiles, "static")
	if err != nil {
		return fmt.Errorf("failed to create sub-filesystem for static assets: %w", err)
	}
	s.router.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.FS(staticFS))))

	// Decks and cards
	s.router.HandleFunc("GET /{$}", s.handleGetDecks())
	s.router.HandleFunc("POST /decks", s.handlePostDeck())
	s.router.HandleFunc("GET /decks/{deckID}", s.handleGetDeck())
	s.router.HandleFunc("PUT /decks/{deckID}", s.handlePutDeck())
	s.router.HandleFunc("DELETE /decks/{deckID}", s.handleDeleteDeck())
	s.router.HandleFunc("POST /decks/{deckID}/cards", s.handlePostCard())
	s.router.HandleFunc("PUT /cards/{cardID}", s.handlePutCard())
	s.router.HandleFunc("DELETE /cards/{cardID}", s.handleDeleteCard())
	s.router.HandleFunc("GET /cards/{cardID}/history", s.handleGetCardHistory())

	// Study sessions
	s.router.HandleFunc("POST /decks/{deckID}/study", s.handlePostStudy())
	s.router.HandleFunc("GET /study/{sessionID}", s.handleGetStudy())
	s.router.HandleFunc("POST /study/{sessionID}/reveal", s.handlePostReveal())
	s.router.HandleFunc("POST /study/{sessionID}/check", s.handlePostCheck())
	s.router.HandleFunc("POST /study/{sessionID}/review", s.handlePostReview())

	// Source management
	s.router.HandleFunc("GET /sources", s.handleGetSources())
	s.router.HandleFunc("POST /sources", s.handlePostSource())
	s.router.HandleFunc("DELETE /sources/{sourceID}", s.handleDeleteSource())
	s.router.HandleFunc("POST /sync", s.handlePostSync())
	return nil
}

// render executes the named templates into a buffer so a failure can still
// produce a clean 500 instead of a half-written page.
func (s *Server) render(w http.ResponseWriter, status int, data any, names ...string) {
	var buf bytes.Buffer
	for _, name := range names {
		if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
			s.log.Error("Error rendering template", "template", name, "error", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// serverError logs err and replies with a 500.
func (s *Server) serverError(w http.ResponseWriter, msg string, err error, args ...any) {
	s.log.Error(msg, append(args, "error", err)...)
	http.Error(w, "Internal Server Error", http.StatusInternalServerError)
}
