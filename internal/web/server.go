// Package web exposes decks, review sessions and source sync as a JSON API.
package web

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/brainstormbuddy/studybuddy/internal/domain"
	"github.com/brainstormbuddy/studybuddy/internal/review"
	"github.com/brainstormbuddy/studybuddy/internal/srs"
	"github.com/brainstormbuddy/studybuddy/internal/storage"
	"github.com/brainstormbuddy/studybuddy/internal/sync"
)

// Server holds the dependencies for the HTTP server.
type Server struct {
	db       *storage.DB
	sessions *review.Manager
	syncer   *sync.Syncer
	router   *http.ServeMux
	validate *validator.Validate
	syncing  atomic.Bool
}

// NewServer creates and configures a new server. The session manager's
// clock is used for every date the API computes.
func NewServer(db *storage.DB, sessions *review.Manager, syncer *sync.Syncer) *Server {
	s := &Server{
		db:       db,
		sessions: sessions,
		syncer:   syncer,
		router:   http.NewServeMux(),
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
	s.routes()
	return s
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// routes sets up the routing for the server.
func (s *Server) routes() {
	s.router.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	s.router.HandleFunc("POST /api/users", s.handleCreateUser())
	s.router.HandleFunc("GET /api/users/{user}/stats", s.handleGetStats())
	s.router.HandleFunc("GET /api/users/{user}/due", s.handleGetDue())

	// Decks
	s.router.HandleFunc("GET /api/users/{user}/decks", s.handleListDecks())
	s.router.HandleFunc("POST /api/users/{user}/decks", s.handleCreateDeck())
	s.router.HandleFunc("GET /api/decks/{deck}/cards", s.handleListDeckCards())
	s.router.HandleFunc("PUT /api/decks/{deck}/public", s.handleSetDeckPublic())
	s.router.HandleFunc("DELETE /api/decks/{deck}", s.handleDeleteDeck())

	// Community hub
	s.router.HandleFunc("GET /api/community/decks", s.handleListPublicDecks())
	s.router.HandleFunc("POST /api/community/decks/{deck}/clone", s.handleCloneDeck())

	// Review sessions
	s.router.HandleFunc("POST /api/users/{user}/sessions", s.handleStartSession())
	s.router.HandleFunc("GET /api/sessions/{session}", s.handleGetSession())
	s.router.HandleFunc("POST /api/sessions/{session}/reveal", s.handleReveal())
	s.router.HandleFunc("POST /api/sessions/{session}/rating", s.handleRate())
	s.router.HandleFunc("DELETE /api/sessions/{session}", s.handleEndSession())

	// Source management
	s.router.HandleFunc("GET /api/sources", s.handleListSources())
	s.router.HandleFunc("POST /api/sources", s.handleAddSource())
	s.router.HandleFunc("DELETE /api/sources/{source}", s.handleDeleteSource())
	s.router.HandleFunc("POST /api/sync", s.handlePostSync())
}

func (s *Server) now() time.Time {
	return s.sessions.Now()
}

type apiError struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode response", "error", err)
	}
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, apiError{Error: msg})
}

// writeError maps known errors to status codes. Anything else is logged
// and reported as an internal error without detail.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, srs.ErrInvalidInput), errors.Is(err, sync.ErrBadSource):
		status = http.StatusBadRequest
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, review.ErrUnknownSession):
		status = http.StatusNotFound
	case errors.Is(err, storage.ErrStaleSchedule),
		errors.Is(err, review.ErrAnswerHidden),
		errors.Is(err, review.ErrSessionDone),
		errors.Is(err, sync.ErrSourceExists):
		status = http.StatusConflict
	case errors.Is(err, storage.ErrDeckNotPublic):
		status = http.StatusForbidden
	}
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeMessage(w, status, "internal server error")
		return
	}
	writeMessage(w, status, err.Error())
}

// decode reads a JSON body into v and validates it. It writes the error
// response itself and reports whether the handler should continue.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	if err := s.validate.Struct(v); err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		writeMessage(w, http.StatusBadRequest, "invalid "+name+" ID")
		return 0, false
	}
	return id, true
}

// lookupUser resolves a user ID, writing a 404 when it is unknown.
func (s *Server) lookupUser(w http.ResponseWriter, r *http.Request, id int64) (*domain.User, bool) {
	u, err := s.db.FindUser(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return nil, false
	}
	if u == nil {
		writeMessage(w, http.StatusNotFound, "user not found")
		return nil, false
	}
	return u, true
}

// user resolves the {user} path segment.
func (s *Server) user(w http.ResponseWriter, r *http.Request) (*domain.User, bool) {
	id, ok := pathID(w, r, "user")
	if !ok {
		return nil, false
	}
	return s.lookupUser(w, r, id)
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

type createUserRequest struct {
	Username string `json:"username" validate:"required,max=64"`
}

func (s *Server) handleCreateUser() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createUserRequest
		if !s.decode(w, r, &req) {
			return
		}
		existing, err := s.db.FindUserByName(r.Context(), req.Username)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if existing != nil {
			writeMessage(w, http.StatusConflict, "username already taken")
			return
		}
		u, err := s.db.CreateUser(r.Context(), req.Username)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, u)
	}
}

func (s *Server) handleGetStats() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, ok := s.user(w, r)
		if !ok {
			return
		}
		stats, err := review.ComputeStats(r.Context(), s.db, u.ID, s.now())
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, stats)
	}
}

func (s *Server) handleGetDue() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, ok := s.user(w, r)
		if !ok {
			return
		}
		cards, err := s.db.DueCards(r.Context(), u.ID, s.now())
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"count": len(cards), "cards": nonNil(cards)})
	}
}
