package web

import (
	"net/http"

	"github.com/brainstormbuddy/studybuddy/internal/review"
	"github.com/brainstormbuddy/studybuddy/internal/srs"
)

// ratingRequest carries a rating name (hard, good, easy) or its quality
// number as a string.
type ratingRequest struct {
	Rating string `json:"rating" validate:"required"`
}

type ratingResponse struct {
	Schedule srs.State       `json:"schedule"`
	Session  review.Snapshot `json:"session"`
}

func (s *Server) session(w http.ResponseWriter, r *http.Request) (*review.Session, bool) {
	sess, err := s.sessions.Get(r.PathValue("session"))
	if err != nil {
		writeError(w, r, err)
		return nil, false
	}
	return sess, true
}

func (s *Server) handleStartSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, ok := s.user(w, r)
		if !ok {
			return
		}
		sess, err := s.sessions.Start(r.Context(), u.ID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, sess.Snapshot())
	}
}

func (s *Server) handleGetSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := s.session(w, r)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, sess.Snapshot())
	}
}

func (s *Server) handleReveal() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := s.session(w, r)
		if !ok {
			return
		}
		if err := sess.Reveal(); err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, sess.Snapshot())
	}
}

// handleRate applies a rating to the current card. A card rescheduled or
// deleted elsewhere answers 409 or 404 and is dropped from the session; the
// client continues with GET on the session. Other failures leave the session
// on the same card.
func (s *Server) handleRate() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := s.session(w, r)
		if !ok {
			return
		}
		var req ratingRequest
		if !s.decode(w, r, &req) {
			return
		}
		q, err := review.ParseRating(req.Rating)
		if err != nil {
			writeError(w, r, err)
			return
		}
		next, err := sess.Rate(r.Context(), q)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, ratingResponse{Schedule: next, Session: sess.Snapshot()})
	}
}

func (s *Server) handleEndSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.sessions.End(r.PathValue("session")); err != nil {
			writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
