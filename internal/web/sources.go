package web

import (
	"net/http"
)

type addSourceRequest struct {
	UserID int64  `json:"user_id" validate:"required,gt=0"`
	Path   string `json:"path" validate:"required"`
}

func (s *Server) handleListSources() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sources, err := s.db.GetAllSources(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, nonNil(sources))
	}
}

func (s *Server) handleAddSource() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req addSourceRequest
		if !s.decode(w, r, &req) {
			return
		}
		if _, ok := s.lookupUser(w, r, req.UserID); !ok {
			return
		}
		source, err := s.syncer.AddSource(r.Context(), req.UserID, req.Path)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, source)
	}
}

func (s *Server) handleDeleteSource() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "source")
		if !ok {
			return
		}
		if err := s.db.DeleteSource(r.Context(), id); err != nil {
			writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// handlePostSync runs a sync in the foreground and returns its report.
// Only one sync runs at a time.
func (s *Server) handlePostSync() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.syncing.CompareAndSwap(false, true) {
			writeMessage(w, http.StatusConflict, "sync already running")
			return
		}
		defer s.syncing.Store(false)

		report, err := s.syncer.Run(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}
		errs := make([]string, 0, len(report.Errors))
		for _, e := range report.Errors {
			errs = append(errs, e.Error())
		}
		writeJSON(w, http.StatusOK, map[string]any{"report": report, "errors": errs})
	}
}
