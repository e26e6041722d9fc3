package web

import (
	"net/http"

	"github.com/brainstormbuddy/studybuddy/internal/cardhash"
	"github.com/brainstormbuddy/studybuddy/internal/domain"
)

type cardRequest struct {
	Front   string `json:"front" validate:"required"`
	Back    string `json:"back" validate:"required"`
	Context string `json:"context"`
}

type createDeckRequest struct {
	Topic  string        `json:"topic" validate:"required,max=200"`
	Public bool          `json:"public"`
	Cards  []cardRequest `json:"cards" validate:"required,min=1,dive"`
}

type publicRequest struct {
	Public *bool `json:"public" validate:"required"`
}

type cloneRequest struct {
	UserID int64 `json:"user_id" validate:"required,gt=0"`
}

func (s *Server) handleListDecks() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, ok := s.user(w, r)
		if !ok {
			return
		}
		decks, err := s.db.ListDecks(r.Context(), u.ID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, nonNil(decks))
	}
}

// handleCreateDeck stores a generated deck. Every card starts due today.
func (s *Server) handleCreateDeck() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, ok := s.user(w, r)
		if !ok {
			return
		}
		var req createDeckRequest
		if !s.decode(w, r, &req) {
			return
		}
		cards := make([]domain.Card, 0, len(req.Cards))
		for _, c := range req.Cards {
			card := domain.Card{Front: c.Front, Back: c.Back, Context: c.Context}
			card.Hash = cardhash.Hash(card)
			cards = append(cards, card)
		}
		deck, err := s.db.CreateDeck(r.Context(), domain.Deck{
			UserID: u.ID,
			Topic:  req.Topic,
			Public: req.Public,
		}, cards, s.now())
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, deck)
	}
}

func (s *Server) handleListDeckCards() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "deck")
		if !ok {
			return
		}
		deck, err := s.db.FindDeck(r.Context(), id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if deck == nil {
			writeMessage(w, http.StatusNotFound, "deck not found")
			return
		}
		cards, err := s.db.ListDeckCards(r.Context(), id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, nonNil(cards))
	}
}

func (s *Server) handleSetDeckPublic() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "deck")
		if !ok {
			return
		}
		var req publicRequest
		if !s.decode(w, r, &req) {
			return
		}
		if err := s.db.SetDeckPublic(r.Context(), id, *req.Public); err != nil {
			writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handleDeleteDeck() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "deck")
		if !ok {
			return
		}
		if err := s.db.DeleteDeck(r.Context(), id); err != nil {
			writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handleListPublicDecks() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		decks, err := s.db.ListPublicDecks(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, nonNil(decks))
	}
}

// handleCloneDeck copies a public deck into the requesting user's decks.
func (s *Server) handleCloneDeck() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "deck")
		if !ok {
			return
		}
		var req cloneRequest
		if !s.decode(w, r, &req) {
			return
		}
		u, ok := s.lookupUser(w, r, req.UserID)
		if !ok {
			return
		}
		deck, err := s.db.CloneDeck(r.Context(), id, u.ID, s.now())
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, deck)
	}
}
