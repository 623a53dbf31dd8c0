package server

import (
	"errors"
	"net/http"

	"github.com/magefree/tabletop-server-go/internal/catalog"
	"github.com/magefree/tabletop-server-go/internal/game"
)

// deckView is a deck list, optionally with the metadata of every card.
type deckView struct {
	ID    string     `json:"id"`
	Name  string     `json:"name"`
	Total int        `json:"total"`
	Cards []deckLine `json:"cards"`
}

type deckLine struct {
	Code     string     `json:"code"`
	Quantity int        `json:"quantity"`
	Card     *game.Card `json:"card,omitempty"`
}

func catalogError(op string, err error) error {
	if errors.Is(err, catalog.ErrNotFound) {
		return game.NotFound(op, "%v", err)
	}
	return game.Unavailable(op, err)
}

func (a *API) listDecks(w http.ResponseWriter, r *http.Request) {
	decks, err := catalog.ListDecks(r.Context(), a.decks)
	if err != nil {
		a.writeError(w, r, catalogError("ListDecks", err))
		return
	}
	writeJSON(w, http.StatusOK, decks)
}

// getDeck serves one deck. With ?include=cards every line carries the card's
// metadata; codes the catalog does not know get a placeholder.
func (a *API) getDeck(w http.ResponseWriter, r *http.Request) {
	const op = "GetDeck"
	deck, err := a.decks.ResolveDeck(r.Context(), r.PathValue("id"))
	if err != nil {
		a.writeError(w, r, catalogError(op, err))
		return
	}
	withCards := r.URL.Query().Get("include") == "cards"

	view := deckView{ID: deck.ID, Name: deck.Name, Total: deck.Total(), Cards: make([]deckLine, 0, len(deck.Cards))}
	for _, c := range deck.Cards {
		line := deckLine{Code: c.Code, Quantity: c.Quantity}
		if withCards {
			card, err := catalog.CardOrUnknown(r.Context(), a.decks, c.Code)
			if err != nil {
				a.writeError(w, r, catalogError(op, err))
				return
			}
			line.Card = &card
		}
		view.Cards = append(view.Cards, line)
	}
	writeJSON(w, http.StatusOK, view)
}

func (a *API) getCard(w http.ResponseWriter, r *http.Request) {
	card, err := a.decks.LookupCard(r.Context(), r.PathValue("code"))
	if err != nil {
		a.writeError(w, r, catalogError("GetCard", err))
		return
	}
	writeJSON(w, http.StatusOK, card)
}
