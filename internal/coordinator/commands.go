package coordinator

import (
	"context"
	"errors"
	"time"

	"github.com/magefree/tabletop-server-go/internal/catalog"
	"github.com/magefree/tabletop-server-go/internal/game"
)

// Env carries the collaborators a command may use while it holds the
// session. Catalog lookups happen here, before anything is persisted.
type Env struct {
	Catalog catalog.Catalog
	Rand    game.Randomizer
	NewID   func() string
	Now     func() time.Time
}

// Command is one named mutation of a session. Apply receives the current
// snapshot and returns the next one, or deleted=true to remove the session.
type Command struct {
	Name  string
	Apply func(ctx context.Context, env Env, s game.Session) (next game.Session, deleted bool, err error)
}

func pure(name string, fn func(game.Session) (game.Session, error)) Command {
	return Command{Name: name, Apply: func(_ context.Context, _ Env, s game.Session) (game.Session, bool, error) {
		next, err := fn(s)
		return next, false, err
	}}
}

// resolveDeck maps catalog failures onto the session error taxonomy.
func resolveDeck(ctx context.Context, env Env, op, id string) (game.DeckList, error) {
	if id == "" {
		return game.DeckList{}, game.InvalidArgument(op, "deck id is required")
	}
	deck, err := env.Catalog.ResolveDeck(ctx, id)
	if errors.Is(err, catalog.ErrNotFound) {
		return game.DeckList{}, game.NotFound(op, "deck %q not found", id)
	}
	if err != nil {
		return game.DeckList{}, game.Unavailable(op, err)
	}
	return deck, nil
}

func lookupCard(ctx context.Context, env Env, op, code string) (game.Card, error) {
	card, err := catalog.CardOrUnknown(ctx, env.Catalog, code)
	if err != nil {
		return game.Card{}, game.Unavailable(op, err)
	}
	return card, nil
}

// JoinLobby adds username to the lobby.
func JoinLobby(username string) Command {
	return pure("JoinLobby", func(s game.Session) (game.Session, error) {
		return game.JoinLobby(s, username)
	})
}

// LeaveLobby removes username, deleting the session when the host or the
// last player leaves.
func LeaveLobby(username string) Command {
	return Command{Name: "LeaveLobby", Apply: func(_ context.Context, _ Env, s game.Session) (game.Session, bool, error) {
		return game.LeaveLobby(s, username)
	}}
}

// ChooseDeck resolves deckID and assigns it to username.
func ChooseDeck(username, deckID string) Command {
	const op = "ChooseDeck"
	return Command{Name: op, Apply: func(ctx context.Context, env Env, s game.Session) (game.Session, bool, error) {
		if _, _, ok := s.Player(username); !ok {
			return s, false, game.NotFound(op, "player %q not in session", username)
		}
		deck, err := resolveDeck(ctx, env, op, deckID)
		if err != nil {
			return s, false, err
		}
		next, err := game.ChooseDeck(s, username, deck)
		return next, false, err
	}}
}

// SetEncounterDeck resolves deckID and sets it as the encounter deck.
func SetEncounterDeck(username, deckID string) Command {
	const op = "SetEncounterDeck"
	return Command{Name: op, Apply: func(ctx context.Context, env Env, s game.Session) (game.Session, bool, error) {
		if !s.IsHost(username) {
			return s, false, game.Forbidden(op, "only the host can do this")
		}
		deck, err := resolveDeck(ctx, env, op, deckID)
		if err != nil {
			return s, false, err
		}
		next, err := game.SetEncounterDeck(s, username, deck)
		return next, false, err
	}}
}

// ToggleReady flips username's ready flag.
func ToggleReady(username string) Command {
	return pure("ToggleReady", func(s game.Session) (game.Session, error) {
		return game.ToggleReady(s, username)
	})
}

// StartGame checks every precondition, resolves all decks and moves the
// session to ACTIVE.
func StartGame(username string) Command {
	const op = "StartGame"
	return Command{Name: op, Apply: func(ctx context.Context, env Env, s game.Session) (game.Session, bool, error) {
		if err := game.CheckStart(s, username); err != nil {
			return s, false, err
		}
		decks := make(map[string]game.DeckList, len(s.Players))
		for _, p := range s.Players {
			deck, err := resolveDeck(ctx, env, op, p.DeckID)
			if err != nil {
				return s, false, err
			}
			decks[p.Name] = deck
		}
		encounter, err := resolveDeck(ctx, env, op, s.EncounterDeckID)
		if err != nil {
			return s, false, err
		}
		next, err := game.StartGame(s, username, decks, encounter, env.Rand)
		return next, false, err
	}}
}

// DeleteLobby removes the session. Host only.
func DeleteLobby(username string) Command {
	return Command{Name: "DeleteLobby", Apply: func(_ context.Context, _ Env, s game.Session) (game.Session, bool, error) {
		if err := game.DeleteLobby(s, username); err != nil {
			return s, false, err
		}
		return s, true, nil
	}}
}

// FinishGame ends an active game. Host only.
func FinishGame(username string) Command {
	return pure("FinishGame", func(s game.Session) (game.Session, error) {
		return game.FinishGame(s, username)
	})
}

// DrawCard draws count cards into player's hand.
func DrawCard(player string, count int) Command {
	return pure("DrawCard", func(s game.Session) (game.Session, error) {
		return game.DrawCard(s, player, count)
	})
}

// ShuffleDiscardIntoDraw reshuffles owner's discard pile into the draw pile.
func ShuffleDiscardIntoDraw(owner string) Command {
	return Command{Name: "ShuffleDiscardIntoDraw", Apply: func(_ context.Context, env Env, s game.Session) (game.Session, bool, error) {
		next, err := game.ShuffleDiscardIntoDraw(s, owner, env.Rand)
		return next, false, err
	}}
}

// PlayCardToTable moves cardCode from player's hand onto the board.
func PlayCardToTable(player, cardCode string, pos game.Position) Command {
	const op = "PlayCardToTable"
	return Command{Name: op, Apply: func(ctx context.Context, env Env, s game.Session) (game.Session, bool, error) {
		// Checked before the catalog lookup.
		if err := game.CheckPlayable(s, player, cardCode); err != nil {
			return s, false, err
		}
		card, err := lookupCard(ctx, env, op, cardCode)
		if err != nil {
			return s, false, err
		}
		next, err := game.PlayCardToTable(s, player, card, env.NewID(), pos)
		return next, false, err
	}}
}

// RevealEncounterCard flips the top encounter card onto the board at pos.
func RevealEncounterCard(pos game.Position) Command {
	const op = "RevealEncounterCard"
	return Command{Name: op, Apply: func(ctx context.Context, env Env, s game.Session) (game.Session, bool, error) {
		code, ok := game.TopEncounterCode(s)
		card := game.Card{}
		if ok && s.Phase == game.PhaseActive {
			var err error
			if card, err = lookupCard(ctx, env, op, code); err != nil {
				return s, false, err
			}
		}
		next, err := game.RevealEncounterCard(s, card, env.NewID(), pos)
		return next, false, err
	}}
}

// MoveCard repositions a card in play.
func MoveCard(instanceID string, pos game.Position) Command {
	return pure("MoveCard", func(s game.Session) (game.Session, error) {
		return game.MoveCard(s, instanceID, pos)
	})
}

// ToggleExhaustion exhausts or readies a card in play.
func ToggleExhaustion(instanceID string) Command {
	return pure("ToggleExhaustion", func(s game.Session) (game.Session, error) {
		return game.ToggleExhaustion(s, instanceID)
	})
}

// AddCounter changes a counter on a card in play.
func AddCounter(instanceID, counterType string, amount int) Command {
	return pure("AddCounter", func(s game.Session) (game.Session, error) {
		return game.AddCounter(s, instanceID, counterType, amount)
	})
}

// FlipCard turns a card in play over.
func FlipCard(instanceID string) Command {
	return pure("FlipCard", func(s game.Session) (game.Session, error) {
		return game.FlipCard(s, instanceID)
	})
}

// DiscardFromHand discards cardCode from player's hand.
func DiscardFromHand(player, cardCode string) Command {
	return pure("DiscardFromHand", func(s game.Session) (game.Session, error) {
		return game.DiscardFromHand(s, player, cardCode)
	})
}

// DiscardFromPlay moves a card in play to its owner's discard pile.
func DiscardFromPlay(instanceID string) Command {
	return pure("DiscardFromPlay", func(s game.Session) (game.Session, error) {
		return game.DiscardFromPlay(s, instanceID)
	})
}

// ReturnToDeck puts a card in play back on its owner's draw pile.
func ReturnToDeck(instanceID string, top bool) Command {
	return pure("ReturnToDeck", func(s game.Session) (game.Session, error) {
		return game.ReturnToDeck(s, instanceID, top)
	})
}

// ReturnToHand puts a card in play back into its owner's hand.
func ReturnToHand(instanceID string) Command {
	return pure("ReturnToHand", func(s game.Session) (game.Session, error) {
		return game.ReturnToHand(s, instanceID)
	})
}

// MoveDeck repositions one of owner's piles.
func MoveDeck(owner string, pile game.Pile, pos game.Position) Command {
	return pure("MoveDeck", func(s game.Session) (game.Session, error) {
		return game.MoveDeck(s, owner, pile, pos)
	})
}

// expire deletes a session that is still in phase and untouched since
// cutoff. Any other state is left alone.
func expire(phase game.Phase, cutoff time.Time) Command {
	return Command{Name: "Expire", Apply: func(_ context.Context, _ Env, s game.Session) (game.Session, bool, error) {
		if s.Phase != phase || !s.UpdatedAt.Before(cutoff) {
			return s, false, errNotStale
		}
		return s, true, nil
	}}
}

var errNotStale = errors.New("session is no longer stale")
