package coordinator

import (
	"bytes"
	"encoding/json"

	"github.com/magefree/tabletop-server-go/internal/game"
)

// Args is the wire form of command arguments. Each command reads only the
// fields it needs.
type Args struct {
	Username    string        `json:"username"`
	DeckID      string        `json:"deck_id"`
	Player      string        `json:"player"`
	Owner       string        `json:"owner"`
	Count       *int          `json:"count"`
	CardCode    string        `json:"card_code"`
	InstanceID  string        `json:"instance_id"`
	Position    game.Position `json:"position"`
	CounterType string        `json:"counter_type"`
	Amount      *int          `json:"amount"`
	Top         bool          `json:"top"`
	Pile        game.Pile     `json:"pile"`
}

// deckOwner reads the owner of a deck. Player names are accepted in place of
// owner, so a client can use the same field as for DrawCard.
func (a Args) deckOwner() string {
	if a.Owner != "" {
		return a.Owner
	}
	return a.Player
}

func orOne(n *int) int {
	if n == nil {
		return 1
	}
	return *n
}

// Commands lists every name ParseCommand accepts.
var Commands = []string{
	"JoinLobby", "LeaveLobby", "ChooseDeck", "SetEncounterDeck", "ToggleReady",
	"StartGame", "DeleteLobby", "FinishGame",
	"DrawCard", "ShuffleDiscardIntoDraw", "PlayCardToTable", "RevealEncounterCard",
	"MoveCard", "ToggleExhaustion", "AddCounter", "FlipCard",
	"DiscardFromHand", "DiscardFromPlay", "ReturnToDeck", "ReturnToHand", "MoveDeck",
}

// ParseCommand builds a command from its name and JSON arguments.
func ParseCommand(name string, raw json.RawMessage) (Command, error) {
	var a Args
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &a); err != nil {
			return Command{}, game.InvalidArgument(name, "malformed arguments: %v", err)
		}
	}

	switch name {
	case "JoinLobby":
		return JoinLobby(a.Username), nil
	case "LeaveLobby":
		return LeaveLobby(a.Username), nil
	case "ChooseDeck":
		return ChooseDeck(a.Username, a.DeckID), nil
	case "SetEncounterDeck":
		return SetEncounterDeck(a.Username, a.DeckID), nil
	case "ToggleReady":
		return ToggleReady(a.Username), nil
	case "StartGame":
		return StartGame(a.Username), nil
	case "DeleteLobby":
		return DeleteLobby(a.Username), nil
	case "FinishGame":
		return FinishGame(a.Username), nil
	case "DrawCard":
		return DrawCard(a.Player, orOne(a.Count)), nil
	case "ShuffleDiscardIntoDraw":
		return ShuffleDiscardIntoDraw(a.deckOwner()), nil
	case "PlayCardToTable":
		return PlayCardToTable(a.Player, a.CardCode, a.Position), nil
	case "RevealEncounterCard":
		return RevealEncounterCard(a.Position), nil
	case "MoveCard":
		return MoveCard(a.InstanceID, a.Position), nil
	case "ToggleExhaustion":
		return ToggleExhaustion(a.InstanceID), nil
	case "AddCounter":
		return AddCounter(a.InstanceID, a.CounterType, orOne(a.Amount)), nil
	case "FlipCard":
		return FlipCard(a.InstanceID), nil
	case "DiscardFromHand":
		return DiscardFromHand(a.Player, a.CardCode), nil
	case "DiscardFromPlay":
		return DiscardFromPlay(a.InstanceID), nil
	case "ReturnToDeck":
		return ReturnToDeck(a.InstanceID, a.Top), nil
	case "ReturnToHand":
		return ReturnToHand(a.InstanceID), nil
	case "MoveDeck":
		return MoveDeck(a.deckOwner(), a.Pile, a.Position), nil
	default:
		return Command{}, game.NotFound("ParseCommand", "unknown command %q", name)
	}
}
