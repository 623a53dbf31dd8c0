package game

import "slices"

// DeckCard is one line of a deck list.
type DeckCard struct {
	Code     string `json:"code"`
	Quantity int    `json:"quantity"`
}

// DeckList is the static definition of a deck as resolved from the catalog.
type DeckList struct {
	ID    string     `json:"id"`
	Name  string     `json:"name"`
	Cards []DeckCard `json:"cards"`
}

// Total returns the number of card copies in the deck.
func (d DeckList) Total() int {
	total := 0
	for _, c := range d.Cards {
		if c.Quantity > 0 {
			total += c.Quantity
		}
	}
	return total
}

// Expand flattens the deck into one code per copy, in list order.
func (d DeckList) Expand() []string {
	codes := make([]string, 0, d.Total())
	for _, c := range d.Cards {
		for i := 0; i < c.Quantity; i++ {
			codes = append(codes, c.Code)
		}
	}
	return codes
}

// Composition counts copies by code.
func (d DeckList) Composition() map[string]int {
	out := make(map[string]int, len(d.Cards))
	for _, c := range d.Cards {
		if c.Quantity > 0 {
			out[c.Code] += c.Quantity
		}
	}
	return out
}

// Pile selects one of a deck's anchored piles.
type Pile string

const (
	PileDraw    Pile = "draw"
	PileDiscard Pile = "discard"
)

// DeckInPlay is the runtime instance of a deck during an active session.
// DrawPile[0] is the top of the pile.
type DeckInPlay struct {
	DeckID          string   `json:"deck_id"`
	Owner           string   `json:"owner"`
	DrawPile        []string `json:"draw_pile"`
	DiscardPile     []string `json:"discard_pile"`
	Hand            []string `json:"hand"`
	DrawPosition    Position `json:"draw_position"`
	DiscardPosition Position `json:"discard_position"`
}

// NewDeckInPlay expands deck, shuffles it with rnd and anchors it at the
// given positions. Hand and discard start empty.
func NewDeckInPlay(owner string, deck DeckList, drawAt, discardAt Position, rnd Randomizer) DeckInPlay {
	draw := deck.Expand()
	Shuffle(draw, rnd)
	return DeckInPlay{
		DeckID:          deck.ID,
		Owner:           owner,
		DrawPile:        draw,
		DiscardPile:     []string{},
		Hand:            []string{},
		DrawPosition:    drawAt.normalized(),
		DiscardPosition: discardAt.normalized(),
	}
}

func (d DeckInPlay) clone() DeckInPlay {
	d.DrawPile = cloneCodes(d.DrawPile)
	d.DiscardPile = cloneCodes(d.DiscardPile)
	d.Hand = cloneCodes(d.Hand)
	return d
}

// Draw moves up to count codes from the top of the draw pile to the back of
// the hand and returns the drawn codes. Drawing from a short or empty pile
// draws what is available.
func (d DeckInPlay) Draw(count int) (DeckInPlay, []string) {
	next := d.clone()
	if count <= 0 || len(next.DrawPile) == 0 {
		return next, nil
	}
	if count > len(next.DrawPile) {
		count = len(next.DrawPile)
	}
	drawn := cloneCodes(next.DrawPile[:count])
	next.DrawPile = cloneCodes(next.DrawPile[count:])
	next.Hand = append(next.Hand, drawn...)
	return next, drawn
}

// ShuffleDiscardIntoDraw appends the discard pile to the draw pile, clears
// the discard pile and shuffles the combined pile.
func (d DeckInPlay) ShuffleDiscardIntoDraw(rnd Randomizer) DeckInPlay {
	next := d.clone()
	combined := append(next.DrawPile, next.DiscardPile...)
	Shuffle(combined, rnd)
	next.DrawPile = combined
	next.DiscardPile = []string{}
	return next
}

// TakeFromHand removes the first (oldest) occurrence of code from the hand.
func (d DeckInPlay) TakeFromHand(code string) (DeckInPlay, bool) {
	idx := slices.Index(d.Hand, code)
	if idx < 0 {
		return d, false
	}
	next := d.clone()
	next.Hand = slices.Delete(next.Hand, idx, idx+1)
	return next, true
}

// DiscardFromHand moves the first occurrence of code from hand to discard.
func (d DeckInPlay) DiscardFromHand(code string) (DeckInPlay, bool) {
	next, ok := d.TakeFromHand(code)
	if !ok {
		return d, false
	}
	return next.AddToDiscard(code), true
}

// RevealTop removes the top code of the draw pile.
func (d DeckInPlay) RevealTop() (DeckInPlay, string, bool) {
	if len(d.DrawPile) == 0 {
		return d, "", false
	}
	next := d.clone()
	code := next.DrawPile[0]
	next.DrawPile = next.DrawPile[1:]
	return next, code, true
}

// AddToDiscard appends code to the discard pile.
func (d DeckInPlay) AddToDiscard(code string) DeckInPlay {
	next := d.clone()
	next.DiscardPile = append(next.DiscardPile, code)
	return next
}

// AddToHand appends code to the hand.
func (d DeckInPlay) AddToHand(code string) DeckInPlay {
	next := d.clone()
	next.Hand = append(next.Hand, code)
	return next
}

// AddToDraw puts code on top of the draw pile, or at the bottom.
func (d DeckInPlay) AddToDraw(code string, top bool) DeckInPlay {
	next := d.clone()
	if top {
		next.DrawPile = append([]string{code}, next.DrawPile...)
	} else {
		next.DrawPile = append(next.DrawPile, code)
	}
	return next
}

// WithPilePosition moves one of the anchored piles.
func (d DeckInPlay) WithPilePosition(pile Pile, pos Position) (DeckInPlay, bool) {
	next := d.clone()
	switch pile {
	case PileDraw:
		next.DrawPosition = pos.normalized()
	case PileDiscard:
		next.DiscardPosition = pos.normalized()
	default:
		return d, false
	}
	return next, true
}

// Codes returns every code held by the deck's piles and hand.
func (d DeckInPlay) Codes() []string {
	out := make([]string, 0, len(d.DrawPile)+len(d.DiscardPile)+len(d.Hand))
	out = append(out, d.DrawPile...)
	out = append(out, d.DiscardPile...)
	out = append(out, d.Hand...)
	return out
}

func cloneCodes(codes []string) []string {
	out := make([]string, len(codes))
	copy(out, codes)
	return out
}
