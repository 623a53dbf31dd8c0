package game

// Face is the visible side of a placed object.
type Face string

const (
	FaceUp   Face = "up"
	FaceDown Face = "down"
)

// Position places an object on the board. Rotation is cosmetic and has no
// enforced range.
type Position struct {
	X        int  `json:"x"`
	Y        int  `json:"y"`
	Rotation int  `json:"rotation"`
	Face     Face `json:"face"`
}

// At returns a face-up, unrotated position.
func At(x, y int) Position {
	return Position{X: x, Y: y, Face: FaceUp}
}

// IsFaceUp treats an unset face as up.
func (p Position) IsFaceUp() bool {
	return p.Face != FaceDown
}

// WithCoordinates returns p moved to (x, y).
func (p Position) WithCoordinates(x, y int) Position {
	p.X, p.Y = x, y
	return p
}

// WithRotation returns p rotated to degrees.
func (p Position) WithRotation(degrees int) Position {
	p.Rotation = degrees
	return p
}

// Flipped returns p with the opposite face showing.
func (p Position) Flipped() Position {
	if p.IsFaceUp() {
		p.Face = FaceDown
	} else {
		p.Face = FaceUp
	}
	return p
}

func (p Position) normalized() Position {
	if p.Face == "" {
		p.Face = FaceUp
	}
	return p
}
