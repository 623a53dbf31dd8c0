package counters

// Type names a well-known token kind. Any string is accepted as a counter
// name; these are the ones the client renders with dedicated artwork.
type Type string

const (
	TypeDamage       Type = "damage"
	TypeThreat       Type = "threat"
	TypeAcceleration Type = "acceleration"
	TypeAllPurpose   Type = "all-purpose"
	TypeTough        Type = "tough"
	TypeStunned      Type = "stunned"
	TypeConfused     Type = "confused"
	TypeGeneric      Type = "generic"
)

// String returns the string representation of the counter type.
func (t Type) String() string {
	return string(t)
}

// Known reports whether name is one of the predefined types.
func Known(name string) bool {
	switch Type(name) {
	case TypeDamage, TypeThreat, TypeAcceleration, TypeAllPurpose,
		TypeTough, TypeStunned, TypeConfused, TypeGeneric:
		return true
	}
	return false
}
