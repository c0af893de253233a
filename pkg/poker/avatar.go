package poker

// Role is a participant's declared role. The role is self-declared at
// login; there is no authentication behind it.
type Role string

const (
	// RoleFacilitator may issue admin commands (start/reveal/reset/kick/config).
	RoleFacilitator Role = "facilitator"

	// RoleContributor votes in rounds.
	RoleContributor Role = "contributor"

	// RoleObserver watches without voting.
	RoleObserver Role = "observer"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleFacilitator, RoleContributor, RoleObserver:
		return true
	}
	return false
}

// AvatarColor is one entry of the fixed avatar color catalog.
type AvatarColor string

// AvatarColors is the ordered color catalog. Growing the catalog is a
// data change here; Next and Valid derive from the slice.
var AvatarColors = []AvatarColor{
	"red",
	"green",
	"blue",
	"yellow",
	"magenta",
	"cyan",
}

// Valid reports whether c is in the catalog.
func (c AvatarColor) Valid() bool {
	return colorIndex(c) >= 0
}

// Next returns the catalog entry after c, wrapping at the end.
// Unknown values map to the first entry.
func (c AvatarColor) Next() AvatarColor {
	i := colorIndex(c)
	if i < 0 {
		return AvatarColors[0]
	}
	return AvatarColors[(i+1)%len(AvatarColors)]
}

func colorIndex(c AvatarColor) int {
	for i, v := range AvatarColors {
		if v == c {
			return i
		}
	}
	return -1
}

// AvatarSymbol is one entry of the fixed avatar symbol catalog.
type AvatarSymbol string

// AvatarSymbols is the ordered symbol catalog.
var AvatarSymbols = []AvatarSymbol{
	"human",
	"alien",
	"robot",
	"ghost",
}

// Valid reports whether s is in the catalog.
func (s AvatarSymbol) Valid() bool {
	return symbolIndex(s) >= 0
}

// Next returns the catalog entry after s, wrapping at the end.
// Unknown values map to the first entry.
func (s AvatarSymbol) Next() AvatarSymbol {
	i := symbolIndex(s)
	if i < 0 {
		return AvatarSymbols[0]
	}
	return AvatarSymbols[(i+1)%len(AvatarSymbols)]
}

func symbolIndex(s AvatarSymbol) int {
	for i, v := range AvatarSymbols {
		if v == s {
			return i
		}
	}
	return -1
}
