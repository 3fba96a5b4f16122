package types

// Principal identifies a party to the engine: a vault owner, a buyer, a
// co-owner, or the platform treasury. The value is opaque — an account
// address, a user id, whatever the embedding application uses. The zero
// value is the null principal and is rejected wherever a real party is
// required.
type Principal string

// IsZero returns true for the null principal.
func (p Principal) IsZero() bool { return p == "" }

// String returns the raw identifier.
func (p Principal) String() string { return string(p) }
