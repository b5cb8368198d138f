package game

// Identity is the read-through cached copy of an authenticated user that
// the core holds for the lifetime of a queue/match participation. The
// external store owns the canonical record.
type Identity struct {
	ID     uint
	Handle string
	Rating int
}
