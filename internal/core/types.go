package core

// Record is the unit of storage: a field-name to value map, as decoded from
// or encoded to the active backend.
type Record = map[string]interface{}

// Direction controls cursor iteration order. The Unique variants suppress
// duplicate effective keys.
type Direction string

const (
	DirNext       Direction = "next"
	DirNextUnique Direction = "nextUnique"
	DirPrev       Direction = "prev"
	DirPrevUnique Direction = "prevUnique"
)

// Reverse reports whether the direction iterates descending.
func (d Direction) Reverse() bool {
	return d == DirPrev || d == DirPrevUnique
}

// Unique reports whether duplicate effective keys are suppressed.
func (d Direction) Unique() bool {
	return d == DirNextUnique || d == DirPrevUnique
}

// Base returns the direction with duplicate suppression removed: next for
// the forward variants, prev for the reverse ones.
func (d Direction) Base() Direction {
	if d.Reverse() {
		return DirPrev
	}
	return DirNext
}

// Valid reports whether d is one of the four direction identifiers.
func (d Direction) Valid() bool {
	switch d {
	case DirNext, DirNextUnique, DirPrev, DirPrevUnique:
		return true
	}
	return false
}

// Mode is the scope of a backend transaction.
type Mode string

const (
	ModeReadOnly  Mode = "readonly"
	ModeReadWrite Mode = "readwrite"

	// ModeVersionChange is exclusive with every other transaction and is
	// the only mode allowed to mutate the schema.
	ModeVersionChange Mode = "versionchange"
)

// CompletionKind tells a transaction submitter how its transaction ended.
type CompletionKind string

const (
	CompleteOK    CompletionKind = "complete"
	CompleteError CompletionKind = "error"
	CompleteAbort CompletionKind = "abort"
)

// CompleteFunc receives the terminal state of a transaction exactly once.
// detail is nil for CompleteOK.
type CompleteFunc func(kind CompletionKind, detail error)

// EventType identifies a record or store change published after a readwrite
// transaction commits.
type EventType string

const (
	EventCreated EventType = "created"
	EventUpdated EventType = "updated"
	EventDeleted EventType = "deleted"
	EventCleared EventType = "cleared"
)
