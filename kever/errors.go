package kever

import "errors"

// Sentinel errors by semantic kind (spec.md §7). The escrow-able kinds are
// what the dispatcher files into buckets; the rest are terminal for the
// offending event.
var (
	// ErrValidation covers threshold, digest, field and trait violations
	// that drop the event outright.
	ErrValidation = errors.New("kever: event validation failed")

	// ErrOutOfOrder marks an event whose prior events have not arrived.
	ErrOutOfOrder = errors.New("kever: event out of order")

	// ErrPartiallySigned marks an event with fewer verified controller
	// signatures than its signing threshold.
	ErrPartiallySigned = errors.New("kever: insufficient controller signatures")

	// ErrPartiallyWitnessed marks an event with fewer verified witness
	// signatures than its accountability threshold.
	ErrPartiallyWitnessed = errors.New("kever: insufficient witness receipts")

	// ErrDelegable marks a delegated event still waiting on its
	// delegator's seal.
	ErrDelegable = errors.New("kever: delegated event lacks delegator seal")

	// ErrMisfit marks a remotely sourced event for a locally owned or
	// local group identifier; it waits for the local copy. Identifiers
	// this node only witnesses or delegates for are not misfits.
	ErrMisfit = errors.New("kever: remote source for locally relevant event")

	// ErrAbandoned rejects any event after a rotation to empty next keys.
	ErrAbandoned = errors.New("kever: identifier abandoned")

	// ErrStale rejects an event at or below the current sequence number
	// that is not a valid recovery rotation.
	ErrStale = errors.New("kever: stale event")
)
