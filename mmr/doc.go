// Package mmr implements the Merkle Mountain Range accumulator the seal
// package anchors first-seen key event logs with.
//
// An MMR suits an append-only log of key events for the same reasons it
// suits any ledger-like record: the structure is strictly append only and
// it is easy to prove that is the case; the position of a value is
// provable from the index arithmetic alone; and from one state to another
// there is a compact consistency proof that everything in the earlier
// state is contained in the later one. A verifier holding a signed
// accumulator (the peaks) for a first-seen log at one point in time can
// later check, without replaying signatures, that a replica's grown log is
// a strict append of what was sealed -- any rewritten history fails the
// consistency check.
//
// The implementation follows the post-order flat-array formulation: the
// post order traversal (children first, left to right) of the range is
// identical to the natural append order of its nodes, so the whole
// structure lives in a flat sequence addressed by index, and navigation is
// pure binary arithmetic on positions (see JumpLeftPerfect and
// IndexHeight). Interior nodes commit to their position, giving non-equivocal
// proofs of position. The narrow NodeAppender / store interfaces permit
// any backing storage; the seal package uses a small in-memory store
// rebuilt from the first-seen log it covers.
//
// Sources and background:
//   - https://github.com/mimblewimble/grin/blob/0ff6763ee64e5a14e70ddd4642b99789a1648a32/core/src/core/pmmr.rs#L18
//   - https://github.com/proofchains/python-proofmarshal/blob/master/proofmarshal/mmr.py
//   - https://datatracker.ietf.org/doc/draft-ietf-cose-merkle-tree-proofs/
//   - https://lists.linuxfoundation.org/pipermail/bitcoin-dev/2016-May/012715.html
package mmr
