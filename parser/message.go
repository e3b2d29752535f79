package parser

import (
	"github.com/forestrie/go-keri/cesr"
	"github.com/forestrie/go-keri/serder"
)

// TransIdxSigGroup is a transferable receiptor's indexed signature group:
// the receiptor prefix, the (sn, said) of its latest establishment event,
// and the indexed signatures themselves.
type TransIdxSigGroup struct {
	Prefixer *cesr.Prefixer
	Seqner   *cesr.Seqner
	Saider   *cesr.Saider
	Sigers   []*cesr.Siger
}

// TransLastIdxSigGroup references the receiptor's latest establishment
// implicitly.
type TransLastIdxSigGroup struct {
	Prefixer *cesr.Prefixer
	Sigers   []*cesr.Siger
}

// FirstSeenReplayCouple carries the origin's first-seen ordinal and
// timestamp during cloned replay.
type FirstSeenReplayCouple struct {
	Firner *cesr.Seqner
	Dater  *cesr.Dater
}

// SealSourceCouple references the sealing event of a delegator or
// authorizer by (sn, said).
type SealSourceCouple struct {
	Seqner *cesr.Seqner
	Saider *cesr.Saider
}

// SealSourceTriple additionally names the sealing identifier.
type SealSourceTriple struct {
	Prefixer *cesr.Prefixer
	Seqner   *cesr.Seqner
	Saider   *cesr.Saider
}

// SadPathSigGroup attaches signatures to a nested part of a SAD, addressed
// by path. Exactly one of Tsgs or Cigars is populated, mirroring the
// transferable / non-transferable split on the wire.
type SadPathSigGroup struct {
	Pather *cesr.Pather
	Tsgs   []TransIdxSigGroup
	Cigars []*cesr.Cigar
}

// Message is one assembled stream element: a deserialized body plus the
// attachment bundle that arrived with it.
type Message struct {
	Serder *serder.Serder

	Sigers []*cesr.Siger
	Wigers []*cesr.Siger
	Cigars []*cesr.Cigar
	Tsgs   []TransIdxSigGroup
	Ltsgs  []TransLastIdxSigGroup
	Frcs   []FirstSeenReplayCouple
	Sscs   []SealSourceCouple
	Ssts   []SealSourceTriple
	Paths  []SadPathSigGroup
	// Pathed holds opaque pathed-material frames carried for downstream
	// consumers.
	Pathed [][]byte
	Essrs  []*cesr.Texter
}

// HasSigs reports whether any signature form arrived with the message --
// queries and exchanges are rejected without one.
func (m *Message) HasSigs() bool {
	return len(m.Sigers) > 0 || len(m.Cigars) > 0 || len(m.Tsgs) > 0 || len(m.Ltsgs) > 0
}
