package db

import (
	"crypto/sha256"

	"github.com/forestrie/go-keri/urkle"
)

// fnIndex is the per-identifier crit-bit index over the first-seen log:
// key is the first-seen ordinal, value the 32-byte digest of the bound
// SAID. Ordinals are strictly increasing, which is exactly the monotone
// insertion discipline the append-only urkle builder requires.
//
// Inserts are recorded as they happen; the trie itself is materialized on
// demand because finalizing the builder closes its frontier. The entry
// list makes that rebuild a replay, and the finalized snapshot is cached
// until the next append.
type fnIndex struct {
	entries []fnEntry
	snap    *fnSnapshot
}

type fnEntry struct {
	fn    uint64
	value [urkle.HashBytes]byte
}

type fnSnapshot struct {
	leafTable []byte
	nodeStore []byte
	root      urkle.Ref
	rootHash  [urkle.HashBytes]byte
}

func newFnIndex() *fnIndex {
	return &fnIndex{}
}

// saidValue condenses a SAID of any digest width to the index's fixed
// 32-byte value slot.
func saidValue(said string) [urkle.HashBytes]byte {
	return sha256.Sum256([]byte(said))
}

func (x *fnIndex) append(fn uint64, said string) {
	x.entries = append(x.entries, fnEntry{fn: fn, value: saidValue(said)})
	x.snap = nil
}

// snapshot replays the recorded entries into a freshly allocated trie and
// finalizes it.
func (x *fnIndex) snapshot() (*fnSnapshot, error) {
	if x.snap != nil {
		return x.snap, nil
	}
	n := uint64(len(x.entries))
	if n == 0 {
		return nil, urkle.ErrEmptyTrie
	}
	leafTable := make([]byte, urkle.LeafTableBytes(n))
	nodeStore := make([]byte, urkle.NodeStoreBytes(n))
	b, err := urkle.NewBuilder(sha256.New(), leafTable, nodeStore)
	if err != nil {
		return nil, err
	}
	for _, e := range x.entries {
		if _, err := b.InsertMonotone(e.fn, e.value[:]); err != nil {
			return nil, err
		}
	}
	root, rootHash, err := b.Finalize()
	if err != nil {
		return nil, err
	}
	x.snap = &fnSnapshot{leafTable: leafTable, nodeStore: nodeStore, root: root, rootHash: rootHash}
	return x.snap, nil
}

// FirstSeenProof carries an inclusion proof for one (fn, said) binding of
// an identifier's first-seen log, against the index root at the time the
// proof was generated.
type FirstSeenProof struct {
	Root  [urkle.HashBytes]byte
	Proof urkle.InclusionProof
}

// FirstSeenAbsence carries an exclusion proof refuting a claimed first-seen
// ordinal.
type FirstSeenAbsence struct {
	Root  [urkle.HashBytes]byte
	Proof urkle.ExclusionProof
}

// ProveFirstSeen produces an inclusion proof for ordinal fn of pre's
// first-seen log.
func (s *Store) ProveFirstSeen(pre string, fn uint64) (*FirstSeenProof, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pres[pre]
	if !ok || p.felIdx == nil {
		return nil, ErrNotFound
	}
	snap, err := p.felIdx.snapshot()
	if err != nil {
		return nil, err
	}
	proof, err := urkle.ProveInclusion(snap.leafTable, snap.nodeStore, snap.root, fn)
	if err != nil {
		return nil, err
	}
	return &FirstSeenProof{Root: snap.rootHash, Proof: proof}, nil
}

// RefuteFirstSeen produces an exclusion proof that ordinal fn is not bound
// in pre's first-seen log -- used during out-of-order escrow review to
// refute a forged ordinal claim.
func (s *Store) RefuteFirstSeen(pre string, fn uint64) (*FirstSeenAbsence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pres[pre]
	if !ok || p.felIdx == nil {
		return nil, ErrNotFound
	}
	snap, err := p.felIdx.snapshot()
	if err != nil {
		return nil, err
	}
	proof, err := urkle.ProveExclusion(snap.leafTable, snap.nodeStore, snap.root, fn)
	if err != nil {
		return nil, err
	}
	return &FirstSeenAbsence{Root: snap.rootHash, Proof: proof}, nil
}

// VerifyFirstSeen checks an inclusion proof against its root and the said
// it claims to bind.
func VerifyFirstSeen(p *FirstSeenProof, said string) (bool, error) {
	ok, _, _, err := urkle.VerifyInclusion(sha256.New(), p.Root, p.Proof)
	if err != nil || !ok {
		return false, err
	}
	want := saidValue(said)
	return p.Proof.Value == want, nil
}

// VerifyFirstSeenAbsence checks an exclusion proof against its root.
func VerifyFirstSeenAbsence(a *FirstSeenAbsence) (bool, error) {
	ok, _, _, _, err := urkle.VerifyExclusion(sha256.New(), a.Root, a.Proof)
	return ok, err
}
