// Package db is the key-value store abstraction the KEL verifier depends
// on: ordered append, get-last and iterator semantics over the sub-stores
// of spec.md §6 (evts, sigs, wigs, rcts, dtss, aess, kels, fels, fons,
// states, habs, prefixes, groups). The storage *engine* is an external
// collaborator; the in-memory Store here is the reference implementation
// the core and its tests run against.
//
// The first-seen log additionally maintains an append-only crit-bit index
// (the urkle package) over first-seen ordinals, giving O(log n) inclusion
// and exclusion proofs over (fn -> said) bindings beyond the plain ordered
// iteration the verifier needs.
package db

import (
	"errors"
	"sort"
	"sync"

	"github.com/fxamacker/cbor/v2"

	"github.com/forestrie/go-keri/internal/coseseal"
)

var (
	ErrNotFound      = errors.New("db: not found")
	ErrDuplicateSlot = errors.New("db: distinct digest already occupies this (pre, sn) slot")
)

// KeyStateRecord is the persisted key state for one identifier, pinned
// into the states sub-store after every accepted event.
type KeyStateRecord struct {
	Pre       string   `cbor:"1,keyasint"`
	Sn        uint64   `cbor:"2,keyasint"`
	Said      string   `cbor:"3,keyasint"`
	Ilk       string   `cbor:"4,keyasint"`
	Keys      []string `cbor:"5,keyasint"`
	Kt        string   `cbor:"6,keyasint"`
	Nt        string   `cbor:"7,keyasint"`
	Ndigs     []string `cbor:"8,keyasint"`
	Wits      []string `cbor:"9,keyasint"`
	Toad      int      `cbor:"10,keyasint"`
	LastEstSn uint64   `cbor:"11,keyasint"`
	LastEstSd string   `cbor:"12,keyasint"`
	Delpre    string   `cbor:"13,keyasint,omitempty"`
	Fn        uint64   `cbor:"14,keyasint"`
	Dts       string   `cbor:"15,keyasint"`
	EstOnly   bool     `cbor:"16,keyasint,omitempty"`
	DnD       bool     `cbor:"17,keyasint,omitempty"`
}

// HabitatRecord names a locally controlled identifier.
type HabitatRecord struct {
	Name string `cbor:"1,keyasint"`
	Pre  string `cbor:"2,keyasint"`
}

// ReceiptCouple is a non-transferable receipt: the receiptor key and its
// signature, both qb64.
type ReceiptCouple struct {
	Verfer string
	Cigar  string
}

// ReceiptQuadruple is a transferable validator receipt: the receiptor
// prefix, the sequence number and SAID of its latest establishment event,
// and an indexed signature, all qb64.
type ReceiptQuadruple struct {
	Pre    string
	Snu    string
	Said   string
	Siger  string
}

type felEntry struct {
	said string
	dts  string
}

type preStore struct {
	evts map[string][]byte          // said -> raw
	sigs map[string][]string        // said -> controller sigs (insertion ordered, deduped)
	wigs map[string][]string        // said -> witness sigs
	rcts map[string][]ReceiptCouple // said -> nontrans receipt couples
	vrcs map[string][]ReceiptQuadruple
	wits map[string][]string // said -> witness list at that event
	dtss map[string]string   // said -> first-seen ISO-8601 timestamp
	aess map[string][2]string
	esrs map[string]bool // said -> locally sourced
	fons map[string]uint64

	kels    map[uint64][]string // sn -> saids (first is first-seen)
	kelSns  []uint64            // sorted
	fels    []felEntry
	felIdx  *fnIndex
	state   []byte
	seal    []byte
	hab     *HabitatRecord
}

// Store is the in-memory reference store. A single lock serializes writes,
// which trivially satisfies the per-identifier ordering requirement of
// spec.md §5: first-seen ordinals are monotonic and no torn reads are
// observable.
type Store struct {
	mu       sync.RWMutex
	pres     map[string]*preStore
	prefixes map[string]bool
	groups   map[string]bool
}

// New creates an empty store.
func New() *Store {
	return &Store{
		pres:     map[string]*preStore{},
		prefixes: map[string]bool{},
		groups:   map[string]bool{},
	}
}

func (s *Store) pre(pre string) *preStore {
	p, ok := s.pres[pre]
	if !ok {
		p = &preStore{
			evts: map[string][]byte{},
			sigs: map[string][]string{},
			wigs: map[string][]string{},
			rcts: map[string][]ReceiptCouple{},
			vrcs: map[string][]ReceiptQuadruple{},
			wits: map[string][]string{},
			dtss: map[string]string{},
			aess: map[string][2]string{},
			esrs: map[string]bool{},
			fons: map[string]uint64{},
			kels: map[uint64][]string{},
		}
		s.pres[pre] = p
	}
	return p
}

// PutEvt stores the serialized event bytes under its digest key.
func (s *Store) PutEvt(pre, said string, raw []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(raw))
	copy(cp, raw)
	s.pre(pre).evts[said] = cp
}

// GetEvt returns the serialized event bytes for a digest key.
func (s *Store) GetEvt(pre, said string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.pres[pre]
	if !ok {
		return nil, false
	}
	raw, ok := p.evts[said]
	return raw, ok
}

func addUnique(dst []string, vals ...string) []string {
	for _, v := range vals {
		dup := false
		for _, have := range dst {
			if have == v {
				dup = true
				break
			}
		}
		if !dup {
			dst = append(dst, v)
		}
	}
	return dst
}

// AddSigs appends controller signatures (deduped, insertion ordered).
func (s *Store) AddSigs(pre, said string, sigs ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.pre(pre)
	p.sigs[said] = addUnique(p.sigs[said], sigs...)
}

// GetSigs returns the stored controller signatures.
func (s *Store) GetSigs(pre, said string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.pres[pre]; ok {
		return append([]string(nil), p.sigs[said]...)
	}
	return nil
}

// AddWigs appends witness signatures.
func (s *Store) AddWigs(pre, said string, wigs ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.pre(pre)
	p.wigs[said] = addUnique(p.wigs[said], wigs...)
}

// GetWigs returns the stored witness signatures.
func (s *Store) GetWigs(pre, said string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.pres[pre]; ok {
		return append([]string(nil), p.wigs[said]...)
	}
	return nil
}

// AddRct appends a non-transferable receipt couple.
func (s *Store) AddRct(pre, said string, rc ReceiptCouple) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.pre(pre)
	for _, have := range p.rcts[said] {
		if have == rc {
			return
		}
	}
	p.rcts[said] = append(p.rcts[said], rc)
}

// GetRcts returns the stored receipt couples.
func (s *Store) GetRcts(pre, said string) []ReceiptCouple {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.pres[pre]; ok {
		return append([]ReceiptCouple(nil), p.rcts[said]...)
	}
	return nil
}

// AddVrc appends a transferable validator receipt quadruple.
func (s *Store) AddVrc(pre, said string, rq ReceiptQuadruple) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.pre(pre)
	for _, have := range p.vrcs[said] {
		if have == rq {
			return
		}
	}
	p.vrcs[said] = append(p.vrcs[said], rq)
}

// GetVrcs returns the stored validator receipt quadruples.
func (s *Store) GetVrcs(pre, said string) []ReceiptQuadruple {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.pres[pre]; ok {
		return append([]ReceiptQuadruple(nil), p.vrcs[said]...)
	}
	return nil
}

// PutWits stores the witness list in effect at an event.
func (s *Store) PutWits(pre, said string, wits []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pre(pre).wits[said] = append([]string(nil), wits...)
}

// GetWits returns the witness list in effect at an event.
func (s *Store) GetWits(pre, said string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.pres[pre]; ok {
		return append([]string(nil), p.wits[said]...)
	}
	return nil
}

// AddDts records the first-seen timestamp idempotently: the first write
// wins, later writes are ignored.
func (s *Store) AddDts(pre, said, dts string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.pre(pre)
	if _, ok := p.dtss[said]; !ok {
		p.dtss[said] = dts
	}
}

// PinDts overwrites the first-seen timestamp (cloned-replay ingestion).
func (s *Store) PinDts(pre, said, dts string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pre(pre).dtss[said] = dts
}

// GetDts returns the first-seen timestamp.
func (s *Store) GetDts(pre, said string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.pres[pre]; ok {
		dts, ok := p.dtss[said]
		return dts, ok
	}
	return "", false
}

// PutAes stores the authorizing (delegator seal source) couple for a
// delegated event.
func (s *Store) PutAes(pre, said, delSnQb64, delSaid string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pre(pre).aess[said] = [2]string{delSnQb64, delSaid}
}

// GetAes returns the delegator seal source couple.
func (s *Store) GetAes(pre, said string) (snQb64, delSaid string, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, found := s.pres[pre]; found {
		c, ok := p.aess[said]
		return c[0], c[1], ok
	}
	return "", "", false
}

// PutEsr records the event source: local arrivals promote, remote arrivals
// never demote.
func (s *Store) PutEsr(pre, said string, local bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.pre(pre)
	p.esrs[said] = p.esrs[said] || local
}

// GetEsr reports whether the event has been seen from a local source.
func (s *Store) GetEsr(pre, said string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.pres[pre]; ok {
		return p.esrs[said]
	}
	return false
}

// AddKel binds said into the (pre, sn) slot. The first said at a slot is
// the first-seen one; later distinct saids (recovery superseders, or
// duplicitous events retained as evidence) append after it.
func (s *Store) AddKel(pre string, sn uint64, said string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.pre(pre)
	if _, ok := p.kels[sn]; !ok {
		p.kelSns = append(p.kelSns, sn)
		sort.Slice(p.kelSns, func(i, j int) bool { return p.kelSns[i] < p.kelSns[j] })
	}
	p.kels[sn] = addUnique(p.kels[sn], said)
}

// GetKelOn returns all saids bound at (pre, sn), first-seen first.
func (s *Store) GetKelOn(pre string, sn uint64) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.pres[pre]; ok {
		return append([]string(nil), p.kels[sn]...)
	}
	return nil
}

// GetKelLast returns the highest bound slot.
func (s *Store) GetKelLast(pre string) (sn uint64, saids []string, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, found := s.pres[pre]
	if !found || len(p.kelSns) == 0 {
		return 0, nil, false
	}
	sn = p.kelSns[len(p.kelSns)-1]
	return sn, append([]string(nil), p.kels[sn]...), true
}

// IterKel walks the KEL in ascending sn order from fromSn, yielding the
// authoritative (latest bound) said at each slot -- after a recovery the
// superseding rotation, not the superseded interaction. Returning false
// from fn stops the walk.
func (s *Store) IterKel(pre string, fromSn uint64, fn func(sn uint64, said string) bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.pres[pre]
	if !ok {
		return
	}
	for _, sn := range p.kelSns {
		if sn < fromSn {
			continue
		}
		saids := p.kels[sn]
		if len(saids) == 0 {
			continue
		}
		if !fn(sn, saids[len(saids)-1]) {
			return
		}
	}
}

// IterKelBack walks the KEL in descending sn order.
func (s *Store) IterKelBack(pre string, fn func(sn uint64, said string) bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.pres[pre]
	if !ok {
		return
	}
	for i := len(p.kelSns) - 1; i >= 0; i-- {
		sn := p.kelSns[i]
		saids := p.kels[sn]
		if len(saids) == 0 {
			continue
		}
		if !fn(sn, saids[len(saids)-1]) {
			return
		}
	}
}

// AppendFel appends said to the first-seen log and returns its ordinal.
// The ordinal sequence is strictly increasing and contiguous (P4). The
// crit-bit first-seen index grows in the same step.
func (s *Store) AppendFel(pre, said, dts string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.pre(pre)
	fn := uint64(len(p.fels))
	p.fels = append(p.fels, felEntry{said: said, dts: dts})
	if p.felIdx == nil {
		p.felIdx = newFnIndex()
	}
	p.felIdx.append(fn, said)
	return fn
}

// IterFel walks the first-seen log ascending. Returning false stops.
func (s *Store) IterFel(pre string, fn func(ordinal uint64, said string, dts string) bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.pres[pre]
	if !ok {
		return
	}
	for i, e := range p.fels {
		if !fn(uint64(i), e.said, e.dts) {
			return
		}
	}
}

// FelLen returns the first-seen log length.
func (s *Store) FelLen(pre string) uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.pres[pre]; ok {
		return uint64(len(p.fels))
	}
	return 0
}

// PinFon binds the first-seen ordinal to the digest key.
func (s *Store) PinFon(pre, said string, fon uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pre(pre).fons[said] = fon
}

// GetFon returns the first-seen ordinal for a digest key.
func (s *Store) GetFon(pre, said string) (uint64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.pres[pre]; ok {
		fon, ok := p.fons[said]
		return fon, ok
	}
	return 0, false
}

var stateEncMode = mustStateEncMode()

func mustStateEncMode() cbor.EncMode {
	m, err := coseseal.DeterministicEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return m
}

// PinState overwrites the persisted key state.
func (s *Store) PinState(rec *KeyStateRecord) error {
	raw, err := stateEncMode.Marshal(rec)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pre(rec.Pre).state = raw
	return nil
}

// GetState reads the persisted key state.
func (s *Store) GetState(pre string) (*KeyStateRecord, bool, error) {
	s.mu.RLock()
	raw := []byte(nil)
	if p, ok := s.pres[pre]; ok {
		raw = p.state
	}
	s.mu.RUnlock()
	if raw == nil {
		return nil, false, nil
	}
	var rec KeyStateRecord
	if err := cbor.Unmarshal(raw, &rec); err != nil {
		return nil, false, err
	}
	return &rec, true, nil
}

// PinSeal overwrites the latest first-seen log seal receipt for pre.
func (s *Store) PinSeal(pre string, receipt []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(receipt))
	copy(cp, receipt)
	s.pre(pre).seal = cp
}

// GetSeal returns the latest seal receipt for pre.
func (s *Store) GetSeal(pre string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.pres[pre]; ok && p.seal != nil {
		return p.seal, true
	}
	return nil, false
}

// PinHab records a habitat (locally controlled identifier) binding.
func (s *Store) PinHab(rec *HabitatRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pre(rec.Pre).hab = rec
	s.prefixes[rec.Pre] = true
}

// GetHab returns the habitat record for pre.
func (s *Store) GetHab(pre string) (*HabitatRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.pres[pre]; ok && p.hab != nil {
		return p.hab, true
	}
	return nil, false
}

// AddPrefix marks pre as locally owned.
func (s *Store) AddPrefix(pre string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prefixes[pre] = true
}

// HasPrefix reports whether pre is locally owned.
func (s *Store) HasPrefix(pre string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.prefixes[pre]
}

// AddGroup marks pre as a group identifier.
func (s *Store) AddGroup(pre string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.groups[pre] = true
}

// HasGroup reports whether pre is a group identifier.
func (s *Store) HasGroup(pre string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.groups[pre]
}
