// Package kever implements the per-identifier key event log verifier and
// the dispatcher that routes events to it: the Kever state machine applies
// inception, rotation, interaction and delegated events against prior-next
// digest commitments, signing thresholds and witness thresholds; the
// Kevery owns the identifier table, the escrow buckets and the
// receipt/query handling.
package kever

import (
	"fmt"
	"sync"

	"github.com/datatrails/go-datatrails-common/logger"

	"github.com/forestrie/go-keri/cesr"
	"github.com/forestrie/go-keri/db"
	"github.com/forestrie/go-keri/serder"
)

// Config trait labels carried in an establishment event's `c` field.
const (
	TraitEstOnly       = "EO"
	TraitDoNotDelegate = "DND"
	TraitNoBackers     = "NB"
)

// ProcessOpts carries the per-event transition inputs beyond the message
// and its controller signatures (spec.md §4.3).
type ProcessOpts struct {
	Wigers    []*cesr.Siger
	DelSeqner *cesr.Seqner
	DelSaider *cesr.Saider
	Firner    *cesr.Seqner
	Dater     *cesr.Dater
	Local     bool
	// Check verifies without persisting or mutating first-seen state.
	Check bool
}

// Kever is the verified key state of one identifier prefix, created at
// inception and mutated only through Update. It holds a borrowed handle to
// the database; the database never calls back in.
type Kever struct {
	Log logger.Logger

	db  *db.Store
	mu  sync.Mutex

	pre      string
	prefixer *cesr.Prefixer
	sn       uint64
	said     string
	ilk      serder.Ilk
	serder   *serder.Serder

	verfers  []*cesr.Verfer
	tholder  *Tholder
	ntholder *Tholder
	ndigers  []*cesr.Diger
	wits     []string
	toad     int

	estOnly       bool
	doNotDelegate bool
	delpre        string

	lastEstSn uint64
	lastEstSd string

	fn    uint64
	dts   string

	transferable bool
}

func (k *Kever) Pre() string          { return k.pre }
func (k *Kever) Sn() uint64           { return k.sn }
func (k *Kever) Said() string         { return k.said }
func (k *Kever) Ilk() serder.Ilk      { return k.ilk }
func (k *Kever) Fn() uint64           { return k.fn }
func (k *Kever) Dts() string          { return k.dts }
func (k *Kever) Wits() []string       { return append([]string(nil), k.wits...) }
func (k *Kever) Toad() int            { return k.toad }
func (k *Kever) Delpre() string       { return k.delpre }
func (k *Kever) Transferable() bool   { return k.transferable }
func (k *Kever) LastEst() (uint64, string) { return k.lastEstSn, k.lastEstSd }

// Verfers returns the current signing keys.
func (k *Kever) Verfers() []*cesr.Verfer { return append([]*cesr.Verfer(nil), k.verfers...) }

// NewKever verifies an inception (icp/dip) event and, on success, logs it
// and returns the live key state.
func NewKever(log logger.Logger, store *db.Store, srdr *serder.Serder, sigers []*cesr.Siger, opts *ProcessOpts) (*Kever, error) {
	if opts == nil {
		opts = &ProcessOpts{}
	}
	ilk := srdr.Ilk()
	if ilk != serder.IlkIcp && ilk != serder.IlkDip {
		return nil, fmt.Errorf("%w: ilk %s cannot incept", ErrValidation, ilk)
	}
	if err := srdr.VerifySaid(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	sn, err := srdr.Sn()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if sn != 0 {
		return nil, fmt.Errorf("%w: inception at sn %d", ErrValidation, sn)
	}

	k := &Kever{Log: log, db: store}
	if err := k.derive(srdr); err != nil {
		return nil, err
	}
	k.pre = srdr.Pre()

	prefixer, _, err := cesr.PrefixerFromQb64(k.pre)
	if err != nil {
		return nil, fmt.Errorf("%w: bad prefix %q: %v", ErrValidation, k.pre, err)
	}
	k.prefixer = prefixer
	k.transferable = prefixer.Transferable()

	if prefixer.Digestive() {
		if k.pre != srdr.Said() {
			return nil, fmt.Errorf("%w: self-addressing prefix differs from said", ErrValidation)
		}
	} else {
		// basic derivation: the prefix is the sole key
		keys := srdr.Keys()
		if len(keys) != 1 || keys[0] != k.pre {
			return nil, fmt.Errorf("%w: basic prefix must equal the sole key", ErrValidation)
		}
	}
	if !k.transferable {
		// a non-transferable identifier can never rotate, delegate or
		// designate witnesses
		if len(k.ndigers) > 0 || len(k.wits) > 0 || len(srdr.Data()) > 0 || srdr.Delpre() != "" {
			return nil, fmt.Errorf("%w: non-transferable inception carries rotation material", ErrValidation)
		}
	}
	if ilk == serder.IlkDip {
		if srdr.Delpre() == "" {
			return nil, fmt.Errorf("%w: dip without delegator", ErrValidation)
		}
		k.delpre = srdr.Delpre()
	}

	if err := k.verifySigs(srdr, sigers, k.verfers, k.tholder); err != nil {
		return nil, err
	}
	if err := k.checkMisfit(opts); err != nil {
		return nil, err
	}
	if ilk == serder.IlkDip {
		if err := k.checkDelegation(srdr, opts); err != nil {
			return nil, err
		}
	}
	if err := k.verifyWits(srdr, k.wits, k.toad, opts); err != nil {
		return nil, err
	}

	k.sn = 0
	k.said = srdr.Said()
	k.ilk = ilk
	k.serder = srdr
	k.lastEstSn = 0
	k.lastEstSd = srdr.Said()

	if err := k.logEvent(srdr, sigers, opts, true); err != nil {
		return nil, err
	}
	return k, nil
}

// derive pulls the key material, thresholds and witness roster out of an
// establishment event into the receiver, validating their internal
// consistency. It does not touch sequence/chain state.
func (k *Kever) derive(srdr *serder.Serder) error {
	verfers, err := srdr.Verfers()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	tholder, err := NewTholder(srdr.Kt())
	if err != nil {
		return fmt.Errorf("%w: kt: %v", ErrValidation, err)
	}
	if len(verfers) < tholder.Size() {
		return fmt.Errorf("%w: %d keys under threshold size %d", ErrValidation, len(verfers), tholder.Size())
	}
	ntholder, err := NewTholder(srdr.Nt())
	if err != nil {
		return fmt.Errorf("%w: nt: %v", ErrValidation, err)
	}
	ndigers, err := srdr.Ndigers()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if len(ndigers) < ntholder.Size() {
		return fmt.Errorf("%w: %d next digests under threshold size %d", ErrValidation, len(ndigers), ntholder.Size())
	}

	var wits []string
	var toad int
	if srdr.Ilk() == serder.IlkIcp || srdr.Ilk() == serder.IlkDip {
		wits = srdr.Wits()
		if err := checkDistinct(wits); err != nil {
			return err
		}
		toad, err = srdr.Bt()
		if err != nil {
			return fmt.Errorf("%w: bt: %v", ErrValidation, err)
		}
		// at inception a zero threshold over a non-empty roster is allowed
		if toad < 0 || toad > len(wits) {
			return fmt.Errorf("%w: bt %d out of range for %d witnesses", ErrValidation, toad, len(wits))
		}
		for _, trait := range srdr.Traits() {
			switch trait {
			case TraitEstOnly:
				k.estOnly = true
			case TraitDoNotDelegate:
				k.doNotDelegate = true
			}
		}
	}

	k.verfers = verfers
	k.tholder = tholder
	k.ntholder = ntholder
	k.ndigers = ndigers
	k.wits = wits
	k.toad = toad
	return nil
}

func checkDistinct(wits []string) error {
	seen := map[string]bool{}
	for _, w := range wits {
		if seen[w] {
			return fmt.Errorf("%w: duplicate witness %s", ErrValidation, w)
		}
		seen[w] = true
	}
	return nil
}

func checkToad(toad, witCount int) error {
	if witCount == 0 {
		if toad != 0 {
			return fmt.Errorf("%w: bt %d with no witnesses", ErrValidation, toad)
		}
		return nil
	}
	if toad < 1 || toad > witCount {
		return fmt.Errorf("%w: bt %d out of range for %d witnesses", ErrValidation, toad, witCount)
	}
	return nil
}

// verifySigs checks each indexed controller signature against the key at
// its index, deduplicates indices preserving insertion order, and applies
// the signing threshold. Short of threshold is the partially-signed escrow
// condition.
func (k *Kever) verifySigs(srdr *serder.Serder, sigers []*cesr.Siger, verfers []*cesr.Verfer, tholder *Tholder) error {
	var indices []int
	seen := map[int]bool{}
	for _, sig := range sigers {
		idx := sig.Index()
		if idx < 0 || idx >= len(verfers) {
			return fmt.Errorf("%w: signature index %d outside key list", ErrValidation, idx)
		}
		if seen[idx] {
			continue
		}
		if !sig.Verify(verfers[idx], srdr.Raw()) {
			continue
		}
		seen[idx] = true
		indices = append(indices, idx)
	}
	if !tholder.Satisfy(indices) {
		return fmt.Errorf("%w: %s at sn %s said %s", ErrPartiallySigned, srdr.Pre(), srdr.Sad().GetString("s"), srdr.Said())
	}
	return nil
}

// checkMisfit enforces the event-source discipline: an event for a locally
// owned or group identifier must arrive from a local source first.
func (k *Kever) checkMisfit(opts *ProcessOpts) error {
	if opts.Local {
		return nil
	}
	if k.db.HasPrefix(k.pre) || k.db.HasGroup(k.pre) {
		return fmt.Errorf("%w: %s", ErrMisfit, k.pre)
	}
	return nil
}

// checkDelegation requires the delegator seal source couple and verifies
// the referenced delegator event both exists and anchors this event's
// (i, s, d) seal. Missing material is the delegable escrow condition; a
// present but wrong seal is terminal.
func (k *Kever) checkDelegation(srdr *serder.Serder, opts *ProcessOpts) error {
	if k.delpre == "" {
		return nil
	}
	if opts.DelSeqner == nil || opts.DelSaider == nil {
		return fmt.Errorf("%w: %s said %s", ErrDelegable, srdr.Pre(), srdr.Said())
	}
	delSaid, err := opts.DelSaider.Qb64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	raw, ok := k.db.GetEvt(k.delpre, delSaid)
	if !ok {
		// delegator event not yet seen
		return fmt.Errorf("%w: delegator event %s unseen", ErrDelegable, delSaid)
	}
	delSrdr, err := serder.FromRaw(raw)
	if err != nil {
		return fmt.Errorf("%w: stored delegator event unreadable: %v", ErrValidation, err)
	}
	snHex := serder.HexNum(0)
	if sn, err := srdr.Sn(); err == nil {
		snHex = serder.HexNum(sn)
	}
	for _, item := range delSrdr.Data() {
		seal, ok := item.(map[string]any)
		if !ok {
			// CBOR decodes maps with interface keys
			if m, isIface := item.(map[any]any); isIface {
				seal = map[string]any{}
				for mk, mv := range m {
					if ks, isStr := mk.(string); isStr {
						seal[ks] = mv
					}
				}
			} else {
				continue
			}
		}
		if seal["i"] == srdr.Pre() && seal["s"] == snHex && seal["d"] == srdr.Said() {
			return nil
		}
	}
	return fmt.Errorf("%w: delegator event %s does not seal %s", ErrValidation, delSaid, srdr.Said())
}

// verifyWits applies the witness accountability threshold: toad verified
// indexed witness signatures, indexed into the witness roster. The check
// is skipped when there are no witnesses or the threshold is zero, and
// when this node is itself the controller or one of the witnesses.
func (k *Kever) verifyWits(srdr *serder.Serder, wits []string, toad int, opts *ProcessOpts) error {
	if len(wits) == 0 || toad == 0 {
		return nil
	}
	if k.db.HasPrefix(k.pre) {
		return nil
	}
	for _, w := range wits {
		if k.db.HasPrefix(w) {
			return nil
		}
	}
	count := 0
	seen := map[int]bool{}
	for _, wig := range opts.Wigers {
		idx := wig.Index()
		if idx < 0 || idx >= len(wits) || seen[idx] {
			continue
		}
		verfer, _, err := cesr.VerferFromQb64(wits[idx])
		if err != nil {
			continue
		}
		if wig.Verify(verfer, srdr.Raw()) {
			seen[idx] = true
			count++
		}
	}
	if count < toad {
		return fmt.Errorf("%w: %d of %d for %s said %s", ErrPartiallyWitnessed, count, toad, srdr.Pre(), srdr.Said())
	}
	return nil
}

// Update applies a rotation, delegated rotation or interaction to the key
// state. All validation happens before any mutation; commit is the single
// logEvent step at the end (spec.md §5).
func (k *Kever) Update(srdr *serder.Serder, sigers []*cesr.Siger, opts *ProcessOpts) error {
	if opts == nil {
		opts = &ProcessOpts{}
	}
	k.mu.Lock()
	defer k.mu.Unlock()

	if !k.transferable {
		return fmt.Errorf("%w: %s", ErrAbandoned, k.pre)
	}
	if srdr.Pre() != k.pre {
		return fmt.Errorf("%w: event for %s routed to %s", ErrValidation, srdr.Pre(), k.pre)
	}
	if err := srdr.VerifySaid(); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	sn, err := srdr.Sn()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}

	switch srdr.Ilk() {
	case serder.IlkIxn:
		return k.interact(srdr, sn, sigers, opts)
	case serder.IlkRot, serder.IlkDrt:
		return k.rotate(srdr, sn, sigers, opts)
	case serder.IlkIcp, serder.IlkDip:
		return fmt.Errorf("%w: inception for known identifier %s", ErrOutOfOrder, k.pre)
	default:
		return fmt.Errorf("%w: ilk %s is not a key event", ErrValidation, srdr.Ilk())
	}
}

func (k *Kever) interact(srdr *serder.Serder, sn uint64, sigers []*cesr.Siger, opts *ProcessOpts) error {
	if k.estOnly {
		return fmt.Errorf("%w: interaction on establishment-only identifier %s", ErrValidation, k.pre)
	}
	if sn > k.sn+1 {
		return fmt.Errorf("%w: ixn at sn %d, expected %d", ErrOutOfOrder, sn, k.sn+1)
	}
	if sn <= k.sn {
		return fmt.Errorf("%w: ixn at sn %d, current %d", ErrStale, sn, k.sn)
	}
	if srdr.Prior() != k.said {
		return fmt.Errorf("%w: ixn prior digest mismatch at sn %d", ErrValidation, sn)
	}
	if err := k.verifySigs(srdr, sigers, k.verfers, k.tholder); err != nil {
		return err
	}
	if err := k.checkMisfit(opts); err != nil {
		return err
	}
	if err := k.verifyWits(srdr, k.wits, k.toad, opts); err != nil {
		return err
	}

	k.sn = sn
	k.said = srdr.Said()
	k.ilk = serder.IlkIxn
	k.serder = srdr
	return k.logEvent(srdr, sigers, opts, true)
}

func (k *Kever) rotate(srdr *serder.Serder, sn uint64, sigers []*cesr.Siger, opts *ProcessOpts) error {
	if len(k.ndigers) == 0 {
		// no next commitment was made: the identifier cannot rotate
		return fmt.Errorf("%w: %s has no next-key commitment", ErrAbandoned, k.pre)
	}
	if srdr.Ilk() == serder.IlkDrt {
		if k.delpre == "" {
			return fmt.Errorf("%w: drt for undelegated identifier", ErrValidation)
		}
	} else if k.delpre != "" {
		return fmt.Errorf("%w: rot for delegated identifier", ErrValidation)
	}

	recovery := false
	switch {
	case sn == k.sn+1:
		if srdr.Prior() != k.said {
			return fmt.Errorf("%w: rot prior digest mismatch at sn %d", ErrValidation, sn)
		}
	case sn <= k.sn:
		// recovery: a rotation may supersede interactions back to (but
		// not including) the latest establishment event
		if sn <= k.lastEstSn {
			return fmt.Errorf("%w: rot at sn %d under last establishment %d", ErrStale, sn, k.lastEstSn)
		}
		priorSaids := k.db.GetKelOn(k.pre, sn-1)
		if len(priorSaids) == 0 || srdr.Prior() != priorSaids[len(priorSaids)-1] {
			return fmt.Errorf("%w: recovery prior digest mismatch at sn %d", ErrValidation, sn)
		}
		recovery = true
	default:
		return fmt.Errorf("%w: rot at sn %d, expected %d", ErrOutOfOrder, sn, k.sn+1)
	}

	// stage the post-rotation state on a copy so a failed check leaves the
	// receiver untouched
	staged := &Kever{Log: k.Log, db: k.db, pre: k.pre, prefixer: k.prefixer,
		estOnly: k.estOnly, doNotDelegate: k.doNotDelegate, delpre: k.delpre,
		transferable: true, fn: k.fn, dts: k.dts}
	if err := staged.derive(srdr); err != nil {
		return err
	}

	wits, err := k.rotateWits(srdr)
	if err != nil {
		return err
	}
	toad, err := srdr.Bt()
	if err != nil {
		return fmt.Errorf("%w: bt: %v", ErrValidation, err)
	}
	if err := checkToad(toad, len(wits)); err != nil {
		return err
	}
	staged.wits = wits
	staged.toad = toad

	if err := k.verifySigs(srdr, sigers, staged.verfers, staged.tholder); err != nil {
		return err
	}
	if err := k.verifyExposure(sigers, staged.verfers); err != nil {
		return err
	}
	if err := k.checkMisfit(opts); err != nil {
		return err
	}
	if srdr.Ilk() == serder.IlkDrt {
		if err := k.checkDelegation(srdr, opts); err != nil {
			return err
		}
	}
	if err := k.verifyWits(srdr, wits, toad, opts); err != nil {
		return err
	}

	if recovery && k.Log != nil {
		k.Log.Infof("recovery rotation: pre=%s sn=%d said=%s supersedes through %d", k.pre, sn, srdr.Said(), k.sn)
	}

	k.verfers = staged.verfers
	k.tholder = staged.tholder
	k.ntholder = staged.ntholder
	k.ndigers = staged.ndigers
	k.wits = wits
	k.toad = toad
	k.sn = sn
	k.said = srdr.Said()
	k.ilk = srdr.Ilk()
	k.serder = srdr
	k.lastEstSn = sn
	k.lastEstSd = srdr.Said()
	if len(k.ndigers) == 0 {
		// rotation to empty next keys abandons the identifier
		k.transferable = false
	}
	return k.logEvent(srdr, sigers, opts, true)
}

// rotateWits computes the post-rotation witness roster
// (current - cuts) + adds, enforcing the set invariants of spec.md §4.3.
func (k *Kever) rotateWits(srdr *serder.Serder) ([]string, error) {
	cuts := srdr.Cuts()
	adds := srdr.Adds()
	if err := checkDistinct(cuts); err != nil {
		return nil, err
	}
	if err := checkDistinct(adds); err != nil {
		return nil, err
	}
	current := map[string]bool{}
	for _, w := range k.wits {
		current[w] = true
	}
	for _, c := range cuts {
		if !current[c] {
			return nil, fmt.Errorf("%w: cut %s not a current witness", ErrValidation, c)
		}
	}
	cutSet := map[string]bool{}
	for _, c := range cuts {
		cutSet[c] = true
	}
	for _, a := range adds {
		if cutSet[a] {
			return nil, fmt.Errorf("%w: %s in both cuts and adds", ErrValidation, a)
		}
		if current[a] {
			return nil, fmt.Errorf("%w: add %s already a witness", ErrValidation, a)
		}
	}
	var wits []string
	for _, w := range k.wits {
		if !cutSet[w] {
			wits = append(wits, w)
		}
	}
	wits = append(wits, adds...)
	if len(wits) != len(k.wits)-len(cuts)+len(adds) {
		return nil, fmt.Errorf("%w: witness roster arithmetic", ErrValidation)
	}
	return wits, nil
}

// verifyExposure performs the prior-next hiding-commitment check: every
// siger whose ondex lands in the prior next-digest list must expose a key
// whose digest equals that commitment, and the exposed set must satisfy
// the prior next threshold.
func (k *Kever) verifyExposure(sigers []*cesr.Siger, verfers []*cesr.Verfer) error {
	var ondices []int
	seen := map[int]bool{}
	for _, sig := range sigers {
		od := sig.Ondex()
		if od == nil {
			continue
		}
		ondex := *od
		if ondex < 0 || ondex >= len(k.ndigers) {
			continue
		}
		idx := sig.Index()
		if idx < 0 || idx >= len(verfers) {
			continue
		}
		commit := k.ndigers[ondex]
		ok, err := commit.Verify(verfers[idx].Raw())
		if err != nil {
			return fmt.Errorf("%w: %v", ErrValidation, err)
		}
		if !ok {
			return fmt.Errorf("%w: prior-next exposure mismatch at ondex %d", ErrValidation, ondex)
		}
		if !seen[ondex] {
			seen[ondex] = true
			ondices = append(ondices, ondex)
		}
	}
	if !k.ntholder.Satisfy(ondices) {
		return fmt.Errorf("%w: prior next threshold unmet with %d exposures", ErrValidation, len(ondices))
	}
	return nil
}

// logEvent is the single commit step (spec.md §4.3 log-event contract):
// event bytes, signatures, witness material, source flag, KEL slot,
// first-seen ordinal and timestamp, then the persisted key state record.
func (k *Kever) logEvent(srdr *serder.Serder, sigers []*cesr.Siger, opts *ProcessOpts, first bool) error {
	if opts.Check {
		return nil
	}
	pre, said := k.pre, srdr.Said()

	k.db.PutEvt(pre, said, srdr.Raw())
	for _, sig := range sigers {
		q64, err := sig.Qb64()
		if err != nil {
			return err
		}
		k.db.AddSigs(pre, said, q64)
	}
	for _, wig := range opts.Wigers {
		q64, err := wig.Qb64()
		if err != nil {
			return err
		}
		k.db.AddWigs(pre, said, q64)
	}
	k.db.PutWits(pre, said, k.wits)
	k.db.PutEsr(pre, said, opts.Local)
	if opts.DelSeqner != nil && opts.DelSaider != nil {
		snQ64, err := opts.DelSeqner.Qb64()
		if err != nil {
			return err
		}
		sdQ64, err := opts.DelSaider.Qb64()
		if err != nil {
			return err
		}
		k.db.PutAes(pre, said, snQ64, sdQ64)
	}
	k.db.AddKel(pre, k.sn, said)

	if first {
		if _, have := k.db.GetFon(pre, said); !have {
			dts := ""
			if opts.Dater != nil {
				// cloned ingestion preserves the origin's first-seen time
				dts = opts.Dater.Dts()
			} else if d, err := cesr.NewDater(""); err == nil {
				dts = d.Dts()
			}
			fn := k.db.AppendFel(pre, said, dts)
			if opts.Firner != nil && opts.Firner.Sn() != fn && k.Log != nil {
				k.Log.Infof("cloned ordinal %d disagrees with local %d: pre=%s said=%s", opts.Firner.Sn(), fn, pre, said)
			}
			k.db.PinFon(pre, said, fn)
			k.db.AddDts(pre, said, dts)
			k.fn = fn
			k.dts = dts
		}
	}

	return k.db.PinState(k.stateRecord())
}

// stateRecord snapshots the in-memory state into the persistable record.
func (k *Kever) stateRecord() *db.KeyStateRecord {
	keys := make([]string, 0, len(k.verfers))
	for _, v := range k.verfers {
		if q64, err := v.Qb64(); err == nil {
			keys = append(keys, q64)
		}
	}
	ndigs := make([]string, 0, len(k.ndigers))
	for _, d := range k.ndigers {
		if q64, err := d.Qb64(); err == nil {
			ndigs = append(ndigs, q64)
		}
	}
	return &db.KeyStateRecord{
		Pre:       k.pre,
		Sn:        k.sn,
		Said:      k.said,
		Ilk:       string(k.ilk),
		Keys:      keys,
		Kt:        SithText(k.tholder.Sith()),
		Nt:        SithText(k.ntholder.Sith()),
		Ndigs:     ndigs,
		Wits:      append([]string(nil), k.wits...),
		Toad:      k.toad,
		LastEstSn: k.lastEstSn,
		LastEstSd: k.lastEstSd,
		Delpre:    k.delpre,
		Fn:        k.fn,
		Dts:       k.dts,
		EstOnly:   k.estOnly,
		DnD:       k.doNotDelegate,
	}
}
