package kever

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/datatrails/go-datatrails-common/logger"

	"github.com/forestrie/go-keri/cesr"
	"github.com/forestrie/go-keri/db"
	"github.com/forestrie/go-keri/escrow"
	"github.com/forestrie/go-keri/seal"
	"github.com/forestrie/go-keri/serder"
)

// Mode adjusts how the dispatcher treats arriving material (spec.md §4.4).
type Mode struct {
	// Lax tolerates signatures from keys it cannot resolve instead of
	// failing the message.
	Lax bool
	// Local treats every processed message as locally sourced (direct
	// controller connection).
	Local bool
	// Cloned ingests a replay preserving the origin's first-seen ordinals
	// and timestamps.
	Cloned bool
	// Check verifies without persisting.
	Check bool
}

// KeveryConfig carries construction-time tunables.
type KeveryConfig struct {
	Mode Mode
	// EscrowTTL bounds how long escrowed events wait; zero selects the
	// escrow package default.
	EscrowTTL time.Duration
}

// Kevery owns the identifier -> Kever table and routes each assembled
// message to the right verifier, filing recoverable failures into the
// escrow buckets and re-entering them when their prerequisites arrive.
type Kevery struct {
	Cfg KeveryConfig
	Log logger.Logger
	DB  *db.Store

	mu      sync.Mutex
	kevers  map[string]*Kever
	escrows *escrow.Store
	seen    map[string]*seenFilter
	sealing *Sealing
	sealed  map[string]*seal.KELState
}

// NewKevery creates a dispatcher over store.
func NewKevery(cfg KeveryConfig, log logger.Logger, store *db.Store) *Kevery {
	opts := []escrow.Option{}
	if cfg.EscrowTTL > 0 {
		opts = append(opts, escrow.WithTTL(cfg.EscrowTTL))
	}
	return &Kevery{
		Cfg:     cfg,
		Log:     log,
		DB:      store,
		kevers:  map[string]*Kever{},
		escrows: escrow.New(opts...),
		seen:    map[string]*seenFilter{},
		sealed:  map[string]*seal.KELState{},
	}
}

// Kever returns the live verifier for pre, if any.
func (kvy *Kevery) Kever(pre string) (*Kever, bool) {
	kvy.mu.Lock()
	defer kvy.mu.Unlock()
	k, ok := kvy.kevers[pre]
	return k, ok
}

// Escrows exposes the bucket store (read-mostly: tests and operators
// inspect pending counts).
func (kvy *Kevery) Escrows() *escrow.Store { return kvy.escrows }

// ProcessEvent routes a key event (icp, rot, ixn, dip, drt) to its Kever,
// creating one on inception. Escrow-able failures are filed, not returned
// as hard errors; terminal validation failures are returned after logging.
func (kvy *Kevery) ProcessEvent(srdr *serder.Serder, sigers []*cesr.Siger, opts *ProcessOpts) error {
	if opts == nil {
		opts = &ProcessOpts{}
	}
	if kvy.Cfg.Mode.Local {
		opts.Local = true
	}
	if kvy.Cfg.Mode.Check {
		opts.Check = true
	}
	if !kvy.Cfg.Mode.Cloned {
		// only a cloned replay may impose the origin's first-seen ordinals
		// and timestamps
		opts.Firner = nil
		opts.Dater = nil
	}
	pre := srdr.Pre()
	said := srdr.Said()

	// duplicate fast path: the probabilistic seen check, confirmed against
	// the event store before treating the arrival as a replay
	if kvy.maybeSeen(pre, said) {
		if _, have := kvy.DB.GetEvt(pre, said); have {
			kvy.absorbSigs(pre, said, sigers, opts.Wigers)
			if opts.Local {
				// any local-source arrival promotes the event source
				kvy.DB.PutEsr(pre, said, true)
			}
			return nil
		}
	}

	kvy.mu.Lock()
	k, known := kvy.kevers[pre]
	kvy.mu.Unlock()

	var err error
	if !known {
		switch srdr.Ilk() {
		case serder.IlkIcp, serder.IlkDip:
			k, err = NewKever(kvy.Log, kvy.DB, srdr, sigers, opts)
			if err == nil {
				kvy.mu.Lock()
				kvy.kevers[pre] = k
				kvy.mu.Unlock()
			}
		default:
			err = fmt.Errorf("%w: %s before inception of %s", ErrOutOfOrder, srdr.Ilk(), pre)
		}
	} else {
		err = k.Update(srdr, sigers, opts)
	}

	if err != nil {
		return kvy.disposition(srdr, sigers, opts, err)
	}

	kvy.markSeen(pre, said)
	kvy.logAccept(srdr)
	if !opts.Check {
		kvy.maybeSeal(pre)
	}
	kvy.reenter(pre)
	return nil
}

// disposition files an escrow-able failure into its bucket and surfaces
// terminal ones.
func (kvy *Kevery) disposition(srdr *serder.Serder, sigers []*cesr.Siger, opts *ProcessOpts, err error) error {
	kind, ok := escrowKind(err)
	if !ok {
		if kvy.Log != nil {
			sn, _ := srdr.Sn()
			kvy.Log.Infof("dropping event: pre=%s sn=%d said=%s err=%v", srdr.Pre(), sn, srdr.Said(), err)
		}
		return err
	}
	sn, _ := srdr.Sn()
	env := &escrow.Envelope{
		Pre:   srdr.Pre(),
		Sn:    sn,
		Said:  srdr.Said(),
		Raw:   append([]byte(nil), srdr.Raw()...),
		Local: opts.Local,
	}
	for _, sig := range sigers {
		if q64, qerr := sig.Qb64(); qerr == nil {
			env.Sigs = append(env.Sigs, q64)
		}
	}
	for _, wig := range opts.Wigers {
		if q64, qerr := wig.Qb64(); qerr == nil {
			env.Wigs = append(env.Wigs, q64)
		}
	}
	id := kvy.escrows.Put(kind, env)
	if kvy.Log != nil {
		kvy.Log.Infof("escrowed %s: id=%s pre=%s sn=%d said=%s err=%v", kind, id, env.Pre, env.Sn, env.Said, err)
	}
	return nil
}

func escrowKind(err error) (escrow.Kind, bool) {
	switch {
	case errors.Is(err, ErrOutOfOrder):
		return escrow.OutOfOrder, true
	case errors.Is(err, ErrPartiallySigned):
		return escrow.PartiallySigned, true
	case errors.Is(err, ErrPartiallyWitnessed):
		return escrow.PartiallyWitnessed, true
	case errors.Is(err, ErrDelegable):
		return escrow.Delegable, true
	case errors.Is(err, ErrMisfit):
		return escrow.Misfit, true
	default:
		return 0, false
	}
}

// reenter drains every bucket for pre and retries its envelopes: the
// uniform reentry path invoked when matching signatures or prerequisite
// events arrive. Re-entering out-of-order material additionally rechecks
// the first-seen log against its last seal: a late-arriving prior event
// must extend the sealed history, never rewrite it.
func (kvy *Kevery) reenter(pre string) {
	outOfOrder := 0
	for _, kind := range []escrow.Kind{
		escrow.OutOfOrder, escrow.PartiallySigned, escrow.PartiallyWitnessed,
		escrow.Delegable, escrow.Misfit,
	} {
		envs := kvy.escrows.Drain(kind, pre)
		if kind == escrow.OutOfOrder {
			outOfOrder = len(envs)
		}
		for _, env := range envs {
			if err := kvy.retry(env); err != nil && kvy.Log != nil {
				kvy.Log.Debugf("escrow retry pending: id=%s pre=%s sn=%d said=%s err=%v", env.ID, env.Pre, env.Sn, env.Said, err)
			}
		}
	}
	if outOfOrder > 0 {
		kvy.recheckSeal(pre)
	}
}

// retry re-dispatches an escrowed envelope through ProcessEvent,
// reconstructing its primitives from the stored qb64 forms.
func (kvy *Kevery) retry(env *escrow.Envelope) error {
	srdr, err := serder.FromRaw(env.Raw)
	if err != nil {
		return err
	}
	var sigers []*cesr.Siger
	for _, q64 := range env.Sigs {
		sig, _, serr := cesr.SigerFromQb64(q64)
		if serr != nil {
			continue
		}
		sigers = append(sigers, sig)
	}
	var wigers []*cesr.Siger
	for _, q64 := range env.Wigs {
		wig, _, werr := cesr.SigerFromQb64(q64)
		if werr != nil {
			continue
		}
		wigers = append(wigers, wig)
	}
	return kvy.ProcessEvent(srdr, sigers, &ProcessOpts{Wigers: wigers, Local: env.Local})
}

// ProcessEscrows sweeps every bucket across all identifiers, retrying and
// pruning expired envelopes. Identifier order is shuffled to avoid
// head-of-line bias when draining a large batch.
func (kvy *Kevery) ProcessEscrows() {
	for _, kind := range []escrow.Kind{
		escrow.OutOfOrder, escrow.PartiallySigned, escrow.PartiallyWitnessed,
		escrow.Delegable, escrow.Misfit,
	} {
		pres := kvy.escrows.Pres(kind)
		rand.Shuffle(len(pres), func(i, j int) { pres[i], pres[j] = pres[j], pres[i] })
		for _, pre := range pres {
			for _, env := range kvy.escrows.Drain(kind, pre) {
				if err := kvy.retry(env); err != nil && kvy.Log != nil {
					kvy.Log.Debugf("escrow sweep pending: id=%s pre=%s sn=%d err=%v", env.ID, env.Pre, env.Sn, err)
				}
			}
		}
	}
	for _, env := range kvy.escrows.Prune(time.Now()) {
		if kvy.Log != nil {
			kvy.Log.Infof("escrow expired: id=%s pre=%s sn=%d said=%s", env.ID, env.Pre, env.Sn, env.Said)
		}
	}
}

// ProcessReceipt attaches non-transferable receipt couples (witness or
// other non-transferable receiptors) to the referenced event, re-entering
// any partially-witnessed escrow that may now satisfy.
func (kvy *Kevery) ProcessReceipt(srdr *serder.Serder, cigars []*cesr.Cigar) error {
	if srdr.Ilk() != serder.IlkRct {
		return fmt.Errorf("%w: ilk %s is not a receipt", ErrValidation, srdr.Ilk())
	}
	pre := srdr.Pre()
	said := srdr.Said()
	raw, ok := kvy.DB.GetEvt(pre, said)
	if !ok {
		// the referenced event may be waiting in the partially-witnessed
		// bucket: this receipt could be exactly what releases it
		return kvy.receiptToEscrow(pre, said, cigars)
	}

	wits := kvy.DB.GetWits(pre, said)
	witIdx := map[string]int{}
	for i, w := range wits {
		witIdx[w] = i
	}
	for _, cig := range cigars {
		if cig.Verfer() == nil {
			continue
		}
		if !cig.Verify(raw) {
			if kvy.Cfg.Mode.Lax {
				continue
			}
			return fmt.Errorf("%w: receipt signature invalid for %s", ErrValidation, said)
		}
		verferQ64, err := cig.Verfer().Qb64()
		if err != nil {
			continue
		}
		cigQ64, err := cig.Qb64()
		if err != nil {
			continue
		}
		kvy.DB.AddRct(pre, said, db.ReceiptCouple{Verfer: verferQ64, Cigar: cigQ64})
		if idx, isWit := witIdx[verferQ64]; isWit {
			// a witness receipt also counts as a witness signature,
			// which may release a partially-witnessed escrow
			wig, err := newWitnessSiger(cig, idx)
			if err == nil {
				if q64, qerr := wig.Qb64(); qerr == nil {
					kvy.DB.AddWigs(pre, said, q64)
				}
			}
		}
	}
	kvy.reenter(pre)
	return nil
}

func newWitnessSiger(cig *cesr.Cigar, index int) (*cesr.Siger, error) {
	return cesr.NewIndexedSig(cig.Raw(), index)
}

// receiptToEscrow feeds receipt couples to an event still waiting in the
// partially-witnessed bucket, then retries it.
func (kvy *Kevery) receiptToEscrow(pre, said string, cigars []*cesr.Cigar) error {
	env := kvy.escrows.DrainSaid(escrow.PartiallyWitnessed, pre, said)
	if env == nil {
		if kvy.Log != nil {
			kvy.Log.Debugf("receipt for unseen event: pre=%s said=%s", pre, said)
		}
		return nil
	}
	srdr, err := serder.FromRaw(env.Raw)
	if err != nil {
		return err
	}
	wits := kvy.escrowedWits(srdr)
	witIdx := map[string]int{}
	for i, w := range wits {
		witIdx[w] = i
	}
	for _, cig := range cigars {
		if cig.Verfer() == nil || !cig.Verify(env.Raw) {
			continue
		}
		verferQ64, qerr := cig.Verfer().Qb64()
		if qerr != nil {
			continue
		}
		idx, isWit := witIdx[verferQ64]
		if !isWit {
			continue
		}
		wig, werr := newWitnessSiger(cig, idx)
		if werr != nil {
			continue
		}
		if q64, qerr := wig.Qb64(); qerr == nil {
			env.Wigs = append(env.Wigs, q64)
		}
	}
	if err := kvy.retry(env); err != nil {
		// still short: refile with the accumulated receipts
		kvy.escrows.Put(escrow.PartiallyWitnessed, env)
	}
	return nil
}

// witnessSigsToEscrow feeds indexed witness signatures to an event still
// waiting in the partially-witnessed bucket, then retries it.
func (kvy *Kevery) witnessSigsToEscrow(pre, said string, wigers []*cesr.Siger) error {
	env := kvy.escrows.DrainSaid(escrow.PartiallyWitnessed, pre, said)
	if env == nil {
		if kvy.Log != nil {
			kvy.Log.Debugf("witness receipt for unseen event: pre=%s said=%s", pre, said)
		}
		return nil
	}
	for _, wig := range wigers {
		if q64, err := wig.Qb64(); err == nil {
			env.Wigs = append(env.Wigs, q64)
		}
	}
	if err := kvy.retry(env); err != nil {
		kvy.escrows.Put(escrow.PartiallyWitnessed, env)
	}
	return nil
}

// escrowedWits resolves the witness roster an escrowed event would take
// effect with: the declared roster for inceptions, the cut/add adjusted
// roster for rotations, the current roster otherwise.
func (kvy *Kevery) escrowedWits(srdr *serder.Serder) []string {
	switch srdr.Ilk() {
	case serder.IlkIcp, serder.IlkDip:
		return srdr.Wits()
	case serder.IlkRot, serder.IlkDrt:
		k, ok := kvy.Kever(srdr.Pre())
		if !ok {
			return nil
		}
		cut := map[string]bool{}
		for _, c := range srdr.Cuts() {
			cut[c] = true
		}
		var wits []string
		for _, w := range k.Wits() {
			if !cut[w] {
				wits = append(wits, w)
			}
		}
		return append(wits, srdr.Adds()...)
	default:
		k, ok := kvy.Kever(srdr.Pre())
		if !ok {
			return nil
		}
		return k.Wits()
	}
}

// ProcessReceiptWitness attaches indexed witness signatures carried by a
// receipt message.
func (kvy *Kevery) ProcessReceiptWitness(srdr *serder.Serder, wigers []*cesr.Siger) error {
	if srdr.Ilk() != serder.IlkRct {
		return fmt.Errorf("%w: ilk %s is not a receipt", ErrValidation, srdr.Ilk())
	}
	pre := srdr.Pre()
	said := srdr.Said()
	raw, ok := kvy.DB.GetEvt(pre, said)
	if !ok {
		return kvy.witnessSigsToEscrow(pre, said, wigers)
	}
	wits := kvy.DB.GetWits(pre, said)
	for _, wig := range wigers {
		idx := wig.Index()
		if idx < 0 || idx >= len(wits) {
			if kvy.Cfg.Mode.Lax {
				continue
			}
			return fmt.Errorf("%w: witness index %d outside roster", ErrValidation, idx)
		}
		verfer, _, err := cesr.VerferFromQb64(wits[idx])
		if err != nil || !wig.Verify(verfer, raw) {
			if kvy.Cfg.Mode.Lax {
				continue
			}
			return fmt.Errorf("%w: witness receipt signature invalid", ErrValidation)
		}
		if q64, qerr := wig.Qb64(); qerr == nil {
			kvy.DB.AddWigs(pre, said, q64)
		}
	}
	kvy.reenter(pre)
	return nil
}

// ProcessAttachedReceiptCouples attaches (verfer, cigar) couples that
// arrived as attachments on the event message itself.
func (kvy *Kevery) ProcessAttachedReceiptCouples(srdr *serder.Serder, cigars []*cesr.Cigar) error {
	rct, err := serder.Receipt(srdr.Pre(), mustSn(srdr), srdr.Said(), serder.KindJSON)
	if err != nil {
		return err
	}
	return kvy.ProcessReceipt(rct, cigars)
}

// ProcessAttachedReceiptQuadruples attaches transferable validator
// receipts: (pre, snu, said, siger) quadruples referencing the receiptor's
// establishment event.
func (kvy *Kevery) ProcessAttachedReceiptQuadruples(srdr *serder.Serder, quads []db.ReceiptQuadruple) error {
	pre := srdr.Pre()
	said := srdr.Said()
	if _, ok := kvy.DB.GetEvt(pre, said); !ok {
		if kvy.Log != nil {
			kvy.Log.Debugf("validator receipt for unseen event: pre=%s said=%s", pre, said)
		}
		return nil
	}
	for _, q := range quads {
		kvy.DB.AddVrc(pre, said, q)
	}
	return nil
}

// ProcessQuery serves a read-only query: the "logs" route replays the
// identifier's accepted KEL as raw event bytes in sequence-number order,
// one authoritative event per sequence number.
func (kvy *Kevery) ProcessQuery(srdr *serder.Serder) ([][]byte, error) {
	if srdr.Ilk() != serder.IlkQry {
		return nil, fmt.Errorf("%w: ilk %s is not a query", ErrValidation, srdr.Ilk())
	}
	q, _ := srdr.Sad().Get("q")
	params, _ := q.(map[string]any)
	pre, _ := params["i"].(string)
	if pre == "" {
		return nil, fmt.Errorf("%w: query without identifier", ErrValidation)
	}
	route := srdr.Sad().GetString("r")
	switch route {
	case "logs", "ksn":
	default:
		return nil, fmt.Errorf("%w: unknown query route %q", ErrValidation, route)
	}

	var out [][]byte
	kvy.DB.IterKel(pre, 0, func(sn uint64, said string) bool {
		if raw, ok := kvy.DB.GetEvt(pre, said); ok {
			out = append(out, raw)
		}
		return true
	})
	return out, nil
}

// maybeSeen consults the per-identifier bloom filter.
func (kvy *Kevery) maybeSeen(pre, said string) bool {
	kvy.mu.Lock()
	f := kvy.seen[pre]
	kvy.mu.Unlock()
	return f != nil && f.maybeContains(said)
}

// markSeen inserts said into pre's filter, growing it by KEL replay when
// it fills.
func (kvy *Kevery) markSeen(pre, said string) {
	kvy.mu.Lock()
	defer kvy.mu.Unlock()
	f := kvy.seen[pre]
	if f == nil {
		nf, err := newSeenFilter(seenMinCapacity)
		if err != nil {
			return
		}
		f = nf
		kvy.seen[pre] = f
	}
	if f.full() {
		nf, err := newSeenFilter(f.capacity * 2)
		if err == nil {
			kvy.DB.IterKel(pre, 0, func(sn uint64, kelSaid string) bool {
				_ = nf.insert(kelSaid)
				return true
			})
			f = nf
			kvy.seen[pre] = f
		}
	}
	_ = f.insert(said)
}

// absorbSigs attaches late-arriving signatures on a duplicate event.
func (kvy *Kevery) absorbSigs(pre, said string, sigers []*cesr.Siger, wigers []*cesr.Siger) {
	for _, sig := range sigers {
		if q64, err := sig.Qb64(); err == nil {
			kvy.DB.AddSigs(pre, said, q64)
		}
	}
	for _, wig := range wigers {
		if q64, err := wig.Qb64(); err == nil {
			kvy.DB.AddWigs(pre, said, q64)
		}
	}
}

func (kvy *Kevery) logAccept(srdr *serder.Serder) {
	if kvy.Log == nil {
		return
	}
	sn, _ := srdr.Sn()
	kvy.Log.Debugf("accepted %s: pre=%s sn=%d said=%s", srdr.Ilk(), srdr.Pre(), sn, srdr.Said())
}

func mustSn(srdr *serder.Serder) uint64 {
	sn, _ := srdr.Sn()
	return sn
}
