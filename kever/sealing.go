package kever

import (
	"github.com/forestrie/go-keri/seal"
)

// DefaultSealInterval is the number of newly accepted first-seen events
// between seal receipts when the caller does not choose one.
const DefaultSealInterval = 16

// Sealing wires the first-seen log sealer into the dispatcher. With a
// Sealer configured, every acceptance that grows an identifier's
// first-seen log past the interval produces a fresh COSE receipt, pinned
// into the seals sub-store. With a Verifier configured, the out-of-order
// escrow's reentry path rechecks that the grown log is still a strict
// append of the last sealed state -- a late-arriving prior event that
// rewrites history fails the consistency proof even when its signatures
// all verify.
type Sealing struct {
	Sealer   *seal.Sealer
	Verifier *seal.Verifier
	// Interval is the number of new first-seen events that triggers a
	// fresh seal; zero selects DefaultSealInterval.
	Interval uint64
}

// EnableSealing installs the sealing hooks on the dispatcher.
func (kvy *Kevery) EnableSealing(s Sealing) {
	if s.Interval == 0 {
		s.Interval = DefaultSealInterval
	}
	kvy.mu.Lock()
	defer kvy.mu.Unlock()
	kvy.sealing = &s
}

// sealedState returns the last sealed state for pre, recovering it from
// the pinned receipt when the in-memory cache is cold (restart case).
func (kvy *Kevery) sealedState(pre string) *seal.KELState {
	kvy.mu.Lock()
	st := kvy.sealed[pre]
	s := kvy.sealing
	kvy.mu.Unlock()
	if st != nil || s == nil || s.Verifier == nil {
		return st
	}
	receipt, ok := kvy.DB.GetSeal(pre)
	if !ok {
		return nil
	}
	st, err := s.Verifier.VerifyReceipt(receipt)
	if err != nil {
		if kvy.Log != nil {
			kvy.Log.Infof("pinned seal unreadable: pre=%s err=%v", pre, err)
		}
		return nil
	}
	kvy.mu.Lock()
	kvy.sealed[pre] = st
	kvy.mu.Unlock()
	return st
}

// maybeSeal produces and pins a fresh seal receipt once the first-seen
// log has grown an interval past the last sealed state. Invoked on every
// acceptance.
func (kvy *Kevery) maybeSeal(pre string) {
	kvy.mu.Lock()
	s := kvy.sealing
	kvy.mu.Unlock()
	if s == nil || s.Sealer == nil {
		return
	}
	covered := uint64(0)
	if st := kvy.sealedState(pre); st != nil {
		covered = st.FnLast + 1
	}
	if kvy.DB.FelLen(pre) < covered+s.Interval {
		return
	}
	receipt, state, err := s.Sealer.Seal(pre)
	if err != nil {
		if kvy.Log != nil {
			kvy.Log.Infof("sealing failed: pre=%s err=%v", pre, err)
		}
		return
	}
	kvy.DB.PinSeal(pre, receipt)
	kvy.mu.Lock()
	kvy.sealed[pre] = state
	kvy.mu.Unlock()
}

// recheckSeal verifies that pre's first-seen log is still a strict append
// of the last sealed state. Invoked whenever the out-of-order escrow
// re-enters events for pre.
func (kvy *Kevery) recheckSeal(pre string) {
	kvy.mu.Lock()
	s := kvy.sealing
	kvy.mu.Unlock()
	if s == nil || s.Verifier == nil {
		return
	}
	st := kvy.sealedState(pre)
	if st == nil {
		return
	}
	if err := s.Verifier.VerifyConsistency(kvy.DB, pre, st); err != nil && kvy.Log != nil {
		kvy.Log.Infof("seal consistency recheck failed: pre=%s mmrSize=%d said=%s err=%v", pre, st.MMRSize, st.SaidLast, err)
	}
}
