// Package seal anchors an identifier's first-seen log against an external
// commitment: a COSE_Sign1 receipt over the peaks of an append-only MMR
// accumulator built from the log's SAIDs. A replica holding an earlier
// seal can verify, by consistency proof, that the log it now sees is a
// strict append of the log the seal signed -- detecting rewritten logs
// even with no witnesses online.
package seal

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"errors"
	"fmt"
	"time"

	"github.com/datatrails/go-datatrails-common/logger"
	"github.com/fxamacker/cbor/v2"

	"github.com/forestrie/go-keri/db"
	"github.com/forestrie/go-keri/internal/coseseal"
	"github.com/forestrie/go-keri/mmr"
)

var (
	ErrEmptyLog          = errors.New("seal: first-seen log is empty")
	ErrSealRegressed     = errors.New("seal: log is shorter than the sealed state")
	ErrInconsistentLog   = errors.New("seal: log is not an append of the sealed state")
	ErrSealVerifyFailed  = errors.New("seal: receipt signature verification failed")
)

// KELState is the payload a seal receipt signs: the accumulator peaks for
// the first-seen log at the moment of sealing.
type KELState struct {
	Pre       string   `cbor:"1,keyasint"`
	MMRSize   uint64   `cbor:"2,keyasint"`
	Peaks     [][]byte `cbor:"3,keyasint"`
	FnLast    uint64   `cbor:"4,keyasint"`
	SaidLast  string   `cbor:"5,keyasint"`
	Timestamp int64    `cbor:"6,keyasint"`
}

var encMode = mustEncMode()

func mustEncMode() cbor.EncMode {
	m, err := coseseal.DeterministicEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return m
}

// nodeStore is the in-memory accumulator backing one sealing pass.
type nodeStore struct {
	nodes [][]byte
}

func (s *nodeStore) Get(i uint64) ([]byte, error) {
	if i >= uint64(len(s.nodes)) {
		return nil, fmt.Errorf("seal: node %d out of range", i)
	}
	return s.nodes[i], nil
}

func (s *nodeStore) Append(value []byte) (uint64, error) {
	v := make([]byte, len(value))
	copy(v, value)
	s.nodes = append(s.nodes, v)
	return uint64(len(s.nodes)), nil
}

// buildAccumulator replays pre's first-seen log into a fresh MMR, hashing
// each SAID into a leaf.
func buildAccumulator(store *db.Store, pre string) (*nodeStore, uint64, string, uint64, error) {
	ns := &nodeStore{}
	hasher := sha256.New()
	var lastFn uint64
	var lastSaid string
	count := uint64(0)
	var addErr error
	store.IterFel(pre, func(fn uint64, said, dts string) bool {
		leaf := sha256.Sum256([]byte(said))
		if _, err := mmr.AddHashedLeaf(ns, hasher, leaf[:]); err != nil {
			addErr = err
			return false
		}
		lastFn = fn
		lastSaid = said
		count++
		return true
	})
	if addErr != nil {
		return nil, 0, "", 0, addErr
	}
	if count == 0 {
		return nil, 0, "", 0, ErrEmptyLog
	}
	return ns, lastFn, lastSaid, uint64(len(ns.nodes)), nil
}

// Sealer signs first-seen log states.
type Sealer struct {
	Log   logger.Logger
	Store *db.Store

	key *ecdsa.PrivateKey
}

// NewSealer creates a sealer signing with key.
func NewSealer(log logger.Logger, store *db.Store, key *ecdsa.PrivateKey) *Sealer {
	return &Sealer{Log: log, Store: store, key: key}
}

// Seal builds the accumulator for pre's first-seen log and signs its
// state, returning the COSE_Sign1 receipt bytes and the state it covers.
func (s *Sealer) Seal(pre string) ([]byte, *KELState, error) {
	ns, lastFn, lastSaid, size, err := buildAccumulator(s.Store, pre)
	if err != nil {
		return nil, nil, err
	}
	peaks, err := mmr.PeakHashes(ns, size-1)
	if err != nil {
		return nil, nil, err
	}
	state := &KELState{
		Pre:       pre,
		MMRSize:   size,
		Peaks:     peaks,
		FnLast:    lastFn,
		SaidLast:  lastSaid,
		Timestamp: time.Now().UnixMilli(),
	}
	payload, err := encMode.Marshal(state)
	if err != nil {
		return nil, nil, err
	}
	msg := coseseal.NewSign1Message(payload)
	if err := msg.SignES256(s.key, nil); err != nil {
		return nil, nil, err
	}
	receipt, err := msg.MarshalCBOR()
	if err != nil {
		return nil, nil, err
	}
	if s.Log != nil {
		s.Log.Infof("sealed: pre=%s mmrSize=%d fn=%d said=%s", pre, size, lastFn, lastSaid)
	}
	return receipt, state, nil
}

// Verifier checks seal receipts and log consistency against them.
type Verifier struct {
	Log logger.Logger

	pub *ecdsa.PublicKey
}

// NewVerifier creates a verifier trusting pub as the sealing key.
func NewVerifier(log logger.Logger, pub *ecdsa.PublicKey) *Verifier {
	return &Verifier{Log: log, pub: pub}
}

// VerifyReceipt checks the receipt signature and decodes the sealed state.
func (v *Verifier) VerifyReceipt(receipt []byte) (*KELState, error) {
	msg, err := coseseal.ParseSign1Message(receipt)
	if err != nil {
		return nil, err
	}
	if err := msg.VerifyWithPublicKey(v.pub, nil); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSealVerifyFailed, err)
	}
	var state KELState
	if err := cbor.Unmarshal(msg.Payload, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

// VerifyConsistency proves that pre's current first-seen log in store is a
// strict append of the sealed state: every sealed accumulator peak must be
// includable in the current accumulator.
func (v *Verifier) VerifyConsistency(store *db.Store, pre string, sealed *KELState) error {
	ns, _, _, size, err := buildAccumulator(store, pre)
	if err != nil {
		return err
	}
	if size < sealed.MMRSize {
		return fmt.Errorf("%w: have %d, sealed %d", ErrSealRegressed, size, sealed.MMRSize)
	}
	if size == sealed.MMRSize {
		peaks, err := mmr.PeakHashes(ns, size-1)
		if err != nil {
			return err
		}
		if len(peaks) != len(sealed.Peaks) {
			return ErrInconsistentLog
		}
		for i := range peaks {
			if !bytesEqual(peaks[i], sealed.Peaks[i]) {
				return ErrInconsistentLog
			}
		}
		return nil
	}
	ok, _, err := mmr.CheckConsistency(ns, sha256.New(), sealed.MMRSize, size, sealed.Peaks)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInconsistentLog, err)
	}
	if !ok {
		return ErrInconsistentLog
	}
	return nil
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
