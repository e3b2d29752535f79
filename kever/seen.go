package kever

import (
	"crypto/sha256"

	"github.com/forestrie/go-keri/bloom"
)

// seenFilter is a per-identifier membership cache over accepted event
// SAIDs: a cheap probabilistic "have I fully verified this already" check
// that runs before the signature-threshold path on hot identifiers. A
// maybe answer is confirmed against the event store before an arrival is
// treated as a duplicate, so false positives cost one extra read and can
// never drop a novel event.
type seenFilter struct {
	region   []byte
	capacity uint64
	inserted uint64
}

const (
	seenBitsPerElement = 10
	seenHashes         = 7
	seenFilterIdx      = 0
	seenMinCapacity    = 64
)

func newSeenFilter(capacity uint64) (*seenFilter, error) {
	if capacity < seenMinCapacity {
		capacity = seenMinCapacity
	}
	mBits := bloom.MBitsSafeCast(bloom.MBitsV1(capacity, seenBitsPerElement))
	if mBits == 0 {
		return nil, bloom.ErrMBitsOverflow
	}
	region := make([]byte, bloom.RegionBytesV1(mBits))
	if err := bloom.InitV1(region, capacity, seenBitsPerElement, seenHashes); err != nil {
		return nil, err
	}
	return &seenFilter{region: region, capacity: capacity}, nil
}

func seenElem(said string) []byte {
	sum := sha256.Sum256([]byte(said))
	return sum[:]
}

func (f *seenFilter) insert(said string) error {
	if err := bloom.InsertV1(f.region, seenFilterIdx, seenElem(said)); err != nil {
		return err
	}
	f.inserted++
	return nil
}

func (f *seenFilter) maybeContains(said string) bool {
	ok, err := bloom.MaybeContainsV1(f.region, seenFilterIdx, seenElem(said))
	return err == nil && ok
}

// full reports whether the filter has absorbed its sized-for element
// count; the owner rebuilds a doubled filter from the KEL when it fills.
func (f *seenFilter) full() bool {
	return f.inserted >= f.capacity
}
