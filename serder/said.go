package serder

import (
	"errors"
	"strings"

	"github.com/forestrie/go-keri/cesr"
)

var (
	ErrMissingField = errors.New("serder: required field missing for ilk")
	ErrSAIDMismatch = errors.New("serder: SAID verification failed")
)

// BuildEvent implements the SAID encode algorithm of spec.md §4.2: start
// from a field map with `d` (and, for self-addressing ilks, `i`) set to
// code-correct '#' placeholders, fill `v` with the exact serialized size,
// then compute the digest of the placeholder-bearing bytes and splice the
// real SAID back in. Because the `v` field is a fixed 17-character span
// regardless of the actual size digits, the placeholder and final
// serializations are always the same byte length, so one re-serialize
// after computing the real `v` already yields the bytes the digest is
// taken over.
//
// extra holds every field beyond v/t/d in the exact order RequiredFields
// specifies for ilk; iDigestive marks ilks (icp, dip) whose `i` field is
// itself a SAID equal to `d` (self-addressing identifier prefixes).
func BuildEvent(ilk Ilk, protocol string, ver Version, kind Kind, digestCode string, extra []Field, iDigestive bool) (*Sadder, []byte, error) {
	if digestCode == "" {
		digestCode = cesr.DefaultDigestCode
	}
	digLen, err := cesr.CodeRawLen(digestCode)
	if err != nil {
		return nil, nil, err
	}
	placeholder := strings.Repeat("#", digLen)

	placeholderV, err := PlaceholderVersionString(protocol, ver, kind)
	if err != nil {
		return nil, nil, err
	}

	sad := NewSadder()
	sad.Set("v", placeholderV)
	sad.Set("t", string(ilk))
	sad.Set("d", placeholder)
	for _, f := range extra {
		if f.Key == "i" && iDigestive {
			sad.Set("i", placeholder)
			continue
		}
		sad.Set(f.Key, f.Value)
	}

	if err := checkRequired(ilk, sad); err != nil {
		return nil, nil, err
	}

	codec, err := CodecFor(kind)
	if err != nil {
		return nil, nil, err
	}

	raw1, err := codec.Marshal(sad)
	if err != nil {
		return nil, nil, err
	}
	vReal, err := VersionString(protocol, ver, kind, len(raw1))
	if err != nil {
		return nil, nil, err
	}
	sad.Set("v", vReal)

	raw2, err := codec.Marshal(sad)
	if err != nil {
		return nil, nil, err
	}
	diger, err := cesr.NewDiger(digestCode, raw2)
	if err != nil {
		return nil, nil, err
	}
	said, err := diger.Qb64()
	if err != nil {
		return nil, nil, err
	}
	sad.Set("d", said)
	if iDigestive {
		sad.Set("i", said)
	}

	final, err := codec.Marshal(sad)
	if err != nil {
		return nil, nil, err
	}
	return sad, final, nil
}

// checkRequired verifies every field spec.md §4.2's required-field table
// names for ilk is present.
func checkRequired(ilk Ilk, sad *Sadder) error {
	for _, k := range CommonFields {
		if _, ok := sad.Get(k); !ok {
			return ErrMissingField
		}
	}
	for _, k := range RequiredFields[ilk] {
		if _, ok := sad.Get(k); !ok {
			return ErrMissingField
		}
	}
	return nil
}

// VerifySAID recomputes the digest of sad (as serialized in kind) with its
// digest fields replaced by placeholders, and checks it against the stored
// `d` value -- the verify half of P2/S6.
func VerifySAID(sad *Sadder, kind Kind) (bool, error) {
	dVal := sad.GetString("d")
	if dVal == "" {
		return false, ErrMissingField
	}
	diger, _, err := cesr.DigerFromQb64(dVal)
	if err != nil {
		return false, err
	}

	placeholder := strings.Repeat("#", len(dVal))
	clone := sad.Clone()
	clone.Set("d", placeholder)
	if iVal, ok := sad.Get("i"); ok {
		if s, _ := iVal.(string); s == dVal {
			clone.Set("i", placeholder)
		}
	}

	codec, err := CodecFor(kind)
	if err != nil {
		return false, err
	}
	raw, err := codec.Marshal(clone)
	if err != nil {
		return false, err
	}
	expected, err := cesr.NewDiger(diger.Code(), raw)
	if err != nil {
		return false, err
	}
	expectedQ64, err := expected.Qb64()
	if err != nil {
		return false, err
	}
	if expectedQ64 != dVal {
		return false, ErrSAIDMismatch
	}
	return true, nil
}
