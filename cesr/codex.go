// Package cesr implements the Composable Event Streaming Representation:
// a compact, bit-aligned dual-domain (text/binary) encoding for the
// cryptographic primitives (keys, signatures, digests, numbers, tags,
// counters) a KERI key event log is built from.
//
// The sizing-table-driven fixed/variable framing here is grounded on the
// teacher's bit-packed region framing in bloom/header.go and
// bloom/sizing.go (HeaderBytesV1, RegionBytesV1, the header-plus-payload
// layout), generalized from a single fixed Bloom-filter region to the
// many-sized code families CESR needs.
package cesr

import "errors"

// Sizage is the sizing tuple for one CESR code entry: hard size, soft
// size, soft-area extra zero-prepad, full fixed size (0 for variable),
// and lead-byte count.
type Sizage struct {
	HS int
	SS int
	XS int
	FS int
	LS int
}

var (
	ErrUnknownCode      = errors.New("cesr: unknown derivation code")
	ErrInvalidBase64     = errors.New("cesr: invalid base64url text")
	ErrNonZeroMidpad     = errors.New("cesr: non-zero bits in prepad region")
	ErrNonZeroLead       = errors.New("cesr: non-zero lead bytes")
	ErrSizeOverflow      = errors.New("cesr: size field overflow")
	ErrShortage          = errors.New("cesr: insufficient bytes for frame")
	ErrBadPrepad         = errors.New("cesr: computed prepad does not match code size class")
	ErrFixedSizeMismatch = errors.New("cesr: raw length inconsistent with fixed code size")
	ErrBadKeyEncoding    = errors.New("cesr: public key is not a canonical curve point")
)

// Matter derivation codes. Letters and two-character "0x" codes below
// follow the real KERI derivation-code table for the primitives this
// module implements; codes for other primitives are not included.
const (
	CodeEd25519Seed    = "A"
	CodeEd25519N       = "B" // non-transferable verification key
	CodeX25519         = "C"
	CodeEd25519        = "D" // transferable verification key
	CodeBlake3_256      = "E"
	CodeBlake2b_256     = "F"
	CodeBlake2s_256     = "G"
	CodeSHA3_256        = "H"
	CodeSHA2_256        = "I"
	CodeECDSA256k1N    = "J"
	CodeECDSA256k1     = "K"

	CodeSalt128        = "0A"
	CodeEd25519Sig     = "0B"
	CodeECDSA256k1Sig  = "0C"
	CodeBlake3_512      = "0D"
	CodeBlake2b_512     = "0E"
	CodeSHA3_512        = "0F"
	CodeSHA2_512        = "0G"

	// Variable-size "Bytes" codes carry opaque or text payloads (used for
	// qry/rpy/exn free-form fields, SAD-path Pather text, ESSR Texter).
	// Leader selects the lead-byte count (0,1,2) the way the spec's
	// 4../5../6.. (small) and 7../8../9.. (big) families do.
	CodeBytesL0 = "4A" // small variant, ls=0
	CodeBytesL1 = "5A" // small variant, ls=1
	CodeBytesL2 = "6A" // small variant, ls=2
	CodeBytesB0 = "7AAA" // big variant, ls=0
	CodeBytesB1 = "8AAA" // big variant, ls=1
	CodeBytesB2 = "9AAA" // big variant, ls=2

	// Tag codes: fixed-length base64 label carried entirely in the soft
	// area (no raw payload) -- used for config traits ('c' entries) and
	// protocol/ilk-adjacent small tags.
	CodeTag1 = "X"
	CodeTag2 = "0X"
	CodeTag3 = "1XAA"

	// CodeDateTime qualifies an ISO-8601 datetime whose 32 characters have
	// been mapped into the base64url alphabet (':' '.' '+' become 'c' 'd'
	// 'p') and decoded to 24 raw bytes.
	CodeDateTime = "1AAG"
)

// matterSizes is the static hs/ss/xs/fs/ls table for every fixed-size
// Matter code. Variable-size codes are computed by sizeVar, not looked up
// here (their fs depends on the encoded soft count).
var matterSizes = map[string]Sizage{
	CodeEd25519Seed: {HS: 1, SS: 0, XS: 0, FS: 44, LS: 0},
	CodeEd25519N:    {HS: 1, SS: 0, XS: 0, FS: 44, LS: 0},
	CodeX25519:      {HS: 1, SS: 0, XS: 0, FS: 44, LS: 0},
	CodeEd25519:     {HS: 1, SS: 0, XS: 0, FS: 44, LS: 0},
	CodeBlake3_256:   {HS: 1, SS: 0, XS: 0, FS: 44, LS: 0},
	CodeBlake2b_256:  {HS: 1, SS: 0, XS: 0, FS: 44, LS: 0},
	CodeBlake2s_256:  {HS: 1, SS: 0, XS: 0, FS: 44, LS: 0},
	CodeSHA3_256:     {HS: 1, SS: 0, XS: 0, FS: 44, LS: 0},
	CodeSHA2_256:     {HS: 1, SS: 0, XS: 0, FS: 44, LS: 0},
	CodeECDSA256k1N: {HS: 1, SS: 0, XS: 0, FS: 44, LS: 0},
	CodeECDSA256k1:  {HS: 1, SS: 0, XS: 0, FS: 44, LS: 0},

	CodeSalt128:       {HS: 2, SS: 0, XS: 0, FS: 24, LS: 0},
	CodeEd25519Sig:    {HS: 2, SS: 0, XS: 0, FS: 88, LS: 0},
	CodeECDSA256k1Sig: {HS: 2, SS: 0, XS: 0, FS: 88, LS: 0},
	CodeBlake3_512:     {HS: 2, SS: 0, XS: 0, FS: 88, LS: 0},
	CodeBlake2b_512:    {HS: 2, SS: 0, XS: 0, FS: 88, LS: 0},
	CodeSHA3_512:       {HS: 2, SS: 0, XS: 0, FS: 88, LS: 0},
	CodeSHA2_512:       {HS: 2, SS: 0, XS: 0, FS: 88, LS: 0},

	CodeTag1: {HS: 1, SS: 3, XS: 0, FS: 4, LS: 0},
	CodeTag2: {HS: 2, SS: 2, XS: 0, FS: 4, LS: 0},
	CodeTag3: {HS: 4, SS: 4, XS: 0, FS: 8, LS: 0},

	CodeDateTime: {HS: 4, SS: 0, XS: 0, FS: 36, LS: 0},
}

// varMatterSizes gives the hs/ss/xs/ls for the variable-size "Bytes"
// families; fs is computed per-instance from the soft size field.
var varMatterSizes = map[string]Sizage{
	CodeBytesL0: {HS: 2, SS: 2, XS: 0, FS: 0, LS: 0},
	CodeBytesL1: {HS: 2, SS: 2, XS: 0, FS: 0, LS: 1},
	CodeBytesL2: {HS: 2, SS: 2, XS: 0, FS: 0, LS: 2},
	CodeBytesB0: {HS: 4, SS: 4, XS: 0, FS: 0, LS: 0},
	CodeBytesB1: {HS: 4, SS: 4, XS: 0, FS: 0, LS: 1},
	CodeBytesB2: {HS: 4, SS: 4, XS: 0, FS: 0, LS: 2},
}

// IsVariable reports whether code is one of the variable-size families.
func IsVariable(code string) bool {
	_, ok := varMatterSizes[code]
	return ok
}

// LookupMatter returns the sizage for a fixed- or variable-size Matter
// code. Numeric codes are resolved by LookupNum instead.
func LookupMatter(code string) (Sizage, error) {
	if sz, ok := matterSizes[code]; ok {
		return sz, nil
	}
	if sz, ok := varMatterSizes[code]; ok {
		return sz, nil
	}
	return Sizage{}, ErrUnknownCode
}

// HardSizeForLeader returns the hard-code size implied by a code's leading
// character(s), per spec.md's partitioning:
//
//	single alpha leader   -> 1-char fixed code
//	'0'..'3' leader       -> 2-char fixed code
//	'1' + "AAx" pattern   -> 4-char fixed code
//	'4'..'6' leader       -> 2-char variable (small)
//	'7'..'9' leader       -> 4-char variable (big)
func HardSizeForLeader(lead byte) (int, error) {
	switch {
	case lead >= 'A' && lead <= 'Z', lead >= 'a' && lead <= 'z':
		return 1, nil
	case lead == '1':
		return 4, nil
	case lead >= '0' && lead <= '3':
		return 2, nil
	case lead >= '4' && lead <= '6':
		return 2, nil
	case lead >= '7' && lead <= '9':
		return 4, nil
	default:
		return 0, ErrUnknownCode
	}
}

// DigDex is the set of digest derivation codes.
var DigDex = map[string]bool{
	CodeBlake3_256: true, CodeBlake2b_256: true, CodeBlake2s_256: true,
	CodeSHA3_256: true, CodeSHA2_256: true,
	CodeBlake3_512: true, CodeBlake2b_512: true, CodeSHA3_512: true, CodeSHA2_512: true,
}

// NonTransDex is the set of non-transferable identifier verification-key
// codes.
var NonTransDex = map[string]bool{
	CodeEd25519N: true, CodeECDSA256k1N: true,
}

// PreDex is the set of codes valid as an identifier prefix: every digest
// code (self-addressing/self-certifying identifiers) plus every basic
// verification-key code, transferable or not.
var PreDex = unionSets(DigDex, NonTransDex, map[string]bool{
	CodeEd25519: true, CodeECDSA256k1: true,
})

// NumDex is the set of compact numeric codes from 2 up to 17 raw bytes,
// used for sequence numbers, thresholds and small counters carried as
// qualified primitives rather than plain hex.
var NumDex = buildNumDex()

// TagDex / LabelDex are the fixed-length base64 tag codes.
var TagDex = map[string]bool{CodeTag1: true, CodeTag2: true, CodeTag3: true}
var LabelDex = TagDex

func unionSets(sets ...map[string]bool) map[string]bool {
	out := map[string]bool{}
	for _, s := range sets {
		for k := range s {
			out[k] = true
		}
	}
	return out
}

// buildNumDex synthesizes the 2..17 byte numeric-code family. Numeric
// codes are 2-char hard codes "0H".."0W" sized by raw byte count.
func buildNumDex() map[string]bool {
	out := map[string]bool{}
	for rawLen := 2; rawLen <= 17; rawLen++ {
		code := numCodeForRawLen(rawLen)
		out[code] = true
		numSizes[code] = sizeForFixedRaw(2, 0, rawLen)
	}
	return out
}

const numLetters = "HIJKLMNOPQRSTUVW" // raw lengths 2..17

func numCodeForRawLen(rawLen int) string {
	return "0" + string(numLetters[rawLen-2])
}

// NumCodeForRawLen returns the numeric derivation code whose raw width is
// rawLen bytes. Sequence numbers use the 8-byte width (CodeNum8).
func NumCodeForRawLen(rawLen int) (string, error) {
	if rawLen < 2 || rawLen > 17 {
		return "", ErrUnknownCode
	}
	return numCodeForRawLen(rawLen), nil
}

// CodeNum8 is the 8-byte numeric code, the width Seqner qualifies sequence
// numbers and first-seen ordinals with.
const CodeNum8 = "0N"

var numSizes = map[string]Sizage{}

// sizeForFixedRaw computes the sizage for a fixed-size code from hs, ss
// and the raw byte length, choosing the lead count that satisfies the
// prepad invariant ps == cs mod 4 for this raw width, and then
// fs = cs + 4*(ps+ls+rawLen)/3 - ps per the encode contract in spec.md §4.1.
func sizeForFixedRaw(hs, ss, rawLen int) Sizage {
	cs := hs + ss
	ps := cs % 4
	var ls int
	for ls = 0; ls < 3; ls++ {
		if (3-((rawLen+ls)%3))%3 == ps {
			break
		}
	}
	fs := cs + 4*(ps+ls+rawLen)/3 - ps
	return Sizage{HS: hs, SS: ss, XS: 0, FS: fs, LS: ls}
}

// LookupNum returns the sizage for a numeric code.
func LookupNum(code string) (Sizage, error) {
	if sz, ok := numSizes[code]; ok {
		return sz, nil
	}
	return Sizage{}, ErrUnknownCode
}
