package cesr

import (
	"crypto/sha256"
	"crypto/sha512"
	"hash"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/blake2s"
	"golang.org/x/crypto/sha3"
	"lukechampine.com/blake3"
)

// DefaultDigestCode is the digest family Serder uses when a caller does not
// request one explicitly -- Blake3-256, as spec.md §4.2 step 4 specifies.
const DefaultDigestCode = CodeBlake3_256

// newHasher returns a fresh hash.Hash for a digest derivation code.
func newHasher(code string) (hash.Hash, error) {
	switch code {
	case CodeBlake3_256:
		return blake3.New(32, nil), nil
	case CodeBlake2b_256:
		return blake2b.New256(nil)
	case CodeBlake2s_256:
		return blake2s.New256(nil)
	case CodeSHA3_256:
		return sha3.New256(), nil
	case CodeSHA2_256:
		return sha256.New(), nil
	case CodeBlake3_512:
		return blake3.New(64, nil), nil
	case CodeBlake2b_512:
		return blake2b.New512(nil)
	case CodeSHA3_512:
		return sha3.New512(), nil
	case CodeSHA2_512:
		return sha512.New(), nil
	default:
		return nil, ErrUnknownCode
	}
}

// Diger is a CESR digest primitive: a derivation code identifying the hash
// algorithm plus the raw digest bytes.
type Diger struct {
	*Matter
}

// NewDiger computes the digest of ser using code and wraps it as a Diger.
func NewDiger(code string, ser []byte) (*Diger, error) {
	if code == "" {
		code = DefaultDigestCode
	}
	if !DigDex[code] {
		return nil, ErrUnknownCode
	}
	h, err := newHasher(code)
	if err != nil {
		return nil, err
	}
	h.Write(ser)
	m, err := NewMatter(code, "", h.Sum(nil))
	if err != nil {
		return nil, err
	}
	return &Diger{Matter: m}, nil
}

// DigerFromQb64 parses a previously computed digest primitive.
func DigerFromQb64(qb64 string) (*Diger, int, error) {
	m, n, err := ParseQb64(qb64)
	if err != nil {
		return nil, 0, err
	}
	if !DigDex[m.Code()] {
		return nil, 0, ErrUnknownCode
	}
	return &Diger{Matter: m}, n, nil
}

// Verify recomputes the digest of ser with the receiver's code and compares
// it against the receiver's raw bytes -- the primitive SAID/digest-equality
// check every commitment in this module reduces to.
func (d *Diger) Verify(ser []byte) (bool, error) {
	other, err := NewDiger(d.Code(), ser)
	if err != nil {
		return false, err
	}
	return bytesEqual(other.Raw(), d.Raw()), nil
}

// CodeRawLen returns the qb64 length of the raw digest bytes for code,
// i.e. the exact SAID placeholder width Serder needs.
func CodeRawLen(code string) (int, error) {
	sz, _, err := lookupSizage(code)
	if err != nil {
		return 0, err
	}
	return sz.FS, nil
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
