package cesr

import (
	"crypto/ed25519"
	"crypto/rand"

	"filippo.io/edwards25519"
)

// Verfer is a CESR verification-key primitive: a transferable ("D") or
// non-transferable ("B") Ed25519 public key.
type Verfer struct {
	*Matter
}

// NewVerfer wraps a raw Ed25519 public key. transferable selects the "D"
// (transferable) vs "B" (non-transferable) derivation code -- the
// transferable flag is what an identifier's inception ilk (icp vs a
// non-transferable basic derivation) ultimately controls.
func NewVerfer(raw []byte, transferable bool) (*Verfer, error) {
	if len(raw) != ed25519.PublicKeySize {
		return nil, ErrFixedSizeMismatch
	}
	// reject encodings that are not canonical curve points up front, so a
	// bad key fails at parse time rather than as an unverifiable signature
	if _, err := (&edwards25519.Point{}).SetBytes(raw); err != nil {
		return nil, ErrBadKeyEncoding
	}
	code := CodeEd25519
	if !transferable {
		code = CodeEd25519N
	}
	m, err := NewMatter(code, "", raw)
	if err != nil {
		return nil, err
	}
	return &Verfer{Matter: m}, nil
}

// VerferFromQb64 parses a qualified verification key.
func VerferFromQb64(qb64 string) (*Verfer, int, error) {
	m, n, err := ParseQb64(qb64)
	if err != nil {
		return nil, 0, err
	}
	if m.Code() != CodeEd25519 && m.Code() != CodeEd25519N {
		return nil, 0, ErrUnknownCode
	}
	if _, err := (&edwards25519.Point{}).SetBytes(m.Raw()); err != nil {
		return nil, 0, ErrBadKeyEncoding
	}
	return &Verfer{Matter: m}, n, nil
}

// Transferable reports whether this key's code permits rotation (the
// identifier is allowed to establish a new signing key set later).
func (v *Verfer) Transferable() bool { return v.Code() == CodeEd25519 }

// Verify checks sig over ser using the receiver's public key.
func (v *Verfer) Verify(ser, sig []byte) bool {
	return ed25519.Verify(ed25519.PublicKey(v.Raw()), ser, sig)
}

// Signer is a private signing key. It is the controller-side counterpart
// to Verfer; KERI libraries keep private key handling out of the wire
// codec proper, but a minimal in-process signer is included here so the
// Kever test suite (and keritesting fixtures) can produce real signatures
// without a separate key-manager dependency, matching the teacher's
// self-contained testcommitter.go pattern.
type Signer struct {
	*Matter
	verfer *Verfer
}

// NewSigner generates a fresh Ed25519 signer. transferable controls the
// derived Verfer's code, as in NewVerfer.
func NewSigner(transferable bool) (*Signer, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	return newSignerFromKey(priv, pub, transferable)
}

// NewSignerFromSeed constructs a deterministic signer from a 32-byte seed,
// the path keritesting fixtures use to produce stable key material across
// runs.
func NewSignerFromSeed(seed []byte, transferable bool) (*Signer, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, ErrFixedSizeMismatch
	}
	priv := ed25519.NewKeyFromSeed(seed)
	pub := priv.Public().(ed25519.PublicKey)
	return newSignerFromKey(priv, pub, transferable)
}

func newSignerFromKey(priv ed25519.PrivateKey, pub ed25519.PublicKey, transferable bool) (*Signer, error) {
	code := CodeEd25519Seed
	m, err := NewMatter(code, "", priv.Seed())
	if err != nil {
		return nil, err
	}
	verfer, err := NewVerfer(pub, transferable)
	if err != nil {
		return nil, err
	}
	return &Signer{Matter: m, verfer: verfer}, nil
}

// Verfer returns the signer's public-key counterpart.
func (s *Signer) Verfer() *Verfer { return s.verfer }

func (s *Signer) privateKey() ed25519.PrivateKey {
	return ed25519.NewKeyFromSeed(s.Raw())
}

// Sign produces a non-indexed signature (Cigar) over ser -- used for
// witness receipts and non-transferable-identifier receipts.
func (s *Signer) Sign(ser []byte) (*Cigar, error) {
	sig := ed25519.Sign(s.privateKey(), ser)
	m, err := NewMatter(CodeEd25519Sig, "", sig)
	if err != nil {
		return nil, err
	}
	return &Cigar{Matter: m, verfer: s.verfer}, nil
}

// SignIndexed produces an indexed signature (Siger) over ser at the given
// key-list index, with an optional ondex (prior-next-exposure index) for
// rotation events.
func (s *Signer) SignIndexed(ser []byte, index int, ondex *int) (*Siger, error) {
	sig := ed25519.Sign(s.privateKey(), ser)
	return newSiger(CodeIdxEd25519Sig, sig, index, ondex)
}

// Cigar is a non-indexed signature primitive, paired with the Verfer that
// produced it (the pairing the wire stream carries as a
// non-transferable-receipt couple).
type Cigar struct {
	*Matter
	verfer *Verfer
}

// NewCigar wraps a raw signature with its verifying key.
func NewCigar(verfer *Verfer, raw []byte) (*Cigar, error) {
	m, err := NewMatter(CodeEd25519Sig, "", raw)
	if err != nil {
		return nil, err
	}
	return &Cigar{Matter: m, verfer: verfer}, nil
}

func (c *Cigar) Verfer() *Verfer { return c.verfer }

// CigarFromQb64 parses a non-indexed signature primitive. The verfer is
// attached afterwards by the caller (the stream carries it as the other
// half of a receipt couple).
func CigarFromQb64(qb64 string) (*Cigar, int, error) {
	m, n, err := ParseQb64(qb64)
	if err != nil {
		return nil, 0, err
	}
	if m.Code() != CodeEd25519Sig {
		return nil, 0, ErrUnknownCode
	}
	return &Cigar{Matter: m}, n, nil
}

// SetVerfer attaches the verifying key half of a receipt couple.
func (c *Cigar) SetVerfer(v *Verfer) { c.verfer = v }

// Verify checks the signature against ser using the paired Verfer.
func (c *Cigar) Verify(ser []byte) bool {
	return c.verfer.Verify(ser, c.Raw())
}
