package cesr

import "encoding/binary"

// Prefixer qualifies an identifier prefix (AID): either a basic
// verification key or a self-addressing digest, per the PreDex family.
type Prefixer struct {
	*Matter
}

// PrefixerFromQb64 parses and classifies an identifier prefix.
func PrefixerFromQb64(qb64 string) (*Prefixer, int, error) {
	m, n, err := ParseQb64(qb64)
	if err != nil {
		return nil, 0, err
	}
	if !PreDex[m.Code()] {
		return nil, 0, ErrUnknownCode
	}
	return &Prefixer{Matter: m}, n, nil
}

// PrefixerFromQb2 is the binary-domain counterpart of PrefixerFromQb64.
func PrefixerFromQb2(b []byte) (*Prefixer, int, error) {
	m, n, err := ParseQb2(b)
	if err != nil {
		return nil, 0, err
	}
	if !PreDex[m.Code()] {
		return nil, 0, ErrUnknownCode
	}
	return &Prefixer{Matter: m}, n, nil
}

// Transferable reports whether the prefix's derivation permits rotation:
// digestive prefixes always do, basic prefixes only when the key code is
// the transferable variant.
func (p *Prefixer) Transferable() bool {
	return !NonTransDex[p.Code()]
}

// Digestive reports whether the prefix is a self-addressing digest rather
// than a basic key.
func (p *Prefixer) Digestive() bool {
	return DigDex[p.Code()]
}

// Seqner qualifies a sequence number or first-seen ordinal as an 8-byte
// big-endian numeric primitive.
type Seqner struct {
	*Matter
	sn uint64
}

// NewSeqner builds a Seqner for sn.
func NewSeqner(sn uint64) (*Seqner, error) {
	raw := make([]byte, 8)
	binary.BigEndian.PutUint64(raw, sn)
	m, err := NewMatter(CodeNum8, "", raw)
	if err != nil {
		return nil, err
	}
	return &Seqner{Matter: m, sn: sn}, nil
}

// SeqnerFromQb64 parses a qualified sequence number.
func SeqnerFromQb64(qb64 string) (*Seqner, int, error) {
	m, n, err := ParseQb64(qb64)
	if err != nil {
		return nil, 0, err
	}
	if !NumDex[m.Code()] || len(m.Raw()) > 8 {
		return nil, 0, ErrUnknownCode
	}
	var sn uint64
	for _, b := range m.Raw() {
		sn = sn<<8 | uint64(b)
	}
	return &Seqner{Matter: m, sn: sn}, n, nil
}

// SeqnerFromQb2 is the binary-domain counterpart of SeqnerFromQb64.
func SeqnerFromQb2(b []byte) (*Seqner, int, error) {
	m, n, err := ParseQb2(b)
	if err != nil {
		return nil, 0, err
	}
	q64, err := m.Qb64()
	if err != nil {
		return nil, 0, err
	}
	s, _, err := SeqnerFromQb64(q64)
	if err != nil {
		return nil, 0, err
	}
	return s, n, nil
}

// Sn returns the numeric value.
func (s *Seqner) Sn() uint64 { return s.sn }

// Saider qualifies a self-addressing identifier: a digest primitive whose
// value names the message it was computed over.
type Saider struct {
	*Matter
}

// SaiderFromQb64 parses a SAID.
func SaiderFromQb64(qb64 string) (*Saider, int, error) {
	m, n, err := ParseQb64(qb64)
	if err != nil {
		return nil, 0, err
	}
	if !DigDex[m.Code()] {
		return nil, 0, ErrUnknownCode
	}
	return &Saider{Matter: m}, n, nil
}

// SaiderFromQb2 is the binary-domain counterpart of SaiderFromQb64.
func SaiderFromQb2(b []byte) (*Saider, int, error) {
	m, n, err := ParseQb2(b)
	if err != nil {
		return nil, 0, err
	}
	if !DigDex[m.Code()] {
		return nil, 0, ErrUnknownCode
	}
	return &Saider{Matter: m}, n, nil
}

// Texter carries an opaque byte string as a variable-size primitive,
// choosing the lead-byte variant that 3-aligns the payload.
type Texter struct {
	*Matter
}

// variable-size code selection by required lead count, small vs big. The
// small variants frame payloads up to 64^2-1 bytes; anything larger takes
// the big variant with its 4-character size field.
const maxSmallVarBytes = 64*64 - 1

func varCodeFor(rawLen int) (code string, ls int) {
	ls = (3 - rawLen%3) % 3
	small := [3]string{CodeBytesL0, CodeBytesL1, CodeBytesL2}
	big := [3]string{CodeBytesB0, CodeBytesB1, CodeBytesB2}
	if rawLen <= maxSmallVarBytes {
		return small[ls], ls
	}
	return big[ls], ls
}

// NewTexter wraps text as a variable-size primitive.
func NewTexter(text []byte) (*Texter, error) {
	code, _ := varCodeFor(len(text))
	m, err := NewMatter(code, "", text)
	if err != nil {
		return nil, err
	}
	return &Texter{Matter: m}, nil
}

// TexterFromQb64 parses a variable-size text primitive.
func TexterFromQb64(qb64 string) (*Texter, int, error) {
	m, n, err := ParseQb64(qb64)
	if err != nil {
		return nil, 0, err
	}
	if !IsVariable(m.Code()) {
		return nil, 0, ErrUnknownCode
	}
	return &Texter{Matter: m}, n, nil
}

// TexterFromQb2 is the binary-domain counterpart of TexterFromQb64.
func TexterFromQb2(b []byte) (*Texter, int, error) {
	m, n, err := ParseQb2(b)
	if err != nil {
		return nil, 0, err
	}
	if !IsVariable(m.Code()) {
		return nil, 0, ErrUnknownCode
	}
	return &Texter{Matter: m}, n, nil
}

// Pather qualifies a SAD path: a "-"-separated traversal of field labels
// and indices (e.g. "-a-2-d"), carried as variable-size text.
type Pather struct {
	*Texter
}

// NewPather wraps path, which must start with the "-" separator.
func NewPather(path string) (*Pather, error) {
	if len(path) == 0 || path[0] != '-' {
		return nil, ErrInvalidBase64
	}
	t, err := NewTexter([]byte(path))
	if err != nil {
		return nil, err
	}
	return &Pather{Texter: t}, nil
}

// PatherFromQb64 parses a SAD path primitive.
func PatherFromQb64(qb64 string) (*Pather, int, error) {
	t, n, err := TexterFromQb64(qb64)
	if err != nil {
		return nil, 0, err
	}
	return &Pather{Texter: t}, n, nil
}

// Path returns the decoded path text.
func (p *Pather) Path() string { return string(p.Raw()) }
