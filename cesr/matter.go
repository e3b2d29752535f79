package cesr

import "fmt"

// Matter is any fully qualified CESR primitive: a derivation code plus its
// raw payload and, for "special" codes, an in-code soft value. It is the
// base type that Diger, Verfer, Seqner and the Bytes/Tag variants embed --
// grounded on the teacher's header-plus-payload split in bloom/header.go,
// generalized here from one fixed region shape to the many code families
// CESR needs.
type Matter struct {
	code string
	soft string
	raw  []byte
}

// NewMatter builds a Matter from an explicit code, soft value and raw
// payload. Most callers go through a typed constructor (NewDiger, NewVerfer,
// ...) instead; this is the low-level entry point the typed constructors and
// the stream parser use.
func NewMatter(code, soft string, raw []byte) (*Matter, error) {
	sz, variable, err := lookupSizage(code)
	if err != nil {
		return nil, err
	}
	if !variable {
		if sz.SS > 0 && len(soft) != 0 && len(soft) != sz.SS {
			return nil, fmt.Errorf("%w: soft length %d != %d for code %s", ErrFixedSizeMismatch, len(soft), sz.SS, code)
		}
		if sz.FS != 0 {
			// fixed-size codes imply an exact raw length
			want := rawLenFor(sz)
			if len(raw) != want {
				return nil, fmt.Errorf("%w: raw length %d != %d for code %s", ErrFixedSizeMismatch, len(raw), want, code)
			}
		}
	} else if (len(raw)+sz.LS)%3 != 0 {
		return nil, fmt.Errorf("%w: raw length %d with lead %d not 3-aligned for code %s", ErrFixedSizeMismatch, len(raw), sz.LS, code)
	}
	return &Matter{code: code, soft: soft, raw: raw}, nil
}

func (m *Matter) Code() string { return m.code }
func (m *Matter) Soft() string { return m.soft }
func (m *Matter) Raw() []byte  { return m.raw }

// rawLenFor inverts the fixed-size relation
// fs = cs + 4*(ps+ls+rawLen)/3 - ps, where ps = cs mod 4.
func rawLenFor(sz Sizage) int {
	cs := sz.HS + sz.SS
	ps := cs % 4
	return (sz.FS-cs+ps)*3/4 - ps - sz.LS
}

// lookupSizage resolves a hard code to its sizage, reporting whether the
// code is one of the variable-size families. Indexer codes live in a
// separate namespace (they are only ever parsed in indexed-signature
// context) and are deliberately not resolvable here.
func lookupSizage(code string) (Sizage, bool, error) {
	if sz, ok := matterSizes[code]; ok {
		return sz, false, nil
	}
	if sz, ok := varMatterSizes[code]; ok {
		return sz, true, nil
	}
	if sz, ok := numSizes[code]; ok {
		return sz, false, nil
	}
	return Sizage{}, false, ErrUnknownCode
}

// infil is the shared qb64 encoder for matter and indexer codes, per the
// encoding contract in spec.md §4.1: compute the pad size from raw+lead
// length, require it to equal cs mod 4, prepend ps+ls zero bytes, base64url
// the whole buffer, then drop the ps leading 'A' characters and prepend
// code+soft. Because cs mod 4 == ps, the code area lands exactly on the
// dropped pad characters and the remainder of the encoding is undisturbed.
func infil(code, soft string, raw []byte, sz Sizage, variable bool) (string, error) {
	cs := sz.HS + sz.SS
	ls := sz.LS

	if variable {
		if (len(raw)+ls)%3 != 0 {
			return "", ErrFixedSizeMismatch
		}
		groups := (len(raw) + ls) / 3
		sizeSoft, err := EncodeB64Int(uint64(groups), sz.SS)
		if err != nil {
			return "", err
		}
		buf := make([]byte, ls+len(raw))
		copy(buf[ls:], raw)
		return code + sizeSoft + b64Enc.EncodeToString(buf), nil
	}

	ps := (3 - ((len(raw) + ls) % 3)) % 3
	if ps != cs%4 {
		return "", ErrBadPrepad
	}
	buf := make([]byte, ps+ls+len(raw))
	copy(buf[ps+ls:], raw)
	b64 := b64Enc.EncodeToString(buf)
	full := code + padSoftRight(soft, sz.SS) + b64[ps:]
	if sz.FS != 0 && len(full) != sz.FS {
		return "", ErrFixedSizeMismatch
	}
	return full, nil
}

// exfil is the shared qb64 decoder: given the full text frame and its
// sizage, recover the raw payload, rejecting non-zero midpad bits and
// non-zero lead bytes.
func exfil(frame string, sz Sizage) (soft string, raw []byte, err error) {
	cs := sz.HS + sz.SS
	soft = frame[sz.HS:cs]
	for i := 0; i < sz.XS; i++ {
		if soft[i] != 'A' {
			return "", nil, ErrNonZeroMidpad
		}
	}
	ps := cs % 4
	base := frame[cs:]
	if ps > 0 {
		base = string(padBytes('A', ps)) + base
	}
	paw, derr := b64Enc.DecodeString(base)
	if derr != nil {
		return "", nil, ErrInvalidBase64
	}
	if len(paw) < ps+sz.LS {
		return "", nil, ErrFixedSizeMismatch
	}
	// the ps pad bytes must decode to zero (non-zero midpad bits mean the
	// text was not produced by a conforming encoder), and the ls lead bytes
	// must be zero fill.
	for _, b := range paw[:ps] {
		if b != 0 {
			return "", nil, ErrNonZeroMidpad
		}
	}
	for _, b := range paw[ps : ps+sz.LS] {
		if b != 0 {
			return "", nil, ErrNonZeroLead
		}
	}
	return soft, paw[ps+sz.LS:], nil
}

func padBytes(c byte, n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = c
	}
	return out
}

// Qb64 renders the primitive's padded base64url text form.
func (m *Matter) Qb64() (string, error) {
	sz, variable, err := lookupSizage(m.code)
	if err != nil {
		return "", err
	}
	return infil(m.code, m.soft, m.raw, sz, variable)
}

// Qb2 renders the dual-domain binary equivalent of Qb64: the exact byte
// buffer that base64url-decodes to the text form, 3-byte aligned.
func (m *Matter) Qb2() ([]byte, error) {
	q64, err := m.Qb64()
	if err != nil {
		return nil, err
	}
	return b64Enc.DecodeString(q64)
}

// ParseQb64 decodes one primitive from the front of s, returning the Matter
// and the number of characters it consumed. It never reads past the frame
// it determines from the code table -- callers needing more bytes see
// ErrShortage and should buffer and retry.
func ParseQb64(s string) (*Matter, int, error) {
	if len(s) < 1 {
		return nil, 0, ErrShortage
	}
	hs, err := HardSizeForLeader(s[0])
	if err != nil {
		return nil, 0, err
	}
	if len(s) < hs {
		return nil, 0, ErrShortage
	}
	hard := s[:hs]
	sz, variable, err := lookupSizage(hard)
	if err != nil {
		return nil, 0, err
	}
	cs := hs + sz.SS
	if len(s) < cs {
		return nil, 0, ErrShortage
	}

	var fs int
	if variable {
		n, err := DecodeB64Int(s[hs:cs])
		if err != nil {
			return nil, 0, err
		}
		fs = cs + int(n)*4
	} else {
		fs = sz.FS
	}
	if fs == 0 {
		return nil, 0, ErrFixedSizeMismatch
	}
	if len(s) < fs {
		return nil, 0, ErrShortage
	}

	soft, raw, err := exfil(s[:fs], sz)
	if err != nil {
		return nil, 0, err
	}
	return &Matter{code: hard, soft: soft, raw: raw}, fs, nil
}

// ParseQb2 is the binary-domain counterpart of ParseQb64: b is the raw
// (non-text) attachment stream, and the return is the number of bytes
// consumed, 3-byte aligned. Every full size in the code table is divisible
// by 4 characters, so the binary frame is always a whole number of 3-byte
// groups and re-encoding it to text is lossless.
func ParseQb2(b []byte) (*Matter, int, error) {
	if len(b) < 3 {
		return nil, 0, ErrShortage
	}
	lead4 := b64Enc.EncodeToString(b[:3])
	hs, err := HardSizeForLeader(lead4[0])
	if err != nil {
		return nil, 0, err
	}
	hard := lead4[:hs]
	sz, variable, err := lookupSizage(hard)
	if err != nil {
		return nil, 0, err
	}
	cs := hs + sz.SS

	var fs int
	if variable {
		headerBytes := ((cs + 3) / 4) * 3
		if len(b) < headerBytes {
			return nil, 0, ErrShortage
		}
		headerChars := b64Enc.EncodeToString(b[:headerBytes])
		n, err := DecodeB64Int(headerChars[hs:cs])
		if err != nil {
			return nil, 0, err
		}
		fs = cs + int(n)*4
	} else {
		fs = sz.FS
	}
	if fs == 0 || fs%4 != 0 {
		return nil, 0, ErrFixedSizeMismatch
	}
	fsBytes := fs * 3 / 4
	if len(b) < fsBytes {
		return nil, 0, ErrShortage
	}

	m, _, err := ParseQb64(b64Enc.EncodeToString(b[:fsBytes]))
	if err != nil {
		return nil, 0, err
	}
	return m, fsBytes, nil
}
