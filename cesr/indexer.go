package cesr

// Indexer is like Matter but carries one or two small indices (a primary
// key-list index, and an optional "ondex" -- the prior-next-key-list index
// a rotation signature's prior-next exposure check resolves against)
// packed into the code's soft area instead of a single size field.
//
// Indexer codes are a separate namespace from Matter codes: the stream
// context (an indexed-signature counter group) selects which table the
// following primitives are parsed against, so the single-letter codes below
// may collide with Matter letters without ambiguity.
type Indexer struct {
	*Matter
	index int
	ondex *int
}

func (i *Indexer) Index() int  { return i.index }
func (i *Indexer) Ondex() *int { return i.ondex }

// Indexed signature derivation codes. "A" carries only the primary index
// (ondex implicitly equals index, the "current sig, no distinct prior-next
// claim" case); "2A" carries both indices explicitly, used whenever a
// rotation signer's ondex differs from its index.
const (
	CodeIdxEd25519Sig    = "A"
	CodeIdxEd25519SigBig = "2A"
)

var indexerSizes = map[string]Sizage{
	CodeIdxEd25519Sig:    {HS: 1, SS: 1, XS: 0, FS: 88, LS: 0},
	CodeIdxEd25519SigBig: {HS: 2, SS: 2, XS: 0, FS: 92, LS: 2},
}

// newSiger builds a Siger from a raw 64-byte Ed25519 signature, a primary
// index and an optional distinct ondex.
func newSiger(code string, raw []byte, index int, ondex *int) (*Siger, error) {
	if ondex == nil {
		o := index
		ondex = &o
	}
	if ondex != nil && *ondex != index {
		code = CodeIdxEd25519SigBig
	}
	sz, ok := indexerSizes[code]
	if !ok {
		return nil, ErrUnknownCode
	}
	var soft string
	var err error
	if code == CodeIdxEd25519SigBig {
		half := sz.SS / 2
		soft, err = EncodeB64Int(uint64(index), half)
		if err != nil {
			return nil, err
		}
		var oSoft string
		oSoft, err = EncodeB64Int(uint64(*ondex), half)
		if err != nil {
			return nil, err
		}
		soft += oSoft
	} else {
		soft, err = EncodeB64Int(uint64(index), sz.SS)
		if err != nil {
			return nil, err
		}
	}
	return &Siger{Indexer: &Indexer{
		Matter: &Matter{code: code, soft: soft, raw: raw},
		index:  index,
		ondex:  ondex,
	}}, nil
}

// Siger is an indexed controller or witness signature.
type Siger struct {
	*Indexer
}

// NewIndexedSig wraps a raw signature as an indexed signature at index --
// the conversion a witness receipt couple goes through when its receiptor
// turns out to be a roster member.
func NewIndexedSig(raw []byte, index int) (*Siger, error) {
	return newSiger(CodeIdxEd25519Sig, raw, index, nil)
}

// Qb64 renders the indexed signature's text form through the indexer code
// table rather than the Matter table.
func (s *Siger) Qb64() (string, error) {
	sz, ok := indexerSizes[s.Code()]
	if !ok {
		return "", ErrUnknownCode
	}
	return infil(s.Code(), s.Soft(), s.Raw(), sz, false)
}

// Qb2 renders the binary-domain form.
func (s *Siger) Qb2() ([]byte, error) {
	q64, err := s.Qb64()
	if err != nil {
		return nil, err
	}
	return b64Enc.DecodeString(q64)
}

// SigerFromQb64 parses an indexed signature primitive from the front of s,
// recovering its index (and ondex, when the code carries a distinct one),
// and returns the number of characters consumed.
func SigerFromQb64(s string) (*Siger, int, error) {
	if len(s) < 1 {
		return nil, 0, ErrShortage
	}
	hs := 1
	if s[0] >= '0' && s[0] <= '9' {
		hs = 2
	}
	if len(s) < hs {
		return nil, 0, ErrShortage
	}
	hard := s[:hs]
	sz, ok := indexerSizes[hard]
	if !ok {
		return nil, 0, ErrUnknownCode
	}
	if len(s) < sz.FS {
		return nil, 0, ErrShortage
	}
	soft, raw, err := exfil(s[:sz.FS], sz)
	if err != nil {
		return nil, 0, err
	}

	var index int
	var ondex *int
	if hard == CodeIdxEd25519SigBig {
		half := sz.SS / 2
		iv, err := DecodeB64Int(soft[:half])
		if err != nil {
			return nil, 0, err
		}
		ov, err := DecodeB64Int(soft[half:])
		if err != nil {
			return nil, 0, err
		}
		index = int(iv)
		o := int(ov)
		ondex = &o
	} else {
		iv, err := DecodeB64Int(soft)
		if err != nil {
			return nil, 0, err
		}
		index = int(iv)
		o := index
		ondex = &o
	}
	m := &Matter{code: hard, soft: soft, raw: raw}
	return &Siger{Indexer: &Indexer{Matter: m, index: index, ondex: ondex}}, sz.FS, nil
}

// SigerFromQb2 is the binary-domain counterpart of SigerFromQb64.
func SigerFromQb2(b []byte) (*Siger, int, error) {
	if len(b) < 3 {
		return nil, 0, ErrShortage
	}
	lead4 := b64Enc.EncodeToString(b[:3])
	hs := 1
	if lead4[0] >= '0' && lead4[0] <= '9' {
		hs = 2
	}
	sz, ok := indexerSizes[lead4[:hs]]
	if !ok {
		return nil, 0, ErrUnknownCode
	}
	fsBytes := sz.FS * 3 / 4
	if len(b) < fsBytes {
		return nil, 0, ErrShortage
	}
	sig, _, err := SigerFromQb64(b64Enc.EncodeToString(b[:fsBytes]))
	if err != nil {
		return nil, 0, err
	}
	return sig, fsBytes, nil
}

// Verify checks the indexed signature against ser using verfer.
func (s *Siger) Verify(verfer *Verfer, ser []byte) bool {
	return verfer.Verify(ser, s.Raw())
}
