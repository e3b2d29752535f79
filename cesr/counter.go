package cesr

// Counter is like Matter but carries no raw payload: a code identifying
// the kind of group that follows in the stream, plus a non-negative count
// of how many (primitive|group) instances follow. Grounded on the
// teacher's size-prefixed-region framing (bloom/header.go's
// HeaderBytesV1-then-payload shape): a Counter is a tiny fixed-size header
// that tells the reader how much framed material comes next.
type Counter struct {
	code  string
	count int
}

// Counter group codes -- the attachment-group selectors the parser
// dispatches on (spec.md §4.5).
const (
	CtrControllerIdxSigs      = "-A"
	CtrWitnessIdxSigs         = "-B"
	CtrNonTransReceiptCouples = "-C"
	CtrTransIdxSigGroups      = "-D"
	CtrTransLastIdxSigGroups  = "-E"
	CtrFirstSeenReplayCouples = "-F"
	CtrSealSourceCouples      = "-G"
	CtrSealSourceTriples      = "-H"
	CtrSadPathSigGroups       = "-I"
	CtrPathedMaterialGroup    = "-J"
	CtrBigPathedMaterialGroup = "-0J"
	CtrEssrPayloadGroup       = "-K"
	CtrAttachmentGroup        = "-V"
)

// counterSizes gives the hs/ss for small/big counter codes -- 2-char hard +
// 2-char count for small groups, 3-char hard + 5-char count for the rare
// big-count groups (pathed material can be arbitrarily large). Both full
// sizes are multiples of 4 so a counter is a whole number of 3-byte groups
// in the binary domain.
var counterSizes = map[string]Sizage{
	CtrControllerIdxSigs:      {HS: 2, SS: 2, FS: 4},
	CtrWitnessIdxSigs:         {HS: 2, SS: 2, FS: 4},
	CtrNonTransReceiptCouples: {HS: 2, SS: 2, FS: 4},
	CtrTransIdxSigGroups:      {HS: 2, SS: 2, FS: 4},
	CtrTransLastIdxSigGroups:  {HS: 2, SS: 2, FS: 4},
	CtrFirstSeenReplayCouples: {HS: 2, SS: 2, FS: 4},
	CtrSealSourceCouples:      {HS: 2, SS: 2, FS: 4},
	CtrSealSourceTriples:      {HS: 2, SS: 2, FS: 4},
	CtrSadPathSigGroups:       {HS: 2, SS: 2, FS: 4},
	CtrPathedMaterialGroup:    {HS: 2, SS: 2, FS: 4},
	CtrBigPathedMaterialGroup: {HS: 3, SS: 5, FS: 8},
	CtrEssrPayloadGroup:       {HS: 2, SS: 2, FS: 4},
	CtrAttachmentGroup:        {HS: 2, SS: 2, FS: 4},
}

func (c *Counter) Code() string  { return c.code }
func (c *Counter) Count() int    { return c.count }

// NewCounter builds a counter primitive for a known code and count.
func NewCounter(code string, count int) (*Counter, error) {
	if _, ok := counterSizes[code]; !ok {
		return nil, ErrUnknownCode
	}
	return &Counter{code: code, count: count}, nil
}

// Qb64 renders the counter's text form: code + zero-padded base64 count.
func (c *Counter) Qb64() (string, error) {
	sz, ok := counterSizes[c.code]
	if !ok {
		return "", ErrUnknownCode
	}
	soft, err := EncodeB64Int(uint64(c.count), sz.SS)
	if err != nil {
		return "", err
	}
	return c.code + soft, nil
}

// Qb2 renders the counter's binary-domain form.
func (c *Counter) Qb2() ([]byte, error) {
	q64, err := c.Qb64()
	if err != nil {
		return nil, err
	}
	return b64Enc.DecodeString(q64)
}

// ParseCounter decodes a counter from the front of s (text domain),
// returning it and the number of characters consumed.
func ParseCounter(s string) (*Counter, int, error) {
	if len(s) < 2 {
		return nil, 0, ErrShortage
	}
	if s[0] != '-' {
		return nil, 0, ErrUnknownCode
	}
	// big (3-char hard) counter codes are distinguished by a second
	// leading '0'.
	hs := 2
	if s[1] == '0' {
		hs = 3
	}
	if len(s) < hs {
		return nil, 0, ErrShortage
	}
	hard := s[:hs]
	sz, ok := counterSizes[hard]
	if !ok {
		return nil, 0, ErrUnknownCode
	}
	if len(s) < hs+sz.SS {
		return nil, 0, ErrShortage
	}
	soft := s[hs : hs+sz.SS]
	n, err := DecodeB64Int(soft)
	if err != nil {
		return nil, 0, err
	}
	return &Counter{code: hard, count: int(n)}, hs + sz.SS, nil
}

// ParseCounterQb2 is the binary-domain counterpart of ParseCounter. A small
// counter occupies 3 bytes (4 characters), a big one 6 bytes (8 characters).
func ParseCounterQb2(b []byte) (*Counter, int, error) {
	if len(b) < 3 {
		return nil, 0, ErrShortage
	}
	avail := len(b)
	if avail > 6 {
		avail = 6
	}
	avail -= avail % 3
	ctr, n, err := ParseCounter(b64Enc.EncodeToString(b[:avail]))
	if err != nil {
		return nil, 0, err
	}
	bytesUsed := n * 3 / 4
	if len(b) < bytesUsed {
		return nil, 0, ErrShortage
	}
	return ctr, bytesUsed, nil
}
