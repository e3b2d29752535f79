package parser

import (
	"errors"

	"github.com/forestrie/go-keri/cesr"
)

// Cold-start classifications for the next stream element (spec.md §4.5).
type coldKind int

const (
	coldUnknown coldKind = iota
	coldMsgJSON
	coldMsgCBOR
	coldMsgMGPK
	coldTxt
	coldBny
)

// ErrResync marks bytes that can start neither a field map nor CESR
// attachment material; the parser skips to the next plausible body start.
var ErrResync = errors.New("parser: unrecognizable leading byte")

// sniff classifies the leading byte: a field-map start (JSON '{', a CBOR
// definite map header, a MsgPack map header), text-domain CESR ('-'
// counter lead), or binary-domain CESR (the 0b111110 counter lead packed
// into the top bits).
func sniff(b byte) coldKind {
	switch {
	case b == '{':
		return coldMsgJSON
	case b >= 0xA0 && b <= 0xBB:
		return coldMsgCBOR
	case b >= 0x80 && b <= 0x8F, b == 0xDE, b == 0xDF:
		return coldMsgMGPK
	case b == '-':
		return coldTxt
	case b >= 0xF8:
		return coldBny
	default:
		return coldUnknown
	}
}

// isMsgStart reports whether b opens a message body.
func isMsgStart(b byte) bool {
	k := sniff(b)
	return k == coldMsgJSON || k == coldMsgCBOR || k == coldMsgMGPK
}

// cursor walks attachment material in either stream domain, one whole
// primitive at a time. Every method either consumes a complete frame or
// returns cesr.ErrShortage leaving the offset untouched, so a caller can
// roll an entire group back to its start and suspend.
type cursor struct {
	data []byte
	off  int
	bny  bool
}

func (c *cursor) remaining() int { return len(c.data) - c.off }

// quadlets converts a counter count to its byte width in this domain:
// count*4 text characters or count*3 binary bytes.
func (c *cursor) quadlets(count int) int {
	if c.bny {
		return count * 3
	}
	return count * 4
}

func (c *cursor) counter() (*cesr.Counter, error) {
	if c.bny {
		ctr, n, err := cesr.ParseCounterQb2(c.data[c.off:])
		if err != nil {
			return nil, err
		}
		c.off += n
		return ctr, nil
	}
	ctr, n, err := cesr.ParseCounter(string(c.data[c.off:]))
	if err != nil {
		return nil, err
	}
	c.off += n
	return ctr, nil
}

// peekCounter inspects the next counter without consuming it.
func (c *cursor) peekCounter() (*cesr.Counter, error) {
	save := c.off
	ctr, err := c.counter()
	c.off = save
	return ctr, err
}

func (c *cursor) siger() (*cesr.Siger, error) {
	if c.bny {
		sig, n, err := cesr.SigerFromQb2(c.data[c.off:])
		if err != nil {
			return nil, err
		}
		c.off += n
		return sig, nil
	}
	sig, n, err := cesr.SigerFromQb64(string(c.data[c.off:]))
	if err != nil {
		return nil, err
	}
	c.off += n
	return sig, nil
}

func (c *cursor) matter() (*cesr.Matter, error) {
	if c.bny {
		m, n, err := cesr.ParseQb2(c.data[c.off:])
		if err != nil {
			return nil, err
		}
		c.off += n
		return m, nil
	}
	m, n, err := cesr.ParseQb64(string(c.data[c.off:]))
	if err != nil {
		return nil, err
	}
	c.off += n
	return m, nil
}

func (c *cursor) verfer() (*cesr.Verfer, error) {
	m, err := c.matter()
	if err != nil {
		return nil, err
	}
	q64, err := m.Qb64()
	if err != nil {
		return nil, err
	}
	v, _, err := cesr.VerferFromQb64(q64)
	return v, err
}

func (c *cursor) cigar() (*cesr.Cigar, error) {
	m, err := c.matter()
	if err != nil {
		return nil, err
	}
	q64, err := m.Qb64()
	if err != nil {
		return nil, err
	}
	cg, _, err := cesr.CigarFromQb64(q64)
	return cg, err
}

func (c *cursor) prefixer() (*cesr.Prefixer, error) {
	m, err := c.matter()
	if err != nil {
		return nil, err
	}
	q64, err := m.Qb64()
	if err != nil {
		return nil, err
	}
	p, _, err := cesr.PrefixerFromQb64(q64)
	return p, err
}

func (c *cursor) seqner() (*cesr.Seqner, error) {
	m, err := c.matter()
	if err != nil {
		return nil, err
	}
	q64, err := m.Qb64()
	if err != nil {
		return nil, err
	}
	s, _, err := cesr.SeqnerFromQb64(q64)
	return s, err
}

func (c *cursor) saider() (*cesr.Saider, error) {
	m, err := c.matter()
	if err != nil {
		return nil, err
	}
	q64, err := m.Qb64()
	if err != nil {
		return nil, err
	}
	s, _, err := cesr.SaiderFromQb64(q64)
	return s, err
}

func (c *cursor) dater() (*cesr.Dater, error) {
	m, err := c.matter()
	if err != nil {
		return nil, err
	}
	q64, err := m.Qb64()
	if err != nil {
		return nil, err
	}
	d, _, err := cesr.DaterFromQb64(q64)
	return d, err
}

func (c *cursor) pather() (*cesr.Pather, error) {
	m, err := c.matter()
	if err != nil {
		return nil, err
	}
	q64, err := m.Qb64()
	if err != nil {
		return nil, err
	}
	p, _, err := cesr.PatherFromQb64(q64)
	return p, err
}

func (c *cursor) texter() (*cesr.Texter, error) {
	m, err := c.matter()
	if err != nil {
		return nil, err
	}
	q64, err := m.Qb64()
	if err != nil {
		return nil, err
	}
	t, _, err := cesr.TexterFromQb64(q64)
	return t, err
}

// take consumes n opaque bytes.
func (c *cursor) take(n int) ([]byte, error) {
	if c.remaining() < n {
		return nil, cesr.ErrShortage
	}
	out := c.data[c.off : c.off+n]
	c.off += n
	return out, nil
}
