package cesr

import (
	"strings"
	"time"
)

// DaterFormat is the 32-character ISO-8601 profile a Dater qualifies:
// microsecond precision with an explicit numeric offset.
const DaterFormat = "2006-01-02T15:04:05.000000-07:00"

// The ':' '.' '+' characters of the ISO form are outside the base64url
// alphabet; they are mapped to 'c' 'd' 'p' for encoding and back again on
// decode, which makes the 32-character datetime exactly 24 raw bytes.
var (
	daterToB64   = strings.NewReplacer(":", "c", ".", "d", "+", "p")
	daterFromB64 = strings.NewReplacer("c", ":", "d", ".", "p", "+")
)

// Dater qualifies a first-seen timestamp.
type Dater struct {
	*Matter
	dts string
}

// NewDater builds a Dater from an ISO-8601 string; empty dts means now.
func NewDater(dts string) (*Dater, error) {
	if dts == "" {
		dts = time.Now().UTC().Format(DaterFormat)
	}
	if _, err := time.Parse(DaterFormat, dts); err != nil {
		return nil, err
	}
	mapped := daterToB64.Replace(dts)
	raw, err := b64Enc.DecodeString(mapped)
	if err != nil {
		return nil, ErrInvalidBase64
	}
	m, err := NewMatter(CodeDateTime, "", raw)
	if err != nil {
		return nil, err
	}
	return &Dater{Matter: m, dts: dts}, nil
}

// DaterFromQb64 parses a qualified datetime.
func DaterFromQb64(qb64 string) (*Dater, int, error) {
	m, n, err := ParseQb64(qb64)
	if err != nil {
		return nil, 0, err
	}
	if m.Code() != CodeDateTime {
		return nil, 0, ErrUnknownCode
	}
	dts := daterFromB64.Replace(b64Enc.EncodeToString(m.Raw()))
	if _, err := time.Parse(DaterFormat, dts); err != nil {
		return nil, 0, err
	}
	return &Dater{Matter: m, dts: dts}, n, nil
}

// DaterFromQb2 is the binary-domain counterpart of DaterFromQb64.
func DaterFromQb2(b []byte) (*Dater, int, error) {
	m, n, err := ParseQb2(b)
	if err != nil {
		return nil, 0, err
	}
	q64, err := m.Qb64()
	if err != nil {
		return nil, 0, err
	}
	d, _, err := DaterFromQb64(q64)
	if err != nil {
		return nil, 0, err
	}
	return d, n, nil
}

// Dts returns the ISO-8601 text form.
func (d *Dater) Dts() string { return d.dts }

// Time parses the timestamp.
func (d *Dater) Time() (time.Time, error) {
	return time.Parse(DaterFormat, d.dts)
}
