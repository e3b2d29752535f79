package serder

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"

	"github.com/forestrie/go-keri/cesr"
)

var (
	ErrUnknownProtocol = errors.New("serder: unknown protocol")
	ErrNoVersionField  = errors.New("serder: version string not found in message head")
	ErrShortMessage    = errors.New("serder: fewer bytes than the version string declares")
)

// Protocols the two-variant deserializer accepts; everything else is
// rejected at the version-string stage (spec.md §9 collapses the original's
// dynamic Serder subclassing into this enum-by-protocol selection).
const (
	ProtoKERI = "KERI"
	ProtoACDC = "ACDC"
)

// CurrentVersion is the protocol version this library emits.
var CurrentVersion = Version{Major: 1, Minor: 0}

// Serder is a deserialized message: the ordered field map plus the exact
// wire bytes it round-trips to, with the framing facts (protocol, kind,
// size, ilk, SAID) extracted.
type Serder struct {
	sad   *Sadder
	raw   []byte
	proto string
	vrsn  Version
	kind  Kind
	size  int
}

// maxVersionOffset bounds the scan for the version value inside the head of
// a message: the first field of every kind is `v`, so the protocol label
// lands within the first few bytes of map-header plus key framing.
const maxVersionOffset = 12

// ExtractVersion locates and parses the version string in the head of raw
// without fully deserializing, returning the framing facts needed to slice
// the exact message out of a stream.
func ExtractVersion(raw []byte) (proto string, vrsn Version, kind Kind, size int, err error) {
	limit := len(raw) - VersionSpanChars
	if limit > maxVersionOffset {
		limit = maxVersionOffset
	}
	for off := 0; off <= limit; off++ {
		if !bytes.HasPrefix(raw[off:], []byte(ProtoKERI)) && !bytes.HasPrefix(raw[off:], []byte(ProtoACDC)) {
			continue
		}
		proto, vrsn, kind, size, err = ParseVersionString(string(raw[off : off+VersionSpanChars]))
		if err != nil {
			return "", Version{}, 0, 0, err
		}
		return proto, vrsn, kind, size, nil
	}
	return "", Version{}, 0, 0, ErrNoVersionField
}

// FromRaw deserializes the message at the front of raw. raw may extend past
// the message; the version string's size field determines the exact slice.
func FromRaw(raw []byte) (*Serder, error) {
	proto, vrsn, kind, size, err := ExtractVersion(raw)
	if err != nil {
		return nil, err
	}
	if proto != ProtoKERI && proto != ProtoACDC {
		return nil, ErrUnknownProtocol
	}
	if len(raw) < size {
		return nil, ErrShortMessage
	}
	msg := make([]byte, size)
	copy(msg, raw[:size])

	codec, err := CodecFor(kind)
	if err != nil {
		return nil, err
	}
	sad, err := codec.Unmarshal(msg)
	if err != nil {
		return nil, err
	}
	s := &Serder{sad: sad, raw: msg, proto: proto, vrsn: vrsn, kind: kind, size: size}
	if proto == ProtoKERI {
		// ACDC bodies have their own field discipline; only KERI messages
		// are held to the ilk vocabulary and required-field sets here
		if !KnownIlks[s.Ilk()] {
			return nil, fmt.Errorf("%w: unknown ilk %q", ErrMissingField, s.Ilk())
		}
		if err := checkRequired(s.Ilk(), sad); err != nil {
			return nil, fmt.Errorf("%w: ilk %s", err, s.Ilk())
		}
	}
	return s, nil
}

// FromSad wraps an already built field map and its final serialization.
func FromSad(sad *Sadder, raw []byte) (*Serder, error) {
	proto, vrsn, kind, size, err := ExtractVersion(raw)
	if err != nil {
		return nil, err
	}
	return &Serder{sad: sad, raw: raw, proto: proto, vrsn: vrsn, kind: kind, size: size}, nil
}

func (s *Serder) Raw() []byte     { return s.raw }
func (s *Serder) Sad() *Sadder    { return s.sad }
func (s *Serder) Proto() string   { return s.proto }
func (s *Serder) Vrsn() Version   { return s.vrsn }
func (s *Serder) Kind() Kind      { return s.kind }
func (s *Serder) Size() int       { return s.size }
func (s *Serder) Said() string    { return s.sad.GetString("d") }
func (s *Serder) Pre() string     { return s.sad.GetString("i") }
func (s *Serder) Prior() string   { return s.sad.GetString("p") }
func (s *Serder) Delpre() string  { return s.sad.GetString("di") }
func (s *Serder) Ilk() Ilk        { return Ilk(s.sad.GetString("t")) }

// Sn parses the hex sequence number field.
func (s *Serder) Sn() (uint64, error) {
	return parseHex(s.sad.GetString("s"))
}

// Bt parses the hex witness (accountability) threshold field.
func (s *Serder) Bt() (int, error) {
	n, err := parseHex(s.sad.GetString("bt"))
	return int(n), err
}

func parseHex(v string) (uint64, error) {
	if v == "" {
		return 0, ErrMissingField
	}
	n, err := strconv.ParseUint(v, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: bad hex number %q", ErrMissingField, v)
	}
	return n, nil
}

// Kt returns the raw signing-threshold field value (hex string or weighted
// list); the KEL verifier turns it into a Tholder.
func (s *Serder) Kt() any { v, _ := s.sad.Get("kt"); return v }

// Nt returns the raw next-threshold field value.
func (s *Serder) Nt() any { v, _ := s.sad.Get("nt"); return v }

// Keys returns the current signing key list.
func (s *Serder) Keys() []string { return s.strings("k") }

// Ndigs returns the next-key digest commitment list.
func (s *Serder) Ndigs() []string { return s.strings("n") }

// Wits returns the witness list (icp/dip) .
func (s *Serder) Wits() []string { return s.strings("b") }

// Cuts returns the witness removal list (rot/drt).
func (s *Serder) Cuts() []string { return s.strings("br") }

// Adds returns the witness addition list (rot/drt).
func (s *Serder) Adds() []string { return s.strings("ba") }

// Traits returns the config trait list.
func (s *Serder) Traits() []string { return s.strings("c") }

// Data returns the seal/anchor list (`a` field) as decoded.
func (s *Serder) Data() []any {
	v, ok := s.sad.Get("a")
	if !ok {
		return nil
	}
	lst, _ := v.([]any)
	return lst
}

// Verfers parses the key list into verification-key primitives.
func (s *Serder) Verfers() ([]*cesr.Verfer, error) {
	keys := s.Keys()
	out := make([]*cesr.Verfer, 0, len(keys))
	for _, k := range keys {
		v, _, err := cesr.VerferFromQb64(k)
		if err != nil {
			return nil, fmt.Errorf("bad key %q: %w", k, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// Ndigers parses the next-key digest list into digest primitives.
func (s *Serder) Ndigers() ([]*cesr.Diger, error) {
	digs := s.Ndigs()
	out := make([]*cesr.Diger, 0, len(digs))
	for _, d := range digs {
		dg, _, err := cesr.DigerFromQb64(d)
		if err != nil {
			return nil, fmt.Errorf("bad next digest %q: %w", d, err)
		}
		out = append(out, dg)
	}
	return out, nil
}

// VerifySaid checks the self-addressing digest of the message (P2/S6).
func (s *Serder) VerifySaid() error {
	_, err := VerifySAID(s.sad, s.kind)
	return err
}

// Establishment reports whether the message's ilk carries a key-state
// commitment.
func (s *Serder) Establishment() bool { return IsEstablishment(s.Ilk()) }

// strings decodes a field whose wire value is a list of strings. The JSON/
// CBOR/MsgPack decoders all surface lists as []any.
func (s *Serder) strings(key string) []string {
	v, ok := s.sad.Get(key)
	if !ok {
		return nil
	}
	switch lst := v.(type) {
	case []string:
		return lst
	case []any:
		out := make([]string, 0, len(lst))
		for _, e := range lst {
			str, ok := e.(string)
			if !ok {
				return nil
			}
			out = append(out, str)
		}
		return out
	default:
		return nil
	}
}
