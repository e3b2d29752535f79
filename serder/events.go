package serder

import (
	"errors"
	"fmt"
	"strconv"
)

var (
	ErrNoKeys       = errors.New("serder: event requires at least one current key")
	ErrBadToad      = errors.New("serder: witness threshold out of range for witness count")
	ErrDupWitness   = errors.New("serder: duplicate witness entry")
)

// HexNum renders a non-negative number as the lowercase-hex text the `s`
// and `bt` fields carry.
func HexNum(n uint64) string { return strconv.FormatUint(n, 16) }

// defaultToad computes the default witness accountability threshold for n
// witnesses: the sufficient majority n - floor((n-1)/3), zero when there
// are none.
func defaultToad(n int) int {
	if n == 0 {
		return 0
	}
	return n - (n-1)/3
}

func checkWits(wits []string) error {
	seen := map[string]bool{}
	for _, w := range wits {
		if seen[w] {
			return fmt.Errorf("%w: %s", ErrDupWitness, w)
		}
		seen[w] = true
	}
	return nil
}

// sith normalizes a threshold value: nil defaults to half the key count
// rounded up, which is 0 for an empty next-key list (the abandonment
// case) and 1 for a single key.
func sith(v any, keyCount int) any {
	if v != nil {
		return v
	}
	return HexNum(uint64((keyCount + 1) / 2))
}

// InceptOpts parameterizes an inception (icp) or delegated inception (dip)
// event.
type InceptOpts struct {
	Keys       []string
	Sith       any // hex string or weighted list; nil derives half the key count, rounded up
	Ndigs      []string
	Nsith      any
	Wits       []string
	Toad       int // -1 selects the sufficient-majority default
	Cnfg       []string
	Data       []any
	Delpre     string // non-empty selects dip
	Kind       Kind
	DigestCode string
	// Basic derives the identifier from the sole key instead of
	// self-addressing; only valid for a single-key inception.
	Basic bool
}

// Incept builds and self-addresses an inception event.
func Incept(opts InceptOpts) (*Serder, error) {
	if len(opts.Keys) == 0 {
		return nil, ErrNoKeys
	}
	if err := checkWits(opts.Wits); err != nil {
		return nil, err
	}
	toad := opts.Toad
	if toad < 0 {
		toad = defaultToad(len(opts.Wits))
	}
	// inception alone may set a zero threshold over a non-empty roster
	if toad < 0 || toad > len(opts.Wits) {
		return nil, ErrBadToad
	}

	ilk := IlkIcp
	if opts.Delpre != "" {
		ilk = IlkDip
	}

	extra := []Field{
		{Key: "i", Value: ""}, // placeholder or basic key, below
		{Key: "s", Value: HexNum(0)},
		{Key: "kt", Value: sith(opts.Sith, len(opts.Keys))},
		{Key: "k", Value: opts.Keys},
		{Key: "nt", Value: sith(opts.Nsith, len(opts.Ndigs))},
		{Key: "n", Value: orEmpty(opts.Ndigs)},
		{Key: "bt", Value: HexNum(uint64(toad))},
		{Key: "b", Value: orEmpty(opts.Wits)},
		{Key: "c", Value: orEmpty(opts.Cnfg)},
		{Key: "a", Value: orEmptyAny(opts.Data)},
	}
	if ilk == IlkDip {
		extra = append(extra, Field{Key: "di", Value: opts.Delpre})
	}

	iDigestive := !opts.Basic
	if opts.Basic {
		if len(opts.Keys) != 1 {
			return nil, fmt.Errorf("%w: basic derivation needs exactly one key", ErrNoKeys)
		}
		extra[0].Value = opts.Keys[0]
	}

	sad, raw, err := BuildEvent(ilk, ProtoKERI, CurrentVersion, opts.Kind, opts.DigestCode, extra, iDigestive)
	if err != nil {
		return nil, err
	}
	return FromSad(sad, raw)
}

// RotateOpts parameterizes a rotation (rot) or delegated rotation (drt).
type RotateOpts struct {
	Pre        string
	Dig        string // prior event SAID
	Sn         uint64
	Keys       []string
	Sith       any
	Ndigs      []string
	Nsith      any
	Toad       int // -1 selects the sufficient-majority default for the resulting wits
	Cuts       []string
	Adds       []string
	Data       []any
	Delegated  bool // drt instead of rot
	Kind       Kind
	DigestCode string
	// WitCount is the resulting witness count after cuts and adds; the
	// builder cannot derive it without the current key state, so callers
	// using the -1 toad default must provide it.
	WitCount int
}

// Rotate builds and self-addresses a rotation event.
func Rotate(opts RotateOpts) (*Serder, error) {
	if len(opts.Keys) == 0 {
		return nil, ErrNoKeys
	}
	if err := checkWits(opts.Cuts); err != nil {
		return nil, err
	}
	if err := checkWits(opts.Adds); err != nil {
		return nil, err
	}
	toad := opts.Toad
	if toad < 0 {
		toad = defaultToad(opts.WitCount)
	}

	ilk := IlkRot
	if opts.Delegated {
		ilk = IlkDrt
	}
	extra := []Field{
		{Key: "i", Value: opts.Pre},
		{Key: "s", Value: HexNum(opts.Sn)},
		{Key: "p", Value: opts.Dig},
		{Key: "kt", Value: sith(opts.Sith, len(opts.Keys))},
		{Key: "k", Value: opts.Keys},
		{Key: "nt", Value: sith(opts.Nsith, len(opts.Ndigs))},
		{Key: "n", Value: orEmpty(opts.Ndigs)},
		{Key: "bt", Value: HexNum(uint64(toad))},
		{Key: "br", Value: orEmpty(opts.Cuts)},
		{Key: "ba", Value: orEmpty(opts.Adds)},
		{Key: "a", Value: orEmptyAny(opts.Data)},
	}
	sad, raw, err := BuildEvent(ilk, ProtoKERI, CurrentVersion, opts.Kind, opts.DigestCode, extra, false)
	if err != nil {
		return nil, err
	}
	return FromSad(sad, raw)
}

// InteractOpts parameterizes an interaction (ixn) event.
type InteractOpts struct {
	Pre        string
	Dig        string
	Sn         uint64
	Data       []any
	Kind       Kind
	DigestCode string
}

// Interact builds and self-addresses an interaction event.
func Interact(opts InteractOpts) (*Serder, error) {
	extra := []Field{
		{Key: "i", Value: opts.Pre},
		{Key: "s", Value: HexNum(opts.Sn)},
		{Key: "p", Value: opts.Dig},
		{Key: "a", Value: orEmptyAny(opts.Data)},
	}
	sad, raw, err := BuildEvent(IlkIxn, ProtoKERI, CurrentVersion, opts.Kind, opts.DigestCode, extra, false)
	if err != nil {
		return nil, err
	}
	return FromSad(sad, raw)
}

// Receipt builds a receipt (rct) message referencing an event by its SAID.
// A receipt's `d` is the referenced event's SAID, not a self-addressing
// digest, so it bypasses the SAID computation.
func Receipt(pre string, sn uint64, said string, kind Kind) (*Serder, error) {
	sad := NewSadder()
	placeholderV, err := PlaceholderVersionString(ProtoKERI, CurrentVersion, kind)
	if err != nil {
		return nil, err
	}
	sad.Set("v", placeholderV)
	sad.Set("t", string(IlkRct))
	sad.Set("d", said)
	sad.Set("i", pre)
	sad.Set("s", HexNum(sn))

	raw, err := finishSizing(sad, ProtoKERI, kind)
	if err != nil {
		return nil, err
	}
	return FromSad(sad, raw)
}

// QueryOpts parameterizes a query (qry) message.
type QueryOpts struct {
	Dts        string
	Route      string
	ReplyRoute string
	Query      map[string]any
	Kind       Kind
	DigestCode string
}

// Query builds and self-addresses a query message.
func Query(opts QueryOpts) (*Serder, error) {
	q := opts.Query
	if q == nil {
		q = map[string]any{}
	}
	extra := []Field{
		{Key: "dt", Value: opts.Dts},
		{Key: "r", Value: opts.Route},
		{Key: "rr", Value: opts.ReplyRoute},
		{Key: "q", Value: q},
	}
	sad, raw, err := BuildEvent(IlkQry, ProtoKERI, CurrentVersion, opts.Kind, opts.DigestCode, extra, false)
	if err != nil {
		return nil, err
	}
	return FromSad(sad, raw)
}

// ReplyOpts parameterizes a reply (rpy) message.
type ReplyOpts struct {
	Dts        string
	Route      string
	Data       any
	Kind       Kind
	DigestCode string
}

// Reply builds and self-addresses a reply message.
func Reply(opts ReplyOpts) (*Serder, error) {
	data := opts.Data
	if data == nil {
		data = map[string]any{}
	}
	extra := []Field{
		{Key: "dt", Value: opts.Dts},
		{Key: "r", Value: opts.Route},
		{Key: "a", Value: data},
	}
	sad, raw, err := BuildEvent(IlkRpy, ProtoKERI, CurrentVersion, opts.Kind, opts.DigestCode, extra, false)
	if err != nil {
		return nil, err
	}
	return FromSad(sad, raw)
}

// ExchangeOpts parameterizes a peer-to-peer exchange (exn) message.
type ExchangeOpts struct {
	Sender     string // i
	ReplyPrior string // rp
	Prior      string // p
	Dts        string
	Route      string
	Query      map[string]any
	Data       any
	Embeds     map[string]any
	Kind       Kind
	DigestCode string
}

// Exchange builds and self-addresses an exchange message.
func Exchange(opts ExchangeOpts) (*Serder, error) {
	q := opts.Query
	if q == nil {
		q = map[string]any{}
	}
	data := opts.Data
	if data == nil {
		data = []any{}
	}
	e := opts.Embeds
	if e == nil {
		e = map[string]any{}
	}
	extra := []Field{
		{Key: "i", Value: opts.Sender},
		{Key: "rp", Value: opts.ReplyPrior},
		{Key: "p", Value: opts.Prior},
		{Key: "dt", Value: opts.Dts},
		{Key: "r", Value: opts.Route},
		{Key: "q", Value: q},
		{Key: "a", Value: data},
		{Key: "e", Value: e},
	}
	sad, raw, err := BuildEvent(IlkExn, ProtoKERI, CurrentVersion, opts.Kind, opts.DigestCode, extra, false)
	if err != nil {
		return nil, err
	}
	return FromSad(sad, raw)
}

// finishSizing fills the version string of a sad whose digest fields are
// already final, re-serializing once to measure and once to emit.
func finishSizing(sad *Sadder, protocol string, kind Kind) ([]byte, error) {
	codec, err := CodecFor(kind)
	if err != nil {
		return nil, err
	}
	raw1, err := codec.Marshal(sad)
	if err != nil {
		return nil, err
	}
	vReal, err := VersionString(protocol, CurrentVersion, kind, len(raw1))
	if err != nil {
		return nil, err
	}
	sad.Set("v", vReal)
	return codec.Marshal(sad)
}

func orEmpty(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}

func orEmptyAny(v []any) []any {
	if v == nil {
		return []any{}
	}
	return v
}
