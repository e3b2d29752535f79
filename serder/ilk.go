package serder

// Ilk is the `t` field: a message's type tag.
type Ilk string

const (
	IlkIcp Ilk = "icp"
	IlkRot Ilk = "rot"
	IlkIxn Ilk = "ixn"
	IlkDip Ilk = "dip"
	IlkDrt Ilk = "drt"
	IlkRct Ilk = "rct"
	IlkQry Ilk = "qry"
	IlkRpy Ilk = "rpy"
	IlkExn Ilk = "exn"
	IlkVcp Ilk = "vcp"
	IlkVrt Ilk = "vrt"
	IlkIss Ilk = "iss"
	IlkRev Ilk = "rev"
	IlkBis Ilk = "bis"
	IlkBrv Ilk = "brv"
)

// EstablishmentIlks are the ilks that carry a new signing-key commitment
// (current keys + next-key digests); only these can change an
// identifier's key state.
var EstablishmentIlks = map[Ilk]bool{
	IlkIcp: true, IlkRot: true, IlkDip: true, IlkDrt: true,
}

// RequiredFields gives the additional (beyond v, t, d) required field keys
// for each ilk, in relative serialization order -- the ilk-specific table
// from spec.md §4.2. Optional fields (the `a` seal list, notably) are
// interleaved by the builders at their conventional positions.
var RequiredFields = map[Ilk][]string{
	IlkIcp: {"i", "s", "kt", "k", "nt", "n", "bt", "b", "c"},
	IlkRot: {"i", "s", "p", "kt", "k", "nt", "n", "bt", "br", "ba"},
	IlkIxn: {"i", "s", "p"},
	IlkDip: {"i", "s", "kt", "k", "nt", "n", "bt", "b", "c", "di"},
	IlkDrt: {"i", "s", "p", "kt", "k", "nt", "n", "bt", "br", "ba"},
	IlkRct: {"i", "s"},
	IlkQry: {"dt", "r", "rr", "q"},
	IlkRpy: {"dt", "r", "a"},
	IlkExn: {"i", "rp", "p", "dt", "r", "q", "a", "e"},
	IlkVcp: {"i", "ii", "s", "c", "bt", "b", "n"},
}

// CommonFields are the three fields present in every ilk, always first.
var CommonFields = []string{"v", "t", "d"}

// KnownIlks is the full ilk vocabulary; anything else fails deserialization.
var KnownIlks = map[Ilk]bool{
	IlkIcp: true, IlkRot: true, IlkIxn: true, IlkDip: true, IlkDrt: true,
	IlkRct: true, IlkQry: true, IlkRpy: true, IlkExn: true,
	IlkVcp: true, IlkVrt: true, IlkIss: true, IlkRev: true, IlkBis: true, IlkBrv: true,
}

// IsEstablishment reports whether ilk is one that carries a key-state
// commitment.
func IsEstablishment(ilk Ilk) bool { return EstablishmentIlks[ilk] }
