package serder

import (
	"testing"

	"github.com/forestrie/go-keri/cesr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKeyAndNext(t *testing.T) (key string, ndig string) {
	t.Helper()
	signer, err := cesr.NewSignerFromSeed(make([]byte, 32), true)
	require.NoError(t, err)
	key, err = signer.Verfer().Qb64()
	require.NoError(t, err)

	next, err := cesr.NewSignerFromSeed(append(make([]byte, 31), 1), true)
	require.NoError(t, err)
	nd, err := cesr.NewDiger("", next.Verfer().Raw())
	require.NoError(t, err)
	ndig, err = nd.Qb64()
	require.NoError(t, err)
	return key, ndig
}

func TestVersionStringRoundTrip(t *testing.T) {
	v, err := VersionString(ProtoKERI, Version{Major: 1, Minor: 0}, KindJSON, 0xfd)
	require.NoError(t, err)
	assert.Equal(t, VersionSpanChars, len(v))
	assert.Equal(t, "KERI10JSON0000fd_", v)

	proto, vr, kind, size, err := ParseVersionString(v)
	require.NoError(t, err)
	assert.Equal(t, ProtoKERI, proto)
	assert.Equal(t, Version{Major: 1, Minor: 0}, vr)
	assert.Equal(t, KindJSON, kind)
	assert.Equal(t, 0xfd, size)
}

func TestInceptionSelfAddressing(t *testing.T) {
	key, ndig := testKeyAndNext(t)

	for _, kind := range []Kind{KindJSON, KindCBOR, KindMGPK} {
		t.Run(kind.String(), func(t *testing.T) {
			srdr, err := Incept(InceptOpts{
				Keys:  []string{key},
				Sith:  "1",
				Ndigs: []string{ndig},
				Nsith: "1",
				Kind:  kind,
			})
			require.NoError(t, err)

			// P3: declared size equals the whole serialized length
			require.NoError(t, CheckSize(srdr.Sad().GetString("v"), len(srdr.Raw())))

			// self-addressing: i == d and both carry a digest code
			assert.Equal(t, srdr.Said(), srdr.Pre())
			assert.Equal(t, cesr.DefaultDigestCode, srdr.Said()[:1])
			assert.Equal(t, 44, len(srdr.Said()))

			require.NoError(t, srdr.VerifySaid())

			// round-trip through the wire bytes
			back, err := FromRaw(srdr.Raw())
			require.NoError(t, err)
			assert.Equal(t, srdr.Said(), back.Said())
			assert.Equal(t, IlkIcp, back.Ilk())
			sn, err := back.Sn()
			require.NoError(t, err)
			assert.Equal(t, uint64(0), sn)
			assert.Equal(t, []string{key}, back.Keys())
			assert.Equal(t, []string{ndig}, back.Ndigs())
			require.NoError(t, back.VerifySaid())
		})
	}
}

func TestInceptionKnownAnswer(t *testing.T) {
	// fixed vector for a basic single-key inception: the canonical wire
	// bytes and the SAID over them are pinned, so any drift in field
	// order, version framing or the placeholder digest algorithm fails
	// here rather than only against a live peer
	key := "DNG2arBDtHK_JyHRAq-emRdC6UM-yIpCAeJIWDiXp4Hx"
	ndig := "EFXIx7URwmw7AVQTBcMxPXfOOJ2YYA1SJAam69DXV8D2"
	wantSaid := "EIcca2-uqsicYK7-q5gxlZXuzOkqrNSL3JIaLflSOOgF"
	wantRaw := `{"v":"KERI10JSON00012b_","t":"icp","d":"EIcca2-uqsicYK7-q5gxlZXuzOkqrNSL3JIaLflSOOgF",` +
		`"i":"DNG2arBDtHK_JyHRAq-emRdC6UM-yIpCAeJIWDiXp4Hx","s":"0","kt":"1",` +
		`"k":["DNG2arBDtHK_JyHRAq-emRdC6UM-yIpCAeJIWDiXp4Hx"],"nt":"1",` +
		`"n":["EFXIx7URwmw7AVQTBcMxPXfOOJ2YYA1SJAam69DXV8D2"],"bt":"0","b":[],"c":[],"a":[]}`

	srdr, err := Incept(InceptOpts{
		Keys:  []string{key},
		Sith:  "1",
		Ndigs: []string{ndig},
		Nsith: "1",
		Basic: true,
	})
	require.NoError(t, err)
	assert.Equal(t, wantSaid, srdr.Said())
	assert.Equal(t, wantRaw, string(srdr.Raw()))
	assert.Equal(t, key, srdr.Pre())
	require.NoError(t, srdr.VerifySaid())

	// and the wire bytes round-trip to the same message
	back, err := FromRaw([]byte(wantRaw))
	require.NoError(t, err)
	assert.Equal(t, wantSaid, back.Said())
	require.NoError(t, back.VerifySaid())
}

func TestSaidIsPureFunctionOfBytes(t *testing.T) {
	// P2: two builds from identical inputs produce identical SAIDs
	key, ndig := testKeyAndNext(t)
	a, err := Incept(InceptOpts{Keys: []string{key}, Ndigs: []string{ndig}})
	require.NoError(t, err)
	b, err := Incept(InceptOpts{Keys: []string{key}, Ndigs: []string{ndig}})
	require.NoError(t, err)
	assert.Equal(t, a.Said(), b.Said())
	assert.Equal(t, a.Raw(), b.Raw())
}

func TestTamperDetection(t *testing.T) {
	// S6: flip a field value, keep the size accurate, SAID must fail
	key, ndig := testKeyAndNext(t)
	srdr, err := Incept(InceptOpts{Keys: []string{key}, Ndigs: []string{ndig}})
	require.NoError(t, err)

	sad := srdr.Sad().Clone()
	sad.Set("s", "1") // same byte length as "0": v stays correct
	codec, err := CodecFor(KindJSON)
	require.NoError(t, err)
	raw, err := codec.Marshal(sad)
	require.NoError(t, err)
	require.NoError(t, CheckSize(sad.GetString("v"), len(raw)))

	tampered, err := FromRaw(raw)
	require.NoError(t, err)
	require.ErrorIs(t, tampered.VerifySaid(), ErrSAIDMismatch)
}

func TestRotationAndInteractionFields(t *testing.T) {
	key, ndig := testKeyAndNext(t)
	icp, err := Incept(InceptOpts{Keys: []string{key}, Ndigs: []string{ndig}})
	require.NoError(t, err)

	rot, err := Rotate(RotateOpts{
		Pre:   icp.Pre(),
		Dig:   icp.Said(),
		Sn:    1,
		Keys:  []string{key},
		Ndigs: []string{ndig},
	})
	require.NoError(t, err)
	assert.Equal(t, IlkRot, rot.Ilk())
	assert.Equal(t, icp.Said(), rot.Prior())
	require.NoError(t, rot.VerifySaid())

	ixn, err := Interact(InteractOpts{Pre: icp.Pre(), Dig: rot.Said(), Sn: 2})
	require.NoError(t, err)
	assert.Equal(t, IlkIxn, ixn.Ilk())
	sn, err := ixn.Sn()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), sn)
	require.NoError(t, ixn.VerifySaid())
}

func TestReceiptReferencesEvent(t *testing.T) {
	key, ndig := testKeyAndNext(t)
	icp, err := Incept(InceptOpts{Keys: []string{key}, Ndigs: []string{ndig}})
	require.NoError(t, err)

	rct, err := Receipt(icp.Pre(), 0, icp.Said(), KindJSON)
	require.NoError(t, err)
	assert.Equal(t, IlkRct, rct.Ilk())
	assert.Equal(t, icp.Said(), rct.Said())
	require.NoError(t, CheckSize(rct.Sad().GetString("v"), len(rct.Raw())))

	back, err := FromRaw(rct.Raw())
	require.NoError(t, err)
	assert.Equal(t, icp.Said(), back.Said())
}

func TestMissingRequiredFieldRejected(t *testing.T) {
	_, _, err := BuildEvent(IlkIcp, ProtoKERI, CurrentVersion, KindJSON, "", []Field{
		{Key: "i", Value: ""},
		{Key: "s", Value: "0"},
		// kt and the rest deliberately absent
	}, true)
	require.ErrorIs(t, err, ErrMissingField)
}

func TestUnknownProtocolRejected(t *testing.T) {
	key, ndig := testKeyAndNext(t)
	srdr, err := Incept(InceptOpts{Keys: []string{key}, Ndigs: []string{ndig}})
	require.NoError(t, err)

	raw := append([]byte(nil), srdr.Raw()...)
	copy(raw[6:10], "XERI")
	_, err = FromRaw(raw)
	require.Error(t, err)
}

func TestQueryAndReply(t *testing.T) {
	dater, err := cesr.NewDater("")
	require.NoError(t, err)

	qry, err := Query(QueryOpts{
		Dts:        dater.Dts(),
		Route:      "logs",
		ReplyRoute: "log/processor",
		Query:      map[string]any{"i": "EABC"},
	})
	require.NoError(t, err)
	assert.Equal(t, IlkQry, qry.Ilk())
	require.NoError(t, qry.VerifySaid())

	rpy, err := Reply(ReplyOpts{Dts: dater.Dts(), Route: "logs", Data: map[string]any{"n": 1}})
	require.NoError(t, err)
	assert.Equal(t, IlkRpy, rpy.Ilk())
	require.NoError(t, rpy.VerifySaid())

	exn, err := Exchange(ExchangeOpts{
		Sender: "EABC",
		Dts:    dater.Dts(),
		Route:  "/challenge/response",
		Data:   []any{map[string]any{"words": "one two"}},
	})
	require.NoError(t, err)
	assert.Equal(t, IlkExn, exn.Ilk())
	require.NoError(t, exn.VerifySaid())

	back, err := FromRaw(exn.Raw())
	require.NoError(t, err)
	assert.Equal(t, exn.Said(), back.Said())
}
