package cesr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeqnerRoundTrip(t *testing.T) {
	tests := []uint64{0, 1, 2, 255, 4096, 1<<32 + 17, 1<<63 + 5}
	for _, sn := range tests {
		s, err := NewSeqner(sn)
		require.NoError(t, err)
		q64, err := s.Qb64()
		require.NoError(t, err)
		assert.Equal(t, 16, len(q64))

		back, n, err := SeqnerFromQb64(q64)
		require.NoError(t, err)
		assert.Equal(t, 16, n)
		assert.Equal(t, sn, back.Sn())
	}
}

func TestPrefixerClassification(t *testing.T) {
	signer, err := NewSigner(true)
	require.NoError(t, err)
	keyQ64, err := signer.Verfer().Qb64()
	require.NoError(t, err)

	p, _, err := PrefixerFromQb64(keyQ64)
	require.NoError(t, err)
	assert.True(t, p.Transferable())
	assert.False(t, p.Digestive())

	ntSigner, err := NewSigner(false)
	require.NoError(t, err)
	ntQ64, err := ntSigner.Verfer().Qb64()
	require.NoError(t, err)
	np, _, err := PrefixerFromQb64(ntQ64)
	require.NoError(t, err)
	assert.False(t, np.Transferable())

	dig, err := NewDiger("", []byte("an inception preimage"))
	require.NoError(t, err)
	digQ64, err := dig.Qb64()
	require.NoError(t, err)
	dp, _, err := PrefixerFromQb64(digQ64)
	require.NoError(t, err)
	assert.True(t, dp.Digestive())
	assert.True(t, dp.Transferable())

	// a bare signature code is not a valid prefix
	sig, err := signer.Sign([]byte("x"))
	require.NoError(t, err)
	sigQ64, err := sig.Qb64()
	require.NoError(t, err)
	_, _, err = PrefixerFromQb64(sigQ64)
	require.ErrorIs(t, err, ErrUnknownCode)
}

func TestDaterRoundTrip(t *testing.T) {
	dts := "2024-03-01T13:05:59.123456+00:00"
	d, err := NewDater(dts)
	require.NoError(t, err)
	q64, err := d.Qb64()
	require.NoError(t, err)
	assert.Equal(t, 36, len(q64))
	assert.Equal(t, CodeDateTime, q64[:4])

	back, n, err := DaterFromQb64(q64)
	require.NoError(t, err)
	assert.Equal(t, 36, n)
	assert.Equal(t, dts, back.Dts())

	q2, err := d.Qb2()
	require.NoError(t, err)
	back2, _, err := DaterFromQb2(q2)
	require.NoError(t, err)
	assert.Equal(t, dts, back2.Dts())
}

func TestDaterRejectsMalformed(t *testing.T) {
	_, err := NewDater("2024-03-01 13:05:59")
	require.Error(t, err)
}

func TestPatherPath(t *testing.T) {
	p, err := NewPather("-a-2-d")
	require.NoError(t, err)
	q64, err := p.Qb64()
	require.NoError(t, err)

	back, _, err := PatherFromQb64(q64)
	require.NoError(t, err)
	assert.Equal(t, "-a-2-d", back.Path())

	_, err = NewPather("a-2")
	require.Error(t, err)
}

func TestCounterRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		code  string
		count int
		fs    int
	}{
		{"controller sigs", CtrControllerIdxSigs, 3, 4},
		{"witness sigs", CtrWitnessIdxSigs, 0, 4},
		{"attachment group", CtrAttachmentGroup, 4095, 4},
		{"big pathed material", CtrBigPathedMaterialGroup, 1 << 20, 8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewCounter(tt.code, tt.count)
			require.NoError(t, err)
			q64, err := c.Qb64()
			require.NoError(t, err)
			assert.Equal(t, tt.fs, len(q64))

			back, n, err := ParseCounter(q64)
			require.NoError(t, err)
			assert.Equal(t, tt.fs, n)
			assert.Equal(t, tt.code, back.Code())
			assert.Equal(t, tt.count, back.Count())

			q2, err := c.Qb2()
			require.NoError(t, err)
			back2, n2, err := ParseCounterQb2(q2)
			require.NoError(t, err)
			assert.Equal(t, len(q2), n2)
			assert.Equal(t, tt.count, back2.Count())
		})
	}
}

func TestDigestFamiliesAreDistinct(t *testing.T) {
	// every code must hash with its own algorithm: a blake2s digest that
	// came back blake2b bytes would verify under the wrong code
	ser := []byte("one preimage, many digests")
	seen := map[string]string{}
	for _, code := range []string{
		CodeBlake3_256, CodeBlake2b_256, CodeBlake2s_256, CodeSHA3_256, CodeSHA2_256,
	} {
		d, err := NewDiger(code, ser)
		require.NoError(t, err)
		require.Equal(t, 32, len(d.Raw()), "code %s", code)
		hex := string(d.Raw())
		prev, dup := seen[hex]
		require.False(t, dup, "codes %s and %s produced identical digests", prev, code)
		seen[hex] = code

		ok, err := d.Verify(ser)
		require.NoError(t, err)
		assert.True(t, ok, "code %s", code)
	}
}

func TestDigerVerify(t *testing.T) {
	ser := []byte("event bytes with placeholder said")
	d, err := NewDiger("", ser)
	require.NoError(t, err)
	assert.Equal(t, CodeBlake3_256, d.Code())

	ok, err := d.Verify(ser)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = d.Verify(append(ser, 0))
	require.NoError(t, err)
	assert.False(t, ok)
}
