package seal

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forestrie/go-keri/keritesting"
)

func newSealPair(t *testing.T, label string) (*keritesting.TestContext, *Sealer, *Verifier) {
	tc := keritesting.NewTestContext(t, keritesting.TestConfig{Seed: label, TestLabelPrefix: label})
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	return tc, NewSealer(tc.Log, tc.Store, key), NewVerifier(tc.Log, &key.PublicKey)
}

func appendFels(tc *keritesting.TestContext, pre string, saids []string) {
	for _, said := range saids {
		tc.Store.AppendFel(pre, said, "dts")
	}
}

func TestSealRoundTrip(t *testing.T) {
	tc, sealer, verifier := newSealPair(t, "sealrt")
	pre := "EAAA"
	appendFels(tc, pre, []string{"E0", "E1", "E2", "E3", "E4"})

	receipt, state, err := sealer.Seal(pre)
	require.NoError(t, err)
	assert.Equal(t, pre, state.Pre)
	assert.Equal(t, uint64(4), state.FnLast)
	assert.Equal(t, "E4", state.SaidLast)

	back, err := verifier.VerifyReceipt(receipt)
	require.NoError(t, err)
	assert.Equal(t, state.MMRSize, back.MMRSize)
	assert.Equal(t, state.Peaks, back.Peaks)
}

func TestSealRejectsForeignKey(t *testing.T) {
	tc, sealer, _ := newSealPair(t, "sealkey")
	pre := "EBBB"
	appendFels(tc, pre, []string{"E0", "E1"})
	receipt, _, err := sealer.Seal(pre)
	require.NoError(t, err)

	other, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	stranger := NewVerifier(tc.Log, &other.PublicKey)
	_, err = stranger.VerifyReceipt(receipt)
	require.ErrorIs(t, err, ErrSealVerifyFailed)
}

func TestSealConsistencyAcrossGrowth(t *testing.T) {
	tc, sealer, verifier := newSealPair(t, "sealgrow")
	pre := "ECCC"
	appendFels(tc, pre, []string{"E0", "E1", "E2"})

	receipt, _, err := sealer.Seal(pre)
	require.NoError(t, err)
	sealed, err := verifier.VerifyReceipt(receipt)
	require.NoError(t, err)

	// unchanged log verifies against its own seal
	require.NoError(t, verifier.VerifyConsistency(tc.Store, pre, sealed))

	// the log grows and remains a strict append of the sealed state
	appendFels(tc, pre, []string{"E3", "E4", "E5", "E6"})
	require.NoError(t, verifier.VerifyConsistency(tc.Store, pre, sealed))
}

func TestSealDetectsRewrittenLog(t *testing.T) {
	tc, sealer, verifier := newSealPair(t, "sealtamper")
	pre := "EDDD"
	appendFels(tc, pre, []string{"E0", "E1", "E2"})

	receipt, _, err := sealer.Seal(pre)
	require.NoError(t, err)
	sealed, err := verifier.VerifyReceipt(receipt)
	require.NoError(t, err)

	// a rewritten history: an earlier entry changed and the log extended
	tc2 := keritesting.NewTestContext(t, keritesting.TestConfig{Seed: "sealtamper2", TestLabelPrefix: "sealtamper2"})
	appendFels(tc2, pre, []string{"E0", "EX", "E2", "E3"})
	err = verifier.VerifyConsistency(tc2.Store, pre, sealed)
	require.ErrorIs(t, err, ErrInconsistentLog)

	// a truncated replica is a regression, not an append
	tc3 := keritesting.NewTestContext(t, keritesting.TestConfig{Seed: "sealtamper3", TestLabelPrefix: "sealtamper3"})
	appendFels(tc3, pre, []string{"E0", "E1"})
	err = verifier.VerifyConsistency(tc3.Store, pre, sealed)
	require.ErrorIs(t, err, ErrSealRegressed)
}

func TestSealEmptyLog(t *testing.T) {
	_, sealer, _ := newSealPair(t, "sealempty")
	_, _, err := sealer.Seal("Enothing")
	require.ErrorIs(t, err, ErrEmptyLog)
}
