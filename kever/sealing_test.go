package kever

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forestrie/go-keri/keritesting"
	"github.com/forestrie/go-keri/seal"
)

func enableSealing(t *testing.T, tc *keritesting.TestContext, kvy *Kevery, interval uint64) *seal.Verifier {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	verifier := seal.NewVerifier(tc.Log, &key.PublicKey)
	kvy.EnableSealing(Sealing{
		Sealer:   seal.NewSealer(tc.Log, tc.Store, key),
		Verifier: verifier,
		Interval: interval,
	})
	return verifier
}

func TestSealingOnAccept(t *testing.T) {
	tc, kvy := newKevery(t, "sealing")
	verifier := enableSealing(t, tc, kvy, 4)

	b := keritesting.NewKELBuilder(tc)
	b.Rotate()
	b.Interact(nil)
	b.Interact(nil)
	b.Rotate()
	b.Interact(nil)
	b.Interact(nil)
	b.Interact(nil)
	require.Equal(t, 8, len(b.Events))

	for i := range b.Events {
		srdr, sigers := b.Event(i)
		require.NoError(t, kvy.ProcessEvent(srdr, sigers, nil), "event %d", i)
	}

	// two intervals of four events: the pinned receipt covers the whole
	// first-seen log
	receipt, ok := tc.Store.GetSeal(b.Pre)
	require.True(t, ok)
	state, err := verifier.VerifyReceipt(receipt)
	require.NoError(t, err)
	assert.Equal(t, b.Pre, state.Pre)
	assert.Equal(t, uint64(7), state.FnLast)
	assert.Equal(t, b.Events[7].Said(), state.SaidLast)

	require.NoError(t, verifier.VerifyConsistency(tc.Store, b.Pre, state))
}

func TestSealRecheckOnOutOfOrderReentry(t *testing.T) {
	tc, kvy := newKevery(t, "sealreentry")
	verifier := enableSealing(t, tc, kvy, 1)

	b := keritesting.NewKELBuilder(tc)
	b.Interact(nil)
	b.Interact(nil)

	icp, icpSigs := b.Event(0)
	ixn1, ixn1Sigs := b.Event(1)
	ixn2, ixn2Sigs := b.Event(2)

	// inception seals immediately at interval one
	require.NoError(t, kvy.ProcessEvent(icp, icpSigs, nil))
	_, ok := tc.Store.GetSeal(b.Pre)
	require.True(t, ok)

	// the interaction at sn 2 escrows; when sn 1 arrives the reentry
	// applies it and the recheck proves the grown log appends to the seal
	require.NoError(t, kvy.ProcessEvent(ixn2, ixn2Sigs, nil))
	require.NoError(t, kvy.ProcessEvent(ixn1, ixn1Sigs, nil))

	k, ok := kvy.Kever(b.Pre)
	require.True(t, ok)
	require.Equal(t, uint64(2), k.Sn())

	receipt, ok := tc.Store.GetSeal(b.Pre)
	require.True(t, ok)
	state, err := verifier.VerifyReceipt(receipt)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), state.FnLast)
	// the escrowed interaction was applied last, so it is the newest
	// first-seen entry the latest seal covers
	assert.Equal(t, ixn2.Said(), state.SaidLast)
	require.NoError(t, verifier.VerifyConsistency(tc.Store, b.Pre, state))
}

func TestSealedStateRecoveredFromPinnedReceipt(t *testing.T) {
	tc, kvy := newKevery(t, "sealrecover")
	enableSealing(t, tc, kvy, 1)

	b := keritesting.NewKELBuilder(tc)
	icp, sigers := b.Event(0)
	require.NoError(t, kvy.ProcessEvent(icp, sigers, nil))

	// drop the in-memory cache, as a restarted dispatcher would
	kvy.mu.Lock()
	kvy.sealed = map[string]*seal.KELState{}
	kvy.mu.Unlock()

	st := kvy.sealedState(b.Pre)
	require.NotNil(t, st)
	assert.Equal(t, uint64(0), st.FnLast)
	assert.Equal(t, icp.Said(), st.SaidLast)
}
