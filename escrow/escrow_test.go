package escrow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutMergesBySaid(t *testing.T) {
	s := New()
	id1 := s.Put(PartiallySigned, &Envelope{Pre: "E1", Sn: 0, Said: "Ed", Sigs: []string{"sigA"}})
	id2 := s.Put(PartiallySigned, &Envelope{Pre: "E1", Sn: 0, Said: "Ed", Sigs: []string{"sigB", "sigA"}})
	assert.Equal(t, id1, id2)
	assert.Equal(t, 1, s.Len(PartiallySigned))

	envs := s.Drain(PartiallySigned, "E1")
	require.Equal(t, 1, len(envs))
	assert.Equal(t, []string{"sigA", "sigB"}, envs[0].Sigs)
	assert.Equal(t, 0, s.Len(PartiallySigned))
}

func TestDrainSaid(t *testing.T) {
	s := New()
	s.Put(PartiallyWitnessed, &Envelope{Pre: "E1", Said: "Ea"})
	s.Put(PartiallyWitnessed, &Envelope{Pre: "E1", Said: "Eb"})

	env := s.DrainSaid(PartiallyWitnessed, "E1", "Ea")
	require.NotNil(t, env)
	assert.Equal(t, "Ea", env.Said)
	assert.Equal(t, 1, s.Len(PartiallyWitnessed))

	assert.Nil(t, s.DrainSaid(PartiallyWitnessed, "E1", "Ea"))
	assert.Nil(t, s.DrainSaid(PartiallyWitnessed, "E2", "Eb"))
}

func TestPruneExpires(t *testing.T) {
	s := New(WithTTL(time.Minute))
	old := time.Now().Add(-2 * time.Minute)
	s.Put(OutOfOrder, &Envelope{Pre: "E1", Said: "Ea", EscrowedAt: old})
	s.Put(OutOfOrder, &Envelope{Pre: "E1", Said: "Eb"})

	dropped := s.Prune(time.Now())
	require.Equal(t, 1, len(dropped))
	assert.Equal(t, "Ea", dropped[0].Said)
	assert.Equal(t, 1, s.Len(OutOfOrder))
}

func TestPresListsPending(t *testing.T) {
	s := New()
	s.Put(Delegable, &Envelope{Pre: "E1", Said: "Ea"})
	s.Put(Delegable, &Envelope{Pre: "E2", Said: "Eb"})
	pres := s.Pres(Delegable)
	assert.ElementsMatch(t, []string{"E1", "E2"}, pres)
}
