// Package keritesting provides seeded key material and canned key event
// log fixtures for the test suites of the other packages, mirroring the
// shape of the teacher's mmrtesting test context: one constructor wiring a
// logger and stores, plus deterministic generators so fixture data is the
// same from run to run.
package keritesting

import (
	"crypto/sha256"
	"fmt"
	"testing"

	"github.com/datatrails/go-datatrails-common/logger"
	"github.com/stretchr/testify/require"

	"github.com/forestrie/go-keri/cesr"
	"github.com/forestrie/go-keri/db"
	"github.com/forestrie/go-keri/serder"
)

type TestConfig struct {
	// Seed namespaces the deterministic key material; fixtures built from
	// the same seed are identical from run to run.
	Seed            string
	TestLabelPrefix string
}

type TestContext struct {
	T     *testing.T
	Log   logger.Logger
	Store *db.Store
	Cfg   TestConfig
}

func NewTestContext(t *testing.T, cfg TestConfig) *TestContext {
	if cfg.TestLabelPrefix == "" {
		cfg.TestLabelPrefix = "keritest"
	}
	logger.New("INFO")
	return &TestContext{
		T:     t,
		Log:   logger.Sugar.WithServiceName(cfg.TestLabelPrefix),
		Store: db.New(),
		Cfg:   cfg,
	}
}

// Signer derives the i'th deterministic signer for this context's seed.
func (c *TestContext) Signer(i int, transferable bool) *cesr.Signer {
	seed := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%d", c.Cfg.Seed, c.Cfg.TestLabelPrefix, i)))
	s, err := cesr.NewSignerFromSeed(seed[:], transferable)
	require.NoError(c.T, err)
	return s
}

// Signers derives n deterministic transferable signers.
func (c *TestContext) Signers(n int) []*cesr.Signer {
	out := make([]*cesr.Signer, n)
	for i := range out {
		out[i] = c.Signer(i, true)
	}
	return out
}

// KeyQb64 returns the qualified public key of a signer.
func (c *TestContext) KeyQb64(s *cesr.Signer) string {
	q64, err := s.Verfer().Qb64()
	require.NoError(c.T, err)
	return q64
}

// NextDig computes the next-key digest commitment for a signer's key.
func (c *TestContext) NextDig(s *cesr.Signer) string {
	d, err := cesr.NewDiger("", s.Verfer().Raw())
	require.NoError(c.T, err)
	q64, err := d.Qb64()
	require.NoError(c.T, err)
	return q64
}

// Sign produces the indexed controller signatures for an event, one per
// signer in key-list order.
func (c *TestContext) Sign(srdr *serder.Serder, signers ...*cesr.Signer) []*cesr.Siger {
	sigers := make([]*cesr.Siger, 0, len(signers))
	for i, s := range signers {
		sig, err := s.SignIndexed(srdr.Raw(), i, nil)
		require.NoError(c.T, err)
		sigers = append(sigers, sig)
	}
	return sigers
}

// AttachSigs renders the wire attachment section for a set of controller
// signatures: the indexed-signature counter followed by each qb64.
func AttachSigs(t *testing.T, sigers []*cesr.Siger) []byte {
	ctr, err := cesr.NewCounter(cesr.CtrControllerIdxSigs, len(sigers))
	require.NoError(t, err)
	head, err := ctr.Qb64()
	require.NoError(t, err)
	out := []byte(head)
	for _, sig := range sigers {
		q64, err := sig.Qb64()
		require.NoError(t, err)
		out = append(out, q64...)
	}
	return out
}

// KELBuilder produces a deterministic chain of events for one identifier:
// each establishment event signs with the generation-g key and commits to
// the generation-g+1 key.
type KELBuilder struct {
	tc  *TestContext
	gen int // generation of the current signing key

	Pre    string
	Dig    string // said of latest event
	Sn     uint64
	Events []*serder.Serder
	Sigers [][]*cesr.Siger
}

// NewKELBuilder incepts a single-key identifier at generation zero.
func NewKELBuilder(tc *TestContext) *KELBuilder {
	b := &KELBuilder{tc: tc}
	cur := tc.Signer(0, true)
	next := tc.Signer(1, true)

	srdr, err := serder.Incept(serder.InceptOpts{
		Keys:  []string{tc.KeyQb64(cur)},
		Sith:  "1",
		Ndigs: []string{tc.NextDig(next)},
		Nsith: "1",
	})
	require.NoError(tc.T, err)

	b.record(srdr, tc.Sign(srdr, cur))
	return b
}

func (b *KELBuilder) record(srdr *serder.Serder, sigers []*cesr.Siger) {
	b.Pre = srdr.Pre()
	b.Dig = srdr.Said()
	sn, err := srdr.Sn()
	require.NoError(b.tc.T, err)
	b.Sn = sn
	b.Events = append(b.Events, srdr)
	b.Sigers = append(b.Sigers, sigers)
}

// CurrentSigner returns the generation signer currently authorized to
// sign.
func (b *KELBuilder) CurrentSigner() *cesr.Signer {
	return b.tc.Signer(b.gen, true)
}

// Rotate appends a rotation to the next generation key.
func (b *KELBuilder) Rotate() *serder.Serder {
	return b.rotateAt(b.Sn+1, b.Dig, false)
}

// RotateAbandon appends a rotation with an empty next-key commitment,
// abandoning the identifier.
func (b *KELBuilder) RotateAbandon() *serder.Serder {
	return b.rotateAt(b.Sn+1, b.Dig, true)
}

// RotateRecover appends a recovery rotation at sn, whose prior digest must
// be the said of the event at sn-1.
func (b *KELBuilder) RotateRecover(sn uint64, priorSaid string) *serder.Serder {
	return b.rotateAt(sn, priorSaid, false)
}

func (b *KELBuilder) rotateAt(sn uint64, dig string, abandon bool) *serder.Serder {
	tc := b.tc
	newSigner := tc.Signer(b.gen+1, true)

	opts := serder.RotateOpts{
		Pre:  b.Pre,
		Dig:  dig,
		Sn:   sn,
		Keys: []string{tc.KeyQb64(newSigner)},
		Sith: "1",
	}
	if abandon {
		opts.Ndigs = nil
		opts.Nsith = "0"
	} else {
		after := tc.Signer(b.gen+2, true)
		opts.Ndigs = []string{tc.NextDig(after)}
		opts.Nsith = "1"
	}
	srdr, err := serder.Rotate(opts)
	require.NoError(tc.T, err)

	b.gen++
	b.record(srdr, tc.Sign(srdr, newSigner))
	return srdr
}

// Interact appends an interaction event.
func (b *KELBuilder) Interact(data []any) *serder.Serder {
	srdr, err := serder.Interact(serder.InteractOpts{
		Pre:  b.Pre,
		Dig:  b.Dig,
		Sn:   b.Sn + 1,
		Data: data,
	})
	require.NoError(b.tc.T, err)
	b.record(srdr, b.tc.Sign(srdr, b.CurrentSigner()))
	return srdr
}

// Stream renders the whole fixture KEL as one CESR wire stream: each event
// body followed by its controller-signature attachment group.
func (b *KELBuilder) Stream() []byte {
	var out []byte
	for i, srdr := range b.Events {
		out = append(out, srdr.Raw()...)
		out = append(out, AttachSigs(b.tc.T, b.Sigers[i])...)
	}
	return out
}

// Event returns event i with its signatures.
func (b *KELBuilder) Event(i int) (*serder.Serder, []*cesr.Siger) {
	return b.Events[i], b.Sigers[i]
}
