package parser

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forestrie/go-keri/cesr"
	"github.com/forestrie/go-keri/keritesting"
	"github.com/forestrie/go-keri/kever"
	"github.com/forestrie/go-keri/serder"
)

func newParser(t *testing.T, label string) (*keritesting.TestContext, *kever.Kevery, *Parser) {
	tc := keritesting.NewTestContext(t, keritesting.TestConfig{Seed: label, TestLabelPrefix: label})
	kvy := kever.NewKevery(kever.KeveryConfig{}, tc.Log, tc.Store)
	return tc, kvy, New(tc.Log, kvy)
}

// twentyEventKEL builds the 20-event fixture stream of scenario S4.
func twentyEventKEL(tc *keritesting.TestContext) *keritesting.KELBuilder {
	b := keritesting.NewKELBuilder(tc)
	b.Rotate()
	b.Interact(nil)
	b.Interact(nil)
	b.Rotate()
	for i := 0; i < 6; i++ {
		b.Interact(nil)
	}
	b.Rotate()
	for i := 0; i < 7; i++ {
		b.Interact(nil)
	}
	b.Rotate()
	return b
}

type runResult struct {
	sn    uint64
	said  string
	fels  []string
	fns   []uint64
}

func runStream(t *testing.T, label string, frag int) runResult {
	tc, kvy, p := newParser(t, label)
	b := twentyEventKEL(tc)
	require.Equal(t, 20, len(b.Events))
	stream := b.Stream()

	if frag <= 0 {
		require.NoError(t, p.Write(stream))
	} else {
		for off := 0; off < len(stream); off += frag {
			end := off + frag
			if end > len(stream) {
				end = len(stream)
			}
			require.NoError(t, p.Write(stream[off:end]))
		}
	}
	p.Flush()

	k, ok := kvy.Kever(b.Pre)
	require.True(t, ok)
	res := runResult{sn: k.Sn(), said: k.Said()}
	tc.Store.IterFel(b.Pre, func(fn uint64, said, dts string) bool {
		res.fns = append(res.fns, fn)
		res.fels = append(res.fels, said)
		return true
	})
	return res
}

func TestParserFragmentedFeedsConverge(t *testing.T) {
	// scenario S4: a 20-event KEL fed whole and in fragments of 13, 57
	// and 211 bytes produces identical final state and identical
	// first-seen ordinals
	whole := runStream(t, "s4", 0)
	assert.Equal(t, uint64(19), whole.sn)
	require.Equal(t, 20, len(whole.fels))

	for _, frag := range []int{13, 57, 211} {
		got := runStream(t, "s4", frag)
		assert.Equal(t, whole.sn, got.sn, "frag=%d", frag)
		assert.Equal(t, whole.said, got.said, "frag=%d", frag)
		assert.Equal(t, whole.fels, got.fels, "frag=%d", frag)
		assert.Equal(t, whole.fns, got.fns, "frag=%d", frag)
	}
}

func TestParserPipelinedAttachmentFrame(t *testing.T) {
	tc, kvy, p := newParser(t, "pipeline")
	b := keritesting.NewKELBuilder(tc)
	icp, sigers := b.Event(0)

	attach := keritesting.AttachSigs(t, sigers)
	require.Equal(t, 0, len(attach)%4)
	ctr, err := cesr.NewCounter(cesr.CtrAttachmentGroup, len(attach)/4)
	require.NoError(t, err)
	head, err := ctr.Qb64()
	require.NoError(t, err)

	stream := append(append(append([]byte(nil), icp.Raw()...), head...), attach...)

	// split inside the pipelined frame: nothing may be applied until the
	// whole frame is buffered
	cut := len(icp.Raw()) + len(head) + 10
	require.NoError(t, p.Write(stream[:cut]))
	_, ok := kvy.Kever(icp.Pre())
	assert.False(t, ok)

	require.NoError(t, p.Write(stream[cut:]))
	p.Flush()
	k, ok := kvy.Kever(icp.Pre())
	require.True(t, ok)
	assert.Equal(t, uint64(0), k.Sn())
}

func TestParserResyncSkipsGarbage(t *testing.T) {
	tc, kvy, p := newParser(t, "resync")
	b := keritesting.NewKELBuilder(tc)
	b.Interact(nil)

	icp, icpSigs := b.Event(0)
	ixn, ixnSigs := b.Event(1)

	var stream []byte
	stream = append(stream, icp.Raw()...)
	stream = append(stream, keritesting.AttachSigs(t, icpSigs)...)
	stream = append(stream, []byte("\x01\x02!!??")...) // line noise between messages
	stream = append(stream, ixn.Raw()...)
	stream = append(stream, keritesting.AttachSigs(t, ixnSigs)...)

	require.NoError(t, p.Write(stream))
	p.Flush()

	k, ok := kvy.Kever(b.Pre)
	require.True(t, ok)
	assert.Equal(t, uint64(1), k.Sn())
}

func TestParserWitnessReceiptCouple(t *testing.T) {
	tc, kvy, p := newParser(t, "rctcouple")
	ctrl := tc.Signer(0, true)
	next := tc.Signer(1, true)
	wit := tc.Signer(10, false)
	witPre := tc.KeyQb64(wit)

	icp, err := serder.Incept(serder.InceptOpts{
		Keys:  []string{tc.KeyQb64(ctrl)},
		Sith:  "1",
		Ndigs: []string{tc.NextDig(next)},
		Nsith: "1",
		Wits:  []string{witPre},
		Toad:  1,
	})
	require.NoError(t, err)
	sigers := tc.Sign(icp, ctrl)

	rct, err := serder.Receipt(icp.Pre(), 0, icp.Said(), serder.KindJSON)
	require.NoError(t, err)
	cig, err := wit.Sign(icp.Raw())
	require.NoError(t, err)
	cigQ64, err := cig.Qb64()
	require.NoError(t, err)

	ctr, err := cesr.NewCounter(cesr.CtrNonTransReceiptCouples, 1)
	require.NoError(t, err)
	ctrQ64, err := ctr.Qb64()
	require.NoError(t, err)

	var stream []byte
	stream = append(stream, icp.Raw()...)
	stream = append(stream, keritesting.AttachSigs(t, sigers)...)
	stream = append(stream, rct.Raw()...)
	stream = append(stream, ctrQ64...)
	stream = append(stream, witPre...)
	stream = append(stream, cigQ64...)

	require.NoError(t, p.Write(stream))
	p.Flush()

	// the event escrowed as partially witnessed, then the receipt in the
	// same stream released it
	k, ok := kvy.Kever(icp.Pre())
	require.True(t, ok)
	assert.Equal(t, []string{witPre}, k.Wits())
}

func TestParserQueryDispatch(t *testing.T) {
	tc, kvy, p := newParser(t, "qrydispatch")
	var replay [][]byte
	p = New(tc.Log, kvy, WithQuerySink(func(raws [][]byte) { replay = raws }))

	b := keritesting.NewKELBuilder(tc)
	b.Interact(nil)
	for i := range b.Events {
		srdr, sigers := b.Event(i)
		require.NoError(t, kvy.ProcessEvent(srdr, sigers, nil))
	}

	dater, err := cesr.NewDater("")
	require.NoError(t, err)
	qry, err := serder.Query(serder.QueryOpts{
		Dts:   dater.Dts(),
		Route: "logs",
		Query: map[string]any{"i": b.Pre},
	})
	require.NoError(t, err)
	// any signature form satisfies the query gate
	qrySigs := tc.Sign(qry, tc.Signer(0, true))

	var stream []byte
	stream = append(stream, qry.Raw()...)
	stream = append(stream, keritesting.AttachSigs(t, qrySigs)...)
	require.NoError(t, p.Write(stream))
	p.Flush()

	require.Equal(t, 2, len(replay))
	assert.True(t, bytes.Equal(b.Events[0].Raw(), replay[0]))
	assert.True(t, bytes.Equal(b.Events[1].Raw(), replay[1]))
}

func TestParserBinaryDomainAttachments(t *testing.T) {
	tc, kvy, p := newParser(t, "binattach")
	b := keritesting.NewKELBuilder(tc)
	icp, sigers := b.Event(0)
	require.Equal(t, 1, len(sigers))

	ctr, err := cesr.NewCounter(cesr.CtrControllerIdxSigs, 1)
	require.NoError(t, err)
	ctrQb2, err := ctr.Qb2()
	require.NoError(t, err)
	sigQb2, err := sigers[0].Qb2()
	require.NoError(t, err)

	var stream []byte
	stream = append(stream, icp.Raw()...)
	stream = append(stream, ctrQb2...)
	stream = append(stream, sigQb2...)

	require.NoError(t, p.Write(stream))
	p.Flush()

	k, ok := kvy.Kever(icp.Pre())
	require.True(t, ok)
	assert.Equal(t, uint64(0), k.Sn())
}

func TestParserCancellationAbandonsInFlight(t *testing.T) {
	tc, _, p := newParser(t, "cancel")
	b := keritesting.NewKELBuilder(tc)
	icp, sigers := b.Event(0)

	var stream []byte
	stream = append(stream, icp.Raw()...)
	stream = append(stream, keritesting.AttachSigs(t, sigers)...)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := p.Parse(ctx, bytes.NewReader(stream))
	require.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, p.buf)
	assert.Nil(t, p.cur)
}

func TestParserEOFDiscardsPartialBody(t *testing.T) {
	tc, kvy, p := newParser(t, "partial")
	b := keritesting.NewKELBuilder(tc)
	icp, _ := b.Event(0)

	// only half the body ever arrives
	require.NoError(t, p.Write(icp.Raw()[:len(icp.Raw())/2]))
	p.Flush()
	_, ok := kvy.Kever(icp.Pre())
	assert.False(t, ok)
	assert.Nil(t, p.buf)
}
