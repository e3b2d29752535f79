// Package parser implements the stream framer and dispatcher: it consumes
// bytes from a reader, slices length-prefixed JSON/CBOR/MsgPack event
// bodies out of the stream, assembles the CESR attachment groups that
// follow each body, and hands each assembled message to the KEL dispatcher
// or its sibling handlers.
//
// The framing loop is a single cooperative state machine
// (buffer -> sniff -> read body | read attachment -> emit) with exactly one
// suspension point: a buffered read that comes up short of the next whole
// message or attachment group. It never suspends mid-primitive -- a group
// that cannot complete rolls back to its start and waits for more bytes.
package parser

import (
	"context"
	"errors"
	"io"

	"github.com/datatrails/go-datatrails-common/logger"

	"github.com/forestrie/go-keri/cesr"
	"github.com/forestrie/go-keri/db"
	"github.com/forestrie/go-keri/kever"
	"github.com/forestrie/go-keri/serder"
)

// Handler consumes one assembled message.
type Handler func(*Message) error

// Option adjusts parser construction.
type Option func(*Parser)

// WithReplyHandler routes rpy messages.
func WithReplyHandler(h Handler) Option { return func(p *Parser) { p.replyHandler = h } }

// WithExchangeHandler routes exn messages.
func WithExchangeHandler(h Handler) Option { return func(p *Parser) { p.exchangeHandler = h } }

// WithTELHandler routes transaction event log messages (vcp, vrt, iss,
// rev, bis, brv).
func WithTELHandler(h Handler) Option { return func(p *Parser) { p.telHandler = h } }

// WithCredentialHandler routes ACDC-protocol messages.
func WithCredentialHandler(h Handler) Option { return func(p *Parser) { p.credentialHandler = h } }

// WithQuerySink receives the replay bundles produced for qry messages.
func WithQuerySink(sink func([][]byte)) Option { return func(p *Parser) { p.querySink = sink } }

// Parser is the stream framer. It is resumable: Write may be called with
// arbitrary fragments and the parser picks up exactly where the bytes ran
// out.
type Parser struct {
	Log logger.Logger
	Kvy *kever.Kevery

	replyHandler      Handler
	exchangeHandler   Handler
	telHandler        Handler
	credentialHandler Handler
	querySink         func([][]byte)

	buf []byte
	cur *Message
}

// New creates a parser feeding kvy.
func New(log logger.Logger, kvy *kever.Kevery, opts ...Option) *Parser {
	p := &Parser{Log: log, Kvy: kvy}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Write feeds stream bytes and processes every complete message they
// finish. Partial trailing material stays buffered for the next Write.
func (p *Parser) Write(data []byte) error {
	p.buf = append(p.buf, data...)
	return p.drain()
}

// Parse pumps the reader until EOF or ctx cancellation. On cancellation
// the in-flight message is abandoned and the buffer cleared.
func (p *Parser) Parse(ctx context.Context, r io.Reader) error {
	chunk := make([]byte, 4096)
	for {
		if err := ctx.Err(); err != nil {
			p.Abandon()
			return err
		}
		n, err := r.Read(chunk)
		if n > 0 {
			if werr := p.Write(chunk[:n]); werr != nil {
				return werr
			}
		}
		if errors.Is(err, io.EOF) {
			p.Flush()
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// Flush dispatches the in-flight message, if any, with the attachments
// assembled so far, and discards partial trailing bytes. Call at EOF.
func (p *Parser) Flush() {
	if p.cur != nil {
		p.dispatch(p.cur)
		p.cur = nil
	}
	p.buf = nil
}

// Abandon discards the in-flight message and all buffered bytes.
func (p *Parser) Abandon() {
	p.cur = nil
	p.buf = nil
}

func (p *Parser) drain() error {
	for {
		if p.cur == nil {
			if len(p.buf) == 0 {
				return nil
			}
			if !isMsgStart(p.buf[0]) {
				p.resync("stray bytes before message body")
				if len(p.buf) == 0 {
					return nil
				}
			}
			_, _, _, size, err := serder.ExtractVersion(p.buf)
			if err != nil {
				if len(p.buf) < 64 {
					// the head may simply not have arrived yet
					return nil
				}
				p.resyncFrom(1, "unreadable message head")
				continue
			}
			if len(p.buf) < size {
				return nil
			}
			srdr, err := serder.FromRaw(p.buf)
			if err != nil {
				p.resyncFrom(1, "undecodable message body")
				continue
			}
			p.buf = p.buf[size:]
			p.cur = &Message{Serder: srdr}
			continue
		}

		// attachment section of the current message
		if len(p.buf) == 0 {
			return nil
		}
		if isMsgStart(p.buf[0]) {
			p.emit()
			continue
		}
		kind := sniff(p.buf[0])
		if kind != coldTxt && kind != coldBny {
			p.emit()
			p.resync("unrecognizable attachment lead")
			continue
		}
		c := &cursor{data: p.buf, bny: kind == coldBny}
		err := p.parseGroup(c, p.cur)
		if errors.Is(err, cesr.ErrShortage) {
			// suspend mid-attachment; the body is already parsed and is
			// not re-parsed on resume
			return nil
		}
		if err != nil {
			// invalid encoding is fatal for this message
			p.logDrop(p.cur.Serder, err)
			p.cur = nil
			p.resyncFrom(1, "invalid attachment encoding")
			continue
		}
		p.buf = p.buf[c.off:]
	}
}

// emit dispatches the current message and returns to the sniff state.
func (p *Parser) emit() {
	p.dispatch(p.cur)
	p.cur = nil
}

// resync drops bytes until a plausible body start, logging how many.
func (p *Parser) resync(reason string) {
	p.resyncFrom(0, reason)
}

func (p *Parser) resyncFrom(skip int, reason string) {
	dropped := skip
	for dropped < len(p.buf) && !isMsgStart(p.buf[dropped]) {
		dropped++
	}
	if p.Log != nil && dropped > 0 {
		p.Log.Infof("resync: dropped %d bytes (%s)", dropped, reason)
	}
	p.buf = p.buf[dropped:]
}

// parseGroup reads one counter-introduced attachment group into m. Any
// shortage rolls the cursor back to the group start so the caller can
// suspend cleanly.
func (p *Parser) parseGroup(c *cursor, m *Message) error {
	start := c.off
	err := p.parseGroupInner(c, m)
	if err != nil {
		c.off = start
	}
	return err
}

func (p *Parser) parseGroupInner(c *cursor, m *Message) error {
	ctr, err := c.counter()
	if err != nil {
		return err
	}
	count := ctr.Count()
	switch ctr.Code() {
	case cesr.CtrAttachmentGroup:
		// the count prefixes a pipelined frame: everything inside must be
		// buffered before any of it is parsed
		frame := c.quadlets(count)
		if c.remaining() < frame {
			return cesr.ErrShortage
		}
		inner := &cursor{data: c.data[c.off : c.off+frame], bny: c.bny}
		for inner.remaining() > 0 {
			if err := p.parseGroupInner(inner, m); err != nil {
				if errors.Is(err, cesr.ErrShortage) {
					// a group ran off the end of its own frame
					return ErrResync
				}
				return err
			}
		}
		c.off += frame
		return nil

	case cesr.CtrControllerIdxSigs:
		for i := 0; i < count; i++ {
			sig, err := c.siger()
			if err != nil {
				return err
			}
			m.Sigers = append(m.Sigers, sig)
		}
	case cesr.CtrWitnessIdxSigs:
		for i := 0; i < count; i++ {
			wig, err := c.siger()
			if err != nil {
				return err
			}
			m.Wigers = append(m.Wigers, wig)
		}
	case cesr.CtrNonTransReceiptCouples:
		for i := 0; i < count; i++ {
			verfer, err := c.verfer()
			if err != nil {
				return err
			}
			cig, err := c.cigar()
			if err != nil {
				return err
			}
			cig.SetVerfer(verfer)
			m.Cigars = append(m.Cigars, cig)
		}
	case cesr.CtrTransIdxSigGroups:
		for i := 0; i < count; i++ {
			tsg, err := p.parseTsg(c)
			if err != nil {
				return err
			}
			m.Tsgs = append(m.Tsgs, *tsg)
		}
	case cesr.CtrTransLastIdxSigGroups:
		for i := 0; i < count; i++ {
			prefixer, err := c.prefixer()
			if err != nil {
				return err
			}
			sigers, err := p.parseInnerSigs(c)
			if err != nil {
				return err
			}
			m.Ltsgs = append(m.Ltsgs, TransLastIdxSigGroup{Prefixer: prefixer, Sigers: sigers})
		}
	case cesr.CtrFirstSeenReplayCouples:
		for i := 0; i < count; i++ {
			firner, err := c.seqner()
			if err != nil {
				return err
			}
			dater, err := c.dater()
			if err != nil {
				return err
			}
			m.Frcs = append(m.Frcs, FirstSeenReplayCouple{Firner: firner, Dater: dater})
		}
	case cesr.CtrSealSourceCouples:
		for i := 0; i < count; i++ {
			seqner, err := c.seqner()
			if err != nil {
				return err
			}
			saider, err := c.saider()
			if err != nil {
				return err
			}
			m.Sscs = append(m.Sscs, SealSourceCouple{Seqner: seqner, Saider: saider})
		}
	case cesr.CtrSealSourceTriples:
		for i := 0; i < count; i++ {
			prefixer, err := c.prefixer()
			if err != nil {
				return err
			}
			seqner, err := c.seqner()
			if err != nil {
				return err
			}
			saider, err := c.saider()
			if err != nil {
				return err
			}
			m.Ssts = append(m.Ssts, SealSourceTriple{Prefixer: prefixer, Seqner: seqner, Saider: saider})
		}
	case cesr.CtrSadPathSigGroups:
		for i := 0; i < count; i++ {
			group, err := p.parseSadPathGroup(c)
			if err != nil {
				return err
			}
			m.Paths = append(m.Paths, *group)
		}
	case cesr.CtrPathedMaterialGroup, cesr.CtrBigPathedMaterialGroup:
		payload, err := c.take(c.quadlets(count))
		if err != nil {
			return err
		}
		m.Pathed = append(m.Pathed, append([]byte(nil), payload...))
	case cesr.CtrEssrPayloadGroup:
		for i := 0; i < count; i++ {
			tx, err := c.texter()
			if err != nil {
				return err
			}
			m.Essrs = append(m.Essrs, tx)
		}
	default:
		return ErrResync
	}
	return nil
}

func (p *Parser) parseTsg(c *cursor) (*TransIdxSigGroup, error) {
	prefixer, err := c.prefixer()
	if err != nil {
		return nil, err
	}
	seqner, err := c.seqner()
	if err != nil {
		return nil, err
	}
	saider, err := c.saider()
	if err != nil {
		return nil, err
	}
	sigers, err := p.parseInnerSigs(c)
	if err != nil {
		return nil, err
	}
	return &TransIdxSigGroup{Prefixer: prefixer, Seqner: seqner, Saider: saider, Sigers: sigers}, nil
}

// parseInnerSigs reads the nested controller-indexed-signature counter a
// transferable group carries.
func (p *Parser) parseInnerSigs(c *cursor) ([]*cesr.Siger, error) {
	ctr, err := c.counter()
	if err != nil {
		return nil, err
	}
	if ctr.Code() != cesr.CtrControllerIdxSigs {
		return nil, ErrResync
	}
	sigers := make([]*cesr.Siger, 0, ctr.Count())
	for i := 0; i < ctr.Count(); i++ {
		sig, err := c.siger()
		if err != nil {
			return nil, err
		}
		sigers = append(sigers, sig)
	}
	return sigers, nil
}

func (p *Parser) parseSadPathGroup(c *cursor) (*SadPathSigGroup, error) {
	pather, err := c.pather()
	if err != nil {
		return nil, err
	}
	inner, err := c.peekCounter()
	if err != nil {
		return nil, err
	}
	group := &SadPathSigGroup{Pather: pather}
	switch inner.Code() {
	case cesr.CtrTransIdxSigGroups:
		if _, err := c.counter(); err != nil {
			return nil, err
		}
		for i := 0; i < inner.Count(); i++ {
			tsg, err := p.parseTsg(c)
			if err != nil {
				return nil, err
			}
			group.Tsgs = append(group.Tsgs, *tsg)
		}
	case cesr.CtrNonTransReceiptCouples:
		if _, err := c.counter(); err != nil {
			return nil, err
		}
		for i := 0; i < inner.Count(); i++ {
			verfer, err := c.verfer()
			if err != nil {
				return nil, err
			}
			cig, err := c.cigar()
			if err != nil {
				return nil, err
			}
			cig.SetVerfer(verfer)
			group.Cigars = append(group.Cigars, cig)
		}
	default:
		return nil, ErrResync
	}
	return group, nil
}

// keyEventIlks are the ilks routed to the KEL dispatcher.
var keyEventIlks = map[serder.Ilk]bool{
	serder.IlkIcp: true, serder.IlkRot: true, serder.IlkIxn: true,
	serder.IlkDip: true, serder.IlkDrt: true,
}

// telIlks are routed to the transaction event log handler.
var telIlks = map[serder.Ilk]bool{
	serder.IlkVcp: true, serder.IlkVrt: true, serder.IlkIss: true,
	serder.IlkRev: true, serder.IlkBis: true, serder.IlkBrv: true,
}

// dispatch routes one assembled message by protocol, ilk and signature
// availability. Handler failures are logged with the identifier prefix,
// sequence number and SAID; the stream keeps draining.
func (p *Parser) dispatch(m *Message) {
	srdr := m.Serder
	if srdr.Proto() == serder.ProtoACDC {
		p.handleWith(p.credentialHandler, m, "credential")
		return
	}

	ilk := srdr.Ilk()
	switch {
	case keyEventIlks[ilk]:
		opts := &kever.ProcessOpts{Wigers: m.Wigers}
		if len(m.Sscs) > 0 {
			opts.DelSeqner = m.Sscs[0].Seqner
			opts.DelSaider = m.Sscs[0].Saider
		}
		if len(m.Frcs) > 0 {
			opts.Firner = m.Frcs[0].Firner
			opts.Dater = m.Frcs[0].Dater
		}
		if err := p.Kvy.ProcessEvent(srdr, m.Sigers, opts); err != nil {
			p.logDrop(srdr, err)
			return
		}
		if len(m.Cigars) > 0 {
			if err := p.Kvy.ProcessAttachedReceiptCouples(srdr, m.Cigars); err != nil {
				p.logDrop(srdr, err)
			}
		}
		if len(m.Tsgs) > 0 {
			if err := p.Kvy.ProcessAttachedReceiptQuadruples(srdr, quadruples(m.Tsgs)); err != nil {
				p.logDrop(srdr, err)
			}
		}

	case ilk == serder.IlkRct:
		if len(m.Wigers) > 0 {
			if err := p.Kvy.ProcessReceiptWitness(srdr, m.Wigers); err != nil {
				p.logDrop(srdr, err)
			}
		}
		if len(m.Cigars) > 0 {
			if err := p.Kvy.ProcessReceipt(srdr, m.Cigars); err != nil {
				p.logDrop(srdr, err)
			}
		}
		if len(m.Tsgs) > 0 {
			if err := p.Kvy.ProcessAttachedReceiptQuadruples(srdr, quadruples(m.Tsgs)); err != nil {
				p.logDrop(srdr, err)
			}
		}

	case ilk == serder.IlkQry:
		if !m.HasSigs() {
			p.logDrop(srdr, errors.New("query without any signature form"))
			return
		}
		raws, err := p.Kvy.ProcessQuery(srdr)
		if err != nil {
			p.logDrop(srdr, err)
			return
		}
		if p.querySink != nil {
			p.querySink(raws)
		}

	case ilk == serder.IlkRpy:
		p.handleWith(p.replyHandler, m, "reply")

	case ilk == serder.IlkExn:
		if !m.HasSigs() {
			p.logDrop(srdr, errors.New("exchange without any signature form"))
			return
		}
		p.handleWith(p.exchangeHandler, m, "exchange")

	case telIlks[ilk]:
		p.handleWith(p.telHandler, m, "tel")

	default:
		p.logDrop(srdr, errors.New("unroutable ilk"))
	}
}

func (p *Parser) handleWith(h Handler, m *Message, name string) {
	if h == nil {
		if p.Log != nil {
			p.Log.Debugf("no %s handler: said=%s", name, m.Serder.Said())
		}
		return
	}
	if err := h(m); err != nil {
		p.logDrop(m.Serder, err)
	}
}

func quadruples(tsgs []TransIdxSigGroup) []db.ReceiptQuadruple {
	var out []db.ReceiptQuadruple
	for _, tsg := range tsgs {
		preQ64, err := tsg.Prefixer.Qb64()
		if err != nil {
			continue
		}
		saidQ64, err := tsg.Saider.Qb64()
		if err != nil {
			continue
		}
		for _, sig := range tsg.Sigers {
			sigQ64, err := sig.Qb64()
			if err != nil {
				continue
			}
			out = append(out, db.ReceiptQuadruple{
				Pre:   preQ64,
				Snu:   serder.HexNum(tsg.Seqner.Sn()),
				Said:  saidQ64,
				Siger: sigQ64,
			})
		}
	}
	return out
}

func (p *Parser) logDrop(srdr *serder.Serder, err error) {
	if p.Log == nil {
		return
	}
	sn, _ := srdr.Sn()
	p.Log.Infof("message failed: pre=%s sn=%d said=%s err=%v", srdr.Pre(), sn, srdr.Said(), err)
}
