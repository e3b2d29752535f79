package serder

import (
	"bytes"
	"encoding/json"

	"github.com/forestrie/go-keri/internal/coseseal"
	"github.com/fxamacker/cbor/v2"
	"github.com/vmihailenco/msgpack/v5"
)

// Codec marshals/unmarshals an ordered Sadder to and from one wire kind,
// mirroring the shape of the teacher's massifs/cborcodec.go CBORCodec
// wrapper: a tiny interface per encoding so Serder can select one by the
// `v` field's KKKK slot without a type switch at every call site.
type Codec interface {
	Marshal(s *Sadder) ([]byte, error)
	Unmarshal(data []byte) (*Sadder, error)
}

// CodecFor resolves the Codec for a wire kind.
func CodecFor(kind Kind) (Codec, error) {
	switch kind {
	case KindJSON:
		return jsonCodec{}, nil
	case KindCBOR:
		return cborCodec{}, nil
	case KindMGPK:
		return msgpackCodec{}, nil
	default:
		return nil, ErrUnknownKind
	}
}

// jsonCodec writes fields in Sadder order directly (bypassing
// encoding/json's map marshaling, which would sort keys) and reads them
// back in wire order using json.Decoder's token stream with UseNumber, so
// that numeric fields round-trip without float coercion and insertion
// order survives decode -- the "ordered-map shim" SPEC_FULL.md calls for,
// since plain encoding/json loses field order on both sides.
type jsonCodec struct{}

func (jsonCodec) Marshal(s *Sadder) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range s.Fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(f.Key)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := json.Marshal(f.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (jsonCodec) Unmarshal(data []byte) (*Sadder, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, ErrBadVersionString
	}
	s := NewSadder()
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, ErrBadVersionString
		}
		var val any
		if err := dec.Decode(&val); err != nil {
			return nil, err
		}
		s.Set(key, val)
	}
	if _, err := dec.Token(); err != nil { // closing '}'
		return nil, err
	}
	return s, nil
}

// cborCodec encodes/decodes the ordered field list as a definite-length
// CBOR map, writing the map header itself and then each key/value pair
// through the teacher's deterministic CBOR options (internal/coseseal),
// so two encoders presented with the same Sadder produce identical bytes.
type cborCodec struct{}

var cborEncMode = mustCBOREncMode()

func mustCBOREncMode() cbor.EncMode {
	m, err := coseseal.DeterministicEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return m
}

func (cborCodec) Marshal(s *Sadder) ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(cborMapHeader(len(s.Fields)))
	for _, f := range s.Fields {
		kb, err := cborEncMode.Marshal(f.Key)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		vb, err := cborEncMode.Marshal(f.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(vb)
	}
	return buf.Bytes(), nil
}

func (cborCodec) Unmarshal(data []byte) (*Sadder, error) {
	n, hdrLen, err := cborMapHeaderLen(data)
	if err != nil {
		return nil, err
	}
	dec := cbor.NewDecoder(bytes.NewReader(data[hdrLen:]))
	s := NewSadder()
	for i := 0; i < n; i++ {
		var key string
		if err := dec.Decode(&key); err != nil {
			return nil, err
		}
		var val any
		if err := dec.Decode(&val); err != nil {
			return nil, err
		}
		s.Set(key, val)
	}
	return s, nil
}

func cborMapHeader(n int) []byte {
	switch {
	case n < 24:
		return []byte{0xA0 | byte(n)}
	case n < 256:
		return []byte{0xB8, byte(n)}
	default:
		return []byte{0xB9, byte(n >> 8), byte(n)}
	}
}

func cborMapHeaderLen(data []byte) (n int, hdrLen int, err error) {
	if len(data) == 0 {
		return 0, 0, ErrBadVersionString
	}
	b0 := data[0]
	if b0>>5 != 5 {
		return 0, 0, ErrBadVersionString
	}
	ai := b0 & 0x1f
	switch {
	case ai < 24:
		return int(ai), 1, nil
	case ai == 24:
		if len(data) < 2 {
			return 0, 0, ErrBadVersionString
		}
		return int(data[1]), 2, nil
	case ai == 25:
		if len(data) < 3 {
			return 0, 0, ErrBadVersionString
		}
		return int(data[1])<<8 | int(data[2]), 3, nil
	default:
		return 0, 0, ErrBadVersionString
	}
}

// msgpackCodec is the MGPK wire kind, using vmihailenco/msgpack/v5's
// streaming EncodeMapLen/DecodeMapLen -- a sibling CBOR-family encoder the
// same ordered-pairs way as cborCodec.
type msgpackCodec struct{}

func (msgpackCodec) Marshal(s *Sadder) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	if err := enc.EncodeMapLen(len(s.Fields)); err != nil {
		return nil, err
	}
	for _, f := range s.Fields {
		if err := enc.EncodeString(f.Key); err != nil {
			return nil, err
		}
		if err := enc.Encode(f.Value); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func (msgpackCodec) Unmarshal(data []byte) (*Sadder, error) {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	n, err := dec.DecodeMapLen()
	if err != nil {
		return nil, err
	}
	s := NewSadder()
	for i := 0; i < n; i++ {
		key, err := dec.DecodeString()
		if err != nil {
			return nil, err
		}
		val, err := dec.DecodeInterface()
		if err != nil {
			return nil, err
		}
		s.Set(key, val)
	}
	return s, nil
}
