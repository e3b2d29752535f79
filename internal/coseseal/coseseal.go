// Package coseseal provides opinionated COSE_Sign1 signing and verification
// for the log-seal enrichment, adapted from the teacher's massifs/cose
// package (github.com/forestrie/go-merklelog/massifs/cose) down to the
// subset a KEL seal receipt needs: deterministic CBOR encoding, ES256
// signing, and verification against a known public key. The CWT/DID/feed
// claim machinery and RSA key support that the teacher's package carries
// for its blob-storage receipts are dropped here; see DESIGN.md.
package coseseal

import (
	"crypto/ecdsa"
	"crypto/rand"
	"io"

	"github.com/fxamacker/cbor/v2"
	"github.com/veraison/go-cose"
)

// DeterministicEncOptions returns the CBOR encoding options a seal receipt
// must use so that two signers presented with the same MMRState-equivalent
// payload produce byte-identical CBOR, mirroring rootsigner.go's encOptions.
func DeterministicEncOptions() cbor.EncOptions {
	return cbor.EncOptions{
		Sort:        cbor.SortCanonical,
		Time:        cbor.TimeUnix,
		ShortestFloat: cbor.ShortestFloat16,
	}
}

// DeterministicDecOptions mirrors rootsigner.go's decOptions: no duplicate
// map keys, no indefinite-length items, no implicit tag interpretation.
func DeterministicDecOptions() cbor.DecOptions {
	return cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyEnforcedAPF,
		IndefLength: cbor.IndefLengthForbidden,
		IntDec:      cbor.IntDecConvertNone,
		TagsMd:      cbor.TagsForbidden,
	}
}

// Sign1Message wraps cose.Sign1Message with the codec this package requires.
type Sign1Message struct {
	*cose.Sign1Message
}

// NewSign1Message builds an unsigned COSE_Sign1 wrapper around payload, with
// the protected header's algorithm left for Sign to fill in.
func NewSign1Message(payload []byte) *Sign1Message {
	return &Sign1Message{
		Sign1Message: &cose.Sign1Message{
			Headers: cose.Headers{
				Protected:   cose.ProtectedHeader{},
				Unprotected: cose.UnprotectedHeader{},
			},
			Payload: payload,
		},
	}
}

// SignES256 signs the message with the given ECDSA key, following the
// teacher's SignES256 exactly: force the algorithm header, sign with a
// fresh cose.Signer, detach nothing (the caller detaches what it needs).
func (m *Sign1Message) SignES256(privateKey *ecdsa.PrivateKey, external []byte) error {
	signer, err := cose.NewSigner(cose.AlgorithmES256, privateKey)
	if err != nil {
		return err
	}
	if m.Headers.Protected == nil {
		m.Headers.Protected = cose.ProtectedHeader{}
	}
	m.Headers.Protected[cose.HeaderLabelAlgorithm] = cose.AlgorithmES256
	return m.Sign(Rand, external, signer)
}

// VerifyWithPublicKey verifies the message against a known ECDSA public key.
func (m *Sign1Message) VerifyWithPublicKey(publicKey *ecdsa.PublicKey, external []byte) error {
	verifier, err := cose.NewVerifier(cose.AlgorithmES256, publicKey)
	if err != nil {
		return err
	}
	return m.Verify(external, verifier)
}

// MarshalCBOR produces the deterministic wire form of the signed message.
func (m *Sign1Message) MarshalCBOR() ([]byte, error) {
	return m.Sign1Message.MarshalCBOR()
}

// ParseSign1Message decodes a COSE_Sign1 message previously produced by
// MarshalCBOR.
func ParseSign1Message(data []byte) (*Sign1Message, error) {
	var msg cose.Sign1Message
	if err := msg.UnmarshalCBOR(data); err != nil {
		return nil, err
	}
	return &Sign1Message{Sign1Message: &msg}, nil
}

// Rand is exposed so tests can substitute a deterministic reader the way
// the teacher's Sign1 callers substitute rand.Reader.
var Rand io.Reader = rand.Reader
