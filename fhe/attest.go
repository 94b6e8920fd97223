package fhe

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/veraison/go-cose"
)

// Reveal receipts let an off-process consumer verify that a plaintext really
// came out of the decryption oracle. The receipt is an untagged COSE_Sign1
// 4-element array [protected, unprotected, payload, signature] over a CBOR
// payload binding the reveal handle to its result and timestamp.

// revealPayload is the CBOR payload of a receipt.
type revealPayload struct {
	Handle    []byte `cbor:"1,keyasint"`
	Kind      Kind   `cbor:"2,keyasint"`
	Uint64    uint64 `cbor:"3,keyasint"`
	Bool      bool   `cbor:"4,keyasint"`
	Timestamp int64  `cbor:"5,keyasint"`
}

// RevealSigner signs completed reveals with an ECDSA P-384 key (ES384).
type RevealSigner struct {
	key *ecdsa.PrivateKey
}

// NewRevealSigner generates a fresh P-384 signing key.
func NewRevealSigner() (*RevealSigner, error) {
	key, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate reveal signing key: %w", err)
	}
	return &RevealSigner{key: key}, nil
}

// PublicKey returns the verification key for receipts issued by this signer.
func (s *RevealSigner) PublicKey() *ecdsa.PublicKey {
	return &s.key.PublicKey
}

// Sign produces a COSE_Sign1 receipt for a completed reveal.
func (s *RevealSigner) Sign(h RevealHandle, res RevealResult, at time.Time) ([]byte, error) {
	payload, err := cbor.Marshal(revealPayload{
		Handle:    h.ID[:],
		Kind:      res.Kind,
		Uint64:    res.Uint64,
		Bool:      res.Bool,
		Timestamp: at.Unix(),
	})
	if err != nil {
		return nil, fmt.Errorf("encode reveal payload: %w", err)
	}

	protected, err := cbor.Marshal(map[int64]any{1: int64(cose.AlgorithmES384)})
	if err != nil {
		return nil, fmt.Errorf("encode protected headers: %w", err)
	}

	// Sig_structure for COSE_Sign1: ["Signature1", protected, external_aad, payload]
	sigStructure, err := cbor.Marshal([]any{"Signature1", protected, []byte{}, payload})
	if err != nil {
		return nil, fmt.Errorf("marshal Sig_structure: %w", err)
	}

	signer, err := cose.NewSigner(cose.AlgorithmES384, s.key)
	if err != nil {
		return nil, fmt.Errorf("create signer: %w", err)
	}
	signature, err := signer.Sign(rand.Reader, sigStructure)
	if err != nil {
		return nil, fmt.Errorf("sign reveal receipt: %w", err)
	}

	receipt, err := cbor.Marshal([]any{protected, map[any]any{}, payload, signature})
	if err != nil {
		return nil, fmt.Errorf("encode receipt: %w", err)
	}
	return receipt, nil
}

// VerifyRevealReceipt checks a receipt's signature and returns the reveal
// handle and result it attests to.
func VerifyRevealReceipt(receipt []byte, pub *ecdsa.PublicKey) (RevealHandle, RevealResult, error) {
	var coseArray []any
	if err := cbor.Unmarshal(receipt, &coseArray); err != nil {
		return RevealHandle{}, RevealResult{}, fmt.Errorf("parse COSE array: %w", err)
	}
	if len(coseArray) != 4 {
		return RevealHandle{}, RevealResult{}, fmt.Errorf("invalid COSE_Sign1 structure: expected 4 elements, got %d", len(coseArray))
	}

	protected, ok := coseArray[0].([]byte)
	if !ok {
		return RevealHandle{}, RevealResult{}, fmt.Errorf("invalid protected headers")
	}
	payload, ok := coseArray[2].([]byte)
	if !ok {
		return RevealHandle{}, RevealResult{}, fmt.Errorf("invalid payload")
	}
	signature, ok := coseArray[3].([]byte)
	if !ok {
		return RevealHandle{}, RevealResult{}, fmt.Errorf("invalid signature")
	}

	sigStructure, err := cbor.Marshal([]any{"Signature1", protected, []byte{}, payload})
	if err != nil {
		return RevealHandle{}, RevealResult{}, fmt.Errorf("marshal Sig_structure: %w", err)
	}

	verifier, err := cose.NewVerifier(cose.AlgorithmES384, pub)
	if err != nil {
		return RevealHandle{}, RevealResult{}, fmt.Errorf("create verifier: %w", err)
	}
	if err := verifier.Verify(sigStructure, signature); err != nil {
		return RevealHandle{}, RevealResult{}, fmt.Errorf("receipt signature verification failed: %w", err)
	}

	var p revealPayload
	if err := cbor.Unmarshal(payload, &p); err != nil {
		return RevealHandle{}, RevealResult{}, fmt.Errorf("decode reveal payload: %w", err)
	}
	var h RevealHandle
	if len(p.Handle) != len(h.ID) {
		return RevealHandle{}, RevealResult{}, fmt.Errorf("invalid reveal handle length %d", len(p.Handle))
	}
	copy(h.ID[:], p.Handle)
	return h, RevealResult{Kind: p.Kind, Uint64: p.Uint64, Bool: p.Bool}, nil
}
