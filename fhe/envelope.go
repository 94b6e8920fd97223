package fhe

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
)

// envelope is the CBOR wire form of a ciphertext handle. Integer keys keep
// the encoding compact and stable.
type envelope struct {
	Kind   Kind   `cbor:"1,keyasint"`
	Handle []byte `cbor:"2,keyasint"`
}

// MarshalCiphertext encodes a ciphertext handle for transport. Only the
// handle travels; the ciphertext itself stays inside the engine.
func MarshalCiphertext(v Ciphertext) ([]byte, error) {
	id := v.Handle()
	data, err := cbor.Marshal(envelope{Kind: v.Kind(), Handle: id[:]})
	if err != nil {
		return nil, fmt.Errorf("encode ciphertext envelope: %w", err)
	}
	return data, nil
}

func unmarshalEnvelope(data []byte, want Kind) (uuid.UUID, error) {
	var env envelope
	if err := cbor.Unmarshal(data, &env); err != nil {
		return uuid.Nil, fmt.Errorf("decode ciphertext envelope: %w", err)
	}
	if env.Kind != want {
		return uuid.Nil, fmt.Errorf("envelope carries %s, want %s: %w", env.Kind, want, ErrKindMismatch)
	}
	id, err := uuid.FromBytes(env.Handle)
	if err != nil {
		return uuid.Nil, fmt.Errorf("decode ciphertext handle: %w", err)
	}
	return id, nil
}

// UnmarshalUint64 decodes an envelope carrying a uint64 ciphertext handle.
func UnmarshalUint64(data []byte) (CipherUint64, error) {
	id, err := unmarshalEnvelope(data, KindUint64)
	if err != nil {
		return CipherUint64{}, err
	}
	return Uint64FromHandle(id), nil
}

// UnmarshalBool decodes an envelope carrying a bool ciphertext handle.
func UnmarshalBool(data []byte) (CipherBool, error) {
	id, err := unmarshalEnvelope(data, KindBool)
	if err != nil {
		return CipherBool{}, err
	}
	return BoolFromHandle(id), nil
}
