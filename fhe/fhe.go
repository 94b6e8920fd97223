// Package fhe defines the encrypted-value capability the auction core is
// built on: opaque ciphertext handles for unsigned integers and booleans,
// homomorphic operations over them, explicit access grants, and a two-phase
// (request/poll) reveal protocol.
//
// The concrete arithmetic engine is a collaborator behind the Engine
// interface. LocalEngine in this package is an in-process reference engine
// used by tests and by auctiond when no external engine is wired.
package fhe

import (
	"errors"

	"github.com/google/uuid"
)

// Entity identifies a party that can own, operate on, or be granted access to
// ciphertexts: a bidder, an auction house, a balance ledger.
type Entity string

// Kind discriminates the two ciphertext variants.
type Kind uint8

const (
	KindUint64 Kind = 1
	KindBool   Kind = 2
)

func (k Kind) String() string {
	switch k {
	case KindUint64:
		return "uint64"
	case KindBool:
		return "bool"
	default:
		return "unknown"
	}
}

var (
	// ErrUnknownCiphertext is returned when a handle does not resolve to a
	// ciphertext held by the engine.
	ErrUnknownCiphertext = errors.New("unknown ciphertext handle")

	// ErrAccessDenied is returned when the acting entity has not been granted
	// access to a ciphertext it tries to operate on, grant, or reveal.
	ErrAccessDenied = errors.New("entity has no access to ciphertext")

	// ErrUnknownReveal is returned when polling a reveal handle the engine
	// never issued.
	ErrUnknownReveal = errors.New("unknown reveal handle")

	// ErrKindMismatch is returned when a handle resolves to a ciphertext of a
	// different variant than the operation expects.
	ErrKindMismatch = errors.New("ciphertext kind mismatch")
)

// CipherUint64 is an opaque handle to an encrypted unsigned integer. The zero
// value is not a valid ciphertext.
type CipherUint64 struct {
	handle uuid.UUID
}

// CipherBool is an opaque handle to an encrypted boolean.
type CipherBool struct {
	handle uuid.UUID
}

// Ciphertext is implemented by both handle variants so grant and reveal
// operations can take either.
type Ciphertext interface {
	Handle() uuid.UUID
	Kind() Kind
}

func (c CipherUint64) Handle() uuid.UUID { return c.handle }
func (c CipherUint64) Kind() Kind        { return KindUint64 }
func (c CipherUint64) IsZero() bool      { return c.handle == uuid.Nil }

func (c CipherBool) Handle() uuid.UUID { return c.handle }
func (c CipherBool) Kind() Kind        { return KindBool }
func (c CipherBool) IsZero() bool      { return c.handle == uuid.Nil }

// Uint64FromHandle reconstructs a uint64 handle, e.g. after envelope decoding.
func Uint64FromHandle(id uuid.UUID) CipherUint64 { return CipherUint64{handle: id} }

// BoolFromHandle reconstructs a bool handle.
func BoolFromHandle(id uuid.UUID) CipherBool { return CipherBool{handle: id} }

// RevealHandle tracks one in-flight decryption request.
type RevealHandle struct {
	ID uuid.UUID
}

// RevealResult carries the plaintext of a completed reveal. Exactly one of
// Uint64/Bool is meaningful, per Kind.
type RevealResult struct {
	Kind   Kind
	Uint64 uint64
	Bool   bool
}

// Engine is the homomorphic arithmetic capability. Every operation names the
// acting entity; engines must reject operations on ciphertexts the actor has
// not been granted access to. Operations are side-effect-free for the caller
// but each costs one compute unit, so hot paths keep the op count minimal.
type Engine interface {
	// FromPlain lifts a plaintext value into the ciphertext domain. The
	// resulting ciphertext is owned by and accessible to caller.
	FromPlain(caller Entity, value uint64) (CipherUint64, error)

	// Add returns a ciphertext of a+b (wrapping).
	Add(caller Entity, a, b CipherUint64) (CipherUint64, error)

	// Gt returns an encrypted a > b.
	Gt(caller Entity, a, b CipherUint64) (CipherBool, error)

	// Eq returns an encrypted a == b.
	Eq(caller Entity, a, b CipherUint64) (CipherBool, error)

	// Select returns a ciphertext equal to a when cond is true, b otherwise.
	Select(caller Entity, cond CipherBool, a, b CipherUint64) (CipherUint64, error)

	// RequestReveal begins an asynchronous decryption of v. The plaintext is
	// retrieved by polling the returned handle; it is never returned inline.
	RequestReveal(caller Entity, v Ciphertext) (RevealHandle, error)

	// PollReveal reports whether the decryption behind h has completed and,
	// once ready, its plaintext. Callers retry across calls; the engine never
	// blocks.
	PollReveal(caller Entity, h RevealHandle) (RevealResult, bool, error)

	// Grant extends access to v to another entity. The caller must itself
	// have access; any entity with access may extend it further.
	Grant(caller Entity, v Ciphertext, to Entity) error
}
