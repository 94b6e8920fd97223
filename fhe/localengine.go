package fhe

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// ctRecord is the backing store for one ciphertext: its plaintext, owner, and
// access list. The plaintext never leaves the engine except through a reveal.
type ctRecord struct {
	kind   Kind
	u64    uint64
	b      bool
	owner  Entity
	access map[Entity]bool
}

type revealRecord struct {
	ct        uuid.UUID
	requester Entity
	// remaining is the number of polls before the reveal reports ready,
	// modeling the external decryption rounds of a real engine.
	remaining int
}

// LocalEngine is an in-process Engine backed by plaintext storage with full
// access-control enforcement. It exists so the auction core can be exercised
// without external decryption infrastructure; the access and reveal semantics
// match what a remote engine would enforce.
type LocalEngine struct {
	mu            sync.Mutex
	revealLatency int
	ciphertexts   map[uuid.UUID]*ctRecord
	reveals       map[uuid.UUID]*revealRecord
	opCount       uint64
}

// NewLocalEngine returns an engine whose reveals become ready after
// revealLatency polls. Latency 0 makes every reveal ready on its first poll,
// the deterministic-test configuration.
func NewLocalEngine(revealLatency int) *LocalEngine {
	if revealLatency < 0 {
		revealLatency = 0
	}
	return &LocalEngine{
		revealLatency: revealLatency,
		ciphertexts:   make(map[uuid.UUID]*ctRecord),
		reveals:       make(map[uuid.UUID]*revealRecord),
	}
}

// OpCount returns the number of homomorphic operations performed so far.
// Each operation is charged one compute unit regardless of operand size.
func (e *LocalEngine) OpCount() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.opCount
}

func (e *LocalEngine) store(kind Kind, u64 uint64, b bool, owner Entity) uuid.UUID {
	id := uuid.New()
	e.ciphertexts[id] = &ctRecord{
		kind:   kind,
		u64:    u64,
		b:      b,
		owner:  owner,
		access: map[Entity]bool{owner: true},
	}
	return id
}

// resolve fetches a ciphertext record, checking kind and caller access.
func (e *LocalEngine) resolve(caller Entity, v Ciphertext, kind Kind) (*ctRecord, error) {
	rec, ok := e.ciphertexts[v.Handle()]
	if !ok {
		return nil, fmt.Errorf("handle %s: %w", v.Handle(), ErrUnknownCiphertext)
	}
	if rec.kind != kind {
		return nil, fmt.Errorf("handle %s is %s, want %s: %w", v.Handle(), rec.kind, kind, ErrKindMismatch)
	}
	if !rec.access[caller] {
		return nil, fmt.Errorf("entity %s, handle %s: %w", caller, v.Handle(), ErrAccessDenied)
	}
	return rec, nil
}

func (e *LocalEngine) FromPlain(caller Entity, value uint64) (CipherUint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.opCount++
	return CipherUint64{handle: e.store(KindUint64, value, false, caller)}, nil
}

func (e *LocalEngine) Add(caller Entity, a, b CipherUint64) (CipherUint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.opCount++
	ra, err := e.resolve(caller, a, KindUint64)
	if err != nil {
		return CipherUint64{}, err
	}
	rb, err := e.resolve(caller, b, KindUint64)
	if err != nil {
		return CipherUint64{}, err
	}
	return CipherUint64{handle: e.store(KindUint64, ra.u64+rb.u64, false, caller)}, nil
}

func (e *LocalEngine) Gt(caller Entity, a, b CipherUint64) (CipherBool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.opCount++
	ra, err := e.resolve(caller, a, KindUint64)
	if err != nil {
		return CipherBool{}, err
	}
	rb, err := e.resolve(caller, b, KindUint64)
	if err != nil {
		return CipherBool{}, err
	}
	return CipherBool{handle: e.store(KindBool, 0, ra.u64 > rb.u64, caller)}, nil
}

func (e *LocalEngine) Eq(caller Entity, a, b CipherUint64) (CipherBool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.opCount++
	ra, err := e.resolve(caller, a, KindUint64)
	if err != nil {
		return CipherBool{}, err
	}
	rb, err := e.resolve(caller, b, KindUint64)
	if err != nil {
		return CipherBool{}, err
	}
	return CipherBool{handle: e.store(KindBool, 0, ra.u64 == rb.u64, caller)}, nil
}

func (e *LocalEngine) Select(caller Entity, cond CipherBool, a, b CipherUint64) (CipherUint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.opCount++
	rc, err := e.resolve(caller, cond, KindBool)
	if err != nil {
		return CipherUint64{}, err
	}
	ra, err := e.resolve(caller, a, KindUint64)
	if err != nil {
		return CipherUint64{}, err
	}
	rb, err := e.resolve(caller, b, KindUint64)
	if err != nil {
		return CipherUint64{}, err
	}
	out := rb.u64
	if rc.b {
		out = ra.u64
	}
	return CipherUint64{handle: e.store(KindUint64, out, false, caller)}, nil
}

func (e *LocalEngine) RequestReveal(caller Entity, v Ciphertext) (RevealHandle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.opCount++
	rec, ok := e.ciphertexts[v.Handle()]
	if !ok {
		return RevealHandle{}, fmt.Errorf("handle %s: %w", v.Handle(), ErrUnknownCiphertext)
	}
	if !rec.access[caller] {
		return RevealHandle{}, fmt.Errorf("entity %s, handle %s: %w", caller, v.Handle(), ErrAccessDenied)
	}
	// Amount decryptions take external rounds; comparison-bit decryptions
	// complete within the request's first poll.
	latency := 0
	if rec.kind == KindUint64 {
		latency = e.revealLatency
	}
	id := uuid.New()
	e.reveals[id] = &revealRecord{
		ct:        v.Handle(),
		requester: caller,
		remaining: latency,
	}
	return RevealHandle{ID: id}, nil
}

func (e *LocalEngine) PollReveal(caller Entity, h RevealHandle) (RevealResult, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	rev, ok := e.reveals[h.ID]
	if !ok {
		return RevealResult{}, false, fmt.Errorf("reveal %s: %w", h.ID, ErrUnknownReveal)
	}
	if rev.requester != caller {
		return RevealResult{}, false, fmt.Errorf("entity %s polling reveal requested by %s: %w", caller, rev.requester, ErrAccessDenied)
	}
	if rev.remaining > 0 {
		rev.remaining--
		return RevealResult{}, false, nil
	}
	rec, ok := e.ciphertexts[rev.ct]
	if !ok {
		return RevealResult{}, false, fmt.Errorf("handle %s: %w", rev.ct, ErrUnknownCiphertext)
	}
	return RevealResult{Kind: rec.kind, Uint64: rec.u64, Bool: rec.b}, true, nil
}

func (e *LocalEngine) Grant(caller Entity, v Ciphertext, to Entity) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	rec, ok := e.ciphertexts[v.Handle()]
	if !ok {
		return fmt.Errorf("handle %s: %w", v.Handle(), ErrUnknownCiphertext)
	}
	if !rec.access[caller] {
		return fmt.Errorf("entity %s granting handle %s: %w", caller, v.Handle(), ErrAccessDenied)
	}
	rec.access[to] = true
	return nil
}
