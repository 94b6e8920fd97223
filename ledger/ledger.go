// Package ledger defines the balance-ledger collaborator the auction core
// settles against, and provides an in-memory implementation used by tests and
// by auctiond. The real ledger is shared with other systems; its failures
// must propagate to callers rather than being papered over.
package ledger

import (
	"errors"
	"fmt"
	"sync"

	"github.com/cloudx-io/blindauction/fhe"
)

// Asset identifies one currency held by the ledger.
type Asset string

var (
	// ErrInsufficientBalance is returned when a transfer would overdraw the
	// source account.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrUnauthorized is returned when the ledger cannot operate on an
	// encrypted amount it was never granted access to.
	ErrUnauthorized = errors.New("ledger not authorized for ciphertext")

	// ErrRevealNotReady is returned by TransferEncrypted when the amount's
	// decryption has not completed; the caller retries later.
	ErrRevealNotReady = errors.New("encrypted amount reveal not ready")
)

// Ledger is the external balance collaborator. Plain amounts are in the
// asset's smallest unit.
type Ledger interface {
	// BalanceOf returns the plain balance of an account.
	BalanceOf(asset Asset, account fhe.Entity) (uint64, error)

	// EncryptedBalanceOf returns the account balance as a ciphertext handle,
	// granted to reader so reader can run comparisons against it.
	EncryptedBalanceOf(asset Asset, account fhe.Entity, reader fhe.Entity) (fhe.CipherUint64, error)

	// Transfer moves a plain amount between accounts.
	Transfer(asset Asset, from, to fhe.Entity, amount uint64) error

	// TransferEncrypted moves an encrypted amount between accounts. The
	// ledger must have been granted access to the amount.
	TransferEncrypted(asset Asset, from, to fhe.Entity, amount fhe.CipherUint64) error
}

// MemoryLedger is an in-memory Ledger. Encrypted balance handles are minted
// through the engine on demand and granted outward per request.
type MemoryLedger struct {
	self   fhe.Entity
	engine fhe.Engine

	mu       sync.Mutex
	balances map[Asset]map[fhe.Entity]uint64
}

// NewMemoryLedger creates an empty ledger operating under the given entity.
func NewMemoryLedger(self fhe.Entity, engine fhe.Engine) *MemoryLedger {
	return &MemoryLedger{
		self:     self,
		engine:   engine,
		balances: make(map[Asset]map[fhe.Entity]uint64),
	}
}

// Credit adds funds to an account. Used to seed balances.
func (l *MemoryLedger) Credit(asset Asset, account fhe.Entity, amount uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.balances[asset] == nil {
		l.balances[asset] = make(map[fhe.Entity]uint64)
	}
	l.balances[asset][account] += amount
}

func (l *MemoryLedger) BalanceOf(asset Asset, account fhe.Entity) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[asset][account], nil
}

func (l *MemoryLedger) EncryptedBalanceOf(asset Asset, account fhe.Entity, reader fhe.Entity) (fhe.CipherUint64, error) {
	l.mu.Lock()
	balance := l.balances[asset][account]
	l.mu.Unlock()

	ct, err := l.engine.FromPlain(l.self, balance)
	if err != nil {
		return fhe.CipherUint64{}, fmt.Errorf("encrypt balance of %s: %w", account, err)
	}
	if err := l.engine.Grant(l.self, ct, reader); err != nil {
		return fhe.CipherUint64{}, fmt.Errorf("grant balance ciphertext to %s: %w", reader, err)
	}
	return ct, nil
}

func (l *MemoryLedger) Transfer(asset Asset, from, to fhe.Entity, amount uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.balances[asset][from] < amount {
		return fmt.Errorf("account %s has %d of %s, need %d: %w",
			from, l.balances[asset][from], asset, amount, ErrInsufficientBalance)
	}
	if l.balances[asset] == nil {
		l.balances[asset] = make(map[fhe.Entity]uint64)
	}
	l.balances[asset][from] -= amount
	l.balances[asset][to] += amount
	return nil
}

func (l *MemoryLedger) TransferEncrypted(asset Asset, from, to fhe.Entity, amount fhe.CipherUint64) error {
	handle, err := l.engine.RequestReveal(l.self, amount)
	if err != nil {
		if errors.Is(err, fhe.ErrAccessDenied) {
			return fmt.Errorf("reveal transfer amount: %w", ErrUnauthorized)
		}
		return fmt.Errorf("reveal transfer amount: %w", err)
	}
	result, ready, err := l.engine.PollReveal(l.self, handle)
	if err != nil {
		return fmt.Errorf("poll transfer amount reveal: %w", err)
	}
	if !ready {
		return ErrRevealNotReady
	}
	return l.Transfer(asset, from, to, result.Uint64)
}
