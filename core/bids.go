package core

import (
	"fmt"

	"github.com/cloudx-io/blindauction/fhe"
)

// revealBool runs the boolean-only reveal pattern: request a decryption of an
// encrypted comparison result and poll it once. Only the boolean ever leaves
// the engine; the compared amounts stay ciphertext. A reveal that has not
// completed surfaces as ErrDecryptionNotReady so the caller can retry.
func (h *House) revealBool(cond fhe.CipherBool) (bool, error) {
	handle, err := h.engine.RequestReveal(h.self, cond)
	if err != nil {
		return false, fmt.Errorf("request boolean reveal: %w", err)
	}
	result, ready, err := h.engine.PollReveal(h.self, handle)
	if err != nil {
		return false, fmt.Errorf("poll boolean reveal: %w", err)
	}
	if !ready {
		return false, ErrDecryptionNotReady
	}
	return result.Bool, nil
}

// SubmitBid records an encrypted bid for the pool's auction. The amount
// ciphertext must already be granted to the house by the bidder; the amount
// itself is validated positive and covered by the bidder's encrypted balance
// through boolean-only reveals, then folded into the encrypted running
// maximum without any decryption. Every check runs before any mutation.
func (h *House) SubmitBid(pool PoolID, bidder Identity, amount fhe.CipherUint64) error {
	key, err := h.routeKey(pool)
	if err != nil {
		return err
	}

	lock := h.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	h.mu.RLock()
	auction := h.auctions[key]
	bids := h.bids[key]
	h.mu.RUnlock()

	now := h.now()
	if auction == nil || now.Before(auction.StartTime) || !now.Before(auction.EndTime) {
		return fmt.Errorf("key %s: %w", key, ErrAuctionNotActive)
	}
	if auction.Settled {
		return fmt.Errorf("key %s: %w", key, ErrAuctionAlreadySettled)
	}
	if _, exists := bids[bidder]; exists {
		return fmt.Errorf("bidder %s on key %s: %w", bidder, key, ErrBidAlreadySubmitted)
	}
	if len(auction.Bidders) >= MaxBiddersPerAuction {
		return fmt.Errorf("key %s at cap %d: %w", key, MaxBiddersPerAuction, ErrTooManyBidders)
	}

	// Amount must be strictly positive. Compare against an encrypted zero
	// and reveal only the comparison bit.
	zero, err := h.engine.FromPlain(h.self, 0)
	if err != nil {
		return fmt.Errorf("encrypt zero: %w", err)
	}
	positive, err := h.engine.Gt(h.self, amount, zero)
	if err != nil {
		return fmt.Errorf("compare bid against zero: %w", err)
	}
	isPositive, err := h.revealBool(positive)
	if err != nil {
		return err
	}
	if !isPositive {
		return fmt.Errorf("bidder %s on key %s: %w", bidder, key, ErrInvalidBid)
	}

	// The bidder's encrypted balance must cover the bid. A failure talking
	// to the balance ledger fails the submission; it never silently counts
	// as a zero balance.
	encBalance, err := h.balances.EncryptedBalanceOf(auction.BidAsset, bidder, h.self)
	if err != nil {
		return fmt.Errorf("fetch encrypted balance of %s: %w", bidder, err)
	}
	overdrawn, err := h.engine.Gt(h.self, amount, encBalance)
	if err != nil {
		return fmt.Errorf("compare bid against balance: %w", err)
	}
	isOverdrawn, err := h.revealBool(overdrawn)
	if err != nil {
		return err
	}
	if isOverdrawn {
		return fmt.Errorf("bidder %s on key %s: %w", bidder, key, ErrInsufficientBalance)
	}

	// Pure ciphertext update of the running maximum; the maximum is never
	// decrypted while the auction is open.
	higher, err := h.engine.Gt(h.self, amount, auction.MaxBid)
	if err != nil {
		return fmt.Errorf("compare bid against maximum: %w", err)
	}
	newMax, err := h.engine.Select(h.self, higher, amount, auction.MaxBid)
	if err != nil {
		return fmt.Errorf("update maximum: %w", err)
	}

	// Grant fan-out: the house keeps access to the stored bid and the new
	// maximum, and the bidder keeps access to their own bid for settlement
	// transfer and auditability. Skipping a grant here is a correctness bug.
	if err := h.engine.Grant(h.self, amount, h.self); err != nil {
		return fmt.Errorf("grant bid to house: %w", err)
	}
	if err := h.engine.Grant(h.self, newMax, h.self); err != nil {
		return fmt.Errorf("grant maximum to house: %w", err)
	}
	if err := h.engine.Grant(h.self, amount, bidder); err != nil {
		return fmt.Errorf("grant bid to bidder %s: %w", bidder, err)
	}

	h.mu.Lock()
	auction.Bidders = append(auction.Bidders, bidder)
	auction.MaxBid = newMax
	bids[bidder] = &Bid{
		Bidder:      bidder,
		Amount:      amount,
		Submitted:   true,
		SubmittedAt: now,
	}
	h.mu.Unlock()

	h.notifier.BidSubmitted(BidSubmitted{Key: key, Bidder: bidder, Timestamp: now})
	return nil
}
