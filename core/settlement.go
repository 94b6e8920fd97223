package core

import (
	"fmt"
	"log"
	"time"
)

// Settle resolves and pays out the pool's auction after its end time.
//
// Winner resolution runs in two passes over the bidders in submission order:
// pass 1 re-derives the encrypted maximum from the bid ledger (the
// incrementally maintained registry value is not trusted), pass 2 reveals one
// equality bit per bidder and stops at the first match, which makes ties
// resolve to the earliest submitter. Exactly one amount is ever decrypted:
// the winner's.
//
// ErrDecryptionNotReady is retryable; the call leaves no partial state and a
// later Settle picks up the same pending decryption. The bid-asset and
// reward-asset transfers are one logical operation: if the reward leg fails,
// the bid leg is compensated and the auction stays unsettled.
func (h *House) Settle(pool PoolID) error {
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

	if auction == nil {
		return fmt.Errorf("key %s: %w", key, ErrAuctionNotActive)
	}
	if auction.Settled {
		return fmt.Errorf("key %s: %w", key, ErrAuctionAlreadySettled)
	}
	now := h.now()
	if now.Before(auction.EndTime) {
		return fmt.Errorf("key %s ends %s: %w", key, auction.EndTime.Format(time.RFC3339), ErrAuctionNotEnded)
	}
	if len(auction.Bidders) == 0 {
		return fmt.Errorf("key %s: %w", key, ErrNoBidsSubmitted)
	}

	// Pass 1: re-derive the ciphertext maximum in submission order.
	maxBid, err := h.engine.FromPlain(h.self, 0)
	if err != nil {
		return fmt.Errorf("encrypt zero maximum: %w", err)
	}
	for _, bidder := range auction.Bidders {
		bid := bids[bidder]
		higher, err := h.engine.Gt(h.self, bid.Amount, maxBid)
		if err != nil {
			return fmt.Errorf("compare bid of %s: %w", bidder, err)
		}
		maxBid, err = h.engine.Select(h.self, higher, bid.Amount, maxBid)
		if err != nil {
			return fmt.Errorf("fold bid of %s into maximum: %w", bidder, err)
		}
	}
	if err := h.engine.Grant(h.self, maxBid, h.self); err != nil {
		return fmt.Errorf("grant maximum before reveal: %w", err)
	}

	// Reveal the final maximum. The pending handle survives on the record so
	// a retry polls the same decryption instead of queueing a new one.
	if auction.pendingReveal == nil {
		handle, err := h.engine.RequestReveal(h.self, maxBid)
		if err != nil {
			return fmt.Errorf("request maximum reveal: %w", err)
		}
		h.mu.Lock()
		auction.pendingReveal = &handle
		h.mu.Unlock()
	}
	result, ready, err := h.engine.PollReveal(h.self, *auction.pendingReveal)
	if err != nil {
		return fmt.Errorf("poll maximum reveal: %w", err)
	}
	if !ready {
		return fmt.Errorf("key %s maximum reveal pending: %w", key, ErrDecryptionNotReady)
	}
	_ = result.Uint64

	// Pass 2: same submission order, revealing only equality bits. First
	// match wins; iteration stops there.
	var winner Identity
	var winningBid *Bid
	for _, bidder := range auction.Bidders {
		bid := bids[bidder]
		equal, err := h.engine.Eq(h.self, bid.Amount, maxBid)
		if err != nil {
			return fmt.Errorf("compare bid of %s against maximum: %w", bidder, err)
		}
		isMax, err := h.revealBool(equal)
		if err != nil {
			return err
		}
		if isMax {
			winner = bidder
			winningBid = bid
			break
		}
	}
	if winningBid == nil {
		log.Printf("ERROR: No bidder matched the resolved maximum for key %s; registry state is inconsistent", key)
		return fmt.Errorf("key %s: %w", key, ErrWinnerNotResolved)
	}

	// Transfer protocol. The winner's exact amount is the only amount-level
	// decryption in the whole auction lifecycle.
	if err := h.engine.Grant(h.self, winningBid.Amount, h.self); err != nil {
		return fmt.Errorf("grant winning bid before reveal: %w", err)
	}
	if auction.pendingAmountReveal == nil {
		handle, err := h.engine.RequestReveal(h.self, winningBid.Amount)
		if err != nil {
			return fmt.Errorf("request winning amount reveal: %w", err)
		}
		h.mu.Lock()
		auction.pendingAmountReveal = &handle
		h.mu.Unlock()
	}
	amountResult, ready, err := h.engine.PollReveal(h.self, *auction.pendingAmountReveal)
	if err != nil {
		return fmt.Errorf("poll winning amount reveal: %w", err)
	}
	if !ready {
		return fmt.Errorf("key %s winning amount reveal pending: %w", key, ErrDecryptionNotReady)
	}
	amount := amountResult.Uint64

	if err := h.balances.Transfer(auction.BidAsset, winner, auction.Organizer, amount); err != nil {
		return fmt.Errorf("transfer winning bid from %s: %w", winner, err)
	}
	reward, err := h.balances.BalanceOf(auction.RewardAsset, auction.Organizer)
	if err != nil {
		h.compensateBidLeg(auction, winner, amount)
		return fmt.Errorf("read organizer reward balance: %w", err)
	}
	if err := h.balances.Transfer(auction.RewardAsset, auction.Organizer, winner, reward); err != nil {
		h.compensateBidLeg(auction, winner, amount)
		return fmt.Errorf("transfer reward to %s: %w", winner, err)
	}

	// Terminal transition. Nothing observable changed before this point, and
	// nothing can change after it.
	h.mu.Lock()
	auction.Settled = true
	auction.Winner = winner
	auction.MaxBid = maxBid
	auction.pendingReveal = nil
	auction.pendingAmountReveal = nil
	h.mu.Unlock()

	log.Printf("INFO: Auction %s settled: winner=%s amount=%d reward=%d", key, winner, amount, reward)
	h.notifier.AuctionSettled(AuctionSettled{Key: key, Winner: winner, Timestamp: now})
	return nil
}

// compensateBidLeg returns the winner's payment after a failed reward leg so
// no partial asset movement stays observable.
func (h *House) compensateBidLeg(auction *Auction, winner Identity, amount uint64) {
	if err := h.balances.Transfer(auction.BidAsset, auction.Organizer, winner, amount); err != nil {
		log.Printf("ERROR: Compensating transfer of %d %s back to %s failed: %v",
			amount, auction.BidAsset, winner, err)
	}
}
