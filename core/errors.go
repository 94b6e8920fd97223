package core

import (
	"errors"
	"fmt"
)

// Precondition and rejection errors. Every mutating operation runs all of its
// checks before touching state, so any of these implies the auction and bid
// records are exactly as they were before the call.
var (
	// ErrInvalidDuration rejects auction durations outside
	// [MinAuctionDuration, MaxAuctionDuration] (bounds inclusive).
	ErrInvalidDuration = errors.New("auction duration out of bounds")

	// ErrAuctionAlreadyExists rejects a second Create for a key, regardless
	// of the first auction's settlement state. Keys are never reusable.
	ErrAuctionAlreadyExists = errors.New("auction already exists for key")

	// ErrAuctionNotActive rejects operations on a missing auction or outside
	// its [start, end) window.
	ErrAuctionNotActive = errors.New("auction not active")

	// ErrAuctionAlreadySettled rejects operations on a settled auction.
	// Settled is terminal.
	ErrAuctionAlreadySettled = errors.New("auction already settled")

	// ErrAuctionNotEnded rejects settlement before the end time.
	ErrAuctionNotEnded = errors.New("auction not ended")

	// ErrBidAlreadySubmitted rejects a second bid for a (key, bidder) pair,
	// even with a different amount.
	ErrBidAlreadySubmitted = errors.New("bid already submitted")

	// ErrTooManyBidders rejects bids once the bidder cap is reached,
	// bounding the O(n) settlement passes.
	ErrTooManyBidders = errors.New("bidder cap reached")

	// ErrInvalidBid rejects bids whose encrypted amount is not positive.
	ErrInvalidBid = errors.New("bid amount must be positive")

	// ErrInsufficientBalance rejects bids exceeding the bidder's encrypted
	// balance, and failed settlement transfers.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrNoBidsSubmitted rejects settlement of an auction nobody bid on.
	ErrNoBidsSubmitted = errors.New("no bids submitted")

	// ErrInvalidPoolHook rejects calls whose pool declaration does not route
	// to this auction house instance.
	ErrInvalidPoolHook = errors.New("pool does not route to this auction house")

	// ErrDecryptionNotReady reports that a required reveal has not completed.
	// Retryable: re-issue the same call later; no state was changed.
	ErrDecryptionNotReady = errors.New("decryption not ready")
)

// ErrWinnerNotResolved reports that no bidder's ciphertext matched the
// resolved maximum. Given the registry invariants this cannot happen; it is
// an internal-consistency defect, not a user error. It matches
// ErrNoBidsSubmitted under errors.Is for callers on the older taxonomy.
var ErrWinnerNotResolved = fmt.Errorf("winner not resolved: %w", ErrNoBidsSubmitted)
