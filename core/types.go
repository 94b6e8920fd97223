// Package core implements the sealed-bid auction state machine: auction
// registry, bid ledger, encrypted running-maximum maintenance, and the
// settlement/transfer protocol. Bids stay encrypted for their whole life;
// the only amount ever decrypted is the winner's, at settlement.
package core

import (
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/cloudx-io/blindauction/fhe"
	"github.com/cloudx-io/blindauction/ledger"
)

// Identity names a participant: organizer, bidder, or the house itself.
type Identity = fhe.Entity

// AssetID names a currency held by the balance ledger.
type AssetID = ledger.Asset

// AuctionKey is the opaque identifier of one auction, derived from its pool
// declaration. At most one auction ever exists per key.
type AuctionKey string

// PoolID is the coordination-namespace declaration a caller routes requests
// with. Hook names the auction house instance the pool claims to route to;
// a mismatch is rejected before any other validation.
type PoolID struct {
	Name string
	Hook Identity
}

// KeyForPool derives the auction key for a pool declaration.
//
// Formula: SHA256(pool_name + "|" + hook)
func KeyForPool(pool PoolID) AuctionKey {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s", pool.Name, pool.Hook)))
	return AuctionKey(fmt.Sprintf("%x", sum))
}

// Fixed policy constants. Not runtime-configurable.
const (
	MinAuctionDuration   = time.Hour
	MaxAuctionDuration   = 365 * 24 * time.Hour
	MaxBiddersPerAuction = 1000
)

// Auction is one auction record. Get returns defensive snapshots; the
// registry's own copy is only mutated by Create, SubmitBid, and Settle.
type Auction struct {
	Key         AuctionKey
	Organizer   Identity
	BidAsset    AssetID
	RewardAsset AssetID
	StartTime   time.Time
	EndTime     time.Time

	// Bidders is insertion-ordered with no duplicates; submission order is
	// the settlement tie-break order.
	Bidders []Identity

	// MaxBid is the encrypted running maximum over all submitted bids. It is
	// never decrypted while the auction is open.
	MaxBid fhe.CipherUint64

	Settled bool
	// Winner is set if and only if Settled is true.
	Winner Identity

	// pendingReveal and pendingAmountReveal track in-flight settlement
	// decryptions (the derived maximum, then the winner's amount) so a
	// retried Settle polls the same requests instead of queueing new ones.
	pendingReveal       *fhe.RevealHandle
	pendingAmountReveal *fhe.RevealHandle
}

func (a *Auction) snapshot() *Auction {
	cp := *a
	cp.Bidders = append([]Identity(nil), a.Bidders...)
	cp.pendingReveal = nil
	cp.pendingAmountReveal = nil
	return &cp
}

// Bid is one bidder's encrypted bid in an auction. A record is created at
// most once per (key, bidder); resubmission is rejected, never overwritten.
type Bid struct {
	Bidder      Identity
	Amount      fhe.CipherUint64
	Submitted   bool
	SubmittedAt time.Time
}
