package core

import (
	"crypto/sha256"
	"fmt"
)

// ComputeBidCommitment computes a deterministic commitment to a bid event.
// The amount is deliberately absent: the commitment binds who bid where and
// can be audited without ever learning a losing bid.
//
// Formula: SHA256(key + "|" + bidder + "|" + nonce)
func ComputeBidCommitment(key AuctionKey, bidder Identity, nonce string) string {
	data := fmt.Sprintf("%s|%s|%s", key, bidder, nonce)
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", hash)
}

// ComputeSettlementHash computes the commitment published with a settlement.
// The winning amount appears here and only here, after it has been revealed.
//
// Formula: SHA256(key + "|" + winner + "|" + amount + "|" + nonce)
func ComputeSettlementHash(key AuctionKey, winner Identity, amount uint64, nonce string) string {
	data := fmt.Sprintf("%s|%s|%d|%s", key, winner, amount, nonce)
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", hash)
}
