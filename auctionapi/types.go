// Package auctionapi defines the JSON wire types spoken by auctiond. Bid
// amounts cross the wire only as ciphertext envelopes; responses never carry
// an amount except the winning amount of a settled auction.
package auctionapi

import (
	"encoding/base64"
	"fmt"
	"time"
)

// Request type discriminators.
const (
	TypePing          = "ping"
	TypeFundAccount   = "fund_account"
	TypeEncryptBid    = "encrypt_bid"
	TypeCreateAuction = "create_auction"
	TypeSubmitBid     = "submit_bid"
	TypeSettleAuction = "settle_auction"
	TypeAuctionStatus = "auction_status"
)

// EnvelopeBase64 is a base64-encoded CBOR ciphertext envelope.
type EnvelopeBase64 string

// Decode returns the raw CBOR envelope bytes.
func (e EnvelopeBase64) Decode() ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(string(e))
	if err != nil {
		return nil, fmt.Errorf("decode ciphertext envelope: %w", err)
	}
	return data, nil
}

// EncodeEnvelope wraps raw CBOR envelope bytes for JSON transport.
func EncodeEnvelope(data []byte) EnvelopeBase64 {
	return EnvelopeBase64(base64.StdEncoding.EncodeToString(data))
}

// BaseRequest carries the fields every request has. Pool and Hook together
// form the pool declaration routed to the auction house.
type BaseRequest struct {
	Type string `json:"type"`
	Pool string `json:"pool,omitempty"`
	Hook string `json:"hook,omitempty"`
}

type CreateAuctionRequest struct {
	BaseRequest
	Organizer       string `json:"organizer"`
	BidAsset        string `json:"bid_asset"`
	RewardAsset     string `json:"reward_asset"`
	DurationSeconds int64  `json:"duration_seconds"`
}

// FundAccountRequest credits a balance on the in-process ledger. Amount is a
// decimal string in asset units, e.g. "1.5" with 6 decimals = 1500000.
type FundAccountRequest struct {
	BaseRequest
	Account  string `json:"account"`
	Asset    string `json:"asset"`
	Amount   string `json:"amount"`
	Decimals int32  `json:"decimals"`
}

// EncryptBidRequest asks the server-side engine to encrypt an amount on
// behalf of a bidder and grant the house access, standing in for client-side
// encryption when the engine runs in-process.
type EncryptBidRequest struct {
	BaseRequest
	Bidder   string `json:"bidder"`
	Amount   string `json:"amount"`
	Decimals int32  `json:"decimals"`
}

type SubmitBidRequest struct {
	BaseRequest
	Bidder     string         `json:"bidder"`
	Ciphertext EnvelopeBase64 `json:"ciphertext"`
}

type SettleAuctionRequest struct {
	BaseRequest
}

type AuctionStatusRequest struct {
	BaseRequest
}

// Response is the common reply shape.
type Response struct {
	Type             string `json:"type"`
	Success          bool   `json:"success"`
	Message          string `json:"message,omitempty"`
	ProcessingTimeMS int64  `json:"processing_time_ms"`
}

type EncryptBidResponse struct {
	Response
	Ciphertext EnvelopeBase64 `json:"ciphertext,omitempty"`
}

type CreateAuctionResponse struct {
	Response
	Key string `json:"key,omitempty"`
}

type AuctionStatusResponse struct {
	Response
	Key       string    `json:"key,omitempty"`
	Active    bool      `json:"active"`
	Settled   bool      `json:"settled"`
	Winner    string    `json:"winner,omitempty"`
	Bidders   int       `json:"bidders"`
	StartTime time.Time `json:"start_time,omitzero"`
	EndTime   time.Time `json:"end_time,omitzero"`
}
