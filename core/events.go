package core

import (
	"log"
	"sync"
	"time"
)

// Observable notifications. BidSubmitted deliberately carries no amount:
// losing bids are never disclosed, in events or anywhere else.

type AuctionCreated struct {
	Key         AuctionKey
	Organizer   Identity
	StartTime   time.Time
	EndTime     time.Time
	BidAsset    AssetID
	RewardAsset AssetID
}

type BidSubmitted struct {
	Key       AuctionKey
	Bidder    Identity
	Timestamp time.Time
}

type AuctionSettled struct {
	Key       AuctionKey
	Winner    Identity
	Timestamp time.Time
}

// Notifier receives auction lifecycle notifications. Implementations must not
// block; they run inside the mutating call.
type Notifier interface {
	AuctionCreated(e AuctionCreated)
	BidSubmitted(e BidSubmitted)
	AuctionSettled(e AuctionSettled)
}

// LogNotifier writes notifications to the standard logger.
type LogNotifier struct{}

func (LogNotifier) AuctionCreated(e AuctionCreated) {
	log.Printf("INFO: Auction created: key=%s organizer=%s window=[%s, %s) bid_asset=%s reward_asset=%s",
		e.Key, e.Organizer, e.StartTime.Format(time.RFC3339), e.EndTime.Format(time.RFC3339), e.BidAsset, e.RewardAsset)
}

func (LogNotifier) BidSubmitted(e BidSubmitted) {
	log.Printf("INFO: Bid submitted: key=%s bidder=%s at=%s", e.Key, e.Bidder, e.Timestamp.Format(time.RFC3339))
}

func (LogNotifier) AuctionSettled(e AuctionSettled) {
	log.Printf("INFO: Auction settled: key=%s winner=%s at=%s", e.Key, e.Winner, e.Timestamp.Format(time.RFC3339))
}

// RecordingNotifier captures notifications for inspection.
type RecordingNotifier struct {
	mu      sync.Mutex
	created []AuctionCreated
	bids    []BidSubmitted
	settled []AuctionSettled
}

func (r *RecordingNotifier) AuctionCreated(e AuctionCreated) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.created = append(r.created, e)
}

func (r *RecordingNotifier) BidSubmitted(e BidSubmitted) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bids = append(r.bids, e)
}

func (r *RecordingNotifier) AuctionSettled(e AuctionSettled) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.settled = append(r.settled, e)
}

func (r *RecordingNotifier) Created() []AuctionCreated {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]AuctionCreated(nil), r.created...)
}

func (r *RecordingNotifier) Bids() []BidSubmitted {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]BidSubmitted(nil), r.bids...)
}

func (r *RecordingNotifier) Settled() []AuctionSettled {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]AuctionSettled(nil), r.settled...)
}
