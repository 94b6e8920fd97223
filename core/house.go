package core

import (
	"fmt"
	"sync"
	"time"

	"github.com/cloudx-io/blindauction/fhe"
	"github.com/cloudx-io/blindauction/ledger"
)

// House owns the auction registry and bid ledger for one hook instance.
// Atomicity is per key: every mutating call runs under that key's mutex, so
// two concurrent submissions cannot both pass the duplicate check.
type House struct {
	self     Identity
	engine   fhe.Engine
	balances ledger.Ledger
	notifier Notifier
	now      func() time.Time

	mu       sync.RWMutex
	auctions map[AuctionKey]*Auction
	bids     map[AuctionKey]map[Identity]*Bid
	locks    map[AuctionKey]*sync.Mutex
}

// HouseConfig wires a House to its collaborators. Self doubles as the hook
// identity pools must route to and as the entity the house computes
// ciphertext operations under.
type HouseConfig struct {
	Self     Identity
	Engine   fhe.Engine
	Balances ledger.Ledger

	// Notifier defaults to LogNotifier.
	Notifier Notifier

	// Now defaults to time.Now. Injected for window tests.
	Now func() time.Time
}

func NewHouse(cfg HouseConfig) (*House, error) {
	if cfg.Self == "" {
		return nil, fmt.Errorf("house identity is required")
	}
	if cfg.Engine == nil {
		return nil, fmt.Errorf("encrypted arithmetic engine is required")
	}
	if cfg.Balances == nil {
		return nil, fmt.Errorf("balance ledger is required")
	}
	if cfg.Notifier == nil {
		cfg.Notifier = LogNotifier{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &House{
		self:     cfg.Self,
		engine:   cfg.Engine,
		balances: cfg.Balances,
		notifier: cfg.Notifier,
		now:      cfg.Now,
		auctions: make(map[AuctionKey]*Auction),
		bids:     make(map[AuctionKey]map[Identity]*Bid),
		locks:    make(map[AuctionKey]*sync.Mutex),
	}, nil
}

// Self returns the entity the house operates ciphertexts under. Bidders must
// grant it access to their bid ciphertexts before submitting.
func (h *House) Self() Identity { return h.self }

// routeKey validates the pool's hook declaration and derives the auction key.
func (h *House) routeKey(pool PoolID) (AuctionKey, error) {
	if pool.Hook != h.self {
		return "", fmt.Errorf("pool %q declares hook %s, this house is %s: %w",
			pool.Name, pool.Hook, h.self, ErrInvalidPoolHook)
	}
	return KeyForPool(pool), nil
}

// keyLock returns the mutex serializing mutations for one auction key.
func (h *House) keyLock(key AuctionKey) *sync.Mutex {
	h.mu.Lock()
	defer h.mu.Unlock()
	l, ok := h.locks[key]
	if !ok {
		l = &sync.Mutex{}
		h.locks[key] = l
	}
	return l
}

// Create opens a new auction for the pool. The auction runs from now for the
// given duration; duration bounds are inclusive. A key can never host a
// second auction, settled or not.
func (h *House) Create(pool PoolID, organizer Identity, bidAsset, rewardAsset AssetID, duration time.Duration) (AuctionKey, error) {
	key, err := h.routeKey(pool)
	if err != nil {
		return "", err
	}
	if duration < MinAuctionDuration || duration > MaxAuctionDuration {
		return "", fmt.Errorf("duration %s outside [%s, %s]: %w",
			duration, MinAuctionDuration, MaxAuctionDuration, ErrInvalidDuration)
	}

	lock := h.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	h.mu.RLock()
	existing := h.auctions[key]
	h.mu.RUnlock()
	// A record with a non-zero end time exists for the lifetime of the
	// system; settlement does not free the key.
	if existing != nil && !existing.EndTime.IsZero() {
		return "", fmt.Errorf("key %s: %w", key, ErrAuctionAlreadyExists)
	}

	// The running maximum starts at an encrypted zero, granted to the house
	// itself so every later comparison against it succeeds.
	zero, err := h.engine.FromPlain(h.self, 0)
	if err != nil {
		return "", fmt.Errorf("encrypt initial maximum: %w", err)
	}
	if err := h.engine.Grant(h.self, zero, h.self); err != nil {
		return "", fmt.Errorf("grant initial maximum: %w", err)
	}

	now := h.now()
	auction := &Auction{
		Key:         key,
		Organizer:   organizer,
		BidAsset:    bidAsset,
		RewardAsset: rewardAsset,
		StartTime:   now,
		EndTime:     now.Add(duration),
		MaxBid:      zero,
	}

	h.mu.Lock()
	h.auctions[key] = auction
	h.bids[key] = make(map[Identity]*Bid)
	h.mu.Unlock()

	h.notifier.AuctionCreated(AuctionCreated{
		Key:         key,
		Organizer:   organizer,
		StartTime:   auction.StartTime,
		EndTime:     auction.EndTime,
		BidAsset:    bidAsset,
		RewardAsset: rewardAsset,
	})
	return key, nil
}

// Get returns a snapshot of the auction record, or false if none exists.
func (h *House) Get(key AuctionKey) (*Auction, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	a, ok := h.auctions[key]
	if !ok {
		return nil, false
	}
	return a.snapshot(), true
}

// IsActive reports whether the auction exists, is unsettled, and the current
// time is inside its [start, end) window. No explicit expiry transition
// exists; activity is derived from time.
func (h *House) IsActive(key AuctionKey) bool {
	h.mu.RLock()
	a, ok := h.auctions[key]
	h.mu.RUnlock()
	if !ok || a.Settled {
		return false
	}
	now := h.now()
	return !now.Before(a.StartTime) && now.Before(a.EndTime)
}
