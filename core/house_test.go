package core

import (
	"errors"
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"

	"github.com/cloudx-io/blindauction/fhe"
	"github.com/cloudx-io/blindauction/ledger"
)

const (
	houseID   Identity = "house"
	organizer Identity = "organizer"
	bidderA   Identity = "bidder-a"
	bidderB   Identity = "bidder-b"
	bidderC   Identity = "bidder-c"

	bidAsset    AssetID = "USDC"
	rewardAsset AssetID = "RWD"
)

// fixture wires a house to a local engine, an in-memory balance ledger, a
// recording notifier, and a manually advanced clock.
type fixture struct {
	t        *testing.T
	engine   *fhe.LocalEngine
	balances *ledger.MemoryLedger
	house    *House
	events   *RecordingNotifier
	clock    time.Time
	pool     PoolID
}

func newFixture(t *testing.T, revealLatency int) *fixture {
	t.Helper()
	f := &fixture{
		t:     t,
		clock: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		pool:  PoolID{Name: "pool-1", Hook: houseID},
	}
	f.engine = fhe.NewLocalEngine(revealLatency)
	f.balances = ledger.NewMemoryLedger("ledger", f.engine)
	f.events = &RecordingNotifier{}
	house, err := NewHouse(HouseConfig{
		Self:     houseID,
		Engine:   f.engine,
		Balances: f.balances,
		Notifier: f.events,
		Now:      func() time.Time { return f.clock },
	})
	assert.NoError(t, err)
	f.house = house
	return f
}

func (f *fixture) advance(d time.Duration) {
	f.clock = f.clock.Add(d)
}

func (f *fixture) create(duration time.Duration) AuctionKey {
	f.t.Helper()
	key, err := f.house.Create(f.pool, organizer, bidAsset, rewardAsset, duration)
	assert.NoError(f.t, err)
	return key
}

func (f *fixture) fund(account Identity, asset AssetID, amount uint64) {
	f.balances.Credit(asset, account, amount)
}

// encryptBid encrypts an amount as the bidder and authorizes the house, the
// same handshake a real client performs before submitting.
func (f *fixture) encryptBid(bidder Identity, amount uint64) fhe.CipherUint64 {
	f.t.Helper()
	ct, err := f.engine.FromPlain(bidder, amount)
	assert.NoError(f.t, err)
	assert.NoError(f.t, f.engine.Grant(bidder, ct, houseID))
	return ct
}

// submitFunded funds the bidder to exactly the bid amount and submits.
func (f *fixture) submitFunded(bidder Identity, amount uint64) error {
	f.t.Helper()
	f.fund(bidder, bidAsset, amount)
	return f.house.SubmitBid(f.pool, bidder, f.encryptBid(bidder, amount))
}

// revealMax decrypts the registry's running maximum through the house
// entity. Test-only path; production code never decrypts it pre-settlement.
func (f *fixture) revealMax(key AuctionKey) uint64 {
	f.t.Helper()
	auction, ok := f.house.Get(key)
	assert.True(f.t, ok)
	h, err := f.engine.RequestReveal(houseID, auction.MaxBid)
	assert.NoError(f.t, err)
	for {
		res, ready, err := f.engine.PollReveal(houseID, h)
		assert.NoError(f.t, err)
		if ready {
			return res.Uint64
		}
	}
}

func TestCreate_DurationBounds(t *testing.T) {
	for _, tc := range []struct {
		name     string
		duration time.Duration
		wantErr  error
	}{
		{"below minimum", time.Hour - time.Second, ErrInvalidDuration},
		{"above maximum", 365*24*time.Hour + time.Second, ErrInvalidDuration},
		{"exactly minimum", time.Hour, nil},
		{"exactly maximum", 365 * 24 * time.Hour, nil},
	} {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, 0)
			_, err := f.house.Create(f.pool, organizer, bidAsset, rewardAsset, tc.duration)
			if tc.wantErr == nil {
				check.NoError(t, err)
			} else {
				check.True(t, errors.Is(err, tc.wantErr))
			}
		})
	}
}

func TestCreate_NoDoubleAuctions(t *testing.T) {
	f := newFixture(t, 0)
	f.create(24 * time.Hour)

	_, err := f.house.Create(f.pool, organizer, bidAsset, rewardAsset, 2*time.Hour)
	check.True(t, errors.Is(err, ErrAuctionAlreadyExists))

	// The key stays burned even after settlement.
	assert.NoError(t, f.submitFunded(bidderA, 100))
	f.advance(24*time.Hour + time.Second)
	assert.NoError(t, f.house.Settle(f.pool))
	_, err = f.house.Create(f.pool, organizer, bidAsset, rewardAsset, 2*time.Hour)
	check.True(t, errors.Is(err, ErrAuctionAlreadyExists))
}

func TestCreate_InvalidPoolHook(t *testing.T) {
	f := newFixture(t, 0)
	wrong := PoolID{Name: "pool-1", Hook: "some-other-house"}

	_, err := f.house.Create(wrong, organizer, bidAsset, rewardAsset, 24*time.Hour)
	check.True(t, errors.Is(err, ErrInvalidPoolHook))
	err = f.house.SubmitBid(wrong, bidderA, f.encryptBid(bidderA, 1))
	check.True(t, errors.Is(err, ErrInvalidPoolHook))
	err = f.house.Settle(wrong)
	check.True(t, errors.Is(err, ErrInvalidPoolHook))
}

func TestCreate_RecordAndEvent(t *testing.T) {
	f := newFixture(t, 0)
	key := f.create(24 * time.Hour)

	auction, ok := f.house.Get(key)
	assert.True(t, ok)
	check.Equal(t, organizer, auction.Organizer)
	check.Equal(t, bidAsset, auction.BidAsset)
	check.Equal(t, rewardAsset, auction.RewardAsset)
	check.Equal(t, f.clock, auction.StartTime)
	check.Equal(t, f.clock.Add(24*time.Hour), auction.EndTime)
	check.False(t, auction.Settled)
	check.Equal(t, Identity(""), auction.Winner)
	check.Equal(t, 0, len(auction.Bidders))
	// The running maximum starts as an encrypted zero.
	check.Equal(t, uint64(0), f.revealMax(key))

	created := f.events.Created()
	assert.Equal(t, 1, len(created))
	check.Equal(t, key, created[0].Key)
	check.Equal(t, organizer, created[0].Organizer)
}

func TestIsActive(t *testing.T) {
	f := newFixture(t, 0)

	key := KeyForPool(f.pool)
	check.False(t, f.house.IsActive(key))

	f.create(24 * time.Hour)
	check.True(t, f.house.IsActive(key))

	// Activity is derived from time; there is no explicit expiry transition.
	f.advance(24 * time.Hour)
	check.False(t, f.house.IsActive(key))
}

func TestGet_Unknown(t *testing.T) {
	f := newFixture(t, 0)
	_, ok := f.house.Get(AuctionKey("nope"))
	check.False(t, ok)
}

func TestKeyForPool_Deterministic(t *testing.T) {
	a := KeyForPool(PoolID{Name: "pool-1", Hook: "house"})
	b := KeyForPool(PoolID{Name: "pool-1", Hook: "house"})
	c := KeyForPool(PoolID{Name: "pool-2", Hook: "house"})
	check.Equal(t, a, b)
	check.NotEqual(t, a, c)
}
