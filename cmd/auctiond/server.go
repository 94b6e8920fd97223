package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"time"

	"github.com/mdlayher/vsock"

	"github.com/cloudx-io/blindauction/auctionapi"
	"github.com/cloudx-io/blindauction/core"
	"github.com/cloudx-io/blindauction/fhe"
	"github.com/cloudx-io/blindauction/ledger"
)

// AuctionServer serves the auction house over vsock: one JSON request per
// connection, one JSON response back.
type AuctionServer struct {
	port     uint32
	self     fhe.Entity
	engine   *fhe.LocalEngine
	balances *ledger.MemoryLedger
	house    *core.House
}

func NewAuctionServer(port uint32, revealLatency int) (*AuctionServer, error) {
	self := fhe.Entity("auctiond")
	engine := fhe.NewLocalEngine(revealLatency)
	balances := ledger.NewMemoryLedger("ledger", engine)
	house, err := core.NewHouse(core.HouseConfig{
		Self:     self,
		Engine:   engine,
		Balances: balances,
	})
	if err != nil {
		return nil, fmt.Errorf("build auction house: %w", err)
	}
	return &AuctionServer{
		port:     port,
		self:     self,
		engine:   engine,
		balances: balances,
		house:    house,
	}, nil
}

func (s *AuctionServer) Start() error {
	listener, err := vsock.Listen(s.port, nil)
	if err != nil {
		return fmt.Errorf("failed to create vsock listener: %w", err)
	}
	defer func() {
		if err := listener.Close(); err != nil {
			log.Printf("ERROR: Failed to close listener: %v", err)
		}
	}()

	log.Printf("INFO: auctiond listening on vsock port %d", s.port)

	maxWorkers, err := getRequiredEnvInt("AUCTIOND_MAX_WORKERS")
	if err != nil {
		return fmt.Errorf("failed to get max workers config: %w", err)
	}
	semaphore := make(chan struct{}, maxWorkers)

	log.Printf("INFO: Worker pool initialized with %d max concurrent workers", maxWorkers)

	for {
		conn, err := listener.Accept()
		if err != nil {
			log.Printf("ERROR: Failed to accept vsock connection: %v", err)
			continue
		}

		// Acquire worker slot - immediate rejection if pool full
		select {
		case semaphore <- struct{}{}:
			go func(c net.Conn) {
				defer func() { <-semaphore }()
				s.handleConnection(c)
			}(conn)
		default:
			log.Printf("INFO: No workers available, rejecting connection (pool full)")
			if err := conn.Close(); err != nil {
				log.Printf("ERROR: Failed to close rejected connection: %v", err)
			}
		}
	}
}

func (s *AuctionServer) handleConnection(conn net.Conn) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("ERROR: Panic recovered in handleConnection: %v", r)
		}
		if err := conn.Close(); err != nil {
			log.Printf("ERROR: Failed to close connection: %v", err)
		}
	}()

	_ = conn.SetReadDeadline(time.Now().Add(30 * time.Second))

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, conn); err != nil {
		log.Printf("ERROR: Failed to read request: %v", err)
		return
	}

	var baseReq auctionapi.BaseRequest
	if err := json.Unmarshal(buf.Bytes(), &baseReq); err != nil {
		log.Printf("ERROR: Failed to decode base request: %v", err)
		return
	}

	log.Printf("INFO: Received request type: %s", baseReq.Type)
	response := s.dispatch(baseReq.Type, buf.Bytes())

	encoder := json.NewEncoder(conn)
	if err := encoder.Encode(response); err != nil {
		log.Printf("ERROR: Failed to encode response: %v", err)
	} else {
		log.Printf("INFO: Successfully sent response for %s", baseReq.Type)
	}
}

func (s *AuctionServer) dispatch(reqType string, raw []byte) any {
	start := time.Now()
	fail := func(format string, args ...any) auctionapi.Response {
		msg := fmt.Sprintf(format, args...)
		log.Printf("ERROR: %s request failed: %s", reqType, msg)
		return auctionapi.Response{
			Type:             reqType + "_response",
			Success:          false,
			Message:          msg,
			ProcessingTimeMS: time.Since(start).Milliseconds(),
		}
	}
	ok := func(format string, args ...any) auctionapi.Response {
		return auctionapi.Response{
			Type:             reqType + "_response",
			Success:          true,
			Message:          fmt.Sprintf(format, args...),
			ProcessingTimeMS: time.Since(start).Milliseconds(),
		}
	}

	switch reqType {
	case auctionapi.TypePing:
		return map[string]any{
			"type":      "pong",
			"message":   "auctiond is healthy",
			"timestamp": time.Now().Unix(),
		}

	case auctionapi.TypeFundAccount:
		var req auctionapi.FundAccountRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return fail("decode request: %v", err)
		}
		amount, err := ledger.ParseAmount(req.Amount, req.Decimals)
		if err != nil {
			return fail("parse amount: %v", err)
		}
		s.balances.Credit(ledger.Asset(req.Asset), fhe.Entity(req.Account), amount)
		return ok("credited %s %s to %s", req.Amount, req.Asset, req.Account)

	case auctionapi.TypeEncryptBid:
		var req auctionapi.EncryptBidRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return fail("decode request: %v", err)
		}
		amount, err := ledger.ParseAmount(req.Amount, req.Decimals)
		if err != nil {
			return fail("parse amount: %v", err)
		}
		bidder := fhe.Entity(req.Bidder)
		ct, err := s.engine.FromPlain(bidder, amount)
		if err != nil {
			return fail("encrypt bid: %v", err)
		}
		// The bidder authorizes the house to fold the bid into the auction.
		if err := s.engine.Grant(bidder, ct, s.self); err != nil {
			return fail("grant bid to house: %v", err)
		}
		envelope, err := fhe.MarshalCiphertext(ct)
		if err != nil {
			return fail("encode envelope: %v", err)
		}
		return auctionapi.EncryptBidResponse{
			Response:   ok("bid encrypted for %s", req.Bidder),
			Ciphertext: auctionapi.EncodeEnvelope(envelope),
		}

	case auctionapi.TypeCreateAuction:
		var req auctionapi.CreateAuctionRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return fail("decode request: %v", err)
		}
		key, err := s.house.Create(
			core.PoolID{Name: req.Pool, Hook: core.Identity(req.Hook)},
			core.Identity(req.Organizer),
			core.AssetID(req.BidAsset),
			core.AssetID(req.RewardAsset),
			time.Duration(req.DurationSeconds)*time.Second,
		)
		if err != nil {
			return fail("create auction: %v", err)
		}
		return auctionapi.CreateAuctionResponse{
			Response: ok("auction created for pool %s", req.Pool),
			Key:      string(key),
		}

	case auctionapi.TypeSubmitBid:
		var req auctionapi.SubmitBidRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return fail("decode request: %v", err)
		}
		envelope, err := req.Ciphertext.Decode()
		if err != nil {
			return fail("decode ciphertext: %v", err)
		}
		ct, err := fhe.UnmarshalUint64(envelope)
		if err != nil {
			return fail("decode ciphertext: %v", err)
		}
		pool := core.PoolID{Name: req.Pool, Hook: core.Identity(req.Hook)}
		if err := s.house.SubmitBid(pool, core.Identity(req.Bidder), ct); err != nil {
			return fail("submit bid: %v", err)
		}
		return ok("bid submitted by %s", req.Bidder)

	case auctionapi.TypeSettleAuction:
		var req auctionapi.SettleAuctionRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return fail("decode request: %v", err)
		}
		pool := core.PoolID{Name: req.Pool, Hook: core.Identity(req.Hook)}
		if err := s.house.Settle(pool); err != nil {
			return fail("settle auction: %v", err)
		}
		return ok("auction settled for pool %s", req.Pool)

	case auctionapi.TypeAuctionStatus:
		var req auctionapi.AuctionStatusRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return fail("decode request: %v", err)
		}
		pool := core.PoolID{Name: req.Pool, Hook: core.Identity(req.Hook)}
		key := core.KeyForPool(pool)
		auction, exists := s.house.Get(key)
		if !exists {
			return fail("no auction for pool %s", req.Pool)
		}
		return auctionapi.AuctionStatusResponse{
			Response:  ok("status for pool %s", req.Pool),
			Key:       string(key),
			Active:    s.house.IsActive(key),
			Settled:   auction.Settled,
			Winner:    string(auction.Winner),
			Bidders:   len(auction.Bidders),
			StartTime: auction.StartTime,
			EndTime:   auction.EndTime,
		}

	default:
		return fail("unknown request type: %s", reqType)
	}
}
