package services

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"autostats/config"
	"autostats/models"
)

// Storage keys are twox128(pallet) ++ twox128(item).
const (
	StorageKeySolutionRanges     = "0x3e1e8e35b440038ed6e6cf14c413a10246dc9c4b31fff24eff0b1be61bfe8f12"
	StorageKeyTransactionByteFee = "0x86d14ebdcabe8f22d507b904cd78e9499aebd3467f1d543eb9b308fab1c4ef8f"
)

// Consensus parameters used to turn the current solution range into pledged bytes.
const (
	slotProbabilityNum = 1
	slotProbabilityDen = 6
	numChunks          = 1 << 15
	numSBuckets        = 1 << 16
	pieceSize          = 1 << 20
)

var maxU64 = new(big.Int).SetUint64(^uint64(0))

// ChainClient opens connections to a network's RPC endpoint.
type ChainClient interface {
	Activate(ctx context.Context, network config.NetworkConfig) (ChainConn, error)
}

// ChainConn is an activated connection to one network.
type ChainConn interface {
	SpacePledged(ctx context.Context) (*big.Int, error)
	TransactionByteFee(ctx context.Context) (*big.Int, error)
	Close() error
}

// SubstrateClient speaks JSON-RPC 2.0 over a node's websocket endpoint.
type SubstrateClient struct {
	dialer  *websocket.Dialer
	timeout time.Duration
}

func NewSubstrateClient(cfg *config.Config) *SubstrateClient {
	timeout := cfg.ChainTimeoutDuration()
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &SubstrateClient{
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
			Proxy:            websocket.DefaultDialer.Proxy,
		},
		timeout: timeout,
	}
}

func (c *SubstrateClient) Activate(ctx context.Context, network config.NetworkConfig) (ChainConn, error) {
	if network.RPCURL == "" {
		return nil, fmt.Errorf("%w: no rpc url configured for %s", ErrChainQuery, network.ID)
	}

	conn, _, err := c.dialer.DialContext(ctx, network.RPCURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to connect to %s: %v", ErrChainQuery, network.ID, err)
	}

	log.Debug().Str("network", network.ID).Str("url", network.RPCURL).Msg("Chain connection activated")

	return &substrateConn{
		network: network.ID,
		conn:    conn,
		timeout: c.timeout,
	}, nil
}

type substrateConn struct {
	network string
	conn    *websocket.Conn
	timeout time.Duration

	mu     sync.Mutex
	nextID int
}

func (s *substrateConn) Close() error {
	return s.conn.Close()
}

func (s *substrateConn) call(ctx context.Context, method string, params interface{}) (*models.RPCResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	id := s.nextID

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(s.timeout)
	}
	_ = s.conn.SetWriteDeadline(deadline)
	_ = s.conn.SetReadDeadline(deadline)

	// unblock the read if the caller gives up first
	stop := context.AfterFunc(ctx, func() {
		_ = s.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	req := models.RPCRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      id,
	}
	if err := s.conn.WriteJSON(req); err != nil {
		return nil, fmt.Errorf("failed to send %s: %w", method, err)
	}

	for {
		var resp models.RPCResponse
		if err := s.conn.ReadJSON(&resp); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("failed to read %s response: %w", method, err)
		}
		// subscription notifications carry no id
		if resp.ID != id {
			continue
		}
		if resp.Error != nil {
			return &resp, fmt.Errorf("rpc error %d: %s", resp.Error.Code, resp.Error.Message)
		}
		return &resp, nil
	}
}

// storage fetches a raw SCALE-encoded storage value. Both items read here are
// value queries, so a missing value (nil) stands for the type's default.
func (s *substrateConn) storage(ctx context.Context, key string) ([]byte, error) {
	resp, err := s.call(ctx, "state_getStorage", []string{key})
	if err != nil {
		return nil, err
	}

	var encoded *string
	if err := json.Unmarshal(resp.Result, &encoded); err != nil {
		return nil, fmt.Errorf("failed to unmarshal storage result: %w", err)
	}
	if encoded == nil {
		return nil, nil
	}

	raw, err := hex.DecodeString(strings.TrimPrefix(*encoded, "0x"))
	if err != nil {
		return nil, fmt.Errorf("failed to decode storage hex: %w", err)
	}
	return raw, nil
}

func (s *substrateConn) SolutionRanges(ctx context.Context) (*models.SolutionRanges, error) {
	raw, err := s.storage(ctx, StorageKeySolutionRanges)
	if err != nil {
		return nil, fmt.Errorf("%w: solution ranges on %s: %v", ErrChainQuery, s.network, err)
	}
	if raw == nil {
		return &models.SolutionRanges{}, nil
	}
	ranges, err := decodeSolutionRanges(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: solution ranges on %s: %v", ErrChainQuery, s.network, err)
	}
	return ranges, nil
}

func (s *substrateConn) SpacePledged(ctx context.Context) (*big.Int, error) {
	log.Info().Str("network", s.network).Msg("Fetching spacePledged")

	ranges, err := s.SolutionRanges(ctx)
	if err != nil {
		return nil, err
	}
	pledged, err := SpacePledgedFromSolutionRange(ranges.Current)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrChainQuery, s.network, err)
	}
	return pledged, nil
}

func (s *substrateConn) TransactionByteFee(ctx context.Context) (*big.Int, error) {
	log.Info().Str("network", s.network).Msg("Fetching transactionByteFee")

	raw, err := s.storage(ctx, StorageKeyTransactionByteFee)
	if err != nil {
		return nil, fmt.Errorf("%w: transaction byte fee on %s: %v", ErrChainQuery, s.network, err)
	}
	if raw == nil {
		return new(big.Int), nil
	}
	if len(raw) < 16 {
		return nil, fmt.Errorf("%w: transaction byte fee on %s: %d bytes, want at least 16", ErrChainQuery, s.network, len(raw))
	}
	return decodeU128(raw[:16]), nil
}

// SpacePledgedFromSolutionRange estimates pledged bytes from the current
// solution range: pieces = MAX_U64 * p * S_BUCKETS / CHUNKS / range.
func SpacePledgedFromSolutionRange(solutionRange uint64) (*big.Int, error) {
	if solutionRange == 0 {
		return nil, fmt.Errorf("solution range is zero")
	}
	pieces := new(big.Int).Div(maxU64, big.NewInt(slotProbabilityDen))
	pieces.Mul(pieces, big.NewInt(slotProbabilityNum))
	pieces.Mul(pieces, big.NewInt(numSBuckets))
	pieces.Div(pieces, big.NewInt(numChunks))
	pieces.Div(pieces, new(big.Int).SetUint64(solutionRange))
	return pieces.Mul(pieces, big.NewInt(pieceSize)), nil
}

func decodeSolutionRanges(raw []byte) (*models.SolutionRanges, error) {
	if len(raw) < 9 {
		return nil, fmt.Errorf("%d bytes, want at least 9", len(raw))
	}
	ranges := &models.SolutionRanges{
		Current: binary.LittleEndian.Uint64(raw[:8]),
	}
	if raw[8] == 1 {
		if len(raw) < 17 {
			return nil, fmt.Errorf("truncated next solution range")
		}
		next := binary.LittleEndian.Uint64(raw[9:17])
		ranges.Next = &next
	}
	return ranges, nil
}

// decodeU128 reads a little-endian unsigned 128-bit integer.
func decodeU128(raw []byte) *big.Int {
	be := make([]byte, len(raw))
	for i, b := range raw {
		be[len(raw)-1-i] = b
	}
	return new(big.Int).SetBytes(be)
}
