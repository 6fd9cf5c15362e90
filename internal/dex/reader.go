package dex

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"rangeScope/internal/model"
)

// ErrNoContract is returned when a call target has no code or returns nothing.
var ErrNoContract = errors.New("no contract at address")

// ContractCaller performs read-only contract calls at an optional block.
// A nil block means the latest state.
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// poolImmutables are the pool fields that never change after deployment.
type poolImmutables struct {
	token0      model.Token
	token1      model.Token
	fee         uint32
	tickSpacing int32
}

// Reader loads pool and tick state from contract storage.
type Reader struct {
	caller  ContractCaller
	chainID uint64
	logger  *zap.Logger

	mu     sync.RWMutex
	tokens map[common.Address]model.Token
	pools  map[common.Address]poolImmutables
}

// NewReader creates a reader. Known tokens skip the ERC20 metadata calls.
func NewReader(caller ContractCaller, chainID uint64, known []model.Token, logger *zap.Logger) *Reader {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Reader{
		caller:  caller,
		chainID: chainID,
		logger:  logger,
		tokens:  make(map[common.Address]model.Token),
		pools:   make(map[common.Address]poolImmutables),
	}
	for _, token := range known {
		if common.IsHexAddress(token.Address) {
			token.ChainID = chainID
			r.tokens[common.HexToAddress(token.Address)] = token
		}
	}
	return r
}

// ReadPool loads the full pool snapshot at block.
func (r *Reader) ReadPool(ctx context.Context, pool common.Address, block *big.Int) (model.Pool, error) {
	immutables, err := r.immutables(ctx, pool)
	if err != nil {
		return model.Pool{}, err
	}

	poolABI, err := V3PoolABI()
	if err != nil {
		return model.Pool{}, fmt.Errorf("parse pool abi: %w", err)
	}

	values, err := r.call(ctx, pool, poolABI, "slot0", block)
	if err != nil {
		return model.Pool{}, err
	}
	sqrtPrice, err := asUint256(values[0])
	if err != nil {
		return model.Pool{}, fmt.Errorf("slot0 sqrt price: %w", err)
	}
	tickInt, err := asBigInt(values[1])
	if err != nil {
		return model.Pool{}, fmt.Errorf("slot0 tick: %w", err)
	}
	tick, err := int24FromBig(tickInt)
	if err != nil {
		return model.Pool{}, fmt.Errorf("slot0 tick: %w", err)
	}

	liquidity, err := r.callUint256(ctx, pool, poolABI, "liquidity", block)
	if err != nil {
		return model.Pool{}, err
	}
	growth0, err := r.callUint256(ctx, pool, poolABI, "feeGrowthGlobal0X128", block)
	if err != nil {
		return model.Pool{}, err
	}
	growth1, err := r.callUint256(ctx, pool, poolABI, "feeGrowthGlobal1X128", block)
	if err != nil {
		return model.Pool{}, err
	}

	return model.Pool{
		ID:                   model.NormalizePoolID(pool.Hex()),
		ChainID:              r.chainID,
		Token0:               immutables.token0,
		Token1:               immutables.token1,
		Fee:                  immutables.fee,
		TickSpacing:          immutables.tickSpacing,
		SqrtPriceX96:         sqrtPrice,
		Liquidity:            liquidity,
		Tick:                 tick,
		FeeGrowthGlobal0X128: growth0,
		FeeGrowthGlobal1X128: growth1,
	}, nil
}

// ReadTick loads one tick boundary at block. Uninitialized ticks come back
// with zero accumulators.
func (r *Reader) ReadTick(ctx context.Context, pool common.Address, tick int32, block *big.Int) (model.TickSnapshot, error) {
	poolABI, err := V3PoolABI()
	if err != nil {
		return model.TickSnapshot{}, fmt.Errorf("parse pool abi: %w", err)
	}

	values, err := r.call(ctx, pool, poolABI, "ticks", block, big.NewInt(int64(tick)))
	if err != nil {
		return model.TickSnapshot{}, err
	}
	if len(values) < 8 {
		return model.TickSnapshot{}, fmt.Errorf("ticks(%d): short response", tick)
	}

	initialized, _ := values[7].(bool)
	if !initialized {
		return model.EmptyTick(tick), nil
	}

	gross, err := asUint256(values[0])
	if err != nil {
		return model.TickSnapshot{}, fmt.Errorf("ticks(%d) liquidityGross: %w", tick, err)
	}
	net, err := asBigInt(values[1])
	if err != nil {
		return model.TickSnapshot{}, fmt.Errorf("ticks(%d) liquidityNet: %w", tick, err)
	}
	outside0, err := asUint256(values[2])
	if err != nil {
		return model.TickSnapshot{}, fmt.Errorf("ticks(%d) feeGrowthOutside0: %w", tick, err)
	}
	outside1, err := asUint256(values[3])
	if err != nil {
		return model.TickSnapshot{}, fmt.Errorf("ticks(%d) feeGrowthOutside1: %w", tick, err)
	}

	return model.TickSnapshot{
		Tick:                  tick,
		FeeGrowthOutside0X128: outside0,
		FeeGrowthOutside1X128: outside1,
		LiquidityGross:        gross,
		LiquidityNet:          net.String(),
		Initialized:           true,
	}, nil
}

// LatestRound is the most recent answer of a price feed.
type LatestRound struct {
	Answer    *big.Int
	Decimals  uint8
	UpdatedAt time.Time
}

// Price returns the answer scaled by the feed decimals.
func (l LatestRound) Price() float64 {
	value, _ := new(big.Float).SetInt(l.Answer).Float64()
	for i := uint8(0); i < l.Decimals; i++ {
		value /= 10
	}
	return value
}

// ReadLatestRound loads latestRoundData from a price feed.
func (r *Reader) ReadLatestRound(ctx context.Context, feed common.Address) (LatestRound, error) {
	feedABI, err := AggregatorV3ABI()
	if err != nil {
		return LatestRound{}, fmt.Errorf("parse aggregator abi: %w", err)
	}

	values, err := r.call(ctx, feed, feedABI, "decimals", nil)
	if err != nil {
		return LatestRound{}, err
	}
	decimals, err := asUint8(values[0])
	if err != nil {
		return LatestRound{}, fmt.Errorf("decimals: %w", err)
	}

	values, err = r.call(ctx, feed, feedABI, "latestRoundData", nil)
	if err != nil {
		return LatestRound{}, err
	}
	if len(values) < 4 {
		return LatestRound{}, fmt.Errorf("latestRoundData: short response")
	}
	answer, err := asBigInt(values[1])
	if err != nil {
		return LatestRound{}, fmt.Errorf("answer: %w", err)
	}
	updatedAt, err := asBigInt(values[3])
	if err != nil {
		return LatestRound{}, fmt.Errorf("updatedAt: %w", err)
	}

	return LatestRound{
		Answer:    answer,
		Decimals:  decimals,
		UpdatedAt: time.Unix(updatedAt.Int64(), 0).UTC(),
	}, nil
}

func (r *Reader) immutables(ctx context.Context, pool common.Address) (poolImmutables, error) {
	r.mu.RLock()
	cached, ok := r.pools[pool]
	r.mu.RUnlock()
	if ok {
		return cached, nil
	}

	poolABI, err := V3PoolABI()
	if err != nil {
		return poolImmutables{}, fmt.Errorf("parse pool abi: %w", err)
	}

	values, err := r.call(ctx, pool, poolABI, "token0", nil)
	if errors.Is(err, ErrNoContract) {
		return poolImmutables{}, fmt.Errorf("%w: %w", model.ErrPoolNotFound, err)
	}
	if err != nil {
		return poolImmutables{}, err
	}
	token0, err := asAddress(values[0])
	if err != nil {
		return poolImmutables{}, fmt.Errorf("token0: %w", err)
	}

	values, err = r.call(ctx, pool, poolABI, "token1", nil)
	if err != nil {
		return poolImmutables{}, err
	}
	token1, err := asAddress(values[0])
	if err != nil {
		return poolImmutables{}, fmt.Errorf("token1: %w", err)
	}

	values, err = r.call(ctx, pool, poolABI, "fee", nil)
	if err != nil {
		return poolImmutables{}, err
	}
	feeInt, err := asBigInt(values[0])
	if err != nil {
		return poolImmutables{}, fmt.Errorf("fee: %w", err)
	}

	values, err = r.call(ctx, pool, poolABI, "tickSpacing", nil)
	if err != nil {
		return poolImmutables{}, err
	}
	spacingInt, err := asBigInt(values[0])
	if err != nil {
		return poolImmutables{}, fmt.Errorf("tick spacing: %w", err)
	}
	spacing, err := int24FromBig(spacingInt)
	if err != nil {
		return poolImmutables{}, fmt.Errorf("tick spacing: %w", err)
	}

	// A pool is memoized only after both token lookups succeed.
	meta0, err := r.FetchTokenMeta(ctx, token0)
	if err != nil {
		return poolImmutables{}, fmt.Errorf("token0 %s metadata: %w", token0.Hex(), err)
	}
	meta1, err := r.FetchTokenMeta(ctx, token1)
	if err != nil {
		return poolImmutables{}, fmt.Errorf("token1 %s metadata: %w", token1.Hex(), err)
	}

	out := poolImmutables{
		token0:      meta0,
		token1:      meta1,
		fee:         uint32(feeInt.Uint64()),
		tickSpacing: spacing,
	}
	r.mu.Lock()
	r.pools[pool] = out
	r.mu.Unlock()
	return out, nil
}

// FetchTokenMeta loads token metadata via ERC20 calls. Only successful
// lookups are memoized. On error the returned token still carries the
// address and defaults to 18 decimals.
func (r *Reader) FetchTokenMeta(ctx context.Context, token common.Address) (model.Token, error) {
	r.mu.RLock()
	cached, ok := r.tokens[token]
	r.mu.RUnlock()
	if ok {
		return cached, nil
	}

	meta := model.Token{Address: token.Hex(), Decimals: 18, ChainID: r.chainID}

	stringABI, err := erc20String.get()
	if err != nil {
		return meta, fmt.Errorf("parse erc20 string abi: %w", err)
	}
	bytes32ABI, err := erc20Bytes32.get()
	if err != nil {
		return meta, fmt.Errorf("parse erc20 bytes32 abi: %w", err)
	}

	values, err := r.call(ctx, token, stringABI, "decimals", nil)
	if err != nil {
		return meta, err
	}
	decimals, err := asUint8(values[0])
	if err != nil {
		return meta, err
	}
	meta.Decimals = decimals

	meta.Symbol = r.readText(ctx, token, stringABI, bytes32ABI, "symbol")
	meta.Name = r.readText(ctx, token, stringABI, bytes32ABI, "name")

	r.mu.Lock()
	r.tokens[token] = meta
	r.mu.Unlock()
	return meta, nil
}

func (r *Reader) readText(ctx context.Context, token common.Address, stringABI, bytes32ABI abi.ABI, method string) string {
	if values, err := r.call(ctx, token, stringABI, method, nil); err == nil {
		if text, ok := values[0].(string); ok {
			return text
		}
	}
	values, err := r.call(ctx, token, bytes32ABI, method, nil)
	if err != nil {
		r.logger.Debug(method+" call failed", zap.String("token", token.Hex()), zap.Error(err))
		return ""
	}
	text, _ := bytes32ToString(values[0])
	return text
}

func (r *Reader) call(ctx context.Context, target common.Address, parsed abi.ABI, method string, block *big.Int, args ...interface{}) ([]interface{}, error) {
	if r.caller == nil {
		return nil, fmt.Errorf("contract caller is nil")
	}
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	msg := ethereum.CallMsg{To: &target, Data: data}
	resp, err := r.caller.CallContract(ctx, msg, block)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	if len(resp) == 0 {
		return nil, fmt.Errorf("call %s on %s: %w", method, target.Hex(), ErrNoContract)
	}
	values, err := parsed.Unpack(method, resp)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("unpack %s: empty result", method)
	}
	return values, nil
}

func (r *Reader) callUint256(ctx context.Context, target common.Address, parsed abi.ABI, method string, block *big.Int) (*uint256.Int, error) {
	values, err := r.call(ctx, target, parsed, method, block)
	if err != nil {
		return nil, err
	}
	out, err := asUint256(values[0])
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	return out, nil
}

func bytes32ToString(value interface{}) (string, bool) {
	switch v := value.(type) {
	case [32]byte:
		return strings.TrimSpace(string(bytes.TrimRight(v[:], "\x00"))), true
	case []byte:
		return strings.TrimSpace(string(bytes.TrimRight(v, "\x00"))), true
	default:
		return "", false
	}
}

func asAddress(value interface{}) (common.Address, error) {
	switch v := value.(type) {
	case common.Address:
		return v, nil
	case *common.Address:
		return *v, nil
	default:
		return common.Address{}, fmt.Errorf("unsupported address type %T", value)
	}
}

func asUint256(value interface{}) (*uint256.Int, error) {
	b, err := asBigInt(value)
	if err != nil {
		return nil, err
	}
	if b.Sign() < 0 {
		return nil, fmt.Errorf("negative value %s", b.String())
	}
	out, overflow := uint256.FromBig(b)
	if overflow {
		return nil, fmt.Errorf("value overflows 256 bits: %s", b.String())
	}
	return out, nil
}

func asBigInt(value interface{}) (*big.Int, error) {
	switch v := value.(type) {
	case *big.Int:
		return new(big.Int).Set(v), nil
	case big.Int:
		return new(big.Int).Set(&v), nil
	case uint8:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint16:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint32:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint64:
		return new(big.Int).SetUint64(v), nil
	case int8:
		return big.NewInt(int64(v)), nil
	case int16:
		return big.NewInt(int64(v)), nil
	case int32:
		return big.NewInt(int64(v)), nil
	case int64:
		return big.NewInt(v), nil
	default:
		return nil, fmt.Errorf("unsupported int type %T", value)
	}
}

func asUint8(value interface{}) (uint8, error) {
	switch v := value.(type) {
	case uint8:
		return v, nil
	case *big.Int:
		if !v.IsUint64() || v.Uint64() > 255 {
			return 0, fmt.Errorf("uint8 overflow: %s", v.String())
		}
		return uint8(v.Uint64()), nil
	default:
		return 0, fmt.Errorf("unsupported uint8 type %T", value)
	}
}

func int24FromBig(value *big.Int) (int32, error) {
	min := big.NewInt(-1 << 23)
	max := big.NewInt((1 << 23) - 1)
	if value.Cmp(min) < 0 || value.Cmp(max) > 0 {
		return 0, fmt.Errorf("int24 overflow: %s", value.String())
	}
	return int32(value.Int64()), nil
}
