package dex

import (
	"context"
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rangeScope/internal/model"
)

var (
	poolAddr  = common.HexToAddress("0x88e6A0c2dDD26FEEb64F039a2c41296FcB3f5640")
	usdcAddr  = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	wethAddr  = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	mkrAddr   = common.HexToAddress("0x9f8F72aA9304c8B593d555F12eF6589cC3A579A2")
	feedAddr  = common.HexToAddress("0x5f4eC3Df9cbd43714FE2740f5E3616155c5b8419")
	emptyAddr = common.HexToAddress("0x000000000000000000000000000000000000dEaD")
)

type fakeCaller struct {
	responses map[common.Address]map[string][]byte
	blocks    []*big.Int
	calls     int
}

func newFakeCaller() *fakeCaller {
	return &fakeCaller{responses: make(map[common.Address]map[string][]byte)}
}

func (f *fakeCaller) set(t *testing.T, target common.Address, parsed abi.ABI, method, key string, values ...interface{}) {
	t.Helper()
	out, err := parsed.Methods[method].Outputs.Pack(values...)
	require.NoError(t, err)
	if f.responses[target] == nil {
		f.responses[target] = make(map[string][]byte)
	}
	if key == "" {
		key = method
	}
	f.responses[target][key] = out
}

func (f *fakeCaller) CallContract(_ context.Context, msg ethereum.CallMsg, block *big.Int) ([]byte, error) {
	f.calls++
	f.blocks = append(f.blocks, block)
	methods, ok := f.responses[*msg.To]
	if !ok {
		return nil, nil
	}

	key, err := methodKey(msg.Data)
	if err != nil {
		return nil, err
	}
	resp, ok := methods[key]
	if !ok {
		return nil, fmt.Errorf("execution reverted")
	}
	return resp, nil
}

func methodKey(data []byte) (string, error) {
	poolABI, _ := V3PoolABI()
	stringABI, _ := erc20String.get()
	feedABI, _ := AggregatorV3ABI()

	if method, err := poolABI.MethodById(data[:4]); err == nil {
		if method.Name != "ticks" {
			return method.Name, nil
		}
		args, err := method.Inputs.Unpack(data[4:])
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("ticks:%s", args[0].(*big.Int).String()), nil
	}
	if method, err := stringABI.MethodById(data[:4]); err == nil {
		return method.Name, nil
	}
	if method, err := feedABI.MethodById(data[:4]); err == nil {
		return method.Name, nil
	}
	return "", fmt.Errorf("unknown selector %x", data[:4])
}

func mustBig(t *testing.T, s string) *big.Int {
	t.Helper()
	v, ok := new(big.Int).SetString(s, 10)
	require.True(t, ok)
	return v
}

func seedPool(t *testing.T, f *fakeCaller) {
	poolABI, err := V3PoolABI()
	require.NoError(t, err)
	stringABI, err := erc20String.get()
	require.NoError(t, err)

	f.set(t, poolAddr, poolABI, "token0", "", usdcAddr)
	f.set(t, poolAddr, poolABI, "token1", "", wethAddr)
	f.set(t, poolAddr, poolABI, "fee", "", big.NewInt(500))
	f.set(t, poolAddr, poolABI, "tickSpacing", "", big.NewInt(10))
	f.set(t, poolAddr, poolABI, "liquidity", "", mustBig(t, "21406966740143161050"))
	f.set(t, poolAddr, poolABI, "feeGrowthGlobal0X128", "", mustBig(t, "3417260839373418376486271706722917"))
	f.set(t, poolAddr, poolABI, "feeGrowthGlobal1X128", "", mustBig(t, "1567896123451230000000000000000000000000"))
	f.set(t, poolAddr, poolABI, "slot0", "",
		mustBig(t, "1459148620414727637612063434431862"), big.NewInt(-197000),
		uint16(1), uint16(723), uint16(723), uint8(0), true)

	f.set(t, usdcAddr, stringABI, "decimals", "", uint8(6))
	f.set(t, usdcAddr, stringABI, "symbol", "", "USDC")
	f.set(t, usdcAddr, stringABI, "name", "", "USD Coin")
	f.set(t, wethAddr, stringABI, "decimals", "", uint8(18))
	f.set(t, wethAddr, stringABI, "symbol", "", "WETH")
	f.set(t, wethAddr, stringABI, "name", "", "Wrapped Ether")
}

func TestReadPool(t *testing.T) {
	caller := newFakeCaller()
	seedPool(t, caller)
	reader := NewReader(caller, 1, nil, nil)

	block := big.NewInt(19_000_000)
	pool, err := reader.ReadPool(context.Background(), poolAddr, block)
	require.NoError(t, err)

	assert.Equal(t, "0x88e6a0c2ddd26feeb64f039a2c41296fcb3f5640", pool.ID)
	assert.Equal(t, uint64(1), pool.ChainID)
	assert.Equal(t, "USDC", pool.Token0.Symbol)
	assert.Equal(t, uint8(6), pool.Token0.Decimals)
	assert.Equal(t, "WETH", pool.Token1.Symbol)
	assert.Equal(t, uint32(500), pool.Fee)
	assert.Equal(t, int32(10), pool.TickSpacing)
	assert.Equal(t, int32(-197000), pool.Tick)
	assert.Equal(t, "21406966740143161050", pool.Liquidity.Dec())
	assert.Equal(t, "3417260839373418376486271706722917", pool.FeeGrowthGlobal0X128.Dec())
	assert.True(t, pool.Complete())

	// State calls are pinned to the block; immutables use latest.
	var pinned int
	for _, b := range caller.blocks {
		if b != nil {
			assert.Equal(t, block, b)
			pinned++
		}
	}
	assert.Equal(t, 4, pinned)

	before := caller.calls
	_, err = reader.ReadPool(context.Background(), poolAddr, nil)
	require.NoError(t, err)
	assert.Equal(t, 4, caller.calls-before, "immutables and token metadata are cached")
}

func TestReadPoolKnownTokensSkipMetadata(t *testing.T) {
	caller := newFakeCaller()
	seedPool(t, caller)
	delete(caller.responses, usdcAddr)
	known := []model.Token{{Address: usdcAddr.Hex(), Symbol: "USDC", Decimals: 6}}
	reader := NewReader(caller, 1, known, nil)

	pool, err := reader.ReadPool(context.Background(), poolAddr, nil)
	require.NoError(t, err)
	assert.Equal(t, "USDC", pool.Token0.Symbol)
	assert.Equal(t, uint64(1), pool.Token0.ChainID)
}

func TestReadPoolNoContract(t *testing.T) {
	reader := NewReader(newFakeCaller(), 1, nil, nil)
	_, err := reader.ReadPool(context.Background(), emptyAddr, nil)
	assert.ErrorIs(t, err, ErrNoContract)
	assert.ErrorIs(t, err, model.ErrPoolNotFound)
}

func TestReadPoolTokenWithoutCodeIsNotPoolNotFound(t *testing.T) {
	caller := newFakeCaller()
	seedPool(t, caller)
	delete(caller.responses, wethAddr)
	reader := NewReader(caller, 1, nil, nil)

	_, err := reader.ReadPool(context.Background(), poolAddr, nil)
	require.Error(t, err)
	assert.NotErrorIs(t, err, model.ErrPoolNotFound)
	assert.ErrorContains(t, err, "token1")
}

// flakyCaller fails every call to one target until failures runs out.
type flakyCaller struct {
	*fakeCaller
	target   common.Address
	failures int
}

func (f *flakyCaller) CallContract(ctx context.Context, msg ethereum.CallMsg, block *big.Int) ([]byte, error) {
	if *msg.To == f.target && f.failures > 0 {
		f.failures--
		return nil, fmt.Errorf("connection reset")
	}
	return f.fakeCaller.CallContract(ctx, msg, block)
}

func TestReadPoolRetriesTokenMetadataAfterFailure(t *testing.T) {
	inner := newFakeCaller()
	seedPool(t, inner)
	caller := &flakyCaller{fakeCaller: inner, target: usdcAddr, failures: 1}
	reader := NewReader(caller, 1, nil, nil)

	_, err := reader.ReadPool(context.Background(), poolAddr, nil)
	require.ErrorContains(t, err, "token0")
	require.ErrorContains(t, err, "connection reset")

	pool, err := reader.ReadPool(context.Background(), poolAddr, nil)
	require.NoError(t, err)
	assert.Equal(t, uint8(6), pool.Token0.Decimals)
	assert.Equal(t, "USDC", pool.Token0.Symbol)
	assert.Equal(t, uint8(18), pool.Token1.Decimals)
}

func TestReadTick(t *testing.T) {
	caller := newFakeCaller()
	poolABI, err := V3PoolABI()
	require.NoError(t, err)
	caller.set(t, poolAddr, poolABI, "ticks", "ticks:-197010",
		mustBig(t, "1000"), mustBig(t, "-250"), mustBig(t, "700"), mustBig(t, "900"),
		big.NewInt(0), big.NewInt(0), uint32(0), true)
	caller.set(t, poolAddr, poolABI, "ticks", "ticks:-196990",
		big.NewInt(0), big.NewInt(0), big.NewInt(0), big.NewInt(0),
		big.NewInt(0), big.NewInt(0), uint32(0), false)

	reader := NewReader(caller, 1, nil, nil)
	snap, err := reader.ReadTick(context.Background(), poolAddr, -197010, nil)
	require.NoError(t, err)
	assert.True(t, snap.Initialized)
	assert.Equal(t, "700", snap.FeeGrowthOutside0X128.Dec())
	assert.Equal(t, "900", snap.FeeGrowthOutside1X128.Dec())
	assert.Equal(t, "1000", snap.LiquidityGross.Dec())
	assert.Equal(t, "-250", snap.LiquidityNet)

	snap, err = reader.ReadTick(context.Background(), poolAddr, -196990, nil)
	require.NoError(t, err)
	assert.False(t, snap.Initialized)
	assert.True(t, snap.FeeGrowthOutside0X128.IsZero())
	assert.Equal(t, int32(-196990), snap.Tick)
}

func TestFetchTokenMetaBytes32Fallback(t *testing.T) {
	caller := newFakeCaller()
	stringABI, err := erc20String.get()
	require.NoError(t, err)
	bytes32ABI, err := erc20Bytes32.get()
	require.NoError(t, err)

	var symbol, name [32]byte
	copy(symbol[:], "MKR")
	copy(name[:], "Maker")
	caller.set(t, mkrAddr, stringABI, "decimals", "", uint8(18))
	caller.set(t, mkrAddr, bytes32ABI, "symbol", "", symbol)
	caller.set(t, mkrAddr, bytes32ABI, "name", "", name)

	reader := NewReader(caller, 1, nil, nil)
	meta, err := reader.FetchTokenMeta(context.Background(), mkrAddr)
	require.NoError(t, err)
	assert.Equal(t, "MKR", meta.Symbol)
	assert.Equal(t, "Maker", meta.Name)
	assert.Equal(t, uint8(18), meta.Decimals)
}

func TestReadLatestRound(t *testing.T) {
	caller := newFakeCaller()
	feedABI, err := AggregatorV3ABI()
	require.NoError(t, err)
	caller.set(t, feedAddr, feedABI, "decimals", "", uint8(8))
	caller.set(t, feedAddr, feedABI, "latestRoundData", "",
		big.NewInt(1), big.NewInt(312345000000), big.NewInt(1700000000), big.NewInt(1700000100), big.NewInt(1))

	reader := NewReader(caller, 1, nil, nil)
	round, err := reader.ReadLatestRound(context.Background(), feedAddr)
	require.NoError(t, err)
	assert.InDelta(t, 3123.45, round.Price(), 1e-9)
	assert.Equal(t, int64(1700000100), round.UpdatedAt.Unix())
}

func TestInt24FromBig(t *testing.T) {
	v, err := int24FromBig(big.NewInt(-887272))
	require.NoError(t, err)
	assert.Equal(t, int32(-887272), v)

	_, err = int24FromBig(big.NewInt(1 << 23))
	assert.Error(t, err)
}
