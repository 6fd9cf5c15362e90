package config

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"rangeScope/internal/model"
)

const subgraphGateway = "https://gateway.thegraph.com/api/subgraphs/id/"

//go:embed chains.json
var chainsJSON []byte

// ChainConfig describes one supported network.
type ChainConfig struct {
	ID            uint64        `json:"id"`
	Name          string        `json:"name"`
	RPCURL        string        `json:"rpc_url"`
	SubgraphID    string        `json:"subgraph_id"`
	SubgraphURL   string        `json:"subgraph_url"`
	NativeSymbol  string        `json:"native_symbol"`
	BlockTimeMS   int64         `json:"block_time_ms"`
	Explorer      string        `json:"explorer"`
	NativeUSDFeed string        `json:"native_usd_feed"`
	Tokens        []model.Token `json:"tokens"`
}

// BlockTime returns the average block interval.
func (c ChainConfig) BlockTime() time.Duration {
	if c.BlockTimeMS <= 0 {
		return 2 * time.Second
	}
	return time.Duration(c.BlockTimeMS) * time.Millisecond
}

// Subgraph returns the indexed-query endpoint of the chain.
func (c ChainConfig) Subgraph() string {
	if c.SubgraphURL != "" {
		return c.SubgraphURL
	}
	if c.SubgraphID == "" {
		return ""
	}
	return subgraphGateway + c.SubgraphID
}

// TokenBySymbol looks up a well-known token.
func (c ChainConfig) TokenBySymbol(symbol string) (model.Token, bool) {
	for _, token := range c.Tokens {
		if strings.EqualFold(token.Symbol, symbol) {
			return token, true
		}
	}
	return model.Token{}, false
}

// TokenByAddress looks up a well-known token.
func (c ChainConfig) TokenByAddress(address string) (model.Token, bool) {
	for _, token := range c.Tokens {
		if strings.EqualFold(token.Address, address) {
			return token, true
		}
	}
	return model.Token{}, false
}

// Chains is the set of configured networks keyed by chain id.
type Chains map[uint64]ChainConfig

// DefaultChains returns the embedded chain table.
func DefaultChains() (Chains, error) {
	var list []ChainConfig
	if err := json.Unmarshal(chainsJSON, &list); err != nil {
		return nil, fmt.Errorf("parse embedded chains: %w", err)
	}
	chains := make(Chains, len(list))
	for _, chain := range list {
		for i := range chain.Tokens {
			chain.Tokens[i].ChainID = chain.ID
		}
		chains[chain.ID] = chain
	}
	return chains, nil
}

// Get returns the chain or an error naming the supported ids.
func (c Chains) Get(id uint64) (ChainConfig, error) {
	chain, ok := c[id]
	if !ok {
		return ChainConfig{}, fmt.Errorf("unsupported chain %d (supported: %s)", id, c.idList())
	}
	return chain, nil
}

// IDs returns the configured chain ids in ascending order.
func (c Chains) IDs() []uint64 {
	ids := make([]uint64, 0, len(c))
	for id := range c {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (c Chains) idList() string {
	parts := make([]string, 0, len(c))
	for _, id := range c.IDs() {
		parts = append(parts, strconv.FormatUint(id, 10))
	}
	return strings.Join(parts, ", ")
}

// applyOverrides replaces per-chain endpoints from "chainId=value" maps.
func (c Chains) applyOverrides(rpc, subgraph map[string]string) error {
	for key, url := range rpc {
		id, err := strconv.ParseUint(key, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid chain id in rpc override: %s", key)
		}
		chain := c[id]
		chain.ID = id
		chain.RPCURL = url
		c[id] = chain
	}
	for key, url := range subgraph {
		id, err := strconv.ParseUint(key, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid chain id in subgraph override: %s", key)
		}
		chain := c[id]
		chain.ID = id
		chain.SubgraphURL = url
		c[id] = chain
	}
	return nil
}
