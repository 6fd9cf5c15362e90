package model

import "strings"

// Token captures ERC20 metadata for one chain.
type Token struct {
	Address  string `json:"address"`
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Decimals uint8  `json:"decimals"`
	ChainID  uint64 `json:"chain_id"`
}

// Less orders tokens by lowercase address.
func (t Token) Less(other Token) bool {
	return strings.ToLower(t.Address) < strings.ToLower(other.Address)
}
