package model

// TokenMeta captures the ERC20 fields needed to scale quoted amounts.
type TokenMeta struct {
	Address  string `json:"address"`
	Decimals uint8  `json:"decimals"`
	Symbol   string `json:"symbol"`
}
