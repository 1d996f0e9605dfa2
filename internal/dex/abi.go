package dex

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const routerABIJSON = `[
  {
    "inputs": [
      {"internalType": "uint256", "name": "amountIn", "type": "uint256"},
      {"internalType": "address[]", "name": "path", "type": "address[]"}
    ],
    "name": "getAmountsOut",
    "outputs": [{"internalType": "uint256[]", "name": "amounts", "type": "uint256[]"}],
    "stateMutability": "view",
    "type": "function"
  }
]`

const erc20ABIStringJSON = `[
  {"inputs": [], "name": "decimals", "outputs": [{"type": "uint8"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "symbol", "outputs": [{"type": "string"}], "stateMutability": "view", "type": "function"}
]`

// Some older tokens (MKR, SAI) return symbol as bytes32.
const erc20ABIBytes32JSON = `[
  {"inputs": [], "name": "symbol", "outputs": [{"type": "bytes32"}], "stateMutability": "view", "type": "function"}
]`

var (
	routerABI     abi.ABI
	routerABIOnce sync.Once
	routerABIErr  error

	erc20String     abi.ABI
	erc20StringOnce sync.Once
	erc20StringErr  error

	erc20Bytes32     abi.ABI
	erc20Bytes32Once sync.Once
	erc20Bytes32Err  error
)

// RouterABI returns the parsed Uniswap V2 router ABI subset.
func RouterABI() (abi.ABI, error) {
	routerABIOnce.Do(func() {
		routerABI, routerABIErr = abi.JSON(strings.NewReader(routerABIJSON))
	})
	return routerABI, routerABIErr
}

func erc20StringABI() (abi.ABI, error) {
	erc20StringOnce.Do(func() {
		erc20String, erc20StringErr = abi.JSON(strings.NewReader(erc20ABIStringJSON))
	})
	return erc20String, erc20StringErr
}

func erc20Bytes32ABI() (abi.ABI, error) {
	erc20Bytes32Once.Do(func() {
		erc20Bytes32, erc20Bytes32Err = abi.JSON(strings.NewReader(erc20ABIBytes32JSON))
	})
	return erc20Bytes32, erc20Bytes32Err
}
