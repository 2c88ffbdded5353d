package sweepcore

import (
	"crypto/ecdsa"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Build legacy (gas-price) transaction. The chain is Optimism-compatible and
// the node supplies the gas price via eth_gasPrice.
func buildLegacyTx(nonce uint64, to common.Address, value *big.Int, gasLimit uint64, gasPrice *big.Int, data []byte) *types.Transaction {
	lt := &types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    new(big.Int).Set(value),
		Gas:      gasLimit,
		GasPrice: new(big.Int).Set(gasPrice),
		Data:     data,
	}
	return types.NewTx(lt)
}

// Sign transaction with latest signer for given chain ID.
func signTx(tx *types.Transaction, chain *big.Int, prv *ecdsa.PrivateKey) (*types.Transaction, error) {
	signer := types.LatestSignerForChainID(chain)
	return types.SignTx(tx, signer, prv)
}
