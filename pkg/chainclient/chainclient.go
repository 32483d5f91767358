// Package chainclient is the read-only boundary to chain RPC
// endpoints. This service never holds keys and never broadcasts; it
// only reads balances and transaction facts.
package chainclient

import (
	"context"
	"math/big"
)

// TokenTransfer is one decoded Transfer-shaped event from a receipt.
// Addresses are in the chain's presentation format.
type TokenTransfer struct {
	Token string
	From  string
	To    string
	Value *big.Int
}

// TxProof is everything the verifier needs about one transaction.
type TxProof struct {
	Found         bool
	Reverted      bool
	BlockNumber   uint64
	Confirmations uint64

	// Native-currency leg, in the chain's smallest unit.
	NativeTo    string
	NativeValue *big.Int

	Transfers []TokenTransfer
}

// ChainReader abstracts one chain's RPC endpoint. Implementations must
// honor the context deadline; a hung upstream surfaces as an error,
// never a hang.
type ChainReader interface {
	// TokenBalance reads the balance of tokenAddress held by holder.
	TokenBalance(ctx context.Context, tokenAddress, holder string) (*big.Int, error)

	// TransactionProof fetches the receipt and decoded transfers for a
	// transaction hash. A missing (not yet mined) transaction returns
	// Found=false with a nil error.
	TransactionProof(ctx context.Context, txHash string) (*TxProof, error)

	// ValidAddress reports whether addr is well formed for this chain.
	ValidAddress(addr string) bool
}
