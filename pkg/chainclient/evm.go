package chainclient

import (
	"context"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/pkg/errors"
)

// Method id of balanceOf(address).
const balanceOfSelector = "70a08231"

// keccak256("Transfer(address,address,uint256)")
var transferTopic = common.BytesToHash(crypto.Keccak256([]byte("Transfer(address,address,uint256)")))

type EVMClient struct {
	client *ethclient.Client
}

func NewEVMClient(rpcURL string) (*EVMClient, error) {
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, errors.Wrapf(err, "dial evm rpc %s", rpcURL)
	}
	return &EVMClient{client: client}, nil
}

func (c *EVMClient) ValidAddress(addr string) bool {
	return common.IsHexAddress(addr)
}

func (c *EVMClient) TokenBalance(ctx context.Context, tokenAddress, holder string) (*big.Int, error) {
	if tokenAddress == "" {
		return c.client.BalanceAt(ctx, common.HexToAddress(holder), nil)
	}

	selector := common.Hex2Bytes(balanceOfSelector)
	arg := common.LeftPadBytes(common.HexToAddress(holder).Bytes(), 32)
	contract := common.HexToAddress(tokenAddress)

	out, err := c.client.CallContract(ctx, ethereum.CallMsg{
		To:   &contract,
		Data: append(selector, arg...),
	}, nil)
	if err != nil {
		return nil, errors.Wrap(err, "balanceOf call")
	}
	if len(out) == 0 {
		return nil, errors.Errorf("empty balanceOf result from %s", tokenAddress)
	}
	return new(big.Int).SetBytes(out), nil
}

func (c *EVMClient) TransactionProof(ctx context.Context, txHash string) (*TxProof, error) {
	hash := common.HexToHash(txHash)

	receipt, err := c.client.TransactionReceipt(ctx, hash)
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return &TxProof{Found: false}, nil
		}
		return nil, errors.Wrap(err, "fetch receipt")
	}

	head, err := c.client.BlockNumber(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "fetch head block")
	}

	proof := &TxProof{
		Found:       true,
		Reverted:    receipt.Status == 0,
		BlockNumber: receipt.BlockNumber.Uint64(),
	}
	if head >= proof.BlockNumber {
		proof.Confirmations = head - proof.BlockNumber + 1
	}

	tx, _, err := c.client.TransactionByHash(ctx, hash)
	if err != nil {
		return nil, errors.Wrap(err, "fetch transaction")
	}
	if tx.To() != nil {
		proof.NativeTo = tx.To().Hex()
	}
	proof.NativeValue = tx.Value()

	for _, log := range receipt.Logs {
		if len(log.Topics) != 3 || log.Topics[0] != transferTopic {
			continue
		}
		proof.Transfers = append(proof.Transfers, TokenTransfer{
			Token: log.Address.Hex(),
			From:  common.BytesToAddress(log.Topics[1].Bytes()).Hex(),
			To:    common.BytesToAddress(log.Topics[2].Bytes()).Hex(),
			Value: new(big.Int).SetBytes(log.Data),
		})
	}
	return proof, nil
}

// SameAddress compares two addresses case-insensitively. EVM addresses
// differ only in checksum casing; Tron base58 addresses are
// case-sensitive but equal strings still match.
func SameAddress(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

func (c *EVMClient) Close() {
	c.client.Close()
}
