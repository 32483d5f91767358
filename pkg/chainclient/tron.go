package chainclient

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"math/big"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
)

// Transfer(address,address,uint256) topic, hex-encoded the way
// trongrid reports log topics.
const tronTransferTopic = "ddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef"

// TronClient talks to a trongrid-compatible HTTP API. Read-only: it
// reads TRC-20 balances and transaction facts, nothing else.
type TronClient struct {
	http *resty.Client
}

func NewTronClient(apiURL, apiKey string) *TronClient {
	client := resty.New().
		SetBaseURL(apiURL).
		SetTimeout(30 * time.Second).
		SetHeader("Content-Type", "application/json")
	if apiKey != "" {
		client.SetHeader("TRON-PRO-API-KEY", apiKey)
	}
	return &TronClient{http: client}
}

func (c *TronClient) ValidAddress(addr string) bool {
	_, err := TronBase58ToHex(addr)
	return err == nil
}

func (c *TronClient) TokenBalance(ctx context.Context, tokenAddress, holder string) (*big.Int, error) {
	holderHex, err := TronBase58ToHex(holder)
	if err != nil {
		return nil, errors.Wrap(err, "holder address")
	}

	if tokenAddress == "" {
		return c.trxBalance(ctx, holderHex)
	}

	contractHex, err := TronBase58ToHex(tokenAddress)
	if err != nil {
		return nil, errors.Wrap(err, "token address")
	}

	var result struct {
		ConstantResult []string `json:"constant_result"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]interface{}{
			"owner_address":     holderHex,
			"contract_address":  contractHex,
			"function_selector": "balanceOf(address)",
			"parameter":         strings.Repeat("0", 24) + holderHex[2:],
			"visible":           false,
		}).
		SetResult(&result).
		Post("/wallet/triggerconstantcontract")
	if err != nil {
		return nil, errors.Wrap(err, "triggerconstantcontract")
	}
	if resp.IsError() {
		return nil, errors.Errorf("triggerconstantcontract status %d", resp.StatusCode())
	}
	if len(result.ConstantResult) == 0 {
		return nil, errors.New("empty constant_result")
	}

	balance, ok := new(big.Int).SetString(result.ConstantResult[0], 16)
	if !ok {
		return nil, errors.Errorf("bad balance hex %q", result.ConstantResult[0])
	}
	return balance, nil
}

func (c *TronClient) trxBalance(ctx context.Context, addressHex string) (*big.Int, error) {
	var result struct {
		Balance int64 `json:"balance"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]interface{}{"address": addressHex, "visible": false}).
		SetResult(&result).
		Post("/wallet/getaccount")
	if err != nil {
		return nil, errors.Wrap(err, "getaccount")
	}
	if resp.IsError() {
		return nil, errors.Errorf("getaccount status %d", resp.StatusCode())
	}
	return big.NewInt(result.Balance), nil
}

type tronTxInfo struct {
	ID          string `json:"id"`
	BlockNumber uint64 `json:"blockNumber"`
	Receipt     struct {
		Result string `json:"result"`
	} `json:"receipt"`
	Log []struct {
		Address string   `json:"address"`
		Topics  []string `json:"topics"`
		Data    string   `json:"data"`
	} `json:"log"`
}

func (c *TronClient) TransactionProof(ctx context.Context, txHash string) (*TxProof, error) {
	var info tronTxInfo
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]interface{}{"value": strings.TrimPrefix(txHash, "0x")}).
		SetResult(&info).
		Post("/wallet/gettransactioninfobyid")
	if err != nil {
		return nil, errors.Wrap(err, "gettransactioninfobyid")
	}
	if resp.IsError() {
		return nil, errors.Errorf("gettransactioninfobyid status %d", resp.StatusCode())
	}
	if info.ID == "" || info.BlockNumber == 0 {
		return &TxProof{Found: false}, nil
	}

	head, err := c.headBlock(ctx)
	if err != nil {
		return nil, err
	}

	proof := &TxProof{
		Found:       true,
		BlockNumber: info.BlockNumber,
		// SUCCESS for ordinary transfers; anything else is a revert.
		Reverted: info.Receipt.Result != "" && info.Receipt.Result != "SUCCESS",
	}
	if head >= info.BlockNumber {
		proof.Confirmations = head - info.BlockNumber + 1
	}

	for _, log := range info.Log {
		if len(log.Topics) != 3 || !strings.EqualFold(log.Topics[0], tronTransferTopic) {
			continue
		}
		if len(log.Topics[1]) != 64 || len(log.Topics[2]) != 64 {
			continue
		}
		value, ok := new(big.Int).SetString(log.Data, 16)
		if !ok {
			continue
		}
		// trongrid reports the contract address as the bare 20-byte
		// body; a 21-byte form already carries the 0x41 prefix.
		token := log.Address
		if len(token) == 40 {
			token = "41" + token
		}
		proof.Transfers = append(proof.Transfers, TokenTransfer{
			Token: tronTopicAddress(token),
			From:  tronTopicAddress("41" + log.Topics[1][24:]),
			To:    tronTopicAddress("41" + log.Topics[2][24:]),
			Value: value,
		})
	}

	if err := c.fillNativeLeg(ctx, txHash, proof); err != nil {
		return nil, err
	}
	return proof, nil
}

// fillNativeLeg reads the raw transaction for the TRX value transfer,
// if the transaction carried one.
func (c *TronClient) fillNativeLeg(ctx context.Context, txHash string, proof *TxProof) error {
	var tx struct {
		RawData struct {
			Contract []struct {
				Type      string `json:"type"`
				Parameter struct {
					Value json.RawMessage `json:"value"`
				} `json:"parameter"`
			} `json:"contract"`
		} `json:"raw_data"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]interface{}{"value": strings.TrimPrefix(txHash, "0x"), "visible": true}).
		SetResult(&tx).
		Post("/wallet/gettransactionbyid")
	if err != nil {
		return errors.Wrap(err, "gettransactionbyid")
	}
	if resp.IsError() {
		return errors.Errorf("gettransactionbyid status %d", resp.StatusCode())
	}

	for _, contract := range tx.RawData.Contract {
		if contract.Type != "TransferContract" {
			continue
		}
		var value struct {
			Amount    int64  `json:"amount"`
			ToAddress string `json:"to_address"`
		}
		if err := json.Unmarshal(contract.Parameter.Value, &value); err != nil {
			continue
		}
		proof.NativeTo = value.ToAddress
		proof.NativeValue = big.NewInt(value.Amount)
		return nil
	}
	proof.NativeValue = big.NewInt(0)
	return nil
}

func (c *TronClient) headBlock(ctx context.Context) (uint64, error) {
	var block struct {
		BlockHeader struct {
			RawData struct {
				Number uint64 `json:"number"`
			} `json:"raw_data"`
		} `json:"block_header"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&block).
		Post("/wallet/getnowblock")
	if err != nil {
		return 0, errors.Wrap(err, "getnowblock")
	}
	if resp.IsError() {
		return 0, errors.Errorf("getnowblock status %d", resp.StatusCode())
	}
	return block.BlockHeader.RawData.Number, nil
}

// tronTopicAddress renders a 21-byte hex address in base58check form,
// falling back to the hex when the input is malformed.
func tronTopicAddress(addrHex string) string {
	b58, err := TronHexToBase58(addrHex)
	if err != nil {
		return addrHex
	}
	return b58
}

// TronBase58ToHex decodes a base58check Tron address into its 21-byte
// hex form (0x41 prefix plus 20-byte body), verifying the checksum.
func TronBase58ToHex(address string) (string, error) {
	decoded, err := base58.Decode(strings.TrimSpace(address))
	if err != nil {
		return "", errors.Wrapf(err, "decode base58 address %q", address)
	}
	if len(decoded) != 25 {
		return "", errors.Errorf("address %q has %d bytes, want 25", address, len(decoded))
	}
	raw, checksum := decoded[:21], decoded[21:]
	if raw[0] != 0x41 {
		return "", errors.Errorf("address %q missing 0x41 prefix", address)
	}
	first := sha256.Sum256(raw)
	second := sha256.Sum256(first[:])
	for i := 0; i < 4; i++ {
		if checksum[i] != second[i] {
			return "", errors.Errorf("address %q checksum mismatch", address)
		}
	}
	return hex.EncodeToString(raw), nil
}

// TronHexToBase58 is the inverse of TronBase58ToHex.
func TronHexToBase58(addressHex string) (string, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(addressHex, "0x"))
	if err != nil {
		return "", errors.Wrapf(err, "decode hex address %q", addressHex)
	}
	if len(raw) != 21 || raw[0] != 0x41 {
		return "", errors.Errorf("hex address %q is not a 21-byte tron address", addressHex)
	}
	first := sha256.Sum256(raw)
	second := sha256.Sum256(first[:])
	return base58.Encode(append(raw, second[:4]...)), nil
}
