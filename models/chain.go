package models

// ChainFamily selects which chain client serves a descriptor.
type ChainFamily string

const (
	FamilyEVM  ChainFamily = "evm"
	FamilyTron ChainFamily = "tron"
)

// TokenConfig describes one token configured on a chain. Address is
// empty for the chain's native currency.
type TokenConfig struct {
	Address     string `mapstructure:"address"`
	Decimals    int    `mapstructure:"decimals"`
	CoingeckoID string `mapstructure:"coingecko_id"`
}

// ChainDescriptor is the static per-chain entry the registry is built
// from. Aliases must be unique across all descriptors.
type ChainDescriptor struct {
	ID             string                 `mapstructure:"id"`
	Aliases        []string               `mapstructure:"aliases"`
	ChainID        int64                  `mapstructure:"chain_id"`
	Testnet        bool                   `mapstructure:"testnet"`
	Family         ChainFamily            `mapstructure:"family"`
	RPCEndpoint    string                 `mapstructure:"rpc_endpoint"`
	ExplorerURL    string                 `mapstructure:"explorer_url"`
	NativeSymbol   string                 `mapstructure:"native_symbol"`
	NativeDecimals int                    `mapstructure:"native_decimals"`
	Tokens         map[string]TokenConfig `mapstructure:"tokens"`
}
