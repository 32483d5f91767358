// Package registry holds the static table of supported chains. The
// table is built once at startup and read-only afterwards; consumers
// receive the value by reference.
package registry

import (
	"fmt"
	"strings"

	"payrequest_back/models"
	"payrequest_back/pkg/apperr"
)

type ChainRegistry struct {
	chains  map[string]models.ChainDescriptor
	aliases map[string]string
}

// New builds a registry from descriptors. Every alias (and every
// canonical id) must resolve to exactly one chain.
func New(descriptors []models.ChainDescriptor) (*ChainRegistry, error) {
	r := &ChainRegistry{
		chains:  make(map[string]models.ChainDescriptor, len(descriptors)),
		aliases: make(map[string]string),
	}
	for _, d := range descriptors {
		id := normalize(d.ID)
		if id == "" {
			return nil, fmt.Errorf("chain descriptor with empty id")
		}
		if _, ok := r.chains[id]; ok {
			return nil, fmt.Errorf("duplicate chain id %q", d.ID)
		}
		// Config loaders lowercase map keys; lookups are by upper-cased
		// symbol.
		tokens := make(map[string]models.TokenConfig, len(d.Tokens))
		for symbol, token := range d.Tokens {
			tokens[strings.ToUpper(strings.TrimSpace(symbol))] = token
		}
		d.Tokens = tokens
		r.chains[id] = d
		for _, alias := range append([]string{d.ID}, d.Aliases...) {
			a := normalize(alias)
			if existing, ok := r.aliases[a]; ok && existing != id {
				return nil, fmt.Errorf("alias %q maps to both %q and %q", alias, existing, id)
			}
			r.aliases[a] = id
		}
	}
	return r, nil
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Resolve maps a user-supplied network name or alias to the canonical
// chain id.
func (r *ChainRegistry) Resolve(nameOrAlias string) (string, error) {
	id, ok := r.aliases[normalize(nameOrAlias)]
	if !ok {
		return "", apperr.New(apperr.CodeUnsupportedChain,
			fmt.Sprintf("unsupported chain %q", strings.TrimSpace(nameOrAlias)))
	}
	return id, nil
}

func (r *ChainRegistry) Descriptor(chain string) (models.ChainDescriptor, error) {
	id, err := r.Resolve(chain)
	if err != nil {
		return models.ChainDescriptor{}, err
	}
	return r.chains[id], nil
}

// TokenAddress resolves a token symbol on a chain. The empty address
// with a nil error means the chain's native currency.
func (r *ChainRegistry) TokenAddress(chain, symbol string) (string, error) {
	d, err := r.Descriptor(chain)
	if err != nil {
		return "", err
	}
	sym := strings.ToUpper(strings.TrimSpace(symbol))
	if sym == strings.ToUpper(d.NativeSymbol) {
		return "", nil
	}
	t, ok := d.Tokens[sym]
	if !ok {
		return "", apperr.New(apperr.CodeUnsupportedToken,
			fmt.Sprintf("token %q is not configured on chain %q", sym, d.ID))
	}
	return t.Address, nil
}

// Token returns the full token config; the native currency is
// synthesized with an empty address.
func (r *ChainRegistry) Token(chain, symbol string) (models.TokenConfig, error) {
	d, err := r.Descriptor(chain)
	if err != nil {
		return models.TokenConfig{}, err
	}
	sym := strings.ToUpper(strings.TrimSpace(symbol))
	if sym == strings.ToUpper(d.NativeSymbol) {
		return models.TokenConfig{Decimals: d.NativeDecimals}, nil
	}
	t, ok := d.Tokens[sym]
	if !ok {
		return models.TokenConfig{}, apperr.New(apperr.CodeUnsupportedToken,
			fmt.Sprintf("token %q is not configured on chain %q", sym, d.ID))
	}
	return t, nil
}

func (r *ChainRegistry) ExplorerURL(chain string) (string, error) {
	d, err := r.Descriptor(chain)
	if err != nil {
		return "", err
	}
	return d.ExplorerURL, nil
}

func (r *ChainRegistry) RPCEndpoint(chain string) (string, error) {
	d, err := r.Descriptor(chain)
	if err != nil {
		return "", err
	}
	return d.RPCEndpoint, nil
}

// Chains lists the canonical ids of all configured chains.
func (r *ChainRegistry) Chains() []string {
	ids := make([]string, 0, len(r.chains))
	for id := range r.chains {
		ids = append(ids, id)
	}
	return ids
}
