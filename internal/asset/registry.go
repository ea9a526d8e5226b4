// Package asset holds static token metadata: display symbol and native decimals.
package asset

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Info describes one token.
type Info struct {
	Address  common.Address `yaml:"address" json:"address"`
	Symbol   string         `yaml:"symbol" json:"symbol"`
	Decimals int            `yaml:"decimals" json:"decimals"`
}

// Registry maps token addresses to their metadata.
type Registry struct {
	mu     sync.RWMutex
	assets map[common.Address]Info
}

func NewRegistry(infos ...Info) *Registry {
	r := &Registry{assets: make(map[common.Address]Info, len(infos))}
	for _, info := range infos {
		r.assets[info.Address] = info
	}
	return r
}

// Register adds or replaces an asset.
func (r *Registry) Register(info Info) error {
	if info.Address == (common.Address{}) {
		return fmt.Errorf("asset %q has a null address", info.Symbol)
	}
	if info.Decimals < 0 || info.Decimals > 77 {
		return fmt.Errorf("asset %q has invalid decimals %d", info.Symbol, info.Decimals)
	}
	r.mu.Lock()
	r.assets[info.Address] = info
	r.mu.Unlock()
	return nil
}

func (r *Registry) Lookup(addr common.Address) (Info, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.assets[addr]
	return info, ok
}

// Decimals returns the native precision of an asset.
func (r *Registry) Decimals(addr common.Address) (int, error) {
	info, ok := r.Lookup(addr)
	if !ok {
		return 0, fmt.Errorf("unknown asset %s", addr.Hex())
	}
	return info.Decimals, nil
}

// Symbol returns the display symbol, or the hex address for unknown assets.
func (r *Registry) Symbol(addr common.Address) string {
	if info, ok := r.Lookup(addr); ok {
		return info.Symbol
	}
	return addr.Hex()
}
