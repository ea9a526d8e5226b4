// Package callee holds the in-process targets of Call actions.
package callee

import (
	"OptionLedger/internal/controller"
	"OptionLedger/internal/ledger"
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// KindTransfer names the Transfer callee in configuration.
const KindTransfer = "transfer"

// Registry maps call target addresses to callees.
type Registry struct {
	mu      sync.RWMutex
	callees map[common.Address]controller.Callee
}

func NewRegistry() *Registry {
	return &Registry{callees: make(map[common.Address]controller.Callee)}
}

// Register binds target to addr. An address can be bound once.
func (r *Registry) Register(addr common.Address, target controller.Callee) error {
	if addr == (common.Address{}) {
		return fmt.Errorf("callee address is the null identity")
	}
	if target == nil {
		return fmt.Errorf("callee %s: nil target", addr.Hex())
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.callees[addr]; ok {
		return fmt.Errorf("callee %s already registered", addr.Hex())
	}
	r.callees[addr] = target
	return nil
}

func (r *Registry) Callee(addr common.Address) (controller.Callee, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.callees[addr]
	return c, ok
}

// Addresses returns the registered addresses in ascending order.
func (r *Registry) Addresses() []common.Address {
	r.mu.RLock()
	out := make([]common.Address, 0, len(r.callees))
	for a := range r.callees {
		out = append(out, a)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Cmp(out[j]) < 0 })
	return out
}

// New builds the callee named by kind over the shared ledger.
func New(kind string, book *ledger.BalanceTracker) (controller.Callee, error) {
	switch kind {
	case KindTransfer:
		return NewTransfer(book), nil
	default:
		return nil, fmt.Errorf("unknown callee kind %q", kind)
	}
}
