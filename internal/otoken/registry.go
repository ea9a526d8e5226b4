package otoken

import (
	"OptionLedger/internal/ledger"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Registry holds created otoken series and their holder balances.
// Balances live in the shared ledger so that a batch rollback covers them.
type Registry struct {
	mu      sync.RWMutex
	otokens map[common.Address]*Otoken
	book    *ledger.BalanceTracker
}

func NewRegistry(book *ledger.BalanceTracker) *Registry {
	return &Registry{
		otokens: make(map[common.Address]*Otoken),
		book:    book,
	}
}

func (r *Registry) add(o *Otoken) {
	r.mu.Lock()
	r.otokens[o.Address] = o
	r.mu.Unlock()
}

// Otoken returns a copy of the series at addr.
func (r *Registry) Otoken(addr common.Address) (*Otoken, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.otokens[addr]
	if !ok {
		return nil, false
	}
	cp := *o
	cp.StrikePrice = new(big.Int).Set(o.StrikePrice)
	return &cp, true
}

// All returns every created series.
func (r *Registry) All() []*Otoken {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Otoken, 0, len(r.otokens))
	for _, o := range r.otokens {
		out = append(out, o)
	}
	return out
}

// Mint issues amount of otoken to a holder.
func (r *Registry) Mint(otoken, to common.Address, amount *big.Int) error {
	return r.book.Transfer(ledger.ExternalAccount(otoken), ledger.HolderAccount(to, otoken), amount, ledger.JournalTypeMint)
}

// Burn destroys amount of otoken held by a holder.
func (r *Registry) Burn(otoken, from common.Address, amount *big.Int) error {
	return r.book.Transfer(ledger.HolderAccount(from, otoken), ledger.ExternalAccount(otoken), amount, ledger.JournalTypeBurn)
}

// BurnFromPool destroys otokens held in pool custody, used when a vault's long is settled.
func (r *Registry) BurnFromPool(otoken common.Address, amount *big.Int) error {
	return r.book.Transfer(ledger.PoolAccount(otoken), ledger.ExternalAccount(otoken), amount, ledger.JournalTypePoolBurn)
}

func (r *Registry) BalanceOf(otoken, holder common.Address) *big.Int {
	return r.book.HolderBalance(holder, otoken)
}

// TotalSupply is everything minted and not yet burned.
func (r *Registry) TotalSupply(otoken common.Address) *big.Int {
	ext := r.book.GetBalance(ledger.ExternalAccount(otoken))
	return ext.Neg(ext)
}
