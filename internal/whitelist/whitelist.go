// Package whitelist tracks which products, collaterals, otokens and callees the controller accepts.
package whitelist

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

type product struct {
	underlying common.Address
	strike     common.Address
	collateral common.Address
	isPut      bool
}

type Whitelist struct {
	mu          sync.RWMutex
	products    map[product]bool
	collaterals map[common.Address]bool
	otokens     map[common.Address]bool
	callees     map[common.Address]bool
}

func New() *Whitelist {
	return &Whitelist{
		products:    make(map[product]bool),
		collaterals: make(map[common.Address]bool),
		otokens:     make(map[common.Address]bool),
		callees:     make(map[common.Address]bool),
	}
}

func (w *Whitelist) set(m map[common.Address]bool, addr common.Address, on bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if on {
		m[addr] = true
	} else {
		delete(m, addr)
	}
}

func (w *Whitelist) get(m map[common.Address]bool, addr common.Address) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return m[addr]
}

// === Products ===

func (w *Whitelist) WhitelistProduct(underlying, strike, collateral common.Address, isPut bool) {
	w.mu.Lock()
	w.products[product{underlying, strike, collateral, isPut}] = true
	w.mu.Unlock()
}

func (w *Whitelist) BlacklistProduct(underlying, strike, collateral common.Address, isPut bool) {
	w.mu.Lock()
	delete(w.products, product{underlying, strike, collateral, isPut})
	w.mu.Unlock()
}

func (w *Whitelist) IsWhitelistedProduct(underlying, strike, collateral common.Address, isPut bool) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.products[product{underlying, strike, collateral, isPut}]
}

// === Collaterals ===

func (w *Whitelist) WhitelistCollateral(asset common.Address) { w.set(w.collaterals, asset, true) }
func (w *Whitelist) BlacklistCollateral(asset common.Address) { w.set(w.collaterals, asset, false) }
func (w *Whitelist) IsWhitelistedCollateral(asset common.Address) bool {
	return w.get(w.collaterals, asset)
}

// === Otokens ===

func (w *Whitelist) WhitelistOtoken(otoken common.Address) { w.set(w.otokens, otoken, true) }
func (w *Whitelist) BlacklistOtoken(otoken common.Address) { w.set(w.otokens, otoken, false) }
func (w *Whitelist) IsWhitelistedOtoken(otoken common.Address) bool {
	return w.get(w.otokens, otoken)
}

// === Callees ===

func (w *Whitelist) WhitelistCallee(callee common.Address) { w.set(w.callees, callee, true) }
func (w *Whitelist) BlacklistCallee(callee common.Address) { w.set(w.callees, callee, false) }
func (w *Whitelist) IsWhitelistedCallee(callee common.Address) bool {
	return w.get(w.callees, callee)
}
