// Package oracle stores live and expiry prices for assets, with the pricer
// locking period and disputer window that gate when an expiry price is final.
// All prices carry 8 decimals.
package oracle

import (
	"OptionLedger/internal/reason"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

type storedPrice struct {
	price      *big.Int
	reportedAt time.Time
}

type Oracle struct {
	mu  sync.RWMutex
	now func() time.Time

	disputer      common.Address
	pricers       map[common.Address]common.Address // asset -> pricer
	lockingPeriod map[common.Address]time.Duration  // pricer -> period
	disputePeriod map[common.Address]time.Duration  // pricer -> period
	stablePrices  map[common.Address]*big.Int
	spotPrices    map[common.Address]*big.Int
	expiryPrices  map[common.Address]map[int64]storedPrice
}

func New(now func() time.Time) *Oracle {
	if now == nil {
		now = time.Now
	}
	return &Oracle{
		now:           now,
		pricers:       make(map[common.Address]common.Address),
		lockingPeriod: make(map[common.Address]time.Duration),
		disputePeriod: make(map[common.Address]time.Duration),
		stablePrices:  make(map[common.Address]*big.Int),
		spotPrices:    make(map[common.Address]*big.Int),
		expiryPrices:  make(map[common.Address]map[int64]storedPrice),
	}
}

// === Configuration ===

func (o *Oracle) SetAssetPricer(asset, pricer common.Address) error {
	if pricer == (common.Address{}) {
		return reason.Wrap(reason.ErrNullAddress, "pricer")
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.stablePrices[asset]; ok {
		return reason.Wrap(reason.ErrStablePriceConflict, "%s has a stable price", asset.Hex())
	}
	o.pricers[asset] = pricer
	return nil
}

func (o *Oracle) SetLockingPeriod(pricer common.Address, period time.Duration) {
	o.mu.Lock()
	o.lockingPeriod[pricer] = period
	o.mu.Unlock()
}

func (o *Oracle) SetDisputePeriod(pricer common.Address, period time.Duration) {
	o.mu.Lock()
	o.disputePeriod[pricer] = period
	o.mu.Unlock()
}

func (o *Oracle) SetDisputer(disputer common.Address) {
	o.mu.Lock()
	o.disputer = disputer
	o.mu.Unlock()
}

// SetStablePrice fixes the price of an asset with no pricer. Stable prices are
// always final.
func (o *Oracle) SetStablePrice(asset common.Address, price *big.Int) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.pricers[asset]; ok {
		return reason.Wrap(reason.ErrStablePriceConflict, "%s has a pricer", asset.Hex())
	}
	o.stablePrices[asset] = new(big.Int).Set(price)
	return nil
}

// === Pricer submissions ===

// SetSpotPrice records the live price pushed by an asset's pricer.
func (o *Oracle) SetSpotPrice(caller, asset common.Address, price *big.Int) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.pricers[asset] != caller || caller == (common.Address{}) {
		return reason.ErrNotPricer
	}
	o.spotPrices[asset] = new(big.Int).Set(price)
	return nil
}

// SetExpiryPrice records the settlement price once the pricer's locking period has passed.
func (o *Oracle) SetExpiryPrice(caller, asset common.Address, expiry int64, price *big.Int) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	pricer, ok := o.pricers[asset]
	if !ok || pricer != caller {
		return reason.ErrNotPricer
	}
	now := o.now()
	if !now.After(time.Unix(expiry, 0).Add(o.lockingPeriod[pricer])) {
		return reason.ErrLockingPeriod
	}
	byExpiry := o.expiryPrices[asset]
	if byExpiry == nil {
		byExpiry = make(map[int64]storedPrice)
		o.expiryPrices[asset] = byExpiry
	}
	if _, exists := byExpiry[expiry]; exists {
		return reason.ErrPriceAlreadySet
	}
	byExpiry[expiry] = storedPrice{price: new(big.Int).Set(price), reportedAt: now}
	return nil
}

// DisputeExpiryPrice lets the disputer overwrite a submitted price inside the dispute window.
func (o *Oracle) DisputeExpiryPrice(caller, asset common.Address, expiry int64, price *big.Int) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.disputer == (common.Address{}) || caller != o.disputer {
		return reason.ErrNotDisputer
	}
	stored, ok := o.expiryPrices[asset][expiry]
	if !ok {
		return reason.Wrap(reason.ErrPriceUnavailable, "no price to dispute for %s at %d", asset.Hex(), expiry)
	}
	if o.disputeOverLocked(asset, stored) {
		return reason.ErrDisputePeriodOver
	}
	stored.price = new(big.Int).Set(price)
	o.expiryPrices[asset][expiry] = stored
	return nil
}

func (o *Oracle) disputeOverLocked(asset common.Address, stored storedPrice) bool {
	period := o.disputePeriod[o.pricers[asset]]
	return o.now().After(stored.reportedAt.Add(period))
}

// === Queries ===

// SpotPrice returns the stable price, or the last price the pricer pushed.
func (o *Oracle) SpotPrice(asset common.Address) (*big.Int, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	if p, ok := o.stablePrices[asset]; ok {
		return new(big.Int).Set(p), nil
	}
	if p, ok := o.spotPrices[asset]; ok {
		return new(big.Int).Set(p), nil
	}
	return nil, reason.Wrap(reason.ErrPriceUnavailable, "%s", asset.Hex())
}

// ExpiryPrice returns the price at expiry and whether its dispute window has elapsed.
// An unreported price returns (0, false, nil).
func (o *Oracle) ExpiryPrice(asset common.Address, expiry int64) (*big.Int, bool, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	if p, ok := o.stablePrices[asset]; ok {
		return new(big.Int).Set(p), true, nil
	}
	stored, ok := o.expiryPrices[asset][expiry]
	if !ok {
		return new(big.Int), false, nil
	}
	return new(big.Int).Set(stored.price), o.disputeOverLocked(asset, stored), nil
}

// IsLockingPeriodOver reports whether a pricer may submit the expiry price.
func (o *Oracle) IsLockingPeriodOver(asset common.Address, expiry int64) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if _, ok := o.stablePrices[asset]; ok {
		return true
	}
	pricer, ok := o.pricers[asset]
	if !ok {
		return false
	}
	return o.now().After(time.Unix(expiry, 0).Add(o.lockingPeriod[pricer]))
}

func (o *Oracle) Pricer(asset common.Address) (common.Address, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	p, ok := o.pricers[asset]
	return p, ok
}
