package otoken

import (
	"OptionLedger/internal/asset"
	"OptionLedger/internal/reason"
	"encoding/binary"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

const (
	// Series expire at 08:00 UTC.
	expiryHourOffset = 8 * 60 * 60
	// 2346-01-01 00:00 UTC; the last valid series expires 2345-12-31.
	MaxExpiry int64 = 11865398400
)

// ProductWhitelist is the part of the whitelist the factory needs.
type ProductWhitelist interface {
	IsWhitelistedProduct(underlying, strike, collateral common.Address, isPut bool) bool
	WhitelistOtoken(otoken common.Address)
}

// Factory creates otoken series at deterministic addresses.
type Factory struct {
	registry  *Registry
	whitelist ProductWhitelist
	assets    *asset.Registry
	now       func() time.Time
}

func NewFactory(registry *Registry, whitelist ProductWhitelist, assets *asset.Registry, now func() time.Time) *Factory {
	if now == nil {
		now = time.Now
	}
	return &Factory{
		registry:  registry,
		whitelist: whitelist,
		assets:    assets,
		now:       now,
	}
}

// TargetAddress returns the address a series with these parameters is created at.
func TargetAddress(underlying, strike, collateral common.Address, strikePrice *big.Int, expiry int64, isPut bool) common.Address {
	var exp [8]byte
	binary.BigEndian.PutUint64(exp[:], uint64(expiry))
	put := []byte{0}
	if isPut {
		put[0] = 1
	}
	hash := crypto.Keccak256(
		underlying.Bytes(),
		strike.Bytes(),
		collateral.Bytes(),
		common.LeftPadBytes(strikePrice.Bytes(), 32),
		exp[:],
		put,
	)
	return common.BytesToAddress(hash[12:])
}

// Create validates and registers a new series, then whitelists it.
func (f *Factory) Create(underlying, strike, collateral common.Address, strikePrice *big.Int, expiry int64, isPut bool) (*Otoken, error) {
	if strikePrice == nil || strikePrice.Sign() < 0 {
		return nil, reason.Wrap(reason.ErrInvalidOtokenParams, "strike price must be non-negative")
	}
	if expiry <= f.now().Unix() {
		return nil, reason.Wrap(reason.ErrInvalidOtokenParams, "cannot create an expired option")
	}
	if expiry%86400 != expiryHourOffset {
		return nil, reason.Wrap(reason.ErrInvalidOtokenParams, "expiry must be at 08:00 UTC")
	}
	if expiry > MaxExpiry {
		return nil, reason.Wrap(reason.ErrInvalidOtokenParams, "expiry is past 2345-12-31")
	}
	if isPut && strikePrice.Sign() == 0 {
		return nil, reason.Wrap(reason.ErrInvalidOtokenParams, "cannot create a zero strike put")
	}
	if !f.whitelist.IsWhitelistedProduct(underlying, strike, collateral, isPut) {
		return nil, reason.ErrProductNotWhitelisted
	}

	addr := TargetAddress(underlying, strike, collateral, strikePrice, expiry, isPut)
	if _, exists := f.registry.Otoken(addr); exists {
		return nil, reason.Wrap(reason.ErrDuplicateOtoken, "%s", addr.Hex())
	}

	o := &Otoken{
		Address:     addr,
		Underlying:  underlying,
		Strike:      strike,
		Collateral:  collateral,
		StrikePrice: new(big.Int).Set(strikePrice),
		Expiry:      expiry,
		IsPut:       isPut,
	}
	f.registry.add(o)
	f.whitelist.WhitelistOtoken(addr)

	if f.assets != nil {
		_ = f.assets.Register(asset.Info{
			Address:  addr,
			Symbol:   o.Symbol(f.assets),
			Decimals: Decimals,
		})
	}

	return o, nil
}
