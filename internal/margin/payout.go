package margin

import (
	fpmath "OptionLedger/internal/math"
	"OptionLedger/internal/otoken"
	"OptionLedger/internal/reason"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// ExpiredPayoutRate returns the collateral one whole otoken (1e8 units) redeems
// for, in the collateral asset's native decimals, truncated.
func (c *Calculator) ExpiredPayoutRate(addr common.Address) (*big.Int, error) {
	o, ok := c.otokens.Otoken(addr)
	if !ok {
		return nil, reason.Wrap(reason.ErrUnknownOtoken, "%s", addr.Hex())
	}
	if !o.HasExpired(c.now()) {
		return nil, reason.Wrap(reason.ErrOtokenNotExpired, "%s expires %d", addr.Hex(), o.Expiry)
	}

	strike := fpmath.FromScaled(o.StrikePrice, fpmath.BaseDecimals)
	inStrike, err := c.expiredCashValue(o.Underlying, o.Strike, o.Expiry, strike, o.IsPut)
	if err != nil {
		return nil, err
	}
	inCollateral, err := c.convertOnExpiryPrice(inStrike, o.Strike, o.Collateral, o.Expiry)
	if err != nil {
		return nil, err
	}
	dec, err := c.decimals.Decimals(o.Collateral)
	if err != nil {
		return nil, reason.Wrap(reason.ErrCollateralMismatch, "%v", err)
	}
	return inCollateral.ToScaled(dec, fpmath.RoundDown)
}

// Payout is what redeeming amount of an expired otoken pays, truncated.
func (c *Calculator) Payout(addr common.Address, amount *big.Int) (*big.Int, error) {
	rate, err := c.ExpiredPayoutRate(addr)
	if err != nil {
		return nil, err
	}
	// rate is per whole otoken; amount carries otoken decimals.
	return fpmath.Rescale(new(big.Int).Mul(rate, amount), otoken.Decimals, 0), nil
}

// IsSettlementAllowed reports whether the underlying, strike and collateral
// expiry prices of the series are all final.
func (c *Calculator) IsSettlementAllowed(addr common.Address) (bool, error) {
	o, ok := c.otokens.Otoken(addr)
	if !ok {
		return false, reason.Wrap(reason.ErrUnknownOtoken, "%s", addr.Hex())
	}
	for _, a := range []common.Address{o.Underlying, o.Strike, o.Collateral} {
		_, final, err := c.oracle.ExpiryPrice(a, o.Expiry)
		if err != nil {
			return false, err
		}
		if !final {
			return false, nil
		}
	}
	return true, nil
}
