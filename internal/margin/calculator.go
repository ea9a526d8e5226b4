// Package margin computes how much collateral a vault needs, or can release,
// before and after expiry.
package margin

import (
	fpmath "OptionLedger/internal/math"
	"OptionLedger/internal/otoken"
	"OptionLedger/internal/reason"
	"OptionLedger/internal/vault"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Oracle provides prices with 8 decimals.
type Oracle interface {
	SpotPrice(asset common.Address) (*big.Int, error)
	ExpiryPrice(asset common.Address, expiry int64) (*big.Int, bool, error)
}

// OtokenLookup resolves otoken series by address.
type OtokenLookup interface {
	Otoken(addr common.Address) (*otoken.Otoken, bool)
}

// Decimals resolves the native precision of collateral assets.
type Decimals interface {
	Decimals(asset common.Address) (int, error)
}

// Calculator evaluates vaults against oracle prices. It never mutates state.
type Calculator struct {
	oracle   Oracle
	otokens  OtokenLookup
	decimals Decimals
	now      func() time.Time
}

func NewCalculator(oracle Oracle, otokens OtokenLookup, decimals Decimals, now func() time.Time) *Calculator {
	if now == nil {
		now = time.Now
	}
	return &Calculator{
		oracle:   oracle,
		otokens:  otokens,
		decimals: decimals,
		now:      now,
	}
}

// vaultDetails is the resolved view of a vault's first slots.
type vaultDetails struct {
	short, long        *otoken.Otoken
	shortAmt, longAmt  *big.Int
	collateral         common.Address
	collateralAmt      *big.Int
	hasShort, hasLong  bool
	hasCollateral      bool
	collateralDecimals int
}

// product is whichever otoken defines the vault's series.
func (d *vaultDetails) product() *otoken.Otoken {
	if d.hasShort {
		return d.short
	}
	return d.long
}

// ExcessCollateral returns the collateral the vault can release (isExcess=true)
// or still needs (isExcess=false), in the collateral asset's native decimals.
// A deficit is rounded up so that no nonzero obligation reads as covered.
func (c *Calculator) ExcessCollateral(v *vault.Vault) (*big.Int, bool, error) {
	d, err := c.details(v)
	if err != nil {
		return nil, false, err
	}
	if err := checkIsValidVault(v, d); err != nil {
		return nil, false, err
	}

	if !d.hasShort && !d.hasLong {
		if d.hasCollateral {
			return new(big.Int).Set(d.collateralAmt), true, nil
		}
		return new(big.Int), true, nil
	}

	collateral, required, err := c.marginRequired(d)
	if err != nil {
		return nil, false, err
	}

	excess := collateral.Sub(required)
	isExcess := excess.Sign() >= 0
	mode := fpmath.RoundUp
	if isExcess {
		mode = fpmath.RoundDown
	}
	out, err := excess.Abs().ToScaled(d.collateralDecimals, mode)
	if err != nil {
		return nil, false, err
	}
	return out, isExcess, nil
}

func (c *Calculator) details(v *vault.Vault) (*vaultDetails, error) {
	d := &vaultDetails{}

	if addr, amt, ok := firstSlot(v.ShortOtokens, v.ShortAmounts); ok {
		o, found := c.otokens.Otoken(addr)
		if !found {
			return nil, reason.Wrap(reason.ErrUnknownOtoken, "short %s", addr.Hex())
		}
		d.short, d.shortAmt, d.hasShort = o, amt, true
	}
	if addr, amt, ok := firstSlot(v.LongOtokens, v.LongAmounts); ok {
		o, found := c.otokens.Otoken(addr)
		if !found {
			return nil, reason.Wrap(reason.ErrUnknownOtoken, "long %s", addr.Hex())
		}
		d.long, d.longAmt, d.hasLong = o, amt, true
	}
	if addr, amt, ok := firstSlot(v.CollateralAssets, v.CollateralAmounts); ok {
		d.collateral, d.collateralAmt, d.hasCollateral = addr, amt, true
	}

	if d.hasShort || d.hasLong {
		dec, err := c.decimals.Decimals(d.product().Collateral)
		if err != nil {
			return nil, reason.Wrap(reason.ErrCollateralMismatch, "%v", err)
		}
		d.collateralDecimals = dec
	} else if d.hasCollateral {
		dec, err := c.decimals.Decimals(d.collateral)
		if err != nil {
			return nil, reason.Wrap(reason.ErrCollateralMismatch, "%v", err)
		}
		d.collateralDecimals = dec
	}
	return d, nil
}

// firstSlot reads slot zero, which is the only slot a valid vault may use.
func firstSlot(assets []common.Address, amounts []*big.Int) (common.Address, *big.Int, bool) {
	if len(assets) == 0 || len(amounts) == 0 || assets[0] == (common.Address{}) {
		return common.Address{}, nil, false
	}
	return assets[0], amounts[0], true
}

func checkIsValidVault(v *vault.Vault, d *vaultDetails) error {
	if len(v.ShortOtokens) > 1 {
		return reason.ErrTooManyShorts
	}
	if len(v.LongOtokens) > 1 {
		return reason.ErrTooManyLongs
	}
	if len(v.CollateralAssets) > 1 {
		return reason.ErrTooManyCollaterals
	}
	if len(v.ShortOtokens) != len(v.ShortAmounts) ||
		len(v.LongOtokens) != len(v.LongAmounts) ||
		len(v.CollateralAssets) != len(v.CollateralAmounts) {
		return reason.ErrSlotLengthMismatch
	}
	if !isMarginableLong(d) {
		return reason.ErrLongNotMarginable
	}
	if !isMarginableCollateral(d) {
		return reason.ErrCollateralMismatch
	}
	return nil
}

func isMarginableLong(d *vaultDetails) bool {
	if !d.hasLong || !d.hasShort {
		return true
	}
	s, l := d.short, d.long
	return l.Address != s.Address &&
		l.Underlying == s.Underlying &&
		l.Strike == s.Strike &&
		l.Collateral == s.Collateral &&
		l.Expiry == s.Expiry &&
		l.IsPut == s.IsPut
}

func isMarginableCollateral(d *vaultDetails) bool {
	if !d.hasCollateral {
		return true
	}
	if d.hasShort {
		return d.short.Collateral == d.collateral
	}
	if d.hasLong {
		return d.long.Collateral == d.collateral
	}
	return true
}

// marginRequired returns (posted collateral, required collateral), both in
// 27-decimal fixed point of the collateral asset.
func (c *Calculator) marginRequired(d *vaultDetails) (fpmath.FixedPoint, fpmath.FixedPoint, error) {
	shortAmt, longAmt := fpmath.Zero(), fpmath.Zero()
	shortStrike, longStrike := fpmath.Zero(), fpmath.Zero()
	if d.hasShort {
		shortAmt = fpmath.FromScaled(d.shortAmt, otoken.Decimals)
		shortStrike = fpmath.FromScaled(d.short.StrikePrice, fpmath.BaseDecimals)
	}
	if d.hasLong {
		longAmt = fpmath.FromScaled(d.longAmt, otoken.Decimals)
		longStrike = fpmath.FromScaled(d.long.StrikePrice, fpmath.BaseDecimals)
	}
	collateral := fpmath.Zero()
	if d.hasCollateral {
		collateral = fpmath.FromScaled(d.collateralAmt, d.collateralDecimals)
	}

	p := d.product()

	if !p.HasExpired(c.now()) {
		var required fpmath.FixedPoint
		from := p.Underlying
		if p.IsPut {
			required = putSpreadRequirement(shortAmt, longAmt, shortStrike, longStrike)
			from = p.Strike
		} else {
			required = callSpreadRequirement(shortAmt, longAmt, shortStrike, longStrike)
		}
		required, err := c.convertOnLivePrice(required, from, p.Collateral)
		if err != nil {
			return fpmath.FixedPoint{}, fpmath.FixedPoint{}, err
		}
		return collateral, required, nil
	}

	shortCash, err := c.expiredCashValue(p.Underlying, p.Strike, p.Expiry, shortStrike, p.IsPut)
	if err != nil {
		return fpmath.FixedPoint{}, fpmath.FixedPoint{}, err
	}
	longCash, err := c.expiredCashValue(p.Underlying, p.Strike, p.Expiry, longStrike, p.IsPut)
	if err != nil {
		return fpmath.FixedPoint{}, fpmath.FixedPoint{}, err
	}

	// may be negative when a long outvalues the short
	inStrike := shortAmt.Mul(shortCash).Sub(longAmt.Mul(longCash))
	required, err := c.convertOnExpiryPrice(inStrike, p.Strike, p.Collateral, p.Expiry)
	if err != nil {
		return fpmath.FixedPoint{}, fpmath.FixedPoint{}, err
	}
	return collateral, required, nil
}

// putSpreadRequirement is max(short·shortStrike − longStrike·min(short, long), 0) in strike units.
func putSpreadRequirement(shortAmt, longAmt, shortStrike, longStrike fpmath.FixedPoint) fpmath.FixedPoint {
	covered := longStrike.Mul(fpmath.Min(shortAmt, longAmt))
	return fpmath.Max(shortAmt.Mul(shortStrike).Sub(covered), fpmath.Zero())
}

// callSpreadRequirement is in underlying units:
//
//	longStrike == 0: max(short − long, 0)
//	otherwise:       max((longStrike − shortStrike)·short / longStrike, max(short − long, 0))
func callSpreadRequirement(shortAmt, longAmt, shortStrike, longStrike fpmath.FixedPoint) fpmath.FixedPoint {
	uncovered := fpmath.Max(shortAmt.Sub(longAmt), fpmath.Zero())
	if longStrike.IsZero() {
		return uncovered
	}
	spread := longStrike.Sub(shortStrike).Mul(shortAmt).Div(longStrike)
	return fpmath.Max(spread, uncovered)
}

func cashValue(strike, underlyingInStrike fpmath.FixedPoint, isPut bool) fpmath.FixedPoint {
	if isPut {
		return fpmath.Max(strike.Sub(underlyingInStrike), fpmath.Zero())
	}
	return fpmath.Max(underlyingInStrike.Sub(strike), fpmath.Zero())
}

// expiredCashValue is the per-unit value of an expired option, in strike units.
func (c *Calculator) expiredCashValue(underlying, strikeAsset common.Address, expiry int64, strike fpmath.FixedPoint, isPut bool) (fpmath.FixedPoint, error) {
	u, err := c.convertOnExpiryPrice(fpmath.FromUnscaled(1), underlying, strikeAsset, expiry)
	if err != nil {
		return fpmath.FixedPoint{}, err
	}
	return cashValue(strike, u, isPut), nil
}

func (c *Calculator) convertOnLivePrice(amount fpmath.FixedPoint, from, to common.Address) (fpmath.FixedPoint, error) {
	if from == to {
		return amount, nil
	}
	fromPrice, err := c.oracle.SpotPrice(from)
	if err != nil {
		return fpmath.FixedPoint{}, err
	}
	toPrice, err := c.oracle.SpotPrice(to)
	if err != nil {
		return fpmath.FixedPoint{}, err
	}
	return convert(amount, fromPrice, toPrice, to)
}

func (c *Calculator) convertOnExpiryPrice(amount fpmath.FixedPoint, from, to common.Address, expiry int64) (fpmath.FixedPoint, error) {
	if from == to {
		return amount, nil
	}
	fromPrice, err := c.finalExpiryPrice(from, expiry)
	if err != nil {
		return fpmath.FixedPoint{}, err
	}
	toPrice, err := c.finalExpiryPrice(to, expiry)
	if err != nil {
		return fpmath.FixedPoint{}, err
	}
	return convert(amount, fromPrice, toPrice, to)
}

func (c *Calculator) finalExpiryPrice(asset common.Address, expiry int64) (*big.Int, error) {
	price, final, err := c.oracle.ExpiryPrice(asset, expiry)
	if err != nil {
		return nil, err
	}
	if !final {
		return nil, reason.Wrap(reason.ErrPriceNotFinalized, "%s at %d", asset.Hex(), expiry)
	}
	return price, nil
}

func convert(amount fpmath.FixedPoint, fromPrice, toPrice *big.Int, to common.Address) (fpmath.FixedPoint, error) {
	if toPrice == nil || toPrice.Sign() == 0 {
		return fpmath.FixedPoint{}, reason.Wrap(reason.ErrZeroPrice, "%s", to.Hex())
	}
	from := fpmath.FromScaled(fromPrice, fpmath.BaseDecimals)
	dest := fpmath.FromScaled(toPrice, fpmath.BaseDecimals)
	return amount.Mul(from).Div(dest), nil
}
