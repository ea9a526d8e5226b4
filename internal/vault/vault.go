// Package vault models per-owner margin vaults and their slot primitives.
package vault

import (
	"OptionLedger/internal/reason"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Type tags how a vault is validated.
type Type uint8

const (
	TypeNaked               Type = 0
	TypeFullyCollateralized Type = 1
)

func (t Type) String() string {
	switch t {
	case TypeNaked:
		return "NAKED"
	case TypeFullyCollateralized:
		return "FULLY_COLLATERALIZED"
	default:
		return "UNKNOWN"
	}
}

// Vault holds parallel slot arrays for shorts, longs and collateral.
// A slot whose amount drops to zero keeps its position with a null asset.
type Vault struct {
	Owner common.Address
	ID    uint64
	Type  Type

	ShortOtokens      []common.Address
	ShortAmounts      []*big.Int
	LongOtokens       []common.Address
	LongAmounts       []*big.Int
	CollateralAssets  []common.Address
	CollateralAmounts []*big.Int

	LatestUpdate time.Time
}

// slotErrors names the failures of one slot family.
type slotErrors struct {
	zero, index, wrong *reason.Error
}

var (
	shortErrs      = slotErrors{reason.ErrZeroShort, reason.ErrShortIndexOutOfRange, reason.ErrWrongShortAtIndex}
	longErrs       = slotErrors{reason.ErrZeroLong, reason.ErrLongIndexOutOfRange, reason.ErrWrongLongAtIndex}
	collateralErrs = slotErrors{reason.ErrZeroCollateral, reason.ErrCollateralIndexOutOfRange, reason.ErrWrongCollateralAtIndex}
)

func addToSlot(assets *[]common.Address, amounts *[]*big.Int, asset common.Address, amount *big.Int, index uint64, errs slotErrors) error {
	if amount == nil || amount.Sign() <= 0 {
		return errs.zero
	}

	n := uint64(len(*assets))
	switch {
	case index == n:
		*assets = append(*assets, asset)
		*amounts = append(*amounts, new(big.Int).Set(amount))
	case index < n:
		occupant := (*assets)[index]
		if occupant != asset && occupant != (common.Address{}) {
			return reason.Wrap(errs.wrong, "index %d holds %s", index, occupant.Hex())
		}
		(*assets)[index] = asset
		(*amounts)[index] = new(big.Int).Add((*amounts)[index], amount)
	default:
		return reason.Wrap(errs.index, "index %d, length %d", index, n)
	}
	return nil
}

func removeFromSlot(assets []common.Address, amounts []*big.Int, asset common.Address, amount *big.Int, index uint64, errs slotErrors) error {
	if index >= uint64(len(assets)) {
		return reason.Wrap(errs.index, "index %d, length %d", index, len(assets))
	}
	if assets[index] != asset {
		return reason.Wrap(errs.wrong, "index %d holds %s", index, assets[index].Hex())
	}
	if amount == nil || amount.Sign() < 0 {
		return errs.zero
	}

	left := new(big.Int).Sub(amounts[index], amount)
	if left.Sign() < 0 {
		return reason.Wrap(reason.ErrSlotUnderflow, "stored %s, removing %s", amounts[index], amount)
	}
	amounts[index] = left
	if left.Sign() == 0 {
		assets[index] = common.Address{}
	}
	return nil
}

func (v *Vault) touch(now time.Time, err error) error {
	if err == nil {
		v.LatestUpdate = now
	}
	return err
}

func (v *Vault) AddShort(otoken common.Address, amount *big.Int, index uint64, now time.Time) error {
	return v.touch(now, addToSlot(&v.ShortOtokens, &v.ShortAmounts, otoken, amount, index, shortErrs))
}

func (v *Vault) RemoveShort(otoken common.Address, amount *big.Int, index uint64, now time.Time) error {
	return v.touch(now, removeFromSlot(v.ShortOtokens, v.ShortAmounts, otoken, amount, index, shortErrs))
}

func (v *Vault) AddLong(otoken common.Address, amount *big.Int, index uint64, now time.Time) error {
	return v.touch(now, addToSlot(&v.LongOtokens, &v.LongAmounts, otoken, amount, index, longErrs))
}

func (v *Vault) RemoveLong(otoken common.Address, amount *big.Int, index uint64, now time.Time) error {
	return v.touch(now, removeFromSlot(v.LongOtokens, v.LongAmounts, otoken, amount, index, longErrs))
}

func (v *Vault) AddCollateral(asset common.Address, amount *big.Int, index uint64, now time.Time) error {
	return v.touch(now, addToSlot(&v.CollateralAssets, &v.CollateralAmounts, asset, amount, index, collateralErrs))
}

func (v *Vault) RemoveCollateral(asset common.Address, amount *big.Int, index uint64, now time.Time) error {
	return v.touch(now, removeFromSlot(v.CollateralAssets, v.CollateralAmounts, asset, amount, index, collateralErrs))
}

// Clear empties every slot. Used when a vault is settled.
func (v *Vault) Clear(now time.Time) {
	v.ShortOtokens, v.ShortAmounts = nil, nil
	v.LongOtokens, v.LongAmounts = nil, nil
	v.CollateralAssets, v.CollateralAmounts = nil, nil
	v.LatestUpdate = now
}

// Clone returns a deep copy.
func (v *Vault) Clone() *Vault {
	cp := *v
	cp.ShortOtokens = append([]common.Address(nil), v.ShortOtokens...)
	cp.LongOtokens = append([]common.Address(nil), v.LongOtokens...)
	cp.CollateralAssets = append([]common.Address(nil), v.CollateralAssets...)
	cp.ShortAmounts = cloneAmounts(v.ShortAmounts)
	cp.LongAmounts = cloneAmounts(v.LongAmounts)
	cp.CollateralAmounts = cloneAmounts(v.CollateralAmounts)
	return &cp
}

func cloneAmounts(in []*big.Int) []*big.Int {
	if in == nil {
		return nil
	}
	out := make([]*big.Int, len(in))
	for i, a := range in {
		out[i] = new(big.Int).Set(a)
	}
	return out
}

// FirstShort returns the first occupied short slot, if any.
func (v *Vault) FirstShort() (common.Address, *big.Int, bool) {
	return firstOccupied(v.ShortOtokens, v.ShortAmounts)
}

// FirstLong returns the first occupied long slot, if any.
func (v *Vault) FirstLong() (common.Address, *big.Int, bool) {
	return firstOccupied(v.LongOtokens, v.LongAmounts)
}

// FirstCollateral returns the first occupied collateral slot, if any.
func (v *Vault) FirstCollateral() (common.Address, *big.Int, bool) {
	return firstOccupied(v.CollateralAssets, v.CollateralAmounts)
}

func firstOccupied(assets []common.Address, amounts []*big.Int) (common.Address, *big.Int, bool) {
	for i, a := range assets {
		if a != (common.Address{}) && i < len(amounts) {
			return a, new(big.Int).Set(amounts[i]), true
		}
	}
	return common.Address{}, nil, false
}

// IsEmpty reports whether no slot holds an asset.
func (v *Vault) IsEmpty() bool {
	_, _, s := v.FirstShort()
	_, _, l := v.FirstLong()
	_, _, c := v.FirstCollateral()
	return !s && !l && !c
}
