package ledger

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// InvariantValidator checks ledger invariants
type InvariantValidator struct {
	tracker *BalanceTracker
}

func NewInvariantValidator(tracker *BalanceTracker) *InvariantValidator {
	return &InvariantValidator{
		tracker: tracker,
	}
}

// ValidateGlobalBalance verifies every asset sums to zero across all accounts.
func (v *InvariantValidator) ValidateGlobalBalance() error {
	for asset, total := range v.tracker.ComputeGlobalBalance() {
		if total.Sign() != 0 {
			return fmt.Errorf("global balance for %s is non-zero: %s", asset.Hex(), total)
		}
	}
	return nil
}

// ValidateNonNegative checks that no holder or pool account is negative.
func (v *InvariantValidator) ValidateNonNegative() error {
	for key, balance := range v.tracker.Snapshot() {
		if !key.MayGoNegative() && balance.Sign() < 0 {
			return fmt.Errorf("account %s has negative balance: %s", key.AccountPath(), balance)
		}
	}
	return nil
}

// ValidateOutstandingSupply checks that the external boundary of an otoken
// mirrors the units still held by holders and the pool.
func (v *InvariantValidator) ValidateOutstandingSupply(otoken common.Address) error {
	ext := v.tracker.GetBalance(ExternalAccount(otoken))
	held := v.tracker.ComputeGlobalBalance()[otoken]
	if held != nil && held.Sign() != 0 {
		return fmt.Errorf("otoken %s is not zero-sum: %s", otoken.Hex(), held)
	}
	if ext.Sign() > 0 {
		return fmt.Errorf("otoken %s has more burned than minted: %s", otoken.Hex(), ext)
	}
	return nil
}
