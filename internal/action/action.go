// Package action defines the typed instructions a batch is made of and the
// shape checks each kind must pass before the controller dispatches it.
package action

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Kind selects what an action does. The numeric values are the wire values.
type Kind uint8

const (
	KindOpenVault Kind = iota
	KindMintShort
	KindBurnShort
	KindDepositLong
	KindWithdrawLong
	KindDepositCollateral
	KindWithdrawCollateral
	KindSettleVault
	KindRedeem
	KindCall

	// KindUnknown is any value not listed above. It is dispatched as a no-op.
	KindUnknown Kind = 255
)

// KindFromWire maps a wire integer to a Kind.
func KindFromWire(n int64) Kind {
	if n < 0 || n > int64(KindCall) {
		return KindUnknown
	}
	return Kind(n)
}

func (k Kind) String() string {
	switch k {
	case KindOpenVault:
		return "OpenVault"
	case KindMintShort:
		return "MintShort"
	case KindBurnShort:
		return "BurnShort"
	case KindDepositLong:
		return "DepositLong"
	case KindWithdrawLong:
		return "WithdrawLong"
	case KindDepositCollateral:
		return "DepositCollateral"
	case KindWithdrawCollateral:
		return "WithdrawCollateral"
	case KindSettleVault:
		return "SettleVault"
	case KindRedeem:
		return "Redeem"
	case KindCall:
		return "Call"
	default:
		return "Unknown"
	}
}

// MutatesVault reports whether the kind changes a vault's slots. These kinds
// are subject to the single-owner rule, the partial pause and the end of
// batch margin check.
func (k Kind) MutatesVault() bool {
	switch k {
	case KindOpenVault, KindMintShort, KindBurnShort,
		KindDepositLong, KindWithdrawLong,
		KindDepositCollateral, KindWithdrawCollateral:
		return true
	}
	return false
}

// Action is one instruction of a batch. The meaning of SecondAddress and
// Asset depends on Kind.
type Action struct {
	Kind          Kind
	Owner         common.Address
	SecondAddress common.Address
	Asset         common.Address
	VaultID       uint64
	Amount        *big.Int
	Index         uint64
	Data          []byte
}
