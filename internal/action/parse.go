package action

import (
	"OptionLedger/internal/reason"
	"OptionLedger/internal/vault"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// vaultTypeDataLen is the width of an encoded vault type word.
const vaultTypeDataLen = 32

type OpenVaultArgs struct {
	Owner     common.Address
	VaultID   uint64
	VaultType vault.Type
}

type MintArgs struct {
	Owner   common.Address
	VaultID uint64
	To      common.Address
	Otoken  common.Address
	Index   uint64
	Amount  *big.Int
}

type BurnArgs struct {
	Owner   common.Address
	VaultID uint64
	From    common.Address
	Otoken  common.Address
	Index   uint64
	Amount  *big.Int
}

// DepositArgs serves both DepositLong and DepositCollateral.
type DepositArgs struct {
	Owner   common.Address
	VaultID uint64
	From    common.Address
	Asset   common.Address
	Index   uint64
	Amount  *big.Int
}

// WithdrawArgs serves both WithdrawLong and WithdrawCollateral.
type WithdrawArgs struct {
	Owner   common.Address
	VaultID uint64
	To      common.Address
	Asset   common.Address
	Index   uint64
	Amount  *big.Int
}

type RedeemArgs struct {
	Receiver common.Address
	Otoken   common.Address
	Amount   *big.Int
}

type SettleVaultArgs struct {
	Owner   common.Address
	VaultID uint64
	To      common.Address
}

type CallArgs struct {
	Callee common.Address
	Data   []byte
}

func isNull(a common.Address) bool { return a == (common.Address{}) }

func amountOf(a Action) *big.Int {
	if a.Amount == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(a.Amount)
}

func ParseOpenVault(a Action) (OpenVaultArgs, error) {
	if a.Kind != KindOpenVault {
		return OpenVaultArgs{}, reason.ErrNotOpenVault
	}
	if isNull(a.Owner) {
		return OpenVaultArgs{}, reason.ErrOpenVaultOwner
	}
	typ, err := decodeVaultType(a.Data)
	if err != nil {
		return OpenVaultArgs{}, err
	}
	return OpenVaultArgs{Owner: a.Owner, VaultID: a.VaultID, VaultType: typ}, nil
}

// decodeVaultType reads a big-endian 32-byte word. Data of any other length
// leaves the default type.
func decodeVaultType(data []byte) (vault.Type, error) {
	if len(data) != vaultTypeDataLen {
		return vault.TypeNaked, nil
	}
	n := new(big.Int).SetBytes(data)
	if !n.IsUint64() || n.Uint64() > uint64(vault.TypeFullyCollateralized) {
		return 0, reason.Wrap(reason.ErrInvalidVaultType, "got %s", n)
	}
	return vault.Type(n.Uint64()), nil
}

// EncodeVaultType is the inverse of the OpenVault data decoding.
func EncodeVaultType(t vault.Type) []byte {
	return common.LeftPadBytes([]byte{byte(t)}, vaultTypeDataLen)
}

func ParseMint(a Action) (MintArgs, error) {
	if a.Kind != KindMintShort {
		return MintArgs{}, reason.ErrNotMint
	}
	if isNull(a.Owner) {
		return MintArgs{}, reason.ErrMintOwner
	}
	return MintArgs{
		Owner:   a.Owner,
		VaultID: a.VaultID,
		To:      a.SecondAddress,
		Otoken:  a.Asset,
		Index:   a.Index,
		Amount:  amountOf(a),
	}, nil
}

func ParseBurn(a Action) (BurnArgs, error) {
	if a.Kind != KindBurnShort {
		return BurnArgs{}, reason.ErrNotBurn
	}
	if isNull(a.Owner) {
		return BurnArgs{}, reason.ErrBurnOwner
	}
	return BurnArgs{
		Owner:   a.Owner,
		VaultID: a.VaultID,
		From:    a.SecondAddress,
		Otoken:  a.Asset,
		Index:   a.Index,
		Amount:  amountOf(a),
	}, nil
}

func ParseDeposit(a Action) (DepositArgs, error) {
	if a.Kind != KindDepositLong && a.Kind != KindDepositCollateral {
		return DepositArgs{}, reason.ErrNotDeposit
	}
	if isNull(a.Owner) {
		return DepositArgs{}, reason.ErrDepositOwner
	}
	return DepositArgs{
		Owner:   a.Owner,
		VaultID: a.VaultID,
		From:    a.SecondAddress,
		Asset:   a.Asset,
		Index:   a.Index,
		Amount:  amountOf(a),
	}, nil
}

func ParseWithdraw(a Action) (WithdrawArgs, error) {
	if a.Kind != KindWithdrawLong && a.Kind != KindWithdrawCollateral {
		return WithdrawArgs{}, reason.ErrNotWithdraw
	}
	if isNull(a.Owner) {
		return WithdrawArgs{}, reason.ErrWithdrawOwner
	}
	if isNull(a.SecondAddress) {
		return WithdrawArgs{}, reason.ErrWithdrawTo
	}
	return WithdrawArgs{
		Owner:   a.Owner,
		VaultID: a.VaultID,
		To:      a.SecondAddress,
		Asset:   a.Asset,
		Index:   a.Index,
		Amount:  amountOf(a),
	}, nil
}

// ParseRedeem allows a null owner; redemption depends only on holdings.
func ParseRedeem(a Action) (RedeemArgs, error) {
	if a.Kind != KindRedeem {
		return RedeemArgs{}, reason.ErrNotRedeem
	}
	if isNull(a.SecondAddress) {
		return RedeemArgs{}, reason.ErrRedeemReceiver
	}
	if a.Amount == nil || a.Amount.Sign() <= 0 {
		return RedeemArgs{}, reason.ErrZeroRedeem
	}
	return RedeemArgs{Receiver: a.SecondAddress, Otoken: a.Asset, Amount: amountOf(a)}, nil
}

func ParseSettleVault(a Action) (SettleVaultArgs, error) {
	if a.Kind != KindSettleVault {
		return SettleVaultArgs{}, reason.ErrNotSettleVault
	}
	if isNull(a.Owner) {
		return SettleVaultArgs{}, reason.ErrSettleOwner
	}
	if isNull(a.SecondAddress) {
		return SettleVaultArgs{}, reason.ErrSettleTo
	}
	return SettleVaultArgs{Owner: a.Owner, VaultID: a.VaultID, To: a.SecondAddress}, nil
}

func ParseCall(a Action) (CallArgs, error) {
	if a.Kind != KindCall {
		return CallArgs{}, reason.ErrNotCall
	}
	if isNull(a.SecondAddress) {
		return CallArgs{}, reason.ErrCallTarget
	}
	return CallArgs{Callee: a.SecondAddress, Data: append([]byte(nil), a.Data...)}, nil
}
