package callee

import (
	"OptionLedger/internal/ledger"
	"OptionLedger/internal/reason"
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

var transferArgs = mustArgs("address", "address", "uint256")

func mustArgs(types ...string) abi.Arguments {
	args := make(abi.Arguments, 0, len(types))
	for _, t := range types {
		typ, err := abi.NewType(t, "", nil)
		if err != nil {
			panic(err)
		}
		args = append(args, abi.Argument{Type: typ})
	}
	return args
}

// Transfer moves the sender's wallet balance of one asset to another holder.
// Call data is the ABI encoding of (address asset, address to, uint256 amount).
// The move joins the batch's ledger checkpoint, so it is undone if the batch
// fails.
type Transfer struct {
	book *ledger.BalanceTracker
}

func NewTransfer(book *ledger.BalanceTracker) *Transfer {
	return &Transfer{book: book}
}

func (t *Transfer) CallFunction(ctx context.Context, sender common.Address, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	asset, to, amount, err := DecodeTransfer(data)
	if err != nil {
		return err
	}
	if to == (common.Address{}) {
		return reason.Wrap(reason.ErrNullAddress, "transfer recipient")
	}
	if amount.Sign() == 0 {
		return nil
	}
	return t.book.Transfer(ledger.HolderAccount(sender, asset), ledger.HolderAccount(to, asset), amount, ledger.JournalTypeTransfer)
}

// EncodeTransfer builds Transfer call data.
func EncodeTransfer(asset, to common.Address, amount *big.Int) ([]byte, error) {
	return transferArgs.Pack(asset, to, amount)
}

func DecodeTransfer(data []byte) (asset, to common.Address, amount *big.Int, err error) {
	vals, err := transferArgs.Unpack(data)
	if err != nil {
		return asset, to, nil, reason.Wrap(reason.ErrCallData, "transfer: %v", err)
	}
	asset, _ = vals[0].(common.Address)
	to, _ = vals[1].(common.Address)
	amount, _ = vals[2].(*big.Int)
	if amount == nil {
		return asset, to, nil, reason.Wrap(reason.ErrCallData, "transfer: amount is not a uint256")
	}
	return asset, to, amount, nil
}
