package pool_test

import (
	"OptionLedger/internal/ledger"
	"OptionLedger/internal/pool"
	"OptionLedger/internal/reason"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob   = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	usdc  = common.HexToAddress("0x00000000000000000000000000000000000000c1")
	weth  = common.HexToAddress("0x00000000000000000000000000000000000000e1")
)

func setup(t *testing.T) (*pool.Pool, *ledger.BalanceTracker) {
	t.Helper()
	book := ledger.NewBalanceTracker()
	if err := book.Fund(alice, usdc, big.NewInt(1_000)); err != nil {
		t.Fatalf("fund: %v", err)
	}
	if err := book.Fund(alice, weth, big.NewInt(10)); err != nil {
		t.Fatalf("fund: %v", err)
	}
	return pool.New(book), book
}

func TestPool_TransferRoundTrip(t *testing.T) {
	p, book := setup(t)

	if err := p.TransferToPool(usdc, alice, big.NewInt(400)); err != nil {
		t.Fatalf("TransferToPool: %v", err)
	}
	if p.Balance(usdc).Int64() != 400 || book.HolderBalance(alice, usdc).Int64() != 600 {
		t.Fatalf("after deposit: pool %s, alice %s", p.Balance(usdc), book.HolderBalance(alice, usdc))
	}

	if err := p.TransferToUser(usdc, bob, big.NewInt(400)); err != nil {
		t.Fatalf("TransferToUser: %v", err)
	}
	if p.Balance(usdc).Sign() != 0 || book.HolderBalance(bob, usdc).Int64() != 400 {
		t.Errorf("after withdraw: pool %s, bob %s", p.Balance(usdc), book.HolderBalance(bob, usdc))
	}
}

func TestPool_TransferToUserBeyondCustodyFails(t *testing.T) {
	p, _ := setup(t)
	err := p.TransferToUser(usdc, bob, big.NewInt(1))
	if !errors.Is(err, reason.ErrInsufficientBalance) {
		t.Errorf("got %v", err)
	}
}

func TestPool_ZeroAmountIsNoOp(t *testing.T) {
	p, book := setup(t)
	if err := p.TransferToUser(usdc, bob, big.NewInt(0)); err != nil {
		t.Fatalf("zero payout: %v", err)
	}
	if err := p.TransferToPool(usdc, bob, new(big.Int)); err != nil {
		t.Fatalf("zero deposit: %v", err)
	}
	if len(book.Snapshot()) != 4 {
		t.Errorf("zero transfers changed balances: %v", book.Snapshot())
	}
}

func TestPool_BatchTransferLengthMismatch(t *testing.T) {
	p, _ := setup(t)
	err := p.BatchTransferToPool([]common.Address{usdc, weth}, []common.Address{alice}, []*big.Int{big.NewInt(1), big.NewInt(1)})
	if !errors.Is(err, reason.ErrBatchLength) {
		t.Errorf("to pool: got %v", err)
	}
	err = p.BatchTransferToUser([]common.Address{usdc}, []common.Address{alice}, nil)
	if !errors.Is(err, reason.ErrBatchLength) {
		t.Errorf("to user: got %v", err)
	}
}

func TestPool_BatchTransferIsAllOrNothing(t *testing.T) {
	p, book := setup(t)

	err := p.BatchTransferToPool(
		[]common.Address{usdc, weth},
		[]common.Address{alice, alice},
		[]*big.Int{big.NewInt(100), big.NewInt(11)},
	)
	if !errors.Is(err, reason.ErrInsufficientBalance) {
		t.Fatalf("got %v", err)
	}
	if book.HolderBalance(alice, usdc).Int64() != 1_000 || p.Balance(usdc).Sign() != 0 {
		t.Error("first leg of a failed batch must be undone")
	}

	err = p.BatchTransferToPool(
		[]common.Address{usdc, weth},
		[]common.Address{alice, alice},
		[]*big.Int{big.NewInt(100), big.NewInt(10)},
	)
	if err != nil {
		t.Fatalf("BatchTransferToPool: %v", err)
	}
	err = p.BatchTransferToUser(
		[]common.Address{usdc, weth},
		[]common.Address{bob, bob},
		[]*big.Int{big.NewInt(100), big.NewInt(10)},
	)
	if err != nil {
		t.Fatalf("BatchTransferToUser: %v", err)
	}
	if book.HolderBalance(bob, usdc).Int64() != 100 || book.HolderBalance(bob, weth).Int64() != 10 {
		t.Errorf("bob: %s usdc, %s weth", book.HolderBalance(bob, usdc), book.HolderBalance(bob, weth))
	}
}

func TestPool_RevertUndoesCustody(t *testing.T) {
	p, book := setup(t)
	mark := p.Checkpoint()
	_ = p.TransferToPool(usdc, alice, big.NewInt(250))
	_ = p.Donate(weth, alice, big.NewInt(1))
	p.Revert(mark)

	if p.Balance(usdc).Sign() != 0 || p.Balance(weth).Sign() != 0 {
		t.Error("pool custody survived revert")
	}
	if book.HolderBalance(alice, usdc).Int64() != 1_000 {
		t.Errorf("alice: %s", book.HolderBalance(alice, usdc))
	}
}
