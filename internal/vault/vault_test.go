package vault_test

import (
	"OptionLedger/internal/reason"
	"OptionLedger/internal/vault"
	"errors"
	"math/big"
	"math/rand"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

var (
	owner   = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	otokenA = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	otokenB = common.HexToAddress("0x00000000000000000000000000000000000000bb")
	usdc    = common.HexToAddress("0x00000000000000000000000000000000000000c1")
	weth    = common.HexToAddress("0x00000000000000000000000000000000000000e1")
	t0      = time.Unix(1_600_000_000, 0)
)

func amt(n int64) *big.Int { return big.NewInt(n) }

// ============================================================================
// Test: Add
// ============================================================================

func TestVault_AddShortAppendsAtNextIndex(t *testing.T) {
	v := &vault.Vault{}
	if err := v.AddShort(otokenA, amt(10), 0, t0); err != nil {
		t.Fatalf("AddShort: %v", err)
	}
	if err := v.AddShort(otokenA, amt(5), 0, t0); err != nil {
		t.Fatalf("AddShort same index: %v", err)
	}
	if len(v.ShortOtokens) != 1 || v.ShortAmounts[0].Int64() != 15 {
		t.Errorf("got %v %v", v.ShortOtokens, v.ShortAmounts)
	}
}

func TestVault_AddZeroFails(t *testing.T) {
	v := &vault.Vault{}
	if err := v.AddShort(otokenA, amt(0), 0, t0); !errors.Is(err, reason.ErrZeroShort) {
		t.Errorf("short: got %v", err)
	}
	if err := v.AddLong(otokenA, amt(0), 0, t0); !errors.Is(err, reason.ErrZeroLong) {
		t.Errorf("long: got %v", err)
	}
	if err := v.AddCollateral(usdc, amt(0), 0, t0); !errors.Is(err, reason.ErrZeroCollateral) {
		t.Errorf("collateral: got %v", err)
	}
}

func TestVault_AddPastNextIndexFails(t *testing.T) {
	v := &vault.Vault{}
	if err := v.AddShort(otokenA, amt(10), 4, t0); !errors.Is(err, reason.ErrShortIndexOutOfRange) {
		t.Errorf("short: got %v", err)
	}
	if err := v.AddLong(otokenA, amt(10), 4, t0); !errors.Is(err, reason.ErrLongIndexOutOfRange) {
		t.Errorf("long: got %v", err)
	}
	if err := v.AddCollateral(weth, amt(10), 4, t0); !errors.Is(err, reason.ErrCollateralIndexOutOfRange) {
		t.Errorf("collateral: got %v", err)
	}
}

func TestVault_SlotExclusivity(t *testing.T) {
	v := &vault.Vault{}
	_ = v.AddCollateral(usdc, amt(100), 0, t0)

	if err := v.AddCollateral(weth, amt(1), 0, t0); !errors.Is(err, reason.ErrWrongCollateralAtIndex) {
		t.Fatalf("second asset in occupied slot: got %v", err)
	}
	if err := v.AddShort(otokenA, amt(1), 0, t0); err != nil {
		t.Fatal(err)
	}
	if err := v.AddShort(otokenB, amt(1), 0, t0); !errors.Is(err, reason.ErrWrongShortAtIndex) {
		t.Errorf("short: got %v", err)
	}
	_ = v.AddLong(otokenA, amt(1), 0, t0)
	if err := v.AddLong(otokenB, amt(1), 0, t0); !errors.Is(err, reason.ErrWrongLongAtIndex) {
		t.Errorf("long: got %v", err)
	}
}

func TestVault_ClearedSlotIsReusableByAnyAsset(t *testing.T) {
	v := &vault.Vault{}
	_ = v.AddCollateral(usdc, amt(100), 0, t0)
	if err := v.RemoveCollateral(usdc, amt(100), 0, t0); err != nil {
		t.Fatalf("RemoveCollateral: %v", err)
	}
	if v.CollateralAssets[0] != (common.Address{}) {
		t.Fatal("slot should be nulled")
	}
	if len(v.CollateralAssets) != 1 {
		t.Fatal("slot array should not shrink")
	}
	if err := v.AddCollateral(weth, amt(3), 0, t0); err != nil {
		t.Fatalf("reuse cleared slot: %v", err)
	}
	if v.CollateralAssets[0] != weth || v.CollateralAmounts[0].Int64() != 3 {
		t.Errorf("got %v %v", v.CollateralAssets, v.CollateralAmounts)
	}
}

// ============================================================================
// Test: Remove
// ============================================================================

func TestVault_RemoveMoreThanStoredUnderflows(t *testing.T) {
	v := &vault.Vault{}
	_ = v.AddLong(otokenA, amt(10), 0, t0)

	err := v.RemoveLong(otokenA, amt(11), 0, t0)
	if !errors.Is(err, reason.ErrSlotUnderflow) {
		t.Fatalf("got %v", err)
	}
	if reason.KindOf(err) != reason.KindArithmetic {
		t.Errorf("kind: got %s", reason.KindOf(err))
	}
	if v.LongAmounts[0].Int64() != 10 {
		t.Error("failed remove must not change the amount")
	}
}

func TestVault_RemoveWrongAssetOrIndex(t *testing.T) {
	v := &vault.Vault{}
	_ = v.AddShort(otokenA, amt(10), 0, t0)

	if err := v.RemoveShort(otokenB, amt(1), 0, t0); !errors.Is(err, reason.ErrWrongShortAtIndex) {
		t.Errorf("wrong asset: got %v", err)
	}
	if err := v.RemoveShort(otokenA, amt(1), 1, t0); !errors.Is(err, reason.ErrShortIndexOutOfRange) {
		t.Errorf("wrong index: got %v", err)
	}
}

func TestVault_MutationUpdatesTimestamp(t *testing.T) {
	v := &vault.Vault{}
	t1 := t0.Add(time.Hour)
	_ = v.AddCollateral(usdc, amt(1), 0, t0)
	_ = v.RemoveCollateral(usdc, amt(1), 0, t1)
	if !v.LatestUpdate.Equal(t1) {
		t.Errorf("got %v, want %v", v.LatestUpdate, t1)
	}

	// failed mutation leaves it alone
	_ = v.RemoveCollateral(usdc, amt(1), 0, t1.Add(time.Hour))
	if !v.LatestUpdate.Equal(t1) {
		t.Errorf("failed mutation moved timestamp to %v", v.LatestUpdate)
	}
}

// ============================================================================
// Test: Conservation
// ============================================================================

func TestVault_Conservation(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	v := &vault.Vault{}
	want := new(big.Int)

	for i := 0; i < 500; i++ {
		n := amt(rng.Int63n(1000))
		if rng.Intn(2) == 0 {
			if err := v.AddCollateral(usdc, n, 0, t0); err == nil {
				want.Add(want, n)
			}
		} else {
			if err := v.RemoveCollateral(usdc, n, 0, t0); err == nil {
				want.Sub(want, n)
			}
		}
	}

	got := new(big.Int)
	if len(v.CollateralAmounts) > 0 {
		got = v.CollateralAmounts[0]
	}
	if got.Cmp(want) != 0 {
		t.Errorf("stored %s, want Σadds−Σremoves = %s", got, want)
	}
}

func TestVault_CloneIsDeep(t *testing.T) {
	v := &vault.Vault{}
	_ = v.AddCollateral(usdc, amt(5), 0, t0)
	cp := v.Clone()
	cp.CollateralAmounts[0].SetInt64(99)
	cp.CollateralAssets[0] = weth
	if v.CollateralAmounts[0].Int64() != 5 || v.CollateralAssets[0] != usdc {
		t.Error("clone shares memory with original")
	}
}
