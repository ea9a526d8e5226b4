package otoken_test

import (
	"OptionLedger/internal/asset"
	"OptionLedger/internal/ledger"
	"OptionLedger/internal/otoken"
	"OptionLedger/internal/reason"
	"OptionLedger/internal/whitelist"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

var (
	weth = common.HexToAddress("0x00000000000000000000000000000000000000e1")
	usdc = common.HexToAddress("0x00000000000000000000000000000000000000c1")
	user = common.HexToAddress("0x00000000000000000000000000000000000000a1")
)

const sep25th2020 = int64(1601020800)

func assets() *asset.Registry {
	return asset.NewRegistry(
		asset.Info{Address: weth, Symbol: "WETH", Decimals: 18},
		asset.Info{Address: usdc, Symbol: "USDC", Decimals: 6},
	)
}

func strike(whole int64, frac8 int64) *big.Int {
	v := big.NewInt(whole)
	v.Mul(v, big.NewInt(1e8))
	return v.Add(v, big.NewInt(frac8))
}

func newFactory(now time.Time) (*otoken.Factory, *otoken.Registry, *whitelist.Whitelist) {
	wl := whitelist.New()
	wl.WhitelistProduct(weth, usdc, usdc, true)
	wl.WhitelistProduct(weth, usdc, weth, false)
	reg := otoken.NewRegistry(ledger.NewBalanceTracker())
	return otoken.NewFactory(reg, wl, assets(), func() time.Time { return now }), reg, wl
}

// ============================================================================
// Test: Name and Symbol
// ============================================================================

func TestOtoken_NameAndSymbol(t *testing.T) {
	cases := []struct {
		strike     *big.Int
		expiry     int64
		isPut      bool
		collateral common.Address
		name       string
		symbol     string
	}{
		{strike(200, 0), sep25th2020, true, usdc,
			"WETHUSDC 25-September-2020 200Put USDC Collateral", "oWETHUSDC/USDC-25SEP20-200P"},
		{strike(200, 0), sep25th2020, false, weth,
			"WETHUSDC 25-September-2020 200Call WETH Collateral", "oWETHUSDC/WETH-25SEP20-200C"},
		{strike(0, 50000000), sep25th2020, true, usdc,
			"WETHUSDC 25-September-2020 0.5Put USDC Collateral", "oWETHUSDC/USDC-25SEP20-0.5P"},
		{strike(0, 10052), sep25th2020, true, usdc,
			"WETHUSDC 25-September-2020 0.00010052Put USDC Collateral", "oWETHUSDC/USDC-25SEP20-0.00010052P"},
		{strike(0, 7290000), sep25th2020, true, usdc,
			"WETHUSDC 25-September-2020 0.0729Put USDC Collateral", "oWETHUSDC/USDC-25SEP20-0.0729P"},
		{strike(0, 0), sep25th2020, true, usdc,
			"WETHUSDC 25-September-2020 0Put USDC Collateral", "oWETHUSDC/USDC-25SEP20-0P"},
		{strike(200, 0), 28800, true, usdc,
			"WETHUSDC 01-January-1970 200Put USDC Collateral", "oWETHUSDC/USDC-01JAN70-200P"},
		{strike(200, 0), 11865340800, true, usdc,
			"WETHUSDC 31-December-2345 200Put USDC Collateral", "oWETHUSDC/USDC-31DEC45-200P"},
		{strike(200, 0), 7560201600, true, usdc,
			"WETHUSDC 29-July-2209 200Put USDC Collateral", "oWETHUSDC/USDC-29JUL09-200P"},
	}

	reg := assets()
	for _, tc := range cases {
		o := &otoken.Otoken{
			Underlying:  weth,
			Strike:      usdc,
			Collateral:  tc.collateral,
			StrikePrice: tc.strike,
			Expiry:      tc.expiry,
			IsPut:       tc.isPut,
		}
		if got := o.Name(reg); got != tc.name {
			t.Errorf("name: got %q, want %q", got, tc.name)
		}
		if got := o.Symbol(reg); got != tc.symbol {
			t.Errorf("symbol: got %q, want %q", got, tc.symbol)
		}
	}
}

func TestOtoken_HasExpiredAtExpiryInstant(t *testing.T) {
	o := &otoken.Otoken{Expiry: sep25th2020, StrikePrice: strike(1, 0)}
	if o.HasExpired(time.Unix(sep25th2020-1, 0)) {
		t.Error("should not be expired one second before expiry")
	}
	if !o.HasExpired(time.Unix(sep25th2020, 0)) {
		t.Error("should be expired at expiry")
	}
}

// ============================================================================
// Test: Factory
// ============================================================================

func TestFactory_CreateWhitelistsAndRegisters(t *testing.T) {
	f, reg, wl := newFactory(time.Unix(sep25th2020-86400*3, 0))

	o, err := f.Create(weth, usdc, usdc, strike(200, 0), sep25th2020, true)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if o.Address != otoken.TargetAddress(weth, usdc, usdc, strike(200, 0), sep25th2020, true) {
		t.Error("address should be deterministic")
	}
	if !wl.IsWhitelistedOtoken(o.Address) {
		t.Error("created otoken should be whitelisted")
	}
	if _, ok := reg.Otoken(o.Address); !ok {
		t.Error("created otoken should be registered")
	}
}

func TestFactory_Rejections(t *testing.T) {
	now := time.Unix(sep25th2020-86400*3, 0)
	cases := []struct {
		name    string
		create  func(f *otoken.Factory) error
		wantErr error
	}{
		{"expired", func(f *otoken.Factory) error {
			_, err := f.Create(weth, usdc, usdc, strike(200, 0), sep25th2020-86400*4, true)
			return err
		}, reason.ErrInvalidOtokenParams},
		{"not 08:00 UTC", func(f *otoken.Factory) error {
			_, err := f.Create(weth, usdc, usdc, strike(200, 0), sep25th2020+1, true)
			return err
		}, reason.ErrInvalidOtokenParams},
		{"too far", func(f *otoken.Factory) error {
			_, err := f.Create(weth, usdc, usdc, strike(200, 0), otoken.MaxExpiry+86400+28800, true)
			return err
		}, reason.ErrInvalidOtokenParams},
		{"zero strike put", func(f *otoken.Factory) error {
			_, err := f.Create(weth, usdc, usdc, strike(0, 0), sep25th2020, true)
			return err
		}, reason.ErrInvalidOtokenParams},
		{"not whitelisted", func(f *otoken.Factory) error {
			_, err := f.Create(usdc, weth, weth, strike(200, 0), sep25th2020, true)
			return err
		}, reason.ErrProductNotWhitelisted},
		{"duplicate", func(f *otoken.Factory) error {
			if _, err := f.Create(weth, usdc, usdc, strike(200, 0), sep25th2020, true); err != nil {
				return err
			}
			_, err := f.Create(weth, usdc, usdc, strike(200, 0), sep25th2020, true)
			return err
		}, reason.ErrDuplicateOtoken},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f, _, _ := newFactory(now)
			if err := tc.create(f); !errors.Is(err, tc.wantErr) {
				t.Errorf("got %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestFactory_ZeroStrikeCallAllowed(t *testing.T) {
	f, _, _ := newFactory(time.Unix(sep25th2020-86400, 0))
	if _, err := f.Create(weth, usdc, weth, strike(0, 0), sep25th2020, false); err != nil {
		t.Errorf("zero strike call should be allowed: %v", err)
	}
}

// ============================================================================
// Test: Registry balances
// ============================================================================

func TestRegistry_MintBurnSupply(t *testing.T) {
	f, reg, _ := newFactory(time.Unix(sep25th2020-86400, 0))
	o, _ := f.Create(weth, usdc, usdc, strike(200, 0), sep25th2020, true)

	if err := reg.Mint(o.Address, user, big.NewInt(5e8)); err != nil {
		t.Fatalf("Mint: %v", err)
	}
	if err := reg.Burn(o.Address, user, big.NewInt(2e8)); err != nil {
		t.Fatalf("Burn: %v", err)
	}
	if got := reg.BalanceOf(o.Address, user); got.Int64() != 3e8 {
		t.Errorf("balance: got %s, want 3e8", got)
	}
	if got := reg.TotalSupply(o.Address); got.Int64() != 3e8 {
		t.Errorf("supply: got %s, want 3e8", got)
	}
	if err := reg.Burn(o.Address, user, big.NewInt(4e8)); !errors.Is(err, reason.ErrInsufficientBalance) {
		t.Errorf("overburn: got %v", err)
	}
}
