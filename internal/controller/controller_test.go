package controller_test

import (
	"OptionLedger/internal/action"
	"OptionLedger/internal/asset"
	"OptionLedger/internal/controller"
	"OptionLedger/internal/ledger"
	"OptionLedger/internal/oracle"
	"OptionLedger/internal/otoken"
	"OptionLedger/internal/pool"
	"OptionLedger/internal/reason"
	"OptionLedger/internal/vault"
	"OptionLedger/internal/whitelist"
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	admin  = common.HexToAddress("0x0000000000000000000000000000000000000a00")
	pricer = common.HexToAddress("0x0000000000000000000000000000000000000b00")
	alice  = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob    = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	weth   = common.HexToAddress("0x00000000000000000000000000000000000000e1")
	usdc   = common.HexToAddress("0x00000000000000000000000000000000000000c1")
	callee = common.HexToAddress("0x0000000000000000000000000000000000000ca1")
)

const expiry int64 = 1_601_020_800 // 2020-09-25 08:00 UTC

func e(n int64, d int) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(d)), nil))
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

type callees map[common.Address]controller.Callee

func (m callees) Callee(a common.Address) (controller.Callee, bool) {
	c, ok := m[a]
	return c, ok
}

type calleeFunc func(ctx context.Context, sender common.Address, data []byte) error

func (f calleeFunc) CallFunction(ctx context.Context, sender common.Address, data []byte) error {
	return f(ctx, sender, data)
}

type testEnv struct {
	ctrl    *controller.Controller
	book    *ledger.BalanceTracker
	pool    *pool.Pool
	oracle  *oracle.Oracle
	otokens *otoken.Registry
	wl      *whitelist.Whitelist
	callees callees
	clock   *clock
	put     *otoken.Otoken
}

// setup builds a controller over the real ledger with a 200 strike WETH put
// collateralized in USDC. Alice holds 1000 USDC.
func setup(t *testing.T) *testEnv {
	t.Helper()
	clk := &clock{t: time.Unix(expiry-86_400, 0)}

	book := ledger.NewBalanceTracker()
	assets := asset.NewRegistry(
		asset.Info{Address: weth, Symbol: "WETH", Decimals: 18},
		asset.Info{Address: usdc, Symbol: "USDC", Decimals: 6},
	)
	wl := whitelist.New()
	wl.WhitelistProduct(weth, usdc, usdc, true)
	wl.WhitelistCollateral(usdc)

	orc := oracle.New(clk.now)
	require.NoError(t, orc.SetStablePrice(usdc, e(1, 8)))
	require.NoError(t, orc.SetAssetPricer(weth, pricer))
	require.NoError(t, orc.SetSpotPrice(pricer, weth, e(300, 8)))

	registry := otoken.NewRegistry(book)
	put, err := otoken.NewFactory(registry, wl, assets, clk.now).Create(weth, usdc, usdc, e(200, 8), expiry, true)
	require.NoError(t, err)

	require.NoError(t, book.Fund(alice, usdc, e(1000, 6)))

	p := pool.New(book)
	cs := callees{}
	ctrl := controller.New(admin, controller.Deps{
		Pool:         p,
		Oracle:       orc,
		Whitelist:    wl,
		Otokens:      registry,
		Decimals:     assets,
		Callees:      cs,
		Checkpointer: book,
		Logger:       zerolog.Nop(),
		Now:          clk.now,
	})
	return &testEnv{ctrl: ctrl, book: book, pool: p, oracle: orc, otokens: registry, wl: wl, callees: cs, clock: clk, put: put}
}

// expire moves past expiry, reports the WETH settlement price and lets the
// dispute window close.
func (env *testEnv) expire(t *testing.T, wethPrice *big.Int) {
	t.Helper()
	env.clock.t = time.Unix(expiry+3_600, 0)
	require.NoError(t, env.oracle.SetExpiryPrice(pricer, weth, expiry, wethPrice))
	env.clock.t = env.clock.t.Add(time.Second)
}

func openVault(owner common.Address, id uint64) action.Action {
	return action.Action{Kind: action.KindOpenVault, Owner: owner, VaultID: id}
}

func depositCollateral(owner common.Address, id uint64, from common.Address, amount *big.Int) action.Action {
	return action.Action{Kind: action.KindDepositCollateral, Owner: owner, SecondAddress: from, Asset: usdc, VaultID: id, Amount: amount}
}

func withdrawCollateral(owner common.Address, id uint64, to common.Address, amount *big.Int) action.Action {
	return action.Action{Kind: action.KindWithdrawCollateral, Owner: owner, SecondAddress: to, Asset: usdc, VaultID: id, Amount: amount}
}

func mint(owner common.Address, id uint64, otok, to common.Address, amount *big.Int) action.Action {
	return action.Action{Kind: action.KindMintShort, Owner: owner, SecondAddress: to, Asset: otok, VaultID: id, Amount: amount}
}

func settle(owner common.Address, id uint64, to common.Address) action.Action {
	return action.Action{Kind: action.KindSettleVault, Owner: owner, SecondAddress: to, VaultID: id}
}

func redeem(otok, receiver common.Address, amount *big.Int) action.Action {
	return action.Action{Kind: action.KindRedeem, SecondAddress: receiver, Asset: otok, Amount: amount}
}

func call(target common.Address, data []byte) action.Action {
	return action.Action{Kind: action.KindCall, SecondAddress: target, Data: data}
}

// writePut opens vault 1 for alice, locks 200 USDC and mints one put to her.
func (env *testEnv) writePut(t *testing.T) {
	t.Helper()
	err := env.ctrl.Operate(context.Background(), alice, []action.Action{
		openVault(alice, 1),
		depositCollateral(alice, 1, alice, e(200, 6)),
		mint(alice, 1, env.put.Address, alice, e(1, 8)),
	})
	require.NoError(t, err)
}

// ============================================================================
// Test: Settlement
// ============================================================================

func TestController_SettlementPaysProceed(t *testing.T) {
	env := setup(t)
	env.writePut(t)
	env.expire(t, e(150, 8))

	proceed, isExcess, err := env.ctrl.GetProceed(alice, 1)
	require.NoError(t, err)
	require.True(t, isExcess)
	assert.Equal(t, e(150, 6), proceed)

	require.NoError(t, env.ctrl.Operate(context.Background(), alice, []action.Action{settle(alice, 1, alice)}))

	assert.Equal(t, e(950, 6), env.book.HolderBalance(alice, usdc))
	assert.Equal(t, e(50, 6), env.pool.Balance(usdc))
	v, err := env.ctrl.GetVault(alice, 1)
	require.NoError(t, err)
	assert.True(t, v.IsEmpty())
}

func TestController_RedeemPaysHolder(t *testing.T) {
	env := setup(t)
	env.writePut(t)
	env.expire(t, e(150, 8))

	payout, err := env.ctrl.GetPayout(env.put.Address, e(1, 8))
	require.NoError(t, err)
	assert.Equal(t, e(50, 6), payout)

	require.NoError(t, env.ctrl.Operate(context.Background(), alice, []action.Action{
		settle(alice, 1, alice),
		redeem(env.put.Address, bob, e(1, 8)),
	}))

	assert.Equal(t, e(50, 6), env.book.HolderBalance(bob, usdc))
	assert.Equal(t, 0, env.pool.Balance(usdc).Sign(), "pool should be drained once vault and holder are paid")
	assert.Equal(t, 0, env.otokens.TotalSupply(env.put.Address).Sign())
}

func TestController_RedeemOutOfTheMoneyBurnsForNothing(t *testing.T) {
	env := setup(t)
	env.writePut(t)
	env.expire(t, e(250, 8))

	require.NoError(t, env.ctrl.Operate(context.Background(), alice, []action.Action{
		redeem(env.put.Address, bob, e(1, 8)),
	}))
	assert.Equal(t, 0, env.book.HolderBalance(bob, usdc).Sign())
	assert.Equal(t, 0, env.otokens.BalanceOf(env.put.Address, alice).Sign())
}

func TestController_RedeemBeforeExpiry(t *testing.T) {
	env := setup(t)
	env.writePut(t)

	err := env.ctrl.Operate(context.Background(), alice, []action.Action{redeem(env.put.Address, alice, e(1, 8))})
	require.ErrorIs(t, err, reason.ErrOtokenNotExpired)
}

func TestController_RedeemZeroIsRejected(t *testing.T) {
	env := setup(t)
	env.writePut(t)
	env.expire(t, e(150, 8))

	for _, amount := range []*big.Int{nil, new(big.Int)} {
		err := env.ctrl.Operate(context.Background(), alice, []action.Action{redeem(env.put.Address, alice, amount)})
		require.ErrorIs(t, err, reason.ErrZeroRedeem)
		assert.Equal(t, reason.KindStructural, reason.KindOf(err))
		assert.Equal(t, "zero_redeem", reason.CodeOf(err))
	}
	assert.Equal(t, e(1, 8), env.otokens.BalanceOf(env.put.Address, alice))
}

func TestController_SettleNeedsFinalPrice(t *testing.T) {
	env := setup(t)
	env.writePut(t)
	env.clock.t = time.Unix(expiry+3_600, 0)
	require.NoError(t, env.oracle.SetExpiryPrice(pricer, weth, expiry, e(150, 8)))

	// dispute window still open
	err := env.ctrl.Operate(context.Background(), alice, []action.Action{settle(alice, 1, alice)})
	require.ErrorIs(t, err, reason.ErrPriceNotFinalized)

	allowed, err := env.ctrl.IsSettlementAllowed(env.put.Address)
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestController_SettleEmptyVault(t *testing.T) {
	env := setup(t)
	require.NoError(t, env.ctrl.Operate(context.Background(), alice, []action.Action{openVault(alice, 1)}))

	err := env.ctrl.Operate(context.Background(), alice, []action.Action{settle(alice, 1, alice)})
	require.ErrorIs(t, err, reason.ErrNothingToSettle)
}

func TestController_WithdrawCollateralWithExpiredShort(t *testing.T) {
	env := setup(t)
	env.writePut(t)
	env.expire(t, e(150, 8))

	err := env.ctrl.Operate(context.Background(), alice, []action.Action{withdrawCollateral(alice, 1, alice, e(1, 6))})
	require.ErrorIs(t, err, reason.ErrExpiredShortInVault)
}

// ============================================================================
// Test: Atomicity
// ============================================================================

func TestController_DepositWithdrawRoundTrip(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	require.NoError(t, env.ctrl.Operate(ctx, alice, []action.Action{
		openVault(alice, 1),
		depositCollateral(alice, 1, alice, e(100, 6)),
	}))
	assert.Equal(t, e(900, 6), env.book.HolderBalance(alice, usdc))

	require.NoError(t, env.ctrl.Operate(ctx, alice, []action.Action{withdrawCollateral(alice, 1, alice, e(100, 6))}))

	assert.Equal(t, e(1000, 6), env.book.HolderBalance(alice, usdc))
	assert.Equal(t, 0, env.pool.Balance(usdc).Sign())
	v, err := env.ctrl.GetVault(alice, 1)
	require.NoError(t, err)
	assert.Equal(t, []common.Address{{}}, v.CollateralAssets)
}

func TestController_UndercollateralizedBatchRollsBack(t *testing.T) {
	env := setup(t)

	err := env.ctrl.Operate(context.Background(), alice, []action.Action{
		openVault(alice, 1),
		depositCollateral(alice, 1, alice, e(100, 6)),
		mint(alice, 1, env.put.Address, alice, e(1, 8)),
	})
	require.ErrorIs(t, err, reason.ErrInvalidFinalVault)
	assert.Equal(t, reason.KindMarginInvariant, reason.KindOf(err))

	assert.Equal(t, uint64(0), env.ctrl.AccountVaultCounter(alice))
	assert.Equal(t, e(1000, 6), env.book.HolderBalance(alice, usdc))
	assert.Equal(t, 0, env.pool.Balance(usdc).Sign())
	assert.Equal(t, 0, env.otokens.TotalSupply(env.put.Address).Sign())
}

func TestController_FailedActionRollsBackEarlierOnes(t *testing.T) {
	env := setup(t)
	env.writePut(t)

	err := env.ctrl.Operate(context.Background(), alice, []action.Action{
		depositCollateral(alice, 1, alice, e(50, 6)),
		withdrawCollateral(alice, 1, alice, e(500, 6)),
	})
	require.ErrorIs(t, err, reason.ErrSlotUnderflow)

	v, err := env.ctrl.GetVault(alice, 1)
	require.NoError(t, err)
	assert.Equal(t, e(200, 6), v.CollateralAmounts[0])
	assert.Equal(t, e(800, 6), env.book.HolderBalance(alice, usdc))
}

func TestController_OverdraftFromHolderFails(t *testing.T) {
	env := setup(t)

	err := env.ctrl.Operate(context.Background(), alice, []action.Action{
		openVault(alice, 1),
		depositCollateral(alice, 1, alice, e(5000, 6)),
	})
	require.ErrorIs(t, err, reason.ErrInsufficientBalance)
	assert.Equal(t, uint64(0), env.ctrl.AccountVaultCounter(alice))
}

// ============================================================================
// Test: Batch shape
// ============================================================================

func TestController_VaultIDsAreSequential(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	err := env.ctrl.Operate(ctx, alice, []action.Action{openVault(alice, 2)})
	require.ErrorIs(t, err, reason.ErrVaultIDNotSequential)

	require.NoError(t, env.ctrl.Operate(ctx, alice, []action.Action{openVault(alice, 1)}))
	require.NoError(t, env.ctrl.Operate(ctx, alice, []action.Action{openVault(alice, 2)}))
	assert.Equal(t, uint64(2), env.ctrl.AccountVaultCounter(alice))

	_, err = env.ctrl.GetVault(alice, 3)
	require.ErrorIs(t, err, reason.ErrVaultIDOutOfRange)
}

func TestController_OpenVaultWithType(t *testing.T) {
	env := setup(t)
	a := openVault(alice, 1)
	a.Data = action.EncodeVaultType(vault.TypeFullyCollateralized)
	require.NoError(t, env.ctrl.Operate(context.Background(), alice, []action.Action{a}))

	v, err := env.ctrl.GetVault(alice, 1)
	require.NoError(t, err)
	assert.Equal(t, vault.TypeFullyCollateralized, v.Type)
}

func TestController_BatchShape(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	err := env.ctrl.Operate(ctx, alice, []action.Action{openVault(alice, 1), depositCollateral(bob, 1, bob, e(1, 6))})
	require.ErrorIs(t, err, reason.ErrCrossOwnerBatch)

	// owner-less actions do not count
	err = env.ctrl.Operate(ctx, alice, []action.Action{openVault(alice, 1), redeem(env.put.Address, bob, e(1, 8))})
	require.ErrorIs(t, err, reason.ErrOtokenNotExpired)

	err = env.ctrl.Operate(ctx, alice, []action.Action{openVault(alice, 1), openVault(alice, 2)})
	require.ErrorIs(t, err, reason.ErrMultipleOpenVault)
}

func TestController_UnknownKindIsSkipped(t *testing.T) {
	env := setup(t)
	err := env.ctrl.Operate(context.Background(), alice, []action.Action{
		openVault(alice, 1),
		{Kind: action.KindUnknown, Owner: bob},
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), env.ctrl.AccountVaultCounter(alice))
}

func TestController_MintUnwhitelistedOtoken(t *testing.T) {
	env := setup(t)
	env.wl.BlacklistOtoken(env.put.Address)

	err := env.ctrl.Operate(context.Background(), alice, []action.Action{
		openVault(alice, 1),
		depositCollateral(alice, 1, alice, e(200, 6)),
		mint(alice, 1, env.put.Address, alice, e(1, 8)),
	})
	require.ErrorIs(t, err, reason.ErrOtokenNotWhitelisted)
}

// ============================================================================
// Test: Operators
// ============================================================================

func TestController_OperatorMayActForOwner(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	require.NoError(t, env.ctrl.Operate(ctx, alice, []action.Action{openVault(alice, 1)}))

	err := env.ctrl.Operate(ctx, bob, []action.Action{depositCollateral(alice, 1, alice, e(10, 6))})
	require.ErrorIs(t, err, reason.ErrNotOwnerOrOperator)

	require.NoError(t, env.ctrl.SetOperator(alice, bob, true))
	assert.True(t, env.ctrl.IsOperator(alice, bob))
	require.NoError(t, env.ctrl.Operate(ctx, bob, []action.Action{depositCollateral(alice, 1, alice, e(10, 6))}))

	err = env.ctrl.SetOperator(alice, bob, true)
	require.ErrorIs(t, err, reason.ErrRedundantToggle)

	require.NoError(t, env.ctrl.SetOperator(alice, bob, false))
	assert.False(t, env.ctrl.IsOperator(alice, bob))
}

func TestController_DepositFromThirdParty(t *testing.T) {
	env := setup(t)
	require.NoError(t, env.book.Fund(bob, usdc, e(10, 6)))
	require.NoError(t, env.ctrl.Operate(context.Background(), alice, []action.Action{openVault(alice, 1)}))

	err := env.ctrl.Operate(context.Background(), alice, []action.Action{depositCollateral(alice, 1, bob, e(10, 6))})
	require.ErrorIs(t, err, reason.ErrDepositCollateralFrom)
}

// ============================================================================
// Test: Pause
// ============================================================================

func TestController_PartialPauseBlocksVaultActions(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	require.NoError(t, env.ctrl.SetPartialPauser(admin, admin))
	require.NoError(t, env.ctrl.SetSystemPartiallyPaused(admin, true))
	assert.Equal(t, controller.StatePartiallyPaused, env.ctrl.State().State)

	err := env.ctrl.Operate(ctx, alice, []action.Action{openVault(alice, 1)})
	require.ErrorIs(t, err, reason.ErrPartiallyPaused)

	// redeem is still reachable, it fails later for its own reasons
	err = env.ctrl.Operate(ctx, alice, []action.Action{redeem(env.put.Address, alice, e(1, 8))})
	require.ErrorIs(t, err, reason.ErrOtokenNotExpired)

	require.NoError(t, env.ctrl.Operate(ctx, alice, nil))
}

func TestController_FullPauseBlocksEverything(t *testing.T) {
	env := setup(t)
	require.NoError(t, env.ctrl.SetFullPauser(admin, bob))
	require.NoError(t, env.ctrl.SetSystemFullyPaused(bob, true))

	err := env.ctrl.Operate(context.Background(), alice, nil)
	require.ErrorIs(t, err, reason.ErrFullyPaused)
	assert.Equal(t, controller.StateFullyPaused, env.ctrl.State().State)

	err = env.ctrl.SyncVaultLatestUpdate(alice, 1)
	require.ErrorIs(t, err, reason.ErrFullyPaused)

	require.NoError(t, env.ctrl.SetSystemFullyPaused(bob, false))
	require.NoError(t, env.ctrl.Operate(context.Background(), alice, []action.Action{openVault(alice, 1)}))
}

func TestController_FullPauseBlocksSettleAndRedeem(t *testing.T) {
	env := setup(t)
	env.writePut(t)
	env.expire(t, e(150, 8))
	require.NoError(t, env.ctrl.SetFullPauser(admin, bob))
	require.NoError(t, env.ctrl.SetSystemFullyPaused(bob, true))
	ctx := context.Background()

	err := env.ctrl.Operate(ctx, alice, []action.Action{settle(alice, 1, alice)})
	require.ErrorIs(t, err, reason.ErrFullyPaused)

	err = env.ctrl.Operate(ctx, alice, []action.Action{redeem(env.put.Address, alice, e(1, 8))})
	require.ErrorIs(t, err, reason.ErrFullyPaused)

	assert.Equal(t, e(800, 6), env.book.HolderBalance(alice, usdc))
	assert.Equal(t, e(1, 8), env.otokens.BalanceOf(env.put.Address, alice))
	v, err := env.ctrl.GetVault(alice, 1)
	require.NoError(t, err)
	assert.False(t, v.IsEmpty())
}

func TestController_PartialPauseAllowsSettle(t *testing.T) {
	env := setup(t)
	env.writePut(t)
	env.expire(t, e(150, 8))
	require.NoError(t, env.ctrl.SetPartialPauser(admin, admin))
	require.NoError(t, env.ctrl.SetSystemPartiallyPaused(admin, true))

	require.NoError(t, env.ctrl.Operate(context.Background(), alice, []action.Action{settle(alice, 1, alice)}))

	assert.Equal(t, e(950, 6), env.book.HolderBalance(alice, usdc))
	v, err := env.ctrl.GetVault(alice, 1)
	require.NoError(t, err)
	assert.True(t, v.IsEmpty())
}

func TestController_PauseToggleRules(t *testing.T) {
	env := setup(t)

	require.ErrorIs(t, env.ctrl.SetPartialPauser(bob, bob), reason.ErrNotOwner)
	require.ErrorIs(t, env.ctrl.SetPartialPauser(admin, common.Address{}), reason.ErrNullAddress)
	require.NoError(t, env.ctrl.SetPartialPauser(admin, bob))
	require.ErrorIs(t, env.ctrl.SetPartialPauser(admin, bob), reason.ErrRedundantToggle)

	require.ErrorIs(t, env.ctrl.SetSystemPartiallyPaused(admin, true), reason.ErrNotPartialPauser)
	require.ErrorIs(t, env.ctrl.SetSystemPartiallyPaused(bob, false), reason.ErrRedundantToggle)
	require.NoError(t, env.ctrl.SetSystemPartiallyPaused(bob, true))
	require.ErrorIs(t, env.ctrl.SetSystemPartiallyPaused(bob, true), reason.ErrRedundantToggle)

	// partial pauser has no say over the full pause
	require.ErrorIs(t, env.ctrl.SetSystemFullyPaused(bob, true), reason.ErrNotFullPauser)

	require.NoError(t, env.ctrl.SetSystemPartiallyPaused(bob, false))
	assert.Equal(t, controller.StateRunning, env.ctrl.State().State)
}

// ============================================================================
// Test: Call
// ============================================================================

func TestController_CallRestriction(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	var got []byte
	env.callees[callee] = calleeFunc(func(_ context.Context, sender common.Address, data []byte) error {
		got = data
		return nil
	})
	assert.True(t, env.ctrl.State().CallRestricted)

	err := env.ctrl.Operate(ctx, alice, []action.Action{call(callee, []byte{1})})
	require.ErrorIs(t, err, reason.ErrCalleeNotWhitelisted)

	env.wl.WhitelistCallee(callee)
	require.NoError(t, env.ctrl.Operate(ctx, alice, []action.Action{call(callee, []byte{1, 2})}))
	assert.Equal(t, []byte{1, 2}, got)

	require.ErrorIs(t, env.ctrl.SetCallRestriction(bob, false), reason.ErrNotOwner)
	require.NoError(t, env.ctrl.SetCallRestriction(admin, false))
	err = env.ctrl.Operate(ctx, alice, []action.Action{call(bob, nil)})
	require.ErrorIs(t, err, reason.ErrUnknownCallee)
}

func TestController_CalleeCannotReenter(t *testing.T) {
	env := setup(t)
	env.wl.WhitelistCallee(callee)
	var inner, setter error
	env.callees[callee] = calleeFunc(func(ctx context.Context, sender common.Address, _ []byte) error {
		inner = env.ctrl.Operate(ctx, sender, []action.Action{openVault(sender, 2)})
		setter = env.ctrl.SetOperator(sender, bob, true)
		return inner
	})

	err := env.ctrl.Operate(context.Background(), alice, []action.Action{openVault(alice, 1), call(callee, nil)})
	require.ErrorIs(t, err, reason.ErrReentrant)
	require.ErrorIs(t, inner, reason.ErrReentrant)
	require.ErrorIs(t, setter, reason.ErrReentrant)
	assert.Equal(t, uint64(0), env.ctrl.AccountVaultCounter(alice))
}

func TestController_CalleeSeesCommittedStateOnly(t *testing.T) {
	env := setup(t)
	env.wl.WhitelistCallee(callee)
	ctx := context.Background()
	require.NoError(t, env.ctrl.Operate(ctx, alice, []action.Action{
		openVault(alice, 1),
		depositCollateral(alice, 1, alice, e(10, 6)),
	}))

	var (
		count     uint64
		v1        vault.Vault
		v2Err     error
		proceed   *big.Int
		v1Err, pe error
	)
	env.callees[callee] = calleeFunc(func(_ context.Context, sender common.Address, _ []byte) error {
		count = env.ctrl.AccountVaultCounter(sender)
		v1, v1Err = env.ctrl.GetVault(sender, 1)
		_, v2Err = env.ctrl.GetVault(sender, 2)
		proceed, _, pe = env.ctrl.GetProceed(sender, 1)
		return nil
	})

	require.NoError(t, env.ctrl.Operate(ctx, alice, []action.Action{
		depositCollateral(alice, 1, alice, e(100, 6)),
		openVault(alice, 2),
		call(callee, nil),
	}))
	assert.Equal(t, uint64(1), count, "vault opened in the running batch is not visible")
	require.NoError(t, v1Err)
	assert.Equal(t, e(10, 6).String(), v1.CollateralAmounts[0].String())
	require.ErrorIs(t, v2Err, reason.ErrVaultIDOutOfRange)
	require.NoError(t, pe)
	assert.Equal(t, e(10, 6).String(), proceed.String())

	// after commit the new state is visible
	assert.Equal(t, uint64(2), env.ctrl.AccountVaultCounter(alice))
}

func TestController_CalleeErrorRevertsBatch(t *testing.T) {
	env := setup(t)
	env.wl.WhitelistCallee(callee)
	env.callees[callee] = calleeFunc(func(context.Context, common.Address, []byte) error {
		return reason.ErrInsufficientBalance
	})

	err := env.ctrl.Operate(context.Background(), alice, []action.Action{
		openVault(alice, 1),
		depositCollateral(alice, 1, alice, e(10, 6)),
		call(callee, nil),
	})
	require.ErrorIs(t, err, reason.ErrInsufficientBalance)
	assert.Equal(t, e(1000, 6), env.book.HolderBalance(alice, usdc))
}

// ============================================================================
// Test: Views
// ============================================================================

func TestController_SyncVaultLatestUpdate(t *testing.T) {
	env := setup(t)
	require.NoError(t, env.ctrl.Operate(context.Background(), alice, []action.Action{openVault(alice, 1)}))

	env.clock.t = env.clock.t.Add(time.Hour)
	require.NoError(t, env.ctrl.SyncVaultLatestUpdate(alice, 1))

	v, err := env.ctrl.GetVault(alice, 1)
	require.NoError(t, err)
	assert.True(t, v.LatestUpdate.Equal(env.clock.t))
}

func TestController_Donate(t *testing.T) {
	env := setup(t)
	require.NoError(t, env.ctrl.Donate(usdc, alice, e(5, 6)))
	assert.Equal(t, e(5, 6), env.pool.Balance(usdc))
	assert.Equal(t, e(995, 6), env.book.HolderBalance(alice, usdc))
}

func TestController_HasExpired(t *testing.T) {
	env := setup(t)
	expired, err := env.ctrl.HasExpired(env.put.Address)
	require.NoError(t, err)
	assert.False(t, expired)

	env.clock.t = time.Unix(expiry, 0)
	expired, err = env.ctrl.HasExpired(env.put.Address)
	require.NoError(t, err)
	assert.True(t, expired)

	_, err = env.ctrl.HasExpired(bob)
	require.ErrorIs(t, err, reason.ErrUnknownOtoken)
}
