package controller

import (
	"OptionLedger/internal/action"
	"OptionLedger/internal/otoken"
	"OptionLedger/internal/reason"
	"OptionLedger/internal/vault"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

func (c *Controller) runActions(b *batch, actions []action.Action) error {
	for i, a := range actions {
		if err := c.dispatch(b, a); err != nil {
			return fmt.Errorf("action %d (%s): %w", i, a.Kind, err)
		}
	}
	return nil
}

func (c *Controller) dispatch(b *batch, a action.Action) error {
	switch a.Kind {
	case action.KindOpenVault:
		args, err := action.ParseOpenVault(a)
		if err != nil {
			return err
		}
		return c.openVault(b, args)
	case action.KindMintShort:
		args, err := action.ParseMint(a)
		if err != nil {
			return err
		}
		return c.mintOtoken(b, args)
	case action.KindBurnShort:
		args, err := action.ParseBurn(a)
		if err != nil {
			return err
		}
		return c.burnOtoken(b, args)
	case action.KindDepositLong:
		args, err := action.ParseDeposit(a)
		if err != nil {
			return err
		}
		return c.depositLong(b, args)
	case action.KindWithdrawLong:
		args, err := action.ParseWithdraw(a)
		if err != nil {
			return err
		}
		return c.withdrawLong(b, args)
	case action.KindDepositCollateral:
		args, err := action.ParseDeposit(a)
		if err != nil {
			return err
		}
		return c.depositCollateral(b, args)
	case action.KindWithdrawCollateral:
		args, err := action.ParseWithdraw(a)
		if err != nil {
			return err
		}
		return c.withdrawCollateral(b, args)
	case action.KindSettleVault:
		args, err := action.ParseSettleVault(a)
		if err != nil {
			return err
		}
		return c.settleVault(b, args)
	case action.KindRedeem:
		args, err := action.ParseRedeem(a)
		if err != nil {
			return err
		}
		return c.redeem(b, args)
	case action.KindCall:
		args, err := action.ParseCall(a)
		if err != nil {
			return err
		}
		return c.call(b, args)
	default:
		// unrecognized kinds are skipped
		return nil
	}
}

// === Guards ===

func (c *Controller) authorize(sender, owner common.Address) error {
	if sender == owner || c.operators[owner][sender] {
		return nil
	}
	return reason.Wrap(reason.ErrNotOwnerOrOperator, "sender %s, owner %s", sender.Hex(), owner.Hex())
}

func (c *Controller) checkVaultID(owner common.Address, id uint64) error {
	if id == 0 || id > c.store.VaultCount(owner) {
		return reason.Wrap(reason.ErrVaultIDOutOfRange, "owner %s vault %d, counter %d", owner.Hex(), id, c.store.VaultCount(owner))
	}
	return nil
}

// vaultAccess combines the owner/operator check with the id range check.
func (c *Controller) vaultAccess(b *batch, owner common.Address, id uint64) error {
	if err := c.authorize(b.sender, owner); err != nil {
		return err
	}
	return c.checkVaultID(owner, id)
}

func (c *Controller) lookupOtoken(addr common.Address) (*otoken.Otoken, error) {
	o, ok := c.otokens.Otoken(addr)
	if !ok {
		return nil, reason.Wrap(reason.ErrUnknownOtoken, "%s", addr.Hex())
	}
	return o, nil
}

// requireFinal fails unless every expiry price the series settles on is final.
func (c *Controller) requireFinal(o *otoken.Otoken) error {
	ok, err := c.calc.IsSettlementAllowed(o.Address)
	if err != nil {
		return err
	}
	if !ok {
		return reason.Wrap(reason.ErrPriceNotFinalized, "%s at %d", o.Address.Hex(), o.Expiry)
	}
	return nil
}

// === Handlers ===

func (c *Controller) openVault(b *batch, args action.OpenVaultArgs) error {
	if err := c.authorize(b.sender, args.Owner); err != nil {
		return err
	}
	next := c.store.VaultCount(args.Owner) + 1
	if args.VaultID != next {
		return reason.Wrap(reason.ErrVaultIDNotSequential, "got %d, want %d", args.VaultID, next)
	}
	c.store.Open(args.Owner, args.VaultType, b.now)
	b.touch(args.Owner, args.VaultID)
	b.opened++
	return nil
}

func (c *Controller) depositLong(b *batch, args action.DepositArgs) error {
	if err := c.vaultAccess(b, args.Owner, args.VaultID); err != nil {
		return err
	}
	if args.From != b.sender && args.From != args.Owner {
		return reason.Wrap(reason.ErrDepositLongFrom, "from %s", args.From.Hex())
	}
	if !c.whitelist.IsWhitelistedOtoken(args.Asset) {
		return reason.Wrap(reason.ErrOtokenNotWhitelisted, "%s", args.Asset.Hex())
	}
	o, err := c.lookupOtoken(args.Asset)
	if err != nil {
		return err
	}
	if o.HasExpired(b.now) {
		return reason.Wrap(reason.ErrOtokenExpired, "cannot deposit %s", o.Address.Hex())
	}

	err = c.store.Mutate(args.Owner, args.VaultID, func(v *vault.Vault) error {
		return v.AddLong(args.Asset, args.Amount, args.Index, b.now)
	})
	if err != nil {
		return err
	}
	b.touch(args.Owner, args.VaultID)
	return c.pool.TransferToPool(args.Asset, args.From, args.Amount)
}

func (c *Controller) withdrawLong(b *batch, args action.WithdrawArgs) error {
	if err := c.vaultAccess(b, args.Owner, args.VaultID); err != nil {
		return err
	}
	o, err := c.lookupOtoken(args.Asset)
	if err != nil {
		return err
	}
	if o.HasExpired(b.now) {
		return reason.Wrap(reason.ErrOtokenExpired, "cannot withdraw %s", o.Address.Hex())
	}

	err = c.store.Mutate(args.Owner, args.VaultID, func(v *vault.Vault) error {
		return v.RemoveLong(args.Asset, args.Amount, args.Index, b.now)
	})
	if err != nil {
		return err
	}
	b.touch(args.Owner, args.VaultID)
	return c.pool.TransferToUser(args.Asset, args.To, args.Amount)
}

func (c *Controller) depositCollateral(b *batch, args action.DepositArgs) error {
	if err := c.vaultAccess(b, args.Owner, args.VaultID); err != nil {
		return err
	}
	if args.From != b.sender && args.From != args.Owner {
		return reason.Wrap(reason.ErrDepositCollateralFrom, "from %s", args.From.Hex())
	}
	if !c.whitelist.IsWhitelistedCollateral(args.Asset) {
		return reason.Wrap(reason.ErrCollateralNotWhitelisted, "%s", args.Asset.Hex())
	}

	err := c.store.Mutate(args.Owner, args.VaultID, func(v *vault.Vault) error {
		return v.AddCollateral(args.Asset, args.Amount, args.Index, b.now)
	})
	if err != nil {
		return err
	}
	b.touch(args.Owner, args.VaultID)
	return c.pool.TransferToPool(args.Asset, args.From, args.Amount)
}

func (c *Controller) withdrawCollateral(b *batch, args action.WithdrawArgs) error {
	if err := c.vaultAccess(b, args.Owner, args.VaultID); err != nil {
		return err
	}
	v, _ := c.store.Get(args.Owner, args.VaultID)
	if short, _, ok := v.FirstShort(); ok {
		o, err := c.lookupOtoken(short)
		if err != nil {
			return err
		}
		if o.HasExpired(b.now) {
			return reason.Wrap(reason.ErrExpiredShortInVault, "%s", short.Hex())
		}
	}

	err := c.store.Mutate(args.Owner, args.VaultID, func(v *vault.Vault) error {
		return v.RemoveCollateral(args.Asset, args.Amount, args.Index, b.now)
	})
	if err != nil {
		return err
	}
	b.touch(args.Owner, args.VaultID)
	return c.pool.TransferToUser(args.Asset, args.To, args.Amount)
}

func (c *Controller) mintOtoken(b *batch, args action.MintArgs) error {
	if err := c.vaultAccess(b, args.Owner, args.VaultID); err != nil {
		return err
	}
	if !c.whitelist.IsWhitelistedOtoken(args.Otoken) {
		return reason.Wrap(reason.ErrOtokenNotWhitelisted, "%s", args.Otoken.Hex())
	}
	o, err := c.lookupOtoken(args.Otoken)
	if err != nil {
		return err
	}
	if o.HasExpired(b.now) {
		return reason.Wrap(reason.ErrOtokenExpired, "cannot mint %s", o.Address.Hex())
	}

	err = c.store.Mutate(args.Owner, args.VaultID, func(v *vault.Vault) error {
		return v.AddShort(args.Otoken, args.Amount, args.Index, b.now)
	})
	if err != nil {
		return err
	}
	b.touch(args.Owner, args.VaultID)
	return c.otokens.Mint(args.Otoken, args.To, args.Amount)
}

func (c *Controller) burnOtoken(b *batch, args action.BurnArgs) error {
	if err := c.vaultAccess(b, args.Owner, args.VaultID); err != nil {
		return err
	}
	if args.From != b.sender && !c.operators[args.From][b.sender] {
		return reason.Wrap(reason.ErrBurnFrom, "from %s", args.From.Hex())
	}
	o, err := c.lookupOtoken(args.Otoken)
	if err != nil {
		return err
	}
	if o.HasExpired(b.now) {
		return reason.Wrap(reason.ErrOtokenExpired, "cannot burn %s", o.Address.Hex())
	}

	err = c.store.Mutate(args.Owner, args.VaultID, func(v *vault.Vault) error {
		return v.RemoveShort(args.Otoken, args.Amount, args.Index, b.now)
	})
	if err != nil {
		return err
	}
	b.touch(args.Owner, args.VaultID)
	return c.otokens.Burn(args.Otoken, args.From, args.Amount)
}

func (c *Controller) redeem(b *batch, args action.RedeemArgs) error {
	if !c.whitelist.IsWhitelistedOtoken(args.Otoken) {
		return reason.Wrap(reason.ErrOtokenNotWhitelisted, "%s", args.Otoken.Hex())
	}
	o, err := c.lookupOtoken(args.Otoken)
	if err != nil {
		return err
	}
	if !o.HasExpired(b.now) {
		return reason.Wrap(reason.ErrOtokenNotExpired, "cannot redeem %s before %d", o.Address.Hex(), o.Expiry)
	}
	if err := c.requireFinal(o); err != nil {
		return err
	}

	payout, err := c.calc.Payout(args.Otoken, args.Amount)
	if err != nil {
		return err
	}
	if err := c.otokens.Burn(args.Otoken, b.sender, args.Amount); err != nil {
		return err
	}
	b.redeemed++
	return c.pool.TransferToUser(o.Collateral, args.Receiver, payout)
}

func (c *Controller) settleVault(b *batch, args action.SettleVaultArgs) error {
	if err := c.vaultAccess(b, args.Owner, args.VaultID); err != nil {
		return err
	}
	v, _ := c.store.Get(args.Owner, args.VaultID)

	short, _, hasShort := v.FirstShort()
	long, longAmount, hasLong := v.FirstLong()
	if !hasShort && !hasLong {
		return reason.Wrap(reason.ErrNothingToSettle, "owner %s vault %d", args.Owner.Hex(), args.VaultID)
	}
	series := short
	if !hasShort {
		series = long
	}
	o, err := c.lookupOtoken(series)
	if err != nil {
		return err
	}
	if !o.HasExpired(b.now) {
		return reason.Wrap(reason.ErrOtokenNotExpired, "cannot settle %s before %d", o.Address.Hex(), o.Expiry)
	}
	if err := c.requireFinal(o); err != nil {
		return err
	}

	proceed, isExcess, err := c.calc.ExcessCollateral(v)
	if err != nil {
		return err
	}
	if !isExcess {
		proceed.SetInt64(0)
	}

	err = c.store.Mutate(args.Owner, args.VaultID, func(v *vault.Vault) error {
		v.Clear(b.now)
		return nil
	})
	if err != nil {
		return err
	}
	if hasLong {
		if err := c.otokens.BurnFromPool(long, longAmount); err != nil {
			return err
		}
	}
	b.settled++
	c.log.Debug().
		Str("owner", args.Owner.Hex()).
		Uint64("vault_id", args.VaultID).
		Str("payout", proceed.String()).
		Msg("vault settled")
	return c.pool.TransferToUser(o.Collateral, args.To, proceed)
}

func (c *Controller) call(b *batch, args action.CallArgs) error {
	if c.callRestricted && !c.whitelist.IsWhitelistedCallee(args.Callee) {
		return reason.Wrap(reason.ErrCalleeNotWhitelisted, "%s", args.Callee.Hex())
	}
	if c.callees == nil {
		return reason.Wrap(reason.ErrUnknownCallee, "%s", args.Callee.Hex())
	}
	callee, ok := c.callees.Callee(args.Callee)
	if !ok {
		return reason.Wrap(reason.ErrUnknownCallee, "%s", args.Callee.Hex())
	}
	return callee.CallFunction(b.ctx, b.sender, args.Data)
}
