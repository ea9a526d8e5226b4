package reason

// Vault slot primitives
var (
	ErrZeroShort                 = New(KindStructural, "zero_short", "cannot add zero short amount")
	ErrShortIndexOutOfRange      = New(KindStructural, "short_index_out_of_range", "short index is past the next free slot")
	ErrWrongShortAtIndex         = New(KindStructural, "wrong_short_at_index", "short slot holds a different asset")
	ErrZeroLong                  = New(KindStructural, "zero_long", "cannot add zero long amount")
	ErrLongIndexOutOfRange       = New(KindStructural, "long_index_out_of_range", "long index is past the next free slot")
	ErrWrongLongAtIndex          = New(KindStructural, "wrong_long_at_index", "long slot holds a different asset")
	ErrZeroCollateral            = New(KindStructural, "zero_collateral", "cannot add zero collateral amount")
	ErrCollateralIndexOutOfRange = New(KindStructural, "collateral_index_out_of_range", "collateral index is past the next free slot")
	ErrWrongCollateralAtIndex    = New(KindStructural, "wrong_collateral_at_index", "collateral slot holds a different asset")
	ErrSlotUnderflow             = New(KindArithmetic, "slot_underflow", "remove amount exceeds stored amount")
)

// Margin calculator structure checks
var (
	ErrTooManyShorts      = New(KindStructural, "too_many_shorts", "vault can only hold one short otoken")
	ErrTooManyLongs       = New(KindStructural, "too_many_longs", "vault can only hold one long otoken")
	ErrTooManyCollaterals = New(KindStructural, "too_many_collaterals", "vault can only hold one collateral asset")
	ErrSlotLengthMismatch = New(KindStructural, "slot_length_mismatch", "asset and amount arrays differ in length")
	ErrLongNotMarginable  = New(KindStructural, "long_not_marginable", "long asset not marginable for short asset")
	ErrCollateralMismatch = New(KindStructural, "collateral_mismatch", "collateral asset does not match the otoken's collateral")
	ErrUnknownOtoken      = New(KindStructural, "unknown_otoken", "otoken is not registered")
	ErrZeroPrice          = New(KindOracleNotReady, "zero_price", "oracle returned a zero price")
	ErrPriceNotFinalized  = New(KindOracleNotReady, "price_not_finalized", "expiry price is not finalized")
	ErrPriceUnavailable   = New(KindOracleNotReady, "price_unavailable", "oracle has no price for asset")
)

// Action parsing
var (
	ErrNotOpenVault     = New(KindStructural, "not_open_vault", "action is not an open vault action")
	ErrOpenVaultOwner   = New(KindStructural, "open_vault_owner_null", "open vault owner is the null identity")
	ErrInvalidVaultType = New(KindStructural, "invalid_vault_type", "vault type must be 0 or 1")
	ErrNotMint          = New(KindStructural, "not_mint", "action is not a mint action")
	ErrMintOwner        = New(KindStructural, "mint_owner_null", "mint owner is the null identity")
	ErrNotBurn          = New(KindStructural, "not_burn", "action is not a burn action")
	ErrBurnOwner        = New(KindStructural, "burn_owner_null", "burn owner is the null identity")
	ErrNotDeposit       = New(KindStructural, "not_deposit", "action is not a deposit action")
	ErrDepositOwner     = New(KindStructural, "deposit_owner_null", "deposit owner is the null identity")
	ErrNotWithdraw      = New(KindStructural, "not_withdraw", "action is not a withdraw action")
	ErrWithdrawOwner    = New(KindStructural, "withdraw_owner_null", "withdraw owner is the null identity")
	ErrWithdrawTo       = New(KindStructural, "withdraw_to_null", "withdraw destination is the null identity")
	ErrNotRedeem        = New(KindStructural, "not_redeem", "action is not a redeem action")
	ErrRedeemReceiver   = New(KindStructural, "redeem_receiver_null", "redeem receiver is the null identity")
	ErrZeroRedeem       = New(KindStructural, "zero_redeem", "cannot redeem a zero otoken amount")
	ErrNotSettleVault   = New(KindStructural, "not_settle_vault", "action is not a settle vault action")
	ErrSettleOwner      = New(KindStructural, "settle_owner_null", "settle owner is the null identity")
	ErrSettleTo         = New(KindStructural, "settle_to_null", "settle destination is the null identity")
	ErrNotCall          = New(KindStructural, "not_call", "action is not a call action")
	ErrCallTarget       = New(KindStructural, "call_target_null", "call target is the null identity")
	ErrCallData         = New(KindStructural, "call_data_invalid", "callee could not decode the call data")
	ErrBatchLength      = New(KindStructural, "batch_length_mismatch", "batch transfer arrays differ in length")
)

// Controller authorization
var (
	ErrNotOwnerOrOperator    = New(KindAuthorization, "not_owner_or_operator", "sender is not the vault owner or an approved operator")
	ErrDepositLongFrom       = New(KindAuthorization, "deposit_long_from", "long can only be deposited from the sender or the vault owner")
	ErrDepositCollateralFrom = New(KindAuthorization, "deposit_collateral_from", "collateral can only be deposited from the sender or the vault owner")
	ErrBurnFrom              = New(KindAuthorization, "burn_from", "otokens can only be burned from the sender or an operator of the holder")
	ErrNotPartialPauser      = New(KindAuthorization, "not_partial_pauser", "sender is not the partial pauser")
	ErrNotFullPauser         = New(KindAuthorization, "not_full_pauser", "sender is not the full pauser")
	ErrNotOwner              = New(KindAuthorization, "not_controller_owner", "sender is not the controller owner")
	ErrNotPricer             = New(KindAuthorization, "not_pricer", "sender is not the pricer for this asset")
	ErrNotDisputer           = New(KindAuthorization, "not_disputer", "sender is not the disputer")
)

// Controller state guards
var (
	ErrFullyPaused              = New(KindStateGuard, "system_fully_paused", "system is fully paused")
	ErrPartiallyPaused          = New(KindStateGuard, "system_partially_paused", "system is partially paused")
	ErrRedundantToggle          = New(KindStateGuard, "redundant_toggle", "value is already set")
	ErrNullAddress              = New(KindStructural, "null_address", "address is the null identity")
	ErrCrossOwnerBatch          = New(KindStateGuard, "cross_owner_batch", "cannot run actions on different owners in one batch")
	ErrMultipleOpenVault        = New(KindStateGuard, "multiple_open_vault", "cannot open more than one vault in one batch")
	ErrVaultIDNotSequential     = New(KindStateGuard, "vault_id_not_sequential", "vault id must be the owner's counter plus one")
	ErrVaultIDOutOfRange        = New(KindStateGuard, "invalid_vault_id", "vault id is out of range")
	ErrReentrant                = New(KindStateGuard, "reentrant_call", "operate called while a batch is in progress")
	ErrOtokenNotWhitelisted     = New(KindStateGuard, "otoken_not_whitelisted", "otoken is not whitelisted")
	ErrCollateralNotWhitelisted = New(KindStateGuard, "collateral_not_whitelisted", "collateral asset is not whitelisted")
	ErrProductNotWhitelisted    = New(KindStateGuard, "product_not_whitelisted", "product is not whitelisted")
	ErrCalleeNotWhitelisted     = New(KindStateGuard, "callee_not_whitelisted", "callee is not whitelisted while call restriction is active")
	ErrUnknownCallee            = New(KindStateGuard, "unknown_callee", "no callee is registered at the target address")
	ErrOtokenExpired            = New(KindStateGuard, "otoken_expired", "otoken has expired")
	ErrOtokenNotExpired         = New(KindStateGuard, "otoken_not_expired", "otoken has not expired")
	ErrExpiredShortInVault      = New(KindStateGuard, "expired_short_in_vault", "cannot withdraw collateral from a vault with an expired short")
	ErrNothingToSettle          = New(KindStateGuard, "nothing_to_settle", "vault has no short or long otoken")
	ErrInsufficientBalance      = New(KindArithmetic, "insufficient_balance", "holder balance is below the requested amount")
	ErrInvalidOtokenParams      = New(KindStructural, "invalid_otoken_params", "otoken parameters are invalid")
	ErrDuplicateOtoken          = New(KindStateGuard, "duplicate_otoken", "otoken already created")
	ErrPriceAlreadySet          = New(KindStateGuard, "price_already_set", "expiry price already submitted")
	ErrLockingPeriod            = New(KindStateGuard, "locking_period", "locking period is not over")
	ErrDisputePeriodOver        = New(KindStateGuard, "dispute_period_over", "dispute period is over")
	ErrStablePriceConflict      = New(KindStateGuard, "stable_price_conflict", "asset already has a pricer or stable price")
)

// Margin invariant
var (
	ErrInvalidFinalVault = New(KindMarginInvariant, "invalid_final_vault", "vault is under-collateralized after the batch")
)
