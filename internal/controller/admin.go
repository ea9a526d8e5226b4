package controller

import (
	"OptionLedger/internal/reason"

	"github.com/ethereum/go-ethereum/common"
)

// Pause flag names used in logs and metrics.
const (
	flagPartial = "partial"
	flagFull    = "full"
)

// lockAdmin takes the write lock for a setter. Setters invoked from inside a
// batch (by a callee) are rejected rather than deadlocking.
func (c *Controller) lockAdmin() error {
	if c.inBatch.Load() {
		return reason.ErrReentrant
	}
	c.mu.Lock()
	return nil
}

// SetOperator lets owner grant or revoke operator rights over all its vaults.
func (c *Controller) SetOperator(owner, operator common.Address, enabled bool) error {
	if err := c.lockAdmin(); err != nil {
		return err
	}
	defer c.mu.Unlock()

	if c.operators[owner][operator] == enabled {
		return reason.Wrap(reason.ErrRedundantToggle, "operator %s already %v", operator.Hex(), enabled)
	}
	if c.operators[owner] == nil {
		c.operators[owner] = make(map[common.Address]bool)
	}
	if enabled {
		c.operators[owner][operator] = true
	} else {
		delete(c.operators[owner], operator)
	}
	c.log.Info().Str("owner", owner.Hex()).Str("operator", operator.Hex()).Bool("enabled", enabled).Msg("operator updated")
	return nil
}

func (c *Controller) SetPartialPauser(caller, pauser common.Address) error {
	if err := c.lockAdmin(); err != nil {
		return err
	}
	defer c.mu.Unlock()

	if err := c.onlyOwner(caller); err != nil {
		return err
	}
	if pauser == (common.Address{}) {
		return reason.Wrap(reason.ErrNullAddress, "partial pauser")
	}
	if pauser == c.partialPauser {
		return reason.Wrap(reason.ErrRedundantToggle, "partial pauser already %s", pauser.Hex())
	}
	c.partialPauser = pauser
	c.log.Info().Str("pauser", pauser.Hex()).Msg("partial pauser updated")
	return nil
}

func (c *Controller) SetFullPauser(caller, pauser common.Address) error {
	if err := c.lockAdmin(); err != nil {
		return err
	}
	defer c.mu.Unlock()

	if err := c.onlyOwner(caller); err != nil {
		return err
	}
	if pauser == (common.Address{}) {
		return reason.Wrap(reason.ErrNullAddress, "full pauser")
	}
	if pauser == c.fullPauser {
		return reason.Wrap(reason.ErrRedundantToggle, "full pauser already %s", pauser.Hex())
	}
	c.fullPauser = pauser
	c.log.Info().Str("pauser", pauser.Hex()).Msg("full pauser updated")
	return nil
}

func (c *Controller) SetSystemPartiallyPaused(caller common.Address, paused bool) error {
	if err := c.lockAdmin(); err != nil {
		return err
	}
	defer c.mu.Unlock()

	if caller != c.partialPauser || caller == (common.Address{}) {
		return reason.Wrap(reason.ErrNotPartialPauser, "caller %s", caller.Hex())
	}
	if c.partiallyPaused == paused {
		return reason.Wrap(reason.ErrRedundantToggle, "partial pause already %v", paused)
	}
	c.partiallyPaused = paused
	c.recordPause(flagPartial, paused)
	return nil
}

func (c *Controller) SetSystemFullyPaused(caller common.Address, paused bool) error {
	if err := c.lockAdmin(); err != nil {
		return err
	}
	defer c.mu.Unlock()

	if caller != c.fullPauser || caller == (common.Address{}) {
		return reason.Wrap(reason.ErrNotFullPauser, "caller %s", caller.Hex())
	}
	if c.fullyPaused == paused {
		return reason.Wrap(reason.ErrRedundantToggle, "full pause already %v", paused)
	}
	c.fullyPaused = paused
	c.recordPause(flagFull, paused)
	return nil
}

// SetCallRestriction toggles whether Call actions may only target
// whitelisted callees.
func (c *Controller) SetCallRestriction(caller common.Address, restricted bool) error {
	if err := c.lockAdmin(); err != nil {
		return err
	}
	defer c.mu.Unlock()

	if err := c.onlyOwner(caller); err != nil {
		return err
	}
	if c.callRestricted == restricted {
		return reason.Wrap(reason.ErrRedundantToggle, "call restriction already %v", restricted)
	}
	c.callRestricted = restricted
	c.log.Info().Bool("restricted", restricted).Msg("call restriction updated")
	return nil
}

func (c *Controller) onlyOwner(caller common.Address) error {
	if caller != c.owner {
		return reason.Wrap(reason.ErrNotOwner, "caller %s", caller.Hex())
	}
	return nil
}

func (c *Controller) recordPause(flag string, paused bool) {
	c.log.Warn().Str("flag", flag).Bool("paused", paused).Msg("pause state changed")
	if c.metrics != nil {
		c.metrics.SetPaused(flag, paused)
	}
}
