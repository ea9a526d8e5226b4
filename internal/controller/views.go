package controller

import (
	"OptionLedger/internal/reason"
	"OptionLedger/internal/vault"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// State is the pause state of the system.
type State int

const (
	StateRunning State = iota
	StatePartiallyPaused
	StateFullyPaused
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "RUNNING"
	case StatePartiallyPaused:
		return "PARTIALLY_PAUSED"
	case StateFullyPaused:
		return "FULLY_PAUSED"
	default:
		return "UNKNOWN"
	}
}

// SystemState is a snapshot of the controller's roles and flags.
type SystemState struct {
	State           State
	PartiallyPaused bool
	FullyPaused     bool
	CallRestricted  bool
	Owner           common.Address
	PartialPauser   common.Address
	FullPauser      common.Address
}

// View runs fn while no batch or setter is in progress. Readers outside the
// batch goroutine wrap their reads in View. The vault reads below take no
// lock and always answer from committed state, so a callee running inside
// a batch sees the vaults as they were before the batch began.
func (c *Controller) View(fn func()) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	fn()
}

func (c *Controller) State() SystemState {
	s := SystemState{
		PartiallyPaused: c.partiallyPaused,
		FullyPaused:     c.fullyPaused,
		CallRestricted:  c.callRestricted,
		Owner:           c.owner,
		PartialPauser:   c.partialPauser,
		FullPauser:      c.fullPauser,
	}
	switch {
	case c.fullyPaused:
		s.State = StateFullyPaused
	case c.partiallyPaused:
		s.State = StatePartiallyPaused
	}
	return s
}

func (c *Controller) IsOperator(owner, operator common.Address) bool {
	return c.operators[owner][operator]
}

// AccountVaultCounter is the number of vaults owner has opened.
func (c *Controller) AccountVaultCounter(owner common.Address) uint64 {
	return c.store.CommittedVaultCount(owner)
}

// GetVault returns a copy of the vault.
func (c *Controller) GetVault(owner common.Address, id uint64) (vault.Vault, error) {
	v, ok := c.store.Committed(owner, id)
	if !ok {
		return vault.Vault{}, reason.Wrap(reason.ErrVaultIDOutOfRange, "owner %s vault %d", owner.Hex(), id)
	}
	return *v, nil
}

// GetProceed returns what the vault could release (isExcess) or still needs.
func (c *Controller) GetProceed(owner common.Address, id uint64) (*big.Int, bool, error) {
	v, ok := c.store.Committed(owner, id)
	if !ok {
		return nil, false, reason.Wrap(reason.ErrVaultIDOutOfRange, "owner %s vault %d", owner.Hex(), id)
	}
	return c.calc.ExcessCollateral(v)
}

// GetPayout is the collateral a holder receives for redeeming amount of an
// expired otoken.
func (c *Controller) GetPayout(otoken common.Address, amount *big.Int) (*big.Int, error) {
	return c.calc.Payout(otoken, amount)
}

func (c *Controller) IsSettlementAllowed(otoken common.Address) (bool, error) {
	return c.calc.IsSettlementAllowed(otoken)
}

func (c *Controller) HasExpired(otoken common.Address) (bool, error) {
	o, err := c.lookupOtoken(otoken)
	if err != nil {
		return false, err
	}
	return o.HasExpired(c.now()), nil
}

// donator is implemented by pools that book donations separately from
// vault deposits.
type donator interface {
	Donate(asset, from common.Address, amount *big.Int) error
}

// Donate moves assets into the pool without crediting a vault.
func (c *Controller) Donate(asset, from common.Address, amount *big.Int) error {
	if err := c.lockAdmin(); err != nil {
		return err
	}
	defer c.mu.Unlock()

	if d, ok := c.pool.(donator); ok {
		return d.Donate(asset, from, amount)
	}
	return c.pool.TransferToPool(asset, from, amount)
}

// SyncVaultLatestUpdate stamps the vault with the current time.
func (c *Controller) SyncVaultLatestUpdate(owner common.Address, id uint64) error {
	if err := c.lockAdmin(); err != nil {
		return err
	}
	defer c.mu.Unlock()

	if c.fullyPaused {
		return reason.ErrFullyPaused
	}
	now := c.now()
	return c.store.Mutate(owner, id, func(v *vault.Vault) error {
		v.LatestUpdate = now
		return nil
	})
}
