// Package controller applies batches of vault actions atomically and enforces
// the end-of-batch margin invariant, the pause flags and operator permissions.
package controller

import (
	"OptionLedger/internal/action"
	"OptionLedger/internal/margin"
	"OptionLedger/internal/observability"
	"OptionLedger/internal/otoken"
	"OptionLedger/internal/reason"
	"OptionLedger/internal/vault"
	"context"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
)

// Pool takes custody of deposited assets and pays them back out.
type Pool interface {
	TransferToPool(asset, from common.Address, amount *big.Int) error
	TransferToUser(asset, to common.Address, amount *big.Int) error
	BatchTransferToPool(assets, froms []common.Address, amounts []*big.Int) error
	BatchTransferToUser(assets, tos []common.Address, amounts []*big.Int) error
}

// Oracle provides live and expiry prices with 8 decimals.
type Oracle interface {
	SpotPrice(asset common.Address) (*big.Int, error)
	ExpiryPrice(asset common.Address, expiry int64) (*big.Int, bool, error)
}

type Whitelist interface {
	IsWhitelistedOtoken(otoken common.Address) bool
	IsWhitelistedCollateral(asset common.Address) bool
	IsWhitelistedProduct(underlying, strike, collateral common.Address, isPut bool) bool
	IsWhitelistedCallee(callee common.Address) bool
}

// Otokens looks up series and moves otoken balances.
type Otokens interface {
	Otoken(addr common.Address) (*otoken.Otoken, bool)
	Mint(otoken, to common.Address, amount *big.Int) error
	Burn(otoken, from common.Address, amount *big.Int) error
	BurnFromPool(otoken common.Address, amount *big.Int) error
	BalanceOf(otoken, holder common.Address) *big.Int
}

// Callee is the target of a Call action. It may call back into the controller.
type Callee interface {
	CallFunction(ctx context.Context, sender common.Address, data []byte) error
}

// Callees resolves a Call target address.
type Callees interface {
	Callee(addr common.Address) (Callee, bool)
}

// Checkpointer is implemented by collaborators whose effects a failed batch
// must undo. Marks nest.
type Checkpointer interface {
	Checkpoint() int
	Commit(mark int)
	Revert(mark int)
}

// Deps are the controller's collaborators. Callees, Checkpointer and Metrics
// are optional.
type Deps struct {
	Store        *vault.Store
	Pool         Pool
	Oracle       Oracle
	Whitelist    Whitelist
	Otokens      Otokens
	Decimals     margin.Decimals
	Callees      Callees
	Checkpointer Checkpointer
	Metrics      *observability.Metrics
	Logger       zerolog.Logger
	Now          func() time.Time
}

type Controller struct {
	// mu is held for writing by Operate and the admin setters. The query
	// service takes the read side through View.
	mu      sync.RWMutex
	inBatch atomic.Bool

	owner           common.Address
	partialPauser   common.Address
	fullPauser      common.Address
	partiallyPaused bool
	fullyPaused     bool
	callRestricted  bool
	operators       map[common.Address]map[common.Address]bool

	store        *vault.Store
	calc         *margin.Calculator
	pool         Pool
	whitelist    Whitelist
	otokens      Otokens
	callees      Callees
	checkpointer Checkpointer
	metrics      *observability.Metrics
	log          zerolog.Logger
	now          func() time.Time
}

// New creates a controller owned by owner. Call restriction starts enabled.
func New(owner common.Address, deps Deps) *Controller {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	store := deps.Store
	if store == nil {
		store = vault.NewStore()
	}
	return &Controller{
		owner:          owner,
		callRestricted: true,
		operators:      make(map[common.Address]map[common.Address]bool),
		store:          store,
		calc:           margin.NewCalculator(deps.Oracle, deps.Otokens, deps.Decimals, now),
		pool:           deps.Pool,
		whitelist:      deps.Whitelist,
		otokens:        deps.Otokens,
		callees:        deps.Callees,
		checkpointer:   deps.Checkpointer,
		metrics:        deps.Metrics,
		log:            deps.Logger,
		now:            now,
	}
}

// vaultRef names one vault touched by a batch.
type vaultRef struct {
	owner common.Address
	id    uint64
}

// batch carries per-call state through dispatch.
type batch struct {
	ctx     context.Context
	sender  common.Address
	now     time.Time
	touched []vaultRef
	seen    map[vaultRef]bool

	opened, settled, redeemed int
}

func (b *batch) touch(owner common.Address, id uint64) {
	ref := vaultRef{owner, id}
	if !b.seen[ref] {
		b.seen[ref] = true
		b.touched = append(b.touched, ref)
	}
}

// Operate applies actions in order on behalf of sender. Either every action
// takes effect and every touched vault is adequately collateralized, or
// nothing changes and the first violated rule is returned.
func (c *Controller) Operate(ctx context.Context, sender common.Address, actions []action.Action) error {
	if !c.inBatch.CompareAndSwap(false, true) {
		return reason.ErrReentrant
	}
	defer c.inBatch.Store(false)

	c.mu.Lock()
	defer c.mu.Unlock()

	start := time.Now()
	err := c.operate(ctx, sender, actions)
	if c.metrics != nil {
		c.metrics.BatchDuration.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		c.log.Warn().
			Str("sender", sender.Hex()).
			Int("actions", len(actions)).
			Str("kind", reason.KindOf(err).String()).
			Str("code", reason.CodeOf(err)).
			Err(err).
			Msg("batch rejected")
		if c.metrics != nil {
			c.metrics.BatchesRejected.WithLabelValues(reason.KindOf(err).String(), reason.CodeOf(err)).Inc()
		}
		return err
	}
	c.log.Debug().
		Str("sender", sender.Hex()).
		Int("actions", len(actions)).
		Msg("batch applied")
	return nil
}

func (c *Controller) operate(ctx context.Context, sender common.Address, actions []action.Action) error {
	if err := c.checkPause(actions); err != nil {
		return err
	}
	if err := checkBatchShape(actions); err != nil {
		return err
	}

	if err := c.store.Begin(); err != nil {
		return err
	}
	mark := 0
	if c.checkpointer != nil {
		mark = c.checkpointer.Checkpoint()
	}

	b := &batch{ctx: ctx, sender: sender, now: c.now(), seen: make(map[vaultRef]bool)}
	err := c.runActions(b, actions)
	if err == nil {
		err = c.verifyFinalState(b)
	}
	if err != nil {
		if c.checkpointer != nil {
			c.checkpointer.Revert(mark)
		}
		c.store.Rollback()
		return err
	}

	if c.checkpointer != nil {
		c.checkpointer.Commit(mark)
	}
	c.store.Commit()
	c.recordApplied(b, actions)
	return nil
}

// checkPause rejects the batch if the pause state blocks any of its actions.
// A full pause blocks even an empty batch.
func (c *Controller) checkPause(actions []action.Action) error {
	if c.fullyPaused {
		return reason.ErrFullyPaused
	}
	if !c.partiallyPaused {
		return nil
	}
	for i, a := range actions {
		if a.Kind.MutatesVault() {
			return reason.Wrap(reason.ErrPartiallyPaused, "action %d is %s", i, a.Kind)
		}
	}
	return nil
}

// checkBatchShape enforces a single owner across vault-mutating actions and
// at most one OpenVault.
func checkBatchShape(actions []action.Action) error {
	var (
		owner    common.Address
		hasOwner bool
		opens    int
	)
	for i, a := range actions {
		if !a.Kind.MutatesVault() {
			continue
		}
		if a.Kind == action.KindOpenVault {
			opens++
			if opens > 1 {
				return reason.Wrap(reason.ErrMultipleOpenVault, "action %d", i)
			}
		}
		if !hasOwner {
			owner, hasOwner = a.Owner, true
			continue
		}
		if a.Owner != owner {
			return reason.Wrap(reason.ErrCrossOwnerBatch, "action %d owner %s, batch owner %s", i, a.Owner.Hex(), owner.Hex())
		}
	}
	return nil
}

// verifyFinalState reruns the margin calculator on every vault the batch
// modified.
func (c *Controller) verifyFinalState(b *batch) error {
	start := time.Now()
	defer func() {
		if c.metrics != nil {
			c.metrics.MarginCheckDur.Observe(time.Since(start).Seconds())
		}
	}()

	for _, ref := range b.touched {
		v, ok := c.store.Get(ref.owner, ref.id)
		if !ok {
			return reason.Wrap(reason.ErrVaultIDOutOfRange, "owner %s vault %d", ref.owner.Hex(), ref.id)
		}
		deficit, isExcess, err := c.calc.ExcessCollateral(v)
		if err != nil {
			return err
		}
		if !isExcess {
			return reason.Wrap(reason.ErrInvalidFinalVault, "owner %s vault %d short by %s", ref.owner.Hex(), ref.id, deficit)
		}
	}
	return nil
}

func (c *Controller) recordApplied(b *batch, actions []action.Action) {
	if c.metrics == nil {
		return
	}
	c.metrics.BatchesApplied.Inc()
	for _, a := range actions {
		c.metrics.ActionsApplied.WithLabelValues(a.Kind.String()).Inc()
	}
	c.metrics.VaultsOpened.Add(float64(b.opened))
	c.metrics.VaultsSettled.Add(float64(b.settled))
	c.metrics.OtokensRedeemed.Add(float64(b.redeemed))
}
