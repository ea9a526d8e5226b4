package ledger

import (
	"OptionLedger/internal/reason"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// BalanceTracker maintains in-memory token balances for holders, the pool and
// the external boundary. While a checkpoint is open every applied journal is
// retained so the tracker can be rolled back.
type BalanceTracker struct {
	mu       sync.RWMutex
	balances map[AccountKey]*big.Int
	applied  []Journal
	depth    int
}

func NewBalanceTracker() *BalanceTracker {
	return &BalanceTracker{
		balances: make(map[AccountKey]*big.Int),
	}
}

// ApplyJournal applies a single journal entry. Holder and pool accounts may
// not go negative.
func (bt *BalanceTracker) ApplyJournal(j Journal) error {
	if err := j.validate(); err != nil {
		return err
	}

	bt.mu.Lock()
	defer bt.mu.Unlock()
	return bt.applyLocked(j)
}

func (bt *BalanceTracker) applyLocked(j Journal) error {
	credit := bt.balanceLocked(j.CreditAccount)
	if !j.CreditAccount.MayGoNegative() && credit.Cmp(j.Amount) < 0 {
		return reason.Wrap(reason.ErrInsufficientBalance,
			"%s has %s, needs %s", j.CreditAccount.AccountPath(), credit, j.Amount)
	}

	bt.set(j.CreditAccount, new(big.Int).Sub(credit, j.Amount))
	bt.set(j.DebitAccount, new(big.Int).Add(bt.balanceLocked(j.DebitAccount), j.Amount))

	if bt.depth > 0 {
		bt.applied = append(bt.applied, j)
	}
	return nil
}

// ApplyBatch applies all journals in a batch, or none of them.
func (bt *BalanceTracker) ApplyBatch(batch *Batch) error {
	if err := batch.Validate(); err != nil {
		return fmt.Errorf("invalid batch: %w", err)
	}

	bt.mu.Lock()
	defer bt.mu.Unlock()

	for i, j := range batch.Journals {
		if err := bt.applyLocked(j); err != nil {
			for k := i - 1; k >= 0; k-- {
				bt.reverseLocked(batch.Journals[k])
			}
			if bt.depth > 0 {
				bt.applied = bt.applied[:len(bt.applied)-i]
			}
			return err
		}
	}

	return nil
}

// Transfer posts a single journal between two accounts of the same asset.
func (bt *BalanceTracker) Transfer(from, to AccountKey, amount *big.Int, jt JournalType) error {
	return bt.ApplyJournal(Journal{
		JournalID:     uuid.New(),
		BatchID:       uuid.Nil,
		DebitAccount:  to,
		CreditAccount: from,
		Amount:        new(big.Int).Set(amount),
		JournalType:   jt,
	})
}

// Fund credits a holder from outside the system.
func (bt *BalanceTracker) Fund(holder, asset common.Address, amount *big.Int) error {
	return bt.Transfer(ExternalAccount(asset), HolderAccount(holder, asset), amount, JournalTypeFunding)
}

// GetBalance returns the current balance for an account
func (bt *BalanceTracker) GetBalance(key AccountKey) *big.Int {
	bt.mu.RLock()
	defer bt.mu.RUnlock()
	return new(big.Int).Set(bt.balanceLocked(key))
}

// HolderBalance returns what a holder owns of an asset.
func (bt *BalanceTracker) HolderBalance(holder, asset common.Address) *big.Int {
	return bt.GetBalance(HolderAccount(holder, asset))
}

// PoolBalance returns the pool's custody balance of an asset.
func (bt *BalanceTracker) PoolBalance(asset common.Address) *big.Int {
	return bt.GetBalance(PoolAccount(asset))
}

func (bt *BalanceTracker) balanceLocked(key AccountKey) *big.Int {
	if v, ok := bt.balances[key]; ok {
		return v
	}
	return new(big.Int)
}

func (bt *BalanceTracker) set(key AccountKey, v *big.Int) {
	if v.Sign() == 0 {
		delete(bt.balances, key)
		return
	}
	bt.balances[key] = v
}

func (bt *BalanceTracker) reverseLocked(j Journal) {
	bt.set(j.DebitAccount, new(big.Int).Sub(bt.balanceLocked(j.DebitAccount), j.Amount))
	bt.set(j.CreditAccount, new(big.Int).Add(bt.balanceLocked(j.CreditAccount), j.Amount))
}

// === Checkpoints ===

// Checkpoint opens a rollback point and returns its marker.
func (bt *BalanceTracker) Checkpoint() int {
	bt.mu.Lock()
	defer bt.mu.Unlock()
	bt.depth++
	return len(bt.applied)
}

// Commit closes the checkpoint opened at mark, keeping its effects.
func (bt *BalanceTracker) Commit(mark int) {
	bt.mu.Lock()
	defer bt.mu.Unlock()
	bt.closeLocked(mark, false)
}

// Revert undoes every journal applied since mark, newest first, and closes the checkpoint.
func (bt *BalanceTracker) Revert(mark int) {
	bt.mu.Lock()
	defer bt.mu.Unlock()
	bt.closeLocked(mark, true)
}

func (bt *BalanceTracker) closeLocked(mark int, undo bool) {
	if bt.depth == 0 {
		return
	}
	if mark > len(bt.applied) {
		mark = len(bt.applied)
	}
	if undo {
		for i := len(bt.applied) - 1; i >= mark; i-- {
			bt.reverseLocked(bt.applied[i])
		}
		bt.applied = bt.applied[:mark]
	}
	bt.depth--
	if bt.depth == 0 {
		bt.applied = bt.applied[:0]
	}
}

// ComputeGlobalBalance sums all account balances per asset (zero for a closed ledger)
func (bt *BalanceTracker) ComputeGlobalBalance() map[common.Address]*big.Int {
	bt.mu.RLock()
	defer bt.mu.RUnlock()

	totals := make(map[common.Address]*big.Int)
	for key, balance := range bt.balances {
		t, ok := totals[key.Asset]
		if !ok {
			t = new(big.Int)
			totals[key.Asset] = t
		}
		t.Add(t, balance)
	}
	return totals
}

// Snapshot returns a copy of all balances (for state hashing)
func (bt *BalanceTracker) Snapshot() map[AccountKey]*big.Int {
	bt.mu.RLock()
	defer bt.mu.RUnlock()

	snapshot := make(map[AccountKey]*big.Int, len(bt.balances))
	for k, v := range bt.balances {
		snapshot[k] = new(big.Int).Set(v)
	}
	return snapshot
}
