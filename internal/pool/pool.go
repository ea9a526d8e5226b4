// Package pool holds custody of every asset deposited into vaults.
package pool

import (
	"OptionLedger/internal/ledger"
	"OptionLedger/internal/reason"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// Pool moves assets between holders and the pool account of the shared
// ledger. Zero amounts are accepted and move nothing.
type Pool struct {
	book *ledger.BalanceTracker
}

func New(book *ledger.BalanceTracker) *Pool {
	return &Pool{book: book}
}

func (p *Pool) TransferToPool(asset, from common.Address, amount *big.Int) error {
	if isZero(amount) {
		return nil
	}
	return p.book.Transfer(ledger.HolderAccount(from, asset), ledger.PoolAccount(asset), amount, ledger.JournalTypeDepositToPool)
}

func (p *Pool) TransferToUser(asset, to common.Address, amount *big.Int) error {
	if isZero(amount) {
		return nil
	}
	return p.book.Transfer(ledger.PoolAccount(asset), ledger.HolderAccount(to, asset), amount, ledger.JournalTypeWithdrawFromPool)
}

// BatchTransferToPool applies every transfer or none.
func (p *Pool) BatchTransferToPool(assets, froms []common.Address, amounts []*big.Int) error {
	if len(assets) != len(froms) || len(assets) != len(amounts) {
		return reason.Wrap(reason.ErrBatchLength, "%d assets, %d senders, %d amounts", len(assets), len(froms), len(amounts))
	}
	batch := &ledger.Batch{BatchID: uuid.New()}
	for i := range assets {
		if isZero(amounts[i]) {
			continue
		}
		batch.Journals = append(batch.Journals, p.journal(batch.BatchID,
			ledger.HolderAccount(froms[i], assets[i]), ledger.PoolAccount(assets[i]), amounts[i], ledger.JournalTypeDepositToPool))
	}
	return p.apply(batch)
}

// BatchTransferToUser applies every transfer or none.
func (p *Pool) BatchTransferToUser(assets, tos []common.Address, amounts []*big.Int) error {
	if len(assets) != len(tos) || len(assets) != len(amounts) {
		return reason.Wrap(reason.ErrBatchLength, "%d assets, %d receivers, %d amounts", len(assets), len(tos), len(amounts))
	}
	batch := &ledger.Batch{BatchID: uuid.New()}
	for i := range assets {
		if isZero(amounts[i]) {
			continue
		}
		batch.Journals = append(batch.Journals, p.journal(batch.BatchID,
			ledger.PoolAccount(assets[i]), ledger.HolderAccount(tos[i], assets[i]), amounts[i], ledger.JournalTypeWithdrawFromPool))
	}
	return p.apply(batch)
}

// Donate moves assets into the pool without crediting any vault.
func (p *Pool) Donate(asset, from common.Address, amount *big.Int) error {
	if isZero(amount) {
		return nil
	}
	return p.book.Transfer(ledger.HolderAccount(from, asset), ledger.PoolAccount(asset), amount, ledger.JournalTypeDonation)
}

// Balance is the pool's custody of asset.
func (p *Pool) Balance(asset common.Address) *big.Int {
	return p.book.PoolBalance(asset)
}

// Checkpoint, Commit and Revert expose the ledger's rollback points so that
// a failed batch can undo custody movements.
func (p *Pool) Checkpoint() int { return p.book.Checkpoint() }
func (p *Pool) Commit(mark int) { p.book.Commit(mark) }
func (p *Pool) Revert(mark int) { p.book.Revert(mark) }

func (p *Pool) journal(batchID uuid.UUID, from, to ledger.AccountKey, amount *big.Int, jt ledger.JournalType) ledger.Journal {
	return ledger.Journal{
		JournalID:     uuid.New(),
		BatchID:       batchID,
		DebitAccount:  to,
		CreditAccount: from,
		Amount:        new(big.Int).Set(amount),
		JournalType:   jt,
	}
}

func (p *Pool) apply(batch *ledger.Batch) error {
	if len(batch.Journals) == 0 {
		return nil
	}
	return p.book.ApplyBatch(batch)
}

func isZero(amount *big.Int) bool {
	return amount == nil || amount.Sign() == 0
}
