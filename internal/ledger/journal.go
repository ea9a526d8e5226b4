package ledger

import (
	"fmt"
	"math/big"

	"github.com/google/uuid"
)

// JournalType represents the purpose of a journal entry
type JournalType int32

const (
	JournalTypeFunding JournalType = iota // external -> holder
	JournalTypeDepositToPool
	JournalTypeWithdrawFromPool
	JournalTypeMint
	JournalTypeBurn
	JournalTypePoolBurn
	JournalTypeDonation
	JournalTypeTransfer // holder -> holder
)

func (t JournalType) String() string {
	switch t {
	case JournalTypeFunding:
		return "FUNDING"
	case JournalTypeDepositToPool:
		return "DEPOSIT_TO_POOL"
	case JournalTypeWithdrawFromPool:
		return "WITHDRAW_FROM_POOL"
	case JournalTypeMint:
		return "MINT"
	case JournalTypeBurn:
		return "BURN"
	case JournalTypePoolBurn:
		return "POOL_BURN"
	case JournalTypeDonation:
		return "DONATION"
	case JournalTypeTransfer:
		return "TRANSFER"
	default:
		return "UNKNOWN"
	}
}

// Journal represents a single double-entry journal entry
type Journal struct {
	JournalID     uuid.UUID
	BatchID       uuid.UUID  // Groups entries posted together
	DebitAccount  AccountKey // balance increases
	CreditAccount AccountKey // balance decreases
	Amount        *big.Int   // always positive
	JournalType   JournalType
}

// Batch represents a set of journal entries posted together
type Batch struct {
	BatchID  uuid.UUID
	Journals []Journal
}

// Validate ensures the batch is well-formed.
// Each journal moves one positive amount from credit to debit, so every entry
// balances on its own.
func (b *Batch) Validate() error {
	if len(b.Journals) == 0 {
		return fmt.Errorf("batch %s is empty", b.BatchID)
	}

	for _, j := range b.Journals {
		if err := j.validate(); err != nil {
			return err
		}
		if j.BatchID != b.BatchID {
			return fmt.Errorf("journal %s has mismatched batch_id", j.JournalID)
		}
	}

	return nil
}

func (j Journal) validate() error {
	if j.Amount == nil || j.Amount.Sign() <= 0 {
		return fmt.Errorf("journal %s has non-positive amount: %v", j.JournalID, j.Amount)
	}
	if j.DebitAccount == j.CreditAccount {
		return fmt.Errorf("journal %s has same debit and credit account", j.JournalID)
	}
	if j.DebitAccount.Asset != j.CreditAccount.Asset {
		return fmt.Errorf("journal %s moves between different assets", j.JournalID)
	}
	return nil
}
