package event

import (
	"OptionLedger/internal/action"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// CommandType discriminates the inputs the sequencer accepts.
type CommandType int32

const (
	CommandTypeUnknown CommandType = iota
	CommandTypeOperate
	CommandTypePrice
	CommandTypeAdmin
)

func (ct CommandType) String() string {
	switch ct {
	case CommandTypeOperate:
		return "Operate"
	case CommandTypePrice:
		return "Price"
	case CommandTypeAdmin:
		return "Admin"
	default:
		return "Unknown"
	}
}

// BatchEnvelope is one Operate call as delivered by an upstream source.
type BatchEnvelope struct {
	// Stable dedup key from upstream
	BatchID uuid.UUID

	// Upstream producer; sequences are checked per source
	Source string

	// Upstream sequence for ordering validation
	Sequence int64

	Sender  common.Address
	Actions []action.Action

	ReceivedAt time.Time
}

// PriceReport is a pricer submission. Expiry zero means a live price.
type PriceReport struct {
	Pricer     common.Address
	Asset      common.Address
	Expiry     int64
	Price      *big.Int
	Sequence   int64
	ReportedAt time.Time
}

// AdminOp names a privileged controller or factory operation.
type AdminOp string

const (
	AdminSetOperator        AdminOp = "set_operator"
	AdminSetPartialPauser   AdminOp = "set_partial_pauser"
	AdminSetFullPauser      AdminOp = "set_full_pauser"
	AdminSetPartiallyPaused AdminOp = "set_partially_paused"
	AdminSetFullyPaused     AdminOp = "set_fully_paused"
	AdminSetCallRestriction AdminOp = "set_call_restriction"
	AdminCreateOtoken       AdminOp = "create_otoken"
)

// AdminCommand is a privileged request. Target is the operator or pauser
// for the role ops; Enabled is the flag for the toggles.
type AdminCommand struct {
	Op       AdminOp
	Caller   common.Address
	Target   common.Address
	Enabled  bool
	Otoken   *OtokenParams
	Sequence int64
	IssuedAt time.Time
}

// OtokenParams describes a series to create.
type OtokenParams struct {
	Underlying  common.Address
	Strike      common.Address
	Collateral  common.Address
	StrikePrice *big.Int
	Expiry      int64
	IsPut       bool
}

// Command is one message from the command stream. Exactly one payload is set.
type Command struct {
	Type  CommandType
	Batch *BatchEnvelope
	Price *PriceReport
	Admin *AdminCommand
}

// OutcomeStatus is the fate of a batch.
type OutcomeStatus int32

const (
	OutcomeApplied OutcomeStatus = iota + 1
	OutcomeRejected
)

func (s OutcomeStatus) String() string {
	switch s {
	case OutcomeApplied:
		return "applied"
	case OutcomeRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Outcome is emitted for every batch the sequencer decides, applied or not.
type Outcome struct {
	// Global monotonic sequence assigned by the sequencer
	Sequence int64

	BatchID        uuid.UUID
	Source         string
	SourceSequence int64
	Sender         common.Address
	ActionCount    int

	Status     OutcomeStatus
	ReasonKind string
	ReasonCode string
	Message    string

	// SHA-256 of state after this batch, chained to PrevHash
	StateHash [32]byte
	PrevHash  [32]byte

	Timestamp time.Time
}
