package query

import "time"

// Amounts are base-10 strings of token units. Display fields carry the same
// value scaled by the asset's decimals.

// SlotView is one occupied vault slot.
type SlotView struct {
	Index   int    `json:"index"`
	Asset   string `json:"asset"`
	Symbol  string `json:"symbol,omitempty"`
	Amount  string `json:"amount"`
	Display string `json:"display,omitempty"`
}

// VaultResponse represents a vault for API queries.
type VaultResponse struct {
	Owner        string     `json:"owner"`
	VaultID      uint64     `json:"vault_id"`
	VaultType    string     `json:"vault_type"`
	Shorts       []SlotView `json:"shorts"`
	Longs        []SlotView `json:"longs"`
	Collateral   []SlotView `json:"collateral"`
	LatestUpdate time.Time  `json:"latest_update"`
	AsOfSequence int64      `json:"as_of_sequence"`
}

// ProceedResponse is what a vault could release (excess) or still needs.
type ProceedResponse struct {
	Owner        string `json:"owner"`
	VaultID      uint64 `json:"vault_id"`
	Amount       string `json:"amount"`
	IsExcess     bool   `json:"is_excess"`
	AsOfSequence int64  `json:"as_of_sequence"`
}

type VaultCountResponse struct {
	Owner        string `json:"owner"`
	VaultCount   uint64 `json:"vault_count"`
	AsOfSequence int64  `json:"as_of_sequence"`
}

// OtokenResponse describes an option series.
type OtokenResponse struct {
	Address           string    `json:"address"`
	Name              string    `json:"name"`
	Symbol            string    `json:"symbol"`
	Underlying        string    `json:"underlying"`
	Strike            string    `json:"strike"`
	Collateral        string    `json:"collateral"`
	StrikePrice       string    `json:"strike_price"`
	Expiry            time.Time `json:"expiry"`
	IsPut             bool      `json:"is_put"`
	Expired           bool      `json:"expired"`
	SettlementAllowed bool      `json:"settlement_allowed"`
	TotalSupply       string    `json:"total_supply"`
	AsOfSequence      int64     `json:"as_of_sequence"`
}

type PayoutResponse struct {
	Otoken       string `json:"otoken"`
	Amount       string `json:"amount"`
	Payout       string `json:"payout"`
	Display      string `json:"display,omitempty"`
	AsOfSequence int64  `json:"as_of_sequence"`
}

// SystemResponse is the pause state and roles.
type SystemResponse struct {
	State           string `json:"state"`
	PartiallyPaused bool   `json:"partially_paused"`
	FullyPaused     bool   `json:"fully_paused"`
	CallRestricted  bool   `json:"call_restricted"`
	Owner           string `json:"owner"`
	PartialPauser   string `json:"partial_pauser"`
	FullPauser      string `json:"full_pauser"`
	AsOfSequence    int64  `json:"as_of_sequence"`
}

// BalanceResponse is a holder's free balance of one asset.
type BalanceResponse struct {
	Holder       string `json:"holder"`
	Asset        string `json:"asset"`
	Balance      string `json:"balance"`
	Display      string `json:"display,omitempty"`
	AsOfSequence int64  `json:"as_of_sequence"`
}

// OutcomeEntry is a stored batch outcome.
type OutcomeEntry struct {
	BatchID        string `json:"batch_id"`
	Sequence       int64  `json:"sequence"`
	Source         string `json:"source"`
	SourceSequence int64  `json:"source_sequence"`
	Status         string `json:"status"`
	ReasonKind     string `json:"reason_kind,omitempty"`
	ReasonCode     string `json:"reason_code,omitempty"`
	Message        string `json:"message,omitempty"`
	ActionCount    int    `json:"action_count"`
	StateHash      string `json:"state_hash"`
}

// IntegrityReport is the result of an integrity verification check.
type IntegrityReport struct {
	IsHealthy        bool              `json:"is_healthy"`
	HashChainBreaks  []int64           `json:"hash_chain_breaks,omitempty"`
	UnbalancedAssets []UnbalancedAsset `json:"unbalanced_assets,omitempty"`
	AsOfSequence     int64             `json:"as_of_sequence"`
}

// UnbalancedAsset represents an asset whose accounts do not sum to zero.
type UnbalancedAsset struct {
	Asset     string `json:"asset"`
	Imbalance string `json:"imbalance"`
}
