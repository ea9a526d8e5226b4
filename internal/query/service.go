package query

import (
	"OptionLedger/internal/controller"
	"OptionLedger/internal/otoken"
	"OptionLedger/internal/persistence"
	"OptionLedger/internal/vault"
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// ErrNoAuditLog is returned by history queries when no database is wired.
var ErrNoAuditLog = errors.New("audit log not configured")

// Ledger is the read side of the controller.
type Ledger interface {
	View(fn func())
	State() controller.SystemState
	AccountVaultCounter(owner common.Address) uint64
	GetVault(owner common.Address, id uint64) (vault.Vault, error)
	GetProceed(owner common.Address, id uint64) (*big.Int, bool, error)
	GetPayout(otoken common.Address, amount *big.Int) (*big.Int, error)
	IsSettlementAllowed(otoken common.Address) (bool, error)
	HasExpired(otoken common.Address) (bool, error)
}

// Series resolves otokens and their supply.
type Series interface {
	Otoken(addr common.Address) (*otoken.Otoken, bool)
	TotalSupply(otoken common.Address) *big.Int
}

// Assets resolves display metadata.
type Assets interface {
	Symbol(addr common.Address) string
	Decimals(addr common.Address) (int, error)
}

// Balances is the holder-level ledger.
type Balances interface {
	HolderBalance(holder, asset common.Address) *big.Int
	ComputeGlobalBalance() map[common.Address]*big.Int
}

type Deps struct {
	Ledger   Ledger
	Series   Series
	Assets   Assets
	Balances Balances
	// AsOf returns the last decided core sequence.
	AsOf func() int64
	// DB is the audit log; nil disables history and hash chain checks.
	DB *persistence.DB
}

// QueryService provides read-only access to ledger state. Every read runs
// inside Ledger.View so it sees committed batches only. All responses include
// as_of_sequence for freshness semantics.
type QueryService struct {
	ledger   Ledger
	series   Series
	assets   Assets
	balances Balances
	asOf     func() int64
	db       *persistence.DB
}

func NewQueryService(deps Deps) *QueryService {
	asOf := deps.AsOf
	if asOf == nil {
		asOf = func() int64 { return 0 }
	}
	return &QueryService{
		ledger:   deps.Ledger,
		series:   deps.Series,
		assets:   deps.Assets,
		balances: deps.Balances,
		asOf:     asOf,
		db:       deps.DB,
	}
}

// GetVault returns one vault with every occupied slot.
func (qs *QueryService) GetVault(owner common.Address, id uint64) (*VaultResponse, error) {
	var (
		v   vault.Vault
		err error
		seq int64
	)
	qs.ledger.View(func() {
		v, err = qs.ledger.GetVault(owner, id)
		seq = qs.asOf()
	})
	if err != nil {
		return nil, err
	}
	return &VaultResponse{
		Owner:        v.Owner.Hex(),
		VaultID:      v.ID,
		VaultType:    v.Type.String(),
		Shorts:       qs.slots(v.ShortOtokens, v.ShortAmounts),
		Longs:        qs.slots(v.LongOtokens, v.LongAmounts),
		Collateral:   qs.slots(v.CollateralAssets, v.CollateralAmounts),
		LatestUpdate: v.LatestUpdate.UTC(),
		AsOfSequence: seq,
	}, nil
}

// GetProceed returns the vault's excess collateral, or its shortfall.
func (qs *QueryService) GetProceed(owner common.Address, id uint64) (*ProceedResponse, error) {
	var (
		amount   *big.Int
		isExcess bool
		err      error
		seq      int64
	)
	qs.ledger.View(func() {
		amount, isExcess, err = qs.ledger.GetProceed(owner, id)
		seq = qs.asOf()
	})
	if err != nil {
		return nil, err
	}
	return &ProceedResponse{
		Owner:        owner.Hex(),
		VaultID:      id,
		Amount:       amount.String(),
		IsExcess:     isExcess,
		AsOfSequence: seq,
	}, nil
}

func (qs *QueryService) GetVaultCount(owner common.Address) *VaultCountResponse {
	resp := &VaultCountResponse{Owner: owner.Hex()}
	qs.ledger.View(func() {
		resp.VaultCount = qs.ledger.AccountVaultCounter(owner)
		resp.AsOfSequence = qs.asOf()
	})
	return resp
}

// GetOtoken describes a series and whether it can settle yet.
func (qs *QueryService) GetOtoken(addr common.Address) (*OtokenResponse, error) {
	o, ok := qs.series.Otoken(addr)
	if !ok {
		return nil, fmt.Errorf("otoken %s: %w", addr.Hex(), ErrNotFound)
	}
	resp := &OtokenResponse{
		Address:     o.Address.Hex(),
		Name:        o.Name(qs.assets),
		Symbol:      o.Symbol(qs.assets),
		Underlying:  o.Underlying.Hex(),
		Strike:      o.Strike.Hex(),
		Collateral:  o.Collateral.Hex(),
		StrikePrice: o.StrikeDisplay(),
		Expiry:      o.ExpiryTime(),
		IsPut:       o.IsPut,
	}

	var err error
	qs.ledger.View(func() {
		resp.Expired, err = qs.ledger.HasExpired(addr)
		if err != nil {
			return
		}
		if resp.Expired {
			// an unfinalized price is a normal state here, not a failure
			resp.SettlementAllowed, _ = qs.ledger.IsSettlementAllowed(addr)
		}
		resp.TotalSupply = qs.series.TotalSupply(addr).String()
		resp.AsOfSequence = qs.asOf()
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// GetPayout returns the collateral amount of otoken would redeem for.
func (qs *QueryService) GetPayout(addr common.Address, amount *big.Int) (*PayoutResponse, error) {
	o, ok := qs.series.Otoken(addr)
	if !ok {
		return nil, fmt.Errorf("otoken %s: %w", addr.Hex(), ErrNotFound)
	}
	var (
		payout *big.Int
		err    error
		seq    int64
	)
	qs.ledger.View(func() {
		payout, err = qs.ledger.GetPayout(addr, amount)
		seq = qs.asOf()
	})
	if err != nil {
		return nil, err
	}
	return &PayoutResponse{
		Otoken:       addr.Hex(),
		Amount:       amount.String(),
		Payout:       payout.String(),
		Display:      qs.display(o.Collateral, payout),
		AsOfSequence: seq,
	}, nil
}

func (qs *QueryService) GetSystem() *SystemResponse {
	var (
		s   controller.SystemState
		seq int64
	)
	qs.ledger.View(func() {
		s = qs.ledger.State()
		seq = qs.asOf()
	})
	return &SystemResponse{
		State:           s.State.String(),
		PartiallyPaused: s.PartiallyPaused,
		FullyPaused:     s.FullyPaused,
		CallRestricted:  s.CallRestricted,
		Owner:           s.Owner.Hex(),
		PartialPauser:   s.PartialPauser.Hex(),
		FullPauser:      s.FullPauser.Hex(),
		AsOfSequence:    seq,
	}
}

// GetBalance returns a holder's free balance of one asset.
func (qs *QueryService) GetBalance(holder, asset common.Address) *BalanceResponse {
	resp := &BalanceResponse{Holder: holder.Hex(), Asset: asset.Hex()}
	qs.ledger.View(func() {
		bal := qs.balances.HolderBalance(holder, asset)
		resp.Balance = bal.String()
		resp.Display = qs.display(asset, bal)
		resp.AsOfSequence = qs.asOf()
	})
	return resp
}

// --- Audit log ---

// GetOutcomeHistory returns a sender's decided batches, newest first.
// Supports cursor-based pagination via beforeSequence.
func (qs *QueryService) GetOutcomeHistory(
	ctx context.Context,
	sender common.Address,
	limit int,
	beforeSequence *int64,
) ([]OutcomeEntry, error) {
	if qs.db == nil {
		return nil, ErrNoAuditLog
	}

	query := `
		SELECT batch_id, sequence, source, source_sequence, status,
		       reason_kind, reason_code, message, action_count, state_hash
		FROM batch_outcomes
		WHERE sender = $1
	`
	args := []interface{}{sender.Hex()}
	argIdx := 2

	if beforeSequence != nil {
		query += fmt.Sprintf(" AND sequence < $%d", argIdx)
		args = append(args, *beforeSequence)
		argIdx++
	}

	query += " ORDER BY sequence DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := qs.db.QueryContext(ctx, qs.db.Rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []OutcomeEntry
	for rows.Next() {
		var (
			e    OutcomeEntry
			hash []byte
		)
		if err := rows.Scan(
			&e.BatchID, &e.Sequence, &e.Source, &e.SourceSequence, &e.Status,
			&e.ReasonKind, &e.ReasonCode, &e.Message, &e.ActionCount, &hash,
		); err != nil {
			return nil, err
		}
		e.StateHash = hex.EncodeToString(hash)
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// --- Admin APIs ---

// VerifyIntegrity checks the stored hash chain and the live global balance.
func (qs *QueryService) VerifyIntegrity(ctx context.Context) (*IntegrityReport, error) {
	report := &IntegrityReport{}

	if qs.db != nil {
		// Each outcome's prev_hash must equal the state_hash stored one sequence earlier
		rows, err := qs.db.QueryContext(ctx, `
			SELECT o1.sequence
			FROM batch_outcomes o1
			JOIN batch_outcomes o2 ON o2.sequence = o1.sequence - 1
			WHERE o1.prev_hash <> o2.state_hash
			ORDER BY o1.sequence
			LIMIT 10
		`)
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		for rows.Next() {
			var seq int64
			if err := rows.Scan(&seq); err != nil {
				return nil, err
			}
			report.HashChainBreaks = append(report.HashChainBreaks, seq)
		}
		if err := rows.Err(); err != nil {
			return nil, err
		}
	}

	// Every asset's accounts should sum to zero
	var totals map[common.Address]*big.Int
	qs.ledger.View(func() {
		totals = qs.balances.ComputeGlobalBalance()
		report.AsOfSequence = qs.asOf()
	})
	assets := make([]common.Address, 0, len(totals))
	for a, sum := range totals {
		if sum.Sign() != 0 {
			assets = append(assets, a)
		}
	}
	sort.Slice(assets, func(i, j int) bool { return bytes.Compare(assets[i][:], assets[j][:]) < 0 })
	for _, a := range assets {
		report.UnbalancedAssets = append(report.UnbalancedAssets, UnbalancedAsset{
			Asset:     a.Hex(),
			Imbalance: totals[a].String(),
		})
	}

	report.IsHealthy = len(report.HashChainBreaks) == 0 && len(report.UnbalancedAssets) == 0
	return report, nil
}

// --- helpers ---

// ErrNotFound marks lookups of things that do not exist.
var ErrNotFound = errors.New("not found")

func (qs *QueryService) slots(assets []common.Address, amounts []*big.Int) []SlotView {
	out := []SlotView{}
	for i, a := range assets {
		if a == (common.Address{}) {
			continue
		}
		out = append(out, SlotView{
			Index:   i,
			Asset:   a.Hex(),
			Symbol:  qs.assets.Symbol(a),
			Amount:  amounts[i].String(),
			Display: qs.display(a, amounts[i]),
		})
	}
	return out
}

// display renders amount in whole units of asset, or "" when its decimals
// are unknown.
func (qs *QueryService) display(asset common.Address, amount *big.Int) string {
	d, err := qs.assets.Decimals(asset)
	if err != nil || amount == nil {
		return ""
	}
	return decimal.NewFromBigInt(amount, int32(-d)).String()
}
