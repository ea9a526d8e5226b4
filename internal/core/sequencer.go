package core

import (
	"OptionLedger/internal/action"
	"OptionLedger/internal/event"
	"OptionLedger/internal/ledger"
	"OptionLedger/internal/observability"
	"OptionLedger/internal/otoken"
	"OptionLedger/internal/reason"
	"OptionLedger/internal/vault"
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrInvariant means a committed batch left the ledger inconsistent. The
// process should stop.
var ErrInvariant = errors.New("ledger invariant violated")

// Operator applies action batches.
type Operator interface {
	Operate(ctx context.Context, sender common.Address, actions []action.Action) error
}

// Admin is the privileged surface of the controller.
type Admin interface {
	SetOperator(owner, operator common.Address, enabled bool) error
	SetPartialPauser(caller, pauser common.Address) error
	SetFullPauser(caller, pauser common.Address) error
	SetSystemPartiallyPaused(caller common.Address, paused bool) error
	SetSystemFullyPaused(caller common.Address, paused bool) error
	SetCallRestriction(caller common.Address, restricted bool) error
}

// PriceSink accepts pricer submissions.
type PriceSink interface {
	SetSpotPrice(caller, asset common.Address, price *big.Int) error
	SetExpiryPrice(caller, asset common.Address, expiry int64, price *big.Int) error
}

// SeriesFactory creates otoken series.
type SeriesFactory interface {
	Create(underlying, strike, collateral common.Address, strikePrice *big.Int, expiry int64, isPut bool) (*otoken.Otoken, error)
}

// SeriesLister enumerates created series for the supply check.
type SeriesLister interface {
	All() []*otoken.Otoken
}

type Config struct {
	StartSequence int64
	DedupCapacity int
	// Global balance check runs every CheckEvery decided batches; 0 disables it.
	CheckEvery int64
}

type Deps struct {
	Operator  Operator
	Admin     Admin
	Prices    PriceSink
	Factory   SeriesFactory
	Series    SeriesLister
	Store     *vault.Store
	Book      *ledger.BalanceTracker
	Clock     *Clock
	Processed ProcessedBatchStore
	Metrics   *observability.Metrics
	Logger    zerolog.Logger

	// Persist receives every outcome and applies backpressure. Publish is
	// best effort and drops when full. Either may be nil.
	Persist chan<- event.Outcome
	Publish chan<- event.Outcome
}

// Sequencer is the single-threaded command processor. Every input that
// changes ledger state goes through it, in stream order.
type Sequencer struct {
	sequence    int64
	decided     atomic.Int64 // last decided sequence, read by queries
	checkEvery  int64
	chain       *hashChain
	idempotency *IdempotencyChecker
	sequences   *SequenceValidator
	validator   *ledger.InvariantValidator

	operator Operator
	admin    Admin
	prices   PriceSink
	factory  SeriesFactory
	series   SeriesLister
	store    *vault.Store
	book     *ledger.BalanceTracker
	clock    *Clock
	metrics  *observability.Metrics
	log      zerolog.Logger

	persistChan chan<- event.Outcome
	publishChan chan<- event.Outcome
}

func NewSequencer(cfg Config, deps Deps) *Sequencer {
	start := cfg.StartSequence
	if start <= 0 {
		start = 1
	}
	return &Sequencer{
		sequence:    start,
		checkEvery:  cfg.CheckEvery,
		chain:       newHashChain(),
		idempotency: NewIdempotencyChecker(cfg.DedupCapacity, deps.Processed, deps.Metrics, deps.Logger),
		sequences:   NewSequenceValidator(deps.Metrics),
		validator:   ledger.NewInvariantValidator(deps.Book),
		operator:    deps.Operator,
		admin:       deps.Admin,
		prices:      deps.Prices,
		factory:     deps.Factory,
		series:      deps.Series,
		store:       deps.Store,
		book:        deps.Book,
		clock:       deps.Clock,
		metrics:     deps.Metrics,
		log:         deps.Logger,
		persistChan: deps.Persist,
		publishChan: deps.Publish,
	}
}

// Handle routes one command. It returns the outcome for batches that were
// decided and nil for everything else.
func (s *Sequencer) Handle(ctx context.Context, cmd event.Command) (*event.Outcome, error) {
	switch cmd.Type {
	case event.CommandTypeOperate:
		if cmd.Batch == nil {
			return nil, fmt.Errorf("operate command without batch")
		}
		return s.Process(ctx, cmd.Batch)
	case event.CommandTypePrice:
		if cmd.Price == nil {
			return nil, fmt.Errorf("price command without report")
		}
		return nil, s.ApplyPrice(cmd.Price)
	case event.CommandTypeAdmin:
		if cmd.Admin == nil {
			return nil, fmt.Errorf("admin command without body")
		}
		return nil, s.ApplyAdmin(cmd.Admin)
	default:
		return nil, fmt.Errorf("unknown command type %s", cmd.Type)
	}
}

// Process is the batch pipeline: dedup, source sequence check, Operate,
// state hash, outcome. A nil outcome with a nil error means the batch was a
// duplicate or replay. An error before Operate means nothing was decided and
// the batch should be redelivered. An error after it leaves the batch decided
// and marked, so a redelivery is skipped.
func (s *Sequencer) Process(ctx context.Context, env *event.BatchEnvelope) (*event.Outcome, error) {
	// Step 1: Idempotency check (two-tier)
	isDuplicate := s.idempotency.IsDuplicate(ctx, env.BatchID, s.sequence)

	// Step 2: Source sequence
	replay, err := s.sequences.ValidateSequence(env.Source, env.Sequence, isDuplicate)
	if err != nil {
		return nil, err
	}
	if isDuplicate || replay {
		s.log.Debug().
			Str("batch_id", env.BatchID.String()).
			Str("source", env.Source).
			Int64("source_seq", env.Sequence).
			Bool("duplicate", isDuplicate).
			Msg("batch skipped")
		return nil, nil
	}

	// Step 3: Apply
	if s.clock != nil {
		s.clock.Advance(env.ReceivedAt)
	}
	opErr := s.operator.Operate(ctx, env.Sender, env.Actions)

	// Operate has decided the batch. Mark it before anything else can fail so
	// a redelivery is skipped instead of applied twice.
	seq := s.sequence
	s.idempotency.MarkProcessed(env.BatchID)
	s.decided.Store(seq)
	s.sequence++

	// Step 4: Hash chain
	hashStart := time.Now()
	prevHash, stateHash := s.chain.extend(seq, StateDigest(s.store, s.book))
	if s.metrics != nil {
		s.metrics.CoreStateHashDur.Observe(time.Since(hashStart).Seconds())
		s.metrics.CoreSequence.Set(float64(s.sequence))
	}

	out := event.Outcome{
		Sequence:       seq,
		BatchID:        env.BatchID,
		Source:         env.Source,
		SourceSequence: env.Sequence,
		Sender:         env.Sender,
		ActionCount:    len(env.Actions),
		Status:         event.OutcomeApplied,
		StateHash:      stateHash,
		PrevHash:       prevHash,
		Timestamp:      env.ReceivedAt,
	}
	if opErr != nil {
		out.Status = event.OutcomeRejected
		out.ReasonKind = reason.KindOf(opErr).String()
		out.ReasonCode = reason.CodeOf(opErr)
		out.Message = opErr.Error()
	}

	// Step 5: Post-checks
	if err := s.postCheck(seq); err != nil {
		return nil, err
	}

	// Step 6: Emit
	if err := s.emit(ctx, out); err != nil {
		return nil, fmt.Errorf("emit outcome %d: %w", seq, err)
	}

	if s.metrics != nil {
		s.metrics.IngestToApply.Observe(time.Since(env.ReceivedAt).Seconds())
	}
	return &out, nil
}

// postCheck runs the periodic global balance and supply checks after the
// batch decided at seq.
func (s *Sequencer) postCheck(seq int64) error {
	if s.checkEvery <= 0 || seq%s.checkEvery != 0 {
		return nil
	}
	if err := s.validator.ValidateGlobalBalance(); err != nil {
		return fmt.Errorf("%w at sequence %d: %v", ErrInvariant, seq, err)
	}
	if err := s.validator.ValidateNonNegative(); err != nil {
		return fmt.Errorf("%w at sequence %d: %v", ErrInvariant, seq, err)
	}
	if s.series == nil {
		return nil
	}
	for _, o := range s.series.All() {
		if err := s.validator.ValidateOutstandingSupply(o.Address); err != nil {
			return fmt.Errorf("%w at sequence %d: %v", ErrInvariant, seq, err)
		}
	}
	return nil
}

// emit hands the outcome to persistence (blocking) and to the publisher
// (non-blocking, dropped when full).
func (s *Sequencer) emit(ctx context.Context, out event.Outcome) error {
	if s.persistChan != nil {
		select {
		case s.persistChan <- out:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if s.publishChan != nil {
		select {
		case s.publishChan <- out:
		default:
			if s.metrics != nil {
				s.metrics.PublishDrops.Inc()
			}
		}
	}
	return nil
}

// ApplyPrice forwards a pricer submission to the oracle. Stale reports
// (by per-asset sequence) are skipped; gaps are fine.
func (s *Sequencer) ApplyPrice(r *event.PriceReport) error {
	if !s.sequences.ValidatePriceSequence(r.Asset, r.Sequence) {
		return nil
	}
	if s.clock != nil {
		s.clock.Advance(r.ReportedAt)
	}
	var err error
	if r.Expiry == 0 {
		err = s.prices.SetSpotPrice(r.Pricer, r.Asset, r.Price)
	} else {
		err = s.prices.SetExpiryPrice(r.Pricer, r.Asset, r.Expiry, r.Price)
	}
	if err != nil {
		s.log.Warn().Err(err).
			Str("asset", r.Asset.Hex()).
			Int64("expiry", r.Expiry).
			Msg("price report rejected")
		return nil
	}
	s.log.Debug().Str("asset", r.Asset.Hex()).Int64("expiry", r.Expiry).Str("price", r.Price.String()).Msg("price applied")
	return nil
}

// ApplyAdmin runs a privileged command. Rejections are logged and consumed;
// they are decisions, not delivery failures.
func (s *Sequencer) ApplyAdmin(cmd *event.AdminCommand) error {
	if s.clock != nil {
		s.clock.Advance(cmd.IssuedAt)
	}
	var err error
	switch cmd.Op {
	case event.AdminSetOperator:
		err = s.admin.SetOperator(cmd.Caller, cmd.Target, cmd.Enabled)
	case event.AdminSetPartialPauser:
		err = s.admin.SetPartialPauser(cmd.Caller, cmd.Target)
	case event.AdminSetFullPauser:
		err = s.admin.SetFullPauser(cmd.Caller, cmd.Target)
	case event.AdminSetPartiallyPaused:
		err = s.admin.SetSystemPartiallyPaused(cmd.Caller, cmd.Enabled)
	case event.AdminSetFullyPaused:
		err = s.admin.SetSystemFullyPaused(cmd.Caller, cmd.Enabled)
	case event.AdminSetCallRestriction:
		err = s.admin.SetCallRestriction(cmd.Caller, cmd.Enabled)
	case event.AdminCreateOtoken:
		err = s.createOtoken(cmd.Otoken)
	default:
		err = fmt.Errorf("unknown admin op %q", cmd.Op)
	}
	if err != nil {
		s.log.Warn().Err(err).Str("op", string(cmd.Op)).Str("caller", cmd.Caller.Hex()).Msg("admin command rejected")
		return nil
	}
	s.log.Info().Str("op", string(cmd.Op)).Str("caller", cmd.Caller.Hex()).Msg("admin command applied")
	return nil
}

func (s *Sequencer) createOtoken(p *event.OtokenParams) error {
	if p == nil || p.StrikePrice == nil {
		return reason.Wrap(reason.ErrInvalidOtokenParams, "missing series parameters")
	}
	o, err := s.factory.Create(p.Underlying, p.Strike, p.Collateral, p.StrikePrice, p.Expiry, p.IsPut)
	if err != nil {
		return err
	}
	s.log.Info().Str("otoken", o.Address.Hex()).Int64("expiry", o.Expiry).Bool("put", o.IsPut).Msg("otoken created")
	return nil
}

// Warm loads recently processed batch ids into the dedup LRU.
func (s *Sequencer) Warm(ids []uuid.UUID) {
	s.idempotency.Warm(ids)
}

// GetSequence returns the next core sequence to be assigned.
func (s *Sequencer) GetSequence() int64 {
	return s.sequence
}

// LastSequence returns the last decided core sequence, or 0 before the first
// batch. Safe to call from any goroutine.
func (s *Sequencer) LastSequence() int64 {
	return s.decided.Load()
}

// GetStateHash returns the current chain tip.
func (s *Sequencer) GetStateHash() [32]byte {
	return s.chain.tip
}
