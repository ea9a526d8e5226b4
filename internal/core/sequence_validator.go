package core

import (
	"OptionLedger/internal/observability"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// ErrSequenceGap is returned when a source skips ahead. The batch should be
// redelivered once the missing ones arrive.
var ErrSequenceGap = errors.New("sequence gap")

// SequenceValidator validates source sequences per partition. Sequences
// start at 1.
// Not thread-safe; only the sequencer goroutine touches it.
type SequenceValidator struct {
	expectedNextSeq map[string]int64 // partition -> next expected sequence
	metrics         *observability.Metrics
}

func NewSequenceValidator(metrics *observability.Metrics) *SequenceValidator {
	return &SequenceValidator{
		expectedNextSeq: make(map[string]int64),
		metrics:         metrics,
	}
}

func batchPartition(source string) string { return "batch:" + source }

func pricePartition(asset common.Address) string { return "price:" + asset.Hex() }

// ValidateSequence checks a batch's source sequence. A sequence below the
// expected one is a replay and reports replay=true.
func (sv *SequenceValidator) ValidateSequence(source string, sourceSequence int64, isDuplicate bool) (replay bool, err error) {
	partition := batchPartition(source)
	expected := sv.expected(partition)

	switch {
	case sourceSequence == expected:
		sv.expectedNextSeq[partition] = expected + 1
		return false, nil
	case sourceSequence < expected:
		if !isDuplicate && sv.metrics != nil {
			// same sequence, new id: upstream reused a number
			sv.metrics.BatchOutOfOrder.WithLabelValues(source).Inc()
		}
		return true, nil
	default:
		if sv.metrics != nil {
			sv.metrics.BatchSequenceGap.WithLabelValues(source).Inc()
		}
		return false, fmt.Errorf("%w: source=%s, expected=%d, got=%d", ErrSequenceGap, source, expected, sourceSequence)
	}
}

// ValidatePriceSequence reports whether a price report is fresh. Gaps are
// tolerated; stale reports are skipped.
func (sv *SequenceValidator) ValidatePriceSequence(asset common.Address, priceSequence int64) bool {
	partition := pricePartition(asset)
	if priceSequence < sv.expected(partition) {
		return false
	}
	sv.expectedNextSeq[partition] = priceSequence + 1
	return true
}

func (sv *SequenceValidator) expected(partition string) int64 {
	if next, ok := sv.expectedNextSeq[partition]; ok {
		return next
	}
	return 1
}

// GetExpectedSequence returns next expected batch sequence for a source
func (sv *SequenceValidator) GetExpectedSequence(source string) int64 {
	return sv.expected(batchPartition(source))
}

// SetExpectedSequence initializes expected sequence (used during recovery)
func (sv *SequenceValidator) SetExpectedSequence(source string, seq int64) {
	sv.expectedNextSeq[batchPartition(source)] = seq
}
