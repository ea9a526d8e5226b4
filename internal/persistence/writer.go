package persistence

import (
	"OptionLedger/internal/event"
	"context"
	"fmt"
	"strings"
	"time"
)

// AuditWriter writes batch outcomes to the audit log using multi-row INSERT.
type AuditWriter struct {
	db *DB
}

// OutcomeRow represents a row in batch_outcomes.
type OutcomeRow struct {
	BatchID        string
	Sequence       int64
	Source         string
	SourceSequence int64
	Sender         string
	Status         string
	ReasonKind     string
	ReasonCode     string
	Message        string
	ActionCount    int
	StateHash      []byte
	PrevHash       []byte
	CreatedAt      time.Time
}

// NewOutcomeRow flattens an outcome for storage.
func NewOutcomeRow(o event.Outcome) OutcomeRow {
	return OutcomeRow{
		BatchID:        o.BatchID.String(),
		Sequence:       o.Sequence,
		Source:         o.Source,
		SourceSequence: o.SourceSequence,
		Sender:         o.Sender.Hex(),
		Status:         o.Status.String(),
		ReasonKind:     o.ReasonKind,
		ReasonCode:     o.ReasonCode,
		Message:        o.Message,
		ActionCount:    o.ActionCount,
		StateHash:      append([]byte(nil), o.StateHash[:]...),
		PrevHash:       append([]byte(nil), o.PrevHash[:]...),
		CreatedAt:      o.Timestamp.UTC(),
	}
}

func NewAuditWriter(db *DB) *AuditWriter {
	return &AuditWriter{db: db}
}

// WriteOutcomeBatch writes outcomes to batch_outcomes. A replay after restart
// rewrites rows already present, so conflicts are ignored.
func (w *AuditWriter) WriteOutcomeBatch(ctx context.Context, ex execer, rows []OutcomeRow) error {
	if len(rows) == 0 {
		return nil
	}

	query := `INSERT INTO batch_outcomes
		(batch_id, sequence, source, source_sequence, sender, status, reason_kind, reason_code, message, action_count, state_hash, prev_hash, created_at)
		VALUES `

	const cols = 13
	values := make([]string, 0, len(rows))
	args := make([]interface{}, 0, len(rows)*cols)

	for i, r := range rows {
		values = append(values, placeholders(i*cols, cols))
		args = append(args,
			r.BatchID, r.Sequence, r.Source, r.SourceSequence, r.Sender,
			r.Status, r.ReasonKind, r.ReasonCode, r.Message, r.ActionCount,
			r.StateHash, r.PrevHash, r.CreatedAt,
		)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (batch_id) DO NOTHING" // Idempotent writes

	_, err := ex.ExecContext(ctx, w.db.Rebind(query), args...)
	return err
}

// WriteProcessedBatch records the decided batch ids for durable dedup.
func (w *AuditWriter) WriteProcessedBatch(ctx context.Context, ex execer, rows []OutcomeRow) error {
	if len(rows) == 0 {
		return nil
	}

	query := `INSERT INTO processed_batches (batch_id, sequence, processed_at) VALUES `

	const cols = 3
	values := make([]string, 0, len(rows))
	args := make([]interface{}, 0, len(rows)*cols)

	for i, r := range rows {
		values = append(values, placeholders(i*cols, cols))
		args = append(args, r.BatchID, r.Sequence, r.CreatedAt)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (batch_id) DO NOTHING"

	_, err := ex.ExecContext(ctx, w.db.Rebind(query), args...)
	return err
}

// QueryOutcome loads one stored outcome by batch id. CreatedAt is left zero.
func (w *AuditWriter) QueryOutcome(ctx context.Context, batchID string) (*OutcomeRow, error) {
	row := w.db.QueryRowContext(ctx, w.db.Rebind(`
		SELECT batch_id, sequence, source, source_sequence, sender, status,
		       reason_kind, reason_code, message, action_count, state_hash, prev_hash
		FROM batch_outcomes WHERE batch_id = $1`), batchID)

	var r OutcomeRow
	if err := row.Scan(
		&r.BatchID, &r.Sequence, &r.Source, &r.SourceSequence, &r.Sender, &r.Status,
		&r.ReasonKind, &r.ReasonCode, &r.Message, &r.ActionCount, &r.StateHash, &r.PrevHash,
	); err != nil {
		return nil, err
	}
	return &r, nil
}

// placeholders renders "($base+1, ..., $base+n)".
func placeholders(base, n int) string {
	var b strings.Builder
	b.WriteByte('(')
	for j := 1; j <= n; j++ {
		if j > 1 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "$%d", base+j)
	}
	b.WriteByte(')')
	return b.String()
}
