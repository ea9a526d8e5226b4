package persistence

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ProcessedBatches is the durable tier of batch deduplication, backed by
// the processed_batches table.
type ProcessedBatches struct {
	db      *DB
	timeout time.Duration
}

func NewProcessedBatches(db *DB) *ProcessedBatches {
	return &ProcessedBatches{db: db, timeout: 500 * time.Millisecond}
}

// IsProcessed reports whether batchID was decided at a core sequence below
// before. A replay from the start of the stream re-decides every batch at
// its original sequence, so only a strictly earlier decision is a duplicate.
func (pb *ProcessedBatches) IsProcessed(ctx context.Context, batchID uuid.UUID, before int64) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, pb.timeout)
	defer cancel()

	var seq int64
	err := pb.db.QueryRowContext(ctx,
		pb.db.Rebind(`SELECT sequence FROM processed_batches WHERE batch_id = $1`),
		batchID.String(),
	).Scan(&seq)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return seq < before, nil
}

// RecentIDs returns up to limit batch ids, newest first, for LRU warming.
func (pb *ProcessedBatches) RecentIDs(ctx context.Context, limit int) ([]uuid.UUID, error) {
	rows, err := pb.db.QueryContext(ctx,
		pb.db.Rebind(`SELECT batch_id FROM processed_batches ORDER BY sequence DESC LIMIT $1`),
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// LatestSequence returns the highest decided core sequence, or 0.
func (pb *ProcessedBatches) LatestSequence(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	if err := pb.db.QueryRowContext(ctx, `SELECT MAX(sequence) FROM processed_batches`).Scan(&seq); err != nil {
		return 0, err
	}
	if !seq.Valid {
		return 0, nil
	}
	return seq.Int64, nil
}
