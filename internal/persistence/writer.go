package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"PerpVault/internal/event"
)

// RecordWriter writes operation records to Postgres using multi-row INSERT.
// Amounts are stored as NUMERIC so the 1e30-scale values survive round trips
// without loss. Writes are idempotent on sequence, so the journal worker can
// retry a batch after a partial failure.
type RecordWriter struct {
	db *sql.DB
}

func NewRecordWriter(db *sql.DB) *RecordWriter {
	return &RecordWriter{db: db}
}

const recordColumns = 16

// WriteBatch inserts a batch of records into oplog.records.
func (w *RecordWriter) WriteBatch(ctx context.Context, records []event.Record) error {
	if len(records) == 0 {
		return nil
	}

	query := `INSERT INTO oplog.records
		(sequence, record_id, kind, account, side, size_delta_usd, collateral_delta,
		 assets, shares, payout, fee_paid, realized_pnl_usd, liquidator, param, value, occurred_at)
		VALUES `

	values := make([]string, 0, len(records))
	args := make([]interface{}, 0, len(records)*recordColumns)

	for i, r := range records {
		base := i * recordColumns
		ph := make([]string, recordColumns)
		for j := range ph {
			ph[j] = fmt.Sprintf("$%d", base+j+1)
		}
		values = append(values, "("+strings.Join(ph, ", ")+")")
		args = append(args,
			r.Sequence, r.RecordID, r.Kind.String(), r.Account,
			nullStr(r.Side), nullStr(r.SizeDelta), nullStr(r.Collateral),
			nullStr(r.Assets), nullStr(r.Shares), nullStr(r.Payout),
			nullStr(r.FeePaid), nullStr(r.RealizedPL), nullUUID(r.Liquidator),
			nullStr(r.Param), nullStr(r.Value), r.OccurredAt,
		)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (sequence) DO NOTHING"

	_, err := w.db.ExecContext(ctx, query, args...)
	return err
}

// LastSequence reports the highest journaled sequence, 0 when empty.
func (w *RecordWriter) LastSequence(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	err := w.db.QueryRowContext(ctx, `SELECT MAX(sequence) FROM oplog.records`).Scan(&seq)
	if err != nil {
		return 0, err
	}
	return seq.Int64, nil
}

func nullStr(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullUUID(id uuid.UUID) interface{} {
	if id == uuid.Nil {
		return nil
	}
	return id
}
