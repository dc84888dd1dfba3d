package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gosuda/logcatd/internal/domain"
	"github.com/gosuda/logcatd/internal/logcat"
)

type RecordRepo struct {
	pool *pgxpool.Pool
}

func NewRecordRepo(pool *pgxpool.Pool) *RecordRepo {
	return &RecordRepo{pool: pool}
}

func (r *RecordRepo) Append(ctx context.Context, serial string, rec domain.Record) error {
	h := rec.Header
	_, err := r.pool.Exec(ctx,
		`INSERT INTO logcat_records (serial, level, pid, tid, package, tag, logged_at, message)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		serial, int(h.Level), h.PID, h.TID, h.Package, h.Tag, h.Timestamp, rec.Message,
	)
	if err != nil {
		return fmt.Errorf("recordRepo.Append: %w", err)
	}

	return nil
}

// ListBySerial returns archived records of a device logged at or after
// since, oldest first.
func (r *RecordRepo) ListBySerial(ctx context.Context, serial string, since time.Time, limit int) ([]domain.Record, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT level, pid, tid, package, tag, logged_at, message
		 FROM logcat_records WHERE serial = $1 AND logged_at >= $2
		 ORDER BY logged_at ASC, id ASC
		 LIMIT $3`,
		serial, since, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("recordRepo.ListBySerial: %w", err)
	}
	defer rows.Close()

	var records []domain.Record
	for rows.Next() {
		var (
			rec   domain.Record
			level int
		)

		err = rows.Scan(&level, &rec.Header.PID, &rec.Header.TID, &rec.Header.Package, &rec.Header.Tag, &rec.Header.Timestamp, &rec.Message)
		if err != nil {
			return nil, fmt.Errorf("recordRepo.ListBySerial: scan: %w", err)
		}
		rec.Header.Level = domain.LogLevel(level)
		records = append(records, rec)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("recordRepo.ListBySerial: rows: %w", err)
	}

	return records, nil
}

func (r *RecordRepo) CountBySerial(ctx context.Context, serial string) (int64, error) {
	var count int64

	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM logcat_records WHERE serial = $1`,
		serial,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("recordRepo.CountBySerial: %w", err)
	}

	return count, nil
}

// Appender stores one record.
type Appender interface {
	Append(ctx context.Context, serial string, rec domain.Record) error
}

// RecordSink archives every record through a.
func RecordSink(a Appender) logcat.Sink {
	return a.Append
}
