package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/jordigilh/rounds/pkg/model"
)

// StatsReader computes the store's reporting aggregate via
// server-side grouping, on its own sqlx connection rather than the
// pgxpool used for the hot CRUD path — read-heavy reporting queries
// are isolated from the transactional pool they'd otherwise compete
// with for connections.
type StatsReader struct {
	db *sqlx.DB
}

// NewStatsReader opens a dedicated sqlx/lib-pq connection to connString.
func NewStatsReader(connString string) (*StatsReader, error) {
	db, err := sqlx.Connect("postgres", connString)
	if err != nil {
		return nil, fmt.Errorf("failed to open stats reader connection: %w", err)
	}
	return &StatsReader{db: db}, nil
}

// Close releases the underlying connection.
func (r *StatsReader) Close() {
	r.db.Close()
}

type statusCount struct {
	Status string `db:"status"`
	Count  int    `db:"count"`
}

type serviceCount struct {
	Service string `db:"service"`
	Count   int    `db:"count"`
}

// GetStats returns model.StoreStats, aggregated server-side.
func (r *StatsReader) GetStats(ctx context.Context) (model.StoreStats, error) {
	stats := model.StoreStats{
		ByStatus:  make(map[model.Status]int),
		ByService: make(map[string]int),
	}

	if err := r.db.GetContext(ctx, &stats.TotalSignatures, `SELECT count(*) FROM signatures`); err != nil {
		return model.StoreStats{}, fmt.Errorf("failed to count signatures: %w", err)
	}

	var byStatus []statusCount
	if err := r.db.SelectContext(ctx, &byStatus, `SELECT status, count(*) AS count FROM signatures GROUP BY status`); err != nil {
		return model.StoreStats{}, fmt.Errorf("failed to aggregate by status: %w", err)
	}
	for _, row := range byStatus {
		stats.ByStatus[model.Status(row.Status)] = row.Count
	}

	var byService []serviceCount
	if err := r.db.SelectContext(ctx, &byService, `SELECT service, count(*) AS count FROM signatures GROUP BY service`); err != nil {
		return model.StoreStats{}, fmt.Errorf("failed to aggregate by service: %w", err)
	}
	for _, row := range byService {
		stats.ByService[row.Service] = row.Count
	}

	var oldestAgeHours *float64
	if err := r.db.GetContext(ctx, &oldestAgeHours, `
		SELECT EXTRACT(EPOCH FROM (now() - min(first_seen))) / 3600.0 FROM signatures`); err != nil {
		return model.StoreStats{}, fmt.Errorf("failed to compute oldest signature age: %w", err)
	}
	if oldestAgeHours != nil {
		stats.OldestSignatureAgeHours = *oldestAgeHours
	}

	var avgOccurrence *float64
	if err := r.db.GetContext(ctx, &avgOccurrence, `SELECT avg(occurrence_count) FROM signatures`); err != nil {
		return model.StoreStats{}, fmt.Errorf("failed to compute average occurrence count: %w", err)
	}
	if avgOccurrence != nil {
		stats.AvgOccurrenceCount = *avgOccurrence
	}

	var totalErrorsSeen int64
	if err := r.db.GetContext(ctx, &totalErrorsSeen, `SELECT coalesce(sum(occurrence_count), 0) FROM signatures`); err != nil {
		return model.StoreStats{}, fmt.Errorf("failed to sum total errors seen: %w", err)
	}
	stats.TotalErrorsSeen = &totalErrorsSeen

	return stats, nil
}
