/*
Copyright 2026 Jordi Gil.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package store implements SignatureStorePort against PostgreSQL, with
// an optional Redis read-through cache decorator.
package store

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pressly/goose/v3"

	sharederrors "github.com/jordigilh/rounds/pkg/shared/errors"

	"github.com/jordigilh/rounds/pkg/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresStore implements ports.SignatureStorePort against a
// PostgreSQL signatures table.
type PostgresStore struct {
	pool  *pgxpool.Pool
	stats *StatsReader
}

// Open connects to PostgreSQL and runs pending migrations.
func Open(ctx context.Context, connString string) (*PostgresStore, error) {
	poolConfig, err := newPoolConfig(connString)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, sharederrors.DatabaseError("open postgres pool", err)
	}

	if err := migrate(connString); err != nil {
		pool.Close()
		return nil, err
	}

	reader, err := NewStatsReader(connString)
	if err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool, stats: reader}, nil
}

// newPoolConfig parses connString and forces DefaultQueryExecMode to
// DescribeExec rather than pgx's default CacheStatement, so a cached
// prepared-statement plan is never left stale by a schema migration
// applied while the pool is already open.
func newPoolConfig(connString string) (*pgxpool.Config, error) {
	poolConfig, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, sharederrors.DatabaseError("parse postgres connection string", err)
	}
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeDescribeExec
	return poolConfig, nil
}

func migrate(connString string) error {
	goose.SetBaseFS(migrationsFS)
	defer goose.SetBaseFS(nil)

	db, err := goose.OpenDBWithDriver("postgres", connString)
	if err != nil {
		return fmt.Errorf("failed to open migration connection: %w", err)
	}
	defer db.Close()

	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("failed to run signature store migrations: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool and stats reader.
func (s *PostgresStore) Close() {
	s.pool.Close()
	s.stats.Close()
}

type signatureRow struct {
	ID              string
	Fingerprint     string
	StackHash       string
	ErrorType       string
	Service         string
	MessageTemplate string
	FirstSeen       time.Time
	LastSeen        time.Time
	OccurrenceCount int
	Status          string
	Diagnosis       []byte
	Tags            []string
}

func scanSignature(row pgx.Row) (*model.Signature, error) {
	var r signatureRow
	err := row.Scan(&r.ID, &r.Fingerprint, &r.StackHash, &r.ErrorType, &r.Service,
		&r.MessageTemplate, &r.FirstSeen, &r.LastSeen, &r.OccurrenceCount, &r.Status,
		&r.Diagnosis, &r.Tags)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rowToSignature(r)
}

func rowToSignature(r signatureRow) (*model.Signature, error) {
	sig := &model.Signature{
		ID:              r.ID,
		Fingerprint:     r.Fingerprint,
		StackHash:       r.StackHash,
		ErrorType:       r.ErrorType,
		Service:         r.Service,
		MessageTemplate: r.MessageTemplate,
		FirstSeen:       r.FirstSeen,
		LastSeen:        r.LastSeen,
		OccurrenceCount: r.OccurrenceCount,
		Status:          model.Status(r.Status),
		Tags:            r.Tags,
	}
	if len(r.Diagnosis) > 0 {
		var d model.Diagnosis
		if err := json.Unmarshal(r.Diagnosis, &d); err != nil {
			return nil, fmt.Errorf("failed to decode stored diagnosis: %w", err)
		}
		sig.Diagnosis = &d
	}
	return sig, nil
}

// GetByID returns the signature, or (nil, nil) if absent.
func (s *PostgresStore) GetByID(ctx context.Context, id string) (*model.Signature, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, fingerprint, stack_hash, error_type, service, message_template,
		       first_seen, last_seen, occurrence_count, status, diagnosis, tags
		FROM signatures WHERE id = $1`, id)
	return scanSignature(row)
}

// GetByFingerprint returns the signature, or (nil, nil) if absent.
func (s *PostgresStore) GetByFingerprint(ctx context.Context, fingerprint string) (*model.Signature, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, fingerprint, stack_hash, error_type, service, message_template,
		       first_seen, last_seen, occurrence_count, status, diagnosis, tags
		FROM signatures WHERE fingerprint = $1`, fingerprint)
	return scanSignature(row)
}

func (s *PostgresStore) upsert(ctx context.Context, sig *model.Signature) error {
	var diagnosisJSON []byte
	if sig.Diagnosis != nil {
		var err error
		diagnosisJSON, err = json.Marshal(sig.Diagnosis)
		if err != nil {
			return fmt.Errorf("failed to encode diagnosis: %w", err)
		}
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO signatures (id, fingerprint, stack_hash, error_type, service, message_template,
		                         first_seen, last_seen, occurrence_count, status, diagnosis, tags)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (fingerprint) DO UPDATE SET
			stack_hash = EXCLUDED.stack_hash,
			message_template = EXCLUDED.message_template,
			last_seen = EXCLUDED.last_seen,
			occurrence_count = EXCLUDED.occurrence_count,
			status = EXCLUDED.status,
			diagnosis = EXCLUDED.diagnosis,
			tags = EXCLUDED.tags`,
		sig.ID, sig.Fingerprint, sig.StackHash, sig.ErrorType, sig.Service, sig.MessageTemplate,
		sig.FirstSeen, sig.LastSeen, sig.OccurrenceCount, string(sig.Status), diagnosisJSON, sig.Tags)
	if err != nil {
		return fmt.Errorf("failed to upsert signature: %w", err)
	}
	return nil
}

// Save upserts sig.
func (s *PostgresStore) Save(ctx context.Context, sig *model.Signature) error {
	return s.upsert(ctx, sig)
}

// Update upserts sig; implemented identically to Save.
func (s *PostgresStore) Update(ctx context.Context, sig *model.Signature) error {
	return s.upsert(ctx, sig)
}

func (s *PostgresStore) query(ctx context.Context, sql string, args ...interface{}) ([]model.Signature, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Signature
	for rows.Next() {
		var r signatureRow
		if err := rows.Scan(&r.ID, &r.Fingerprint, &r.StackHash, &r.ErrorType, &r.Service,
			&r.MessageTemplate, &r.FirstSeen, &r.LastSeen, &r.OccurrenceCount, &r.Status,
			&r.Diagnosis, &r.Tags); err != nil {
			return nil, err
		}
		sig, err := rowToSignature(r)
		if err != nil {
			return nil, err
		}
		out = append(out, *sig)
	}
	return out, rows.Err()
}

// GetPendingInvestigation returns every status=NEW signature, ordered
// by (last_seen desc, occurrence_count desc).
func (s *PostgresStore) GetPendingInvestigation(ctx context.Context) ([]model.Signature, error) {
	return s.query(ctx, `
		SELECT id, fingerprint, stack_hash, error_type, service, message_template,
		       first_seen, last_seen, occurrence_count, status, diagnosis, tags
		FROM signatures WHERE status = 'NEW'
		ORDER BY last_seen DESC, occurrence_count DESC`)
}

// GetAll returns every signature regardless of status.
func (s *PostgresStore) GetAll(ctx context.Context) ([]model.Signature, error) {
	return s.query(ctx, `
		SELECT id, fingerprint, stack_hash, error_type, service, message_template,
		       first_seen, last_seen, occurrence_count, status, diagnosis, tags
		FROM signatures
		ORDER BY last_seen DESC`)
}

// GetSimilar returns up to limit signatures sharing sig's service and
// error_type, excluding sig itself.
func (s *PostgresStore) GetSimilar(ctx context.Context, sig *model.Signature, limit int) ([]model.Signature, error) {
	return s.query(ctx, `
		SELECT id, fingerprint, stack_hash, error_type, service, message_template,
		       first_seen, last_seen, occurrence_count, status, diagnosis, tags
		FROM signatures
		WHERE service = $1 AND error_type = $2 AND id != $3
		ORDER BY last_seen DESC
		LIMIT $4`, sig.Service, sig.ErrorType, sig.ID, limit)
}

// GetStats delegates to a sqlx-backed StatsReader sharing the same
// DSN, grouping and aggregating server-side rather than in Go.
func (s *PostgresStore) GetStats(ctx context.Context) (model.StoreStats, error) {
	return s.stats.GetStats(ctx)
}
