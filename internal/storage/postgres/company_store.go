// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kaishamap/company-pipeline/internal/pipeline"
)

// CompanyStoreConfig controls the Postgres connection pool.
type CompanyStoreConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// querier is the subset of pgxpool.Pool / pgx.Tx the store needs; pgxmock
// satisfies it for tests.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// CompanyStore is the Postgres implementation of the pipeline storage
// surface: companies, insured-count observations, profile-site rows and job
// listings. One value serves both pooled and in-transaction use; WithTx
// hands the callback a store bound to the transaction.
type CompanyStore struct {
	db     querier
	closer interface{ Close() }
}

// NewCompanyStore connects a pool and wraps it in a store.
func NewCompanyStore(ctx context.Context, cfg CompanyStoreConfig) (*CompanyStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &CompanyStore{db: pool, closer: pool}, nil
}

// NewCompanyStoreWithPool constructs a store from an existing pool
// (primarily for testing).
func NewCompanyStoreWithPool(db querier) (*CompanyStore, error) {
	if db == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &CompanyStore{db: db}, nil
}

// Ping verifies database connectivity for readiness checks.
func (s *CompanyStore) Ping(ctx context.Context) error {
	var one int
	if err := s.db.QueryRow(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// Close releases the underlying pool resources. A transaction-bound store
// has nothing to close.
func (s *CompanyStore) Close() {
	if s == nil || s.closer == nil {
		return
	}
	s.closer.Close()
}

const companyColumns = `
	id,
	COALESCE(corporate_number, ''),
	name,
	COALESCE(normalized_name, ''),
	COALESCE(address, ''),
	COALESCE(normalized_address, ''),
	COALESCE(is_active, TRUE),
	COALESCE(is_expanded_coverage, FALSE),
	COALESCE(pension_office, ''),
	coverage_start_date,
	COALESCE(url, '')`

func scanCompany(row pgx.Row) (pipeline.CompanyRecord, error) {
	var rec pipeline.CompanyRecord
	err := row.Scan(
		&rec.ID,
		&rec.CorporateNumber,
		&rec.Name,
		&rec.NormalizedName,
		&rec.Address,
		&rec.NormalizedAddress,
		&rec.IsActive,
		&rec.IsExpandedCoverage,
		&rec.PensionOfficeName,
		&rec.CoverageStartDate,
		&rec.SourceURL,
	)
	return rec, err
}

// FindCompanyByCorporateNumber implements pipeline.Store.
func (s *CompanyStore) FindCompanyByCorporateNumber(ctx context.Context, number string) (*pipeline.CompanyRecord, error) {
	if number == "" {
		return nil, nil
	}
	query := `SELECT` + companyColumns + `
FROM companies
WHERE corporate_number = $1`
	rec, err := scanCompany(s.db.QueryRow(ctx, query, number))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find company by corporate number: %w", err)
	}
	return &rec, nil
}

// FindCompaniesByNormalizedName implements pipeline.Store.
func (s *CompanyStore) FindCompaniesByNormalizedName(ctx context.Context, name string) ([]pipeline.CompanyRecord, error) {
	if name == "" {
		return nil, nil
	}
	query := `SELECT` + companyColumns + `
FROM companies
WHERE normalized_name = $1
ORDER BY created_at`
	rows, err := s.db.Query(ctx, query, name)
	if err != nil {
		return nil, fmt.Errorf("find companies by normalized name: %w", err)
	}
	defer rows.Close()

	var out []pipeline.CompanyRecord
	for rows.Next() {
		rec, err := scanCompany(rows)
		if err != nil {
			return nil, fmt.Errorf("scan company: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("find companies by normalized name: %w", err)
	}
	return out, nil
}

// UpsertCompany implements pipeline.Store. With a corporate number the row
// is keyed on it and mutable fields are refreshed on conflict; without one
// the record is inserted unconditionally and waits for a later source to
// fill the number in.
func (s *CompanyStore) UpsertCompany(ctx context.Context, rec pipeline.CompanyRecord) (string, error) {
	if rec.CorporateNumber == "" {
		query := `
INSERT INTO companies (
	name, normalized_name, address, normalized_address,
	is_active, is_expanded_coverage, pension_office, coverage_start_date, url
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
RETURNING id`
		var id string
		err := s.db.QueryRow(ctx, query,
			rec.Name, rec.NormalizedName, rec.Address, rec.NormalizedAddress,
			rec.IsActive, rec.IsExpandedCoverage, nullableText(rec.PensionOfficeName),
			rec.CoverageStartDate, nullableText(rec.SourceURL),
		).Scan(&id)
		if err != nil {
			return "", fmt.Errorf("insert company: %w", err)
		}
		return id, nil
	}

	query := `
INSERT INTO companies (
	corporate_number, name, normalized_name, address, normalized_address,
	is_active, is_expanded_coverage, pension_office, coverage_start_date, url
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (corporate_number) DO UPDATE SET
	name = EXCLUDED.name,
	normalized_name = EXCLUDED.normalized_name,
	address = EXCLUDED.address,
	normalized_address = EXCLUDED.normalized_address,
	is_active = EXCLUDED.is_active,
	is_expanded_coverage = EXCLUDED.is_expanded_coverage,
	pension_office = COALESCE(EXCLUDED.pension_office, companies.pension_office),
	coverage_start_date = COALESCE(EXCLUDED.coverage_start_date, companies.coverage_start_date),
	url = COALESCE(EXCLUDED.url, companies.url),
	updated_at = now()
RETURNING id`
	var id string
	err := s.db.QueryRow(ctx, query,
		rec.CorporateNumber, rec.Name, rec.NormalizedName, rec.Address, rec.NormalizedAddress,
		rec.IsActive, rec.IsExpandedCoverage, nullableText(rec.PensionOfficeName),
		rec.CoverageStartDate, nullableText(rec.SourceURL),
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("upsert company %s: %w", rec.CorporateNumber, err)
	}
	return id, nil
}

// UpdateCompanyFields implements pipeline.Store. The corporate number is
// filled in once and never overwritten; coverage date and url only move
// forward from empty.
func (s *CompanyStore) UpdateCompanyFields(ctx context.Context, id string, rec pipeline.CompanyRecord) error {
	query := `
UPDATE companies SET
	corporate_number = COALESCE(corporate_number, NULLIF($2, '')),
	name = $3,
	normalized_name = $4,
	address = $5,
	normalized_address = $6,
	is_active = $7,
	is_expanded_coverage = $8,
	pension_office = COALESCE(NULLIF($9, ''), pension_office),
	coverage_start_date = COALESCE($10, coverage_start_date),
	url = COALESCE(NULLIF($11, ''), url),
	updated_at = now()
WHERE id = $1`
	tag, err := s.db.Exec(ctx, query,
		id, rec.CorporateNumber, rec.Name, rec.NormalizedName,
		rec.Address, rec.NormalizedAddress, rec.IsActive, rec.IsExpandedCoverage,
		rec.PensionOfficeName, rec.CoverageStartDate, rec.SourceURL,
	)
	if err != nil {
		return fmt.Errorf("update company %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return pipeline.ErrNotFound
	}
	return nil
}

// UpsertObservation implements pipeline.Store, overwriting the count for
// (company, date) on conflict.
func (s *CompanyStore) UpsertObservation(ctx context.Context, companyID string, count int, observed time.Time) error {
	query := `
INSERT INTO insured_counts (company_id, insured_count, count_date)
VALUES ($1, $2, $3)
ON CONFLICT (company_id, count_date) DO UPDATE SET
	insured_count = EXCLUDED.insured_count`
	if _, err := s.db.Exec(ctx, query, companyID, count, observed); err != nil {
		return fmt.Errorf("upsert observation for %s: %w", companyID, err)
	}
	return nil
}

// WithTx implements pipeline.Store. The callback's store is bound to the
// transaction, so everything it writes commits or rolls back together.
func (s *CompanyStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx pipeline.Store) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(ctx, &CompanyStore{db: tx}); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// CompaniesMissingObservation implements pipeline.WorkLister: companies with
// no observation at or after since, in stable id order so interrupted
// batches resume where they stopped.
func (s *CompanyStore) CompaniesMissingObservation(ctx context.Context, since time.Time, offset, limit int) ([]pipeline.CompanyRecord, error) {
	query := `SELECT` + companyColumns + `
FROM companies c
WHERE c.corporate_number IS NOT NULL
AND NOT EXISTS (
	SELECT 1 FROM insured_counts ic
	WHERE ic.company_id = c.id AND ic.count_date >= $1
)
ORDER BY c.id
OFFSET $2 LIMIT $3`
	rows, err := s.db.Query(ctx, query, since, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("list companies missing observation: %w", err)
	}
	defer rows.Close()

	var out []pipeline.CompanyRecord
	for rows.Next() {
		rec, err := scanCompany(rows)
		if err != nil {
			return nil, fmt.Errorf("scan company: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list companies missing observation: %w", err)
	}
	return out, nil
}

// UpsertProfileCompany implements pipeline.ProfileStore, keyed on
// (source, source_key). An existing link survives re-scrapes.
func (s *CompanyStore) UpsertProfileCompany(ctx context.Context, pc pipeline.ProfileCompany) (int64, error) {
	query := `
INSERT INTO profile_companies (source, source_key, name, address, url)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (source, source_key) DO UPDATE SET
	name = EXCLUDED.name,
	address = EXCLUDED.address,
	url = EXCLUDED.url
RETURNING id`
	var id int64
	err := s.db.QueryRow(ctx, query, pc.Source, pc.SourceKey, pc.Name, pc.Address, pc.URL).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert profile company %s/%d: %w", pc.Source, pc.SourceKey, err)
	}
	return id, nil
}

// UnlinkedProfileCompanies implements pipeline.ProfileStore.
func (s *CompanyStore) UnlinkedProfileCompanies(ctx context.Context, source string, limit int) ([]pipeline.ProfileCompany, error) {
	query := `
SELECT id, source, source_key, name, COALESCE(address, ''), COALESCE(url, ''), COALESCE(company_id::text, '')
FROM profile_companies
WHERE source = $1 AND company_id IS NULL
ORDER BY id
LIMIT NULLIF($2, 0)`
	rows, err := s.db.Query(ctx, query, source, limit)
	if err != nil {
		return nil, fmt.Errorf("list unlinked profile companies: %w", err)
	}
	defer rows.Close()

	var out []pipeline.ProfileCompany
	for rows.Next() {
		var pc pipeline.ProfileCompany
		if err := rows.Scan(&pc.ID, &pc.Source, &pc.SourceKey, &pc.Name, &pc.Address, &pc.URL, &pc.CompanyID); err != nil {
			return nil, fmt.Errorf("scan profile company: %w", err)
		}
		out = append(out, pc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list unlinked profile companies: %w", err)
	}
	return out, nil
}

// LinkProfileCompany implements pipeline.ProfileStore.
func (s *CompanyStore) LinkProfileCompany(ctx context.Context, profileID int64, companyID string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE profile_companies SET company_id = $2 WHERE id = $1`,
		profileID, companyID,
	)
	if err != nil {
		return fmt.Errorf("link profile company %d: %w", profileID, err)
	}
	if tag.RowsAffected() == 0 {
		return pipeline.ErrNotFound
	}
	return nil
}

func nullableText(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
