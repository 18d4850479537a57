package configuration

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"idverify/internal/identityverification/models"
	"idverify/internal/platform/postgres"
	"idverify/pkg/platform/sentinel"
)

// PostgresStore persists configurations as JSON text. The column is JSON, not
// JSONB, so transition key order survives storage.
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgres constructs a PostgreSQL-backed configuration store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: sqlx.NewDb(db, postgres.DriverName)}
}

type configRow struct {
	ID        string    `db:"id"`
	TenantID  string    `db:"tenant_id"`
	Type      string    `db:"type"`
	Payload   []byte    `db:"payload"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

const selectColumns = `SELECT id, tenant_id, type, payload, created_at, updated_at FROM identity_verification_configurations`

func (s *PostgresStore) Create(ctx context.Context, cfg *models.Configuration) error {
	payload, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode configuration: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO identity_verification_configurations (id, tenant_id, type, payload, enabled, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, cfg.ID, cfg.TenantID, cfg.Type, payload, cfg.Enabled(), cfg.CreatedAt, cfg.UpdatedAt)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert configuration: %w", err)
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, cfg *models.Configuration) error {
	payload, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode configuration: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE identity_verification_configurations
		SET type = $3, payload = $4, enabled = $5, updated_at = $6
		WHERE tenant_id = $1 AND id = $2
	`, cfg.TenantID, cfg.ID, cfg.Type, payload, cfg.Enabled(), cfg.UpdatedAt)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("update configuration: %w", err)
	}
	return requireRow(res)
}

func (s *PostgresStore) Delete(ctx context.Context, tenantID, id string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM identity_verification_configurations WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	if err != nil {
		return fmt.Errorf("delete configuration: %w", err)
	}
	return requireRow(res)
}

func (s *PostgresStore) FindByID(ctx context.Context, tenantID, id string) (*models.Configuration, error) {
	return s.findOne(ctx, selectColumns+` WHERE tenant_id = $1 AND id = $2`, tenantID, id)
}

func (s *PostgresStore) FindByType(ctx context.Context, tenantID, verificationType string) (*models.Configuration, error) {
	return s.findOne(ctx, selectColumns+` WHERE tenant_id = $1 AND type = $2`, tenantID, verificationType)
}

func (s *PostgresStore) List(ctx context.Context, tenantID string, limit, offset int) ([]*models.Configuration, error) {
	var rows []configRow
	err := s.db.SelectContext(ctx, &rows,
		selectColumns+` WHERE tenant_id = $1 ORDER BY type LIMIT $2 OFFSET $3`, tenantID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list configurations: %w", err)
	}
	out := make([]*models.Configuration, 0, len(rows))
	for _, row := range rows {
		cfg, err := row.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, cfg)
	}
	return out, nil
}

func (s *PostgresStore) Count(ctx context.Context, tenantID string) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n,
		`SELECT COUNT(*) FROM identity_verification_configurations WHERE tenant_id = $1`, tenantID)
	if err != nil {
		return 0, fmt.Errorf("count configurations: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) findOne(ctx context.Context, query string, args ...any) (*models.Configuration, error) {
	var row configRow
	if err := s.db.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find configuration: %w", err)
	}
	return row.toModel()
}

func (r configRow) toModel() (*models.Configuration, error) {
	var cfg models.Configuration
	if err := json.Unmarshal(r.Payload, &cfg); err != nil {
		return nil, fmt.Errorf("decode configuration %s: %w", r.ID, err)
	}
	cfg.ID = r.ID
	cfg.Type = r.Type
	cfg.TenantID = r.TenantID
	cfg.CreatedAt = r.CreatedAt
	cfg.UpdatedAt = r.UpdatedAt
	return &cfg, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}
