package result

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"idverify/internal/identityverification/models"
	"idverify/internal/platform/postgres"
	"idverify/pkg/platform/sentinel"
)

// PostgresStore persists results. Rows are append-only.
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgres constructs a PostgreSQL-backed result store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: sqlx.NewDb(db, postgres.DriverName)}
}

type resultRow struct {
	ID                    string         `db:"id"`
	TenantID              string         `db:"tenant_id"`
	UserID                string         `db:"user_id"`
	ApplicationID         sql.NullString `db:"application_id"`
	Type                  string         `db:"type"`
	ExternalService       string         `db:"external_service"`
	ExternalApplicationID string         `db:"external_application_id"`
	VerifiedClaims        []byte         `db:"verified_claims"`
	SourceDetails         []byte         `db:"source_details"`
	Source                string         `db:"source"`
	VerifiedAt            time.Time      `db:"verified_at"`
	VerifiedUntil         sql.NullTime   `db:"verified_until"`
}

const selectColumns = `SELECT id, tenant_id, user_id, application_id, type, external_service,
	external_application_id, verified_claims, source_details, source, verified_at, verified_until
	FROM identity_verification_results`

func (s *PostgresStore) Create(ctx context.Context, r *models.VerificationResult) error {
	claims, err := json.Marshal(orEmpty(r.VerifiedClaims))
	if err != nil {
		return fmt.Errorf("encode verified_claims: %w", err)
	}
	details, err := json.Marshal(orEmpty(r.SourceDetails))
	if err != nil {
		return fmt.Errorf("encode source_details: %w", err)
	}
	applicationID := sql.NullString{String: r.ApplicationID, Valid: r.ApplicationID != ""}
	var until sql.NullTime
	if r.VerifiedUntil != nil {
		until = sql.NullTime{Time: *r.VerifiedUntil, Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO identity_verification_results (
			id, tenant_id, user_id, application_id, type, external_service,
			external_application_id, verified_claims, source_details, source, verified_at, verified_until
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, r.ID, r.TenantID, r.UserID, applicationID, r.Type, r.ExternalService,
		r.ExternalApplicationID, claims, details, r.Source, r.VerifiedAt, until)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert result: %w", err)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context, q models.ResultQuery) ([]*models.VerificationResult, error) {
	where, args := buildWhere(q)
	args = append(args, q.Limit, q.Offset)
	query := selectColumns + where + ` ORDER BY verified_at DESC, id LIMIT $` +
		strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))

	var rows []resultRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	out := make([]*models.VerificationResult, 0, len(rows))
	for _, row := range rows {
		r, err := row.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *PostgresStore) Count(ctx context.Context, q models.ResultQuery) (int, error) {
	where, args := buildWhere(q)
	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM identity_verification_results`+where, args...); err != nil {
		return 0, fmt.Errorf("count results: %w", err)
	}
	return n, nil
}

func buildWhere(q models.ResultQuery) (string, []any) {
	var clauses []string
	var args []any
	add := func(expr string, v any) {
		args = append(args, v)
		clauses = append(clauses, strings.ReplaceAll(expr, "?", "$"+strconv.Itoa(len(args))))
	}

	add("tenant_id = ?", q.TenantID)
	if q.UserID != "" {
		add("user_id = ?", q.UserID)
	}
	if q.ID != "" {
		add("id::text = ?", q.ID)
	}
	if q.ApplicationID != "" {
		add("application_id::text = ?", q.ApplicationID)
	}
	if q.Type != "" {
		add("type = ?", q.Type)
	}
	if q.Source != "" {
		add("source = ?", q.Source)
	}
	if q.VerifiedAtFrom != nil {
		add("verified_at >= ?", *q.VerifiedAtFrom)
	}
	if q.VerifiedAtTo != nil {
		add("verified_at <= ?", *q.VerifiedAtTo)
	}
	if q.VerifiedUntilFrom != nil {
		add("verified_until >= ?", *q.VerifiedUntilFrom)
	}
	if q.VerifiedUntilTo != nil {
		add("verified_until <= ?", *q.VerifiedUntilTo)
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func (r resultRow) toModel() (*models.VerificationResult, error) {
	out := &models.VerificationResult{
		ID:                    r.ID,
		TenantID:              r.TenantID,
		UserID:                r.UserID,
		ApplicationID:         r.ApplicationID.String,
		Type:                  r.Type,
		ExternalService:       r.ExternalService,
		ExternalApplicationID: r.ExternalApplicationID,
		Source:                r.Source,
		VerifiedAt:            r.VerifiedAt,
	}
	if r.VerifiedUntil.Valid {
		t := r.VerifiedUntil.Time
		out.VerifiedUntil = &t
	}
	if err := json.Unmarshal(r.VerifiedClaims, &out.VerifiedClaims); err != nil {
		return nil, fmt.Errorf("decode verified_claims: %w", err)
	}
	if err := json.Unmarshal(r.SourceDetails, &out.SourceDetails); err != nil {
		return nil, fmt.Errorf("decode source_details: %w", err)
	}
	return out, nil
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
