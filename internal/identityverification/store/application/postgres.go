package application

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"idverify/internal/identityverification/models"
	"idverify/internal/platform/postgres"
	"idverify/pkg/platform/sentinel"
)

// PostgresStore persists applications. Writes after creation go through a
// version-conditional UPDATE.
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgres constructs a PostgreSQL-backed application store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: sqlx.NewDb(db, postgres.DriverName)}
}

type applicationRow struct {
	ID                         string       `db:"id"`
	TenantID                   string       `db:"tenant_id"`
	ClientID                   string       `db:"client_id"`
	UserID                     string       `db:"user_id"`
	Type                       string       `db:"type"`
	Status                     string       `db:"status"`
	ApplicationDetails         []byte       `db:"application_details"`
	ExternalService            string       `db:"external_service"`
	ExternalApplicationID      string       `db:"external_application_id"`
	ExternalApplicationDetails []byte       `db:"external_application_details"`
	Processes                  []byte       `db:"processes"`
	RequestedAt                time.Time    `db:"requested_at"`
	CompletedAt                sql.NullTime `db:"completed_at"`
	Version                    int64        `db:"version"`
}

const selectColumns = `SELECT id, tenant_id, client_id, user_id, type, status, application_details,
	external_service, external_application_id, external_application_details, processes,
	requested_at, completed_at, version
	FROM identity_verification_applications`

func (s *PostgresStore) Create(ctx context.Context, app *models.Application) error {
	docs, err := encodeDocuments(app)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO identity_verification_applications (
			id, tenant_id, client_id, user_id, type, status, application_details,
			external_service, external_application_id, external_application_details,
			processes, requested_at, completed_at, version
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, 1)
	`, app.ID, app.TenantID, app.ClientID, app.UserID, app.Type, app.Status, docs.details,
		app.ExternalService, app.ExternalApplicationID, docs.external,
		docs.processes, app.RequestedAt, nullTime(app.CompletedAt))
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert application: %w", err)
	}
	app.Version = 1
	return nil
}

func (s *PostgresStore) UpdateIfVersion(ctx context.Context, app *models.Application, expected int64) error {
	docs, err := encodeDocuments(app)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE identity_verification_applications
		SET status = $4, application_details = $5, external_service = $6,
			external_application_id = $7, external_application_details = $8,
			processes = $9, completed_at = $10, version = version + 1
		WHERE id = $1 AND tenant_id = $2 AND version = $3
	`, app.ID, app.TenantID, expected, app.Status, docs.details, app.ExternalService,
		app.ExternalApplicationID, docs.external, docs.processes, nullTime(app.CompletedAt))
	if err != nil {
		return fmt.Errorf("update application: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		var exists bool
		if err := s.db.GetContext(ctx, &exists,
			`SELECT EXISTS (SELECT 1 FROM identity_verification_applications WHERE id = $1 AND tenant_id = $2)`,
			app.ID, app.TenantID); err != nil {
			return fmt.Errorf("check application: %w", err)
		}
		if !exists {
			return sentinel.ErrNotFound
		}
		return sentinel.ErrConflict
	}
	app.Version = expected + 1
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, tenantID, userID, id string) (*models.Application, error) {
	return s.findOne(ctx, selectColumns+` WHERE id = $1 AND tenant_id = $2 AND user_id = $3`, id, tenantID, userID)
}

func (s *PostgresStore) FindByExternalID(ctx context.Context, tenantID, verificationType, externalID string) (*models.Application, error) {
	if externalID == "" {
		return nil, sentinel.ErrNotFound
	}
	return s.findOne(ctx, selectColumns+` WHERE tenant_id = $1 AND type = $2 AND external_application_id = $3
		ORDER BY requested_at DESC LIMIT 1`, tenantID, verificationType, externalID)
}

func (s *PostgresStore) List(ctx context.Context, q models.ApplicationQuery) ([]*models.Application, error) {
	where, args := buildWhere(q)
	args = append(args, q.Limit, q.Offset)
	query := selectColumns + where + ` ORDER BY requested_at DESC, id LIMIT $` +
		strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))

	var rows []applicationRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list applications: %w", err)
	}
	out := make([]*models.Application, 0, len(rows))
	for _, row := range rows {
		app, err := row.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, app)
	}
	return out, nil
}

func (s *PostgresStore) Count(ctx context.Context, q models.ApplicationQuery) (int, error) {
	where, args := buildWhere(q)
	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM identity_verification_applications`+where, args...); err != nil {
		return 0, fmt.Errorf("count applications: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) Delete(ctx context.Context, tenantID, userID, id string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM identity_verification_applications WHERE id = $1 AND tenant_id = $2 AND user_id = $3`,
		id, tenantID, userID)
	if err != nil {
		return fmt.Errorf("delete application: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) findOne(ctx context.Context, query string, args ...any) (*models.Application, error) {
	var row applicationRow
	if err := s.db.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find application: %w", err)
	}
	return row.toModel()
}

// buildWhere translates q into a WHERE clause with positional arguments.
// Detail filters compare application_details ->> key as text.
func buildWhere(q models.ApplicationQuery) (string, []any) {
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
	if q.Type != "" {
		add("type = ?", q.Type)
	}
	if q.Status != "" {
		add("status = ?", q.Status)
	}
	if q.ClientID != "" {
		add("client_id = ?", q.ClientID)
	}
	if q.ExternalService != "" {
		add("external_service = ?", q.ExternalService)
	}
	if q.ExternalApplicationID != "" {
		add("external_application_id = ?", q.ExternalApplicationID)
	}
	if q.From != nil {
		add("requested_at >= ?", *q.From)
	}
	if q.To != nil {
		add("requested_at <= ?", *q.To)
	}

	keys := make([]string, 0, len(q.Details))
	for k := range q.Details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, k)
		keyPos := len(args)
		args = append(args, q.Details[k])
		clauses = append(clauses, fmt.Sprintf("application_details ->> $%d = $%d", keyPos, len(args)))
	}

	return " WHERE " + strings.Join(clauses, " AND "), args
}

type encodedDocs struct {
	details, external, processes []byte
}

func encodeDocuments(app *models.Application) (encodedDocs, error) {
	var docs encodedDocs
	var err error
	if docs.details, err = json.Marshal(orEmpty(app.ApplicationDetails)); err != nil {
		return docs, fmt.Errorf("encode application_details: %w", err)
	}
	if docs.external, err = json.Marshal(orEmpty(app.ExternalApplicationDetails)); err != nil {
		return docs, fmt.Errorf("encode external_application_details: %w", err)
	}
	processes := app.Processes
	if processes == nil {
		processes = map[string]models.ProcessResult{}
	}
	if docs.processes, err = json.Marshal(processes); err != nil {
		return docs, fmt.Errorf("encode processes: %w", err)
	}
	return docs, nil
}

func (r applicationRow) toModel() (*models.Application, error) {
	app := &models.Application{
		ID:                    r.ID,
		TenantID:              r.TenantID,
		ClientID:              r.ClientID,
		UserID:                r.UserID,
		Type:                  r.Type,
		Status:                r.Status,
		ExternalService:       r.ExternalService,
		ExternalApplicationID: r.ExternalApplicationID,
		RequestedAt:           r.RequestedAt,
		Version:               r.Version,
	}
	if r.CompletedAt.Valid {
		t := r.CompletedAt.Time
		app.CompletedAt = &t
	}
	if err := json.Unmarshal(r.ApplicationDetails, &app.ApplicationDetails); err != nil {
		return nil, fmt.Errorf("decode application_details: %w", err)
	}
	if err := json.Unmarshal(r.ExternalApplicationDetails, &app.ExternalApplicationDetails); err != nil {
		return nil, fmt.Errorf("decode external_application_details: %w", err)
	}
	if err := json.Unmarshal(r.Processes, &app.Processes); err != nil {
		return nil, fmt.Errorf("decode processes: %w", err)
	}
	return app, nil
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
