package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"workflowguard/backend/internal/apperrors"
	"workflowguard/backend/pkg/models"
)

const (
	uniqueViolation         = "23505"
	foreignKeyViolation     = "23503"
	invalidTextRepr         = "22P02"
	versionNumberConstraint = "workflow_versions_number_key"
)

// errCorruptRow marks a stored row whose JSON columns no longer decode.
// Retrying cannot help, so mapError leaves it unclassified.
var errCorruptRow = errors.New("corrupt row")

// PostgresStore is a PostgreSQL implementation of the Repository interface.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

var _ Repository = (*PostgresStore)(nil)

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		return apperrors.Unavailable("ping", err)
	}
	return nil
}

// mapError translates driver errors into the repository's error contract.
func mapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, apperrors.ErrNotFound)
	}
	if errors.Is(err, errCorruptRow) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case uniqueViolation:
			if pgErr.ConstraintName == versionNumberConstraint {
				return fmt.Errorf("%s: %w", op, ErrDuplicateVersion)
			}
			return fmt.Errorf("%s: %w: %s", op, apperrors.ErrConflict, pgErr.Message)
		case foreignKeyViolation, invalidTextRepr:
			// Dangling references and malformed UUIDs name rows that cannot exist.
			return fmt.Errorf("%s: %w: %s", op, apperrors.ErrNotFound, pgErr.Message)
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	return apperrors.Unavailable(op, err)
}

// Accounts

const accountColumns = `id, name, domain, portal_id, plan_id, created_at, updated_at`

func scanAccount(row pgx.Row) (*models.Account, error) {
	var a models.Account
	if err := row.Scan(&a.ID, &a.Name, &a.Domain, &a.PortalID, &a.PlanID, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}

// GetAccount retrieves an account by its ID.
func (s *PostgresStore) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	a, err := scanAccount(s.db.QueryRow(ctx, "SELECT "+accountColumns+" FROM accounts WHERE id = $1", id))
	if err != nil {
		return nil, mapError("get account", err)
	}
	return a, nil
}

// GetAccountByDomain retrieves the account owning an email domain.
func (s *PostgresStore) GetAccountByDomain(ctx context.Context, domain string) (*models.Account, error) {
	a, err := scanAccount(s.db.QueryRow(ctx, "SELECT "+accountColumns+" FROM accounts WHERE domain = $1", domain))
	if err != nil {
		return nil, mapError("get account by domain", err)
	}
	return a, nil
}

// GetAccountByPortal retrieves the account connected to a HubSpot portal.
func (s *PostgresStore) GetAccountByPortal(ctx context.Context, portalID int64) (*models.Account, error) {
	a, err := scanAccount(s.db.QueryRow(ctx, "SELECT "+accountColumns+" FROM accounts WHERE portal_id = $1", portalID))
	if err != nil {
		return nil, mapError("get account by portal", err)
	}
	return a, nil
}

// CreateAccount saves a new account.
func (s *PostgresStore) CreateAccount(ctx context.Context, account *models.Account) error {
	if account.ID == "" {
		account.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if account.CreatedAt.IsZero() {
		account.CreatedAt = now
	}
	account.UpdatedAt = account.CreatedAt

	_, err := s.db.Exec(ctx,
		"INSERT INTO accounts ("+accountColumns+") VALUES ($1, $2, $3, $4, $5, $6, $7)",
		account.ID, account.Name, account.Domain, account.PortalID, account.PlanID, account.CreatedAt, account.UpdatedAt)
	return mapError("create account", err)
}

// Workflows

const workflowColumns = `id, account_id, portal_id, source_id, name, status, created_at, updated_at, deleted_at`

func scanWorkflow(row pgx.Row) (*models.Workflow, error) {
	var w models.Workflow
	if err := row.Scan(&w.ID, &w.AccountID, &w.PortalID, &w.SourceID, &w.Name, &w.Status, &w.CreatedAt, &w.UpdatedAt, &w.DeletedAt); err != nil {
		return nil, err
	}
	return &w, nil
}

func collectWorkflows(rows pgx.Rows) ([]*models.Workflow, error) {
	defer rows.Close()

	var workflows []*models.Workflow
	for rows.Next() {
		w, err := scanWorkflow(rows)
		if err != nil {
			return nil, err
		}
		workflows = append(workflows, w)
	}
	return workflows, rows.Err()
}

// CreateWorkflow registers a workflow.
func (s *PostgresStore) CreateWorkflow(ctx context.Context, workflow *models.Workflow) error {
	if workflow.ID == "" {
		workflow.ID = uuid.New().String()
	}
	if workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = time.Now().UTC()
	}
	workflow.UpdatedAt = workflow.CreatedAt

	_, err := s.db.Exec(ctx,
		"INSERT INTO workflows ("+workflowColumns+") VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULL)",
		workflow.ID, workflow.AccountID, workflow.PortalID, workflow.SourceID, workflow.Name, workflow.Status,
		workflow.CreatedAt, workflow.UpdatedAt)
	return mapError("create workflow", err)
}

// GetWorkflow retrieves a live workflow by its ID.
func (s *PostgresStore) GetWorkflow(ctx context.Context, id string) (*models.Workflow, error) {
	w, err := scanWorkflow(s.db.QueryRow(ctx,
		"SELECT "+workflowColumns+" FROM workflows WHERE id = $1 AND deleted_at IS NULL", id))
	if err != nil {
		return nil, mapError("get workflow", err)
	}
	return w, nil
}

// GetWorkflowBySource retrieves a live workflow by its HubSpot identity.
func (s *PostgresStore) GetWorkflowBySource(ctx context.Context, portalID int64, sourceID string) (*models.Workflow, error) {
	w, err := scanWorkflow(s.db.QueryRow(ctx,
		"SELECT "+workflowColumns+" FROM workflows WHERE portal_id = $1 AND source_id = $2 AND deleted_at IS NULL",
		portalID, sourceID))
	if err != nil {
		return nil, mapError("get workflow by source", err)
	}
	return w, nil
}

// ListWorkflows lists the live workflows of an account.
func (s *PostgresStore) ListWorkflows(ctx context.Context, accountID string) ([]*models.Workflow, error) {
	rows, err := s.db.Query(ctx,
		"SELECT "+workflowColumns+" FROM workflows WHERE account_id = $1 AND deleted_at IS NULL ORDER BY created_at, id",
		accountID)
	if err != nil {
		return nil, mapError("list workflows", err)
	}
	workflows, err := collectWorkflows(rows)
	if err != nil {
		return nil, mapError("list workflows", err)
	}
	return workflows, nil
}

// ListActiveWorkflows lists live, active workflows across all accounts.
func (s *PostgresStore) ListActiveWorkflows(ctx context.Context) ([]*models.Workflow, error) {
	rows, err := s.db.Query(ctx,
		"SELECT "+workflowColumns+" FROM workflows WHERE status = $1 AND deleted_at IS NULL ORDER BY created_at, id",
		models.WorkflowStatusActive)
	if err != nil {
		return nil, mapError("list active workflows", err)
	}
	workflows, err := collectWorkflows(rows)
	if err != nil {
		return nil, mapError("list active workflows", err)
	}
	return workflows, nil
}

// UpdateWorkflow persists name, status and updated_at.
func (s *PostgresStore) UpdateWorkflow(ctx context.Context, workflow *models.Workflow) error {
	tag, err := s.db.Exec(ctx,
		"UPDATE workflows SET name = $1, status = $2, updated_at = $3 WHERE id = $4 AND deleted_at IS NULL",
		workflow.Name, workflow.Status, workflow.UpdatedAt, workflow.ID)
	if err != nil {
		return mapError("update workflow", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("workflow", workflow.ID)
	}
	return nil
}

// DeleteWorkflow soft-deletes a workflow.
func (s *PostgresStore) DeleteWorkflow(ctx context.Context, id string, at time.Time) error {
	tag, err := s.db.Exec(ctx,
		"UPDATE workflows SET deleted_at = $1, updated_at = $1 WHERE id = $2 AND deleted_at IS NULL", at, id)
	if err != nil {
		return mapError("delete workflow", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("workflow", id)
	}
	return nil
}

// Versions

const versionColumns = `id, workflow_id, version_number, snapshot_type, created_by, created_at, data`

func scanVersion(row pgx.Row) (*models.WorkflowVersion, error) {
	var v models.WorkflowVersion
	var data []byte
	if err := row.Scan(&v.ID, &v.WorkflowID, &v.VersionNumber, &v.SnapshotType, &v.CreatedBy, &v.CreatedAt, &data); err != nil {
		return nil, err
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &v.Data); err != nil {
			return nil, fmt.Errorf("%w: failed to unmarshal version data: %w", errCorruptRow, err)
		}
	}
	return &v, nil
}

// AppendVersion inserts a version and its audit entry in one transaction.
// The workflow row is locked for the duration, serializing allocation.
func (s *PostgresStore) AppendVersion(ctx context.Context, version *models.WorkflowVersion, entry *models.AuditTrailEntry) error {
	if version.ID == "" {
		version.ID = uuid.New().String()
	}
	if version.CreatedAt.IsZero() {
		version.CreatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(version.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal version data: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return mapError("begin append version", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var workflowID string
	err = tx.QueryRow(ctx,
		"SELECT id FROM workflows WHERE id = $1 AND deleted_at IS NULL FOR UPDATE", version.WorkflowID).Scan(&workflowID)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperrors.NotFound("workflow", version.WorkflowID)
	}
	if err != nil {
		return mapError("lock workflow", err)
	}

	if version.VersionNumber == 0 {
		err = tx.QueryRow(ctx,
			"SELECT COALESCE(MAX(version_number), 0) + 1 FROM workflow_versions WHERE workflow_id = $1",
			version.WorkflowID).Scan(&version.VersionNumber)
		if err != nil {
			return mapError("allocate version number", err)
		}
	}

	_, err = tx.Exec(ctx,
		"INSERT INTO workflow_versions ("+versionColumns+") VALUES ($1, $2, $3, $4, $5, $6, $7)",
		version.ID, version.WorkflowID, version.VersionNumber, version.SnapshotType, version.CreatedBy, version.CreatedAt, data)
	if err != nil {
		return mapError("insert version", err)
	}

	if entry != nil {
		if err := insertAudit(ctx, tx, entry); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return mapError("commit append version", err)
	}
	return nil
}

// GetVersion retrieves a version by its ID.
func (s *PostgresStore) GetVersion(ctx context.Context, id string) (*models.WorkflowVersion, error) {
	v, err := scanVersion(s.db.QueryRow(ctx, "SELECT "+versionColumns+" FROM workflow_versions WHERE id = $1", id))
	if err != nil {
		return nil, mapError("get version", err)
	}
	return v, nil
}

// ListVersions lists the versions of a workflow by ascending version number.
func (s *PostgresStore) ListVersions(ctx context.Context, workflowID string) ([]*models.WorkflowVersion, error) {
	rows, err := s.db.Query(ctx,
		"SELECT "+versionColumns+" FROM workflow_versions WHERE workflow_id = $1 ORDER BY version_number", workflowID)
	if err != nil {
		return nil, mapError("list versions", err)
	}
	defer rows.Close()

	var versions []*models.WorkflowVersion
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, mapError("scan version", err)
		}
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("list versions", err)
	}
	return versions, nil
}

// LatestVersion retrieves the highest numbered version of a workflow.
func (s *PostgresStore) LatestVersion(ctx context.Context, workflowID string) (*models.WorkflowVersion, error) {
	v, err := scanVersion(s.db.QueryRow(ctx,
		"SELECT "+versionColumns+" FROM workflow_versions WHERE workflow_id = $1 ORDER BY version_number DESC LIMIT 1",
		workflowID))
	if err != nil {
		return nil, mapError("latest version", err)
	}
	return v, nil
}

// TallyVersions rolls up the versions of a workflow.
func (s *PostgresStore) TallyVersions(ctx context.Context, workflowID string) (models.VersionTally, error) {
	var tally models.VersionTally
	if err := s.db.QueryRow(ctx,
		"SELECT COUNT(*) FROM workflow_versions WHERE workflow_id = $1", workflowID).Scan(&tally.Count); err != nil {
		return tally, mapError("count versions", err)
	}
	if tally.Count == 0 {
		return tally, nil
	}

	var latestAt time.Time
	err := s.db.QueryRow(ctx,
		`SELECT version_number, created_at, snapshot_type, created_by
		FROM workflow_versions WHERE workflow_id = $1
		ORDER BY version_number DESC LIMIT 1`, workflowID).
		Scan(&tally.LatestNumber, &latestAt, &tally.LatestType, &tally.LatestBy)
	if err != nil {
		return tally, mapError("latest version tally", err)
	}
	tally.LatestAt = &latestAt
	return tally, nil
}

// Audit trail

const auditColumns = `seq, id, workflow_id, version_id, action, user_id, user_name, ts, old_value, new_value`

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func marshalValue(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

func insertAudit(ctx context.Context, q rowQuerier, entry *models.AuditTrailEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	oldValue, err := marshalValue(entry.OldValue)
	if err != nil {
		return fmt.Errorf("failed to marshal old_value: %w", err)
	}
	newValue, err := marshalValue(entry.NewValue)
	if err != nil {
		return fmt.Errorf("failed to marshal new_value: %w", err)
	}

	err = q.QueryRow(ctx,
		`INSERT INTO audit_trail (id, workflow_id, version_id, action, user_id, user_name, ts, old_value, new_value)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING seq`,
		entry.ID, entry.WorkflowID, entry.VersionID, entry.Action, entry.UserID, entry.UserName, entry.Timestamp,
		oldValue, newValue).Scan(&entry.Sequence)
	return mapError("insert audit entry", err)
}

func scanAudit(row pgx.Row) (*models.AuditTrailEntry, error) {
	var e models.AuditTrailEntry
	var oldValue, newValue []byte
	if err := row.Scan(&e.Sequence, &e.ID, &e.WorkflowID, &e.VersionID, &e.Action, &e.UserID, &e.UserName,
		&e.Timestamp, &oldValue, &newValue); err != nil {
		return nil, err
	}
	if len(oldValue) > 0 {
		if err := json.Unmarshal(oldValue, &e.OldValue); err != nil {
			return nil, fmt.Errorf("%w: failed to unmarshal old_value: %w", errCorruptRow, err)
		}
	}
	if len(newValue) > 0 {
		if err := json.Unmarshal(newValue, &e.NewValue); err != nil {
			return nil, fmt.Errorf("%w: failed to unmarshal new_value: %w", errCorruptRow, err)
		}
	}
	return &e, nil
}

// AppendAudit inserts an audit entry.
func (s *PostgresStore) AppendAudit(ctx context.Context, entry *models.AuditTrailEntry) error {
	return insertAudit(ctx, s.db, entry)
}

// ListAudit lists a workflow's audit entries in canonical order.
func (s *PostgresStore) ListAudit(ctx context.Context, workflowID string) ([]*models.AuditTrailEntry, error) {
	rows, err := s.db.Query(ctx,
		"SELECT "+auditColumns+" FROM audit_trail WHERE workflow_id = $1 ORDER BY ts, seq", workflowID)
	if err != nil {
		return nil, mapError("list audit", err)
	}
	defer rows.Close()

	var entries []*models.AuditTrailEntry
	for rows.Next() {
		e, err := scanAudit(rows)
		if err != nil {
			return nil, mapError("scan audit entry", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("list audit", err)
	}
	return entries, nil
}

// CountAuditSince counts entries for an account's workflows at or after since.
func (s *PostgresStore) CountAuditSince(ctx context.Context, accountID string, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM audit_trail a
		JOIN workflows w ON w.id = a.workflow_id
		WHERE w.account_id = $1 AND a.ts >= $2`, accountID, since).Scan(&n)
	if err != nil {
		return 0, mapError("count audit", err)
	}
	return n, nil
}
