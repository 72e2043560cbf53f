package issuance

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/assettrack/assettrack/internal/platform/db"
)

const (
	openIssueIndex   = "issues_one_open_per_device"
	openHoldingIndex = "ops_holdings_one_open_per_device"
)

// Repository exposes issuance persistence.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListIssues(ctx context.Context, filters IssueFilters) ([]Issue, error)
	ListHoldings(ctx context.Context, location string) ([]Holding, error)
}

// TxRepository exposes the operations that run inside one issuance transaction.
type TxRepository interface {
	// LockDevice loads the device by business id and locks its row until commit.
	LockDevice(ctx context.Context, deviceID string) (DeviceRef, error)
	HasOpenIssue(ctx context.Context, deviceRowID int64) (bool, error)
	InsertIssue(ctx context.Context, issue Issue) (Issue, error)
	// CloseIssue stamps returned_at on the open issue; ErrNotIssued when none.
	CloseIssue(ctx context.Context, deviceRowID int64) (Issue, error)
	HasOpenHolding(ctx context.Context, deviceRowID int64) (bool, error)
	InsertHolding(ctx context.Context, holding Holding) (Holding, error)
}

// PGRepository implements Repository on PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx runs fn in a read-committed transaction. Exclusion comes from the
// device row lock taken by LockDevice plus the partial unique indexes.
func (r *PGRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

func (t *txRepo) LockDevice(ctx context.Context, deviceID string) (DeviceRef, error) {
	var ref DeviceRef
	err := t.tx.QueryRow(ctx, `
		SELECT id, device_id, COALESCE(device_location, '')
		FROM devices WHERE device_id = $1
		FOR UPDATE`, deviceID).Scan(&ref.ID, &ref.DeviceID, &ref.Location)
	if errors.Is(err, pgx.ErrNoRows) {
		return DeviceRef{}, ErrDeviceNotFound
	}
	return ref, err
}

func (t *txRepo) HasOpenIssue(ctx context.Context, deviceRowID int64) (bool, error) {
	var open bool
	err := t.tx.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM issues WHERE device_id = $1 AND returned_at IS NULL)`,
		deviceRowID).Scan(&open)
	return open, err
}

func (t *txRepo) InsertIssue(ctx context.Context, issue Issue) (Issue, error) {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO issues (device_id, issued_to, issue_type, location, issued_by_user_id)
		VALUES ($1, NULLIF($2, ''), $3, NULLIF($4, ''), $5)
		RETURNING id, issued_at`,
		issue.DeviceRowID, issue.IssuedTo, string(issue.IssueType), issue.Location, issue.IssuedByUserID,
	).Scan(&issue.ID, &issue.IssuedAt)
	if db.IsUniqueViolation(err, openIssueIndex) {
		return Issue{}, ErrAlreadyIssued
	}
	return issue, err
}

func (t *txRepo) CloseIssue(ctx context.Context, deviceRowID int64) (Issue, error) {
	issue, err := scanIssue(t.tx.QueryRow(ctx, `
		WITH i AS (
			UPDATE issues SET returned_at = NOW()
			WHERE device_id = $1 AND returned_at IS NULL
			RETURNING *
		)
		SELECT `+issueColumns+` FROM i JOIN devices d ON d.id = i.device_id`, deviceRowID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Issue{}, ErrNotIssued
	}
	return issue, err
}

func (t *txRepo) HasOpenHolding(ctx context.Context, deviceRowID int64) (bool, error) {
	var open bool
	err := t.tx.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM ops_holdings WHERE device_id = $1 AND returned_at IS NULL)`,
		deviceRowID).Scan(&open)
	return open, err
}

func (t *txRepo) InsertHolding(ctx context.Context, holding Holding) (Holding, error) {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO ops_holdings (device_id, location, scanned_by_user_id)
		VALUES ($1, $2, $3)
		RETURNING id, scanned_at`,
		holding.DeviceRowID, holding.Location, holding.ScannedByUserID,
	).Scan(&holding.ID, &holding.ScannedAt)
	if db.IsUniqueViolation(err, openHoldingIndex) {
		return Holding{}, ErrAlreadyScanned
	}
	return holding, err
}

const issueColumns = `i.id, i.device_id, d.device_id, COALESCE(i.issued_to, ''), i.issue_type,
	COALESCE(i.location, ''), i.issued_by_user_id, i.issued_at, i.returned_at`

func scanIssue(row pgx.Row) (Issue, error) {
	var (
		issue     Issue
		issueType string
	)
	err := row.Scan(&issue.ID, &issue.DeviceRowID, &issue.DeviceID, &issue.IssuedTo, &issueType,
		&issue.Location, &issue.IssuedByUserID, &issue.IssuedAt, &issue.ReturnedAt)
	issue.IssueType = IssueType(issueType)
	return issue, err
}

// ListIssues returns issues newest first, open ones only unless IncludeReturned.
func (r *PGRepository) ListIssues(ctx context.Context, filters IssueFilters) ([]Issue, error) {
	var (
		where []string
		args  []any
	)
	if !filters.IncludeReturned {
		where = append(where, "i.returned_at IS NULL")
	}
	if filters.DeviceID != "" {
		args = append(args, filters.DeviceID)
		where = append(where, fmt.Sprintf("d.device_id = $%d", len(args)))
	}
	query := `SELECT ` + issueColumns + ` FROM issues i JOIN devices d ON d.id = i.device_id`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	args = append(args, filters.Limit, filters.Offset)
	query += fmt.Sprintf(` ORDER BY i.issued_at DESC, i.id DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Issue
	for rows.Next() {
		issue, err := scanIssue(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, issue)
	}
	return out, rows.Err()
}

// ListHoldings returns open ops holdings, optionally for one location.
func (r *PGRepository) ListHoldings(ctx context.Context, location string) ([]Holding, error) {
	query := `
		SELECT h.id, h.device_id, d.device_id, h.location, h.scanned_by_user_id, h.scanned_at, h.returned_at
		FROM ops_holdings h JOIN devices d ON d.id = h.device_id
		WHERE h.returned_at IS NULL`
	var args []any
	if location != "" {
		args = append(args, location)
		query += ` AND h.location = $1`
	}
	query += ` ORDER BY h.scanned_at DESC, h.id DESC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Holding
	for rows.Next() {
		var h Holding
		if err := rows.Scan(&h.ID, &h.DeviceRowID, &h.DeviceID, &h.Location, &h.ScannedByUserID, &h.ScannedAt, &h.ReturnedAt); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

var _ Repository = (*PGRepository)(nil)
