package devices

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/assettrack/assettrack/internal/platform/db"
)

const deviceColumns = `d.id, d.device_id,
	COALESCE(d.imei, ''), COALESCE(d.model, ''), COALESCE(d.device_type, ''),
	COALESCE(d.device_status, ''), COALESCE(d.device_location, ''), COALESCE(d.telco, ''),
	COALESCE(d.telco_contract_number, ''), COALESCE(d.phone, ''),
	COALESCE(to_char(d.contract_start, 'YYYY-MM-DD'), ''),
	COALESCE(to_char(d.contract_end, 'YYYY-MM-DD'), ''),
	COALESCE(d.mdm, ''), COALESCE(to_char(d.mdm_expiry, 'YYYY-MM-DD'), ''),
	CASE WHEN EXISTS (SELECT 1 FROM issues i WHERE i.device_id = d.id AND i.returned_at IS NULL)
		THEN 'ISSUED' ELSE 'AVAILABLE' END,
	d.created_at, d.updated_at`

const deviceIDConstraint = "devices_device_id_key"

// Repository persists devices.
type Repository interface {
	List(ctx context.Context, filters Filters) ([]Device, error)
	Get(ctx context.Context, id int64) (Device, error)
	Create(ctx context.Context, in Input) (Device, error)
	Update(ctx context.Context, id int64, in Input) (Device, error)
	SetStatus(ctx context.Context, id int64, status string) (Device, error)
}

// PGRepository implements Repository on PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

func scanDevice(row pgx.Row) (Device, error) {
	var d Device
	err := row.Scan(&d.ID, &d.DeviceID, &d.IMEI, &d.Model, &d.DeviceType, &d.DeviceStatus,
		&d.DeviceLocation, &d.Telco, &d.TelcoContractNumber, &d.Phone,
		&d.ContractStart, &d.ContractEnd, &d.MDM, &d.MDMExpiry, &d.State,
		&d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Device{}, ErrNotFound
	}
	if db.IsUniqueViolation(err, deviceIDConstraint) {
		return Device{}, ErrDuplicateDeviceID
	}
	return d, err
}

// List returns devices, newest first.
func (r *PGRepository) List(ctx context.Context, filters Filters) ([]Device, error) {
	var (
		where []string
		args  []any
	)
	add := func(clause string, arg any) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if filters.Location != "" {
		add("d.device_location = $%d", filters.Location)
	}
	if filters.Type != "" {
		add("d.device_type = $%d", filters.Type)
	}
	if filters.Search != "" {
		args = append(args, "%"+filters.Search+"%")
		n := len(args)
		where = append(where, fmt.Sprintf("(d.device_id ILIKE $%d OR d.imei ILIKE $%d OR d.phone ILIKE $%d OR d.model ILIKE $%d)", n, n, n, n))
	}
	query := `SELECT ` + deviceColumns + ` FROM devices d`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY d.created_at DESC, d.id DESC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		if filters.State != "" && d.State != filters.State {
			continue
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Get loads a device by row id.
func (r *PGRepository) Get(ctx context.Context, id int64) (Device, error) {
	return scanDevice(r.pool.QueryRow(ctx, `SELECT `+deviceColumns+` FROM devices d WHERE d.id = $1`, id))
}

// Create registers a device.
func (r *PGRepository) Create(ctx context.Context, in Input) (Device, error) {
	return scanDevice(r.pool.QueryRow(ctx, `
		WITH d AS (
			INSERT INTO devices (device_id, imei, model, device_type, device_status, device_location,
				telco, telco_contract_number, phone, contract_start, contract_end, mdm, mdm_expiry)
			VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''),
				NULLIF($7, ''), NULLIF($8, ''), NULLIF($9, ''), NULLIF($10, '')::date, NULLIF($11, '')::date,
				NULLIF($12, ''), NULLIF($13, '')::date)
			RETURNING *
		)
		SELECT `+deviceColumns+` FROM d`, inputArgs(in)...))
}

// Update replaces the editable fields of a device.
func (r *PGRepository) Update(ctx context.Context, id int64, in Input) (Device, error) {
	args := append(inputArgs(in), id)
	return scanDevice(r.pool.QueryRow(ctx, `
		WITH d AS (
			UPDATE devices SET
				device_id = $1, imei = NULLIF($2, ''), model = NULLIF($3, ''), device_type = NULLIF($4, ''),
				device_status = NULLIF($5, ''), device_location = NULLIF($6, ''), telco = NULLIF($7, ''),
				telco_contract_number = NULLIF($8, ''), phone = NULLIF($9, ''),
				contract_start = NULLIF($10, '')::date, contract_end = NULLIF($11, '')::date,
				mdm = NULLIF($12, ''), mdm_expiry = NULLIF($13, '')::date, updated_at = NOW()
			WHERE id = $14
			RETURNING *
		)
		SELECT `+deviceColumns+` FROM d`, args...))
}

// SetStatus updates the free-form status label.
func (r *PGRepository) SetStatus(ctx context.Context, id int64, status string) (Device, error) {
	return scanDevice(r.pool.QueryRow(ctx, `
		WITH d AS (
			UPDATE devices SET device_status = NULLIF($2, ''), updated_at = NOW()
			WHERE id = $1
			RETURNING *
		)
		SELECT `+deviceColumns+` FROM d`, id, status))
}

func inputArgs(in Input) []any {
	return []any{
		in.DeviceID, in.IMEI, in.Model, in.DeviceType, in.DeviceStatus, in.DeviceLocation,
		in.Telco, in.TelcoContractNumber, in.Phone, in.ContractStart, in.ContractEnd,
		in.MDM, in.MDMExpiry,
	}
}

var _ Repository = (*PGRepository)(nil)
