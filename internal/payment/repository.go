package payment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

var ErrInstanceNotFound = errors.New("payment instance not found")

type Repository interface {
	GetByUUID(ctx context.Context, uuid string) (*Instance, error)
	GetByID(ctx context.Context, id int64) (*Instance, error)
	ListByMethod(ctx context.Context, method string) ([]Instance, error)
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

const instanceColumns = `id, uuid, payment, name, enable, COALESCE(notify_domain, ''), config, created_at, updated_at`

func (r *repository) GetByUUID(ctx context.Context, uuid string) (*Instance, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+instanceColumns+`
		FROM payments WHERE uuid = $1
	`, uuid)
	return scanInstance(row)
}

func (r *repository) GetByID(ctx context.Context, id int64) (*Instance, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+instanceColumns+`
		FROM payments WHERE id = $1
	`, id)
	return scanInstance(row)
}

// ListByMethod matches the method name case-insensitively.
func (r *repository) ListByMethod(ctx context.Context, method string) ([]Instance, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+instanceColumns+`
		FROM payments WHERE LOWER(payment) = LOWER($1)
		ORDER BY id
	`, method)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Instance
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *inst)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanInstance(row rowScanner) (*Instance, error) {
	var (
		inst Instance
		raw  []byte
	)
	err := row.Scan(
		&inst.ID, &inst.UUID, &inst.Method, &inst.Name, &inst.Enabled,
		&inst.NotifyDomain, &raw, &inst.CreatedAt, &inst.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInstanceNotFound
		}
		return nil, err
	}

	cfg, err := DecodeGatewayConfig(raw)
	if err != nil {
		return nil, fmt.Errorf("payment %d: %w", inst.ID, err)
	}
	inst.Config = cfg
	return &inst, nil
}
