package repo

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"sidekick/internal/domain"
)

const equipmentColumns = `id,name,type,hoist_type,location,model,status,last_inspected_at,created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEquipment(row rowScanner) (domain.Equipment, error) {
	var e domain.Equipment
	var last sql.NullString
	err := row.Scan(&e.ID, &e.Name, &e.Type, &e.HoistType, &e.Location, &e.Model, &e.Status, &last, &e.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return e, ErrNotFound
	}
	e.LastInspectedAt = stringPtr(last)
	return e, err
}

func (r Repo) InsertEquipment(ctx context.Context, tx *sql.Tx, e domain.Equipment) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO equipment(`+equipmentColumns+`) VALUES (?,?,?,?,?,?,?,?,?)`,
		e.ID, e.Name, e.Type, e.HoistType, e.Location, e.Model, e.Status, nullableStringPtr(e.LastInspectedAt), e.CreatedAt)
	return err
}

func (r Repo) GetEquipment(ctx context.Context, tx *sql.Tx, id string) (domain.Equipment, error) {
	return scanEquipment(r.q(tx).QueryRowContext(ctx, `SELECT `+equipmentColumns+` FROM equipment WHERE id=?`, id))
}

// ListEquipment returns equipment ordered by id. A non-empty search matches
// id or name case-insensitively.
func (r Repo) ListEquipment(ctx context.Context, search string) ([]domain.Equipment, error) {
	query := `SELECT ` + equipmentColumns + ` FROM equipment`
	var args []any
	if s := strings.TrimSpace(search); s != "" {
		query += ` WHERE lower(id) LIKE ? OR lower(name) LIKE ?`
		like := "%" + strings.ToLower(s) + "%"
		args = append(args, like, like)
	}
	query += ` ORDER BY id`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Equipment
	for rows.Next() {
		e, err := scanEquipment(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// UpdateEquipmentInspection records the outcome of a completed inspection.
func (r Repo) UpdateEquipmentInspection(ctx context.Context, tx *sql.Tx, id, status, inspectedAt string) error {
	res, err := r.q(tx).ExecContext(ctx, `UPDATE equipment SET status=?, last_inspected_at=? WHERE id=?`, status, inspectedAt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
