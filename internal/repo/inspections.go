package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"sidekick/internal/domain"
)

const inspectionColumns = `id,equipment_id,inspector_id,status,document_json,version,created_at,updated_at,completed_at`

func scanInspection(row rowScanner) (domain.Inspection, error) {
	var in domain.Inspection
	var doc string
	var completed sql.NullString
	err := row.Scan(&in.ID, &in.EquipmentID, &in.InspectorID, &in.Status, &doc, &in.Version, &in.CreatedAt, &in.UpdatedAt, &completed)
	if errors.Is(err, sql.ErrNoRows) {
		return in, ErrNotFound
	}
	if err != nil {
		return in, err
	}
	if err := json.Unmarshal([]byte(doc), &in.Document); err != nil {
		return in, fmt.Errorf("decode inspection %s document: %w", in.ID, err)
	}
	in.CompletedAt = stringPtr(completed)
	return in, nil
}

func (r Repo) InsertInspection(ctx context.Context, tx *sql.Tx, in domain.Inspection) error {
	doc, err := json.Marshal(in.Document)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	_, err = r.q(tx).ExecContext(ctx, `INSERT INTO inspections(`+inspectionColumns+`) VALUES (?,?,?,?,?,?,?,?,?)`,
		in.ID, in.EquipmentID, in.InspectorID, in.Status, string(doc), in.Version, in.CreatedAt, in.UpdatedAt, nullableStringPtr(in.CompletedAt))
	return err
}

func (r Repo) GetInspection(ctx context.Context, tx *sql.Tx, id string) (domain.Inspection, error) {
	return scanInspection(r.q(tx).QueryRowContext(ctx, `SELECT `+inspectionColumns+` FROM inspections WHERE id=?`, id))
}

// UpdateInspection stores a new document snapshot. The version must match the
// stored one; it is bumped on success.
func (r Repo) UpdateInspection(ctx context.Context, tx *sql.Tx, in domain.Inspection) (domain.Inspection, error) {
	doc, err := json.Marshal(in.Document)
	if err != nil {
		return in, fmt.Errorf("encode document: %w", err)
	}
	res, err := r.q(tx).ExecContext(ctx, `UPDATE inspections SET status=?, document_json=?, version=version+1, updated_at=?, completed_at=? WHERE id=? AND version=?`,
		in.Status, string(doc), in.UpdatedAt, nullableStringPtr(in.CompletedAt), in.ID, in.Version)
	if err != nil {
		return in, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return in, fmt.Errorf("inspection %s changed concurrently (version %d): %w", in.ID, in.Version, ErrConflict)
	}
	in.Version++
	return in, nil
}

// ListInspections returns inspections newest first, optionally for one piece of equipment.
func (r Repo) ListInspections(ctx context.Context, tx *sql.Tx, equipmentID, status string) ([]domain.Inspection, error) {
	query := `SELECT ` + inspectionColumns + ` FROM inspections WHERE 1=1`
	var args []any
	if equipmentID != "" {
		query += ` AND equipment_id=?`
		args = append(args, equipmentID)
	}
	if status != "" {
		query += ` AND status=?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC, id DESC`
	rows, err := r.q(tx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Inspection
	for rows.Next() {
		in, err := scanInspection(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, in)
	}
	return res, rows.Err()
}
