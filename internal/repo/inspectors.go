package repo

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"sidekick/internal/domain"
)

func scanInspector(row rowScanner) (domain.Inspector, error) {
	var in domain.Inspector
	err := row.Scan(&in.ID, &in.Email, &in.DisplayName, &in.PasswordHash, &in.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return in, ErrNotFound
	}
	return in, err
}

func (r Repo) InsertInspector(ctx context.Context, tx *sql.Tx, in domain.Inspector) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO inspectors(id,email,display_name,password_hash,created_at) VALUES (?,?,?,?,?)`,
		in.ID, strings.ToLower(in.Email), in.DisplayName, in.PasswordHash, in.CreatedAt)
	return err
}

func (r Repo) GetInspector(ctx context.Context, id string) (domain.Inspector, error) {
	return scanInspector(r.DB.QueryRowContext(ctx, `SELECT id,email,display_name,password_hash,created_at FROM inspectors WHERE id=?`, id))
}

func (r Repo) GetInspectorByEmail(ctx context.Context, email string) (domain.Inspector, error) {
	return scanInspector(r.DB.QueryRowContext(ctx, `SELECT id,email,display_name,password_hash,created_at FROM inspectors WHERE email=?`,
		strings.ToLower(strings.TrimSpace(email))))
}
