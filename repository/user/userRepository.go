package userrepo

import (
	"context"
	"database/sql"
	"errors"

	"staypay/model"
)

// Repo resolves identities for webhook reconciliation. User writes live in
// the excluded auth service.
type Repo interface {
	ByID(ctx context.Context, id int64) (*model.User, error)
	ByEmail(ctx context.Context, email string) (*model.User, error)
}

type repo struct{ db *sql.DB }

func New(db *sql.DB) Repo { return &repo{db} }

func (r *repo) ByID(ctx context.Context, id int64) (*model.User, error) {
	return scan(r.db.QueryRowContext(ctx, `
		SELECT id, email, username, created_at
		FROM users
		WHERE id = $1`, id))
}

func (r *repo) ByEmail(ctx context.Context, email string) (*model.User, error) {
	return scan(r.db.QueryRowContext(ctx, `
		SELECT id, email, username, created_at
		FROM users
		WHERE lower(email) = lower($1)`, email))
}

func scan(row *sql.Row) (*model.User, error) {
	u := &model.User{}
	err := row.Scan(&u.ID, &u.Email, &u.Username, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}
