package auth

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
)

// Account is the slice of a users row needed to authenticate.
type Account struct {
	ID           string `db:"id"`
	Username     string `db:"username"`
	PasswordHash string `db:"password_hash"`
	IsActive     bool   `db:"is_active"`
	IsStaff      bool   `db:"is_staff"`
}

func (a *Account) Role() string {
	if a.IsStaff {
		return RoleStaff
	}
	return RoleMember
}

// AccountStore returns (nil, nil) when no account matches.
type AccountStore interface {
	GetByUsername(ctx context.Context, username string) (*Account, error)
	GetByID(ctx context.Context, id string) (*Account, error)
}

type Store struct{ db *sqlx.DB }

func NewStore(db *sqlx.DB) AccountStore {
	return &Store{db: db}
}

const accountColumns = `id, username, password_hash, is_active, is_staff`

func (s *Store) GetByUsername(ctx context.Context, username string) (*Account, error) {
	q := s.db.Rebind(`SELECT ` + accountColumns + ` FROM users WHERE username = ? LIMIT 1`)
	return s.get(ctx, q, username)
}

func (s *Store) GetByID(ctx context.Context, id string) (*Account, error) {
	q := s.db.Rebind(`SELECT ` + accountColumns + ` FROM users WHERE id = ? LIMIT 1`)
	return s.get(ctx, q, id)
}

func (s *Store) get(ctx context.Context, q string, arg any) (*Account, error) {
	var a Account
	err := s.db.GetContext(ctx, &a, q, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}
