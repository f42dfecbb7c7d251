// Package postgres is an account.Store backed by PostgreSQL through pgx.
//
// Conditional patches compile to one UPDATE whose WHERE clause carries the
// preconditions, so row-level locking provides the atomic compare-and-set the
// engine depends on.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"

	"github.com/giall/hecate/account"
)

// poolIface is the subset of *pgxpool.Pool the store uses.
type poolIface interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const selectAccount = `SELECT id, username, email, credential_hash, verified, sessions, magic_login_allowed, created_at, updated_at FROM accounts`

// Store implements account.Store on the accounts table.
type Store struct {
	pool poolIface
	now  func() time.Time
}

// New returns a Store over pool.
func New(pool poolIface) *Store {
	return &Store{pool: pool, now: time.Now}
}

// Connect opens a pgx pool for dsn and verifies it with a ping.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").Wrap(err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, oops.Code("DB_PING_FAILED").Wrap(err)
	}
	return pool, nil
}

func scanAccount(row pgx.Row) (*account.Account, error) {
	var a account.Account
	err := row.Scan(
		&a.ID,
		&a.Username,
		&a.Email,
		&a.CredentialHash,
		&a.Verified,
		&a.Sessions,
		&a.MagicLoginAllowed,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if a.Sessions == nil {
		a.Sessions = []string{}
	}
	return &a, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

func (s *Store) FindByField(ctx context.Context, field account.Field, value string) (*account.Account, error) {
	var query string
	switch field {
	case account.FieldEmail:
		query = selectAccount + ` WHERE email = $1`
		value = account.NormalizeEmail(value)
	case account.FieldUsername:
		query = selectAccount + ` WHERE lower(username) = lower($1)`
	default:
		return nil, oops.Code("UNKNOWN_FIELD").Errorf("unknown lookup field %q", field)
	}

	acct, err := scanAccount(s.pool.QueryRow(ctx, query, value))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, oops.With("operation", "find account").With("field", string(field)).Wrap(err)
	}
	return acct, nil
}

func (s *Store) FindByID(ctx context.Context, id string) (*account.Account, error) {
	acct, err := scanAccount(s.pool.QueryRow(ctx, selectAccount+` WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, account.ErrNotFound
	}
	if err != nil {
		return nil, oops.With("operation", "find account").With("account_id", id).Wrap(err)
	}
	return acct, nil
}

func (s *Store) Create(ctx context.Context, acct *account.Account) error {
	if acct.ID == "" {
		acct.ID = account.NewID()
	}
	now := s.now()
	acct.CreatedAt = now
	acct.UpdatedAt = now
	acct.Email = account.NormalizeEmail(acct.Email)
	if acct.Sessions == nil {
		acct.Sessions = []string{}
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO accounts (id, username, email, credential_hash, verified, sessions, magic_login_allowed, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		acct.ID,
		acct.Username,
		acct.Email,
		acct.CredentialHash,
		acct.Verified,
		acct.Sessions,
		acct.MagicLoginAllowed,
		acct.CreatedAt,
		acct.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return account.ErrDuplicate
	}
	if err != nil {
		return oops.With("operation", "create account").Wrap(err)
	}
	return nil
}

func (s *Store) Update(ctx context.Context, id string, patch account.Patch) (bool, error) {
	query, args := buildUpdate(id, patch, s.now())

	tag, err := s.pool.Exec(ctx, query, args...)
	if isUniqueViolation(err) {
		return false, account.ErrDuplicate
	}
	if err != nil {
		return false, oops.With("operation", "update account").With("account_id", id).Wrap(err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	if patch.Where.Empty() {
		return false, account.ErrNotFound
	}

	var exists bool
	err = s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, oops.With("operation", "check account").With("account_id", id).Wrap(err)
	}
	if !exists {
		return false, account.ErrNotFound
	}
	return false, nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	if err != nil {
		return oops.With("operation", "delete account").With("account_id", id).Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return account.ErrNotFound
	}
	return nil
}

// buildUpdate compiles a patch into one conditional UPDATE statement.
func buildUpdate(id string, p account.Patch, now time.Time) (string, []any) {
	args := []any{now}
	set := []string{"updated_at = $1"}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if p.Email != nil {
		set = append(set, "email = "+arg(account.NormalizeEmail(*p.Email)))
	}
	if p.CredentialHash != nil {
		set = append(set, "credential_hash = "+arg(*p.CredentialHash))
	}
	if p.Verified != nil {
		set = append(set, "verified = "+arg(*p.Verified))
	}
	if p.MagicLoginAllowed != nil {
		set = append(set, "magic_login_allowed = "+arg(*p.MagicLoginAllowed))
	}
	if p.SetSessions {
		set = append(set, "sessions = "+arg(nonNil(p.Sessions)))
	}

	where := []string{"id = " + arg(id)}
	c := p.Where
	if c.Email != nil {
		where = append(where, "email = "+arg(*c.Email))
	}
	if c.CredentialHash != nil {
		where = append(where, "credential_hash = "+arg(*c.CredentialHash))
	}
	if c.Verified != nil {
		where = append(where, "verified = "+arg(*c.Verified))
	}
	if c.MagicLoginAllowed != nil {
		where = append(where, "magic_login_allowed = "+arg(*c.MagicLoginAllowed))
	}
	if c.MatchSessions {
		where = append(where, "sessions = "+arg(nonNil(c.Sessions)))
	}

	query := "UPDATE accounts SET " + strings.Join(set, ", ") + " WHERE " + strings.Join(where, " AND ")
	return query, args
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
