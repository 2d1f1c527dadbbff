// Package sqlstore implements goGate.AccountStore, goGate.RoleRegistry and
// goGate.AuditSink on PostgreSQL through sqlx and lib/pq.
//
// The failed-login counter is a single UPDATE ... RETURNING. The other conditional
// writes lock the row with SELECT ... FOR UPDATE inside a transaction and apply the
// same goGate.Account transition the other stores use.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	goGate "github.com/MrEthical07/goGate"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const uniqueViolation = "23505"

const accountColumns = `id, handle, email, password_hash, auth_method, role, verification, active,
	failed_logins, locked_until, password_history, activation_token, activation_expires_at,
	reset_token_hash, reset_expires_at, reset_code, reset_code_expires_at, reset_code_attempts,
	reset_code_verified, created_at, updated_at`

// Store is a PostgreSQL-backed account store.
type Store struct {
	db  *sqlx.DB
	now func() time.Time
}

var _ goGate.AccountStore = (*Store)(nil)

// New wraps db. Run [Migrate] first.
func New(db *sqlx.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Open connects with the lib/pq driver.
func Open(ctx context.Context, dsn string) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return db, nil
}

type accountRow struct {
	ID                  string         `db:"id"`
	Handle              string         `db:"handle"`
	Email               string         `db:"email"`
	PasswordHash        string         `db:"password_hash"`
	AuthMethod          string         `db:"auth_method"`
	Role                string         `db:"role"`
	Verification        string         `db:"verification"`
	Active              bool           `db:"active"`
	FailedLogins        int            `db:"failed_logins"`
	LockedUntil         sql.NullTime   `db:"locked_until"`
	PasswordHistory     pq.StringArray `db:"password_history"`
	ActivationToken     sql.NullString `db:"activation_token"`
	ActivationExpiresAt sql.NullTime   `db:"activation_expires_at"`
	ResetTokenHash      sql.NullString `db:"reset_token_hash"`
	ResetExpiresAt      sql.NullTime   `db:"reset_expires_at"`
	ResetCode           string         `db:"reset_code"`
	ResetCodeExpiresAt  sql.NullTime   `db:"reset_code_expires_at"`
	ResetCodeAttempts   int            `db:"reset_code_attempts"`
	ResetCodeVerified   bool           `db:"reset_code_verified"`
	CreatedAt           time.Time      `db:"created_at"`
	UpdatedAt           time.Time      `db:"updated_at"`
}

func (r *accountRow) account() *goGate.Account {
	return &goGate.Account{
		ID:                  r.ID,
		Handle:              r.Handle,
		Email:               r.Email,
		PasswordHash:        r.PasswordHash,
		AuthMethod:          goGate.AuthMethod(r.AuthMethod),
		Role:                r.Role,
		Verification:        goGate.VerificationStatus(r.Verification),
		Active:              r.Active,
		FailedLogins:        r.FailedLogins,
		LockedUntil:         fromNullTime(r.LockedUntil),
		PasswordHistory:     []string(r.PasswordHistory),
		ActivationToken:     r.ActivationToken.String,
		ActivationExpiresAt: fromNullTime(r.ActivationExpiresAt),
		ResetTokenHash:      r.ResetTokenHash.String,
		ResetExpiresAt:      fromNullTime(r.ResetExpiresAt),
		ResetCode:           r.ResetCode,
		ResetCodeExpiresAt:  fromNullTime(r.ResetCodeExpiresAt),
		ResetCodeAttempts:   r.ResetCodeAttempts,
		ResetCodeVerified:   r.ResetCodeVerified,
		CreatedAt:           r.CreatedAt,
		UpdatedAt:           r.UpdatedAt,
	}
}

func rowFromAccount(a *goGate.Account) accountRow {
	history := a.PasswordHistory
	if history == nil {
		history = []string{}
	}
	return accountRow{
		ID:                  a.ID,
		Handle:              a.Handle,
		Email:               a.Email,
		PasswordHash:        a.PasswordHash,
		AuthMethod:          string(a.AuthMethod),
		Role:                a.Role,
		Verification:        string(a.Verification),
		Active:              a.Active,
		FailedLogins:        a.FailedLogins,
		LockedUntil:         toNullTime(a.LockedUntil),
		PasswordHistory:     pq.StringArray(history),
		ActivationToken:     toNullString(a.ActivationToken),
		ActivationExpiresAt: toNullTime(a.ActivationExpiresAt),
		ResetTokenHash:      toNullString(a.ResetTokenHash),
		ResetExpiresAt:      toNullTime(a.ResetExpiresAt),
		ResetCode:           a.ResetCode,
		ResetCodeExpiresAt:  toNullTime(a.ResetCodeExpiresAt),
		ResetCodeAttempts:   a.ResetCodeAttempts,
		ResetCodeVerified:   a.ResetCodeVerified,
		CreatedAt:           a.CreatedAt,
		UpdatedAt:           a.UpdatedAt,
	}
}

/*
====================================
LOOKUPS
====================================
*/

func (s *Store) GetByID(ctx context.Context, id string) (*goGate.Account, error) {
	return s.getOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
}

func (s *Store) GetByHandle(ctx context.Context, handle string) (*goGate.Account, error) {
	return s.getOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE lower(handle) = $1`, goGate.NormalizeKey(handle))
}

func (s *Store) GetByEmail(ctx context.Context, email string) (*goGate.Account, error) {
	return s.getOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE lower(email) = $1`, goGate.NormalizeKey(email))
}

func (s *Store) GetByResetTokenHash(ctx context.Context, hash string) (*goGate.Account, error) {
	if hash == "" {
		return nil, goGate.ErrAccountNotFound
	}
	return s.getOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE reset_token_hash = $1`, hash)
}

func (s *Store) GetByActivationToken(ctx context.Context, token string) (*goGate.Account, error) {
	if token == "" {
		return nil, goGate.ErrAccountNotFound
	}
	return s.getOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE activation_token = $1`, token)
}

func (s *Store) getOne(ctx context.Context, q string, arg any) (*goGate.Account, error) {
	var row accountRow
	if err := s.db.GetContext(ctx, &row, q, arg); err != nil {
		return nil, mapErr(err)
	}
	return row.account(), nil
}

/*
====================================
WRITES
====================================
*/

const insertAccount = `INSERT INTO accounts (` + accountColumns + `) VALUES (
	:id, :handle, :email, :password_hash, :auth_method, :role, :verification, :active,
	:failed_logins, :locked_until, :password_history, :activation_token, :activation_expires_at,
	:reset_token_hash, :reset_expires_at, :reset_code, :reset_code_expires_at, :reset_code_attempts,
	:reset_code_verified, :created_at, :updated_at)`

const updateAccount = `UPDATE accounts SET
	password_hash = :password_hash, role = :role, verification = :verification, active = :active,
	failed_logins = :failed_logins, locked_until = :locked_until, password_history = :password_history,
	activation_token = :activation_token, activation_expires_at = :activation_expires_at,
	reset_token_hash = :reset_token_hash, reset_expires_at = :reset_expires_at, reset_code = :reset_code,
	reset_code_expires_at = :reset_code_expires_at, reset_code_attempts = :reset_code_attempts,
	reset_code_verified = :reset_code_verified, updated_at = :updated_at
	WHERE id = :id`

// Create inserts acc. An empty ID is filled with a random UUID and written back.
func (s *Store) Create(ctx context.Context, acc *goGate.Account) error {
	if acc == nil {
		return errors.New("nil account")
	}
	if acc.ID == "" {
		acc.ID = uuid.NewString()
	}
	now := s.now()
	if acc.CreatedAt.IsZero() {
		acc.CreatedAt = now
	}
	if acc.UpdatedAt.IsZero() {
		acc.UpdatedAt = now
	}

	if _, err := s.db.NamedExecContext(ctx, insertAccount, rowFromAccount(acc)); err != nil {
		return mapErr(err)
	}
	return nil
}

// RecordLoginFailure increments the counter in one statement. An expired lock restarts
// the series at one; crossing the threshold sets locked_until.
func (s *Store) RecordLoginFailure(ctx context.Context, id string, policy goGate.LockoutPolicy) (goGate.LoginFailure, error) {
	const q = `
UPDATE accounts SET
  failed_logins = CASE WHEN locked_until IS NOT NULL AND locked_until <= $2 THEN 1 ELSE failed_logins + 1 END,
  locked_until = CASE
    WHEN locked_until IS NOT NULL AND locked_until > $2 THEN locked_until
    WHEN (CASE WHEN locked_until IS NOT NULL AND locked_until <= $2 THEN 1 ELSE failed_logins + 1 END) >= $3 THEN $4
    ELSE NULL
  END,
  updated_at = $2
WHERE id = $1
RETURNING failed_logins, locked_until, (locked_until IS NOT NULL AND locked_until = $4) AS locked`

	lockUntil := policy.Now.Add(policy.Duration)
	var out struct {
		FailedLogins int          `db:"failed_logins"`
		LockedUntil  sql.NullTime `db:"locked_until"`
		Locked       bool         `db:"locked"`
	}
	if err := s.db.GetContext(ctx, &out, q, id, policy.Now, policy.Threshold, lockUntil); err != nil {
		return goGate.LoginFailure{}, mapErr(err)
	}
	return goGate.LoginFailure{
		FailedLogins: out.FailedLogins,
		LockedUntil:  fromNullTime(out.LockedUntil),
		Locked:       out.Locked,
	}, nil
}

func (s *Store) RecordLoginSuccess(ctx context.Context, id string) error {
	const q = `UPDATE accounts SET failed_logins = 0, locked_until = NULL, updated_at = $2 WHERE id = $1`
	return s.execOne(ctx, q, id, s.now())
}

func (s *Store) SetResetChallenge(ctx context.Context, id string, challenge goGate.ResetChallenge) error {
	return s.withLocked(ctx, `id = $1`, id, func(acc *goGate.Account) (bool, error) {
		acc.ApplyResetChallenge(challenge, s.now())
		return true, nil
	})
}

func (s *Store) RotateResetToken(ctx context.Context, rotation goGate.ResetRotation) (*goGate.Account, error) {
	if rotation.OldHash == "" {
		return nil, goGate.ErrAccountNotFound
	}
	var out *goGate.Account
	err := s.withLocked(ctx, `reset_token_hash = $1`, rotation.OldHash, func(acc *goGate.Account) (bool, error) {
		before := acc.ResetCodeAttempts
		if err := acc.ApplyResetRotation(rotation); err != nil {
			return acc.ResetCodeAttempts != before || acc.ResetTokenHash == "", err
		}
		out = acc
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return out.Clone(), nil
}

func (s *Store) UpdatePassword(ctx context.Context, id string, update goGate.PasswordUpdate) error {
	return s.withLocked(ctx, `id = $1`, id, func(acc *goGate.Account) (bool, error) {
		if err := acc.ApplyPasswordUpdate(update); err != nil {
			return false, err
		}
		return true, nil
	})
}

func (s *Store) SetActivationToken(ctx context.Context, id, token string, expiresAt time.Time) error {
	const q = `UPDATE accounts SET activation_token = $2, activation_expires_at = $3, updated_at = $4 WHERE id = $1`
	return s.execOne(ctx, q, id, toNullString(token), toNullTime(expiresAt), s.now())
}

func (s *Store) ConsumeActivation(ctx context.Context, token string, now time.Time) (*goGate.Account, error) {
	if token == "" {
		return nil, goGate.ErrAccountNotFound
	}
	var out *goGate.Account
	err := s.withLocked(ctx, `activation_token = $1`, token, func(acc *goGate.Account) (bool, error) {
		if err := acc.ApplyActivation(now); err != nil {
			return false, err
		}
		out = acc
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return out.Clone(), nil
}

func (s *Store) SetActive(ctx context.Context, id string, active bool) error {
	const q = `UPDATE accounts SET active = $2, updated_at = $3 WHERE id = $1`
	return s.execOne(ctx, q, id, active, s.now())
}

// withLocked loads the row matching where under FOR UPDATE, runs fn, and writes the row
// back when fn asks for it. fn's error is returned after the commit.
func (s *Store) withLocked(ctx context.Context, where string, arg any, fn func(*goGate.Account) (bool, error)) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return mapErr(err)
	}

	var row accountRow
	if err := tx.GetContext(ctx, &row, `SELECT `+accountColumns+` FROM accounts WHERE `+where+` FOR UPDATE`, arg); err != nil {
		_ = tx.Rollback()
		return mapErr(err)
	}
	acc := row.account()

	persist, ferr := fn(acc)
	if !persist {
		_ = tx.Rollback()
		return ferr
	}
	if _, err := tx.NamedExecContext(ctx, updateAccount, rowFromAccount(acc)); err != nil {
		_ = tx.Rollback()
		return mapErr(err)
	}
	if err := tx.Commit(); err != nil {
		return mapErr(err)
	}
	return ferr
}

func (s *Store) execOne(ctx context.Context, q string, args ...any) error {
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return mapErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return mapErr(err)
	}
	if n == 0 {
		return goGate.ErrAccountNotFound
	}
	return nil
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return goGate.ErrAccountNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return goGate.ErrAccountExists
	}
	return fmt.Errorf("postgres: %w", err)
}

func toNullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}

func fromNullTime(t sql.NullTime) time.Time {
	if !t.Valid {
		return time.Time{}
	}
	return t.Time
}

func toNullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
