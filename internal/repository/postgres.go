package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"

	"github.com/sumire/studenthub/internal/domain"
)

const uniqueViolation = "23505"

const accountColumns = `id, username, email, password_hash, email_verified, oauth_provider, oauth_id, avatar_url, created_at`

// Store is the Postgres-backed identity store. It owns the users and
// otp_challenges tables; no other component persists state.
type Store struct {
	db *sqlx.DB
}

// NewStore creates a new Store.
func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// FindAccountByID retrieves an account by its ID.
func (s *Store) FindAccountByID(ctx context.Context, id int64) (*domain.Account, error) {
	var acct domain.Account
	err := s.db.GetContext(ctx, &acct,
		`SELECT `+accountColumns+` FROM users WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("find account by id %d: %w", id, err)
	}
	return &acct, nil
}

// FindAccountByEmail retrieves an account by normalized email.
func (s *Store) FindAccountByEmail(ctx context.Context, email string) (*domain.Account, error) {
	var acct domain.Account
	err := s.db.GetContext(ctx, &acct,
		`SELECT `+accountColumns+` FROM users WHERE email = $1`, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("find account by email: %w", err)
	}
	return &acct, nil
}

// UsernameExists reports whether a username is already taken (case-sensitive).
func (s *Store) UsernameExists(ctx context.Context, username string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM users WHERE username = $1)`, username)
	if err != nil {
		return false, fmt.Errorf("check username: %w", err)
	}
	return exists, nil
}

// ReplaceChallenge deletes any prior challenge for the email and inserts the
// new one in a single transaction, so only the latest code per email is valid.
func (s *Store) ReplaceChallenge(ctx context.Context, ch *domain.OTPChallenge) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace challenge: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM otp_challenges WHERE email = $1`, ch.Email); err != nil {
		return fmt.Errorf("delete prior challenges: %w", err)
	}

	err = tx.QueryRowxContext(ctx,
		`INSERT INTO otp_challenges (email, code, created_at, expires_at, verified)
		 VALUES ($1, $2, $3, $4, false)
		 RETURNING id`,
		ch.Email, ch.Code, ch.CreatedAt, ch.ExpiresAt,
	).Scan(&ch.ID)
	if err != nil {
		return fmt.Errorf("insert challenge: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace challenge: %w", err)
	}
	return nil
}

// FindChallenge retrieves the unconsumed challenge matching email and exact code.
func (s *Store) FindChallenge(ctx context.Context, email, code string) (*domain.OTPChallenge, error) {
	var ch domain.OTPChallenge
	err := s.db.GetContext(ctx, &ch,
		`SELECT id, email, code, created_at, expires_at, verified
		 FROM otp_challenges
		 WHERE email = $1 AND code = $2 AND verified = false`, email, code)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("find challenge: %w", err)
	}
	return &ch, nil
}

// CreateVerifiedSignup consumes the challenge and creates the account in one
// transaction. If another request consumed the challenge first, the update
// matches zero rows and the whole signup fails with ErrInvalidCode.
func (s *Store) CreateVerifiedSignup(ctx context.Context, challengeID int64, acct *domain.Account) (*domain.Account, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin signup: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE otp_challenges SET verified = true WHERE id = $1 AND verified = false`,
		challengeID)
	if err != nil {
		return nil, fmt.Errorf("consume challenge: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("consume challenge: %w", err)
	}
	if n == 0 {
		return nil, domain.ErrInvalidCode
	}

	var created domain.Account
	err = tx.QueryRowxContext(ctx,
		`INSERT INTO users (username, email, password_hash, email_verified, oauth_provider, oauth_id, avatar_url)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING `+accountColumns,
		acct.Username, acct.Email, acct.PasswordHash, acct.EmailVerified,
		acct.OAuthProvider, acct.OAuthID, acct.AvatarURL,
	).StructScan(&created)
	if err != nil {
		if conflict := conflictError(err); conflict != nil {
			return nil, conflict
		}
		return nil, fmt.Errorf("insert account: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit signup: %w", err)
	}
	return &created, nil
}

// CreateOAuthAccount inserts a new OAuth-backed account. Uniqueness races
// surface as ErrEmailTaken or ErrUsernameTaken for the caller to recover from.
func (s *Store) CreateOAuthAccount(ctx context.Context, acct *domain.Account) (*domain.Account, error) {
	var created domain.Account
	err := s.db.QueryRowxContext(ctx,
		`INSERT INTO users (username, email, password_hash, email_verified, oauth_provider, oauth_id, avatar_url)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING `+accountColumns,
		acct.Username, acct.Email, acct.PasswordHash, acct.EmailVerified,
		acct.OAuthProvider, acct.OAuthID, acct.AvatarURL,
	).StructScan(&created)
	if err != nil {
		if conflict := conflictError(err); conflict != nil {
			return nil, conflict
		}
		return nil, fmt.Errorf("insert oauth account: %w", err)
	}
	return &created, nil
}

func conflictError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolation {
		return nil
	}
	switch pgErr.ConstraintName {
	case "users_username_key":
		return domain.ErrUsernameTaken
	case "users_email_key":
		return domain.ErrEmailTaken
	default:
		return domain.ErrConflict
	}
}
