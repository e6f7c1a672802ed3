// Package postgres is a [authcore.UserStore] on PostgreSQL through pgx.
// Every primitive the Engine relies on for atomicity is a single statement
// or a single transaction.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/authcore"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema creates the users and oauth_links tables. It is idempotent.
//
//go:embed schema.sql
var Schema string

const uniqueViolation = "23505"

// Store wraps a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
}

var _ authcore.UserStore = (*Store)(nil)

// Open connects to dsn and verifies the connection.
func Open(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return New(pool), nil
}

// New wraps an existing pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Migrate applies [Schema].
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

func (s *Store) Close() {
	s.pool.Close()
}

const userColumns = `
	id, email, username, username_display, username_shorthand, display_name, picture,
	role, enabled, created_at,
	password_hash, has_password, failed_login_attempts, blocked, block_class, block_expires_at,
	email_verified, email_verification_token, email_verification_expires_at,
	reset_token, reset_token_expires_at`

func scanUser(row pgx.Row) (authcore.UserRecord, error) {
	var (
		u                          authcore.UserRecord
		id                         uuid.UUID
		role                       string
		blockClass                 int16
		blockExp, verifyExp, reset *time.Time
	)
	err := row.Scan(
		&id, &u.Email, &u.Username, &u.UsernameDisplay, &u.UsernameShorthand, &u.DisplayName, &u.Picture,
		&role, &u.Enabled, &u.CreatedAt,
		&u.Credential.PasswordHash, &u.Credential.HasPassword, &u.Credential.FailedLoginAttempts,
		&u.Credential.Blocked, &blockClass, &blockExp,
		&u.EmailVerification.Verified, &u.EmailVerification.Token, &verifyExp,
		&u.ResetToken.Token, &reset,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return authcore.UserRecord{}, authcore.ErrStoreNotFound
		}
		return authcore.UserRecord{}, fmt.Errorf("failed to scan user: %w", err)
	}

	u.ID = id.String()
	u.Role = authcore.Role(role)
	u.Credential.BlockClass = authcore.BlockClass(blockClass)
	u.Credential.BlockExpiresAt = deref(blockExp)
	u.EmailVerification.ExpiresAt = deref(verifyExp)
	u.ResetToken.ExpiresAt = deref(reset)
	return u, nil
}

func deref(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return t.UTC()
}

func nullable(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// parseID treats ids that are not UUIDs as missing rows.
func parseID(userID string) (uuid.UUID, error) {
	id, err := uuid.Parse(userID)
	if err != nil {
		return uuid.Nil, authcore.ErrStoreNotFound
	}
	return id, nil
}

// mapWriteError translates unique violations into the store sentinels.
func mapWriteError(err error, op string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		switch pgErr.ConstraintName {
		case "users_email_key":
			return authcore.ErrDuplicateEmail
		case "users_username_key":
			return authcore.ErrDuplicateUsername
		case "oauth_links_pkey":
			return authcore.ErrDuplicateOAuthLink
		}
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (authcore.UserRecord, error) {
	return scanUser(s.pool.QueryRow(ctx,
		`SELECT`+userColumns+` FROM users WHERE lower(email) = lower($1)`, email))
}

func (s *Store) GetUserByID(ctx context.Context, userID string) (authcore.UserRecord, error) {
	id, err := parseID(userID)
	if err != nil {
		return authcore.UserRecord{}, err
	}
	return scanUser(s.pool.QueryRow(ctx, `SELECT`+userColumns+` FROM users WHERE id = $1`, id))
}

func (s *Store) UsernameExists(ctx context.Context, username string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE lower(username) = lower($1))`, username).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check username: %w", err)
	}
	return exists, nil
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func insertUser(ctx context.Context, q querier, nu authcore.NewUser) (authcore.UserRecord, error) {
	token, exp := nu.VerificationToken, nullable(nu.VerificationExp)
	if nu.EmailVerified {
		token, exp = "", nil
	}

	u, err := scanUser(q.QueryRow(ctx, `
		INSERT INTO users (
			id, email, username, username_display, username_shorthand, display_name, picture,
			role, enabled, password_hash, has_password,
			email_verified, email_verification_token, email_verification_expires_at
		) VALUES ($1, lower($2), lower($3), $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING`+userColumns,
		uuid.New(), nu.Email, nu.Username, nu.UsernameDisplay, nu.UsernameShorthand, nu.DisplayName, nu.Picture,
		string(nu.Role), nu.Enabled, nu.PasswordHash, nu.HasPassword,
		nu.EmailVerified, token, exp,
	))
	if err != nil {
		return authcore.UserRecord{}, mapWriteError(err, "insert user")
	}
	return u, nil
}

func (s *Store) CreateUser(ctx context.Context, nu authcore.NewUser) (authcore.UserRecord, error) {
	return insertUser(ctx, s.pool, nu)
}

// exec runs a single-row update and reports ErrStoreNotFound when no row
// matched.
func (s *Store) exec(ctx context.Context, op, sql string, args ...any) error {
	tag, err := s.pool.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return authcore.ErrStoreNotFound
	}
	return nil
}

func (s *Store) SetEnabled(ctx context.Context, userID string, enabled bool) error {
	id, err := parseID(userID)
	if err != nil {
		return err
	}
	return s.exec(ctx, "update enabled", `UPDATE users SET enabled = $2 WHERE id = $1`, id, enabled)
}

// SetRole locks every admin row before it counts them, so two concurrent
// demotions cannot both see a second admin.
func (s *Store) SetRole(ctx context.Context, userID string, role authcore.Role) error {
	id, err := parseID(userID)
	if err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if role != authcore.RoleAdmin {
		rows, err := tx.Query(ctx, `SELECT id FROM users WHERE role = $1 FOR UPDATE`, string(authcore.RoleAdmin))
		if err != nil {
			return fmt.Errorf("failed to lock admins: %w", err)
		}
		admins, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
		if err != nil {
			return fmt.Errorf("failed to lock admins: %w", err)
		}
		if len(admins) == 1 && admins[0] == id {
			return authcore.ErrStoreLastAdmin
		}
	}

	tag, err := tx.Exec(ctx, `UPDATE users SET role = $2 WHERE id = $1`, id, string(role))
	if err != nil {
		return fmt.Errorf("failed to update role: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return authcore.ErrStoreNotFound
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit role: %w", err)
	}
	return nil
}

func (s *Store) CountUsersByRole(ctx context.Context, role authcore.Role) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM users WHERE role = $1`, string(role)).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return n, nil
}

func (s *Store) DeleteUser(ctx context.Context, userID string) error {
	id, err := parseID(userID)
	if err != nil {
		return err
	}
	return s.exec(ctx, "delete user", `DELETE FROM users WHERE id = $1`, id)
}

// RecordFailedLogin reads the credential FOR UPDATE, so concurrent failures
// against one account are applied one after another and each sees the block
// the previous one wrote.
func (s *Store) RecordFailedLogin(ctx context.Context, f authcore.FailedLogin) (authcore.Credential, error) {
	id, err := parseID(f.UserID)
	if err != nil {
		return authcore.Credential{}, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return authcore.Credential{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var (
		c          authcore.Credential
		blockClass int16
		blockExp   *time.Time
	)
	err = tx.QueryRow(ctx, `
		SELECT password_hash, has_password, failed_login_attempts, blocked, block_class, block_expires_at
		FROM users WHERE id = $1 FOR UPDATE`, id).
		Scan(&c.PasswordHash, &c.HasPassword, &c.FailedLoginAttempts, &c.Blocked, &blockClass, &blockExp)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return authcore.Credential{}, authcore.ErrStoreNotFound
		}
		return authcore.Credential{}, fmt.Errorf("failed to read credential: %w", err)
	}
	c.BlockClass = authcore.BlockClass(blockClass)
	c.BlockExpiresAt = deref(blockExp)

	if !f.Apply(&c) {
		return c, authcore.ErrStoreAccountBlocked
	}

	_, err = tx.Exec(ctx, `
		UPDATE users
		SET failed_login_attempts = $2, blocked = $3, block_class = $4, block_expires_at = $5
		WHERE id = $1`,
		id, c.FailedLoginAttempts, c.Blocked, int16(c.BlockClass), nullable(c.BlockExpiresAt.UTC()))
	if err != nil {
		return authcore.Credential{}, fmt.Errorf("failed to record failed login: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return authcore.Credential{}, fmt.Errorf("failed to commit failed login: %w", err)
	}
	return c, nil
}

func (s *Store) ClearLockout(ctx context.Context, userID string) error {
	id, err := parseID(userID)
	if err != nil {
		return err
	}
	return s.exec(ctx, "clear lockout", `
		UPDATE users SET failed_login_attempts = 0, blocked = FALSE, block_class = 0, block_expires_at = NULL
		WHERE id = $1`, id)
}

func (s *Store) SetPasswordHash(ctx context.Context, userID, currentHash, newHash string) (bool, error) {
	return s.swapHash(ctx, `
		UPDATE users SET password_hash = $3, has_password = TRUE
		WHERE id = $1 AND password_hash = $2`, userID, currentHash, newHash)
}

func (s *Store) ChangePassword(ctx context.Context, userID, currentHash, newHash string) (bool, error) {
	return s.swapHash(ctx, `
		UPDATE users
		SET password_hash = $3, has_password = TRUE,
			failed_login_attempts = 0, blocked = FALSE, block_class = 0, block_expires_at = NULL,
			reset_token = '', reset_token_expires_at = NULL
		WHERE id = $1 AND password_hash = $2`, userID, currentHash, newHash)
}

func (s *Store) swapHash(ctx context.Context, sql, userID, currentHash, newHash string) (bool, error) {
	id, err := parseID(userID)
	if err != nil {
		return false, err
	}
	tag, err := s.pool.Exec(ctx, sql, id, currentHash, newHash)
	if err != nil {
		return false, fmt.Errorf("failed to update password hash: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func tokenColumns(kind authcore.TokenKind) (string, string, error) {
	switch kind {
	case authcore.TokenEmailVerification:
		return "email_verification_token", "email_verification_expires_at", nil
	case authcore.TokenPasswordReset:
		return "reset_token", "reset_token_expires_at", nil
	default:
		return "", "", fmt.Errorf("unknown token kind %s", kind)
	}
}

func (s *Store) SetToken(ctx context.Context, kind authcore.TokenKind, userID, token string, expiresAt time.Time) error {
	id, err := parseID(userID)
	if err != nil {
		return err
	}
	tokenCol, expCol, err := tokenColumns(kind)
	if err != nil {
		return err
	}
	return s.exec(ctx, "set token",
		`UPDATE users SET `+tokenCol+` = $2, `+expCol+` = $3 WHERE id = $1`, id, token, expiresAt.UTC())
}

// ConsumeToken is a compare-and-clear: the WHERE clause re-checks the token,
// so of two concurrent consumers only one updates a row.
func (s *Store) ConsumeToken(ctx context.Context, c authcore.TokenConsumption) (bool, error) {
	id, err := parseID(c.UserID)
	if err != nil || c.Token == "" {
		return false, nil
	}

	var tag pgconn.CommandTag
	switch c.Kind {
	case authcore.TokenEmailVerification:
		tag, err = s.pool.Exec(ctx, `
			UPDATE users
			SET email_verified = TRUE, email_verification_token = '', email_verification_expires_at = NULL
			WHERE id = $1 AND email_verification_token = $2`, id, c.Token)
	case authcore.TokenPasswordReset:
		tag, err = s.pool.Exec(ctx, `
			UPDATE users
			SET reset_token = '', reset_token_expires_at = NULL,
				password_hash = $3, has_password = TRUE,
				failed_login_attempts = 0, blocked = FALSE, block_class = 0, block_expires_at = NULL
			WHERE id = $1 AND reset_token = $2`, id, c.Token, c.NewPasswordHash)
	default:
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to consume token: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) GetOAuthLink(ctx context.Context, provider, providerUserID string) (authcore.OAuthLink, error) {
	var (
		l      authcore.OAuthLink
		userID uuid.UUID
	)
	err := s.pool.QueryRow(ctx, `
		SELECT provider, provider_user_id, user_id, created_at
		FROM oauth_links WHERE provider = lower($1) AND provider_user_id = $2`,
		provider, providerUserID).Scan(&l.Provider, &l.ProviderUserID, &userID, &l.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return authcore.OAuthLink{}, authcore.ErrStoreNotFound
		}
		return authcore.OAuthLink{}, fmt.Errorf("failed to get oauth link: %w", err)
	}
	l.UserID = userID.String()
	return l, nil
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func insertLink(ctx context.Context, q execer, link authcore.OAuthLink) error {
	id, err := parseID(link.UserID)
	if err != nil {
		return err
	}
	created := link.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err = q.Exec(ctx, `
		INSERT INTO oauth_links (provider, provider_user_id, user_id, created_at)
		VALUES (lower($1), $2, $3, $4)`,
		strings.TrimSpace(link.Provider), link.ProviderUserID, id, created.UTC())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return authcore.ErrStoreNotFound
		}
		return mapWriteError(err, "insert oauth link")
	}
	return nil
}

func (s *Store) CreateOAuthLink(ctx context.Context, link authcore.OAuthLink) error {
	return insertLink(ctx, s.pool, link)
}

// CreateOAuthUser inserts the user and its link in one transaction.
func (s *Store) CreateOAuthUser(ctx context.Context, nu authcore.NewUser, link authcore.OAuthLink) (authcore.UserRecord, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return authcore.UserRecord{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	u, err := insertUser(ctx, tx, nu)
	if err != nil {
		return authcore.UserRecord{}, err
	}
	link.UserID = u.ID
	if err := insertLink(ctx, tx, link); err != nil {
		return authcore.UserRecord{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return authcore.UserRecord{}, mapWriteError(err, "commit oauth user")
	}
	return u, nil
}
