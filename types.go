package authcore

import (
	"context"
	"time"

	internalaudit "github.com/MrEthical07/authcore/internal/audit"
	"github.com/rs/zerolog"
)

// Role is the authorization role of a user.
type Role string

const (
	// RoleUser is the default role for self-registered and OAuth users.
	RoleUser Role = "USER"
	// RoleAdmin can manage users and other users' sessions.
	RoleAdmin Role = "ADMIN"
	// RoleManager is an intermediate administrative role.
	RoleManager Role = "MANAGER"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAdmin, RoleManager:
		return true
	}
	return false
}

// BlockClass is the duration class of a lockout block.
type BlockClass uint8

const (
	// BlockNone means no block has been applied.
	BlockNone BlockClass = iota
	// BlockShort is the block applied at the first lockout threshold.
	BlockShort
	// BlockLong is the block applied at the second lockout threshold.
	BlockLong
)

func (c BlockClass) String() string {
	switch c {
	case BlockShort:
		return "SHORT"
	case BlockLong:
		return "LONG"
	default:
		return "NONE"
	}
}

// TokenKind selects which single-use token a token operation addresses.
type TokenKind uint8

const (
	// TokenEmailVerification proves control of the account's email address.
	TokenEmailVerification TokenKind = iota + 1
	// TokenPasswordReset authorizes one password change.
	TokenPasswordReset
)

func (k TokenKind) String() string {
	switch k {
	case TokenEmailVerification:
		return "EMAIL_VERIFICATION"
	case TokenPasswordReset:
		return "PASSWORD_RESET"
	default:
		return "UNKNOWN"
	}
}

// Credential is the password and lockout sub-record of a user.
// Only the Engine mutates it, and only through the atomic UserStore primitives.
type Credential struct {
	PasswordHash        string
	HasPassword         bool
	FailedLoginAttempts int
	Blocked             bool
	BlockExpiresAt      time.Time
	BlockClass          BlockClass
}

// BlockedAt reports whether the block is still in force at now.
// An elapsed block counts as lifted even if the flag is still set.
func (c Credential) BlockedAt(now time.Time) bool {
	return c.Blocked && now.Before(c.BlockExpiresAt)
}

// EmailVerification is the verification sub-record of a user.
// Verified implies Token is empty.
type EmailVerification struct {
	Verified  bool
	Token     string
	ExpiresAt time.Time
}

// ResetToken is the password-reset sub-record of a user.
type ResetToken struct {
	Token     string
	ExpiresAt time.Time
}

// UserRecord is the full account record exchanged with a [UserStore].
type UserRecord struct {
	ID                string
	Email             string
	Username          string
	UsernameDisplay   string
	UsernameShorthand string
	DisplayName       string
	Picture           string
	Role              Role
	Enabled           bool
	CreatedAt         time.Time

	Credential        Credential
	EmailVerification EmailVerification
	ResetToken        ResetToken
}

// OAuthLink binds an external provider identity to a local user.
type OAuthLink struct {
	Provider       string
	ProviderUserID string
	UserID         string
	CreatedAt      time.Time
}

// NewUser is the input for [UserStore.CreateUser] and [UserStore.CreateOAuthUser].
type NewUser struct {
	Email             string
	Username          string
	UsernameDisplay   string
	UsernameShorthand string
	DisplayName       string
	Picture           string
	Role              Role
	Enabled           bool
	PasswordHash      string
	HasPassword       bool
	EmailVerified     bool
	VerificationToken string
	VerificationExp   time.Time
}

// TokenConsumption describes a compare-and-clear of a single-use token
// together with the state change it authorizes.
type TokenConsumption struct {
	Kind   TokenKind
	UserID string
	Token  string
	// NewPasswordHash is required for TokenPasswordReset. The store writes it,
	// sets HasPassword and clears the lockout fields in the same change.
	NewPasswordHash string
}

// FailedLogin is the input for [UserStore.RecordFailedLogin].
type FailedLogin struct {
	UserID string
	At     time.Time
	// Decide maps the incremented count to the block it triggers. BlockNone
	// leaves the block fields as they are.
	Decide func(failures int) (BlockClass, time.Time)
}

// Apply runs the failure against c the way every store must: a block in
// force at f.At leaves c untouched and reports false.
func (f FailedLogin) Apply(c *Credential) bool {
	if c.BlockedAt(f.At) {
		return false
	}
	c.FailedLoginAttempts++
	if class, exp := f.Decide(c.FailedLoginAttempts); class != BlockNone {
		c.Blocked = true
		c.BlockClass = class
		c.BlockExpiresAt = exp
	}
	return true
}

// UserStore is the relational collaborator the Engine reads and mutates.
//
// Email and username lookups are case-insensitive. Methods return
// [ErrStoreNotFound] for a missing row and [ErrDuplicateEmail],
// [ErrDuplicateUsername] or [ErrDuplicateOAuthLink] on uniqueness violations.
type UserStore interface {
	GetUserByEmail(ctx context.Context, email string) (UserRecord, error)
	GetUserByID(ctx context.Context, userID string) (UserRecord, error)
	UsernameExists(ctx context.Context, username string) (bool, error)
	CreateUser(ctx context.Context, user NewUser) (UserRecord, error)
	SetEnabled(ctx context.Context, userID string, enabled bool) error
	// SetRole returns [ErrStoreLastAdmin] instead of demoting the only admin.
	SetRole(ctx context.Context, userID string, role Role) error
	CountUsersByRole(ctx context.Context, role Role) (int, error)
	DeleteUser(ctx context.Context, userID string) error

	// RecordFailedLogin increments the failure counter and applies the block
	// f.Decide picks for the new count as one atomic change. When the account
	// is already blocked at f.At nothing is written and the stored credential
	// is returned together with [ErrStoreAccountBlocked].
	RecordFailedLogin(ctx context.Context, f FailedLogin) (Credential, error)
	ClearLockout(ctx context.Context, userID string) error
	// SetPasswordHash replaces the hash only while it still equals
	// currentHash. It returns false when another writer got there first.
	SetPasswordHash(ctx context.Context, userID, currentHash, newHash string) (bool, error)
	// ChangePassword is SetPasswordHash that also clears the lockout fields
	// and any pending reset token in the same change.
	ChangePassword(ctx context.Context, userID, currentHash, newHash string) (bool, error)

	SetToken(ctx context.Context, kind TokenKind, userID, token string, expiresAt time.Time) error
	// ConsumeToken clears the token only if it still equals c.Token and applies
	// the associated change atomically. It returns false when the token no
	// longer matches.
	ConsumeToken(ctx context.Context, c TokenConsumption) (bool, error)

	GetOAuthLink(ctx context.Context, provider, providerUserID string) (OAuthLink, error)
	CreateOAuthLink(ctx context.Context, link OAuthLink) error
	// CreateOAuthUser creates the user and its link in one transaction.
	CreateOAuthUser(ctx context.Context, user NewUser, link OAuthLink) (UserRecord, error)
}

// Mailer delivers one message. MessageID is empty when the transport did not
// accept the message.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) (DeliveryResult, error)
}

// DeliveryResult is the outcome reported by a [Mailer].
type DeliveryResult struct {
	MessageID string
}

// AuthenticatedUser is the identity produced by password or OAuth login.
// It is what the caller hands to session establishment.
type AuthenticatedUser struct {
	UserID            string
	Email             string
	Role              Role
	UsernameDisplay   string
	UsernameShorthand string
	Picture           string
	EmailVerified     bool
}

func authenticatedFrom(u UserRecord) AuthenticatedUser {
	return AuthenticatedUser{
		UserID:            u.ID,
		Email:             u.Email,
		Role:              u.Role,
		UsernameDisplay:   u.UsernameDisplay,
		UsernameShorthand: u.UsernameShorthand,
		Picture:           u.Picture,
		EmailVerified:     u.EmailVerification.Verified,
	}
}

// RegisterInput is the input for [Engine.Register].
type RegisterInput struct {
	Username    string
	Email       string
	Password    string
	DisplayName string
}

// RegistrationMode selects how a new account is activated.
type RegistrationMode uint8

const (
	// VerifyByEmail creates an enabled, unverified account and mails a code.
	VerifyByEmail RegistrationMode = iota
	// VerifyByAdmin creates a verified, disabled account awaiting an administrator.
	VerifyByAdmin
)

// AuthorizationStart is returned by [Engine.BeginAuthorization]. The caller
// persists State and CodeVerifier client-side and redirects to RedirectURL.
type AuthorizationStart struct {
	RedirectURL  string
	State        string
	CodeVerifier string
}

// AuditEvent is an alias of the internal audit event.
type AuditEvent = internalaudit.Event

// AuditSink receives audit events from the dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink discards audit events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink buffers audit events in a channel.
type ChannelSink = internalaudit.ChannelSink

// LogSink writes audit events through a zerolog logger.
type LogSink = internalaudit.LogSink

// MultiSink fans audit events out to several sinks.
type MultiSink = internalaudit.MultiSink

// NewChannelSink creates a [ChannelSink] with the given buffer.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewLogSink creates a [LogSink] writing to log.
func NewLogSink(log zerolog.Logger) *LogSink {
	return internalaudit.NewLogSink(log)
}
