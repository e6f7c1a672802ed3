package authcore

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/MrEthical07/authcore/internal/lockout"
	"github.com/MrEthical07/authcore/oauth"
	"github.com/MrEthical07/authcore/password"
	"github.com/MrEthical07/authcore/session"
)

// Config is the complete Engine configuration. Start from [DefaultConfig]
// and override fields; [Builder.Build] validates the result.
type Config struct {
	Session  SessionConfig
	Lockout  LockoutConfig
	Tokens   TokensConfig
	Password PasswordConfig
	OAuth    OAuthConfig
	Mail     MailConfig
	Audit    AuditConfig
	Metrics  MetricsConfig
	Links    LinksConfig
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls the Redis session registry.
type SessionConfig struct {
	RedisPrefix      string
	TTL              time.Duration
	PreAuthTTL       time.Duration
	TouchInterval    time.Duration
	EnforceIPBinding bool
}

/*
====================================
LOCKOUT CONFIG
====================================
*/

// LockoutConfig sets the progressive lockout thresholds. The short block
// fires exactly at ShortThreshold failures, the long block at LongThreshold
// and beyond.
type LockoutConfig struct {
	ShortThreshold int
	LongThreshold  int
	ShortDuration  time.Duration
	LongDuration   time.Duration
}

/*
====================================
TOKEN CONFIG
====================================
*/

// TokensConfig sets single-use token lifetimes.
type TokensConfig struct {
	EmailVerificationTTL time.Duration
	PasswordResetTTL     time.Duration
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig holds Argon2id cost parameters and the length policy.
// UpgradeOnLogin rehashes bcrypt and weaker Argon2id hashes after a
// successful login.
type PasswordConfig struct {
	Memory         uint32 // in KB
	Time           uint32
	Parallelism    uint8
	SaltLength     uint32
	KeyLength      uint32
	MinLength      int
	MaxLength      int
	UpgradeOnLogin bool
}

/*
====================================
OAUTH CONFIG
====================================
*/

// OAuthConfig registers identity providers. Providers absent from the map
// are rejected by BeginAuthorization and CompleteLogin.
type OAuthConfig struct {
	Providers        map[oauth.ProviderName]oauth.Config
	RequestTimeout   time.Duration
	ErrorRedirectURL string
	LockPrefix       string
	LockTTL          time.Duration
}

/*
====================================
MAIL CONFIG
====================================
*/

// MailConfig sizes the background mail pool.
type MailConfig struct {
	Workers             int
	QueueSize           int
	DropIfFull          bool
	SendTimeout         time.Duration
	VerificationSubject string
	ResetSubject        string
}

/*
====================================
AUDIT / METRICS CONFIG
====================================
*/

type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
LINKS CONFIG
====================================
*/

// LinksConfig builds the URLs placed in outgoing mail.
type LinksConfig struct {
	SiteURL   string
	ResetPath string
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns production defaults. OAuth providers and the site
// URL have no defaults.
func DefaultConfig() Config {
	sess := session.DefaultConfig()
	lock := lockout.DefaultConfig()
	pw := password.DefaultConfig()

	return Config{
		Session: SessionConfig{
			RedisPrefix:   sess.Prefix,
			TTL:           sess.TTL,
			PreAuthTTL:    sess.PreAuthTTL,
			TouchInterval: sess.TouchInterval,
		},
		Lockout: LockoutConfig{
			ShortThreshold: lock.ShortThreshold,
			LongThreshold:  lock.LongThreshold,
			ShortDuration:  lock.ShortDuration,
			LongDuration:   lock.LongDuration,
		},
		Tokens: TokensConfig{
			EmailVerificationTTL: 24 * time.Hour,
			PasswordResetTTL:     10 * time.Minute,
		},
		Password: PasswordConfig{
			Memory:         pw.Memory,
			Time:           pw.Time,
			Parallelism:    pw.Parallelism,
			SaltLength:     pw.SaltLength,
			KeyLength:      pw.KeyLength,
			MinLength:      pw.MinLength,
			MaxLength:      pw.MaxLength,
			UpgradeOnLogin: true,
		},
		OAuth: OAuthConfig{
			RequestTimeout: 10 * time.Second,
			LockPrefix:     "authlock:oauth:",
			LockTTL:        15 * time.Second,
		},
		Mail: MailConfig{
			Workers:             10,
			QueueSize:           256,
			DropIfFull:          true,
			SendTimeout:         30 * time.Second,
			VerificationSubject: "Verify your email",
			ResetSubject:        "Reset your password",
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		Links: LinksConfig{
			ResetPath: "reset-password",
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	if cfg.OAuth.Providers != nil {
		out.OAuth.Providers = make(map[oauth.ProviderName]oauth.Config, len(cfg.OAuth.Providers))
		for name, pc := range cfg.OAuth.Providers {
			pc.Scopes = append([]string(nil), pc.Scopes...)
			out.OAuth.Providers[name] = pc
		}
	}
	return out
}

func (c LockoutConfig) decider() lockout.Config {
	return lockout.Config{
		ShortThreshold: c.ShortThreshold,
		LongThreshold:  c.LongThreshold,
		ShortDuration:  c.ShortDuration,
		LongDuration:   c.LongDuration,
	}
}

func (c PasswordConfig) hasher() password.Config {
	return password.Config{
		Memory:      c.Memory,
		Time:        c.Time,
		Parallelism: c.Parallelism,
		SaltLength:  c.SaltLength,
		KeyLength:   c.KeyLength,
		MinLength:   c.MinLength,
		MaxLength:   c.MaxLength,
	}
}

func (c SessionConfig) registry() session.Config {
	return session.Config{
		Prefix:           c.RedisPrefix,
		TTL:              c.TTL,
		PreAuthTTL:       c.PreAuthTTL,
		TouchInterval:    c.TouchInterval,
		EnforceIPBinding: c.EnforceIPBinding,
	}
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	// Session
	if c.Session.RedisPrefix == "" {
		return errors.New("Session RedisPrefix must not be empty")
	}
	if c.Session.TTL <= 0 {
		return errors.New("Session TTL must be > 0")
	}
	if c.Session.PreAuthTTL <= 0 {
		return errors.New("Session PreAuthTTL must be > 0")
	}
	if c.Session.TouchInterval <= 0 || c.Session.TouchInterval >= c.Session.TTL {
		return errors.New("Session TouchInterval must be > 0 and < TTL")
	}

	// Lockout
	if err := c.Lockout.decider().Validate(); err != nil {
		return err
	}

	// Tokens
	if c.Tokens.EmailVerificationTTL <= 0 {
		return errors.New("Tokens EmailVerificationTTL must be > 0")
	}
	if c.Tokens.PasswordResetTTL <= 0 {
		return errors.New("Tokens PasswordResetTTL must be > 0")
	}

	// Password
	if c.Password.MinLength < 1 {
		return errors.New("Password MinLength must be >= 1")
	}
	if c.Password.MaxLength > 0 && c.Password.MaxLength < c.Password.MinLength {
		return errors.New("Password MaxLength must be >= MinLength")
	}

	// OAuth
	if c.OAuth.RequestTimeout <= 0 {
		return errors.New("OAuth RequestTimeout must be > 0")
	}
	if c.OAuth.LockTTL <= 0 || c.OAuth.LockPrefix == "" {
		return errors.New("OAuth LockTTL and LockPrefix are required")
	}
	for name, pc := range c.OAuth.Providers {
		if _, ok := oauth.ParseProviderName(string(name)); !ok {
			return fmt.Errorf("OAuth provider %q is not supported", name)
		}
		if pc.ClientID == "" || pc.ClientSecret == "" || pc.RedirectURL == "" {
			return fmt.Errorf("OAuth provider %q requires ClientID, ClientSecret and RedirectURL", name)
		}
	}

	// Mail
	if c.Mail.Workers <= 0 || c.Mail.QueueSize <= 0 {
		return errors.New("Mail Workers and QueueSize must be > 0")
	}
	if c.Mail.SendTimeout <= 0 {
		return errors.New("Mail SendTimeout must be > 0")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	// Links
	if c.Links.SiteURL != "" {
		if _, err := url.ParseRequestURI(c.Links.SiteURL); err != nil {
			return fmt.Errorf("Links SiteURL is invalid: %w", err)
		}
	}

	return nil
}
