package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/authcore/internal"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrRedisUnavailable wraps any failure talking to the session store.
	ErrRedisUnavailable = errors.New("redis unavailable")
	// ErrSessionNotFound is returned for a missing or expired session.
	ErrSessionNotFound = errors.New("session not found")
	// ErrFingerprintMismatch is returned after a failed fingerprint check.
	// The session has already been destroyed when it is returned.
	ErrFingerprintMismatch = errors.New("session fingerprint mismatch")
	// ErrCannotRevokeCurrent is returned when RevokeByID targets the caller's own session.
	ErrCannotRevokeCurrent = errors.New("cannot revoke current session")
)

// Config controls key layout and lifetimes.
type Config struct {
	// Prefix namespaces this application's sessions in a shared keyspace.
	Prefix           string
	TTL              time.Duration
	PreAuthTTL       time.Duration
	TouchInterval    time.Duration
	EnforceIPBinding bool
	ScanCount        int64
}

// DefaultConfig returns a 7-day session with a 30-minute touch interval.
func DefaultConfig() Config {
	return Config{
		Prefix:        "authsess:",
		TTL:           7 * 24 * time.Hour,
		PreAuthTTL:    10 * time.Minute,
		TouchInterval: 30 * time.Minute,
		ScanCount:     1000,
	}
}

// Option customizes a Registry.
type Option func(*Registry)

// WithClock replaces time.Now for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// Registry stores fingerprint-bound sessions in Redis, one JSON value per key.
// Every per-session operation touches exactly one key.
type Registry struct {
	redis redis.UniversalClient
	cfg   Config
	now   func() time.Time
}

// NewRegistry creates a Registry. Zero fields in cfg take their defaults.
func NewRegistry(rdb redis.UniversalClient, cfg Config, opts ...Option) *Registry {
	def := DefaultConfig()
	if cfg.Prefix == "" {
		cfg.Prefix = def.Prefix
	}
	if cfg.TTL <= 0 {
		cfg.TTL = def.TTL
	}
	if cfg.PreAuthTTL <= 0 {
		cfg.PreAuthTTL = def.PreAuthTTL
	}
	if cfg.TouchInterval <= 0 {
		cfg.TouchInterval = def.TouchInterval
	}
	if cfg.ScanCount <= 0 {
		cfg.ScanCount = def.ScanCount
	}

	r := &Registry{redis: rdb, cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Registry) key(sessionID string) string {
	return r.cfg.Prefix + sessionID
}

// Establish creates a logged-in session for id bound to clientIP and a fresh
// device id.
func (r *Registry) Establish(ctx context.Context, id Identity, clientIP string) (Established, error) {
	if id.UserID == "" {
		return Established{}, errors.New("session identity requires a user id")
	}

	now := r.now().UTC()
	sess := &Session{
		UserID:            id.UserID,
		Role:              id.Role,
		UsernameDisplay:   id.UsernameDisplay,
		UsernameShorthand: id.UsernameShorthand,
		Email:             id.Email,
		Picture:           id.Picture,
		Fingerprint: Fingerprint{
			IP:       clientIP,
			DeviceID: uuid.NewString(),
		},
		IsLogged:      true,
		CreatedAt:     now,
		LastTouchedAt: now,
	}

	if err := r.create(ctx, sess, r.cfg.TTL); err != nil {
		return Established{}, err
	}
	return Established{SessionID: sess.ID, DeviceID: sess.Fingerprint.DeviceID, Session: sess}, nil
}

// create stores sess under a new id. SET NX guards against the negligible
// chance of an id collision.
func (r *Registry) create(ctx context.Context, sess *Session, ttl time.Duration) error {
	for attempt := 0; attempt < 3; attempt++ {
		sid, err := internal.NewSessionID()
		if err != nil {
			return err
		}
		sess.ID = sid

		data, err := Encode(sess)
		if err != nil {
			return err
		}
		ok, err := r.redis.SetNX(ctx, r.key(sid), data, ttl).Result()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		if ok {
			sess.SchemaVersion = CurrentSchemaVersion
			return nil
		}
	}
	return errors.New("session id collision")
}

// Get loads a session. A record stored by an older schema is rewritten at
// the current version with its remaining TTL.
func (r *Registry) Get(ctx context.Context, sessionID string) (*Session, error) {
	if sessionID == "" {
		return nil, ErrSessionNotFound
	}
	key := r.key(sessionID)

	data, err := r.redis.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	sess, err := Decode(data)
	if err != nil {
		_ = r.redis.Del(ctx, key).Err()
		return nil, ErrSessionNotFound
	}
	sess.ID = sessionID

	if err := r.maybeMigrate(ctx, key, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

func (r *Registry) maybeMigrate(ctx context.Context, key string, sess *Session) error {
	if sess.SchemaVersion == CurrentSchemaVersion {
		return nil
	}
	data, err := Encode(sess)
	if err != nil {
		return err
	}
	if err := r.redis.Set(ctx, key, data, redis.KeepTTL).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	sess.SchemaVersion = CurrentSchemaVersion
	return nil
}

// ValidateFingerprint checks the device id presented by the client against
// the one bound at login. Both must parse as UUIDs and be equal. When IP
// binding is enforced the client IP must match too. Any failure destroys the
// session before ErrFingerprintMismatch is returned.
func (r *Registry) ValidateFingerprint(ctx context.Context, sess *Session, cookieDeviceID, clientIP string) error {
	if sess == nil {
		return ErrSessionNotFound
	}

	reason := fingerprintMismatch(sess, cookieDeviceID, clientIP, r.cfg.EnforceIPBinding)
	if reason == "" {
		return nil
	}

	if err := r.Destroy(ctx, sess.ID); err != nil {
		return err
	}
	return fmt.Errorf("%w: %s", ErrFingerprintMismatch, reason)
}

func fingerprintMismatch(sess *Session, cookieDeviceID, clientIP string, enforceIP bool) string {
	stored, err := uuid.Parse(sess.Fingerprint.DeviceID)
	if err != nil {
		return "stored device id is not a uuid"
	}
	presented, err := uuid.Parse(cookieDeviceID)
	if err != nil {
		return "presented device id is not a uuid"
	}
	if stored != presented {
		return "device id differs"
	}
	if enforceIP && sess.Fingerprint.IP != clientIP {
		return "client ip differs"
	}
	return ""
}

// Touch renews the session TTL when more than TouchInterval has passed since
// the last renewal. It reports whether a write happened. SET XX keeps a
// concurrently destroyed session from being recreated.
func (r *Registry) Touch(ctx context.Context, sess *Session) (bool, error) {
	if sess == nil || !sess.IsLogged {
		return false, nil
	}

	now := r.now().UTC()
	if now.Sub(sess.LastTouchedAt) <= r.cfg.TouchInterval {
		return false, nil
	}

	next := *sess
	next.LastTouchedAt = now
	data, err := Encode(&next)
	if err != nil {
		return false, err
	}

	ok, err := r.redis.SetXX(ctx, r.key(sess.ID), data, r.cfg.TTL).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if !ok {
		return false, ErrSessionNotFound
	}

	sess.LastTouchedAt = now
	return true, nil
}

// Destroy deletes a session. Deleting a missing session is not an error.
func (r *Registry) Destroy(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	if err := r.redis.Del(ctx, r.key(sessionID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// RevokeByID deletes another session. currentSessionID is the caller's own
// session, which this path refuses to delete.
func (r *Registry) RevokeByID(ctx context.Context, currentSessionID, targetSessionID string) error {
	if targetSessionID == "" {
		return ErrSessionNotFound
	}
	if targetSessionID == currentSessionID {
		return ErrCannotRevokeCurrent
	}

	n, err := r.redis.Del(ctx, r.key(targetSessionID)).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// RevokeByUser deletes every session of userID and returns how many were
// removed. Sessions created while the scan runs may survive.
func (r *Registry) RevokeByUser(ctx context.Context, userID string) (int, error) {
	return r.RevokeOthers(ctx, userID, "")
}

// RevokeOthers is RevokeByUser sparing keepSessionID.
func (r *Registry) RevokeOthers(ctx context.Context, userID, keepSessionID string) (int, error) {
	if userID == "" {
		return 0, nil
	}

	sessions, err := r.scanAll(ctx)
	if err != nil {
		return 0, err
	}

	keys := make([]string, 0)
	for _, sess := range sessions {
		if sess.UserID == userID && sess.ID != keepSessionID {
			keys = append(keys, r.key(sess.ID))
		}
	}
	if len(keys) == 0 {
		return 0, nil
	}

	n, err := r.redis.Del(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return int(n), nil
}

// StashRedirect records OAuth redirect targets on the caller's session,
// creating a short-lived anonymous session when there is none. It returns
// the id of the session holding the targets.
func (r *Registry) StashRedirect(ctx context.Context, sessionID string, target Redirect) (string, error) {
	if sessionID != "" {
		sess, err := r.Get(ctx, sessionID)
		switch {
		case err == nil:
			sess.Redirect = &target
			data, err := Encode(sess)
			if err != nil {
				return "", err
			}
			ok, err := r.redis.SetArgs(ctx, r.key(sessionID), data, redis.SetArgs{Mode: "XX", KeepTTL: true}).Result()
			if err != nil && !errors.Is(err, redis.Nil) {
				return "", fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
			}
			if ok == "OK" {
				return sessionID, nil
			}
		case !errors.Is(err, ErrSessionNotFound):
			return "", err
		}
	}

	now := r.now().UTC()
	sess := &Session{
		CreatedAt:     now,
		LastTouchedAt: now,
		Redirect:      &target,
	}
	if err := r.create(ctx, sess, r.cfg.PreAuthTTL); err != nil {
		return "", err
	}
	return sess.ID, nil
}

// TakeRedirect returns and clears the stashed redirect targets. An anonymous
// session that only existed to hold them is deleted.
func (r *Registry) TakeRedirect(ctx context.Context, sessionID string) (Redirect, error) {
	sess, err := r.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return Redirect{}, nil
		}
		return Redirect{}, err
	}
	if sess.Redirect == nil {
		return Redirect{}, nil
	}
	target := *sess.Redirect

	if !sess.IsLogged {
		return target, r.Destroy(ctx, sessionID)
	}

	sess.Redirect = nil
	data, err := Encode(sess)
	if err != nil {
		return Redirect{}, err
	}
	if err := r.redis.SetArgs(ctx, r.key(sessionID), data, redis.SetArgs{Mode: "XX", KeepTTL: true}).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return Redirect{}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return target, nil
}

// Ping checks store availability and returns the round-trip latency.
func (r *Registry) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := r.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return time.Since(start), nil
}
