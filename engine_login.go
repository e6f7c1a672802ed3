package authcore

import (
	"context"
	"errors"
	"math"
	"slices"
	"time"

	"github.com/MrEthical07/authcore/internal/lockout"
	"github.com/MrEthical07/authcore/password"
)

// VerifyLogin authenticates email and password. When roles is non-empty the
// user must hold one of them, otherwise the account is treated as unknown.
//
// Checks run in a fixed order: unknown account, disabled, blocked, wrong
// password, unverified email. A wrong password increments the failure
// counter and may block the account; a blocked account is rejected before
// its password is looked at, so it never accumulates further failures.
func (e *Engine) VerifyLogin(ctx context.Context, email, plain string, roles ...Role) (AuthenticatedUser, error) {
	start := time.Now()
	defer func() {
		if e.metrics != nil {
			e.metrics.Observe(MetricLoginLatency, time.Since(start))
		}
	}()

	user, err := e.loginCandidate(ctx, email, roles)
	if err != nil {
		e.loginFailed(ctx, "", err)
		return AuthenticatedUser{}, err
	}

	if !user.Enabled {
		e.loginFailed(ctx, user.ID, ErrAccountNotEnabled)
		return AuthenticatedUser{}, ErrAccountNotEnabled
	}

	now := e.now()
	if user.Credential.BlockedAt(now) {
		err := e.blockedError(user.Credential.BlockClass, user.Credential.BlockExpiresAt, now)
		e.loginFailed(ctx, user.ID, err)
		return AuthenticatedUser{}, err
	}

	ok, err := e.hasher.Verify(plain, user.Credential.PasswordHash)
	if err != nil && !errors.Is(err, password.ErrTooLong) {
		return AuthenticatedUser{}, e.internal(err, "password verification failed")
	}
	if !ok {
		err := e.recordFailure(ctx, user.ID)
		e.loginFailed(ctx, user.ID, err)
		return AuthenticatedUser{}, err
	}

	if !user.EmailVerification.Verified {
		token, err := e.IssueToken(ctx, TokenEmailVerification, user.ID)
		if err != nil {
			return AuthenticatedUser{}, err
		}
		e.sendVerificationMail(ctx, user, token)

		e.metricInc(MetricEmailNotVerified)
		notVerified := ErrEmailNotVerified.WithData(map[string]any{
			"isEmailVerified": false,
			"email":           user.Email,
		})
		e.loginFailed(ctx, user.ID, notVerified)
		return AuthenticatedUser{}, notVerified
	}

	if user.Credential.FailedLoginAttempts > 0 || user.Credential.Blocked {
		if err := e.store.ClearLockout(ctx, user.ID); err != nil {
			return AuthenticatedUser{}, e.internal(err, "lockout reset failed")
		}
	}

	if e.config.Password.UpgradeOnLogin && e.hasher.NeedsRehash(user.Credential.PasswordHash) {
		e.upgradeHash(ctx, user.ID, user.Credential.PasswordHash, plain)
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, user.ID, "", nil, nil)
	return authenticatedFrom(user), nil
}

func (e *Engine) loginCandidate(ctx context.Context, email string, roles []Role) (UserRecord, error) {
	email = normalizeEmail(email)
	if email == "" {
		return UserRecord{}, ErrInvalidCredentials
	}

	user, err := e.store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrStoreNotFound) {
			return UserRecord{}, ErrInvalidCredentials
		}
		return UserRecord{}, e.internal(err, "user lookup failed")
	}
	if !user.Credential.HasPassword || user.Credential.PasswordHash == "" {
		return UserRecord{}, ErrInvalidCredentials
	}
	if len(roles) > 0 && !slices.Contains(roles, user.Role) {
		return UserRecord{}, ErrInvalidCredentials
	}
	return user, nil
}

// recordFailure counts one wrong password and applies the block the new
// count reaches. The store refuses the increment while a block is in force,
// so concurrent failures cannot skip a lockout stage.
func (e *Engine) recordFailure(ctx context.Context, userID string) error {
	now := e.now().UTC()
	applied := BlockNone
	cred, err := e.store.RecordFailedLogin(ctx, FailedLogin{
		UserID: userID,
		At:     now,
		Decide: func(failures int) (BlockClass, time.Time) {
			decision := e.lockout.Decide(failures, now)
			switch decision.Level {
			case lockout.LockedShort:
				applied = BlockShort
			case lockout.LockedLong:
				applied = BlockLong
			default:
				applied = BlockNone
			}
			return applied, decision.ExpiresAt
		},
	})
	switch {
	case errors.Is(err, ErrStoreAccountBlocked):
		return e.blockedError(cred.BlockClass, cred.BlockExpiresAt, now)
	case err != nil:
		return e.internal(err, "failed login record failed")
	case applied == BlockNone:
		return ErrInvalidCredentials
	}

	e.metricInc(MetricAccountBlocked)
	e.emitAudit(ctx, auditEventAccountBlocked, true, userID, "", nil, func() map[string]string {
		return map[string]string{"class": applied.String()}
	})
	e.log.Warn().Str("user_id", userID).Str("class", applied.String()).Int("failures", cred.FailedLoginAttempts).Msg("account blocked")

	return e.blockedError(applied, cred.BlockExpiresAt, now)
}

// upgradeHash replaces an outdated hash after a successful login. It never
// fails the login; a concurrent password change wins the compare-and-set.
func (e *Engine) upgradeHash(ctx context.Context, userID, current, plain string) {
	next, err := e.hasher.Hash(plain)
	if err != nil {
		e.log.Warn().Err(err).Str("user_id", userID).Msg("password hash upgrade skipped")
		return
	}
	ok, err := e.store.SetPasswordHash(ctx, userID, current, next)
	if err != nil {
		e.log.Warn().Err(err).Str("user_id", userID).Msg("password hash upgrade failed")
		return
	}
	if ok {
		e.metricInc(MetricPasswordRehashed)
	}
}

func (e *Engine) blockedError(class BlockClass, expiresAt, now time.Time) *Error {
	total := e.config.Lockout.ShortDuration
	if class == BlockLong {
		total = e.config.Lockout.LongDuration
	}

	blockTime, unit := int(math.Ceil(total.Minutes())), "minutes"
	if total >= time.Hour && total%time.Hour == 0 {
		blockTime, unit = int(total.Hours()), "hours"
	}

	return ErrAccountBlocked.WithData(map[string]any{
		"blockDurationClass": class.String(),
		"blockTime":          blockTime,
		"blockTimeUnit":      unit,
		"remainingSeconds":   int(math.Ceil(expiresAt.Sub(now).Seconds())),
		"blockExpiresAt":     expiresAt.UTC(),
	})
}

func (e *Engine) loginFailed(ctx context.Context, userID string, err error) {
	e.metricInc(MetricLoginFailure)
	e.emitAudit(ctx, auditEventLoginFailure, false, userID, "", err, nil)
}

// UnblockAccount lifts any block on userID and resets its failure counter.
func (e *Engine) UnblockAccount(ctx context.Context, userID string) error {
	if err := e.store.ClearLockout(ctx, userID); err != nil {
		if errors.Is(err, ErrStoreNotFound) {
			return ErrUserNotFound
		}
		return e.internal(err, "lockout reset failed")
	}
	e.emitAudit(ctx, auditEventAccountUnblocked, true, userID, "", nil, nil)
	return nil
}
