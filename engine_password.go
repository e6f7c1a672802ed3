package authcore

import (
	"context"
	"errors"
	"strings"

	"github.com/MrEthical07/authcore/password"
)

// ChangePassword replaces the password of a logged-in user after checking
// oldPassword. The hash swap also clears the lockout fields and any pending
// reset token, and every session of the user except keepSessionID is
// revoked.
//
// A wrong old password is ErrInvalidCredentials. It does not count towards
// the lockout, since the caller already holds a session.
func (e *Engine) ChangePassword(ctx context.Context, userID, keepSessionID, oldPassword, newPassword string) error {
	if strings.TrimSpace(userID) == "" || oldPassword == "" {
		return ErrInvalidInput
	}
	if err := e.hasher.CheckPolicy(newPassword); err != nil {
		e.passwordChangeFailed(ctx, userID, ErrInvalidPassword, "policy")
		return ErrInvalidPassword.WithData(map[string]any{"minLength": e.config.Password.MinLength})
	}

	user, err := e.store.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrStoreNotFound) {
			return ErrUserNotFound
		}
		return e.internal(err, "user lookup failed")
	}
	if !user.Enabled {
		e.passwordChangeFailed(ctx, userID, ErrAccountNotEnabled, "account_status")
		return ErrAccountNotEnabled
	}
	if !user.Credential.HasPassword || user.Credential.PasswordHash == "" {
		e.passwordChangeFailed(ctx, userID, ErrInvalidCredentials, "no_password")
		return ErrInvalidCredentials
	}

	ok, err := e.hasher.Verify(oldPassword, user.Credential.PasswordHash)
	if err != nil && !errors.Is(err, password.ErrTooLong) {
		return e.internal(err, "password verification failed")
	}
	if !ok {
		e.passwordChangeFailed(ctx, userID, ErrInvalidCredentials, "invalid_old")
		return ErrInvalidCredentials
	}

	hash, err := e.hasher.Hash(newPassword)
	if err != nil {
		return e.internal(err, "password hash failed")
	}

	swapped, err := e.store.ChangePassword(ctx, userID, user.Credential.PasswordHash, hash)
	if err != nil {
		if errors.Is(err, ErrStoreNotFound) {
			return ErrUserNotFound
		}
		return e.internal(err, "password update failed")
	}
	if !swapped {
		// Another change landed between the read and the write.
		e.passwordChangeFailed(ctx, userID, ErrInvalidCredentials, "concurrent_change")
		return ErrInvalidCredentials
	}

	if _, err := e.revokeOthers(ctx, userID, keepSessionID); err != nil {
		e.log.Error().Err(err).Str("user_id", userID).Msg("session revocation after password change failed")
	}

	e.metricInc(MetricPasswordChanged)
	e.emitAudit(ctx, auditEventPasswordChanged, true, userID, keepSessionID, nil, nil)
	return nil
}

func (e *Engine) passwordChangeFailed(ctx context.Context, userID string, err error, reason string) {
	e.emitAudit(ctx, auditEventPasswordChangeFailure, false, userID, "", err, func() map[string]string {
		return map[string]string{"reason": reason}
	})
}
