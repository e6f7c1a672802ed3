package authcore

import (
	"context"
	"errors"
	"strconv"
)

// SetUserEnabled enables or disables an account. Disabling it revokes every
// session of the user.
func (e *Engine) SetUserEnabled(ctx context.Context, userID string, enabled bool) error {
	if err := e.store.SetEnabled(ctx, userID, enabled); err != nil {
		if errors.Is(err, ErrStoreNotFound) {
			return ErrUserNotFound
		}
		return e.internal(err, "account status update failed")
	}

	if !enabled {
		if _, err := e.revokeUser(ctx, userID); err != nil {
			return e.internal(err, "session revocation failed")
		}
	}

	e.emitAudit(ctx, auditEventAccountStatusChange, true, userID, "", nil, func() map[string]string {
		return map[string]string{"enabled": strconv.FormatBool(enabled)}
	})
	return nil
}

// SetUserRole changes a user's role. Sessions carry the role, so the user's
// sessions are revoked when it actually changes. Demoting the only admin is
// refused with ErrCannotDemoteLastAdmin.
func (e *Engine) SetUserRole(ctx context.Context, userID string, role Role) error {
	if !role.Valid() {
		return ErrInvalidInput
	}
	user, err := e.store.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrStoreNotFound) {
			return ErrUserNotFound
		}
		return e.internal(err, "user lookup failed")
	}
	if user.Role == role {
		return nil
	}

	if err := e.store.SetRole(ctx, userID, role); err != nil {
		switch {
		case errors.Is(err, ErrStoreNotFound):
			return ErrUserNotFound
		case errors.Is(err, ErrStoreLastAdmin):
			return ErrCannotDemoteLastAdmin
		}
		return e.internal(err, "role update failed")
	}
	if _, err := e.revokeUser(ctx, userID); err != nil {
		return e.internal(err, "session revocation failed")
	}

	e.emitAudit(ctx, auditEventAccountRoleChange, true, userID, "", nil, func() map[string]string {
		return map[string]string{"from": string(user.Role), "to": string(role)}
	})
	return nil
}

// DeleteUser removes a non-admin account together with its sessions.
func (e *Engine) DeleteUser(ctx context.Context, userID string) error {
	user, err := e.store.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrStoreNotFound) {
			return ErrUserNotFound
		}
		return e.internal(err, "user lookup failed")
	}
	if user.Role == RoleAdmin {
		return ErrCannotDeleteAdminUser
	}

	if err := e.store.DeleteUser(ctx, userID); err != nil {
		if errors.Is(err, ErrStoreNotFound) {
			return ErrUserNotFound
		}
		return e.internal(err, "user delete failed")
	}
	if _, err := e.revokeUser(ctx, userID); err != nil {
		return e.internal(err, "session revocation failed")
	}

	e.emitAudit(ctx, auditEventAccountDeleted, true, userID, "", nil, nil)
	return nil
}

// EnsureAdmin creates an enabled, verified admin from in unless an admin
// already exists. It reports whether an account was created.
func (e *Engine) EnsureAdmin(ctx context.Context, in RegisterInput) (bool, error) {
	n, err := e.store.CountUsersByRole(ctx, RoleAdmin)
	if err != nil {
		return false, e.internal(err, "admin count failed")
	}
	if n > 0 {
		return false, nil
	}

	user, err := e.Register(ctx, in, RoleAdmin, VerifyByAdmin)
	if err != nil {
		return false, err
	}
	if err := e.store.SetEnabled(ctx, user.ID, true); err != nil {
		return false, e.internal(err, "admin enable failed")
	}

	e.emitAudit(ctx, auditEventAdminBootstrapped, true, user.ID, "", nil, nil)
	e.log.Info().Str("user_id", user.ID).Str("email", user.Email).Msg("initial admin created")
	return true, nil
}
