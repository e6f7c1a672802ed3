package authcore

import (
	"context"
)

const (
	auditEventLoginSuccess          = "login_success"
	auditEventLoginFailure          = "login_failure"
	auditEventAccountBlocked        = "account_blocked"
	auditEventAccountUnblocked      = "account_unblocked"
	auditEventOAuthSuccess          = "oauth_login_success"
	auditEventOAuthFailure          = "oauth_login_failure"
	auditEventAccountCreated        = "account_created"
	auditEventAccountStatusChange   = "account_status_change"
	auditEventAccountRoleChange     = "account_role_change"
	auditEventAccountDeleted        = "account_deleted"
	auditEventTokenIssued           = "token_issued"
	auditEventTokenConsumed         = "token_consumed"
	auditEventTokenRejected         = "token_rejected"
	auditEventSessionCreated        = "session_created"
	auditEventSessionRevoked        = "session_revoked"
	auditEventSessionsRevokedByUser = "sessions_revoked_by_user"
	auditEventFingerprintRejected   = "fingerprint_rejected"
	auditEventLogout                = "logout"
	auditEventPasswordChanged       = "password_changed"
	auditEventPasswordChangeFailure = "password_change_failure"
	auditEventAdminBootstrapped     = "admin_bootstrapped"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	name string,
	success bool,
	userID string,
	sessionID string,
	err error,
	attrsBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var attrs map[string]string
	if attrsBuilder != nil {
		attrs = attrsBuilder()
	}

	event := AuditEvent{
		At:        e.now().UTC(),
		Name:      name,
		UserID:    userID,
		SessionID: sessionID,
		ClientIP:  ClientIPFromContext(ctx),
		Success:   success,
		Attrs:     attrs,
	}
	if err != nil {
		event.Code = AsError(err).Code
	}

	e.audit.Emit(ctx, event)
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}
