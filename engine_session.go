package authcore

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/authcore/session"
)

// sessionInvalidData marks an ErrNotAuthenticated caused by a fingerprint
// failure.
var sessionInvalidData = map[string]any{"notAuthorized": true, "sessionInvalid": true}

// EstablishSession creates a logged-in session for user, bound to the
// client IP from ctx and to a fresh device id.
func (e *Engine) EstablishSession(ctx context.Context, user AuthenticatedUser) (session.Established, error) {
	est, err := e.sessions.Establish(ctx, session.Identity{
		UserID:            user.UserID,
		Role:              string(user.Role),
		UsernameDisplay:   user.UsernameDisplay,
		UsernameShorthand: user.UsernameShorthand,
		Email:             user.Email,
		Picture:           user.Picture,
	}, ClientIPFromContext(ctx))
	if err != nil {
		return session.Established{}, e.internal(err, "session establish failed")
	}

	e.metricInc(MetricSessionCreated)
	e.emitAudit(ctx, auditEventSessionCreated, true, user.UserID, est.SessionID, nil, nil)
	return est, nil
}

// Authenticate loads the logged-in session sessionID, checks its
// fingerprint against deviceID and renews it when due. A fingerprint
// mismatch destroys the session.
func (e *Engine) Authenticate(ctx context.Context, sessionID, deviceID string) (*session.Session, error) {
	sess, err := e.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !sess.IsLogged {
		return nil, ErrNotAuthenticated
	}
	if err := e.ValidateFingerprint(ctx, sess, deviceID); err != nil {
		return nil, err
	}
	if _, err := e.TouchSession(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// GetSession returns the stored session or ErrNotAuthenticated.
func (e *Engine) GetSession(ctx context.Context, sessionID string) (*session.Session, error) {
	sess, err := e.sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			return nil, ErrNotAuthenticated
		}
		return nil, e.internal(err, "session load failed")
	}
	return sess, nil
}

// ValidateFingerprint compares the device id presented by the client with
// the one bound to sess. On mismatch the session is destroyed and the error
// carries notAuthorized and sessionInvalid.
func (e *Engine) ValidateFingerprint(ctx context.Context, sess *session.Session, deviceID string) error {
	err := e.sessions.ValidateFingerprint(ctx, sess, deviceID, ClientIPFromContext(ctx))
	switch {
	case err == nil:
		return nil
	case errors.Is(err, session.ErrFingerprintMismatch):
		e.metricInc(MetricFingerprintRejected)
		e.emitAudit(ctx, auditEventFingerprintRejected, false, sess.UserID, sess.ID, ErrNotAuthenticated, nil)
		e.log.Warn().Str("user_id", sess.UserID).Err(err).Msg("session fingerprint rejected")
		return ErrNotAuthenticated.WithData(sessionInvalidData)
	case errors.Is(err, session.ErrSessionNotFound):
		return ErrNotAuthenticated
	default:
		return e.internal(err, "fingerprint check failed")
	}
}

// TouchSession renews the session when the touch interval has passed. A
// session destroyed concurrently is reported as ErrNotAuthenticated.
func (e *Engine) TouchSession(ctx context.Context, sess *session.Session) (bool, error) {
	touched, err := e.sessions.Touch(ctx, sess)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			return false, ErrNotAuthenticated
		}
		return false, e.internal(err, "session touch failed")
	}
	return touched, nil
}

// ListActiveSessions returns one page of logged-in sessions. The caller's
// session is flagged as current.
func (e *Engine) ListActiveSessions(ctx context.Context, currentSessionID string, q session.ListQuery) (session.Page, error) {
	page, err := e.sessions.ListActive(ctx, currentSessionID, q)
	if err != nil {
		if errors.Is(err, session.ErrInvalidSort) {
			return session.Page{}, ErrInvalidInput.WithData(map[string]any{"sort": q.Sort})
		}
		return session.Page{}, e.internal(err, "session listing failed")
	}
	return page, nil
}

// RevokeUserSessions deletes every session of userID.
func (e *Engine) RevokeUserSessions(ctx context.Context, userID string) (int, error) {
	n, err := e.revokeUser(ctx, userID)
	if err != nil {
		return 0, e.internal(err, "session revocation failed")
	}
	return n, nil
}

func (e *Engine) revokeUser(ctx context.Context, userID string) (int, error) {
	return e.revokeOthers(ctx, userID, "")
}

func (e *Engine) revokeOthers(ctx context.Context, userID, keepSessionID string) (int, error) {
	n, err := e.sessions.RevokeOthers(ctx, userID, keepSessionID)
	if err != nil {
		return 0, err
	}
	if e.metrics != nil {
		e.metrics.Add(MetricSessionRevoked, uint64(n))
	}
	e.emitAudit(ctx, auditEventSessionsRevokedByUser, true, userID, "", nil, nil)
	return n, nil
}

// RevokeSession deletes another session by id. Revoking the caller's own
// session through this path is refused; use Logout instead.
func (e *Engine) RevokeSession(ctx context.Context, currentSessionID, targetSessionID string) error {
	err := e.sessions.RevokeByID(ctx, currentSessionID, targetSessionID)
	switch {
	case err == nil:
		e.metricInc(MetricSessionRevoked)
		e.emitAudit(ctx, auditEventSessionRevoked, true, "", targetSessionID, nil, nil)
		return nil
	case errors.Is(err, session.ErrCannotRevokeCurrent):
		return ErrCannotDeleteCurrentSession
	case errors.Is(err, session.ErrSessionNotFound):
		return ErrSessionNotFound
	default:
		return e.internal(err, "session revocation failed")
	}
}

// Logout destroys sessionID. Logging out of a missing session succeeds.
func (e *Engine) Logout(ctx context.Context, sessionID string) error {
	if err := e.sessions.Destroy(ctx, sessionID); err != nil {
		return e.internal(err, "logout failed")
	}
	e.metricInc(MetricLogout)
	e.emitAudit(ctx, auditEventLogout, true, "", sessionID, nil, nil)
	return nil
}

// Ping reports the session store round-trip latency.
func (e *Engine) Ping(ctx context.Context) (time.Duration, error) {
	d, err := e.sessions.Ping(ctx)
	if err != nil {
		return d, e.internal(err, "session store unavailable")
	}
	return d, nil
}

// StashRedirect keeps the post-login browser destinations of an OAuth flow
// on the caller's session, or on a short-lived anonymous one. It returns the
// id of the session holding them.
func (e *Engine) StashRedirect(ctx context.Context, sessionID string, target session.Redirect) (string, error) {
	id, err := e.sessions.StashRedirect(ctx, sessionID, target)
	if err != nil {
		return "", e.internal(err, "redirect stash failed")
	}
	return id, nil
}

// TakeRedirect returns and clears the stashed destinations.
func (e *Engine) TakeRedirect(ctx context.Context, sessionID string) (session.Redirect, error) {
	target, err := e.sessions.TakeRedirect(ctx, sessionID)
	if err != nil {
		return session.Redirect{}, e.internal(err, "redirect load failed")
	}
	return target, nil
}
