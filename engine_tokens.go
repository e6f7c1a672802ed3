package authcore

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"math"
	"net/url"
	"strings"
	"time"

	"github.com/MrEthical07/authcore/internal"
)

type tokenErrors struct {
	invalid    *Error
	expired    *Error
	notExpired *Error
	unit       string
	unitSize   time.Duration
}

func (k TokenKind) failures() tokenErrors {
	if k == TokenPasswordReset {
		return tokenErrors{
			invalid:    ErrInvalidPasswordResetToken,
			expired:    ErrPasswordResetTokenExpired,
			notExpired: ErrPasswordResetTokenNotExpired,
			unit:       "minutes",
			unitSize:   time.Minute,
		}
	}
	return tokenErrors{
		invalid:    ErrInvalidEmailVerificationToken,
		expired:    ErrEmailVerificationTokenExpired,
		notExpired: ErrEmailVerificationTokenNotExpired,
		unit:       "hours",
		unitSize:   time.Hour,
	}
}

func (e *Engine) tokenTTL(kind TokenKind) time.Duration {
	if kind == TokenPasswordReset {
		return e.config.Tokens.PasswordResetTTL
	}
	return e.config.Tokens.EmailVerificationTTL
}

func currentToken(kind TokenKind, u UserRecord) (string, time.Time) {
	if kind == TokenPasswordReset {
		return u.ResetToken.Token, u.ResetToken.ExpiresAt
	}
	return u.EmailVerification.Token, u.EmailVerification.ExpiresAt
}

func newToken(kind TokenKind) (string, error) {
	switch kind {
	case TokenEmailVerification:
		return internal.NewEmailVerificationCode()
	case TokenPasswordReset:
		return internal.NewResetToken()
	default:
		return "", fmt.Errorf("unknown token kind %d", kind)
	}
}

// IssueToken generates a fresh token of kind for userID and stores it with
// its expiry, replacing any earlier token of the same kind.
func (e *Engine) IssueToken(ctx context.Context, kind TokenKind, userID string) (string, error) {
	if userID == "" {
		return "", ErrInvalidInput
	}
	token, err := newToken(kind)
	if err != nil {
		return "", e.internal(err, "token generation failed")
	}

	expiresAt := e.now().UTC().Add(e.tokenTTL(kind))
	if err := e.store.SetToken(ctx, kind, userID, token, expiresAt); err != nil {
		if errors.Is(err, ErrStoreNotFound) {
			return "", ErrUserNotFound
		}
		return "", e.internal(err, "token store failed")
	}

	e.metricInc(MetricTokenIssued)
	e.emitAudit(ctx, auditEventTokenIssued, true, userID, "", nil, func() map[string]string {
		return map[string]string{"kind": kind.String()}
	})
	return token, nil
}

// RequestReissue issues a new token only once the previous one has expired.
// While it is still live the caller gets a not-expired error carrying the
// remaining time, rounded up to hours for email verification and minutes
// for password reset.
func (e *Engine) RequestReissue(ctx context.Context, kind TokenKind, userID string) (string, error) {
	user, err := e.store.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrStoreNotFound) {
			return "", ErrUserNotFound
		}
		return "", e.internal(err, "user lookup failed")
	}
	return e.reissue(ctx, kind, user)
}

func (e *Engine) reissue(ctx context.Context, kind TokenKind, user UserRecord) (string, error) {
	token, expiresAt := currentToken(kind, user)
	now := e.now()
	if token != "" && now.Before(expiresAt) {
		te := kind.failures()
		remaining := int(math.Ceil(float64(expiresAt.Sub(now)) / float64(te.unitSize)))
		e.metricInc(MetricTokenThrottled)
		return "", te.notExpired.WithData(map[string]any{
			"remaining": remaining,
			"unit":      te.unit,
		})
	}
	return e.IssueToken(ctx, kind, user.ID)
}

// ConsumeToken validates c.Token against the stored token and, if it is
// live, clears it together with the change it authorizes. Two concurrent
// consumers of the same token cannot both succeed.
func (e *Engine) ConsumeToken(ctx context.Context, c TokenConsumption) error {
	te := c.Kind.failures()
	if c.Kind == TokenPasswordReset && c.NewPasswordHash == "" {
		return ErrInvalidInput
	}

	user, err := e.store.GetUserByID(ctx, c.UserID)
	if err != nil {
		if errors.Is(err, ErrStoreNotFound) {
			return te.invalid
		}
		return e.internal(err, "user lookup failed")
	}
	return e.consume(ctx, c, user)
}

func (e *Engine) consume(ctx context.Context, c TokenConsumption, user UserRecord) error {
	te := c.Kind.failures()
	stored, expiresAt := currentToken(c.Kind, user)

	if stored == "" || c.Token == "" || subtle.ConstantTimeCompare([]byte(stored), []byte(c.Token)) != 1 {
		e.rejectToken(ctx, c, te.invalid)
		return te.invalid
	}
	if !e.now().Before(expiresAt) {
		e.rejectToken(ctx, c, te.expired)
		return te.expired
	}

	ok, err := e.store.ConsumeToken(ctx, c)
	if err != nil {
		return e.internal(err, "token consume failed")
	}
	if !ok {
		e.rejectToken(ctx, c, te.invalid)
		return te.invalid
	}

	e.metricInc(MetricTokenConsumed)
	e.emitAudit(ctx, auditEventTokenConsumed, true, c.UserID, "", nil, func() map[string]string {
		return map[string]string{"kind": c.Kind.String()}
	})
	return nil
}

func (e *Engine) rejectToken(ctx context.Context, c TokenConsumption, err *Error) {
	e.metricInc(MetricTokenRejected)
	e.emitAudit(ctx, auditEventTokenRejected, false, c.UserID, "", err, func() map[string]string {
		return map[string]string{"kind": c.Kind.String()}
	})
}

/*
====================================
EMAIL VERIFICATION
====================================
*/

// RequestEmailVerification resends the verification code to email, subject
// to the reissue throttle.
func (e *Engine) RequestEmailVerification(ctx context.Context, email string) error {
	user, err := e.unverifiedUser(ctx, email)
	if err != nil {
		return err
	}
	token, err := e.reissue(ctx, TokenEmailVerification, user)
	if err != nil {
		return err
	}
	e.sendVerificationMail(ctx, user, token)
	return nil
}

// VerifyEmail marks the address verified when token matches the live code.
func (e *Engine) VerifyEmail(ctx context.Context, email, token string) error {
	user, err := e.unverifiedUser(ctx, email)
	if err != nil {
		return err
	}
	return e.consume(ctx, TokenConsumption{
		Kind:   TokenEmailVerification,
		UserID: user.ID,
		Token:  strings.ToLower(strings.TrimSpace(token)),
	}, user)
}

func (e *Engine) unverifiedUser(ctx context.Context, email string) (UserRecord, error) {
	email = normalizeEmail(email)
	if email == "" {
		return UserRecord{}, ErrInvalidInput
	}
	user, err := e.store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrStoreNotFound) {
			return UserRecord{}, ErrEmailNotFound
		}
		return UserRecord{}, e.internal(err, "user lookup failed")
	}
	if user.EmailVerification.Verified {
		return UserRecord{}, ErrEmailAlreadyVerified
	}
	return user, nil
}

func (e *Engine) sendVerificationMail(ctx context.Context, user UserRecord, token string) {
	hours := int(math.Ceil(e.config.Tokens.EmailVerificationTTL.Hours()))
	body := fmt.Sprintf("Your verification code is: %s\n\nThe code expires in %d hours.\n", token, hours)
	e.enqueueMail(ctx, user.ID, user.Email, e.config.Mail.VerificationSubject, body)
}

/*
====================================
PASSWORD RESET
====================================
*/

// RequestPasswordReset mails a reset link to email, subject to the reissue
// throttle.
func (e *Engine) RequestPasswordReset(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if email == "" {
		return ErrInvalidInput
	}
	user, err := e.store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrStoreNotFound) {
			return ErrEmailNotFound
		}
		return e.internal(err, "user lookup failed")
	}

	token, err := e.reissue(ctx, TokenPasswordReset, user)
	if err != nil {
		return err
	}

	minutes := int(math.Ceil(e.config.Tokens.PasswordResetTTL.Minutes()))
	body := fmt.Sprintf("Reset your password here: %s\n\nThe link expires in %d minutes.\n", e.resetLink(user.Email, token), minutes)
	e.enqueueMail(ctx, user.ID, user.Email, e.config.Mail.ResetSubject, body)
	return nil
}

func (e *Engine) resetLink(email, token string) string {
	q := url.Values{}
	q.Set("email", email)
	q.Set("token", token)
	return strings.TrimRight(e.config.Links.SiteURL, "/") + "/" +
		strings.TrimLeft(e.config.Links.ResetPath, "/") + "?" + q.Encode()
}

// ResetPassword sets newPassword when token matches the live reset token.
// The lockout is cleared and every session of the user is revoked.
func (e *Engine) ResetPassword(ctx context.Context, email, token, newPassword string) error {
	if err := e.hasher.CheckPolicy(newPassword); err != nil {
		return ErrInvalidPassword.WithData(map[string]any{"minLength": e.config.Password.MinLength})
	}

	email = normalizeEmail(email)
	user, err := e.store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrStoreNotFound) {
			return ErrEmailNotFound
		}
		return e.internal(err, "user lookup failed")
	}

	hash, err := e.hasher.Hash(newPassword)
	if err != nil {
		return e.internal(err, "password hash failed")
	}

	if err := e.consume(ctx, TokenConsumption{
		Kind:            TokenPasswordReset,
		UserID:          user.ID,
		Token:           strings.TrimSpace(token),
		NewPasswordHash: hash,
	}, user); err != nil {
		return err
	}

	if _, err := e.revokeUser(ctx, user.ID); err != nil {
		e.log.Error().Err(err).Str("user_id", user.ID).Msg("session revocation after password reset failed")
	}
	return nil
}

/*
====================================
MAIL
====================================
*/

// enqueueMail hands one message to the mail pool. Delivery failures are
// logged and counted but never reach the caller.
func (e *Engine) enqueueMail(ctx context.Context, userID, to, subject, body string) {
	timeout := e.config.Mail.SendTimeout
	accepted := e.mail.Submit(ctx, func(jobCtx context.Context) {
		sendCtx, cancel := context.WithTimeout(jobCtx, timeout)
		defer cancel()

		res, err := e.mailer.Send(sendCtx, to, subject, body)
		switch {
		case err != nil:
			e.metricInc(MetricMailFailed)
			e.log.Error().Err(err).Str("user_id", userID).Str("subject", subject).Msg("mail send failed")
		case res.MessageID == "":
			e.metricInc(MetricMailFailed)
			e.log.Warn().Str("user_id", userID).Str("subject", subject).Msg("mail transport returned no message id")
		default:
			e.metricInc(MetricMailSent)
			e.log.Debug().Str("user_id", userID).Str("message_id", res.MessageID).Msg("mail sent")
		}
	})
	if !accepted {
		e.metricInc(MetricMailDropped)
		e.log.Warn().Str("user_id", userID).Str("subject", subject).Msg("mail queue full, message dropped")
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
