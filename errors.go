package authcore

import (
	"errors"
	"net/http"
)

// Kind classifies a domain [Error] by the class of failure it reports.
type Kind uint8

const (
	// KindServer is an unexpected internal failure. Callers only ever see a generic message.
	KindServer Kind = iota
	// KindValidation is malformed input the caller can fix.
	KindValidation
	// KindAuthentication means identity, credential or token was not established.
	KindAuthentication
	// KindForbidden means identity was established but the action is disallowed.
	KindForbidden
	// KindConflict is a state conflict such as a duplicate username.
	KindConflict
	// KindNotFound means a referenced entity is absent.
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthentication:
		return "authentication"
	case KindForbidden:
		return "forbidden"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	default:
		return "server"
	}
}

// HTTPStatus maps the kind to the status class used at the transport boundary.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindConflict:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Stable machine-readable error codes.
const (
	CodeInvalidCredentials                = "INVALID_CREDENTIALS"
	CodeAccountNotEnabled                 = "ACCOUNT_NOT_ENABLED"
	CodeAccountBlocked                    = "ACCOUNT_BLOCKED"
	CodeEmailNotVerified                  = "EMAIL_NOT_VERIFIED"
	CodeEmailNotFound                     = "EMAIL_NOT_FOUND"
	CodeUserNotFound                      = "USER_NOT_FOUND"
	CodeEmailAlreadyVerified              = "EMAIL_ALREADY_VERIFIED"
	CodeEmailAlreadyExists                = "EMAIL_ALREADY_EXISTS"
	CodeUsernameAlreadyTaken              = "USERNAME_ALREADY_TAKEN"
	CodeInvalidEmailVerificationToken     = "INVALID_EMAIL_VERIFICATION_TOKEN"
	CodeEmailVerificationTokenExpired     = "EMAIL_VERIFICATION_TOKEN_EXPIRED"
	CodeEmailVerificationTokenNotExpired  = "EMAIL_VERIFICATION_TOKEN_NOT_EXPIRED"
	CodeInvalidPasswordResetToken         = "INVALID_PASSWORD_RESET_TOKEN"
	CodePasswordResetTokenExpired         = "PASSWORD_RESET_TOKEN_EXPIRED"
	CodePasswordResetTokenNotExpired      = "PASSWORD_RESET_TOKEN_NOT_EXPIRED"
	CodeInvalidPassword                   = "INVALID_PASSWORD"
	CodeInvalidInput                      = "INVALID_INPUT"
	CodeOAuthLoginFailed                  = "OAUTH_LOGIN_FAILED"
	CodeOAuthAccountAlreadyLinked         = "OAUTH_ACCOUNT_ALREADY_LINKED"
	CodeNotAuthenticated                  = "NOT_AUTHENTICATED"
	CodeForbidden                         = "FORBIDDEN"
	CodeCannotDemoteLastAdmin             = "CANNOT_DEMOTE_LAST_ADMIN"
	CodeCannotDeleteCurrentSession        = "CANNOT_DELETE_CURRENT_SESSION"
	CodeCannotDeleteAdminUser             = "CANNOT_DELETE_ADMIN_USER"
	CodeSessionNotFound                   = "SESSION_NOT_FOUND"
	CodeInternalServerError               = "INTERNAL_SERVER_ERROR"
)

// Error is the tagged failure returned by every Engine operation.
//
// errors.Is matches two *Error values by Code, so a data-bearing instance
// still matches its package-level sentinel.
type Error struct {
	Kind           Kind
	Code           string
	Message        string
	ShouldRedirect bool
	RedirectURL    string
	Data           map[string]any

	cause error
}

func newError(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.Code + ": " + e.Message + ": " + e.cause.Error()
	}
	return e.Code + ": " + e.Message
}

// Unwrap exposes the internal cause. It is meant for logs, never for responses.
func (e *Error) Unwrap() error { return e.cause }

// Is reports whether target is an *Error carrying the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || t == nil {
		return false
	}
	return t.Code == e.Code
}

func (e *Error) clone() *Error {
	next := *e
	if e.Data != nil {
		next.Data = make(map[string]any, len(e.Data))
		for k, v := range e.Data {
			next.Data[k] = v
		}
	}
	return &next
}

// WithData returns a copy of e carrying data.
func (e *Error) WithData(data map[string]any) *Error {
	next := e.clone()
	next.Data = data
	return next
}

// WithCause returns a copy of e wrapping cause.
func (e *Error) WithCause(cause error) *Error {
	next := e.clone()
	next.cause = cause
	return next
}

// WithRedirect returns a copy of e flagged for a browser redirect to url.
func (e *Error) WithRedirect(url string) *Error {
	next := e.clone()
	next.ShouldRedirect = url != ""
	next.RedirectURL = url
	return next
}

// AsError extracts the domain error from err. Any other error is reported
// as a server error wrapping it.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var domain *Error
	if errors.As(err, &domain) {
		return domain
	}
	return ErrInternal.WithCause(err)
}

var (
	// ErrInvalidCredentials is returned for an unknown email and for a wrong password alike.
	ErrInvalidCredentials = newError(KindAuthentication, CodeInvalidCredentials, "invalid credentials")
	// ErrAccountNotEnabled is returned when the account is disabled.
	ErrAccountNotEnabled = newError(KindForbidden, CodeAccountNotEnabled, "account is not enabled")
	// ErrAccountBlocked is returned while a lockout block is active.
	ErrAccountBlocked = newError(KindForbidden, CodeAccountBlocked, "account is temporarily blocked")
	// ErrEmailNotVerified is returned by login until the email is verified.
	ErrEmailNotVerified = newError(KindForbidden, CodeEmailNotVerified, "email is not verified")
	// ErrEmailNotFound is returned by email-addressed flows for an unknown address.
	ErrEmailNotFound = newError(KindNotFound, CodeEmailNotFound, "email not found")
	// ErrUserNotFound is returned by id-addressed admin flows.
	ErrUserNotFound = newError(KindNotFound, CodeUserNotFound, "user not found")
	// ErrEmailAlreadyVerified is returned when verification is requested for a verified address.
	ErrEmailAlreadyVerified = newError(KindConflict, CodeEmailAlreadyVerified, "email is already verified")
	// ErrEmailAlreadyExists is returned by registration for a taken email.
	ErrEmailAlreadyExists = newError(KindConflict, CodeEmailAlreadyExists, "email already exists")
	// ErrUsernameAlreadyTaken is returned by registration for a taken username.
	ErrUsernameAlreadyTaken = newError(KindConflict, CodeUsernameAlreadyTaken, "username already taken")

	ErrInvalidEmailVerificationToken    = newError(KindAuthentication, CodeInvalidEmailVerificationToken, "invalid email verification token")
	ErrEmailVerificationTokenExpired    = newError(KindAuthentication, CodeEmailVerificationTokenExpired, "email verification token expired")
	ErrEmailVerificationTokenNotExpired = newError(KindForbidden, CodeEmailVerificationTokenNotExpired, "email verification token has not expired yet")
	ErrInvalidPasswordResetToken        = newError(KindAuthentication, CodeInvalidPasswordResetToken, "invalid password reset token")
	ErrPasswordResetTokenExpired        = newError(KindAuthentication, CodePasswordResetTokenExpired, "password reset token expired")
	ErrPasswordResetTokenNotExpired     = newError(KindForbidden, CodePasswordResetTokenNotExpired, "password reset token has not expired yet")

	// ErrInvalidPassword is returned when a new password does not meet the policy.
	ErrInvalidPassword = newError(KindValidation, CodeInvalidPassword, "password does not meet requirements")
	// ErrInvalidInput is returned for malformed arguments.
	ErrInvalidInput = newError(KindValidation, CodeInvalidInput, "invalid input")

	// ErrOAuthLoginFailed is the single provider-agnostic failure of the OAuth flow.
	ErrOAuthLoginFailed = newError(KindAuthentication, CodeOAuthLoginFailed, "could not sign in with the identity provider")
	// ErrOAuthAccountAlreadyLinked is returned when the linked user's email no longer matches the provider's.
	ErrOAuthAccountAlreadyLinked = newError(KindAuthentication, CodeOAuthAccountAlreadyLinked, "this provider account is already linked to another user")

	// ErrNotAuthenticated is returned when no valid session backs the request.
	ErrNotAuthenticated = newError(KindAuthentication, CodeNotAuthenticated, "not authenticated")
	// ErrForbidden is returned when the session's role may not perform the action.
	ErrForbidden = newError(KindForbidden, CodeForbidden, "not authorized")
	// ErrCannotDeleteCurrentSession is returned when revoking the caller's own session through the admin path.
	ErrCannotDeleteCurrentSession = newError(KindConflict, CodeCannotDeleteCurrentSession, "cannot delete the current session")
	// ErrSessionNotFound is returned when revoking a session that does not exist.
	ErrSessionNotFound = newError(KindNotFound, CodeSessionNotFound, "session not found")
	// ErrCannotDeleteAdminUser is returned when deleting an administrator.
	ErrCannotDeleteAdminUser = newError(KindConflict, CodeCannotDeleteAdminUser, "cannot delete an admin user")
	// ErrCannotDemoteLastAdmin is returned when a role change would leave no administrator.
	ErrCannotDemoteLastAdmin = newError(KindConflict, CodeCannotDemoteLastAdmin, "cannot demote the last admin user")

	// ErrInternal is the generic server failure.
	ErrInternal = newError(KindServer, CodeInternalServerError, "internal server error")
)

// Store sentinels. UserStore implementations return these (optionally wrapped).
var (
	// ErrStoreNotFound reports a missing user or link.
	ErrStoreNotFound = errors.New("store: not found")
	// ErrStoreAccountBlocked reports a failed login recorded against an
	// account whose block is still in force.
	ErrStoreAccountBlocked = errors.New("store: account blocked")
	// ErrStoreLastAdmin reports a role change that would leave no admin.
	ErrStoreLastAdmin = errors.New("store: last admin")
	// ErrDuplicateEmail reports an email uniqueness violation.
	ErrDuplicateEmail = errors.New("store: duplicate email")
	// ErrDuplicateUsername reports a username uniqueness violation.
	ErrDuplicateUsername = errors.New("store: duplicate username")
	// ErrDuplicateOAuthLink reports a (provider, provider user id) uniqueness violation.
	ErrDuplicateOAuthLink = errors.New("store: duplicate oauth link")
)
