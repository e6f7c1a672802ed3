package authcore

import (
	"context"
	"errors"
	"net/mail"
	"regexp"
	"strings"

	"github.com/MrEthical07/authcore/internal"
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]{3,30}$`)

type fieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func fieldConflict(base *Error, field string) *Error {
	return base.WithData(map[string]any{
		"validationErrors": []fieldError{{Field: field, Message: base.Message}},
	})
}

// Register creates a password account.
//
// With VerifyByEmail the account is enabled but unverified and a
// verification code is mailed. With VerifyByAdmin it is verified but
// disabled until an administrator enables it.
func (e *Engine) Register(ctx context.Context, in RegisterInput, role Role, mode RegistrationMode) (UserRecord, error) {
	if !role.Valid() {
		return UserRecord{}, ErrInvalidInput
	}
	if mode != VerifyByEmail && mode != VerifyByAdmin {
		return UserRecord{}, ErrInvalidInput
	}

	display := strings.TrimSpace(in.Username)
	email := normalizeEmail(in.Email)

	var invalid []fieldError
	if !usernamePattern.MatchString(display) {
		invalid = append(invalid, fieldError{Field: "username", Message: "username must be 3-30 letters, digits, '.', '_' or '-'"})
	}
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		invalid = append(invalid, fieldError{Field: "email", Message: "email is invalid"})
	}
	if err := e.hasher.CheckPolicy(in.Password); err != nil {
		invalid = append(invalid, fieldError{Field: "password", Message: err.Error()})
	}
	if len(invalid) > 0 {
		return UserRecord{}, ErrInvalidInput.WithData(map[string]any{"validationErrors": invalid})
	}

	username := strings.ToLower(display)
	taken, err := e.store.UsernameExists(ctx, username)
	if err != nil {
		return UserRecord{}, e.internal(err, "username lookup failed")
	}
	if taken {
		return UserRecord{}, fieldConflict(ErrUsernameAlreadyTaken, "username")
	}
	if _, err := e.store.GetUserByEmail(ctx, email); err == nil {
		return UserRecord{}, fieldConflict(ErrEmailAlreadyExists, "email")
	} else if !errors.Is(err, ErrStoreNotFound) {
		return UserRecord{}, e.internal(err, "user lookup failed")
	}

	hash, err := e.hasher.Hash(in.Password)
	if err != nil {
		return UserRecord{}, e.internal(err, "password hash failed")
	}

	nu := NewUser{
		Email:             email,
		Username:          username,
		UsernameDisplay:   display,
		UsernameShorthand: usernameShorthand(display),
		DisplayName:       strings.TrimSpace(in.DisplayName),
		Role:              role,
		PasswordHash:      hash,
		HasPassword:       true,
	}
	switch mode {
	case VerifyByEmail:
		code, err := internal.NewEmailVerificationCode()
		if err != nil {
			return UserRecord{}, e.internal(err, "token generation failed")
		}
		nu.Enabled = true
		nu.VerificationToken = code
		nu.VerificationExp = e.now().UTC().Add(e.config.Tokens.EmailVerificationTTL)
	case VerifyByAdmin:
		nu.EmailVerified = true
	}

	user, err := e.store.CreateUser(ctx, nu)
	if err != nil {
		switch {
		case errors.Is(err, ErrDuplicateUsername):
			return UserRecord{}, fieldConflict(ErrUsernameAlreadyTaken, "username")
		case errors.Is(err, ErrDuplicateEmail):
			return UserRecord{}, fieldConflict(ErrEmailAlreadyExists, "email")
		}
		return UserRecord{}, e.internal(err, "user create failed")
	}

	if mode == VerifyByEmail {
		e.sendVerificationMail(ctx, user, nu.VerificationToken)
	}

	e.metricInc(MetricAccountCreated)
	e.emitAudit(ctx, auditEventAccountCreated, true, user.ID, "", nil, func() map[string]string {
		return map[string]string{"source": "password", "role": string(role)}
	})
	return user, nil
}

// usernameShorthand is the two-letter avatar label derived from a username.
func usernameShorthand(username string) string {
	r := []rune(username)
	if len(r) > 2 {
		r = r[:2]
	}
	return strings.ToUpper(string(r))
}
