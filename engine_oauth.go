package authcore

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/authcore/internal"
	"github.com/MrEthical07/authcore/oauth"
	"github.com/redis/go-redis/v9"
)

const (
	pkceSecretBytes     = 64
	usernameMaxAttempts = 10
	usernameSuffixLen   = 3
	reconcileAttempts   = 3
)

var releaseLockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// BeginAuthorization starts the authorization-code flow for provider. The
// caller keeps State and CodeVerifier client-side and redirects the browser
// to RedirectURL.
func (e *Engine) BeginAuthorization(ctx context.Context, provider string) (AuthorizationStart, error) {
	p, err := e.provider(provider)
	if err != nil {
		return AuthorizationStart{}, e.oauthFailure(ctx, provider, err)
	}

	state, err := internal.NewHexSecret(pkceSecretBytes)
	if err != nil {
		return AuthorizationStart{}, e.oauthFailure(ctx, provider, err)
	}
	verifier, err := internal.NewHexSecret(pkceSecretBytes)
	if err != nil {
		return AuthorizationStart{}, e.oauthFailure(ctx, provider, err)
	}

	return AuthorizationStart{
		RedirectURL:  p.AuthURL(state, oauth.CodeChallenge(verifier)),
		State:        state,
		CodeVerifier: verifier,
	}, nil
}

// CompleteLogin finishes the flow started by BeginAuthorization and returns
// the local user bound to the provider identity, creating or linking one as
// needed.
//
// Every failure is reported as ErrOAuthLoginFailed, except a provider
// identity linked to a user whose email no longer matches, which is
// ErrOAuthAccountAlreadyLinked. Both are flagged for a browser redirect.
func (e *Engine) CompleteLogin(ctx context.Context, provider, code, returnedState, storedState, storedCodeVerifier string) (AuthenticatedUser, error) {
	p, err := e.provider(provider)
	if err != nil {
		return AuthenticatedUser{}, e.oauthFailure(ctx, provider, err)
	}

	if storedState == "" || returnedState == "" ||
		subtle.ConstantTimeCompare([]byte(storedState), []byte(returnedState)) != 1 {
		return AuthenticatedUser{}, e.oauthFailure(ctx, provider, errors.New("state mismatch"))
	}
	if code == "" || storedCodeVerifier == "" {
		return AuthenticatedUser{}, e.oauthFailure(ctx, provider, errors.New("missing code or verifier"))
	}

	callCtx, cancel := context.WithTimeout(ctx, e.config.OAuth.RequestTimeout)
	ident, err := oauth.Authenticate(callCtx, p, code, storedCodeVerifier)
	cancel()
	if err != nil {
		return AuthenticatedUser{}, e.oauthFailure(ctx, provider, err)
	}

	user, err := e.reconcileLocked(ctx, p.Name(), ident)
	if err != nil {
		if errors.Is(err, ErrOAuthAccountAlreadyLinked) {
			e.metricInc(MetricOAuthFailure)
			e.emitAudit(ctx, auditEventOAuthFailure, false, "", "", err, func() map[string]string {
				return map[string]string{"provider": string(p.Name())}
			})
			e.log.Warn().Str("provider", string(p.Name())).Str("external_id", ident.ExternalID).Msg("oauth identity linked to a different email")
			return AuthenticatedUser{}, ErrOAuthAccountAlreadyLinked.
				WithData(map[string]any{"provider": string(p.Name())}).
				WithRedirect(e.config.OAuth.ErrorRedirectURL)
		}
		return AuthenticatedUser{}, e.oauthFailure(ctx, provider, err)
	}

	if !user.Enabled {
		e.metricInc(MetricOAuthFailure)
		e.emitAudit(ctx, auditEventOAuthFailure, false, user.ID, "", ErrAccountNotEnabled, nil)
		return AuthenticatedUser{}, ErrAccountNotEnabled.WithRedirect(e.config.OAuth.ErrorRedirectURL)
	}

	e.metricInc(MetricOAuthSuccess)
	e.emitAudit(ctx, auditEventOAuthSuccess, true, user.ID, "", nil, func() map[string]string {
		return map[string]string{"provider": string(p.Name())}
	})
	return authenticatedFrom(user), nil
}

func (e *Engine) provider(name string) (oauth.Provider, error) {
	pn, ok := oauth.ParseProviderName(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", oauth.ErrUnknownProvider, name)
	}
	p, ok := e.providers[pn]
	if !ok {
		return nil, fmt.Errorf("provider %q is not configured", pn)
	}
	return p, nil
}

func (e *Engine) oauthFailure(ctx context.Context, provider string, cause error) *Error {
	label := provider
	if _, ok := oauth.ParseProviderName(provider); !ok {
		label = "unknown"
	}

	e.metricInc(MetricOAuthFailure)
	e.emitAudit(ctx, auditEventOAuthFailure, false, "", "", ErrOAuthLoginFailed, func() map[string]string {
		return map[string]string{"provider": label}
	})
	e.log.Warn().Err(cause).Str("provider", label).Msg("oauth login failed")

	return ErrOAuthLoginFailed.
		WithCause(cause).
		WithData(map[string]any{"provider": label}).
		WithRedirect(e.config.OAuth.ErrorRedirectURL)
}

/*
====================================
ACCOUNT RECONCILIATION
====================================
*/

// reconcileLocked serializes reconciliation of one provider identity across
// instances. The lock is best effort: when Redis is unreachable the store's
// unique constraints still keep the outcome to one user and one link.
func (e *Engine) reconcileLocked(ctx context.Context, provider oauth.ProviderName, ident oauth.Identity) (UserRecord, error) {
	key := e.config.OAuth.LockPrefix + string(provider) + ":" + ident.ExternalID
	release, err := e.acquireLock(ctx, key)
	if err != nil {
		e.log.Warn().Err(err).Str("provider", string(provider)).Msg("oauth reconcile lock unavailable")
	} else {
		defer release()
	}
	return e.reconcile(ctx, provider, ident)
}

func (e *Engine) acquireLock(ctx context.Context, key string) (func(), error) {
	token, err := internal.NewHexSecret(16)
	if err != nil {
		return nil, err
	}

	ttl := e.config.OAuth.LockTTL
	deadline := time.Now().Add(ttl)
	backoff := 10 * time.Millisecond

	for {
		ok, err := e.redis.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			return func() {
				// The caller's context may already be done.
				releaseCtx, cancel := context.WithTimeout(context.Background(), time.Second)
				defer cancel()
				if err := releaseLockScript.Run(releaseCtx, e.redis, []string{key}, token).Err(); err != nil {
					e.log.Warn().Err(err).Msg("oauth reconcile lock release failed")
				}
			}, nil
		}
		if time.Now().After(deadline) {
			return nil, errors.New("timed out waiting for reconcile lock")
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
		if backoff < 200*time.Millisecond {
			backoff *= 2
		}
	}
}

func (e *Engine) reconcile(ctx context.Context, provider oauth.ProviderName, ident oauth.Identity) (UserRecord, error) {
	email := normalizeEmail(ident.Email)

	for attempt := 0; attempt < reconcileAttempts; attempt++ {
		// An existing link decides the user.
		link, err := e.store.GetOAuthLink(ctx, string(provider), ident.ExternalID)
		switch {
		case err == nil:
			user, err := e.store.GetUserByID(ctx, link.UserID)
			if err != nil {
				return UserRecord{}, fmt.Errorf("load linked user: %w", err)
			}
			if !strings.EqualFold(user.Email, email) {
				return UserRecord{}, ErrOAuthAccountAlreadyLinked
			}
			return user, nil
		case !errors.Is(err, ErrStoreNotFound):
			return UserRecord{}, fmt.Errorf("load oauth link: %w", err)
		}

		newLink := OAuthLink{
			Provider:       string(provider),
			ProviderUserID: ident.ExternalID,
			CreatedAt:      e.now().UTC(),
		}

		// A local account with the same email gets the link attached.
		user, err := e.store.GetUserByEmail(ctx, email)
		switch {
		case err == nil:
			newLink.UserID = user.ID
			err := e.store.CreateOAuthLink(ctx, newLink)
			if errors.Is(err, ErrDuplicateOAuthLink) {
				continue
			}
			if err != nil {
				return UserRecord{}, fmt.Errorf("create oauth link: %w", err)
			}
			e.metricInc(MetricOAuthLinkCreated)
			return user, nil
		case !errors.Is(err, ErrStoreNotFound):
			return UserRecord{}, fmt.Errorf("load user by email: %w", err)
		}

		// Otherwise a new pre-verified account is created with its link.
		username, err := e.generateUsername(ctx, email)
		if err != nil {
			return UserRecord{}, err
		}
		created, err := e.store.CreateOAuthUser(ctx, NewUser{
			Email:             email,
			Username:          username,
			UsernameDisplay:   username,
			UsernameShorthand: usernameShorthand(username),
			DisplayName:       ident.Name,
			Picture:           ident.Picture,
			Role:              RoleUser,
			Enabled:           true,
			HasPassword:       false,
			EmailVerified:     true,
		}, newLink)
		if errors.Is(err, ErrDuplicateEmail) || errors.Is(err, ErrDuplicateOAuthLink) || errors.Is(err, ErrDuplicateUsername) {
			continue
		}
		if err != nil {
			return UserRecord{}, fmt.Errorf("create oauth user: %w", err)
		}

		e.metricInc(MetricOAuthUserCreated)
		e.metricInc(MetricAccountCreated)
		e.emitAudit(ctx, auditEventAccountCreated, true, created.ID, "", nil, func() map[string]string {
			return map[string]string{"source": string(provider), "role": string(RoleUser)}
		})
		return created, nil
	}

	return UserRecord{}, errors.New("oauth reconciliation did not converge")
}

// generateUsername derives a username from the email local part, appending
// random digits while the candidate is taken.
func (e *Engine) generateUsername(ctx context.Context, email string) (string, error) {
	base := usernameBase(email)

	candidate := base
	for i := 0; i < usernameMaxAttempts; i++ {
		taken, err := e.store.UsernameExists(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("username lookup: %w", err)
		}
		if !taken {
			return candidate, nil
		}
		digits, err := internal.RandomDigits(usernameSuffixLen)
		if err != nil {
			return "", err
		}
		candidate = base + digits
	}
	return "", errors.New("no free username after bounded attempts")
}

func usernameBase(email string) string {
	local, _, _ := strings.Cut(email, "@")

	var b strings.Builder
	for _, r := range strings.ToLower(local) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
		if b.Len() == 24 {
			break
		}
	}
	base := b.String()
	if len(base) < 3 {
		base = "user" + base
	}
	return base
}
