// Package memory is an in-process [authcore.UserStore] for tests and local
// development. Every method holds one mutex, which makes each primitive
// atomic in the same way a single SQL statement is.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/MrEthical07/authcore"
	"github.com/google/uuid"
)

type linkKey struct {
	provider string
	external string
}

// Store keeps users and OAuth links in maps.
type Store struct {
	mu         sync.Mutex
	users      map[string]authcore.UserRecord
	byEmail    map[string]string
	byUsername map[string]string
	links      map[linkKey]authcore.OAuthLink
	now        func() time.Time
}

var _ authcore.UserStore = (*Store)(nil)

// New returns an empty Store.
func New() *Store {
	return &Store{
		users:      make(map[string]authcore.UserRecord),
		byEmail:    make(map[string]string),
		byUsername: make(map[string]string),
		links:      make(map[linkKey]authcore.OAuthLink),
		now:        time.Now,
	}
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (authcore.UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byEmail[strings.ToLower(email)]
	if !ok {
		return authcore.UserRecord{}, authcore.ErrStoreNotFound
	}
	return s.users[id], nil
}

func (s *Store) GetUserByID(_ context.Context, userID string) (authcore.UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return authcore.UserRecord{}, authcore.ErrStoreNotFound
	}
	return u, nil
}

func (s *Store) UsernameExists(_ context.Context, username string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.byUsername[strings.ToLower(username)]
	return ok, nil
}

func (s *Store) CreateUser(_ context.Context, nu authcore.NewUser) (authcore.UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.insertLocked(nu)
}

func (s *Store) insertLocked(nu authcore.NewUser) (authcore.UserRecord, error) {
	email := strings.ToLower(nu.Email)
	username := strings.ToLower(nu.Username)
	if _, ok := s.byEmail[email]; ok {
		return authcore.UserRecord{}, authcore.ErrDuplicateEmail
	}
	if _, ok := s.byUsername[username]; ok {
		return authcore.UserRecord{}, authcore.ErrDuplicateUsername
	}

	u := authcore.UserRecord{
		ID:                uuid.NewString(),
		Email:             email,
		Username:          username,
		UsernameDisplay:   nu.UsernameDisplay,
		UsernameShorthand: nu.UsernameShorthand,
		DisplayName:       nu.DisplayName,
		Picture:           nu.Picture,
		Role:              nu.Role,
		Enabled:           nu.Enabled,
		CreatedAt:         s.now().UTC(),
		Credential: authcore.Credential{
			PasswordHash: nu.PasswordHash,
			HasPassword:  nu.HasPassword,
		},
		EmailVerification: authcore.EmailVerification{
			Verified: nu.EmailVerified,
		},
	}
	if !nu.EmailVerified {
		u.EmailVerification.Token = nu.VerificationToken
		u.EmailVerification.ExpiresAt = nu.VerificationExp
	}

	s.users[u.ID] = u
	s.byEmail[email] = u.ID
	s.byUsername[username] = u.ID
	return u, nil
}

func (s *Store) SetEnabled(_ context.Context, userID string, enabled bool) error {
	return s.update(userID, func(u *authcore.UserRecord) {
		u.Enabled = enabled
	})
}

func (s *Store) SetRole(_ context.Context, userID string, role authcore.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return authcore.ErrStoreNotFound
	}
	if u.Role == authcore.RoleAdmin && role != authcore.RoleAdmin && s.countLocked(authcore.RoleAdmin) == 1 {
		return authcore.ErrStoreLastAdmin
	}
	u.Role = role
	s.users[userID] = u
	return nil
}

func (s *Store) CountUsersByRole(_ context.Context, role authcore.Role) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.countLocked(role), nil
}

func (s *Store) countLocked(role authcore.Role) int {
	n := 0
	for _, u := range s.users {
		if u.Role == role {
			n++
		}
	}
	return n
}

func (s *Store) DeleteUser(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return authcore.ErrStoreNotFound
	}
	delete(s.users, userID)
	delete(s.byEmail, u.Email)
	delete(s.byUsername, u.Username)
	for k, l := range s.links {
		if l.UserID == userID {
			delete(s.links, k)
		}
	}
	return nil
}

func (s *Store) RecordFailedLogin(_ context.Context, f authcore.FailedLogin) (authcore.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[f.UserID]
	if !ok {
		return authcore.Credential{}, authcore.ErrStoreNotFound
	}
	if !f.Apply(&u.Credential) {
		return u.Credential, authcore.ErrStoreAccountBlocked
	}
	s.users[u.ID] = u
	return u.Credential, nil
}

func (s *Store) ClearLockout(_ context.Context, userID string) error {
	return s.update(userID, clearLockout)
}

func (s *Store) SetPasswordHash(_ context.Context, userID, currentHash, newHash string) (bool, error) {
	return s.swapHash(userID, currentHash, newHash, nil)
}

func (s *Store) ChangePassword(_ context.Context, userID, currentHash, newHash string) (bool, error) {
	return s.swapHash(userID, currentHash, newHash, func(u *authcore.UserRecord) {
		clearLockout(u)
		u.ResetToken = authcore.ResetToken{}
	})
}

func (s *Store) swapHash(userID, currentHash, newHash string, also func(u *authcore.UserRecord)) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return false, authcore.ErrStoreNotFound
	}
	if u.Credential.PasswordHash != currentHash {
		return false, nil
	}
	u.Credential.PasswordHash = newHash
	u.Credential.HasPassword = true
	if also != nil {
		also(&u)
	}
	s.users[userID] = u
	return true, nil
}

func clearLockout(u *authcore.UserRecord) {
	u.Credential.FailedLoginAttempts = 0
	u.Credential.Blocked = false
	u.Credential.BlockClass = authcore.BlockNone
	u.Credential.BlockExpiresAt = time.Time{}
}

func (s *Store) SetToken(_ context.Context, kind authcore.TokenKind, userID, token string, expiresAt time.Time) error {
	return s.update(userID, func(u *authcore.UserRecord) {
		switch kind {
		case authcore.TokenEmailVerification:
			u.EmailVerification.Token = token
			u.EmailVerification.ExpiresAt = expiresAt
		case authcore.TokenPasswordReset:
			u.ResetToken.Token = token
			u.ResetToken.ExpiresAt = expiresAt
		}
	})
}

func (s *Store) ConsumeToken(_ context.Context, c authcore.TokenConsumption) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[c.UserID]
	if !ok {
		return false, nil
	}

	switch c.Kind {
	case authcore.TokenEmailVerification:
		if u.EmailVerification.Token == "" || u.EmailVerification.Token != c.Token {
			return false, nil
		}
		u.EmailVerification = authcore.EmailVerification{Verified: true}
	case authcore.TokenPasswordReset:
		if u.ResetToken.Token == "" || u.ResetToken.Token != c.Token {
			return false, nil
		}
		u.ResetToken = authcore.ResetToken{}
		u.Credential.PasswordHash = c.NewPasswordHash
		u.Credential.HasPassword = true
		clearLockout(&u)
	default:
		return false, nil
	}

	s.users[u.ID] = u
	return true, nil
}

func (s *Store) GetOAuthLink(_ context.Context, provider, providerUserID string) (authcore.OAuthLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.links[linkKey{strings.ToLower(provider), providerUserID}]
	if !ok {
		return authcore.OAuthLink{}, authcore.ErrStoreNotFound
	}
	return l, nil
}

func (s *Store) CreateOAuthLink(_ context.Context, link authcore.OAuthLink) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[link.UserID]; !ok {
		return authcore.ErrStoreNotFound
	}
	return s.linkLocked(link)
}

func (s *Store) linkLocked(link authcore.OAuthLink) error {
	k := linkKey{strings.ToLower(link.Provider), link.ProviderUserID}
	if _, ok := s.links[k]; ok {
		return authcore.ErrDuplicateOAuthLink
	}
	link.Provider = k.provider
	if link.CreatedAt.IsZero() {
		link.CreatedAt = s.now().UTC()
	}
	s.links[k] = link
	return nil
}

// CreateOAuthUser inserts the user and the link under one lock, so either
// both exist afterwards or neither does.
func (s *Store) CreateOAuthUser(_ context.Context, nu authcore.NewUser, link authcore.OAuthLink) (authcore.UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.links[linkKey{strings.ToLower(link.Provider), link.ProviderUserID}]; ok {
		return authcore.UserRecord{}, authcore.ErrDuplicateOAuthLink
	}
	u, err := s.insertLocked(nu)
	if err != nil {
		return authcore.UserRecord{}, err
	}
	link.UserID = u.ID
	if err := s.linkLocked(link); err != nil {
		return authcore.UserRecord{}, err
	}
	return u, nil
}

// Links returns the number of stored OAuth links.
func (s *Store) Links() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.links)
}

// Users returns the number of stored users.
func (s *Store) Users() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users)
}

func (s *Store) update(userID string, fn func(u *authcore.UserRecord)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return authcore.ErrStoreNotFound
	}
	fn(&u)
	s.users[userID] = u
	return nil
}
