package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/MrEthical07/authcore"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestMapWriteError(t *testing.T) {
	tests := []struct {
		constraint string
		want       error
	}{
		{"users_email_key", authcore.ErrDuplicateEmail},
		{"users_username_key", authcore.ErrDuplicateUsername},
		{"oauth_links_pkey", authcore.ErrDuplicateOAuthLink},
	}
	for _, tt := range tests {
		err := mapWriteError(&pgconn.PgError{Code: uniqueViolation, ConstraintName: tt.constraint}, "insert")
		if !errors.Is(err, tt.want) {
			t.Fatalf("%s: expected %v, got %v", tt.constraint, tt.want, err)
		}
	}

	other := &pgconn.PgError{Code: "40001"}
	if err := mapWriteError(other, "insert"); !errors.As(err, new(*pgconn.PgError)) {
		t.Fatalf("expected wrapped pg error, got %v", err)
	}
}

func TestParseIDRejectsNonUUID(t *testing.T) {
	if _, err := parseID("missing"); !errors.Is(err, authcore.ErrStoreNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

// openTestStore connects to AUTHCORE_TEST_DATABASE_URL or skips.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("AUTHCORE_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("AUTHCORE_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	s, err := Open(ctx, dsn)
	if err != nil {
		t.Skipf("Skipping integration test: failed to connect to database: %v", err)
	}
	if err := s.Migrate(ctx); err != nil {
		s.Close()
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func uniqueUser(prefix string) authcore.NewUser {
	tag := uuid.NewString()[:8]
	return authcore.NewUser{
		Email:             fmt.Sprintf("%s-%s@example.com", prefix, tag),
		Username:          prefix + tag,
		UsernameDisplay:   prefix + tag,
		Role:              authcore.RoleUser,
		Enabled:           true,
		PasswordHash:      "hash",
		HasPassword:       true,
		VerificationToken: "abcd1234",
		VerificationExp:   time.Now().Add(time.Hour),
	}
}

func TestStoreIntegration(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	nu := uniqueUser("pg")
	u, err := s.CreateUser(ctx, nu)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	t.Cleanup(func() { _ = s.DeleteUser(context.Background(), u.ID) })

	dup := nu
	dup.Username = nu.Username + "x"
	if _, err := s.CreateUser(ctx, dup); !errors.Is(err, authcore.ErrDuplicateEmail) {
		t.Fatalf("expected duplicate email, got %v", err)
	}

	now := time.Now()
	fail := authcore.FailedLogin{UserID: u.ID, At: now, Decide: func(n int) (authcore.BlockClass, time.Time) {
		if n == 2 {
			return authcore.BlockShort, now.Add(time.Minute)
		}
		return authcore.BlockNone, time.Time{}
	}}
	for want := 1; want <= 2; want++ {
		c, err := s.RecordFailedLogin(ctx, fail)
		if err != nil || c.FailedLoginAttempts != want {
			t.Fatalf("expected %d failures, got %+v, %v", want, c, err)
		}
	}
	if c, err := s.RecordFailedLogin(ctx, fail); !errors.Is(err, authcore.ErrStoreAccountBlocked) || c.FailedLoginAttempts != 2 {
		t.Fatalf("expected blocked without increment, got %+v, %v", c, err)
	}
	got, err := s.GetUserByEmail(ctx, nu.Email)
	if err != nil || !got.Credential.Blocked || got.Credential.BlockClass != authcore.BlockShort || got.Credential.FailedLoginAttempts != 2 {
		t.Fatalf("unexpected blocked user %+v, %v", got.Credential, err)
	}

	if err := s.SetToken(ctx, authcore.TokenPasswordReset, u.ID, "reset-1", now.Add(time.Minute)); err != nil {
		t.Fatalf("set token: %v", err)
	}
	if ok, err := s.SetPasswordHash(ctx, u.ID, "stale", "next"); err != nil || ok {
		t.Fatalf("expected stale hash refused, got %v, %v", ok, err)
	}
	if ok, err := s.ChangePassword(ctx, u.ID, "hash", "changed"); err != nil || !ok {
		t.Fatalf("expected change, got %v, %v", ok, err)
	}
	got, _ = s.GetUserByID(ctx, u.ID)
	if got.Credential.PasswordHash != "changed" || got.Credential.Blocked || got.Credential.FailedLoginAttempts != 0 || got.ResetToken.Token != "" {
		t.Fatalf("unexpected state after change: %+v", got)
	}

	ok, err := s.ConsumeToken(ctx, authcore.TokenConsumption{Kind: authcore.TokenEmailVerification, UserID: u.ID, Token: "abcd1234"})
	if err != nil || !ok {
		t.Fatalf("expected consume, got %v, %v", ok, err)
	}
	ok, _ = s.ConsumeToken(ctx, authcore.TokenConsumption{Kind: authcore.TokenEmailVerification, UserID: u.ID, Token: "abcd1234"})
	if ok {
		t.Fatal("token consumed twice")
	}

	ou := uniqueUser("oauth")
	ou.EmailVerified = true
	link := authcore.OAuthLink{Provider: "google", ProviderUserID: "g-" + uuid.NewString()}
	created, err := s.CreateOAuthUser(ctx, ou, link)
	if err != nil {
		t.Fatalf("create oauth user: %v", err)
	}
	t.Cleanup(func() { _ = s.DeleteUser(context.Background(), created.ID) })

	again := uniqueUser("oauth")
	if _, err := s.CreateOAuthUser(ctx, again, link); !errors.Is(err, authcore.ErrDuplicateOAuthLink) {
		t.Fatalf("expected duplicate link, got %v", err)
	}
	if _, err := s.GetUserByEmail(ctx, again.Email); !errors.Is(err, authcore.ErrStoreNotFound) {
		t.Fatalf("rolled back user must not exist, got %v", err)
	}
}
