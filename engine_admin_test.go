package authcore_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrEthical07/authcore"
)

func TestDeleteUserRefusesAdmin(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	admin, err := env.engine.Register(ctx, authcore.RegisterInput{
		Username: "root",
		Email:    "root@example.com",
		Password: testPassword,
	}, authcore.RoleAdmin, authcore.VerifyByAdmin)
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	if err := env.engine.DeleteUser(ctx, admin.ID); !errors.Is(err, authcore.ErrCannotDeleteAdminUser) {
		t.Fatalf("expected cannot delete admin, got %v", err)
	}
	if err := env.engine.DeleteUser(ctx, "missing"); !errors.Is(err, authcore.ErrUserNotFound) {
		t.Fatalf("expected user not found, got %v", err)
	}
}

func TestDeleteUserRevokesSessions(t *testing.T) {
	env := newTestEnv(t, nil)
	u := env.registerVerified(t, "alice", "alice@example.com")
	ctx := context.Background()
	est := loginAndEstablish(t, env, ctx, "alice@example.com")

	if err := env.engine.DeleteUser(ctx, u.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := env.engine.GetSession(ctx, est.SessionID); !errors.Is(err, authcore.ErrNotAuthenticated) {
		t.Fatalf("expected session revoked, got %v", err)
	}
	if _, err := env.engine.VerifyLogin(ctx, "alice@example.com", testPassword); !errors.Is(err, authcore.ErrInvalidCredentials) {
		t.Fatalf("expected deleted user unknown, got %v", err)
	}
}

func TestSetUserRoleRevokesOnChange(t *testing.T) {
	env := newTestEnv(t, nil)
	u := env.registerVerified(t, "alice", "alice@example.com")
	ctx := context.Background()
	est := loginAndEstablish(t, env, ctx, "alice@example.com")

	if err := env.engine.SetUserRole(ctx, u.ID, authcore.RoleUser); err != nil {
		t.Fatalf("unchanged role: %v", err)
	}
	if _, err := env.engine.GetSession(ctx, est.SessionID); err != nil {
		t.Fatalf("unchanged role must keep sessions: %v", err)
	}

	if err := env.engine.SetUserRole(ctx, u.ID, authcore.RoleManager); err != nil {
		t.Fatalf("set role: %v", err)
	}
	if env.user(t, u.ID).Role != authcore.RoleManager {
		t.Fatal("role not stored")
	}
	if _, err := env.engine.GetSession(ctx, est.SessionID); !errors.Is(err, authcore.ErrNotAuthenticated) {
		t.Fatalf("expected sessions revoked on role change, got %v", err)
	}
	if err := env.engine.SetUserRole(ctx, u.ID, authcore.Role("ROOT")); !errors.Is(err, authcore.ErrInvalidInput) {
		t.Fatalf("expected invalid role, got %v", err)
	}
}

func TestDisableRevokesSessions(t *testing.T) {
	env := newTestEnv(t, nil)
	u := env.registerVerified(t, "alice", "alice@example.com")
	ctx := context.Background()
	est := loginAndEstablish(t, env, ctx, "alice@example.com")

	if err := env.engine.SetUserEnabled(ctx, u.ID, false); err != nil {
		t.Fatalf("disable: %v", err)
	}
	if _, err := env.engine.GetSession(ctx, est.SessionID); !errors.Is(err, authcore.ErrNotAuthenticated) {
		t.Fatalf("expected sessions revoked on disable, got %v", err)
	}
	if err := env.engine.SetUserEnabled(ctx, "missing", true); !errors.Is(err, authcore.ErrUserNotFound) {
		t.Fatalf("expected user not found, got %v", err)
	}
}

func TestAuditEventsReachSink(t *testing.T) {
	sink := authcore.NewChannelSink(64)
	env := newTestEnv(t, func(cfg *authcore.Config, b *authcore.Builder) {
		cfg.Audit.Enabled = true
		b.WithAuditSink(sink)
	})
	env.registerVerified(t, "alice", "alice@example.com")
	if _, err := env.engine.VerifyLogin(context.Background(), "alice@example.com", "wrong-password-1"); err == nil {
		t.Fatal("expected failure")
	}

	seen := map[string]bool{}
	timeout := time.After(2 * time.Second)
	for !seen["account_created"] || !seen["login_failure"] {
		select {
		case ev := <-sink.Events():
			seen[ev.Name] = true
			if ev.Name == "login_failure" && ev.Code != authcore.CodeInvalidCredentials {
				t.Fatalf("unexpected failure code %q", ev.Code)
			}
		case <-timeout:
			t.Fatalf("timed out waiting for audit events, saw %v", seen)
		}
	}
}

func TestSetUserRoleKeepsLastAdmin(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	root, err := env.engine.Register(ctx, authcore.RegisterInput{
		Username: "root",
		Email:    "root@example.com",
		Password: testPassword,
	}, authcore.RoleAdmin, authcore.VerifyByAdmin)
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	err = env.engine.SetUserRole(ctx, root.ID, authcore.RoleUser)
	if !errors.Is(err, authcore.ErrCannotDemoteLastAdmin) {
		t.Fatalf("expected last admin kept, got %v", err)
	}
	if authcore.AsError(err).Kind != authcore.KindConflict {
		t.Fatalf("expected conflict kind, got %v", authcore.AsError(err).Kind)
	}

	second := env.registerVerified(t, "second", "second@example.com")
	if err := env.engine.SetUserRole(ctx, second.ID, authcore.RoleAdmin); err != nil {
		t.Fatalf("promote: %v", err)
	}
	if err := env.engine.SetUserRole(ctx, root.ID, authcore.RoleUser); err != nil {
		t.Fatalf("demote with another admin present: %v", err)
	}
	if err := env.engine.SetUserRole(ctx, second.ID, authcore.RoleManager); !errors.Is(err, authcore.ErrCannotDemoteLastAdmin) {
		t.Fatalf("expected remaining admin kept, got %v", err)
	}
}

func TestEnsureAdminCreatesOnlyTheFirst(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	created, err := env.engine.EnsureAdmin(ctx, authcore.RegisterInput{
		Username: "root",
		Email:    "root@example.com",
		Password: testPassword,
	})
	if err != nil || !created {
		t.Fatalf("expected admin created, got %v, %v", created, err)
	}
	user, err := env.engine.VerifyLogin(ctx, "root@example.com", testPassword, authcore.RoleAdmin)
	if err != nil || user.Role != authcore.RoleAdmin {
		t.Fatalf("expected admin login, got %+v, %v", user, err)
	}

	created, err = env.engine.EnsureAdmin(ctx, authcore.RegisterInput{
		Username: "other",
		Email:    "other@example.com",
		Password: testPassword,
	})
	if err != nil || created {
		t.Fatalf("expected no second admin, got %v, %v", created, err)
	}
	if _, err := env.store.GetUserByEmail(ctx, "other@example.com"); !errors.Is(err, authcore.ErrStoreNotFound) {
		t.Fatalf("second admin must not exist, got %v", err)
	}

	_, err = env.engine.EnsureAdmin(ctx, authcore.RegisterInput{Username: "x", Email: "bad", Password: "short"})
	if err != nil {
		t.Fatalf("an existing admin short-circuits validation, got %v", err)
	}
}
