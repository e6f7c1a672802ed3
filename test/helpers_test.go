//go:build integration

package test

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/store/memory"
	"github.com/MrEthical07/authcore/store/postgres"
	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const testPassword = "correct-horse-battery"

// redisMode is one Redis backend the suite runs against.
type redisMode struct {
	name  string
	setup func(t *testing.T) redis.UniversalClient
}

// redisModes always includes miniredis. REDIS_ADDR adds a standalone server;
// REDIS_SENTINEL_ADDRS and REDIS_SENTINEL_MASTER add a failover client.
func redisModes() []redisMode {
	modes := []redisMode{{
		name: "miniredis",
		setup: func(t *testing.T) redis.UniversalClient {
			t.Helper()
			mr, err := miniredis.Run()
			if err != nil {
				t.Fatalf("miniredis: %v", err)
			}
			rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			t.Cleanup(func() { _ = rdb.Close(); mr.Close() })
			return rdb
		},
	}}

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		modes = append(modes, redisMode{
			name: "standalone",
			setup: func(t *testing.T) redis.UniversalClient {
				return pinged(t, redis.NewClient(&redis.Options{Addr: addr}))
			},
		})
	}

	if addrs := os.Getenv("REDIS_SENTINEL_ADDRS"); addrs != "" {
		master := os.Getenv("REDIS_SENTINEL_MASTER")
		if master == "" {
			master = "mymaster"
		}
		modes = append(modes, redisMode{
			name: "sentinel",
			setup: func(t *testing.T) redis.UniversalClient {
				return pinged(t, redis.NewFailoverClient(&redis.FailoverOptions{
					MasterName:    master,
					SentinelAddrs: splitAddrs(addrs),
				}))
			},
		})
	}
	return modes
}

// pinged skips the test when rdb is unreachable and flushes its database
// around the test.
func pinged(t *testing.T, rdb *redis.Client) redis.UniversalClient {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		t.Skipf("redis unavailable: %v", err)
	}
	rdb.FlushDB(context.Background())
	t.Cleanup(func() {
		rdb.FlushDB(context.Background())
		_ = rdb.Close()
	})
	return rdb
}

func splitAddrs(s string) []string {
	var out []string
	for _, a := range strings.Split(s, ",") {
		if a = strings.TrimSpace(a); a != "" {
			out = append(out, a)
		}
	}
	return out
}

// userStores returns the in-memory store and, when
// AUTHCORE_TEST_DATABASE_URL is set, a migrated Postgres store. Tests on the
// shared database use unique emails so runs do not collide.
func userStores(t *testing.T) map[string]func(t *testing.T) authcore.UserStore {
	t.Helper()
	stores := map[string]func(t *testing.T) authcore.UserStore{
		"memory": func(*testing.T) authcore.UserStore { return memory.New() },
	}

	dsn := os.Getenv("AUTHCORE_TEST_DATABASE_URL")
	if dsn == "" {
		return stores
	}
	stores["postgres"] = func(t *testing.T) authcore.UserStore {
		t.Helper()
		ctx := context.Background()
		pg, err := postgres.Open(ctx, dsn)
		if err != nil {
			t.Skipf("postgres unavailable: %v", err)
		}
		t.Cleanup(pg.Close)
		if err := pg.Migrate(ctx); err != nil {
			t.Fatalf("migrate: %v", err)
		}
		return pg
	}
	return stores
}

type nopMailer struct{}

func (nopMailer) Send(context.Context, string, string, string) (authcore.DeliveryResult, error) {
	return authcore.DeliveryResult{}, nil
}

func newEngine(t *testing.T, rdb redis.UniversalClient, store authcore.UserStore) *authcore.Engine {
	t.Helper()
	cfg := authcore.DefaultConfig()
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Links.SiteURL = "https://app.example.com"

	engine, err := authcore.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserStore(store).
		WithMailer(nopMailer{}).
		WithMetricsEnabled(true).
		Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	t.Cleanup(engine.Close)
	return engine
}

// registerVerified registers an enabled account under a unique username and
// email derived from prefix.
func registerVerified(t *testing.T, engine *authcore.Engine, prefix string) authcore.UserRecord {
	t.Helper()
	ctx := context.Background()
	tag := uuid.NewString()[:8]
	u, err := engine.Register(ctx, authcore.RegisterInput{
		Username: prefix + tag,
		Email:    prefix + "-" + tag + "@example.com",
		Password: testPassword,
	}, authcore.RoleUser, authcore.VerifyByAdmin)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := engine.SetUserEnabled(ctx, u.ID, true); err != nil {
		t.Fatalf("enable: %v", err)
	}
	return u
}
