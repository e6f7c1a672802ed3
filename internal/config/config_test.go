package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/oauth"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return dir
}

func TestLoadDefaultsWithEnvOverrides(t *testing.T) {
	chdirTemp(t)
	t.Setenv("AUTHCORE_COOKIES_SECRET", testSecret)
	t.Setenv("AUTHCORE_HTTP_ADDR", ":9090")
	t.Setenv("AUTHCORE_REGISTRATION_MODE", "admin")
	t.Setenv("AUTHCORE_SESSION_TTL", "48h")

	cfg, err := load(viper.New())
	require.NoError(t, err)

	require.Equal(t, ":9090", cfg.HTTP.Addr)
	require.Equal(t, 10*time.Second, cfg.HTTP.ReadTimeout)
	require.Equal(t, 48*time.Hour, cfg.Session.TTL)

	mode, err := cfg.RegistrationMode()
	require.NoError(t, err)
	require.Equal(t, authcore.VerifyByAdmin, mode)

	role, err := cfg.RegistrationRole()
	require.NoError(t, err)
	require.Equal(t, authcore.RoleUser, role)
}

func TestLoadReadsConfigFile(t *testing.T) {
	dir := chdirTemp(t)
	yaml := `
environment: production
cookies:
  secret: ` + testSecret + `
  devmode: true
registration:
  role: manager
google:
  clientid: gid
  clientsecret: gsecret
  redirecturl: https://app.example.com/oauth/google/callback
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o600))

	cfg, err := load(viper.New())
	require.NoError(t, err)
	require.Equal(t, "production", cfg.Environment)
	require.True(t, cfg.Cookies.DevMode)

	role, err := cfg.RegistrationRole()
	require.NoError(t, err)
	require.Equal(t, authcore.RoleManager, role)

	engineCfg := cfg.Engine()
	require.NoError(t, engineCfg.Validate())
	require.Contains(t, engineCfg.OAuth.Providers, oauth.Google)
	require.NotContains(t, engineCfg.OAuth.Providers, oauth.Facebook)
	require.Equal(t, "gid", engineCfg.OAuth.Providers[oauth.Google].ClientID)
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	chdirTemp(t)

	_, err := load(viper.New())
	require.ErrorContains(t, err, "cookies.secret")

	t.Setenv("AUTHCORE_COOKIES_SECRET", testSecret)
	t.Setenv("AUTHCORE_REGISTRATION_MODE", "sms")
	_, err = load(viper.New())
	require.ErrorContains(t, err, "registration.mode")

	t.Setenv("AUTHCORE_REGISTRATION_MODE", "email")
	t.Setenv("AUTHCORE_ADMIN_EMAIL", "root@example.com")
	_, err = load(viper.New())
	require.ErrorContains(t, err, "admin.password")

	t.Setenv("AUTHCORE_ADMIN_USERNAME", "root")
	t.Setenv("AUTHCORE_ADMIN_PASSWORD", "correct-horse-battery")
	cfg, err := load(viper.New())
	require.NoError(t, err)
	require.Equal(t, "root@example.com", cfg.Admin.Email)
}

func TestDotenvFillsEnvironment(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("AUTHCORE_COOKIES_SECRET="+testSecret+"\n"), 0o600))
	t.Setenv("AUTHCORE_COOKIES_SECRET", "")
	require.NoError(t, os.Unsetenv("AUTHCORE_COOKIES_SECRET"))

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, testSecret, cfg.Cookies.Secret)
	require.NoError(t, os.Unsetenv("AUTHCORE_COOKIES_SECRET"))
}
