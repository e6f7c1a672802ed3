package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/oauth"
	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

type HTTPConfig struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	RateLimitRPS    float64
	RateLimitBurst  int
	// MailLimit caps mail-triggering requests per client IP per MailWindow,
	// counted in Redis across instances.
	MailLimit  int
	MailWindow time.Duration
}

type CookieConfig struct {
	Secret            string
	Domain            string
	DevMode           bool
	TrustProxyHeaders bool
	SessionMaxAge     time.Duration
}

type PostgresConfig struct {
	DSN     string
	Migrate bool
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// Embedded starts an in-process miniredis instead of dialing Addr.
	Embedded bool
}

type RegistrationConfig struct {
	Role string
	Mode string
}

type ProviderConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	// Endpoint overrides; empty keeps the provider's public endpoints.
	AuthURL     string
	TokenURL    string
	UserInfoURL string
}

type SessionConfig struct {
	TTL              time.Duration
	EnforceIPBinding bool
}

// PasswordConfig overrides the Argon2id cost. Zero keeps the engine
// default.
type PasswordConfig struct {
	MemoryKB    uint32
	Iterations  uint32
	Parallelism uint8
	MinLength   int
}

// AdminConfig seeds the first admin account on startup when no admin
// exists. Leave Email empty to skip.
type AdminConfig struct {
	Email    string
	Username string
	Password string
}

type MetricsConfig struct {
	Enabled bool
	Latency bool
}

// AppConfig is the authcore-server configuration.
type AppConfig struct {
	Environment      string
	LogLevel         string
	SiteURL          string
	ErrorRedirectURL string
	HTTP             HTTPConfig
	Cookies          CookieConfig
	Postgres         PostgresConfig
	Redis            RedisConfig
	Registration     RegistrationConfig
	Admin            AdminConfig
	Session          SessionConfig
	Password         PasswordConfig
	Metrics          MetricsConfig
	Google           ProviderConfig
	Facebook         ProviderConfig
}

// Load reads .env when present, then config.yaml, then AUTHCORE_*
// environment variables. Later sources win.
func Load() (*AppConfig, error) {
	loadDotenv()
	return load(viper.New())
}

func loadDotenv() {
	for _, p := range []string{".env", filepath.Join("..", ".env")} {
		if _, err := os.Stat(p); err == nil {
			_ = godotenv.Load(p)
			return
		}
	}
}

func load(v *viper.Viper) (*AppConfig, error) {
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix("AUTHCORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	var cfg AppConfig
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("loglevel", "")
	v.SetDefault("siteurl", "http://localhost:3000")
	v.SetDefault("errorredirecturl", "http://localhost:3000/login")

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.readtimeout", "10s")
	v.SetDefault("http.writetimeout", "15s")
	v.SetDefault("http.idletimeout", "60s")
	v.SetDefault("http.shutdowntimeout", "10s")
	v.SetDefault("http.ratelimitrps", 10)
	v.SetDefault("http.ratelimitburst", 20)
	v.SetDefault("http.maillimit", 5)
	v.SetDefault("http.mailwindow", "15m")

	v.SetDefault("cookies.secret", "")
	v.SetDefault("cookies.domain", "")
	v.SetDefault("cookies.devmode", false)
	v.SetDefault("cookies.trustproxyheaders", false)
	v.SetDefault("cookies.sessionmaxage", "168h")

	v.SetDefault("postgres.dsn", "")
	v.SetDefault("postgres.migrate", true)

	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.embedded", false)

	v.SetDefault("registration.role", string(authcore.RoleUser))
	v.SetDefault("registration.mode", "email")

	v.SetDefault("admin.email", "")
	v.SetDefault("admin.username", "")
	v.SetDefault("admin.password", "")

	v.SetDefault("session.ttl", "168h")
	v.SetDefault("session.enforceipbinding", false)

	v.SetDefault("password.memorykb", 0)
	v.SetDefault("password.iterations", 0)
	v.SetDefault("password.parallelism", 0)
	v.SetDefault("password.minlength", 0)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.latency", true)

	for _, p := range []string{"google", "facebook"} {
		v.SetDefault(p+".clientid", "")
		v.SetDefault(p+".clientsecret", "")
		v.SetDefault(p+".redirecturl", "")
		v.SetDefault(p+".authurl", "")
		v.SetDefault(p+".tokenurl", "")
		v.SetDefault(p+".userinfourl", "")
	}
}

// Validate reports the first setting the server cannot start with.
func (c *AppConfig) Validate() error {
	if len(c.Cookies.Secret) < 32 {
		return errors.New("cookies.secret must be at least 32 bytes")
	}
	if _, err := c.RegistrationRole(); err != nil {
		return err
	}
	if _, err := c.RegistrationMode(); err != nil {
		return err
	}
	if c.HTTP.RateLimitRPS <= 0 || c.HTTP.RateLimitBurst <= 0 {
		return errors.New("http rate limit must be > 0")
	}
	if c.HTTP.MailLimit <= 0 || c.HTTP.MailWindow <= 0 {
		return errors.New("http mail limit and window must be > 0")
	}
	if c.Admin.Email != "" && (c.Admin.Username == "" || c.Admin.Password == "") {
		return errors.New("admin.username and admin.password are required with admin.email")
	}
	return nil
}

func (c *AppConfig) RegistrationRole() (authcore.Role, error) {
	role := authcore.Role(strings.ToUpper(strings.TrimSpace(c.Registration.Role)))
	if !role.Valid() {
		return "", fmt.Errorf("registration.role %q is not a known role", c.Registration.Role)
	}
	return role, nil
}

func (c *AppConfig) RegistrationMode() (authcore.RegistrationMode, error) {
	switch strings.ToLower(strings.TrimSpace(c.Registration.Mode)) {
	case "email":
		return authcore.VerifyByEmail, nil
	case "admin":
		return authcore.VerifyByAdmin, nil
	default:
		return 0, fmt.Errorf("registration.mode %q must be email or admin", c.Registration.Mode)
	}
}

// Engine maps the server settings onto an engine configuration.
func (c *AppConfig) Engine() authcore.Config {
	cfg := authcore.DefaultConfig()
	cfg.Links.SiteURL = c.SiteURL
	cfg.OAuth.ErrorRedirectURL = c.ErrorRedirectURL
	cfg.Session.EnforceIPBinding = c.Session.EnforceIPBinding
	if c.Session.TTL > 0 {
		cfg.Session.TTL = c.Session.TTL
	}
	if c.Password.MemoryKB > 0 {
		cfg.Password.Memory = c.Password.MemoryKB
	}
	if c.Password.Iterations > 0 {
		cfg.Password.Time = c.Password.Iterations
	}
	if c.Password.Parallelism > 0 {
		cfg.Password.Parallelism = c.Password.Parallelism
	}
	if c.Password.MinLength > 0 {
		cfg.Password.MinLength = c.Password.MinLength
	}
	cfg.Metrics.Enabled = c.Metrics.Enabled
	cfg.Metrics.EnableLatencyHistograms = c.Metrics.Latency
	cfg.Audit.Enabled = true

	providers := map[oauth.ProviderName]ProviderConfig{
		oauth.Google:   c.Google,
		oauth.Facebook: c.Facebook,
	}
	for name, pc := range providers {
		if pc.ClientID == "" {
			continue
		}
		if cfg.OAuth.Providers == nil {
			cfg.OAuth.Providers = map[oauth.ProviderName]oauth.Config{}
		}
		cfg.OAuth.Providers[name] = oauth.Config{
			ClientID:     pc.ClientID,
			ClientSecret: pc.ClientSecret,
			RedirectURL:  pc.RedirectURL,
			AuthURL:      pc.AuthURL,
			TokenURL:     pc.TokenURL,
			UserInfoURL:  pc.UserInfoURL,
		}
	}
	return cfg
}
