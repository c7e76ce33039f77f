package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/joho/godotenv"
)

const defaultAddr = "0.0.0.0:8080"

// Config holds the complete application configuration, loadable from
// environment variables (KITCHEN_ prefix), flags, or YAML config files.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL string `usage:"PostgreSQL connection URL (KITCHEN_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	Redis       RedisConfig
	AMQPURL     string `default:"" usage:"RabbitMQ URL for order events, empty disables publishing" flag:"amqp-url" env:"AMQP_URL"`
	Session     SessionConfig
	Media       MediaConfig
	RateLimit   RateLimitConfig
	CORS        CORSConfig
	Graceful    GracefulConfig
}

// RedisConfig locates the session store.
type RedisConfig struct {
	Addr     string `default:"localhost:6379" usage:"Redis address"`
	Password string `default:"" usage:"Redis password"`
	DB       int    `default:"0" usage:"Redis database number"`
}

// SessionConfig controls login sessions.
type SessionConfig struct {
	Secret       string        `usage:"HMAC secret for session tokens, at least 16 bytes (KITCHEN_SESSION_SECRET)"`
	TTL          time.Duration `default:"168h" usage:"Session lifetime"`
	CookieSecure bool          `default:"false" usage:"Mark the session cookie Secure" flag:"cookie-secure"`
	BcryptCost   int           `default:"0" usage:"bcrypt cost for new passwords, 0 selects the library default"`
}

// MediaConfig controls where uploaded images live.
type MediaConfig struct {
	Dir     string `default:"./media" usage:"Directory for uploaded images"`
	BaseURL string `default:"/media" usage:"Public URL prefix of uploaded images"`
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window, 0 disables limiting"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads a local .env file when present, then configuration from
// environment variables and YAML config files, and applies platform defaults.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrap(err, "load .env")
	}

	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "KITCHEN",
		Files:     []string{"config.yaml", "/etc/kitchen/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch {
	case c.DatabaseURL == "":
		return errors.New("database URL is required: set KITCHEN_DATABASE_URL or DATABASE_URL")
	case len(c.Session.Secret) < 16:
		return errors.New("session secret must be at least 16 bytes: set KITCHEN_SESSION_SECRET")
	case c.Session.TTL <= 0:
		return errors.New("session TTL must be positive")
	}
	return nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT
// to the application's KITCHEN_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}
