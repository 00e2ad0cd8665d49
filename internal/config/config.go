package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	StoreRedis = "redis"
	StoreREST  = "rest"

	DirectoryKV       = "kv"
	DirectoryPostgres = "postgres"
)

// Config is read from DMCHAT_* environment variables.
type Config struct {
	Addr      string `envconfig:"addr" default:":8080"`
	JWTSecret string `envconfig:"jwt_secret" required:"true"`
	Debug     bool   `envconfig:"debug"`

	// Store selects the durable key-value backend. Pub/sub always goes through Redis.
	Store         string `envconfig:"store" default:"redis"`
	RedisAddr     string `envconfig:"redis_addr" default:"localhost:6379"`
	RedisPassword string `envconfig:"redis_password"`
	RedisDB       int    `envconfig:"redis_db"`
	RESTURL       string `envconfig:"rest_url"`
	RESTToken     string `envconfig:"rest_token"`

	UserDirectory string `envconfig:"user_directory" default:"kv"`
	DBDSN         string `envconfig:"db_dsn"`

	AllowedOrigins []string `envconfig:"allowed_origins"`
}

// Load reads ./.env when present (never in production) and then the environment.
// Variables already set win over the file.
func Load() (*Config, error) {
	if os.Getenv("DMCHAT_ENV") != "production" {
		if err := godotenv.Load("./.env"); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load .env: %w", err)
		}
	}

	c := &Config{}
	if err := envconfig.Process("dmchat", c); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) Validate() error {
	switch c.Store {
	case StoreRedis:
	case StoreREST:
		if c.RESTURL == "" || c.RESTToken == "" {
			return fmt.Errorf("store %q needs DMCHAT_REST_URL and DMCHAT_REST_TOKEN", c.Store)
		}
	default:
		return fmt.Errorf("unknown store %q", c.Store)
	}

	switch c.UserDirectory {
	case DirectoryKV:
	case DirectoryPostgres:
		if c.DBDSN == "" {
			return fmt.Errorf("user directory %q needs DMCHAT_DB_DSN", c.UserDirectory)
		}
	default:
		return fmt.Errorf("unknown user directory %q", c.UserDirectory)
	}
	return nil
}
