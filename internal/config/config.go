package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strconv"
	"strings"

	"github.com/caarlos0/env/v8"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	// HTTP Server
	Port string `env:"PORT" envDefault:"8080"`
	Env  string `env:"APP_ENV" envDefault:"development"`

	// Database
	DatabaseURL   string `env:"DATABASE_URL" envDefault:"expenses.db"`
	MongoDatabase string `env:"MONGO_DATABASE" envDefault:"expenses"`

	Session Session
	CORS    CORS
	Log     Log
	AMQP    AMQP
}

type Session struct {
	CookieName string `env:"SESSION_COOKIE_NAME" envDefault:"sid"`
}

type CORS struct {
	Origin      string `env:"CORS_ORIGIN" envDefault:"http://localhost:5173"`
	Credentials bool   `env:"CORS_CREDENTIALS" envDefault:"true"`
}

type Log struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"text"`
}

type AMQP struct {
	// URL is empty when expense events are disabled.
	URL      string `env:"AMQP_URL"`
	Exchange string `env:"AMQP_EXCHANGE" envDefault:"expenses"`
}

// Load reads an optional .env file into the environment, then parses the
// environment into a Config.
func Load(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load env file: %w", err)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, nil
}

// Production reports whether cookies must be cross-site capable.
func (c *Config) Production() bool {
	return c.Env == EnvProduction
}

// UsesMongo reports whether DatabaseURL points at a MongoDB deployment.
func (c *Config) UsesMongo() bool {
	return IsMongoURL(c.DatabaseURL)
}

// IsMongoURL reports whether url uses one of the MongoDB schemes.
func IsMongoURL(url string) bool {
	return strings.HasPrefix(url, "mongodb://") || strings.HasPrefix(url, "mongodb+srv://")
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var problems []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		problems = append(problems, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		problems = append(problems, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if c.Env != EnvDevelopment && c.Env != EnvProduction {
		problems = append(problems, fmt.Sprintf("invalid APP_ENV '%s': must be %s or %s", c.Env, EnvDevelopment, EnvProduction))
	}

	if strings.TrimSpace(c.DatabaseURL) == "" {
		problems = append(problems, "DATABASE_URL cannot be empty")
	}
	if c.UsesMongo() && strings.TrimSpace(c.MongoDatabase) == "" {
		problems = append(problems, "MONGO_DATABASE cannot be empty when using MongoDB")
	}

	if strings.TrimSpace(c.Session.CookieName) == "" {
		problems = append(problems, "SESSION_COOKIE_NAME cannot be empty")
	}

	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		problems = append(problems, fmt.Sprintf("invalid LOG_LEVEL '%s'", c.Log.Level))
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		problems = append(problems, fmt.Sprintf("invalid LOG_FORMAT '%s': must be text or json", c.Log.Format))
	}

	if c.AMQP.URL != "" {
		if parsedURL, err := url.Parse(c.AMQP.URL); err != nil {
			problems = append(problems, fmt.Sprintf("invalid AMQP URL: %v", err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			problems = append(problems, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQP.Exchange == "" {
			problems = append(problems, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(problems, "\n- "))
	}
	return nil
}
