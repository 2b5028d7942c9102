// config/config.go - Environment configuration
package config

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Port        string `env:"PORT" envDefault:"3000"`
	AppEnv      string `env:"APP_ENV" envDefault:"development"`
	CORSOrigins string `env:"CORS_ORIGINS" envDefault:"http://localhost:3000"`
	JWTSecret   string `env:"JWT_SECRET"`

	DatabaseURL string `env:"DATABASE_URL"`
	DBHost      string `env:"DB_HOST" envDefault:"localhost"`
	DBPort      string `env:"DB_PORT" envDefault:"5432"`
	DBUser      string `env:"DB_USER" envDefault:"postgres"`
	DBPassword  string `env:"DB_PASSWORD"`
	DBName      string `env:"DB_NAME" envDefault:"snapquest"`
	DBSSLMode   string `env:"DB_SSLMODE" envDefault:"disable"`

	// Contest voting opens at this hour on the contest's own date and stays
	// open until midnight in ContestTimezone.
	VotingOpenHour  int    `env:"VOTING_OPEN_HOUR" envDefault:"18"`
	ContestTimezone string `env:"CONTEST_TIMEZONE" envDefault:"UTC"`

	SpeedBonusXP      int `env:"SPEED_BONUS_XP" envDefault:"25"`
	SpeedBonusMinutes int `env:"SPEED_BONUS_MINUTES" envDefault:"15"`
	FirstTimeBonusXP  int `env:"FIRST_TIME_BONUS_XP" envDefault:"50"`

	AttemptMaxDuration time.Duration `env:"ATTEMPT_MAX_DURATION" envDefault:"2h"`
	SweepInterval      time.Duration `env:"SWEEP_INTERVAL" envDefault:"5m"`
	QuestCacheSize     int           `env:"QUEST_CACHE_SIZE" envDefault:"512"`

	RateLimitMaxRequests int           `env:"RATE_LIMIT_MAX_REQUESTS" envDefault:"60"`
	RateLimitWindow      time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"1m"`
}

// Load reads an optional .env file and then the process environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using system environment variables")
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET environment variable must be set. Generate one with: openssl rand -base64 64")
	}
	if len(c.JWTSecret) < 32 {
		return errors.New("JWT_SECRET must be at least 32 characters long")
	}
	if c.VotingOpenHour < 0 || c.VotingOpenHour > 23 {
		return fmt.Errorf("VOTING_OPEN_HOUR must be between 0 and 23, got %d", c.VotingOpenHour)
	}
	if _, err := time.LoadLocation(c.ContestTimezone); err != nil {
		return fmt.Errorf("CONTEST_TIMEZONE: %w", err)
	}
	if c.QuestCacheSize <= 0 {
		return errors.New("QUEST_CACHE_SIZE must be positive")
	}
	return nil
}

// Location returns the contest timezone. Validate guarantees it loads.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.ContestTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// DSN returns DATABASE_URL or a DSN assembled from the DB_* variables.
func (c Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSSLMode)
}
