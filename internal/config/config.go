package config

import (
	"errors"
	"io/fs"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port           string   `yaml:"port" env:"PORT"`
		AllowedOrigins []string `yaml:"allowedOrigins" env:"ALLOWED_ORIGINS" envSeparator:","`
	} `yaml:"server"`
	Log struct {
		Level  string `yaml:"level" env:"LOG_LEVEL"`
		Pretty bool   `yaml:"pretty" env:"LOG_PRETTY"`
	} `yaml:"log"`
	Redis struct {
		Addr     string `yaml:"addr" env:"REDIS_ADDR"`
		Password string `yaml:"password" env:"REDIS_PASSWORD"`
		DB       int    `yaml:"db" env:"REDIS_DB"`
		TTL      string `yaml:"ttl" env:"REDIS_TTL"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url" env:"POSTGRES_URL"`
	} `yaml:"postgres"`
	NATS struct {
		URL           string `yaml:"url" env:"NATS_URL"`
		Stream        string `yaml:"stream" env:"NATS_STREAM"`
		SubjectPrefix string `yaml:"subjectPrefix" env:"NATS_SUBJECT_PREFIX"`
	} `yaml:"nats"`
	Quiz struct {
		TTL string `yaml:"ttl" env:"QUIZ_TTL"`
	} `yaml:"quiz"`
	Duel Duel `yaml:"duel"`
}

// Duel holds gameplay defaults and the finalize/invitation housekeeping knobs.
type Duel struct {
	DefaultQuestionCount    int     `yaml:"defaultQuestionCount" env:"DUEL_DEFAULT_QUESTION_COUNT"`
	DefaultTimeLimitSeconds int     `yaml:"defaultTimeLimitSeconds" env:"DUEL_DEFAULT_TIME_LIMIT_SECONDS"`
	DefaultDifficulty       string  `yaml:"defaultDifficulty" env:"DUEL_DEFAULT_DIFFICULTY"`
	BasePoints              int     `yaml:"basePoints" env:"DUEL_BASE_POINTS"`
	PenaltyPerSecond        int     `yaml:"penaltyPerSecond" env:"DUEL_PENALTY_PER_SECOND"`
	KFactor                 float64 `yaml:"kFactor" env:"DUEL_K_FACTOR"`
	ForfeitPolicy           string  `yaml:"forfeitPolicy" env:"DUEL_FORFEIT_POLICY"`
	FinalizeRetries         uint64  `yaml:"finalizeRetries" env:"DUEL_FINALIZE_RETRIES"`
	RetryInitial            string  `yaml:"retryInitial" env:"DUEL_RETRY_INITIAL"`
	RetryMax                string  `yaml:"retryMax" env:"DUEL_RETRY_MAX"`
	InvitationTTL           string  `yaml:"invitationTTL" env:"DUEL_INVITATION_TTL"`
	SweepInterval           string  `yaml:"sweepInterval" env:"DUEL_SWEEP_INTERVAL"`
}

// Load reads YAML config from path and applies environment overrides.
// A missing file is not an error so env-only deployments work.
func Load(path string) (Config, error) {
	cfg := Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return cfg, err
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, err
			}
		}
	}
	if err := env.Parse(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
