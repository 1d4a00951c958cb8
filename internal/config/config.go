// Package config reads the runtime configuration from the environment.
package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/myrjola/compassmystery/internal/envstruct"
	"github.com/myrjola/compassmystery/internal/errors"
)

const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

var ErrInvalidConfig = errors.NewSentinel("invalid configuration")

type Config struct {
	// Addr is the HTTP listen address of the web host.
	Addr string `env:"MYSTERY_ADDR" envDefault:"localhost:4000"`
	// PprofPort enables the loopback pprof server when non-empty, e.g. ":6060".
	PprofPort string `env:"MYSTERY_PPROF_PORT" envDefault:""`
	// SQLiteURL is the database path or ":memory:".
	SQLiteURL string `env:"MYSTERY_SQLITE_URL" envDefault:"./compassmystery.sqlite"`
	// StoryPath points to a story YAML file. The embedded story is used when empty.
	StoryPath string `env:"MYSTERY_STORY_PATH" envDefault:""`

	AIProvider     string        `env:"MYSTERY_AI_PROVIDER" envDefault:"gemini"`
	GeminiAPIKey   string        `env:"GEMINI_API_KEY" envDefault:""`
	OpenAIAPIKey   string        `env:"OPENAI_API_KEY" envDefault:""`
	// OpenAIBaseURL points the OpenAI client to a compatible server when non-empty.
	OpenAIBaseURL  string        `env:"OPENAI_BASE_URL" envDefault:""`
	Model          string        `env:"MYSTERY_MODEL" envDefault:""`
	BackendTimeout time.Duration `env:"MYSTERY_BACKEND_TIMEOUT" envDefault:"20s"`
	BackendRetries int           `env:"MYSTERY_BACKEND_RETRIES" envDefault:"3"`
	BackendRPS     float64       `env:"MYSTERY_BACKEND_RPS" envDefault:"5"`

	SessionTTL time.Duration `env:"MYSTERY_SESSION_TTL" envDefault:"12h"`
}

// Load populates Config from lookupEnv and validates it.
func Load(lookupEnv func(string) (string, bool)) (Config, error) {
	var cfg Config
	if err := envstruct.Populate(&cfg, lookupEnv); err != nil {
		return Config{}, errors.Wrap(err, "populate config")
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadDotEnv loads a .env file into the process environment. A missing file is not an error.
func LoadDotEnv(filenames ...string) error {
	if len(filenames) == 0 {
		filenames = []string{".env"}
	}
	for _, name := range filenames {
		if _, err := os.Stat(name); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(name); err != nil {
			return errors.Wrap(err, "load dotenv")
		}
	}
	return nil
}

func (c Config) validate() error {
	var errs []error
	switch c.AIProvider {
	case ProviderGemini, ProviderOpenAI:
	default:
		errs = append(errs, errors.Wrap(ErrInvalidConfig, "unknown MYSTERY_AI_PROVIDER "+c.AIProvider))
	}
	if c.BackendTimeout <= 0 {
		errs = append(errs, errors.Wrap(ErrInvalidConfig, "MYSTERY_BACKEND_TIMEOUT must be positive"))
	}
	if c.BackendRetries < 1 {
		errs = append(errs, errors.Wrap(ErrInvalidConfig, "MYSTERY_BACKEND_RETRIES must be at least 1"))
	}
	if c.BackendRPS <= 0 {
		errs = append(errs, errors.Wrap(ErrInvalidConfig, "MYSTERY_BACKEND_RPS must be positive"))
	}
	if c.SessionTTL <= 0 {
		errs = append(errs, errors.Wrap(ErrInvalidConfig, "MYSTERY_SESSION_TTL must be positive"))
	}
	return errors.Join(errs...)
}

// APIKey returns the key of the configured provider.
func (c Config) APIKey() string {
	if c.AIProvider == ProviderOpenAI {
		return c.OpenAIAPIKey
	}
	return c.GeminiAPIKey
}
