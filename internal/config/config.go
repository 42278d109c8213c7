// Package config assembles the run configuration from an optional YAML file
// and the environment. Precedence: built-in defaults, then the file, then
// environment variables. Components never read the environment themselves;
// everything is passed down explicitly.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// FileEnv names the optional YAML config file.
	FileEnv = "ENHANCER_CONFIG"

	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

type Config struct {
	// Provider selects the summarizer backend: "openai" (default) or "gemini".
	Provider string `yaml:"provider"`

	OpenAIAPIKey  string `yaml:"-"`
	OpenAIBaseURL string `yaml:"openaiBaseUrl"`
	GeminiAPIKey  string `yaml:"-"`
	GeminiBaseURL string `yaml:"geminiBaseUrl"`
	Model         string `yaml:"model"`

	// Language is the target language for generated summaries.
	Language string `yaml:"language"`

	Workers        int           `yaml:"workers"`
	MaxRetries     int           `yaml:"maxRetries"`
	RequestTimeout time.Duration `yaml:"requestTimeout"`
	RateLimitRPS   float64       `yaml:"rateLimitRps"`
	DropFailed     bool          `yaml:"dropFailed"`

	GitHubToken string `yaml:"-"`
	// GitHubBaseURL overrides the repository metadata API. Useful for
	// proxies/testing.
	GitHubBaseURL string `yaml:"githubBaseUrl"`

	Safety SafetyConfig `yaml:"safety"`
	Digest DigestConfig `yaml:"digest"`
}

type SafetyConfig struct {
	Endpoint string        `yaml:"endpoint"`
	APIKey   string        `yaml:"-"`
	Timeout  time.Duration `yaml:"timeout"`
}

type DigestConfig struct {
	Keywords []string   `yaml:"keywords"`
	SMTP     SMTPConfig `yaml:"smtp"`
}

type SMTPConfig struct {
	Host     string   `yaml:"host"`
	Port     int      `yaml:"port"`
	Username string   `yaml:"username"`
	Password string   `yaml:"-"`
	From     string   `yaml:"from"`
	To       []string `yaml:"to"`
}

func defaults() Config {
	return Config{
		Provider:       ProviderOpenAI,
		Language:       "English",
		Workers:        8,
		MaxRetries:     3,
		RequestTimeout: 30 * time.Second,
		Safety:         SafetyConfig{Timeout: 5 * time.Second},
	}
}

// Load builds the configuration from the optional YAML file named by
// ENHANCER_CONFIG and the environment.
func Load() (Config, error) {
	cfg := defaults()

	if path := strings.TrimSpace(os.Getenv(FileEnv)); path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read %s: %w", FileEnv, err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", FileEnv, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	envString(&cfg.Provider, "LLM_PROVIDER")
	envString(&cfg.OpenAIAPIKey, "OPENAI_API_KEY")
	envString(&cfg.OpenAIBaseURL, "OPENAI_BASE_URL")
	envString(&cfg.GeminiAPIKey, "GEMINI_API_KEY")
	envString(&cfg.GeminiBaseURL, "GEMINI_BASE_URL")
	envString(&cfg.Model, "MODEL_NAME")
	envString(&cfg.Language, "LANGUAGE")
	envString(&cfg.GitHubToken, "GITHUB_TOKEN")
	envString(&cfg.GitHubBaseURL, "GITHUB_BASE_URL")
	envString(&cfg.Safety.Endpoint, "SAFETY_ENDPOINT")
	envString(&cfg.Safety.APIKey, "SAFETY_API_KEY")
	envString(&cfg.Digest.SMTP.Password, "SMTP_PASSWORD")

	var err error
	if cfg.Workers, err = envInt("WORKERS", cfg.Workers); err != nil {
		return err
	}
	if cfg.MaxRetries, err = envInt("MAX_RETRIES", cfg.MaxRetries); err != nil {
		return err
	}
	if cfg.RequestTimeout, err = envDuration("REQUEST_TIMEOUT", cfg.RequestTimeout); err != nil {
		return err
	}
	if cfg.Safety.Timeout, err = envDuration("SAFETY_TIMEOUT", cfg.Safety.Timeout); err != nil {
		return err
	}
	if cfg.RateLimitRPS, err = envFloat("RATE_LIMIT_RPS", cfg.RateLimitRPS); err != nil {
		return err
	}
	if cfg.DropFailed, err = envBool("DROP_FAILED", cfg.DropFailed); err != nil {
		return err
	}
	return nil
}

// Validate checks the knobs a run cannot start without. Provider credential
// checks live with the provider constructors.
func (c Config) Validate() error {
	switch strings.ToLower(strings.TrimSpace(c.Provider)) {
	case ProviderOpenAI, ProviderGemini:
	default:
		return fmt.Errorf("unknown LLM_PROVIDER %q (want %q or %q)", c.Provider, ProviderOpenAI, ProviderGemini)
	}
	if c.Workers < 0 {
		return fmt.Errorf("WORKERS must be >= 0, got %d", c.Workers)
	}
	return nil
}

func envString(dst *string, varName string) {
	if v := strings.TrimSpace(os.Getenv(varName)); v != "" {
		*dst = v
	}
}

func envInt(varName string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(varName))
	if v == "" {
		return fallback, nil
	}
	out, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s=%q: %w", varName, v, err)
	}
	return out, nil
}

func envFloat(varName string, fallback float64) (float64, error) {
	v := strings.TrimSpace(os.Getenv(varName))
	if v == "" {
		return fallback, nil
	}
	out, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s=%q: %w", varName, v, err)
	}
	return out, nil
}

func envBool(varName string, fallback bool) (bool, error) {
	v := strings.TrimSpace(os.Getenv(varName))
	if v == "" {
		return fallback, nil
	}
	out, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s=%q: %w", varName, v, err)
	}
	return out, nil
}

func envDuration(varName string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(varName))
	if v == "" {
		return fallback, nil
	}
	out, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s=%q: %w", varName, v, err)
	}
	return out, nil
}
