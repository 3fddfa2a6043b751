package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// ConfigPathEnvVar overrides the config file location.
const ConfigPathEnvVar = "CONFIG_PATH"

// DefaultConfigPaths are searched in order when CONFIG_PATH is unset.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
}

// Config is the complete service configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Log       LogConfig       `koanf:"log"`
	Model     ModelConfig     `koanf:"model"`
	Catalog   CatalogConfig   `koanf:"catalog"`
	LLM       LLMConfig       `koanf:"llm"`
	RateLimit RateLimitConfig `koanf:"ratelimit"`
}

type ServerConfig struct {
	Port           int      `koanf:"port" validate:"min=1,max=65535"`
	AllowedOrigins []string `koanf:"allowed_origins"`
}

type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn warning error fatal panic"`
	Format string `koanf:"format" validate:"oneof=text json"`
}

type ModelConfig struct {
	ScalerPath     string `koanf:"scaler_path" validate:"required"`
	ClassifierPath string `koanf:"classifier_path" validate:"required"`
}

type CatalogConfig struct {
	Path   string `koanf:"path"`
	DBPath string `koanf:"db_path"`
}

// LLMConfig describes the generative recommendation service.
type LLMConfig struct {
	URL         string        `koanf:"url" validate:"required,url"`
	Model       string        `koanf:"model" validate:"required"`
	Timeout     time.Duration `koanf:"timeout" validate:"gt=0"`
	NumPredict  int           `koanf:"num_predict" validate:"min=1"`
	Temperature float64       `koanf:"temperature" validate:"min=0,max=2"`
}

// RateLimitConfig bounds recommendation requests per client IP. RPS <= 0 disables limiting.
type RateLimitConfig struct {
	RPS   float64 `koanf:"rps"`
	Burst int     `koanf:"burst" validate:"min=0"`
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           2000,
			AllowedOrigins: []string{},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Model: ModelConfig{
			ScalerPath:     "model/scaler.json",
			ClassifierPath: "model/classifier.json",
		},
		Catalog: CatalogConfig{
			Path:   "data/loans.csv",
			DBPath: "data/loan-advisor.db",
		},
		LLM: LLMConfig{
			URL:         "http://localhost:11434/api/generate",
			Model:       "llama3",
			Timeout:     120 * time.Second,
			NumPredict:  1024,
			Temperature: 0,
		},
		RateLimit: RateLimitConfig{
			RPS:   1,
			Burst: 5,
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file and the environment, in
// increasing priority. A .env file in the working directory is loaded into the environment first.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	k := koanf.New(".")
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	path, err := findConfigFile()
	if err != nil {
		return nil, err
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}
	if err := splitList(k, "server.allowed_origins"); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			problems := make([]string, 0, len(fieldErrs))
			for _, fe := range fieldErrs {
				problems = append(problems, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(problems, ", "))
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}

// findConfigFile returns the explicit CONFIG_PATH, which must exist, or the first default
// path present. An empty result means no file is loaded.
func findConfigFile() (string, error) {
	if path := strings.TrimSpace(os.Getenv(ConfigPathEnvVar)); path != "" {
		if _, err := os.Stat(path); err != nil {
			return "", fmt.Errorf("config file from %s: %w", ConfigPathEnvVar, err)
		}
		return path, nil
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", nil
}

// splitList turns a comma-separated environment value into a slice.
func splitList(k *koanf.Koanf, path string) error {
	raw, ok := k.Get(path).(string)
	if !ok {
		return nil
	}
	items := []string{}
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			items = append(items, part)
		}
	}
	if err := k.Set(path, items); err != nil {
		return fmt.Errorf("set %s: %w", path, err)
	}
	return nil
}

var envMappings = map[string]string{
	"port":                  "server.port",
	"allowed_origins":       "server.allowed_origins",
	"log_level":             "log.level",
	"log_format":            "log.format",
	"model_scaler_path":     "model.scaler_path",
	"model_classifier_path": "model.classifier_path",
	"catalog_path":          "catalog.path",
	"catalog_db_path":       "catalog.db_path",
	"llm_url":               "llm.url",
	"llm_model":             "llm.model",
	"llm_timeout":           "llm.timeout",
	"llm_num_predict":       "llm.num_predict",
	"llm_temperature":       "llm.temperature",
	"rate_limit_rps":        "ratelimit.rps",
	"rate_limit_burst":      "ratelimit.burst",
}

// envTransformFunc maps known environment variables to config paths. Unknown variables map
// to "" and are skipped.
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}
