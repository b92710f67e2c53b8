package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/ggonzalez94/tradeagent/internal/registry"
)

// PlaceholderAPIKey is the sample value shipped in example env files. It is
// treated as no key at all.
const PlaceholderAPIKey = "your_groq_api_key_here"

type GlobalFlags struct {
	ConfigPath     string
	EnvFile        string
	JSON           bool
	Plain          bool
	Select         string
	ResultsOnly    bool
	EnableCommands string
	Strict         bool
	Timeout        string
	Retries        int
	MaxStale       string
	NoStale        bool
	NoCache        bool
	PriceSource    string
	Offline        bool
	LogLevel       string
}

type Settings struct {
	OutputMode     string        `default:"json" validate:"oneof=json plain"`
	SelectFields   []string      `validate:"-"`
	ResultsOnly    bool          `validate:"-"`
	EnableCommands []string      `validate:"-"`
	Strict         bool          `validate:"-"`
	Timeout        time.Duration `default:"10s" validate:"gt=0"`
	Retries        int           `default:"2" validate:"gte=0,lte=10"`
	MaxStale       time.Duration `default:"5m" validate:"gte=0"`
	NoStale        bool          `validate:"-"`

	CacheEnabled   bool          `default:"true"`
	CachePath      string        `validate:"required_if=CacheEnabled true"`
	CacheLockPath  string        `validate:"required_if=CacheEnabled true"`
	PriceTTL       time.Duration `default:"30s" validate:"gt=0"`
	OrdersPath     string        `validate:"required"`
	OrdersLockPath string        `validate:"required"`

	PriceSource     string  `default:"coingecko" validate:"oneof=coingecko binance file"`
	PriceFile       string  `validate:"required_if=PriceSource file"`
	RateLimit       float64 `default:"5" validate:"gte=0"`
	CoinGeckoAPIKey string

	ModelEnabled bool    `default:"true"`
	ModelBaseURL string  `default:"https://api.groq.com/openai/v1" validate:"required,url"`
	ModelAPIKey  string  `validate:"-"`
	ModelName    string  `default:"llama-3.3-70b-versatile" validate:"required"`
	Temperature  float64 `default:"0.7" validate:"gte=0,lte=2"`
	MaxTokens    int     `default:"2000" validate:"gt=0"`
	HistoryLimit int     `default:"10" validate:"gte=0,lte=100"`

	LogLevel   string `default:"warn" validate:"oneof=trace debug info warn error fatal panic disabled"`
	LogFormat  string `default:"console" validate:"oneof=console json"`
	ListenAddr string `default:":8080" validate:"required"`
}

// ModelConfigured reports whether the model path can be attempted.
func (s Settings) ModelConfigured() bool {
	return s.ModelEnabled && s.ModelAPIKey != ""
}

type cacheSection struct {
	Enabled  *bool  `yaml:"enabled" toml:"enabled"`
	MaxStale string `yaml:"max_stale" toml:"max_stale"`
	TTL      string `yaml:"ttl" toml:"ttl"`
	Path     string `yaml:"path" toml:"path"`
	LockPath string `yaml:"lock_path" toml:"lock_path"`
}

type fileConfig struct {
	Output  string       `yaml:"output" toml:"output"`
	Strict  *bool        `yaml:"strict" toml:"strict"`
	Timeout string       `yaml:"timeout" toml:"timeout"`
	Retries *int         `yaml:"retries" toml:"retries"`
	Cache   cacheSection `yaml:"cache" toml:"cache"`
	Orders  struct {
		Path     string `yaml:"path" toml:"path"`
		LockPath string `yaml:"lock_path" toml:"lock_path"`
	} `yaml:"orders" toml:"orders"`
	Prices struct {
		Source    string   `yaml:"source" toml:"source"`
		File      string   `yaml:"file" toml:"file"`
		RateLimit *float64 `yaml:"rate_limit" toml:"rate_limit"`
	} `yaml:"prices" toml:"prices"`
	Model struct {
		Enabled      *bool    `yaml:"enabled" toml:"enabled"`
		BaseURL      string   `yaml:"base_url" toml:"base_url"`
		APIKey       string   `yaml:"api_key" toml:"api_key"`
		APIKeyEnv    string   `yaml:"api_key_env" toml:"api_key_env"`
		Name         string   `yaml:"name" toml:"name"`
		Temperature  *float64 `yaml:"temperature" toml:"temperature"`
		MaxTokens    *int     `yaml:"max_tokens" toml:"max_tokens"`
		HistoryLimit *int     `yaml:"history_limit" toml:"history_limit"`
	} `yaml:"model" toml:"model"`
	Log struct {
		Level  string `yaml:"level" toml:"level"`
		Format string `yaml:"format" toml:"format"`
	} `yaml:"log" toml:"log"`
	Server struct {
		Listen string `yaml:"listen" toml:"listen"`
	} `yaml:"server" toml:"server"`
	Providers struct {
		CoinGecko struct {
			APIKey    string `yaml:"api_key" toml:"api_key"`
			APIKeyEnv string `yaml:"api_key_env" toml:"api_key_env"`
		} `yaml:"coingecko" toml:"coingecko"`
	} `yaml:"providers" toml:"providers"`
}

var validate = validator.New()

func Load(flags GlobalFlags) (Settings, error) {
	settings, err := defaultSettings()
	if err != nil {
		return Settings{}, err
	}

	cfgPath, err := resolveConfigPath(flags.ConfigPath)
	if err != nil {
		return Settings{}, err
	}
	if err := applyFileConfig(cfgPath, &settings); err != nil {
		return Settings{}, err
	}

	if err := loadDotEnv(flags.EnvFile); err != nil {
		return Settings{}, err
	}
	applyEnv(&settings)

	if err := applyFlags(flags, &settings); err != nil {
		return Settings{}, err
	}

	if strings.TrimSpace(settings.ModelAPIKey) == PlaceholderAPIKey {
		settings.ModelAPIKey = ""
	}
	settings.ModelAPIKey = strings.TrimSpace(settings.ModelAPIKey)
	if err := validate.Struct(settings); err != nil {
		return Settings{}, describeValidation(err)
	}
	if settings.ModelAPIKey != "" && !registry.CredentialSafe(settings.ModelBaseURL) {
		return Settings{}, fmt.Errorf("invalid settings: model url %s must use https (plain http only on loopback)", settings.ModelBaseURL)
	}
	return settings, nil
}

func defaultSettings() (Settings, error) {
	var settings Settings
	if err := defaults.Set(&settings); err != nil {
		return Settings{}, fmt.Errorf("apply defaults: %w", err)
	}
	dir, err := defaultDataDir()
	if err != nil {
		return Settings{}, err
	}
	settings.CachePath = filepath.Join(dir, "cache.db")
	settings.CacheLockPath = filepath.Join(dir, "cache.lock")
	settings.OrdersPath = filepath.Join(dir, "orders.db")
	settings.OrdersLockPath = filepath.Join(dir, "orders.lock")
	return settings, nil
}

func resolveConfigPath(input string) (string, error) {
	if strings.TrimSpace(input) != "" {
		return input, nil
	}
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "tradeagent", "config.yaml"), nil
}

func defaultDataDir() (string, error) {
	base := os.Getenv("XDG_CACHE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".cache")
	}
	return filepath.Join(base, "tradeagent"), nil
}

func loadDotEnv(path string) error {
	if strings.TrimSpace(path) == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file: %w", err)
	}
	return nil
}

func decodeFile(path string, buf []byte, cfg *fileConfig) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if err := toml.Unmarshal(buf, cfg); err != nil {
			return fmt.Errorf("parse config toml: %w", err)
		}
	default:
		if err := yaml.Unmarshal(buf, cfg); err != nil {
			return fmt.Errorf("parse config yaml: %w", err)
		}
	}
	return nil
}

func applyFileConfig(path string, settings *Settings) error {
	buf, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}

	var cfg fileConfig
	if err := decodeFile(path, buf, &cfg); err != nil {
		return err
	}

	if cfg.Output != "" {
		settings.OutputMode = strings.ToLower(cfg.Output)
	}
	if cfg.Strict != nil {
		settings.Strict = *cfg.Strict
	}
	if err := setDuration(&settings.Timeout, cfg.Timeout, "config timeout"); err != nil {
		return err
	}
	if cfg.Retries != nil {
		settings.Retries = *cfg.Retries
	}
	if cfg.Cache.Enabled != nil {
		settings.CacheEnabled = *cfg.Cache.Enabled
	}
	if err := setDuration(&settings.MaxStale, cfg.Cache.MaxStale, "config cache.max_stale"); err != nil {
		return err
	}
	if err := setDuration(&settings.PriceTTL, cfg.Cache.TTL, "config cache.ttl"); err != nil {
		return err
	}
	setString(&settings.CachePath, cfg.Cache.Path)
	setString(&settings.CacheLockPath, cfg.Cache.LockPath)
	setString(&settings.OrdersPath, cfg.Orders.Path)
	setString(&settings.OrdersLockPath, cfg.Orders.LockPath)

	setString(&settings.PriceSource, strings.ToLower(cfg.Prices.Source))
	setString(&settings.PriceFile, cfg.Prices.File)
	if cfg.Prices.RateLimit != nil {
		settings.RateLimit = *cfg.Prices.RateLimit
	}

	if cfg.Model.Enabled != nil {
		settings.ModelEnabled = *cfg.Model.Enabled
	}
	setString(&settings.ModelBaseURL, cfg.Model.BaseURL)
	setString(&settings.ModelAPIKey, cfg.Model.APIKey)
	if cfg.Model.APIKeyEnv != "" {
		settings.ModelAPIKey = os.Getenv(cfg.Model.APIKeyEnv)
	}
	setString(&settings.ModelName, cfg.Model.Name)
	if cfg.Model.Temperature != nil {
		settings.Temperature = *cfg.Model.Temperature
	}
	if cfg.Model.MaxTokens != nil {
		settings.MaxTokens = *cfg.Model.MaxTokens
	}
	if cfg.Model.HistoryLimit != nil {
		settings.HistoryLimit = *cfg.Model.HistoryLimit
	}

	setString(&settings.LogLevel, strings.ToLower(cfg.Log.Level))
	setString(&settings.LogFormat, strings.ToLower(cfg.Log.Format))
	setString(&settings.ListenAddr, cfg.Server.Listen)

	setString(&settings.CoinGeckoAPIKey, cfg.Providers.CoinGecko.APIKey)
	if cfg.Providers.CoinGecko.APIKeyEnv != "" {
		settings.CoinGeckoAPIKey = os.Getenv(cfg.Providers.CoinGecko.APIKeyEnv)
	}
	return nil
}

func applyEnv(settings *Settings) {
	if v := os.Getenv("TRADEAGENT_OUTPUT"); v != "" {
		settings.OutputMode = strings.ToLower(v)
	}
	envBool("TRADEAGENT_STRICT", func(b bool) { settings.Strict = b })
	envDuration("TRADEAGENT_TIMEOUT", &settings.Timeout)
	envInt("TRADEAGENT_RETRIES", &settings.Retries)
	envDuration("TRADEAGENT_MAX_STALE", &settings.MaxStale)
	envBool("TRADEAGENT_NO_STALE", func(b bool) { settings.NoStale = b })
	envBool("TRADEAGENT_NO_CACHE", func(b bool) { settings.CacheEnabled = !b })
	envDuration("TRADEAGENT_PRICE_TTL", &settings.PriceTTL)
	envString("TRADEAGENT_CACHE_PATH", &settings.CachePath)
	envString("TRADEAGENT_CACHE_LOCK_PATH", &settings.CacheLockPath)
	envString("TRADEAGENT_ORDERS_PATH", &settings.OrdersPath)
	envString("TRADEAGENT_ORDERS_LOCK_PATH", &settings.OrdersLockPath)
	if v := os.Getenv("TRADEAGENT_PRICE_SOURCE"); v != "" {
		settings.PriceSource = strings.ToLower(v)
	}
	envString("TRADEAGENT_PRICE_FILE", &settings.PriceFile)
	envString("TRADEAGENT_COINGECKO_API_KEY", &settings.CoinGeckoAPIKey)

	envBool("TRADEAGENT_MODEL_ENABLED", func(b bool) { settings.ModelEnabled = b })
	envString("TRADEAGENT_MODEL_URL", &settings.ModelBaseURL)
	envString("GROQ_API_KEY", &settings.ModelAPIKey)
	envString("TRADEAGENT_MODEL_API_KEY", &settings.ModelAPIKey)
	envString("AI_MODEL", &settings.ModelName)
	envString("TRADEAGENT_MODEL", &settings.ModelName)
	envFloat("AI_TEMPERATURE", &settings.Temperature)
	envInt("AI_MAX_TOKENS", &settings.MaxTokens)

	if v := os.Getenv("TRADEAGENT_LOG_LEVEL"); v != "" {
		settings.LogLevel = strings.ToLower(v)
	}
	if v := os.Getenv("TRADEAGENT_LOG_FORMAT"); v != "" {
		settings.LogFormat = strings.ToLower(v)
	}
	envString("TRADEAGENT_LISTEN", &settings.ListenAddr)
}

func applyFlags(flags GlobalFlags, settings *Settings) error {
	if flags.JSON && flags.Plain {
		return fmt.Errorf("cannot use --json and --plain together")
	}
	if flags.JSON {
		settings.OutputMode = "json"
	}
	if flags.Plain {
		settings.OutputMode = "plain"
	}
	if fields := splitList(flags.Select); len(fields) > 0 {
		settings.SelectFields = fields
	}
	settings.ResultsOnly = flags.ResultsOnly
	if allowed := splitList(flags.EnableCommands); len(allowed) > 0 {
		settings.EnableCommands = allowed
	}

	if flags.Strict {
		settings.Strict = true
	}
	if err := setDuration(&settings.Timeout, flags.Timeout, "parse --timeout"); err != nil {
		return err
	}
	if flags.Retries >= 0 {
		settings.Retries = flags.Retries
	}
	if err := setDuration(&settings.MaxStale, flags.MaxStale, "parse --max-stale"); err != nil {
		return err
	}
	if flags.NoStale {
		settings.NoStale = true
	}
	if flags.NoCache {
		settings.CacheEnabled = false
	}
	if v := strings.TrimSpace(flags.PriceSource); v != "" {
		settings.PriceSource = strings.ToLower(v)
	}
	if flags.Offline {
		settings.ModelEnabled = false
	}
	if v := strings.TrimSpace(flags.LogLevel); v != "" {
		settings.LogLevel = strings.ToLower(v)
	}
	return nil
}

func describeValidation(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return fmt.Errorf("invalid settings: %w", err)
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s must satisfy %s=%s", fe.Field(), fe.Tag(), fe.Param()))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s must satisfy %s", fe.Field(), fe.Tag()))
	}
	return fmt.Errorf("invalid settings: %s", strings.Join(parts, "; "))
}

func splitList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if v := strings.TrimSpace(part); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func setString(dst *string, v string) {
	if strings.TrimSpace(v) != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, raw, label string) error {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", label, err)
	}
	*dst = d
	return nil
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envBool(key string, set func(bool)) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			set(b)
		}
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envFloat(key string, dst *float64) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func envDuration(key string, dst *time.Duration) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
