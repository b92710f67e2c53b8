package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func isolate(t *testing.T) string {
	t.Helper()
	tmp := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(tmp, "config"))
	t.Setenv("XDG_CACHE_HOME", filepath.Join(tmp, "cache"))
	for _, key := range []string{"GROQ_API_KEY", "TRADEAGENT_MODEL_API_KEY", "AI_MODEL", "AI_TEMPERATURE", "AI_MAX_TOKENS", "TRADEAGENT_OUTPUT"} {
		t.Setenv(key, "")
	}
	return tmp
}

func TestLoadDefaults(t *testing.T) {
	tmp := isolate(t)
	settings, err := Load(GlobalFlags{Retries: -1, EnvFile: filepath.Join(tmp, "missing.env")})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if settings.OutputMode != "json" || settings.Retries != 2 || settings.Timeout != 10*time.Second {
		t.Fatalf("unexpected defaults: %+v", settings)
	}
	if settings.ModelName != "llama-3.3-70b-versatile" || settings.Temperature != 0.7 || settings.MaxTokens != 2000 {
		t.Fatalf("unexpected model defaults: %+v", settings)
	}
	if settings.PriceSource != "coingecko" || settings.PriceTTL != 30*time.Second || !settings.CacheEnabled {
		t.Fatalf("unexpected price defaults: %+v", settings)
	}
	if !strings.HasPrefix(settings.OrdersPath, filepath.Join(tmp, "cache", "tradeagent")) {
		t.Fatalf("unexpected orders path: %s", settings.OrdersPath)
	}
	if settings.ModelConfigured() {
		t.Fatal("expected model to be unconfigured without a key")
	}
}

func TestLoadPrecedenceFlagsOverEnvOverFile(t *testing.T) {
	tmp := isolate(t)
	configPath := filepath.Join(tmp, "config.yaml")
	if err := os.WriteFile(configPath, []byte("output: plain\nretries: 1\nmodel:\n  name: file-model\n  temperature: 0.1\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("TRADEAGENT_OUTPUT", "json")
	t.Setenv("AI_TEMPERATURE", "0.3")
	flags := GlobalFlags{ConfigPath: configPath, Plain: true, Retries: 5}
	settings, err := Load(flags)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if settings.OutputMode != "plain" {
		t.Fatalf("expected flag to win, got output=%s", settings.OutputMode)
	}
	if settings.Retries != 5 {
		t.Fatalf("expected retries from flags, got %d", settings.Retries)
	}
	if settings.ModelName != "file-model" {
		t.Fatalf("expected model name from file, got %s", settings.ModelName)
	}
	if settings.Temperature != 0.3 {
		t.Fatalf("expected env to override file temperature, got %v", settings.Temperature)
	}
}

func TestLoadTOMLConfig(t *testing.T) {
	tmp := isolate(t)
	configPath := filepath.Join(tmp, "config.toml")
	body := "output = \"plain\"\n\n[prices]\nsource = \"binance\"\n\n[cache]\nttl = \"1m\"\n"
	if err := os.WriteFile(configPath, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	settings, err := Load(GlobalFlags{ConfigPath: configPath, Retries: -1})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if settings.OutputMode != "plain" || settings.PriceSource != "binance" || settings.PriceTTL != time.Minute {
		t.Fatalf("unexpected settings from toml: %+v", settings)
	}
}

func TestLoadDotEnvAndPlaceholderKey(t *testing.T) {
	tmp := isolate(t)
	envPath := filepath.Join(tmp, "test.env")
	if err := os.WriteFile(envPath, []byte("GROQ_API_KEY=your_groq_api_key_here\nAI_MODEL=env-model\n"), 0o644); err != nil {
		t.Fatalf("write env: %v", err)
	}
	// godotenv never overrides variables that are already set.
	os.Unsetenv("GROQ_API_KEY")
	os.Unsetenv("AI_MODEL")
	t.Cleanup(func() {
		os.Unsetenv("GROQ_API_KEY")
		os.Unsetenv("AI_MODEL")
	})

	settings, err := Load(GlobalFlags{EnvFile: envPath, Retries: -1})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if settings.ModelName != "env-model" {
		t.Fatalf("expected model from env file, got %s", settings.ModelName)
	}
	if settings.ModelAPIKey != "" || settings.ModelConfigured() {
		t.Fatalf("expected placeholder key to be dropped, got %q", settings.ModelAPIKey)
	}

	t.Setenv("GROQ_API_KEY", "real-key")
	settings, err = Load(GlobalFlags{EnvFile: envPath, Retries: -1})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !settings.ModelConfigured() {
		t.Fatal("expected model to be configured with a real key")
	}
	settings, _ = Load(GlobalFlags{EnvFile: envPath, Retries: -1, Offline: true})
	if settings.ModelConfigured() {
		t.Fatal("expected --offline to disable the model")
	}
}

func TestLoadValidation(t *testing.T) {
	tmp := isolate(t)
	t.Setenv("AI_TEMPERATURE", "3.5")
	if _, err := Load(GlobalFlags{Retries: -1, EnvFile: filepath.Join(tmp, "none")}); err == nil || !strings.Contains(err.Error(), "Temperature") {
		t.Fatalf("expected temperature validation error, got %v", err)
	}
	t.Setenv("AI_TEMPERATURE", "")
	if _, err := Load(GlobalFlags{Retries: -1, PriceSource: "file", EnvFile: filepath.Join(tmp, "none")}); err == nil || !strings.Contains(err.Error(), "PriceFile") {
		t.Fatalf("expected price file validation error, got %v", err)
	}
	if _, err := Load(GlobalFlags{Retries: -1, PriceSource: "kraken", EnvFile: filepath.Join(tmp, "none")}); err == nil {
		t.Fatal("expected unknown price source to fail")
	}
}

func TestLoadRejectsKeyOverPlainHTTP(t *testing.T) {
	tmp := isolate(t)
	t.Setenv("GROQ_API_KEY", "gsk_test")
	t.Setenv("TRADEAGENT_MODEL_URL", "http://llm.example.com/v1")
	if _, err := Load(GlobalFlags{Retries: -1, EnvFile: filepath.Join(tmp, "none")}); err == nil || !strings.Contains(err.Error(), "https") {
		t.Fatalf("expected https requirement, got %v", err)
	}
	t.Setenv("TRADEAGENT_MODEL_URL", "http://localhost:11434/v1")
	settings, err := Load(GlobalFlags{Retries: -1, EnvFile: filepath.Join(tmp, "none")})
	if err != nil {
		t.Fatalf("expected loopback http to be accepted: %v", err)
	}
	if !settings.ModelConfigured() {
		t.Fatal("expected model to be configured")
	}
}

func TestLoadMutuallyExclusiveOutputFlags(t *testing.T) {
	isolate(t)
	_, err := Load(GlobalFlags{JSON: true, Plain: true})
	if err == nil {
		t.Fatal("expected error with --json and --plain")
	}
}
