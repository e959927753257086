package config

import (
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		Auth: AuthConfig{
			Username: "user1",
			Password: "pass1",
		},
		Monitor: MonitorConfig{
			DateFrom:          "2026-09-01",
			DateTo:            "2026-09-30",
			MinSession:        1,
			MinWeekdaySession: 6,
			IntervalMin:       3 * time.Minute,
			IntervalMax:       5 * time.Minute,
		},
		Captcha: CaptchaConfig{
			HumanReplyTimeout: 24 * time.Hour,
		},
	}
}

func TestValidate_OK(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Errorf("Expected valid config, got %v", err)
	}
}

func TestValidate_RequiredCredentials(t *testing.T) {
	cfg := validConfig()
	cfg.Auth.Username = ""
	if err := cfg.Validate(); err == nil {
		t.Error("Expected error for missing username")
	}

	cfg = validConfig()
	cfg.Auth.Password = ""
	if err := cfg.Validate(); err == nil {
		t.Error("Expected error for missing password")
	}
}

func TestValidate_DateFormats(t *testing.T) {
	cfg := validConfig()
	cfg.Monitor.DateFrom = "01/09/2026"
	if err := cfg.Validate(); err == nil {
		t.Error("Expected error for invalid DATE_FROM")
	}

	cfg = validConfig()
	cfg.Monitor.DateTo = "2026-08-01"
	if err := cfg.Validate(); err == nil {
		t.Error("Expected error when DATE_TO precedes DATE_FROM")
	}
}

func TestValidate_SessionRanges(t *testing.T) {
	cfg := validConfig()
	cfg.Monitor.MinSession = 0
	if err := cfg.Validate(); err == nil {
		t.Error("Expected error for MIN_SESSION out of range")
	}

	cfg = validConfig()
	cfg.Monitor.MinWeekdaySession = 9
	if err := cfg.Validate(); err == nil {
		t.Error("Expected error for MIN_WEEKDAY_SESSION out of range")
	}
}

func TestValidate_IntervalRange(t *testing.T) {
	cfg := validConfig()
	cfg.Monitor.IntervalMax = time.Minute
	cfg.Monitor.IntervalMin = 2 * time.Minute
	if err := cfg.Validate(); err == nil {
		t.Error("Expected error for inverted interval range")
	}
}

func TestValidate_TelegramPairing(t *testing.T) {
	cfg := validConfig()
	cfg.Telegram.Token = "123:abc"
	if err := cfg.Validate(); err == nil {
		t.Error("Expected error for token without chat id")
	}

	cfg.Telegram.ChatID = 42
	if err := cfg.Validate(); err != nil {
		t.Errorf("Expected token+chat pair to validate, got %v", err)
	}
	if !cfg.TelegramEnabled() {
		t.Error("Expected TelegramEnabled with both values set")
	}
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("TEST_STR", "value")
	t.Setenv("TEST_INT", "42")
	t.Setenv("TEST_BOOL", "true")
	t.Setenv("TEST_DUR", "90s")

	if got := getEnv("TEST_STR", "fallback"); got != "value" {
		t.Errorf("getEnv = %q", got)
	}
	if got := getEnv("TEST_MISSING", "fallback"); got != "fallback" {
		t.Errorf("getEnv fallback = %q", got)
	}
	if got := getEnvAsInt("TEST_INT", 0); got != 42 {
		t.Errorf("getEnvAsInt = %d", got)
	}
	if got := getEnvAsBool("TEST_BOOL", false); !got {
		t.Error("getEnvAsBool = false")
	}
	if got := getEnvAsDuration("TEST_DUR", time.Second); got != 90*time.Second {
		t.Errorf("getEnvAsDuration = %v", got)
	}
	if got := getEnvAsDuration("TEST_MISSING", time.Second); got != time.Second {
		t.Errorf("getEnvAsDuration fallback = %v", got)
	}
}
