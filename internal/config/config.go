package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config содержит всю конфигурацию монитора
type Config struct {
	Auth     AuthConfig
	Course   CourseConfig
	Monitor  MonitorConfig
	Captcha  CaptchaConfig
	Telegram TelegramConfig
	Server   ServerConfig
	Database DatabaseConfig
}

// AuthConfig содержит учетные данные BBDC
type AuthConfig struct {
	Username string
	Password string
	// BaseURL бэкенда, переопределяется в тестах
	BaseURL string
	// Интервал повторов цикла инициализации сессии
	InitRetryInterval time.Duration
}

// CourseConfig содержит идентификаторы предмета для запросов доступности.
// Пустые значения означают автоопределение по истории обучения.
type CourseConfig struct {
	CourseType     string
	StageSubNo     string
	StageSubDesc   string
	SubVehicleType string
	// Дополнительный тип курса, проверяемый через existence-endpoint
	SecondaryCourseType string
}

// MonitorConfig содержит настройки цикла опроса и фильтрации
type MonitorConfig struct {
	DateFrom          string // включительно, YYYY-MM-DD
	DateTo            string // включительно, YYYY-MM-DD
	MinSession        int
	MinWeekdaySession int
	OnlyShowNew       bool
	IntervalMin       time.Duration
	IntervalMax       time.Duration
	// Минимальный промежуток между успешными опросами (debounce)
	MinPollSpacing time.Duration
	// Пауза между запросами за разные месяцы
	MonthQuerySpacing time.Duration
}

// CaptchaConfig содержит настройки решения капчи
type CaptchaConfig struct {
	PreferAutomated   bool
	HumanReplyTimeout time.Duration
	StaleReplyAfter   time.Duration
	TargetWidth       int
}

// TelegramConfig содержит настройки Telegram канала
type TelegramConfig struct {
	Token  string
	ChatID int64
}

// ServerConfig содержит настройки служебного HTTP сервера
type ServerConfig struct {
	Port string
}

// DatabaseConfig содержит настройки журнала аудита
type DatabaseConfig struct {
	Path string
}

// Load загружает конфигурацию из переменных окружения и .env файла
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found or could not be loaded: %v", err)
	}

	cfg := &Config{
		Auth: AuthConfig{
			Username:          os.Getenv("BBDC_USERNAME"),
			Password:          os.Getenv("BBDC_PASSWORD"),
			BaseURL:           getEnv("BBDC_BASE_URL", "https://booking.bbdc.sg/bbdc-back-service"),
			InitRetryInterval: getEnvAsDuration("INIT_RETRY_INTERVAL", 30*time.Second),
		},
		Course: CourseConfig{
			CourseType:          getEnv("COURSE_TYPE", "2B"),
			StageSubNo:          os.Getenv("STAGE_SUB_NO"),
			StageSubDesc:        os.Getenv("STAGE_SUB_DESC"),
			SubVehicleType:      os.Getenv("SUB_VEHICLE_TYPE"),
			SecondaryCourseType: os.Getenv("SECONDARY_COURSE_TYPE"),
		},
		Monitor: MonitorConfig{
			DateFrom:          getEnv("DATE_FROM", time.Now().Format("2006-01-02")),
			DateTo:            getEnv("DATE_TO", time.Now().AddDate(0, 1, 0).Format("2006-01-02")),
			MinSession:        getEnvAsInt("MIN_SESSION", 1),
			MinWeekdaySession: getEnvAsInt("MIN_WEEKDAY_SESSION", 1),
			OnlyShowNew:       getEnvAsBool("ONLY_SHOW_NEW", true),
			IntervalMin:       time.Duration(getEnvAsInt("INTERVAL_MINUTES_MIN", 3)) * time.Minute,
			IntervalMax:       time.Duration(getEnvAsInt("INTERVAL_MINUTES_MAX", 5)) * time.Minute,
			MinPollSpacing:    getEnvAsDuration("MIN_POLL_SPACING", time.Minute),
			MonthQuerySpacing: getEnvAsDuration("MONTH_QUERY_SPACING", time.Second),
		},
		Captcha: CaptchaConfig{
			PreferAutomated:   getEnvAsBool("CAPTCHA_PREFER_AUTOMATED", true),
			HumanReplyTimeout: getEnvAsDuration("CAPTCHA_HUMAN_TIMEOUT", 24*time.Hour),
			StaleReplyAfter:   getEnvAsDuration("CAPTCHA_STALE_AFTER", 2*time.Minute),
			TargetWidth:       getEnvAsInt("CAPTCHA_TARGET_WIDTH", 200),
		},
		Telegram: TelegramConfig{
			Token:  os.Getenv("TELEGRAM_TOKEN"),
			ChatID: getEnvAsInt64("TELEGRAM_CHAT_ID", 0),
		},
		Server: ServerConfig{
			Port: getEnv("PORT", "8080"),
		},
		Database: DatabaseConfig{
			Path: getEnv("AUDIT_DB_FILE", "monitor.db"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate проверяет корректность конфигурации
func (c *Config) Validate() error {
	if c.Auth.Username == "" {
		return fmt.Errorf("BBDC_USERNAME is required")
	}
	if c.Auth.Password == "" {
		return fmt.Errorf("BBDC_PASSWORD is required")
	}

	if _, err := time.Parse("2006-01-02", c.Monitor.DateFrom); err != nil {
		return fmt.Errorf("invalid DATE_FROM format (expected YYYY-MM-DD): %w", err)
	}
	if _, err := time.Parse("2006-01-02", c.Monitor.DateTo); err != nil {
		return fmt.Errorf("invalid DATE_TO format (expected YYYY-MM-DD): %w", err)
	}
	if c.Monitor.DateTo < c.Monitor.DateFrom {
		return fmt.Errorf("DATE_TO must not precede DATE_FROM")
	}

	if c.Monitor.MinSession < 1 || c.Monitor.MinSession > 8 {
		return fmt.Errorf("MIN_SESSION must be in range 1..8")
	}
	if c.Monitor.MinWeekdaySession < 1 || c.Monitor.MinWeekdaySession > 8 {
		return fmt.Errorf("MIN_WEEKDAY_SESSION must be in range 1..8")
	}

	if c.Monitor.IntervalMin <= 0 || c.Monitor.IntervalMax < c.Monitor.IntervalMin {
		return fmt.Errorf("poll interval range is invalid")
	}

	// Telegram опционален, но token и chat id должны идти вместе
	if (c.Telegram.Token == "") != (c.Telegram.ChatID == 0) {
		return fmt.Errorf("TELEGRAM_TOKEN and TELEGRAM_CHAT_ID must be set together")
	}

	if c.Captcha.HumanReplyTimeout <= 0 {
		return fmt.Errorf("CAPTCHA_HUMAN_TIMEOUT must be positive")
	}

	return nil
}

// TelegramEnabled сообщает, настроен ли Telegram канал
func (c *Config) TelegramEnabled() bool {
	return c.Telegram.Token != "" && c.Telegram.ChatID != 0
}

// getEnv получает переменную окружения или возвращает значение по умолчанию
func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvAsInt получает переменную окружения как число
func getEnvAsInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

// getEnvAsInt64 получает переменную окружения как int64
func getEnvAsInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i
		}
	}
	return fallback
}

// getEnvAsBool получает переменную окружения как bool
func getEnvAsBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		return v == "1" || strings.EqualFold(v, "true")
	}
	return fallback
}

// getEnvAsDuration получает переменную окружения как duration
func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
