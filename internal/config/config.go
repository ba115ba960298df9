package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"campusync/internal/domain"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Store backends
const (
	BackendBadger   = "badger"
	BackendPostgres = "postgres"
)

// Config holds all application configuration
type Config struct {
	BotToken        string
	OwnerID         int64
	API             APIConfig
	StoreBackend    string
	BadgerDir       string
	Database        DatabaseConfig
	HTTPAddr        string
	HTTPOrigins     []string
	RefreshInterval time.Duration
	DefaultSemester string
	Calendar        domain.SemesterCalendar
	Debug           bool
}

// APIConfig holds the academic-records backend settings
type APIConfig struct {
	BaseURL string
	Timeout time.Duration
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host     string
	Port     string
	Name     string
	User     string
	Password string
}

// DefaultCalendar holds the first Mondays of the known semesters
func DefaultCalendar() domain.SemesterCalendar {
	return domain.SemesterCalendar{
		"2024-2025-1": time.Date(2024, time.September, 2, 0, 0, 0, 0, time.Local),
		"2024-2025-2": time.Date(2025, time.February, 17, 0, 0, 0, 0, time.Local),
		"2025-2026-1": time.Date(2025, time.September, 1, 0, 0, 0, 0, time.Local),
		"2025-2026-2": time.Date(2026, time.February, 23, 0, 0, 0, 0, time.Local),
	}
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file (ignore error if not exists)
	_ = godotenv.Load()

	cfg := &Config{
		BotToken: os.Getenv("BOT_TOKEN"),
		API: APIConfig{
			BaseURL: os.Getenv("API_BASE_URL"),
		},
		StoreBackend: getEnv("STORE_BACKEND", BackendBadger),
		BadgerDir:    getEnv("BADGER_DIR", "./data"),
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			Name:     getEnv("DB_NAME", "campusync"),
			User:     getEnv("DB_USER", "campusync"),
			Password: os.Getenv("DB_PASSWORD"),
		},
		HTTPAddr:        os.Getenv("HTTP_ADDR"),
		HTTPOrigins:     splitList(getEnv("HTTP_ALLOW_ORIGINS", "*")),
		DefaultSemester: getEnv("DEFAULT_SEMESTER", "2025-2026-1"),
		Debug:           getEnv("DEBUG", "false") == "true",
	}

	// Validate required fields
	if cfg.BotToken == "" {
		return nil, fmt.Errorf("BOT_TOKEN is required")
	}

	ownerID := os.Getenv("OWNER_ID")
	if ownerID == "" {
		return nil, fmt.Errorf("OWNER_ID is required")
	}
	id, err := strconv.ParseInt(ownerID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("OWNER_ID must be a numeric Telegram user id: %w", err)
	}
	cfg.OwnerID = id

	if cfg.API.BaseURL == "" {
		return nil, fmt.Errorf("API_BASE_URL is required")
	}

	switch cfg.StoreBackend {
	case BackendBadger:
	case BackendPostgres:
		if cfg.Database.Password == "" {
			return nil, fmt.Errorf("DB_PASSWORD is required")
		}
	default:
		return nil, fmt.Errorf("STORE_BACKEND must be %q or %q, got %q", BackendBadger, BackendPostgres, cfg.StoreBackend)
	}

	if cfg.API.Timeout, err = getDuration("API_TIMEOUT", 15*time.Second); err != nil {
		return nil, err
	}
	if cfg.RefreshInterval, err = getDuration("SESSION_REFRESH_INTERVAL", 6*time.Hour); err != nil {
		return nil, err
	}

	cfg.Calendar, err = LoadCalendar(os.Getenv("SEMESTER_CALENDAR_FILE"))
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadCalendar reads the semester calendar file on top of DefaultCalendar.
// The file holds a "semesters" map of semester id to YYYY-MM-DD; any format
// viper understands (yaml, json, toml) works. An empty path yields the defaults.
func LoadCalendar(path string) (domain.SemesterCalendar, error) {
	calendar := DefaultCalendar()
	if path == "" {
		return calendar, nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read semester calendar %s: %w", path, err)
	}

	for id, value := range v.GetStringMapString("semesters") {
		start, err := time.ParseInLocation(domain.DateLayout, value, time.Local)
		if err != nil {
			return nil, fmt.Errorf("semester %s: invalid start date %q: %w", id, value, err)
		}
		if start.Weekday() != time.Monday {
			return nil, fmt.Errorf("semester %s: start date %s is not a Monday", id, value)
		}
		calendar[id] = start
	}

	return calendar, nil
}

// DSN returns PostgreSQL connection string
func (c *Config) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.Name,
	)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitList(value string) []string {
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}

	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive", key)
	}
	return d, nil
}
