package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/joho/godotenv"

	"todo-planner/internal/apperr"
	"todo-planner/internal/clock"
	"todo-planner/internal/logger"
)

// Storage backends.
const (
	StorageSQLite = "sqlite"
	StorageFile   = "file"
)

// MaxReminderInterval is the reminder firing window. A slower tick could
// step over a reminder and never send it.
const MaxReminderInterval = 20 * time.Second

// DefaultRedirectURL is a loopback address for installed-app sign-in. The
// browser ends on a page that fails to load; the code is in its address.
const DefaultRedirectURL = "http://localhost"

// Config keeps runtime settings for the planner.
type Config struct {
	Telegram TelegramConfig
	Storage  StorageConfig
	Schedule ScheduleConfig
	Google   GoogleConfig
	Log      logger.Config
	Location *time.Location
}

// TelegramConfig configures the bot front-end. ChatID is where reminders
// and reports go; the bot only answers that chat when it is set.
type TelegramConfig struct {
	Token  string
	ChatID int64
}

// StorageConfig selects where the task blob lives.
type StorageConfig struct {
	Backend     string
	DatabaseURL string
	Dir         string
}

func (c *StorageConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Backend, validation.Required, validation.In(StorageSQLite, StorageFile)),
		validation.Field(&c.DatabaseURL, validation.When(c.Backend == StorageSQLite, validation.Required)),
		validation.Field(&c.Dir, validation.When(c.Backend == StorageFile, validation.Required)),
	)
}

// ScheduleConfig holds the tick intervals and the daily report time.
type ScheduleConfig struct {
	ReportTime       string
	RefreshInterval  time.Duration
	ReminderInterval time.Duration
}

func (c *ScheduleConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.ReportTime, validation.By(func(v interface{}) error {
			if s, _ := v.(string); s != "" && !clock.ValidTime(s) {
				return errors.New("must be HH:MM")
			}
			return nil
		})),
		validation.Field(&c.RefreshInterval, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.ReminderInterval, validation.Required, validation.Min(time.Second), validation.Max(MaxReminderInterval)),
	)
}

// GoogleConfig holds the OAuth client and the task list to sync with.
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	TaskListID   string
	Endpoint     string
}

// Enabled reports whether sync is configured at all.
func (c GoogleConfig) Enabled() bool {
	return c.ClientID != ""
}

func (c *GoogleConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.ClientSecret, validation.When(c.ClientID != "", validation.Required)),
	)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	if err := c.Schedule.Validate(); err != nil {
		return fmt.Errorf("schedule: %w", err)
	}
	if err := c.Google.Validate(); err != nil {
		return fmt.Errorf("google: %w", err)
	}
	return nil
}

// RequireTelegram checks the settings needed to run the bot.
func (c *Config) RequireTelegram() error {
	if c.Telegram.Token == "" {
		return apperr.New(apperr.CodeConfig, "TELEGRAM_TOKEN is required")
	}
	return nil
}

// Load reads an optional .env file and then configuration from environment
// variables with sane defaults. Variables already set in the environment win
// over the file.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, apperr.Wrap(apperr.CodeConfig, "read env file", err)
		}
	}

	cfg := Config{
		Telegram: TelegramConfig{
			Token: env("TELEGRAM_TOKEN", ""),
		},
		Storage: StorageConfig{
			Backend:     strings.ToLower(env("STORAGE_BACKEND", StorageSQLite)),
			DatabaseURL: env("DATABASE_URL", "todo_planner.db"),
			Dir:         env("STORAGE_DIR", "data"),
		},
		Schedule: ScheduleConfig{
			ReportTime: env("REPORT_TIME", "08:00"),
		},
		Google: GoogleConfig{
			ClientID:     env("GOOGLE_CLIENT_ID", ""),
			ClientSecret: env("GOOGLE_CLIENT_SECRET", ""),
			RedirectURL:  env("GOOGLE_REDIRECT_URL", DefaultRedirectURL),
			TaskListID:   env("GOOGLE_TASKLIST_ID", ""),
			Endpoint:     env("GOOGLE_TASKS_ENDPOINT", ""),
		},
		Log: logger.Config{
			Level:    env("LOG_LEVEL", "info"),
			Encoding: env("LOG_ENCODING", "json"),
		},
	}

	var err error
	if raw := env("TELEGRAM_CHAT_ID", ""); raw != "" {
		if cfg.Telegram.ChatID, err = strconv.ParseInt(raw, 10, 64); err != nil {
			return cfg, apperr.Wrap(apperr.CodeConfig, "TELEGRAM_CHAT_ID must be a number", err)
		}
	}
	if cfg.Schedule.RefreshInterval, err = duration("REFRESH_INTERVAL", 15*time.Second); err != nil {
		return cfg, err
	}
	if cfg.Schedule.ReminderInterval, err = duration("REMINDER_INTERVAL", 10*time.Second); err != nil {
		return cfg, err
	}

	cfg.Location = time.Local
	if name := env("TIMEZONE", ""); name != "" {
		if cfg.Location, err = time.LoadLocation(name); err != nil {
			return cfg, apperr.Wrap(apperr.CodeConfig, "unknown TIMEZONE", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return cfg, apperr.Wrap(apperr.CodeConfig, "invalid configuration", err)
	}
	return cfg, nil
}

func env(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func duration(key string, fallback time.Duration) (time.Duration, error) {
	raw := env(key, "")
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, apperr.Wrap(apperr.CodeConfig, key+" must be a duration like 15s", err)
	}
	return d, nil
}
