// Package Config loads process settings from the environment and the venue
// master data from its json5 file.
package Config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"Pitstop/Models"

	"github.com/joho/godotenv"
)

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       []string
}

func (s SMTPConfig) Enabled() bool {
	return s.Host != "" && len(s.To) > 0
}

// EmailConfig converts the settings into the shape the email sender takes.
// Port 465 implies implicit TLS.
func (s SMTPConfig) EmailConfig(venue string) Models.EmailConfig {
	return Models.EmailConfig{
		SMTPServer: s.Host,
		SMTPPort:   s.Port,
		Username:   s.Username,
		Password:   s.Password,
		FromEmail:  s.From,
		FromName:   venue,
		TLSEnabled: s.Port == 465,
	}
}

type Config struct {
	Port      string
	DBDriver  string
	DBDSN     string
	JWTSecret string

	LogLevel  string
	LogFormat string

	VenueFile    string
	GapPolicy    string
	DigestCron   string
	SlackToken   string
	SlackChannel string

	// SlackAppToken enables the Socket Mode command listener.
	SlackAppToken string

	SMTP SMTPConfig

	FirebaseCredentials string
}

// Load reads .env when present and then the process environment.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	smtpPort, err := strconv.Atoi(getEnv("SMTP_PORT", "587"))
	if err != nil {
		return nil, fmt.Errorf("SMTP_PORT: %w", err)
	}

	cfg := &Config{
		Port:      getEnv("PORT", "3001"),
		DBDriver:  getEnv("DB_DRIVER", "sqlite"),
		DBDSN:     getEnv("DB_DSN", "pitstop.db"),
		JWTSecret: os.Getenv("JWT_SECRET"),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		VenueFile:     getEnv("VENUE_FILE", "venue.json5"),
		GapPolicy:     getEnv("DST_GAP_POLICY", "offset_after"),
		DigestCron:    os.Getenv("DIGEST_CRON"),
		SlackToken:    os.Getenv("SLACK_TOKEN"),
		SlackChannel:  os.Getenv("SLACK_CHANNEL"),
		SlackAppToken: os.Getenv("SLACK_APP_TOKEN"),

		SMTP: SMTPConfig{
			Host:     os.Getenv("SMTP_HOST"),
			Port:     smtpPort,
			Username: os.Getenv("SMTP_USER"),
			Password: os.Getenv("SMTP_PASS"),
			From:     getEnv("SMTP_FROM", os.Getenv("SMTP_USER")),
			To:       splitList(os.Getenv("DIGEST_TO")),
		},

		FirebaseCredentials: os.Getenv("FIREBASE_CREDENTIALS"),
	}

	switch cfg.DBDriver {
	case "sqlite", "postgres", "mysql":
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.DBDriver)
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
