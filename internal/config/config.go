package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the service configuration.
type Config struct {
	Port           string `yaml:"port"`
	DatabaseURL    string `yaml:"database_url"`
	MigrationsPath string `yaml:"migrations_path"`
	Timezone       string `yaml:"incident_timezone"`

	Identity    IdentityConfig    `yaml:"identity"`
	RecordStore RecordStoreConfig `yaml:"record_store"`
	Notify      NotifyConfig      `yaml:"notify"`
	Archive     ArchiveConfig     `yaml:"archive"`
	Events      EventsConfig      `yaml:"events"`
}

// IdentityConfig describes the app registration the delegated tokens are
// issued for. The service never runs a login flow itself.
type IdentityConfig struct {
	ClientID    string `yaml:"client_id"`
	TenantID    string `yaml:"tenant_id"`
	RedirectURI string `yaml:"redirect_uri"`
}

// Authority is the token issuer URL for the configured tenant.
func (c IdentityConfig) Authority() string {
	tenant := c.TenantID
	if tenant == "" {
		tenant = "common"
	}
	return "https://login.microsoftonline.com/" + tenant
}

// RecordStoreConfig locates the list that holds the reports.
type RecordStoreConfig struct {
	BaseURL      string        `yaml:"base_url"`
	SiteID       string        `yaml:"site_id"`
	SiteHostname string        `yaml:"site_hostname"`
	SitePath     string        `yaml:"site_path"`
	ListName     string        `yaml:"list_name"`
	Timeout      time.Duration `yaml:"timeout"`
}

type NotifyConfig struct {
	TelegramToken string `yaml:"telegram_token"`
	SafetyChatID  int64  `yaml:"safety_chat_id"`
	FontPath      string `yaml:"font_path"`
}

type ArchiveConfig struct {
	Bucket string `yaml:"bucket"`
}

type EventsConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Port:           "8080",
		MigrationsPath: "file://migrations",
		Timezone:       "UTC",
		RecordStore: RecordStoreConfig{
			BaseURL:  "https://graph.microsoft.com/v1.0",
			ListName: "InjuryReports",
			Timeout:  15 * time.Second,
		},
		Events: EventsConfig{Topic: "injury-reports"},
	}
}

// Load reads the optional YAML file at path, then applies environment
// overrides. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.DatabaseURL = getEnv("DATABASE_URL", cfg.DatabaseURL)
	cfg.MigrationsPath = getEnv("MIGRATIONS_PATH", cfg.MigrationsPath)
	cfg.Timezone = getEnv("INCIDENT_TIMEZONE", cfg.Timezone)

	cfg.Identity.ClientID = getEnv("AZURE_CLIENT_ID", cfg.Identity.ClientID)
	cfg.Identity.TenantID = getEnv("AZURE_TENANT_ID", cfg.Identity.TenantID)
	cfg.Identity.RedirectURI = getEnv("AZURE_REDIRECT_URI", cfg.Identity.RedirectURI)

	cfg.RecordStore.BaseURL = getEnv("GRAPH_BASE_URL", cfg.RecordStore.BaseURL)
	cfg.RecordStore.SiteID = getEnv("SHAREPOINT_SITE_ID", cfg.RecordStore.SiteID)
	cfg.RecordStore.SiteHostname = getEnv("SHAREPOINT_HOSTNAME", cfg.RecordStore.SiteHostname)
	cfg.RecordStore.SitePath = getEnv("SHAREPOINT_SITE_PATH", cfg.RecordStore.SitePath)
	cfg.RecordStore.ListName = getEnv("SHAREPOINT_LIST_NAME", cfg.RecordStore.ListName)
	if v := os.Getenv("GRAPH_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid GRAPH_TIMEOUT %q: %w", v, err)
		}
		cfg.RecordStore.Timeout = d
	}

	cfg.Notify.TelegramToken = getEnv("TELEGRAM_BOT_TOKEN", cfg.Notify.TelegramToken)
	cfg.Notify.FontPath = getEnv("PDF_FONT_PATH", cfg.Notify.FontPath)
	if v := os.Getenv("SAFETY_CHAT_ID"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid SAFETY_CHAT_ID %q: %w", v, err)
		}
		cfg.Notify.SafetyChatID = id
	}

	cfg.Archive.Bucket = getEnv("ARCHIVE_BUCKET", cfg.Archive.Bucket)

	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Events.Brokers = splitList(v)
	}
	cfg.Events.Topic = getEnv("KAFKA_TOPIC", cfg.Events.Topic)
	return nil
}

// Validate checks that the settings needed to reach the record store are
// present. Values are not checked beyond presence.
func (c *Config) Validate() error {
	var errs []error
	rs := c.RecordStore
	if rs.SiteID == "" && (rs.SiteHostname == "" || rs.SitePath == "") {
		errs = append(errs, errors.New("SHAREPOINT_SITE_ID or SHAREPOINT_HOSTNAME and SHAREPOINT_SITE_PATH must be set"))
	}
	if rs.ListName == "" {
		errs = append(errs, errors.New("SHAREPOINT_LIST_NAME must be set"))
	}
	if rs.BaseURL == "" {
		errs = append(errs, errors.New("GRAPH_BASE_URL must be set"))
	}
	return errors.Join(errs...)
}

// Location resolves the incident timezone, falling back to UTC.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || strings.EqualFold(c.Timezone, "UTC") {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC, fmt.Errorf("unknown incident timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// NotificationsEnabled reports whether safety alerts can be delivered.
func (c *Config) NotificationsEnabled() bool {
	return c.Notify.TelegramToken != "" && c.Notify.SafetyChatID != 0
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
