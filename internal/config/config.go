package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"dailyagenda/internal/mail"
	"dailyagenda/internal/notion"
)

const (
	KindICS    = "ics"
	KindGoogle = "google"

	defaultListen    = "127.0.0.1:8080"
	defaultTimezone  = "America/New_York"
	defaultSchedule  = "0 7 * * *"
	defaultCachePath = "./var/feed-cache"
	defaultSMTPPort  = 587
)

// CalendarConfig describes a single calendar source.
type CalendarConfig struct {
	// ID is an internal identifier used for logging.
	ID string `yaml:"id" json:"id"`
	// Name, if set, overrides the name the feed declares.
	Name string `yaml:"name,omitempty" json:"name,omitempty"`
	// Kind is "ics" (default) or "google".
	Kind string `yaml:"kind,omitempty" json:"kind,omitempty"`
	// URL is the ICS subscription endpoint (kind ics).
	URL string `yaml:"url,omitempty" json:"url,omitempty"`
	// CalendarID is the Google calendar ID (kind google).
	CalendarID string `yaml:"calendar_id,omitempty" json:"calendar_id,omitempty"`
}

// NotionConfig lists the task databases to query.
type NotionConfig struct {
	Token     string                           `yaml:"token,omitempty" json:"-"`
	Databases map[string]notion.DatabaseConfig `yaml:"databases" json:"databases"`
}

// CacheConfig controls the on-disk feed cache.
type CacheConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path" json:"path"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the preview server.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Timezone is the IANA zone the agenda is computed in.
	Timezone string `yaml:"timezone" json:"timezone"`

	// Schedule is the cron expression for daily runs in serve mode.
	Schedule string `yaml:"schedule" json:"schedule"`

	// Listen is the HTTP listen address of the preview server.
	Listen string `yaml:"listen" json:"listen"`

	Calendars []CalendarConfig `yaml:"calendars" json:"calendars"`
	Notion    NotionConfig     `yaml:"notion" json:"notion"`
	SMTP      mail.Config      `yaml:"smtp" json:"-"`
	Cache     CacheConfig      `yaml:"cache" json:"cache"`

	// GoogleCredentials is a service account JSON, needed by google calendars.
	GoogleCredentials string `yaml:"google_credentials,omitempty" json:"-"`

	// BasicAuth, if non-nil, protects every endpoint except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"-"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Timezone:  defaultTimezone,
		Schedule:  defaultSchedule,
		Listen:    defaultListen,
		Calendars: []CalendarConfig{},
		Notion:    NotionConfig{Databases: map[string]notion.DatabaseConfig{}},
		SMTP:      mail.Config{Port: defaultSMTPPort},
		Cache:     CacheConfig{Enabled: true, Path: defaultCachePath},
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.Timezone == "" {
		c.Timezone = defaultTimezone
	}
	if c.Schedule == "" {
		c.Schedule = defaultSchedule
	}
	if c.Calendars == nil {
		c.Calendars = []CalendarConfig{}
	}
	for i := range c.Calendars {
		cal := &c.Calendars[i]
		if cal.Kind == "" {
			cal.Kind = KindICS
		}
		if cal.ID == "" {
			cal.ID = fmt.Sprintf("cal-%d", i+1)
		}
	}
	if c.Notion.Databases == nil {
		c.Notion.Databases = map[string]notion.DatabaseConfig{}
	}
	if c.SMTP.Port == 0 {
		c.SMTP.Port = defaultSMTPPort
	}
	if c.Cache.Path == "" {
		c.Cache.Path = defaultCachePath
	}
}

// Location resolves Timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Validate checks the settings every run needs. SMTP is validated by the
// mail package only when a message is actually sent.
func (c *Config) Validate() error {
	if _, err := c.Location(); err != nil {
		return err
	}
	var errs []error
	for _, cal := range c.Calendars {
		switch cal.Kind {
		case KindICS:
			if cal.URL == "" {
				errs = append(errs, fmt.Errorf("calendar %s: url is required", cal.ID))
			}
		case KindGoogle:
			if c.GoogleCredentials == "" {
				errs = append(errs, fmt.Errorf("calendar %s: google credentials are required", cal.ID))
			}
		default:
			errs = append(errs, fmt.Errorf("calendar %s: unknown kind %q", cal.ID, cal.Kind))
		}
	}
	return errors.Join(errs...)
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.Normalize()

	return cfg, nil
}

// Save writes cfg atomically (temp file + rename) with 0600 permissions,
// creating the parent directory with 0700 if needed.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".agenda-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

func (c *Config) Save(path string) error {
	return Save(path, c)
}
