package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// NOTE: credentials are never written to the config file; ERPConfig only
// names the environment variables that hold them.

// BookingConfig describes a booking-portal ICS feed (Naver, Kakao, ...).
type BookingConfig struct {
	// ID is an internal identifier used as the event source tag and in logs.
	ID string `yaml:"id" json:"id"`
	// Name is a human-friendly label shown in the UI.
	Name string `yaml:"name" json:"name"`
	// URL is the ICS export endpoint.
	URL string `yaml:"url" json:"url"`
	// Resource, if set, is used as the seat hint for events that carry none.
	Resource string `yaml:"resource,omitempty" json:"resource,omitempty"`
}

// SelectorConfig lists the CSS selectors the ERP adapter depends on.
type SelectorConfig struct {
	LoginUser     string `yaml:"login_user" json:"login_user"`
	LoginPassword string `yaml:"login_password" json:"login_password"`
	LoginSubmit   string `yaml:"login_submit" json:"login_submit"`
	Calendar      string `yaml:"calendar" json:"calendar"`
	MemoModal     string `yaml:"memo_modal" json:"memo_modal"`
	MemoText      string `yaml:"memo_text" json:"memo_text"`
	MemoSave      string `yaml:"memo_save" json:"memo_save"`
}

// ERPConfig configures the browser session against the school's ERP.
type ERPConfig struct {
	BaseURL      string `yaml:"base_url" json:"base_url"`
	LoginPath    string `yaml:"login_path" json:"login_path"`
	CalendarPath string `yaml:"calendar_path" json:"calendar_path"`

	// Headless=false opens a visible browser window, handy when the ERP
	// markup changes and selectors need re-checking.
	Headless     bool `yaml:"headless" json:"headless"`
	TimeoutSec   int  `yaml:"timeout_sec" json:"timeout_sec"`
	ModalRetries int  `yaml:"modal_retries" json:"modal_retries"`

	UsernameEnv string `yaml:"username_env" json:"username_env"`
	PasswordEnv string `yaml:"password_env" json:"password_env"`

	Selectors SelectorConfig `yaml:"selectors" json:"selectors"`
}

// Enabled reports whether an ERP base URL is configured.
func (e ERPConfig) Enabled() bool {
	return strings.TrimSpace(e.BaseURL) != ""
}

// Credentials reads the ERP login from the configured environment variables.
func (e ERPConfig) Credentials() (user, password string, err error) {
	user = os.Getenv(e.UsernameEnv)
	password = os.Getenv(e.PasswordEnv)
	if user == "" || password == "" {
		return "", "", fmt.Errorf("config: ERP credentials missing; set %s and %s", e.UsernameEnv, e.PasswordEnv)
	}
	return user, password, nil
}

// GridConfig controls the weekly seat grid.
type GridConfig struct {
	// ResourcePrefix is the seat family, e.g. "dobong" for dobong-1..dobong-9.
	ResourcePrefix string `yaml:"resource_prefix" json:"resource_prefix"`
	// Seats is how many numbered seat columns are always shown (1..9).
	Seats int `yaml:"seats" json:"seats"`
	// FallbackResource is the column for events without a seat hint.
	FallbackResource string `yaml:"fallback_resource" json:"fallback_resource"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the Web UI/API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the Web UI and API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA timezone used as the front desk's local time.
	Timezone string `yaml:"timezone" json:"timezone"`

	// WeekStart is the first weekday of the grid: "sunday" .. "saturday".
	WeekStart string `yaml:"week_start" json:"week_start"`

	// RefreshCron is the cron schedule for re-syncing the current week.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	LogLevel string `yaml:"log_level" json:"log_level"`

	// DBPath is the SQLite memo journal.
	DBPath string `yaml:"db_path" json:"db_path"`

	// CacheDir holds booking feed caches and debug screenshots.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	Grid    GridConfig      `yaml:"grid" json:"grid"`
	ERP     ERPConfig       `yaml:"erp" json:"erp"`
	Booking []BookingConfig `yaml:"booking" json:"booking"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

func defaultSelectors() SelectorConfig {
	return SelectorConfig{
		LoginUser:     "#login_id",
		LoginPassword: "#login_pw",
		LoginSubmit:   "button[type=submit]",
		Calendar:      "#calendar",
		MemoModal:     "#memoModal",
		MemoText:      "#memoModal textarea[name=memo]",
		MemoSave:      "#memoModal .btn-save",
	}
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:      "127.0.0.1:8080",
		Timezone:    "Asia/Seoul",
		WeekStart:   "monday",
		RefreshCron: "*/10 * * * *",
		LogLevel:    "info",
		DBPath:      "./var/drivecal.db",
		CacheDir:    "./var/cache",
		Grid: GridConfig{
			ResourcePrefix:   "dobong",
			Seats:            9,
			FallbackResource: "unassigned",
		},
		ERP: ERPConfig{
			LoginPath:    "/login",
			CalendarPath: "/reservation/calendar",
			Headless:     true,
			TimeoutSec:   60,
			ModalRetries: 3,
			UsernameEnv:  "DRIVECAL_ERP_USER",
			PasswordEnv:  "DRIVECAL_ERP_PASSWORD",
			Selectors:    defaultSelectors(),
		},
		Booking:   []BookingConfig{},
		BasicAuth: nil,
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	def := DefaultConfig()

	if c.Listen == "" {
		c.Listen = def.Listen
	}
	if c.Timezone == "" {
		c.Timezone = def.Timezone
	}
	c.WeekStart = strings.ToLower(strings.TrimSpace(c.WeekStart))
	if _, ok := weekdays[c.WeekStart]; !ok {
		// Unknown value; fall back to monday to avoid surprising layouts.
		c.WeekStart = def.WeekStart
	}
	if c.RefreshCron == "" {
		c.RefreshCron = def.RefreshCron
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
	if c.DBPath == "" {
		c.DBPath = def.DBPath
	}
	if c.CacheDir == "" {
		c.CacheDir = def.CacheDir
	}

	if c.Grid.ResourcePrefix == "" {
		c.Grid.ResourcePrefix = def.Grid.ResourcePrefix
	}
	if c.Grid.Seats <= 0 || c.Grid.Seats > 9 {
		c.Grid.Seats = def.Grid.Seats
	}
	if c.Grid.FallbackResource == "" {
		c.Grid.FallbackResource = def.Grid.FallbackResource
	}

	c.ERP.BaseURL = strings.TrimRight(c.ERP.BaseURL, "/")
	if c.ERP.LoginPath == "" {
		c.ERP.LoginPath = def.ERP.LoginPath
	}
	if c.ERP.CalendarPath == "" {
		c.ERP.CalendarPath = def.ERP.CalendarPath
	}
	if c.ERP.TimeoutSec <= 0 {
		c.ERP.TimeoutSec = def.ERP.TimeoutSec
	}
	if c.ERP.ModalRetries <= 0 {
		c.ERP.ModalRetries = def.ERP.ModalRetries
	}
	if c.ERP.UsernameEnv == "" {
		c.ERP.UsernameEnv = def.ERP.UsernameEnv
	}
	if c.ERP.PasswordEnv == "" {
		c.ERP.PasswordEnv = def.ERP.PasswordEnv
	}
	fillSelectors(&c.ERP.Selectors, def.ERP.Selectors)

	if c.Booking == nil {
		c.Booking = []BookingConfig{}
	}
	for i := range c.Booking {
		if c.Booking[i].ID == "" {
			if c.Booking[i].Name != "" {
				c.Booking[i].ID = c.Booking[i].Name
			} else {
				c.Booking[i].ID = fmt.Sprintf("booking-%d", i+1)
			}
		}
	}
}

func fillSelectors(s *SelectorConfig, def SelectorConfig) {
	set := func(v *string, d string) {
		if strings.TrimSpace(*v) == "" {
			*v = d
		}
	}
	set(&s.LoginUser, def.LoginUser)
	set(&s.LoginPassword, def.LoginPassword)
	set(&s.LoginSubmit, def.LoginSubmit)
	set(&s.Calendar, def.Calendar)
	set(&s.MemoModal, def.MemoModal)
	set(&s.MemoText, def.MemoText)
	set(&s.MemoSave, def.MemoSave)
}

// WeekStartsOn maps WeekStart to a time.Weekday (Monday when unknown).
func (c *Config) WeekStartsOn() time.Weekday {
	if d, ok := weekdays[strings.ToLower(strings.TrimSpace(c.WeekStart))]; ok {
		return d
	}
	return time.Monday
}

// Location loads Timezone, falling back to time.Local when it is invalid.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local, fmt.Errorf("config: invalid timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
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
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes the given configuration to the specified path atomically
// (temp file + rename) with 0600 permissions.
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

	tmp, err := os.CreateTemp(dir, ".drivecal-config-*.tmp")
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
