package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/questline/internal/scan"
	pkgconfig "github.com/starford/questline/pkg/config"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App      ApplicationConfig `yaml:"app"`
	Document DocumentConfig    `yaml:"document"`
	Scan     ScanConfig        `yaml:"scan"`
	Export   ExportConfig      `yaml:"export"`
	SQLite   SQLiteConfig      `yaml:"sqlite"`
	Auth     AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Document.Validate(); err != nil {
		return err
	}
	if err := c.Scan.Validate(); err != nil {
		return err
	}
	if err := c.Export.Validate(); err != nil {
		return err
	}
	if err := c.SQLite.Validate(); err != nil {
		return err
	}
	return c.Auth.Validate()
}

// ExpandPaths resolves a leading "~" in every configured path.
func (c *Config) ExpandPaths() error {
	for _, p := range []*string{&c.Document.Path, &c.Export.Dir, &c.SQLite.Path} {
		expanded, err := pkgconfig.ExpandPath(*p)
		if err != nil {
			return err
		}
		*p = expanded
	}
	return nil
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level" env:"QUESTLINE_LOG_LEVEL"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port" env:"QUESTLINE_HTTP_PORT"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// DocumentConfig points at the scene snapshot the plugin operates on.
// Selection, when set, overrides the selection stored in the snapshot.
type DocumentConfig struct {
	Path      string   `yaml:"path" env:"QUESTLINE_DOCUMENT"`
	Selection []string `yaml:"selection" env:"QUESTLINE_SELECTION"`
	Watch     bool     `yaml:"watch" env:"QUESTLINE_WATCH"`
}

// Validate validates the document configuration.
func (c *DocumentConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// ScanConfig holds scanner settings.
type ScanConfig struct {
	Prefix           string        `yaml:"prefix" env:"QUESTLINE_PREFIX"`
	SettleDelay      time.Duration `yaml:"settle_delay" env:"QUESTLINE_SETTLE_DELAY"`
	ProgressThrottle time.Duration `yaml:"progress_throttle"`
}

// Validate validates the scan configuration.
func (c *ScanConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Prefix, validation.Required),
		validation.Field(&c.SettleDelay, validation.Min(time.Duration(0)), validation.Max(10*time.Second)),
		validation.Field(&c.ProgressThrottle, validation.Min(time.Duration(0))),
	)
}

// ExportConfig holds the bundle archive settings. Keep is the number of
// bundles retained per questline; zero keeps everything.
type ExportConfig struct {
	Dir  string `yaml:"dir" env:"QUESTLINE_EXPORT_DIR"`
	Keep int    `yaml:"keep" env:"QUESTLINE_EXPORT_KEEP"`
}

// Validate validates the export configuration.
func (c *ExportConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Dir, validation.Required),
		validation.Field(&c.Keep, validation.Min(0)),
	)
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path" env:"QUESTLINE_SQLITE_PATH"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode" env:"QUESTLINE_AUTH_MODE"`
	Token string `yaml:"token" env:"QUESTLINE_AUTH_TOKEN"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Document: DocumentConfig{
			Path:  "./questline.yaml",
			Watch: true,
		},
		Scan: ScanConfig{
			Prefix:           scan.DefaultPrefix,
			SettleDelay:      scan.DefaultSettleDelay,
			ProgressThrottle: 100 * time.Millisecond,
		},
		Export: ExportConfig{
			Dir:  "./exports",
			Keep: 20,
		},
		SQLite: SQLiteConfig{
			Path: "./questline.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
