package internal

import (
	"fmt"
	"log/slog"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/ansuz/internal/parser"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App      ApplicationConfig      `yaml:"app"`
	Content  ContentConfig          `yaml:"content"`
	Markdown parser.MarkdownOptions `yaml:"markdown"`
	CSV      parser.CSVOptions      `yaml:"csv"`
	XML      parser.XMLOptions      `yaml:"xml"`
	Search   SearchConfig           `yaml:"search"`
	Snapshot SnapshotConfig         `yaml:"snapshot"`
	Cache    CacheConfig            `yaml:"cache"`
	Auth     AuthConfig             `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Content.Validate(); err != nil {
		return err
	}
	if err := validation.ValidateStruct(&c.CSV,
		validation.Field(&c.CSV.Delimiter, validation.RuneLength(0, 1)),
	); err != nil {
		return fmt.Errorf("csv: %w", err)
	}
	if err := c.Search.Validate(); err != nil {
		return err
	}
	return c.Auth.Validate()
}

// ParserOptions returns the options for the built-in parsers.
func (c *Config) ParserOptions() parser.Options {
	return parser.Options{Markdown: c.Markdown, CSV: c.CSV, XML: c.XML}
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
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

// ContentConfig describes the content tree to index.
//
// Extensions maps additional file extensions onto a built-in one, e.g.
// ".markdown: .md".
type ContentConfig struct {
	Dir        string            `yaml:"dir"`
	Watch      bool              `yaml:"watch"`
	Workers    int               `yaml:"workers"`
	Ignore     []string          `yaml:"ignore"`
	Extensions map[string]string `yaml:"extensions"`
}

// Validate validates the content configuration.
func (c *ContentConfig) Validate() error {
	err := validation.ValidateStruct(c,
		validation.Field(&c.Dir, validation.Required),
		validation.Field(&c.Workers, validation.Min(0)),
	)
	if err != nil {
		return fmt.Errorf("content: %w", err)
	}
	for ext, target := range c.Extensions {
		if !strings.HasPrefix(ext, ".") || !strings.HasPrefix(target, ".") {
			return fmt.Errorf("content: extensions: %q -> %q: extensions start with a dot", ext, target)
		}
	}
	return nil
}

// SearchConfig holds the default fuzzy search keys.
type SearchConfig struct {
	Keys []string `yaml:"keys"`
}

// Validate validates the search configuration.
func (c *SearchConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Keys, validation.Each(validation.Required)),
	)
}

// SnapshotConfig controls where the content snapshot is written.
//
// With Dev set the snapshot keeps a fixed file name and is rewritten after
// every change while serving.
type SnapshotConfig struct {
	Dir string `yaml:"dir"`
	Dev bool   `yaml:"dev"`
}

// CacheConfig holds the parse cache location. An empty path disables it.
type CacheConfig struct {
	Path string `yaml:"path"`
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
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
		Content: ContentConfig{
			Dir:   "./content",
			Watch: true,
		},
		Markdown: parser.DefaultMarkdownOptions(),
		Snapshot: SnapshotConfig{
			Dir: "./.ansuz",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
