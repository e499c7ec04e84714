package internal

import (
	"io"

	"github.com/starford/ansuz/internal/content"
	"github.com/starford/ansuz/internal/parser"
)

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config  *Config
	parsers map[string]parser.Parser
	hooks   content.Hooks
	logOut  io.Writer
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithParser registers a custom parser for ext, replacing any built-in one.
func WithParser(ext string, p parser.Parser) Option {
	return func(a *application) {
		if a.parsers == nil {
			a.parsers = make(map[string]parser.Parser)
		}
		a.parsers[ext] = p
	}
}

// WithHooks installs the content hooks.
func WithHooks(h content.Hooks) Option {
	return func(a *application) {
		a.hooks = h
	}
}

// WithLogOutput redirects the JSON log stream, stdout by default.
func WithLogOutput(w io.Writer) Option {
	return func(a *application) {
		a.logOut = w
	}
}
