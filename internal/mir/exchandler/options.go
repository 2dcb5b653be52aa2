package exchandler

import (
	"github.com/rs/zerolog"

	"github.com/unravel-dec/unravel/internal/mir"
)

const defaultWrapLimitFactor = 3

type config struct {
	logger          zerolog.Logger
	debug           bool
	hierarchy       mir.TypeHierarchy
	wrapLimitFactor int
}

func defaultConfig() *config {
	return &config{
		logger:          zerolog.Nop(),
		hierarchy:       mir.NewClassHierarchy(),
		wrapLimitFactor: defaultWrapLimitFactor,
	}
}

// Option describes a function used to configure the exception handler pass.
type Option func(*config)

// WithLogger sets the logger used for debug output. Events are tagged with
// the method being processed.
func WithLogger(logger zerolog.Logger) Option {
	return func(cfg *config) {
		cfg.logger = logger
	}
}

// WithDebug dumps the whole method before and after processing at debug level.
func WithDebug(enabled bool) Option {
	return func(cfg *config) {
		cfg.debug = enabled
	}
}

// WithTypeHierarchy supplies the class hierarchy used to order handlers so
// that more specific catch types come first.
func WithTypeHierarchy(h mir.TypeHierarchy) Option {
	return func(cfg *config) {
		if h != nil {
			cfg.hierarchy = h
		}
	}
}

// WithWrapLimitFactor bounds the splitter wiring queue to factor times the
// number of try regions. Values below one are ignored.
func WithWrapLimitFactor(factor int) Option {
	return func(cfg *config) {
		if factor >= 1 {
			cfg.wrapLimitFactor = factor
		}
	}
}
