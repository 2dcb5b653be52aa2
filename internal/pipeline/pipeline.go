// Package pipeline runs decompiler passes over methods. A failure in one
// method is recorded on that method and never stops the others.
package pipeline

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/unravel-dec/unravel/internal/diag"
	"github.com/unravel-dec/unravel/internal/mir"
)

// Pass is a transformation applied to one method at a time.
type Pass interface {
	Name() string
	Visit(m *mir.Method) error
}

// invariantChecker is implemented by errors that report a broken internal
// invariant rather than bad input.
type invariantChecker func(error) bool

type config struct {
	logger      zerolog.Logger
	isInvariant invariantChecker
}

// Option configures a Runner.
type Option func(*config)

// WithLogger sets the logger pass failures are reported to.
func WithLogger(logger zerolog.Logger) Option {
	return func(cfg *config) {
		cfg.logger = logger
	}
}

// WithInvariantCheck tells the runner how to recognize internal invariant
// violations, which are reported with diag.CodeInternalInvariant.
func WithInvariantCheck(fn func(error) bool) Option {
	return func(cfg *config) {
		cfg.isInvariant = fn
	}
}

// Runner applies passes to methods.
type Runner struct {
	cfg *config
}

// New creates a runner.
func New(opts ...Option) *Runner {
	cfg := &config{logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(cfg)
	}
	return &Runner{cfg: cfg}
}

// Visit applies the pass to the method. Methods that already carry an error
// are skipped. A returned error or a panic is attached to the method as an
// error diagnostic and returned.
func (r *Runner) Visit(pass Pass, m *mir.Method) (err error) {
	if m.HasErrors() {
		return nil
	}
	defer func() {
		if rec := recover(); rec != nil {
			err = errors.Errorf("panic in %s: %v", pass.Name(), rec)
			r.record(pass, m, diag.CodePassPanic, err)
		}
	}()

	if err := pass.Visit(m); err != nil {
		code := diag.CodePassFailed
		if r.cfg.isInvariant != nil && r.cfg.isInvariant(err) {
			code = diag.CodeInternalInvariant
		}
		err = errors.Wrapf(err, "%s failed in %s", pass.Name(), m.Name)
		r.record(pass, m, code, err)
		return err
	}
	return nil
}

func (r *Runner) record(pass Pass, m *mir.Method, code diag.Code, err error) {
	m.AddError(diag.Stage(pass.Name()), code, fmt.Sprintf("%s pass failed", pass.Name()), err)
	r.cfg.logger.Error().
		Err(err).
		Str("pass", pass.Name()).
		Str("method", m.Name).
		Msg("pass failed")
}

// Run applies the passes in order to every method of the module. Failures
// are collected; the returned error lists all of them and is meant for
// reporting only, since each failure is already attached to its method.
func (r *Runner) Run(mod *mir.Module, passes ...Pass) error {
	var result *multierror.Error
	for _, m := range mod.Methods {
		for _, pass := range passes {
			if err := r.Visit(pass, m); err != nil {
				result = multierror.Append(result, err)
			}
		}
	}
	return result.ErrorOrNil()
}
