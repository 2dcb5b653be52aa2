// Package exchandler rebuilds structured try/catch regions from per-instruction
// catch coverage. It runs once per method after the block graph is built:
//
//  1. catch attributes are promoted from instructions to blocks
//  2. handler entry blocks are initialized and their bodies collected
//  3. blocks are grouped into try regions, which are merged or nested
//  4. each region is wrapped with splitter blocks wired to its handlers
//
// The result is stored in Method.TryBlocks and attached to the covered blocks.
package exchandler

import (
	"github.com/rs/zerolog"

	"github.com/unravel-dec/unravel/internal/mir"
	"github.com/unravel-dec/unravel/internal/mir/dom"
)

// Pass is the exception handler reconstruction pass. A Pass holds only
// configuration and may be shared between goroutines processing different
// methods.
type Pass struct {
	cfg *config
}

// New creates the pass with the given options.
func New(opts ...Option) *Pass {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return &Pass{cfg: cfg}
}

// Name returns the pass name used in logs and diagnostics.
func (p *Pass) Name() string { return "exc-handlers" }

// Visit runs the pass over one method.
func (p *Pass) Visit(m *mir.Method) error {
	_, err := p.Process(m)
	return err
}

// Process rebuilds the try regions of the method. It reports false when the
// method declares no exception handlers and was left untouched.
func (p *Pass) Process(m *mir.Method) (bool, error) {
	if !m.HasExceptionHandlers() {
		return false, nil
	}
	pr := &processor{
		m:   m,
		cfg: p.cfg,
		log: p.cfg.logger.With().Str("method", m.Name).Logger(),
	}
	if p.cfg.debug {
		pr.log.Debug().Msgf("before exception handler processing:\n%s", m.Dump())
	}

	m.UpdateAllCleanSuccessors()

	pr.processCatchAttr()
	pr.initExcHandlers()

	tryBlocks, err := pr.prepareTryBlocks()
	if err != nil {
		return true, err
	}
	if err := pr.connectExcHandlers(tryBlocks); err != nil {
		return true, err
	}
	m.TryBlocks = tryBlocks

	m.UpdateAllCleanSuccessors()
	for _, h := range m.Handlers() {
		pr.removeMonitorExit(h)
	}
	m.DetachMarked()
	m.UpdateAllCleanSuccessors()

	if p.cfg.debug {
		pr.log.Debug().Msgf("after exception handler processing:\n%s", m.Dump())
	}
	return true, nil
}

// processor holds the state of one pass run over one method.
type processor struct {
	m   *mir.Method
	cfg *config
	log zerolog.Logger

	tree      *dom.Tree
	nextTryID int
}

// domTree returns the dominator tree, recomputing it if the graph changed
// since the last query.
func (p *processor) domTree() *dom.Tree {
	if p.tree == nil || p.tree.Stale() {
		p.m.UpdateAllCleanSuccessors()
		p.tree = dom.Compute(p.m)
	}
	return p.tree
}

func (p *processor) debugEnabled() bool {
	return p.log.GetLevel() <= zerolog.DebugLevel
}
