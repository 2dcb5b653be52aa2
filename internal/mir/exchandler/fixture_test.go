package exchandler

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unravel-dec/unravel/internal/mir"
	"github.com/unravel-dec/unravel/internal/mir/dom"
)

// fixture builds method graphs the way the block splitter hands them over:
// per-instruction coverage, raw handler markers and temporary handler edges.
type fixture struct {
	t *testing.T
	m *mir.Method
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return &fixture{t: t, m: mir.NewMethod("Test.run()")}
}

func (f *fixture) block(offset int, insns ...*mir.Insn) mir.BlockID {
	b := f.m.NewBlock(offset).Append(insns...)
	if !f.m.Enter.IsValid() {
		f.m.Enter = b.ID
	}
	return b.ID
}

func (f *fixture) edge(from mir.BlockID, to ...mir.BlockID) {
	for _, id := range to {
		f.m.Connect(from, id)
	}
}

func (f *fixture) handler(offset int, types ...mir.ArgType) *mir.ExceptionHandler {
	return f.m.AddHandler(mir.NewExceptionHandler(offset, types...))
}

// entry marks block as the raw entry of h, reached through a temporary edge
// from tmpFrom unless tmpFrom is NoBlock.
func (f *fixture) entry(h *mir.ExceptionHandler, block, tmpFrom mir.BlockID) {
	b := f.m.Block(block)
	require.NotEmpty(f.t, b.Insns, "handler entry needs an instruction")
	b.Insns[0].ExcHandler = &mir.ExcHandlerAttr{Handler: h}
	if tmpFrom.IsValid() {
		f.m.Connect(tmpFrom, block)
		b.TmpEdge = tmpFrom
	}
}

func (f *fixture) process(opts ...Option) {
	f.t.Helper()
	opts = append([]Option{
		WithLogger(zerolog.New(zerolog.NewTestWriter(f.t)).Level(zerolog.DebugLevel)),
		WithDebug(true),
	}, opts...)
	handled, err := New(opts...).Process(f.m)
	require.NoError(f.t, err)
	require.True(f.t, handled)
	f.checkInvariants()
}

// checkInvariants asserts the properties every processed method must have.
func (f *fixture) checkInvariants() {
	t := f.t
	t.Helper()
	regions := f.m.TryBlocks

	// outer links form a forest
	for _, tb := range regions {
		steps := 0
		for cur := tb.OuterTryBlock(); cur != nil; cur = cur.OuterTryBlock() {
			require.NotEqual(t, tb, cur, "try block #%d is its own ancestor", tb.ID())
			steps++
			require.LessOrEqual(t, steps, len(regions), "outer chain of #%d does not end", tb.ID())
		}
	}

	// handler bodies are dominated by their entry
	tree := dom.Compute(f.m)
	for _, h := range f.m.Handlers() {
		for _, id := range h.Blocks() {
			assert.True(t, tree.Dominates(h.HandlerBlock(), id),
				"%s: body block %s not dominated by entry", h, id)
		}
	}

	// catch-all goes last, every covered block carries a region
	for _, tb := range regions {
		hs := tb.Handlers()
		for i := range hs {
			if hs[i].IsCatchAll() {
				assert.Equal(t, len(hs)-1, i, "catch-all handler not last in #%d", tb.ID())
			}
		}
		for _, id := range tb.Blocks() {
			assert.NotNil(t, f.m.Block(id).TryBlock, "block %s of #%d not attached", id, tb.ID())
		}
	}
}

func insn(typ mir.InsnType, offset int) *mir.Insn {
	return mir.NewInsn(typ, offset)
}

func covered(typ mir.InsnType, offset int, handlers ...*mir.ExceptionHandler) *mir.Insn {
	i := mir.NewInsn(typ, offset)
	i.Catch = mir.NewCatchAttr(handlers...)
	return i
}

func moveException(offset, reg int) *mir.Insn {
	i := mir.NewInsn(mir.InsnMoveException, offset)
	i.Result = &mir.RegisterArg{Reg: reg}
	return i
}

func regionWithHandler(t *testing.T, m *mir.Method, h *mir.ExceptionHandler) *mir.TryCatchBlockAttr {
	t.Helper()
	for _, tb := range m.TryBlocks {
		for _, x := range tb.Handlers() {
			if x == h {
				return tb
			}
		}
	}
	require.FailNow(t, "no try block for handler", "%s", h)
	return nil
}
