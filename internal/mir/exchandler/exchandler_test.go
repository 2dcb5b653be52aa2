package exchandler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unravel-dec/unravel/internal/diag"
	"github.com/unravel-dec/unravel/internal/mir"
)

const (
	ioException        mir.ArgType = "java.io.IOException"
	exception          mir.ArgType = "java.lang.Exception"
	illegalState       mir.ArgType = "java.lang.IllegalStateException"
	fileNotFound       mir.ArgType = "java.io.FileNotFoundException"
	runtimeException   mir.ArgType = "java.lang.RuntimeException"
	unrelatedThrowable mir.ArgType = "z.Unrelated"
)

func TestNoHandlers(t *testing.T) {
	f := newFixture(t)
	f.block(0, insn(mir.InsnReturn, 0))

	handled, err := New().Process(f.m)

	require.NoError(t, err)
	assert.False(t, handled)
}

func TestSingleTryBlock(t *testing.T) {
	f := newFixture(t)
	h := f.handler(0x10, ioException)
	b0 := f.block(0, insn(mir.InsnConst, 0))
	b1 := f.block(2, covered(mir.InsnInvoke, 2, h))
	b2 := f.block(4, insn(mir.InsnReturn, 4))
	b3 := f.block(0x10, moveException(0x10, 0))
	b4 := f.block(0x12, insn(mir.InsnThrow, 0x12))
	f.edge(b0, b1)
	f.edge(b1, b2)
	f.edge(b3, b4)
	f.entry(h, b3, b1)

	f.process()
	m := f.m

	require.Len(t, m.TryBlocks, 1)
	tb := m.TryBlocks[0]
	assert.Equal(t, []*mir.ExceptionHandler{h}, tb.Handlers())
	assert.Equal(t, []mir.BlockID{b1}, tb.Blocks())
	assert.Equal(t, tb, m.Block(b1).TryBlock)

	// handler
	assert.Equal(t, b3, h.HandlerBlock())
	assert.Equal(t, []mir.BlockID{b3, b4}, h.Blocks())
	assert.Equal(t, b3, m.Block(b3).Handler.Handler.HandlerBlock())
	arg, ok := h.Arg().(*mir.RegisterArg)
	require.True(t, ok)
	assert.Equal(t, ioException, arg.Type)
	assert.True(t, arg.Has(mir.RegCustomDeclare))
	assert.True(t, m.Block(b3).LastInsn().Has(mir.InsnDontInline))
	assert.Equal(t, mir.NoBlock, m.Block(b3).TmpEdge)

	// splitters
	top := m.Block(tb.TopSplitter())
	require.NotNil(t, top)
	assert.True(t, top.Has(mir.FlagExcTopSplitter|mir.FlagSynthetic))
	assert.Equal(t, []mir.BlockID{b0}, top.Preds)
	assert.Equal(t, []mir.BlockID{b1, b3}, top.Succs)
	assert.Equal(t, []mir.BlockID{b1}, top.CleanSuccs)

	b1Block := m.Block(b1)
	require.Len(t, b1Block.Succs, 2)
	bottom := m.Block(b1Block.Succs[1])
	assert.True(t, bottom.Has(mir.FlagExcBottomSplitter|mir.FlagSynthetic))
	assert.Equal(t, []mir.BlockID{b3}, bottom.Succs)
	assert.Equal(t, []mir.BlockID{b2}, b1Block.CleanSuccs)
	assert.ElementsMatch(t, []mir.BlockID{top.ID, bottom.ID}, m.Block(b3).Preds)

	assert.Empty(t, m.Diagnostics())
}

func TestCatchAttrPromotion(t *testing.T) {
	f := newFixture(t)
	h1 := f.handler(0x10, ioException)
	h2 := f.handler(0x20, exception)

	enter := covered(mir.InsnInvoke, 0, h1)
	enter.Add(mir.InsnTryEnter)
	same := f.block(0, covered(mir.InsnConst, 0, h2), enter, insn(mir.InsnMove, 2), covered(mir.InsnInvoke, 4, h1))
	mixed := f.block(6, covered(mir.InsnInvoke, 6, h1), covered(mir.InsnInvoke, 8, h2))
	f.edge(same, mixed)

	pr := &processor{m: f.m, cfg: defaultConfig(), log: defaultConfig().logger}
	pr.processCatchAttr()

	sameBlock := f.m.Block(same)
	assert.Nil(t, sameBlock.Insns[0].Catch, "const can't throw")
	require.NotNil(t, sameBlock.Catch)
	assert.Equal(t, []*mir.ExceptionHandler{h1}, sameBlock.Catch.Handlers())
	assert.True(t, sameBlock.Has(mir.FlagTryEnter))
	assert.False(t, sameBlock.Has(mir.FlagTryLeave))
	assert.Nil(t, f.m.Block(mixed).Catch)
}

func TestDisjointTryBlocks(t *testing.T) {
	f := newFixture(t)
	h1 := f.handler(0x10, ioException)
	h2 := f.handler(0x20, illegalState)
	b0 := f.block(0, insn(mir.InsnConst, 0))
	b1 := f.block(1, covered(mir.InsnInvoke, 1, h1))
	b2 := f.block(2, insn(mir.InsnConst, 2))
	b3 := f.block(3, covered(mir.InsnInvoke, 3, h2))
	b4 := f.block(4, insn(mir.InsnReturn, 4))
	b5 := f.block(0x10, moveException(0x10, 0))
	b6 := f.block(0x11, insn(mir.InsnReturn, 0x11))
	b7 := f.block(0x20, moveException(0x20, 1))
	b8 := f.block(0x21, insn(mir.InsnReturn, 0x21))
	f.edge(b0, b1)
	f.edge(b1, b2)
	f.edge(b2, b3)
	f.edge(b3, b4)
	f.edge(b5, b6)
	f.edge(b7, b8)
	f.entry(h1, b5, b1)
	f.entry(h2, b7, b3)

	f.process()
	m := f.m

	require.Len(t, m.TryBlocks, 2)
	t1 := regionWithHandler(t, m, h1)
	t2 := regionWithHandler(t, m, h2)
	assert.NotEqual(t, t1, t2)
	for _, tb := range []*mir.TryCatchBlockAttr{t1, t2} {
		assert.Nil(t, tb.OuterTryBlock())
		assert.Empty(t, tb.InnerTryBlocks())
		assert.Len(t, tb.Handlers(), 1)
	}
	assert.Equal(t, []mir.BlockID{b1}, t1.Blocks())
	assert.Equal(t, []mir.BlockID{b3}, t2.Blocks())
	assert.Equal(t, t1, m.Block(b1).TryBlock)
	assert.Equal(t, t2, m.Block(b3).TryBlock)
	assert.NotEqual(t, t1.TopSplitter(), t2.TopSplitter())
}

// nestedGraph builds a method where the body of h1's handler is itself
// protected by h2, which also covers the outer try block.
func nestedGraph(f *fixture, h1, h2 *mir.ExceptionHandler) (outerTry, handlerTry, h1Entry, h2Entry mir.BlockID) {
	b0 := f.block(0, insn(mir.InsnConst, 0))
	b1 := f.block(2, covered(mir.InsnInvoke, 2, h1, h2))
	b2 := f.block(0x10, moveException(0x10, 0))
	b3 := f.block(0x12, covered(mir.InsnInvoke, 0x12, h2))
	b4 := f.block(0x14, insn(mir.InsnReturn, 0x14))
	b5 := f.block(0x20, moveException(0x20, 1))
	b6 := f.block(0x22, insn(mir.InsnThrow, 0x22))
	f.edge(b0, b1)
	f.edge(b1, b4)
	f.edge(b2, b3)
	f.edge(b3, b4)
	f.edge(b5, b6)
	f.entry(h1, b2, b1)
	f.entry(h2, b5, b1)
	return b1, b3, b2, b5
}

func TestNestedTryBlocks(t *testing.T) {
	f := newFixture(t)
	h1 := f.handler(0x10, ioException)
	h2 := f.handler(0x20, exception)
	b1, b3, b2, b5 := nestedGraph(f, h1, h2)

	f.process()
	m := f.m

	require.Len(t, m.TryBlocks, 2)
	inner := regionWithHandler(t, m, h1)
	outer := regionWithHandler(t, m, h2)

	assert.Equal(t, []*mir.ExceptionHandler{h1}, inner.Handlers())
	assert.Equal(t, []*mir.ExceptionHandler{h2}, outer.Handlers())
	assert.Equal(t, outer, inner.OuterTryBlock())
	assert.Equal(t, []*mir.TryCatchBlockAttr{inner}, outer.InnerTryBlocks())
	assert.Nil(t, outer.OuterTryBlock())
	assert.Equal(t, []mir.BlockID{b1}, inner.Blocks())
	assert.ElementsMatch(t, []mir.BlockID{b1, b3}, outer.Blocks())

	// the inner region keeps its attachment
	assert.Equal(t, inner, m.Block(b1).TryBlock)
	assert.Equal(t, outer, m.Block(b3).TryBlock)

	// nested regions share the top splitter, wired to both handlers
	require.Equal(t, inner.TopSplitter(), outer.TopSplitter())
	top := m.Block(inner.TopSplitter())
	assert.ElementsMatch(t, []mir.BlockID{b1, b2, b5}, top.Succs)
	assert.Equal(t, []mir.BlockID{h1.HandlerBlock(), h2.HandlerBlock()}, []mir.BlockID{b2, b5})
}

func TestCatchAllIsNeverInner(t *testing.T) {
	f := newFixture(t)
	h1 := f.handler(0x10)
	h2 := f.handler(0x20, exception)
	b1, b3, _, _ := nestedGraph(f, h1, h2)

	f.process()
	m := f.m

	require.Len(t, m.TryBlocks, 1)
	tb := m.TryBlocks[0]
	assert.Equal(t, []*mir.ExceptionHandler{h2}, tb.Handlers())
	assert.ElementsMatch(t, []mir.BlockID{b1, b3}, tb.Blocks())
	assert.Nil(t, tb.OuterTryBlock())
	assert.Empty(t, tb.InnerTryBlocks())
	assert.Equal(t, tb, m.Block(b1).TryBlock)
	assert.Equal(t, tb, m.Block(b3).TryBlock)
}

func TestRedundantHandler(t *testing.T) {
	f := newFixture(t)
	h := f.handler(4, exception)
	b0 := f.block(0, insn(mir.InsnConst, 0))
	b1 := f.block(2, covered(mir.InsnInvoke, 2, h))
	b2 := f.block(4, insn(mir.InsnConst, 4), insn(mir.InsnReturn, 5))
	f.edge(b0, b1)
	f.edge(b1, b2)
	f.entry(h, b2, mir.NoBlock)

	f.process()
	m := f.m

	standIn := m.Block(h.HandlerBlock())
	require.NotEqual(t, b2, standIn.ID)
	assert.True(t, standIn.Has(mir.FlagSynthetic))
	assert.Empty(t, standIn.Insns)
	require.NotNil(t, standIn.Handler)
	assert.Equal(t, h, standIn.Handler.Handler)
	assert.Equal(t, []mir.BlockID{standIn.ID}, h.Blocks())
	assert.Equal(t, []mir.BlockID{b2}, standIn.Succs)

	// the original block is untouched and still reached normally
	b2Block := m.Block(b2)
	assert.Nil(t, b2Block.Handler)
	assert.Contains(t, b2Block.Preds, b1)
	assert.Contains(t, m.Block(b1).CleanSuccs, b2)
	assert.Nil(t, b2Block.FirstInsn().ExcHandler)

	arg, ok := h.Arg().(*mir.NamedArg)
	require.True(t, ok)
	assert.Equal(t, "unused", arg.Name)
	assert.Equal(t, exception, arg.Type)
	require.Len(t, m.TryBlocks, 1)
}

func TestMultiCatch(t *testing.T) {
	f := newFixture(t)
	h1 := f.handler(0x10, ioException)
	h2 := f.handler(0x20, illegalState)
	b0 := f.block(0, insn(mir.InsnConst, 0))
	b1 := f.block(2, covered(mir.InsnInvoke, 2, h1, h2))
	b2 := f.block(0x10, moveException(0x10, 0))
	b3 := f.block(0x30, insn(mir.InsnInvoke, 0x30), insn(mir.InsnReturn, 0x32))
	b4 := f.block(4, insn(mir.InsnReturn, 4))
	b5 := f.block(0x20, moveException(0x20, 0))
	f.edge(b0, b1)
	f.edge(b1, b4)
	f.edge(b2, b3)
	f.edge(b5, b3)
	f.entry(h1, b2, b1)
	f.entry(h2, b5, b1)

	f.process()
	m := f.m

	require.Len(t, m.TryBlocks, 1)
	tb := m.TryBlocks[0]
	assert.Equal(t, []*mir.ExceptionHandler{h1}, tb.Handlers())
	assert.Equal(t, []mir.ArgType{ioException, illegalState}, h1.CatchTypes())
	assert.Equal(t, mir.Throwable, h1.Arg().ArgType())
	assert.True(t, h2.IsRemoved())
	assert.Equal(t, []*mir.ExceptionHandler{h1}, m.Handlers())
	assert.False(t, m.IsLive(b5))
	assert.Equal(t, []mir.BlockID{b2}, m.Block(b3).Preds)

	// merging again finds nothing to do
	pr := &processor{m: m, cfg: defaultConfig(), log: defaultConfig().logger}
	assert.False(t, pr.mergeMultiCatch(tb))
}

func TestMultiCatchNeedsSameRegister(t *testing.T) {
	f := newFixture(t)
	h1 := f.handler(0x10, ioException)
	h2 := f.handler(0x20, illegalState)
	b0 := f.block(0, insn(mir.InsnConst, 0))
	b1 := f.block(2, covered(mir.InsnInvoke, 2, h1, h2))
	b2 := f.block(0x10, moveException(0x10, 0))
	b3 := f.block(0x30, insn(mir.InsnReturn, 0x30))
	b4 := f.block(4, insn(mir.InsnReturn, 4))
	b5 := f.block(0x20, moveException(0x20, 1))
	f.edge(b0, b1)
	f.edge(b1, b4)
	f.edge(b2, b3)
	f.edge(b5, b3)
	f.entry(h1, b2, b1)
	f.entry(h2, b5, b1)

	f.process()

	require.Len(t, f.m.TryBlocks, 1)
	assert.ElementsMatch(t, []*mir.ExceptionHandler{h1, h2}, f.m.TryBlocks[0].Handlers())
	assert.False(t, h2.IsRemoved())
	assert.Equal(t, []mir.ArgType{ioException}, h1.CatchTypes())
}

func TestMonitorExitRemovedFromHandler(t *testing.T) {
	f := newFixture(t)
	h := f.handler(0x10)
	b0 := f.block(0, insn(mir.InsnMonitorEnter, 0))
	b1 := f.block(2, covered(mir.InsnInvoke, 2, h))
	b2 := f.block(4, insn(mir.InsnMonitorExit, 4), insn(mir.InsnReturn, 5))
	b3 := f.block(0x10, moveException(0x10, 0))
	b4 := f.block(0x12,
		insn(mir.InsnMonitorExit, 0x12),
		insn(mir.InsnMonitorEnter, 0x13),
		insn(mir.InsnMonitorExit, 0x14),
		insn(mir.InsnThrow, 0x15))
	f.edge(b0, b1)
	f.edge(b1, b2)
	f.edge(b3, b4)
	f.entry(h, b3, b1)

	f.process()

	var types []mir.InsnType
	for _, i := range f.m.Block(b4).Insns {
		types = append(types, i.Type)
	}
	assert.Equal(t, []mir.InsnType{mir.InsnMonitorEnter, mir.InsnMonitorExit, mir.InsnThrow}, types)
	assert.Equal(t, mir.InsnMonitorExit, f.m.Block(b2).FirstInsn().Type, "only handler bodies are cleaned")
}

func TestUnreachableHandlerDropped(t *testing.T) {
	f := newFixture(t)
	h1 := f.handler(0x10, ioException)
	h2 := f.handler(0x20, illegalState)
	b0 := f.block(0, insn(mir.InsnConst, 0))
	b1 := f.block(2, covered(mir.InsnInvoke, 2, h1))
	b2 := f.block(4, insn(mir.InsnReturn, 4))
	b3 := f.block(0x10, moveException(0x10, 0))
	b4 := f.block(0x12, insn(mir.InsnThrow, 0x12))
	b5 := f.block(0x20, moveException(0x20, 1))
	b6 := f.block(0x22, insn(mir.InsnThrow, 0x22))
	f.edge(b0, b1)
	f.edge(b1, b2)
	f.edge(b3, b4)
	f.edge(b5, b6)
	f.entry(h1, b3, b1)
	f.entry(h2, b5, b1)

	f.process()
	m := f.m

	assert.True(t, h2.IsRemoved())
	assert.Equal(t, []*mir.ExceptionHandler{h1}, m.Handlers())
	assert.False(t, m.IsLive(b5))
	assert.False(t, m.IsLive(b6))
	require.Len(t, m.TryBlocks, 1)
	assert.Equal(t, []*mir.ExceptionHandler{h1}, m.TryBlocks[0].Handlers())

	ds := m.Diagnostics()
	require.Len(t, ds, 1)
	assert.Equal(t, diag.SeverityWarning, ds[0].Severity)
	assert.Equal(t, diag.CodeExcHandlerUnreachable, ds[0].Code)
	assert.Equal(t, m.Name, ds[0].Location.Method)
	assert.False(t, m.HasErrors())
}

func TestNoCoverageRemovesAllHandlers(t *testing.T) {
	f := newFixture(t)
	h := f.handler(0x10, ioException)
	b0 := f.block(0, insn(mir.InsnConst, 0))
	b1 := f.block(2, covered(mir.InsnConst, 2, h), insn(mir.InsnReturn, 3))
	b2 := f.block(0x10, moveException(0x10, 0))
	f.edge(b0, b1)
	f.entry(h, b2, b1)

	f.process()

	assert.Empty(t, f.m.TryBlocks)
	assert.False(t, f.m.HasExceptionHandlers())
	assert.False(t, f.m.IsLive(b2))
	assert.Nil(t, f.m.Block(b1).Catch)
}

func TestHandlersOrderedByHierarchy(t *testing.T) {
	base, sub := mir.ArgType("a.Base"), mir.ArgType("z.Sub")
	tests := []struct {
		name      string
		hierarchy mir.TypeHierarchy
		want      []mir.ArgType
	}{
		{name: "by name", hierarchy: mir.NewClassHierarchy(), want: []mir.ArgType{base, sub}},
		{name: "subtype first", hierarchy: mir.NewClassHierarchy().Add(sub, base), want: []mir.ArgType{sub, base}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			hBase := f.handler(0x10, base)
			hSub := f.handler(0x20, sub)
			b0 := f.block(0, insn(mir.InsnConst, 0))
			b1 := f.block(2, covered(mir.InsnInvoke, 2, hBase, hSub))
			b2 := f.block(4, insn(mir.InsnReturn, 4))
			b3 := f.block(0x10, moveException(0x10, 0), insn(mir.InsnThrow, 0x11))
			b4 := f.block(0x20, moveException(0x20, 0), insn(mir.InsnThrow, 0x21))
			f.edge(b0, b1)
			f.edge(b1, b2)
			f.entry(hBase, b3, b1)
			f.entry(hSub, b4, b1)

			f.process(WithTypeHierarchy(tt.hierarchy))

			require.Len(t, f.m.TryBlocks, 1)
			var got []mir.ArgType
			for _, h := range f.m.TryBlocks[0].Handlers() {
				got = append(got, h.ArgType())
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBottomSplitKeepsOutsideEdges(t *testing.T) {
	f := newFixture(t)
	h := f.handler(0x10, ioException)
	b0 := f.block(0, insn(mir.InsnConst, 0))
	b1 := f.block(1, insn(mir.InsnSwitch, 1))
	b2 := f.block(2, covered(mir.InsnInvoke, 2, h))
	b3 := f.block(3, covered(mir.InsnInvoke, 3, h))
	b4 := f.block(4, insn(mir.InsnConst, 4))
	b5 := f.block(5, insn(mir.InsnReturn, 5))
	b6 := f.block(0x10, moveException(0x10, 0))
	b7 := f.block(0x12, insn(mir.InsnThrow, 0x12))
	f.edge(b0, b1)
	f.edge(b1, b2, b3, b4)
	f.edge(b2, b5)
	f.edge(b3, b5)
	f.edge(b4, b5)
	f.edge(b6, b7)
	f.entry(h, b6, b2)

	f.process()
	m := f.m

	require.Len(t, m.TryBlocks, 1)
	assert.ElementsMatch(t, []mir.BlockID{b2, b3}, m.TryBlocks[0].Blocks())

	// the region now leaves through a new block in front of the join point
	require.Len(t, m.Block(b2).Succs, 1)
	join := m.Block(m.Block(b2).Succs[0])
	require.NotEqual(t, b5, join.ID)
	assert.True(t, join.Has(mir.FlagSynthetic))
	assert.ElementsMatch(t, []mir.BlockID{b2, b3}, join.Preds)
	assert.Equal(t, []mir.BlockID{join.ID}, m.Block(b3).Succs)
	assert.Contains(t, join.Succs, b5)
	assert.ElementsMatch(t, []mir.BlockID{join.ID, b4}, m.Block(b5).Preds)
	assert.Equal(t, []mir.BlockID{b5}, m.Block(b4).Succs)

	// the bottom splitter hangs off the join block
	bottom := m.BlockWithFlag(join.Succs, mir.FlagExcBottomSplitter)
	require.True(t, bottom.IsValid())
	assert.Equal(t, []mir.BlockID{b6}, m.Block(bottom).Succs)
}
