/*
 * Copyright 2022 CloudWeGo Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package ddg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudwego/ttasched/mach"
	"github.com/cloudwego/ttasched/prog"
)

func rr(i int) prog.Reg {
	return prog.Reg{File: 0, Index: i}
}

func edgestr(ee []*Edge) []string {
	ret := make([]string, 0, len(ee))
	for _, e := range ee {
		ret = append(ret, e.String())
	}
	return ret
}

func buildStraight() *prog.Unit {
	b := prog.NewBuilder(mach.Generic(1), "straight")
	b.Op("add", []prog.Terminal{prog.R(0, 1), prog.R(0, 2)}, []prog.Terminal{prog.R(0, 3)})
	b.Copy(prog.R(0, 3), prog.R(0, 4))
	b.Copy(prog.R(0, 5), prog.R(0, 3))
	return b.LiveOut(rr(3), rr(4)).Build()
}

func TestGraph_RegisterEdges(t *testing.T) {
	g := Build(buildStraight(), false)
	require.NoError(t, g.Validate())
	assert.Equal(t, []string{
		"m2 -raw:r0.3(1)-> m3",
		"m2 -waw:r0.3(1)-> m4",
	}, edgestr(g.Out(g.Node(2))))
	assert.Equal(t, []string{"m3 -war:r0.3(0)-> m4"}, edgestr(g.Out(g.Node(3))))
	assert.Equal(t, []string{"m0 -op(0)-> m1"}, edgestr(g.Out(g.Node(0))))
	assert.Equal(t, []string{"m1 -op(1)-> m2"}, edgestr(g.In(g.Node(2))))
	assert.Contains(t, g.String(), "    m2 -raw:r0.3(1)-> m3\n")
}

func TestGraph_GuardedWrites(t *testing.T) {
	b := prog.NewBuilder(mach.Generic(1), "guarded")
	b.Copy(prog.R(0, 1), prog.R(0, 3))
	b.Copy(prog.R(0, 5), prog.R(0, 3))
	b.Copy(prog.R(0, 3), prog.R(0, 6))
	b.Copy(prog.R(0, 7), prog.R(0, 3))
	b.Copy(prog.R(0, 3), prog.R(0, 8))
	b.Guarded(1, prog.Reg{File: 1}, false)
	g := Build(b.Build(), false)

	/* the guarded write may not happen, both values reach m2 */
	assert.Equal(t, []string{
		"m0 -waw:r0.3(1)-> m1",
		"m0 -raw:r0.3(1)-> m2",
		"m0 -waw:r0.3(1)-> m3",
	}, edgestr(g.Out(g.Node(0))))
	assert.Equal(t, []string{
		"m1 -raw:r0.3(1)-> m2",
		"m1 -waw:r0.3(1)-> m3",
	}, edgestr(g.Out(g.Node(1))))
	assert.Nil(t, g.FindBypassEdge(g.Node(2)))

	/* the unconditional write ends both */
	assert.Equal(t, []string{"m3 -raw:r0.3(1)-> m4"}, edgestr(g.In(g.Node(4))))
}

func TestGraph_GuardedWritesCarried(t *testing.T) {
	b := prog.NewBuilder(mach.Generic(1), "guarded")
	b.Copy(prog.R(0, 5), prog.R(0, 3))
	b.Copy(prog.R(0, 3), prog.R(0, 6))
	b.Guarded(0, prog.Reg{File: 1}, false)
	g := Build(b.Build(), true)

	/* the previous iteration's value survives a skipped write */
	assert.Equal(t, []string{
		"m0 -raw:r0.3(1)-> m1",
		"m0 -raw:r0.3:lc(1)-> m1",
	}, edgestr(g.In(g.Node(1))))
	assert.Contains(t, edgestr(g.Out(g.Node(1))), "m1 -war:r0.3:lc(0)-> m0")
}

func TestGraph_MemoryAndControl(t *testing.T) {
	b := prog.NewBuilder(mach.Generic(1), "mem")
	st0 := b.Op("st", []prog.Terminal{prog.R(0, 1), prog.Imm(16)}, nil)
	ld0 := b.Op("ld", []prog.Terminal{prog.Imm(32)}, []prog.Terminal{prog.R(0, 2)})
	ld1 := b.Op("ld", []prog.Terminal{prog.Imm(16)}, []prog.Terminal{prog.R(0, 3)})
	b.Op("jump", []prog.Terminal{prog.Imm(0)}, nil)
	b.Address(st0, 16).Address(ld0, 32).Address(ld1, 16)
	u := b.Build()
	g := Build(u, false)

	/* the store only orders the load of the same address */
	var mem []string
	for _, e := range g.Edges {
		if e.Kind == E_memory {
			mem = append(mem, e.String())
		}
	}
	assert.Equal(t, []string{"m1 -mem(1)-> m4"}, mem)

	/* everything lands before the jump */
	trig := g.Node(u.Op(3).Trigger())
	assert.Len(t, g.In(trig), len(u.Moves)-1)
	for _, e := range g.In(trig) {
		assert.Equal(t, E_control, e.Kind)
		assert.Equal(t, 0, e.Latency)
	}
}

func TestGraph_LoopCarried(t *testing.T) {
	b := prog.NewBuilder(mach.Generic(1), "loop")
	b.Op("add", []prog.Terminal{prog.R(0, 1), prog.Imm(1)}, []prog.Terminal{prog.R(0, 1)})
	u := b.LiveOut().Build()

	/* no carried edges outside of loops */
	g := Build(u, false)
	for _, e := range g.Edges {
		assert.False(t, e.LoopCarried)
	}

	/* the counter feeds the next iteration */
	g = Build(u, true)
	assert.Equal(t, []string{"m0 -war:r0.1(0)-> m2", "m0 -op(0)-> m1"}, edgestr(g.Out(g.Node(0))))
	assert.Equal(t, []string{"m2 -raw:r0.1:lc(1)-> m0"}, edgestr(g.Out(g.Node(2))))
	require.NoError(t, g.Validate())

	/* carried edges only count with an initiation interval */
	g.Node(2).Move.Cycle = 3
	_, ok := g.EarliestCycle(g.Node(0), 0)
	assert.False(t, ok)
	c, ok := g.EarliestCycle(g.Node(0), 2)
	assert.True(t, ok)
	assert.Equal(t, 2, c)
	assert.False(t, g.HasUnscheduledPredecessors(g.Node(0)))
}

func TestGraph_Bounds(t *testing.T) {
	g := Build(buildStraight(), false)
	g.Node(2).Move.Cycle = 5
	g.Node(4).Move.Cycle = 9
	lo, ok := g.EarliestCycle(g.Node(3), 0)
	require.True(t, ok)
	assert.Equal(t, 6, lo)
	hi, ok := g.LatestCycle(g.Node(3), 0)
	require.True(t, ok)
	assert.Equal(t, 9, hi)
	hi, ok = g.LatestCycle(g.Node(1), 0)
	require.True(t, ok)
	assert.Equal(t, 4, hi)
	_, ok = g.LatestCycleOf(g.Node(3), 0, func(e *Edge) bool { return e.Kind != E_anti })
	assert.False(t, ok)
	assert.True(t, g.HasUnscheduledSuccessors(g.Node(0)))
	assert.False(t, g.HasUnscheduledSuccessors(g.Node(3)))
}

func TestGraph_BypassQueries(t *testing.T) {
	g := Build(buildStraight(), false)
	e := g.FindBypassEdge(g.Node(3))
	require.NotNil(t, e)
	assert.Same(t, g.Node(2), e.From)
	assert.Equal(t, []*Edge{e}, g.Consumers(g.Node(2)))
	assert.Nil(t, g.FindBypassEdge(g.Node(4)))
	assert.Nil(t, g.FindBypassEdge(g.Node(1)))
	assert.Len(t, g.EdgesOn(g.Node(3), rr(3)), 2)
	assert.True(t, g.Reaches(g.Node(0), g.Node(3)))
	assert.False(t, g.Reaches(g.Node(3), g.Node(0)))
}

func TestGraph_KillAndRestore(t *testing.T) {
	g := Build(buildStraight(), false)
	fp := g.Fingerprint()

	/* removing the result drops all of its edges */
	preds := g.Kill(g.Node(2))
	assert.Equal(t, []*Node{g.Node(1)}, preds)
	assert.Nil(t, g.FindBypassEdge(g.Node(3)))
	assert.Len(t, g.ActiveNodes(), 4)
	require.Panics(t, func() { g.Kill(g.Node(2)) })

	/* edges come and go */
	e := g.AddEdge(g.Node(0), g.Node(4), E_operation, prog.Reg{}, 2, false)
	x := g.Out(g.Node(3))[0]
	g.RemoveEdge(x)
	require.Panics(t, func() { g.RemoveEdge(x) })
	assert.Empty(t, g.Out(g.Node(3)))
	f := g.AddEdge(g.Node(0), g.Node(3), E_operation, prog.Reg{}, 2, false)
	require.Panics(t, func() { g.Unlink(e) })
	g.Unlink(f)
	g.Unlink(e)
	g.RestoreEdge(x)
	g.Resurrect(g.Node(2))
	assert.Equal(t, fp, g.Fingerprint())
}

func TestGraph_Cyclic(t *testing.T) {
	g := Build(buildStraight(), false)
	g.AddEdge(g.Node(4), g.Node(0), E_operation, prog.Reg{}, 0, false)
	require.ErrorIs(t, g.Validate(), ErrCyclic)
	_, err := g.SourceDistance()
	require.Error(t, err)
}

func TestGraph_Distances(t *testing.T) {
	g := Build(buildStraight(), false)
	src, err := g.SourceDistance()
	require.NoError(t, err)
	assert.Equal(t, 0, src[0])
	assert.Equal(t, 1, src[1])
	assert.Equal(t, 2, src[2])
	assert.Equal(t, 3, src[3])
	assert.Equal(t, 4, src[4])
	dst, err := g.SinkDistance()
	require.NoError(t, err)
	assert.Equal(t, 4, dst[0])
	assert.Equal(t, 0, dst[4])
}
