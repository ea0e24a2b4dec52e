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

package loop

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudwego/ttasched/internal/ddg"
	"github.com/cloudwego/ttasched/mach"
	"github.com/cloudwego/ttasched/prog"
)

var (
	r1 = prog.R(0, 1)
	r5 = prog.R(0, 5)
	r7 = prog.R(0, 7)
)

type _Body struct {
	upd      string
	a, b     prog.Terminal
	cmp      string
	x, y     prog.Terminal
	pre      bool
	inverted bool
	unguard  bool
}

func (self _Body) build() *ddg.Graph {
	bd := prog.NewBuilder(mach.Generic(2), "loop")
	update := func() { bd.Op(self.upd, []prog.Terminal{self.a, self.b}, []prog.Terminal{r1}) }
	compare := func() { bd.Op(self.cmp, []prog.Terminal{self.x, self.y}, []prog.Terminal{prog.R(1, 0)}) }
	if self.pre {
		compare()
		update()
	} else {
		update()
		compare()
	}
	bd.Op("mul", []prog.Terminal{r5, prog.R(0, 2)}, []prog.Terminal{prog.R(0, 2)})
	jmp := bd.Op("jump", []prog.Terminal{prog.Imm(0)}, nil)
	u := bd.LiveOut().Build()
	if !self.unguard {
		u.Move(u.Op(jmp).Trigger()).Guard = &prog.Guard{Reg: prog.Reg{File: 1}, Inverted: self.inverted}
	}
	return ddg.Build(u, true)
}

func initial(v int64) *Induction {
	return &Induction{Counter: r1.Reg, Init: &v}
}

func TestAnalyze_TripCount(t *testing.T) {
	for _, tc := range []struct {
		name string
		body _Body
		ind  *Induction
		kind TripKind
		trip int
		step int64
	}{
		{
			name: "post-update",
			body: _Body{upd: "add", a: r1, b: prog.Imm(1), cmp: "lt", x: r1, y: prog.Imm(8)},
			ind:  initial(4),
			kind: TripKnown, trip: 4, step: 1,
		},
		{
			name: "pre-update",
			body: _Body{upd: "add", a: r1, b: prog.Imm(1), cmp: "lt", x: r1, y: prog.Imm(8), pre: true},
			ind:  initial(4),
			kind: TripKnown, trip: 5, step: 1,
		},
		{
			name: "result-read",
			body: _Body{upd: "add", a: r1, b: prog.Imm(1), cmp: "lt", x: prog.Out(0, 0), y: prog.Imm(8)},
			ind:  initial(4),
			kind: TripKnown, trip: 4, step: 1,
		},
		{
			name: "swapped-compare",
			body: _Body{upd: "add", a: r1, b: prog.Imm(1), cmp: "gt", x: prog.Imm(8), y: r1},
			ind:  initial(4),
			kind: TripKnown, trip: 4, step: 1,
		},
		{
			name: "swapped-update",
			body: _Body{upd: "add", a: prog.Imm(2), b: r1, cmp: "lt", x: r1, y: prog.Imm(8)},
			ind:  initial(0),
			kind: TripKnown, trip: 4, step: 2,
		},
		{
			name: "inverted-guard",
			body: _Body{upd: "add", a: r1, b: prog.Imm(1), cmp: "eq", x: r1, y: prog.Imm(8), inverted: true},
			ind:  initial(4),
			kind: TripKnown, trip: 4, step: 1,
		},
		{
			name: "count-down",
			body: _Body{upd: "sub", a: r1, b: prog.Imm(1), cmp: "gt", x: r1, y: prog.Imm(0)},
			ind:  initial(3),
			kind: TripKnown, trip: 3, step: -1,
		},
		{
			name: "runtime-init",
			body: _Body{upd: "add", a: r1, b: prog.Imm(1), cmp: "lt", x: r1, y: prog.Imm(8)},
			ind:  &Induction{Counter: r1.Reg},
			kind: TripRuntime, step: 1,
		},
		{
			name: "runtime-limit",
			body: _Body{upd: "add", a: r1, b: prog.Imm(1), cmp: "lt", x: r1, y: r7},
			ind:  initial(0),
			kind: TripRuntime, step: 1,
		},
		{
			name: "limit-written",
			body: _Body{upd: "add", a: r1, b: prog.Imm(1), cmp: "lt", x: r1, y: prog.R(0, 2)},
			ind:  initial(0),
			kind: TripUnknown, step: 1,
		},
		{
			name: "never-exits",
			body: _Body{upd: "add", a: r1, b: prog.Imm(1), cmp: "eq", x: r1, y: prog.Imm(3), inverted: true},
			ind:  initial(4),
			kind: TripUnknown, step: 1,
		},
		{
			name: "unguarded",
			body: _Body{upd: "add", a: r1, b: prog.Imm(1), cmp: "lt", x: r1, y: prog.Imm(8), unguard: true},
			ind:  initial(0),
			kind: TripUnknown, step: 1,
		},
		{
			name: "no-update",
			body: _Body{upd: "add", a: r1, b: r7, cmp: "lt", x: r1, y: prog.Imm(8)},
			ind:  initial(0),
			kind: TripUnknown,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			ret := Analyze(tc.body.build(), tc.ind)
			assert.Equal(t, tc.kind, ret.Kind, ret.Kind.String())
			assert.Equal(t, tc.trip, ret.TripCount)
			assert.Equal(t, tc.step, ret.Step)
		})
	}
}

func TestAnalyze_Parts(t *testing.T) {
	g := _Body{upd: "add", a: r1, b: prog.Imm(1), cmp: "lt", x: r1, y: prog.Imm(8)}.build()
	ret := Analyze(g, initial(4))
	require.NotNil(t, ret.Update)
	require.NotNil(t, ret.Compare)
	assert.Equal(t, prog.OpId(0), ret.Update.Id)
	assert.Equal(t, "lt", ret.Compare.Name)
	assert.Equal(t, prog.Imm(8), ret.Limit)

	/* no counter, no trip count */
	ret = Analyze(g, nil)
	assert.Equal(t, TripUnknown, ret.Kind)
	assert.Nil(t, ret.Update)
}

func TestAnalyze_Invariants(t *testing.T) {
	g := _Body{upd: "add", a: r1, b: prog.Imm(1), cmp: "lt", x: r1, y: prog.Imm(8)}.build()
	u := g.Unit
	ret := Analyze(g, nil)
	assert.Equal(t, map[prog.Reg][]prog.MoveId{r5.Reg: {6}}, ret.Invariants)
	assert.Equal(t, map[int64][]prog.MoveId{1: {1}, 8: {4}, 0: {9}}, ret.Immediates)
	assert.True(t, ret.IsInvariant(u.Move(6)))
	assert.True(t, ret.IsInvariant(u.Move(1)))
	assert.False(t, ret.IsInvariant(u.Move(0)))
	assert.False(t, ret.IsInvariant(u.Move(8)))
	assert.Equal(t, []prog.Terminal{prog.Imm(1), prog.Imm(8), r5, prog.Imm(0)}, ret.Values(u))
}

func TestAnalyze_Values(t *testing.T) {
	b := prog.NewBuilder(mach.Generic(1), "values")
	b.Op("add", []prog.Terminal{r5, prog.Imm(1)}, []prog.Terminal{prog.R(0, 3)})
	b.Op("add", []prog.Terminal{r5, prog.Imm(2)}, []prog.Terminal{prog.R(0, 4)})
	b.Op("add", []prog.Terminal{prog.R(0, 6), prog.Imm(1)}, []prog.Terminal{r7})
	u := b.Build()
	ret := Analyze(ddg.Build(u, true), nil)
	assert.Equal(t, 2, ret.Uses(u.Move(0)))
	assert.Equal(t, 2, ret.Uses(u.Move(1)))
	assert.Equal(t, 1, ret.Uses(u.Move(4)))
	assert.Equal(t, 0, ret.Uses(u.Move(2)))
	assert.Equal(t, []prog.Terminal{r5, prog.Imm(1), prog.Imm(2), prog.R(0, 6)}, ret.Values(u))
}

func TestTripKind_String(t *testing.T) {
	assert.Equal(t, "known", TripKnown.String())
	assert.Equal(t, "runtime", TripRuntime.String())
	assert.Equal(t, "unknown", TripUnknown.String())
	assert.Equal(t, "TripKind(9)", TripKind(9).String())
}
