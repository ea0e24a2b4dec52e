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

package prog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudwego/ttasched/mach"
)

func TestBuilder_Operation(t *testing.T) {
	m := mach.Generic(2)
	b := NewBuilder(m, "bb0")
	add := b.Op("add", []Terminal{R(0, 1), Imm(4)}, []Terminal{R(0, 2)})
	cp := b.Copy(R(0, 2), R(0, 3))
	b.LiveOut(Reg{File: 0, Index: 3})
	u := b.Build()

	/* operand, trigger, result and the copy */
	require.Len(t, u.Moves, 4)
	require.Len(t, u.Ops, 1)
	op := u.Op(add)
	assert.Equal(t, []MoveId{0, 1}, op.Inputs)
	assert.Equal(t, []MoveId{2}, op.Outputs)
	assert.Equal(t, MoveId(1), op.Trigger())
	assert.True(t, u.IsTrigger(u.Move(1)))
	assert.False(t, u.IsTrigger(u.Move(0)))
	assert.False(t, u.IsTrigger(u.Move(cp)))

	/* terminals */
	id, ok := u.Move(2).SrcOp()
	assert.True(t, ok)
	assert.Equal(t, add, id)
	_, ok = u.Move(2).DstOp()
	assert.False(t, ok)
	assert.Equal(t, []Reg{{File: 0, Index: 1}}, u.Move(0).Reads())
	r, ok := u.Move(2).Writes()
	assert.True(t, ok)
	assert.Equal(t, Reg{File: 0, Index: 2}, r)
	assert.False(t, u.Move(0).IsScheduled())
	println(u.Move(0).String(), u.Move(2).String())
}

func TestBuilder_LiveOut(t *testing.T) {
	m := mach.Generic(1)
	u := NewBuilder(m, "all").Build()
	assert.True(t, u.IsLiveOut(Reg{File: 0, Index: 7}))
	u = NewBuilder(m, "none").LiveOut().Build()
	assert.False(t, u.IsLiveOut(Reg{File: 0, Index: 7}))
	u = NewBuilder(m, "some").LiveOut(Reg{File: 0, Index: 7}).Build()
	assert.True(t, u.IsLiveOut(Reg{File: 0, Index: 7}))
	assert.False(t, u.IsLiveOut(Reg{File: 0, Index: 6}))
}

func TestBuilder_Guards(t *testing.T) {
	m := mach.Generic(1)
	b := NewBuilder(m, "guarded")
	jmp := b.Op("jump", []Terminal{Imm(0)}, nil)
	b.Guarded(0, Reg{File: 1, Index: 0}, true)
	u := b.Build()
	mv := u.Move(u.Op(jmp).Trigger())
	require.NotNil(t, mv.Guard)
	assert.True(t, mv.Guard.Inverted)
	assert.Equal(t, []Reg{{File: 1, Index: 0}}, mv.Reads())
	assert.Equal(t, "!r1.0", mv.Guard.String())
}

func TestBuilder_Misuse(t *testing.T) {
	m := mach.Generic(1)
	require.Panics(t, func() { NewBuilder(m, "x").Op("div", nil, nil) })
	require.Panics(t, func() { NewBuilder(m, "x").Op("add", []Terminal{Imm(1)}, nil) })
	require.Panics(t, func() { NewBuilder(m, "x").Copy(Imm(1), Imm(2)) })
	require.Panics(t, func() { NewBuilder(m, "x").Read(3, 0, R(0, 1)) })
	require.Panics(t, func() {
		b := NewBuilder(m, "x")
		b.Bind(b.Op("add", []Terminal{Imm(1), Imm(2)}, nil), "MUL")
	})
}

func TestUnit_Instructions(t *testing.T) {
	m := mach.Generic(2)
	b := NewBuilder(m, "bb")
	b.Copy(Imm(1), R(0, 1))
	b.Copy(Imm(2), R(0, 2))
	b.Copy(Imm(3), R(0, 3))
	u := b.Build()
	u.Move(0).Cycle, u.Move(0).Bus = 1, m.Buses[1]
	u.Move(1).Cycle, u.Move(1).Bus = 0, m.Buses[0]
	u.Move(2).Cycle, u.Move(2).Bus = 1, m.Buses[0]
	ins := Instructions(u.Moves)
	require.Len(t, ins, 2)
	assert.Equal(t, 0, ins[0].Cycle)
	assert.Equal(t, []*Move{u.Move(1)}, ins[0].Moves)
	assert.Equal(t, 1, ins[1].Cycle)
	assert.Equal(t, []*Move{u.Move(2), u.Move(0)}, ins[1].Moves)
	println(ins[1].String())
}

func TestUnit_Clone(t *testing.T) {
	m := mach.Generic(1)
	b := NewBuilder(m, "bb")
	add := b.Op("add", []Terminal{R(0, 1), Imm(4)}, []Terminal{R(0, 2)})
	b.Guarded(2, Reg{File: 1, Index: 1}, false)
	u := b.Build()
	u.Move(0).Cycle, u.Move(0).Bus = 5, m.Buses[0]

	/* the copy is unscheduled and independent */
	cp := u.Clone()
	require.Len(t, cp.Moves, 3)
	assert.False(t, cp.Move(0).IsScheduled())
	assert.Nil(t, cp.Move(0).Bus)
	assert.Equal(t, u.Move(0).Src, cp.Move(0).Src)
	cp.Move(2).Guard.Inverted = true
	assert.False(t, u.Move(2).Guard.Inverted)
	cp.Op(add).Outputs = append(cp.Op(add).Outputs, 9)
	assert.Equal(t, []MoveId{2}, u.Op(add).Outputs)
	assert.Equal(t, 5, u.Move(0).Cycle)
}
