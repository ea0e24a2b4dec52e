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

package mach

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMachine_Generic(t *testing.T) {
	m := Generic(3)
	require.Len(t, m.Buses, 3)
	require.Len(t, m.Units, 4)
	require.Len(t, m.Files, 2)
	assert.Equal(t, "RF", m.File(0).Name)
	assert.Equal(t, 32, m.File(0).Size)
	assert.Len(t, m.File(0).Read, 2)
	assert.Len(t, m.File(0).Write, 1)
	assert.Equal(t, 1, m.GuardLatency)
	assert.Equal(t, 1, m.ImmSlots)
	assert.Equal(t, 0, m.DelaySlots)
	println(m.String())
}

func TestMachine_Operation(t *testing.T) {
	m := Generic(1)
	spec := m.Operation("ADD")
	require.NotNil(t, spec)
	assert.Equal(t, "add", spec.Name)
	assert.Equal(t, 1, spec.Trigger)
	assert.False(t, spec.HasSideEffects())
	assert.True(t, m.Operation("st").HasSideEffects())
	assert.True(t, m.Operation("ld").IsMemory())
	assert.True(t, m.Operation("jump").Control)
	assert.Nil(t, m.Operation("div"))
}

func TestMachine_Candidates(t *testing.T) {
	b := NewBuilder("two-alus")
	b.Operation(OperationSpec{Name: "add", Inputs: 2, Outputs: 1, Trigger: 1})
	b.AddFile("RF", 8, 32, 1, 1)
	b.AddUnit("ALU0", "add")
	b.AddUnit("ALU1", "add")
	b.AddBus("B0", 8)
	m := b.ConnectAll().Build()
	hw := m.Candidates("add")
	require.Len(t, hw, 2)
	assert.Equal(t, "ALU0", hw[0].Unit.Name)
	assert.Equal(t, "ALU1", hw[1].Unit.Name)
	assert.Empty(t, m.Candidates("mul"))
}

func TestMachine_PortBinding(t *testing.T) {
	m := Generic(1)
	alu := m.UnitByName("ALU")
	require.NotNil(t, alu)
	add := alu.Ops["add"]
	assert.Equal(t, P_operand, add.Inputs[0].Kind)
	assert.Equal(t, P_trigger, add.Inputs[1].Kind)
	assert.Equal(t, P_result, add.Outputs[0].Kind)
	assert.Same(t, alu.Ops["sub"].Inputs[0], add.Inputs[0])
	assert.Same(t, alu.Port("t"), add.Inputs[1])
	assert.True(t, add.Inputs[0].IsInput())
	assert.False(t, add.Outputs[0].IsInput())
	ld := m.UnitByName("LSU").Ops["ld"]
	assert.Equal(t, P_trigger, ld.Inputs[0].Kind)
	assert.Nil(t, m.UnitByName("FPU"))
}

func TestMachine_Buses(t *testing.T) {
	b := NewBuilder("sparse")
	b.Operation(OperationSpec{Name: "add", Inputs: 2, Outputs: 1, Trigger: 1})
	rf := b.AddFile("RF", 8, 32, 1, 1)
	alu := b.AddUnit("ALU", "add")
	b0 := b.AddBus("B0", 8)
	b1 := b.AddBus("B1", 16)
	b.Connect(b0, rf.Read[0], alu.Port("t"))
	b.Connect(b1, alu.Port("r0"), rf.Write[0], alu.Port("t"))
	b.Guard(Reg{File: 0, Index: 1})
	m := b.Build()
	assert.Equal(t, []*Bus{b0}, m.BusesBetween(rf.Read[0], alu.Port("t")))
	assert.Equal(t, []*Bus{b1}, m.BusesBetween(alu.Port("r0"), rf.Write[0]))
	assert.Equal(t, []*Bus{b0, b1}, m.BusesBetween(nil, alu.Port("t")))
	assert.Empty(t, m.BusesBetween(rf.Read[0], rf.Write[0]))
	assert.True(t, b0.CanEvaluate(Reg{File: 0, Index: 1}))
	assert.False(t, b0.CanEvaluate(Reg{File: 0, Index: 0}))
	assert.True(t, b0.FitsInline(127))
	assert.False(t, b0.FitsInline(128))
	assert.True(t, b1.FitsInline(128))
	assert.Same(t, rf, m.FileByName("RF"))
	assert.Nil(t, m.FileByName("FP"))
}

func TestMachine_ImmBits(t *testing.T) {
	assert.Equal(t, 1, ImmBits(0))
	assert.Equal(t, 1, ImmBits(-1))
	assert.Equal(t, 2, ImmBits(1))
	assert.Equal(t, 8, ImmBits(127))
	assert.Equal(t, 8, ImmBits(-128))
	assert.Equal(t, 9, ImmBits(128))
}

func TestMachine_InvalidSpecs(t *testing.T) {
	require.Panics(t, func() { NewBuilder("x").Operation(OperationSpec{Name: "add", Inputs: 2, Trigger: 2}) })
	require.Panics(t, func() { NewBuilder("x").AddUnit("ALU", "add") })
	require.Panics(t, func() { Generic(1).File(5) })
	require.Panics(t, func() { NewBuilder("x").Occupancy("ALU", "add", 2) })
}
