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
	"fmt"

	"github.com/cloudwego/ttasched/mach"
)

// Builder plays the role of the lowering front end: it appends moves and
// operations in program order and resolves operation names against the machine.
type Builder struct {
	u *Unit
}

func NewBuilder(m *mach.Machine, name string) *Builder {
	return &Builder{
		u: &Unit{
			Name:    name,
			Machine: m,
		},
	}
}

func (self *Builder) add(src Terminal, dst Terminal) *Move {
	mv := &Move{
		Id:    MoveId(len(self.u.Moves)),
		Src:   src,
		Dst:   dst,
		Cycle: Unscheduled,
	}
	self.u.Moves = append(self.u.Moves, mv)

	/* a move reading a result belongs to the producer as well */
	if src.Kind == T_output {
		op := self.op(src.Op)
		if src.Index >= op.Spec.Outputs {
			panic(fmt.Sprintf("prog: %s has no result %d", op, src.Index))
		}
		op.Outputs = append(op.Outputs, mv.Id)
	}
	return mv
}

func (self *Builder) op(id OpId) *Operation {
	if int(id) < 0 || int(id) >= len(self.u.Ops) {
		panic(fmt.Sprintf("prog: operation %d does not exist", id))
	}
	return self.u.Ops[id]
}

// Copy appends a standalone transport, e.g. a register copy or an immediate load.
func (self *Builder) Copy(src Terminal, dst Terminal) MoveId {
	if dst.Kind != T_reg {
		panic("prog: copies must target a register")
	}
	return self.add(src, dst).Id
}

// Op appends an operation with one move per input terminal and one move per
// output terminal. Input terminals built with Out wire the result of an earlier
// operation straight into this one.
func (self *Builder) Op(name string, ins []Terminal, outs []Terminal) OpId {
	spec := self.u.Machine.Operation(name)
	if spec == nil {
		panic("prog: unknown operation " + name)
	}
	if len(ins) != spec.Inputs || len(outs) > spec.Outputs {
		panic(fmt.Sprintf("prog: operand count mismatch for %s", name))
	}

	/* create the operation */
	op := &Operation{
		Id:     OpId(len(self.u.Ops)),
		Name:   spec.Name,
		Spec:   spec,
		Inputs: make([]MoveId, spec.Inputs),
	}
	self.u.Ops = append(self.u.Ops, op)

	/* operand moves */
	for i, src := range ins {
		op.Inputs[i] = self.add(src, Terminal{Kind: T_input, Op: op.Id, Index: i}).Id
	}

	/* result moves */
	for i, dst := range outs {
		self.add(Terminal{Kind: T_output, Op: op.Id, Index: i}, dst)
	}
	return op.Id
}

// Read appends another move reading result idx of op.
func (self *Builder) Read(op OpId, idx int, dst Terminal) MoveId {
	return self.add(Out(op, idx), dst).Id
}

// Guarded predicates an already appended move.
func (self *Builder) Guarded(id MoveId, reg Reg, inverted bool) *Builder {
	self.u.Moves[id].Guard = &Guard{Reg: reg, Inverted: inverted}
	return self
}

// Address records the known memory address accessed by a memory operation.
func (self *Builder) Address(id OpId, addr int64) *Builder {
	self.op(id).Addr = &addr
	return self
}

// Bind pins an operation onto a function unit.
func (self *Builder) Bind(id OpId, unit string) *Builder {
	op := self.op(id)
	fu := self.u.Machine.UnitByName(unit)
	if fu == nil {
		panic("prog: unknown unit " + unit)
	}
	if _, ok := fu.Ops[op.Name]; !ok {
		panic(fmt.Sprintf("prog: %s does not implement %s", unit, op.Name))
	}
	op.Unit = fu
	return self
}

// LiveOut declares the registers read after the unit. Calling it with no
// registers declares that nothing is live out.
func (self *Builder) LiveOut(regs ...Reg) *Builder {
	if self.u.LiveOut == nil {
		self.u.LiveOut = make(RegSet, len(regs))
	}
	for _, r := range regs {
		self.u.LiveOut.Add(r)
	}
	return self
}

// Build returns the unit. The builder must not be used afterwards.
func (self *Builder) Build() *Unit {
	u := self.u
	self.u = nil
	return u
}
