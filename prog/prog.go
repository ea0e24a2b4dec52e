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

// Package prog is the move-level program model handed over by the lowering
// front end. Moves and operations live in an arena owned by a Unit and are
// referenced by stable ids; the scheduler only mutates their cycle and bus
// assignment, plus the terminals it rewrites while bypassing or renaming.
package prog

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/cloudwego/ttasched/mach"
)

type (
	Reg    = mach.Reg
	MoveId int
	OpId   int
)

// Unscheduled is the cycle of a move that has no assignment.
const Unscheduled = math.MinInt32

type TerminalKind uint8

const (
	T_reg TerminalKind = iota
	T_imm
	T_input
	T_output
)

type Terminal struct {
	Kind  TerminalKind
	Reg   Reg
	Imm   int64
	Op    OpId
	Index int
}

func R(file int, index int) Terminal {
	return Terminal{Kind: T_reg, Reg: Reg{File: file, Index: index}}
}

func Imm(v int64) Terminal {
	return Terminal{Kind: T_imm, Imm: v}
}

// Out refers to result idx of an already built operation.
func Out(op OpId, idx int) Terminal {
	return Terminal{Kind: T_output, Op: op, Index: idx}
}

func (self Terminal) IsReg() bool { return self.Kind == T_reg }
func (self Terminal) IsImm() bool { return self.Kind == T_imm }
func (self Terminal) IsFU() bool  { return self.Kind == T_input || self.Kind == T_output }

func (self Terminal) String() string {
	switch self.Kind {
	case T_reg:
		return self.Reg.String()
	case T_imm:
		return fmt.Sprintf("#%d", self.Imm)
	case T_input:
		return fmt.Sprintf("op%d.in%d", self.Op, self.Index)
	case T_output:
		return fmt.Sprintf("op%d.out%d", self.Op, self.Index)
	default:
		return "???"
	}
}

type Guard struct {
	Reg      Reg
	Inverted bool
}

func (self Guard) String() string {
	if self.Inverted {
		return "!" + self.Reg.String()
	} else {
		return "?" + self.Reg.String()
	}
}

type Move struct {
	Id    MoveId
	Src   Terminal
	Dst   Terminal
	Guard *Guard
	Cycle int
	Bus   *mach.Bus
}

func (self *Move) IsScheduled() bool {
	return self.Cycle != Unscheduled
}

// SrcOp returns the operation whose result the move reads.
func (self *Move) SrcOp() (OpId, bool) {
	return self.Src.Op, self.Src.Kind == T_output
}

// DstOp returns the operation whose operand the move writes.
func (self *Move) DstOp() (OpId, bool) {
	return self.Dst.Op, self.Dst.Kind == T_input
}

// Reads lists the registers the move reads, the guard included.
func (self *Move) Reads() []Reg {
	var rr []Reg
	if self.Src.Kind == T_reg {
		rr = append(rr, self.Src.Reg)
	}
	if self.Guard != nil {
		rr = append(rr, self.Guard.Reg)
	}
	return rr
}

// Writes returns the register written by the move.
func (self *Move) Writes() (Reg, bool) {
	return self.Dst.Reg, self.Dst.Kind == T_reg
}

func (self *Move) String() string {
	var sb strings.Builder
	if self.Guard != nil {
		sb.WriteString(self.Guard.String())
		sb.WriteByte(' ')
	}
	sb.WriteString(fmt.Sprintf("m%d: %s -> %s", self.Id, self.Src, self.Dst))
	if self.IsScheduled() {
		sb.WriteString(fmt.Sprintf(" @%d", self.Cycle))
		if self.Bus != nil {
			sb.WriteString(" on " + self.Bus.Name)
		}
	}
	return sb.String()
}

// Operation is the set of moves invoking one hardware operation. Inputs is
// indexed by operand number; Outputs lists every move reading a result.
type Operation struct {
	Id      OpId
	Name    string
	Spec    *mach.OperationSpec
	Inputs  []MoveId
	Outputs []MoveId
	Unit    *mach.FunctionUnit
	Addr    *int64
}

// Trigger returns the id of the move writing the trigger operand.
func (self *Operation) Trigger() MoveId {
	return self.Inputs[self.Spec.Trigger]
}

func (self *Operation) String() string {
	return fmt.Sprintf("op%d:%s", self.Id, self.Name)
}

type RegSet map[Reg]struct{}

func (self RegSet) Add(r Reg) {
	self[r] = struct{}{}
}

func (self RegSet) Has(r Reg) bool {
	_, ok := self[r]
	return ok
}

// Unit is one scheduling unit: a basic block or a loop body. Moves are kept in
// original program order, which is also id order.
type Unit struct {
	Name    string
	Machine *mach.Machine
	Moves   []*Move
	Ops     []*Operation
	LiveOut RegSet
}

func (self *Unit) Move(id MoveId) *Move {
	return self.Moves[id]
}

func (self *Unit) Op(id OpId) *Operation {
	return self.Ops[id]
}

// IsLiveOut reports whether r may be read after the unit. A unit without
// liveness information treats every register as live.
func (self *Unit) IsLiveOut(r Reg) bool {
	return self.LiveOut == nil || self.LiveOut.Has(r)
}

// IsTrigger reports whether the move writes the trigger operand of its operation.
func (self *Unit) IsTrigger(mv *Move) bool {
	if op, ok := mv.DstOp(); !ok {
		return false
	} else {
		return self.Ops[op].Trigger() == mv.Id
	}
}

// Instruction is one cycle of the finalized move stream.
type Instruction struct {
	Cycle int
	Moves []*Move
}

func (self Instruction) String() string {
	buf := make([]string, 0, len(self.Moves))
	for _, mv := range self.Moves {
		buf = append(buf, mv.String())
	}
	return fmt.Sprintf("%4d: %s", self.Cycle, strings.Join(buf, " ; "))
}

// Instructions groups scheduled moves by cycle, in cycle order. Moves inside an
// instruction are ordered by bus.
func Instructions(moves []*Move) []Instruction {
	bycycle := make(map[int][]*Move)
	for _, mv := range moves {
		if mv.IsScheduled() {
			bycycle[mv.Cycle] = append(bycycle[mv.Cycle], mv)
		}
	}

	/* sort the cycles */
	cycles := make([]int, 0, len(bycycle))
	for c := range bycycle {
		cycles = append(cycles, c)
	}
	sort.Ints(cycles)

	/* build the instruction stream */
	ret := make([]Instruction, 0, len(cycles))
	for _, c := range cycles {
		mm := bycycle[c]
		sort.Slice(mm, func(i int, j int) bool {
			return busid(mm[i]) < busid(mm[j]) || (busid(mm[i]) == busid(mm[j]) && mm[i].Id < mm[j].Id)
		})
		ret = append(ret, Instruction{Cycle: c, Moves: mm})
	}
	return ret
}

func busid(mv *Move) int {
	if mv.Bus == nil {
		return -1
	} else {
		return mv.Bus.Id
	}
}

// Clone copies the unit with every move unscheduled. Operations and moves keep
// their ids, so placements computed on one copy apply to the other.
func (self *Unit) Clone() *Unit {
	ret := &Unit{
		Name:    self.Name,
		Machine: self.Machine,
		Moves:   make([]*Move, len(self.Moves)),
		Ops:     make([]*Operation, len(self.Ops)),
		LiveOut: self.LiveOut,
	}

	/* moves, with their own guards */
	for i, mv := range self.Moves {
		cp := *mv
		if cp.Cycle, cp.Bus = Unscheduled, nil; mv.Guard != nil {
			g := *mv.Guard
			cp.Guard = &g
		}
		ret.Moves[i] = &cp
	}

	/* operations, with their own move lists */
	for i, op := range self.Ops {
		cp := *op
		cp.Inputs = append([]MoveId(nil), op.Inputs...)
		cp.Outputs = append([]MoveId(nil), op.Outputs...)
		ret.Ops[i] = &cp
	}
	return ret
}
