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

// Package rm is the resource manager: the per-cycle ledger of bus, port and
// immediate slot usage, plus the function unit reservation tables derived from
// the moves of every operation. In modulo mode (II > 0) cycles fold onto
// II slots, which is how a software pipelined loop body is checked.
package rm

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cloudwego/ttasched/mach"
	"github.com/cloudwego/ttasched/prog"
)

// Placement is the transport resource assignment of one move.
type Placement struct {
	Cycle   int
	Bus     *mach.Bus
	Src     *mach.Port
	Dst     *mach.Port
	LongImm bool
	srcop   prog.OpId
	dstop   prog.OpId
}

func (self Placement) String() string {
	src := "imm"
	if self.Src != nil {
		src = self.Src.String()
	}
	long := ""
	if self.LongImm {
		long = " limm"
	}
	return fmt.Sprintf("@%d %s: %s -> %s%s", self.Cycle, self.Bus, src, self.Dst, long)
}

type _Slot struct {
	bus   map[int]prog.MoveId
	read  map[int]prog.MoveId
	write map[int]prog.MoveId
	imm   int
}

func newSlot() *_Slot {
	return &_Slot{
		bus:   make(map[int]prog.MoveId),
		read:  make(map[int]prog.MoveId),
		write: make(map[int]prog.MoveId),
	}
}

func (self *_Slot) empty() bool {
	return len(self.bus) == 0 && len(self.read) == 0 && len(self.write) == 0 && self.imm == 0
}

type _Binding struct {
	hw     *mach.HWOperation
	refs   int
	pinned bool
}

const _NoOp = prog.OpId(-1)

type ResourceManager struct {
	m      *mach.Machine
	u      *prog.Unit
	ii     int
	slots  map[int]*_Slot
	place  map[prog.MoveId]Placement
	binds  map[prog.OpId]*_Binding
	shared map[int]prog.OpId
}

// New creates an empty ledger for u. ii > 0 selects modulo mode.
func New(u *prog.Unit, ii int) *ResourceManager {
	if ii < 0 {
		panic(fmt.Sprintf("rm: negative initiation interval %d", ii))
	}
	return &ResourceManager{
		m:      u.Machine,
		u:      u,
		ii:     ii,
		slots:  make(map[int]*_Slot),
		place:  make(map[prog.MoveId]Placement),
		binds:  make(map[prog.OpId]*_Binding),
		shared: make(map[int]prog.OpId),
	}
}

// II returns the initiation interval, zero for a linear ledger.
func (self *ResourceManager) II() int {
	return self.ii
}

func (self *ResourceManager) slotOf(cycle int) int {
	if self.ii == 0 {
		return cycle
	} else {
		return ((cycle % self.ii) + self.ii) % self.ii
	}
}

func (self *ResourceManager) slot(cycle int) *_Slot {
	k := self.slotOf(cycle)
	if s, ok := self.slots[k]; ok {
		return s
	}
	s := newSlot()
	self.slots[k] = s
	return s
}

func (self *ResourceManager) peek(cycle int) *_Slot {
	return self.slots[self.slotOf(cycle)]
}

// CanAssign reports whether mv fits at cycle with some combination of resources.
func (self *ResourceManager) CanAssign(cycle int, mv *prog.Move) bool {
	_, ok := self.Best(cycle, mv)
	return ok
}

// Best returns the first feasible placement of mv at cycle. Candidates are tried
// in unit, bus and port id order, so the answer is deterministic.
func (self *ResourceManager) Best(cycle int, mv *prog.Move) (Placement, bool) {
	if _, ok := self.place[mv.Id]; ok {
		panic(fmt.Sprintf("rm: m%d is already assigned", mv.Id))
	}
	for _, p := range self.candidates(cycle, mv, true) {
		return p, true
	}
	return Placement{}, false
}

// Candidates lists every feasible placement of mv at cycle.
func (self *ResourceManager) Candidates(cycle int, mv *prog.Move) []Placement {
	return self.candidates(cycle, mv, false)
}

func (self *ResourceManager) candidates(cycle int, mv *prog.Move, first bool) []Placement {
	var ret []Placement
	sl := self.peek(cycle)

	/* the operations at both ends, if any */
	srcop, dstop := _NoOp, _NoOp
	if id, ok := mv.SrcOp(); ok {
		srcop = id
	}
	if id, ok := mv.DstOp(); ok {
		dstop = id
	}

	/* enumerate function unit choices for both ends */
	for _, shw := range self.choices(srcop) {
		for _, dhw := range self.choices(dstop) {
			if shw != nil && dhw != nil && srcop == dstop {
				continue
			}
			if !self.fitsUnit(srcop, shw, mv.Id, cycle) || !self.fitsUnit(dstop, dhw, mv.Id, cycle) {
				continue
			}

			/* enumerate buses and register file ports */
			for _, b := range self.m.Buses {
				if sl != nil {
					if _, busy := sl.bus[b.Id]; busy {
						continue
					}
				}
				if mv.Guard != nil && !b.CanEvaluate(mv.Guard.Reg) {
					continue
				}
				for _, sp := range self.sources(sl, mv, shw, b) {
					for _, dp := range self.destinations(sl, mv, dhw, b) {
						p := Placement{
							Cycle: cycle,
							Bus:   b,
							Src:   sp,
							Dst:   dp,
							srcop: srcop,
							dstop: dstop,
						}
						if mv.Src.Kind == prog.T_imm && !b.FitsInline(mv.Src.Imm) {
							if sl != nil && sl.imm >= self.m.ImmSlots || self.m.ImmSlots == 0 {
								continue
							}
							p.LongImm = true
						}
						ret = append(ret, p)
						if first {
							return ret
						}
					}
				}
			}
		}
	}
	return ret
}

// choices lists the hardware operations op may use. A nil entry stands for
// "no operation at this end".
func (self *ResourceManager) choices(id prog.OpId) []*mach.HWOperation {
	if id == _NoOp {
		return []*mach.HWOperation{nil}
	}
	if b, ok := self.binds[id]; ok {
		return []*mach.HWOperation{b.hw}
	}
	op := self.u.Op(id)
	if op.Unit != nil {
		return []*mach.HWOperation{op.Unit.Ops[op.Name]}
	}
	return self.m.Candidates(op.Name)
}

func (self *ResourceManager) sources(sl *_Slot, mv *prog.Move, hw *mach.HWOperation, b *mach.Bus) []*mach.Port {
	var ret []*mach.Port
	switch mv.Src.Kind {
	case prog.T_imm:
		return []*mach.Port{nil}
	case prog.T_reg:
		for _, p := range self.m.File(mv.Src.Reg.File).Read {
			if b.Connects(p) && !portbusy(sl, p, false) {
				ret = append(ret, p)
			}
		}
	case prog.T_output:
		if p := hw.Outputs[mv.Src.Index]; b.Connects(p) && !portbusy(sl, p, false) {
			ret = append(ret, p)
		}
	default:
		panic("rm: move reads an input port: " + mv.String())
	}
	return ret
}

func (self *ResourceManager) destinations(sl *_Slot, mv *prog.Move, hw *mach.HWOperation, b *mach.Bus) []*mach.Port {
	var ret []*mach.Port
	switch mv.Dst.Kind {
	case prog.T_reg:
		for _, p := range self.m.File(mv.Dst.Reg.File).Write {
			if b.Connects(p) && !portbusy(sl, p, true) {
				ret = append(ret, p)
			}
		}
	case prog.T_input:
		p := hw.Inputs[mv.Dst.Index]
		if owner, ok := self.shared[p.Id]; ok && owner != mv.Dst.Op {
			return nil
		}
		if b.Connects(p) && !portbusy(sl, p, true) {
			ret = append(ret, p)
		}
	default:
		panic("rm: move writes an output port: " + mv.String())
	}
	return ret
}

func portbusy(sl *_Slot, p *mach.Port, write bool) bool {
	if sl == nil {
		return false
	}
	var ok bool
	if write {
		_, ok = sl.write[p.Id]
	} else {
		_, ok = sl.read[p.Id]
	}
	return ok
}

// Assign commits mv onto the given placement, obtained from Best or Candidates.
func (self *ResourceManager) Assign(mv *prog.Move, p Placement) {
	if _, ok := self.place[mv.Id]; ok {
		panic(fmt.Sprintf("rm: m%d is already assigned", mv.Id))
	}
	sl := self.slot(p.Cycle)

	/* double booking is a contract violation */
	if v, ok := sl.bus[p.Bus.Id]; ok {
		panic(fmt.Sprintf("rm: bus %s double booked at cycle %d by m%d and m%d", p.Bus, p.Cycle, v, mv.Id))
	}
	if v, ok := sl.write[p.Dst.Id]; ok {
		panic(fmt.Sprintf("rm: port %s double booked at cycle %d by m%d and m%d", p.Dst, p.Cycle, v, mv.Id))
	}
	if p.Src != nil {
		if v, ok := sl.read[p.Src.Id]; ok {
			panic(fmt.Sprintf("rm: port %s double booked at cycle %d by m%d and m%d", p.Src, p.Cycle, v, mv.Id))
		}
		sl.read[p.Src.Id] = mv.Id
	}

	/* book the transport */
	sl.bus[p.Bus.Id] = mv.Id
	sl.write[p.Dst.Id] = mv.Id
	if p.LongImm {
		sl.imm++
	}

	/* bind the operations */
	if p.srcop != _NoOp {
		self.bind(p.srcop, p.Src)
	}
	if p.dstop != _NoOp {
		self.bind(p.dstop, p.Dst)
	}

	mv.Cycle = p.Cycle
	mv.Bus = p.Bus
	self.place[mv.Id] = p
}

func (self *ResourceManager) bind(id prog.OpId, port *mach.Port) {
	if b, ok := self.binds[id]; ok {
		b.refs++
		return
	}
	op := self.u.Op(id)
	for _, hw := range self.choices(id) {
		for _, p := range append(append([]*mach.Port(nil), hw.Inputs...), hw.Outputs...) {
			if p == port {
				self.binds[id] = &_Binding{hw: hw, refs: 1}
				return
			}
		}
	}
	panic(fmt.Sprintf("rm: port %s does not belong to any unit of %s", port, op))
}

// Unassign reverts Assign.
func (self *ResourceManager) Unassign(mv *prog.Move) {
	p, ok := self.place[mv.Id]
	if !ok {
		panic(fmt.Sprintf("rm: m%d is not assigned", mv.Id))
	}
	k := self.slotOf(p.Cycle)
	sl := self.slots[k]

	/* release the transport */
	delete(sl.bus, p.Bus.Id)
	delete(sl.write, p.Dst.Id)
	if p.Src != nil {
		delete(sl.read, p.Src.Id)
	}
	if p.LongImm {
		sl.imm--
	}
	if sl.empty() {
		delete(self.slots, k)
	}

	/* release the operations */
	if p.srcop != _NoOp {
		self.unbind(p.srcop)
	}
	if p.dstop != _NoOp {
		self.unbind(p.dstop)
	}

	mv.Cycle = prog.Unscheduled
	mv.Bus = nil
	delete(self.place, mv.Id)
}

func (self *ResourceManager) unbind(id prog.OpId) {
	b := self.binds[id]
	if b.refs--; b.refs == 0 && !b.pinned {
		delete(self.binds, id)
	}
}

// Pin binds op onto hw until Unpin, whether or not any of its moves is assigned.
func (self *ResourceManager) Pin(id prog.OpId, hw *mach.HWOperation) {
	if b, ok := self.binds[id]; ok {
		if b.hw != hw || b.pinned {
			panic(fmt.Sprintf("rm: op%d is already bound to %s", id, b.hw))
		}
		b.pinned = true
	} else {
		self.binds[id] = &_Binding{hw: hw, pinned: true}
	}
}

func (self *ResourceManager) Unpin(id prog.OpId) {
	b, ok := self.binds[id]
	if !ok || !b.pinned {
		panic(fmt.Sprintf("rm: op%d is not pinned", id))
	}
	if b.pinned = false; b.refs == 0 {
		delete(self.binds, id)
	}
}

// ReservePort keeps an operand port for op on every cycle: the value written
// there once is reused by every trigger of op.
func (self *ResourceManager) ReservePort(p *mach.Port, id prog.OpId) {
	if owner, ok := self.shared[p.Id]; ok {
		panic(fmt.Sprintf("rm: port %s already reserved by op%d", p, owner))
	}
	self.shared[p.Id] = id
}

func (self *ResourceManager) ReleasePort(p *mach.Port) {
	if _, ok := self.shared[p.Id]; !ok {
		panic(fmt.Sprintf("rm: port %s is not reserved", p))
	}
	delete(self.shared, p.Id)
}

// PortReservation returns the operation owning a reserved port.
func (self *ResourceManager) PortReservation(p *mach.Port) (prog.OpId, bool) {
	id, ok := self.shared[p.Id]
	return id, ok
}

// Binding returns the hardware operation op is bound to.
func (self *ResourceManager) Binding(id prog.OpId) *mach.HWOperation {
	if b, ok := self.binds[id]; ok {
		return b.hw
	} else {
		return nil
	}
}

func (self *ResourceManager) Placement(id prog.MoveId) (Placement, bool) {
	p, ok := self.place[id]
	return p, ok
}

// BusUser returns the move occupying bus b at cycle.
func (self *ResourceManager) BusUser(cycle int, b *mach.Bus) (prog.MoveId, bool) {
	if sl := self.peek(cycle); sl == nil {
		return 0, false
	} else {
		id, ok := sl.bus[b.Id]
		return id, ok
	}
}

// PortUser returns the move reading or writing port p at cycle.
func (self *ResourceManager) PortUser(cycle int, p *mach.Port) (prog.MoveId, bool) {
	sl := self.peek(cycle)
	if sl == nil {
		return 0, false
	}
	if p.IsInput() {
		id, ok := sl.write[p.Id]
		return id, ok
	} else {
		id, ok := sl.read[p.Id]
		return id, ok
	}
}

// Bounds returns the smallest and largest assigned cycles.
func (self *ResourceManager) Bounds() (lo int, hi int, ok bool) {
	for _, p := range self.place {
		if !ok || p.Cycle < lo {
			lo = p.Cycle
		}
		if !ok || p.Cycle > hi {
			hi = p.Cycle
		}
		ok = true
	}
	return
}

// Len returns the number of assigned moves.
func (self *ResourceManager) Len() int {
	return len(self.place)
}

// Fingerprint renders the complete ledger state.
func (self *ResourceManager) Fingerprint() string {
	var buf []string
	for id, p := range self.place {
		buf = append(buf, fmt.Sprintf("m%d %s", id, p))
	}
	for id, b := range self.binds {
		buf = append(buf, fmt.Sprintf("op%d on %s refs=%d pinned=%v", id, b.hw, b.refs, b.pinned))
	}
	for p, id := range self.shared {
		buf = append(buf, fmt.Sprintf("port %d reserved by op%d", p, id))
	}
	for k, sl := range self.slots {
		buf = append(buf, fmt.Sprintf("slot %d limm=%d", k, sl.imm))
	}
	sort.Strings(buf)
	return strings.Join(buf, "\n")
}
