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

// Package loop inspects a loop body before it is software pipelined: how many
// times it runs, and which values stay the same on every iteration.
package loop

import (
	"fmt"
	"sort"

	"github.com/cloudwego/ttasched/internal/ddg"
	"github.com/cloudwego/ttasched/prog"
)

// MaxSimulatedTrips bounds the trip count simulation.
const MaxSimulatedTrips = 1 << 20

type TripKind uint8

const (
	TripUnknown TripKind = iota
	TripKnown
	TripRuntime
)

func (self TripKind) String() string {
	switch self {
	case TripUnknown:
		return "unknown"
	case TripKnown:
		return "known"
	case TripRuntime:
		return "runtime"
	default:
		return fmt.Sprintf("TripKind(%d)", self)
	}
}

// Induction describes the loop counter. Init is nil when the initial value is
// only known at run time.
type Induction struct {
	Counter prog.Reg
	Init    *int64
}

type Result struct {
	Kind       TripKind
	TripCount  int
	Step       int64
	Update     *prog.Operation
	Compare    *prog.Operation
	Limit      prog.Terminal
	Invariants map[prog.Reg][]prog.MoveId
	Immediates map[int64][]prog.MoveId
}

// IsInvariant reports whether mv transports a value that is the same on
// every iteration.
func (self *Result) IsInvariant(mv *prog.Move) bool {
	switch mv.Src.Kind {
	case prog.T_imm:
		return true
	case prog.T_reg:
		_, ok := self.Invariants[mv.Src.Reg]
		return ok
	default:
		return false
	}
}

// Uses returns the number of moves transporting the same invariant value as mv.
func (self *Result) Uses(mv *prog.Move) int {
	switch mv.Src.Kind {
	case prog.T_imm:
		return len(self.Immediates[mv.Src.Imm])
	case prog.T_reg:
		return len(self.Invariants[mv.Src.Reg])
	default:
		return 0
	}
}

// Values lists the invariant sources, most used first. Ties keep the order in
// which the values are first read.
func (self *Result) Values(u *prog.Unit) []prog.Terminal {
	first := make(map[prog.Terminal]prog.MoveId)
	count := make(map[prog.Terminal]int)
	for r, ids := range self.Invariants {
		first[prog.R(r.File, r.Index)] = ids[0]
		count[prog.R(r.File, r.Index)] = len(ids)
	}
	for v, ids := range self.Immediates {
		first[prog.Imm(v)] = ids[0]
		count[prog.Imm(v)] = len(ids)
	}
	ret := make([]prog.Terminal, 0, len(first))
	for t := range first {
		ret = append(ret, t)
	}
	sort.Slice(ret, func(i int, j int) bool {
		if count[ret[i]] != count[ret[j]] {
			return count[ret[i]] > count[ret[j]]
		} else {
			return first[ret[i]] < first[ret[j]]
		}
	})
	return ret
}

// Analyze finds the invariant values of the loop body in g and, when ind is
// given, its trip count.
func Analyze(g *ddg.Graph, ind *Induction) *Result {
	ret := &Result{
		Kind:       TripUnknown,
		Invariants: make(map[prog.Reg][]prog.MoveId),
		Immediates: make(map[int64][]prog.MoveId),
	}

	/* registers written anywhere in the body */
	written := make(prog.RegSet)
	for _, n := range g.ActiveNodes() {
		if r, ok := n.Move.Writes(); ok {
			written.Add(r)
		}
	}

	/* invariant values transported into operation inputs */
	for _, n := range g.ActiveNodes() {
		mv := n.Move
		if _, ok := mv.DstOp(); !ok {
			continue
		}
		switch mv.Src.Kind {
		case prog.T_reg:
			if !written.Has(mv.Src.Reg) {
				ret.Invariants[mv.Src.Reg] = append(ret.Invariants[mv.Src.Reg], mv.Id)
			}
		case prog.T_imm:
			ret.Immediates[mv.Src.Imm] = append(ret.Immediates[mv.Src.Imm], mv.Id)
		}
	}

	/* the trip count needs the counter */
	if ind != nil {
		ret.tripCount(g, ind, written)
	}
	return ret
}

func (self *Result) tripCount(g *ddg.Graph, ind *Induction, written prog.RegSet) {
	u := g.Unit

	/* find the update of the counter */
	upd, step, ok := findUpdate(g, ind.Counter)
	if !ok {
		return
	}
	self.Update, self.Step = upd, step

	/* find the comparison that decides the back edge */
	cmp, guard, ok := findCompare(g, ind.Counter, upd)
	if !ok {
		return
	}
	self.Compare = cmp

	/* which side is the counter, which one the limit */
	side := 0
	if !readsCounter(u, u.Move(cmp.Inputs[0]), ind.Counter, upd) {
		side = 1
	}
	self.Limit = u.Move(cmp.Inputs[1-side]).Src

	/* a register limit written in the body defeats the analysis */
	switch self.Limit.Kind {
	case prog.T_imm:
		break
	case prog.T_reg:
		if !written.Has(self.Limit.Reg) {
			self.Kind = TripRuntime
		}
		return
	default:
		return
	}

	/* the initial value must be known as well */
	if ind.Init == nil {
		self.Kind = TripRuntime
		return
	}

	/* the comparison reads the counter before or after the update */
	post := u.Move(cmp.Inputs[side]).Src.Kind == prog.T_output || u.Move(cmp.Inputs[side]).Id > lastWrite(u, upd)
	if n, ok := simulate(cmp.Name, side, post, guard.Inverted, *ind.Init, step, self.Limit.Imm); ok {
		self.Kind, self.TripCount = TripKnown, n
	}
}

// findUpdate looks for "counter = counter +/- imm".
func findUpdate(g *ddg.Graph, counter prog.Reg) (*prog.Operation, int64, bool) {
	u := g.Unit
	for _, op := range u.Ops {
		if op.Name != "add" && op.Name != "sub" {
			continue
		}
		if !writesBack(g, op, counter) {
			continue
		}
		a, b := u.Move(op.Inputs[0]).Src, u.Move(op.Inputs[1]).Src
		switch {
		case a.Kind == prog.T_reg && a.Reg == counter && b.Kind == prog.T_imm:
			if op.Name == "sub" {
				return op, -b.Imm, true
			} else {
				return op, b.Imm, true
			}
		case op.Name == "add" && b.Kind == prog.T_reg && b.Reg == counter && a.Kind == prog.T_imm:
			return op, a.Imm, true
		}
	}
	return nil, 0, false
}

func writesBack(g *ddg.Graph, op *prog.Operation, counter prog.Reg) bool {
	for _, id := range op.Outputs {
		if n := g.Node(id); n.IsActive() {
			if r, ok := n.Move.Writes(); ok && r == counter {
				return true
			}
		}
	}
	return false
}

func lastWrite(u *prog.Unit, op *prog.Operation) prog.MoveId {
	ret := prog.MoveId(-1)
	for _, id := range op.Outputs {
		if u.Move(id).Dst.Kind == prog.T_reg && id > ret {
			ret = id
		}
	}
	return ret
}

// findCompare looks for a comparison of the counter whose result guards the
// jump back to the loop head.
func findCompare(g *ddg.Graph, counter prog.Reg, upd *prog.Operation) (*prog.Operation, prog.Guard, bool) {
	u := g.Unit
	for _, op := range u.Ops {
		if op.Spec == nil || !op.Spec.Control {
			continue
		}

		/* the guard of the jump */
		jmp := u.Move(op.Trigger())
		if jmp.Guard == nil {
			continue
		}

		/* the comparison producing the guard */
		for _, cmp := range u.Ops {
			if _, ok := compares[cmp.Name]; !ok || len(cmp.Inputs) != 2 {
				continue
			}
			if !writesBack(g, cmp, jmp.Guard.Reg) {
				continue
			}
			if readsCounter(u, u.Move(cmp.Inputs[0]), counter, upd) || readsCounter(u, u.Move(cmp.Inputs[1]), counter, upd) {
				return cmp, *jmp.Guard, true
			}
		}
	}
	return nil, prog.Guard{}, false
}

func readsCounter(u *prog.Unit, mv *prog.Move, counter prog.Reg, upd *prog.Operation) bool {
	switch mv.Src.Kind {
	case prog.T_reg:
		return mv.Src.Reg == counter
	case prog.T_output:
		return mv.Src.Op == upd.Id
	default:
		return false
	}
}

var compares = map[string]func(a int64, b int64) bool{
	"eq":  func(a int64, b int64) bool { return a == b },
	"ne":  func(a int64, b int64) bool { return a != b },
	"gt":  func(a int64, b int64) bool { return a > b },
	"lt":  func(a int64, b int64) bool { return a < b },
	"ge":  func(a int64, b int64) bool { return a >= b },
	"le":  func(a int64, b int64) bool { return a <= b },
	"gtu": func(a int64, b int64) bool { return uint64(a) > uint64(b) },
	"ltu": func(a int64, b int64) bool { return uint64(a) < uint64(b) },
}

// simulate runs the counter until the back edge is no longer taken. The
// counter sits on input side of the comparison, the limit on the other one.
func simulate(name string, side int, post bool, inverted bool, init int64, step int64, limit int64) (int, bool) {
	cmp := compares[name]
	val := init
	for n := 1; n <= MaxSimulatedTrips; n++ {
		next := val + step
		c := val
		if post {
			c = next
		}

		/* evaluate the guard */
		var taken bool
		if side == 0 {
			taken = cmp(c, limit)
		} else {
			taken = cmp(limit, c)
		}
		if inverted {
			taken = !taken
		}

		/* leave the loop */
		if !taken {
			return n, true
		}
		val = next
	}
	return 0, false
}
