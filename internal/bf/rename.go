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

package bf

import (
	"github.com/cloudwego/ttasched/internal/ddg"
	"github.com/cloudwego/ttasched/prog"
)

// renameAndPlace gives the value written by n a fresh register when an anti or
// output dependence on its old register keeps n from being placed.
func (self *Scheduler) renameAndPlace(n *ddg.Node) bool {
	if !self.opts.RenameRegisters || self.g.Loop {
		return false
	}

	/* rename, then try again */
	mark := self.mark()
	if !self.renameDestination(n) {
		return false
	}
	if !self.place(n, self.lo, self.hi) {
		self.revert(mark)
		return false
	}
	return true
}

func (self *Scheduler) renameDestination(n *ddg.Node) bool {
	mv := n.Move
	r, ok := mv.Writes()
	if !ok || mv.Guard != nil {
		return false
	}

	/* the move must not read the register it writes */
	for _, x := range mv.Reads() {
		if x == r {
			return false
		}
	}

	/* only worth it when another access of the register is in the way */
	constrained := false
	for _, e := range self.g.EdgesOn(n, r) {
		switch {
		case e.Kind == ddg.E_data:
			continue
		case self.bottomUp() && e.From == n && e.To.IsScheduled():
			constrained = true
		case !self.bottomUp() && e.To == n && e.From.IsScheduled():
			constrained = true
		}
	}
	if !constrained {
		return false
	}

	/* the value must not escape the unit under its old name */
	if self.u.IsLiveOut(r) && !self.overwritten(n) {
		return false
	}

	/* every reader must get its value from n alone */
	uses := self.g.Consumers(n)
	readers := make([]*prog.Move, 0, len(uses))
	for _, e := range uses {
		if e.Guard || !self.readsOnlyFrom(e.To, n, r) {
			return false
		}
		readers = append(readers, e.To.Move)
	}

	/* straight code has no file reserved for loop invariants */
	rf := self.m.File(r.File)
	possible := false
	for _, f := range self.ren.PossibleTempRegRFs(mv, readers, nil) {
		possible = possible || f == rf
	}
	if !possible {
		return false
	}
	nr, ok := self.ren.Allocate(rf)
	if !ok {
		return false
	}
	self.record(&_Allocated{nr})

	/* detach the old register, keeping the other accesses of it in order */
	var detached []*ddg.Node
	self.bridge(n, r)
	for _, e := range self.g.EdgesOn(n, r) {
		detached = append(detached, e.From, e.To)
		self.removeEdge(e)
	}
	for _, e := range uses {
		for _, x := range self.g.EdgesOn(e.To, r) {
			detached = append(detached, x.From, x.To)
			self.removeEdge(x)
		}
	}

	/* rewrite the moves, and link them through the new register */
	self.retarget(mv, mv.Src, prog.R(nr.File, nr.Index))
	for _, e := range uses {
		self.retarget(e.To.Move, prog.R(nr.File, nr.Index), e.To.Move.Dst)
		self.addEdge(n, e.To, ddg.E_data, nr, e.Latency)
	}

	/* the neighbours may be ready now */
	self.sel.MightBeReady(detached...)

	/* done */
	self.renamed[n.Id()] = nr
	self.record(&_Renamed{n.Id()})
	self.log.Debug("rename", "move", n.Id(), "from", r.String(), "to", nr.String())
	return true
}

// readsOnlyFrom reports whether n reads register r as its plain source, and
// w is the only write of r reaching it.
func (self *Scheduler) readsOnlyFrom(n *ddg.Node, w *ddg.Node, r prog.Reg) bool {
	mv := n.Move
	if mv.Src.Kind != prog.T_reg || mv.Src.Reg != r {
		return false
	}
	if mv.Guard != nil && mv.Guard.Reg == r {
		return false
	}
	if d, ok := mv.Writes(); ok && d == r {
		return false
	}
	for _, e := range self.g.In(n) {
		if e.Kind == ddg.E_data && e.Reg == r && e.From != w {
			return false
		}
	}
	return true
}
