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

// bypass tries to make n, which reads a register, read the value straight
// from the result port of the operation computing it. The register write then
// becomes dead and is removed, and the trigger of the producer is scheduled on
// the spot, close enough to n for the result to still be in its port. Either
// all of this succeeds or nothing changes.
func (self *Scheduler) bypass(n *ddg.Node) bool {
	e := self.g.FindBypassEdge(n)
	if e == nil {
		return false
	}
	if g := n.Move.Guard; g != nil && g.Reg == e.Reg {
		return false
	}

	/* the register write must be unscheduled and unconditional */
	w := e.From
	if !w.IsActive() || w.IsScheduled() || w.Move.Guard != nil {
		return false
	}

	/* the value must not be needed anywhere else */
	if !self.valueDies(w, e) {
		return false
	}

	/* the producer must be a different operation with its trigger pending */
	op := self.u.Op(w.Move.Src.Op)
	if id, ok := n.Move.DstOp(); ok && id == op.Id {
		return false
	}
	trig := self.g.Node(op.Trigger())
	if !trig.IsActive() || trig.IsScheduled() || self.g.Reaches(n, trig) {
		return false
	}

	/* read the result port instead of the register */
	mark := self.mark()
	self.unassign(n)
	self.retarget(n.Move, w.Move.Src, n.Move.Dst)
	for _, x := range self.g.EdgesOn(n, e.Reg) {
		self.removeEdge(x)
	}
	self.addEdge(trig, n, ddg.E_operation, prog.Reg{}, op.Spec.Latency)
	self.kill(w, false)

	/* put the consumer back */
	if !self.place(n, self.lo, self.hi) {
		self.revert(mark)
		return false
	}

	/* the trigger follows at once, within the bypass distance */
	if !self.sel.IsReady(trig) || !self.place(trig, n.Move.Cycle-op.Spec.Latency-self.opts.BypassDistance, self.hi) {
		self.revert(mark)
		return false
	}

	/* done */
	self.bypassed[n.Id()] = w.Id()
	self.record(&_Bypassed{n.Id()})
	self.log.Debug("bypass", "move", n.Id(), "removed", w.Id(), "trigger", trig.Id())
	self.resultsClose(trig)
	return true
}

// resultsClose moves the scheduled results of the operation triggered by trig
// as close to the trigger as possible, which shortens the time the result
// ports are held.
func (self *Scheduler) resultsClose(trig *ddg.Node) {
	id, ok := trig.Move.DstOp()
	if !ok {
		return
	}

	/* try every result in turn */
	for _, rid := range self.u.Op(id).Outputs {
		r := self.g.Node(rid)
		if !r.IsActive() || !r.IsScheduled() {
			continue
		}

		/* only an earlier cycle is an improvement */
		old := r.Move.Cycle
		lo, _ := self.bounds(r)
		if lo >= old {
			continue
		}

		/* take it out and look for an earlier slot */
		mark := self.mark()
		self.unassign(r)
		if !self.placeEarliest(r, lo, old-1) {
			self.revert(mark)
		}
	}
}

// placeEarliest schedules n on the first free cycle in [lo, hi], regardless of
// the scheduling direction.
func (self *Scheduler) placeEarliest(n *ddg.Node, lo int, hi int) bool {
	l, h := self.bounds(n)
	lo, hi = maxint(lo, l), minint(hi, h)
	if lo > hi {
		return false
	}
	if p, ok := self.rm.Earliest(n.Move, lo, hi); !ok {
		return false
	} else {
		self.assign(n, p)
		return true
	}
}

// placeLatest is the counterpart of placeEarliest.
func (self *Scheduler) placeLatest(n *ddg.Node, lo int, hi int) bool {
	l, h := self.bounds(n)
	lo, hi = maxint(lo, l), minint(hi, h)
	if lo > hi {
		return false
	}
	if p, ok := self.rm.Latest(n.Move, lo, hi); !ok {
		return false
	} else {
		self.assign(n, p)
		return true
	}
}
