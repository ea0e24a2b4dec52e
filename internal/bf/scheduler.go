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

// Package bf is the bottom-up instruction scheduler. Moves are picked from the
// end of the unit towards its start, each one placed as late as its consumers
// allow, and local optimizations (software bypassing, dead result elimination,
// register renaming, operand sharing) are applied on the fly. Every step is
// recorded on an undo stack, so a failed optimization or a failed attempt
// leaves no trace behind.
package bf

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/oleiade/lane"

	"github.com/cloudwego/ttasched/internal/ddg"
	"github.com/cloudwego/ttasched/internal/loop"
	"github.com/cloudwego/ttasched/internal/opts"
	"github.com/cloudwego/ttasched/internal/renamer"
	"github.com/cloudwego/ttasched/internal/rm"
	"github.com/cloudwego/ttasched/internal/selector"
	"github.com/cloudwego/ttasched/mach"
	"github.com/cloudwego/ttasched/prog"
)

type Scheduler struct {
	u        *prog.Unit
	m        *mach.Machine
	g        *ddg.Graph
	rm       *rm.ResourceManager
	sel      *selector.Selector
	ren      *renamer.Renamer
	opts     *opts.Options
	log      *slog.Logger
	info     *loop.Result
	ii       int
	lo       int
	hi       int
	stack    *lane.Stack
	killed   map[prog.MoveId]bool
	kept     map[prog.MoveId]bool
	bypassed map[prog.MoveId]prog.MoveId
	renamed  map[prog.MoveId]prog.Reg
	shares   map[prog.MoveId]ShareKind
}

// newScheduler prepares one scheduling attempt of the unit of g within the
// cycle window [lo, hi]. ii > 0 schedules a loop body in modulo mode.
func newScheduler(g *ddg.Graph, ii int, lo int, hi int, o *opts.Options) (*Scheduler, error) {
	dir := selector.BottomUp
	if o.TopDown {
		dir = selector.TopDown
	}

	/* the selector refuses cyclic graphs */
	sel, err := selector.New(g, dir)
	if err != nil {
		return nil, efail(g.Unit, NoMove, err.Error())
	}

	/* construct the scheduler */
	return &Scheduler{
		u:        g.Unit,
		m:        g.Machine,
		g:        g,
		rm:       rm.New(g.Unit, ii),
		sel:      sel,
		ren:      renamer.New(g.Unit),
		opts:     o,
		log:      o.Log().With("unit", g.Unit.Name, "ii", ii),
		ii:       ii,
		lo:       lo,
		hi:       hi,
		stack:    lane.NewStack(),
		killed:   make(map[prog.MoveId]bool),
		kept:     make(map[prog.MoveId]bool),
		bypassed: make(map[prog.MoveId]prog.MoveId),
		renamed:  make(map[prog.MoveId]prog.Reg),
		shares:   make(map[prog.MoveId]ShareKind),
	}, nil
}

func (self *Scheduler) bottomUp() bool {
	return self.sel.Direction() == selector.BottomUp
}

/** Undo Stack **/

func (self *Scheduler) record(r _Record) {
	self.stack.Push(r)
}

func (self *Scheduler) mark() int {
	return self.stack.Size()
}

// revert undoes every step recorded after mark.
func (self *Scheduler) revert(mark int) {
	n := 0
	for self.stack.Size() > mark {
		r := self.stack.Pop().(_Record)
		r.undo(self)
		n++
	}
	if n != 0 {
		count(&RollbackCount)
		self.sel.Refresh()
	}
}

// unschedule takes back everything the scheduler did to the unit.
func (self *Scheduler) unschedule() {
	self.revert(0)
}

// commit forgets the undo history, the current state becomes final.
func (self *Scheduler) commit() {
	self.stack = lane.NewStack()
}

/** Primitive Steps **/

func (self *Scheduler) notify(nodes ...*ddg.Node) {
	for _, n := range nodes {
		if self.bottomUp() {
			self.sel.MightBeReady(self.g.Predecessors(n)...)
		} else {
			self.sel.MightBeReady(self.g.Successors(n)...)
		}
	}
}

func (self *Scheduler) assign(n *ddg.Node, p rm.Placement) {
	self.rm.Assign(n.Move, p)
	self.record(&_Assigned{n})
	self.notify(n)
}

func (self *Scheduler) unassign(n *ddg.Node) {
	p, ok := self.rm.Placement(n.Id())
	if !ok {
		panic(fmt.Sprintf("bf: m%d is not scheduled", n.Id()))
	}
	self.rm.Unassign(n.Move)
	self.record(&_Unassigned{n, p})
}

// kill removes n from the graph. With keep set, the move is only taken out of
// the loop body and a copy of it is placed before the loop.
func (self *Scheduler) kill(n *ddg.Node, keep bool) {
	preds := self.g.Predecessors(n)
	succs := self.g.Successors(n)
	if r, ok := n.Move.Writes(); ok {
		self.bridge(n, r)
	}
	self.g.Kill(n)
	self.record(&_Killed{n, keep})

	/* book keeping */
	if keep {
		self.kept[n.Id()] = true
	} else {
		self.killed[n.Id()] = true
	}

	/* the neighbours may be ready now */
	if self.bottomUp() {
		self.sel.MightBeReady(preds...)
	} else {
		self.sel.MightBeReady(succs...)
	}
}

func (self *Scheduler) addEdge(from *ddg.Node, to *ddg.Node, kind ddg.EdgeKind, reg prog.Reg, latency int) *ddg.Edge {
	e := self.g.AddEdge(from, to, kind, reg, latency, false)
	self.record(&_EdgeAdded{e})
	return e
}

// bridge orders the earlier accesses of r directly before the later writes of
// r, which were only ordered through n. It must run before n stops writing r.
func (self *Scheduler) bridge(n *ddg.Node, r prog.Reg) {
	for _, a := range self.g.In(n) {
		if a.Reg != r || (a.Kind != ddg.E_output && a.Kind != ddg.E_anti) {
			continue
		}
		for _, b := range self.g.Out(n) {
			if b.Reg != r || b.Kind != ddg.E_output || a.From == b.To || (a.LoopCarried && b.LoopCarried) {
				continue
			}

			/* a write before a write, or a read before a write */
			kind, lat := ddg.E_output, 1
			if a.Kind == ddg.E_anti {
				kind, lat = ddg.E_anti, 0
			}
			e := self.g.AddEdge(a.From, b.To, kind, r, lat, a.LoopCarried || b.LoopCarried)
			e.Guard = a.Guard
			self.record(&_EdgeAdded{e})
		}
	}
}

func (self *Scheduler) removeEdge(e *ddg.Edge) {
	self.g.RemoveEdge(e)
	self.record(&_EdgeRemoved{e})
}

// retarget rewrites the terminals of mv. When the new source is a result of
// an operation, mv joins the result moves of that operation.
func (self *Scheduler) retarget(mv *prog.Move, src prog.Terminal, dst prog.Terminal) {
	r := &_Retargeted{mv: mv, src: mv.Src, dst: mv.Dst}
	if src.Kind == prog.T_output && (mv.Src.Kind != prog.T_output || mv.Src.Op != src.Op) {
		r.op = self.u.Op(src.Op)
		r.out = r.op.Outputs
		r.op.Outputs = append(append([]prog.MoveId(nil), r.out...), mv.Id)
	}
	mv.Src, mv.Dst = src, dst
	self.record(r)
}

/** Placement **/

func (self *Scheduler) isControl(n *ddg.Node) bool {
	if id, ok := n.Move.DstOp(); !ok || !self.u.IsTrigger(n.Move) {
		return false
	} else {
		return self.u.Op(id).Spec.Control
	}
}

// speculable reports whether n may run one iteration ahead, in a stage that
// also executes after the last iteration.
func (self *Scheduler) speculable(n *ddg.Node) bool {
	mv := n.Move
	if id, ok := mv.DstOp(); ok && self.u.IsTrigger(mv) {
		if sp := self.u.Op(id).Spec; sp.HasSideEffects() || sp.IsMemory() {
			return false
		}
	}
	if r, ok := mv.Writes(); ok && self.u.IsLiveOut(r) {
		return false
	}
	return true
}

// bounds returns the cycle interval the scheduled neighbours of n and the
// window leave to it.
func (self *Scheduler) bounds(n *ddg.Node) (int, int) {
	lo, hi := self.lo, self.hi
	if c, ok := self.g.EarliestCycle(n, self.ii); ok {
		lo = maxint(lo, c)
	}
	if c, ok := self.g.LatestCycle(n, self.ii); ok {
		hi = minint(hi, c)
	}

	/* the delay slots of the jump belong to the unit */
	if self.isControl(n) {
		hi = minint(hi, self.hi-self.m.DelaySlots)
	}

	/* moves that cannot run ahead stay in the last stage */
	if self.ii > 0 && !self.speculable(n) {
		lo = maxint(lo, 0)
	}
	return lo, hi
}

// place schedules n as late (bottom-up) or as early (top-down) as possible
// within [lo, hi] and the bounds of its neighbours.
func (self *Scheduler) place(n *ddg.Node, lo int, hi int) bool {
	var ok bool
	var p rm.Placement

	/* intersect with the dependences */
	l, h := self.bounds(n)
	lo, hi = maxint(lo, l), minint(hi, h)
	if lo > hi {
		return false
	}

	/* find the resources */
	if self.bottomUp() {
		p, ok = self.rm.Latest(n.Move, lo, hi)
	} else {
		p, ok = self.rm.Earliest(n.Move, lo, hi)
	}
	if !ok {
		return false
	}

	/* commit the placement */
	self.assign(n, p)
	return true
}

/** Driver **/

// run schedules every active node of the graph.
func (self *Scheduler) run() error {
	for n := self.sel.Next(); n != nil; n = self.sel.Next() {
		if err := self.scheduleNode(n); err != nil {
			return err
		}
	}

	/* nodes never ready are part of a cycle the selector could not break */
	for _, n := range self.g.ActiveNodes() {
		if !n.IsScheduled() {
			return efail(self.u, n.Id(), "move never became ready")
		}
	}
	return nil
}

func (self *Scheduler) scheduleNode(n *ddg.Node) error {
	mark := self.mark()

	/* dead results vanish instead of being scheduled */
	if self.opts.KillDeadResults && self.isDeadResult(n) {
		self.log.Debug("dead result", "move", n.Id())
		self.kill(n, false)
		return nil
	}

	/* place the move, escalating when it does not fit */
	if !self.place(n, self.lo, self.hi) && !self.renameAndPlace(n) && !self.pushAndPlace(n) {
		self.revert(mark)
		return efail(self.u, n.Id(), "no cycle within the window can host the move")
	}

	/* local optimizations around the new placement */
	if self.bottomUp() && !self.bypass(n) && self.u.IsTrigger(n.Move) {
		self.resultsClose(n)
	}
	return nil
}

/** State Inspection **/

// Fingerprint renders the complete scheduler state, graph and ledger included.
func (self *Scheduler) Fingerprint() string {
	var buf []string
	for id := range self.killed {
		buf = append(buf, fmt.Sprintf("killed m%d", id))
	}
	for id := range self.kept {
		buf = append(buf, fmt.Sprintf("kept m%d", id))
	}
	for id, w := range self.bypassed {
		buf = append(buf, fmt.Sprintf("bypassed m%d via m%d", id, w))
	}
	for id, r := range self.renamed {
		buf = append(buf, fmt.Sprintf("renamed m%d to %s", id, r))
	}
	for id, k := range self.shares {
		buf = append(buf, fmt.Sprintf("share m%d %s", id, k))
	}
	for _, r := range self.ren.Allocated() {
		buf = append(buf, "allocated "+r.String())
	}
	sort.Strings(buf)
	return strings.Join([]string{
		self.g.Fingerprint(),
		self.rm.Fingerprint(),
		strings.Join(buf, "\n"),
	}, "\n--\n")
}

func minint(a int, b int) int {
	if a < b {
		return a
	} else {
		return b
	}
}

func maxint(a int, b int) int {
	if a > b {
		return a
	} else {
		return b
	}
}
