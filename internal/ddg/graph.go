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

// Package ddg implements the dependence graph of one scheduling unit. Nodes wrap
// moves and are addressed by move id; edges are never freed while the graph is
// alive, so every mutation can be reverted by flipping state back.
package ddg

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cloudwego/ttasched/mach"
	"github.com/cloudwego/ttasched/prog"
)

type EdgeKind uint8

const (
	E_data EdgeKind = iota
	E_anti
	E_output
	E_memory
	E_control
	E_operation
)

func (self EdgeKind) String() string {
	switch self {
	case E_data:
		return "raw"
	case E_anti:
		return "war"
	case E_output:
		return "waw"
	case E_memory:
		return "mem"
	case E_control:
		return "ctrl"
	case E_operation:
		return "op"
	default:
		return fmt.Sprintf("EdgeKind(%d)", self)
	}
}

// IsRegister reports whether the edge stems from sharing a register name.
func (self EdgeKind) IsRegister() bool {
	return self == E_data || self == E_anti || self == E_output
}

type NodeState uint8

const (
	S_active NodeState = iota
	S_removed
)

type Node struct {
	Move  *prog.Move
	State NodeState
	in    []*Edge
	out   []*Edge
}

func (self *Node) Id() prog.MoveId {
	return self.Move.Id
}

func (self *Node) IsActive() bool {
	return self.State == S_active
}

func (self *Node) IsScheduled() bool {
	return self.Move.IsScheduled()
}

func (self *Node) String() string {
	return self.Move.String()
}

type Edge struct {
	Id          int
	From        *Node
	To          *Node
	Kind        EdgeKind
	Reg         prog.Reg
	Guard       bool
	Latency     int
	LoopCarried bool
	removed     bool
}

// IsActive reports whether the edge still constrains the schedule.
func (self *Edge) IsActive() bool {
	return !self.removed && self.From.IsActive() && self.To.IsActive()
}

func (self *Edge) String() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("m%d -%s", self.From.Id(), self.Kind))
	if self.Kind.IsRegister() {
		sb.WriteString(":" + self.Reg.String())
	}
	if self.Guard {
		sb.WriteString(":g")
	}
	if self.LoopCarried {
		sb.WriteString(":lc")
	}
	sb.WriteString(fmt.Sprintf("(%d)-> m%d", self.Latency, self.To.Id()))
	return sb.String()
}

type Graph struct {
	Unit    *prog.Unit
	Machine *mach.Machine
	Nodes   []*Node
	Edges   []*Edge
	Loop    bool
}

func (self *Graph) Node(id prog.MoveId) *Node {
	return self.Nodes[id]
}

// NodeOf returns the node of mv.
func (self *Graph) NodeOf(mv *prog.Move) *Node {
	return self.Nodes[mv.Id]
}

// AddEdge links two nodes. Added edges are removed with Unlink when undone.
func (self *Graph) AddEdge(from *Node, to *Node, kind EdgeKind, reg prog.Reg, latency int, carried bool) *Edge {
	e := &Edge{
		Id:          len(self.Edges),
		From:        from,
		To:          to,
		Kind:        kind,
		Reg:         reg,
		Latency:     latency,
		LoopCarried: carried,
	}
	self.Edges = append(self.Edges, e)
	from.out = append(from.out, e)
	to.in = append(to.in, e)
	return e
}

// Unlink forgets the most recently added edge entirely.
func (self *Graph) Unlink(e *Edge) {
	n := len(self.Edges)
	if n == 0 || self.Edges[n-1] != e {
		panic("ddg: edges must be unlinked in reverse order of creation")
	}
	self.Edges = self.Edges[:n-1]
	e.From.out = edgedrop(e.From.out, e)
	e.To.in = edgedrop(e.To.in, e)
}

func (self *Graph) RemoveEdge(e *Edge) {
	if e.removed {
		panic("ddg: edge removed twice: " + e.String())
	}
	e.removed = true
}

func (self *Graph) RestoreEdge(e *Edge) {
	if !e.removed {
		panic("ddg: restoring a live edge: " + e.String())
	}
	e.removed = false
}

// Kill removes a node from the graph and returns the predecessors whose
// readiness may have changed because of it.
func (self *Graph) Kill(n *Node) []*Node {
	if n.State != S_active {
		panic(fmt.Sprintf("ddg: m%d killed twice", n.Id()))
	}
	preds := self.Predecessors(n)
	n.State = S_removed
	return preds
}

// Resurrect brings a killed node back with all of its edges.
func (self *Graph) Resurrect(n *Node) {
	if n.State != S_removed {
		panic(fmt.Sprintf("ddg: m%d is not removed", n.Id()))
	}
	n.State = S_active
}

// In lists the active incoming edges of n, in creation order.
func (self *Graph) In(n *Node) []*Edge {
	return edgefilter(n.in)
}

// Out lists the active outgoing edges of n, in creation order.
func (self *Graph) Out(n *Node) []*Edge {
	return edgefilter(n.out)
}

func (self *Graph) Predecessors(n *Node) []*Node {
	var ret []*Node
	for _, e := range self.In(n) {
		ret = nodeappend(ret, e.From)
	}
	return ret
}

func (self *Graph) Successors(n *Node) []*Node {
	var ret []*Node
	for _, e := range self.Out(n) {
		ret = nodeappend(ret, e.To)
	}
	return ret
}

// HasUnscheduledSuccessors reports whether some ordinary successor of n has not
// been scheduled yet. Loop-carried edges do not count.
func (self *Graph) HasUnscheduledSuccessors(n *Node) bool {
	for _, e := range self.Out(n) {
		if !e.LoopCarried && e.To != n && !e.To.IsScheduled() {
			return true
		}
	}
	return false
}

// HasUnscheduledPredecessors is the top-down counterpart of HasUnscheduledSuccessors.
func (self *Graph) HasUnscheduledPredecessors(n *Node) bool {
	for _, e := range self.In(n) {
		if !e.LoopCarried && e.From != n && !e.From.IsScheduled() {
			return true
		}
	}
	return false
}

// EarliestCycle returns the lower bound the scheduled predecessors put on n.
// ii is the initiation interval used for loop-carried edges.
func (self *Graph) EarliestCycle(n *Node, ii int) (int, bool) {
	ok := false
	ret := prog.Unscheduled

	/* scan all the scheduled predecessors */
	for _, e := range self.In(n) {
		if e.From == n || !e.From.IsScheduled() || (e.LoopCarried && ii <= 0) {
			continue
		}
		c := e.From.Move.Cycle + e.Latency
		if e.LoopCarried {
			c -= ii
		}
		if !ok || c > ret {
			ret, ok = c, true
		}
	}
	return ret, ok
}

// LatestCycle returns the upper bound the scheduled successors put on n.
func (self *Graph) LatestCycle(n *Node, ii int) (int, bool) {
	ok := false
	ret := prog.Unscheduled

	/* scan all the scheduled successors */
	for _, e := range self.Out(n) {
		if e.To == n || !e.To.IsScheduled() || (e.LoopCarried && ii <= 0) {
			continue
		}
		c := e.To.Move.Cycle - e.Latency
		if e.LoopCarried {
			c += ii
		}
		if !ok || c < ret {
			ret, ok = c, true
		}
	}
	return ret, ok
}

// LatestCycleOf is LatestCycle restricted to edges accepted by the filter.
func (self *Graph) LatestCycleOf(n *Node, ii int, filter func(*Edge) bool) (int, bool) {
	ok := false
	ret := prog.Unscheduled
	for _, e := range self.Out(n) {
		if e.To == n || !e.To.IsScheduled() || (e.LoopCarried && ii <= 0) || !filter(e) {
			continue
		}
		c := e.To.Move.Cycle - e.Latency
		if e.LoopCarried {
			c += ii
		}
		if !ok || c < ret {
			ret, ok = c, true
		}
	}
	return ret, ok
}

// FindBypassEdge returns the data edge through which n reads the value a
// result move left in a register, if that edge is unique.
func (self *Graph) FindBypassEdge(n *Node) *Edge {
	var ret *Edge
	src := n.Move.Src

	/* only register sources can be bypassed */
	if src.Kind != prog.T_reg {
		return nil
	}

	/* the reaching definition must be unique, and must come from an FU */
	for _, e := range self.In(n) {
		if e.Kind != E_data || e.Guard || e.Reg != src.Reg {
			continue
		}
		if ret != nil {
			return nil
		}
		ret = e
	}
	if ret == nil || ret.LoopCarried || ret.From.Move.Src.Kind != prog.T_output {
		return nil
	}
	return ret
}

// Consumers lists the active data edges reading the value n writes.
func (self *Graph) Consumers(n *Node) []*Edge {
	var ret []*Edge
	for _, e := range self.Out(n) {
		if e.Kind == E_data && !e.LoopCarried {
			ret = append(ret, e)
		}
	}
	return ret
}

// EdgesOn lists the active register edges of n involving register r.
func (self *Graph) EdgesOn(n *Node, r prog.Reg) []*Edge {
	var ret []*Edge
	for _, e := range self.In(n) {
		if e.Kind.IsRegister() && e.Reg == r {
			ret = append(ret, e)
		}
	}
	for _, e := range self.Out(n) {
		if e.Kind.IsRegister() && e.Reg == r {
			ret = append(ret, e)
		}
	}
	return ret
}

// ActiveNodes lists the active nodes in move order.
func (self *Graph) ActiveNodes() []*Node {
	ret := make([]*Node, 0, len(self.Nodes))
	for _, n := range self.Nodes {
		if n.IsActive() {
			ret = append(ret, n)
		}
	}
	return ret
}

// Fingerprint renders every publicly observable property of the graph. Two
// graphs with equal fingerprints answer every query the same way.
func (self *Graph) Fingerprint() string {
	var sb strings.Builder
	for _, n := range self.Nodes {
		sb.WriteString(fmt.Sprintf("%v state=%d\n", n.Move, n.State))
	}
	ee := make([]string, 0, len(self.Edges))
	for _, e := range self.Edges {
		if e.IsActive() {
			ee = append(ee, e.String())
		}
	}
	sort.Strings(ee)
	sb.WriteString(strings.Join(ee, "\n"))
	return sb.String()
}

func (self *Graph) String() string {
	var sb strings.Builder
	sb.WriteString("ddg " + self.Unit.Name + "\n")
	for _, n := range self.ActiveNodes() {
		sb.WriteString("  " + n.String() + "\n")
		for _, e := range self.Out(n) {
			sb.WriteString("    " + e.String() + "\n")
		}
	}
	return sb.String()
}

func edgefilter(ee []*Edge) []*Edge {
	ret := make([]*Edge, 0, len(ee))
	for _, e := range ee {
		if e.IsActive() {
			ret = append(ret, e)
		}
	}
	return ret
}

func edgedrop(ee []*Edge, e *Edge) []*Edge {
	for i := len(ee) - 1; i >= 0; i-- {
		if ee[i] == e {
			return append(ee[:i], ee[i+1:]...)
		}
	}
	panic("ddg: edge not linked: " + e.String())
}

func nodeappend(nn []*Node, n *Node) []*Node {
	for _, v := range nn {
		if v == n {
			return nn
		}
	}
	return append(nn, n)
}
