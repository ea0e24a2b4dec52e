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

// Package selector keeps the ready set of a dependence graph in a priority
// queue. Priorities are unique per node, so for a fixed graph state the next
// choice is always the same.
package selector

import (
	"github.com/oleiade/lane"

	"github.com/cloudwego/ttasched/internal/ddg"
	"github.com/cloudwego/ttasched/prog"
)

type Direction uint8

const (
	BottomUp Direction = iota
	TopDown
)

func (self Direction) String() string {
	if self == TopDown {
		return "top-down"
	} else {
		return "bottom-up"
	}
}

const (
	_TieBits   = 24
	_BonusBits = 4
	_MaxBonus  = 1<<_BonusBits - 1
	_MaxTie    = 1<<_TieBits - 1
)

type Selector struct {
	g      *ddg.Graph
	dir    Direction
	q      *lane.PQueue
	dist   map[prog.MoveId]int
	queued map[prog.MoveId]int
}

// New creates a selector over g and queues every node that is ready already.
func New(g *ddg.Graph, dir Direction) (*Selector, error) {
	var err error
	var dist map[prog.MoveId]int

	/* bottom-up favours long chains above a node, top-down below it */
	if dir == BottomUp {
		dist, err = g.SourceDistance()
	} else {
		dist, err = g.SinkDistance()
	}
	if err != nil {
		return nil, err
	}

	/* queue the initial ready set */
	ret := &Selector{
		g:      g,
		dir:    dir,
		q:      lane.NewPQueue(lane.MAXPQ),
		dist:   dist,
		queued: make(map[prog.MoveId]int),
	}
	ret.Refresh()
	return ret, nil
}

func (self *Selector) Direction() Direction {
	return self.dir
}

// IsReady reports whether n may be scheduled now.
func (self *Selector) IsReady(n *ddg.Node) bool {
	if !n.IsActive() || n.IsScheduled() {
		return false
	} else if self.dir == BottomUp {
		return !self.g.HasUnscheduledSuccessors(n)
	} else {
		return !self.g.HasUnscheduledPredecessors(n)
	}
}

// Priority ranks n: longer dependence chains first, then nodes whose operation
// has fewer moves left to schedule, then program order.
func (self *Selector) Priority(n *ddg.Node) int {
	left := 0
	mv := n.Move
	u := self.g.Unit

	/* count the unscheduled moves of the operation(s) the move belongs to */
	if id, ok := mv.DstOp(); ok {
		left += self.remaining(u.Op(id))
	}
	if id, ok := mv.SrcOp(); ok {
		left += self.remaining(u.Op(id))
	}
	if left > _MaxBonus {
		left = _MaxBonus
	}

	/* bottom-up prefers later moves, top-down earlier ones */
	tie := int(n.Id())
	if self.dir == TopDown {
		tie = _MaxTie - tie
	}
	return self.dist[n.Id()]<<(_TieBits+_BonusBits) | (_MaxBonus-left)<<_TieBits | tie
}

func (self *Selector) remaining(op *prog.Operation) int {
	n := 0
	for _, id := range op.Inputs {
		if nd := self.g.Node(id); nd.IsActive() && !nd.IsScheduled() {
			n++
		}
	}
	for _, id := range op.Outputs {
		if nd := self.g.Node(id); nd.IsActive() && !nd.IsScheduled() {
			n++
		}
	}
	return n
}

// MightBeReady queues the nodes that are ready, e.g. the predecessors of a node
// that was just scheduled or removed.
func (self *Selector) MightBeReady(nodes ...*ddg.Node) {
	for _, n := range nodes {
		if !self.IsReady(n) {
			continue
		}
		p := self.Priority(n)
		if q, ok := self.queued[n.Id()]; !ok || q != p {
			self.queued[n.Id()] = p
			self.q.Push(n, p)
		}
	}
}

// Refresh requeues every ready node, used after a rollback.
func (self *Selector) Refresh() {
	self.MightBeReady(self.g.ActiveNodes()...)
}

// Next pops the ready node with the highest priority, or nil.
func (self *Selector) Next() *ddg.Node {
	for !self.q.Empty() {
		v, p := self.q.Pop()
		n := v.(*ddg.Node)

		/* skip stale entries */
		if q, ok := self.queued[n.Id()]; !ok || q != p {
			continue
		}
		delete(self.queued, n.Id())
		if !self.IsReady(n) {
			continue
		}

		/* the priority may have changed since the node was queued */
		if np := self.Priority(n); np != p {
			self.queued[n.Id()] = np
			self.q.Push(n, np)
			continue
		}
		return n
	}
	return nil
}

// Len returns the number of queued entries, stale ones included.
func (self *Selector) Len() int {
	return self.q.Size()
}
