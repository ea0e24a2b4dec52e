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
)

// pushAndPlace makes room for n by moving its scheduled neighbours away: the
// successors further down when scheduling bottom-up, the predecessors further
// up when scheduling top-down. Each distance is tried in turn, and a failed
// try is rolled back completely.
func (self *Scheduler) pushAndPlace(n *ddg.Node) bool {
	var nodes []*ddg.Node
	var edges []*ddg.Edge

	/* the neighbours in the way */
	if self.bottomUp() {
		edges = self.g.Out(n)
	} else {
		edges = self.g.In(n)
	}
	for _, e := range edges {
		v := e.To
		if !self.bottomUp() {
			v = e.From
		}
		if v != n && !e.LoopCarried && v.IsScheduled() {
			nodes = append(nodes, v)
		}
	}
	if len(nodes) == 0 {
		return false
	}

	/* push further and further */
	for k := 1; k <= self.opts.MaxPushDepth; k++ {
		ok := true
		mark := self.mark()
		targets := make([]int, len(nodes))

		/* the targets are relative to where the neighbours are now */
		for i, v := range nodes {
			if self.bottomUp() {
				targets[i] = v.Move.Cycle + k
			} else {
				targets[i] = v.Move.Cycle - k
			}
		}

		/* move them all */
		for i, v := range nodes {
			if self.bottomUp() {
				ok = self.pushDown(v, targets[i], 0, make(map[*ddg.Node]bool))
			} else {
				ok = self.pushUp(v, targets[i], 0, make(map[*ddg.Node]bool))
			}
			if !ok {
				break
			}
		}

		/* try again with the extra room */
		if ok && self.place(n, self.lo, self.hi) {
			count(&PushCount)
			self.log.Debug("push", "move", n.Id(), "distance", k)
			return true
		}
		self.revert(mark)
	}
	return false
}

// pushDown reschedules n on cycle target or later, pushing its own scheduled
// successors down as needed. The recursion refuses to go deeper than the
// configured depth, to leave the window, or to revisit a node.
func (self *Scheduler) pushDown(n *ddg.Node, target int, depth int, visiting map[*ddg.Node]bool) bool {
	if !n.IsScheduled() || n.Move.Cycle >= target {
		return true
	}
	if depth > self.opts.MaxPushDepth || visiting[n] || target > self.hi {
		return false
	}

	/* the successors go first */
	visiting[n] = true
	defer delete(visiting, n)
	for _, e := range self.g.Out(n) {
		if e.To == n || e.LoopCarried || !e.To.IsScheduled() {
			continue
		}
		if need := target + e.Latency; e.To.Move.Cycle < need && !self.pushDown(e.To, need, depth+1, visiting) {
			return false
		}
	}

	/* then the node itself */
	self.unassign(n)
	return self.placeEarliest(n, target, self.hi)
}

// pushUp is the mirror image of pushDown.
func (self *Scheduler) pushUp(n *ddg.Node, target int, depth int, visiting map[*ddg.Node]bool) bool {
	if !n.IsScheduled() || n.Move.Cycle <= target {
		return true
	}
	if depth > self.opts.MaxPushDepth || visiting[n] || target < self.lo {
		return false
	}

	/* the predecessors go first */
	visiting[n] = true
	defer delete(visiting, n)
	for _, e := range self.g.In(n) {
		if e.From == n || e.LoopCarried || !e.From.IsScheduled() {
			continue
		}
		if need := target - e.Latency; e.From.Move.Cycle > need && !self.pushUp(e.From, need, depth+1, visiting) {
			return false
		}
	}

	/* then the node itself */
	self.unassign(n)
	return self.placeLatest(n, self.lo, target)
}
