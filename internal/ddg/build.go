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

package ddg

import (
	"github.com/cloudwego/ttasched/prog"
)

type _Access struct {
	n     *Node
	read  bool
	write bool
	guard bool
	cond  bool
}

// Build constructs the dependence graph of u. With loop set, the unit is a loop
// body and loop-carried edges towards the next iteration are added as well.
func Build(u *prog.Unit, loop bool) *Graph {
	g := &Graph{
		Unit:    u,
		Machine: u.Machine,
		Nodes:   make([]*Node, len(u.Moves)),
		Loop:    loop,
	}

	/* one node per move */
	for i, mv := range u.Moves {
		g.Nodes[i] = &Node{Move: mv}
	}

	/* edges within one iteration */
	acc := g.buildRegisterEdges()
	g.buildOperationEdges()
	g.buildMemoryEdges(false)
	g.buildControlEdges()

	/* edges towards the next iteration */
	if loop {
		g.buildCarriedRegisterEdges(acc)
		g.buildMemoryEdges(true)
	}
	return g
}

func (self *Graph) buildRegisterEdges() map[prog.Reg][]_Access {
	acc := make(map[prog.Reg][]_Access)
	reach := make(map[prog.Reg][]*Node)
	readers := make(map[prog.Reg][]_Access)

	/* scan in program order */
	for _, n := range self.Nodes {
		mv := n.Move

		/* source register */
		if mv.Src.Kind == prog.T_reg {
			self.read(n, mv.Src.Reg, false, reach, readers, acc)
		}

		/* guard register */
		if mv.Guard != nil {
			self.read(n, mv.Guard.Reg, true, reach, readers, acc)
		}

		/* destination register */
		if r, ok := mv.Writes(); ok {
			for _, a := range readers[r] {
				if a.n != n {
					self.AddEdge(a.n, n, E_anti, r, 0, false).Guard = a.guard
				}
			}
			for _, w := range reach[r] {
				self.AddEdge(w, n, E_output, r, 1, false)
			}

			/* a guarded write may not happen, the older values still reach */
			if mv.Guard == nil {
				reach[r] = []*Node{n}
				readers[r] = nil
			} else {
				reach[r] = append(reach[r], n)
			}
			acc[r] = append(acc[r], _Access{n: n, write: true, cond: mv.Guard != nil})
		}
	}
	return acc
}

func (self *Graph) read(n *Node, r prog.Reg, guard bool, reach map[prog.Reg][]*Node, readers map[prog.Reg][]_Access, acc map[prog.Reg][]_Access) {
	a := _Access{n: n, read: true, guard: guard}
	for _, w := range reach[r] {
		lat := 1
		if guard {
			lat = self.Machine.GuardLatency
		}
		self.AddEdge(w, n, E_data, r, lat, false).Guard = guard
	}
	readers[r] = append(readers[r], a)
	acc[r] = append(acc[r], a)
}

func (self *Graph) buildOperationEdges() {
	for _, op := range self.Unit.Ops {
		trig := self.Nodes[op.Trigger()]

		/* every other operand must be written no later than the trigger */
		for _, id := range op.Inputs {
			if id != trig.Id() {
				self.AddEdge(self.Nodes[id], trig, E_operation, prog.Reg{}, 0, false)
			}
		}

		/* results are readable after the operation latency */
		for _, id := range op.Outputs {
			self.AddEdge(trig, self.Nodes[id], E_operation, prog.Reg{}, op.Spec.Latency, false)
		}
	}
}

func (self *Graph) buildMemoryEdges(carried bool) {
	var mem []*prog.Operation
	for _, op := range self.Unit.Ops {
		if op.Spec.IsMemory() {
			mem = append(mem, op)
		}
	}

	/* order every pair of accesses that might alias, with at least one store */
	for i, a := range mem {
		for j, b := range mem {
			if (!carried && j <= i) || (carried && j > i) {
				continue
			}
			if !a.Spec.WritesMemory && !b.Spec.WritesMemory {
				continue
			}
			if a.Addr != nil && b.Addr != nil && *a.Addr != *b.Addr {
				continue
			}
			self.AddEdge(self.Nodes[a.Trigger()], self.Nodes[b.Trigger()], E_memory, prog.Reg{}, 1, carried)
		}
	}
}

func (self *Graph) buildControlEdges() {
	var term *prog.Operation
	for _, op := range self.Unit.Ops {
		if op.Spec.Control {
			term = op
		}
	}

	/* no control transfer in this unit */
	if term == nil {
		return
	}

	/* nothing may land after the last delay slot */
	own := make(map[prog.MoveId]bool)
	for _, id := range term.Inputs {
		own[id] = true
	}
	trig := self.Nodes[term.Trigger()]
	for _, n := range self.Nodes {
		if !own[n.Id()] {
			self.AddEdge(n, trig, E_control, prog.Reg{}, -self.Machine.DelaySlots, false)
		}
	}
}

func (self *Graph) buildCarriedRegisterEdges(acc map[prog.Reg][]_Access) {
	for _, r := range regsorted(acc) {
		var final []int
		aa := acc[r]
		exposed := len(aa)

		/* writes reaching the end of the iteration, and the first unconditional one */
		for i, a := range aa {
			if !a.write {
				continue
			}
			if !a.cond {
				final = final[:0]
				if exposed == len(aa) {
					exposed = i
				}
			}
			final = append(final, i)
		}

		/* never written: the value is loop invariant */
		if len(final) == 0 {
			continue
		}

		/* those writes reach the upward exposed reads of the next iteration */
		for _, w := range final {
			for i := 0; i < exposed; i++ {
				if aa[i].read && aa[i].n != aa[w].n {
					lat := 1
					if aa[i].guard {
						lat = self.Machine.GuardLatency
					}
					self.AddEdge(aa[w].n, aa[i].n, E_data, r, lat, true).Guard = aa[i].guard
				}
			}
		}

		/* later accesses must finish before earlier writes of the next iteration */
		for i, a := range aa {
			for j := 0; j <= i; j++ {
				b := aa[j]
				if !b.write || a.n == b.n {
					continue
				}
				if a.write {
					self.AddEdge(a.n, b.n, E_output, r, 1, true)
				} else {
					self.AddEdge(a.n, b.n, E_anti, r, 0, true).Guard = a.guard
				}
			}
		}
	}
}
