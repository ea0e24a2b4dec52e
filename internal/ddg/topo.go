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
	"errors"
	"sort"

	"github.com/oleiade/lane"
	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	"github.com/cloudwego/ttasched/prog"
)

// ErrCyclic is returned by Validate when intra-iteration edges form a cycle.
var ErrCyclic = errors.New("ddg: dependence graph is not acyclic")

func (self *Graph) directed() *simple.DirectedGraph {
	dg := simple.NewDirectedGraph()
	for _, n := range self.ActiveNodes() {
		dg.AddNode(simple.Node(n.Id()))
	}
	for _, e := range self.Edges {
		if e.IsActive() && !e.LoopCarried && e.From != e.To {
			dg.SetEdge(dg.NewEdge(simple.Node(e.From.Id()), simple.Node(e.To.Id())))
		}
	}
	return dg
}

func byid(nodes []graph.Node) {
	sort.Slice(nodes, func(i int, j int) bool {
		return nodes[i].ID() < nodes[j].ID()
	})
}

// Order returns the active nodes in a deterministic topological order, ignoring
// loop-carried edges.
func (self *Graph) Order() ([]*Node, error) {
	nn, err := topo.SortStabilized(self.directed(), byid)
	if err != nil {
		return nil, ErrCyclic
	}
	ret := make([]*Node, len(nn))
	for i, v := range nn {
		ret[i] = self.Nodes[v.ID()]
	}
	return ret, nil
}

// Validate checks that the graph is a DAG once loop-carried edges are ignored.
func (self *Graph) Validate() error {
	_, err := self.Order()
	return err
}

func weight(e *Edge) int {
	if e.Kind == E_control {
		return 0
	} else if e.Latency < 1 {
		return 1
	} else {
		return e.Latency
	}
}

// SourceDistance returns, for every active node, the length of the longest
// dependence chain from any source to it.
func (self *Graph) SourceDistance() (map[prog.MoveId]int, error) {
	order, err := self.Order()
	if err != nil {
		return nil, err
	}
	ret := make(map[prog.MoveId]int, len(order))
	for _, n := range order {
		d := 0
		for _, e := range self.In(n) {
			if !e.LoopCarried && e.From != n {
				d = maxint(d, ret[e.From.Id()]+weight(e))
			}
		}
		ret[n.Id()] = d
	}
	return ret, nil
}

// SinkDistance returns, for every active node, the length of the longest
// dependence chain from it to any sink.
func (self *Graph) SinkDistance() (map[prog.MoveId]int, error) {
	order, err := self.Order()
	if err != nil {
		return nil, err
	}
	ret := make(map[prog.MoveId]int, len(order))
	for i := len(order) - 1; i >= 0; i-- {
		d := 0
		n := order[i]
		for _, e := range self.Out(n) {
			if !e.LoopCarried && e.To != n {
				d = maxint(d, ret[e.To.Id()]+weight(e))
			}
		}
		ret[n.Id()] = d
	}
	return ret, nil
}

func regsorted(m map[prog.Reg][]_Access) []prog.Reg {
	ret := make([]prog.Reg, 0, len(m))
	for r := range m {
		ret = append(ret, r)
	}
	sort.Slice(ret, func(i int, j int) bool {
		return ret[i].File < ret[j].File || (ret[i].File == ret[j].File && ret[i].Index < ret[j].Index)
	})
	return ret
}

func maxint(a int, b int) int {
	if a > b {
		return a
	} else {
		return b
	}
}

// Reaches reports whether to can be reached from from through active edges
// within one iteration.
func (self *Graph) Reaches(from *Node, to *Node) bool {
	q := lane.NewQueue()
	seen := map[*Node]bool{from: true}

	/* breadth first from the source */
	for q.Enqueue(from); !q.Empty(); {
		n := q.Dequeue().(*Node)
		if n == to {
			return true
		}
		for _, e := range self.Out(n) {
			if !e.LoopCarried && !seen[e.To] {
				seen[e.To] = true
				q.Enqueue(e.To)
			}
		}
	}
	return false
}
