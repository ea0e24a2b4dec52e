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

// overwritten reports whether the register written by n is unconditionally
// written again later in the same iteration.
func (self *Scheduler) overwritten(n *ddg.Node) bool {
	for _, e := range self.g.Out(n) {
		if e.Kind == ddg.E_output && !e.LoopCarried && e.To.Move.Guard == nil {
			return true
		}
	}
	return false
}

// valueDies reports whether nothing but the edge skip reads the value n
// leaves in its register, neither inside the unit nor after it.
func (self *Scheduler) valueDies(n *ddg.Node, skip *ddg.Edge) bool {
	r, ok := n.Move.Writes()
	if !ok {
		return false
	}

	/* readers inside the unit, the next iteration included */
	for _, e := range self.g.Out(n) {
		if e.Kind == ddg.E_data && e != skip {
			return false
		}
	}

	/* readers after the unit */
	return !self.u.IsLiveOut(r) || self.overwritten(n)
}

// isDeadResult reports whether n moves a result into a register nobody reads.
func (self *Scheduler) isDeadResult(n *ddg.Node) bool {
	mv := n.Move
	if mv.Src.Kind != prog.T_output || mv.Dst.Kind != prog.T_reg || mv.Guard != nil {
		return false
	} else {
		return self.valueDies(n, nil)
	}
}
