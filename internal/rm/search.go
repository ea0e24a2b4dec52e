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

package rm

import (
	"github.com/cloudwego/ttasched/prog"
)

// Earliest returns the placement of mv at the first cycle within [lo, hi] that
// has room for it.
func (self *ResourceManager) Earliest(mv *prog.Move, lo int, hi int) (Placement, bool) {
	for c := lo; c <= hi; c++ {
		if p, ok := self.Best(c, mv); ok {
			return p, true
		}
	}
	return Placement{}, false
}

// Latest is the bottom-up counterpart of Earliest.
func (self *ResourceManager) Latest(mv *prog.Move, lo int, hi int) (Placement, bool) {
	for c := hi; c >= lo; c-- {
		if p, ok := self.Best(c, mv); ok {
			return p, true
		}
	}
	return Placement{}, false
}

// Retime returns p moved onto another cycle, keeping the bus and the ports.
// The result must be checked with Fits before it is assigned.
func Retime(p Placement, cycle int) Placement {
	p.Cycle = cycle
	return p
}

// Fits reports whether mv can take exactly placement p.
func (self *ResourceManager) Fits(mv *prog.Move, p Placement) bool {
	for _, v := range self.candidates(p.Cycle, mv, false) {
		if v.Bus == p.Bus && v.Src == p.Src && v.Dst == p.Dst {
			return true
		}
	}
	return false
}
