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
	"github.com/cloudwego/ttasched/mach"
	"github.com/cloudwego/ttasched/prog"
)

// _Window is the closed cycle interval during which an operation owns a port of
// its function unit. Issue slots use the negative key -(unit id + 1).
type _Window struct {
	key int
	lo  int
	hi  int
}

func issuekey(fu *mach.FunctionUnit) int {
	return -(fu.Id + 1)
}

func (self *ResourceManager) cycleOf(id prog.MoveId, extra prog.MoveId, cycle int) (int, bool) {
	if id == extra {
		return cycle, true
	}
	if p, ok := self.place[id]; ok {
		return p.Cycle, true
	}
	return 0, false
}

// windows derives the port reservations of op bound onto hw, as if move extra
// was assigned at cycle. Operand ports are held from the operand write up to the
// trigger, the issue slot for the occupancy after the trigger, and result ports
// from the moment the result lands until its last read.
func (self *ResourceManager) windows(op *prog.Operation, hw *mach.HWOperation, extra prog.MoveId, cycle int) []_Window {
	var ret []_Window
	trig := op.Trigger()
	t, tok := self.cycleOf(trig, extra, cycle)

	/* operand and trigger ports */
	for i, id := range op.Inputs {
		c, ok := self.cycleOf(id, extra, cycle)
		if !ok {
			continue
		}
		if id == trig {
			ret = append(ret, _Window{key: hw.Inputs[i].Id, lo: t, hi: t})
			ret = append(ret, _Window{key: issuekey(hw.Unit), lo: t, hi: t + hw.Occupancy - 1})
		} else if tok {
			ret = append(ret, _Window{key: hw.Inputs[i].Id, lo: minint(c, t), hi: maxint(c, t)})
		} else {
			ret = append(ret, _Window{key: hw.Inputs[i].Id, lo: c, hi: c})
		}
	}

	/* result ports */
	for k, p := range hw.Outputs {
		lo, hi, any := 0, 0, false
		for _, id := range op.Outputs {
			if self.u.Move(id).Src.Index != k {
				continue
			}
			if c, ok := self.cycleOf(id, extra, cycle); ok {
				if !any || c < lo {
					lo = c
				}
				if !any || c > hi {
					hi = c
				}
				any = true
			}
		}
		if tok {
			ready := t + op.Spec.Latency
			if lo, hi = ready, maxint(hi, ready); !any {
				hi = ready
			}
		} else if !any {
			continue
		}
		ret = append(ret, _Window{key: p.Id, lo: lo, hi: hi})
	}
	return ret
}

func (self *ResourceManager) overlaps(a _Window, b _Window) bool {
	if self.ii == 0 {
		return a.lo <= b.hi && b.lo <= a.hi
	}
	if a.hi-a.lo+1 >= self.ii || b.hi-b.lo+1 >= self.ii {
		return true
	}
	for k := -2; k <= 2; k++ {
		s := k * self.ii
		if a.lo <= b.hi+s && b.lo+s <= a.hi {
			return true
		}
	}
	return false
}

// fitsUnit checks that op, bound onto hw with move extra at cycle, does not
// clash with any other operation bound to the same function unit.
func (self *ResourceManager) fitsUnit(id prog.OpId, hw *mach.HWOperation, extra prog.MoveId, cycle int) bool {
	if id == _NoOp {
		return true
	}
	op := self.u.Op(id)
	mine := self.windows(op, hw, extra, cycle)

	/* a window longer than II collides with the next iteration of itself */
	if self.ii > 0 {
		for _, w := range mine {
			if w.hi-w.lo+1 > self.ii {
				return false
			}
		}
	}

	/* compare against every other operation on the unit */
	for oid, b := range self.binds {
		if oid == id || b.hw.Unit != hw.Unit {
			continue
		}
		for _, w := range self.windows(self.u.Op(oid), b.hw, -1, 0) {
			for _, v := range mine {
				if v.key == w.key && self.overlaps(v, w) {
					return false
				}
			}
		}
	}
	return true
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
