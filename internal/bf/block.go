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
	"sort"

	"github.com/cloudwego/ttasched/internal/ddg"
	"github.com/cloudwego/ttasched/internal/loop"
	"github.com/cloudwego/ttasched/internal/opts"
	"github.com/cloudwego/ttasched/prog"
)

// Result describes a scheduled unit. In test-only mode only the measurements
// are filled in, and the unit is left untouched.
type Result struct {
	Unit         *prog.Unit
	Length       int
	II           int
	TestOnly     bool
	Instructions []prog.Instruction
	Prolog       []prog.Instruction
	Stages       map[prog.MoveId]int
	Killed       []prog.MoveId
	Kept         []prog.MoveId
	Bypassed     map[prog.MoveId]prog.MoveId
	Renamed      map[prog.MoveId]prog.Reg
	Shares       map[prog.MoveId]ShareKind
	Loop         *loop.Result
}

// ScheduleBlock schedules a straight-line unit. On failure the unit is left
// exactly as it was.
func ScheduleBlock(u *prog.Unit, o *opts.Options) (*Result, error) {
	g := ddg.Build(u, false)
	s, err := newScheduler(g, 0, o.MinCycle, o.MaxCycle, o)
	if err != nil {
		return nil, err
	}

	/* schedule everything */
	if err = s.run(); err != nil {
		s.unschedule()
		return nil, err
	}

	/* measure, then keep or throw away */
	ret := s.result()
	if o.TestOnly {
		s.unschedule()
	} else {
		s.finalize(ret)
	}
	return ret, nil
}

// extent returns the first and the last cycle the scheduled moves occupy,
// the delay slots of a jump included.
func (self *Scheduler) extent() (lo int, hi int, ok bool) {
	for _, n := range self.g.ActiveNodes() {
		if !n.IsScheduled() {
			continue
		}
		c := n.Move.Cycle
		e := c
		if self.isControl(n) {
			e += self.m.DelaySlots
		}
		if !ok || c < lo {
			lo = c
		}
		if !ok || e > hi {
			hi = e
		}
		ok = true
	}
	return
}

func (self *Scheduler) result() *Result {
	ret := &Result{
		Unit:     self.u,
		II:       self.ii,
		TestOnly: self.opts.TestOnly,
		Stages:   make(map[prog.MoveId]int),
		Bypassed: make(map[prog.MoveId]prog.MoveId, len(self.bypassed)),
		Renamed:  make(map[prog.MoveId]prog.Reg, len(self.renamed)),
		Shares:   make(map[prog.MoveId]ShareKind, len(self.shares)),
		Loop:     self.info,
	}

	/* the length */
	if lo, hi, ok := self.extent(); !ok {
		ret.Length = 0
	} else if self.ii > 0 {
		ret.Length = self.ii
	} else {
		ret.Length = hi - lo + 1
	}

	/* a plain loop body must also honour the edges towards the next iteration */
	if self.ii == 0 && self.g.Loop {
		for _, e := range self.g.Edges {
			if e.IsActive() && e.LoopCarried && e.From.IsScheduled() && e.To.IsScheduled() {
				ret.Length = maxint(ret.Length, e.From.Move.Cycle+e.Latency-e.To.Move.Cycle)
			}
		}
	}

	/* what the optimizations did */
	ret.Killed = idsof(self.killed)
	ret.Kept = idsof(self.kept)
	for k, v := range self.bypassed {
		ret.Bypassed[k] = v
	}
	for k, v := range self.renamed {
		ret.Renamed[k] = v
	}
	for k, v := range self.shares {
		ret.Shares[k] = v
	}
	return ret
}

// finalize makes the schedule permanent: operations are bound to their units,
// cycles are normalized and the instruction stream is built.
func (self *Scheduler) finalize(ret *Result) {
	var moves []*prog.Move
	lo, _, _ := self.extent()

	/* the resource manager knows which unit runs what */
	for _, op := range self.u.Ops {
		if hw := self.rm.Binding(op.Id); hw != nil {
			op.Unit = hw.Unit
		}
	}

	/* loop bodies fold onto II cycles, straight code starts at MinCycle */
	for _, n := range self.g.ActiveNodes() {
		mv := n.Move
		switch {
		case self.ii == 0:
			mv.Cycle += self.opts.MinCycle - lo
		case mv.Cycle < 0:
			ret.Stages[mv.Id] = 0
			mv.Cycle += self.ii
		default:
			ret.Stages[mv.Id] = 1
		}
		moves = append(moves, mv)
	}

	/* the undo history is meaningless from now on */
	ret.Instructions = prog.Instructions(moves)
	self.commit()

	/* statistics */
	count(&UnitCount)
	countn(&MoveCount, len(moves))
	countn(&BypassCount, len(ret.Bypassed))
	countn(&KillCount, len(ret.Killed))
	countn(&RenameCount, len(ret.Renamed))
	for _, k := range ret.Shares {
		if k == OperandShared {
			count(&ShareCount)
		}
	}
	self.log.Debug("scheduled", "length", ret.Length, "moves", len(moves))
}

func idsof(m map[prog.MoveId]bool) []prog.MoveId {
	ret := make([]prog.MoveId, 0, len(m))
	for id := range m {
		ret = append(ret, id)
	}
	sort.Slice(ret, func(i int, j int) bool { return ret[i] < ret[j] })
	return ret
}
