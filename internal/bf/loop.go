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
	"github.com/cloudwego/ttasched/internal/loop"
	"github.com/cloudwego/ttasched/internal/opts"
	"github.com/cloudwego/ttasched/internal/rm"
	"github.com/cloudwego/ttasched/prog"
)

// PrologCycleBias offsets the cycles of the prolog, so that they can never be
// confused with the cycles of the loop body, which stay within [-II, II).
const PrologCycleBias = 1000

// MaxII is the largest initiation interval the prolog bias can tell apart.
const MaxII = PrologCycleBias/2 - 1

// ScheduleLoop schedules a loop body. The body is first scheduled on its own,
// then iterations are overlapped with the smallest initiation interval that
// both fits and beats the plain schedule. The moves of the first stage that
// run ahead of the body for the first iteration, and the loop invariant
// operands written once, form the prolog.
func ScheduleLoop(u *prog.Unit, ind *loop.Induction, o *opts.Options) (*Result, error) {
	g := ddg.Build(u, true)
	info := loop.Analyze(g, ind)

	/* the plain schedule is the reference */
	plain, err := scheduleLoopAt(g, info, 0, o, true)
	if err != nil {
		return nil, err
	}

	/* overlap iterations when it pays off */
	if overlappable(info) {
		for ii := minII(g); ii < plain.Length && ii <= MaxII; ii++ {
			if ret, err := scheduleLoopAt(g, info, ii, o, o.TestOnly); err == nil {
				if !o.TestOnly {
					count(&OverlapCount)
				}
				return ret, nil
			}
		}
	}

	/* fall back to the plain schedule */
	if o.TestOnly {
		return plain, nil
	} else {
		return scheduleLoopAt(g, info, 0, o, false)
	}
}

// overlappable reports whether overlapping iterations can be profitable.
func overlappable(info *loop.Result) bool {
	return info.Kind != loop.TripKnown || info.TripCount >= 2
}

// minII is the initiation interval below which the buses cannot carry all the
// moves of one iteration.
func minII(g *ddg.Graph) int {
	n := len(g.ActiveNodes())
	b := len(g.Machine.Buses)
	if ret := (n + b - 1) / b; ret < 1 {
		return 1
	} else {
		return ret
	}
}

// scheduleLoopAt schedules one iteration at initiation interval ii, trying
// with operand sharing first and without it when that fails.
func scheduleLoopAt(g *ddg.Graph, info *loop.Result, ii int, o *opts.Options, testOnly bool) (*Result, error) {
	ret, err := attemptLoop(g, info, ii, o, o.OperandSharing, testOnly)
	if err != nil && o.OperandSharing {
		ret, err = attemptLoop(g, info, ii, o, false, testOnly)
	}
	return ret, err
}

func attemptLoop(g *ddg.Graph, info *loop.Result, ii int, o *opts.Options, share bool, testOnly bool) (*Result, error) {
	lo, hi := o.MinCycle, o.MaxCycle
	if ii > 0 {
		lo, hi = -ii, ii-1
	}

	/* construct the scheduler */
	s, err := newScheduler(g, ii, lo, hi, o)
	if err != nil {
		return nil, err
	}

	/* invariant operands go before the loop */
	s.info = info
	if share {
		s.preallocate()
	}

	/* schedule the body */
	if err = s.run(); err != nil {
		s.log.Debug("loop attempt failed", "share", share, "error", err)
		s.unschedule()
		return nil, err
	}

	/* the prolog must fit as well */
	ret := s.result()
	prolog, ok := s.prolog()
	if !ok {
		s.unschedule()
		return nil, efail(g.Unit, NoMove, "prolog does not fit")
	}

	/* keep or throw away */
	if testOnly {
		s.unschedule()
	} else {
		s.finalize(ret)
		ret.Prolog = prolog
	}
	return ret, nil
}

// prolog builds the instructions executed once before the loop: the first
// stage of the first iteration, and the invariant operands kept in their
// ports. They are placed on a separate ledger, at PrologCycleBias plus their
// cycle, and returned renumbered from zero.
func (self *Scheduler) prolog() ([]prog.Instruction, bool) {
	var moves []*prog.Move
	pu := self.u.Clone()
	prm := rm.New(pu, 0)

	/* operations stay on the units they use in the body */
	for _, op := range self.u.Ops {
		if hw := self.rm.Binding(op.Id); hw != nil {
			prm.Pin(op.Id, hw)
		}
	}

	/* the first stage, exactly as in the body */
	if self.ii > 0 {
		for _, n := range self.g.ActiveNodes() {
			if mv := n.Move; mv.IsScheduled() && mv.Cycle < 0 {
				p, _ := self.rm.Placement(mv.Id)
				cp := pu.Move(mv.Id)
				if q := rm.Retime(p, PrologCycleBias+mv.Cycle+self.ii); !prm.Fits(cp, q) {
					return nil, false
				} else {
					prm.Assign(cp, q)
					moves = append(moves, cp)
				}
			}
		}
	}

	/* the kept operands, no later than the first trigger */
	for _, id := range idsof(self.kept) {
		cp := pu.Move(id)
		hi := PrologCycleBias + self.ii - 1
		if t := pu.Move(pu.Op(cp.Dst.Op).Trigger()); t.IsScheduled() {
			hi = minint(hi, t.Cycle)
		}
		if p, ok := prm.Latest(cp, PrologCycleBias/2, hi); !ok {
			return nil, false
		} else {
			prm.Assign(cp, p)
			moves = append(moves, cp)
		}
	}

	/* renumber from zero */
	if lo, _, ok := prm.Bounds(); ok {
		for _, mv := range moves {
			mv.Cycle -= lo
		}
	}
	return prog.Instructions(moves), true
}
