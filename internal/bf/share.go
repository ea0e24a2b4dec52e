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
	"fmt"

	"github.com/cloudwego/ttasched/internal/ddg"
	"github.com/cloudwego/ttasched/mach"
	"github.com/cloudwego/ttasched/prog"
)

// ShareKind is the outcome of trying to keep a loop invariant operand in its
// port for the whole loop.
type ShareKind uint8

const (
	OperandShared ShareKind = iota
	OperandNotShared
	OperandNoPort
	OperandNotInvariant
)

func (self ShareKind) String() string {
	switch self {
	case OperandShared:
		return "shared"
	case OperandNotShared:
		return "not-shared"
	case OperandNoPort:
		return "no-port"
	case OperandNotInvariant:
		return "not-invariant"
	default:
		return fmt.Sprintf("ShareKind(%d)", self)
	}
}

// preallocate decides, before the loop body is scheduled, which invariant
// operands are written once before the loop instead of on every iteration.
// Values used most often are considered first.
func (self *Scheduler) preallocate() {
	for _, v := range self.info.Values(self.u) {
		for _, n := range self.g.ActiveNodes() {
			if mv := n.Move; mv.Src == v && mv.Dst.Kind == prog.T_input {
				self.decide(n, self.shareOperand(n))
			}
		}
	}

	/* everything else is variant */
	for _, n := range self.g.ActiveNodes() {
		if _, ok := self.shares[n.Id()]; !ok && n.Move.Dst.Kind == prog.T_input {
			self.decide(n, OperandNotInvariant)
		}
	}
}

func (self *Scheduler) decide(n *ddg.Node, kind ShareKind) {
	self.shares[n.Id()] = kind
	self.record(&_Shared{n.Id()})
	if kind == OperandShared {
		self.log.Debug("operand shared", "move", n.Id())
	}
}

func (self *Scheduler) shareOperand(n *ddg.Node) ShareKind {
	mv := n.Move
	if !self.info.IsInvariant(mv) {
		return OperandNotInvariant
	}
	if self.u.IsTrigger(mv) {
		return OperandNoPort
	}
	if mv.Guard != nil {
		return OperandNotShared
	}

	/* look for a unit whose operand port can hold the value */
	op := self.u.Op(mv.Dst.Op)
	for _, hw := range self.hwChoices(op) {
		p := hw.Inputs[mv.Dst.Index]

		/* a port already kept can only serve the very same value */
		if owner, ok := self.rm.PortReservation(p); ok {
			if self.sameOperand(self.u.Op(owner), op, mv) && self.rm.Binding(owner) == hw {
				self.pin(op, hw)
				self.kill(n, false)
				return OperandShared
			}
			continue
		}

		/* keep the port for this operation */
		self.pin(op, hw)
		self.rm.ReservePort(p, op.Id)
		self.record(&_Reserved{p})
		self.kill(n, true)
		return OperandShared
	}
	return OperandNotShared
}

func (self *Scheduler) hwChoices(op *prog.Operation) []*mach.HWOperation {
	if hw := self.rm.Binding(op.Id); hw != nil {
		return []*mach.HWOperation{hw}
	} else if op.Unit != nil {
		return []*mach.HWOperation{op.Unit.Ops[op.Name]}
	} else {
		return self.m.Candidates(op.Name)
	}
}

func (self *Scheduler) pin(op *prog.Operation, hw *mach.HWOperation) {
	if self.rm.Binding(op.Id) == nil {
		self.rm.Pin(op.Id, hw)
		self.record(&_Pinned{op.Id})
	}
}

// sameOperand reports whether owner writes the same value as mv into the same
// operand of the same operation.
func (self *Scheduler) sameOperand(owner *prog.Operation, op *prog.Operation, mv *prog.Move) bool {
	if owner.Name != op.Name || mv.Dst.Index >= len(owner.Inputs) {
		return false
	} else {
		return self.u.Move(owner.Inputs[mv.Dst.Index]).Src == mv.Src
	}
}
