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
	"github.com/cloudwego/ttasched/internal/rm"
	"github.com/cloudwego/ttasched/mach"
	"github.com/cloudwego/ttasched/prog"
)

// _Record is one undoable step. Every change the scheduler makes to the graph,
// the resource ledger or the unit goes through one of these, so any sequence
// of steps can be rolled back exactly.
type _Record interface {
	undo(s *Scheduler)
	fmt.Stringer
}

type (
	_Assigned struct {
		n *ddg.Node
	}

	_Unassigned struct {
		n *ddg.Node
		p rm.Placement
	}

	_Killed struct {
		n    *ddg.Node
		keep bool
	}

	_EdgeAdded struct {
		e *ddg.Edge
	}

	_EdgeRemoved struct {
		e *ddg.Edge
	}

	_Retargeted struct {
		mv  *prog.Move
		src prog.Terminal
		dst prog.Terminal
		op  *prog.Operation
		out []prog.MoveId
	}

	_Pinned struct {
		op prog.OpId
	}

	_Reserved struct {
		port *mach.Port
	}

	_Allocated struct {
		reg prog.Reg
	}

	_Shared struct {
		mv prog.MoveId
	}

	_Bypassed struct {
		mv prog.MoveId
	}

	_Renamed struct {
		mv prog.MoveId
	}
)

func (self *_Assigned) undo(s *Scheduler)    { s.rm.Unassign(self.n.Move) }
func (self *_Unassigned) undo(s *Scheduler)  { s.rm.Assign(self.n.Move, self.p) }
func (self *_EdgeAdded) undo(s *Scheduler)   { s.g.Unlink(self.e) }
func (self *_EdgeRemoved) undo(s *Scheduler) { s.g.RestoreEdge(self.e) }
func (self *_Pinned) undo(s *Scheduler)      { s.rm.Unpin(self.op) }
func (self *_Reserved) undo(s *Scheduler)    { s.rm.ReleasePort(self.port) }
func (self *_Allocated) undo(s *Scheduler)   { s.ren.Release(self.reg) }
func (self *_Shared) undo(s *Scheduler)      { delete(s.shares, self.mv) }
func (self *_Bypassed) undo(s *Scheduler)    { delete(s.bypassed, self.mv) }
func (self *_Renamed) undo(s *Scheduler)     { delete(s.renamed, self.mv) }

func (self *_Killed) undo(s *Scheduler) {
	s.g.Resurrect(self.n)
	delete(s.killed, self.n.Id())
	delete(s.kept, self.n.Id())
}

func (self *_Retargeted) undo(s *Scheduler) {
	self.mv.Src = self.src
	self.mv.Dst = self.dst
	if self.op != nil {
		self.op.Outputs = self.out
	}
}

func (self *_Assigned) String() string    { return "assign " + self.n.String() }
func (self *_Unassigned) String() string  { return "unassign " + self.n.String() }
func (self *_EdgeAdded) String() string   { return "add " + self.e.String() }
func (self *_EdgeRemoved) String() string { return "remove " + self.e.String() }
func (self *_Pinned) String() string      { return fmt.Sprintf("pin op%d", self.op) }
func (self *_Reserved) String() string    { return "reserve " + self.port.String() }
func (self *_Allocated) String() string   { return "allocate " + self.reg.String() }
func (self *_Shared) String() string      { return fmt.Sprintf("share m%d", self.mv) }
func (self *_Bypassed) String() string    { return fmt.Sprintf("bypass m%d", self.mv) }
func (self *_Renamed) String() string     { return fmt.Sprintf("rename m%d", self.mv) }

func (self *_Killed) String() string {
	if self.keep {
		return fmt.Sprintf("remove m%d, keep a copy", self.n.Id())
	} else {
		return fmt.Sprintf("kill m%d", self.n.Id())
	}
}

func (self *_Retargeted) String() string {
	return fmt.Sprintf("retarget m%d, was %s -> %s", self.mv.Id, self.src, self.dst)
}
