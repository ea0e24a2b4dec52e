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

// Package renamer hands out registers no move of a unit touches, so that the
// scheduler can break anti and output dependences by giving a value a fresh
// home.
package renamer

import (
	"fmt"
	"sort"

	"github.com/cloudwego/ttasched/mach"
	"github.com/cloudwego/ttasched/prog"
)

type Renamer struct {
	m     *mach.Machine
	u     *prog.Unit
	used  prog.RegSet
	taken prog.RegSet
}

// New scans u for every register it references.
func New(u *prog.Unit) *Renamer {
	ret := &Renamer{
		m:     u.Machine,
		u:     u,
		used:  make(prog.RegSet),
		taken: make(prog.RegSet),
	}

	/* everything read, written or tested */
	for _, mv := range u.Moves {
		for _, r := range mv.Reads() {
			ret.used.Add(r)
		}
		if r, ok := mv.Writes(); ok {
			ret.used.Add(r)
		}
	}

	/* live-out registers carry values the unit does not see */
	for r := range u.LiveOut {
		ret.used.Add(r)
	}
	return ret
}

// IsFree reports whether r can be handed out.
func (self *Renamer) IsFree(r prog.Reg) bool {
	if r.File < 0 || r.File >= len(self.m.Files) || r.Index < 0 || r.Index >= self.m.Files[r.File].Size {
		return false
	}
	if self.u.LiveOut == nil {
		return false
	}
	return !self.used.Has(r) && !self.taken.Has(r)
}

// Free lists the free registers of rf in index order.
func (self *Renamer) Free(rf *mach.RegisterFile) []prog.Reg {
	var ret []prog.Reg
	for i := 0; i < rf.Size; i++ {
		if r := (prog.Reg{File: rf.Id, Index: i}); self.IsFree(r) {
			ret = append(ret, r)
		}
	}
	return ret
}

// PossibleTempRegRFs lists the register files that could hold the value mv
// transports: files with a free register, reachable from the source of mv and
// able to reach every one of readers. The forbidden file, if any, is skipped.
func (self *Renamer) PossibleTempRegRFs(mv *prog.Move, readers []*prog.Move, forbidden *mach.RegisterFile) []*mach.RegisterFile {
	var ret []*mach.RegisterFile
	for _, rf := range self.m.Files {
		if rf == forbidden || len(self.Free(rf)) == 0 {
			continue
		}
		if !self.reachable(self.sourcePorts(mv), rf.Write) {
			continue
		}
		ok := true
		for _, rd := range readers {
			if !self.reachable(rf.Read, self.destinationPorts(rd)) {
				ok = false
				break
			}
		}
		if ok {
			ret = append(ret, rf)
		}
	}
	return ret
}

// Allocate takes the lowest free register of rf.
func (self *Renamer) Allocate(rf *mach.RegisterFile) (prog.Reg, bool) {
	if free := self.Free(rf); len(free) == 0 {
		return prog.Reg{}, false
	} else {
		self.taken.Add(free[0])
		return free[0], true
	}
}

// Release returns a register obtained from Allocate.
func (self *Renamer) Release(r prog.Reg) {
	if !self.taken.Has(r) {
		panic(fmt.Sprintf("renamer: %s was not allocated", r))
	}
	delete(self.taken, r)
}

// Allocated lists the registers currently handed out.
func (self *Renamer) Allocated() []prog.Reg {
	ret := make([]prog.Reg, 0, len(self.taken))
	for r := range self.taken {
		ret = append(ret, r)
	}
	sort.Slice(ret, func(i int, j int) bool {
		if ret[i].File != ret[j].File {
			return ret[i].File < ret[j].File
		} else {
			return ret[i].Index < ret[j].Index
		}
	})
	return ret
}

func (self *Renamer) sourcePorts(mv *prog.Move) []*mach.Port {
	switch mv.Src.Kind {
	case prog.T_reg:
		return self.m.File(mv.Src.Reg.File).Read
	case prog.T_output:
		var ret []*mach.Port
		for _, hw := range self.candidates(mv.Src.Op) {
			ret = append(ret, hw.Outputs[mv.Src.Index])
		}
		return ret
	default:
		return nil
	}
}

func (self *Renamer) destinationPorts(mv *prog.Move) []*mach.Port {
	switch mv.Dst.Kind {
	case prog.T_reg:
		return self.m.File(mv.Dst.Reg.File).Write
	case prog.T_input:
		var ret []*mach.Port
		for _, hw := range self.candidates(mv.Dst.Op) {
			ret = append(ret, hw.Inputs[mv.Dst.Index])
		}
		return ret
	default:
		return nil
	}
}

func (self *Renamer) candidates(id prog.OpId) []*mach.HWOperation {
	if op := self.u.Op(id); op.Unit != nil {
		return []*mach.HWOperation{op.Unit.Ops[op.Name]}
	} else {
		return self.m.Candidates(op.Name)
	}
}

// reachable reports whether some bus connects one of src to one of dst. An
// empty source list stands for an immediate, which every bus can carry.
func (self *Renamer) reachable(src []*mach.Port, dst []*mach.Port) bool {
	for _, b := range self.m.Buses {
		if len(src) != 0 && !anyConnected(b, src) {
			continue
		}
		if anyConnected(b, dst) {
			return true
		}
	}
	return false
}

func anyConnected(b *mach.Bus, ports []*mach.Port) bool {
	for _, p := range ports {
		if b.Connects(p) {
			return true
		}
	}
	return false
}
