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

// Package mach describes the target transport-triggered machine: the buses, the
// ports they connect, the function units and their hardware operations, and the
// register files. A Machine is immutable once built and may be shared freely
// between concurrently scheduled units.
package mach

import (
	"fmt"
	"sort"
	"strings"
)

type PortKind uint8

const (
	P_operand PortKind = iota
	P_trigger
	P_result
	P_read
	P_write
)

func (self PortKind) String() string {
	switch self {
	case P_operand:
		return "operand"
	case P_trigger:
		return "trigger"
	case P_result:
		return "result"
	case P_read:
		return "read"
	case P_write:
		return "write"
	default:
		return fmt.Sprintf("PortKind(%d)", self)
	}
}

// Reg names one register of a register file.
type Reg struct {
	File  int
	Index int
}

func (self Reg) String() string {
	return fmt.Sprintf("r%d.%d", self.File, self.Index)
}

type Port struct {
	Id   int
	Name string
	Kind PortKind
	Unit string
}

func (self *Port) String() string {
	return self.Unit + "." + self.Name
}

// IsInput reports whether moves write into the port.
func (self *Port) IsInput() bool {
	return self.Kind == P_operand || self.Kind == P_trigger || self.Kind == P_write
}

type Bus struct {
	Id       int
	Name     string
	ImmWidth int
	Guards   []Reg
	ports    map[int]struct{}
}

func (self *Bus) String() string {
	return self.Name
}

// Connects reports whether the bus has a socket on port p.
func (self *Bus) Connects(p *Port) bool {
	_, ok := self.ports[p.Id]
	return ok
}

// CanEvaluate reports whether the bus may be predicated by register r.
func (self *Bus) CanEvaluate(r Reg) bool {
	for _, g := range self.Guards {
		if g == r {
			return true
		}
	}
	return false
}

// FitsInline reports whether v fits into the inline immediate field of the bus.
func (self *Bus) FitsInline(v int64) bool {
	return self.ImmWidth > 0 && ImmBits(v) <= self.ImmWidth
}

// OperationSpec is the machine-wide description of an operation. The operand
// numbering is [0, Inputs) for inputs and [0, Outputs) for results.
type OperationSpec struct {
	Name         string
	Inputs       int
	Outputs      int
	Trigger      int
	Latency      int
	ReadsMemory  bool
	WritesMemory bool
	Control      bool
}

func (self *OperationSpec) String() string {
	return self.Name
}

// HasSideEffects reports whether the operation may not be executed speculatively.
func (self *OperationSpec) HasSideEffects() bool {
	return self.WritesMemory || self.Control
}

// IsMemory reports whether the operation accesses memory.
func (self *OperationSpec) IsMemory() bool {
	return self.ReadsMemory || self.WritesMemory
}

// HWOperation binds an operation onto the ports of one function unit.
type HWOperation struct {
	Spec      *OperationSpec
	Unit      *FunctionUnit
	Inputs    []*Port
	Outputs   []*Port
	Occupancy int
}

func (self *HWOperation) String() string {
	return self.Unit.Name + "." + self.Spec.Name
}

type FunctionUnit struct {
	Id    int
	Name  string
	Ports []*Port
	Ops   map[string]*HWOperation
}

func (self *FunctionUnit) String() string {
	return self.Name
}

// Port looks up a port of the unit by name.
func (self *FunctionUnit) Port(name string) *Port {
	for _, p := range self.Ports {
		if p.Name == name {
			return p
		}
	}
	return nil
}

type RegisterFile struct {
	Id    int
	Name  string
	Size  int
	Width int
	Read  []*Port
	Write []*Port
}

func (self *RegisterFile) String() string {
	return self.Name
}

type Machine struct {
	Name         string
	Buses        []*Bus
	Units        []*FunctionUnit
	Files        []*RegisterFile
	Ports        []*Port
	Operations   map[string]*OperationSpec
	ImmSlots     int
	DelaySlots   int
	GuardLatency int
}

// Operation returns the machine-wide spec of op, or nil.
func (self *Machine) Operation(op string) *OperationSpec {
	return self.Operations[strings.ToLower(op)]
}

// Candidates lists every hardware operation implementing op, ordered by unit id.
func (self *Machine) Candidates(op string) []*HWOperation {
	var ret []*HWOperation
	name := strings.ToLower(op)

	/* units are kept ordered by id */
	for _, fu := range self.Units {
		if hw, ok := fu.Ops[name]; ok {
			ret = append(ret, hw)
		}
	}
	return ret
}

// File returns the register file with the given id.
func (self *Machine) File(id int) *RegisterFile {
	if id < 0 || id >= len(self.Files) {
		panic(fmt.Sprintf("mach: register file %d out of range", id))
	}
	return self.Files[id]
}

// FileByName looks up a register file by name, or nil.
func (self *Machine) FileByName(name string) *RegisterFile {
	for _, rf := range self.Files {
		if rf.Name == name {
			return rf
		}
	}
	return nil
}

// UnitByName looks up a function unit by name, or nil.
func (self *Machine) UnitByName(name string) *FunctionUnit {
	for _, fu := range self.Units {
		if fu.Name == name {
			return fu
		}
	}
	return nil
}

// BusesBetween lists the buses connecting both ports. A nil port stands for an
// immediate, which every bus can carry.
func (self *Machine) BusesBetween(src *Port, dst *Port) []*Bus {
	var ret []*Bus
	for _, b := range self.Buses {
		if (src == nil || b.Connects(src)) && b.Connects(dst) {
			ret = append(ret, b)
		}
	}
	return ret
}

func (self *Machine) String() string {
	names := make([]string, 0, len(self.Operations))
	for k := range self.Operations {
		names = append(names, k)
	}
	sort.Strings(names)
	return fmt.Sprintf(
		"%s{buses=%d units=%d files=%d ops=[%s]}",
		self.Name,
		len(self.Buses),
		len(self.Units),
		len(self.Files),
		strings.Join(names, " "),
	)
}

// ImmBits returns the signed width needed to encode v.
func ImmBits(v int64) int {
	n := 1
	for v != 0 && v != -1 {
		v >>= 1
		n++
	}
	return n
}
