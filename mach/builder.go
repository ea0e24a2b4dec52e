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

package mach

import (
	"fmt"
	"strings"
)

// Builder assembles a Machine. Referencing an unknown name is a programming
// error and panics, the same way a malformed CFG does in the ssa passes.
type Builder struct {
	m *Machine
}

func NewBuilder(name string) *Builder {
	return &Builder{
		m: &Machine{
			Name:         name,
			Operations:   make(map[string]*OperationSpec),
			GuardLatency: 1,
		},
	}
}

func (self *Builder) newPort(unit string, name string, kind PortKind) *Port {
	p := &Port{
		Id:   len(self.m.Ports),
		Name: name,
		Kind: kind,
		Unit: unit,
	}
	self.m.Ports = append(self.m.Ports, p)
	return p
}

// Operation declares an operation spec. Names are case-insensitive.
func (self *Builder) Operation(spec OperationSpec) *Builder {
	if spec.Inputs <= 0 || spec.Trigger < 0 || spec.Trigger >= spec.Inputs {
		panic(fmt.Sprintf("mach: invalid trigger index %d for operation %s", spec.Trigger, spec.Name))
	}
	if spec.Latency <= 0 {
		spec.Latency = 1
	}
	spec.Name = strings.ToLower(spec.Name)
	self.m.Operations[spec.Name] = &spec
	return self
}

// AddFile adds a register file with the given number of read and write ports.
func (self *Builder) AddFile(name string, size int, width int, reads int, writes int) *RegisterFile {
	rf := &RegisterFile{
		Id:    len(self.m.Files),
		Name:  name,
		Size:  size,
		Width: width,
	}
	for i := 0; i < reads; i++ {
		rf.Read = append(rf.Read, self.newPort(name, fmt.Sprintf("r%d", i), P_read))
	}
	for i := 0; i < writes; i++ {
		rf.Write = append(rf.Write, self.newPort(name, fmt.Sprintf("w%d", i), P_write))
	}
	self.m.Files = append(self.m.Files, rf)
	return rf
}

// AddUnit adds a function unit implementing ops. The unit gets one trigger port,
// enough operand ports for the widest operation, and enough result ports for the
// operation with the most results. Every operation binds its trigger operand to
// the trigger port and the rest of its inputs to the operand ports in order.
func (self *Builder) AddUnit(name string, ops ...string) *FunctionUnit {
	nin := 0
	nout := 0
	specs := make([]*OperationSpec, 0, len(ops))

	/* resolve all operations first */
	for _, op := range ops {
		if spec := self.m.Operation(op); spec == nil {
			panic("mach: undeclared operation " + op)
		} else {
			specs = append(specs, spec)
			nin = maxint(nin, spec.Inputs)
			nout = maxint(nout, spec.Outputs)
		}
	}

	/* create the ports */
	fu := &FunctionUnit{
		Id:   len(self.m.Units),
		Name: name,
		Ops:  make(map[string]*HWOperation, len(specs)),
	}
	trig := self.newPort(name, "t", P_trigger)
	opnd := make([]*Port, 0, nin)
	for i := 1; i < nin; i++ {
		opnd = append(opnd, self.newPort(name, fmt.Sprintf("o%d", i), P_operand))
	}
	res := make([]*Port, 0, nout)
	for i := 0; i < nout; i++ {
		res = append(res, self.newPort(name, fmt.Sprintf("r%d", i), P_result))
	}
	fu.Ports = append(fu.Ports, trig)
	fu.Ports = append(fu.Ports, opnd...)
	fu.Ports = append(fu.Ports, res...)

	/* bind every operation */
	for _, spec := range specs {
		k := 0
		hw := &HWOperation{
			Spec:      spec,
			Unit:      fu,
			Inputs:    make([]*Port, spec.Inputs),
			Outputs:   res[:spec.Outputs],
			Occupancy: 1,
		}
		for i := range hw.Inputs {
			if i == spec.Trigger {
				hw.Inputs[i] = trig
			} else {
				hw.Inputs[i] = opnd[k]
				k++
			}
		}
		fu.Ops[spec.Name] = hw
	}

	self.m.Units = append(self.m.Units, fu)
	return fu
}

// Occupancy sets the issue interval of op on unit.
func (self *Builder) Occupancy(unit string, op string, cycles int) *Builder {
	fu := self.m.UnitByName(unit)
	if fu == nil {
		panic("mach: unknown unit " + unit)
	}
	hw, ok := fu.Ops[strings.ToLower(op)]
	if !ok || cycles <= 0 {
		panic(fmt.Sprintf("mach: invalid occupancy %d for %s.%s", cycles, unit, op))
	}
	hw.Occupancy = cycles
	return self
}

// AddBus adds a bus with an inline immediate field of immWidth bits.
func (self *Builder) AddBus(name string, immWidth int) *Bus {
	b := &Bus{
		Id:       len(self.m.Buses),
		Name:     name,
		ImmWidth: immWidth,
		ports:    make(map[int]struct{}),
	}
	self.m.Buses = append(self.m.Buses, b)
	return b
}

// Connect attaches ports to the bus.
func (self *Builder) Connect(b *Bus, ports ...*Port) *Builder {
	for _, p := range ports {
		b.ports[p.Id] = struct{}{}
	}
	return self
}

// ConnectAll attaches every port created so far to every bus.
func (self *Builder) ConnectAll() *Builder {
	for _, b := range self.m.Buses {
		self.Connect(b, self.m.Ports...)
	}
	return self
}

// Guard lets every bus evaluate the given registers.
func (self *Builder) Guard(regs ...Reg) *Builder {
	for _, b := range self.m.Buses {
		b.Guards = append(b.Guards, regs...)
	}
	return self
}

func (self *Builder) ImmSlots(n int) *Builder {
	self.m.ImmSlots = n
	return self
}

func (self *Builder) DelaySlots(n int) *Builder {
	self.m.DelaySlots = n
	return self
}

func (self *Builder) GuardLatency(n int) *Builder {
	self.m.GuardLatency = n
	return self
}

// Build returns the assembled machine. The builder must not be used afterwards.
func (self *Builder) Build() *Machine {
	m := self.m
	self.m = nil
	return m
}

// Generic builds a small fully connected machine with nbus buses: one integer
// register file "RF" (32 registers, 2 read and 1 write ports), one boolean file
// "BOOL" (2 registers) usable as guards, an ALU, a multiplier with latency 3, a
// load-store unit and a control unit.
func Generic(nbus int) *Machine {
	b := NewBuilder(fmt.Sprintf("generic-%d", nbus))
	b.Operation(OperationSpec{Name: "add", Inputs: 2, Outputs: 1, Trigger: 1, Latency: 1})
	b.Operation(OperationSpec{Name: "sub", Inputs: 2, Outputs: 1, Trigger: 1, Latency: 1})
	b.Operation(OperationSpec{Name: "and", Inputs: 2, Outputs: 1, Trigger: 1, Latency: 1})
	b.Operation(OperationSpec{Name: "eq", Inputs: 2, Outputs: 1, Trigger: 1, Latency: 1})
	b.Operation(OperationSpec{Name: "ne", Inputs: 2, Outputs: 1, Trigger: 1, Latency: 1})
	b.Operation(OperationSpec{Name: "gt", Inputs: 2, Outputs: 1, Trigger: 1, Latency: 1})
	b.Operation(OperationSpec{Name: "lt", Inputs: 2, Outputs: 1, Trigger: 1, Latency: 1})
	b.Operation(OperationSpec{Name: "mul", Inputs: 2, Outputs: 1, Trigger: 1, Latency: 3})
	b.Operation(OperationSpec{Name: "ld", Inputs: 1, Outputs: 1, Trigger: 0, Latency: 3, ReadsMemory: true})
	b.Operation(OperationSpec{Name: "st", Inputs: 2, Outputs: 0, Trigger: 1, Latency: 1, WritesMemory: true})
	b.Operation(OperationSpec{Name: "jump", Inputs: 1, Outputs: 0, Trigger: 0, Latency: 1, Control: true})
	b.AddFile("RF", 32, 32, 2, 1)
	bf := b.AddFile("BOOL", 2, 1, 1, 1)
	b.AddUnit("ALU", "add", "sub", "and", "eq", "ne", "gt", "lt")
	b.AddUnit("MUL", "mul")
	b.AddUnit("LSU", "ld", "st")
	b.AddUnit("GCU", "jump")
	for i := 0; i < nbus; i++ {
		b.AddBus(fmt.Sprintf("B%d", i), 8)
	}
	b.ConnectAll()
	b.Guard(Reg{File: bf.Id, Index: 0}, Reg{File: bf.Id, Index: 1})
	b.ImmSlots(1)
	return b.Build()
}

func maxint(a int, b int) int {
	if a > b {
		return a
	} else {
		return b
	}
}
