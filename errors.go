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

package ttasched

import (
	"fmt"

	"github.com/cloudwego/ttasched/prog"
)

// SchedulingError occures when a unit cannot be scheduled within the cycle
// window on the given machine. Move is -1 when no single move is to blame.
type SchedulingError struct {
	Unit   string
	Move   int
	Reason string
}

func (self SchedulingError) Error() string {
	if self.Move < 0 {
		return fmt.Sprintf("SchedulingError(%s): %s", self.Unit, self.Reason)
	} else {
		return fmt.Sprintf("SchedulingError(%s, m%d): %s", self.Unit, self.Move, self.Reason)
	}
}

// UnitError occures when a unit is malformed, or refers to something the
// machine does not have.
type UnitError struct {
	Unit   string
	Reason string
}

func (self UnitError) Error() string {
	return fmt.Sprintf("UnitError(%s): %s", self.Unit, self.Reason)
}

func eunit(u *prog.Unit, format string, args ...interface{}) UnitError {
	return UnitError{
		Unit:   u.Name,
		Reason: fmt.Sprintf(format, args...),
	}
}

func epanic(u *prog.Unit, v interface{}) SchedulingError {
	return SchedulingError{
		Unit:   u.Name,
		Move:   -1,
		Reason: fmt.Sprint("internal error: ", v),
	}
}

// validate checks that every move and operation of u can exist on its machine.
func validate(u *prog.Unit) error {
	if u == nil {
		return UnitError{Reason: "nil unit"}
	}
	if u.Machine == nil {
		return eunit(u, "no target machine")
	}

	/* operations must be executable */
	for _, op := range u.Ops {
		if op.Spec == nil {
			return eunit(u, "op%d has no specification", op.Id)
		}
		if op.Unit != nil && op.Unit.Ops[op.Name] == nil {
			return eunit(u, "unit %s cannot execute %s", op.Unit, op.Name)
		}
		if op.Unit == nil && len(u.Machine.Candidates(op.Name)) == 0 {
			return eunit(u, "no unit can execute %s", op.Name)
		}
		if len(op.Inputs) != op.Spec.Inputs {
			return eunit(u, "op%d has %d of %d inputs", op.Id, len(op.Inputs), op.Spec.Inputs)
		}
	}

	/* moves must be unscheduled and refer to real registers */
	for i, mv := range u.Moves {
		if mv.Id != prog.MoveId(i) {
			return eunit(u, "move #%d has id %d", i, mv.Id)
		}
		if mv.IsScheduled() {
			return eunit(u, "m%d is already scheduled", mv.Id)
		}
		for _, r := range mv.Reads() {
			if !hasReg(u, r) {
				return eunit(u, "m%d reads unknown register %s", mv.Id, r)
			}
		}
		if r, ok := mv.Writes(); ok && !hasReg(u, r) {
			return eunit(u, "m%d writes unknown register %s", mv.Id, r)
		}
	}
	return nil
}

func hasReg(u *prog.Unit, r prog.Reg) bool {
	return r.File >= 0 && r.File < len(u.Machine.Files) && r.Index >= 0 && r.Index < u.Machine.Files[r.File].Size
}
