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

	"github.com/cloudwego/ttasched/prog"
)

// NoMove marks a failure that is not caused by one particular move.
const NoMove = prog.MoveId(-1)

// Failure reports a unit that could not be scheduled. The unit is left exactly
// as it was before the attempt.
type Failure struct {
	Unit   string
	Move   prog.MoveId
	Reason string
}

func (self *Failure) Error() string {
	if self.Move == NoMove {
		return fmt.Sprintf("cannot schedule %s: %s", self.Unit, self.Reason)
	} else {
		return fmt.Sprintf("cannot schedule %s, m%d: %s", self.Unit, self.Move, self.Reason)
	}
}

func efail(u *prog.Unit, id prog.MoveId, reason string) *Failure {
	return &Failure{
		Unit:   u.Name,
		Move:   id,
		Reason: reason,
	}
}
